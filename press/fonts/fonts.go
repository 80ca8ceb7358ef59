// Package fonts copies font files into the output tree without transforming them.
package fonts

import (
	"context"

	"github.com/swdunlop/press-go/press/asset"
	"github.com/swdunlop/press-go/press/paths"
	"github.com/swdunlop/press-go/press/report"
)

// Run copies every font matched by the registry, preserving its path relative to the fonts directory.
func Run(ctx context.Context, reg *paths.Registry, reporter report.Reporter) ([]string, error) {
	job := asset.NewJob(reg, paths.Fonts, reporter)
	names, err := job.Sources()
	if err != nil {
		return nil, err
	}
	if err = job.Prepare(); err != nil {
		return nil, err
	}
	for _, name := range names {
		if ctx.Err() != nil {
			return job.Written(), ctx.Err()
		}
		out, err := job.Output(name)
		if err != nil {
			job.Problem(ctx, name, `copy`, err)
			continue
		}
		if err = job.Copy(name, out); err != nil {
			job.Problem(ctx, name, `copy`, err)
		}
	}
	return job.Written(), nil
}
