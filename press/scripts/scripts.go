// Package scripts resolves include directives in JavaScript entry points and writes both the resolved script and a
// minified ".min.js" variant.
package scripts

import (
	"context"
	"fmt"

	"github.com/swdunlop/html-go/hog"

	"github.com/swdunlop/press-go/press/asset"
	"github.com/swdunlop/press-go/press/esbuild"
	"github.com/swdunlop/press-go/press/paths"
	"github.com/swdunlop/press-go/press/report"
)

// Run processes every top level script.
func Run(ctx context.Context, reg *paths.Registry, reporter report.Reporter) ([]string, error) {
	job := asset.NewJob(reg, paths.Scripts, reporter)
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
		if err = process(ctx, job, name); err != nil {
			return job.Written(), err
		}
	}
	return job.Written(), nil
}

func process(ctx context.Context, job *asset.Job, name string) error {
	src, err := Resolve(job.Registry.Abs(name))
	if err != nil {
		job.Problem(ctx, name, `include`, err)
		return nil
	}
	minified, err := esbuild.Transform(ctx, src, esbuild.JS(), esbuild.Sourcefile(name), esbuild.Minify(true))
	if err != nil {
		job.Problem(ctx, name, `minify`, err)
		minified = nil
	}

	out, err := job.Output(name)
	if err != nil {
		return err
	}
	if err = job.Write(out, src); err != nil {
		return fmt.Errorf(`%w while writing %s`, err, out)
	}
	if minified == nil {
		return nil
	}
	minOut := asset.Suffix(out, `.min`)
	if err = job.Write(minOut, minified); err != nil {
		return fmt.Errorf(`%w while writing %s`, err, minOut)
	}
	hog.From(ctx).Debug().Str(`file`, name).Int(`size`, len(src)).Int(`min`, len(minified)).Msg(`built script`)
	return nil
}
