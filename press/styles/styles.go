// Package styles compiles SCSS entry points into a readable stylesheet and a minified ".min.css" variant.
package styles

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bep/golibsass/libsass"
	"github.com/swdunlop/html-go/hog"

	"github.com/swdunlop/press-go/press/asset"
	"github.com/swdunlop/press-go/press/esbuild"
	"github.com/swdunlop/press-go/press/paths"
	"github.com/swdunlop/press-go/press/report"
)

// Run compiles every top level SCSS file.  Files whose names start with an underscore are partials and are only
// compiled when imported.
func Run(ctx context.Context, reg *paths.Registry, reporter report.Reporter) ([]string, error) {
	job := asset.NewJob(reg, paths.Styles, reporter)
	names, err := job.Sources()
	if err != nil {
		return nil, err
	}
	if err = job.Prepare(); err != nil {
		return nil, err
	}
	for _, name := range names {
		if strings.HasPrefix(path.Base(name), `_`) {
			continue
		}
		if ctx.Err() != nil {
			return job.Written(), ctx.Err()
		}
		err = compile(ctx, job, name)
		if err != nil {
			return job.Written(), err
		}
	}
	return job.Written(), nil
}

// compile runs the stylesheet chain for one entry.  Problems with the stylesheet itself are reported and skip the
// file; only failures to write the output are returned.
func compile(ctx context.Context, job *asset.Job, name string) error {
	src, err := job.Read(name)
	if err != nil {
		job.Problem(ctx, name, `scss`, err)
		return nil
	}
	css, err := Compile(job.Registry.Abs(path.Dir(name)), job.Registry.Abs(job.Base), src)
	if err != nil {
		job.Problem(ctx, name, `scss`, err)
		return nil
	}

	readable, err := esbuild.Transform(ctx, []byte(css), esbuild.CSS(), esbuild.Sourcefile(name))
	if err != nil {
		job.Problem(ctx, name, `css`, err)
		return nil
	}
	minified, err := esbuild.Transform(ctx, readable,
		esbuild.CSS(), esbuild.Sourcefile(name), esbuild.Minify(false), esbuild.StripComments())
	if err != nil {
		job.Problem(ctx, name, `css`, err)
		return nil
	}

	out, err := job.Output(name)
	if err != nil {
		return err
	}
	out = strings.TrimSuffix(out, filepath.Ext(out)) + `.css`
	if err = job.Write(out, readable); err != nil {
		return fmt.Errorf(`%w while writing %s`, err, out)
	}
	minOut := asset.Suffix(out, `.min`)
	if err = job.Write(minOut, minified); err != nil {
		return fmt.Errorf(`%w while writing %s`, err, minOut)
	}
	hog.From(ctx).Debug().Str(`file`, name).Int(`size`, len(readable)).Int(`min`, len(minified)).Msg(`compiled stylesheet`)
	return nil
}

// Compile transpiles SCSS source to expanded CSS.  Imports are resolved against dir first and then base.
func Compile(dir, base string, src []byte) (string, error) {
	includes := []string{dir}
	if base != dir {
		includes = append(includes, base)
	}
	transpiler, err := libsass.New(libsass.Options{
		OutputStyle:  libsass.ExpandedStyle,
		IncludePaths: includes,
		Precision:    10,
	})
	if err != nil {
		return ``, err
	}
	ret, err := transpiler.Execute(string(src))
	if err != nil {
		return ``, err
	}
	return ret.CSS, nil
}
