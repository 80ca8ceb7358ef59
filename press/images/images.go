// Package images optimizes image assets with a fixed per-format policy.  An optimized file is only kept when it is
// smaller than its source, so outputs are never larger than their inputs.
package images

import (
	"bytes"
	"context"
	"fmt"
	"image/gif"
	"image/png"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/swdunlop/html-go/hog"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/json"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/tdewolff/minify/v2/xml"

	"github.com/swdunlop/press-go/press/asset"
	"github.com/swdunlop/press-go/press/paths"
	"github.com/swdunlop/press-go/press/report"
)

// JPEGQuality is the quality used when re-encoding JPEG images.
const JPEGQuality = 85

var minifier = func() *minify.M {
	m := minify.New()
	m.AddFunc(`text/css`, css.Minify)
	m.AddFunc(`image/svg+xml`, svg.Minify)
	m.AddFunc(`text/xml`, xml.Minify)
	m.AddFunc(`application/json`, json.Minify)
	return m
}()

// An Optimizer returns an optimized encoding of src.
type Optimizer func(src []byte) ([]byte, error)

// Optimizers maps lower case file extensions to the optimizer used for them.  Extensions without an optimizer are
// copied unchanged.
var Optimizers = map[string]Optimizer{
	`.gif`:  optimizeGIF,
	`.jpg`:  optimizeJPEG,
	`.jpeg`: optimizeJPEG,
	`.png`:  optimizePNG,
	`.svg`:  minifyAs(`image/svg+xml`),
	`.xml`:  minifyAs(`text/xml`),
	`.json`: minifyAs(`application/json`),
}

// Run optimizes every image matched by the registry, preserving its path relative to the images directory.
func Run(ctx context.Context, reg *paths.Registry, reporter report.Reporter) ([]string, error) {
	job := asset.NewJob(reg, paths.Images, reporter)
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
	out, err := job.Output(name)
	if err != nil {
		return err
	}
	optimize := Optimizers[strings.ToLower(path.Ext(name))]
	if optimize == nil {
		if err = job.Copy(name, out); err != nil {
			job.Problem(ctx, name, `copy`, err)
		}
		return nil
	}

	src, err := job.Read(name)
	if err != nil {
		job.Problem(ctx, name, `optimize`, err)
		return nil
	}
	data, err := optimize(src)
	if err != nil {
		job.Problem(ctx, name, `optimize`, err)
		return nil
	}
	if len(data) >= len(src) {
		data = src
	}
	if err = job.Write(out, data); err != nil {
		return fmt.Errorf(`%w while writing %s`, err, out)
	}
	hog.From(ctx).Debug().Str(`file`, name).Int(`size`, len(src)).Int(`optimized`, len(data)).Msg(`optimized image`)
	return nil
}

func optimizeJPEG(src []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality))
	return buf.Bytes(), err
}

func optimizePNG(src []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	return buf.Bytes(), err
}

// optimizeGIF re-encodes every frame of a GIF; imaging only keeps the first frame of an animation.  The frames keep
// their palettes, but the output is never interlaced since image/gif cannot write interlaced images.
func optimizeGIF(src []byte) ([]byte, error) {
	anim, err := gif.DecodeAll(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = gif.EncodeAll(&buf, anim)
	return buf.Bytes(), err
}

func minifyAs(mediatype string) Optimizer {
	return func(src []byte) ([]byte, error) {
		return minifier.Bytes(mediatype, src)
	}
}
