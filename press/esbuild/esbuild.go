// Package esbuild runs esbuild's transform API over single files.  The styles pipeline uses it to lower CSS for the
// supported browsers, reformat it and minify it; the scripts pipeline uses it to minify and mangle JavaScript.
package esbuild

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/swdunlop/html-go/hog"
)

// Browsers is the fixed set of engines that stylesheets are prefixed and lowered for.
var Browsers = []esbuild.Engine{
	{Name: esbuild.EngineChrome, Version: `58`},
	{Name: esbuild.EngineEdge, Version: `16`},
	{Name: esbuild.EngineFirefox, Version: `57`},
	{Name: esbuild.EngineIOS, Version: `11`},
	{Name: esbuild.EngineSafari, Version: `11`},
	{Name: esbuild.EngineOpera, Version: `45`},
}

// Transform applies the options to an esbuild transform of source and returns the generated code.  Warnings are
// logged using the logger from the context; errors are returned as an *Error.
func Transform(ctx context.Context, source []byte, options ...Option) ([]byte, error) {
	var cfg esbuild.TransformOptions
	cfg.LogLevel = esbuild.LogLevelSilent
	for _, option := range options {
		option(&cfg)
	}
	ret := esbuild.Transform(string(source), cfg)
	if len(ret.Warnings) > 0 {
		log := hog.From(ctx)
		for _, msg := range ret.Warnings {
			log.Warn().Str(`file`, cfg.Sourcefile).Msg(formatMessage(msg))
		}
	}
	if len(ret.Errors) > 0 {
		return nil, &Error{Messages: ret.Errors}
	}
	return ret.Code, nil
}

// An Error collects the error messages produced by esbuild for a single transform.
type Error struct {
	Messages []esbuild.Message
}

func (err *Error) Error() string {
	var buf bytes.Buffer
	for i, msg := range err.Messages {
		if i > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(formatMessage(msg))
	}
	return buf.String()
}

func formatMessage(msg esbuild.Message) string {
	text := strings.ReplaceAll(msg.Text, "\n", "\n    ")
	if msg.Location == nil {
		return text
	}
	return fmt.Sprintf(`%d:%d: %s`, msg.Location.Line, msg.Location.Column, text)
}

// An Option manipulates the esbuild transform options.
type Option func(*esbuild.TransformOptions)

// CSS treats the input as a stylesheet and lowers it for Browsers, adding any vendor prefixes they need.
func CSS() Option {
	return func(cfg *esbuild.TransformOptions) {
		cfg.Loader = esbuild.LoaderCSS
		cfg.Engines = Browsers
	}
}

// JS treats the input as JavaScript.
func JS() Option {
	return func(cfg *esbuild.TransformOptions) { cfg.Loader = esbuild.LoaderJS }
}

// Sourcefile names the input in error messages.
func Sourcefile(name string) Option {
	return func(cfg *esbuild.TransformOptions) { cfg.Sourcefile = name }
}

// Minify removes whitespace and simplifies syntax.  When mangle is true, local identifiers are also shortened.
func Minify(mangle bool) Option {
	return func(cfg *esbuild.TransformOptions) {
		cfg.MinifyWhitespace = true
		cfg.MinifySyntax = true
		cfg.MinifyIdentifiers = mangle
	}
}

// StripComments drops every comment, including legal comments that esbuild would otherwise keep.
func StripComments() Option {
	return func(cfg *esbuild.TransformOptions) { cfg.LegalComments = esbuild.LegalCommentsNone }
}

// TransformOption returns an option that can manipulate the esbuild API transform options structure directly.
// See https://esbuild.github.io/api for information on how to use esbuild options.
func TransformOption(fn func(*esbuild.TransformOptions)) Option {
	return func(cfg *esbuild.TransformOptions) { fn(cfg) }
}
