// Package press builds a static site from a source tree: it cleans the output directory, runs one pipeline per asset
// category and, while watching, rebuilds a category whenever one of its sources changes and tells connected browsers
// to reload.
package press

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/press-go/press/fonts"
	"github.com/swdunlop/press-go/press/images"
	"github.com/swdunlop/press-go/press/markup"
	"github.com/swdunlop/press-go/press/metrics"
	"github.com/swdunlop/press-go/press/paths"
	"github.com/swdunlop/press-go/press/report"
	"github.com/swdunlop/press-go/press/scripts"
	"github.com/swdunlop/press-go/press/serve"
	"github.com/swdunlop/press-go/press/styles"
	"github.com/swdunlop/press-go/press/watcher"
)

// A Task is the pipeline of a single category.
type Task struct {
	Category paths.Category
	Name     string // command line name of the task
	Fn       func(ctx context.Context, reg *paths.Registry, reporter report.Reporter) ([]string, error)
}

// Tasks lists the pipelines in category order.
var Tasks = []Task{
	{paths.Markup, `html`, markup.Run},
	{paths.Styles, `css`, styles.Run},
	{paths.Scripts, `js`, scripts.Run},
	{paths.Images, `images`, images.Run},
	{paths.Fonts, `fonts`, fonts.Run},
}

// A Result is the completion signal of one task invocation.
type Result struct {
	Category paths.Category
	Written  []string // absolute paths of the outputs
	Problems int      // recoverable problems reported during the run
	Err      error    // fatal error, if any
	Elapsed  time.Duration
}

// New returns a new configuration.  Unless overridden, sources are read from "src" and outputs written to "docs" in
// the working directory, and problems are logged.
func New(options ...Option) (*Config, error) {
	cfg := &Config{reporter: report.Log()}
	for _, option := range options {
		err := option(cfg)
		if err != nil {
			return nil, err
		}
	}
	if cfg.reg == nil {
		reg, err := paths.Default(`src`, `docs`)
		if err != nil {
			return nil, err
		}
		cfg.reg = reg
	}
	cfg.tasks = make(map[paths.Category]Task, len(Tasks))
	for _, task := range Tasks {
		cfg.tasks[task.Category] = task
	}
	return cfg, nil
}

// An Option adjusts a Config during New.
type Option func(*Config) error

// Registry sets the path registry.
func Registry(reg *paths.Registry) Option {
	return func(cfg *Config) error {
		cfg.reg = reg
		return nil
	}
}

// Dirs builds the default registry for the given source and output directories, relative to the working directory.
func Dirs(src, dist string) Option {
	return func(cfg *Config) (err error) {
		cfg.reg, err = paths.Default(src, dist)
		return
	}
}

// Reporter sets the reporter that receives recoverable problems.
func Reporter(reporter report.Reporter) Option {
	return func(cfg *Config) error {
		if reporter == nil {
			reporter = report.Discard
		}
		cfg.reporter = reporter
		return nil
	}
}

// Ignore adds base name patterns, such as "*.bak", that changes are ignored for while watching.  The watcher's default
// exclusions of dot, backup and swap files still apply.
func Ignore(patterns ...string) Option {
	return func(cfg *Config) error {
		cfg.ignore = append(cfg.ignore, patterns...)
		return nil
	}
}

// A Config runs the pipelines of a project.
type Config struct {
	reg      *paths.Registry
	reporter report.Reporter
	tasks    map[paths.Category]Task
	ignore   []string

	mu          sync.Mutex
	subscribers []func(Result)
}

// Registry returns the path registry used by the configuration.
func (cfg *Config) Registry() *paths.Registry { return cfg.reg }

// OnComplete subscribes fn to the result of every subsequent task run.  Subscribers are called synchronously by the
// goroutine that ran the task.
func (cfg *Config) OnComplete(fn func(Result)) {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	cfg.subscribers = append(cfg.subscribers, fn)
}

func (cfg *Config) complete(res Result) {
	cfg.mu.Lock()
	subscribers := slices.Clone(cfg.subscribers)
	cfg.mu.Unlock()
	for _, fn := range subscribers {
		fn(res)
	}
}

// Clean removes the output directory.  A missing directory is not an error.
func (cfg *Config) Clean(ctx context.Context) error {
	dist := cfg.reg.Dist()
	src := cfg.reg.Abs(cfg.reg.Src())
	if dist == cfg.reg.Root() || within(src, dist) {
		return fmt.Errorf(`refusing to clean %v since it contains the sources`, dist)
	}
	err := os.RemoveAll(dist)
	if err != nil {
		return fmt.Errorf(`%w while cleaning %v`, err, dist)
	}
	hog.From(ctx).Debug().Str(`dir`, dist).Msg(`cleaned output`)
	return nil
}

// within reports whether path is dir or inside it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != `..` && !strings.HasPrefix(rel, `..`+string(filepath.Separator))
}

// Run runs the task of a single category and notifies subscribers of its result.
func (cfg *Config) Run(ctx context.Context, category paths.Category) (Result, error) {
	task, ok := cfg.tasks[category]
	if !ok {
		return Result{}, fmt.Errorf(`unknown category %q`, category)
	}
	ctx = hog.With(ctx, func(z zerolog.Context) zerolog.Context {
		return z.Str(`task`, task.Name)
	})
	started := time.Now()
	counter := &report.Counter{Reporter: cfg.reporter}
	written, err := task.Fn(ctx, cfg.reg, counter)
	res := Result{
		Category: category,
		Written:  written,
		Problems: counter.Count(),
		Err:      err,
		Elapsed:  time.Since(started),
	}
	if err != nil {
		err = fmt.Errorf(`%w while running %v`, err, task.Name)
		res.Err = err
		hog.From(ctx).Error().Err(err).Msg(`task failed`)
	} else {
		hog.From(ctx).Info().
			Int(`written`, len(written)).
			Int(`problems`, res.Problems).
			Dur(`elapsed`, res.Elapsed).
			Msg(`task finished`)
	}
	cfg.complete(res)
	return res, err
}

// Build cleans the output directory and then runs every task concurrently, returning once all have finished.
func (cfg *Config) Build(ctx context.Context) error {
	src := cfg.reg.Abs(cfg.reg.Src())
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf(`%w while checking source directory`, err)
	} else if !info.IsDir() {
		return fmt.Errorf(`source %v is not a directory`, src)
	}
	err = cfg.Clean(ctx)
	if err != nil {
		return err
	}

	errs := make([]error, len(Tasks))
	var group sync.WaitGroup
	for i, task := range Tasks {
		group.Add(1)
		go func() {
			defer group.Done()
			_, errs[i] = cfg.Run(ctx, task.Category)
		}()
	}
	group.Wait()
	return errors.Join(errs...)
}

// Bindings returns one watch binding per category that reruns its task whenever a matching source changes.
func (cfg *Config) Bindings(ctx context.Context) []watcher.Binding {
	bindings := make([]watcher.Binding, 0, len(Tasks))
	for _, entry := range cfg.reg.Entries() {
		category := entry.Category
		bindings = append(bindings, watcher.Binding{
			Name:  string(category),
			Match: entry.Match,
			Task: func(name string) {
				hog.From(ctx).Info().Str(`file`, name).Str(`category`, string(category)).Msg(`source changed`)
				_, _ = cfg.Run(ctx, category)
			},
		})
	}
	return bindings
}

// Watch builds the site, then watches the sources and serves the output until the context is cancelled.  A failed
// initial build is logged and the session continues, so fixing the sources recovers it; this includes a source
// directory that does not exist yet.  Task metrics are served at
// /_press/metrics.
func (cfg *Config) Watch(ctx context.Context, options ...serve.Option) error {
	reg := prom.NewRegistry()
	rec := metrics.New(reg)
	svr, err := serve.New(append([]serve.Option{
		serve.Dir(cfg.reg.Dist()),
		serve.Handle(serve.Prefix+`metrics`, metrics.Handler(reg)),
	}, options...)...)
	if err != nil {
		return err
	}
	cfg.OnComplete(func(res Result) {
		rec.Observe(string(res.Category), res.Elapsed, len(res.Written), res.Problems, res.Err)
	})
	cfg.OnComplete(func(res Result) {
		if res.Err != nil || len(res.Written) == 0 {
			return
		}
		svr.Broadcaster().Reload(ctx, cfg.urls(res.Written)...)
	})

	err = cfg.Build(ctx)
	if err != nil {
		hog.From(ctx).Error().Err(err).Msg(`initial build failed`)
	}

	wr, err := watcher.Start(
		watcher.Root(cfg.reg.Root()),
		watcher.Directory(cfg.reg.Src()),
		watcher.Exclude(append(slices.Clone(watcher.DefaultExcludes), cfg.ignore...)...),
		watcher.Bind(cfg.Bindings(ctx)...),
		watcher.Logger(*zerolog.Ctx(ctx)),
	)
	if err != nil {
		return fmt.Errorf(`%w while watching %v`, err, cfg.reg.Src())
	}
	defer wr.Shutdown()
	hog.From(ctx).Info().Str(`dir`, cfg.reg.Src()).Msg(`watching sources`)

	return svr.Serve(ctx)
}

// urls converts output paths to the URL paths the development server serves them at.
func (cfg *Config) urls(written []string) []string {
	seq := make([]string, 0, len(written))
	for _, path := range written {
		rel, err := filepath.Rel(cfg.reg.Dist(), path)
		if err != nil {
			continue
		}
		seq = append(seq, `/`+filepath.ToSlash(rel))
	}
	return seq
}
