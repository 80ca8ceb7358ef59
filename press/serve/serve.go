// Package serve runs the development server: it serves the output directory, injects a live reload client into HTML
// pages and pushes reload events to connected browsers over Server-Sent Events and WebSockets.
package serve

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/press-go/press/hook"
)

// DefaultAddress is used when no listener hook is configured.
const DefaultAddress = `localhost:3000`

// Prefix is the URL path prefix reserved for live reload endpoints.
const Prefix = `/_press/`

// New returns a new development server configuration.
func New(options ...Option) (*Config, error) {
	cfg := &Config{address: DefaultAddress, reload: NewBroadcaster()}
	err := cfg.Apply(options...)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// A Config is a development server configuration.
type Config struct {
	serve      bool // true once Serve has been called
	dir        string
	address    string
	hooks      []any
	middleware []func(http.Handler) http.Handler
	handlers   []patternHandler
	reload     *Broadcaster
}

type patternHandler struct {
	pattern string
	handler http.Handler
}

// An Option is a function that modifies a Config before it is served.
type Option func(*Config) error

// Apply applies the given options to the config; must not be called after Serve.
func (cfg *Config) Apply(options ...Option) error {
	if cfg.serve {
		return errors.New(`cannot apply options after the server has been started`)
	}
	for _, option := range options {
		err := option(cfg)
		if err != nil {
			return err
		}
	}
	return nil
}

// Hook adds hooks to the configuration, see the hook package for interfaces that hooks can implement.
func (cfg *Config) Hook(hooks ...any) {
	cfg.hooks = append(cfg.hooks, hooks...)
}

// Broadcaster returns the broadcaster that pushes reload events to clients of this server.
func (cfg *Config) Broadcaster() *Broadcaster { return cfg.reload }

// Dir specifies the directory of static files to serve.
func Dir(dir string) Option {
	return func(cfg *Config) error {
		cfg.dir = dir
		return nil
	}
}

// Address specifies the TCP address used when no listener hook is configured.
func Address(address string) Option {
	return func(cfg *Config) error {
		if address == `` {
			return errors.New(`listen address must not be empty`)
		}
		cfg.address = address
		return nil
	}
}

// Hook returns an option that adds hooks to the configuration.
func Hook(hooks ...any) Option {
	return func(cfg *Config) error {
		cfg.Hook(hooks...)
		return nil
	}
}

// Use returns an option that applies the given middleware to every handler, including the static files.  The
// earliest middleware added is the outermost layer.
func Use(fn func(http.Handler) http.Handler) Option {
	return func(cfg *Config) error {
		cfg.middleware = append(cfg.middleware, fn)
		return nil
	}
}

// Handle accepts a http.ServeMux pattern and a http.Handler.
func Handle(pattern string, handler http.Handler) Option {
	return func(cfg *Config) error {
		cfg.handlers = append(cfg.handlers, patternHandler{pattern, handler})
		return nil
	}
}

// Handler returns the complete HTTP handler of the server, with mux hooks applied.
func (cfg *Config) Handler() http.Handler {
	return cfg.handler(hook.Order(cfg.hooks...))
}

func (cfg *Config) handler(hooks []any) http.Handler {
	var mux http.ServeMux
	mux.Handle(Prefix+`reload.js`, http.HandlerFunc(serveClient))
	mux.Handle(Prefix+`events`, cfg.reload.Events())
	mux.Handle(Prefix+`ws`, cfg.reload.Sockets())
	for _, it := range cfg.handlers {
		mux.Handle(it.pattern, it.handler)
	}
	if cfg.dir != `` {
		mux.Handle(`/`, Static(cfg.dir))
	}
	for _, it := range hooks {
		if impl, ok := it.(hook.Mux); ok {
			impl.HookMux(&mux)
		}
	}
	var handler http.Handler = &mux
	for i := len(cfg.middleware) - 1; i >= 0; i-- {
		handler = cfg.middleware[i](handler)
	}
	return logRequests(handler)
}

// Serve runs the development server until the context is cancelled.
func (cfg *Config) Serve(ctx context.Context) error {
	cfg.serve = true
	hooks := hook.Order(cfg.hooks...)

	var svr http.Server
	svr.Handler = cfg.handler(hooks)
	svr.BaseContext = func(net.Listener) context.Context { return ctx }
	svr.RegisterOnShutdown(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = cfg.reload.Shutdown(ctx)
	})
	for _, it := range hooks {
		if impl, ok := it.(hook.Server); ok {
			impl.HookServer(&svr)
		}
	}

	lr, err := cfg.listen(ctx, hooks)
	if err != nil {
		return err
	}
	// no need to defer lr.Close, svr.Shutdown will close it

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svr.Shutdown(ctx)
	}()

	hog.From(ctx).Info().Str(`address`, lr.Addr().String()).Str(`dir`, cfg.dir).Msg(`starting development server`)
	err = svr.Serve(lr)
	hog.From(ctx).Info().Err(err).Msg(`development server stopped`)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	_ = lr.Close()
	return err
}

func (cfg *Config) listen(ctx context.Context, hooks []any) (net.Listener, error) {
	for _, it := range hooks {
		if impl, ok := it.(hook.Listen); ok {
			return impl.Listen(ctx)
		}
	}
	var lcf net.ListenConfig
	for _, it := range hooks {
		if impl, ok := it.(hook.Listener); ok {
			impl.HookListener(&lcf)
		}
	}
	return lcf.Listen(ctx, `tcp`, cfg.address)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hog.For(r).Debug().Str(`method`, r.Method).Str(`path`, r.URL.Path).Msg(`request`)
		next.ServeHTTP(w, r)
	})
}
