package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/swdunlop/press-go/press"
	"github.com/swdunlop/press-go/press/local"
	"github.com/swdunlop/press-go/press/paths"
	"github.com/swdunlop/press-go/press/report"
	"github.com/swdunlop/press-go/press/serve"
	"github.com/swdunlop/press-go/press/tailscale"
	"github.com/swdunlop/zugzug-go"
	"github.com/swdunlop/zugzug-go/zug/parser"
)

func init() {
	for _, task := range press.Tasks {
		addTask(task.Name, "Builds the "+string(task.Category)+" of the site", runTask(task.Category), notifySettings())
	}
	addTask("clean", "Removes the output directory", runClean, nil)
	addTask("build", "Cleans the output directory and builds every category", runBuild, notifySettings())
	addTask("watch", "Builds the site, then rebuilds and reloads browsers as sources change", runWatch,
		append(notifySettings(), zugzug.Settings{
			{Var: &listenAddress, Name: `LISTEN_ADDRESS`,
				Use: "Listening address for the development server (default: localhost:3000)"},
			{Var: &tailscaleHostname, Name: `TAILSCALE_HOSTNAME`,
				Use: "Serves on your Tailscale network with this hostname instead of locally"},
			{Var: &tailscaleListen, Name: `TAILSCALE_LISTEN`,
				Use: "Listening address for clients from your Tailscale network (default: \":443\" or \":80\")"},
			{Var: &tailscaleDir, Name: `TAILSCALE_DIR`,
				Use: "State directory for Tailscale"},
			{Var: &noTailscaleTLS, Name: `NO_TAILSCALE_TLS`,
				Use: "Disables TLS for Tailscale"},
			{Var: &watchIgnore, Name: `WATCH_IGNORE`,
				Use: "Comma separated file name patterns whose changes are ignored, such as \"*.bak,*.orig\""},
		}...))
}

// addTask registers a task that accepts the source and output directory flags.
func addTask(name, use string, fn func(context.Context) error, settings zugzug.Settings) {
	tasks = append(tasks, zugzug.Tasks{
		{Name: name, Use: use, Fn: fn, Parser: parser.New(
			parser.String(&srcDir, "src", "s", "The directory containing the site sources (default: src)"),
			parser.String(&distDir, "dist", "d", "The directory the site is written to (default: docs)"),
		), Settings: settings},
	}...)
}

func notifySettings() zugzug.Settings {
	return zugzug.Settings{
		{Var: &notify, Name: `NOTIFY`, Use: "Raises a desktop notification for each build problem"},
	}
}

func config() (*press.Config, error) {
	reporter := report.Log()
	if notify {
		reporter = report.Multi(reporter, report.Notify(`press`))
	}
	options := []press.Option{press.Dirs(srcDir, distDir), press.Reporter(reporter)}
	if watchIgnore != `` {
		options = append(options, press.Ignore(strings.Split(watchIgnore, `,`)...))
	}
	return press.New(options...)
}

func runTask(category paths.Category) func(context.Context) error {
	return func(ctx context.Context) error {
		cfg, err := config()
		if err != nil {
			return err
		}
		_, err = cfg.Run(ctx, category)
		return err
	}
}

func runClean(ctx context.Context) error {
	cfg, err := config()
	if err != nil {
		return err
	}
	return cfg.Clean(ctx)
}

func runBuild(ctx context.Context) error {
	cfg, err := config()
	if err != nil {
		return err
	}
	return cfg.Build(ctx)
}

func runWatch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	cfg, err := config()
	if err != nil {
		return err
	}

	var options []serve.Option
	if tailscaleHostname != `` || tailscaleListen != `` {
		var tailscaleOptions []tailscale.Option
		if tailscaleHostname != `` {
			tailscaleOptions = append(tailscaleOptions, tailscale.Hostname(tailscaleHostname))
		}
		if tailscaleDir != `` {
			tailscaleOptions = append(tailscaleOptions, tailscale.Dir(tailscaleDir))
		}
		switch {
		case tailscaleListen != ``:
		case noTailscaleTLS:
			tailscaleListen = `:80`
		default:
			tailscaleListen = `:443`
		}
		if noTailscaleTLS {
			tailscaleOptions = append(tailscaleOptions, tailscale.NoTLS())
		}
		if listenAddress != `` {
			return errors.New("LISTEN_ADDRESS cannot be combined with Tailscale")
		}
		options = append(options, tailscale.Serve(tailscaleListen, tailscaleOptions...))
	} else {
		if listenAddress == `` {
			listenAddress = serve.DefaultAddress
		}
		options = append(options, local.Serve(local.TCP(listenAddress)))
	}
	return cfg.Watch(ctx, options...)
}

var (
	srcDir  = `src`
	distDir = `docs`
	notify  bool

	listenAddress     string
	tailscaleHostname string
	tailscaleListen   string
	tailscaleDir      string
	noTailscaleTLS    bool
	watchIgnore       string
)
