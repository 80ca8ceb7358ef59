// Package tailscale provides a development server listener on a tailnet, so a site can be previewed from other
// devices without exposing it to the local network.
package tailscale

import (
	"context"
	"errors"
	"net"

	"github.com/swdunlop/press-go/press/hook"
	"github.com/swdunlop/press-go/press/serve"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"
)

// Serve returns a serve.Option that listens on the provided tailnet address, such as ":443".
func Serve(address string, options ...Option) serve.Option {
	return func(s *serve.Config) error {
		cfg := &config{listen: address}
		for _, option := range options {
			err := option(cfg)
			if err != nil {
				return err
			}
		}
		if cfg.funnel && cfg.noTLS {
			return errors.New(`funnels are required to use TLS by Tailscale`)
		}
		s.Hook(cfg)
		return nil
	}
}

type config struct {
	tsnet   tsnet.Server
	funnel  bool
	noTLS   bool
	upHooks []func(*tsnet.Server, *ipnstate.Status) error
	listen  string
}

// Listen implements hook.Listen by bringing up the tsnet node before listening.
func (cfg *config) Listen(ctx context.Context) (net.Listener, error) {
	status, err := cfg.tsnet.Up(ctx)
	if err != nil {
		return nil, err
	}
	for _, fn := range cfg.upHooks {
		err = fn(&cfg.tsnet, status)
		if err != nil {
			_ = cfg.tsnet.Close()
			return nil, err
		}
	}
	switch {
	case cfg.funnel:
		return cfg.tsnet.ListenFunnel(`tcp`, cfg.listen)
	case cfg.noTLS:
		return cfg.tsnet.Listen(`tcp`, cfg.listen)
	default:
		return cfg.tsnet.ListenTLS(`tcp`, cfg.listen)
	}
}

var _ hook.Listen = (*config)(nil)

// An Option configures the tsnet node.
type Option func(*config) error

// Dir sets the directory tsnet keeps its state in.
func Dir(dir string) Option {
	return func(cfg *config) error {
		cfg.tsnet.Dir = dir
		return nil
	}
}

// Hostname specifies the name of the node on the tailnet.  Defaults to the system hostname.
func Hostname(hostname string) Option {
	return func(cfg *config) error {
		cfg.tsnet.Hostname = hostname
		return nil
	}
}

// Funnel allows public IPs to reach the preview.
func Funnel() Option {
	return func(cfg *config) error {
		cfg.funnel = true
		return nil
	}
}

// NoTLS serves plain HTTP on the tailnet.  This is incompatible with Funnel.
func NoTLS() Option {
	return func(cfg *config) error {
		cfg.noTLS = true
		return nil
	}
}

// Logf sets the logging function for the tsnet node, which is very chatty.
func Logf(f func(format string, args ...any)) Option {
	return func(cfg *config) error {
		cfg.tsnet.Logf = f
		return nil
	}
}

// HookUp adds a function that is called once the node is up and authorized, such as to log its address.  If the
// hook returns an error, the node is closed.
func HookUp(fn func(*tsnet.Server, *ipnstate.Status) error) Option {
	return func(cfg *config) error {
		cfg.upHooks = append(cfg.upHooks, fn)
		return nil
	}
}
