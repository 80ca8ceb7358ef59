// Package local provides a development server listener on a local TCP address or Unix socket.
package local

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/swdunlop/press-go/press/hook"
	"github.com/swdunlop/press-go/press/serve"
)

// Serve returns a serve.Option that configures a local network listener.
func Serve(options ...Option) serve.Option {
	return func(s *serve.Config) error {
		var cfg config
		for _, option := range options {
			err := option(&cfg)
			if err != nil {
				return err
			}
		}
		if cfg.listen.network == `` || cfg.listen.address == `` {
			return errors.New(`local listeners must configure both network and address`)
		}
		s.Hook(&cfg)
		return nil
	}
}

// An Option is a function that configures a local listener.
type Option func(*config) error

type config struct {
	listen struct {
		network string
		address string
		config  net.ListenConfig
	}
}

// TCP returns an Option that sets the listener to a TCP socket on the provided address.
func TCP(address string) Option {
	return Listen(`tcp`, address)
}

// Unix returns an Option that sets the listener to a Unix socket on the provided path.
func Unix(path string) Option {
	return Listen(`unix`, path)
}

// Listen returns an Option that sets the listener to the provided network and address.
func Listen(network, address string) Option {
	return func(cfg *config) error {
		cfg.listen.network = network
		cfg.listen.address = address
		return nil
	}
}

// KeepAlive specifies the keepalive duration for connections accepted by the listener.
func KeepAlive(keepalive time.Duration) Option {
	return func(cfg *config) error {
		cfg.listen.config.KeepAlive = keepalive
		return nil
	}
}

// Listen implements hook.Listen.
func (cfg *config) Listen(ctx context.Context) (net.Listener, error) {
	return cfg.listen.config.Listen(ctx, cfg.listen.network, cfg.listen.address)
}

var _ hook.Listen = (*config)(nil)
