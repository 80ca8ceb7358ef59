// Package hook defines interfaces that the serve.Hook option recognizes and will apply at various stages of setting up
// the development server.
package hook

import (
	"context"
	"net"
	"net/http"
	"sort"
)

// Listen hooks replace the default TCP listener entirely; the first one found is used.
type Listen interface {
	Listen(ctx context.Context) (net.Listener, error)
}

// Listener hooks are called when the server is setting up its default TCP listener.
type Listener interface {
	HookListener(*net.ListenConfig)
}

// Server hooks are called when the server is setting up a new HTTP server.
type Server interface {
	HookServer(*http.Server)
}

// Mux hooks are called when the server is setting up a new HTTP multiplexer.
type Mux interface {
	HookMux(*http.ServeMux)
}

// Order will return the provided hooks in the order they were provided with adjustments made so that all dependent
// hooks are run after their dependencies.  Cyclic dependencies are not an error, the order is simply best effort.
func Order(hooks ...any) []any {
	providers := make(map[string][]int, len(hooks))
	for i, it := range hooks {
		if p, ok := it.(Provider); ok {
			for _, name := range p.Provides() {
				providers[name] = append(providers[name], i)
			}
		}
	}
	order := make([]any, 0, len(hooks))
	placed := make([]bool, len(hooks))
	var place func(int)
	place = func(i int) {
		if placed[i] {
			return
		}
		placed[i] = true
		if d, ok := hooks[i].(Dependent); ok {
			var deps []int
			for _, name := range d.DependsOn() {
				deps = append(deps, providers[name]...)
			}
			sort.Ints(deps)
			for _, j := range deps {
				place(j)
			}
		}
		order = append(order, hooks[i])
	}
	for i := range hooks {
		place(i)
	}
	return order
}

// A Provider provides names so that it can be referenced by a Dependent.
type Provider interface {
	Provides() []string
}

// A Dependent hook will not be applied until all of its dependencies have been applied.
type Dependent interface {
	DependsOn() []string
}
