package serve

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/press-go/press/serve/internal/protocol"
	sse "github.com/tmaxmax/go-sse"
	"nhooyr.io/websocket"
)

// A Broadcaster pushes reload notifications to every connected browser.
type Broadcaster struct {
	events sse.Server

	mu      sync.Mutex
	sockets map[*websocket.Conn]struct{}
	closed  bool
}

// NewBroadcaster returns a broadcaster with no clients.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{sockets: make(map[*websocket.Conn]struct{})}
}

// Reload tells clients that the outputs at the given URL paths changed.  If every path is a stylesheet, clients swap
// stylesheets in place; otherwise they refresh the page.
func (b *Broadcaster) Reload(ctx context.Context, paths ...string) {
	method := protocol.Reload
	if len(paths) > 0 && allStylesheets(paths) {
		method = protocol.Inject
	}
	msg := protocol.Notification{Method: method, Params: protocol.Change{Paths: paths}}
	err := b.publish(ctx, msg)
	if err != nil {
		hog.From(ctx).Warn().Err(err).Str(`method`, method).Msg(`could not broadcast reload`)
		return
	}
	hog.From(ctx).Debug().Str(`method`, method).Strs(`paths`, paths).Msg(`broadcast reload`)
}

func allStylesheets(paths []string) bool {
	for _, p := range paths {
		if !strings.HasSuffix(p, `.css`) {
			return false
		}
	}
	return true
}

func (b *Broadcaster) publish(ctx context.Context, msg protocol.Notification) error {
	params, err := json.Marshal(msg.Params)
	if err != nil {
		return err
	}
	event := &sse.Message{ID: sse.ID(uuid.NewString()), Type: sse.Type(msg.Method)}
	event.AppendData(string(params))
	err = b.events.Publish(event)
	if errors.Is(err, sse.ErrProviderClosed) {
		return nil
	} else if err != nil {
		return err
	}

	js, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	b.mu.Lock()
	sockets := make([]*websocket.Conn, 0, len(b.sockets))
	for c := range b.sockets {
		sockets = append(sockets, c)
	}
	b.mu.Unlock()
	for _, c := range sockets {
		err := c.Write(ctx, websocket.MessageText, js)
		if err != nil {
			hog.From(ctx).Debug().Err(err).Msg(`dropping websocket client`)
			b.drop(c)
		}
	}
	return nil
}

// Events returns the Server-Sent Events endpoint.
func (b *Broadcaster) Events() http.Handler { return &b.events }

// Sockets returns the WebSocket endpoint.  Clients only receive; anything they send is discarded.
func (b *Broadcaster) Sockets() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			hog.For(r).Warn().Err(err).Msg(`websocket upgrade failed`)
			return
		}
		if !b.add(c) {
			_ = c.Close(websocket.StatusGoingAway, `server shutting down`)
			return
		}
		defer b.drop(c)
		ctx := c.CloseRead(r.Context())
		<-ctx.Done()
	})
}

func (b *Broadcaster) add(c *websocket.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.sockets[c] = struct{}{}
	return true
}

func (b *Broadcaster) drop(c *websocket.Conn) {
	b.mu.Lock()
	_, ok := b.sockets[c]
	delete(b.sockets, c)
	b.mu.Unlock()
	if ok {
		_ = c.CloseNow()
	}
}

// Clients returns the number of connected WebSocket clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sockets)
}

// Shutdown disconnects every client.
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	sockets := b.sockets
	b.sockets = make(map[*websocket.Conn]struct{})
	b.mu.Unlock()
	for c := range sockets {
		_ = c.Close(websocket.StatusGoingAway, `server shutting down`)
	}
	err := b.events.Shutdown(ctx)
	if errors.Is(err, sse.ErrProviderClosed) {
		return nil
	}
	return err
}
