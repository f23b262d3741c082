// ABOUTME: Connection tracking that ties sessions to the TCP connection that created them
// ABOUTME: Hooks http.Server ConnContext/ConnState so a closed connection tears down its sessions

package session

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
)

type connIDKey struct{}

// ConnIDFromContext returns the connection id stored by ConnTracker, or "".
func ConnIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(connIDKey{}).(string)
	return id
}

// WithConnID attaches a connection id to ctx.
func WithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connIDKey{}, id)
}

// ConnTracker assigns ids to server connections and removes a connection's
// sessions from the registry when it closes.
type ConnTracker struct {
	registry *Registry
	next     atomic.Uint64

	mu  sync.Mutex
	ids map[net.Conn]string
}

// NewConnTracker creates a tracker for registry.
func NewConnTracker(registry *Registry) *ConnTracker {
	return &ConnTracker{
		registry: registry,
		ids:      make(map[net.Conn]string),
	}
}

// Install sets the ConnContext and ConnState hooks on srv.
func (t *ConnTracker) Install(srv *http.Server) {
	srv.ConnContext = t.ConnContext
	srv.ConnState = t.ConnState
}

// ConnContext is an http.Server ConnContext hook.
func (t *ConnTracker) ConnContext(ctx context.Context, c net.Conn) context.Context {
	id := "c" + strconv.FormatUint(t.next.Add(1), 10)
	t.mu.Lock()
	t.ids[c] = id
	t.mu.Unlock()
	return WithConnID(ctx, id)
}

// ConnState is an http.Server ConnState hook.
func (t *ConnTracker) ConnState(c net.Conn, state http.ConnState) {
	if state != http.StateClosed && state != http.StateHijacked {
		return
	}
	t.mu.Lock()
	id, ok := t.ids[c]
	delete(t.ids, c)
	t.mu.Unlock()

	if ok {
		t.registry.RemoveConn(id)
	}
}

// Open returns the number of tracked connections.
func (t *ConnTracker) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}
