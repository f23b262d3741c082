// ABOUTME: A live protocol session: owner identity, connection and bound dispatcher
// ABOUTME: Calls on one session run one at a time in arrival order

package session

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/ward-gateway/internal/auth"
	"github.com/2389/ward-gateway/internal/tools"
)

// Session binds a caller to a dispatcher. Owner never changes after creation.
type Session struct {
	ID        string
	Owner     auth.Identity
	CreatedAt time.Time
	ConnID    string

	dispatcher *tools.Dispatcher
	ephemeral  bool
	lastUsed   atomic.Int64 // unix nanos
	mu         sync.Mutex   // serializes Invoke

	done    chan struct{}
	endOnce sync.Once
}

func newSession(id string, owner auth.Identity, connID string, d *tools.Dispatcher) *Session {
	now := time.Now()
	s := &Session{
		ID:         id,
		Owner:      owner,
		CreatedAt:  now,
		ConnID:     connID,
		dispatcher: d,
		done:       make(chan struct{}),
	}
	s.lastUsed.Store(now.UnixNano())
	return s
}

// Done is closed once the registry drops the session. Calls already running
// are not affected.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) end() {
	s.endOnce.Do(func() { close(s.done) })
}

// Dispatcher returns the session's dispatcher.
func (s *Session) Dispatcher() *tools.Dispatcher {
	return s.dispatcher
}

// Ephemeral reports whether the session lives for a single call only.
func (s *Session) Ephemeral() bool {
	return s.ephemeral
}

// LastUsed returns when the session last served a request.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// Tools lists the session's tools.
func (s *Session) Tools() []*mcp.Tool {
	s.Touch()
	return s.dispatcher.Tools()
}

// Invoke runs a tool call after any earlier call on this session finished.
func (s *Session) Invoke(ctx context.Context, name string, args json.RawMessage) *mcp.CallToolResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Touch()
	defer s.Touch()
	return s.dispatcher.Invoke(ctx, name, args)
}
