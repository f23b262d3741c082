// ABOUTME: Concurrent session registry keyed by session id, sharded by FNV-1a hash
// ABOUTME: Tracks owning connections for teardown and evicts idle sessions in the background

package session

import (
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/ward-gateway/internal/auth"
	"github.com/2389/ward-gateway/internal/tools"
)

var (
	// ErrSessionUnknown is returned for ids with no live entry.
	ErrSessionUnknown = errors.New("session unknown")
	// ErrRegistryFull is returned when MaxSessions live sessions exist.
	ErrRegistryFull = errors.New("session registry full")
)

const shardCount = 16

// Factory builds the dispatcher for a new session's owner.
type Factory func(owner auth.Identity) *tools.Dispatcher

// Options configures a Registry.
type Options struct {
	// MaxSessions caps live sessions; 0 means unlimited.
	MaxSessions int
	// IdleTTL evicts sessions unused for this long; 0 disables eviction.
	IdleTTL time.Duration
	// SweepInterval defaults to IdleTTL/2, capped at one minute.
	SweepInterval time.Duration
	Logger        *slog.Logger
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// Registry maps session ids to live sessions. All methods are safe for
// concurrent use.
type Registry struct {
	shards  [shardCount]*shard
	factory Factory
	opts    Options
	logger  *slog.Logger
	count   atomic.Int64

	connMu sync.Mutex
	conns  map[string]map[string]struct{} // connID -> session ids

	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry creates a registry. When IdleTTL is set a background goroutine
// sweeps idle sessions until Close.
func NewRegistry(factory Factory, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		factory: factory,
		opts:    opts,
		logger:  logger.With("component", "session"),
		conns:   make(map[string]map[string]struct{}),
		done:    make(chan struct{}),
	}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[string]*Session)}
	}

	if opts.IdleTTL > 0 {
		interval := opts.SweepInterval
		if interval <= 0 {
			interval = min(opts.IdleTTL/2, time.Minute)
		}
		go r.sweep(interval)
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

// Get returns the live session for id or ErrSessionUnknown.
func (r *Registry) Get(id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionUnknown
	}
	sh := r.shardFor(id)
	sh.mu.RLock()
	s, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if !ok {
		return nil, ErrSessionUnknown
	}
	return s, nil
}

// GetOrCreate returns the live session for id unchanged. Otherwise, including
// for a stale or empty id, it builds a session for owner on connID and
// registers it under a newly generated id; isNew reports which happened.
func (r *Registry) GetOrCreate(id string, owner auth.Identity, connID string) (*Session, bool, error) {
	if s, err := r.Get(id); err == nil {
		s.Touch()
		return s, false, nil
	}

	if id != "" {
		r.logger.Debug("unknown session id, creating new session", "stale_id", id, "user_id", owner.UserID)
	}
	s, err := r.Create(owner, connID)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// Create registers a new session for owner on connID.
func (r *Registry) Create(owner auth.Identity, connID string) (*Session, error) {
	if n := r.count.Add(1); r.opts.MaxSessions > 0 && n > int64(r.opts.MaxSessions) {
		r.count.Add(-1)
		return nil, ErrRegistryFull
	}

	s := newSession(uuid.New().String(), owner, connID, r.factory(owner))

	sh := r.shardFor(s.ID)
	sh.mu.Lock()
	sh.sessions[s.ID] = s
	sh.mu.Unlock()

	if connID != "" {
		r.connMu.Lock()
		set, ok := r.conns[connID]
		if !ok {
			set = make(map[string]struct{})
			r.conns[connID] = set
		}
		set[s.ID] = struct{}{}
		r.connMu.Unlock()
	}

	r.logger.Info("session created", "session_id", s.ID, "user_id", owner.UserID, "conn_id", connID)
	return s, nil
}

// Ephemeral builds a session for a single call. It is never registered.
func (r *Registry) Ephemeral(owner auth.Identity) *Session {
	s := newSession("", owner, "", r.factory(owner))
	s.ephemeral = true
	return s
}

// Remove deletes the session with id. It reports whether an entry was removed.
// In-flight calls on the session are not cancelled.
func (r *Registry) Remove(id string) bool {
	s, ok := r.take(id)
	if !ok {
		return false
	}

	if s.ConnID != "" {
		r.connMu.Lock()
		if set, ok := r.conns[s.ConnID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.conns, s.ConnID)
			}
		}
		r.connMu.Unlock()
	}

	r.logger.Info("session removed", "session_id", id, "user_id", s.Owner.UserID)
	return true
}

// take removes id from its shard and ends the session.
func (r *Registry) take(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	sh := r.shardFor(id)
	sh.mu.Lock()
	s, ok := sh.sessions[id]
	if ok {
		delete(sh.sessions, id)
	}
	sh.mu.Unlock()
	if ok {
		r.count.Add(-1)
		s.end()
	}
	return s, ok
}

// RemoveConn removes every session owned by connID and returns how many.
func (r *Registry) RemoveConn(connID string) int {
	if connID == "" {
		return 0
	}
	r.connMu.Lock()
	set := r.conns[connID]
	delete(r.conns, connID)
	r.connMu.Unlock()

	removed := 0
	for id := range set {
		if s, ok := r.take(id); ok {
			removed++
			r.logger.Info("session removed", "session_id", id, "user_id", s.Owner.UserID, "reason", "connection closed")
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// sweep runs in a background goroutine, periodically evicting idle sessions.
func (r *Registry) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle(time.Now())
		case <-r.done:
			return
		}
	}
}

// evictIdle removes sessions whose last use is older than IdleTTL.
func (r *Registry) evictIdle(now time.Time) int {
	var idle []string
	for _, sh := range r.shards {
		sh.mu.RLock()
		for id, s := range sh.sessions {
			if now.Sub(s.LastUsed()) > r.opts.IdleTTL {
				idle = append(idle, id)
			}
		}
		sh.mu.RUnlock()
	}

	evicted := 0
	for _, id := range idle {
		if r.Remove(id) {
			evicted++
		}
	}
	if evicted > 0 {
		r.logger.Info("evicted idle sessions", "count", evicted)
	}
	return evicted
}

// Close stops the sweeper and drops every session. It is safe to call
// multiple times.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		for _, sh := range r.shards {
			sh.mu.Lock()
			r.count.Add(-int64(len(sh.sessions)))
			for _, s := range sh.sessions {
				s.end()
			}
			sh.sessions = make(map[string]*Session)
			sh.mu.Unlock()
		}
		r.connMu.Lock()
		r.conns = make(map[string]map[string]struct{})
		r.connMu.Unlock()
	})
}
