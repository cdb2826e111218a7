package mapsession

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry holds the live sessions.
type Registry struct {
	deps Deps
	ttl  time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. Sessions idle for longer than ttl are
// closed by Sweep.
func NewRegistry(deps Deps, ttl time.Duration) *Registry {
	return &Registry{
		deps:     deps,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session with a fresh id.
func (r *Registry) Create(cfg Config) (*Session, error) {
	s, err := New(uuid.NewString(), cfg, r.deps)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	if r.deps.Log != nil {
		r.deps.Log.Info("map session created", "session", s.ID, "authoring", cfg.Authoring)
	}
	return s, nil
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove closes and forgets the session with id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes sessions not seen since now minus the ttl and returns how
// many it closed.
func (r *Registry) Sweep(now time.Time) int {
	var stale []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.LastSeen()) > r.ttl {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done, then closes every session.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 && r.deps.Log != nil {
				r.deps.Log.Info("expired map sessions", "count", n)
			}
		case <-ctx.Done():
			r.Close()
			return
		}
	}
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
