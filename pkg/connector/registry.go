// Package connector attaches sessions to network connections. The Acceptor
// serves TCP and FIX-over-WebSocket counterparties, the Initiator dials out
// and reconnects, and a shared timer drives every session's heartbeat
// checks.
package connector

import (
	"errors"
	"sort"
	"sync"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
)

var ErrDuplicateSession = errors.New("connector: session already registered")

// Registry maps session ids to the sessions a connector owns.
type Registry struct {
	mu       sync.RWMutex
	sessions map[fix.SessionID]*session.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[fix.SessionID]*session.Session{}}
}

func (r *Registry) Add(s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID()]; exists {
		return ErrDuplicateSession
	}
	r.sessions[s.ID()] = s
	return nil
}

func (r *Registry) Lookup(id fix.SessionID) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// LookupString finds a session by its canonical string form.
func (r *Registry) LookupString(id string) (*session.Session, bool) {
	parsed, err := fix.ParseSessionID(id)
	if err != nil {
		return nil, false
	}
	return r.Lookup(parsed)
}

func (r *Registry) Remove(id fix.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// All returns the registered sessions ordered by id.
func (r *Registry) All() []*session.Session {
	r.mu.RLock()
	all := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].ID().String() < all[j].ID().String()
	})
	return all
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
