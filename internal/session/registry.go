// Package session tracks the live hardware and app connections of every user.
package session

import (
	"sync"

	"telemetry_relay/internal/models"
)

// Registry maps user ids to sessions. It is safe for concurrent use and never
// takes a global lock.
type Registry struct {
	sessions sync.Map // int -> *Session
}

func NewRegistry() *Registry {
	return &Registry{}
}

// GetOrCreate returns the session of the profile's user, creating it if needed.
func (r *Registry) GetOrCreate(p *models.Profile) *Session {
	if s, ok := r.sessions.Load(p.UserID); ok {
		return s.(*Session)
	}
	s, _ := r.sessions.LoadOrStore(p.UserID, newSession(p))
	return s.(*Session)
}

func (r *Registry) Get(userID int) (*Session, bool) {
	s, ok := r.sessions.Load(userID)
	if !ok {
		return nil, false
	}
	return s.(*Session), true
}

// AddHardware attaches c to the user's session.
func (r *Registry) AddHardware(p *models.Profile, c HardwareConn) *Session {
	for {
		s := r.GetOrCreate(p)
		if err := s.addHardware(c); err == nil {
			return s
		}
		// lost a race with ReleaseIfEmpty; the closed session is already gone
		r.sessions.CompareAndDelete(p.UserID, s)
	}
}

// AddApp attaches c to the user's session.
func (r *Registry) AddApp(p *models.Profile, c AppConn) *Session {
	for {
		s := r.GetOrCreate(p)
		if err := s.addApp(c); err == nil {
			return s
		}
		r.sessions.CompareAndDelete(p.UserID, s)
	}
}

// ReleaseIfEmpty removes the session once it has neither hardware nor app connections.
func (r *Registry) ReleaseIfEmpty(s *Session) bool {
	s.mu.Lock()
	if s.closed || len(s.hardware) > 0 || len(s.apps) > 0 {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.mu.Unlock()
	return r.sessions.CompareAndDelete(s.UserID, s)
}

// Range calls fn for every session. Concurrent inserts and removals are allowed.
func (r *Registry) Range(fn func(s *Session) bool) {
	r.sessions.Range(func(_, v any) bool {
		return fn(v.(*Session))
	})
}

// Len counts sessions; it is a snapshot, not a synchronized value.
func (r *Registry) Len() int {
	n := 0
	r.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
