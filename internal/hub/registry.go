// Package hub is the server core: it tracks live sessions per identity, room
// membership, and routes decoded frames between them. It owns no transport
// resources; connections are adapter-owned and reached through the Conn
// interface.
package hub

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"mfglink/realtime/internal/domain"
)

// SessionID identifies one live connection. One identity may hold several
// sessions at once (multi-tab).
type SessionID string

// Conn is the outbound half of a connection, owned by the ws adapter.
// TrySend must not block; it reports backpressure as an error.
type Conn interface {
	TrySend(data []byte) error
	Close()
}

type sessionEntry struct {
	User   *domain.User
	Conn   Conn
	Cancel context.CancelFunc
}

// Registry maps sessions to identities and back.
type Registry struct {
	mu       sync.RWMutex
	sessions map[SessionID]*sessionEntry
	byUser   map[domain.UserID]map[SessionID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[SessionID]*sessionEntry),
		byUser:   make(map[domain.UserID]map[SessionID]struct{}),
	}
}

// Bind registers a freshly upgraded connection under its identity.
func (r *Registry) Bind(sid SessionID, user *domain.User, conn Conn, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{User: user, Conn: conn, Cancel: cancel}
	set, ok := r.byUser[user.ID]
	if !ok {
		set = make(map[SessionID]struct{})
		r.byUser[user.ID] = set
	}
	set[sid] = struct{}{}
	log.Info().Str("module", "hub.registry").Str("sid", string(sid)).Int64("user", int64(user.ID)).Msg("bound session")
}

// Unbind removes a session. Room membership cleanup is the router's job.
func (r *Registry) Unbind(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return
	}
	delete(r.sessions, sid)
	if set, ok := r.byUser[e.User.ID]; ok {
		delete(set, sid)
		if len(set) == 0 {
			delete(r.byUser, e.User.ID)
		}
	}
	log.Info().Str("module", "hub.registry").Str("sid", string(sid)).Msg("unbound session")
}

// User returns the identity bound to a session.
func (r *Registry) User(sid SessionID) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	return e.User, true
}

// Conn returns the outbound half of a session.
func (r *Registry) Conn(sid SessionID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

type connSnap struct {
	SID  SessionID
	Conn Conn
}

// ConnsOf snapshots every live connection of an identity.
func (r *Registry) ConnsOf(uid domain.UserID) []connSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[uid]
	out := make([]connSnap, 0, len(set))
	for sid := range set {
		if e, ok := r.sessions[sid]; ok {
			out = append(out, connSnap{SID: sid, Conn: e.Conn})
		}
	}
	return out
}

// Cancel fires the session's lifetime cancel func, stopping its pumps.
func (r *Registry) Cancel(sid SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	return true
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
