package app

import (
	"context"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Session is a read-only copy of a registry entry.
type Session struct {
	ConnID core.ConnID
	User   domain.User
	RoomID domain.RoomID
	Conn   core.SignalConnection
}

type sessionEntry struct {
	User   domain.User
	RoomID domain.RoomID
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

type liveKey struct {
	room domain.RoomID
	user domain.UserID
}

// Registry maps connection handles to identities and tracks the single
// live handle per (room, identity).
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ConnID]*sessionEntry
	live     map[liveKey]core.ConnID
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.ConnID]*sessionEntry),
		live:     make(map[liveKey]core.ConnID),
	}
}

// BindConn registers a freshly accepted connection for user.
func (r *Registry) BindConn(conn core.SignalConnection, user domain.User, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[conn.ID()] = &sessionEntry{User: user, Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(conn.ID())).Str("user", string(user.ID)).Msg("bound connection")
}

func (r *Registry) Get(cid core.ConnID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[cid]
	if !ok {
		return Session{}, false
	}
	return Session{ConnID: cid, User: e.User, RoomID: e.RoomID, Conn: e.Conn}, true
}

// SetProfile updates the identity's display fields for this connection.
func (r *Registry) SetProfile(cid core.ConnID, user domain.User) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[cid]
	if !ok || e.User.ID != user.ID {
		return false
	}
	e.User = user
	return true
}

// AttachRoom marks cid as the live handle for its identity in room.
// It fails if cid is no longer bound.
func (r *Registry) AttachRoom(cid core.ConnID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[cid]
	if !ok {
		return false
	}
	e.RoomID = room
	r.live[liveKey{room: room, user: e.User.ID}] = cid
	log.Info().Str("module", "app.registry").Str("sid", string(cid)).Str("room", string(room)).Msg("attached room")
	return true
}

// DetachRoom clears the room association of cid and returns the room it had.
func (r *Registry) DetachRoom(cid core.ConnID) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[cid]
	if !ok || e.RoomID == "" {
		return "", false
	}
	room := e.RoomID
	r.detachLocked(cid, e)
	log.Info().Str("module", "app.registry").Str("sid", string(cid)).Str("room", string(room)).Msg("detached room")
	return room, true
}

func (r *Registry) detachLocked(cid core.ConnID, e *sessionEntry) {
	key := liveKey{room: e.RoomID, user: e.User.ID}
	if r.live[key] == cid {
		delete(r.live, key)
	}
	e.RoomID = ""
}

// Live returns the live connection of user in room.
func (r *Registry) Live(room domain.RoomID, user domain.UserID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cid, ok := r.live[liveKey{room: room, user: user}]
	if !ok {
		return nil, false
	}
	e, ok := r.sessions[cid]
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

// Unbind forgets cid entirely and returns its last state.
func (r *Registry) Unbind(cid core.ConnID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[cid]
	if !ok {
		return Session{}, false
	}
	s := Session{ConnID: cid, User: e.User, RoomID: e.RoomID, Conn: e.Conn}
	if e.RoomID != "" {
		r.detachLocked(cid, e)
	}
	delete(r.sessions, cid)
	log.Info().Str("module", "app.registry").Str("sid", string(cid)).Msg("unbind connection")
	return s, true
}

// Cancel stops the connection's pumps. It does not unbind.
func (r *Registry) Cancel(cid core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.sessions[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(cid)).Msg("canceled connection")
	return true
}

// Each calls fn for every bound connection; fn must not call back into the registry.
func (r *Registry) Each(fn func(Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for cid, e := range r.sessions {
		fn(Session{ConnID: cid, User: e.User, RoomID: e.RoomID, Conn: e.Conn})
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
