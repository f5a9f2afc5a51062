package hub

import (
	"sync"

	"github.com/rs/zerolog/log"

	"mfglink/realtime/internal/domain"
)

// Rooms tracks which sessions subscribe to which chat room. Rooms are created
// implicitly on first join; an empty member set is removed from the map but a
// room is never globally "destroyed" — the next join recreates it.
type Rooms struct {
	mu      sync.RWMutex
	members map[domain.RoomID]map[SessionID]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{members: make(map[domain.RoomID]map[SessionID]struct{})}
}

// Join is an idempotent add.
func (r *Rooms) Join(sid SessionID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.members[room]
	if !ok {
		set = make(map[SessionID]struct{})
		r.members[room] = set
	}
	set[sid] = struct{}{}
	log.Info().Str("module", "hub.rooms").Str("sid", string(sid)).Int64("room", int64(room)).Msg("joined room")
}

// Leave is an idempotent remove; absent membership is not an error.
func (r *Rooms) Leave(sid SessionID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.members[room]
	if !ok {
		return
	}
	delete(set, sid)
	if len(set) == 0 {
		delete(r.members, room)
	}
	log.Info().Str("module", "hub.rooms").Str("sid", string(sid)).Int64("room", int64(room)).Msg("left room")
}

// Members snapshots the current member set of a room.
func (r *Rooms) Members(room domain.RoomID) []SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.members[room]
	out := make([]SessionID, 0, len(set))
	for sid := range set {
		out = append(out, sid)
	}
	return out
}

// IsMember reports current net membership.
func (r *Rooms) IsMember(sid SessionID, room domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[room][sid]
	return ok
}

// Purge drops a session from every room. Called on disconnect so fan-out never
// reaches a dead connection and the map does not grow without bound.
func (r *Rooms) Purge(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room, set := range r.members {
		if _, ok := set[sid]; !ok {
			continue
		}
		delete(set, sid)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
}
