package hub

import (
	"github.com/rs/zerolog/log"

	"mfglink/realtime/internal/domain"
	"mfglink/realtime/internal/frame"
)

// Router classifies decoded frames and moves them to their sinks: room fan-out
// for chat, membership mutation for join/leave, unicast-by-identity for call
// control. One router instance serves the whole process.
//
// The ws adapter calls HandleFrame synchronously from each connection's read
// pump, so frames from one connection are processed strictly in order. Calls
// for distinct connections may run concurrently; all shared state sits behind
// the registry's and rooms' locks.
type Router struct {
	Registry *Registry
	Rooms    *Rooms
}

func NewRouter(reg *Registry, rooms *Rooms) *Router {
	return &Router{Registry: reg, Rooms: rooms}
}

// HandleRaw decodes one wire message and routes it. Malformed input is logged
// and dropped; it never takes the connection down.
func (rt *Router) HandleRaw(sid SessionID, data []byte) {
	f, err := frame.Decode(data)
	if err != nil {
		framesDropped.WithLabelValues("malformed").Inc()
		log.Warn().Err(err).Str("module", "hub.router").Str("sid", string(sid)).Msg("dropping malformed frame")
		return
	}
	rt.HandleFrame(sid, f)
}

// HandleFrame routes a decoded frame from the given session.
func (rt *Router) HandleFrame(sid SessionID, f frame.Frame) {
	sender, ok := rt.Registry.User(sid)
	if !ok {
		framesDropped.WithLabelValues("no_session").Inc()
		return
	}
	framesRouted.WithLabelValues(frame.Tag(f)).Inc()

	switch f := f.(type) {
	case frame.Join:
		rt.Rooms.Join(sid, f.Room)

	case frame.Leave:
		rt.Rooms.Leave(sid, f.Room)

	case frame.Chat:
		// Membership is per connection and not retained across reconnects; a
		// connection that never re-joined does not get to post.
		if !rt.Rooms.IsMember(sid, f.Room) {
			framesDropped.WithLabelValues("not_member").Inc()
			log.Warn().Str("module", "hub.router").Str("sid", string(sid)).Int64("room", int64(f.Room)).Msg("chat from non-member dropped")
			return
		}
		rt.fanout(sid, f.Room, frame.ChatEvent{Text: sender.DisplayName() + ": " + f.Text})

	case frame.Call:
		rt.unicast(f.Target, frame.IncomingCall{
			Caller:     sender.ID,
			CallerName: sender.FullName,
			Room:       f.Room,
		})

	case frame.Accept:
		rt.unicast(f.Target, frame.CallAccepted{Peer: sender.ID})

	case frame.Signal:
		rt.unicast(f.Target, frame.SignalEvent{Sender: sender.ID, Payload: f.Payload})

	case frame.ChatEvent, frame.Notification, frame.IncomingCall, frame.CallAccepted, frame.SignalEvent:
		// Server-bound tags arriving from a client are protocol misuse.
		framesDropped.WithLabelValues("misdirected").Inc()
		log.Warn().Str("module", "hub.router").Str("sid", string(sid)).Str("tag", frame.Tag(f)).Msg("dropping server-bound tag from client")
	}
}

// Disconnect releases everything the hub holds for a session.
func (rt *Router) Disconnect(sid SessionID) {
	rt.Rooms.Purge(sid)
	rt.Registry.Unbind(sid)
	connectionsLive.Set(float64(rt.Registry.Count()))
}

// Connected refreshes the live-connection gauge after a bind.
func (rt *Router) Connected() {
	connectionsLive.Set(float64(rt.Registry.Count()))
}

// fanout delivers to current room members, excluding the sender, which renders
// its own echo locally. Slow consumers are disconnected rather than allowed to
// stall the room.
func (rt *Router) fanout(from SessionID, room domain.RoomID, f frame.Frame) {
	data := f.Encode()
	for _, sid := range rt.Rooms.Members(room) {
		if sid == from {
			continue
		}
		conn, ok := rt.Registry.Conn(sid)
		if !ok {
			continue
		}
		if err := conn.TrySend(data); err != nil {
			framesDropped.WithLabelValues("backpressure").Inc()
			log.Warn().Str("module", "hub.router").Str("sid", string(sid)).Msg("kicking slow room member")
			rt.Registry.Cancel(sid)
			continue
		}
		fanoutDelivered.Inc()
	}
}

// unicast delivers to every live connection of the target identity. With no
// open connection the frame is dropped: there is no offline queue, the caller
// times out locally.
func (rt *Router) unicast(target domain.UserID, f frame.Frame) {
	conns := rt.Registry.ConnsOf(target)
	if len(conns) == 0 {
		framesDropped.WithLabelValues("offline").Inc()
		log.Info().Str("module", "hub.router").Int64("target", int64(target)).Str("tag", frame.Tag(f)).Msg("target offline, dropping")
		return
	}
	data := f.Encode()
	for _, c := range conns {
		if err := c.Conn.TrySend(data); err != nil {
			framesDropped.WithLabelValues("backpressure").Inc()
			rt.Registry.Cancel(c.SID)
		}
	}
}
