// Package frame implements the pipe-delimited wire protocol spoken over the
// persistent connection. Every inbound message is decoded exactly once at the
// transport boundary into one of a closed set of variants; routers switch over
// the concrete type instead of re-parsing tag strings.
//
// Trailing free-text fields (chat text, signaling payloads, notification json)
// are decoded with a bounded split, so they may themselves contain the
// delimiter. All other fields must not.
package frame

import (
	"errors"
	"fmt"
	"strings"

	"mfglink/realtime/internal/domain"
)

const delim = "|"

// Client to server tags.
const (
	TagJoin   = "JOIN"
	TagLeave  = "LEAVE"
	TagChat   = "CHAT"
	TagCall   = "CALL"
	TagAccept = "ACCEPT"
	TagSignal = "RTC"
)

// Server to client tags.
const (
	TagChatEvent    = "chat"
	TagNotification = "notification"
	TagIncomingCall = "rtc-call-request"
	TagCallAccepted = "rtc-call-accepted"
	TagSignalEvent  = "rtc-signal"
)

var (
	ErrEmpty      = errors.New("frame: empty message")
	ErrUnknownTag = errors.New("frame: unknown tag")
	ErrBadFields  = errors.New("frame: bad field count")
)

// Frame is one decoded wire message. The set of implementations is closed.
type Frame interface {
	Encode() []byte
	sealed()
}

// Join subscribes the sending connection to a room.
type Join struct {
	Room domain.RoomID
}

// Leave unsubscribes the sending connection from a room.
type Leave struct {
	Room domain.RoomID
}

// Chat posts a chat line to a room.
type Chat struct {
	Room domain.RoomID
	Text string
}

// Call asks the server to ring another identity for a room's discussion.
type Call struct {
	Target domain.UserID
	Room   domain.RoomID
}

// Accept acknowledges an incoming call toward its initiator.
type Accept struct {
	Target domain.UserID
}

// Signal relays an opaque negotiation blob to another identity.
type Signal struct {
	Target  domain.UserID
	Payload string
}

// ChatEvent is a fanned-out chat line, already rendered with the author prefix.
type ChatEvent struct {
	Text string
}

// Notification carries a persisted notification record as json.
type Notification struct {
	JSON string
}

// IncomingCall tells the callee someone is ringing.
type IncomingCall struct {
	Caller     domain.UserID
	CallerName string
	Room       domain.RoomID
}

// CallAccepted tells the initiator the callee picked up.
type CallAccepted struct {
	Peer domain.UserID
}

// SignalEvent is a relayed negotiation blob with its sender identity attached.
type SignalEvent struct {
	Sender  domain.UserID
	Payload string
}

func (Join) sealed()         {}
func (Leave) sealed()        {}
func (Chat) sealed()         {}
func (Call) sealed()         {}
func (Accept) sealed()       {}
func (Signal) sealed()       {}
func (ChatEvent) sealed()    {}
func (Notification) sealed() {}
func (IncomingCall) sealed() {}
func (CallAccepted) sealed() {}
func (SignalEvent) sealed()  {}

func (f Join) Encode() []byte  { return []byte(TagJoin + delim + f.Room.String()) }
func (f Leave) Encode() []byte { return []byte(TagLeave + delim + f.Room.String()) }
func (f Chat) Encode() []byte {
	return []byte(TagChat + delim + f.Room.String() + delim + f.Text)
}
func (f Call) Encode() []byte {
	return []byte(TagCall + delim + f.Target.String() + delim + f.Room.String())
}
func (f Accept) Encode() []byte { return []byte(TagAccept + delim + f.Target.String()) }
func (f Signal) Encode() []byte {
	return []byte(TagSignal + delim + f.Target.String() + delim + f.Payload)
}
func (f ChatEvent) Encode() []byte    { return []byte(TagChatEvent + delim + f.Text) }
func (f Notification) Encode() []byte { return []byte(TagNotification + delim + f.JSON) }
func (f IncomingCall) Encode() []byte {
	return []byte(TagIncomingCall + delim + f.Caller.String() + delim + f.CallerName + delim + f.Room.String())
}
func (f CallAccepted) Encode() []byte {
	return []byte(TagCallAccepted + delim + f.Peer.String())
}
func (f SignalEvent) Encode() []byte {
	return []byte(TagSignalEvent + delim + f.Sender.String() + delim + f.Payload)
}

// Decode parses one wire message. Unknown tags and malformed fields return an
// error; callers log and drop, they never crash on bad input.
func Decode(data []byte) (Frame, error) {
	s := string(data)
	if s == "" {
		return nil, ErrEmpty
	}
	tag, rest, _ := strings.Cut(s, delim)

	switch tag {
	case TagJoin:
		room, err := domain.ParseRoomID(rest)
		if err != nil {
			return nil, fmt.Errorf("frame: %s room: %w", tag, err)
		}
		return Join{Room: room}, nil

	case TagLeave:
		room, err := domain.ParseRoomID(rest)
		if err != nil {
			return nil, fmt.Errorf("frame: %s room: %w", tag, err)
		}
		return Leave{Room: room}, nil

	case TagChat:
		roomStr, text, ok := strings.Cut(rest, delim)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBadFields, tag)
		}
		room, err := domain.ParseRoomID(roomStr)
		if err != nil {
			return nil, fmt.Errorf("frame: %s room: %w", tag, err)
		}
		return Chat{Room: room, Text: text}, nil

	case TagCall:
		parts := strings.Split(rest, delim)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: %s", ErrBadFields, tag)
		}
		target, err := domain.ParseUserID(parts[0])
		if err != nil {
			return nil, fmt.Errorf("frame: %s target: %w", tag, err)
		}
		room, err := domain.ParseRoomID(parts[1])
		if err != nil {
			return nil, fmt.Errorf("frame: %s room: %w", tag, err)
		}
		return Call{Target: target, Room: room}, nil

	case TagAccept:
		target, err := domain.ParseUserID(rest)
		if err != nil {
			return nil, fmt.Errorf("frame: %s target: %w", tag, err)
		}
		return Accept{Target: target}, nil

	case TagSignal:
		targetStr, payload, ok := strings.Cut(rest, delim)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBadFields, tag)
		}
		target, err := domain.ParseUserID(targetStr)
		if err != nil {
			return nil, fmt.Errorf("frame: %s target: %w", tag, err)
		}
		return Signal{Target: target, Payload: payload}, nil

	case TagChatEvent:
		return ChatEvent{Text: rest}, nil

	case TagNotification:
		if rest == "" {
			return nil, fmt.Errorf("%w: %s", ErrBadFields, tag)
		}
		return Notification{JSON: rest}, nil

	case TagIncomingCall:
		parts := strings.Split(rest, delim)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: %s", ErrBadFields, tag)
		}
		caller, err := domain.ParseUserID(parts[0])
		if err != nil {
			return nil, fmt.Errorf("frame: %s caller: %w", tag, err)
		}
		room, err := domain.ParseRoomID(parts[2])
		if err != nil {
			return nil, fmt.Errorf("frame: %s room: %w", tag, err)
		}
		return IncomingCall{Caller: caller, CallerName: parts[1], Room: room}, nil

	case TagCallAccepted:
		peer, err := domain.ParseUserID(rest)
		if err != nil {
			return nil, fmt.Errorf("frame: %s peer: %w", tag, err)
		}
		return CallAccepted{Peer: peer}, nil

	case TagSignalEvent:
		senderStr, payload, ok := strings.Cut(rest, delim)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBadFields, tag)
		}
		sender, err := domain.ParseUserID(senderStr)
		if err != nil {
			return nil, fmt.Errorf("frame: %s sender: %w", tag, err)
		}
		return SignalEvent{Sender: sender, Payload: payload}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
}

// Tag reports the wire tag of a decoded frame, for log fields and metric
// labels.
func Tag(f Frame) string {
	switch f.(type) {
	case Join:
		return TagJoin
	case Leave:
		return TagLeave
	case Chat:
		return TagChat
	case Call:
		return TagCall
	case Accept:
		return TagAccept
	case Signal:
		return TagSignal
	case ChatEvent:
		return TagChatEvent
	case Notification:
		return TagNotification
	case IncomingCall:
		return TagIncomingCall
	case CallAccepted:
		return TagCallAccepted
	case SignalEvent:
		return TagSignalEvent
	default:
		return "unknown"
	}
}
