package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mfglink/realtime/internal/domain"
	"mfglink/realtime/internal/frame"
)

// State is the lifecycle of one call attempt. Transitions are monotonic except
// that Terminated is reachable from any state.
type State int

const (
	Idle State = iota
	Calling
	Incoming
	Negotiating
	Active
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Calling:
		return "calling"
	case Incoming:
		return "incoming"
	case Negotiating:
		return "negotiating"
	case Active:
		return "active"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session is the single owned call state for one identity. All mutation goes
// through its methods; the generation counter fences stale async results
// (media acquisition, endpoint callbacks, the accept timer) after teardown.
type Session struct {
	self          domain.UserID
	sender        Sender
	media         MediaSource
	newEndpoint   EndpointFactory
	acceptTimeout time.Duration

	onIncoming func(caller domain.UserID, callerName string, room domain.RoomID)
	onState    func(State)
	onError    func(err error)

	mu          sync.Mutex
	state       State
	gen         uint64
	initiator   bool
	peer        domain.UserID
	callerName  string
	room        domain.RoomID
	tracks      []Track
	endpoint    PeerEndpoint
	pending     []string
	timer       *time.Timer
	mediaCancel context.CancelFunc
}

func NewSession(self domain.UserID, sender Sender, media MediaSource, factory EndpointFactory, acceptTimeout time.Duration) *Session {
	return &Session{
		self:          self,
		sender:        sender,
		media:         media,
		newEndpoint:   factory,
		acceptTimeout: acceptTimeout,
	}
}

// OnIncoming registers the ring callback (UI shows the incoming-call modal).
func (s *Session) OnIncoming(fn func(caller domain.UserID, callerName string, room domain.RoomID)) {
	s.mu.Lock()
	s.onIncoming = fn
	s.mu.Unlock()
}

// OnState registers an observer for state transitions.
func (s *Session) OnState(fn func(State)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// OnError registers the sink for surfaced call errors (MediaError, PeerError,
// ErrTimeout, ErrTransportLost).
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Peer reports the remote identity of the current attempt.
func (s *Session) Peer() domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// Initiator reports which side of the current attempt this session is.
func (s *Session) Initiator() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initiator
}

// Place starts an outgoing call: local media first, then the call-request.
// A media failure surfaces as MediaError and the state never leaves Idle; no
// request reaches the callee. On success the session rings in Calling until
// the accept ack or the timeout.
func (s *Session) Place(ctx context.Context, callee domain.UserID, room domain.RoomID) error {
	s.mu.Lock()
	if s.state != Idle && s.state != Terminated {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.mediaCancel != nil {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = Idle
	gen := s.gen
	mctx, cancel := context.WithCancel(ctx)
	s.mediaCancel = cancel
	s.mu.Unlock()

	tracks, err := s.media.Acquire(mctx)
	cancel()

	s.mu.Lock()
	if s.gen != gen {
		// Hang-up raced the acquisition: the result belongs to a dead attempt.
		s.mu.Unlock()
		stopTracks(tracks)
		return ErrBadState
	}
	s.mediaCancel = nil
	if err != nil {
		s.mu.Unlock()
		me := asMediaError(err)
		s.emitError(me)
		return me
	}

	s.initiator = true
	s.peer = callee
	s.room = room
	s.tracks = tracks
	s.state = Calling
	s.timer = time.AfterFunc(s.acceptTimeout, func() { s.ringTimeout(gen) })
	s.mu.Unlock()

	if err := s.sender.Send(frame.Call{Target: callee, Room: room}); err != nil {
		log.Warn().Err(err).Str("module", "call").Msg("call-request send failed, relying on ring timeout")
	}
	s.emitState(Calling)
	return nil
}

// Accept answers the ringing incoming call: acquire media, ack the caller,
// and move to Negotiating. The peer endpoint is built now if payloads were
// buffered while ringing, otherwise on first payload receipt.
func (s *Session) Accept(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Incoming {
		s.mu.Unlock()
		return ErrBadState
	}
	gen := s.gen
	caller := s.peer
	mctx, cancel := context.WithCancel(ctx)
	s.mediaCancel = cancel
	s.mu.Unlock()

	tracks, err := s.media.Acquire(mctx)
	cancel()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		stopTracks(tracks)
		return ErrBadState
	}
	s.mediaCancel = nil
	if err != nil {
		s.mu.Unlock()
		me := asMediaError(err)
		s.terminate(me)
		return me
	}

	s.tracks = tracks
	s.state = Negotiating
	var ep PeerEndpoint
	var buffered []string
	if len(s.pending) > 0 {
		ep, buffered, err = s.endpointLocked(false)
		if err != nil {
			s.mu.Unlock()
			pe := &PeerError{Err: err}
			s.terminate(pe)
			return pe
		}
	}
	s.mu.Unlock()

	if err := s.sender.Send(frame.Accept{Target: caller}); err != nil {
		log.Warn().Err(err).Str("module", "call").Msg("accept send failed")
	}
	s.emitState(Negotiating)
	s.feed(ep, buffered)
	return nil
}

// Hangup tears the attempt down. Safe to call from any trigger, any number of
// times; exactly one teardown runs.
func (s *Session) Hangup() {
	s.terminate(nil)
}

// TransportLost tears down an in-flight call after the persistent connection
// dropped; negotiation cannot survive a reconnect.
func (s *Session) TransportLost() {
	s.mu.Lock()
	idle := s.state == Idle || s.state == Terminated
	pendingMedia := s.mediaCancel != nil
	s.mu.Unlock()
	if idle && !pendingMedia {
		return
	}
	s.terminate(ErrTransportLost)
}

// HandleFrame feeds one inbound frame to the machine. Non-call frames are
// ignored, as is anything from an unexpected identity.
func (s *Session) HandleFrame(f frame.Frame) {
	switch f := f.(type) {
	case frame.IncomingCall:
		s.handleRing(f)
	case frame.CallAccepted:
		s.handleAccepted(f)
	case frame.SignalEvent:
		s.handleSignal(f)
	default:
	}
}

func (s *Session) handleRing(f frame.IncomingCall) {
	// Identity guard: a self-originated request never rings.
	if f.Caller == s.self {
		log.Warn().Str("module", "call").Int64("caller", int64(f.Caller)).Msg("ignoring self-originated call-request")
		return
	}
	s.mu.Lock()
	if (s.state != Idle && s.state != Terminated) || s.mediaCancel != nil {
		// Concurrent-call policy: auto-decline. No call-waiting exists, so a
		// second request is dropped and its caller times out.
		s.mu.Unlock()
		log.Info().Str("module", "call").Int64("caller", int64(f.Caller)).Msg("busy, auto-declining call-request")
		return
	}
	s.state = Incoming
	s.initiator = false
	s.peer = f.Caller
	s.callerName = f.CallerName
	s.room = f.Room
	s.pending = nil
	cb := s.onIncoming
	s.mu.Unlock()

	s.emitState(Incoming)
	if cb != nil {
		cb(f.Caller, f.CallerName, f.Room)
	}
}

func (s *Session) handleAccepted(f frame.CallAccepted) {
	s.mu.Lock()
	if s.state != Calling || f.Peer != s.peer {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = Negotiating
	// The initiator builds its endpoint only now, never before the accept, so
	// it cannot produce an offer the callee is not ready to consume.
	_, _, err := s.endpointLocked(true)
	s.mu.Unlock()
	if err != nil {
		s.terminate(&PeerError{Err: err})
		return
	}
	s.emitState(Negotiating)
}

func (s *Session) handleSignal(f frame.SignalEvent) {
	s.mu.Lock()
	if f.Sender != s.peer {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case Incoming:
		// Not accepted yet; keep the payload for endpoint construction.
		s.pending = append(s.pending, f.Payload)
		s.mu.Unlock()
		return
	case Negotiating, Active:
		ep, buffered, err := s.endpointLocked(false)
		s.mu.Unlock()
		if err != nil {
			s.terminate(&PeerError{Err: err})
			return
		}
		s.feed(ep, append(buffered, f.Payload))
	default:
		s.mu.Unlock()
	}
}

// endpointLocked returns the attempt's endpoint, building it on first use.
// Construction is idempotent and keyed to the current attempt: a second
// payload feeds the existing endpoint, it never creates another. Buffered
// payloads are handed back for the caller to feed outside the lock.
func (s *Session) endpointLocked(initiator bool) (PeerEndpoint, []string, error) {
	if s.endpoint == nil {
		ep, err := s.newEndpoint(initiator, s.tracks)
		if err != nil {
			return nil, nil, err
		}
		gen := s.gen
		ep.OnSignal(func(payload string) { s.produceSignal(gen, payload) })
		ep.OnStream(func() { s.streamReceived(gen) })
		ep.OnClose(func() { s.peerClosed(gen) })
		ep.OnError(func(err error) { s.peerFailed(gen, err) })
		s.endpoint = ep
	}
	buffered := s.pending
	s.pending = nil
	return s.endpoint, buffered, nil
}

// feed pushes payloads into the endpoint outside the session lock; endpoint
// implementations may call back into the session synchronously.
func (s *Session) feed(ep PeerEndpoint, payloads []string) {
	if ep == nil {
		return
	}
	for _, p := range payloads {
		if err := ep.ConsumeSignal(p); err != nil {
			log.Error().Err(err).Str("module", "call").Msg("endpoint rejected signal payload")
			s.terminate(&PeerError{Err: err})
			return
		}
	}
}

func (s *Session) produceSignal(gen uint64, payload string) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	peer := s.peer
	s.mu.Unlock()
	if err := s.sender.Send(frame.Signal{Target: peer, Payload: payload}); err != nil {
		log.Warn().Err(err).Str("module", "call").Msg("signal send failed")
	}
}

func (s *Session) streamReceived(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != Negotiating {
		s.mu.Unlock()
		return
	}
	s.state = Active
	s.mu.Unlock()
	s.emitState(Active)
}

func (s *Session) peerClosed(gen uint64) {
	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.terminate(nil)
}

func (s *Session) peerFailed(gen uint64, err error) {
	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.terminate(&PeerError{Err: err})
}

func (s *Session) ringTimeout(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != Calling {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.terminate(ErrTimeout)
}

// terminate is the single teardown path. The state check under the lock makes
// it idempotent; the generation bump invalidates every outstanding async
// callback of the attempt.
func (s *Session) terminate(cause error) {
	s.mu.Lock()
	if s.state == Terminated || (s.state == Idle && s.mediaCancel == nil) {
		s.mu.Unlock()
		return
	}
	s.gen++
	if s.mediaCancel != nil {
		s.mediaCancel()
		s.mediaCancel = nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	tracks := s.tracks
	ep := s.endpoint
	s.tracks = nil
	s.endpoint = nil
	s.pending = nil
	s.peer = 0
	s.room = 0
	s.callerName = ""
	s.initiator = false
	wasIdle := s.state == Idle
	s.state = Terminated
	if wasIdle {
		// Acquisition cancelled before the attempt ever started; nothing was
		// sent, so the session simply stays available.
		s.state = Idle
	}
	s.mu.Unlock()

	stopTracks(tracks)
	if ep != nil {
		ep.Close()
	}
	if cause != nil {
		s.emitError(cause)
	}
	if !wasIdle {
		s.emitState(Terminated)
	}
}

func (s *Session) emitState(st State) {
	s.mu.Lock()
	cb := s.onState
	s.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

func (s *Session) emitError(err error) {
	s.mu.Lock()
	cb := s.onError
	s.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func stopTracks(tracks []Track) {
	for _, t := range tracks {
		t.Stop()
	}
}

func asMediaError(err error) *MediaError {
	var me *MediaError
	if errors.As(err, &me) {
		return me
	}
	return &MediaError{Cause: CauseDeviceBusy, Err: err}
}
