// Package rtc implements call.PeerEndpoint on pion/webrtc. Negotiation blobs
// are whole session descriptions (non-trickle): the offer and answer each wait
// for ICE gathering to complete, so one payload per direction establishes the
// media path.
package rtc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"mfglink/realtime/internal/call"
)

// LocalTrack is a call.Track that can be attached to a PeerConnection.
type LocalTrack interface {
	call.Track
	TrackLocal() webrtc.TrackLocal
}

// envelope is the signaling payload shape. Either SDP or Candidate is set.
type envelope struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// NewFactory builds an EndpointFactory using the given STUN servers.
func NewFactory(stunServers []string) call.EndpointFactory {
	return func(initiator bool, tracks []call.Track) (call.PeerEndpoint, error) {
		cfg := webrtc.Configuration{}
		if len(stunServers) > 0 {
			cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
		}
		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, fmt.Errorf("rtc: new peer connection: %w", err)
		}
		for _, t := range tracks {
			lt, ok := t.(LocalTrack)
			if !ok {
				continue
			}
			if _, err := pc.AddTrack(lt.TrackLocal()); err != nil {
				_ = pc.Close()
				return nil, fmt.Errorf("rtc: add local track: %w", err)
			}
		}
		e := &Endpoint{pc: pc, initiator: initiator}
		e.bind()
		if initiator {
			go e.produceOffer()
		}
		return e, nil
	}
}

// Endpoint wraps one PeerConnection for one call attempt.
type Endpoint struct {
	pc        *webrtc.PeerConnection
	initiator bool

	mu       sync.Mutex
	onSignal func(string)
	onStream func()
	onClose  func()
	onError  func(error)
	outbox   []string

	streamOnce sync.Once
	closeOnce  sync.Once
}

func (e *Endpoint) bind() {
	e.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("remote track")
		e.streamOnce.Do(func() {
			if cb := e.callback(&e.onStream); cb != nil {
				cb()
			}
		})
	})

	e.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("ice_state", s.String()).Msg("ICE state")
	})

	e.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_state", s.String()).Msg("peer state")
		switch s {
		case webrtc.PeerConnectionStateFailed:
			e.mu.Lock()
			cb := e.onError
			e.mu.Unlock()
			if cb != nil {
				cb(fmt.Errorf("rtc: peer connection failed"))
			}
		case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			e.closeOnce.Do(func() {
				e.mu.Lock()
				cb := e.onClose
				e.mu.Unlock()
				if cb != nil {
					cb()
				}
			})
		}
	})
}

func (e *Endpoint) callback(slot *func()) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *slot
}

// produceOffer creates the initiator's offer after ICE gathering completes and
// emits it as a single payload.
func (e *Endpoint) produceOffer() {
	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		e.fail(fmt.Errorf("rtc: create offer: %w", err))
		return
	}
	gathered := webrtc.GatheringCompletePromise(e.pc)
	if err := e.pc.SetLocalDescription(offer); err != nil {
		e.fail(fmt.Errorf("rtc: set local offer: %w", err))
		return
	}
	<-gathered
	local := e.pc.LocalDescription()
	e.emit(envelope{Type: local.Type.String(), SDP: local.SDP})
}

func (e *Endpoint) produceAnswer() {
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		e.fail(fmt.Errorf("rtc: create answer: %w", err))
		return
	}
	gathered := webrtc.GatheringCompletePromise(e.pc)
	if err := e.pc.SetLocalDescription(answer); err != nil {
		e.fail(fmt.Errorf("rtc: set local answer: %w", err))
		return
	}
	<-gathered
	local := e.pc.LocalDescription()
	e.emit(envelope{Type: local.Type.String(), SDP: local.SDP})
}

// ConsumeSignal feeds one remote payload into the PeerConnection.
func (e *Endpoint) ConsumeSignal(payload string) error {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return fmt.Errorf("rtc: bad signal payload: %w", err)
	}
	switch env.Type {
	case webrtc.SDPTypeOffer.String():
		desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: env.SDP}
		if err := e.pc.SetRemoteDescription(desc); err != nil {
			return fmt.Errorf("rtc: set remote offer: %w", err)
		}
		go e.produceAnswer()
		return nil
	case webrtc.SDPTypeAnswer.String():
		desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: env.SDP}
		if err := e.pc.SetRemoteDescription(desc); err != nil {
			return fmt.Errorf("rtc: set remote answer: %w", err)
		}
		return nil
	case "candidate":
		if env.Candidate == nil {
			return fmt.Errorf("rtc: candidate payload without candidate")
		}
		return e.pc.AddICECandidate(*env.Candidate)
	default:
		return fmt.Errorf("rtc: unknown signal type %q", env.Type)
	}
}

// emit hands a produced payload to the registered sink, buffering anything
// produced before registration.
func (e *Endpoint) emit(env envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		e.fail(fmt.Errorf("rtc: marshal signal: %w", err))
		return
	}
	e.mu.Lock()
	if e.onSignal == nil {
		e.outbox = append(e.outbox, string(b))
		e.mu.Unlock()
		return
	}
	cb := e.onSignal
	e.mu.Unlock()
	cb(string(b))
}

func (e *Endpoint) fail(err error) {
	log.Error().Err(err).Str("module", "rtc").Msg("endpoint failure")
	e.mu.Lock()
	cb := e.onError
	e.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (e *Endpoint) OnSignal(fn func(payload string)) {
	e.mu.Lock()
	e.onSignal = fn
	queued := e.outbox
	e.outbox = nil
	e.mu.Unlock()
	for _, p := range queued {
		fn(p)
	}
}

func (e *Endpoint) OnStream(fn func()) {
	e.mu.Lock()
	e.onStream = fn
	e.mu.Unlock()
}

func (e *Endpoint) OnClose(fn func()) {
	e.mu.Lock()
	e.onClose = fn
	e.mu.Unlock()
}

func (e *Endpoint) OnError(fn func(err error)) {
	e.mu.Lock()
	e.onError = fn
	e.mu.Unlock()
}

func (e *Endpoint) Close() {
	if err := e.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
	}
}
