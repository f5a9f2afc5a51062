// Package call owns the signaling state machine for one peer-to-peer call
// attempt. A process holds exactly one Session per identity; every mutation of
// call state goes through its operations, never around them.
package call

import (
	"context"

	"mfglink/realtime/internal/frame"
)

// Sender puts frames on the persistent connection. Satisfied by the client
// connection manager.
type Sender interface {
	Send(f frame.Frame) error
}

// Track is one acquired local device track.
type Track interface {
	Stop()
}

// MediaSource acquires local device tracks. Acquire honors ctx cancellation;
// a result that arrives after hang-up is released by the session, never
// attached.
type MediaSource interface {
	Acquire(ctx context.Context) ([]Track, error)
}

// PeerEndpoint is the opaque negotiation capability. Any WebRTC-capable
// implementation satisfies it; the session never looks inside payloads.
type PeerEndpoint interface {
	// ConsumeSignal feeds one remote negotiation blob into the endpoint.
	ConsumeSignal(payload string) error
	// OnSignal registers the sink for locally produced negotiation blobs.
	OnSignal(fn func(payload string))
	// OnStream fires when the first remote media track arrives.
	OnStream(fn func())
	// OnClose fires when the endpoint shuts down from the remote side.
	OnClose(fn func())
	// OnError fires when the endpoint fails.
	OnError(fn func(err error))
	Close()
}

// EndpointFactory builds a peer endpoint for one attempt with the local tracks
// attached. The initiator flag decides which side produces the offer.
type EndpointFactory func(initiator bool, tracks []Track) (PeerEndpoint, error)
