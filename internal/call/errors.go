package call

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy reports an attempt to place a call while another is in flight.
	ErrBusy = errors.New("call: another call is in flight")
	// ErrTimeout reports that no accept arrived within the ringing bound.
	ErrTimeout = errors.New("call: no answer before timeout")
	// ErrTransportLost reports the persistent connection dropped mid-call.
	ErrTransportLost = errors.New("call: transport lost")
	// ErrBadState reports an operation invalid for the current state.
	ErrBadState = errors.New("call: invalid state for operation")
)

// Media failure causes, distinguished for user-visible detail.
const (
	CausePermissionDenied = "permission-denied"
	CauseDeviceNotFound   = "not-found"
	CauseDeviceBusy       = "unavailable"
)

// MediaError reports local device acquisition failure. The call aborts before
// any peer traffic; the cause tells the user what to fix.
type MediaError struct {
	Cause string
	Err   error
}

func (e *MediaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("call: media %s: %v", e.Cause, e.Err)
	}
	return "call: media " + e.Cause
}

func (e *MediaError) Unwrap() error { return e.Err }

// PeerError reports failure surfaced by the peer endpoint; it always triggers
// hang-up.
type PeerError struct {
	Err error
}

func (e *PeerError) Error() string { return fmt.Sprintf("call: peer endpoint: %v", e.Err) }
func (e *PeerError) Unwrap() error { return e.Err }
