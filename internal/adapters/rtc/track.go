package rtc

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"mfglink/realtime/internal/call"
)

// SampleTrack adapts a static sample track to the call.Track contract. Frame
// production (capture, encoding) stays outside the core; whoever owns the
// device feeds the track.
type SampleTrack struct {
	track *webrtc.TrackLocalStaticSample
	stop  func()
}

func NewSampleTrack(track *webrtc.TrackLocalStaticSample, stop func()) *SampleTrack {
	return &SampleTrack{track: track, stop: stop}
}

func (t *SampleTrack) TrackLocal() webrtc.TrackLocal { return t.track }

func (t *SampleTrack) Stop() {
	if t.stop != nil {
		t.stop()
	}
}

// StaticSource is a MediaSource producing preconfigured local tracks. It backs
// headless deployments where capture is wired externally; interactive clients
// supply their own device-backed MediaSource.
type StaticSource struct {
	Tracks []call.Track
}

func (s *StaticSource) Acquire(ctx context.Context) ([]call.Track, error) {
	select {
	case <-ctx.Done():
		return nil, &call.MediaError{Cause: call.CauseDeviceBusy, Err: ctx.Err()}
	default:
	}
	if len(s.Tracks) == 0 {
		return nil, &call.MediaError{Cause: call.CauseDeviceNotFound, Err: fmt.Errorf("no tracks configured")}
	}
	return s.Tracks, nil
}
