package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
)

var ErrMediaClosed = errors.New("media source is closed")

// SampleSource is the default MediaSource: one opus audio track and one
// VP8 video track fed by the local capture pipeline.
type SampleSource struct {
	mu     sync.Mutex
	tracks []webrtc.TrackLocal
	closed bool
}

func NewSampleSource() (*SampleSource, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "quietline")
	if err != nil {
		return nil, err
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "quietline")
	if err != nil {
		return nil, err
	}
	return &SampleSource{tracks: []webrtc.TrackLocal{audio, video}}, nil
}

func (s *SampleSource) Tracks(ctx context.Context) ([]webrtc.TrackLocal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrMediaClosed
	}
	return append([]webrtc.TrackLocal(nil), s.tracks...), nil
}

func (s *SampleSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tracks = nil
	return nil
}

// DeniedSource models unavailable capture devices: every acquisition
// fails with the given reason and the session degrades to receive-only.
type DeniedSource struct {
	Reason error
}

func (d DeniedSource) Tracks(context.Context) ([]webrtc.TrackLocal, error) {
	if d.Reason != nil {
		return nil, d.Reason
	}
	return nil, errors.New("media capture denied")
}

func (DeniedSource) Close() error { return nil }
