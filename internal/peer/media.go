package peer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// SampleSource produces local sample tracks (opus audio, vp8 video). A
// headless client has no capture device; callers feed samples through
// the tracks when they have any.
type SampleSource struct {
	Audio bool
	Video bool
}

func (s SampleSource) Acquire(ctx context.Context) (LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := uuid.NewString()
	stream := &sampleStream{}

	if s.Audio {
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio", streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create audio track: %w", err)
		}
		stream.tracks = append(stream.tracks, audio)
	}

	if s.Video {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create video track: %w", err)
		}
		stream.tracks = append(stream.tracks, video)
	}

	return stream, nil
}

type sampleStream struct {
	tracks  []webrtc.TrackLocal
	stopped atomic.Bool
}

func (s *sampleStream) Tracks() []webrtc.TrackLocal {
	return s.tracks
}

func (s *sampleStream) Stop() {
	s.stopped.Store(true)
}

func (s *sampleStream) Stopped() bool {
	return s.stopped.Load()
}
