package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Huddle/internal/client"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const frameDuration = 20 * time.Millisecond

// SyntheticSource stands in for capture devices on a headless client. A
// denied kind behaves like a refused device permission.
type SyntheticSource struct {
	DenyAudio bool
	DenyVideo bool
}

func (s SyntheticSource) Acquire(ctx context.Context, req client.MediaRequest) (*client.LocalStream, error) {
	if req.Audio && s.DenyAudio {
		return nil, fmt.Errorf("%w: microphone", domain.ErrMediaAccess)
	}
	if req.Video && s.DenyVideo {
		return nil, fmt.Errorf("%w: camera", domain.ErrMediaAccess)
	}
	streamID := uuid.NewString()
	stream := &client.LocalStream{}
	if req.Audio {
		sink, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "audio", streamID)
		if err != nil {
			return nil, err
		}
		pumpCtx, cancel := context.WithCancel(context.Background())
		track := client.NewLocalTrack(webrtc.RTPCodecTypeAudio, sink, cancel)
		go pumpSilence(pumpCtx, track)
		stream.Tracks = append(stream.Tracks, track)
	}
	if req.Video {
		sink, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, "video", streamID)
		if err != nil {
			stream.Release()
			return nil, err
		}
		stream.Tracks = append(stream.Tracks, client.NewLocalTrack(webrtc.RTPCodecTypeVideo, sink, nil))
	}
	return stream, nil
}

// pumpSilence keeps the audio track flowing. Muting gates it in WriteSample.
func pumpSilence(ctx context.Context, track *client.LocalTrack) {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = track.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration})
		}
	}
}
