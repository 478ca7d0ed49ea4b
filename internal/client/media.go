package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// MediaRequest names the kinds a MediaSource is asked for.
type MediaRequest struct {
	Audio bool
	Video bool
}

func (r MediaRequest) String() string {
	switch {
	case r.Audio && r.Video:
		return "audio+video"
	case r.Audio:
		return "audio"
	case r.Video:
		return "video"
	}
	return "none"
}

// MediaSource acquires local capture. Implementations return an error
// wrapping domain.ErrMediaAccess when a requested kind is unavailable.
type MediaSource interface {
	Acquire(ctx context.Context, req MediaRequest) (*LocalStream, error)
}

// DegradeChain is the ordered list of requests tried until one succeeds.
var DegradeChain = []MediaRequest{
	{Audio: true, Video: true},
	{Audio: true},
	{},
}

// MediaOutcome records which step of the chain was granted.
type MediaOutcome struct {
	Granted  MediaRequest
	Attempts []string
}

// LocalTrack is one local capture track. Enablement is a single flag shared
// by every peer link the track is attached to.
type LocalTrack struct {
	kind    webrtc.RTPCodecType
	sink    webrtc.TrackLocal
	enabled atomic.Bool
	stop    func()
	once    sync.Once
}

func NewLocalTrack(kind webrtc.RTPCodecType, sink webrtc.TrackLocal, stop func()) *LocalTrack {
	t := &LocalTrack{kind: kind, sink: sink, stop: stop}
	t.enabled.Store(true)
	return t
}

func (t *LocalTrack) Kind() webrtc.RTPCodecType { return t.kind }

// Sink is the pion track attached to peer connections. It may be nil.
func (t *LocalTrack) Sink() webrtc.TrackLocal { return t.sink }

func (t *LocalTrack) Enabled() bool { return t.enabled.Load() }

func (t *LocalTrack) SetEnabled(v bool) { t.enabled.Store(v) }

// WriteSample forwards s to the sink while the track is enabled.
func (t *LocalTrack) WriteSample(s media.Sample) error {
	if !t.enabled.Load() {
		return nil
	}
	w, ok := t.sink.(interface{ WriteSample(media.Sample) error })
	if !ok {
		return nil
	}
	return w.WriteSample(s)
}

func (t *LocalTrack) Stop() {
	t.once.Do(func() {
		t.enabled.Store(false)
		if t.stop != nil {
			t.stop()
		}
	})
}

// LocalStream is owned by the Session. Peer links only borrow its tracks.
type LocalStream struct {
	Tracks []*LocalTrack
}

func (s *LocalStream) Track(kind webrtc.RTPCodecType) *LocalTrack {
	if s == nil {
		return nil
	}
	for _, t := range s.Tracks {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

func (s *LocalStream) Has(kind webrtc.RTPCodecType) bool { return s.Track(kind) != nil }

// SetEnabled toggles every track of kind. It reports whether one existed.
func (s *LocalStream) SetEnabled(kind webrtc.RTPCodecType, v bool) bool {
	t := s.Track(kind)
	if t == nil {
		return false
	}
	t.SetEnabled(v)
	return true
}

func (s *LocalStream) Release() {
	if s == nil {
		return
	}
	for _, t := range s.Tracks {
		t.Stop()
	}
}

// AcquireMedia walks chain until src grants a request. The last step of
// DegradeChain asks for nothing, so media never aborts a join.
func AcquireMedia(ctx context.Context, src MediaSource, chain []MediaRequest) (*LocalStream, MediaOutcome, error) {
	var out MediaOutcome
	for _, req := range chain {
		if err := ctx.Err(); err != nil {
			return nil, out, err
		}
		if !req.Audio && !req.Video {
			out.Granted = req
			out.Attempts = append(out.Attempts, req.String()+": ok")
			return &LocalStream{}, out, nil
		}
		stream, err := src.Acquire(ctx, req)
		if err != nil {
			out.Attempts = append(out.Attempts, req.String()+": "+err.Error())
			log.Warn().Err(err).Str("module", "client.media").Str("request", req.String()).Msg("media request denied, degrading")
			if ctx.Err() != nil {
				return nil, out, ctx.Err()
			}
			continue
		}
		out.Granted = req
		out.Attempts = append(out.Attempts, req.String()+": ok")
		return stream, out, nil
	}
	return nil, out, fmt.Errorf("%w: %s", domain.ErrMediaAccess, strings.Join(out.Attempts, "; "))
}

// Chain drops the steps that ask for kinds the user switched off.
func (c Config) Chain() []MediaRequest {
	var chain []MediaRequest
	for _, req := range DegradeChain {
		if c.DisableAudio && req.Audio || c.DisableVideo && req.Video {
			continue
		}
		chain = append(chain, req)
	}
	if c.DisableAudio && !c.DisableVideo {
		// audio is off but video alone may still be granted
		chain = append([]MediaRequest{{Video: true}}, chain...)
	}
	return chain
}
