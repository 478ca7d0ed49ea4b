// Package rtc implements client.Negotiator and client.MediaSource on pion.
package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Huddle/internal/client"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func DefaultWebRTCConfig(stun ...string) webrtc.Configuration {
	if len(stun) == 0 {
		stun = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stun}},
	}
}

// Factory creates one PeerConnection per remote participant.
type Factory struct {
	cfg webrtc.Configuration
}

func NewFactory(cfg webrtc.Configuration) *Factory {
	return &Factory{cfg: cfg}
}

// New satisfies client.NegotiatorFactory.
func (f *Factory) New(remote domain.UserID, stream *client.LocalStream, ev client.LinkEvents) (client.Negotiator, error) {
	return NewWebRTCConnection(f.cfg, remote, stream, ev)
}

type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	remote domain.UserID
	ev     client.LinkEvents
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewWebRTCConnection attaches the local tracks and adds a recvonly
// transceiver for each kind the local stream does not send, so remote media
// is always negotiable.
func NewWebRTCConnection(cfg webrtc.Configuration, remote domain.UserID, stream *client.LocalStream, ev client.LinkEvents) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &WebRTCConnection{pc: pc, remote: remote, ev: ev, ctx: ctx, cancel: cancel}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if t := stream.Track(kind); t != nil && t.Sink() != nil {
			sender, err := pc.AddTrack(t.Sink())
			if err != nil {
				c.Close()
				return nil, err
			}
			go drainRTCP(ctx, sender)
			continue
		}
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
			c.Close()
			return nil, err
		}
	}
	c.start()
	return c, nil
}

func (c *WebRTCConnection) start() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "webrtc").Str("remote", string(c.remote)).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			if c.ev.OnConnected != nil {
				c.ev.OnConnected()
			}
		case webrtc.PeerConnectionStateFailed:
			if c.ev.OnFailed != nil {
				c.ev.OnFailed(errors.New("peer connection failed"))
			}
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.ev.OnICECandidate != nil {
			c.ev.OnICECandidate(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("remote", string(c.remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.ev.OnTrack != nil {
			c.ev.OnTrack(client.RemoteTrack{ID: track.ID(), StreamID: track.StreamID(), Kind: track.Kind()})
		}
		go drainTrack(c.ctx, track, c.ev.OnMedia)
	})
}

// CreateOffer sets and returns the local offer. Candidates follow through
// OnICECandidate.
func (c *WebRTCConnection) CreateOffer() (string, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (c *WebRTCConnection) ApplyOffer(sdp string) (string, error) {
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return "", err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (c *WebRTCConnection) ApplyAnswer(sdp string) error {
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		err = c.pc.Close()
		if err != nil {
			log.Error().Err(err).Str("module", "webrtc").Str("remote", string(c.remote)).Msg("close error")
		} else {
			log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Msg("closed")
		}
	})
	return err
}

// drainTrack reads remote RTP so the receive buffers never fill and hands
// each packet to onMedia when set.
func drainTrack(ctx context.Context, track *webrtc.TrackRemote, onMedia func(webrtc.RTPCodecType, []byte)) {
	buf := make([]byte, 1500)
	kind := track.Kind()
	for ctx.Err() == nil {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		if onMedia != nil {
			onMedia(kind, buf[:n])
		}
	}
}

// drainRTCP reads sender reports so interceptors keep running.
func drainRTCP(ctx context.Context, sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for ctx.Err() == nil {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
