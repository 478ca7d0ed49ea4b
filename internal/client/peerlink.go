package client

import (
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Signal kinds carried inside the relayed payload. The hub never reads them.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// SignalPayload is the peer-to-peer negotiation message.
type SignalPayload struct {
	Kind      string                   `json:"kind"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// RemoteTrack describes one inbound media track of a peer link.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     webrtc.RTPCodecType
}

// LinkEvents are invoked from negotiator goroutines. OnMedia receives every
// inbound RTP packet; the slice is only valid during the call.
type LinkEvents struct {
	OnICECandidate func(webrtc.ICECandidateInit)
	OnConnected    func()
	OnFailed       func(error)
	OnTrack        func(RemoteTrack)
	OnMedia        func(kind webrtc.RTPCodecType, packet []byte)
}

// Playback consumes remote media. Play is called from negotiator goroutines
// and must not keep packet.
type Playback interface {
	Play(remote domain.UserID, kind webrtc.RTPCodecType, packet []byte)
}

// Negotiator is the media-negotiation endpoint behind one peer link.
// Candidates are trickled: CreateOffer and ApplyOffer return without
// waiting for gathering.
type Negotiator interface {
	CreateOffer() (string, error)
	ApplyOffer(sdp string) (answer string, err error)
	ApplyAnswer(sdp string) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	Close() error
}

// NegotiatorFactory builds a Negotiator for remote. stream is borrowed.
type NegotiatorFactory func(remote domain.UserID, stream *LocalStream, ev LinkEvents) (Negotiator, error)

type LinkState int

const (
	LinkNew LinkState = iota
	LinkOfferSent
	LinkOfferReceived
	LinkNegotiating
	LinkOpen
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkNew:
		return "new"
	case LinkOfferSent:
		return "offer-sent"
	case LinkOfferReceived:
		return "offer-received"
	case LinkNegotiating:
		return "negotiating"
	case LinkOpen:
		return "open"
	case LinkClosed:
		return "closed"
	}
	return fmt.Sprintf("LinkState(%d)", int(s))
}

// PeerLink negotiates media with one remote participant. It is owned by the
// session loop and is not safe for concurrent use.
type PeerLink struct {
	remote    domain.UserID
	initiator bool
	state     LinkState
	neg       Negotiator
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	tracks    []RemoteTrack
}

func newPeerLink(remote domain.UserID, initiator bool) *PeerLink {
	return &PeerLink{remote: remote, initiator: initiator, state: LinkNew}
}

func (l *PeerLink) Remote() domain.UserID { return l.remote }

func (l *PeerLink) State() LinkState { return l.state }

func (l *PeerLink) Initiator() bool { return l.initiator }

// offer starts negotiation from the initiating side.
func (l *PeerLink) offer() (SignalPayload, error) {
	sdp, err := l.neg.CreateOffer()
	if err != nil {
		return SignalPayload{}, l.fail("create offer", err)
	}
	l.state = LinkOfferSent
	return SignalPayload{Kind: SignalOffer, SDP: sdp}, nil
}

// answer applies a remote offer and returns the local answer.
func (l *PeerLink) answer(sdp string) (SignalPayload, error) {
	l.state = LinkOfferReceived
	ans, err := l.neg.ApplyOffer(sdp)
	if err != nil {
		return SignalPayload{}, l.fail("apply offer", err)
	}
	l.remoteSet = true
	l.state = LinkNegotiating
	if err := l.flush(); err != nil {
		return SignalPayload{}, err
	}
	return SignalPayload{Kind: SignalAnswer, SDP: ans}, nil
}

func (l *PeerLink) acceptAnswer(sdp string) error {
	if l.state != LinkOfferSent {
		log.Debug().Str("module", "peerlink").Str("remote", string(l.remote)).Str("state", l.state.String()).Msg("unexpected answer ignored")
		return nil
	}
	if err := l.neg.ApplyAnswer(sdp); err != nil {
		return l.fail("apply answer", err)
	}
	l.remoteSet = true
	l.state = LinkNegotiating
	return l.flush()
}

// addCandidate buffers c until the remote description is set.
func (l *PeerLink) addCandidate(c webrtc.ICECandidateInit) error {
	if !l.remoteSet {
		l.pending = append(l.pending, c)
		return nil
	}
	if err := l.neg.AddICECandidate(c); err != nil {
		return l.fail("add candidate", err)
	}
	return nil
}

func (l *PeerLink) flush() error {
	pending := l.pending
	l.pending = nil
	for _, c := range pending {
		if err := l.neg.AddICECandidate(c); err != nil {
			return l.fail("add candidate", err)
		}
	}
	return nil
}

func (l *PeerLink) connected() {
	if l.state != LinkClosed {
		l.state = LinkOpen
	}
}

func (l *PeerLink) addTrack(t RemoteTrack) {
	if l.state != LinkClosed {
		l.tracks = append(l.tracks, t)
	}
}

// Tracks returns a copy of the remote tracks received so far.
func (l *PeerLink) Tracks() []RemoteTrack {
	return append([]RemoteTrack(nil), l.tracks...)
}

// fail closes the link and reports a negotiation error.
func (l *PeerLink) fail(op string, err error) error {
	l.close()
	return domain.NewOpError(op, fmt.Errorf("%w: %v", domain.ErrNegotiation, err))
}

// close releases the negotiator and the remote stream.
func (l *PeerLink) close() {
	if l.state == LinkClosed {
		return
	}
	l.state = LinkClosed
	l.pending = nil
	l.tracks = nil
	if l.neg == nil {
		return
	}
	if err := l.neg.Close(); err != nil {
		log.Debug().Err(err).Str("module", "peerlink").Str("remote", string(l.remote)).Msg("close")
	}
}
