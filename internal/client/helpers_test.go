package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	in   chan protocol.Message
	once sync.Once

	mu     sync.Mutex
	sent   []protocol.Message
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan protocol.Message, 512)}
}

// joinedConn answers the join with a joined frame as soon as it is dialed.
func joinedConn(self domain.UserID, admin bool, others ...domain.UserID) *fakeConn {
	c := newFakeConn()
	p := protocol.JoinedPayload{
		RoomID:       "r1",
		Self:         domain.ParticipantDTO{ID: self, Name: string(self), IsAdmin: admin},
		IsAdmin:      admin,
		Participants: []domain.ParticipantDTO{},
	}
	for _, id := range others {
		p.Participants = append(p.Participants, domain.ParticipantDTO{ID: id, Name: string(id)})
	}
	c.push(protocol.TypeJoined, p)
	return c
}

func (c *fakeConn) Send(typ string, payload any) error {
	raw, err := protocol.Encode(typ, payload)
	if err != nil {
		return err
	}
	var m protocol.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrSessionClosed
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeConn) Incoming() <-chan protocol.Message { return c.in }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) push(typ string, payload any) {
	c.in <- protocol.New(typ, payload)
}

func (c *fakeConn) pushSignal(from domain.UserID, p SignalPayload) {
	raw, _ := json.Marshal(p)
	c.push(protocol.TypeSignal, protocol.SignalIn{From: from, Payload: raw})
}

// drop simulates the server side going away.
func (c *fakeConn) drop() {
	c.once.Do(func() { close(c.in) })
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sentOf(typ string) []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Message
	for _, m := range c.sent {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// signalsTo decodes the signal payloads sent to one remote.
func (c *fakeConn) signalsTo(t *testing.T, to domain.UserID) []SignalPayload {
	t.Helper()
	var out []SignalPayload
	for _, m := range c.sentOf(protocol.TypeSignal) {
		var so protocol.SignalOut
		require.NoError(t, m.Decode(&so))
		if so.To != to {
			continue
		}
		var p SignalPayload
		require.NoError(t, json.Unmarshal(so.Payload, &p))
		out = append(out, p)
	}
	return out
}

type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func newFakeTransport(conns ...*fakeConn) *fakeTransport {
	return &fakeTransport{conns: conns}
}

func (t *fakeTransport) add(c *fakeConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns = append(t.conns, c)
}

func (t *fakeTransport) Dial(ctx context.Context) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if len(t.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := t.conns[0]
	t.conns = t.conns[1:]
	return c, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

type fakeNeg struct {
	remote domain.UserID
	ev     LinkEvents

	mu         sync.Mutex
	offers     []string
	answers    []string
	candidates []string
	closed     bool
	failApply  error
}

func (n *fakeNeg) CreateOffer() (string, error) { return "offer:" + string(n.remote), nil }

func (n *fakeNeg) ApplyOffer(sdp string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failApply != nil {
		return "", n.failApply
	}
	n.offers = append(n.offers, sdp)
	return "answer:" + string(n.remote), nil
}

func (n *fakeNeg) ApplyAnswer(sdp string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.answers = append(n.answers, sdp)
	return nil
}

func (n *fakeNeg) AddICECandidate(c webrtc.ICECandidateInit) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.candidates = append(n.candidates, c.Candidate)
	return nil
}

func (n *fakeNeg) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

func (n *fakeNeg) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

func (n *fakeNeg) gotCandidates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.candidates...)
}

type fakeLinks struct {
	mu   sync.Mutex
	negs []*fakeNeg
}

func (f *fakeLinks) New(remote domain.UserID, _ *LocalStream, ev LinkEvents) (Negotiator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := &fakeNeg{remote: remote, ev: ev}
	f.negs = append(f.negs, n)
	return n, nil
}

func (f *fakeLinks) of(remote domain.UserID) []*fakeNeg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeNeg
	for _, n := range f.negs {
		if n.remote == remote {
			out = append(out, n)
		}
	}
	return out
}

type fakeMedia struct {
	denyAudio bool
	denyVideo bool
	stopped   atomic.Int32
}

func (m *fakeMedia) Acquire(_ context.Context, req MediaRequest) (*LocalStream, error) {
	if req.Audio && m.denyAudio || req.Video && m.denyVideo {
		return nil, domain.ErrMediaAccess
	}
	s := &LocalStream{}
	stop := func() { m.stopped.Add(1) }
	if req.Audio {
		s.Tracks = append(s.Tracks, NewLocalTrack(webrtc.RTPCodecTypeAudio, nil, stop))
	}
	if req.Video {
		s.Tracks = append(s.Tracks, NewLocalTrack(webrtc.RTPCodecTypeVideo, nil, stop))
	}
	return s, nil
}

type fakePlayback struct {
	mu  sync.Mutex
	got map[webrtc.RTPCodecType]int
}

func (p *fakePlayback) Play(_ domain.UserID, kind webrtc.RTPCodecType, _ []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.got == nil {
		p.got = make(map[webrtc.RTPCodecType]int)
	}
	p.got[kind]++
}

func (p *fakePlayback) count(kind webrtc.RTPCodecType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.got[kind]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RoomID = "r1"
	cfg.DisplayName = "tester"
	cfg.ConnectTimeout = 200 * time.Millisecond
	cfg.ReconnectBackoff = 10 * time.Millisecond
	cfg.RecreateDelay = 20 * time.Millisecond
	cfg.KeepAlive = time.Hour
	cfg.LivenessTimeout = time.Hour
	return cfg
}

type harness struct {
	t     *testing.T
	s     *Session
	tr    *fakeTransport
	links *fakeLinks
	media *fakeMedia
	play  *fakePlayback
	errc  chan error
}

func start(t *testing.T, cfg Config, tr *fakeTransport, media *fakeMedia) *harness {
	t.Helper()
	if media == nil {
		media = &fakeMedia{}
	}
	links := &fakeLinks{}
	play := &fakePlayback{}
	s := New(cfg, Deps{Transport: tr, Media: media, Links: links.New, Playback: play})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return &harness{t: t, s: s, tr: tr, links: links, media: media, play: play, errc: errc}
}

const wait = time.Second
const tick = 5 * time.Millisecond

func (h *harness) waitPhase(p Phase) View {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.s.Snapshot().Phase == p }, wait, tick, "phase %s", p)
	return h.s.Snapshot()
}

func (h *harness) waitFor(cond func(View) bool, msg string) View {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return cond(h.s.Snapshot()) }, wait, tick, msg)
	return h.s.Snapshot()
}

func (h *harness) result() error {
	h.t.Helper()
	select {
	case err := <-h.errc:
		return err
	case <-time.After(wait):
		h.t.Fatal("Run did not return")
		return nil
	}
}

func decode[T any](t *testing.T, m protocol.Message) T {
	t.Helper()
	var v T
	require.NoError(t, m.Decode(&v))
	return v
}
