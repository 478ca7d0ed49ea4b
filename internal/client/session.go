// Package client is the participant side of a room: it acquires local media,
// joins through the signaling hub and keeps one PeerLink per remote member.
//
// All session state is owned by the goroutine running Session.Run. Inbound
// frames, negotiator callbacks and public operations reach it as events on
// one channel, so the state has a single writer.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var errLiveness = errors.New("no traffic from server")

type Deps struct {
	Transport Transport
	Media     MediaSource
	Links     NegotiatorFactory
	// Playback is optional. Remote audio is withheld from it while deafened.
	Playback Playback
}

type Session struct {
	cfg  Config
	deps Deps

	events  chan func()
	updates chan View
	exited  chan struct{}
	running atomic.Bool

	mu   sync.RWMutex
	view View

	// owned by the Run goroutine
	ctx          context.Context
	phase        Phase
	state        ClientSessionState
	reason       string
	lastErr      error
	exitErr      error
	self         domain.UserID
	conn         Conn
	epoch        int
	lastSeen     time.Time
	stream       *LocalStream
	media        MediaOutcome
	participants map[domain.UserID]domain.ParticipantDTO
	links        map[domain.UserID]*PeerLink
	recreated    map[domain.UserID]int
	pending      map[domain.UserID]bool
	chat         []domain.Message
	roomCount    int
	dialing      *dialRun

	// read by negotiator goroutines
	deafened atomic.Bool
}

// dialRun is one bounded sequence of dial-and-join attempts. Stopping it
// aborts the dial in flight and releases any conn the loop has not taken.
type dialRun struct {
	ctx    context.Context
	cancel context.CancelFunc
	limit  int
	n      int

	mu      sync.Mutex
	stopped bool
	conn    Conn
}

func (r *dialRun) stop() {
	r.cancel()
	r.mu.Lock()
	r.stopped = true
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	release(conn)
}

// hold parks a joined conn until the loop takes it. False once stopped.
func (r *dialRun) hold(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.conn = conn
	return true
}

func (r *dialRun) take() Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn := r.conn
	r.conn = nil
	return conn
}

// release leaves the room on a conn nobody will use.
func release(conn Conn) {
	if conn != nil {
		_ = conn.Send(protocol.TypeLeave, nil)
		_ = conn.Close()
	}
}

func New(cfg Config, deps Deps) *Session {
	s := &Session{
		cfg:          cfg.withDefaults(),
		deps:         deps,
		events:       make(chan func(), 64),
		updates:      make(chan View, 1),
		exited:       make(chan struct{}),
		participants: make(map[domain.UserID]domain.ParticipantDTO),
		links:        make(map[domain.UserID]*PeerLink),
		recreated:    make(map[domain.UserID]int),
		pending:      make(map[domain.UserID]bool),
	}
	s.view = View{Phase: PhaseIdle, RoomID: s.cfg.RoomID}
	return s
}

// Snapshot returns the latest published view.
func (s *Session) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Updates delivers views, latest wins. Intermediate views may be skipped.
func (s *Session) Updates() <-chan View { return s.updates }

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.exited }

// Run drives the session until it leaves the room, is removed from it or ctx
// ends. A failed connection parks the session in PhaseFailed until Retry.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session already started")
	}
	defer close(s.exited)
	s.ctx = ctx
	defer s.teardown()

	s.setPhase(PhaseConnecting)
	if err := s.acquireMedia(); err != nil {
		return err
	}
	s.startDialing(1, false)
	return s.loop()
}

func (s *Session) acquireMedia() error {
	if s.deps.Media == nil {
		s.stream = &LocalStream{}
	} else {
		stream, outcome, err := AcquireMedia(s.ctx, s.deps.Media, s.cfg.Chain())
		if err != nil {
			if s.ctx.Err() != nil {
				return s.ctx.Err()
			}
			s.lastErr = err
			stream = &LocalStream{}
		}
		s.stream, s.media = stream, outcome
	}
	s.state.IsMuted = !s.stream.Has(webrtc.RTPCodecTypeAudio)
	s.state.IsVideoOff = !s.stream.Has(webrtc.RTPCodecTypeVideo)
	log.Info().Str("module", "client").Str("media", s.media.Granted.String()).Msg("local media ready")
	return nil
}

func (s *Session) loop() error {
	ka := time.NewTicker(s.cfg.KeepAlive)
	defer ka.Stop()

	for {
		s.publish()
		if s.phase.Terminal() {
			return s.exitErr
		}
		var incoming <-chan protocol.Message
		if s.conn != nil {
			incoming = s.conn.Incoming()
		}
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case fn := <-s.events:
			fn()
		case m, ok := <-incoming:
			if !ok {
				s.dropped(domain.ErrSessionClosed)
				continue
			}
			s.lastSeen = time.Now()
			s.handle(m)
		case <-ka.C:
			s.keepAlive()
		}
	}
}

// startDialing begins up to limit attempts, each preceded by ReconnectBackoff
// when backoff is set. Dials run off the event loop so Leave stays responsive.
func (s *Session) startDialing(limit int, backoff bool) {
	s.stopDialing()
	ctx, cancel := context.WithCancel(s.ctx)
	s.dialing = &dialRun{ctx: ctx, cancel: cancel, limit: limit}
	s.nextAttempt(s.dialing, backoff)
}

func (s *Session) stopDialing() {
	if s.dialing != nil {
		s.dialing.stop()
		s.dialing = nil
	}
}

func (s *Session) nextAttempt(run *dialRun, backoff bool) {
	if !backoff {
		s.dial(run)
		return
	}
	time.AfterFunc(s.cfg.ReconnectBackoff, func() {
		s.post(func() { s.dial(run) })
	})
}

// dial launches one attempt with the media flags current at this moment.
func (s *Session) dial(run *dialRun) {
	if s.dialing != run || run.ctx.Err() != nil {
		return
	}
	run.n++
	join := s.joinPayload()
	go func() {
		conn, joined, err := s.dialAndJoin(run.ctx, join)
		if !run.hold(conn) {
			release(conn)
			return
		}
		s.post(func() { s.dialed(run, joined, err) })
	}()
}

// dialed applies the outcome of one attempt on the event loop.
func (s *Session) dialed(run *dialRun, joined *protocol.JoinedPayload, err error) {
	conn := run.take()
	if s.dialing != run || run.ctx.Err() != nil {
		release(conn)
		return
	}
	if err == nil {
		s.stopDialing()
		s.joined(conn, joined)
		return
	}
	log.Warn().Err(err).Str("module", "client").Str("room", string(s.cfg.RoomID)).
		Int("attempt", run.n).Int("of", run.limit).Msg("connect failed")
	if run.n < run.limit {
		s.nextAttempt(run, true)
		return
	}
	s.stopDialing()
	if run.limit > 1 {
		s.lastErr = fmt.Errorf("%w after %d attempts: %w", domain.ErrConnectionFailed, run.n, err)
	} else {
		s.lastErr = fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err)
	}
	s.setPhase(PhaseFailed)
}

func (s *Session) joinPayload() protocol.JoinPayload {
	return protocol.JoinPayload{
		RoomID:      s.cfg.RoomID,
		DisplayName: s.cfg.DisplayName,
		AvatarURL:   s.cfg.AvatarURL,
		IsMuted:     s.state.IsMuted,
		IsVideoOff:  s.state.IsVideoOff,
	}
}

// dialAndJoin is bounded by ConnectTimeout from dial to the joined reply.
// It touches no session state and runs on its own goroutine.
func (s *Session) dialAndJoin(parent context.Context, join protocol.JoinPayload) (Conn, *protocol.JoinedPayload, error) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.ConnectTimeout)
	defer cancel()

	conn, err := s.deps.Transport.Dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := conn.Send(protocol.TypeJoin, join); err != nil {
		conn.Close()
		return nil, nil, err
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, nil, ctx.Err()
		case m, ok := <-conn.Incoming():
			if !ok {
				return nil, nil, domain.ErrSessionClosed
			}
			switch m.Type {
			case protocol.TypeJoined:
				var p protocol.JoinedPayload
				if err := m.Decode(&p); err != nil {
					conn.Close()
					return nil, nil, err
				}
				return conn, &p, nil
			case protocol.TypeError:
				var p protocol.ErrorPayload
				_ = m.Decode(&p)
				conn.Close()
				return nil, nil, &ServerError{Code: p.Code, Message: p.Message}
			default:
				log.Debug().Str("module", "client").Str("type", m.Type).Msg("frame before joined ignored")
			}
		}
	}
}

func (s *Session) joined(conn Conn, p *protocol.JoinedPayload) {
	s.conn = conn
	s.epoch++
	s.self = p.Self.ID
	s.lastSeen = time.Now()
	s.lastErr = nil
	s.state.IsConnected = true
	s.state.IsAdmin = p.IsAdmin
	clear(s.participants)
	for _, dto := range p.Participants {
		if dto.ID != s.self {
			s.participants[dto.ID] = dto
		}
	}
	s.roomCount = len(p.Participants)
	log.Info().Str("module", "client").Str("room", string(p.RoomID)).Str("user", string(s.self)).
		Bool("admin", p.IsAdmin).Int("participants", len(s.participants)).Msg("joined")
	s.setPhase(PhaseConnected)
}

// dropped starts the bounded reconnect policy after an unplanned transport loss.
func (s *Session) dropped(cause error) {
	log.Warn().Err(cause).Str("module", "client").Msg("signaling connection lost")
	s.closeConn()
	s.closeLinks()
	s.state.IsConnected = false
	s.setPhase(PhaseReconnecting)
	s.startDialing(s.cfg.ReconnectAttempts, true)
}

func (s *Session) keepAlive() {
	if s.conn == nil {
		return
	}
	if time.Since(s.lastSeen) > s.cfg.LivenessTimeout {
		s.dropped(errLiveness)
		return
	}
	s.send(protocol.TypeKeepAlive, protocol.NewKeepAlive(time.Now()))
}

func (s *Session) handle(m protocol.Message) {
	switch m.Type {
	case protocol.TypeParticipantJoined:
		var p protocol.ParticipantJoinedPayload
		if s.decode(m, &p) && p.Participant.ID != s.self {
			s.participants[p.Participant.ID] = p.Participant
			s.roomCount = len(s.participants) + 1
			delete(s.recreated, p.Participant.ID)
			s.initiate(p.Participant.ID)
		}
	case protocol.TypeParticipantLeft:
		var p protocol.ParticipantLeftPayload
		if s.decode(m, &p) {
			delete(s.participants, p.UserID)
			s.roomCount = len(s.participants) + 1
			delete(s.recreated, p.UserID)
			s.closeLink(p.UserID)
		}
	case protocol.TypeStatusChanged:
		var p protocol.StatusChangedPayload
		if s.decode(m, &p) {
			if dto, ok := s.participants[p.UserID]; ok {
				dto.IsMuted, dto.IsVideoOff = p.IsMuted, p.IsVideoOff
				s.participants[p.UserID] = dto
			}
		}
	case protocol.TypeParticipants:
		var list []domain.ParticipantDTO
		if s.decode(m, &list) {
			s.resync(list)
		}
	case protocol.TypeNewMessage:
		var msg domain.Message
		if s.decode(m, &msg) {
			s.chat = append(s.chat, msg)
			if n := len(s.chat); n > maxChatLog {
				s.chat = slices.Clone(s.chat[n-maxChatLog:])
			}
		}
	case protocol.TypeSignal:
		var p protocol.SignalIn
		if s.decode(m, &p) {
			s.signal(p.From, p.Payload)
		}
	case protocol.TypeForcedMute:
		s.state.IsMuted = true
		s.stream.SetEnabled(webrtc.RTPCodecTypeAudio, false)
		log.Info().Str("module", "client").Msg("muted by admin")
	case protocol.TypeForcedVideoOff:
		s.state.IsVideoOff = true
		s.stream.SetEnabled(webrtc.RTPCodecTypeVideo, false)
		log.Info().Str("module", "client").Msg("video disabled by admin")
	case protocol.TypeKicked:
		s.terminate(PhaseKicked, ErrKicked)
	case protocol.TypeRoomDeleted:
		s.terminate(PhaseRoomDeleted, ErrRoomDeleted)
	case protocol.TypeReplaced:
		s.terminate(PhaseDisconnected, ErrReplaced)
	case protocol.TypeLeft:
		s.terminate(PhaseDisconnected, nil)
	case protocol.TypeRoomParticipantCount:
		var p protocol.RoomCountPayload
		if s.decode(m, &p) && p.RoomID == s.cfg.RoomID {
			s.roomCount = p.Count
		}
	case protocol.TypeError:
		var p protocol.ErrorPayload
		if s.decode(m, &p) {
			s.lastErr = &ServerError{Code: p.Code, Message: p.Message}
			log.Warn().Str("module", "client").Str("code", p.Code).Msg(p.Message)
		}
	case protocol.TypeKeepAliveResponse:
	default:
		log.Debug().Str("module", "client").Str("type", m.Type).Msg("unknown frame")
	}
}

func (s *Session) decode(m protocol.Message, v any) bool {
	if err := m.Decode(v); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("type", m.Type).Msg("bad payload")
		return false
	}
	return true
}

// resync replaces the participant map and drops links to members that left.
func (s *Session) resync(list []domain.ParticipantDTO) {
	clear(s.participants)
	for _, dto := range list {
		if dto.ID != s.self {
			s.participants[dto.ID] = dto
		}
	}
	for id := range s.links {
		if _, ok := s.participants[id]; !ok {
			s.closeLink(id)
		}
	}
}

// terminate ends the session for good and releases local media.
func (s *Session) terminate(p Phase, cause error) {
	s.stopDialing()
	s.closeLinks()
	s.closeConn()
	s.stream.Release()
	s.state.IsConnected = false
	s.exitErr = cause
	if cause != nil {
		s.reason = cause.Error()
	}
	s.setPhase(p)
}

func (s *Session) teardown() {
	s.stopDialing()
	s.closeLinks()
	s.closeConn()
	s.stream.Release()
	s.state.IsConnected = false
	if !s.phase.Terminal() {
		s.setPhase(PhaseDisconnected)
	}
	s.publish()
}

func (s *Session) closeConn() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *Session) send(typ string, payload any) {
	if s.conn == nil {
		return
	}
	if err := s.conn.Send(typ, payload); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("type", typ).Msg("send failed")
	}
}

func (s *Session) setPhase(p Phase) {
	if s.phase == p {
		return
	}
	log.Info().Str("module", "client").Str("from", s.phase.String()).Str("to", p.String()).Msg("phase")
	s.phase = p
}

func (s *Session) publish() {
	links := make(map[domain.UserID]LinkState, len(s.links))
	for id, l := range s.links {
		links[id] = l.state
	}
	v := View{
		ClientSessionState: s.state,
		Phase:              s.phase,
		Reason:             s.reason,
		RoomID:             s.cfg.RoomID,
		Self:               s.self,
		Participants:       maps.Clone(s.participants),
		Links:              links,
		Chat:               slices.Clone(s.chat),
		Media:              s.media,
		RoomCount:          s.roomCount,
		LastError:          s.lastErr,
	}
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()

	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- v:
	default:
	}
}

// do runs fn on the session goroutine and waits for it.
func (s *Session) do(fn func()) error {
	done := make(chan struct{})
	select {
	case s.events <- func() { fn(); close(done) }:
	case <-s.exited:
		return domain.ErrSessionClosed
	}
	select {
	case <-done:
		return nil
	case <-s.exited:
		return domain.ErrSessionClosed
	}
}

// post queues fn without waiting. Used from negotiator and timer goroutines.
func (s *Session) post(fn func()) {
	go func() {
		select {
		case s.events <- fn:
		case <-s.exited:
		}
	}()
}

func (s *Session) ToggleMute() error {
	return s.do(func() {
		if !s.stream.Has(webrtc.RTPCodecTypeAudio) {
			s.state.IsMuted = true
			return
		}
		s.state.IsMuted = !s.state.IsMuted
		s.stream.SetEnabled(webrtc.RTPCodecTypeAudio, !s.state.IsMuted)
		s.sendStatus()
	})
}

func (s *Session) ToggleVideo() error {
	return s.do(func() {
		if !s.stream.Has(webrtc.RTPCodecTypeVideo) {
			s.state.IsVideoOff = true
			return
		}
		s.state.IsVideoOff = !s.state.IsVideoOff
		s.stream.SetEnabled(webrtc.RTPCodecTypeVideo, !s.state.IsVideoOff)
		s.sendStatus()
	})
}

func (s *Session) ToggleDeafen() error {
	return s.do(func() {
		s.state.IsDeafened = !s.state.IsDeafened
		s.deafened.Store(s.state.IsDeafened)
	})
}

func (s *Session) ToggleChat() error {
	return s.do(func() { s.state.IsChatVisible = !s.state.IsChatVisible })
}

func (s *Session) sendStatus() {
	s.send(protocol.TypeSetStatus, protocol.StatusPayload{IsMuted: s.state.IsMuted, IsVideoOff: s.state.IsVideoOff})
}

func (s *Session) SendMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrInvalidRequest
	}
	var err error
	if derr := s.do(func() {
		if s.conn == nil {
			err = domain.ErrSessionClosed
			return
		}
		err = s.conn.Send(protocol.TypeSendMessage, protocol.SendMessagePayload{Content: text})
	}); derr != nil {
		return derr
	}
	return err
}

func (s *Session) AdminMute(target domain.UserID) error {
	return s.adminAction(target, domain.ActionMute)
}

func (s *Session) AdminDisableVideo(target domain.UserID) error {
	return s.adminAction(target, domain.ActionDisableVideo)
}

func (s *Session) AdminKick(target domain.UserID) error {
	return s.adminAction(target, domain.ActionKick)
}

func (s *Session) adminAction(target domain.UserID, action domain.AdminAction) error {
	return s.do(func() {
		if !s.state.IsAdmin {
			return
		}
		s.send(protocol.TypeAdminAction, protocol.AdminActionPayload{Target: target, Action: action})
	})
}

// DeleteRoom asks the hub to close the room for everyone. No-op for non-admins.
func (s *Session) DeleteRoom() error {
	return s.do(func() {
		if s.state.IsAdmin {
			s.send(protocol.TypeDeleteRoom, nil)
		}
	})
}

// Resync asks the hub for a full participant snapshot.
func (s *Session) Resync() error {
	return s.do(func() { s.send(protocol.TypeGetParticipants, nil) })
}

// Leave exits the room. Run returns nil afterwards.
func (s *Session) Leave() error {
	return s.do(func() {
		s.send(protocol.TypeLeave, nil)
		s.terminate(PhaseDisconnected, nil)
	})
}

// Retry makes a new connection attempt from PhaseFailed.
func (s *Session) Retry() error {
	return s.do(func() {
		if s.phase != PhaseFailed {
			return
		}
		s.setPhase(PhaseConnecting)
		s.startDialing(1, false)
	})
}

// signal applies a relayed negotiation payload to the link for from.
func (s *Session) signal(from domain.UserID, raw json.RawMessage) {
	var p SignalPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Debug().Err(err).Str("module", "peerlink").Str("remote", string(from)).Msg("bad signal payload")
		return
	}
	link := s.links[from]
	switch p.Kind {
	case SignalOffer:
		if link != nil && link.state == LinkOfferSent && !yields(s.self, from) {
			log.Debug().Str("module", "peerlink").Str("remote", string(from)).Msg("offer collision, keeping ours")
			return
		}
		link = s.openLink(from, false)
		if link == nil {
			return
		}
		ans, err := link.answer(p.SDP)
		if err != nil {
			s.linkFailed(link, err)
			return
		}
		s.sendSignal(from, ans)
	case SignalAnswer:
		if link == nil {
			return
		}
		if err := link.acceptAnswer(p.SDP); err != nil {
			s.linkFailed(link, err)
		}
	case SignalCandidate:
		if link == nil || p.Candidate == nil {
			return
		}
		if err := link.addCandidate(*p.Candidate); err != nil {
			s.linkFailed(link, err)
		}
	default:
		log.Debug().Str("module", "peerlink").Str("remote", string(from)).Str("kind", p.Kind).Msg("unknown signal kind")
	}
}

// yields reports whether self gives way when both sides sent an offer.
func yields(self, remote domain.UserID) bool { return self < remote }

func (s *Session) sendSignal(to domain.UserID, p SignalPayload) {
	raw, err := json.Marshal(p)
	if err != nil {
		log.Error().Err(err).Str("module", "peerlink").Msg("encode signal")
		return
	}
	s.send(protocol.TypeSignal, protocol.SignalOut{To: to, Payload: raw})
}

// initiate opens a link toward remote and sends the first offer.
func (s *Session) initiate(remote domain.UserID) {
	link := s.openLink(remote, true)
	if link == nil {
		return
	}
	offer, err := link.offer()
	if err != nil {
		s.linkFailed(link, err)
		return
	}
	s.sendSignal(remote, offer)
}

// openLink replaces any existing link to remote with a fresh one.
func (s *Session) openLink(remote domain.UserID, initiator bool) *PeerLink {
	s.closeLink(remote)
	if s.deps.Links == nil {
		return nil
	}
	link := newPeerLink(remote, initiator)
	s.links[remote] = link
	neg, err := s.deps.Links(remote, s.stream, s.linkEvents(link))
	if err != nil {
		s.linkFailed(link, domain.NewOpError("create link", fmt.Errorf("%w: %v", domain.ErrNegotiation, err)))
		return nil
	}
	link.neg = neg
	return link
}

func (s *Session) linkEvents(link *PeerLink) LinkEvents {
	current := func() bool { return s.links[link.remote] == link && link.state != LinkClosed }
	return LinkEvents{
		OnICECandidate: func(c webrtc.ICECandidateInit) {
			s.post(func() {
				if current() {
					s.sendSignal(link.remote, SignalPayload{Kind: SignalCandidate, Candidate: &c})
				}
			})
		},
		OnConnected: func() {
			s.post(func() {
				if current() {
					link.connected()
					log.Info().Str("module", "peerlink").Str("remote", string(link.remote)).Msg("open")
				}
			})
		},
		OnFailed: func(err error) {
			s.post(func() {
				if current() {
					s.linkFailed(link, domain.NewOpError("connection", fmt.Errorf("%w: %v", domain.ErrNegotiation, err)))
				}
			})
		},
		OnTrack: func(t RemoteTrack) {
			s.post(func() {
				if current() {
					link.addTrack(t)
				}
			})
		},
		OnMedia: func(kind webrtc.RTPCodecType, packet []byte) {
			if s.deps.Playback == nil {
				return
			}
			if kind == webrtc.RTPCodecTypeAudio && s.deafened.Load() {
				return
			}
			s.deps.Playback.Play(link.remote, kind, packet)
		},
	}
}

// linkFailed closes link and schedules one recreation per remote.
func (s *Session) linkFailed(link *PeerLink, err error) {
	remote := link.remote
	log.Warn().Err(err).Str("module", "peerlink").Str("remote", string(remote)).Msg("link failed")
	link.close()
	if s.recreated[remote] >= 1 || s.pending[remote] {
		return
	}
	s.recreated[remote]++
	s.pending[remote] = true
	epoch := s.epoch
	time.AfterFunc(s.cfg.RecreateDelay, func() {
		s.post(func() {
			delete(s.pending, remote)
			if s.epoch != epoch || s.phase != PhaseConnected || s.conn == nil {
				return
			}
			if _, ok := s.participants[remote]; !ok {
				return
			}
			if cur := s.links[remote]; cur != nil && cur != link && cur.state != LinkClosed {
				return
			}
			log.Info().Str("module", "peerlink").Str("remote", string(remote)).Msg("recreating link")
			s.initiate(remote)
		})
	})
}

func (s *Session) closeLink(remote domain.UserID) {
	if l, ok := s.links[remote]; ok {
		l.close()
		delete(s.links, remote)
	}
}

func (s *Session) closeLinks() {
	for id := range s.links {
		s.closeLink(id)
	}
	clear(s.recreated)
	clear(s.pending)
}
