package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	t.Run("join carries profile and media flags", func(t *testing.T) {
		c := joinedConn("u1", true, "u2")
		h := start(t, testConfig(), newFakeTransport(c), nil)

		v := h.waitPhase(PhaseConnected)
		assert.True(t, v.IsConnected)
		assert.True(t, v.IsAdmin)
		assert.Equal(t, domain.UserID("u1"), v.Self)
		assert.Contains(t, v.Participants, domain.UserID("u2"))
		assert.NotContains(t, v.Participants, domain.UserID("u1"))

		joins := c.sentOf(protocol.TypeJoin)
		require.Len(t, joins, 1)
		jp := decode[protocol.JoinPayload](t, joins[0])
		assert.Equal(t, domain.RoomID("r1"), jp.RoomID)
		assert.Equal(t, "tester", jp.DisplayName)
		assert.False(t, jp.IsMuted)
		assert.False(t, jp.IsVideoOff)
	})

	t.Run("newcomer waits for offers", func(t *testing.T) {
		c := joinedConn("u1", false, "u2", "u3")
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)

		assert.Empty(t, c.sentOf(protocol.TypeSignal))
		assert.Empty(t, h.links.of("u2"))
	})

	t.Run("denied camera degrades to audio", func(t *testing.T) {
		c := joinedConn("u1", false)
		h := start(t, testConfig(), newFakeTransport(c), &fakeMedia{denyVideo: true})

		v := h.waitPhase(PhaseConnected)
		assert.Equal(t, MediaRequest{Audio: true}, v.Media.Granted)
		assert.False(t, v.IsMuted)
		assert.True(t, v.IsVideoOff)
		jp := decode[protocol.JoinPayload](t, c.sentOf(protocol.TypeJoin)[0])
		assert.True(t, jp.IsVideoOff)
		assert.False(t, jp.IsMuted)
	})

	t.Run("no devices still joins", func(t *testing.T) {
		c := joinedConn("u1", false)
		h := start(t, testConfig(), newFakeTransport(c), &fakeMedia{denyAudio: true, denyVideo: true})

		v := h.waitPhase(PhaseConnected)
		assert.Equal(t, MediaRequest{}, v.Media.Granted)
		assert.Len(t, v.Media.Attempts, 3)
		assert.True(t, v.IsMuted)
		assert.True(t, v.IsVideoOff)
	})

	t.Run("refused dial fails and retry recovers", func(t *testing.T) {
		tr := newFakeTransport()
		h := start(t, testConfig(), tr, nil)

		v := h.waitPhase(PhaseFailed)
		assert.ErrorIs(t, v.LastError, domain.ErrConnectionFailed)
		assert.False(t, v.IsConnected)

		tr.add(joinedConn("u1", false))
		require.NoError(t, h.s.Retry())
		v = h.waitPhase(PhaseConnected)
		assert.NoError(t, v.LastError)
		assert.Equal(t, 2, tr.dialCount())
	})

	t.Run("silent server times out", func(t *testing.T) {
		c := newFakeConn()
		h := start(t, testConfig(), newFakeTransport(c), nil)

		v := h.waitPhase(PhaseFailed)
		assert.ErrorIs(t, v.LastError, domain.ErrConnectionFailed)
		assert.ErrorIs(t, v.LastError, context.DeadlineExceeded)
		assert.True(t, c.isClosed())
	})

	t.Run("join error from hub", func(t *testing.T) {
		c := newFakeConn()
		c.push(protocol.TypeError, protocol.NewError(domain.ErrRoomFull))
		h := start(t, testConfig(), newFakeTransport(c), nil)

		v := h.waitPhase(PhaseFailed)
		var se *ServerError
		require.True(t, errors.As(v.LastError, &se))
		assert.Equal(t, "room_full", se.Code)
	})
}

func TestPeerLinks(t *testing.T) {
	t.Run("participant joined starts an offer", func(t *testing.T) {
		c := joinedConn("u1", false)
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)

		c.push(protocol.TypeParticipantJoined, protocol.ParticipantJoinedPayload{Participant: domain.ParticipantDTO{ID: "u2"}})
		v := h.waitFor(func(v View) bool { return v.Links["u2"] == LinkOfferSent }, "offer sent")
		assert.Contains(t, v.Participants, domain.UserID("u2"))

		sig := c.signalsTo(t, "u2")
		require.Len(t, sig, 1)
		assert.Equal(t, SignalOffer, sig[0].Kind)
		assert.Equal(t, "offer:u2", sig[0].SDP)
	})

	t.Run("candidates wait for the answer", func(t *testing.T) {
		c := joinedConn("u1", false)
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)
		c.push(protocol.TypeParticipantJoined, protocol.ParticipantJoinedPayload{Participant: domain.ParticipantDTO{ID: "u2"}})
		h.waitFor(func(v View) bool { return v.Links["u2"] == LinkOfferSent }, "offer sent")
		neg := h.links.of("u2")[0]

		c.pushSignal("u2", SignalPayload{Kind: SignalCandidate, Candidate: &webrtc.ICECandidateInit{Candidate: "c1"}})
		c.pushSignal("u2", SignalPayload{Kind: SignalCandidate, Candidate: &webrtc.ICECandidateInit{Candidate: "c2"}})
		c.pushSignal("u2", SignalPayload{Kind: SignalAnswer, SDP: "remote-answer"})
		h.waitFor(func(v View) bool { return v.Links["u2"] == LinkNegotiating }, "negotiating")
		assert.Equal(t, []string{"c1", "c2"}, neg.gotCandidates())

		c.pushSignal("u2", SignalPayload{Kind: SignalCandidate, Candidate: &webrtc.ICECandidateInit{Candidate: "c3"}})
		require.Eventually(t, func() bool { return len(neg.gotCandidates()) == 3 }, wait, tick)

		neg.ev.OnICECandidate(webrtc.ICECandidateInit{Candidate: "local"})
		require.Eventually(t, func() bool { return len(c.signalsTo(t, "u2")) == 2 }, wait, tick)
		last := c.signalsTo(t, "u2")[1]
		assert.Equal(t, SignalCandidate, last.Kind)
		assert.Equal(t, "local", last.Candidate.Candidate)

		neg.ev.OnConnected()
		h.waitFor(func(v View) bool { return v.Links["u2"] == LinkOpen }, "open")
	})

	t.Run("offer without link answers as responder", func(t *testing.T) {
		c := joinedConn("u1", false, "u2")
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)

		c.pushSignal("u2", SignalPayload{Kind: SignalOffer, SDP: "remote-offer"})
		h.waitFor(func(v View) bool { return v.Links["u2"] == LinkNegotiating }, "negotiating")

		sig := c.signalsTo(t, "u2")
		require.Len(t, sig, 1)
		assert.Equal(t, SignalAnswer, sig[0].Kind)
		assert.Equal(t, "answer:u2", sig[0].SDP)
	})

	t.Run("smaller identity yields on collision", func(t *testing.T) {
		c := joinedConn("a", false)
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)
		c.push(protocol.TypeParticipantJoined, protocol.ParticipantJoinedPayload{Participant: domain.ParticipantDTO{ID: "b"}})
		h.waitFor(func(v View) bool { return v.Links["b"] == LinkOfferSent }, "offer sent")

		c.pushSignal("b", SignalPayload{Kind: SignalOffer, SDP: "their-offer"})
		h.waitFor(func(v View) bool { return v.Links["b"] == LinkNegotiating }, "answered")
		negs := h.links.of("b")
		require.Len(t, negs, 2)
		assert.True(t, negs[0].isClosed())
		assert.False(t, negs[1].isClosed())
		assert.Equal(t, SignalAnswer, c.signalsTo(t, "b")[1].Kind)
	})

	t.Run("larger identity keeps its offer", func(t *testing.T) {
		c := joinedConn("c", false)
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)
		c.push(protocol.TypeParticipantJoined, protocol.ParticipantJoinedPayload{Participant: domain.ParticipantDTO{ID: "b"}})
		h.waitFor(func(v View) bool { return v.Links["b"] == LinkOfferSent }, "offer sent")

		c.pushSignal("b", SignalPayload{Kind: SignalOffer, SDP: "their-offer"})
		c.push(protocol.TypeRoomParticipantCount, protocol.RoomCountPayload{RoomID: "r1", Count: 9})
		h.waitFor(func(v View) bool { return v.RoomCount == 9 }, "offer processed")

		assert.Len(t, h.links.of("b"), 1)
		assert.Len(t, c.signalsTo(t, "b"), 1)
		assert.Equal(t, LinkOfferSent, h.s.Snapshot().Links["b"])
	})

	t.Run("fresh offer on open link recreates it", func(t *testing.T) {
		c := joinedConn("u1", false, "u2")
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)
		c.pushSignal("u2", SignalPayload{Kind: SignalOffer, SDP: "o1"})
		h.waitFor(func(v View) bool { return v.Links["u2"] == LinkNegotiating }, "negotiating")
		first := h.links.of("u2")[0]
		first.ev.OnConnected()
		h.waitFor(func(v View) bool { return v.Links["u2"] == LinkOpen }, "open")

		c.pushSignal("u2", SignalPayload{Kind: SignalOffer, SDP: "o2"})
		require.Eventually(t, func() bool { return len(h.links.of("u2")) == 2 }, wait, tick)
		h.waitFor(func(v View) bool { return v.Links["u2"] == LinkNegotiating }, "renegotiating")
		assert.True(t, first.isClosed())
		assert.Len(t, c.signalsTo(t, "u2"), 2)
	})

	t.Run("participant left destroys the link", func(t *testing.T) {
		c := joinedConn("u1", false)
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)
		c.push(protocol.TypeParticipantJoined, protocol.ParticipantJoinedPayload{Participant: domain.ParticipantDTO{ID: "u2"}})
		h.waitFor(func(v View) bool { return v.Links["u2"] == LinkOfferSent }, "offer sent")

		c.push(protocol.TypeParticipantLeft, protocol.ParticipantLeftPayload{UserID: "u2"})
		v := h.waitFor(func(v View) bool { _, ok := v.Links["u2"]; return !ok }, "link gone")
		assert.NotContains(t, v.Participants, domain.UserID("u2"))
		assert.True(t, h.links.of("u2")[0].isClosed())
	})

	t.Run("failed link is recreated once", func(t *testing.T) {
		c := joinedConn("u1", false)
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)
		c.push(protocol.TypeParticipantJoined, protocol.ParticipantJoinedPayload{Participant: domain.ParticipantDTO{ID: "u2"}})
		h.waitFor(func(v View) bool { return v.Links["u2"] == LinkOfferSent }, "offer sent")

		h.links.of("u2")[0].ev.OnFailed(errors.New("ice failed"))
		require.Eventually(t, func() bool { return len(h.links.of("u2")) == 2 }, wait, tick)
		assert.True(t, h.links.of("u2")[0].isClosed())
		h.waitFor(func(v View) bool { return v.Links["u2"] == LinkOfferSent }, "second offer")
		assert.Len(t, c.signalsTo(t, "u2"), 2)

		h.links.of("u2")[1].ev.OnFailed(errors.New("ice failed again"))
		h.waitFor(func(v View) bool { return v.Links["u2"] == LinkClosed }, "closed")
		time.Sleep(5 * testConfig().RecreateDelay)
		assert.Len(t, h.links.of("u2"), 2)
		assert.Equal(t, LinkClosed, h.s.Snapshot().Links["u2"])
	})

	t.Run("negotiation error stays local to the link", func(t *testing.T) {
		c := joinedConn("u1", false, "u2", "u3")
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)
		c.pushSignal("u3", SignalPayload{Kind: SignalOffer, SDP: "o3"})
		h.waitFor(func(v View) bool { return v.Links["u3"] == LinkNegotiating }, "u3 negotiating")

		c.pushSignal("u2", SignalPayload{Kind: SignalAnswer, SDP: "stray"})
		c.pushSignal("u2", SignalPayload{Kind: "bogus"})
		c.push(protocol.TypeRoomParticipantCount, protocol.RoomCountPayload{RoomID: "r1", Count: 9})
		v := h.waitFor(func(v View) bool { return v.RoomCount == 9 }, "signals processed")
		assert.Equal(t, PhaseConnected, v.Phase)
		assert.Equal(t, LinkNegotiating, v.Links["u3"])
	})
}

func TestServerDirectives(t *testing.T) {
	t.Run("forced mute is applied without echo", func(t *testing.T) {
		c := joinedConn("u1", false)
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)

		c.push(protocol.TypeForcedMute, protocol.NoticePayload{RoomID: "r1"})
		c.push(protocol.TypeForcedVideoOff, protocol.NoticePayload{RoomID: "r1"})
		h.waitFor(func(v View) bool { return v.IsMuted && v.IsVideoOff }, "forced state")

		assert.Empty(t, c.sentOf(protocol.TypeSetStatus))
	})

	t.Run("status and chat events update the view", func(t *testing.T) {
		c := joinedConn("u1", false, "u2")
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)

		c.push(protocol.TypeStatusChanged, protocol.StatusChangedPayload{UserID: "u2", IsMuted: true})
		c.push(protocol.TypeNewMessage, domain.Message{ID: "m1", Content: "hello"})
		c.push(protocol.TypeRoomParticipantCount, protocol.RoomCountPayload{RoomID: "r1", Count: 7})
		v := h.waitFor(func(v View) bool { return v.RoomCount == 7 }, "count")
		assert.True(t, v.Participants["u2"].IsMuted)
		require.Len(t, v.Chat, 1)
		assert.Equal(t, "hello", v.Chat[0].Content)
	})

	t.Run("chat log is bounded", func(t *testing.T) {
		c := joinedConn("u1", false)
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)

		for i := range maxChatLog + 5 {
			c.push(protocol.TypeNewMessage, domain.Message{ID: fmt.Sprint(i), Content: fmt.Sprintf("m%d", i)})
		}
		v := h.waitFor(func(v View) bool {
			return len(v.Chat) == maxChatLog && v.Chat[len(v.Chat)-1].Content == fmt.Sprintf("m%d", maxChatLog+4)
		}, "chat trimmed")
		assert.Equal(t, "m5", v.Chat[0].Content)
	})

	t.Run("participants snapshot drops stale links", func(t *testing.T) {
		c := joinedConn("u1", false, "u2")
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)
		c.pushSignal("u2", SignalPayload{Kind: SignalOffer, SDP: "o"})
		h.waitFor(func(v View) bool { return v.Links["u2"] == LinkNegotiating }, "negotiating")

		c.push(protocol.TypeParticipants, []domain.ParticipantDTO{{ID: "u1"}, {ID: "u3"}})
		v := h.waitFor(func(v View) bool { _, ok := v.Participants["u3"]; return ok }, "resynced")
		assert.NotContains(t, v.Participants, domain.UserID("u2"))
		assert.NotContains(t, v.Links, domain.UserID("u2"))
		assert.True(t, h.links.of("u2")[0].isClosed())
	})

	terminal := []struct {
		typ   string
		phase Phase
		err   error
	}{
		{protocol.TypeKicked, PhaseKicked, ErrKicked},
		{protocol.TypeRoomDeleted, PhaseRoomDeleted, ErrRoomDeleted},
		{protocol.TypeReplaced, PhaseDisconnected, ErrReplaced},
	}
	for _, tc := range terminal {
		t.Run(tc.typ+" ends the session", func(t *testing.T) {
			c := joinedConn("u1", false, "u2")
			tr := newFakeTransport(c, joinedConn("u1", false))
			h := start(t, testConfig(), tr, nil)
			h.waitPhase(PhaseConnected)
			c.pushSignal("u2", SignalPayload{Kind: SignalOffer, SDP: "o"})
			h.waitFor(func(v View) bool { return v.Links["u2"] == LinkNegotiating }, "negotiating")

			c.push(tc.typ, protocol.NoticePayload{RoomID: "r1"})
			c.drop()
			assert.ErrorIs(t, h.result(), tc.err)

			v := h.s.Snapshot()
			assert.Equal(t, tc.phase, v.Phase)
			assert.Equal(t, tc.err.Error(), v.Reason)
			assert.False(t, v.IsConnected)
			assert.Empty(t, v.Links)
			assert.True(t, h.links.of("u2")[0].isClosed())
			assert.EqualValues(t, 2, h.media.stopped.Load())
			assert.Equal(t, 1, tr.dialCount())
			assert.ErrorIs(t, h.s.ToggleMute(), domain.ErrSessionClosed)
		})
	}
}

func TestOperations(t *testing.T) {
	t.Run("toggle mute notifies hub and gates the track", func(t *testing.T) {
		c := joinedConn("u1", false)
		media := &fakeMedia{}
		h := start(t, testConfig(), newFakeTransport(c), media)
		h.waitPhase(PhaseConnected)

		require.NoError(t, h.s.ToggleMute())
		v := h.s.Snapshot()
		assert.True(t, v.IsMuted)
		st := c.sentOf(protocol.TypeSetStatus)
		require.Len(t, st, 1)
		assert.Equal(t, protocol.StatusPayload{IsMuted: true}, decode[protocol.StatusPayload](t, st[0]))

		require.NoError(t, h.s.ToggleVideo())
		require.NoError(t, h.s.ToggleMute())
		st = c.sentOf(protocol.TypeSetStatus)
		require.Len(t, st, 3)
		assert.Equal(t, protocol.StatusPayload{IsVideoOff: true}, decode[protocol.StatusPayload](t, st[2]))
	})

	t.Run("toggles without a track stay off", func(t *testing.T) {
		c := joinedConn("u1", false)
		h := start(t, testConfig(), newFakeTransport(c), &fakeMedia{denyVideo: true})
		h.waitPhase(PhaseConnected)

		require.NoError(t, h.s.ToggleVideo())
		assert.True(t, h.s.Snapshot().IsVideoOff)
		assert.Empty(t, c.sentOf(protocol.TypeSetStatus))
	})

	t.Run("deafen and chat are local", func(t *testing.T) {
		c := joinedConn("u1", false)
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)

		require.NoError(t, h.s.ToggleDeafen())
		require.NoError(t, h.s.ToggleChat())
		v := h.s.Snapshot()
		assert.True(t, v.IsDeafened)
		assert.True(t, v.IsChatVisible)
		assert.Empty(t, c.sentOf(protocol.TypeSetStatus))
	})

	t.Run("deafen withholds remote audio only", func(t *testing.T) {
		c := joinedConn("u1", false)
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)
		c.push(protocol.TypeParticipantJoined, protocol.ParticipantJoinedPayload{Participant: domain.ParticipantDTO{ID: "u2"}})
		require.Eventually(t, func() bool { return len(h.links.of("u2")) == 1 }, wait, tick)
		ev := h.links.of("u2")[0].ev

		ev.OnMedia(webrtc.RTPCodecTypeAudio, []byte{1})
		ev.OnMedia(webrtc.RTPCodecTypeVideo, []byte{2})
		assert.Equal(t, 1, h.play.count(webrtc.RTPCodecTypeAudio))
		assert.Equal(t, 1, h.play.count(webrtc.RTPCodecTypeVideo))

		require.NoError(t, h.s.ToggleDeafen())
		ev.OnMedia(webrtc.RTPCodecTypeAudio, []byte{1})
		ev.OnMedia(webrtc.RTPCodecTypeVideo, []byte{2})
		assert.Equal(t, 1, h.play.count(webrtc.RTPCodecTypeAudio))
		assert.Equal(t, 2, h.play.count(webrtc.RTPCodecTypeVideo))

		require.NoError(t, h.s.ToggleDeafen())
		ev.OnMedia(webrtc.RTPCodecTypeAudio, []byte{1})
		assert.Equal(t, 2, h.play.count(webrtc.RTPCodecTypeAudio))
	})

	t.Run("send message", func(t *testing.T) {
		c := joinedConn("u1", false)
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)

		require.NoError(t, h.s.SendMessage("  hi there "))
		assert.ErrorIs(t, h.s.SendMessage("   "), domain.ErrInvalidRequest)
		msgs := c.sentOf(protocol.TypeSendMessage)
		require.Len(t, msgs, 1)
		assert.Equal(t, "hi there", decode[protocol.SendMessagePayload](t, msgs[0]).Content)

		require.NoError(t, h.s.Resync())
		assert.Len(t, c.sentOf(protocol.TypeGetParticipants), 1)
	})

	t.Run("admin operations need admin", func(t *testing.T) {
		c := joinedConn("u1", false, "u2")
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)

		require.NoError(t, h.s.AdminKick("u2"))
		require.NoError(t, h.s.AdminMute("u2"))
		require.NoError(t, h.s.DeleteRoom())
		assert.Empty(t, c.sentOf(protocol.TypeAdminAction))
		assert.Empty(t, c.sentOf(protocol.TypeDeleteRoom))
	})

	t.Run("admin operations reach the hub", func(t *testing.T) {
		c := joinedConn("u1", true, "u2")
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)

		require.NoError(t, h.s.AdminMute("u2"))
		require.NoError(t, h.s.AdminDisableVideo("u2"))
		require.NoError(t, h.s.AdminKick("u2"))
		require.NoError(t, h.s.DeleteRoom())

		acts := c.sentOf(protocol.TypeAdminAction)
		require.Len(t, acts, 3)
		var got []domain.AdminAction
		for _, m := range acts {
			p := decode[protocol.AdminActionPayload](t, m)
			assert.Equal(t, domain.UserID("u2"), p.Target)
			got = append(got, p.Action)
		}
		assert.Equal(t, []domain.AdminAction{domain.ActionMute, domain.ActionDisableVideo, domain.ActionKick}, got)
		assert.Len(t, c.sentOf(protocol.TypeDeleteRoom), 1)
	})

	t.Run("leave ends Run cleanly", func(t *testing.T) {
		c := joinedConn("u1", false)
		h := start(t, testConfig(), newFakeTransport(c), nil)
		h.waitPhase(PhaseConnected)

		require.NoError(t, h.s.Leave())
		assert.NoError(t, h.result())
		assert.Len(t, c.sentOf(protocol.TypeLeave), 1)
		assert.True(t, c.isClosed())
		assert.Equal(t, PhaseDisconnected, h.s.Snapshot().Phase)
		assert.ErrorIs(t, h.s.SendMessage("late"), domain.ErrSessionClosed)
	})
}

func TestReconnect(t *testing.T) {
	t.Run("drop reconnects and rejoins with current flags", func(t *testing.T) {
		c1 := joinedConn("u1", false, "u2")
		c2 := joinedConn("u1", false, "u2")
		tr := newFakeTransport(c1, c2)
		h := start(t, testConfig(), tr, nil)
		h.waitPhase(PhaseConnected)
		require.NoError(t, h.s.ToggleMute())
		c1.pushSignal("u2", SignalPayload{Kind: SignalOffer, SDP: "o"})
		h.waitFor(func(v View) bool { return v.Links["u2"] == LinkNegotiating }, "negotiating")

		c1.drop()
		require.Eventually(t, func() bool { return tr.dialCount() == 2 }, wait, tick)
		v := h.waitFor(func(v View) bool { return v.Phase == PhaseConnected && v.IsConnected }, "reconnected")
		assert.Empty(t, v.Links)
		assert.True(t, h.links.of("u2")[0].isClosed())
		assert.True(t, c1.isClosed())

		jp := decode[protocol.JoinPayload](t, c2.sentOf(protocol.TypeJoin)[0])
		assert.True(t, jp.IsMuted)
	})

	t.Run("bounded attempts end in failure", func(t *testing.T) {
		c1 := joinedConn("u1", false)
		tr := newFakeTransport(c1)
		h := start(t, testConfig(), tr, nil)
		h.waitPhase(PhaseConnected)

		c1.drop()
		v := h.waitPhase(PhaseFailed)
		assert.ErrorIs(t, v.LastError, domain.ErrConnectionFailed)
		assert.Equal(t, 1+testConfig().ReconnectAttempts, tr.dialCount())
		assert.False(t, v.IsConnected)
	})

	t.Run("zero attempts falls back to the default", func(t *testing.T) {
		cfg := testConfig()
		cfg.ReconnectAttempts = 0
		c1 := joinedConn("u1", false)
		tr := newFakeTransport(c1)
		h := start(t, cfg, tr, nil)
		h.waitPhase(PhaseConnected)

		c1.drop()
		h.waitPhase(PhaseFailed)
		assert.Equal(t, 1+DefaultConfig().ReconnectAttempts, tr.dialCount())
	})

	t.Run("leave during reconnect stops attempts", func(t *testing.T) {
		cfg := testConfig()
		cfg.ReconnectBackoff = 300 * time.Millisecond
		c1 := joinedConn("u1", false)
		tr := newFakeTransport(c1)
		h := start(t, cfg, tr, nil)
		h.waitPhase(PhaseConnected)

		c1.drop()
		h.waitPhase(PhaseReconnecting)
		begun := time.Now()
		require.NoError(t, h.s.Leave())
		assert.Less(t, time.Since(begun), 100*time.Millisecond)
		require.NoError(t, h.result())
		assert.Equal(t, PhaseDisconnected, h.s.Snapshot().Phase)

		time.Sleep(2 * cfg.ReconnectBackoff)
		assert.Equal(t, 1, tr.dialCount())
	})

	t.Run("leave aborts a dial in flight", func(t *testing.T) {
		cfg := testConfig()
		cfg.ConnectTimeout = 5 * time.Second
		c := newFakeConn()
		tr := newFakeTransport(c)
		h := start(t, cfg, tr, nil)
		require.Eventually(t, func() bool { return len(c.sentOf(protocol.TypeJoin)) == 1 }, wait, tick)

		begun := time.Now()
		require.NoError(t, h.s.Leave())
		require.NoError(t, h.result())
		assert.Less(t, time.Since(begun), time.Second)
		require.Eventually(t, c.isClosed, wait, tick)
		assert.Equal(t, 1, tr.dialCount())
	})

	t.Run("silence past liveness timeout counts as a drop", func(t *testing.T) {
		cfg := testConfig()
		cfg.KeepAlive = 10 * time.Millisecond
		cfg.LivenessTimeout = 40 * time.Millisecond
		c1 := joinedConn("u1", false)
		c2 := joinedConn("u1", false)
		tr := newFakeTransport(c1, c2)
		h := start(t, cfg, tr, nil)
		h.waitPhase(PhaseConnected)

		require.Eventually(t, func() bool { return tr.dialCount() >= 2 }, wait, tick)
		assert.NotEmpty(t, c1.sentOf(protocol.TypeKeepAlive))
		assert.True(t, c1.isClosed())
	})

	t.Run("keep-alive responses keep the connection", func(t *testing.T) {
		cfg := testConfig()
		cfg.KeepAlive = 10 * time.Millisecond
		cfg.LivenessTimeout = 150 * time.Millisecond
		c1 := joinedConn("u1", false)
		tr := newFakeTransport(c1)
		h := start(t, cfg, tr, nil)
		h.waitPhase(PhaseConnected)

		stop := time.After(200 * time.Millisecond)
		for done := false; !done; {
			select {
			case <-stop:
				done = true
			case <-time.After(10 * time.Millisecond):
				c1.push(protocol.TypeKeepAliveResponse, protocol.NewKeepAlive(time.Now()))
			}
		}
		assert.Equal(t, 1, tr.dialCount())
		assert.Equal(t, PhaseConnected, h.s.Snapshot().Phase)
	})
}

func TestUpdatesLatestWins(t *testing.T) {
	c := joinedConn("u1", false)
	h := start(t, testConfig(), newFakeTransport(c), nil)
	h.waitPhase(PhaseConnected)
	require.NoError(t, h.s.ToggleChat())

	var last View
	require.Eventually(t, func() bool {
		select {
		case last = <-h.s.Updates():
		default:
		}
		return last.IsChatVisible
	}, wait, tick)
	assert.Equal(t, PhaseConnected, last.Phase)
}
