package hub

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SendMessage broadcasts a chat line to the whole room, sender included,
// and appends it to history in the background.
func (h *Hub) SendMessage(cid core.ConnID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if utf8.RuneCountInString(content) > h.cfg.ChatMaxLength {
		return fmt.Errorf("message too long: %w", domain.ErrInvalidRequest)
	}
	room, s, mem, err := h.memberOf(cid)
	if err != nil {
		return err
	}
	msg := &domain.Message{
		ID:         uuid.NewString(),
		RoomID:     room,
		SenderID:   mem.UserID(),
		SenderName: mem.Participant.User.Username,
		Content:    content,
		Timestamp:  time.Now().UTC(),
	}
	h.broadcastLocked(s, "", protocol.TypeNewMessage, msg)
	h.releaseRoom(room, s)
	h.metrics.ChatMessages.Inc()

	if h.history != nil {
		h.bg.Go(func() { h.appendHistory(msg) })
	}
	return nil
}

func (h *Hub) appendHistory(msg *domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.HistoryTimeout)
	defer cancel()
	if err := h.history.AppendMessage(ctx, msg); err != nil {
		log.Warn().Str("module", "hub").Str("room", string(msg.RoomID)).Err(err).Msg("history append failed")
	}
}
