package app

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const DefaultAuthorizeTimeout = 3 * time.Second

// Grant is the outcome of one admin check. Room is nil when the directory
// does not know the room or could not be reached.
type Grant struct {
	IsAdmin bool
	Room    *domain.Room
}

// Authorizer decides at join time whether an identity administers a room.
// Lookup failures deny. Results are not cached beyond the call.
type Authorizer struct {
	rooms   core.RoomLookup
	timeout time.Duration
	group   singleflight.Group
}

func NewAuthorizer(rooms core.RoomLookup, timeout time.Duration) *Authorizer {
	if timeout <= 0 {
		timeout = DefaultAuthorizeTimeout
	}
	return &Authorizer{rooms: rooms, timeout: timeout}
}

func (a *Authorizer) Check(ctx context.Context, room domain.RoomID, user domain.UserID) Grant {
	if a == nil || a.rooms == nil {
		return Grant{}
	}
	// Concurrent joins to the same room share one lookup.
	ch := a.group.DoChan(string(room), func() (any, error) {
		lctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		return a.rooms.GetRoom(lctx, room)
	})

	select {
	case <-ctx.Done():
		log.Debug().Str("module", "app.authz").Str("room", string(room)).Err(ctx.Err()).Msg("check canceled")
		return Grant{}
	case res := <-ch:
		if res.Err != nil {
			if !errors.Is(res.Err, domain.ErrRoomNotFound) {
				log.Warn().Str("module", "app.authz").Str("room", string(room)).Err(res.Err).Msg("room lookup failed, denying admin")
			}
			return Grant{}
		}
		r, _ := res.Val.(*domain.Room)
		if r == nil {
			return Grant{}
		}
		return Grant{IsAdmin: r.OwnerID != "" && r.OwnerID == user, Room: r}
	}
}
