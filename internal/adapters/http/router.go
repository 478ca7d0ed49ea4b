package http

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/dkeye/Huddle/internal/adapters/auth"
	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app/hub"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators the HTTP surface serves.
type Deps struct {
	Hub       *hub.Hub
	Signal    *signal.SignalWSController
	Directory core.Directory
	History   core.History
	Identity  auth.Provider
	Metrics   *metrics.Metrics
}

type api struct {
	Deps
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("HuddleSessions", store))

	if _, err := os.Stat(cfg.StaticPath); err == nil {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	a := &api{Deps: d}
	r.GET("/api/health", a.health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	g := r.Group("/api", auth.Middleware(d.Identity))
	g.GET("/me", a.me)
	g.GET("/rooms", a.listRooms)
	g.POST("/rooms", a.createRoom)
	g.GET("/rooms/:id", a.getRoom)
	g.PATCH("/rooms/:id", a.updateRoom)
	g.DELETE("/rooms/:id", a.deleteRoom)
	g.GET("/rooms/:id/messages", a.listMessages)

	g.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws signal endpoint hit")
		d.Signal.HandleSignal(ctx, c)
	})

	return r
}

func (a *api) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": a.Hub.Registry().Count(),
		"activeRooms": len(a.Hub.Rooms()),
	})
}

func (a *api) me(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	c.JSON(http.StatusOK, user)
}

type roomView struct {
	domain.Room
	ParticipantCount int `json:"participantCount"`
}

func (a *api) listRooms(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rooms, err := a.Directory.ListRooms(c.Request.Context(), domain.RoomQuery{
		Search:     c.Query("q"),
		Topic:      c.Query("topic"),
		PublicOnly: true,
		Limit:      limit,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	counts := make(map[domain.RoomID]int)
	for _, info := range a.Hub.Rooms() {
		counts[info.ID] = info.MemberCount
	}
	out := make([]roomView, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomView{Room: room, ParticipantCount: counts[room.ID]})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

type createRoomRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	MaxUsers    int      `json:"maxUsers"`
	IsPublic    *bool    `json:"isPublic"`
	Topics      []string `json:"topics"`
}

func (a *api) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	user, _ := auth.CurrentUser(c)
	room := &domain.Room{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     user.ID,
		MaxUsers:    req.MaxUsers,
		IsPublic:    req.IsPublic == nil || *req.IsPublic,
		Topics:      req.Topics,
	}
	if err := a.Directory.CreateRoom(c.Request.Context(), room); err != nil {
		a.fail(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("room", string(room.ID)).Str("owner", string(user.ID)).Msg("room created")
	c.JSON(http.StatusCreated, room)
}

func (a *api) getRoom(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	room, err := a.Directory.GetRoom(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room":         room,
		"participants": a.Hub.RoomParticipants(id),
	})
}

// ownedRoom loads the room named in the path and checks the caller owns it.
func (a *api) ownedRoom(c *gin.Context) (*domain.Room, bool) {
	user, _ := auth.CurrentUser(c)
	room, err := a.Directory.GetRoom(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		a.fail(c, err)
		return nil, false
	}
	if room.OwnerID != user.ID {
		a.fail(c, domain.ErrUnauthorized)
		return nil, false
	}
	return room, true
}

// updateRoomRequest is a partial update; absent fields keep their value.
type updateRoomRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	MaxUsers    *int      `json:"maxUsers"`
	IsPublic    *bool     `json:"isPublic"`
	Topics      *[]string `json:"topics"`
}

func (a *api) updateRoom(c *gin.Context) {
	var req updateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	room, ok := a.ownedRoom(c)
	if !ok {
		return
	}
	if req.Name != nil {
		room.Name = *req.Name
	}
	if req.Description != nil {
		room.Description = *req.Description
	}
	if req.MaxUsers != nil {
		room.MaxUsers = *req.MaxUsers
	}
	if req.IsPublic != nil {
		room.IsPublic = *req.IsPublic
	}
	if req.Topics != nil {
		room.Topics = *req.Topics
	}
	if err := a.Directory.UpdateRoom(c.Request.Context(), room); err != nil {
		a.fail(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("room", string(room.ID)).Int("maxUsers", room.MaxUsers).Msg("room updated")
	c.JSON(http.StatusOK, room)
}

func (a *api) deleteRoom(c *gin.Context) {
	room, ok := a.ownedRoom(c)
	if !ok {
		return
	}
	id := room.ID
	if err := a.Directory.DeleteRoom(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	n := a.Hub.EvictRoom(id)
	log.Info().Str("module", "adapters.http").Str("room", string(id)).Int("evicted", n).Msg("room deleted")
	c.Status(http.StatusNoContent)
}

func (a *api) listMessages(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	msgs, err := a.History.ListMessages(c.Request.Context(), id, limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (a *api) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": domain.ErrorCode(err), "message": err.Error()})
}
