package auth

import (
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionUID  = "uid"
	sessionName = "name"
)

// GuestProvider keeps a durable random identity in the signed cookie session.
// Requires the sessions middleware.
type GuestProvider struct{}

func (GuestProvider) Identify(c *gin.Context) (domain.User, error) {
	s := sessions.Default(c)

	uid, _ := s.Get(sessionUID).(string)
	dirty := false
	if uid == "" {
		uid = uuid.NewString()
		s.Set(sessionUID, uid)
		dirty = true
	}

	user := domain.User{ID: domain.UserID(uid)}
	name, _ := s.Get(sessionName).(string)
	if q := c.Query("name"); q != "" {
		if err := user.SetUsername(q); err == nil && user.Username != name {
			s.Set(sessionName, user.Username)
			dirty = true
		}
	} else if err := user.SetUsername(name); err != nil {
		user.Username = domain.DefaultUsername
	}

	if dirty {
		if err := s.Save(); err != nil {
			return domain.User{}, err
		}
	}
	return user, nil
}
