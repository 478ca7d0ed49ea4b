// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen    = 64
	MaxUsernameLen  = 36
	MaxAvatarURLLen = 512
	DefaultUsername = "Anonymous"
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUserIDInvalid   = errors.New("user id invalid")
)

// UserID is the durable identity supplied by the identity provider.
type UserID string

type User struct {
	ID        UserID `json:"id"`
	Username  string `json:"name"`
	AvatarURL string `json:"imageUrl,omitempty"`
}

// NewGuest builds a user with a fresh random identity.
func NewGuest(username string) (*User, error) {
	u := &User{ID: UserID(uuid.NewString())}
	if err := u.SetUsername(username); err != nil {
		return nil, err
	}
	return u, nil
}

func (id UserID) Validate() error {
	if id == "" || len(id) > MaxUserIDLen {
		return ErrUserIDInvalid
	}
	return nil
}

func (u *User) SetUsername(username string) error {
	username = strings.TrimSpace(username)
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Username = username
	return nil
}

// SetProfile applies a display name and avatar, falling back to DefaultUsername
// when the supplied name is unusable.
func (u *User) SetProfile(username, avatar string) {
	if err := u.SetUsername(username); err != nil {
		u.Username = DefaultUsername
	}
	if len(avatar) > MaxAvatarURLLen {
		avatar = ""
	}
	u.AvatarURL = avatar
}
