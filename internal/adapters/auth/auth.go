// Package auth resolves the caller's identity for HTTP and websocket routes.
// The signaling layer trusts the identity resolved here for the whole
// connection.
package auth

import (
	"errors"
	"net/http"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const identityKey = "identity"

var ErrNoCredentials = errors.New("no credentials")

// Provider turns request credentials into a verified user.
type Provider interface {
	Identify(c *gin.Context) (domain.User, error)
}

// Middleware resolves the identity and stores it on the gin context.
// Requests without a valid identity are rejected.
func Middleware(p Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := p.Identify(c)
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.auth").Str("path", c.FullPath()).Msg("identify failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": domain.ErrUnauthorized.Error()})
			return
		}
		c.Set(identityKey, user)
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (domain.User, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.User{}, false
	}
	u, ok := v.(domain.User)
	return u, ok
}
