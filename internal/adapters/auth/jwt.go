package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const tokenLeeway = 30 * time.Second

// Claims is the token payload issued by the identity provider.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider verifies HMAC-signed bearer tokens. The token is read from the
// Authorization header or, for browsers opening a websocket, the token query.
type JWTProvider struct {
	secret []byte
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

func (p *JWTProvider) Identify(c *gin.Context) (domain.User, error) {
	raw := ""
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		raw = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if raw == "" {
		raw = c.Query("token")
	}
	if raw == "" {
		return domain.User{}, ErrNoCredentials
	}
	return p.Verify(raw)
}

func (p *JWTProvider) Verify(raw string) (domain.User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(),
		jwt.SigningMethodHS384.Alg(),
		jwt.SigningMethodHS512.Alg(),
	}), jwt.WithLeeway(tokenLeeway))
	if err != nil {
		return domain.User{}, fmt.Errorf("verify token: %w", err)
	}
	if !token.Valid {
		return domain.User{}, domain.ErrUnauthorized
	}

	user := domain.User{ID: domain.UserID(claims.Subject)}
	if err := user.ID.Validate(); err != nil {
		return domain.User{}, fmt.Errorf("verify token: %w", err)
	}
	user.SetProfile(claims.Name, claims.Picture)
	return user, nil
}

// Issue signs a token for user. Used by tooling and tests.
func (p *JWTProvider) Issue(user domain.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:    user.Username,
		Picture: user.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
