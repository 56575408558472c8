// Package auth verifies identity-provider tokens and scopes requests to the
// authenticated user.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"

	"sharedtodo/internal/models"
)

const identityKey = "auth.identity"

// ErrUnauthenticated is returned for missing or invalid tokens.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the session user as asserted by the identity provider.
type Identity struct {
	UID      string
	Name     string
	Email    string
	PhotoURL string
}

// Profile converts the identity into the profile record upserted on login.
func (id Identity) Profile() models.UserProfile {
	return models.UserProfile{UID: id.UID, Name: id.Name, Email: id.Email, PhotoURL: id.PhotoURL}
}

// Claims is the token payload. The subject carries the user id.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	gojwt.RegisteredClaims
}

// Verifier checks HS256-signed tokens.
type Verifier struct {
	secret []byte
	parser *gojwt.Parser
}

// NewVerifier returns a verifier for HS256 tokens signed with secret. An
// empty secret is rejected.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("empty jwt secret")
	}
	return &Verifier{
		secret: []byte(secret),
		parser: gojwt.NewParser(gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}), gojwt.WithExpirationRequired()),
	}, nil
}

// Verify validates token and returns the identity it asserts.
func (v *Verifier) Verify(token string) (Identity, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*gojwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return Identity{
		UID:      claims.Subject,
		Name:     claims.Name,
		Email:    claims.Email,
		PhotoURL: claims.Picture,
	}, nil
}

// Issue signs a token for id valid for ttl. It backs local development and
// tests; production tokens come from the identity provider.
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:    id.Name,
		Email:   id.Email,
		Picture: id.PhotoURL,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   id.UID,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware rejects requests without a valid token and stores the identity
// on the context. Browsers cannot set headers on websocket upgrades, so the
// access_token query parameter is accepted as well.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("access_token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		id, err := v.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// FromContext returns the identity stored by Middleware.
func FromContext(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
