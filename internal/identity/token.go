package identity

import (
	"errors"
	"strings"

	"github.com/ashureev/fitmind/internal/domain"
	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// UserMetadata is the profile section issued by the identity provider.
type UserMetadata struct {
	DisplayName string `json:"display_name,omitempty"`
	Name        string `json:"name,omitempty"`
	FullName    string `json:"full_name,omitempty"`
}

// Claims are the access token claims the service reads.
type Claims struct {
	Email        string       `json:"email,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

// User converts the claims into a signed-in user.
func (c *Claims) User() domain.User {
	name := c.UserMetadata.DisplayName
	if name == "" {
		name = c.UserMetadata.Name
	}
	if name == "" {
		name = c.UserMetadata.FullName
	}
	return domain.User{
		UserID:      c.Subject,
		Email:       strings.TrimSpace(c.Email),
		DisplayName: strings.TrimSpace(name),
	}
}

// Verifier checks HS256 access tokens against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier, or nil when secret is empty.
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return nil
	}
	return &Verifier{secret: []byte(secret)}
}

// Parse validates token and returns its claims.
func (v *Verifier) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
