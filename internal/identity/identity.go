// Package identity resolves the caller of a request: a signed-in user from a
// bearer token, or a guest keyed by a per-device cookie.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/fitmind/internal/domain"
	"github.com/ashureev/fitmind/internal/store"
)

const (
	AnonCookieName        = "fitmind_anon_id"
	SessionHeaderName     = "X-FitMind-Session-ID"
	DefaultSessionIDValue = "default"
	anonCookieMaxAge      = 30 * 24 * time.Hour
)

type contextKey int

const (
	userKey contextKey = iota
	sessionIDKey
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext extracts the caller from the request context.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey).(domain.User)
	return u, ok
}

// UserIDFromContext extracts the caller's user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	u, _ := UserFromContext(ctx)
	return u.UserID
}

// WithSessionID returns a copy of ctx carrying the tab session ID.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sanitizeSessionID(id))
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

// bearerToken returns the token of an Authorization header, falling back to
// the access_token query parameter used by websocket clients.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("access_token")
}

// profileTouchInterval bounds how often an unchanged profile is rewritten to
// refresh LastSeenAt.
const profileTouchInterval = 15 * time.Minute

// syncProfile stores the signed-in user's profile and returns it merged with
// what was already known. It writes only when the profile is new, changed, or
// last seen more than profileTouchInterval ago. Store failures are logged; the
// token stays authoritative for the request.
func syncProfile(ctx context.Context, repo store.Repository, user domain.User) domain.User {
	if repo == nil {
		return user
	}
	now := time.Now()

	existing, err := repo.GetUser(ctx, user.UserID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load user profile", "user_id", user.UserID, "error", err)
		return user
	}
	if existing != nil {
		if user.DisplayName == "" {
			user.DisplayName = existing.DisplayName
		}
		if user.Email == "" {
			user.Email = existing.Email
		}
		user.CreatedAt = existing.CreatedAt
		user.LastSeenAt = existing.LastSeenAt
		user.UpdatedAt = existing.UpdatedAt

		unchanged := user.DisplayName == existing.DisplayName && user.Email == existing.Email
		if unchanged && now.Sub(existing.LastSeenAt) < profileTouchInterval {
			return user
		}
	} else {
		user.CreatedAt = now
	}
	user.LastSeenAt = now
	user.UpdatedAt = now

	if err := repo.UpsertUser(ctx, &user); err != nil {
		slog.WarnContext(ctx, "Failed to save user profile", "user_id", user.UserID, "error", err)
	}
	return user
}

// Middleware injects the caller and per-request session ID. A request with an
// invalid bearer token is rejected; a request without one is a guest. When
// verifier is nil every caller is a guest.
func Middleware(repo store.Repository, verifier *Verifier, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var user domain.User

			token := bearerToken(r)
			if verifier != nil && token != "" {
				claims, err := verifier.Parse(token)
				if err != nil {
					slog.DebugContext(r.Context(), "Rejected bearer token", "error", err)
					http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
					return
				}
				user = syncProfile(r.Context(), repo, claims.User())
			} else {
				anonID, err := getOrCreateAnonID(w, r, isDev)
				if err != nil {
					http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
					return
				}
				user = domain.User{UserID: anonID, Guest: true}
			}

			ctx := WithUser(r.Context(), user)
			ctx = context.WithValue(ctx, sessionIDKey, sessionIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
