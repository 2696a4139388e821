package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/fitmind/internal/domain"
	"github.com/ashureev/fitmind/internal/store"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// sign issues an HS256 token for claims the way the identity provider does.
func sign(t *testing.T, v *Verifier, claims Claims, ttl time.Duration) (string, error) {
	t.Helper()
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "fitmind.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func capture(t *testing.T, repo store.Repository, verifier *Verifier, req *http.Request) (*httptest.ResponseRecorder, domain.User, string) {
	t.Helper()
	var (
		user    domain.User
		session string
	)
	h := Middleware(repo, verifier, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ = UserFromContext(r.Context())
		session = SessionIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, user, session
}

func TestGuestGetsAnonCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	rec, user, session := capture(t, nil, NewVerifier(testSecret), req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, user.Guest)
	assert.True(t, isValidAnonID(user.UserID))
	assert.Equal(t, DefaultSessionIDValue, session)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AnonCookieName, cookies[0].Name)
	assert.Equal(t, user.UserID, cookies[0].Value)
}

func TestGuestCookieIsReused(t *testing.T) {
	id, err := generateAnonID()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/chat?session_id=tab-7", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	_, user, session := capture(t, nil, nil, req)

	assert.Equal(t, id, user.UserID)
	assert.Equal(t, "tab-7", session)
}

func TestInvalidCookieIsReplaced(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "anon_../../etc"})
	_, user, _ := capture(t, nil, nil, req)
	assert.NotEqual(t, "anon_../../etc", user.UserID)
	assert.True(t, isValidAnonID(user.UserID))
}

func TestBearerTokenSignsInAndSavesProfile(t *testing.T) {
	repo := newTestStore(t)
	v := NewVerifier(testSecret)
	token, err := sign(t, v, Claims{
		Email:            "jane@example.com",
		UserMetadata:     UserMetadata{DisplayName: "Jane Doe"},
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-42"},
	}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(SessionHeaderName, "tab-1")
	rec, user, session := capture(t, repo, v, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, user.Guest)
	assert.Equal(t, "user-42", user.UserID)
	assert.Equal(t, "Jane", user.FirstName())
	assert.Equal(t, "tab-1", session)
	assert.Empty(t, rec.Result().Cookies())

	stored, err := repo.GetUser(context.Background(), "user-42")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "jane@example.com", stored.Email)
	assert.Equal(t, "Jane Doe", stored.DisplayName)
}

type countingRepo struct {
	store.Repository
	upserts int
}

func (r *countingRepo) UpsertUser(ctx context.Context, user *domain.User) error {
	r.upserts++
	return r.Repository.UpsertUser(ctx, user)
}

func TestProfileWrittenOnlyWhenChanged(t *testing.T) {
	repo := &countingRepo{Repository: newTestStore(t)}
	v := NewVerifier(testSecret)

	request := func(name string) domain.User {
		token, err := sign(t, v, Claims{
			UserMetadata:     UserMetadata{DisplayName: name},
			RegisteredClaims: jwt.RegisteredClaims{Subject: "user-9"},
		}, time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec, user, _ := capture(t, repo, v, req)
		require.Equal(t, http.StatusOK, rec.Code)
		return user
	}

	request("Sam Lee")
	request("Sam Lee")
	user := request("Sam Lee")
	assert.Equal(t, 1, repo.upserts)
	assert.Equal(t, "Sam Lee", user.DisplayName)

	request("Samantha Lee")
	assert.Equal(t, 2, repo.upserts)

	stored, err := repo.GetUser(context.Background(), "user-9")
	require.NoError(t, err)
	assert.Equal(t, "Samantha Lee", stored.DisplayName)
}

func TestBearerTokenFromQuery(t *testing.T) {
	v := NewVerifier(testSecret)
	token, err := sign(t, v, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-7"}}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat?access_token="+token, nil)
	_, user, _ := capture(t, nil, v, req)
	assert.Equal(t, "user-7", user.UserID)
}

func TestRejectsBadTokens(t *testing.T) {
	v := NewVerifier(testSecret)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	otherKey, err := sign(t, NewVerifier("other"), Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}, time.Hour)
	require.NoError(t, err)

	noSubject, err := sign(t, v, Claims{Email: "x@example.com"}, time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":    "not-a-jwt",
		"expired":    expired,
		"wrong key":  otherKey,
		"no subject": noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec, _, _ := capture(t, nil, v, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestNoVerifierTreatsEveryoneAsGuest(t *testing.T) {
	assert.Nil(t, NewVerifier(""))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec, user, _ := capture(t, nil, nil, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, user.Guest)
}

func TestSanitizeSessionID(t *testing.T) {
	assert.Equal(t, "tab-1", sanitizeSessionID(" tab-1 "))
	assert.Equal(t, DefaultSessionIDValue, sanitizeSessionID(""))
	assert.Equal(t, DefaultSessionIDValue, sanitizeSessionID("bad id/with spaces"))
}

func TestClaimsUserFallsBackToName(t *testing.T) {
	c := Claims{UserMetadata: UserMetadata{Name: "Sam Lee"}, RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}}
	assert.Equal(t, "Sam Lee", c.User().DisplayName)
}
