package services

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/krshsl/influenceos/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionService(t *testing.T) *SessionService {
	t.Helper()
	s, err := NewSessionService(SessionConfig{Secret: testSecret, StateTTL: time.Minute})
	require.NoError(t, err)
	return s
}

func testSession(expiresAt time.Time) *models.Session {
	return &models.Session{
		UserID: "u1",
		Name:   "Jane Doe",
		Token: models.Token{
			AccessToken: "tok1",
			ExpiresAt:   expiresAt,
			Scope:       "openid w_member_social",
			UserID:      "u1",
		},
	}
}

func TestNewSessionService_ShortSecret(t *testing.T) {
	_, err := NewSessionService(SessionConfig{Secret: "too-short"})
	require.Error(t, err)
}

func TestVerifyState(t *testing.T) {
	s := newTestSessionService(t)

	state, err := s.IssueState()
	require.NoError(t, err)
	other, err := s.IssueState()
	require.NoError(t, err)
	assert.NotEqual(t, state, other)

	tests := []struct {
		name     string
		query    string
		cookie   string
		wantKind models.ErrorKind
	}{
		{name: "missing query", query: "", cookie: state, wantKind: models.KindValidation},
		{name: "missing cookie", query: state, cookie: "", wantKind: models.KindAuth},
		{name: "cookie from another login", query: state, cookie: other, wantKind: models.KindAuth},
		{name: "forged value", query: "forged", cookie: "forged", wantKind: models.KindAuth},
		{name: "valid", query: state, cookie: state},
		{name: "replayed", query: state, cookie: state, wantKind: models.KindAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.VerifyState(tt.query, tt.cookie)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, models.KindOf(err))
		})
	}
}

func TestVerifyState_Expired(t *testing.T) {
	s := newTestSessionService(t)
	issuedAt := time.Now()
	s.now = func() time.Time { return issuedAt }

	state, err := s.IssueState()
	require.NoError(t, err)

	s.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	err = s.VerifyState(state, state)
	require.Error(t, err)
	assert.Equal(t, models.KindAuth, models.KindOf(err))
}

func TestVerifyState_OtherSecretRejected(t *testing.T) {
	s := newTestSessionService(t)
	other, err := NewSessionService(SessionConfig{Secret: "ffffffffffffffffffffffffffffffff", StateTTL: time.Minute})
	require.NoError(t, err)

	state, err := other.IssueState()
	require.NoError(t, err)

	err = s.VerifyState(state, state)
	assert.Equal(t, models.KindAuth, models.KindOf(err))
}

func TestSession_RoundTrip(t *testing.T) {
	s := newTestSessionService(t)
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)

	raw, err := s.IssueSession(testSession(expiresAt))
	require.NoError(t, err)
	assert.NotContains(t, raw, "tok1", "access token must not appear in clear text")

	session, err := s.OpenSession(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, "Jane Doe", session.Name)
	assert.Equal(t, "tok1", session.Token.AccessToken)
	assert.Equal(t, "u1", session.Token.UserID)
	assert.Equal(t, "openid w_member_social", session.Token.Scope)
	assert.True(t, session.Token.ExpiresAt.Equal(expiresAt))
}

func TestIssueSession_Rejects(t *testing.T) {
	s := newTestSessionService(t)

	_, err := s.IssueSession(testSession(time.Now().Add(-time.Minute)))
	assert.Equal(t, models.KindAuth, models.KindOf(err))

	noUser := testSession(time.Now().Add(time.Hour))
	noUser.UserID = ""
	_, err = s.IssueSession(noUser)
	assert.Equal(t, models.KindAuth, models.KindOf(err))
}

func TestOpenSession_ExpiresWithProviderToken(t *testing.T) {
	s := newTestSessionService(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	raw, err := s.IssueSession(testSession(now.Add(time.Hour)))
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(time.Hour + time.Second) }
	_, err = s.OpenSession(raw)
	require.Error(t, err)
	assert.Equal(t, models.KindAuth, models.KindOf(err))
}

func TestOpenSession_Tampered(t *testing.T) {
	s := newTestSessionService(t)

	raw, err := s.IssueSession(testSession(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "garbage", raw: "not-a-token"},
		{name: "truncated", raw: raw[:len(raw)-10]},
		{name: "signed with another secret", raw: foreignSession(t)},
		{name: "state token", raw: mustIssueState(t, s)},
		{name: "unsigned", raw: unsignedSession(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.OpenSession(tt.raw)
			require.Error(t, err)
			assert.Equal(t, models.KindAuth, models.KindOf(err))
		})
	}
}

func TestOpenSession_SealedTokenBoundToSubject(t *testing.T) {
	s := newTestSessionService(t)

	raw, err := s.IssueSession(testSession(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	session, err := s.OpenSession(raw)
	require.NoError(t, err)

	// Re-sign the same sealed token for another user
	claims := &sessionClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(raw, claims)
	require.NoError(t, err)
	claims.Subject = "u2"
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	require.NoError(t, err)

	_, err = s.OpenSession(forged)
	require.Error(t, err)
	assert.Equal(t, models.KindAuth, models.KindOf(err))
	assert.Equal(t, "u1", session.UserID)
}

func mustIssueState(t *testing.T, s *SessionService) string {
	t.Helper()
	state, err := s.IssueState()
	require.NoError(t, err)
	return state
}

func foreignSession(t *testing.T) string {
	t.Helper()
	other, err := NewSessionService(SessionConfig{Secret: "ffffffffffffffffffffffffffffffff", StateTTL: time.Minute})
	require.NoError(t, err)
	raw, err := other.IssueSession(testSession(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	return raw
}

func unsignedSession(t *testing.T) string {
	t.Helper()
	claims := &sessionClaims{
		SealedToken: "x",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return raw
}

func TestSessionMiddleware(t *testing.T) {
	s := newTestSessionService(t)
	raw, err := s.IssueSession(testSession(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	handler := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		w.Write([]byte(session.UserID))
	}))

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
	}{
		{name: "no credentials", setup: func(r *http.Request) {}, wantStatus: http.StatusUnauthorized},
		{
			name:       "bearer header",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+raw) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "cookie",
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: raw}) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "bad bearer",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "u1", rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"code":"auth"`)
			}
		})
	}
}
