package services

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/krshsl/influenceos/backend/models"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	MinSessionSecretLength = 32

	stateCookieName   = "oauth_state"
	sessionCookieName = "session"

	stateIssuer   = "influenceos/oauth-state"
	sessionIssuer = "influenceos/session"
)

type contextKey string

const sessionContextKey contextKey = "session"

// SessionService issues and verifies the OAuth state parameter and the client session token
type SessionService struct {
	signingKey   []byte
	aead         cipher.AEAD
	stateTTL     time.Duration
	usedStates   *gocache.Cache
	cookieSecure bool
	now          func() time.Time
}

type stateClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

type sessionClaims struct {
	Name        string `json:"name,omitempty"`
	Scope       string `json:"scope,omitempty"`
	SealedToken string `json:"tok"`
	jwt.RegisteredClaims
}

func NewSessionService(config SessionConfig) (*SessionService, error) {
	if len(config.Secret) < MinSessionSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSessionSecretLength)
	}
	stateTTL := config.StateTTL
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}

	signingKey, err := deriveKey(config.Secret, "session-signing")
	if err != nil {
		return nil, err
	}
	sealingKey, err := deriveKey(config.Secret, "session-sealing")
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(sealingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cipher: %w", err)
	}

	return &SessionService{
		signingKey:   signingKey,
		aead:         aead,
		stateTTL:     stateTTL,
		usedStates:   gocache.New(stateTTL, time.Minute),
		cookieSecure: config.CookieSecure,
		now:          time.Now,
	}, nil
}

// deriveKey expands the configured secret into an independent 32-byte key per purpose
func deriveKey(secret, purpose string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", purpose, err)
	}
	return key, nil
}

// IssueState creates a signed, short-lived state value carrying a single-use nonce
func (s *SessionService) IssueState() (string, error) {
	now := s.now()
	claims := &stateClaims{
		Nonce: uuid.New().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.stateTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// VerifyState checks the callback state against the browser's cookie and consumes its nonce
func (s *SessionService) VerifyState(queryState, cookieState string) error {
	if queryState == "" {
		return models.NewValidationError("missing state parameter", nil)
	}
	if cookieState == "" || cookieState != queryState {
		return models.NewAuthError("state parameter does not match this browser", nil)
	}

	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(queryState, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return models.NewAuthError("invalid or expired state parameter", err)
	}
	if claims.Nonce == "" {
		return models.NewAuthError("state parameter has no nonce", nil)
	}
	if err := s.usedStates.Add(claims.Nonce, struct{}{}, s.stateTTL); err != nil {
		slog.Warn("OAuth state replayed", "nonce", claims.Nonce)
		return models.NewAuthError("state parameter already used", nil)
	}
	return nil
}

// IssueSession seals the provider token into a signed session token that expires with it
func (s *SessionService) IssueSession(session *models.Session) (string, error) {
	if session.Token.Expired(s.now()) {
		return "", models.NewAuthError("access token already expired", nil)
	}
	if session.UserID == "" {
		return "", models.NewAuthError("session has no user id", nil)
	}

	sealed, err := s.seal(session.Token.AccessToken, session.UserID)
	if err != nil {
		return "", err
	}

	claims := &sessionClaims{
		Name:        session.Name,
		Scope:       session.Token.Scope,
		SealedToken: sealed,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(session.Token.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// OpenSession verifies a session token and recovers the provider token it carries
func (s *SessionService) OpenSession(raw string) (*models.Session, error) {
	if raw == "" {
		return nil, models.NewAuthError("authentication required", nil)
	}

	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.NewAuthError("session expired", err)
		}
		return nil, models.NewAuthError("invalid session", err)
	}
	if claims.Subject == "" {
		return nil, models.NewAuthError("invalid session", nil)
	}

	accessToken, err := s.open(claims.SealedToken, claims.Subject)
	if err != nil {
		return nil, models.NewAuthError("invalid session", err)
	}

	session := &models.Session{
		UserID: claims.Subject,
		Name:   claims.Name,
		Token: models.Token{
			AccessToken: accessToken,
			ExpiresAt:   claims.ExpiresAt.Time,
			Scope:       claims.Scope,
			UserID:      claims.Subject,
		},
	}
	if session.Token.Expired(s.now()) {
		return nil, models.NewAuthError("session expired", nil)
	}
	return session, nil
}

func (s *SessionService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.signingKey, nil
}

// seal encrypts the access token, binding it to the user id
func (s *SessionService) seal(plaintext, userID string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(userID))
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *SessionService) open(sealed, userID string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed token: %w", err)
	}
	if len(data) < s.aead.NonceSize() {
		return "", errors.New("sealed token too short")
	}
	nonce, ciphertext := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(userID))
	if err != nil {
		return "", fmt.Errorf("failed to open sealed token: %w", err)
	}
	return string(plaintext), nil
}

// SetStateCookie binds the state to the browser that started the login
func (s *SessionService) SetStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.stateTTL.Seconds()),
	})
}

func (s *SessionService) ClearStateCookie(w http.ResponseWriter) {
	s.clearCookie(w, stateCookieName)
}

// SetSessionCookie stores the session token until the provider token expires
func (s *SessionService) SetSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (s *SessionService) ClearSessionCookie(w http.ResponseWriter) {
	s.clearCookie(w, sessionCookieName)
}

func (s *SessionService) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// GetTokenFromCookie extracts a cookie value, empty when absent
func GetTokenFromCookie(r *http.Request, cookieName string) string {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// sessionTokenFromRequest prefers an Authorization bearer token over the session cookie
func sessionTokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return GetTokenFromCookie(r, sessionCookieName)
}

// Middleware rejects requests without a live session and stores it in the context
func (s *SessionService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.OpenSession(sessionTokenFromRequest(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFromContext returns the session stored by Middleware
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*models.Session)
	return session, ok && session != nil
}
