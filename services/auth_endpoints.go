package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/krshsl/influenceos/backend/models"
)

var errAuthRequired = models.NewAuthError("authentication required", nil)

// OAuthProvider is the part of the identity provider the sign-in flow uses
type OAuthProvider interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*models.Token, error)
	FetchProfile(ctx context.Context, token *models.Token) (*models.Profile, error)
}

type AuthEndpoints struct {
	sessions *SessionService
	provider OAuthProvider
}

type SessionResponse struct {
	User         *models.Profile `json:"user"`
	SessionToken string          `json:"session_token"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

func NewAuthEndpoints(sessions *SessionService, provider OAuthProvider) *AuthEndpoints {
	return &AuthEndpoints{
		sessions: sessions,
		provider: provider,
	}
}

// RegisterRoutes mounts the public sign-in routes
func (e *AuthEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Get("/linkedin/login", e.LoginHandler)
		r.Get("/linkedin/callback", e.CallbackHandler)
		r.Post("/logout", e.LogoutHandler)
	})
}

// RegisterProtectedRoutes mounts routes that need a session
func (e *AuthEndpoints) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/profile", e.ProfileHandler)
}

// LoginHandler starts the authorization-code flow
func (e *AuthEndpoints) LoginHandler(w http.ResponseWriter, r *http.Request) {
	state, err := e.sessions.IssueState()
	if err != nil {
		writeError(w, r, err)
		return
	}

	e.sessions.SetStateCookie(w, state)
	http.Redirect(w, r, e.provider.AuthCodeURL(state), http.StatusFound)

	slog.Info("Redirecting to LinkedIn for authorization")
}

// CallbackHandler completes the flow and issues the session
func (e *AuthEndpoints) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		e.sessions.ClearStateCookie(w)
		writeError(w, r, models.NewAuthError("authorization was not granted",
			errors.New(providerErr+": "+query.Get("error_description"))))
		return
	}

	err := e.sessions.VerifyState(query.Get("state"), GetTokenFromCookie(r, stateCookieName))
	e.sessions.ClearStateCookie(w)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := e.provider.ExchangeCode(r.Context(), query.Get("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	profile, err := e.provider.FetchProfile(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token.UserID = profile.ID

	session := &models.Session{
		UserID: profile.ID,
		Name:   profile.Name,
		Token:  *token,
	}
	sessionToken, err := e.sessions.IssueSession(session)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e.sessions.SetSessionCookie(w, sessionToken, token.ExpiresAt)

	writeJSON(w, http.StatusOK, SessionResponse{
		User:         profile,
		SessionToken: sessionToken,
		ExpiresAt:    token.ExpiresAt,
	})

	slog.Info("User signed in", "user_id", profile.ID, "expires_at", token.ExpiresAt)
}

// LogoutHandler drops the session cookie. The provider token itself is not revoked.
func (e *AuthEndpoints) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	e.sessions.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (e *AuthEndpoints) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, errAuthRequired)
		return
	}

	profile, err := e.provider.FetchProfile(r.Context(), &session.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": profile})
}
