package models

import (
	"time"
)

// Profile is a read-only snapshot of the authenticated member, fetched per request
type Profile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Headline   string `json:"headline,omitempty"`
	Email      string `json:"email,omitempty"`
	PictureURL string `json:"picture_url,omitempty"`
}

// Token is the provider access token obtained from the authorization-code exchange
type Token struct {
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
	Scope       string    `json:"scope,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
}

// Expired reports whether the token must no longer be used at the given instant
func (t *Token) Expired(now time.Time) bool {
	return t == nil || t.AccessToken == "" || !now.Before(t.ExpiresAt)
}

// Session is what a signed-in client carries between requests
type Session struct {
	UserID string
	Name   string
	Token  Token
}
