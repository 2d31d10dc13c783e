package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/krshsl/influenceos/backend/models"
)

const (
	defaultLinkedInAuthURL    = "https://www.linkedin.com/oauth/v2/authorization"
	defaultLinkedInTokenURL   = "https://www.linkedin.com/oauth/v2/accessToken"
	defaultLinkedInProfileURL = "https://api.linkedin.com/v2/userinfo"
	defaultLinkedInPublishURL = "https://api.linkedin.com/v2/ugcPosts"

	// MaxPostLength is the commentary limit LinkedIn enforces on member posts
	MaxPostLength = 3000

	maxResponseBody = 1 << 20
)

// LinkedInClient talks to the LinkedIn OAuth, userinfo and UGC post endpoints
type LinkedInClient struct {
	config  LinkedInConfig
	client  *http.Client
	metrics *Metrics
	now     func() time.Time
}

func NewLinkedInClient(config LinkedInConfig, timeout time.Duration, metrics *Metrics) *LinkedInClient {
	if config.AuthURL == "" {
		config.AuthURL = defaultLinkedInAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultLinkedInTokenURL
	}
	if config.ProfileURL == "" {
		config.ProfileURL = defaultLinkedInProfileURL
	}
	if config.PublishURL == "" {
		config.PublishURL = defaultLinkedInPublishURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LinkedInClient{
		config:  config,
		client:  &http.Client{Timeout: timeout},
		metrics: metrics,
		now:     time.Now,
	}
}

// AuthCodeURL builds the provider authorization URL the browser is redirected to
func (c *LinkedInClient) AuthCodeURL(state string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {c.config.ClientID},
		"redirect_uri":  {c.config.RedirectURL},
		"scope":         {strings.Join(c.config.Scopes, " ")},
		"state":         {state},
	}
	return c.config.AuthURL + "?" + params.Encode()
}

// tokenResponse is the token endpoint contract
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
	TokenType   string `json:"token_type"`
}

// providerError is the error body returned by the OAuth endpoints
type providerError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func (e providerError) String() string {
	switch {
	case e.Error != "" && e.ErrorDescription != "":
		return e.Error + ": " + e.ErrorDescription
	case e.Error != "":
		return e.Error
	default:
		return e.Message
	}
}

// ExchangeCode trades an authorization code for an access token. One attempt, no retry.
func (c *LinkedInClient) ExchangeCode(ctx context.Context, code string) (*models.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, models.NewValidationError("authorization code is required", nil)
	}

	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.config.RedirectURL},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req, "token_exchange")
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		var perr providerError
		_ = json.Unmarshal(body, &perr)
		slog.Warn("Token exchange rejected", "status", status, "error", perr.String())
		return nil, models.NewAuthError(
			fmt.Sprintf("token exchange failed with status %d", status),
			errors.New(perr.String()),
		)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, models.NewAuthError("malformed token response", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, models.NewAuthError("empty access token in response", nil)
	}
	if tokenResp.ExpiresIn <= 0 {
		return nil, models.NewAuthError("token response has no usable expiry", nil)
	}

	token := &models.Token{
		AccessToken: tokenResp.AccessToken,
		ExpiresAt:   c.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
		Scope:       tokenResp.Scope,
	}
	slog.Info("Authorization code exchanged", "expires_at", token.ExpiresAt, "scope", token.Scope)
	return token, nil
}

// userInfoResponse accepts both the OIDC userinfo shape and the plain {id, name} shape
type userInfoResponse struct {
	Sub        string `json:"sub"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Headline   string `json:"headline"`
	Email      string `json:"email"`
	Picture    string `json:"picture"`
}

// FetchProfile retrieves the authenticated member's profile
func (c *LinkedInClient) FetchProfile(ctx context.Context, token *models.Token) (*models.Profile, error) {
	if token.Expired(c.now()) {
		return nil, models.NewAuthError("access token expired", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.ProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req, "profile_fetch")
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, models.NewAuthError(fmt.Sprintf("profile request rejected with status %d", status), nil)
	case status != http.StatusOK:
		return nil, models.NewNetworkError(fmt.Sprintf("profile request failed with status %d", status), nil)
	}

	var info userInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, models.NewNetworkError("malformed profile response", err)
	}

	profile := &models.Profile{
		ID:         info.Sub,
		Name:       info.Name,
		GivenName:  info.GivenName,
		FamilyName: info.FamilyName,
		Headline:   info.Headline,
		Email:      info.Email,
		PictureURL: info.Picture,
	}
	if profile.ID == "" {
		profile.ID = info.ID
	}
	if profile.ID == "" {
		return nil, models.NewNetworkError("profile response has no member id", nil)
	}
	if profile.Name == "" {
		profile.Name = strings.TrimSpace(info.GivenName + " " + info.FamilyName)
	}
	return profile, nil
}

// ugcPost is the UGC publish request body
type ugcPost struct {
	Author          string            `json:"author"`
	LifecycleState  string            `json:"lifecycleState"`
	SpecificContent ugcContent        `json:"specificContent"`
	Visibility      map[string]string `json:"visibility"`
}

type ugcContent struct {
	ShareContent ugcShareContent `json:"com.linkedin.ugc.ShareContent"`
}

type ugcShareContent struct {
	ShareCommentary    ugcText `json:"shareCommentary"`
	ShareMediaCategory string  `json:"shareMediaCategory"`
}

type ugcText struct {
	Text string `json:"text"`
}

// publishResponse accepts the id under either key
type publishResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// Publish posts text on behalf of the token's member and returns the provider post id
func (c *LinkedInClient) Publish(ctx context.Context, token *models.Token, text string) (string, error) {
	if token.Expired(c.now()) {
		return "", models.NewAuthError("access token expired", nil)
	}
	if token.UserID == "" {
		return "", models.NewAuthError("access token is not bound to a member", nil)
	}
	if strings.TrimSpace(text) == "" {
		return "", models.NewPublishError("post text is empty", nil)
	}
	if n := utf8.RuneCountInString(text); n > MaxPostLength {
		return "", models.NewPublishError(fmt.Sprintf("post text is %d characters, limit is %d", n, MaxPostLength), nil)
	}

	payload := ugcPost{
		Author:         "urn:li:person:" + token.UserID,
		LifecycleState: "PUBLISHED",
		SpecificContent: ugcContent{
			ShareContent: ugcShareContent{
				ShareCommentary:    ugcText{Text: text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal publish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.PublishURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create publish request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, body, err := c.doResponse(req, "publish")
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", models.NewAuthError(fmt.Sprintf("publish rejected with status %d", resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		var perr providerError
		_ = json.Unmarshal(body, &perr)
		return "", models.NewPublishError(
			fmt.Sprintf("provider rejected post with status %d", resp.StatusCode),
			errors.New(perr.String()),
		)
	}

	var pr publishResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &pr); err != nil {
			return "", models.NewPublishError("malformed publish response", err)
		}
	}
	postID := pr.PostID
	if postID == "" {
		postID = pr.ID
	}
	if postID == "" {
		postID = resp.Header.Get("X-Restli-Id")
	}
	if postID == "" {
		return "", models.NewPublishError("provider did not return a post id", nil)
	}

	slog.Info("Post published", "user_id", token.UserID, "provider_post_id", postID)
	return postID, nil
}

func (c *LinkedInClient) do(req *http.Request, operation string) (int, []byte, error) {
	resp, body, err := c.doResponse(req, operation)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// doResponse performs the call and reads a bounded body. Transport failures become NetworkErrors.
func (c *LinkedInClient) doResponse(req *http.Request, operation string) (*http.Response, []byte, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream("linkedin", operation, "transport_error", time.Since(start))
		slog.Error("LinkedIn request failed", "operation", operation, "error", err)
		return nil, nil, models.NewNetworkError(operation+" request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		c.metrics.ObserveUpstream("linkedin", operation, "transport_error", time.Since(start))
		return nil, nil, models.NewNetworkError("failed to read "+operation+" response", err)
	}

	c.metrics.ObserveUpstream("linkedin", operation, outcomeLabel(resp.StatusCode), time.Since(start))
	return resp, body, nil
}

func outcomeLabel(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "success"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "unauthorized"
	case status >= 500:
		return "server_error"
	default:
		return "rejected"
	}
}
