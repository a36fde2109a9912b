package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/igefined/generic-trader/internal/domain"
)

type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	TokenType             string `json:"token_type"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
}

type tokenError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// TokenClient talks to an OAuth2 token endpoint for the authorization-code
// and refresh-token grants.
type TokenClient struct {
	client      *resty.Client
	tokenURL    string
	clientID    string
	redirectURI string
	now         func() time.Time
}

func NewTokenClient(tokenURL, clientID, redirectURI string) *TokenClient {
	return &TokenClient{
		client:      resty.New().SetTimeout(30 * time.Second),
		tokenURL:    tokenURL,
		clientID:    clientID,
		redirectURI: redirectURI,
		now:         time.Now,
	}
}

// Exchange trades an authorization code for a session.
func (c *TokenClient) Exchange(ctx context.Context, code string) (domain.Session, error) {
	return c.grant(ctx, map[string]string{
		"grant_type":   "authorization_code",
		"access_type":  "offline",
		"code":         code,
		"client_id":    c.clientID,
		"redirect_uri": c.redirectURI,
	}, domain.Session{})
}

// Refresh renews the access token of s. The refresh token and its expiry are
// kept when the endpoint does not rotate them.
func (c *TokenClient) Refresh(ctx context.Context, s domain.Session) (domain.Session, error) {
	if s.RefreshToken == "" {
		return domain.Session{}, fmt.Errorf("no refresh token")
	}
	return c.grant(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": s.RefreshToken,
		"client_id":     c.clientID,
	}, s)
}

func (c *TokenClient) grant(ctx context.Context, form map[string]string, prev domain.Session) (domain.Session, error) {
	var (
		result  tokenResponse
		failure tokenError
	)

	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&result).
		SetError(&failure).
		Post(c.tokenURL)
	if err != nil {
		return domain.Session{}, domain.TransportError("token request", err)
	}
	if resp.IsError() {
		return domain.Session{}, fmt.Errorf("token endpoint returned %d: %s %s", resp.StatusCode(), failure.Error, failure.Description)
	}
	if result.AccessToken == "" {
		return domain.Session{}, domain.MalformedError("token response without access_token")
	}

	now := c.now()
	s := domain.Session{
		AccessToken:     result.AccessToken,
		RefreshToken:    result.RefreshToken,
		AccessExpiresAt: now.Add(time.Duration(result.ExpiresIn) * time.Second),
		ExpiresAt:       prev.ExpiresAt,
		AccountID:       prev.AccountID,
	}
	if s.RefreshToken == "" {
		s.RefreshToken = prev.RefreshToken
	}
	switch {
	case result.RefreshTokenExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(result.RefreshTokenExpiresIn) * time.Second)
	case s.ExpiresAt.IsZero() && s.RefreshToken == "":
		s.ExpiresAt = s.AccessExpiresAt
	}

	return s, nil
}
