package robinhood

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"github.com/igefined/generic-trader/internal/domain"
)

// Public client id of the broker's web app.
const clientID = "c82SH0WZOsabOXGP2sxqcj34FxkvfnWRZBKlBjFS"

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	MFARequired  bool   `json:"mfa_required"`
	Detail       string `json:"detail"`
}

// PasswordLogin signs in with username and password, answering the MFA
// challenge with a TOTP code when a secret is configured.
type PasswordLogin struct {
	http        *resty.Client
	username    string
	password    string
	totpSecret  string
	deviceToken string
	now         func() time.Time
}

func NewPasswordLogin(baseURL, username, password, totpSecret string) *PasswordLogin {
	return &PasswordLogin{
		http:        resty.New().SetBaseURL(baseURL).SetTimeout(20 * time.Second),
		username:    username,
		password:    password,
		totpSecret:  totpSecret,
		deviceToken: uuid.NewString(),
		now:         time.Now,
	}
}

func (l *PasswordLogin) Authenticate(ctx context.Context) (domain.Session, error) {
	form := map[string]string{
		"client_id":    clientID,
		"expires_in":   "86400",
		"grant_type":   "password",
		"scope":        "internal",
		"username":     l.username,
		"password":     l.password,
		"device_token": l.deviceToken,
	}

	if l.totpSecret != "" {
		code, err := totp.GenerateCode(l.totpSecret, l.now())
		if err != nil {
			return domain.Session{}, fmt.Errorf("generate mfa code: %w", err)
		}
		form["mfa_code"] = code
	}

	return l.token(ctx, form, domain.Session{})
}

func (l *PasswordLogin) Refresh(ctx context.Context, s domain.Session) (domain.Session, error) {
	return l.token(ctx, map[string]string{
		"client_id":     clientID,
		"grant_type":    "refresh_token",
		"refresh_token": s.RefreshToken,
		"scope":         "internal",
		"expires_in":    "86400",
	}, s)
}

func (l *PasswordLogin) token(ctx context.Context, form map[string]string, prev domain.Session) (domain.Session, error) {
	var result tokenResponse

	resp, err := l.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&result).
		SetError(&result).
		Post("/oauth2/token/")
	if err != nil {
		return domain.Session{}, domain.TransportError("token request", err)
	}
	if resp.IsError() {
		return domain.Session{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode(), result.Detail)
	}
	if result.MFARequired {
		return domain.Session{}, fmt.Errorf("mfa code required but no totp secret configured")
	}
	if result.AccessToken == "" {
		return domain.Session{}, domain.MalformedError("token response without access_token")
	}

	expires := l.now().Add(time.Duration(result.ExpiresIn) * time.Second)
	s := domain.Session{
		AccessToken:     result.AccessToken,
		RefreshToken:    result.RefreshToken,
		AccessExpiresAt: expires,
		ExpiresAt:       expires,
		AccountID:       prev.AccountID,
	}
	if s.RefreshToken == "" {
		s.RefreshToken = prev.RefreshToken
	}
	return s, nil
}
