package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/domain"
)

// CodeCapturer drives a login page until it redirects to redirectURI and
// returns the full redirect URL.
type CodeCapturer interface {
	Capture(ctx context.Context, loginURL, redirectURI string) (string, error)
}

// ChromeCapturer opens a Chrome window through the DevTools protocol and waits
// for the user to finish the provider's login.
type ChromeCapturer struct {
	Headless bool
	Poll     time.Duration
}

func (c ChromeCapturer) Capture(ctx context.Context, loginURL, redirectURI string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", c.Headless))
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(loginURL)); err != nil {
		return "", fmt.Errorf("open login page: %w", err)
	}

	poll := c.Poll
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			var location string
			if err := chromedp.Run(browserCtx, chromedp.Location(&location)); err != nil {
				return "", fmt.Errorf("read browser location: %w", err)
			}
			if strings.HasPrefix(location, redirectURI) {
				return location, nil
			}
		}
	}
}

// BrowserLogin is the interactive AuthProvider: it sends the user through the
// provider's OAuth consent page and exchanges the returned code.
type BrowserLogin struct {
	authURL     string
	clientID    string
	redirectURI string
	accountID   string
	timeout     time.Duration
	capturer    CodeCapturer
	tokens      *TokenClient
	logger      *zap.Logger
}

func NewBrowserLogin(authURL, clientID, redirectURI, accountID string, capturer CodeCapturer, tokens *TokenClient, logger *zap.Logger) *BrowserLogin {
	return &BrowserLogin{
		authURL:     authURL,
		clientID:    clientID,
		redirectURI: redirectURI,
		accountID:   accountID,
		timeout:     5 * time.Minute,
		capturer:    capturer,
		tokens:      tokens,
		logger:      logger.Named("browser-login"),
	}
}

func (b *BrowserLogin) Authenticate(ctx context.Context) (domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	state := uuid.NewString()
	query := url.Values{
		"response_type": {"code"},
		"redirect_uri":  {b.redirectURI},
		"client_id":     {b.clientID},
		"state":         {state},
	}
	loginURL := b.authURL + "?" + query.Encode()

	b.logger.Info("Waiting for browser login", zap.String("redirect_uri", b.redirectURI))
	redirect, err := b.capturer.Capture(ctx, loginURL, b.redirectURI)
	if err != nil {
		return domain.Session{}, fmt.Errorf("browser login: %w", err)
	}

	code, err := codeFromRedirect(redirect, state)
	if err != nil {
		return domain.Session{}, err
	}

	s, err := b.tokens.Exchange(ctx, code)
	if err != nil {
		return domain.Session{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	s.AccountID = b.accountID
	return s, nil
}

func (b *BrowserLogin) Refresh(ctx context.Context, s domain.Session) (domain.Session, error) {
	return b.tokens.Refresh(ctx, s)
}

func codeFromRedirect(redirect, state string) (string, error) {
	u, err := url.Parse(redirect)
	if err != nil {
		return "", fmt.Errorf("parse redirect: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("login rejected: %s", e)
	}
	if q.Get("state") != state {
		return "", errors.New("login redirect state mismatch")
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("login redirect without code")
	}
	return code, nil
}

// RefreshLogin is the non-interactive AuthProvider for automated environments:
// it builds a session from a refresh token issued out of band.
type RefreshLogin struct {
	refreshToken string
	accountID    string
	tokens       *TokenClient
}

func NewRefreshLogin(refreshToken, accountID string, tokens *TokenClient) *RefreshLogin {
	return &RefreshLogin{refreshToken: refreshToken, accountID: accountID, tokens: tokens}
}

func (r *RefreshLogin) Authenticate(ctx context.Context) (domain.Session, error) {
	s, err := r.tokens.Refresh(ctx, domain.Session{RefreshToken: r.refreshToken, AccountID: r.accountID})
	if err != nil {
		return domain.Session{}, fmt.Errorf("refresh token login: %w", err)
	}
	return s, nil
}

func (r *RefreshLogin) Refresh(ctx context.Context, s domain.Session) (domain.Session, error) {
	return r.tokens.Refresh(ctx, s)
}
