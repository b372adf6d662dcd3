package ebay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cfinder/cfinder/backend/internal/metrics"
)

const (
	defaultOAuthURL = "https://api.ebay.com/identity/v1/oauth2/token"
	oauthScope      = "https://api.ebay.com/oauth/api_scope"

	// Tokens are refreshed this long before their declared expiry so a
	// request never goes out with a token about to die mid-flight.
	tokenRefreshMargin = 60 * time.Second
)

// TokenSource caches a single client-credentials token and refreshes it
// proactively before expiry. The mutex is held across the exchange, so
// concurrent callers during a cold cache share one outbound call.
type TokenSource struct {
	appID    string
	certID   string
	oauthURL string
	client   *http.Client
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

func NewTokenSource(appID, certID string) *TokenSource {
	return &TokenSource{
		appID:    appID,
		certID:   certID,
		oauthURL: defaultOAuthURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// Configured reports whether marketplace credentials are present.
func (t *TokenSource) Configured() bool {
	return t.appID != "" && t.certID != ""
}

// Token returns a valid access token, performing a client-credentials
// exchange if the cached one is missing or expired. Failures are not
// retried and never cached.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Before(t.expiresAt) {
		return t.token, nil
	}

	if !t.Configured() {
		return "", fmt.Errorf("ebay credentials not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", oauthScope)

	req, err := http.NewRequestWithContext(ctx, "POST", t.oauthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}

	auth := base64.StdEncoding.EncodeToString([]byte(t.appID + ":" + t.certID))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("ebay_oauth", "error").Inc()
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("ebay_oauth", "error").Inc()
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	if tr.Error != "" || tr.AccessToken == "" {
		metrics.UpstreamRequestsTotal.WithLabelValues("ebay_oauth", "error").Inc()
		return "", fmt.Errorf("token exchange rejected: %s %s", tr.Error, tr.ErrorDesc)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues("ebay_oauth", "success").Inc()

	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	if lifetime <= tokenRefreshMargin {
		// Implausibly short lifetime; use the token once but don't cache it.
		return tr.AccessToken, nil
	}

	t.token = tr.AccessToken
	t.expiresAt = t.now().Add(lifetime - tokenRefreshMargin)
	return t.token, nil
}

// Invalidate drops the cached token so the next Token call performs a fresh
// exchange. Used by the rate-limit retry path.
func (t *TokenSource) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.expiresAt = time.Time{}
	t.mu.Unlock()
}
