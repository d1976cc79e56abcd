package cloudsign

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// tokenTimeout bounds the token endpoint call.
	tokenTimeout = 10 * time.Second
	// tokenSafetyMargin expires cached tokens early so a token never goes stale
	// mid-request.
	tokenSafetyMargin = 60 * time.Second
)

// tokenSource owns the cached access token for one set of credentials. The
// cache is process-wide shared state: a mutex guards reads and writes, and
// concurrent refreshes are collapsed through singleflight so a slow response
// can never clobber a newer token.
type tokenSource struct {
	creds      Credentials
	httpClient *http.Client
	now        func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenSource(creds Credentials, httpClient *http.Client) *tokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: tokenTimeout}
	}
	return &tokenSource{
		creds:      creds.normalized(),
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Token returns the cached access token when it is still valid, otherwise it
// exchanges the client id for a fresh one. A token is valid only while the
// current time is before expiresAt, which already accounts for the safety
// margin.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	if t.token != "" && t.now().Before(t.expiresAt) {
		token := t.token
		t.mu.Unlock()
		return token, nil
	}
	t.mu.Unlock()

	v, err, _ := t.group.Do("token", func() (any, error) {
		return t.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate clears the cached token. The gateway calls this when a request
// comes back 401.
func (t *tokenSource) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.expiresAt = time.Time{}
	t.mu.Unlock()
}

func (t *tokenSource) fetch(ctx context.Context) (string, error) {
	if err := t.creds.validate(); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("client_id", t.creds.ClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.creds.BaseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("cloudsign: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Op: "token", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", &NetworkError{Op: "token", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &AuthError{Msg: fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &AuthError{Msg: "malformed token response", Err: err}
	}
	if parsed.AccessToken == "" {
		return "", &AuthError{Msg: "access token missing from response"}
	}

	expiresAt := t.now().Add(time.Duration(parsed.ExpiresIn)*time.Second - tokenSafetyMargin)

	t.mu.Lock()
	t.token = parsed.AccessToken
	t.expiresAt = expiresAt
	t.mu.Unlock()

	return parsed.AccessToken, nil
}
