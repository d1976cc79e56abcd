package cloudsign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// requestTimeout bounds document and file operations. It is deliberately
	// long enough to tolerate multi-megabyte PDF uploads.
	requestTimeout = 60 * time.Second
	// maxResponseSize caps response bodies read into memory.
	maxResponseSize = 32 << 20
)

// Client is the CloudSign API client. It owns its token state and is safe for
// concurrent use; construct one per process and inject it into callers.
type Client struct {
	mu     sync.RWMutex
	creds  Credentials
	tokens *tokenSource

	httpClient      *http.Client
	tokenHTTPClient *http.Client
	logger          *log.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the client used for document and file operations.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTokenHTTPClient replaces the client used for token acquisition.
func WithTokenHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.tokenHTTPClient = h }
}

// WithLogger sets the logger used for operational warnings.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a client for the given credentials. Empty credentials are allowed
// so the surrounding application can boot before CloudSign is configured; every
// remote operation then fails with ErrNotConfigured until UpdateCredentials is
// called with a valid configuration.
func New(creds Credentials, opts ...Option) *Client {
	c := &Client{
		creds:      creds.normalized(),
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokens = newTokenSource(c.creds, c.tokenHTTPClient)
	return c
}

// NewFromSource loads credentials from src once and builds a client. Absence of
// configuration is surfaced as ErrNotConfigured.
func NewFromSource(ctx context.Context, src CredentialSource, opts ...Option) (*Client, error) {
	creds, err := src.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	return New(creds, opts...), nil
}

// UpdateCredentials swaps in new credentials and discards the token state. This
// is the single deliberate re-load path; credentials are otherwise immutable
// for the process lifetime.
func (c *Client) UpdateCredentials(creds Credentials) {
	creds = creds.normalized()
	c.mu.Lock()
	c.creds = creds
	c.tokens = newTokenSource(creds, c.tokenHTTPClient)
	c.mu.Unlock()
}

func (c *Client) snapshot() (Credentials, *tokenSource) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds, c.tokens
}

// call describes one HTTP request to the CloudSign API. At most one of form,
// json, and file may be set.
type call struct {
	method string
	path   string
	form   url.Values
	json   any
	file   *fileUpload
}

// fileUpload is a multipart upload: the file part plus accompanying form
// fields.
type fileUpload struct {
	field   string
	name    string
	content []byte
	fields  url.Values
}

// do performs an authenticated call. On 401 it invalidates the token, fetches a
// fresh one, and retries exactly once; a second 401 becomes an AuthError. Any
// other non-2xx status becomes an APIError without retry. A 204 yields a nil
// body with a nil error, the explicit no-content result.
func (c *Client) do(ctx context.Context, cl call) ([]byte, error) {
	creds, tokens := c.snapshot()
	if err := creds.validate(); err != nil {
		return nil, err
	}

	token, err := tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	body, status, err := c.send(ctx, creds, cl, token)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		tokens.Invalidate()
		token, err = tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		body, status, err = c.send(ctx, creds, cl, token)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, &AuthError{Msg: cl.method + " " + cl.path + " unauthorized after token refresh"}
		}
	}

	switch {
	case status == http.StatusNoContent:
		return nil, nil
	case status < 200 || status >= 300:
		return nil, &APIError{Status: status, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, creds Credentials, cl call, token string) ([]byte, int, error) {
	var (
		reader      io.Reader
		contentType string
	)

	switch {
	case cl.file != nil:
		buf := &bytes.Buffer{}
		w := multipart.NewWriter(buf)
		for key, values := range cl.file.fields {
			for _, v := range values {
				if err := w.WriteField(key, v); err != nil {
					return nil, 0, fmt.Errorf("cloudsign: write multipart field: %w", err)
				}
			}
		}
		part, err := w.CreateFormFile(cl.file.field, cl.file.name)
		if err != nil {
			return nil, 0, fmt.Errorf("cloudsign: create multipart file: %w", err)
		}
		if _, err := part.Write(cl.file.content); err != nil {
			return nil, 0, fmt.Errorf("cloudsign: write multipart file: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, 0, fmt.Errorf("cloudsign: close multipart writer: %w", err)
		}
		reader = buf
		contentType = w.FormDataContentType()
	case cl.json != nil:
		encoded, err := json.Marshal(cl.json)
		if err != nil {
			return nil, 0, fmt.Errorf("cloudsign: marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	case cl.form != nil:
		reader = strings.NewReader(cl.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, creds.BaseURL+cl.path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("cloudsign: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &NetworkError{Op: cl.method + " " + cl.path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, 0, &NetworkError{Op: cl.method + " " + cl.path, Err: err}
	}

	return body, resp.StatusCode, nil
}
