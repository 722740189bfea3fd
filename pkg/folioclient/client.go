package folioclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Default cookie and header names used by the server.
const (
	SessionCookie = "folio_session"
	CSRFCookie    = "folio_csrf"
	CSRFHeader    = "X-CSRF-Token"
)

// Client talks to the Folio admin API the way a browser does: it keeps the
// session and CSRF cookies in a jar and echoes the CSRF token on every
// state-changing request.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// SkipCSRF stops the client from echoing the CSRF token. Only useful for
	// exercising the server's rejection path.
	SkipCSRF bool

	base *url.URL
}

// New returns a Client with its own cookie jar.
func New(baseURL string) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("folioclient: invalid base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseURL:    base.String(),
		HTTPClient: &http.Client{Timeout: 10 * time.Second, Jar: jar},
		base:       base,
	}, nil
}

// cookie returns the named cookie the jar would send to the server.
func (c *Client) cookie(name string) string {
	if c.HTTPClient.Jar == nil {
		return ""
	}
	for _, ck := range c.HTTPClient.Jar.Cookies(c.base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// CSRFToken returns the token currently held in the jar.
func (c *Client) CSRFToken() string { return c.cookie(CSRFCookie) }

// HasSession reports whether the jar holds a session cookie.
func (c *Client) HasSession() bool { return c.cookie(SessionCookie) != "" }

func (c *Client) do(ctx context.Context, method, path string, in, out any, expected int) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !c.SkipCSRF && method != http.MethodGet && method != http.MethodHead {
		if tok := c.CSRFToken(); tok != "" {
			req.Header.Set(CSRFHeader, tok)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != expected {
		return parseErrorResponse(resp, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ============================================================================
// Health
// ============================================================================

func (c *Client) Liveness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	return &out, c.do(ctx, http.MethodGet, "/livez", nil, &out, http.StatusOK)
}

func (c *Client) Readiness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	return &out, c.do(ctx, http.MethodGet, "/readyz", nil, &out, http.StatusOK)
}
