// Package rets implements the authenticated RETS protocol client (C1) and
// the response parser (C2) described in spec.md §4.1-4.2.
package rets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config carries the credentials and static headers spec.md §6.4 requires.
type Config struct {
	LoginURL  string
	Version   string // RETS-Version header value
	Vendor    string
	Username  string
	Password  string
	UserAgent string

	// CachePath is the well-known path for the session+capabilities cache
	// (spec.md §6.5: cache/rets-capabilities.json).
	CachePath string

	// RequestsPerSecond throttles outgoing requests to the remote server;
	// 0 disables throttling.
	RequestsPerSecond float64
}

const sessionTTL = time.Hour

// Client is the authenticated RETS HTTPS client.
type Client struct {
	cfg     Config
	http    *http.Client
	cache   *sessionCache
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewClient builds a Client with a 5 minute request timeout and keep-alive
// transport, per spec.md §4.1.
func NewClient(cfg Config, log *slog.Logger) *Client {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				DisableKeepAlives: false,
			},
		},
		cache:   newSessionCache(cfg.CachePath),
		limiter: limiter,
		log:     log,
	}
}

// Login returns a cached session if it has not yet expired, otherwise
// performs a fresh HTTPS login and caches the result.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	if cached, err := c.cache.load(); err == nil && cached != nil && !cached.Expired(time.Now()) {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.LoginURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	q := req.URL.Query()
	q.Set("rets-version", c.cfg.Version)
	req.URL.RawQuery = q.Encode()

	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("RETS-Version", c.cfg.Version)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	cookies := resp.Header.Values("Set-Cookie")
	if len(cookies) == 0 {
		return nil, ErrNoCookie
	}
	cookieHeader := joinCookies(cookies)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	parsed, err := ParseLoginResponse(string(body))
	if err != nil {
		return nil, err
	}
	if parsed.ReplyCode != "" && parsed.ReplyCode != "0" {
		return nil, fmt.Errorf("%w: %s", ErrLoginRejected, parsed.ReplyText)
	}

	session := &Session{
		SessionID:      cookieHeader,
		SessionExpires: time.Now().Add(sessionTTL),
		Capabilities:   resolveCapabilities(c.cfg.LoginURL, parsed.Capabilities),
	}

	if err := c.cache.save(session); err != nil {
		c.log.Warn("failed to persist rets session cache", "error", err)
	}

	return session, nil
}

// Logout calls the Logout capability URL; failure is logged, not returned,
// matching spec.md §4.1 ("Failure is non-fatal").
func (c *Client) Logout(ctx context.Context, session *Session) {
	logoutURL, ok := session.Capabilities["Logout"]
	if !ok {
		return
	}
	if _, _, err := c.AuthenticatedRequest(ctx, session, logoutURL, nil); err != nil {
		c.log.Warn("rets logout failed", "error", err)
		return
	}
	if err := c.cache.clear(); err != nil {
		c.log.Warn("failed to clear rets session cache", "error", err)
	}
}

// AuthenticatedRequest issues a GET against an absolute-or-relative
// capability URL carrying the session cookie, Basic auth and protocol
// headers. The caller decides whether to treat the body as text or binary.
func (c *Client) AuthenticatedRequest(ctx context.Context, session *Session, capURL string, query url.Values) ([]byte, http.Header, error) {
	absURL, err := c.resolve(capURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, absURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}

	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Cookie", session.SessionID)
	req.Header.Set("RETS-Version", c.cfg.Version)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	if err := c.throttle(ctx); err != nil {
		return nil, nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	return body, resp.Header, nil
}

// Capability resolves a named capability URL (Search, GetObject, ...)
// against the session, returning an error if the server never advertised it.
func (c *Client) Capability(session *Session, name string) (string, error) {
	u, ok := session.Capabilities[name]
	if !ok {
		return "", fmt.Errorf("rets: capability %q not advertised", name)
	}
	return u, nil
}

func (c *Client) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (c *Client) resolve(capURL string) (string, error) {
	u, err := url.Parse(capURL)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return capURL, nil
	}
	base, err := url.Parse(c.cfg.LoginURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

// resolveCapabilities turns every capability value into an absolute URL
// relative to the login URL, so downstream callers never re-derive a base.
func resolveCapabilities(loginURL string, raw map[string]string) map[string]string {
	base, err := url.Parse(loginURL)
	if err != nil {
		return raw
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if u, err := url.Parse(v); err == nil && !u.IsAbs() {
			out[k] = base.ResolveReference(u).String()
			continue
		}
		out[k] = v
	}
	return out
}

// joinCookies concatenates every Set-Cookie header's name=value part into
// a single Cookie header value, discarding attributes like Path/Expires.
func joinCookies(cookies []string) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if semi := strings.Index(c, ";"); semi >= 0 {
			c = c[:semi]
		}
		parts = append(parts, strings.TrimSpace(c))
	}
	return strings.Join(parts, "; ")
}
