// Package gateway wraps every outbound API call. It attaches the current
// bearer token and, on a 401, refreshes the session once and resends the
// original request exactly once. Other failures are returned untouched.
package gateway

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

	"github.com/google/uuid"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/model"
)

// Session is what the gateway needs from the session manager.
type Session interface {
	AccessToken() string
	Refresh(ctx context.Context) (*model.Session, error)
	// ForceLogout ends the session whose access token was token, unless
	// another session already replaced it (then it reports false).
	ForceLogout(ctx context.Context, token string, reason error) bool
}

// Request describes one API call. Body is JSON-encoded once so a retry
// resends identical bytes.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
}

// Response is a successful (2xx) API response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Gateway sends authenticated requests to the booking API.
type Gateway struct {
	baseURL string
	http    *http.Client
	session Session
	log     *slog.Logger
}

// New returns a gateway for baseURL. client may be nil.
func New(baseURL string, client *http.Client, session Session, logger *slog.Logger) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		session: session,
		log:     logger.With("component", "gateway"),
	}
}

// call is the per-request auth context: the encoded request plus the
// one-shot retried flag.
type call struct {
	req     Request
	body    []byte
	id      string
	retried bool
}

// Do sends req. On 401 it refreshes the session once and retries once;
// a second 401, or a rejected refresh token, forces a logout and returns
// ErrAuthInvalid.
func (g *Gateway) Do(ctx context.Context, req Request) (*Response, error) {
	c := &call{req: req, id: uuid.NewString()}
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s body: %w", req.Method, req.Path, err)
		}
		c.body = b
	}

	for {
		resp, used, err := g.send(ctx, c)
		if err != nil {
			return nil, err
		}
		if resp.Status != http.StatusUnauthorized {
			if resp.Status < 200 || resp.Status > 299 {
				return nil, apperror.NewHTTPError(req.Method, req.Path, resp.Status, resp.Body)
			}
			return resp, nil
		}

		if c.retried {
			err := fmt.Errorf("%w: %s %s rejected after refresh", apperror.ErrAuthInvalid, req.Method, req.Path)
			g.session.ForceLogout(ctx, used, err)
			return nil, err
		}
		c.retried = true
		if cur := g.session.AccessToken(); cur != "" && cur != used {
			// another caller refreshed while this request was in flight
			continue
		}
		g.log.Debug("401, refreshing session", "request_id", c.id, "path", req.Path)
		if _, err := g.session.Refresh(ctx); err != nil {
			if errors.Is(err, apperror.ErrAuthInvalid) {
				if !g.session.ForceLogout(ctx, used, err) && g.session.AccessToken() != "" {
					// a new login replaced the session that failed; the
					// single retry goes out with its token
					continue
				}
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", apperror.ErrAuthExpired, err)
		}
	}
}

// send performs one HTTP exchange and reports the bearer it used. The token
// is read from the session at this point, never captured earlier, so a
// retry carries the token the refresh just produced.
func (g *Gateway) send(ctx context.Context, c *call) (*Response, string, error) {
	u := g.baseURL + c.req.Path
	if len(c.req.Query) > 0 {
		u += "?" + c.req.Query.Encode()
	}
	var body io.Reader
	if c.body != nil {
		body = bytes.NewReader(c.body)
	}
	hreq, err := http.NewRequestWithContext(ctx, c.req.Method, u, body)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	for k, vals := range c.req.Header {
		for _, v := range vals {
			hreq.Header.Add(k, v)
		}
	}
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("X-Request-ID", c.id)
	if c.body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	tok := g.session.AccessToken()
	if tok != "" {
		hreq.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := g.http.Do(hreq)
	if err != nil {
		g.log.Warn("request failed", "request_id", c.id, "method", c.req.Method, "path", c.req.Path, "error", err)
		return nil, "", fmt.Errorf("%w: %s %s: %v", apperror.ErrNetwork, c.req.Method, c.req.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s: %v", apperror.ErrNetwork, c.req.Path, err)
	}
	g.log.Debug("request",
		"request_id", c.id,
		"method", c.req.Method,
		"path", c.req.Path,
		"status", resp.StatusCode,
		"retried", c.retried,
		"duration", time.Since(start),
	)
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, tok, nil
}

// JSON sends req and decodes a successful body into out (when non-nil).
func (g *Gateway) JSON(ctx context.Context, req Request, out any) error {
	resp, err := g.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.Path, err)
	}
	return nil
}
