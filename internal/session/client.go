package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/model"
)

// doJSON performs one auth endpoint call. The session manager talks to the
// auth endpoints directly rather than through the gateway, since the
// gateway itself depends on the manager for refreshes.
func (m *Manager) doJSON(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", apperror.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", apperror.ErrNetwork, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperror.NewHTTPError(method, path, resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// fetchUser calls GET /auth/me with the given access token.
func (m *Manager) fetchUser(ctx context.Context, access string) (model.User, error) {
	var u model.User
	if err := m.doJSON(ctx, http.MethodGet, "/auth/me", access, nil, &u); err != nil {
		return model.User{}, fmt.Errorf("fetch profile: %w", err)
	}
	if u.IsZero() {
		return model.User{}, fmt.Errorf("fetch profile: empty profile")
	}
	return u, nil
}

// statusIn reports whether err is an HTTPError with one of the codes.
func statusIn(err error, codes ...int) bool {
	he, ok := asHTTPError(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if he.Status == c {
			return true
		}
	}
	return false
}

func asHTTPError(err error) (*apperror.HTTPError, bool) {
	var he *apperror.HTTPError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
