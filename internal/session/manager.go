// Package session owns the authentication state of the client: the token
// pair, the cached user profile and the anonymous → authenticating →
// authenticated → refreshing state machine. A Manager is created once at
// startup and passed explicitly to the gateway and the companion server.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/credential"
	"github.com/iliyamo/fleet-booking-client/internal/model"
)

// State is the authentication state.
type State string

const (
	Anonymous      State = "anonymous"
	Authenticating State = "authenticating"
	Authenticated  State = "authenticated"
	Refreshing     State = "refreshing"
)

const refreshKey = "refresh"

// Options configures a Manager. BaseURL is required; the rest default.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
	// Skew makes tokens count as expired this long before their exp claim.
	Skew time.Duration
}

// Manager is the single source of truth for the current session.
type Manager struct {
	store   credential.Store
	baseURL string
	http    *http.Client
	log     *slog.Logger
	now     func() time.Time
	skew    time.Duration

	flight singleflight.Group

	mu        sync.RWMutex
	state     State
	sess      *model.Session
	gen       uint64 // bumped whenever the session is replaced or cleared
	restored   chan struct{} // closed when the refresh started by Restore ends
	restoreErr error
	onExpired []func(reason error)
	onLogout  []func()
}

// NewManager builds an anonymous manager. Call Restore to load persisted
// credentials.
func NewManager(store credential.Store, opts Options) *Manager {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:   store,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    opts.HTTPClient,
		log:     opts.Logger.With("component", "session"),
		now:     opts.Now,
		skew:    opts.Skew,
		state:   Anonymous,
	}
}

// IsExpired reports whether token is expired according to the manager's
// clock and skew. Malformed tokens are expired.
func (m *Manager) IsExpired(token string) bool {
	return IsExpired(token, m.now(), m.skew)
}

// State returns the current authentication state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AccessToken returns the current access token, or "" when anonymous. The
// gateway calls it at send time so a retry always carries the newest token.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil {
		return ""
	}
	return m.sess.AccessToken
}

// Current returns a copy of the session and whether one exists.
func (m *Manager) Current() (model.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil {
		return model.Session{}, false
	}
	return *m.sess, true
}

// OnExpired registers a callback run after a forced logout, e.g. to send
// the user back to the login surface.
func (m *Manager) OnExpired(fn func(reason error)) {
	m.mu.Lock()
	m.onExpired = append(m.onExpired, fn)
	m.mu.Unlock()
}

// OnLogout registers a callback run whenever the session ends, by Logout
// or by a forced logout. Per-user state held elsewhere is dropped there.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	m.onLogout = append(m.onLogout, fn)
	m.mu.Unlock()
}

func (m *Manager) runLogoutHooks() {
	m.mu.RLock()
	hooks := append([]func(){}, m.onLogout...)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// Restore resolves the initial state from the credential store:
//   - nothing stored: anonymous
//   - unexpired token with profile: authenticated
//   - expired token with refresh token: refreshing, with a refresh started
//     in the background (see Ready)
//   - expired token without refresh token, or token without profile:
//     credentials cleared, anonymous
func (m *Manager) Restore(ctx context.Context) State {
	blob, err := m.store.Load(ctx)
	if err != nil {
		m.log.Warn("credential store unreadable, starting anonymous", "error", err)
		m.clear(ctx)
		return Anonymous
	}
	if blob.Empty() {
		return Anonymous
	}
	if blob.User.IsZero() {
		m.log.Warn("stored token has no profile, clearing")
		m.clear(ctx)
		return Anonymous
	}

	sess := m.newSession(blob.Access, blob.Refresh, blob.User)
	if !m.IsExpired(blob.Access) {
		m.mu.Lock()
		m.sess, m.state = sess, Authenticated
		m.gen++
		m.mu.Unlock()
		return Authenticated
	}
	if blob.Refresh == "" {
		m.log.Info("stored token expired and no refresh token, clearing")
		m.clear(ctx)
		return Anonymous
	}

	m.mu.Lock()
	m.sess, m.state = sess, Refreshing
	m.gen++
	ch := m.flight.DoChan(refreshKey, func() (any, error) {
		return m.doRefresh(context.Background())
	})
	done := make(chan struct{})
	m.restored = done
	m.mu.Unlock()

	go func() {
		r := <-ch
		m.mu.Lock()
		m.restoreErr = r.Err
		m.mu.Unlock()
		close(done)
	}()
	return Refreshing
}

// Ready waits for the refresh started by Restore, if any, and reports its
// outcome. Any number of callers may wait.
func (m *Manager) Ready(ctx context.Context) error {
	m.mu.RLock()
	done := m.restored
	m.mu.RUnlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.restoreErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Login exchanges credentials for a token pair and fetches the profile.
// Both must succeed; otherwise nothing is persisted and the previous state
// is restored.
func (m *Manager) Login(ctx context.Context, c model.Credentials) (*model.Session, error) {
	c.Email = normalizeEmail(c.Email)
	if c.Email == "" || c.Password == "" {
		return nil, apperror.Validation("email and password are required")
	}

	m.mu.Lock()
	prev := m.state
	m.state = Authenticating
	m.mu.Unlock()

	fail := func(err error) (*model.Session, error) {
		m.mu.Lock()
		m.state = prev
		m.mu.Unlock()
		m.log.Info("login failed", "email", c.Email, "error", err)
		return nil, err
	}

	var pair model.TokenPair
	if err := m.doJSON(ctx, http.MethodPost, "/auth/login", "", c, &pair); err != nil {
		if statusIn(err, http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden) {
			return fail(fmt.Errorf("%w: %v", apperror.ErrInvalidCredentials, err))
		}
		return fail(fmt.Errorf("login: %w", err))
	}
	if pair.Access == "" {
		return fail(errors.New("login: response carried no access token"))
	}
	user, err := m.fetchUser(ctx, pair.Access)
	if err != nil {
		return fail(fmt.Errorf("login: %w", err))
	}

	sess := m.newSession(pair.Access, pair.Refresh, user)
	if err := m.store.Save(ctx, blobOf(sess)); err != nil {
		return fail(fmt.Errorf("login: persist session: %w", err))
	}

	m.mu.Lock()
	m.sess, m.state = sess, Authenticated
	m.gen++
	m.mu.Unlock()
	m.log.Info("logged in", "user_id", user.ID)
	out := *sess
	return &out, nil
}

// Refresh exchanges the refresh token for a new access token. Concurrent
// callers share a single in-flight exchange; a caller whose ctx ends stops
// waiting but does not cancel the shared exchange.
func (m *Manager) Refresh(ctx context.Context) (*model.Session, error) {
	ch := m.flight.DoChan(refreshKey, func() (any, error) {
		return m.doRefresh(context.WithoutCancel(ctx))
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		out := *r.Val.(*model.Session)
		return &out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context) (*model.Session, error) {
	m.mu.Lock()
	cur := m.sess
	gen := m.gen
	prev := m.state
	if cur == nil || cur.RefreshToken == "" {
		m.mu.Unlock()
		m.clear(ctx)
		return nil, fmt.Errorf("%w: no refresh token", apperror.ErrAuthInvalid)
	}
	m.state = Refreshing
	m.mu.Unlock()

	var pair model.TokenPair
	err := m.doJSON(ctx, http.MethodPost, "/auth/token/refresh", "", map[string]string{"refresh": cur.RefreshToken}, &pair)
	if err == nil && pair.Access == "" {
		err = errors.New("refresh response carried no access token")
	}
	if err != nil {
		if statusIn(err, http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden) {
			m.log.Info("refresh token rejected, clearing session", "error", err)
			m.clearIfGen(ctx, gen)
			return nil, fmt.Errorf("%w: refresh token rejected: %v", apperror.ErrAuthInvalid, err)
		}
		// Transient: keep the stored session so a later attempt can succeed.
		m.mu.Lock()
		if m.gen == gen {
			if prev == Refreshing {
				prev = Authenticated
			}
			m.state = prev
		}
		m.mu.Unlock()
		m.log.Warn("refresh failed", "error", err)
		return nil, fmt.Errorf("refresh: %w", err)
	}

	refresh := pair.Refresh
	if refresh == "" {
		refresh = cur.RefreshToken
	}
	user := cur.User
	if u, err := m.fetchUser(ctx, pair.Access); err == nil {
		user = u
	} else {
		m.log.Warn("profile refresh failed, keeping cached profile", "error", err)
	}
	sess := m.newSession(pair.Access, refresh, user)

	m.mu.Lock()
	if m.gen != gen {
		// a login while the exchange ran wins over its result
		live := m.sess
		m.mu.Unlock()
		if live == nil {
			return nil, fmt.Errorf("%w: logged out during refresh", apperror.ErrAuthInvalid)
		}
		out := *live
		return &out, nil
	}
	m.sess, m.state = sess, Authenticated
	m.gen++
	m.mu.Unlock()

	// The old refresh token may already be spent, so the in-memory session
	// stays authoritative even if persisting fails.
	if err := m.store.Save(ctx, blobOf(sess)); err != nil {
		m.log.Error("persist refreshed session", "error", err)
	}
	m.log.Debug("access token refreshed", "expires_at", sess.ExpiresAt)
	out := *sess
	return &out, nil
}

// Logout notifies the backend (best effort) and always clears local
// credentials.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.RLock()
	sess := m.sess
	m.mu.RUnlock()
	if sess != nil {
		body := map[string]string{"refresh": sess.RefreshToken}
		if err := m.doJSON(ctx, http.MethodPost, "/auth/logout", sess.AccessToken, body, nil); err != nil {
			m.log.Warn("server logout failed, clearing locally anyway", "error", err)
		}
	}
	m.clear(ctx)
	m.log.Info("logged out")
	m.runLogoutHooks()
}

// ForceLogout clears the session after an unrecoverable auth failure and
// runs the OnExpired callbacks. token is the access token that failed; if
// a different session has replaced it since, nothing is cleared and false
// is returned. An empty token clears unconditionally.
func (m *Manager) ForceLogout(ctx context.Context, token string, reason error) bool {
	m.mu.RLock()
	gen := m.gen
	replaced := token != "" && m.sess != nil && m.sess.AccessToken != token
	m.mu.RUnlock()
	if replaced {
		m.log.Info("forced logout skipped, session already replaced", "reason", reason)
		return false
	}
	if !m.clearIfGen(ctx, gen) {
		return false
	}
	m.mu.RLock()
	cbs := append([]func(error){}, m.onExpired...)
	m.mu.RUnlock()
	m.log.Warn("session expired, forced logout", "reason", reason)
	m.runLogoutHooks()
	for _, fn := range cbs {
		fn(reason)
	}
	return true
}

// WhoAmI fetches the profile for the current token and persists it.
func (m *Manager) WhoAmI(ctx context.Context) (model.User, error) {
	m.mu.RLock()
	sess := m.sess
	gen := m.gen
	m.mu.RUnlock()
	if sess == nil {
		return model.User{}, fmt.Errorf("%w: not logged in", apperror.ErrAuthInvalid)
	}
	user, err := m.fetchUser(ctx, sess.AccessToken)
	if err != nil {
		return model.User{}, err
	}
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return user, nil
	}
	updated := *m.sess
	updated.User = user
	m.sess = &updated
	m.mu.Unlock()
	if err := m.store.Save(ctx, blobOf(&updated)); err != nil {
		m.log.Error("persist profile", "error", err)
	}
	return user, nil
}

func (m *Manager) newSession(access, refresh string, user model.User) *model.Session {
	exp, _ := ExpiryOf(access)
	return &model.Session{AccessToken: access, RefreshToken: refresh, User: user, ExpiresAt: exp}
}

func (m *Manager) clear(ctx context.Context) {
	m.mu.Lock()
	m.sess, m.state = nil, Anonymous
	m.gen++
	m.mu.Unlock()
	if err := m.store.Clear(ctx); err != nil {
		m.log.Error("clear credential store", "error", err)
	}
}

// clearIfGen clears only if nothing replaced the session since gen.
func (m *Manager) clearIfGen(ctx context.Context, gen uint64) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	m.sess, m.state = nil, Anonymous
	m.gen++
	m.mu.Unlock()
	if err := m.store.Clear(ctx); err != nil {
		m.log.Error("clear credential store", "error", err)
	}
	return true
}

func blobOf(s *model.Session) credential.Blob {
	return credential.Blob{Access: s.AccessToken, Refresh: s.RefreshToken, User: s.User}
}
