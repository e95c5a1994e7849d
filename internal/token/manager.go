// Package token implements the provider credential lifecycle: hand out a
// valid access token, refreshing it ahead of expiry, and persist every
// rotation before anyone sees the new token.
package token

import (
	"context"
	"net/http"
	"sync"
	"time"

	"chronosync.org/internal/obs"
	"chronosync.org/internal/store"
	"chronosync.org/internal/zoom"
)

// RefreshMargin is how long before expiry a token is treated as stale.
// Refreshing early keeps in-flight provider calls from racing the deadline.
const RefreshMargin = 300 * time.Second

// Manager owns the single credential pair. Safe for concurrent use; at most
// one refresh runs at a time and concurrent callers ride on its result.
type Manager struct {
	cfg       zoom.OAuthConfig
	creds     store.CredentialStore
	http      *http.Client
	margin    time.Duration
	now       func() time.Time
	refreshed func(zoom.Credential)

	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient overrides the client used for the refresh grant.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *Manager) {
		if hc != nil {
			m.http = hc
		}
	}
}

// WithMargin overrides the refresh margin (used by tests).
func WithMargin(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.margin = d
		}
	}
}

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRefreshHook registers a callback invoked after every persisted
// rotation, whether triggered explicitly or by an expiring token. The hook
// runs on the refreshing goroutine and must not block.
func WithRefreshHook(fn func(zoom.Credential)) Option {
	return func(m *Manager) {
		m.refreshed = fn
	}
}

// NewManager builds a Manager over the given credential store.
func NewManager(cfg zoom.OAuthConfig, creds store.CredentialStore, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		creds:  creds,
		http:   &http.Client{Timeout: 10 * time.Second},
		margin: RefreshMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ zoom.TokenSource = (*Manager)(nil)

// AccessToken returns a token valid for at least the refresh margin,
// refreshing first when the stored one is too close to expiry. The store is
// the source of truth: the rotated credential is persisted before the token
// is returned, so a crash after refresh never strands an unrecorded
// refresh token.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.creds.Credential(ctx)
	if err != nil {
		return "", err
	}
	if cred.Valid(m.now(), m.margin) {
		return cred.AccessToken, nil
	}
	cred, err = m.refreshLocked(ctx, cred)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// Refresh forces a refresh grant regardless of the stored token's remaining
// lifetime and returns the persisted credential.
func (m *Manager) Refresh(ctx context.Context) (zoom.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.creds.Credential(ctx)
	if err != nil {
		return zoom.Credential{}, err
	}
	return m.refreshLocked(ctx, cred)
}

// Store persists an externally obtained credential pair (the OAuth callback).
func (m *Manager) Store(ctx context.Context, cred zoom.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.SaveCredential(ctx, cred)
}

func (m *Manager) refreshLocked(ctx context.Context, cur zoom.Credential) (zoom.Credential, error) {
	next, err := m.cfg.RefreshGrant(ctx, m.http, cur.RefreshToken)
	if err != nil {
		// The stored credential stays untouched; a transient provider
		// failure must not wipe a still-usable refresh token.
		obs.TokenRefreshes.WithLabelValues("error").Inc()
		return zoom.Credential{}, err
	}
	if err := m.creds.SaveCredential(ctx, next); err != nil {
		obs.TokenRefreshes.WithLabelValues("store_error").Inc()
		return zoom.Credential{}, err
	}
	obs.TokenRefreshes.WithLabelValues("ok").Inc()
	if m.refreshed != nil {
		m.refreshed(next)
	}
	return next, nil
}
