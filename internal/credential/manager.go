package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/inkhaven/inkhaven/internal/drive"
)

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// ErrStateMismatch is returned when the OAuth callback carries a state
// parameter that does not match the one issued by BeginAuthorization.
var ErrStateMismatch = errors.New("credential: OAuth2 state mismatch (possible CSRF)")

// ErrNotAuthorized is returned by Token when no credential has been
// obtained yet.
var ErrNotAuthorized = errors.New("credential: not authorized")

// Manager orchestrates the OAuth authorization and refresh flows against
// the storage provider's token endpoint, and flips the Store invalid when
// a remote error is classified as an auth failure.
//
// Manager implements drive.TokenSource: the gateway reads the active
// access token through Token(). Token returns whatever access token is
// stored even when the validity flag is down — the refresh gate decides
// when to refresh, and a stale token simply earns another 401.
type Manager struct {
	store  *Store
	oauth  *oauth2.Config
	client *http.Client
	logger *slog.Logger

	// refreshGroup coalesces overlapping Refresh calls into one
	// token-endpoint request.
	refreshGroup singleflight.Group

	mu           sync.Mutex
	pendingState string
}

// NewManager builds a Manager around the given store and OAuth endpoint
// configuration. httpClient may be nil (http.DefaultClient).
func NewManager(store *Store, oauth *oauth2.Config, httpClient *http.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Manager{
		store:  store,
		oauth:  oauth,
		client: httpClient,
		logger: logger,
	}
}

// Store exposes the underlying credential store for validity checks.
func (m *Manager) Store() *Store {
	return m.store
}

// BeginAuthorization generates a fresh anti-forgery state token, remembers
// it for the duration of the flow, and returns the provider's
// authorization URL requesting offline (refreshable) access.
func (m *Manager) BeginAuthorization() (string, error) {
	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("credential: generating state token: %w", err)
	}

	m.mu.Lock()
	m.pendingState = state
	m.mu.Unlock()

	m.logger.Info("authorization flow started")

	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// CompleteAuthorization validates the callback state and exchanges the
// authorization code for tokens. On success the store is updated and
// marked valid, and the tokens are returned so the operator can persist
// the refresh token outside the process.
func (m *Manager) CompleteAuthorization(ctx context.Context, code, state string) (Credential, error) {
	m.mu.Lock()
	expected := m.pendingState
	m.pendingState = ""
	m.mu.Unlock()

	if expected == "" || state != expected {
		return Credential{}, ErrStateMismatch
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)

	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return Credential{}, fmt.Errorf("credential: code exchange failed: %w", err)
	}

	m.store.Set(tok.AccessToken, tok.RefreshToken)

	m.logger.Info("authorization complete",
		slog.Bool("has_refresh_token", tok.RefreshToken != ""),
		slog.Time("expiry", tok.Expiry),
	)

	return m.store.Get(), nil
}

// SetTokens installs operator-supplied tokens directly (the manual token
// submission path) and marks the credential valid.
func (m *Manager) SetTokens(accessToken, refreshToken string) Credential {
	m.store.Set(accessToken, refreshToken)

	m.logger.Info("tokens installed manually",
		slog.Bool("has_refresh_token", refreshToken != ""),
	)

	return m.store.Get()
}

// Refresh exchanges the stored refresh token for a new access token.
// Overlapping callers share a single in-flight token-endpoint request.
// Returns (credential, true) on success; (zero, false) when there is no
// refresh token or the exchange fails, leaving the store invalid.
func (m *Manager) Refresh(ctx context.Context) (Credential, bool) {
	v, _, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return m.doRefresh(ctx), nil
	})

	ok, _ := v.(bool)
	if !ok {
		return Credential{}, false
	}

	return m.store.Get(), true
}

// doRefresh performs one refresh-token exchange. Reports success.
func (m *Manager) doRefresh(ctx context.Context) bool {
	refreshToken := m.store.Get().RefreshToken
	if refreshToken == "" {
		m.logger.Warn("refresh requested but no refresh token is known")
		return false
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)

	// TokenSource seeded with only a refresh token forces a
	// refresh_token grant on the first Token() call.
	src := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		m.logger.Warn("token refresh failed", slog.String("error", err.Error()))
		m.store.Invalidate()

		return false
	}

	m.store.Set(tok.AccessToken, tok.RefreshToken)

	m.logger.Info("token refreshed", slog.Time("expiry", tok.Expiry))

	return true
}

// ClassifyError inspects a failed remote-storage call for known
// authentication-failure signatures. On a match the store is flipped to
// invalid and true is returned; otherwise state is untouched.
func (m *Manager) ClassifyError(err error) bool {
	if err == nil || !drive.IsAuthFailure(err) {
		return false
	}

	if m.store.IsValid() {
		m.logger.Warn("remote auth failure detected, invalidating credential",
			slog.String("error", err.Error()),
		)
	}

	m.store.Invalidate()

	return true
}

// Token implements drive.TokenSource.
func (m *Manager) Token() (string, error) {
	cred := m.store.Get()
	if cred.AccessToken == "" {
		return "", ErrNotAuthorized
	}

	return cred.AccessToken, nil
}

// generateState produces a cryptographically random hex string for the
// OAuth2 state parameter. Using crypto/rand prevents CSRF attacks.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
