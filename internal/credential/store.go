// Package credential holds the process-wide drive credential and manages
// its lifecycle: the OAuth authorization flow, refresh-token exchange, and
// classification of remote auth failures.
package credential

import "sync"

// Credential is the access/refresh token pair used to authenticate to the
// remote storage provider, plus a validity flag. Valid flips to false when
// a remote auth failure is detected and back to true only after a
// successful refresh or a new authorization.
type Credential struct {
	AccessToken  string
	RefreshToken string
	Valid        bool
}

// Store is the thread-safe holder for the current credential. It is
// constructed once at process start and injected into every component
// that needs it — never package-level state.
type Store struct {
	mu   sync.RWMutex
	cred Credential
}

// NewStore returns an empty, invalid credential store.
func NewStore() *Store {
	return &Store{}
}

// Get returns a snapshot of the current credential.
func (s *Store) Get() Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cred
}

// Set replaces the tokens and marks the credential valid. An empty
// refreshToken keeps the previous refresh token, since refresh responses
// often omit it.
func (s *Store) Set(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred.AccessToken = accessToken
	if refreshToken != "" {
		s.cred.RefreshToken = refreshToken
	}

	s.cred.Valid = true
}

// Invalidate marks the credential invalid without discarding the tokens,
// so a later refresh can still use the stored refresh token.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred.Valid = false
}

// IsValid reports whether the current credential is marked valid.
func (s *Store) IsValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cred.Valid
}
