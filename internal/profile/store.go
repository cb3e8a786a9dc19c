package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/inkhaven/inkhaven/internal/storage"
)

// ErrCorrupt marks a profile document that exists remotely but cannot be
// decoded or fails validation. The store heals it by rewriting defaults,
// but the condition is surfaced in logs as distinct from plain absence so
// real corruption is never silent.
var ErrCorrupt = errors.New("profile: document corrupt")

// Blobs is the gateway subset the store consumes.
type Blobs interface {
	DownloadBlob(ctx context.Context, remotePath string) ([]byte, error)
	UploadBlob(ctx context.Context, remotePath string, content []byte) error
	EnsureUserFolder(ctx context.Context, userID int64) error
	ProfilePath(userID int64) string
}

// Store reads and writes profile documents through the storage gateway.
// Every read-modify-write runs under a per-user mutex so concurrent
// counter increments cannot lose updates.
type Store struct {
	blobs  Blobs
	logger *slog.Logger

	// now is the clock; tests override it for deterministic timestamps.
	now func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewStore builds a profile store over the given gateway.
func NewStore(blobs Blobs, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		blobs:  blobs,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		locks:  make(map[int64]*sync.Mutex),
	}
}

// userLock returns the mutex serializing writes for one user.
func (s *Store) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}

	return l
}

// Get returns the user's profile, bootstrapping a default document on
// first access so the remote blob always exists afterwards. A document
// that is present but unreadable is logged with ErrCorrupt and healed the
// same way — availability over strictness.
func (s *Store) Get(ctx context.Context, userID int64, email string) (Profile, error) {
	data, err := s.blobs.DownloadBlob(ctx, s.blobs.ProfilePath(userID))

	switch {
	case err == nil:
		var p Profile
		if jsonErr := json.Unmarshal(data, &p); jsonErr != nil {
			s.logger.Warn("healing unreadable profile document",
				slog.Int64("user_id", userID),
				slog.String("error", fmt.Errorf("%w: %v", ErrCorrupt, jsonErr).Error()),
			)

			return s.bootstrap(ctx, userID, email)
		}

		if !p.valid() {
			s.logger.Warn("healing invalid profile document",
				slog.Int64("user_id", userID),
				slog.String("error", ErrCorrupt.Error()),
			)

			return s.bootstrap(ctx, userID, email)
		}

		return p, nil

	case errors.Is(err, storage.ErrNotFound):
		return s.bootstrap(ctx, userID, email)

	default:
		return Profile{}, err
	}
}

// bootstrap writes and returns the default profile document.
func (s *Store) bootstrap(ctx context.Context, userID int64, email string) (Profile, error) {
	p := defaultProfile(userID, email, s.now())

	if err := s.write(ctx, p); err != nil {
		return Profile{}, err
	}

	s.logger.Info("bootstrapped profile",
		slog.Int64("user_id", userID),
	)

	return p, nil
}

// Save serializes and uploads the profile, always bumping UpdatedAt.
func (s *Store) Save(ctx context.Context, p Profile) error {
	p.UpdatedAt = s.now()

	return s.write(ctx, p)
}

// write uploads the document as pretty-printed JSON, ensuring the user
// folder exists first.
func (s *Store) write(ctx context.Context, p Profile) error {
	if err := s.blobs.EnsureUserFolder(ctx, p.UserID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("profile: marshaling user %d: %w", p.UserID, err)
	}

	return s.blobs.UploadBlob(ctx, s.blobs.ProfilePath(p.UserID), data)
}

// update runs a read-modify-write under the user's mutex. The email is
// only consumed when the read bootstraps a fresh document, so a write
// against a never-fetched user still records who it belongs to.
func (s *Store) update(ctx context.Context, userID int64, email string, mutate func(*Profile)) (Profile, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	p, err := s.Get(ctx, userID, email)
	if err != nil {
		return Profile{}, err
	}

	mutate(&p)
	p.UpdatedAt = s.now()

	if err := s.write(ctx, p); err != nil {
		return Profile{}, err
	}

	return p, nil
}

// UpdatePlan switches the user's subscription tier.
func (s *Store) UpdatePlan(ctx context.Context, userID int64, email string, plan Plan) (Profile, error) {
	return s.update(ctx, userID, email, func(p *Profile) {
		p.Plan = plan
	})
}

// IncrementBooksCreated bumps the created-books counter.
func (s *Store) IncrementBooksCreated(ctx context.Context, userID int64, email string) (Profile, error) {
	return s.update(ctx, userID, email, func(p *Profile) {
		p.BooksCreated++
	})
}

// IncrementAIBooksCreated bumps the AI-generated-books counter.
func (s *Store) IncrementAIBooksCreated(ctx context.Context, userID int64, email string) (Profile, error) {
	return s.update(ctx, userID, email, func(p *Profile) {
		p.AIBooksCreated++
	})
}

// InfoUpdate carries the optional fields UpdateInfo can change.
// Nil pointers leave the field untouched.
type InfoUpdate struct {
	Email       *string
	DisplayName *string
}

// UpdateInfo applies a partial update to the profile's identity fields.
// Display names are NFC-normalized so values entered on different
// platforms compare equal.
func (s *Store) UpdateInfo(ctx context.Context, userID int64, email string, info InfoUpdate) (Profile, error) {
	return s.update(ctx, userID, email, func(p *Profile) {
		if info.Email != nil {
			p.Email = *info.Email
		}

		if info.DisplayName != nil {
			name := norm.NFC.String(*info.DisplayName)
			p.DisplayName = &name
		}
	})
}
