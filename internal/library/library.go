package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/inkhaven/inkhaven/internal/storage"
)

// ErrIDConflict is returned by CreateBook when a caller-supplied id is
// already taken. Overwriting would orphan the existing owner's remote
// blob and let one id live under two user folders.
var ErrIDConflict = errors.New("library: book id already exists")

// reconcileFanOutLimit bounds concurrent content downloads during the
// cold-start reconcile.
const reconcileFanOutLimit = 8

// BookStore is the gateway subset the coordinator consumes.
// storage.Gateway satisfies it; tests substitute fakes.
type BookStore interface {
	SaveBook(ctx context.Context, id int64, content any, userID *int64) error
	LoadBook(ctx context.Context, id int64, userID *int64) ([]byte, error)
	RemoveBook(ctx context.Context, id int64, userID *int64) (bool, error)
	ListBooks(ctx context.Context, userID *int64) ([]storage.BookRef, error)
}

// Library is the hybrid persistence coordinator. The in-memory map is
// authoritative for listing and existence; the remote blob is the
// preferred source of truth for content. Remote failures never fail a
// local mutation — they degrade to memory-only operation.
//
// The map and id counter are guarded by mu. Remote calls run outside the
// lock so a slow remote never serializes local reads.
type Library struct {
	store  BookStore
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	books  map[int64]*Book
	nextID int64
}

// New builds an empty coordinator over the given book store.
func New(store BookStore, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}

	return &Library{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		books:  make(map[int64]*Book),
		nextID: 1,
	}
}

// CreateBook assigns the next sequential id (or honors a caller-supplied
// id, advancing the counter past it for bulk import), stores the metadata
// locally, and best-effort mirrors an initial blob to remote storage.
// A supplied id that is already taken fails with ErrIDConflict.
func (l *Library) CreateBook(ctx context.Context, b Book) (Book, error) {
	now := l.now()

	l.mu.Lock()

	if b.ID == 0 {
		b.ID = l.nextID
		l.nextID++
	} else {
		if _, exists := l.books[b.ID]; exists {
			l.mu.Unlock()
			return Book{}, fmt.Errorf("%w: %d", ErrIDConflict, b.ID)
		}

		if b.ID >= l.nextID {
			l.nextID = b.ID + 1
		}
	}

	b.CreatedAt = now
	b.UpdatedAt = now

	if b.Chapters == nil {
		b.Chapters = []Chapter{}
	}

	stored := b.clone()
	l.books[b.ID] = &stored

	l.mu.Unlock()

	l.logger.Info("book created",
		slog.Int64("book_id", b.ID),
		slog.String("title", b.Title),
	)

	l.mirror(ctx, &b)

	return b, nil
}

// mirror best-effort persists the book blob. Remote failure is logged,
// never propagated: local state stays authoritative for availability.
func (l *Library) mirror(ctx context.Context, b *Book) {
	if err := l.store.SaveBook(ctx, b.ID, b, b.UserID); err != nil {
		l.logger.Warn("remote mirror failed, keeping memory-only",
			slog.Int64("book_id", b.ID),
			slog.String("error", err.Error()),
		)
	}
}

// GetBookContent returns the book's content, preferring the remote blob
// and falling back to the in-memory metadata on any remote failure or
// miss. The operation never hard-fails while local metadata exists.
func (l *Library) GetBookContent(ctx context.Context, id int64, userID *int64) (BookContent, bool) {
	data, err := l.store.LoadBook(ctx, id, userID)
	if err == nil {
		var remote Book
		if jsonErr := json.Unmarshal(data, &remote); jsonErr == nil {
			return remote.content(), true
		}

		l.logger.Warn("remote book blob unreadable, falling back to memory",
			slog.Int64("book_id", id),
		)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.books[id]
	if !ok {
		return BookContent{}, false
	}

	return b.content(), true
}

// UpdateBookContent updates the in-memory metadata first (authoritative
// for subsequent local reads), then best-effort mirrors to remote
// storage. Returns the updated metadata, or ok=false for an unknown id.
func (l *Library) UpdateBookContent(ctx context.Context, id int64, content BookContent) (Book, bool) {
	l.mu.Lock()

	b, ok := l.books[id]
	if !ok {
		l.mu.Unlock()
		return Book{}, false
	}

	b.Title = content.Title
	b.Author = content.Author
	b.Chapters = cloneChapters(content.Chapters)

	if b.Chapters == nil {
		b.Chapters = []Chapter{}
	}

	if content.CoverPage != nil {
		cover := *content.CoverPage
		b.CoverPage = &cover
	} else {
		b.CoverPage = nil
	}

	b.UpdatedAt = l.now()
	updated := b.clone()

	l.mu.Unlock()

	l.mirror(ctx, &updated)

	return updated, true
}

// DeleteBook removes the local metadata and, if it existed, best-effort
// deletes the remote blob. Cover pages are not separately deletable —
// they go with the book.
func (l *Library) DeleteBook(ctx context.Context, id int64, userID *int64) bool {
	l.mu.Lock()

	b, ok := l.books[id]
	if !ok {
		l.mu.Unlock()
		return false
	}

	if userID == nil {
		userID = b.UserID
	}

	delete(l.books, id)
	l.mu.Unlock()

	if _, err := l.store.RemoveBook(ctx, id, userID); err != nil {
		l.logger.Warn("remote delete failed, blob may be orphaned",
			slog.Int64("book_id", id),
			slog.String("error", err.Error()),
		)
	}

	l.logger.Info("book deleted", slog.Int64("book_id", id))

	return true
}

// ListBooks serves entirely from the in-memory map, filtered by userID
// when given. Remote listing is too slow for interactive use — that is
// the reason the in-memory layer exists.
func (l *Library) ListBooks(userID *int64) []Book {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Book, 0, len(l.books))

	for _, b := range l.books {
		if userID != nil && (b.UserID == nil || *b.UserID != *userID) {
			continue
		}

		out = append(out, b.clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Exists reports whether a book id is present locally.
func (l *Library) Exists(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.books[id]

	return ok
}

// Reconcile lists all remote books and materializes local metadata for
// any id missing from the in-memory map. Run once at startup
// (fire-and-forget, not blocking readiness) and on demand via the forced
// resync endpoint. Returns the number of books materialized.
func (l *Library) Reconcile(ctx context.Context) (int, error) {
	refs, err := l.store.ListBooks(ctx, nil)
	if err != nil {
		return 0, err
	}

	var (
		mu    sync.Mutex
		added int
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(reconcileFanOutLimit)

	for _, ref := range refs {
		if l.Exists(ref.ID) {
			continue
		}

		eg.Go(func() error {
			data, loadErr := l.store.LoadBook(egCtx, ref.ID, ref.UserID)
			if loadErr != nil {
				// One unreadable blob should not abort the warm-up.
				l.logger.Warn("reconcile: skipping unreadable remote book",
					slog.Int64("book_id", ref.ID),
					slog.String("error", loadErr.Error()),
				)

				return nil
			}

			var b Book
			if jsonErr := json.Unmarshal(data, &b); jsonErr != nil {
				l.logger.Warn("reconcile: skipping malformed remote book",
					slog.Int64("book_id", ref.ID),
					slog.String("error", jsonErr.Error()),
				)

				return nil
			}

			b.ID = ref.ID
			b.UserID = ref.UserID

			if l.materialize(&b) {
				mu.Lock()
				added++
				mu.Unlock()
			}

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return added, err
	}

	l.logger.Info("reconcile complete",
		slog.Int("remote_books", len(refs)),
		slog.Int("materialized", added),
	)

	return added, nil
}

// materialize inserts a reconciled book unless a local copy appeared in
// the meantime. Local state wins — it may hold newer edits.
func (l *Library) materialize(b *Book) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.books[b.ID]; ok {
		return false
	}

	stored := b.clone()
	l.books[b.ID] = &stored

	if b.ID >= l.nextID {
		l.nextID = b.ID + 1
	}

	return true
}

// RemoteOnly returns refs of books that exist remotely but not in the
// local map, for the remote-books listing endpoint.
func (l *Library) RemoteOnly(ctx context.Context) ([]storage.BookRef, error) {
	refs, err := l.store.ListBooks(ctx, nil)
	if err != nil {
		return nil, err
	}

	out := make([]storage.BookRef, 0, len(refs))

	for _, ref := range refs {
		if !l.Exists(ref.ID) {
			out = append(out, ref)
		}
	}

	return out, nil
}
