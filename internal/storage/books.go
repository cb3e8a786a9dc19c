package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

// listFanOutLimit bounds the concurrent per-user folder listings issued
// by ListBooks when no user filter is given.
const listFanOutLimit = 8

// bookFilePattern matches stored book blobs: book_<id>.json.
var bookFilePattern = regexp.MustCompile(`^book_(\d+)\.json$`)

// BookRef identifies a remotely stored book blob.
type BookRef struct {
	ID     int64
	Path   string
	UserID *int64
}

func userFolderName(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

func bookFileName(id int64) string {
	return fmt.Sprintf("book_%d.json", id)
}

// BookPath returns the remote path for a book blob: the user-scoped path
// when userID is non-nil, otherwise the legacy root path.
func (g *Gateway) BookPath(id int64, userID *int64) string {
	if userID != nil {
		return path.Join(g.root, userFolderName(*userID), bookFileName(id))
	}

	return path.Join(g.root, bookFileName(id))
}

// ProfilePath returns the remote path of a user's profile document.
func (g *Gateway) ProfilePath(userID int64) string {
	return path.Join(g.root, userFolderName(userID), "profile.json")
}

// bookCandidates returns the lookup paths for a book in precedence order:
// the user-scoped path first, then the legacy root path for books created
// before per-user scoping existed. The explicit ordered list keeps the
// precedence rule visible and testable.
func (g *Gateway) bookCandidates(id int64, userID *int64) []string {
	if userID == nil {
		return []string{g.BookPath(id, nil)}
	}

	return []string{g.BookPath(id, userID), g.BookPath(id, nil)}
}

// SaveBook uploads the JSON serialization of content to the book's path,
// ensuring the user folder first when userID is given. Blobs are
// pretty-printed so operators can read them in the provider's UI.
func (g *Gateway) SaveBook(ctx context.Context, id int64, content any, userID *int64) error {
	if userID != nil {
		if err := g.EnsureUserFolder(ctx, *userID); err != nil {
			return err
		}
	} else if err := g.EnsureRoot(ctx); err != nil {
		return err
	}

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshaling book %d: %w", id, err)
	}

	return g.UploadBlob(ctx, g.BookPath(id, userID), data)
}

// LoadBook performs the dual-path lookup: each candidate path is tried in
// precedence order, and the first hit wins. Returns an error wrapping
// ErrNotFound when no candidate has the blob.
func (g *Gateway) LoadBook(ctx context.Context, id int64, userID *int64) ([]byte, error) {
	for _, candidate := range g.bookCandidates(id, userID) {
		data, err := g.DownloadBlob(ctx, candidate)
		if err == nil {
			return data, nil
		}

		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: book %d", ErrNotFound, id)
}

// RemoveBook deletes the book blob from its scoped path. Returns true if
// a blob was actually deleted.
func (g *Gateway) RemoveBook(ctx context.Context, id int64, userID *int64) (bool, error) {
	return g.DeleteBlob(ctx, g.BookPath(id, userID))
}

// ListBooks enumerates remotely stored books. With a userID only that
// user's folder is listed. Without one, the legacy root files and every
// user_* subfolder are merged; the per-user listings fan out concurrently
// to bound latency at O(1) round trips instead of O(users).
// A user-scoped entry wins over a root-scoped entry with the same id.
func (g *Gateway) ListBooks(ctx context.Context, userID *int64) ([]BookRef, error) {
	if userID != nil {
		return g.listUserBooks(ctx, *userID)
	}

	rootItems, err := g.ListFolder(ctx, g.root)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Root folder not created yet — nothing stored.
			return nil, nil
		}

		return nil, err
	}

	byID := make(map[int64]BookRef)

	var userIDs []int64

	for _, item := range rootItems {
		name := norm.NFC.String(item.Name)

		if item.IsFolder {
			if uid, ok := parseUserFolder(name); ok {
				userIDs = append(userIDs, uid)
			}

			continue
		}

		if id, ok := parseBookFile(name); ok {
			byID[id] = BookRef{ID: id, Path: path.Join(g.root, name)}
		}
	}

	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(listFanOutLimit)

	for _, uid := range userIDs {
		eg.Go(func() error {
			refs, listErr := g.listUserBooks(egCtx, uid)
			if listErr != nil {
				return listErr
			}

			mu.Lock()
			defer mu.Unlock()

			for _, ref := range refs {
				byID[ref.ID] = ref
			}

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	refs := make([]BookRef, 0, len(byID))
	for _, ref := range byID {
		refs = append(refs, ref)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })

	g.logger.Debug("listed remote books",
		slog.Int("users", len(userIDs)),
		slog.Int("books", len(refs)),
	)

	return refs, nil
}

// listUserBooks lists one user's folder and parses book ids from filenames.
func (g *Gateway) listUserBooks(ctx context.Context, userID int64) ([]BookRef, error) {
	folder := path.Join(g.root, userFolderName(userID))

	items, err := g.ListFolder(ctx, folder)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	uid := userID
	refs := make([]BookRef, 0, len(items))

	for _, item := range items {
		if item.IsFolder {
			continue
		}

		name := norm.NFC.String(item.Name)
		if id, ok := parseBookFile(name); ok {
			refs = append(refs, BookRef{ID: id, Path: path.Join(folder, name), UserID: &uid})
		}
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })

	return refs, nil
}

// parseBookFile extracts the book id from a book_<id>.json filename.
func parseBookFile(name string) (int64, bool) {
	m := bookFilePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}

	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}

	return id, true
}

// parseUserFolder extracts the user id from a user_<id> folder name.
func parseUserFolder(name string) (int64, bool) {
	rest, ok := strings.CutPrefix(name, "user_")
	if !ok {
		return 0, false
	}

	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}

	return id, true
}
