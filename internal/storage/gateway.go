// Package storage is the object storage gateway: it wraps the raw drive
// adapter behind the operations the rest of the core needs (ensure-folder,
// blob CRUD, listing) and maps vendor errors into the core taxonomy.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/inkhaven/inkhaven/internal/drive"
)

// Core error taxonomy. AuthExpired triggers the refresh gate's refresh
// path; RemoteUnavailable means the transport failed and callers fall
// back to memory; NotFound is expected and never logged as an error.
var (
	ErrAuthExpired       = errors.New("storage: credential rejected by remote")
	ErrRemoteUnavailable = errors.New("storage: remote unavailable")
	ErrNotFound          = errors.New("storage: not found")
	ErrPathConflict      = errors.New("storage: folder path occupied by a file")
)

// RemoteError wraps any other non-2xx remote result.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Remote is the subset of the drive adapter the gateway consumes.
// drive.Client satisfies it; tests substitute fakes.
type Remote interface {
	GetItemByPath(ctx context.Context, remotePath string) (*drive.Item, error)
	CreateFolder(ctx context.Context, parentPath, name string) (*drive.Item, error)
	Upload(ctx context.Context, remotePath string, content []byte) (*drive.Item, error)
	Download(ctx context.Context, remotePath string) ([]byte, error)
	Delete(ctx context.Context, remotePath string) error
	ListChildrenByPath(ctx context.Context, remotePath string) ([]drive.Item, error)
}

// AuthClassifier flips the credential store invalid when a remote error
// carries an auth-failure signature. credential.Manager satisfies it.
type AuthClassifier interface {
	ClassifyError(err error) bool
}

// Gateway exposes folder and blob operations over the remote drive under
// a configured root folder.
type Gateway struct {
	remote   Remote
	classify AuthClassifier
	root     string
	logger   *slog.Logger
}

// NewGateway builds a gateway storing everything under rootFolder at the
// top of the drive.
func NewGateway(remote Remote, classify AuthClassifier, rootFolder string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		remote:   remote,
		classify: classify,
		root:     rootFolder,
		logger:   logger,
	}
}

// mapError translates a drive adapter error into the core taxonomy.
// Classification runs first so an auth failure flips the credential store
// exactly once, at this boundary.
func (g *Gateway) mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	if g.classify != nil && g.classify.ClassifyError(err) {
		return fmt.Errorf("%w: %s: %v", ErrAuthExpired, op, err)
	}

	var de *drive.Error
	if !errors.As(err, &de) {
		// No HTTP response at all — transport failure.
		return fmt.Errorf("%w: %s: %v", ErrRemoteUnavailable, op, err)
	}

	if errors.Is(de, drive.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	}

	return &RemoteError{Op: op, Err: err}
}

// EnsureFolder creates the folder named name under parentPath if it does
// not already exist. Idempotent: an existing folder (or a concurrent
// create losing the race) is not an error. A file sitting at the path is
// ErrPathConflict — silently accepting it would make every child upload
// fail later with no usable hint.
func (g *Gateway) EnsureFolder(ctx context.Context, parentPath, name string) error {
	full := path.Join(parentPath, name)

	item, err := g.remote.GetItemByPath(ctx, full)
	if err == nil {
		if !item.IsFolder {
			return fmt.Errorf("%w: %s", ErrPathConflict, full)
		}

		return nil
	}

	if !errors.Is(err, drive.ErrNotFound) {
		return g.mapError("ensure folder "+full, err)
	}

	_, err = g.remote.CreateFolder(ctx, parentPath, name)
	if err != nil && errors.Is(err, drive.ErrConflict) {
		// Created by a concurrent request between our check and create.
		return nil
	}

	if err != nil {
		return g.mapError("create folder "+full, err)
	}

	g.logger.Info("created remote folder", slog.String("path", full))

	return nil
}

// EnsureRoot creates the configured root folder at the top of the drive.
func (g *Gateway) EnsureRoot(ctx context.Context) error {
	return g.EnsureFolder(ctx, "", g.root)
}

// EnsureUserFolder ensures the root folder and the per-user subfolder
// beneath it. Folder naming is deterministic: <root>/user_<userID>.
func (g *Gateway) EnsureUserFolder(ctx context.Context, userID int64) error {
	if err := g.EnsureRoot(ctx); err != nil {
		return err
	}

	return g.EnsureFolder(ctx, g.root, userFolderName(userID))
}

// UploadBlob writes content to the blob at remotePath in overwrite mode.
// Content is expected to be a UTF-8 JSON document.
func (g *Gateway) UploadBlob(ctx context.Context, remotePath string, content []byte) error {
	if _, err := g.remote.Upload(ctx, remotePath, content); err != nil {
		return g.mapError("upload "+remotePath, err)
	}

	return nil
}

// DownloadBlob returns the content of the blob at remotePath, or an error
// wrapping ErrNotFound if no blob exists there.
func (g *Gateway) DownloadBlob(ctx context.Context, remotePath string) ([]byte, error) {
	data, err := g.remote.Download(ctx, remotePath)
	if err != nil {
		return nil, g.mapError("download "+remotePath, err)
	}

	return data, nil
}

// DeleteBlob removes the blob at remotePath. Returns true if the blob was
// deleted, false if it did not exist — absence is not an error.
func (g *Gateway) DeleteBlob(ctx context.Context, remotePath string) (bool, error) {
	err := g.remote.Delete(ctx, remotePath)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, drive.ErrNotFound) {
		return false, nil
	}

	return false, g.mapError("delete "+remotePath, err)
}

// ListFolder returns the entries directly inside remotePath.
func (g *Gateway) ListFolder(ctx context.Context, remotePath string) ([]drive.Item, error) {
	items, err := g.remote.ListChildrenByPath(ctx, remotePath)
	if err != nil {
		return nil, g.mapError("list "+remotePath, err)
	}

	return items, nil
}

// Status probes the remote and reports one of "connected", "expired", or
// "error" for the storage-status endpoint.
func (g *Gateway) Status(ctx context.Context) string {
	_, err := g.remote.GetItemByPath(ctx, g.root)
	if err == nil {
		return "connected"
	}

	mapped := g.mapError("status probe", err)

	switch {
	case errors.Is(mapped, ErrAuthExpired):
		return "expired"
	case errors.Is(mapped, ErrNotFound):
		// Root folder absent but credentials work.
		return "connected"
	default:
		return "error"
	}
}
