package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// listPageSize is the page size requested for folder listings.
const listPageSize = 200

// Item is a normalized drive entry: either a file or a folder.
type Item struct {
	ID         string
	Name       string
	Size       int64
	IsFolder   bool
	ModifiedAt time.Time
}

// encodePathSegments URL-encodes each segment of a slash-separated path.
// Characters like #, ?, %, and spaces are encoded per-segment so the
// resulting path is safe for interpolation into API URLs.
func encodePathSegments(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

// itemResponse mirrors the provider's item JSON exactly.
// Unexported — callers use Item via toItem() normalization.
type itemResponse struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Size         int64        `json:"size"`
	Folder       *folderFacet `json:"folder"`
	File         *fileFacet   `json:"file"`
	ModifiedTime string       `json:"lastModifiedDateTime"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type fileFacet struct {
	MimeType string `json:"mimeType"`
}

type listChildrenResponse struct {
	Value    []itemResponse `json:"value"`
	NextLink string         `json:"nextLink"`
}

type createFolderRequest struct {
	Name             string      `json:"name"`
	Folder           folderFacet `json:"folder"`
	ConflictBehavior string      `json:"conflictBehavior"`
}

// toItem normalizes a provider item response into our Item type.
func (r *itemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:       r.ID,
		Name:     r.Name,
		Size:     r.Size,
		IsFolder: r.Folder != nil,
	}

	if r.ModifiedTime != "" {
		t, err := time.Parse(time.RFC3339, r.ModifiedTime)
		if err != nil {
			logger.Warn("invalid item timestamp, using current time",
				slog.String("item_id", r.ID),
				slog.String("raw", r.ModifiedTime),
			)

			t = time.Now().UTC()
		}

		item.ModifiedAt = t
	}

	return item
}

// GetItemByPath retrieves item metadata by path relative to the drive root.
// The path must NOT have a leading slash. Returns ErrNotFound (wrapped in
// *Error) when no item exists at the path.
func (c *Client) GetItemByPath(ctx context.Context, remotePath string) (*Item, error) {
	c.logger.Debug("getting item by path", slog.String("path", remotePath))

	resp, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/root:/%s:", encodePathSegments(remotePath)), "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ir itemResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("drive: decoding item response: %w", err)
	}

	item := ir.toItem(c.logger)

	return &item, nil
}

// CreateFolder creates a folder named name under parentPath ("" for the
// drive root). Uses conflictBehavior "fail" — returns ErrConflict (409)
// on name collision.
func (c *Client) CreateFolder(ctx context.Context, parentPath, name string) (*Item, error) {
	c.logger.Info("creating folder",
		slog.String("parent", parentPath),
		slog.String("name", name),
	)

	apiPath := "/root/children"
	if parentPath != "" {
		apiPath = fmt.Sprintf("/root:/%s:/children", encodePathSegments(parentPath))
	}

	reqBody := createFolderRequest{
		Name:             name,
		Folder:           folderFacet{},
		ConflictBehavior: "fail",
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("drive: marshaling create folder request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, apiPath, "application/json", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ir itemResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("drive: decoding create folder response: %w", err)
	}

	item := ir.toItem(c.logger)

	return &item, nil
}

// Upload writes content to the file at remotePath in overwrite mode,
// creating the file if it does not exist. Content is sent as a single PUT;
// blobs in this system are small JSON documents, so no session upload is needed.
func (c *Client) Upload(ctx context.Context, remotePath string, content []byte) (*Item, error) {
	c.logger.Debug("uploading file",
		slog.String("path", remotePath),
		slog.Int("size", len(content)),
	)

	apiPath := fmt.Sprintf("/root:/%s:/content", encodePathSegments(remotePath))

	resp, err := c.Do(ctx, http.MethodPut, apiPath, "application/octet-stream", bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ir itemResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("drive: decoding upload response: %w", err)
	}

	item := ir.toItem(c.logger)

	return &item, nil
}

// Download returns the content of the file at remotePath.
func (c *Client) Download(ctx context.Context, remotePath string) ([]byte, error) {
	c.logger.Debug("downloading file", slog.String("path", remotePath))

	apiPath := fmt.Sprintf("/root:/%s:/content", encodePathSegments(remotePath))

	resp, err := c.Do(ctx, http.MethodGet, apiPath, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("drive: reading download body: %w", err)
	}

	return data, nil
}

// Delete removes the item at remotePath. Returns nil on success (HTTP 204).
func (c *Client) Delete(ctx context.Context, remotePath string) error {
	c.logger.Debug("deleting item", slog.String("path", remotePath))

	apiPath := fmt.Sprintf("/root:/%s:", encodePathSegments(remotePath))

	resp, err := c.Do(ctx, http.MethodDelete, apiPath, "", nil)
	if err != nil {
		return err
	}

	// 204 No Content — drain and close to reuse connection.
	defer resp.Body.Close()

	if _, copyErr := io.Copy(io.Discard, resp.Body); copyErr != nil {
		return fmt.Errorf("drive: draining delete response body: %w", copyErr)
	}

	return nil
}

// ListChildrenByPath returns all children of the folder at remotePath
// ("" for the drive root), handling pagination automatically.
func (c *Client) ListChildrenByPath(ctx context.Context, remotePath string) ([]Item, error) {
	apiPath := fmt.Sprintf("/root/children?top=%d", listPageSize)
	if remotePath != "" {
		apiPath = fmt.Sprintf("/root:/%s:/children?top=%d", encodePathSegments(remotePath), listPageSize)
	}

	c.logger.Debug("listing children", slog.String("path", remotePath))

	var items []Item

	page := 1

	for apiPath != "" {
		pageItems, nextPath, err := c.listChildrenPage(ctx, apiPath, page)
		if err != nil {
			return nil, err
		}

		items = append(items, pageItems...)
		apiPath = nextPath
		page++
	}

	c.logger.Debug("listed children complete",
		slog.String("path", remotePath),
		slog.Int("total_items", len(items)),
	)

	return items, nil
}

// listChildrenPage fetches a single page of children and returns the items
// and the next page path (empty if no more pages).
func (c *Client) listChildrenPage(ctx context.Context, apiPath string, page int) ([]Item, string, error) {
	resp, err := c.Do(ctx, http.MethodGet, apiPath, "", nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var lcr listChildrenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lcr); err != nil {
		return nil, "", fmt.Errorf("drive: decoding children response: %w", err)
	}

	items := make([]Item, 0, len(lcr.Value))
	for i := range lcr.Value {
		items = append(items, lcr.Value[i].toItem(c.logger))
	}

	c.logger.Debug("fetched children page",
		slog.Int("page", page),
		slog.Int("count", len(items)),
	)

	var nextPath string
	if lcr.NextLink != "" {
		var stripErr error

		nextPath, stripErr = c.stripBaseURL(lcr.NextLink)
		if stripErr != nil {
			return nil, "", stripErr
		}
	}

	return items, nextPath, nil
}

// stripBaseURL removes the client's base URL prefix from a full URL,
// returning the path + query string for use with Do().
// Returns an error if the URL doesn't start with the expected base.
func (c *Client) stripBaseURL(fullURL string) (string, error) {
	if !strings.HasPrefix(fullURL, c.baseURL) {
		return "", fmt.Errorf("drive: nextLink URL %q does not match base URL %q", fullURL, c.baseURL)
	}

	return fullURL[len(c.baseURL):], nil
}
