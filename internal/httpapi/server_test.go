package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/inkhaven/inkhaven/internal/credential"
	"github.com/inkhaven/inkhaven/internal/drive"
	"github.com/inkhaven/inkhaven/internal/library"
	"github.com/inkhaven/inkhaven/internal/profile"
	"github.com/inkhaven/inkhaven/internal/storage"
)

// fakeDriveRemote is an in-memory storage.Remote for end-to-end handler
// tests. failWith, when set, makes every call fail with that error.
type fakeDriveRemote struct {
	mu       sync.Mutex
	folders  map[string]bool
	files    map[string][]byte
	failWith error
}

func newFakeDriveRemote() *fakeDriveRemote {
	return &fakeDriveRemote{
		folders: map[string]bool{},
		files:   map[string][]byte{},
	}
}

func driveNotFound() error {
	return &drive.Error{StatusCode: http.StatusNotFound, Err: drive.ErrNotFound}
}

func (f *fakeDriveRemote) GetItemByPath(_ context.Context, remotePath string) (*drive.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}

	if f.folders[remotePath] {
		return &drive.Item{ID: remotePath, Name: path.Base(remotePath), IsFolder: true}, nil
	}

	if data, ok := f.files[remotePath]; ok {
		return &drive.Item{ID: remotePath, Name: path.Base(remotePath), Size: int64(len(data))}, nil
	}

	return nil, driveNotFound()
}

func (f *fakeDriveRemote) CreateFolder(_ context.Context, parentPath, name string) (*drive.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}

	full := path.Join(parentPath, name)
	if f.folders[full] {
		return nil, &drive.Error{StatusCode: http.StatusConflict, Err: drive.ErrConflict}
	}

	f.folders[full] = true

	return &drive.Item{ID: full, Name: name, IsFolder: true}, nil
}

func (f *fakeDriveRemote) Upload(_ context.Context, remotePath string, content []byte) (*drive.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}

	f.files[remotePath] = append([]byte(nil), content...)

	return &drive.Item{ID: remotePath, Name: path.Base(remotePath), Size: int64(len(content))}, nil
}

func (f *fakeDriveRemote) Download(_ context.Context, remotePath string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}

	data, ok := f.files[remotePath]
	if !ok {
		return nil, driveNotFound()
	}

	return append([]byte(nil), data...), nil
}

func (f *fakeDriveRemote) Delete(_ context.Context, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return f.failWith
	}

	if _, ok := f.files[remotePath]; !ok && !f.folders[remotePath] {
		return driveNotFound()
	}

	delete(f.files, remotePath)
	delete(f.folders, remotePath)

	return nil
}

func (f *fakeDriveRemote) ListChildrenByPath(_ context.Context, remotePath string) ([]drive.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}

	if remotePath != "" && !f.folders[remotePath] {
		return nil, driveNotFound()
	}

	var items []drive.Item

	isChild := func(p string) bool {
		return path.Dir(p) == remotePath || (remotePath == "" && !strings.Contains(p, "/"))
	}

	for p := range f.folders {
		if isChild(p) {
			items = append(items, drive.Item{ID: p, Name: path.Base(p), IsFolder: true})
		}
	}

	for p, data := range f.files {
		if isChild(p) {
			items = append(items, drive.Item{
				ID: p, Name: path.Base(p), Size: int64(len(data)), ModifiedAt: time.Now(),
			})
		}
	}

	return items, nil
}

// testEnv assembles the full stack behind the HTTP handler: fake drive
// remote, real gateway/library/profile stores, and a real credential
// manager pointed at a controllable token endpoint.
type testEnv struct {
	handler   http.Handler
	remote    *fakeDriveRemote
	manager   *credential.Manager
	tokenHits *atomic.Int32
	tokenFail *atomic.Bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	var (
		tokenHits atomic.Int32
		tokenFail atomic.Bool
	)

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		tokenHits.Add(1)
		w.Header().Set("Content-Type", "application/json")

		if tokenFail.Load() {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}

		_, _ = w.Write([]byte(`{"access_token":"refreshed-access","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	oauthCfg := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/api/auth/drive/callback",
		Scopes:       []string{"files.readwrite", "offline_access"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://auth.example.com/authorize",
			TokenURL: tokenSrv.URL,
		},
	}

	logger := slog.Default()
	remote := newFakeDriveRemote()
	manager := credential.NewManager(credential.NewStore(), oauthCfg, http.DefaultClient, logger)
	gateway := storage.NewGateway(remote, manager, "Inkhaven", logger)

	server := New(Config{
		Library:  library.New(gateway, logger),
		Profiles: profile.NewStore(gateway, logger),
		Gateway:  gateway,
		Creds:    manager,
		Logger:   logger,
	})

	return &testEnv{
		handler:   server.Router(),
		remote:    remote,
		manager:   manager,
		tokenHits: &tokenHits,
		tokenFail: &tokenFail,
	}
}

// do performs one request against the in-process handler.
func (e *testEnv) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	return rec
}

func asUser(id int64) map[string]string {
	return map[string]string{
		userIDHeader:    fmt.Sprintf("%d", id),
		userEmailHeader: fmt.Sprintf("user%d@example.com", id),
	}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var resp errorResponse
	decodeJSON(t, rec, &resp)

	return resp.Code
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	// An incoming id is propagated, not replaced.
	rec = env.do(t, http.MethodGet, "/healthz", "", map[string]string{requestIDHeader: "my-id"})
	assert.Equal(t, "my-id", rec.Header().Get(requestIDHeader))
}

func TestBookLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetTokens("access", "refresh")

	// Create.
	rec := env.do(t, http.MethodPost, "/api/books",
		`{"title":"My Book","author":"Me"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created library.Book
	decodeJSON(t, rec, &created)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "My Book", created.Title)

	// The blob was mirrored.
	assert.Contains(t, env.remote.files, "Inkhaven/book_1.json")

	// Get.
	rec = env.do(t, http.MethodGet, "/api/books/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var content library.BookContent
	decodeJSON(t, rec, &content)
	assert.Equal(t, "My Book", content.Title)
	assert.NotNil(t, content.Chapters)

	// Update.
	rec = env.do(t, http.MethodPut, "/api/books/1",
		`{"title":"Renamed","author":"Me","chapters":[{"id":"c1","title":"One","pages":[{"content":"p","pageNumber":1}]}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// List.
	rec = env.do(t, http.MethodGet, "/api/books", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Items []library.Book `json:"items"`
		Count int            `json:"count"`
	}
	decodeJSON(t, rec, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "Renamed", list.Items[0].Title)

	// Delete, then confirm gone.
	rec = env.do(t, http.MethodDelete, "/api/books/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/books/1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeBookNotFound, errorCode(t, rec))
}

func TestCreateBook_InvalidContent(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetTokens("access", "refresh")

	rec := env.do(t, http.MethodPost, "/api/books", `{"author":"no title"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidContent, errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/books", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidRequest, errorCode(t, rec))
}

func TestCreateBook_SuppliedIDConflict(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetTokens("access", "refresh")

	rec := env.do(t, http.MethodPost, "/api/books",
		`{"id":5,"title":"Original"}`, asUser(7))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/books",
		`{"id":5,"title":"Impostor"}`, asUser(8))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeBookIDConflict, errorCode(t, rec))

	// The first owner's book and blob survive untouched.
	rec = env.do(t, http.MethodGet, "/api/books/5", "", asUser(7))
	require.Equal(t, http.StatusOK, rec.Code)

	var content library.BookContent
	decodeJSON(t, rec, &content)
	assert.Equal(t, "Original", content.Title)

	assert.Contains(t, env.remote.files, "Inkhaven/user_7/book_5.json")
	assert.NotContains(t, env.remote.files, "Inkhaven/user_8/book_5.json")
}

func TestGetBook_InvalidID(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetTokens("access", "refresh")

	rec := env.do(t, http.MethodGet, "/api/books/banana", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidRequest, errorCode(t, rec))
}

func TestCreateBook_QuotaEnforced(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetTokens("access", "refresh")

	// Free plan allows three books.
	for i := 1; i <= 3; i++ {
		rec := env.do(t, http.MethodPost, "/api/books",
			fmt.Sprintf(`{"title":"Book %d"}`, i), asUser(7))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodPost, "/api/books", `{"title":"One Too Many"}`, asUser(7))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, codeQuotaExceeded, errorCode(t, rec))

	// A different user has their own quota.
	rec = env.do(t, http.MethodPost, "/api/books", `{"title":"Other"}`, asUser(9))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateBook_AIQuotaEnforced(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetTokens("access", "refresh")

	rec := env.do(t, http.MethodPost, "/api/books",
		`{"title":"AI One","aiGenerated":true}`, asUser(7))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/books",
		`{"title":"AI Two","aiGenerated":true}`, asUser(7))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, codeQuotaExceeded, errorCode(t, rec))

	// Plain books are still allowed under the separate book quota.
	rec = env.do(t, http.MethodPost, "/api/books", `{"title":"Manual"}`, asUser(7))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestProfileRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetTokens("access", "refresh")

	// Identity is required.
	rec := env.do(t, http.MethodGet, "/api/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, codeUserRequired, errorCode(t, rec))

	// First access bootstraps.
	rec = env.do(t, http.MethodGet, "/api/profile", "", asUser(7))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var p profile.Profile
	decodeJSON(t, rec, &p)
	assert.Equal(t, int64(7), p.UserID)
	assert.Equal(t, profile.PlanFree, p.Plan)
	assert.Equal(t, "user7@example.com", p.Email)

	// Plan upgrade.
	rec = env.do(t, http.MethodPut, "/api/profile/plan", `{"plan":"premium"}`, asUser(7))
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &p)
	assert.Equal(t, profile.PlanPremium, p.Plan)

	rec = env.do(t, http.MethodPut, "/api/profile/plan", `{"plan":"gold"}`, asUser(7))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidRequest, errorCode(t, rec))

	// Partial info update.
	rec = env.do(t, http.MethodPatch, "/api/profile/info", `{"displayName":"Jo"}`, asUser(7))
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &p)
	require.NotNil(t, p.DisplayName)
	assert.Equal(t, "Jo", *p.DisplayName)
	assert.Equal(t, "user7@example.com", p.Email)
}

func TestRefreshGate_ValidCredentialPassesWithoutRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetTokens("access", "refresh")

	rec := env.do(t, http.MethodGet, "/api/books", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, env.tokenHits.Load(), "no token traffic for a valid credential")
	assert.Empty(t, rec.Header().Get(degradedHeader))
}

func TestRefreshGate_InvalidCredentialRefreshes(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetTokens("stale-access", "refresh")
	env.manager.Store().Invalidate()

	rec := env.do(t, http.MethodGet, "/api/books", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), env.tokenHits.Load())
	assert.Empty(t, rec.Header().Get(degradedHeader))
	assert.True(t, env.manager.Store().IsValid())
	assert.Equal(t, "refreshed-access", env.manager.Store().Get().AccessToken)
}

func TestRefreshGate_FailedRefreshDegradesBookRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetTokens("stale-access", "revoked-refresh")
	env.manager.Store().Invalidate()
	env.tokenFail.Store(true)

	rec := env.do(t, http.MethodGet, "/api/books", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "book routes proceed in degraded mode")
	assert.Equal(t, "true", rec.Header().Get(degradedHeader))
}

func TestRefreshGate_FailedRefreshBlocksStorageRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetTokens("stale-access", "revoked-refresh")
	env.manager.Store().Invalidate()
	env.tokenFail.Store(true)

	rec := env.do(t, http.MethodGet, "/api/storage/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, codeReauthRequired, errorCode(t, rec))
}

func TestRefreshGate_UnguardedRoutesUntouched(t *testing.T) {
	env := newTestEnv(t)
	// No credential at all.

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/auth/drive", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)

	assert.Zero(t, env.tokenHits.Load())
}

func TestStorageToken_RecoversDeadCredential(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetTokens("stale-access", "revoked-refresh")
	env.manager.Store().Invalidate()
	env.tokenFail.Store(true)

	// Every other storage route is blocked.
	rec := env.do(t, http.MethodGet, "/api/storage/status", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// The token submission endpoint stays reachable.
	rec = env.do(t, http.MethodPost, "/api/storage/token",
		`{"accessToken":"fresh-access","refreshToken":"fresh-refresh"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.manager.Store().IsValid())

	// And storage routes work again.
	rec = env.do(t, http.MethodGet, "/api/storage/status", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStorageToken_RequiresAccessToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/storage/token", `{"refreshToken":"only"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidRequest, errorCode(t, rec))
}

func TestStorageStatus(t *testing.T) {
	env := newTestEnv(t)

	// No credential yet.
	rec := env.do(t, http.MethodGet, "/api/storage/status", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "gate blocks with no credential and no refresh token")

	env.manager.SetTokens("access", "refresh")

	rec = env.do(t, http.MethodGet, "/api/storage/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"connected"}`, rec.Body.String())
}

func TestStorageResync(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetTokens("access", "refresh")

	// Seed a remote blob no local book knows about.
	env.remote.folders["Inkhaven"] = true
	blob, err := json.Marshal(library.Book{ID: 42, Title: "From Remote"})
	require.NoError(t, err)
	env.remote.files["Inkhaven/book_42.json"] = blob

	rec := env.do(t, http.MethodPost, "/api/storage/resync", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Status       string `json:"status"`
		Materialized int    `json:"materialized"`
	}
	decodeJSON(t, rec, &resp)
	assert.Equal(t, 1, resp.Materialized)

	rec = env.do(t, http.MethodGet, "/api/books/42", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStorageBooks_RemoteOnlyListing(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetTokens("access", "refresh")

	// One local book (mirrored) plus one orphan remote blob.
	rec := env.do(t, http.MethodPost, "/api/books", `{"title":"Local"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	blob, err := json.Marshal(library.Book{ID: 50, Title: "Orphan"})
	require.NoError(t, err)
	env.remote.files["Inkhaven/book_50.json"] = blob

	rec = env.do(t, http.MethodGet, "/api/storage/books", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Items []remoteBookEntry `json:"items"`
		Count int               `json:"count"`
	}
	decodeJSON(t, rec, &resp)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, int64(50), resp.Items[0].ID)
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/auth/drive", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)

	location := rec.Header().Get("Location")
	require.NotEmpty(t, location)
	assert.True(t, strings.HasPrefix(location, "https://auth.example.com/authorize"))

	parsed, err := url.Parse(location)
	require.NoError(t, err)

	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	rec = env.do(t, http.MethodGet, "/api/auth/drive/callback?code=auth-code&state="+state, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp tokenRequest
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "refreshed-access", resp.AccessToken)
	assert.True(t, env.manager.Store().IsValid())
}

func TestAuthCallback_StateMismatch(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/auth/drive", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/auth/drive/callback?code=auth-code&state=forged", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeStateMismatch, errorCode(t, rec))
	assert.False(t, env.manager.Store().IsValid())
}

func TestAuthCallback_ProviderError(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/auth/drive/callback?error=access_denied", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidRequest, errorCode(t, rec))
}

func TestAuthCallback_MissingCode(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/auth/drive/callback?state=whatever", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidRequest, errorCode(t, rec))
}

func TestUserFromRequest(t *testing.T) {
	tests := []struct {
		name     string
		headerID string
		wantNil  bool
		wantID   int64
	}{
		{"absent", "", true, 0},
		{"valid", "7", false, 7},
		{"padded", " 7 ", false, 7},
		{"zero", "0", true, 0},
		{"negative", "-3", true, 0},
		{"garbage", "seven", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
			if tt.headerID != "" {
				req.Header.Set(userIDHeader, tt.headerID)
			}

			id, _ := userFromRequest(req)
			if tt.wantNil {
				assert.Nil(t, id)
			} else {
				require.NotNil(t, id)
				assert.Equal(t, tt.wantID, *id)
			}
		})
	}
}

func TestGateMatches(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/api/books", true},
		{"/api/books/3", true},
		{"/api/profile", true},
		{"/api/profile/plan", true},
		{"/api/storage/status", true},
		{"/api/storage/token", false},
		{"/api/auth/drive", false},
		{"/api/auth/drive/callback", false},
		{"/healthz", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, gateMatches(tt.path), "path %s", tt.path)
	}
}
