package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/imagecodec"
	"github.com/raine/hotpotato/internal/model"
	"github.com/raine/hotpotato/internal/storage"
)

const anonKey = "anon-key"

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// fakeSupabase routes requests to handlers by "METHOD /path" and records
// every request.
type fakeSupabase struct {
	t        *testing.T
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]http.HandlerFunc
}

func newFakeSupabase(t *testing.T) (*fakeSupabase, *httptest.Server) {
	f := &fakeSupabase{t: t, routes: map[string]http.HandlerFunc{}}
	ts := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(ts.Close)
	return f, ts
}

func (f *fakeSupabase) handle(route string, h http.HandlerFunc) {
	f.mu.Lock()
	f.routes[route] = h
	f.mu.Unlock()
}

func (f *fakeSupabase) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	h, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h(w, r)
}

func (f *fakeSupabase) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeSupabase) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sessionBody(access, refresh string) map[string]any {
	return map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
		"expires_in":    3600,
		"user": map[string]any{
			"id":         "user-1",
			"email":      "a@example.com",
			"created_at": "2026-01-01T10:00:00Z",
		},
	}
}

type stubEncoder struct {
	b64 string
	err error
}

func (e stubEncoder) Base64(ctx context.Context, ref string) (string, error) {
	return e.b64, e.err
}

func (e stubEncoder) DataURL(ctx context.Context, ref string) (string, error) {
	return imagecodec.DataURLPrefix + e.b64, e.err
}

func newTestClient(t *testing.T, url string, store SessionStore) *Client {
	t.Helper()
	c, err := New(Options{URL: url, AnonKey: anonKey, Encoder: stubEncoder{b64: "/9j/AA=="}, Store: store})
	require.NoError(t, err)
	c.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return c
}

func signedIn(t *testing.T, f *fakeSupabase, c *Client) {
	t.Helper()
	f.handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, sessionBody("access-1", "refresh-1"))
	})
	_, err := c.SignIn(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(Options{URL: "https://x.supabase.co", Encoder: stubEncoder{}})
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
	assert.Equal(t, MsgNotConfigured, apperr.Message(err))

	_, err = New(Options{AnonKey: "k", Encoder: stubEncoder{}})
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
}

func TestSignIn(t *testing.T) {
	f, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, nil)
	signedIn(t, f, c)

	req := f.last()
	assert.Equal(t, "grant_type=password", req.Query)
	assert.Equal(t, anonKey, req.Header.Get("apikey"))
	assert.JSONEq(t, `{"email":"a@example.com","password":"pw"}`, string(req.Body))

	user, ok := c.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "access-1", c.accessToken())
}

func TestSignIn_RemoteRejection(t *testing.T) {
	f, ts := newFakeSupabase(t)
	f.handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, map[string]any{"error": "invalid_grant", "error_description": "Invalid login credentials"})
	})
	c := newTestClient(t, ts.URL, nil)

	_, err := c.SignIn(context.Background(), "a@example.com", "bad")
	assert.Equal(t, apperr.KindRemote, apperr.KindOf(err))
	assert.Equal(t, "Invalid login credentials", apperr.Message(err))
	_, ok := c.CurrentSession()
	assert.False(t, ok)
}

func TestSignIn_NoUserData(t *testing.T) {
	f, ts := newFakeSupabase(t)
	f.handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"access_token": "a"})
	})
	c := newTestClient(t, ts.URL, nil)

	_, err := c.SignIn(context.Background(), "a@example.com", "pw")
	assert.Equal(t, MsgNoUserData, apperr.Message(err))
}

func TestSignUp_BareUser(t *testing.T) {
	f, ts := newFakeSupabase(t)
	f.handle("POST /auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"id": "user-2", "email": "b@example.com", "created_at": "2026-01-01T10:00:00Z"})
	})
	c := newTestClient(t, ts.URL, nil)

	user, err := c.SignUp(context.Background(), "b@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "user-2", user.ID)
	assert.Equal(t, "b@example.com", user.Email)
	_, ok := c.CurrentSession()
	assert.False(t, ok, "no session without tokens")
}

func TestSignOut_ClearsEvenOnFailure(t *testing.T) {
	f, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, nil)
	signedIn(t, f, c)
	f.handle("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 500, map[string]any{"msg": "boom"})
	})

	err := c.SignOut(context.Background())
	assert.Equal(t, apperr.KindRemote, apperr.KindOf(err))
	assert.Equal(t, "Bearer access-1", f.last().Header.Get("Authorization"))
	_, ok := c.CurrentSession()
	assert.False(t, ok)
}

func TestGetCurrentUser_NoSession(t *testing.T) {
	_, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, nil)

	_, err := c.GetCurrentUser(context.Background())
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
	assert.Equal(t, MsgNoAuthenticatedUser, apperr.Message(err))
}

func TestGetCurrentUser_RefreshesOn401(t *testing.T) {
	f, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, nil)
	signedIn(t, f, c)

	f.handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "grant_type=refresh_token", r.URL.RawQuery)
		writeJSON(w, 200, sessionBody("access-2", "refresh-2"))
	})
	f.handle("GET /auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-2" {
			writeJSON(w, 401, map[string]any{"msg": "JWT expired"})
			return
		}
		writeJSON(w, 200, map[string]any{"id": "user-1", "email": "a@example.com"})
	})

	user, err := c.GetCurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, 2, f.count("GET", "/auth/v1/user"))
	assert.Equal(t, "access-2", c.accessToken())
	assert.Equal(t, "refresh-2", c.refreshToken())
}

func TestGetCurrentUser_RejectedSessionIsCleared(t *testing.T) {
	f, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, nil)
	signedIn(t, f, c)

	f.handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, map[string]any{"error_description": "Invalid Refresh Token"})
	})
	f.handle("GET /auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, map[string]any{"msg": "JWT expired"})
	})

	_, err := c.GetCurrentUser(context.Background())
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
	_, ok := c.CurrentSession()
	assert.False(t, ok)
}

func TestUploadImage_RequiresSession(t *testing.T) {
	f, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, nil)

	_, err := c.UploadImage(context.Background(), "photo.jpg", "")
	assert.Equal(t, MsgUploadRequiresAuth, apperr.Message(err))
	assert.Equal(t, 0, f.count("POST", "/storage/v1/object/listings/user-1/1700000000123.jpg"))
}

func TestUploadImage(t *testing.T) {
	f, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, nil)
	signedIn(t, f, c)

	f.handle("POST /storage/v1/object/listings/user-1/1700000000123.jpg", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"Key": "listings/user-1/1700000000123.jpg"})
	})

	url, err := c.UploadImage(context.Background(), "photo.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, ts.URL+"/storage/v1/object/public/listings/user-1/1700000000123.jpg", url)

	req := f.last()
	assert.Equal(t, "false", req.Header.Get("x-upsert"))
	assert.Equal(t, "image/jpeg", req.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer access-1", req.Header.Get("Authorization"))
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0x00}, req.Body)
}

func TestUploadImage_Collision(t *testing.T) {
	f, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, nil)
	signedIn(t, f, c)

	f.handle("POST /storage/v1/object/listings/user-1/1700000000123.jpg", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, map[string]any{"statusCode": "409", "error": "Duplicate", "message": "The resource already exists"})
	})

	_, err := c.UploadImage(context.Background(), "photo.jpg", "")
	assert.Equal(t, apperr.KindRemote, apperr.KindOf(err))
	assert.Equal(t, "The resource already exists", apperr.Message(err))
}

func TestUploadImage_CodecError(t *testing.T) {
	f, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, nil)
	signedIn(t, f, c)
	c.encoder = stubEncoder{err: apperr.Codec(nil, "Failed to read image")}

	_, err := c.UploadImage(context.Background(), "missing.jpg", "")
	assert.Equal(t, apperr.KindCodec, apperr.KindOf(err))
	assert.Equal(t, 0, f.count("POST", "/storage/v1/object/listings/user-1/1700000000123.jpg"))
}

func TestCreateListing(t *testing.T) {
	f, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, nil)
	signedIn(t, f, c)

	f.handle("POST /rest/v1/listings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		writeJSON(w, 201, []map[string]any{{
			"id": "L1", "user_id": "user-1", "title": "Chair", "description": "Nice",
			"price": 150, "image_url": "U", "detected_item": "Oak Chair",
			"created_at": "2026-01-02T10:00:00.123456+00:00",
		}})
	})

	listing, err := c.CreateListing(context.Background(), model.NewListing{
		UserID: "user-1", Title: "Chair", Description: "Nice", Price: 150, ImageURL: "U", DetectedItem: "Oak Chair",
	})
	require.NoError(t, err)
	assert.Equal(t, "L1", listing.ID)
	assert.Equal(t, 150.0, listing.Price)
	assert.Equal(t, "U", listing.ImageURL)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(f.last().Body, &sent))
	assert.Equal(t, "user-1", sent["user_id"])
	assert.NotContains(t, sent, "id")
	assert.NotContains(t, sent, "confidence")
}

func TestGetListings(t *testing.T) {
	f, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, nil)
	signedIn(t, f, c)

	f.handle("GET /rest/v1/listings", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "eq.user-1", q.Get("user_id"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "*", q.Get("select"))
		writeJSON(w, 200, []map[string]any{
			{"id": "L2", "created_at": "2026-01-03T10:00:00Z"},
			{"id": "L1", "created_at": "2026-01-02T10:00:00Z"},
		})
	})

	listings, err := c.GetListings(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "L2", listings[0].ID)
	assert.Equal(t, "L1", listings[1].ID)
}

func TestDeleteListing(t *testing.T) {
	f, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, nil)
	signedIn(t, f, c)

	f.handle("DELETE /rest/v1/listings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.L1", r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeleteListing(context.Background(), "L1"))
}

func TestPostgrestError(t *testing.T) {
	f, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, nil)

	f.handle("DELETE /rest/v1/listings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 403, map[string]any{"code": "42501", "message": "permission denied for table listings"})
	})

	err := c.DeleteListing(context.Background(), "L1")
	assert.Equal(t, apperr.KindRemote, apperr.KindOf(err))
	assert.Equal(t, "permission denied for table listings", apperr.Message(err))
}

func TestNetworkError(t *testing.T) {
	_, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, nil)
	ts.Close()

	_, err := c.SignIn(context.Background(), "a@example.com", "pw")
	assert.Equal(t, apperr.KindNetwork, apperr.KindOf(err))
}

func TestSessionPersistsAcrossClients(t *testing.T) {
	key, err := storage.DeriveKey("k")
	require.NoError(t, err)
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "s.db"), key)
	require.NoError(t, err)
	defer store.Close()

	f, ts := newFakeSupabase(t)
	c := newTestClient(t, ts.URL, store)
	signedIn(t, f, c)

	restored := newTestClient(t, ts.URL, store)
	user, ok := restored.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "access-1", restored.accessToken())

	f.handle("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, restored.SignOut(context.Background()))

	again := newTestClient(t, ts.URL, store)
	_, ok = again.CurrentSession()
	assert.False(t, ok)
}
