package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cadenza-app/cadenza/internal/archive"
	"github.com/cadenza-app/cadenza/internal/blob"
	"github.com/cadenza-app/cadenza/internal/database"
	"github.com/cadenza-app/cadenza/internal/identity"
	"github.com/cadenza-app/cadenza/internal/payment"
)

type testEnv struct {
	router   http.Handler
	verifier *identity.TokenVerifier
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	blobs, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}

	verifier := identity.NewTokenVerifier("test-secret")
	gateway := payment.NewSimulatedGateway(payment.Config{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := New(db, verifier, gateway, blobs, archive.Config{}, logger)
	return &testEnv{router: srv.Router(), verifier: verifier}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// createUser registers a user over the public endpoint and returns its ID
// and a signed token.
func (e *testEnv) createUser(t *testing.T, name, role string) (int64, string) {
	t.Helper()
	rec := e.do(t, "POST", "/api/users", "", map[string]string{
		"display_name": name,
		"email":        name + "@example.com",
		"role":         role,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user status = %d: %s", rec.Code, rec.Body)
	}
	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	token, err := e.verifier.SignForTest(user.ID, role, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return user.ID, token
}

func TestHealthIsPublic(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, "GET", "/api/playlists", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestPlaylistFlowOverHTTP(t *testing.T) {
	env := setupTestServer(t)

	_, artistToken := env.createUser(t, "artist", "artist")
	_, listenerToken := env.createUser(t, "listener", "listener")

	// Artist publishes an album with two tracks.
	rec := env.do(t, "POST", "/api/albums", artistToken, map[string]string{"title": "First"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create album status = %d: %s", rec.Code, rec.Body)
	}
	var album struct {
		ID int64 `json:"id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &album)

	var trackIDs []int64
	for _, title := range []string{"One", "Two"} {
		rec = env.do(t, "POST", "/api/tracks", artistToken, map[string]any{
			"album_id":      album.ID,
			"title":         title,
			"duration_secs": 180,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create track status = %d: %s", rec.Code, rec.Body)
		}
		var track struct {
			ID int64 `json:"id"`
		}
		json.Unmarshal(rec.Body.Bytes(), &track)
		trackIDs = append(trackIDs, track.ID)
	}

	// Listeners cannot publish tracks.
	rec = env.do(t, "POST", "/api/tracks", listenerToken, map[string]any{
		"album_id": album.ID, "title": "Nope", "duration_secs": 60,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("listener create track status = %d, want 403", rec.Code)
	}

	// Listener builds a playlist.
	rec = env.do(t, "POST", "/api/playlists", listenerToken, map[string]any{
		"name": "Favorites", "public": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create playlist status = %d: %s", rec.Code, rec.Body)
	}
	var pl struct {
		ID int64 `json:"id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &pl)

	for _, trackID := range trackIDs {
		rec = env.do(t, "POST", fmt.Sprintf("/api/playlists/%d/tracks/%d", pl.ID, trackID), listenerToken, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("append status = %d: %s", rec.Code, rec.Body)
		}
	}

	// Duplicate append conflicts.
	rec = env.do(t, "POST", fmt.Sprintf("/api/playlists/%d/tracks/%d", pl.ID, trackIDs[0]), listenerToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate append status = %d, want 409", rec.Code)
	}

	// Reorder, then read back the positions.
	rec = env.do(t, "PUT", fmt.Sprintf("/api/playlists/%d/order", pl.ID), listenerToken, map[string]any{
		"track_ids": []int64{trackIDs[1], trackIDs[0]},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reorder status = %d: %s", rec.Code, rec.Body)
	}

	rec = env.do(t, "GET", fmt.Sprintf("/api/playlists/%d/tracks", pl.ID), listenerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("entries status = %d: %s", rec.Code, rec.Body)
	}
	var entries []struct {
		TrackID  int64 `json:"track_id"`
		Position int   `json:"position"`
	}
	json.Unmarshal(rec.Body.Bytes(), &entries)
	if len(entries) != 2 || entries[0].TrackID != trackIDs[1] || entries[0].Position != 1 {
		t.Fatalf("entries = %+v, want reordered list", entries)
	}

	// Partial reorder is rejected.
	rec = env.do(t, "PUT", fmt.Sprintf("/api/playlists/%d/order", pl.ID), listenerToken, map[string]any{
		"track_ids": []int64{trackIDs[0]},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("partial reorder status = %d, want 422", rec.Code)
	}
}

func TestSubscriptionFlowOverHTTP(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.createUser(t, "subscriber", "listener")

	rec := env.do(t, "GET", "/api/plans", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list plans status = %d", rec.Code)
	}
	var plans []struct {
		ID int64 `json:"id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &plans)
	if len(plans) == 0 {
		t.Fatal("no seeded plans")
	}

	rec = env.do(t, "POST", "/api/subscriptions", token, map[string]any{"plan_id": plans[0].ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("activate status = %d: %s", rec.Code, rec.Body)
	}

	rec = env.do(t, "POST", "/api/subscriptions", token, map[string]any{"plan_id": plans[0].ID})
	if rec.Code != http.StatusConflict {
		t.Fatalf("double activate status = %d, want 409", rec.Code)
	}

	rec = env.do(t, "POST", "/api/subscriptions/cancel", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d: %s", rec.Code, rec.Body)
	}

	rec = env.do(t, "POST", "/api/subscriptions/reactivate", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reactivate status = %d: %s", rec.Code, rec.Body)
	}

	rec = env.do(t, "GET", "/api/subscriptions/transactions", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transactions status = %d", rec.Code)
	}
	var txns []json.RawMessage
	json.Unmarshal(rec.Body.Bytes(), &txns)
	if len(txns) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txns))
	}
}

func TestSocialTogglesOverHTTP(t *testing.T) {
	env := setupTestServer(t)
	_, aliceToken := env.createUser(t, "alice", "listener")
	bobID, bobToken := env.createUser(t, "bob", "listener")

	rec := env.do(t, "POST", fmt.Sprintf("/api/users/%d/follow", bobID), aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("follow status = %d: %s", rec.Code, rec.Body)
	}
	var toggle struct {
		Active bool `json:"active"`
	}
	json.Unmarshal(rec.Body.Bytes(), &toggle)
	if !toggle.Active {
		t.Fatal("first toggle should activate the edge")
	}

	// Self-follow is rejected.
	rec = env.do(t, "POST", fmt.Sprintf("/api/users/%d/follow", bobID), bobToken, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("self-follow status = %d, want 422", rec.Code)
	}

	rec = env.do(t, "GET", fmt.Sprintf("/api/users/%d/follow-counts", bobID), bobToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("counts status = %d", rec.Code)
	}
	var counts struct {
		Followers int64 `json:"followers"`
		Following int64 `json:"following"`
	}
	json.Unmarshal(rec.Body.Bytes(), &counts)
	if counts.Followers != 1 || counts.Following != 0 {
		t.Fatalf("counts = %+v, want 1/0", counts)
	}

	// Counts for a user that does not exist are a 404, not zeros.
	rec = env.do(t, "GET", "/api/users/99999/follow-counts", bobToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("counts for missing user status = %d, want 404", rec.Code)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.createUser(t, "pleb", "listener")

	rec := env.do(t, "GET", "/api/admin/snapshots", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}
