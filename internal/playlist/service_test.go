package playlist

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/cadenza-app/cadenza/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	result, err := db.Exec(
		`INSERT INTO users (display_name, email, role) VALUES (?, ?, 'listener')`,
		name, name+"@example.com",
	)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

func createTrack(t *testing.T, db *sql.DB, artistID int64, title string) int64 {
	t.Helper()
	result, err := db.Exec(`INSERT INTO albums (artist_id, title) VALUES (?, 'Fixtures')`, artistID)
	if err != nil {
		t.Fatalf("create album: %v", err)
	}
	albumID, _ := result.LastInsertId()
	result, err = db.Exec(
		`INSERT INTO tracks (album_id, artist_id, title, duration_secs) VALUES (?, ?, ?, 180)`,
		albumID, artistID, title,
	)
	if err != nil {
		t.Fatalf("create track: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

func positions(t *testing.T, svc *Service, actorID, playlistID int64) map[int64]int {
	t.Helper()
	entries, err := svc.Entries(context.Background(), actorID, playlistID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	got := make(map[int64]int, len(entries))
	for _, e := range entries {
		got[e.TrackID] = e.Position
	}
	return got
}

// checkDense fails unless the playlist's positions are exactly 1..N in
// entry order.
func checkDense(t *testing.T, svc *Service, actorID, playlistID int64) {
	t.Helper()
	entries, err := svc.Entries(context.Background(), actorID, playlistID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	for i, e := range entries {
		if e.Position != i+1 {
			t.Fatalf("entry %d has position %d, want %d", i, e.Position, i+1)
		}
	}
}

func TestAppendAssignsDensePositions(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	owner := createUser(t, db, "owner")
	p, err := svc.Create(ctx, owner, "Morning", "", true, false)
	if err != nil {
		t.Fatalf("create playlist: %v", err)
	}

	tracks := []int64{
		createTrack(t, db, owner, "One"),
		createTrack(t, db, owner, "Two"),
		createTrack(t, db, owner, "Three"),
	}
	for _, id := range tracks {
		if err := svc.Append(ctx, owner, p.ID, id); err != nil {
			t.Fatalf("append track %d: %v", id, err)
		}
	}

	got := positions(t, svc, owner, p.ID)
	for i, id := range tracks {
		if got[id] != i+1 {
			t.Errorf("track %d at position %d, want %d", id, got[id], i+1)
		}
	}
}

func TestAppendDuplicate(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	owner := createUser(t, db, "owner")
	p, _ := svc.Create(ctx, owner, "Morning", "", true, false)
	track := createTrack(t, db, owner, "One")

	if err := svc.Append(ctx, owner, p.ID, track); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := svc.Append(ctx, owner, p.ID, track); !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("second append err = %v, want ErrDuplicateEntry", err)
	}
	checkDense(t, svc, owner, p.ID)
}

func TestAppendMissingTrack(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	owner := createUser(t, db, "owner")
	p, _ := svc.Create(ctx, owner, "Morning", "", true, false)

	if err := svc.Append(ctx, owner, p.ID, 9999); !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("append err = %v, want ErrTrackNotFound", err)
	}
}

func TestRemoveClosesGap(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	owner := createUser(t, db, "owner")
	p, _ := svc.Create(ctx, owner, "Morning", "", true, false)

	t1 := createTrack(t, db, owner, "One")
	t2 := createTrack(t, db, owner, "Two")
	t3 := createTrack(t, db, owner, "Three")
	for _, id := range []int64{t1, t2, t3} {
		if err := svc.Append(ctx, owner, p.ID, id); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if err := svc.Remove(ctx, owner, p.ID, t2); err != nil {
		t.Fatalf("remove: %v", err)
	}

	got := positions(t, svc, owner, p.ID)
	if got[t1] != 1 || got[t3] != 2 {
		t.Fatalf("positions after remove = %v, want t1@1 t3@2", got)
	}

	// The next append lands on the freed tail slot.
	t4 := createTrack(t, db, owner, "Four")
	if err := svc.Append(ctx, owner, p.ID, t4); err != nil {
		t.Fatalf("append after remove: %v", err)
	}
	got = positions(t, svc, owner, p.ID)
	if got[t4] != 3 {
		t.Fatalf("t4 at position %d, want 3", got[t4])
	}
	checkDense(t, svc, owner, p.ID)
}

func TestRemoveMissingEntry(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	owner := createUser(t, db, "owner")
	p, _ := svc.Create(ctx, owner, "Morning", "", true, false)
	track := createTrack(t, db, owner, "One")

	if err := svc.Remove(ctx, owner, p.ID, track); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("remove err = %v, want ErrEntryNotFound", err)
	}
}

func TestReorder(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	owner := createUser(t, db, "owner")
	p, _ := svc.Create(ctx, owner, "Morning", "", true, false)

	t1 := createTrack(t, db, owner, "One")
	t2 := createTrack(t, db, owner, "Two")
	t3 := createTrack(t, db, owner, "Three")
	for _, id := range []int64{t1, t2, t3} {
		if err := svc.Append(ctx, owner, p.ID, id); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if err := svc.Reorder(ctx, owner, p.ID, []int64{t3, t1, t2}); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	got := positions(t, svc, owner, p.ID)
	if got[t3] != 1 || got[t1] != 2 || got[t2] != 3 {
		t.Fatalf("positions after reorder = %v, want t3@1 t1@2 t2@3", got)
	}
}

func TestReorderRejectsPartialList(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	owner := createUser(t, db, "owner")
	p, _ := svc.Create(ctx, owner, "Morning", "", true, false)

	t1 := createTrack(t, db, owner, "One")
	t2 := createTrack(t, db, owner, "Two")
	t3 := createTrack(t, db, owner, "Three")
	for _, id := range []int64{t1, t2, t3} {
		if err := svc.Append(ctx, owner, p.ID, id); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	cases := []struct {
		name  string
		order []int64
	}{
		{"missing track", []int64{t1, t2}},
		{"duplicate track", []int64{t1, t2, t2}},
		{"foreign track", []int64{t1, t2, 9999}},
		{"empty", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.Reorder(ctx, owner, p.ID, tc.order); !errors.Is(err, ErrIncompleteOrdering) {
				t.Fatalf("reorder err = %v, want ErrIncompleteOrdering", err)
			}
		})
	}

	// The failed reorders left the original ordering intact.
	got := positions(t, svc, owner, p.ID)
	if got[t1] != 1 || got[t2] != 2 || got[t3] != 3 {
		t.Fatalf("positions after failed reorders = %v, want original order", got)
	}
}

func TestCollaborativeEditRights(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	owner := createUser(t, db, "owner")
	other := createUser(t, db, "other")
	track := createTrack(t, db, owner, "One")

	private, _ := svc.Create(ctx, owner, "Private", "", true, false)
	if err := svc.Append(ctx, other, private.ID, track); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner append err = %v, want ErrUnauthorized", err)
	}

	shared, _ := svc.Create(ctx, owner, "Shared", "", true, true)
	if err := svc.Append(ctx, other, shared.ID, track); err != nil {
		t.Fatalf("collaborative append: %v", err)
	}
	if err := svc.Remove(ctx, other, shared.ID, track); err != nil {
		t.Fatalf("collaborative remove: %v", err)
	}

	// Reorder and metadata stay owner-only even on collaborative lists.
	if err := svc.Append(ctx, owner, shared.ID, track); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := svc.Reorder(ctx, other, shared.ID, []int64{track}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner reorder err = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Update(ctx, other, shared.ID, "x", "", true, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner update err = %v, want ErrUnauthorized", err)
	}
	if err := svc.Delete(ctx, other, shared.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner delete err = %v, want ErrUnauthorized", err)
	}
}

func TestPrivatePlaylistVisibility(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	owner := createUser(t, db, "owner")
	other := createUser(t, db, "other")

	p, _ := svc.Create(ctx, owner, "Secret", "", false, false)

	if _, err := svc.Get(ctx, other, p.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("get by other err = %v, want ErrForbidden", err)
	}
	if _, err := svc.Get(ctx, owner, p.ID); err != nil {
		t.Fatalf("get by owner: %v", err)
	}
	if _, err := svc.Entries(ctx, other, p.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("entries by other err = %v, want ErrForbidden", err)
	}
}

func TestDeleteLeavesNoOrphans(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	owner := createUser(t, db, "owner")
	fan := createUser(t, db, "fan")
	p, _ := svc.Create(ctx, owner, "Morning", "", true, false)
	track := createTrack(t, db, owner, "One")
	if err := svc.Append(ctx, owner, p.ID, track); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO playlist_likes (user_id, playlist_id) VALUES (?, ?)`, fan, p.ID); err != nil {
		t.Fatalf("insert like: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO playlist_follows (user_id, playlist_id) VALUES (?, ?)`, fan, p.ID); err != nil {
		t.Fatalf("insert follow: %v", err)
	}

	if err := svc.Delete(ctx, owner, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, table := range []string{"playlist_entries", "playlist_likes", "playlist_follows"} {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE playlist_id = ?`, p.ID).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s has %d orphan rows", table, n)
		}
	}
	if _, err := svc.Get(ctx, owner, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete err = %v, want ErrNotFound", err)
	}
}

func TestRemoveTrackEverywhere(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	owner := createUser(t, db, "owner")
	t1 := createTrack(t, db, owner, "One")
	t2 := createTrack(t, db, owner, "Two")

	p1, _ := svc.Create(ctx, owner, "First", "", true, false)
	p2, _ := svc.Create(ctx, owner, "Second", "", true, false)
	for _, pl := range []int64{p1.ID, p2.ID} {
		for _, tr := range []int64{t1, t2} {
			if err := svc.Append(ctx, owner, pl, tr); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := RemoveTrackEverywhere(tx, t1); err != nil {
		t.Fatalf("remove everywhere: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	for _, pl := range []int64{p1.ID, p2.ID} {
		got := positions(t, svc, owner, pl)
		if len(got) != 1 || got[t2] != 1 {
			t.Errorf("playlist %d positions = %v, want only t2@1", pl, got)
		}
	}
}
