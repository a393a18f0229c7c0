// Package playlist owns playlist membership ordering: for a playlist with N
// entries the stored positions are exactly {1..N}, each exactly once. Every
// mutation runs in a single transaction so the invariant is never observable
// half-applied.
package playlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cadenza-app/cadenza/internal/model"
	"github.com/cadenza-app/cadenza/internal/store"
)

var (
	ErrNotFound           = errors.New("playlist not found")
	ErrTrackNotFound      = errors.New("track not found")
	ErrEntryNotFound      = errors.New("track is not in the playlist")
	ErrDuplicateEntry     = errors.New("track is already in the playlist")
	ErrUnauthorized       = errors.New("not allowed to modify this playlist")
	ErrForbidden          = errors.New("not allowed to view this playlist")
	ErrIncompleteOrdering = errors.New("ordering must list every track in the playlist exactly once")
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const playlistCols = `id, owner_id, name, description, is_public, is_collaborative, created_at, updated_at`

func scanPlaylist(scanner interface{ Scan(...any) error }) (*model.Playlist, error) {
	var p model.Playlist
	err := scanner.Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.Description,
		&p.Public, &p.Collaborative, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func getPlaylist(q querier, id int64) (*model.Playlist, error) {
	row := q.QueryRow(`SELECT `+playlistCols+` FROM playlists WHERE id = ?`, id)
	p, err := scanPlaylist(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get playlist: %w", err)
	}
	return p, nil
}

// canEditEntries reports whether the actor may add or remove tracks: the
// owner always, anyone when the playlist is collaborative. Metadata edits,
// reorders and deletion stay owner-only.
func canEditEntries(p *model.Playlist, actorID int64) bool {
	return p.OwnerID == actorID || p.Collaborative
}

// Create makes a new, empty playlist owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID int64, name, description string, public, collaborative bool) (*model.Playlist, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO playlists (owner_id, name, description, is_public, is_collaborative) VALUES (?, ?, ?, ?, ?)`,
		ownerID, name, description, public, collaborative,
	)
	if err != nil {
		return nil, fmt.Errorf("insert playlist: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return getPlaylist(s.db, id)
}

// Get returns the playlist if the actor may see it. Private playlists are
// visible only to their owner.
func (s *Service) Get(ctx context.Context, actorID, playlistID int64) (*model.Playlist, error) {
	p, err := getPlaylist(s.db, playlistID)
	if err != nil {
		return nil, err
	}
	if !p.Public && p.OwnerID != actorID {
		return nil, ErrForbidden
	}
	return p, nil
}

// Update changes playlist metadata. Owner only, collaborative or not.
func (s *Service) Update(ctx context.Context, actorID, playlistID int64, name, description string, public, collaborative bool) (*model.Playlist, error) {
	p, err := getPlaylist(s.db, playlistID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actorID {
		return nil, ErrUnauthorized
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE playlists SET name = ?, description = ?, is_public = ?, is_collaborative = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, description, public, collaborative, playlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("update playlist: %w", err)
	}
	return getPlaylist(s.db, playlistID)
}

// ForOwner lists playlists owned by the given user, newest first.
func (s *Service) ForOwner(ctx context.Context, ownerID int64) ([]*model.Playlist, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+playlistCols+` FROM playlists WHERE owner_id = ? ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*model.Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("scan playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// Entries returns the playlist's membership rows in position order.
func (s *Service) Entries(ctx context.Context, actorID, playlistID int64) ([]*model.PlaylistEntry, error) {
	if _, err := s.Get(ctx, actorID, playlistID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT playlist_id, track_id, position, added_at FROM playlist_entries WHERE playlist_id = ? ORDER BY position`,
		playlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.PlaylistEntry
	for rows.Next() {
		var e model.PlaylistEntry
		if err := rows.Scan(&e.PlaylistID, &e.TrackID, &e.Position, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Append adds a track at position max+1. The next-position read and the
// insert share one transaction, so two concurrent appends serialize on the
// store instead of colliding.
func (s *Service) Append(ctx context.Context, actorID, playlistID, trackID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := getPlaylist(tx, playlistID)
	if err != nil {
		return err
	}
	if !canEditEntries(p, actorID) {
		return ErrUnauthorized
	}

	var trackExists bool
	if err := tx.QueryRow(`SELECT EXISTS (SELECT 1 FROM tracks WHERE id = ?)`, trackID).Scan(&trackExists); err != nil {
		return fmt.Errorf("check track: %w", err)
	}
	if !trackExists {
		return ErrTrackNotFound
	}

	var next int
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(position), 0) + 1 FROM playlist_entries WHERE playlist_id = ?`,
		playlistID,
	).Scan(&next); err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO playlist_entries (playlist_id, track_id, position) VALUES (?, ?, ?)`,
		playlistID, trackID, next,
	)
	if store.IsUniqueViolation(err) {
		return ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	if err := touch(tx, playlistID); err != nil {
		return err
	}
	return tx.Commit()
}

// Remove deletes one entry and closes the gap it leaves: every position
// greater than the removed one shifts down by one, relative to the ordering
// as it stood before the delete.
func (s *Service) Remove(ctx context.Context, actorID, playlistID, trackID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := getPlaylist(tx, playlistID)
	if err != nil {
		return err
	}
	if !canEditEntries(p, actorID) {
		return ErrUnauthorized
	}

	if err := removeEntry(tx, playlistID, trackID); err != nil {
		return err
	}

	if err := touch(tx, playlistID); err != nil {
		return err
	}
	return tx.Commit()
}

// removeEntry deletes the entry and renumbers the tail inside the caller's
// transaction. The shift goes through negative intermediates so the unique
// (playlist_id, position) index never sees two rows on the same slot.
func removeEntry(tx *sql.Tx, playlistID, trackID int64) error {
	var removed int
	err := tx.QueryRow(
		`SELECT position FROM playlist_entries WHERE playlist_id = ? AND track_id = ?`,
		playlistID, trackID,
	).Scan(&removed)
	if err == sql.ErrNoRows {
		return ErrEntryNotFound
	}
	if err != nil {
		return fmt.Errorf("get entry position: %w", err)
	}

	if _, err := tx.Exec(
		`DELETE FROM playlist_entries WHERE playlist_id = ? AND track_id = ?`,
		playlistID, trackID,
	); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE playlist_entries SET position = -(position - 1) WHERE playlist_id = ? AND position > ?`,
		playlistID, removed,
	); err != nil {
		return fmt.Errorf("shift positions: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE playlist_entries SET position = -position WHERE playlist_id = ? AND position < 0`,
		playlistID,
	); err != nil {
		return fmt.Errorf("restore positions: %w", err)
	}
	return nil
}

// Reorder rewrites the full ordering: orderedTrackIDs[i] lands on position
// i+1. The list must be an exact permutation of the playlist's current
// tracks; partial lists are rejected rather than silently leaving stale
// positions behind.
func (s *Service) Reorder(ctx context.Context, actorID, playlistID int64, orderedTrackIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := getPlaylist(tx, playlistID)
	if err != nil {
		return err
	}
	if p.OwnerID != actorID {
		return ErrUnauthorized
	}

	rows, err := tx.Query(`SELECT track_id FROM playlist_entries WHERE playlist_id = ?`, playlistID)
	if err != nil {
		return fmt.Errorf("list entry tracks: %w", err)
	}
	current := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan track id: %w", err)
		}
		current[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list entry tracks: %w", err)
	}

	if len(orderedTrackIDs) != len(current) {
		return ErrIncompleteOrdering
	}
	seen := make(map[int64]bool, len(orderedTrackIDs))
	for _, id := range orderedTrackIDs {
		if !current[id] || seen[id] {
			return ErrIncompleteOrdering
		}
		seen[id] = true
	}

	// Park every row on a negative slot, then write the final positions.
	if _, err := tx.Exec(
		`UPDATE playlist_entries SET position = -position WHERE playlist_id = ?`,
		playlistID,
	); err != nil {
		return fmt.Errorf("park positions: %w", err)
	}
	for i, trackID := range orderedTrackIDs {
		if _, err := tx.Exec(
			`UPDATE playlist_entries SET position = ? WHERE playlist_id = ? AND track_id = ?`,
			i+1, playlistID, trackID,
		); err != nil {
			return fmt.Errorf("set position: %w", err)
		}
	}

	if err := touch(tx, playlistID); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes the playlist and everything hanging off it: entries, likes
// and follow edges go in the same transaction as the playlist row, so no
// orphan rows survive a crash between steps.
func (s *Service) Delete(ctx context.Context, actorID, playlistID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := getPlaylist(tx, playlistID)
	if err != nil {
		return err
	}
	if p.OwnerID != actorID {
		return ErrUnauthorized
	}

	steps := []struct {
		desc  string
		query string
	}{
		{"delete entries", `DELETE FROM playlist_entries WHERE playlist_id = ?`},
		{"delete likes", `DELETE FROM playlist_likes WHERE playlist_id = ?`},
		{"delete follows", `DELETE FROM playlist_follows WHERE playlist_id = ?`},
		{"delete playlist", `DELETE FROM playlists WHERE id = ?`},
	}
	for _, step := range steps {
		if _, err := tx.Exec(step.query, playlistID); err != nil {
			return fmt.Errorf("%s: %w", step.desc, err)
		}
	}
	return tx.Commit()
}

// RemoveTrackEverywhere removes a track from every playlist that contains
// it, renumbering each one, inside the caller's transaction. Used when a
// track is deleted from the catalog.
func RemoveTrackEverywhere(tx *sql.Tx, trackID int64) error {
	rows, err := tx.Query(`SELECT playlist_id FROM playlist_entries WHERE track_id = ?`, trackID)
	if err != nil {
		return fmt.Errorf("list playlists containing track: %w", err)
	}
	var playlistIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan playlist id: %w", err)
		}
		playlistIDs = append(playlistIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list playlists containing track: %w", err)
	}

	for _, playlistID := range playlistIDs {
		if err := removeEntry(tx, playlistID, trackID); err != nil {
			return err
		}
		if err := touch(tx, playlistID); err != nil {
			return err
		}
	}
	return nil
}

func touch(tx *sql.Tx, playlistID int64) error {
	if _, err := tx.Exec(
		`UPDATE playlists SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		playlistID,
	); err != nil {
		return fmt.Errorf("touch playlist: %w", err)
	}
	return nil
}
