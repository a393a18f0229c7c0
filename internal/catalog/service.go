// Package catalog owns tracks and albums, listen recording, and the
// orchestrated deletes that keep playlist positions dense and the social
// graph free of dangling edges when catalog rows go away.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cadenza-app/cadenza/internal/model"
	"github.com/cadenza-app/cadenza/internal/playlist"
	"github.com/cadenza-app/cadenza/internal/social"
)

var (
	ErrAlbumNotFound = errors.New("album not found")
	ErrTrackNotFound = errors.New("track not found")
	ErrUnauthorized  = errors.New("not the owner of this catalog entry")
)

// listenDedupeWindow suppresses repeat listen rows for the same (user,
// track) pair arriving in quick succession, e.g. from a scrubbing player.
const listenDedupeWindow = 2 * time.Minute

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const albumCols = `id, artist_id, title, description, released_on, cover_path, created_at, updated_at`

func scanAlbum(scanner interface{ Scan(...any) error }) (*model.Album, error) {
	var a model.Album
	var releasedOn sql.NullTime
	var coverPath sql.NullString
	err := scanner.Scan(
		&a.ID, &a.ArtistID, &a.Title, &a.Description,
		&releasedOn, &coverPath, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if releasedOn.Valid {
		a.ReleasedOn = &releasedOn.Time
	}
	if coverPath.Valid {
		a.CoverPath = &coverPath.String
	}
	return &a, nil
}

const trackCols = `id, album_id, artist_id, title, duration_secs, genre, explicit, play_count, file_path, created_at, updated_at`

func scanTrack(scanner interface{ Scan(...any) error }) (*model.Track, error) {
	var t model.Track
	var genre, filePath sql.NullString
	var explicit int
	err := scanner.Scan(
		&t.ID, &t.AlbumID, &t.ArtistID, &t.Title, &t.DurationSecs,
		&genre, &explicit, &t.PlayCount, &filePath, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if genre.Valid {
		t.Genre = &genre.String
	}
	if filePath.Valid {
		t.FilePath = &filePath.String
	}
	t.Explicit = explicit != 0
	return &t, nil
}

func (s *Service) CreateAlbum(ctx context.Context, artistID int64, title, description string, releasedOn *time.Time) (*model.Album, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO albums (artist_id, title, description, released_on) VALUES (?, ?, ?, ?)`,
		artistID, title, description, releasedOn,
	)
	if err != nil {
		return nil, fmt.Errorf("insert album: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetAlbum(ctx, id)
}

func (s *Service) GetAlbum(ctx context.Context, id int64) (*model.Album, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+albumCols+` FROM albums WHERE id = ?`, id)
	a, err := scanAlbum(row)
	if err == sql.ErrNoRows {
		return nil, ErrAlbumNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get album: %w", err)
	}
	return a, nil
}

func (s *Service) AlbumsByArtist(ctx context.Context, artistID int64) ([]*model.Album, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+albumCols+` FROM albums WHERE artist_id = ? ORDER BY released_on DESC, created_at DESC`,
		artistID,
	)
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	defer rows.Close()

	var albums []*model.Album
	for rows.Next() {
		a, err := scanAlbum(rows)
		if err != nil {
			return nil, fmt.Errorf("scan album: %w", err)
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

func (s *Service) CreateTrack(ctx context.Context, artistID, albumID int64, title string, durationSecs int, genre *string, explicit bool) (*model.Track, error) {
	album, err := s.GetAlbum(ctx, albumID)
	if err != nil {
		return nil, err
	}
	if album.ArtistID != artistID {
		return nil, ErrUnauthorized
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO tracks (album_id, artist_id, title, duration_secs, genre, explicit) VALUES (?, ?, ?, ?, ?, ?)`,
		albumID, artistID, title, durationSecs, genre, explicit,
	)
	if err != nil {
		return nil, fmt.Errorf("insert track: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTrack(ctx, id)
}

func (s *Service) GetTrack(ctx context.Context, id int64) (*model.Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackCols+` FROM tracks WHERE id = ?`, id)
	t, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return t, nil
}

func (s *Service) TracksByAlbum(ctx context.Context, albumID int64) ([]*model.Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+trackCols+` FROM tracks WHERE album_id = ? ORDER BY id`,
		albumID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*model.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// SetTrackFile links an uploaded media object to the track.
func (s *Service) SetTrackFile(ctx context.Context, actorID, trackID int64, path string) error {
	t, err := s.GetTrack(ctx, trackID)
	if err != nil {
		return err
	}
	if t.ArtistID != actorID {
		return ErrUnauthorized
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE tracks SET file_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		path, trackID,
	); err != nil {
		return fmt.Errorf("set track file: %w", err)
	}
	return nil
}

// RecordListen appends a listening-history row and bumps the track's play
// counter, unless the same user played the same track within the dedupe
// window. History row and counter move in one transaction.
func (s *Service) RecordListen(ctx context.Context, userID, trackID int64) (bool, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var trackExists bool
	if err := tx.QueryRow(`SELECT EXISTS (SELECT 1 FROM tracks WHERE id = ?)`, trackID).Scan(&trackExists); err != nil {
		return false, fmt.Errorf("check track: %w", err)
	}
	if !trackExists {
		return false, ErrTrackNotFound
	}

	var recent bool
	if err := tx.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM listen_history WHERE user_id = ? AND track_id = ? AND listened_at >= ?)`,
		userID, trackID, now.Add(-listenDedupeWindow),
	).Scan(&recent); err != nil {
		return false, fmt.Errorf("check recent listen: %w", err)
	}
	if recent {
		return false, tx.Commit()
	}

	if _, err := tx.Exec(
		`INSERT INTO listen_history (user_id, track_id, listened_at) VALUES (?, ?, ?)`,
		userID, trackID, now,
	); err != nil {
		return false, fmt.Errorf("insert listen: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE tracks SET play_count = play_count + 1 WHERE id = ?`,
		trackID,
	); err != nil {
		return false, fmt.Errorf("bump play count: %w", err)
	}
	return true, tx.Commit()
}

// ListenHistory returns the user's most recent listens, newest first.
func (s *Service) ListenHistory(ctx context.Context, userID int64, limit, offset int) ([]*model.ListenEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, track_id, listened_at FROM listen_history
		 WHERE user_id = ? ORDER BY listened_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list listen history: %w", err)
	}
	defer rows.Close()

	var events []*model.ListenEvent
	for rows.Next() {
		var e model.ListenEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.TrackID, &e.ListenedAt); err != nil {
			return nil, fmt.Errorf("scan listen: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// DeleteTrack removes a track and everything referencing it: playlist
// entries (with per-playlist renumbering), like edges, listen history,
// upload records, then the row, all in one transaction.
func (s *Service) DeleteTrack(ctx context.Context, actorID, trackID int64) error {
	t, err := s.GetTrack(ctx, trackID)
	if err != nil {
		return err
	}
	if t.ArtistID != actorID {
		return ErrUnauthorized
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := playlist.RemoveTrackEverywhere(tx, trackID); err != nil {
		return fmt.Errorf("remove from playlists: %w", err)
	}
	if err := social.CascadeDelete(tx, social.KindTrack, trackID); err != nil {
		return fmt.Errorf("cascade delete: %w", err)
	}
	if _, err := tx.Exec(`UPDATE uploads SET track_id = NULL WHERE track_id = ?`, trackID); err != nil {
		return fmt.Errorf("detach uploads: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM tracks WHERE id = ?`, trackID); err != nil {
		return fmt.Errorf("delete track: %w", err)
	}
	return tx.Commit()
}

// DeleteAlbum removes an album, all of its tracks (with the full track
// cascade), and the album's like edges in one transaction.
func (s *Service) DeleteAlbum(ctx context.Context, actorID, albumID int64) error {
	a, err := s.GetAlbum(ctx, albumID)
	if err != nil {
		return err
	}
	if a.ArtistID != actorID {
		return ErrUnauthorized
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT id FROM tracks WHERE album_id = ?`, albumID)
	if err != nil {
		return fmt.Errorf("list album tracks: %w", err)
	}
	var trackIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan track id: %w", err)
		}
		trackIDs = append(trackIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list album tracks: %w", err)
	}

	for _, trackID := range trackIDs {
		if err := playlist.RemoveTrackEverywhere(tx, trackID); err != nil {
			return fmt.Errorf("remove track from playlists: %w", err)
		}
		if err := social.CascadeDelete(tx, social.KindTrack, trackID); err != nil {
			return fmt.Errorf("cascade delete track: %w", err)
		}
		if _, err := tx.Exec(`UPDATE uploads SET track_id = NULL WHERE track_id = ?`, trackID); err != nil {
			return fmt.Errorf("detach uploads: %w", err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM tracks WHERE album_id = ?`, albumID); err != nil {
		return fmt.Errorf("delete tracks: %w", err)
	}
	if err := social.CascadeDelete(tx, social.KindAlbum, albumID); err != nil {
		return fmt.Errorf("cascade delete album: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM albums WHERE id = ?`, albumID); err != nil {
		return fmt.Errorf("delete album: %w", err)
	}
	return tx.Commit()
}
