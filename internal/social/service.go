// Package social owns follow/like edges: uniqueness per (actor, target),
// idempotent toggling, the append-only like history, and cascading cleanup
// when a target entity is removed.
package social

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cadenza-app/cadenza/internal/model"
	"github.com/cadenza-app/cadenza/internal/store"
)

var (
	ErrTargetNotFound = errors.New("target not found")
	ErrSelfReference  = errors.New("cannot follow or like your own entity")
	ErrConflict       = errors.New("edge changed concurrently, retry")
)

// EntityKind names a cascade-delete target.
type EntityKind string

const (
	KindUser     EntityKind = "user"
	KindTrack    EntityKind = "track"
	KindAlbum    EntityKind = "album"
	KindPlaylist EntityKind = "playlist"
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// edgeSpec describes one edge kind's tables and checks. historyKind is empty
// for follow edges, which do not write like history.
type edgeSpec struct {
	table       string
	actorCol    string
	targetCol   string
	targetTable string
	historyKind string
	// playlistGuard marks playlist targets: owners cannot edge their own
	// playlists, and private playlists are invisible to everyone else.
	playlistGuard bool
}

var (
	userFollowSpec = edgeSpec{
		table:       "follow_edges",
		actorCol:    "follower_id",
		targetCol:   "followed_id",
		targetTable: "users",
	}
	trackLikeSpec = edgeSpec{
		table:       "track_likes",
		actorCol:    "user_id",
		targetCol:   "track_id",
		targetTable: "tracks",
		historyKind: "track",
	}
	albumLikeSpec = edgeSpec{
		table:       "album_likes",
		actorCol:    "user_id",
		targetCol:   "album_id",
		targetTable: "albums",
		historyKind: "album",
	}
	playlistLikeSpec = edgeSpec{
		table:       "playlist_likes",
		actorCol:    "user_id",
		targetCol:   "playlist_id",
		targetTable: "playlists",
		historyKind:   "playlist",
		playlistGuard: true,
	}
	playlistFollowSpec = edgeSpec{
		table:         "playlist_follows",
		actorCol:      "user_id",
		targetCol:     "playlist_id",
		targetTable:   "playlists",
		playlistGuard: true,
	}
)

// toggle adds the edge if absent and removes it if present, in one
// transaction. Returns true when the edge now exists. Like kinds append
// exactly one history row per transition, in the same transaction as the
// edge mutation.
func (s *Service) toggle(ctx context.Context, spec edgeSpec, actorID, targetID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	checkQ := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = ? AND %s = ?)`,
		spec.table, spec.actorCol, spec.targetCol)
	if err := tx.QueryRow(checkQ, actorID, targetID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check edge: %w", err)
	}

	added := !exists
	if exists {
		delQ := fmt.Sprintf(`DELETE FROM %s WHERE %s = ? AND %s = ?`,
			spec.table, spec.actorCol, spec.targetCol)
		if _, err := tx.Exec(delQ, actorID, targetID); err != nil {
			return false, fmt.Errorf("delete edge: %w", err)
		}
	} else {
		var targetExists bool
		targetQ := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = ?)`, spec.targetTable)
		if err := tx.QueryRow(targetQ, targetID).Scan(&targetExists); err != nil {
			return false, fmt.Errorf("check target: %w", err)
		}
		if !targetExists {
			return false, ErrTargetNotFound
		}

		if spec.table == "follow_edges" && actorID == targetID {
			return false, ErrSelfReference
		}
		if spec.playlistGuard {
			var ownerID int64
			var public bool
			if err := tx.QueryRow(
				`SELECT owner_id, is_public FROM playlists WHERE id = ?`, targetID,
			).Scan(&ownerID, &public); err != nil {
				return false, fmt.Errorf("get playlist: %w", err)
			}
			if ownerID == actorID {
				return false, ErrSelfReference
			}
			// A private playlist does not exist as far as other users
			// are concerned.
			if !public {
				return false, ErrTargetNotFound
			}
		}

		insQ := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES (?, ?)`,
			spec.table, spec.actorCol, spec.targetCol)
		if _, err := tx.Exec(insQ, actorID, targetID); store.IsUniqueViolation(err) {
			// A concurrent toggle won the insert; the unique pair
			// constraint rejects this one. Safe to retry.
			return false, ErrConflict
		} else if err != nil {
			return false, fmt.Errorf("insert edge: %w", err)
		}
	}

	if spec.historyKind != "" {
		action := model.LikeActionUnlike
		if added {
			action = model.LikeActionLike
		}
		if _, err := tx.Exec(
			`INSERT INTO like_history (user_id, target_kind, target_id, action) VALUES (?, ?, ?, ?)`,
			actorID, spec.historyKind, targetID, action,
		); err != nil {
			return false, fmt.Errorf("append like history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return added, nil
}

func (s *Service) exists(ctx context.Context, spec edgeSpec, actorID, targetID int64) (bool, error) {
	var exists bool
	q := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = ? AND %s = ?)`,
		spec.table, spec.actorCol, spec.targetCol)
	if err := s.db.QueryRowContext(ctx, q, actorID, targetID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check edge: %w", err)
	}
	return exists, nil
}

// ToggleFollowUser follows or unfollows another user. Self-follows are
// rejected at this layer; the schema only guarantees pair uniqueness.
func (s *Service) ToggleFollowUser(ctx context.Context, actorID, targetID int64) (bool, error) {
	return s.toggle(ctx, userFollowSpec, actorID, targetID)
}

func (s *Service) ToggleLikeTrack(ctx context.Context, actorID, trackID int64) (bool, error) {
	return s.toggle(ctx, trackLikeSpec, actorID, trackID)
}

func (s *Service) ToggleLikeAlbum(ctx context.Context, actorID, albumID int64) (bool, error) {
	return s.toggle(ctx, albumLikeSpec, actorID, albumID)
}

func (s *Service) ToggleLikePlaylist(ctx context.Context, actorID, playlistID int64) (bool, error) {
	return s.toggle(ctx, playlistLikeSpec, actorID, playlistID)
}

// ToggleFollowPlaylist follows or unfollows a playlist. Owners cannot follow
// their own playlists, and private playlists cannot be followed at all.
func (s *Service) ToggleFollowPlaylist(ctx context.Context, actorID, playlistID int64) (bool, error) {
	return s.toggle(ctx, playlistFollowSpec, actorID, playlistID)
}

func (s *Service) IsFollowingUser(ctx context.Context, actorID, targetID int64) (bool, error) {
	return s.exists(ctx, userFollowSpec, actorID, targetID)
}

func (s *Service) IsTrackLiked(ctx context.Context, actorID, trackID int64) (bool, error) {
	return s.exists(ctx, trackLikeSpec, actorID, trackID)
}

func (s *Service) IsAlbumLiked(ctx context.Context, actorID, albumID int64) (bool, error) {
	return s.exists(ctx, albumLikeSpec, actorID, albumID)
}

func (s *Service) IsPlaylistLiked(ctx context.Context, actorID, playlistID int64) (bool, error) {
	return s.exists(ctx, playlistLikeSpec, actorID, playlistID)
}

func (s *Service) IsFollowingPlaylist(ctx context.Context, actorID, playlistID int64) (bool, error) {
	return s.exists(ctx, playlistFollowSpec, actorID, playlistID)
}

// Counts returns simple frequency counts for a user's profile.
func (s *Service) Counts(ctx context.Context, userID int64) (followers, following int64, err error) {
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM follow_edges WHERE followed_id = ?`, userID,
	).Scan(&followers); err != nil {
		return 0, 0, fmt.Errorf("count followers: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM follow_edges WHERE follower_id = ?`, userID,
	).Scan(&following); err != nil {
		return 0, 0, fmt.Errorf("count following: %w", err)
	}
	return followers, following, nil
}

// LikeCount returns how many users like the given target.
func (s *Service) LikeCount(ctx context.Context, kind EntityKind, targetID int64) (int64, error) {
	var spec edgeSpec
	switch kind {
	case KindTrack:
		spec = trackLikeSpec
	case KindAlbum:
		spec = albumLikeSpec
	case KindPlaylist:
		spec = playlistLikeSpec
	default:
		return 0, fmt.Errorf("no like edges for kind %q", kind)
	}
	var n int64
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`, spec.table, spec.targetCol)
	if err := s.db.QueryRowContext(ctx, q, targetID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}
	return n, nil
}

// LikeHistory returns the user's most recent like/unlike transitions.
func (s *Service) LikeHistory(ctx context.Context, userID int64, limit int) ([]*model.LikeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, target_kind, target_id, action, occurred_at
		 FROM like_history WHERE user_id = ? ORDER BY occurred_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list like history: %w", err)
	}
	defer rows.Close()

	var events []*model.LikeEvent
	for rows.Next() {
		var e model.LikeEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.TargetKind, &e.TargetID, &e.Action, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan like event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// CascadeDelete removes every edge referencing the entity as a target, and
// for tracks and playlists the listening-history rows, inside the caller's
// transaction. The like history is append-only and stays. The caller
// deletes the entity row afterward, in the same transaction.
func CascadeDelete(tx *sql.Tx, kind EntityKind, id int64) error {
	type step struct {
		desc  string
		query string
		args  []any
	}
	var steps []step
	switch kind {
	case KindUser:
		steps = []step{
			{"delete follows of user", `DELETE FROM follow_edges WHERE followed_id = ? OR follower_id = ?`, []any{id, id}},
			{"delete user's track likes", `DELETE FROM track_likes WHERE user_id = ?`, []any{id}},
			{"delete user's album likes", `DELETE FROM album_likes WHERE user_id = ?`, []any{id}},
			{"delete user's playlist likes", `DELETE FROM playlist_likes WHERE user_id = ?`, []any{id}},
			{"delete user's playlist follows", `DELETE FROM playlist_follows WHERE user_id = ?`, []any{id}},
			{"delete user's listen history", `DELETE FROM listen_history WHERE user_id = ?`, []any{id}},
		}
	case KindTrack:
		steps = []step{
			{"delete track likes", `DELETE FROM track_likes WHERE track_id = ?`, []any{id}},
			{"delete track listen history", `DELETE FROM listen_history WHERE track_id = ?`, []any{id}},
		}
	case KindAlbum:
		steps = []step{
			{"delete album likes", `DELETE FROM album_likes WHERE album_id = ?`, []any{id}},
		}
	case KindPlaylist:
		steps = []step{
			{"delete playlist likes", `DELETE FROM playlist_likes WHERE playlist_id = ?`, []any{id}},
			{"delete playlist follows", `DELETE FROM playlist_follows WHERE playlist_id = ?`, []any{id}},
		}
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}

	for _, st := range steps {
		if _, err := tx.Exec(st.query, st.args...); err != nil {
			return fmt.Errorf("%s: %w", st.desc, err)
		}
	}
	return nil
}

// CascadeDeleteFor wraps CascadeDelete in its own transaction for callers
// that only need the edge cleanup.
func (s *Service) CascadeDeleteFor(ctx context.Context, kind EntityKind, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := CascadeDelete(tx, kind, id); err != nil {
		return err
	}
	return tx.Commit()
}
