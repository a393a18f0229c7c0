package store

import (
	"database/sql"
	"fmt"

	"github.com/cadenza-app/cadenza/internal/model"
)

type UploadStore struct {
	db *sql.DB
}

func NewUploadStore(db *sql.DB) *UploadStore {
	return &UploadStore{db: db}
}

const uploadCols = `id, user_id, track_id, kind, path, original_name, size_bytes, created_at`

func scanUpload(scanner interface{ Scan(...any) error }) (*model.Upload, error) {
	var u model.Upload
	var trackID sql.NullInt64
	err := scanner.Scan(
		&u.ID, &u.UserID, &trackID, &u.Kind, &u.Path,
		&u.OriginalName, &u.SizeBytes, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if trackID.Valid {
		u.TrackID = &trackID.Int64
	}
	return &u, nil
}

func (s *UploadStore) Create(userID int64, trackID *int64, kind, path, originalName string, sizeBytes int64) (*model.Upload, error) {
	result, err := s.db.Exec(
		`INSERT INTO uploads (user_id, track_id, kind, path, original_name, size_bytes) VALUES (?, ?, ?, ?, ?, ?)`,
		userID, trackID, kind, path, originalName, sizeBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert upload: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UploadStore) GetByID(id int64) (*model.Upload, error) {
	row := s.db.QueryRow(`SELECT `+uploadCols+` FROM uploads WHERE id = ?`, id)
	u, err := scanUpload(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return u, nil
}

func (s *UploadStore) ListByUser(userID int64) ([]*model.Upload, error) {
	rows, err := s.db.Query(
		`SELECT `+uploadCols+` FROM uploads WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*model.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}
