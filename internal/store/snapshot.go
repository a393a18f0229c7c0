package store

import (
	"database/sql"
	"fmt"

	"github.com/cadenza-app/cadenza/internal/model"
)

// SnapshotStore tracks encrypted catalog snapshots shipped to blob storage.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

const snapshotCols = `id, filename, object_key, status, size_bytes, error, created_at, completed_at`

func scanSnapshot(scanner interface{ Scan(...any) error }) (*model.CatalogSnapshot, error) {
	var s model.CatalogSnapshot
	var completedAt sql.NullTime
	err := scanner.Scan(
		&s.ID, &s.Filename, &s.ObjectKey, &s.Status, &s.SizeBytes,
		&s.Error, &s.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	return &s, nil
}

func (s *SnapshotStore) Create(filename, objectKey string) (*model.CatalogSnapshot, error) {
	result, err := s.db.Exec(
		`INSERT INTO catalog_snapshots (filename, object_key, status) VALUES (?, ?, ?)`,
		filename, objectKey, model.SnapshotPending,
	)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *SnapshotStore) GetByID(id int64) (*model.CatalogSnapshot, error) {
	row := s.db.QueryRow(`SELECT `+snapshotCols+` FROM catalog_snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

func (s *SnapshotStore) UpdateStatus(id int64, status, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE catalog_snapshots SET status = ?, error = ? WHERE id = ?`,
		status, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("update snapshot status: %w", err)
	}
	return nil
}

func (s *SnapshotStore) UpdateCompleted(id, sizeBytes int64) error {
	_, err := s.db.Exec(
		`UPDATE catalog_snapshots SET status = ?, size_bytes = ?, error = '', completed_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.SnapshotComplete, sizeBytes, id,
	)
	if err != nil {
		return fmt.Errorf("update snapshot completed: %w", err)
	}
	return nil
}

func (s *SnapshotStore) List(limit int) ([]*model.CatalogSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT `+snapshotCols+` FROM catalog_snapshots ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*model.CatalogSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
