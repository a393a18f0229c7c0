package archive

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/cadenza-app/cadenza/internal/blob"
	"github.com/cadenza-app/cadenza/internal/model"
	"github.com/cadenza-app/cadenza/internal/store"
)

// Config holds archive manager configuration.
type Config struct {
	DBPath     string
	Passphrase string
	// Interval between scheduled snapshots. Zero disables the scheduler.
	Interval time.Duration
}

// Manager produces encrypted snapshots of the catalog database and
// ships them to blob storage.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	db     *sql.DB
	blobs  blob.Store
	snaps  *store.SnapshotStore
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, db *sql.DB, blobs blob.Store, snaps *store.SnapshotStore, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		db:     db,
		blobs:  blobs,
		snaps:  snaps,
		logger: logger,
	}
}

// Enabled reports whether snapshots can run at all.
func (m *Manager) Enabled() bool {
	return m.blobs != nil && m.cfg.Passphrase != ""
}

// Start begins the scheduled snapshot loop.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() || m.cfg.Interval <= 0 {
		return
	}

	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.RunNow(ctx); err != nil {
					m.logger.Error("scheduled snapshot failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunNow takes a snapshot immediately and returns the snapshot record ID.
func (m *Manager) RunNow(ctx context.Context) (int64, error) {
	if !m.Enabled() {
		return 0, fmt.Errorf("snapshots not configured")
	}

	// One snapshot at a time; the WAL checkpoint is not reentrant-safe.
	m.mu.Lock()
	defer m.mu.Unlock()

	timestamp := time.Now().UTC().Format("2006-01-02T150405Z")
	filename := fmt.Sprintf("catalog-%s.db.enc", timestamp)
	objectKey := "snapshots/" + filename

	record, err := m.snaps.Create(filename, objectKey)
	if err != nil {
		return 0, fmt.Errorf("create snapshot record: %w", err)
	}

	fail := func(stage string, err error) (int64, error) {
		m.snaps.UpdateStatus(record.ID, model.SnapshotFailed, err.Error())
		return 0, fmt.Errorf("%s: %w", stage, err)
	}

	dbCopy := filepath.Join(os.TempDir(), fmt.Sprintf("cadenza-snapshot-%d.db", record.ID))
	defer os.Remove(dbCopy)

	// Checkpoint WAL so the main file is complete, then copy it.
	if _, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fail("wal checkpoint", err)
	}
	if err := copyFile(m.cfg.DBPath, dbCopy); err != nil {
		return fail("copy database", err)
	}

	plaintext, err := os.ReadFile(dbCopy)
	if err != nil {
		return fail("read database copy", err)
	}

	salt, err := GenerateSalt()
	if err != nil {
		return fail("generate salt", err)
	}

	sealed, err := Seal(plaintext, m.cfg.Passphrase, salt)
	if err != nil {
		return fail("encrypt", err)
	}

	if err := m.snaps.UpdateStatus(record.ID, model.SnapshotUploading, ""); err != nil {
		return fail("update status", err)
	}

	// Blob stores behind flaky networks deserve a few retries.
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := m.blobs.Put(ctx, objectKey, bytes.NewReader(sealed), int64(len(sealed))); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fail("upload snapshot", err)
	}

	if err := m.snaps.UpdateCompleted(record.ID, int64(len(sealed))); err != nil {
		return fail("record completion", err)
	}

	m.logger.Info("catalog snapshot complete",
		"snapshot_id", record.ID,
		"object_key", objectKey,
		"size_bytes", len(sealed))

	return record.ID, nil
}

// Restore downloads a snapshot, decrypts it, and writes the database
// file to dstPath. The caller is responsible for restarting on top of it.
func (m *Manager) Restore(ctx context.Context, snapshotID int64, dstPath string) error {
	if !m.Enabled() {
		return fmt.Errorf("snapshots not configured")
	}

	record, err := m.snaps.GetByID(snapshotID)
	if err != nil {
		return fmt.Errorf("get snapshot: %w", err)
	}
	if record == nil {
		return fmt.Errorf("snapshot not found")
	}

	body, err := m.blobs.Get(ctx, record.ObjectKey)
	if err != nil {
		return fmt.Errorf("download snapshot: %w", err)
	}
	defer body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	plaintext, err := Open(buf.Bytes(), m.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("decrypt snapshot: %w", err)
	}

	if err := os.WriteFile(dstPath, plaintext, 0600); err != nil {
		return fmt.Errorf("write database: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0600)
}
