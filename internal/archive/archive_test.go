package archive

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cadenza-app/cadenza/internal/blob"
	"github.com/cadenza-app/cadenza/internal/database"
	"github.com/cadenza-app/cadenza/internal/model"
	"github.com/cadenza-app/cadenza/internal/store"
)

func TestRunNowProducesDecryptableSnapshot(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "catalog.db")

	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	blobs, err := blob.NewLocalStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}
	snaps := store.NewSnapshotStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mgr := NewManager(Config{DBPath: dbPath, Passphrase: "hunter2"}, db, blobs, snaps, logger)
	if !mgr.Enabled() {
		t.Fatal("manager should be enabled")
	}

	id, err := mgr.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run snapshot: %v", err)
	}

	record, err := snaps.GetByID(id)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != model.SnapshotComplete {
		t.Fatalf("status = %q, want complete", record.Status)
	}
	if record.SizeBytes <= 0 {
		t.Fatalf("size = %d, want positive", record.SizeBytes)
	}

	// The stored object decrypts back to a sqlite database.
	body, err := blobs.Get(context.Background(), record.ObjectKey)
	if err != nil {
		t.Fatalf("get object: %v", err)
	}
	sealed, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		t.Fatalf("read object: %v", err)
	}

	plaintext, err := Open(sealed, "hunter2")
	if err != nil {
		t.Fatalf("decrypt snapshot: %v", err)
	}
	if len(plaintext) < 16 || string(plaintext[:15]) != "SQLite format 3" {
		t.Fatal("decrypted snapshot is not a sqlite database")
	}
}

func TestRestoreWritesDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "catalog.db")

	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	blobs, err := blob.NewLocalStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}
	snaps := store.NewSnapshotStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := NewManager(Config{DBPath: dbPath, Passphrase: "hunter2"}, db, blobs, snaps, logger)

	id, err := mgr.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run snapshot: %v", err)
	}

	restored := filepath.Join(dir, "restored.db")
	if err := mgr.Restore(context.Background(), id, restored); err != nil {
		t.Fatalf("restore: %v", err)
	}
	data, err := os.ReadFile(restored)
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if len(data) < 16 || string(data[:15]) != "SQLite format 3" {
		t.Fatal("restored file is not a sqlite database")
	}
}

func TestManagerDisabledWithoutPassphrase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "catalog.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	blobs, _ := blob.NewLocalStore(filepath.Join(dir, "blobs"))
	snaps := store.NewSnapshotStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mgr := NewManager(Config{DBPath: dbPath}, db, blobs, snaps, logger)
	if mgr.Enabled() {
		t.Fatal("manager without passphrase should be disabled")
	}
	if _, err := mgr.RunNow(context.Background()); err == nil {
		t.Fatal("run on disabled manager should fail")
	}
}
