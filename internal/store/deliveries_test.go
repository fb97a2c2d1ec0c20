package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "hookrun.db")
	db, err := OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenSQLiteBootstrapsTables(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	var name string
	if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?;", "delivery_log").Scan(&name); err != nil {
		t.Fatalf("table delivery_log missing: %v", err)
	}
}

func TestRecordLaunchAndFinalize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(openTestDB(t))

	id, err := s.RecordLaunch(ctx, "/hooks/deploy", "/opt/deploy.sh")
	if err != nil {
		t.Fatalf("RecordLaunch: %v", err)
	}
	if id == "" {
		t.Fatal("RecordLaunch returned empty id")
	}

	d, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Status != StatusLaunched {
		t.Errorf("status = %q, want %q", d.Status, StatusLaunched)
	}
	if d.CompletedAt != nil {
		t.Error("CompletedAt should be nil before Finalize")
	}

	code := 0
	if err := s.Finalize(ctx, id, StatusSucceeded, &code, nil, nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	d, err = s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after Finalize: %v", err)
	}
	if d.Status != StatusSucceeded {
		t.Errorf("status = %q, want %q", d.Status, StatusSucceeded)
	}
	if d.CompletedAt == nil {
		t.Error("CompletedAt should be set after Finalize")
	}
	if d.ExitCode == nil || *d.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", d.ExitCode)
	}
}

func TestFinalizeRejectsNonTerminalStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(openTestDB(t))

	id, err := s.RecordLaunch(ctx, "/", "/opt/run.sh")
	if err != nil {
		t.Fatalf("RecordLaunch: %v", err)
	}

	if err := s.Finalize(ctx, id, StatusLaunched, nil, nil, nil); err == nil {
		t.Error("Finalize should reject non-terminal status")
	}
}

func TestFinalizeUnknownDelivery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(openTestDB(t))

	err := s.Finalize(ctx, "no-such-id", StatusFailed, nil, nil, nil)
	if err != ErrDeliveryNotFound {
		t.Errorf("err = %v, want ErrDeliveryNotFound", err)
	}
}

func TestFinalizeTruncatesStderr(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(openTestDB(t))

	id, err := s.RecordLaunch(ctx, "/", "/opt/run.sh")
	if err != nil {
		t.Fatalf("RecordLaunch: %v", err)
	}

	big := strings.Repeat("e", maxStderrBytes+100)
	code := 1
	if err := s.Finalize(ctx, id, StatusFailed, &code, nil, &big); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	d, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Stderr == nil || len(*d.Stderr) != maxStderrBytes {
		t.Errorf("stderr should be truncated to %d bytes", maxStderrBytes)
	}
}

func TestListRecentNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(openTestDB(t))

	var ids []string
	for range 3 {
		id, err := s.RecordLaunch(ctx, "/", "/opt/run.sh")
		if err != nil {
			t.Fatalf("RecordLaunch: %v", err)
		}
		ids = append(ids, id)
	}

	got, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != ids[2] {
		t.Errorf("first result = %s, want newest %s", got[0].ID, ids[2])
	}
}
