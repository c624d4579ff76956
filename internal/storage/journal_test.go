package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal", "ledger.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournalLifecycle(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	if err := j.Start(ctx, Attempt{ID: "a1", UserID: 7, FileName: "r.jpg", FileSize: 3}); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Starting twice keeps the first row.
	if err := j.Start(ctx, Attempt{ID: "a1", UserID: 7, FileName: "other.jpg"}); err != nil {
		t.Fatalf("restart: %v", err)
	}

	steps := []struct {
		status, stage, message string
	}{
		{StatusProcessing, "", ""},
		{StatusFailed, "process", "Upload failed"},
		{StatusProcessing, "", ""},
		{StatusSucceeded, "process", "ignored"},
	}
	for _, s := range steps {
		if err := j.Transition(ctx, "a1", s.status, s.stage, s.message); err != nil {
			t.Fatalf("transition to %s: %v", s.status, err)
		}
	}

	a, err := j.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.FileName != "r.jpg" || a.FileSize != 3 || a.UserID != 7 {
		t.Fatalf("unexpected attempt: %+v", a)
	}
	if a.Status != StatusSucceeded || a.Stage != "" || a.Message != "" {
		t.Fatalf("expected clean success, got %+v", a)
	}
	if a.ProcessAttempts != 2 {
		t.Fatalf("expected 2 process attempts, got %d", a.ProcessAttempts)
	}
}

func TestJournalFailureKeepsStageAndMessage(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	_ = j.Start(ctx, Attempt{ID: "a", UserID: 1})
	if err := j.Transition(ctx, "a", StatusFailed, "upload", "File too large"); err != nil {
		t.Fatalf("transition: %v", err)
	}
	a, _ := j.Get(ctx, "a")
	if a.Stage != "upload" || a.Message != "File too large" {
		t.Fatalf("unexpected failure record: %+v", a)
	}
}

func TestJournalUnknownAttempt(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	if _, err := j.Get(ctx, "missing"); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
	if err := j.Transition(ctx, "missing", StatusCanceled, "", ""); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestJournalListRecentAndCounts(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		if err := j.Start(ctx, Attempt{ID: id, UserID: 5, StartedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}
	_ = j.Start(ctx, Attempt{ID: "someone-else", UserID: 6})
	_ = j.Transition(ctx, "old", StatusSucceeded, "", "")
	_ = j.Transition(ctx, "mid", StatusCanceled, "", "")

	got, err := j.ListRecent(ctx, 5, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "mid" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if !got[0].StartedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("started_at = %v", got[0].StartedAt)
	}

	counts, err := j.CountByStatus(ctx, 5)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	want := map[string]int{StatusSucceeded: 1, StatusCanceled: 1, StatusUploading: 1}
	for k, v := range want {
		if counts[k] != v {
			t.Fatalf("counts[%s] = %d, want %d (all: %v)", k, counts[k], v, counts)
		}
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = j.Close()
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
	if err := j.Ping(context.Background()); err == nil {
		t.Fatalf("expected closed journal to fail ping")
	}
}
