package runlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/therenotify/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(reportID int, status domain.RunStatus, finished time.Time) Entry {
	return Entry{
		ID:         uuid.NewString(),
		ReportID:   reportID,
		Trigger:    domain.TriggerScheduled,
		Status:     status,
		Message:    "test run",
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func TestAppendAndList(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := s.Append(entry(1, domain.RunSuccess, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Append error = %v", err)
		}
	}
	if err := s.Append(entry(2, domain.RunError, base)); err != nil {
		t.Fatal(err)
	}

	entries, err := s.ListByReport(1, 0)
	if err != nil {
		t.Fatalf("ListByReport error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	// Newest first.
	for i := 1; i < len(entries); i++ {
		if entries[i].FinishedAt.After(entries[i-1].FinishedAt) {
			t.Errorf("entries not ordered newest first: %v after %v", entries[i].FinishedAt, entries[i-1].FinishedAt)
		}
	}

	limited, err := s.ListByReport(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limit 2 returned %d entries", len(limited))
	}

	all, err := s.ListByReport(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("all reports returned %d entries, want 4", len(all))
	}
}

func TestAcquireLock(t *testing.T) {
	s := openTestStore(t)

	ok, err := s.AcquireLock(1, "run-a", time.Hour)
	if err != nil {
		t.Fatalf("AcquireLock error = %v", err)
	}
	if !ok {
		t.Fatal("first acquire should succeed")
	}

	ok, err = s.AcquireLock(1, "run-b", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("second acquire should fail while lock is held")
	}

	// A different report is unaffected.
	ok, err = s.AcquireLock(2, "run-c", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("lock for another report should succeed")
	}
}

func TestAcquireLock_StaleTakeover(t *testing.T) {
	s := openTestStore(t)

	if ok, err := s.AcquireLock(1, "crashed-run", 0); err != nil || !ok {
		t.Fatalf("seed acquire = %v, %v", ok, err)
	}

	// With a zero stale timeout the existing lock is immediately stale.
	ok, err := s.AcquireLock(1, "new-run", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("stale lock should be taken over")
	}
}

func TestReleaseLock_HolderScoped(t *testing.T) {
	s := openTestStore(t)

	if ok, _ := s.AcquireLock(1, "run-a", time.Hour); !ok {
		t.Fatal("acquire failed")
	}

	// A non-holder release is a no-op.
	if err := s.ReleaseLock(1, "someone-else"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.AcquireLock(1, "run-b", time.Hour); ok {
		t.Error("lock released by non-holder")
	}

	if err := s.ReleaseLock(1, "run-a"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.AcquireLock(1, "run-b", time.Hour); !ok {
		t.Error("acquire after release should succeed")
	}
}
