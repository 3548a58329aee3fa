package dispatcher

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/oakbyte/labpanel/internal/backend"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "actions.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleAction(id string, created time.Time) *Action {
	return &Action{
		ID:         id,
		ResourceID: "pve1/qemu/104",
		Backend:    backend.PVE,
		Verb:       backend.VerbRestart,
		State:      StateExecuting,
		Attempts:   1,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestStorePutGet(t *testing.T) {
	store := newTestStore(t)
	created := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)

	act := sampleAction("a-1", created)
	if err := store.Put(act); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get("a-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for stored action")
	}
	if got.ResourceID != "pve1/qemu/104" || got.Backend != backend.PVE || got.Verb != backend.VerbRestart {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, created)
	}
	if got.CompletedAt != nil {
		t.Error("non-terminal action should have nil completed_at")
	}
}

func TestStoreGetUnknown(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Get("nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("unknown id returned %+v", got)
	}
}

func TestStorePutReplacesOnTerminal(t *testing.T) {
	store := newTestStore(t)
	created := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)

	act := sampleAction("a-1", created)
	if err := store.Put(act); err != nil {
		t.Fatalf("Put: %v", err)
	}

	completed := created.Add(2 * time.Second)
	act.State = StateFailed
	act.Attempts = 3
	act.Reason = "unreachable"
	act.Error = "dial tcp: timeout"
	act.UpdatedAt = completed
	act.CompletedAt = &completed
	if err := store.Put(act); err != nil {
		t.Fatalf("Put (terminal): %v", err)
	}

	got, err := store.Get("a-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateFailed || got.Attempts != 3 || got.Reason != "unreachable" {
		t.Errorf("terminal update lost: %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Errorf("completed_at = %v, want %v", got.CompletedAt, completed)
	}
}

func TestStoreRecent(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		act := sampleAction(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		if err := store.Put(act); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	recent, err := store.Recent(3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d actions, want 3", len(recent))
	}
	// Newest first.
	if recent[0].ID != "e" || recent[1].ID != "d" || recent[2].ID != "c" {
		t.Errorf("order = %s, %s, %s", recent[0].ID, recent[1].ID, recent[2].ID)
	}
}
