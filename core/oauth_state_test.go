package core

import (
	"context"
	"testing"
	"time"
)

func TestMemoryAuthStateStore_ConsumeIsSingleUse(t *testing.T) {
	store := NewMemoryAuthStateStore(time.Minute)

	if err := store.Save(context.Background(), AuthStateRecord{
		State:      "state-1",
		ProfileKey: "mtd-vat",
	}); err != nil {
		t.Fatalf("save state: %v", err)
	}

	record, err := store.Consume(context.Background(), "state-1")
	if err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if record.ProfileKey != "mtd-vat" {
		t.Fatalf("expected profile key to round-trip, got %q", record.ProfileKey)
	}

	if _, err := store.Consume(context.Background(), "state-1"); err == nil {
		t.Fatalf("expected second consume to fail")
	}
}

func TestMemoryAuthStateStore_ExpiredStateIsRejectedAndRemoved(t *testing.T) {
	store := NewMemoryAuthStateStore(time.Minute)
	now := time.Now().UTC()

	if err := store.Save(context.Background(), AuthStateRecord{
		State:     "stale",
		CreatedAt: now.Add(-2 * time.Minute),
		ExpiresAt: now.Add(-time.Minute),
	}); err != nil {
		t.Fatalf("save stale state: %v", err)
	}

	if _, err := store.Consume(context.Background(), "stale"); err == nil {
		t.Fatalf("expected expired state to be rejected")
	}
	if _, err := store.Consume(context.Background(), "stale"); err == nil {
		t.Fatalf("expected expired state to be gone after the first attempt")
	}
}

func TestMemoryAuthStateStore_SaveEvictsOldestOnOverflow(t *testing.T) {
	store := NewMemoryAuthStateStoreWithLimits(time.Hour, 2)
	now := time.Now().UTC()

	for i, state := range []string{"state-a", "state-b", "state-c"} {
		if err := store.Save(context.Background(), AuthStateRecord{
			State:     state,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("save %s: %v", state, err)
		}
	}

	if _, err := store.Consume(context.Background(), "state-a"); err == nil {
		t.Fatalf("expected oldest state to be evicted")
	}
	if _, err := store.Consume(context.Background(), "state-c"); err != nil {
		t.Fatalf("expected newest state to survive, got %v", err)
	}
}

func TestMemoryAuthStateStore_PurgeProfileRemovesOnlyThatProfile(t *testing.T) {
	store := NewMemoryAuthStateStore(time.Minute)

	for state, profile := range map[string]string{
		"state-a": "mtd-vat",
		"state-b": "mtd-vat",
		"state-c": "other",
	} {
		if err := store.Save(context.Background(), AuthStateRecord{
			State:      state,
			ProfileKey: profile,
		}); err != nil {
			t.Fatalf("save %s: %v", state, err)
		}
	}

	if err := store.PurgeProfile(context.Background(), "mtd-vat"); err != nil {
		t.Fatalf("purge profile: %v", err)
	}

	for _, state := range []string{"state-a", "state-b"} {
		if _, err := store.Consume(context.Background(), state); err == nil {
			t.Fatalf("expected %s to be purged", state)
		}
	}
	if _, err := store.Consume(context.Background(), "state-c"); err != nil {
		t.Fatalf("expected the other profile's state to survive, got %v", err)
	}
}

func TestGenerateAuthState(t *testing.T) {
	first, err := generateAuthState()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := generateAuthState()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == "" || first == second {
		t.Fatalf("expected unique non-empty states, got %q and %q", first, second)
	}
}
