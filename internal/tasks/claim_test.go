package tasks

import (
	"testing"
	"time"
)

func TestClaimNextOpenReturnsOldestAndExcludesIt(t *testing.T) {
	r := tempRegistry(t)
	r.AddTask("first", "todo", "", "oldest task", "M")
	r.AddTask("second", "todo", "", "newer task", "M")

	claimed, err := r.ClaimNextOpen("worker-1", "builder", "chat-1", "", 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if claimed == nil || claimed.TaskID != "first" {
		t.Fatalf("expected to claim the oldest open task, got %+v", claimed)
	}
	if claimed.Status != "IN_PROGRESS" {
		t.Errorf("expected claimed task to be IN_PROGRESS, got %q", claimed.Status)
	}

	claimed2, err := r.ClaimNextOpen("worker-2", "builder", "chat-2", "", 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if claimed2 == nil || claimed2.TaskID != "second" {
		t.Fatalf("expected second claim to get the remaining open task, got %+v", claimed2)
	}
}

func TestClaimNextOpenReturnsNilWhenNothingOpen(t *testing.T) {
	r := tempRegistry(t)
	claimed, err := r.ClaimNextOpen("worker-1", "builder", "", "", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if claimed != nil {
		t.Fatalf("expected nil claim with no open tasks, got %+v", claimed)
	}
}

func TestClaimNextOpenIsIdempotentForSameOwnerWithinTTL(t *testing.T) {
	r := tempRegistry(t)
	r.AddTask("T1", "todo", "", "x", "M")

	first, err := r.ClaimNextOpen("worker-1", "builder", "", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.ClaimNextOpen("worker-1", "builder", "", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if first == nil || second == nil || first.TaskID != second.TaskID {
		t.Fatalf("expected repeated claim by same owner to return the same task, got %+v and %+v", first, second)
	}
}

func TestClaimNextOpenReclaimsExpiredClaim(t *testing.T) {
	r := tempRegistry(t)
	r.AddTask("T1", "todo", "", "x", "M")

	if _, err := r.ClaimNextOpen("worker-1", "builder", "", "", time.Millisecond); err != nil {
		t.Fatal(err)
	}

	restore := Now
	Now = func() time.Time { return restore().Add(time.Hour) }
	defer func() { Now = restore }()

	claimed, err := r.ClaimNextOpen("worker-2", "builder", "", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if claimed == nil || claimed.TaskID != "T1" {
		t.Fatalf("expected worker-2 to reclaim expired claim, got %+v", claimed)
	}
}
