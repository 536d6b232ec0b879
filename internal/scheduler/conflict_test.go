package scheduler

import "testing"

func TestDetectConflicts(t *testing.T) {
	existing := []Reservation{
		{ID: "r-agent", ResourceID: "room-b", AgentID: "alice", Interval: iv(9, 10), Status: StatusConfirmed},
		{ID: "r-room", ResourceID: "room-a", Interval: iv(10, 11), Status: StatusConfirmed},
		{ID: "r-pending", ResourceID: "room-a", Interval: iv(9, 12), Status: StatusPending},
		{ID: "r-cancelled", ResourceID: "room-a", AgentID: "alice", Interval: iv(9, 12), Status: StatusCancelled},
	}

	t.Run("agent overlap produces conflict", func(t *testing.T) {
		candidate := Reservation{ID: "new", ResourceID: "room-c", AgentID: "alice", Interval: iv(9, 11)}
		got := DetectConflicts(existing, candidate)
		if len(got) != 1 || got[0].Type != ConflictTypeAgent || got[0].WithReservationID != "r-agent" {
			t.Fatalf("unexpected conflicts: %+v", got)
		}
		if got[0].Target != AgentTarget("alice") {
			t.Fatalf("unexpected target %s", got[0].Target)
		}
	})

	t.Run("resource overlap produces conflict", func(t *testing.T) {
		candidate := Reservation{ID: "new", ResourceID: "room-a", Interval: iv(9, 12)}
		got := DetectConflicts(existing, candidate)
		if len(got) != 1 || got[0].Type != ConflictTypeResource || got[0].WithReservationID != "r-room" {
			t.Fatalf("unexpected conflicts: %+v", got)
		}
	})

	t.Run("resource conflicts come before agent conflicts", func(t *testing.T) {
		candidate := Reservation{ID: "new", ResourceID: "room-a", AgentID: "alice", Interval: iv(8, 12)}
		got := DetectConflicts(existing, candidate)
		if len(got) != 2 {
			t.Fatalf("expected 2 conflicts, got %+v", got)
		}
		if got[0].WithReservationID != "r-room" || got[1].WithReservationID != "r-agent" {
			t.Fatalf("unexpected order: %+v", got)
		}
	})

	t.Run("conflicts of one kind are ordered by start", func(t *testing.T) {
		ledger := append([]Reservation{
			{ID: "r-late", ResourceID: "room-a", Interval: iv(11, 12), Status: StatusConfirmed},
		}, existing...)
		ledger = append(ledger, Reservation{ID: "r-early", ResourceID: "room-a", Interval: iv(8, 9), Status: StatusConfirmed})
		candidate := Reservation{ID: "new", ResourceID: "room-a", Interval: iv(8, 12)}
		got := DetectConflicts(ledger, candidate)
		if len(got) != 3 || got[0].WithReservationID != "r-early" || got[1].WithReservationID != "r-room" || got[2].WithReservationID != "r-late" {
			t.Fatalf("unexpected order: %+v", got)
		}
	})

	t.Run("non-overlapping reservations yield no conflicts", func(t *testing.T) {
		candidate := Reservation{ID: "new", ResourceID: "room-a", AgentID: "alice", Interval: iv(11, 12)}
		if got := DetectConflicts(existing, candidate); len(got) != 0 {
			t.Fatalf("expected no conflicts, got %+v", got)
		}
	})

	t.Run("candidate does not conflict with itself", func(t *testing.T) {
		candidate := existing[1]
		if got := DetectConflicts(existing, candidate); len(got) != 0 {
			t.Fatalf("expected no conflicts, got %+v", got)
		}
	})
}
