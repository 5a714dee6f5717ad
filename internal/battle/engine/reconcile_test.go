package engine

import (
	"testing"

	"github.com/louisbranch/emberclash/internal/battle/domain"
)

func TestReconcileNoSnapshot(t *testing.T) {
	t.Run("open round", func(t *testing.T) {
		state, c, err := Reconcile("alice", domain.StateUnspecified, nil, testRecord())
		if err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
		if got, want := state, domain.StateSelectingMove; got != want {
			t.Errorf("state = %v, want %v", got, want)
		}
		if c.Round != 1 || c.CurrentView != 10 {
			t.Errorf("context not built from the record: %+v", c)
		}
	})

	t.Run("deadline behind the clock", func(t *testing.T) {
		rec := testRecord()
		rec.View = 200
		state, _, err := Reconcile("alice", domain.StateUnspecified, nil, rec)
		if err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
		if got, want := state, domain.StateBothLocked; got != want {
			t.Errorf("state = %v, want %v", got, want)
		}
	})
}

func TestReconcileSameRound(t *testing.T) {
	m := initializedMachine(t)
	if !m.LockMove(2) {
		t.Fatal("LockMove rejected")
	}
	prev := m.Context()

	rec := testRecord()
	rec.View = 42
	rec.PendingB = true

	state, c, err := Reconcile("alice", m.State(), &prev, rec)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got, want := state, domain.StateBothLocked; got != want {
		// Our lock plus the opponent's observed commit.
		t.Errorf("state = %v, want %v", got, want)
	}
	if !c.HasLocked || c.LockedMove != 2 {
		t.Error("in-round lock lost across reconciliation")
	}
	if c.CurrentView != 42 {
		t.Errorf("view = %d, want 42", c.CurrentView)
	}
	if !c.OpponentLocked {
		t.Error("opponent commit not merged from the record")
	}
}

func TestReconcileClockNeverRewinds(t *testing.T) {
	m := initializedMachine(t)
	m.AdvanceView(90)
	prev := m.Context()

	rec := testRecord()
	rec.View = 40

	_, c, err := Reconcile("alice", m.State(), &prev, rec)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if c.CurrentView != 90 {
		t.Errorf("view = %d, want the local high-water mark 90", c.CurrentView)
	}
}

func TestReconcileRoundMovedOn(t *testing.T) {
	m := initializedMachine(t)
	m.LockMove(3)
	prev := m.Context()

	rec := testRecord()
	rec.Round = 4
	rec.Deadline = 400
	rec.View = 350
	rec.HealthA = 20
	rec.HealthB = 31

	state, c, err := Reconcile("alice", m.State(), &prev, rec)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got, want := state, domain.StateSelectingMove; got != want {
		t.Errorf("state = %v, want %v for an open later round", got, want)
	}
	if c.Round != 4 || c.MyHealth != 20 || c.OpponentHealth != 31 {
		t.Errorf("context not rebuilt from the record: %+v", c)
	}
	if c.HasLocked || c.HasSelected {
		t.Error("stale in-round flags survived a round change")
	}
}

func TestReconcileRoundMovedOnPastDeadline(t *testing.T) {
	m := initializedMachine(t)
	prev := m.Context()

	rec := testRecord()
	rec.Round = 2
	rec.Deadline = 200
	rec.View = 260

	state, _, err := Reconcile("alice", m.State(), &prev, rec)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got, want := state, domain.StateBothLocked; got != want {
		t.Errorf("state = %v, want %v", got, want)
	}
}

func TestReconcileStuckSettling(t *testing.T) {
	m := initializedMachine(t)
	m.AdvanceView(101)
	if !m.StartSettle() {
		t.Fatal("StartSettle rejected")
	}
	prev := m.Context()

	rec := testRecord()
	rec.View = 120

	state, c, err := Reconcile("alice", m.State(), &prev, rec)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got, want := state, domain.StateBothLocked; got != want {
		t.Errorf("state = %v, want %v (settlement outcome unknowable)", got, want)
	}
	if c.SettlementInFlight {
		t.Error("in-flight guard survived reconciliation")
	}
}

func TestReconcileInvalidSelf(t *testing.T) {
	if _, _, err := Reconcile("", domain.StateUnspecified, nil, testRecord()); err == nil {
		t.Error("Reconcile accepted an empty self id")
	}
}
