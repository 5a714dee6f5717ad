package engine

import (
	"github.com/louisbranch/emberclash/internal/battle/domain"
)

// Reconcile derives the correct (state, context) pair from a possibly
// stale local snapshot and a freshly queried authoritative record.
// The record always wins on facts; the snapshot only contributes the
// local clock high-water mark and in-round orientation.
func Reconcile(self string, prevState domain.State, prev *domain.Context, rec domain.Record) (domain.State, domain.Context, error) {
	fresh, err := domain.NewContext(self, rec)
	if err != nil {
		return domain.StateUnspecified, domain.Context{}, err
	}

	// No local snapshot: initialize as if matched just now.
	if prev == nil {
		return settleAwareState(fresh), fresh, nil
	}

	// The clock never rewinds, even across a restart with a stale record.
	if prev.CurrentView > fresh.CurrentView {
		fresh.CurrentView = prev.CurrentView
	}

	// Same round, same deadline: the snapshot is current. Keep the
	// local selection and lock flags, refresh the clock, and unwedge a
	// settlement that outlived its deadline.
	if prev.Round == fresh.Round && prev.RoundDeadline == fresh.RoundDeadline {
		ctx := *prev
		ctx.CurrentView = fresh.CurrentView
		ctx.MyHealth = fresh.MyHealth
		ctx.OpponentHealth = fresh.OpponentHealth
		if fresh.OpponentLocked {
			ctx.OpponentLocked = true
		}
		state := prevState
		if state == domain.StateUnspecified || state == domain.StateInitializing {
			state = settleAwareState(ctx)
		}
		if state == domain.StateMoveLocked && ctx.OpponentLocked {
			state = domain.StateBothLocked
		}
		if state == domain.StateSettling && ctx.DeadlinePassed() {
			// The submission outcome is unknowable; clear the guard and
			// let the settlement path retry.
			ctx.SettlementInFlight = false
			state = domain.StateBothLocked
		}
		if ctx.DeadlinePassed() {
			switch state {
			case domain.StateSelectingMove, domain.StateMoveLocked:
				state = domain.StateBothLocked
			}
		}
		return state, ctx, nil
	}

	// The round moved on while we were away. Local per-round flags are
	// meaningless now; rebuild from the record alone.
	return settleAwareState(fresh), fresh, nil
}

// settleAwareState picks the entry state for a context built straight
// from an authoritative record: selecting while the round is open,
// otherwise closed commitment awaiting settlement.
func settleAwareState(ctx domain.Context) domain.State {
	if ctx.DeadlinePassed() {
		return domain.StateBothLocked
	}
	return domain.StateSelectingMove
}
