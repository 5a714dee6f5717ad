package engine

import (
	"github.com/louisbranch/emberclash/internal/battle/domain"
)

// Machine is the per-battle state machine. Transitions are pure
// functions over (state, context): they perform no IO and report
// whether the attempted transition took effect. Callers must branch
// on the result — an illegal transition is a rejected no-op, never a
// panic or an error.
type Machine struct {
	state domain.State
	ctx   domain.Context
}

// NewMachine creates a machine awaiting battle metadata.
func NewMachine() *Machine {
	return &Machine{state: domain.StateInitializing}
}

// RestoreMachine rebuilds a machine from a persisted snapshot. The
// caller is expected to reconcile against authoritative state before
// trusting it.
func RestoreMachine(state domain.State, ctx domain.Context) *Machine {
	if state == domain.StateUnspecified {
		state = domain.StateInitializing
	}
	return &Machine{state: state, ctx: ctx}
}

// State returns the current state.
func (m *Machine) State() domain.State {
	return m.state
}

// Context returns a copy of the battle context.
func (m *Machine) Context() domain.Context {
	return m.ctx
}

// Initialize populates the context from an authoritative record and
// opens move selection. Legal only while initializing.
func (m *Machine) Initialize(self string, rec domain.Record) bool {
	if m.state != domain.StateInitializing {
		return false
	}
	ctx, err := domain.NewContext(self, rec)
	if err != nil {
		return false
	}
	m.ctx = ctx
	m.state = domain.StateSelectingMove
	// The record may already be stale relative to the clock.
	m.forceDeadline()
	return true
}

// SelectMove records a provisional local choice without committing it.
func (m *Machine) SelectMove(move domain.MoveID) bool {
	if m.state != domain.StateSelectingMove || m.ctx.Ended() || m.ctx.DeadlinePassed() {
		return false
	}
	if !m.ctx.CanUseMove(move) {
		return false
	}
	m.ctx.SelectedMove = move
	m.ctx.HasSelected = true
	return true
}

// LockMove commits a move for the current round. Legal only while
// selecting, within the move's usage budget, and before the deadline.
func (m *Machine) LockMove(move domain.MoveID) bool {
	if m.state != domain.StateSelectingMove || m.ctx.Ended() || m.ctx.DeadlinePassed() {
		return false
	}
	if !m.ctx.CanUseMove(move) {
		return false
	}
	m.ctx.SelectedMove = move
	m.ctx.HasSelected = true
	m.ctx.LockedMove = move
	m.ctx.HasLocked = true
	if m.ctx.OpponentLocked {
		m.state = domain.StateBothLocked
	} else {
		m.state = domain.StateMoveLocked
	}
	return true
}

// RevertMove rolls back an unconfirmed local commit after a failed
// submission, reopening move selection. Legal only before the
// deadline.
func (m *Machine) RevertMove() bool {
	if m.state != domain.StateMoveLocked && m.state != domain.StateBothLocked {
		return false
	}
	if !m.ctx.HasLocked || m.ctx.DeadlinePassed() {
		return false
	}
	m.ctx.LockedMove = 0
	m.ctx.HasLocked = false
	m.state = domain.StateSelectingMove
	return true
}

// ConfirmLock applies the ledger's confirmation of our own move
// commit. When the commit was made before a restart the local choice
// may be unknown; the effective move is the ledger's either way.
// Repeated confirmations are no-ops.
func (m *Machine) ConfirmLock() bool {
	if m.state != domain.StateSelectingMove || m.ctx.Ended() {
		return false
	}
	if m.ctx.HasSelected {
		m.ctx.LockedMove = m.ctx.SelectedMove
	}
	m.ctx.HasLocked = true
	if m.ctx.OpponentLocked {
		m.state = domain.StateBothLocked
	} else {
		m.state = domain.StateMoveLocked
	}
	return true
}

// OpponentLock records the opponent's move commit. Repeated
// notifications are no-ops; the flag never double-counts.
func (m *Machine) OpponentLock() bool {
	if m.state.Terminal() || m.ctx.OpponentLocked {
		return false
	}
	m.ctx.OpponentLocked = true
	if m.state == domain.StateMoveLocked {
		m.state = domain.StateBothLocked
	}
	return true
}

// AdvanceView applies a newer ledger view. The clock never rewinds,
// and crossing the round deadline forces commitment closed.
func (m *Machine) AdvanceView(view uint64) bool {
	if m.state.Terminal() || view <= m.ctx.CurrentView {
		return false
	}
	m.ctx.CurrentView = view
	m.forceDeadline()
	return true
}

// forceDeadline closes move commitment once the deadline is behind
// the clock. A missing local move resolves as pass; no further local
// choice may be honored.
func (m *Machine) forceDeadline() {
	if !m.ctx.DeadlinePassed() {
		return
	}
	switch m.state {
	case domain.StateSelectingMove, domain.StateMoveLocked:
		m.state = domain.StateBothLocked
	}
}

// StartSettle begins settlement for the current round. Legal only
// once both commitments are closed, the deadline has passed, and no
// settlement is already in flight.
func (m *Machine) StartSettle() bool {
	if m.state != domain.StateBothLocked || m.ctx.SettlementInFlight || !m.ctx.DeadlinePassed() {
		return false
	}
	m.ctx.SettlementInFlight = true
	m.state = domain.StateSettling
	return true
}

// CompleteRound applies an authoritative round resolution. The
// payload always wins: it is legal from any non-terminal state, even
// when the local state never observed the settlement it results from.
func (m *Machine) CompleteRound(res domain.RoundResult) bool {
	if m.state.Terminal() {
		return false
	}
	if res.Round <= m.ctx.Round {
		// A resolution always carries the round it opens, so equality
		// only arises from at-least-once redelivery. Accepting it again
		// would wipe the round flags and reopen a committed round.
		return false
	}
	m.ctx.Round = res.Round
	m.ctx.RoundDeadline = res.Deadline
	m.ctx.MyHealth = res.MyHealth
	m.ctx.OpponentHealth = res.OpponentHealth
	m.ctx.MoveUsage = res.MyUsage
	m.ctx.ClearRoundFlags()
	m.state = domain.StateRoundComplete
	return true
}

// ResetForNewRound opens move selection for the next round. Rejected
// when the battle has reached a forced-end condition; the machine
// then stays in RoundComplete awaiting final settlement.
func (m *Machine) ResetForNewRound() bool {
	if m.state != domain.StateRoundComplete || m.ctx.Ended() {
		return false
	}
	m.state = domain.StateSelectingMove
	m.forceDeadline()
	return true
}

// End records the terminal outcome. Legal from any state: a
// settlement may arrive out of order relative to the final round
// resolution.
func (m *Machine) End(outcome domain.Outcome) bool {
	if m.state.Terminal() {
		return false
	}
	m.ctx.Outcome = outcome
	m.ctx.SettlementInFlight = false
	m.state = domain.StateBattleEnded
	return true
}

// Fail records a submission failure. The in-flight guard is cleared
// so the settlement can be retried on a later tick; a failed settle
// submission reopens from BothLocked. Game state is untouched.
func (m *Machine) Fail() bool {
	if !m.ctx.SettlementInFlight {
		return false
	}
	m.ctx.SettlementInFlight = false
	if m.state == domain.StateSettling {
		m.state = domain.StateBothLocked
	}
	return true
}
