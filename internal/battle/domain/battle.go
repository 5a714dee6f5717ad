// Package domain holds the battle state record and its invariants.
//
// A Context is pure data: every mutation happens through engine
// transitions, and every field is serializable so a battle can be
// snapshotted and resumed across process restarts.
package domain

import (
	apperrors "github.com/louisbranch/emberclash/internal/platform/errors"
)

// MaxRounds caps how many rounds a battle may run. Once exceeded the
// battle must settle; no further moves are accepted.
const MaxRounds = 20

// State enumerates the per-round battle lifecycle.
type State int

const (
	// StateUnspecified represents an invalid state value.
	StateUnspecified State = iota
	// StateInitializing awaits full battle metadata.
	StateInitializing
	// StateSelectingMove accepts a local move for the current round.
	StateSelectingMove
	// StateMoveLocked has the local move committed, opponent pending.
	StateMoveLocked
	// StateBothLocked has both commitments in (or the deadline passed).
	StateBothLocked
	// StateSettling has a settle submission in flight.
	StateSettling
	// StateRoundComplete has an authoritative round result applied.
	StateRoundComplete
	// StateBattleEnded is terminal.
	StateBattleEnded
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateSelectingMove:
		return "selecting_move"
	case StateMoveLocked:
		return "move_locked"
	case StateBothLocked:
		return "both_locked"
	case StateSettling:
		return "settling"
	case StateRoundComplete:
		return "round_complete"
	case StateBattleEnded:
		return "battle_ended"
	default:
		return "unspecified"
	}
}

// Terminal reports whether the state accepts no further transitions.
func (s State) Terminal() bool {
	return s == StateBattleEnded
}

// Outcome records how a battle ended for the local player.
type Outcome int

const (
	// OutcomeUnspecified means the battle has not settled.
	OutcomeUnspecified Outcome = iota
	// OutcomeWin means the local player won.
	OutcomeWin
	// OutcomeLoss means the local player lost.
	OutcomeLoss
	// OutcomeDraw means neither player won.
	OutcomeDraw
)

// String returns the outcome name for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "win"
	case OutcomeLoss:
		return "loss"
	case OutcomeDraw:
		return "draw"
	default:
		return "unspecified"
	}
}

var (
	// ErrEmptyBattleID indicates a missing battle identifier.
	ErrEmptyBattleID = apperrors.New(apperrors.CodeBattleEmptyID, "battle id is required")
	// ErrEmptySelfID indicates a missing local player identifier.
	ErrEmptySelfID = apperrors.New(apperrors.CodeBattleInvalidSelfID, "local player id is required")
	// ErrInvalidDeadline indicates a round deadline of zero.
	ErrInvalidDeadline = apperrors.New(apperrors.CodeBattleInvalidDeadline, "round deadline is required")
	// ErrRoundOutOfRange indicates a round outside 1..MaxRounds+1.
	ErrRoundOutOfRange = apperrors.New(apperrors.CodeBattleRoundOutOfRange, "round is out of range")
)

// Context is the mutable per-battle state record. It is owned by the
// engine and mutated only via state machine transitions.
type Context struct {
	// BattleID is immutable once set.
	BattleID string `json:"battle_id"`
	// Self and Opponent are the ledger account ids of the two players.
	Self     string `json:"self"`
	Opponent string `json:"opponent"`
	// SelfIsA records which side of the authoritative record is ours.
	SelfIsA bool `json:"self_is_a"`

	// Round starts at 1 and only advances via confirmed resolutions.
	Round uint32 `json:"round"`

	MyHealth       uint32 `json:"my_health"`
	OpponentHealth uint32 `json:"opponent_health"`

	MoveUsage  MoveUsage  `json:"move_usage"`
	MoveLimits MoveLimits `json:"move_limits"`

	// SelectedMove is a provisional local choice; LockedMove is the
	// value actually submitted. Has* flags distinguish move 0 from
	// "no move chosen".
	SelectedMove MoveID `json:"selected_move"`
	HasSelected  bool   `json:"has_selected"`
	LockedMove   MoveID `json:"locked_move"`
	HasLocked    bool   `json:"has_locked"`

	// RoundDeadline is the view after which the round must settle.
	RoundDeadline uint64 `json:"round_deadline"`
	// CurrentView is the latest observed ledger view, never decreased.
	CurrentView uint64 `json:"current_view"`

	OpponentLocked     bool `json:"opponent_locked"`
	SettlementInFlight bool `json:"settlement_in_flight"`

	Outcome Outcome `json:"outcome"`
}

// TimeLeft returns the views remaining before the round deadline.
func (c *Context) TimeLeft() uint64 {
	if c.CurrentView >= c.RoundDeadline {
		return 0
	}
	return c.RoundDeadline - c.CurrentView
}

// DeadlinePassed reports whether the current round is past its deadline.
func (c *Context) DeadlinePassed() bool {
	return c.CurrentView > c.RoundDeadline
}

// Ended reports whether the battle has reached a forced-end condition:
// a knockout, the round cap, or a recorded outcome. Past this point
// only settlement-directed transitions are legal.
func (c *Context) Ended() bool {
	return c.MyHealth == 0 || c.OpponentHealth == 0 || c.Round > MaxRounds || c.Outcome != OutcomeUnspecified
}

// CanUseMove reports whether the move is legal under its usage budget.
// Pass is always legal; a zero limit means the move is not budgeted.
func (c *Context) CanUseMove(move MoveID) bool {
	if !move.Valid() {
		return false
	}
	if move == MovePass {
		return true
	}
	limit := c.MoveLimits[move]
	if limit == 0 {
		return true
	}
	return c.MoveUsage[move] < limit
}

// EffectiveMove returns the move that will resolve for this round:
// the locked move, or pass when no move was committed in time.
func (c *Context) EffectiveMove() MoveID {
	if c.HasLocked {
		return c.LockedMove
	}
	return MovePass
}

// ClearRoundFlags resets the per-round commitment flags.
func (c *Context) ClearRoundFlags() {
	c.SelectedMove = 0
	c.HasSelected = false
	c.LockedMove = 0
	c.HasLocked = false
	c.OpponentLocked = false
	c.SettlementInFlight = false
}

// Validate checks the context invariants that hold in every state.
func (c *Context) Validate() error {
	if c.BattleID == "" {
		return ErrEmptyBattleID
	}
	if c.Self == "" {
		return ErrEmptySelfID
	}
	if c.Round == 0 || c.Round > MaxRounds+1 {
		return ErrRoundOutOfRange
	}
	if c.RoundDeadline == 0 {
		return ErrInvalidDeadline
	}
	return nil
}
