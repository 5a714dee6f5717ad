package domain

// Record is an authoritative battle snapshot as reported by the
// ledger. It is the input to initialization and reconciliation and
// always wins any conflict with locally derived state.
type Record struct {
	BattleID string `json:"battle_id"`
	PlayerA  string `json:"player_a"`
	PlayerB  string `json:"player_b"`

	Round    uint32 `json:"round"`
	Deadline uint64 `json:"deadline"`
	View     uint64 `json:"view"`

	HealthA uint32 `json:"health_a"`
	HealthB uint32 `json:"health_b"`

	UsageA MoveUsage `json:"move_usage_a"`
	UsageB MoveUsage `json:"move_usage_b"`

	LimitsA MoveLimits `json:"move_limits_a"`
	LimitsB MoveLimits `json:"move_limits_b"`

	// PendingA/PendingB report whether each side's move commit for the
	// current round has been observed by the ledger.
	PendingA bool `json:"pending_a"`
	PendingB bool `json:"pending_b"`
}

// NewContext builds a fresh battle context for the local player self
// from an authoritative record.
func NewContext(self string, rec Record) (Context, error) {
	if self == "" {
		return Context{}, ErrEmptySelfID
	}
	selfIsA := rec.PlayerA == self
	opponent := rec.PlayerA
	if selfIsA {
		opponent = rec.PlayerB
	}

	round := rec.Round
	if round == 0 {
		round = 1
	}

	ctx := Context{
		BattleID:      rec.BattleID,
		Self:          self,
		Opponent:      opponent,
		SelfIsA:       selfIsA,
		Round:         round,
		RoundDeadline: rec.Deadline,
		CurrentView:   rec.View,
	}
	if selfIsA {
		ctx.MyHealth = rec.HealthA
		ctx.OpponentHealth = rec.HealthB
		ctx.MoveUsage = rec.UsageA
		ctx.MoveLimits = rec.LimitsA
		ctx.OpponentLocked = rec.PendingB
	} else {
		ctx.MyHealth = rec.HealthB
		ctx.OpponentHealth = rec.HealthA
		ctx.MoveUsage = rec.UsageB
		ctx.MoveLimits = rec.LimitsB
		ctx.OpponentLocked = rec.PendingA
	}
	if err := ctx.Validate(); err != nil {
		return Context{}, err
	}
	return ctx, nil
}

// RoundResult is the authoritative payload of a round resolution,
// already oriented to the local player.
type RoundResult struct {
	Round          uint32
	Deadline       uint64
	MyHealth       uint32
	OpponentHealth uint32
	MyUsage        MoveUsage
	OpponentUsage  MoveUsage
}
