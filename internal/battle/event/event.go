// Package event defines the typed notifications delivered to the
// battle engine by the ledger feed.
package event

import (
	"strings"

	"github.com/louisbranch/emberclash/internal/battle/domain"
)

// Type identifies the type of a feed event.
type Type string

// Battle lifecycle events.
const (
	// TypeMatched records two players being matched into a battle.
	TypeMatched Type = "battle.matched"
	// TypeLocked records a move commit being observed for one player.
	TypeLocked Type = "battle.locked"
	// TypeMoved records an authoritative round resolution.
	TypeMoved Type = "battle.moved"
	// TypeSettled records the terminal settlement of a battle.
	TypeSettled Type = "battle.settled"
)

// Ledger clock events.
const (
	// TypeSeed carries the verifiable random seed for one view.
	TypeSeed Type = "ledger.seed"
	// TypeView is a bare heartbeat advancing the current view.
	TypeView Type = "ledger.view"
)

// Feed lifecycle events.
const (
	// TypeReady signals the feed (re)connected and buffered delivery
	// resumed; the engine reconciles tracked battles on receipt.
	TypeReady Type = "feed.ready"
)

// Event is one notification from the ledger feed. Exactly one payload
// pointer is set for battle events; clock events use View/Seed.
type Event struct {
	// Type identifies the kind of event.
	Type Type `json:"type"`
	// BattleID is set for battle events, empty for broadcast events.
	BattleID string `json:"battle_id,omitempty"`
	// View is the ledger view for seed and heartbeat events.
	View uint64 `json:"view,omitempty"`
	// Seed holds the seed bytes for TypeSeed.
	Seed []byte `json:"seed,omitempty"`

	Matched *Matched `json:"matched,omitempty"`
	Locked  *Locked  `json:"locked,omitempty"`
	Moved   *Moved   `json:"moved,omitempty"`
	Settled *Settled `json:"settled,omitempty"`
}

// Matched announces a new battle between two players.
type Matched struct {
	PlayerA string `json:"player_a"`
	PlayerB string `json:"player_b"`
	// Expiry is the deadline view for the first round.
	Expiry  uint64 `json:"expiry"`
	HealthA uint32 `json:"health_a"`
	HealthB uint32 `json:"health_b"`

	LimitsA domain.MoveLimits `json:"move_limits_a"`
	LimitsB domain.MoveLimits `json:"move_limits_b"`
}

// Locked announces one player's move commit for the current round.
// The ciphertext stays opaque until the round's seed is revealed.
type Locked struct {
	Locker     string `json:"locker"`
	Ciphertext []byte `json:"ciphertext,omitempty"`
}

// Moved carries the authoritative result of a resolved round.
type Moved struct {
	Round uint32 `json:"round"`
	// Expiry is the deadline view for the next round.
	Expiry  uint64 `json:"expiry"`
	HealthA uint32 `json:"health_a"`
	HealthB uint32 `json:"health_b"`

	UsageA domain.MoveUsage `json:"move_usage_a"`
	UsageB domain.MoveUsage `json:"move_usage_b"`
}

// Settled announces the terminal outcome of a battle. Winner is empty
// for a draw.
type Settled struct {
	Winner string `json:"winner,omitempty"`
	Draw   bool   `json:"draw,omitempty"`
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g. "battle").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}

// OutcomeFor maps a settlement to the given player's outcome.
func (s Settled) OutcomeFor(player string) domain.Outcome {
	switch {
	case s.Draw || s.Winner == "":
		return domain.OutcomeDraw
	case s.Winner == player:
		return domain.OutcomeWin
	default:
		return domain.OutcomeLoss
	}
}
