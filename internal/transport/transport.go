// Package transport defines the engine's boundary to the ledger
// gateway: fire-and-forget transaction submission and point queries.
package transport

import (
	"context"

	"github.com/louisbranch/emberclash/internal/battle/domain"
)

// Transport submits transactions to and queries the ledger gateway.
//
// Submissions are fire-and-forget: a nil error means the gateway
// accepted the submission, not that the ledger applied it. Acceptance
// by the ledger is always reported later through the event feed.
type Transport interface {
	// SubmitMove submits a move commit bound to the round's deadline view.
	SubmitMove(ctx context.Context, battleID string, move domain.MoveID, deadline uint64) error
	// SubmitSettle submits a settle transaction carrying the seed bytes
	// for the round's deadline view.
	SubmitSettle(ctx context.Context, battleID string, seed []byte) error
	// QuerySeed fetches the seed for an exact view. A false result with
	// a nil error means the seed is not yet published.
	QuerySeed(ctx context.Context, view uint64) ([]byte, bool, error)
	// QueryBattle fetches the authoritative record for a battle. A
	// false result with a nil error means the ledger no longer tracks
	// the battle.
	QueryBattle(ctx context.Context, battleID string) (domain.Record, bool, error)
}
