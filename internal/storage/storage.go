// Package storage defines the persistence interfaces for battle state.
package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/emberclash/internal/battle/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Snapshot is a persisted battle context plus its machine state,
// sufficient to resume the battle after a restart.
type Snapshot struct {
	State   domain.State   `json:"state"`
	Context domain.Context `json:"context"`
}

// SnapshotStore persists per-battle snapshots keyed by battle id.
type SnapshotStore interface {
	// SaveSnapshot upserts the snapshot for its battle id.
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error
	// LoadSnapshot returns the snapshot for a battle id, or ErrNotFound.
	LoadSnapshot(ctx context.Context, battleID string) (Snapshot, error)
	// ClearSnapshot removes the snapshot for a battle id. Clearing a
	// missing snapshot is not an error.
	ClearSnapshot(ctx context.Context, battleID string) error
	// ListBattleIDs returns the ids of every persisted snapshot.
	ListBattleIDs(ctx context.Context) ([]string, error)
}
