package domain

// MoveID identifies one of a creature's moves.
type MoveID uint8

const (
	// MovePass is the "no move" placeholder submitted when a player
	// misses a round deadline. It is always legal and never budgeted.
	MovePass MoveID = 0
	// MoveRecover is the defensive/recovery move.
	MoveRecover MoveID = 1
)

// TotalMoves is the size of a creature's move table: pass, recover,
// and three offensive moves.
const TotalMoves = 5

// MoveUsage counts per-move uses within a battle.
type MoveUsage [TotalMoves]uint8

// MoveLimits caps per-move uses within a battle. A zero limit means
// the move is not budgeted (unlimited).
type MoveLimits [TotalMoves]uint8

// Valid reports whether the move id is within the move table.
func (m MoveID) Valid() bool {
	return m < TotalMoves
}
