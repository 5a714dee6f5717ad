// Package agent plays battles autonomously: it watches engine
// notifications and commits a random legal move once per round.
package agent

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/louisbranch/emberclash/internal/battle/domain"
	"github.com/louisbranch/emberclash/internal/battle/engine"
	apperrors "github.com/louisbranch/emberclash/internal/platform/errors"
)

// Submitter is the slice of the engine the agent drives.
type Submitter interface {
	SubmitMove(ctx context.Context, battleID string, move domain.MoveID) (bool, error)
}

// Config wires an Agent's dependencies.
type Config struct {
	Submitter Submitter
	// IntN picks a uniform int in [0, n). Defaults to math/rand/v2.
	IntN func(n int) int
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Agent commits one move per (battle, round), chosen uniformly from
// the legal non-pass moves. Pass is played only when everything else
// is exhausted.
type Agent struct {
	submitter Submitter
	intn      func(n int) int
	logger    *slog.Logger

	// played maps battle id to the last round a move was committed
	// for, so redeliveries and view refreshes do not double-submit.
	played map[string]uint32
}

// New creates an agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Submitter == nil {
		return nil, apperrors.New(apperrors.CodeUnknown, "submitter is required")
	}
	intn := cfg.IntN
	if intn == nil {
		intn = rand.IntN
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		submitter: cfg.Submitter,
		intn:      intn,
		logger:    logger,
		played:    make(map[string]uint32),
	}, nil
}

// Run consumes notifications until the channel closes or the context
// is cancelled.
func (a *Agent) Run(ctx context.Context, events <-chan engine.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-events:
			if !ok {
				return nil
			}
			a.handle(ctx, n)
		}
	}
}

func (a *Agent) handle(ctx context.Context, n engine.Notification) {
	if n.BattleID == "" || n.Err != "" {
		return
	}
	switch n.State {
	case domain.StateSelectingMove:
		a.maybePlay(ctx, n)
	case domain.StateBattleEnded:
		delete(a.played, n.BattleID)
	}
}

func (a *Agent) maybePlay(ctx context.Context, n engine.Notification) {
	if a.played[n.BattleID] >= n.Context.Round {
		return
	}
	move := a.pickMove(n.Context)
	ok, err := a.submitter.SubmitMove(ctx, n.BattleID, move)
	if err != nil {
		// Left unmarked so the next notification retries.
		a.logger.Warn("agent move submission failed",
			"battle_id", n.BattleID, "round", n.Context.Round, "error", err)
		return
	}
	if !ok {
		// The round closed (or was already played) under us.
		a.played[n.BattleID] = n.Context.Round
		return
	}
	a.played[n.BattleID] = n.Context.Round
	a.logger.Info("agent committed move",
		"battle_id", n.BattleID, "round", n.Context.Round, "move", move)
}

// pickMove chooses uniformly among the legal non-pass moves, falling
// back to pass with every budget exhausted.
func (a *Agent) pickMove(c domain.Context) domain.MoveID {
	legal := make([]domain.MoveID, 0, domain.TotalMoves-1)
	for move := domain.MoveID(1); move < domain.TotalMoves; move++ {
		if c.CanUseMove(move) {
			legal = append(legal, move)
		}
	}
	if len(legal) == 0 {
		return domain.MovePass
	}
	return legal[a.intn(len(legal))]
}
