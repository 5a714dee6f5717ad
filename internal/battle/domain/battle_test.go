package domain

import (
	"errors"
	"testing"
)

func testRecord() Record {
	return Record{
		BattleID: "battle-1",
		PlayerA:  "alice",
		PlayerB:  "bob",
		Round:    1,
		Deadline: 50,
		View:     10,
		HealthA:  100,
		HealthB:  100,
		LimitsA:  MoveLimits{0, 1, 1, 1, 1},
		LimitsB:  MoveLimits{0, 1, 1, 1, 1},
	}
}

func TestNewContextOrientsToSelf(t *testing.T) {
	rec := testRecord()
	rec.HealthB = 80
	rec.PendingA = true

	ctx, err := NewContext("bob", rec)
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	if ctx.SelfIsA {
		t.Fatal("expected bob to be player b")
	}
	if ctx.Opponent != "alice" {
		t.Fatalf("expected opponent alice, got %q", ctx.Opponent)
	}
	if ctx.MyHealth != 80 || ctx.OpponentHealth != 100 {
		t.Fatalf("expected oriented health 80/100, got %d/%d", ctx.MyHealth, ctx.OpponentHealth)
	}
	if !ctx.OpponentLocked {
		t.Fatal("expected opponent pending commit to set opponent_locked")
	}
}

func TestNewContextValidation(t *testing.T) {
	tests := []struct {
		name   string
		self   string
		mutate func(*Record)
		err    error
	}{
		{
			name: "missing self",
			self: "",
			err:  ErrEmptySelfID,
		},
		{
			name:   "missing battle id",
			self:   "alice",
			mutate: func(r *Record) { r.BattleID = "" },
			err:    ErrEmptyBattleID,
		},
		{
			name:   "missing deadline",
			self:   "alice",
			mutate: func(r *Record) { r.Deadline = 0 },
			err:    ErrInvalidDeadline,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := testRecord()
			if tc.mutate != nil {
				tc.mutate(&rec)
			}
			_, err := NewContext(tc.self, rec)
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestCanUseMove(t *testing.T) {
	ctx, err := NewContext("alice", testRecord())
	if err != nil {
		t.Fatalf("new context: %v", err)
	}

	if !ctx.CanUseMove(MovePass) {
		t.Fatal("pass must always be legal")
	}
	if !ctx.CanUseMove(2) {
		t.Fatal("unused offensive move should be legal")
	}
	ctx.MoveUsage[2] = 1
	if ctx.CanUseMove(2) {
		t.Fatal("exhausted move should be rejected")
	}
	if ctx.CanUseMove(TotalMoves) {
		t.Fatal("out-of-range move should be rejected")
	}

	// Unbudgeted moves never run out.
	ctx.MoveLimits[3] = 0
	ctx.MoveUsage[3] = 200
	if !ctx.CanUseMove(3) {
		t.Fatal("unbudgeted move should stay legal")
	}
}

func TestEndedConditions(t *testing.T) {
	ctx, err := NewContext("alice", testRecord())
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	if ctx.Ended() {
		t.Fatal("fresh battle should not be ended")
	}

	knockout := ctx
	knockout.MyHealth = 0
	if !knockout.Ended() {
		t.Fatal("zero health should end the battle")
	}

	capped := ctx
	capped.Round = MaxRounds + 1
	if !capped.Ended() {
		t.Fatal("round cap should end the battle")
	}

	settled := ctx
	settled.Outcome = OutcomeDraw
	if !settled.Ended() {
		t.Fatal("recorded outcome should end the battle")
	}
}

func TestTimeLeftAndEffectiveMove(t *testing.T) {
	ctx, err := NewContext("alice", testRecord())
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	if got := ctx.TimeLeft(); got != 40 {
		t.Fatalf("expected 40 views left, got %d", got)
	}
	ctx.CurrentView = 51
	if got := ctx.TimeLeft(); got != 0 {
		t.Fatalf("expected 0 views left past deadline, got %d", got)
	}
	if !ctx.DeadlinePassed() {
		t.Fatal("expected deadline passed")
	}

	if got := ctx.EffectiveMove(); got != MovePass {
		t.Fatalf("expected pass without a locked move, got %d", got)
	}
	ctx.LockedMove = 2
	ctx.HasLocked = true
	if got := ctx.EffectiveMove(); got != 2 {
		t.Fatalf("expected locked move 2, got %d", got)
	}
}
