// Package engine coordinates battle state machines against the
// ledger: it routes feed events to per-battle machines, drives
// settlement once a round's seed is available, and persists a
// snapshot after every committed transition.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/emberclash/internal/battle/domain"
	"github.com/louisbranch/emberclash/internal/battle/event"
	"github.com/louisbranch/emberclash/internal/battle/seedcache"
	apperrors "github.com/louisbranch/emberclash/internal/platform/errors"
	"github.com/louisbranch/emberclash/internal/platform/id"
	"github.com/louisbranch/emberclash/internal/storage"
	"github.com/louisbranch/emberclash/internal/transport"
)

// StalledViews is how many views a battle may sit without progress
// after its deadline before the engine re-queries the authoritative
// record.
const StalledViews = 64

// Config wires an Engine's dependencies.
type Config struct {
	// Self is the local player's id.
	Self string
	// Transport submits transactions and answers point queries.
	Transport transport.Transport
	// Snapshots persists battle state across restarts. Optional; nil
	// disables persistence.
	Snapshots storage.SnapshotStore
	// SeedCacheBound caps the number of retained seeds. Zero uses the
	// cache default.
	SeedCacheBound int
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Notification reports one committed transition (or a surfaced
// failure) for a battle to engine subscribers.
type Notification struct {
	BattleID string
	State    domain.State
	Context  domain.Context
	// Err carries a human-readable failure description when the
	// notification reports an error rather than a transition.
	Err string
}

// Subscription is a cancellable handle on the engine's notification
// stream.
type Subscription struct {
	id     string
	ch     chan Notification
	engine *Engine
}

// Events returns the subscription's notification channel. The channel
// is closed by Cancel.
func (s *Subscription) Events() <-chan Notification {
	return s.ch
}

// Cancel removes the subscription and closes its channel. Cancelling
// twice is safe.
func (s *Subscription) Cancel() {
	s.engine.unsubscribe(s.id)
}

// session is one tracked battle.
type session struct {
	machine *Machine
	// lastProgress is the view at which the battle last committed a
	// meaningful transition, for stall detection.
	lastProgress uint64
}

// Engine owns every tracked battle. All event handling and commands
// are serialized under one lock, so transitions for a battle are
// applied one at a time in arrival order.
type Engine struct {
	self      string
	transport transport.Transport
	snapshots storage.SnapshotStore
	logger    *slog.Logger
	tracer    trace.Tracer

	mu       sync.Mutex
	seeds    *seedcache.Cache
	battles  map[string]*session
	subs     map[string]chan Notification
	lastView uint64
}

// New creates an engine for the given local player.
func New(cfg Config) (*Engine, error) {
	if cfg.Self == "" {
		return nil, domain.ErrEmptySelfID
	}
	if cfg.Transport == nil {
		return nil, apperrors.New(apperrors.CodeTransportUnavailable, "transport is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		self:      cfg.Self,
		transport: cfg.Transport,
		snapshots: cfg.Snapshots,
		logger:    logger,
		tracer:    otel.Tracer("github.com/louisbranch/emberclash/internal/battle/engine"),
		seeds:     seedcache.New(cfg.SeedCacheBound),
		battles:   make(map[string]*session),
		subs:      make(map[string]chan Notification),
	}, nil
}

// Subscribe registers a notification channel with the given buffer.
// Notifications are dropped, not blocked on, when the buffer is full.
func (e *Engine) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	subID, err := id.NewID()
	if err != nil {
		// uuid generation only fails when the OS entropy source does.
		panic(err)
	}
	ch := make(chan Notification, buffer)
	e.mu.Lock()
	e.subs[subID] = ch
	e.mu.Unlock()
	return &Subscription{id: subID, ch: ch, engine: e}
}

func (e *Engine) unsubscribe(subID string) {
	e.mu.Lock()
	ch, ok := e.subs[subID]
	if ok {
		delete(e.subs, subID)
	}
	e.mu.Unlock()
	if ok {
		close(ch)
	}
}

// publish fans a notification out to subscribers. Callers hold e.mu.
func (e *Engine) publish(n Notification) {
	for subID, ch := range e.subs {
		select {
		case ch <- n:
		default:
			e.logger.Debug("dropping notification for slow subscriber",
				"subscription_id", subID, "battle_id", n.BattleID)
		}
	}
}

func (e *Engine) notify(battleID string, m *Machine) {
	e.publish(Notification{BattleID: battleID, State: m.State(), Context: m.Context()})
}

func (e *Engine) notifyError(battleID string, err error) {
	n := Notification{BattleID: battleID, Err: err.Error()}
	if s, ok := e.battles[battleID]; ok {
		n.State = s.machine.State()
		n.Context = s.machine.Context()
	}
	e.publish(n)
}

// Battle returns the current state and context of a tracked battle.
func (e *Engine) Battle(battleID string) (domain.State, domain.Context, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.battles[battleID]
	if !ok {
		return domain.StateUnspecified, domain.Context{}, false
	}
	return s.machine.State(), s.machine.Context(), true
}

// BattleIDs returns the ids of every tracked battle.
func (e *Engine) BattleIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.battles))
	for battleID := range e.battles {
		ids = append(ids, battleID)
	}
	return ids
}

// HandleEvent routes one feed event. Unknown battle ids and stale
// redeliveries are ignored; routing never fails the feed loop.
func (e *Engine) HandleEvent(ctx context.Context, evt event.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch evt.Type {
	case event.TypeReady:
		e.resyncAllLocked(ctx)
	case event.TypeSeed:
		e.handleSeedLocked(ctx, evt)
	case event.TypeView:
		e.advanceLocked(ctx, evt.View)
	case event.TypeMatched:
		e.handleMatchedLocked(ctx, evt)
	case event.TypeLocked:
		e.handleLockedLocked(ctx, evt)
	case event.TypeMoved:
		e.handleMovedLocked(ctx, evt)
	case event.TypeSettled:
		e.handleSettledLocked(ctx, evt)
	default:
		e.logger.Debug("ignoring unhandled feed event", "type", string(evt.Type))
	}
}

func (e *Engine) handleSeedLocked(ctx context.Context, evt event.Event) {
	if evt.View == 0 || len(evt.Seed) == 0 {
		e.logger.Warn("dropping malformed seed event", "view", evt.View)
		return
	}
	e.seeds.Put(evt.View, evt.Seed)
	// A view's seed is produced when the view closes, so the clock is
	// already past it. This is what lets the seed for a round's
	// deadline view trigger that round's settlement directly.
	e.advanceLocked(ctx, evt.View+1)
}

// advanceLocked applies a view heartbeat to every tracked battle and
// attempts settlement for any round whose deadline is now behind the
// clock.
func (e *Engine) advanceLocked(ctx context.Context, view uint64) {
	if view == 0 {
		return
	}
	if view > e.lastView {
		e.lastView = view
	}
	for battleID, s := range e.battles {
		if s.machine.AdvanceView(view) {
			e.persist(ctx, battleID, s)
		}
		e.maybeSettleLocked(ctx, battleID, s)
	}
}

func (e *Engine) handleMatchedLocked(ctx context.Context, evt event.Event) {
	if evt.Matched == nil || evt.BattleID == "" {
		return
	}
	p := evt.Matched
	if p.PlayerA != e.self && p.PlayerB != e.self {
		return
	}
	if _, ok := e.battles[evt.BattleID]; ok {
		// At-least-once delivery; the battle is already tracked.
		return
	}
	rec := domain.Record{
		BattleID: evt.BattleID,
		PlayerA:  p.PlayerA,
		PlayerB:  p.PlayerB,
		Round:    1,
		Deadline: p.Expiry,
		View:     e.lastView,
		HealthA:  p.HealthA,
		HealthB:  p.HealthB,
		LimitsA:  p.LimitsA,
		LimitsB:  p.LimitsB,
	}
	m := NewMachine()
	if !m.Initialize(e.self, rec) {
		e.logger.Warn("rejecting malformed match event", "battle_id", evt.BattleID)
		return
	}
	s := &session{machine: m, lastProgress: e.lastView}
	e.battles[evt.BattleID] = s
	e.logger.Info("battle matched",
		"battle_id", evt.BattleID,
		"opponent", m.Context().Opponent,
		"deadline", p.Expiry)
	e.persist(ctx, evt.BattleID, s)
	e.notify(evt.BattleID, m)
	e.maybeSettleLocked(ctx, evt.BattleID, s)
}

func (e *Engine) handleLockedLocked(ctx context.Context, evt event.Event) {
	s, ok := e.battles[evt.BattleID]
	if !ok || evt.Locked == nil {
		return
	}
	var changed bool
	if evt.Locked.Locker == e.self {
		changed = s.machine.ConfirmLock()
	} else {
		changed = s.machine.OpponentLock()
	}
	if !changed {
		return
	}
	s.lastProgress = e.lastView
	e.persist(ctx, evt.BattleID, s)
	e.notify(evt.BattleID, s.machine)
}

func (e *Engine) handleMovedLocked(ctx context.Context, evt event.Event) {
	s, ok := e.battles[evt.BattleID]
	if !ok || evt.Moved == nil {
		return
	}
	p := evt.Moved
	c := s.machine.Context()
	res := domain.RoundResult{
		Round:    p.Round,
		Deadline: p.Expiry,
	}
	if c.SelfIsA {
		res.MyHealth, res.OpponentHealth = p.HealthA, p.HealthB
		res.MyUsage, res.OpponentUsage = p.UsageA, p.UsageB
	} else {
		res.MyHealth, res.OpponentHealth = p.HealthB, p.HealthA
		res.MyUsage, res.OpponentUsage = p.UsageB, p.UsageA
	}
	if !s.machine.CompleteRound(res) {
		return
	}
	s.lastProgress = e.lastView
	e.logger.Info("round resolved",
		"battle_id", evt.BattleID,
		"round", p.Round,
		"my_health", res.MyHealth,
		"opponent_health", res.OpponentHealth)
	// Opens the next round unless a forced-end condition holds; then
	// the battle idles in RoundComplete awaiting final settlement.
	s.machine.ResetForNewRound()
	e.persist(ctx, evt.BattleID, s)
	e.notify(evt.BattleID, s.machine)
	e.maybeSettleLocked(ctx, evt.BattleID, s)
}

func (e *Engine) handleSettledLocked(ctx context.Context, evt event.Event) {
	s, ok := e.battles[evt.BattleID]
	if !ok || evt.Settled == nil {
		return
	}
	outcome := evt.Settled.OutcomeFor(e.self)
	if !s.machine.End(outcome) {
		return
	}
	e.logger.Info("battle settled", "battle_id", evt.BattleID, "outcome", outcome)
	e.notify(evt.BattleID, s.machine)
	e.dropLocked(ctx, evt.BattleID)
}

// dropLocked forgets a battle and its persisted snapshot. The seed
// cache is cleared once nothing is tracked; seeds are shared across
// battles and useless with none in play.
func (e *Engine) dropLocked(ctx context.Context, battleID string) {
	delete(e.battles, battleID)
	if e.snapshots != nil {
		if err := e.snapshots.ClearSnapshot(ctx, battleID); err != nil {
			e.logger.Warn("failed to clear battle snapshot", "battle_id", battleID, "error", err)
		}
	}
	if len(e.battles) == 0 {
		e.seeds.Clear()
	}
}

// maybeSettleLocked submits a settle transaction when, and only when,
// the round deadline is behind the clock, no settlement is in flight,
// and the deadline view's seed is known. At most one settle per round
// is ever in flight.
func (e *Engine) maybeSettleLocked(ctx context.Context, battleID string, s *session) {
	m := s.machine
	if m.State().Terminal() {
		return
	}
	c := m.Context()
	if !c.DeadlinePassed() {
		return
	}
	if c.SettlementInFlight || m.State() != domain.StateBothLocked {
		e.maybeRequeryLocked(ctx, battleID, s)
		return
	}

	seed, ok := e.seeds.Get(c.RoundDeadline)
	if !ok {
		fetched, found, err := e.transport.QuerySeed(ctx, c.RoundDeadline)
		if err != nil {
			e.logger.Warn("seed query failed", "battle_id", battleID, "view", c.RoundDeadline, "error", err)
			e.notifyError(battleID, err)
			return
		}
		if !found {
			// Not yet published; a later seed event retries.
			return
		}
		e.seeds.Put(c.RoundDeadline, fetched)
		seed = fetched
	}

	if !m.StartSettle() {
		return
	}
	spanCtx, span := e.tracer.Start(ctx, "engine.settle", trace.WithAttributes(
		attribute.String("battle.id", battleID),
		attribute.Int64("battle.round", int64(c.Round)),
		attribute.Int64("battle.deadline", int64(c.RoundDeadline)),
	))
	err := e.transport.SubmitSettle(spanCtx, battleID, seed)
	span.End()
	if err != nil {
		m.Fail()
		e.logger.Warn("settle submission failed", "battle_id", battleID, "round", c.Round, "error", err)
		e.persist(ctx, battleID, s)
		e.notifyError(battleID, err)
		return
	}
	e.logger.Info("settlement submitted", "battle_id", battleID, "round", c.Round, "view", c.RoundDeadline)
	e.persist(ctx, battleID, s)
	e.notify(battleID, m)
}

// maybeRequeryLocked re-queries the authoritative record for a battle
// stuck past its deadline with no progress for StalledViews views.
// The resolving event may simply have been missed.
func (e *Engine) maybeRequeryLocked(ctx context.Context, battleID string, s *session) {
	c := s.machine.Context()
	floor := s.lastProgress
	if c.RoundDeadline > floor {
		floor = c.RoundDeadline
	}
	if c.CurrentView <= floor+StalledViews {
		return
	}
	s.lastProgress = c.CurrentView
	e.logger.Info("battle stalled, re-querying ledger",
		"battle_id", battleID,
		"state", s.machine.State(),
		"view", c.CurrentView)
	e.resyncLocked(ctx, battleID)
}

// SelectMove records a provisional choice for the current round
// without committing it to the ledger. The returned bool reports
// whether the machine accepted the selection.
func (e *Engine) SelectMove(ctx context.Context, battleID string, move domain.MoveID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.battles[battleID]
	if !ok {
		return false, apperrors.WithMetadata(apperrors.CodeBattleUnknown, "battle is not tracked",
			map[string]string{"battle_id": battleID})
	}
	if !s.machine.SelectMove(move) {
		return false, nil
	}
	e.persist(ctx, battleID, s)
	e.notify(battleID, s.machine)
	return true, nil
}

// SubmitMove locks a move for the current round and submits it. The
// returned bool reports whether the machine accepted the move; a
// rejected move is not an error. A failed submission rolls the lock
// back so the move can be retried.
func (e *Engine) SubmitMove(ctx context.Context, battleID string, move domain.MoveID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.battles[battleID]
	if !ok {
		return false, apperrors.WithMetadata(apperrors.CodeBattleUnknown, "battle is not tracked",
			map[string]string{"battle_id": battleID})
	}
	if !s.machine.LockMove(move) {
		return false, nil
	}
	c := s.machine.Context()
	if err := e.transport.SubmitMove(ctx, battleID, move, c.RoundDeadline); err != nil {
		s.machine.RevertMove()
		e.persist(ctx, battleID, s)
		e.notifyError(battleID, err)
		return false, err
	}
	s.lastProgress = c.CurrentView
	e.logger.Info("move submitted", "battle_id", battleID, "round", c.Round, "move", move)
	e.persist(ctx, battleID, s)
	e.notify(battleID, s.machine)
	return true, nil
}

// Abandon stops tracking a battle and discards its snapshot. The
// ledger will still resolve the battle; abandoning only forfeits
// local participation.
func (e *Engine) Abandon(ctx context.Context, battleID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.battles[battleID]; !ok {
		return apperrors.WithMetadata(apperrors.CodeBattleUnknown, "battle is not tracked",
			map[string]string{"battle_id": battleID})
	}
	e.logger.Info("battle abandoned", "battle_id", battleID)
	e.dropLocked(ctx, battleID)
	return nil
}

// Resume restores one battle from its snapshot, reconciled against a
// fresh authoritative record. A battle the ledger no longer tracks is
// dropped along with its snapshot.
func (e *Engine) Resume(ctx context.Context, battleID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resyncLocked(ctx, battleID)
}

// ResumeAll restores every persisted battle. Errors on individual
// battles are logged and skipped so one bad snapshot cannot block the
// rest.
func (e *Engine) ResumeAll(ctx context.Context) error {
	if e.snapshots == nil {
		return nil
	}
	ids, err := e.snapshots.ListBattleIDs(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSnapshotDecode, "failed to list battle snapshots", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, battleID := range ids {
		if err := e.resyncLocked(ctx, battleID); err != nil {
			e.logger.Warn("failed to resume battle", "battle_id", battleID, "error", err)
		}
	}
	return nil
}

// resyncAllLocked reconciles every known battle, tracked or
// persisted, after the feed (re)connects. Events missed while
// disconnected are recovered from the authoritative records.
func (e *Engine) resyncAllLocked(ctx context.Context) {
	known := make(map[string]struct{}, len(e.battles))
	for battleID := range e.battles {
		known[battleID] = struct{}{}
	}
	if e.snapshots != nil {
		ids, err := e.snapshots.ListBattleIDs(ctx)
		if err != nil {
			e.logger.Warn("failed to list battle snapshots", "error", err)
		}
		for _, battleID := range ids {
			known[battleID] = struct{}{}
		}
	}
	for battleID := range known {
		if err := e.resyncLocked(ctx, battleID); err != nil {
			e.logger.Warn("failed to reconcile battle", "battle_id", battleID, "error", err)
		}
	}
}

// resyncLocked reconciles one battle against a freshly queried
// record. Prior local state comes from the live session when tracked,
// else from the snapshot store.
func (e *Engine) resyncLocked(ctx context.Context, battleID string) error {
	if battleID == "" {
		return domain.ErrEmptyBattleID
	}
	spanCtx, span := e.tracer.Start(ctx, "engine.resync",
		trace.WithAttributes(attribute.String("battle.id", battleID)))
	defer span.End()

	prevState := domain.StateUnspecified
	var prev *domain.Context
	if s, ok := e.battles[battleID]; ok {
		prevState = s.machine.State()
		c := s.machine.Context()
		prev = &c
	} else if e.snapshots != nil {
		snap, err := e.snapshots.LoadSnapshot(spanCtx, battleID)
		switch {
		case err == nil:
			prevState = snap.State
			prev = &snap.Context
		case errors.Is(err, storage.ErrNotFound):
		default:
			return apperrors.Wrap(apperrors.CodeSnapshotDecode, "failed to load battle snapshot", err)
		}
	}

	rec, found, err := e.transport.QueryBattle(spanCtx, battleID)
	if err != nil {
		return err
	}
	if !found {
		// Settled (or never existed) while we were away.
		e.logger.Info("battle no longer on ledger, dropping", "battle_id", battleID)
		e.dropLocked(spanCtx, battleID)
		return nil
	}
	if rec.View < e.lastView {
		rec.View = e.lastView
	}

	state, c, err := Reconcile(e.self, prevState, prev, rec)
	if err != nil {
		return err
	}
	if state.Terminal() {
		e.dropLocked(spanCtx, battleID)
		return nil
	}
	s := &session{machine: RestoreMachine(state, c), lastProgress: c.CurrentView}
	e.battles[battleID] = s
	e.logger.Info("battle reconciled",
		"battle_id", battleID,
		"state", state,
		"round", c.Round,
		"view", c.CurrentView)
	e.persist(spanCtx, battleID, s)
	e.notify(battleID, s.machine)
	e.maybeSettleLocked(spanCtx, battleID, s)
	return nil
}

// persist saves the battle's snapshot. Persistence failures are
// logged, never fatal; the ledger remains the source of truth.
func (e *Engine) persist(ctx context.Context, battleID string, s *session) {
	if e.snapshots == nil {
		return
	}
	snap := storage.Snapshot{State: s.machine.State(), Context: s.machine.Context()}
	if err := e.snapshots.SaveSnapshot(ctx, snap); err != nil {
		e.logger.Warn("failed to save battle snapshot", "battle_id", battleID, "error", err)
	}
}
