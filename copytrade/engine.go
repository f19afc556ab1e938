package copytrade

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Scotty108/cascadian/execution"
	"github.com/Scotty108/cascadian/internal/metrics"
	"github.com/Scotty108/cascadian/monitor"
	"github.com/Scotty108/cascadian/stores"
	"github.com/Scotty108/cascadian/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// COPY-TRADE ENGINE - Multi-wallet consensus tracking
// ═══════════════════════════════════════════════════════════════════════════════
//
// Watches a configured set of source wallets, detects consensus on a market
// outcome, opens simulated positions through the execution adapter, and
// hands them to the price monitor.
//
// State is mutated only by the single event-processing path; the per-market
// trigger is single-shot.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Skip and filter reasons surfaced in decision records.
const (
	ReasonMarketNotInFilter   = "market_not_in_filter"
	ReasonNotionalBelowMin    = "notional_below_min"
	ReasonWalletCounted       = "wallet_already_counted"
	ReasonAlreadyTriggered    = "already_triggered_for_this_market"
	ReasonWaitingForConsensus = "waiting_for_consensus"
)

// marketTracker accumulates wallets that bet the same way on one consensus
// key until the trigger fires.
type marketTracker struct {
	consensusKey   string
	conditionID    string
	marketID       string
	side           types.Side
	outcome        string
	walletsThatBet map[string]*types.TradeEvent // wallet -> first qualifying event
	triggered      bool
	triggeredAt    time.Time
}

// Archiver durably persists decisions and paper positions. Optional; the
// gorm archive implements it.
type Archiver interface {
	SaveDecision(d types.Decision) error
	SavePosition(p types.PaperPosition) error
}

// Engine is the consensus tracker and decision emitter.
type Engine struct {
	mu sync.Mutex

	cfg      Config
	wallets  map[string]bool
	allow    map[string]bool // nil = all conditions
	trackers map[string]*marketTracker
	seen     map[string]bool
	running  bool

	adapter   execution.Adapter
	logStore  *stores.LogStore
	alerts    *stores.AlertStore
	positions *stores.PositionStore
	mon       *monitor.Monitor
	archive   Archiver
}

// New validates the configuration and builds an engine. Configuration errors
// are fatal to the engine but not the process.
func New(cfg Config, adapter execution.Adapter, logStore *stores.LogStore, alerts *stores.AlertStore, positions *stores.PositionStore, mon *monitor.Monitor) (*Engine, error) {
	canonical, err := cfg.canonicalWallets()
	if err != nil {
		return nil, err
	}
	cfg.Wallets = canonical

	watch := make(map[string]bool, len(canonical))
	for _, w := range canonical {
		watch[w] = true
	}

	var allow map[string]bool
	if len(cfg.ConditionAllowList) > 0 {
		allow = make(map[string]bool, len(cfg.ConditionAllowList))
		for _, c := range cfg.ConditionAllowList {
			allow[strings.ToLower(c)] = true
		}
	}

	log.Info().
		Int("wallets", len(canonical)).
		Str("mode", string(cfg.ConsensusMode)).
		Bool("dry_run", cfg.DryRun).
		Msg("🎯 Copy-trade engine ready")

	return &Engine{
		cfg:       cfg,
		wallets:   watch,
		allow:     allow,
		trackers:  make(map[string]*marketTracker),
		seen:      make(map[string]bool),
		adapter:   adapter,
		logStore:  logStore,
		alerts:    alerts,
		positions: positions,
		mon:       mon,
	}, nil
}

// SetArchive attaches a durable decision/position archive.
func (e *Engine) SetArchive(a Archiver) {
	e.mu.Lock()
	e.archive = a
	e.mu.Unlock()
}

// ConsensusKey scopes consensus tracking to (condition, side, outcome).
func ConsensusKey(conditionID string, side types.Side, outcome string) string {
	return strings.ToLower(conditionID) + ":" + string(side) + ":" + strings.ToLower(outcome)
}

// OutcomeLabel names an outcome index for consensus keys and display.
func OutcomeLabel(index int) string {
	switch index {
	case 0:
		return "yes"
	case 1:
		return "no"
	default:
		return fmt.Sprintf("o%d", index)
	}
}

// Run consumes events from the ingress channel until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, events <-chan types.TradeEvent) {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.ProcessTradeEvent(ctx, &ev)
		}
	}
}

// ProcessTradeEvent runs one consensus evaluation. It returns the emitted
// decision, or nil for silent drops (unwatched wallet, duplicate trade id).
func (e *Engine) ProcessTradeEvent(ctx context.Context, ev *types.TradeEvent) *types.Decision {
	wallet := types.NormalizeWallet(ev.WalletAddress)

	e.mu.Lock()
	if !e.wallets[wallet] {
		e.mu.Unlock()
		return nil
	}
	// Dedup before anything that could touch a store, so replaying an
	// event id is a true no-op.
	if e.seen[ev.EventID] {
		e.mu.Unlock()
		return nil
	}
	e.seen[ev.EventID] = true
	e.mu.Unlock()

	// A watched wallet selling feeds the wallet_exit rule regardless of
	// what the consensus tracker decides below.
	if ev.Side == types.SideSell && e.mon != nil {
		e.mon.RecordWalletSell(wallet, ev.ConditionID, OutcomeLabel(ev.OutcomeIndex), ev.Timestamp)
	}

	if e.allow != nil && !e.allow[strings.ToLower(ev.ConditionID)] {
		return e.emit(e.newDecision(ev, wallet, nil, types.StatusFiltered, ReasonMarketNotInFilter))
	}

	if e.cfg.MinSourceNotionalUsd.Sign() > 0 && ev.Notional().LessThan(e.cfg.MinSourceNotionalUsd) {
		return e.emit(e.newDecision(ev, wallet, nil, types.StatusFiltered, ReasonNotionalBelowMin))
	}

	outcome := OutcomeLabel(ev.OutcomeIndex)
	key := ConsensusKey(ev.ConditionID, ev.Side, outcome)

	e.mu.Lock()
	tracker, ok := e.trackers[key]
	if !ok {
		tracker = &marketTracker{
			consensusKey:   key,
			conditionID:    ev.ConditionID,
			marketID:       ev.MarketID,
			side:           ev.Side,
			outcome:        outcome,
			walletsThatBet: make(map[string]*types.TradeEvent),
		}
		e.trackers[key] = tracker
	}

	if _, counted := tracker.walletsThatBet[wallet]; counted {
		e.mu.Unlock()
		return e.emit(e.newDecision(ev, wallet, nil, types.StatusSkipped, ReasonWalletCounted))
	}
	tracker.walletsThatBet[wallet] = ev

	if tracker.triggered {
		e.mu.Unlock()
		return e.emit(e.newDecision(ev, wallet, nil, types.StatusSkipped, ReasonAlreadyTriggered))
	}

	required := e.cfg.requiredCount(len(e.cfg.Wallets))
	unique := len(tracker.walletsThatBet)
	if unique < required {
		e.mu.Unlock()
		reason := fmt.Sprintf("%s: %d/%d", ReasonWaitingForConsensus, unique, required)
		return e.emit(e.newDecision(ev, wallet, nil, types.StatusSkipped, reason))
	}

	tracker.triggered = true
	tracker.triggeredAt = time.Now().UTC()
	matched := make([]string, 0, len(tracker.walletsThatBet))
	for w := range tracker.walletsThatBet {
		matched = append(matched, w)
	}
	e.mu.Unlock()

	return e.trigger(ctx, ev, wallet, matched)
}

// trigger invokes the execution adapter and, on success, opens the paper
// position and fires alerts. The only suspension point in event processing.
func (e *Engine) trigger(ctx context.Context, ev *types.TradeEvent, wallet string, matched []string) *types.Decision {
	outcome := OutcomeLabel(ev.OutcomeIndex)
	price := ev.Price()

	result := e.adapter.Execute(ctx, execution.Request{
		ConditionID:        ev.ConditionID,
		MarketID:           ev.MarketID,
		Side:               ev.Side,
		Outcome:            outcome,
		Price:              price,
		Size:               ev.Tokens,
		MaxCopyPerTradeUsd: e.cfg.MaxCopyPerTradeUsd,
	})

	d := e.newDecision(ev, wallet, matched, result.Status, result.Reason)
	d.TxHash = result.TxHash
	if result.Status == types.StatusError {
		d.Reason = result.ErrorMessage
	}

	log.Info().
		Str("key", ConsensusKey(ev.ConditionID, ev.Side, outcome)).
		Strs("matched", matched).
		Str("status", string(result.Status)).
		Msg("⚡ Consensus triggered")

	if result.Status == types.StatusExecuted || result.Status == types.StatusSimulated {
		e.openPosition(ev, d, outcome, price)
	}

	return e.emit(d)
}

func (e *Engine) openPosition(ev *types.TradeEvent, d *types.Decision, outcome string, price decimal.Decimal) {
	now := time.Now().UTC()
	pos := types.PaperPosition{
		ID:            uuid.NewString(),
		DecisionID:    d.ID,
		SourceEventID: ev.EventID,
		SourceWallet:  d.SourceWallet,
		ConditionID:   ev.ConditionID,
		MarketID:      ev.MarketID,
		Side:          ev.Side,
		Outcome:       outcome,
		OutcomeIndex:  ev.OutcomeIndex,
		EntryPrice:    price,
		Size:          ev.Tokens,
		CurrentPrice:  price,
		HighWatermark: price,
		Status:        types.PositionOpen,
		OpenedAt:      now,
		ExitRules:     monitor.DefaultExitRules(price, e.cfg.Monitor, now),
	}
	e.positions.Add(pos)
	if e.mon != nil {
		e.mon.Start()
	}

	e.alerts.Push(types.Alert{
		ID:          uuid.NewString(),
		Type:        types.AlertConsensusTriggered,
		Priority:    types.PriorityHigh,
		Title:       "Consensus triggered",
		Message:     fmt.Sprintf("%d wallets agree on %s %s %s", len(d.MatchedWallets), ev.ConditionID, ev.Side, outcome),
		ConditionID: ev.ConditionID,
		DecisionID:  d.ID,
		CreatedAt:   now,
	})
	e.alerts.Push(types.Alert{
		ID:          uuid.NewString(),
		Type:        types.AlertPositionOpened,
		Priority:    types.PriorityMedium,
		Title:       "Paper position opened",
		Message:     fmt.Sprintf("%s %s @ %s size %s", ev.ConditionID, outcome, price.StringFixed(4), ev.Tokens.StringFixed(2)),
		ConditionID: ev.ConditionID,
		PositionID:  pos.ID,
		DecisionID:  d.ID,
		CreatedAt:   now,
	})

	if e.archive != nil {
		if err := e.archive.SavePosition(pos); err != nil {
			log.Error().Err(err).Str("position", pos.ID).Msg("Failed to archive position")
		}
	}
}

func (e *Engine) newDecision(ev *types.TradeEvent, wallet string, matched []string, status types.DecisionStatus, reason string) *types.Decision {
	return &types.Decision{
		ID:             uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		SourceWallet:   wallet,
		MatchedWallets: matched,
		ConditionID:    ev.ConditionID,
		MarketID:       ev.MarketID,
		Side:           ev.Side,
		Outcome:        OutcomeLabel(ev.OutcomeIndex),
		Price:          ev.Price(),
		Size:           ev.Tokens,
		Status:         status,
		Reason:         reason,
		DryRun:         e.cfg.DryRun,
	}
}

// emit records the decision in the log store (executed and simulated
// decisions always, the others only when logging is enabled), metrics, and
// the archive, then returns it.
func (e *Engine) emit(d *types.Decision) *types.Decision {
	metrics.DecisionsTotal.WithLabelValues(string(d.Status)).Inc()
	executing := d.Status == types.StatusExecuted || d.Status == types.StatusSimulated
	if e.logStore != nil && (e.cfg.EnableLogging || executing) {
		e.logStore.Append(*d)
	}
	if e.archive != nil {
		if err := e.archive.SaveDecision(*d); err != nil {
			log.Error().Err(err).Str("decision", d.ID).Msg("Failed to archive decision")
		}
	}
	return d
}

// TrackerSnapshot is the consensus progress of one key, for the API.
type TrackerSnapshot struct {
	ConsensusKey string     `json:"consensusKey"`
	ConditionID  string     `json:"conditionId"`
	Side         types.Side `json:"side"`
	Outcome      string     `json:"outcome"`
	Wallets      []string   `json:"wallets"`
	Triggered    bool       `json:"triggered"`
	TriggeredAt  time.Time  `json:"triggeredAt,omitempty"`
}

// Snapshot lists the current market trackers.
func (e *Engine) Snapshot() []TrackerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TrackerSnapshot, 0, len(e.trackers))
	for _, t := range e.trackers {
		wallets := make([]string, 0, len(t.walletsThatBet))
		for w := range t.walletsThatBet {
			wallets = append(wallets, w)
		}
		out = append(out, TrackerSnapshot{
			ConsensusKey: t.consensusKey,
			ConditionID:  t.conditionID,
			Side:         t.side,
			Outcome:      t.outcome,
			Wallets:      wallets,
			Triggered:    t.triggered,
			TriggeredAt:  t.triggeredAt,
		})
	}
	return out
}
