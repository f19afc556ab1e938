package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Scotty108/cascadian/internal/metrics"
	"github.com/Scotty108/cascadian/stores"
	"github.com/Scotty108/cascadian/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PRICE MONITOR - Marks open paper positions and fires exit rules
// ═══════════════════════════════════════════════════════════════════════════════
//
// A singleton background task: on each tick it snapshots the open positions,
// fetches current prices (bounded per request), updates marks, and evaluates
// exit rules in attachment order. Ticks are mutually exclusive; a new tick
// does not start until the previous one has completed.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultPollInterval between ticks.
	DefaultPollInterval = 10 * time.Second
	// fetchTimeout bounds one price request; on timeout the position is
	// left unchanged this tick.
	fetchTimeout = 5 * time.Second
)

// PriceSource supplies current prices for a condition's outcome.
type PriceSource interface {
	GetPrice(ctx context.Context, conditionID, outcome string) (decimal.Decimal, error)
}

// Config tunes the monitor. Zero values fall back to defaults.
type Config struct {
	PollInterval          time.Duration
	DefaultPriceTargetPct decimal.Decimal // percent above entry, default 20
	DefaultStopLossPct    decimal.Decimal // percent below entry, default 10
	FollowWalletExits     bool
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.DefaultPriceTargetPct.Sign() <= 0 {
		c.DefaultPriceTargetPct = decimal.NewFromInt(20)
	}
	if c.DefaultStopLossPct.Sign() <= 0 {
		c.DefaultStopLossPct = decimal.NewFromInt(10)
	}
	return c
}

// Status is a readable snapshot of the monitor's counters.
type Status struct {
	Running         bool      `json:"running"`
	ChecksPerformed int64     `json:"checksPerformed"`
	ExitsTriggered  int64     `json:"exitsTriggered"`
	LastCheck       time.Time `json:"lastCheck"`
	OpenPositions   int       `json:"openPositions"`
}

type sellObservation struct {
	wallet string
	at     time.Time
}

// Monitor is the background price poller.
type Monitor struct {
	mu      sync.Mutex
	cfg     Config
	running bool
	stopCh  chan struct{}

	positions *stores.PositionStore
	alerts    *stores.AlertStore
	prices    PriceSource

	checksPerformed int64
	exitsTriggered  int64
	lastCheck       time.Time

	// Observed sells by source wallets, keyed by condition:outcome.
	// Feeds the wallet_exit rule.
	sells map[string][]sellObservation

	tickMu sync.Mutex // serializes ticks
}

// New creates a monitor over the shared stores.
func New(cfg Config, positions *stores.PositionStore, alerts *stores.AlertStore, prices PriceSource) *Monitor {
	return &Monitor{
		cfg:       cfg.withDefaults(),
		positions: positions,
		alerts:    alerts,
		prices:    prices,
		sells:     make(map[string][]sellObservation),
	}
}

// Start launches the tick loop. Idempotent.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	interval := m.cfg.PollInterval
	m.mu.Unlock()

	go m.loop(stopCh, interval)
	log.Info().Dur("interval", interval).Msg("📡 Price monitor started")
}

// Stop cancels the tick loop; in-flight fetches are abandoned and open
// positions remain unchanged.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
	log.Info().Msg("Price monitor stopped")
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Status returns the monitor counters.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Running:         m.running,
		ChecksPerformed: m.checksPerformed,
		ExitsTriggered:  m.exitsTriggered,
		LastCheck:       m.lastCheck,
		OpenPositions:   len(m.positions.OpenIDs()),
	}
}

// RecordWalletSell notes that a watched wallet sold an outcome. The
// wallet_exit rule fires on observations after its attachment time.
func (m *Monitor) RecordWalletSell(wallet, conditionID, outcome string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := conditionID + ":" + outcome
	m.sells[key] = append(m.sells[key], sellObservation{wallet: types.NormalizeWallet(wallet), at: at})
}

func (m *Monitor) loop(stopCh chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-stopCh:
					cancel()
				case <-ctx.Done():
				}
			}()
			m.Tick(ctx)
			cancel()
		}
	}
}

// Tick runs one monitoring pass. Exported so tests and callers can drive the
// monitor without the timer; ticks are serialized.
func (m *Monitor) Tick(ctx context.Context) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	for _, id := range m.positions.OpenIDs() {
		pos, ok := m.positions.Get(id)
		if !ok {
			continue
		}

		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		price, err := m.prices.GetPrice(fetchCtx, pos.ConditionID, pos.Outcome)
		cancel()
		if err != nil || price.Sign() <= 0 {
			continue // no data this tick, position unchanged
		}

		m.positions.UpdateMark(id, price)
		pos, _ = m.positions.Get(id)

		if rule, fired := m.evaluate(&pos, price); fired {
			m.fireExit(&pos, price, rule)
		}
	}

	m.mu.Lock()
	m.checksPerformed++
	m.lastCheck = time.Now().UTC()
	m.mu.Unlock()
	metrics.MonitorChecks.Inc()
}

// evaluate walks the position's exit rules in attachment order and returns
// the first that fires.
func (m *Monitor) evaluate(pos *types.PaperPosition, current decimal.Decimal) (types.ExitRule, bool) {
	one := decimal.NewFromInt(1)
	for _, rule := range pos.ExitRules {
		switch rule.Kind {
		case types.ExitPriceTarget:
			if current.GreaterThanOrEqual(rule.PriceUp) {
				return rule, true
			}
		case types.ExitStopLoss:
			if current.LessThanOrEqual(rule.PriceDown) {
				return rule, true
			}
		case types.ExitTrailingStop:
			threshold := pos.HighWatermark.Mul(one.Sub(rule.TrailingPct))
			if pos.HighWatermark.Sign() > 0 && current.LessThanOrEqual(threshold) {
				return rule, true
			}
		case types.ExitWalletExit:
			if m.cfg.FollowWalletExits && m.walletSold(pos, rule) {
				return rule, true
			}
		}
	}
	return types.ExitRule{}, false
}

func (m *Monitor) walletSold(pos *types.PaperPosition, rule types.ExitRule) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	obs := m.sells[pos.ConditionID+":"+pos.Outcome]
	for _, o := range obs {
		if !o.at.After(rule.AttachedAt) {
			continue
		}
		for _, w := range rule.Wallets {
			if types.NormalizeWallet(w) == o.wallet {
				return true
			}
		}
	}
	return false
}

func (m *Monitor) fireExit(pos *types.PaperPosition, price decimal.Decimal, rule types.ExitRule) {
	closed, ok := m.positions.Close(pos.ID, types.PositionClosed, price, string(rule.Kind), time.Now().UTC())
	if !ok {
		return
	}

	m.mu.Lock()
	m.exitsTriggered++
	m.mu.Unlock()
	metrics.MonitorExits.WithLabelValues(string(rule.Kind)).Inc()

	log.Info().
		Str("position", closed.ID).
		Str("rule", string(rule.Kind)).
		Str("entry", closed.EntryPrice.StringFixed(4)).
		Str("exit", price.StringFixed(4)).
		Str("pnl", closed.RealizedPnL.StringFixed(2)).
		Msg("📊 Exit triggered")

	m.alerts.Push(types.Alert{
		ID:          uuid.NewString(),
		Type:        types.AlertExitTriggered,
		Priority:    types.PriorityHigh,
		Title:       "Exit triggered: " + string(rule.Kind),
		Message:     "Closed at " + price.StringFixed(4) + ", realized PnL " + closed.RealizedPnL.StringFixed(2),
		ConditionID: closed.ConditionID,
		PositionID:  closed.ID,
		DecisionID:  closed.DecisionID,
		CreatedAt:   time.Now().UTC(),
	})
}

// DefaultExitRules builds the default target/stop pair attached to every new
// paper position: price target at entry scaled up by targetPct percent and
// stop loss at entry scaled down by stopPct percent.
func DefaultExitRules(entry decimal.Decimal, cfg Config, at time.Time) []types.ExitRule {
	cfg = cfg.withDefaults()
	hundred := decimal.NewFromInt(100)
	up := entry.Mul(hundred.Add(cfg.DefaultPriceTargetPct)).Div(hundred)
	down := entry.Mul(hundred.Sub(cfg.DefaultStopLossPct)).Div(hundred)
	return []types.ExitRule{
		{Kind: types.ExitPriceTarget, PriceUp: up, AttachedAt: at},
		{Kind: types.ExitStopLoss, PriceDown: down, AttachedAt: at},
	}
}
