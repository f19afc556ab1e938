package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Scotty108/cascadian/internal/metrics"
	"github.com/Scotty108/cascadian/types"
)

// RefreshTimeout bounds one leaderboard refresh end to end.
const RefreshTimeout = 600 * time.Second

// FactSource loads the leaderboard fact table.
type FactSource interface {
	LoadFactRows(ctx context.Context) ([]TradeRow, error)
}

// Publisher writes the finished leaderboard behind an atomic rename. The
// OLAP client implements the _new / _old / current dance.
type Publisher interface {
	PublishLeaderboard(ctx context.Context, version string, entries []Entry) error
}

// Step times one pipeline stage for the result record.
type Step struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"durationMs"`
	Rows       int    `json:"rows"`
}

// Result is the structured outcome of one refresh.
type Result struct {
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	Version         string    `json:"version"`
	Wallets         int       `json:"wallets"`
	Steps           []Step    `json:"steps"`
	TotalDurationMs int64     `json:"totalDurationMs"`
	RefreshedAt     time.Time `json:"refreshedAt"`
}

// Pipeline is the batch analytic over the trade fact table.
type Pipeline struct {
	source    FactSource
	publisher Publisher
	now       func() time.Time // injectable clock for tests
}

// New builds a pipeline over the fact source and publisher.
func New(source FactSource, publisher Publisher) *Pipeline {
	return &Pipeline{source: source, publisher: publisher, now: time.Now}
}

// Refresh runs the full gate-and-metric chain and publishes atomically.
// Idempotent: with no new source data the published rows are identical
// modulo refreshedAt.
func (p *Pipeline) Refresh(ctx context.Context) *Result {
	ctx, cancel := context.WithTimeout(ctx, RefreshTimeout)
	defer cancel()

	started := p.now().UTC()
	res := &Result{RefreshedAt: started, Version: started.Format("20060102T150405Z")}
	fail := func(stage string, err error) *Result {
		res.Error = fmt.Sprintf("%s: %v", stage, err)
		res.TotalDurationMs = p.now().UTC().Sub(started).Milliseconds()
		metrics.LeaderboardRefreshes.WithLabelValues("error").Inc()
		log.Error().Str("stage", stage).Err(err).Msg("Leaderboard refresh failed")
		return res
	}

	stepStart := p.now()
	rows, err := p.source.LoadFactRows(ctx)
	if err != nil {
		return fail("load", err)
	}
	res.Steps = append(res.Steps, Step{Name: "load", DurationMs: p.now().Sub(stepStart).Milliseconds(), Rows: len(rows)})

	stepStart = p.now()
	entries := p.Compute(rows, started)
	res.Steps = append(res.Steps, Step{Name: "compute", DurationMs: p.now().Sub(stepStart).Milliseconds(), Rows: len(entries)})

	stepStart = p.now()
	if err := p.publisher.PublishLeaderboard(ctx, res.Version, entries); err != nil {
		return fail("publish", err)
	}
	res.Steps = append(res.Steps, Step{Name: "publish", DurationMs: p.now().Sub(stepStart).Milliseconds(), Rows: len(entries)})

	res.Success = true
	res.Wallets = len(entries)
	res.TotalDurationMs = p.now().UTC().Sub(started).Milliseconds()
	metrics.LeaderboardRefreshes.WithLabelValues("ok").Inc()
	log.Info().Int("wallets", res.Wallets).Int64("ms", res.TotalDurationMs).Msg("🏆 Leaderboard refreshed")
	return res
}

// Compute runs gates and metrics over the fact rows as of now, returning
// ranked entries for every eligible wallet.
func (p *Pipeline) Compute(rows []TradeRow, now time.Time) []Entry {
	byWallet := make(map[string][]*TradeRow)
	for i := range rows {
		w := types.NormalizeWallet(rows[i].Wallet)
		byWallet[w] = append(byWallet[w], &rows[i])
	}

	entries := make([]Entry, 0)
	for wallet, all := range byWallet {
		entry, ok := evaluateWallet(wallet, all, now)
		if ok {
			entries = append(entries, entry)
		}
	}

	// Ranking signal: dailyLogGrowth over the 14-active-day window,
	// descending; wallet id breaks ties deterministically.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Last14.DailyLogGrowth != entries[j].Last14.DailyLogGrowth {
			return entries[i].Last14.DailyLogGrowth > entries[j].Last14.DailyLogGrowth
		}
		return entries[i].Wallet < entries[j].Wallet
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// evaluateWallet applies the seven gates in order and, when all pass,
// computes the metric vector.
func evaluateWallet(wallet string, all []*TradeRow, now time.Time) (Entry, bool) {
	resolved := make([]*TradeRow, 0, len(all))
	days := make(map[string]bool)
	marketSet := make(map[string]bool)
	lastTrade := time.Time{}
	costs := make([]float64, 0, len(all))

	for _, r := range all {
		days[r.activeDay()] = true
		marketSet[r.ConditionID] = true
		if r.EntryTime.After(lastTrade) {
			lastTrade = r.EntryTime
		}
		if r.resolved() {
			resolved = append(resolved, r)
			cost, _ := r.CostUsd.Float64()
			costs = append(costs, cost)
		}
	}

	// Gates 1-4: activity volume and recency.
	if len(days) <= MinActiveDays {
		return Entry{}, false
	}
	if len(marketSet) <= MinMarketsTraded {
		return Entry{}, false
	}
	if len(resolved) <= MinResolvedTrades {
		return Entry{}, false
	}
	if lastTrade.Before(now.AddDate(0, 0, -MaxDaysSinceTrade)) {
		return Entry{}, false
	}

	// Gate 5: median per-trade cost.
	if median(costs) < MinMedianCostUsd {
		return Entry{}, false
	}

	// Gate 6: lifetime log growth.
	growths := make([]float64, 0, len(resolved))
	for _, r := range resolved {
		growths = append(growths, logGrowth(r.ratio()))
	}
	if mean(growths) <= 0 {
		return Entry{}, false
	}

	// Gate 7: log growth over the last 14 active trading days.
	recent := lastActiveDays(resolved, 14)
	recentGrowths := make([]float64, 0, len(recent))
	for _, r := range recent {
		recentGrowths = append(recentGrowths, logGrowth(r.ratio()))
	}
	if len(recentGrowths) == 0 || mean(recentGrowths) <= 0 {
		return Entry{}, false
	}

	return Entry{
		Wallet:         wallet,
		ActiveDays:     len(days),
		MarketsTraded:  len(marketSet),
		ResolvedTrades: len(resolved),
		Lifetime:       computeWindow(resolved),
		Last14:         computeWindow(recent),
		Last7:          computeWindow(lastActiveDays(resolved, 7)),
	}, true
}
