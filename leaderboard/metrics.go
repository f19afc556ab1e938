// Package leaderboard computes the gated wallet leaderboard from the trade
// fact table: a strict chain of eligibility gates followed by lifetime and
// windowed performance metrics, published through an atomic table rename.
package leaderboard

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Gate thresholds, applied in order. All inclusive as written.
const (
	MinActiveDays     = 5  // gate 1: distinct active trading days > 5
	MinMarketsTraded  = 8  // gate 2: distinct markets > 8
	MinResolvedTrades = 30 // gate 3: resolved trades with positive cost > 30
	MaxDaysSinceTrade = 5  // gate 4: traded within the last 5 calendar days
	MinMedianCostUsd  = 10 // gate 5: median per-trade cost >= $10

	// logGrowthFloor clamps pnl/cost before the log1p transform so a
	// total-loss trade stays finite.
	logGrowthFloor = -0.99

	// winsorLo and winsorHi are the per-wallet winsorisation percentiles.
	winsorLo = 2.5
	winsorHi = 97.5

	// holdTimeGraceMinutes: a resolvedAt earlier than entry by at most
	// this much is clock skew and counts as a one-minute hold; anything
	// more negative is unusable.
	holdTimeGraceMinutes = 5
)

// TradeRow is one resolved-or-open trade from the fact table.
type TradeRow struct {
	Wallet      string
	ConditionID string
	EntryTime   time.Time
	ResolvedAt  time.Time // zero when unresolved
	IsClosed    bool
	CostUsd     decimal.Decimal
	PnlUsd      decimal.Decimal
}

func (r *TradeRow) resolved() bool {
	return r.IsClosed && r.CostUsd.Sign() > 0
}

func (r *TradeRow) ratio() float64 {
	cost, _ := r.CostUsd.Float64()
	pnl, _ := r.PnlUsd.Float64()
	return pnl / cost
}

// activeDay is the UTC calendar date of the trade's entry.
func (r *TradeRow) activeDay() string {
	return r.EntryTime.UTC().Format("2006-01-02")
}

// WindowMetrics is the metric vector for one window of trades.
type WindowMetrics struct {
	Trades             int      `json:"trades"`
	WinRate            float64  `json:"winRate"`
	EV                 float64  `json:"ev"`
	WinsorizedEV       float64  `json:"winsorizedEv"`
	LogGrowthPerTrade  float64  `json:"logGrowthPerTrade"`
	TradesPerActiveDay float64  `json:"tradesPerActiveDay"`
	DailyLogGrowth     float64  `json:"dailyLogGrowth"`
	MedianHoldMinutes  *float64 `json:"medianHoldMinutes"`
}

// Entry is one wallet's leaderboard row.
type Entry struct {
	Wallet         string        `json:"wallet"`
	Rank           int           `json:"rank"`
	ActiveDays     int           `json:"activeDays"`
	MarketsTraded  int           `json:"marketsTraded"`
	ResolvedTrades int           `json:"resolvedTrades"`
	Lifetime       WindowMetrics `json:"lifetime"`
	Last14         WindowMetrics `json:"last14"`
	Last7          WindowMetrics `json:"last7"`
}

// percentile computes the p-th percentile (0..100) of xs with linear
// interpolation. xs need not be sorted; empty input yields NaN.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func median(xs []float64) float64 { return percentile(xs, 50) }

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// logGrowth is log(1 + max(ratio, floor)).
func logGrowth(ratio float64) float64 {
	return math.Log1p(math.Max(ratio, logGrowthFloor))
}

// winsorize clamps xs to its own [lo, hi] percentiles.
func winsorize(xs []float64, lo, hi float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	low, high := percentile(xs, lo), percentile(xs, hi)
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = math.Min(math.Max(x, low), high)
	}
	return out
}

// expectedValue is winRate * median(winning ratios) - (1 - winRate) *
// |median(losing ratios)| over the given pnl/cost ratios.
func expectedValue(ratios []float64) float64 {
	if len(ratios) == 0 {
		return 0
	}
	var winners, losers []float64
	for _, r := range ratios {
		if r > 0 {
			winners = append(winners, r)
		} else {
			losers = append(losers, r)
		}
	}
	winRate := float64(len(winners)) / float64(len(ratios))
	ev := 0.0
	if len(winners) > 0 {
		ev += winRate * median(winners)
	}
	if len(losers) > 0 {
		ev -= (1 - winRate) * math.Abs(median(losers))
	}
	return ev
}

// computeWindow builds the metric vector over one slice of resolved trades.
func computeWindow(rows []*TradeRow) WindowMetrics {
	m := WindowMetrics{Trades: len(rows)}
	if len(rows) == 0 {
		return m
	}

	ratios := make([]float64, 0, len(rows))
	growths := make([]float64, 0, len(rows))
	var holds []float64
	days := make(map[string]bool)
	wins, losses := 0, 0

	for _, r := range rows {
		ratio := r.ratio()
		ratios = append(ratios, ratio)
		growths = append(growths, logGrowth(ratio))
		days[r.activeDay()] = true

		pnl, _ := r.PnlUsd.Float64()
		if pnl > 0 {
			wins++
		} else {
			losses++
		}

		if h, ok := holdMinutes(r); ok {
			holds = append(holds, h)
		}
	}

	if wins+losses > 0 {
		m.WinRate = float64(wins) / float64(wins+losses)
	}
	m.EV = expectedValue(ratios)
	m.WinsorizedEV = expectedValue(winsorize(ratios, winsorLo, winsorHi))
	m.LogGrowthPerTrade = mean(growths)
	m.TradesPerActiveDay = float64(len(rows)) / float64(len(days))
	m.DailyLogGrowth = m.LogGrowthPerTrade * m.TradesPerActiveDay
	if len(holds) > 0 {
		h := median(holds)
		m.MedianHoldMinutes = &h
	}
	return m
}

// holdMinutes applies the hold-time guard: a small negative hold is clock
// skew (one minute); a large negative hold is unusable.
func holdMinutes(r *TradeRow) (float64, bool) {
	if r.ResolvedAt.IsZero() {
		return 0, false
	}
	minutes := r.ResolvedAt.Sub(r.EntryTime).Minutes()
	if minutes >= 0 {
		return minutes, true
	}
	if minutes >= -holdTimeGraceMinutes {
		return 1, true
	}
	return 0, false
}

// lastActiveDays returns the trades whose entry date falls within the
// wallet's most recent n active trading days.
func lastActiveDays(rows []*TradeRow, n int) []*TradeRow {
	daySet := make(map[string]bool)
	for _, r := range rows {
		daySet[r.activeDay()] = true
	}
	days := make([]string, 0, len(daySet))
	for d := range daySet {
		days = append(days, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	if len(days) > n {
		days = days[:n]
	}
	keep := make(map[string]bool, len(days))
	for _, d := range days {
		keep[d] = true
	}

	out := make([]*TradeRow, 0, len(rows))
	for _, r := range rows {
		if keep[r.activeDay()] {
			out = append(out, r)
		}
	}
	return out
}
