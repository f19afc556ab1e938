package leaderboard

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refreshNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// makeRows builds resolved trades for one wallet spread over `days` distinct
// calendar days and `markets` conditions, ending `endDaysAgo` days before
// refreshNow. ratio is the uniform pnl/cost of every trade.
func makeRows(wallet string, trades, days, markets, endDaysAgo int, cost, ratio float64) []TradeRow {
	rows := make([]TradeRow, 0, trades)
	for i := 0; i < trades; i++ {
		day := refreshNow.AddDate(0, 0, -endDaysAgo-(i%days))
		entry := day.Truncate(24 * time.Hour).Add(time.Duration(10+i) * time.Minute)
		rows = append(rows, TradeRow{
			Wallet:      wallet,
			ConditionID: fmt.Sprintf("0xc%d", i%markets),
			EntryTime:   entry,
			ResolvedAt:  entry.Add(90 * time.Minute),
			IsClosed:    true,
			CostUsd:     decimal.NewFromFloat(cost),
			PnlUsd:      decimal.NewFromFloat(cost * ratio),
		})
	}
	return rows
}

func TestPercentileAndMedian(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 3.0, median(xs))
	assert.Equal(t, 1.0, percentile(xs, 0))
	assert.Equal(t, 5.0, percentile(xs, 100))
	assert.Equal(t, 2.0, percentile(xs, 25))
	assert.InDelta(t, 3.5, median([]float64{1, 2, 5, 9}), 1e-9)
	assert.True(t, math.IsNaN(percentile(nil, 50)))
}

func TestWinsorizeClampsTails(t *testing.T) {
	xs := make([]float64, 100)
	for i := range xs {
		xs[i] = float64(i + 1)
	}
	w := winsorize(xs, 2.5, 97.5)
	lo, hi := percentile(xs, 2.5), percentile(xs, 97.5)
	assert.Equal(t, lo, w[0])
	assert.Equal(t, hi, w[99])
	assert.Equal(t, 50.0, w[49], "interior values untouched")
}

func TestExpectedValue(t *testing.T) {
	// 2 winners (0.5, 0.3), 2 losers (-0.2, -0.4): winRate 0.5,
	// ev = 0.5*0.4 - 0.5*0.3 = 0.05.
	ev := expectedValue([]float64{0.5, 0.3, -0.2, -0.4})
	assert.InDelta(t, 0.05, ev, 1e-9)

	assert.InDelta(t, 0.4, expectedValue([]float64{0.4, 0.4}), 1e-9, "all winners")
	assert.InDelta(t, -0.3, expectedValue([]float64{-0.3}), 1e-9, "all losers")
}

func TestLogGrowthFloor(t *testing.T) {
	assert.InDelta(t, math.Log1p(-0.99), logGrowth(-1), 1e-12, "total loss clamps at the floor")
	assert.InDelta(t, math.Log1p(0.25), logGrowth(0.25), 1e-12)
}

func TestHoldTimeGuard(t *testing.T) {
	entry := refreshNow

	h, ok := holdMinutes(&TradeRow{EntryTime: entry, ResolvedAt: entry.Add(90 * time.Minute)})
	require.True(t, ok)
	assert.Equal(t, 90.0, h)

	// Negative by <= 5 minutes: clock skew, one minute.
	h, ok = holdMinutes(&TradeRow{EntryTime: entry, ResolvedAt: entry.Add(-3 * time.Minute)})
	require.True(t, ok)
	assert.Equal(t, 1.0, h)

	// More negative: unusable.
	_, ok = holdMinutes(&TradeRow{EntryTime: entry, ResolvedAt: entry.Add(-10 * time.Minute)})
	assert.False(t, ok)

	_, ok = holdMinutes(&TradeRow{EntryTime: entry})
	assert.False(t, ok, "unresolved trades have no hold time")
}

func TestLastActiveDaysWindow(t *testing.T) {
	rows := makeRows("0xw", 20, 20, 9, 0, 12, 0.1) // one trade per day, 20 days
	ptrs := make([]*TradeRow, len(rows))
	for i := range rows {
		ptrs[i] = &rows[i]
	}
	recent := lastActiveDays(ptrs, 14)
	assert.Len(t, recent, 14)
	for _, r := range recent {
		assert.False(t, r.EntryTime.Before(refreshNow.AddDate(0, 0, -13).Truncate(24*time.Hour)))
	}
}

func TestComputeWindowUniformWinners(t *testing.T) {
	rows := makeRows("0xw", 10, 5, 9, 0, 20, 0.25)
	ptrs := make([]*TradeRow, len(rows))
	for i := range rows {
		ptrs[i] = &rows[i]
	}
	m := computeWindow(ptrs)
	assert.Equal(t, 10, m.Trades)
	assert.Equal(t, 1.0, m.WinRate)
	assert.InDelta(t, 0.25, m.EV, 1e-9)
	assert.InDelta(t, math.Log1p(0.25), m.LogGrowthPerTrade, 1e-9)
	assert.InDelta(t, 2.0, m.TradesPerActiveDay, 1e-9)
	assert.InDelta(t, 2*math.Log1p(0.25), m.DailyLogGrowth, 1e-9)
	require.NotNil(t, m.MedianHoldMinutes)
	assert.Equal(t, 90.0, *m.MedianHoldMinutes)
}

// A qualifying wallet passes every gate and lands on the board.
func TestPipelinePassesAllGates(t *testing.T) {
	rows := makeRows("0xgood", 40, 10, 9, 1, 12, 0.10)
	entries := New(nil, nil).Compute(rows, refreshNow)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "0xgood", e.Wallet)
	assert.Equal(t, 1, e.Rank)
	assert.Equal(t, 40, e.ResolvedTrades)
	assert.Equal(t, 10, e.ActiveDays)
	assert.Equal(t, 9, e.MarketsTraded)
	assert.Positive(t, e.Last14.DailyLogGrowth)
}

func TestGateFailures(t *testing.T) {
	cases := []struct {
		name string
		rows []TradeRow
	}{
		{"too few active days", makeRows("0xw", 40, 5, 9, 1, 12, 0.10)},
		{"too few markets", makeRows("0xw", 40, 10, 8, 1, 12, 0.10)},
		{"too few resolved trades", makeRows("0xw", 30, 10, 9, 1, 12, 0.10)},
		{"stale wallet", makeRows("0xw", 40, 10, 9, 6, 12, 0.10)},
		{"median cost too low", makeRows("0xw", 40, 10, 9, 1, 9, 0.10)},
		{"negative lifetime growth", makeRows("0xw", 40, 10, 9, 1, 12, -0.10)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entries := New(nil, nil).Compute(tc.rows, refreshNow)
			assert.Empty(t, entries)
		})
	}
}

// S6: lifetime growth positive but the last-14-active-day growth negative:
// excluded at gate 7.
func TestRecentGrowthGateExcludesS6Wallet(t *testing.T) {
	// 26 older winners across 13 days, then 14 recent losers across 14
	// days: lifetime mean positive, recent-window mean negative.
	old := makeRows("0xw", 26, 13, 9, 20, 12, 0.30)
	recent := makeRows("0xw", 14, 14, 9, 1, 12, -0.05)
	rows := append(old, recent...)

	// Sanity: lifetime growth is positive.
	total := 0.0
	for i := range rows {
		total += logGrowth(rows[i].ratio())
	}
	require.Positive(t, total/float64(len(rows)))

	entries := New(nil, nil).Compute(rows, refreshNow)
	assert.Empty(t, entries, "gate 7 rejects the wallet")
}

func TestRankingByRecentDailyLogGrowth(t *testing.T) {
	a := makeRows("0xaaa", 40, 10, 9, 1, 12, 0.05)
	b := makeRows("0xbbb", 40, 10, 9, 1, 12, 0.30)
	entries := New(nil, nil).Compute(append(a, b...), refreshNow)
	require.Len(t, entries, 2)
	assert.Equal(t, "0xbbb", entries[0].Wallet)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 2, entries[1].Rank)
}

// Idempotence: the same facts yield identical entries on back-to-back runs.
func TestComputeIdempotent(t *testing.T) {
	rows := makeRows("0xgood", 40, 10, 9, 1, 12, 0.10)
	first := New(nil, nil).Compute(rows, refreshNow)
	second := New(nil, nil).Compute(rows, refreshNow)
	assert.Equal(t, first, second)
}

type stubSource struct{ rows []TradeRow }

func (s *stubSource) LoadFactRows(context.Context) ([]TradeRow, error) { return s.rows, nil }

type capturePublisher struct {
	version string
	entries []Entry
	calls   int
}

func (c *capturePublisher) PublishLeaderboard(_ context.Context, version string, entries []Entry) error {
	c.version = version
	c.entries = entries
	c.calls++
	return nil
}

func TestRefreshPublishesAtomically(t *testing.T) {
	src := &stubSource{rows: makeRows("0xgood", 40, 10, 9, 1, 12, 0.10)}
	pub := &capturePublisher{}
	p := New(src, pub)
	p.now = func() time.Time { return refreshNow }

	res := p.Refresh(context.Background())
	require.True(t, res.Success)
	assert.Equal(t, 1, res.Wallets)
	assert.Equal(t, 1, pub.calls)
	assert.Len(t, pub.entries, 1)
	assert.NotEmpty(t, res.Version)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, "load", res.Steps[0].Name)
	assert.Equal(t, "compute", res.Steps[1].Name)
	assert.Equal(t, "publish", res.Steps[2].Name)
}

func TestRefreshReportsLoadFailure(t *testing.T) {
	p := New(&failingSource{}, &capturePublisher{})
	res := p.Refresh(context.Background())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "load")
}

type failingSource struct{}

func (f *failingSource) LoadFactRows(context.Context) ([]TradeRow, error) {
	return nil, fmt.Errorf("olap unavailable")
}
