// Package metrics exposes the core's prometheus instrumentation.
// Counters are registered on the default registry and served from the API
// mux at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts copy-trade decisions by status.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cascadian",
		Subsystem: "copytrade",
		Name:      "decisions_total",
		Help:      "Copy-trade decisions emitted, by status.",
	}, []string{"status"})

	// MonitorChecks counts completed price-monitor ticks.
	MonitorChecks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cascadian",
		Subsystem: "monitor",
		Name:      "checks_total",
		Help:      "Price monitor ticks completed.",
	})

	// MonitorExits counts exit rules fired.
	MonitorExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cascadian",
		Subsystem: "monitor",
		Name:      "exits_total",
		Help:      "Paper positions closed by exit rules, by rule kind.",
	}, []string{"rule"})

	// PnLRuns counts per-wallet PnL computations.
	PnLRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cascadian",
		Subsystem: "pnl",
		Name:      "runs_total",
		Help:      "Wallet PnL computations, by outcome.",
	}, []string{"outcome"})

	// LeaderboardRefreshes counts leaderboard refresh attempts.
	LeaderboardRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cascadian",
		Subsystem: "leaderboard",
		Name:      "refreshes_total",
		Help:      "Leaderboard refresh attempts, by outcome.",
	}, []string{"outcome"})
)
