// Package execution is the pluggable sink for copy-trade executions.
//
// Two variants exist: the dry-run adapter simulates every trade, and the
// live adapter refuses by default. The reference implementation never places
// a real order; the live path exists so the refuse gates are exercised and
// logged the same way a real adapter would be.
package execution

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Scotty108/cascadian/types"
)

// EnableLiveEnv must equal the literal "true" for the live adapter to
// proceed past the refuse gate.
const EnableLiveEnv = "ENABLE_LIVE_COPY_TRADE"

// Well-known refusal reasons surfaced in decision records.
const (
	ReasonNotionalExceedsMax      = "notional_exceeds_max"
	ReasonLiveDisabled            = "live_execution_disabled"
	ReasonLiveAdapterUnconfigured = "live_adapter_not_configured"
)

// Request describes one trade the engine wants executed.
type Request struct {
	ConditionID        string
	MarketID           string
	Side               types.Side
	Outcome            string
	Price              decimal.Decimal
	Size               decimal.Decimal
	MaxCopyPerTradeUsd decimal.Decimal
}

// Notional is the USD value of the request.
func (r Request) Notional() decimal.Decimal {
	return r.Price.Mul(r.Size)
}

// Result is the adapter's verdict, a variant over
// executed{txHash} | simulated | skipped{reason} | error{message}.
type Result struct {
	Status       types.DecisionStatus
	TxHash       string
	Reason       string
	ErrorMessage string
}

// Adapter executes (or refuses) a single trade request.
type Adapter interface {
	Execute(ctx context.Context, req Request) Result
}

// New picks the adapter variant: dry-run or live-refuse.
func New(dryRun bool) Adapter {
	if dryRun {
		return &DryRunAdapter{}
	}
	return &LiveAdapter{}
}

// DryRunAdapter simulates every execution, subject to the per-trade cap.
type DryRunAdapter struct{}

// Execute returns simulated unless the notional exceeds the per-trade max.
func (a *DryRunAdapter) Execute(_ context.Context, req Request) Result {
	if req.MaxCopyPerTradeUsd.Sign() > 0 && req.Notional().GreaterThan(req.MaxCopyPerTradeUsd) {
		return Result{Status: types.StatusSkipped, Reason: ReasonNotionalExceedsMax}
	}
	log.Debug().
		Str("condition", req.ConditionID).
		Str("side", string(req.Side)).
		Str("price", req.Price.StringFixed(4)).
		Str("size", req.Size.StringFixed(2)).
		Msg("Simulated execution")
	return Result{Status: types.StatusSimulated}
}

// LiveAdapter is the refuse-by-default live path. Even when the environment
// gate is open it skips, because no live order client is configured in this
// build.
type LiveAdapter struct{}

// Execute refuses: live_execution_disabled without the env gate, otherwise
// live_adapter_not_configured.
func (a *LiveAdapter) Execute(_ context.Context, req Request) Result {
	if os.Getenv(EnableLiveEnv) != "true" {
		return Result{Status: types.StatusSkipped, Reason: ReasonLiveDisabled}
	}
	log.Warn().
		Str("condition", req.ConditionID).
		Msg("Live execution requested but no live adapter is configured")
	return Result{Status: types.StatusSkipped, Reason: ReasonLiveAdapterUnconfigured}
}
