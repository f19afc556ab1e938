package pnl

import (
	"github.com/shopspring/decimal"
)

// Cohort classifies a wallet's event mix. It governs the confidence signal
// attached to the report; the computation itself is uniform across cohorts.
type Cohort string

const (
	CohortNoData     Cohort = "NO_DATA"     // no events at all
	CohortClobClosed Cohort = "CLOB_CLOSED" // order-book only, everything closed or resolved
	CohortClobActive Cohort = "CLOB_ACTIVE" // order-book only, open positions remain
	CohortMixed      Cohort = "MIXED"       // any non-CLOB event present
)

// Diagnostics carries the per-run counters and warnings. Consistency faults
// are recorded here, never thrown.
type Diagnostics struct {
	Cohort             Cohort   `json:"cohort"`
	ClobCount          int      `json:"clobCount"`
	NonClobCount       int      `json:"nonClobCount"`
	ResolvedPositions  int      `json:"resolvedPositions"`
	ActivePositions    int      `json:"activePositions"`
	OmegaInputsMissing []string `json:"omegaInputsMissing"`
	Warnings           []string `json:"warnings"`

	SellDeficitNoMapping         int             `json:"sellDeficitNoMapping"`
	RedeemDeficitNoSplitEvidence int             `json:"redeemDeficitNoSplitEvidence"`
	ImplicitSplitFromTrades      int             `json:"implicitSplitFromTrades"`
	ImplicitSplitTokens          decimal.Decimal `json:"implicitSplitTokens"`
	PairedOutcomeLegsRemoved     int             `json:"pairedOutcomeLegsRemoved"`
}

// Report is the structured PnL output for one wallet. Its fields are
// deterministic functions of the event stream and the options.
type Report struct {
	Wallet        string          `json:"wallet"`
	Realized      decimal.Decimal `json:"realized"`
	Unrealized    decimal.Decimal `json:"unrealized"`
	Total         decimal.Decimal `json:"total"`
	PositionValue decimal.Decimal `json:"positionValue"`
	Diagnostics   Diagnostics     `json:"diagnostics"`
}

// Options tune one computation.
type Options struct {
	// PriceOverrides maps conditionId to the current YES price in [0,1].
	// Outcome 0 marks at the price, outcome 1 at its complement; absent
	// conditions mark at the 0.5 default.
	PriceOverrides map[string]decimal.Decimal

	// CohortOverride forces the reported cohort when non-empty.
	CohortOverride Cohort
}

// DefaultMark values open positions when no price override is supplied.
var DefaultMark = decimal.NewFromFloat(0.5)

func (o *Options) mark(conditionID string, outcomeIndex int) decimal.Decimal {
	if o == nil || o.PriceOverrides == nil {
		return DefaultMark
	}
	price, ok := o.PriceOverrides[conditionID]
	if !ok {
		return DefaultMark
	}
	switch outcomeIndex {
	case 0:
		return price
	case 1:
		return decimal.NewFromInt(1).Sub(price)
	default:
		return DefaultMark
	}
}
