package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Common vocabulary for the PnL and copy-trade engines
// ═══════════════════════════════════════════════════════════════════════════════
//
// This package has no internal dependencies so any layer can import it.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Side is the direction of a trade event.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Role distinguishes maker fills from taker fills on the order book.
type Role string

const (
	RoleMaker Role = "maker"
	RoleTaker Role = "taker"
)

// SourceType is the closed set of on-chain event kinds the ledger understands.
type SourceType string

const (
	SourceCLOB             SourceType = "CLOB"
	SourcePositionSplit    SourceType = "PositionSplit"
	SourcePositionsMerge   SourceType = "PositionsMerge"
	SourcePayoutRedemption SourceType = "PayoutRedemption"
	SourceERC1155Transfer  SourceType = "ERC1155Transfer"
	SourceDeposit          SourceType = "Deposit"
	SourceWithdrawal       SourceType = "Withdrawal"
)

// PnLBearing reports whether events of this type move profit and loss.
// Deposits and withdrawals fund the wallet but never touch the ledger.
func (s SourceType) PnLBearing() bool {
	return s != SourceDeposit && s != SourceWithdrawal
}

// TradeEvent is the atomic input to both engines. Events are created
// upstream, are immutable, and are globally deduplicated by EventID.
//
// OutcomeIndex is -1 for condition-level events (splits, merges,
// redemptions reported per condition rather than per outcome).
type TradeEvent struct {
	EventID       string
	WalletAddress string
	TxHash        string
	BlockNumber   int64
	Timestamp     time.Time
	ConditionID   string
	OutcomeIndex  int
	TokenID       string
	Side          Side
	Role          Role
	Tokens        decimal.Decimal
	USDC          decimal.Decimal
	SourceType    SourceType
	MarketID      string
}

// Notional is the USD value of the event.
func (e *TradeEvent) Notional() decimal.Decimal {
	return e.USDC
}

// Price is the implied per-token price, zero when no tokens moved.
func (e *TradeEvent) Price() decimal.Decimal {
	if e.Tokens.IsZero() {
		return decimal.Zero
	}
	return e.USDC.Div(e.Tokens)
}

// Resolution is a settled condition's normalised payout vector,
// indexed by outcome.
type Resolution struct {
	ConditionID string
	Payouts     []decimal.Decimal
	ResolvedAt  time.Time
}

// PayoutFor returns the payout for an outcome, zero when out of range.
func (r *Resolution) PayoutFor(outcome int) decimal.Decimal {
	if outcome < 0 || outcome >= len(r.Payouts) {
		return decimal.Zero
	}
	return r.Payouts[outcome]
}

// ═══════════════════════════════════════════════════════════════════════════════
// COPY-TRADE TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// DecisionStatus is the outcome of one consensus evaluation.
type DecisionStatus string

const (
	StatusExecuted  DecisionStatus = "executed"
	StatusSimulated DecisionStatus = "simulated"
	StatusSkipped   DecisionStatus = "skipped"
	StatusFiltered  DecisionStatus = "filtered"
	StatusError     DecisionStatus = "error"
)

// Decision is the immutable record of one consensus evaluation.
// Decisions are append-only and ring-evicted from the log store.
type Decision struct {
	ID             string
	Timestamp      time.Time
	SourceWallet   string
	MatchedWallets []string
	ConditionID    string
	MarketID       string
	Side           Side
	Outcome        string
	Price          decimal.Decimal
	Size           decimal.Decimal
	Status         DecisionStatus
	Reason         string
	TxHash         string
	DryRun         bool
}

// PositionStatus tracks a paper position through its lifecycle.
// open → closed (exit rule or manual) or open → resolved (market settled);
// neither terminal state reopens.
type PositionStatus string

const (
	PositionOpen     PositionStatus = "open"
	PositionClosed   PositionStatus = "closed"
	PositionResolved PositionStatus = "resolved"
)

// PaperPosition is a simulated position derived from a Decision.
// It references its decision and source event by id only; exit rules are
// owned by the position.
type PaperPosition struct {
	ID            string
	DecisionID    string
	SourceEventID string
	SourceWallet  string
	ConditionID   string
	MarketID      string
	Side          Side
	Outcome       string
	OutcomeIndex  int
	EntryPrice    decimal.Decimal
	Size          decimal.Decimal
	CurrentPrice  decimal.Decimal
	HighWatermark decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	ExitPrice     decimal.Decimal
	ExitReason    string
	Status        PositionStatus
	OpenedAt      time.Time
	ClosedAt      time.Time
	ExitRules     []ExitRule
}

// ExitRuleKind tags the exit-rule variant.
type ExitRuleKind string

const (
	ExitPriceTarget  ExitRuleKind = "price_target"
	ExitStopLoss     ExitRuleKind = "stop_loss"
	ExitTrailingStop ExitRuleKind = "trailing_stop"
	ExitWalletExit   ExitRuleKind = "wallet_exit"
)

// ExitRule is one exit condition attached to a paper position. Rules are
// evaluated in attachment order; the first that fires wins.
//
//   - price_target: fires when current >= PriceUp
//   - stop_loss:    fires when current <= PriceDown
//   - trailing_stop: fires when current <= highWatermark * (1 - TrailingPct)
//   - wallet_exit:  fires when any listed wallet has been observed selling
//     the position's outcome after AttachedAt. The upstream trigger policy
//     for this rule is a known gap; the observed-sell interpretation here is
//     the documented decision.
type ExitRule struct {
	Kind        ExitRuleKind
	PriceUp     decimal.Decimal
	PriceDown   decimal.Decimal
	TrailingPct decimal.Decimal
	Wallets     []string
	AttachedAt  time.Time
}

// ═══════════════════════════════════════════════════════════════════════════════
// ALERTS
// ═══════════════════════════════════════════════════════════════════════════════

// AlertPriority orders alerts for display and notification routing.
type AlertPriority string

const (
	PriorityLow      AlertPriority = "low"
	PriorityMedium   AlertPriority = "medium"
	PriorityHigh     AlertPriority = "high"
	PriorityCritical AlertPriority = "critical"
)

// AlertType names the well-known alert kinds emitted by the engines.
type AlertType string

const (
	AlertConsensusTriggered AlertType = "consensus_triggered"
	AlertPositionOpened     AlertType = "position_opened"
	AlertExitTriggered      AlertType = "exit_triggered"
)

// Alert is a typed notification linked to engine entities by id.
type Alert struct {
	ID          string
	Type        AlertType
	Priority    AlertPriority
	Title       string
	Message     string
	ConditionID string
	PositionID  string
	DecisionID  string
	CreatedAt   time.Time
	Read        bool
	Dismissed   bool
}

// NormalizeWallet lowercases a wallet address. Wallet equality is
// case-insensitive everywhere in the core.
func NormalizeWallet(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
