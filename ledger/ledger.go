// Package ledger implements signed-position accounting with weighted-average
// cost basis. It is pure: no I/O, no clocks, no logging. The PnL engine folds
// event streams through these primitives and owns all attribution policy
// (proxy matching, implicit splits, resolution lookup).
//
// Sign conventions:
//
//	Amount > 0  long,  TotalCost > 0 is the cost basis of the inventory
//	Amount < 0  short, TotalCost < 0 is the credit received opening it
//
// In both cases TotalCost/Amount is the (positive) average price.
package ledger

import "github.com/shopspring/decimal"

// SplitCostBasis is the canonical per-token cost of inventory minted by a
// binary position split: one USDC buys one token of each of two outcomes.
// Tunable; the cited default is 0.50.
var SplitCostBasis = decimal.NewFromFloat(0.5)

// Position is the ledger state for one (conditionId, outcomeIndex) pair.
type Position struct {
	Amount      decimal.Decimal // signed token inventory, negative = short
	TotalCost   decimal.Decimal // signed cost basis, see package doc
	RealizedPnL decimal.Decimal

	// Lineage counters for cost-basis attribution diagnostics.
	FromSplits decimal.Decimal // tokens minted by splits / transfers
	FromClob   decimal.Decimal // tokens bought on the order book
}

// AvgPrice is the weighted-average entry price of the open inventory,
// zero for a flat position.
func (p *Position) AvgPrice() decimal.Decimal {
	if p.Amount.IsZero() {
		return decimal.Zero
	}
	return p.TotalCost.Div(p.Amount)
}

// UnrealizedPnL marks the open inventory at the given price.
func (p *Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	return p.Amount.Mul(mark).Sub(p.TotalCost)
}

// MarkValue is the position's value at the given mark price.
func (p *Position) MarkValue(mark decimal.Decimal) decimal.Decimal {
	return p.Amount.Mul(mark)
}

// closeLong drains up to qty from a long position at price, realizing
// (price - avg) per token. Returns the quantity actually closed.
func (p *Position) closeLong(qty, price decimal.Decimal) decimal.Decimal {
	if p.Amount.Sign() <= 0 || qty.Sign() <= 0 {
		return decimal.Zero
	}
	closed := decimal.Min(qty, p.Amount)
	avg := p.TotalCost.Div(p.Amount)
	p.RealizedPnL = p.RealizedPnL.Add(price.Sub(avg).Mul(closed))
	p.TotalCost = p.TotalCost.Sub(avg.Mul(closed))
	p.Amount = p.Amount.Sub(closed)
	return closed
}

// closeShort covers up to qty of a short position at price, realizing
// (shortAvg - price) per token. Returns the quantity actually covered.
func (p *Position) closeShort(qty, price decimal.Decimal) decimal.Decimal {
	if p.Amount.Sign() >= 0 || qty.Sign() <= 0 {
		return decimal.Zero
	}
	covered := decimal.Min(qty, p.Amount.Neg())
	avg := p.TotalCost.Div(p.Amount)
	p.RealizedPnL = p.RealizedPnL.Add(avg.Sub(price).Mul(covered))
	p.TotalCost = p.TotalCost.Add(avg.Mul(covered))
	p.Amount = p.Amount.Add(covered)
	return covered
}

// ApplyBuy applies a buy of qty tokens at price. A buy against a short first
// covers min(qty, |amount|) at the short average, then opens a long with the
// remainder (close-then-cross).
func ApplyBuy(p *Position, qty, price decimal.Decimal) {
	if qty.Sign() <= 0 {
		return
	}
	covered := p.closeShort(qty, price)
	remainder := qty.Sub(covered)
	if remainder.Sign() > 0 {
		p.Amount = p.Amount.Add(remainder)
		p.TotalCost = p.TotalCost.Add(price.Mul(remainder))
		p.FromClob = p.FromClob.Add(remainder)
	}
}

// ApplySell applies a sell of qty tokens at price. A sell through zero closes
// the long at its average, then opens a short with the remainder at the trade
// price: exactly two ledger effects.
func ApplySell(p *Position, qty, price decimal.Decimal) decimal.Decimal {
	if qty.Sign() <= 0 {
		return decimal.Zero
	}
	before := p.RealizedPnL
	closed := p.closeLong(qty, price)
	remainder := qty.Sub(closed)
	if remainder.Sign() > 0 {
		p.Amount = p.Amount.Sub(remainder)
		p.TotalCost = p.TotalCost.Sub(price.Mul(remainder))
	}
	return p.RealizedPnL.Sub(before)
}

// ApplySellCapped sells at most the tracked long inventory and reports the
// excess as overcap instead of opening a short. The caller decides whether
// the overcap is an implicit split (mint then re-sell) or a genuine crossing
// (follow up with ApplySell).
func ApplySellCapped(p *Position, qty, price decimal.Decimal) (realized, overcap decimal.Decimal) {
	if qty.Sign() <= 0 {
		return decimal.Zero, decimal.Zero
	}
	before := p.RealizedPnL
	closed := p.closeLong(qty, price)
	return p.RealizedPnL.Sub(before), qty.Sub(closed)
}

// ApplyMint adds qty tokens acquired outside the order book (position split,
// proxy ERC-1155 transfer) at the given per-token cost basis.
func ApplyMint(p *Position, qty, costPerToken decimal.Decimal) {
	if qty.Sign() <= 0 {
		return
	}
	covered := p.closeShort(qty, costPerToken)
	remainder := qty.Sub(covered)
	if remainder.Sign() > 0 {
		p.Amount = p.Amount.Add(remainder)
		p.TotalCost = p.TotalCost.Add(costPerToken.Mul(remainder))
	}
	p.FromSplits = p.FromSplits.Add(qty)
}

// SettleAtResolution drains the position at the resolved payout and returns
// the realized delta. For a long q at payout p with average a this is
// (p-a)·q; for a short it is (s-p)·|q|.
func SettleAtResolution(p *Position, payout decimal.Decimal) decimal.Decimal {
	if p.Amount.IsZero() {
		p.TotalCost = decimal.Zero
		return decimal.Zero
	}
	delta := payout.Mul(p.Amount).Sub(p.TotalCost)
	p.RealizedPnL = p.RealizedPnL.Add(delta)
	p.Amount = decimal.Zero
	p.TotalCost = decimal.Zero
	return delta
}
