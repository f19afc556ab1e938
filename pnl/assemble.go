package pnl

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Scotty108/cascadian/types"
)

// Paired-outcome detection tolerances. Policy constants with the cited
// defaults; see the package tests for the patterns they separate.
var (
	// PairTokenTolerance is the max relative difference between the two
	// legs' token amounts for them to count as a matched pair.
	PairTokenTolerance = decimal.NewFromFloat(0.01)
	// PairPriceTolerance is the max deviation of the two legs' price sum
	// from 1.00.
	PairPriceTolerance = decimal.NewFromFloat(0.05)
)

// classRank orders events within one transaction: splits expose their
// minted inventory before the sells that consume it; merges and redemptions
// settle last.
func classRank(e *types.TradeEvent) int {
	switch e.SourceType {
	case types.SourcePositionSplit, types.SourceERC1155Transfer:
		return 0
	case types.SourceCLOB:
		if e.Side == types.SideSell {
			return 1
		}
		return 2
	case types.SourcePositionsMerge:
		return 3
	case types.SourcePayoutRedemption:
		return 4
	default:
		return 5
	}
}

// assemble loads, dedupes, pairs and sorts the wallet's unified event list.
func (e *Engine) assemble(ctx context.Context, wallet string, diag *Diagnostics) ([]types.TradeEvent, error) {
	fills, err := e.src.FillsForWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}

	txSet := make(map[string]bool)
	for i := range fills {
		if h := fills[i].TxHash; h != "" {
			txSet[strings.ToLower(h)] = true
		}
	}
	txHashes := make([]string, 0, len(txSet))
	for h := range txSet {
		txHashes = append(txHashes, h)
	}
	sort.Strings(txHashes)

	condEvents, err := e.src.ConditionEvents(ctx, wallet, txHashes)
	if err != nil {
		return nil, err
	}
	transfers, err := e.src.ProxyTransfers(ctx, wallet)
	if err != nil {
		return nil, err
	}

	// Global dedupe by event id across all sources.
	seen := make(map[string]bool)
	events := make([]types.TradeEvent, 0, len(fills)+len(condEvents)+len(transfers))
	for _, batch := range [][]types.TradeEvent{fills, condEvents, transfers} {
		for _, ev := range batch {
			if ev.EventID == "" || seen[ev.EventID] {
				continue
			}
			seen[ev.EventID] = true
			if !ev.SourceType.PnLBearing() {
				continue
			}
			// Unmapped tokens are skipped with a diagnostic, never fatal.
			if ev.ConditionID == "" {
				diag.OmegaInputsMissing = append(diag.OmegaInputsMissing, ev.TokenID)
				continue
			}
			events = append(events, ev)
		}
	}

	events = removePairedLegs(events, diag)

	sort.SliceStable(events, func(i, j int) bool {
		a, b := &events[i], &events[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.TxHash != b.TxHash {
			return a.TxHash < b.TxHash
		}
		if ra, rb := classRank(a), classRank(b); ra != rb {
			return ra < rb
		}
		return a.EventID < b.EventID
	})

	return events, nil
}

// removePairedLegs drops one leg of every synthetic split: a matched pair of
// CLOB trades on opposite outcomes of the same condition, in one
// transaction, with equal token amounts (within PairTokenTolerance) and
// prices summing to ~1.00 (within PairPriceTolerance).
//
// When the transaction also carries a PositionSplit on the condition the buy
// leg goes (the tokens came from the split); otherwise the sell leg goes
// (there is no inventory source for it). Either way the pair no longer
// double-counts.
func removePairedLegs(events []types.TradeEvent, diag *Diagnostics) []types.TradeEvent {
	// Conditions with an explicit split, per tx.
	splitInTx := make(map[string]bool) // tx|condition
	byTx := make(map[string][]int)
	for i := range events {
		ev := &events[i]
		key := strings.ToLower(ev.TxHash)
		if ev.SourceType == types.SourcePositionSplit {
			splitInTx[key+"|"+ev.ConditionID] = true
		}
		if ev.SourceType == types.SourceCLOB {
			byTx[key] = append(byTx[key], i)
		}
	}

	drop := make(map[int]bool)
	one := decimal.NewFromInt(1)
	for tx, idxs := range byTx {
		for a := 0; a < len(idxs); a++ {
			for b := a + 1; b < len(idxs); b++ {
				i, j := idxs[a], idxs[b]
				if drop[i] || drop[j] {
					continue
				}
				x, y := &events[i], &events[j]
				if x.ConditionID != y.ConditionID || x.OutcomeIndex == y.OutcomeIndex {
					continue
				}
				if x.Side == y.Side {
					continue
				}
				if !amountsMatch(x.Tokens, y.Tokens) {
					continue
				}
				priceSum := x.Price().Add(y.Price())
				if priceSum.Sub(one).Abs().GreaterThan(PairPriceTolerance) {
					continue
				}

				buy, sell := i, j
				if x.Side == types.SideSell {
					buy, sell = j, i
				}
				if splitInTx[tx+"|"+x.ConditionID] {
					drop[buy] = true
				} else {
					drop[sell] = true
				}
				diag.PairedOutcomeLegsRemoved++
			}
		}
	}

	if len(drop) == 0 {
		return events
	}
	out := events[:0]
	for i := range events {
		if !drop[i] {
			out = append(out, events[i])
		}
	}
	return out
}

func amountsMatch(a, b decimal.Decimal) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	larger := decimal.Max(a.Abs(), b.Abs())
	return a.Sub(b).Abs().Div(larger).LessThanOrEqual(PairTokenTolerance)
}
