// Package pnl reconstructs per-wallet profit and loss from the raw on-chain
// event stream: order-book fills, position splits and merges, payout
// redemptions, and proxy ERC-1155 transfers.
//
// The engine is deterministic: identical inputs and options produce
// identical reports. Input-data faults are recorded as diagnostics and the
// computation continues; per-wallet errors never fail a batch.
package pnl

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Scotty108/cascadian/internal/metrics"
	"github.com/Scotty108/cascadian/ledger"
	"github.com/Scotty108/cascadian/types"
)

// Engine computes wallet PnL reports from an event source.
type Engine struct {
	src EventSource
}

// NewEngine builds a PnL engine over the given source.
func NewEngine(src EventSource) *Engine {
	return &Engine{src: src}
}

// positionState pairs the pure ledger state with its identity.
type positionState struct {
	conditionID  string
	outcomeIndex int
	pos          ledger.Position
}

type replayState struct {
	positions map[string]*positionState // "condition|outcome"
	arity     map[string]int            // outcome count per condition
	mixedTx   map[string]bool           // tx has both buys and sells
	diag      *Diagnostics
}

func posKey(conditionID string, outcome int) string {
	return conditionID + "|" + fmt.Sprint(outcome)
}

func (s *replayState) at(conditionID string, outcome int) *positionState {
	key := posKey(conditionID, outcome)
	p, ok := s.positions[key]
	if !ok {
		p = &positionState{conditionID: conditionID, outcomeIndex: outcome}
		s.positions[key] = p
	}
	return p
}

func (s *replayState) outcomesOf(conditionID string) int {
	if k, ok := s.arity[conditionID]; ok && k >= 2 {
		return k
	}
	return 2
}

// splitCost is the per-token cost basis of split-minted inventory for a
// condition with k outcomes; 0.50 for the binary case.
func splitCost(k int) decimal.Decimal {
	if k == 2 {
		return ledger.SplitCostBasis
	}
	return decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(k)))
}

// ComputeWalletPnL loads every relevant event for the wallet, replays them
// through the ledger, and emits the structured report.
func (e *Engine) ComputeWalletPnL(ctx context.Context, wallet string, opts *Options) (*Report, error) {
	wallet = types.NormalizeWallet(wallet)
	report := &Report{
		Wallet:        wallet,
		Realized:      decimal.Zero,
		Unrealized:    decimal.Zero,
		Total:         decimal.Zero,
		PositionValue: decimal.Zero,
	}
	diag := &report.Diagnostics
	diag.ImplicitSplitTokens = decimal.Zero

	events, err := e.assemble(ctx, wallet, diag)
	if err != nil {
		metrics.PnLRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("assemble events for %s: %w", wallet, err)
	}

	if len(events) == 0 {
		diag.Cohort = CohortNoData
		if opts != nil && opts.CohortOverride != "" {
			diag.Cohort = opts.CohortOverride
		}
		metrics.PnLRuns.WithLabelValues("ok").Inc()
		return report, nil
	}

	conditionIDs := make([]string, 0)
	condSeen := make(map[string]bool)
	for i := range events {
		if c := events[i].ConditionID; !condSeen[c] {
			condSeen[c] = true
			conditionIDs = append(conditionIDs, c)
		}
	}
	sort.Strings(conditionIDs)

	arity, err := e.src.OutcomeCounts(ctx, conditionIDs)
	if err != nil {
		// Transient fault: arity falls back to binary everywhere.
		diag.Warnings = append(diag.Warnings, "outcome counts unavailable, assuming binary")
		arity = nil
	}

	state := &replayState{
		positions: make(map[string]*positionState),
		arity:     arity,
		mixedTx:   mixedTxEvidence(events),
		diag:      diag,
	}

	resolutions, err := e.src.Resolutions(ctx, conditionIDs)
	if err != nil {
		return nil, fmt.Errorf("load resolutions for %s: %w", wallet, err)
	}

	for i := range events {
		e.replayEvent(state, &events[i], resolutions)
	}

	e.settle(state, resolutions, opts, report)

	diag.Cohort = classifyCohort(diag, opts)
	report.Total = report.Realized.Add(report.Unrealized)

	log.Debug().
		Str("wallet", wallet).
		Str("cohort", string(diag.Cohort)).
		Int("events", len(events)).
		Str("total", report.Total.StringFixed(2)).
		Msg("Wallet PnL computed")
	metrics.PnLRuns.WithLabelValues("ok").Inc()
	return report, nil
}

// mixedTxEvidence marks transactions containing both buy and sell fills:
// the signature of bundled or arbitrage flows whose sell deficits are
// implicit splits rather than genuine shorts.
func mixedTxEvidence(events []types.TradeEvent) map[string]bool {
	hasBuy := make(map[string]bool)
	hasSell := make(map[string]bool)
	for i := range events {
		ev := &events[i]
		if ev.SourceType != types.SourceCLOB {
			continue
		}
		tx := strings.ToLower(ev.TxHash)
		if ev.Side == types.SideBuy {
			hasBuy[tx] = true
		} else {
			hasSell[tx] = true
		}
	}
	mixed := make(map[string]bool)
	for tx := range hasBuy {
		if hasSell[tx] {
			mixed[tx] = true
		}
	}
	return mixed
}

func (e *Engine) replayEvent(s *replayState, ev *types.TradeEvent, resolutions map[string]types.Resolution) {
	switch ev.SourceType {
	case types.SourceCLOB:
		s.diag.ClobCount++
		e.replayFill(s, ev)
	case types.SourcePositionSplit:
		s.diag.NonClobCount++
		e.replaySplit(s, ev)
	case types.SourcePositionsMerge:
		s.diag.NonClobCount++
		e.replayMerge(s, ev)
	case types.SourcePayoutRedemption:
		s.diag.NonClobCount++
		e.replayRedemption(s, ev, resolutions)
	case types.SourceERC1155Transfer:
		s.diag.NonClobCount++
		ps := s.at(ev.ConditionID, ev.OutcomeIndex)
		ledger.ApplyMint(&ps.pos, ev.Tokens, ledger.SplitCostBasis)
	}
}

func (e *Engine) replayFill(s *replayState, ev *types.TradeEvent) {
	if ev.Tokens.Sign() <= 0 {
		return
	}
	ps := s.at(ev.ConditionID, ev.OutcomeIndex)
	price := ev.Price()

	if ev.Side == types.SideBuy {
		ledger.ApplyBuy(&ps.pos, ev.Tokens, price)
		return
	}

	_, overcap := ledger.ApplySellCapped(&ps.pos, ev.Tokens, price)
	if overcap.Sign() <= 0 {
		return
	}

	if s.mixedTx[strings.ToLower(ev.TxHash)] {
		// Bundled buy+sell flow: the deficit came from an unrecorded
		// split. Mint it on every outcome at the split cost, then
		// consume it from this one.
		e.mintImplicitSplit(s, ev.ConditionID, overcap)
		ledger.ApplySellCapped(&ps.pos, overcap, price)
		return
	}

	// No split evidence: this is a genuine crossing into a short.
	ledger.ApplySell(&ps.pos, overcap, price)
}

func (e *Engine) mintImplicitSplit(s *replayState, conditionID string, amount decimal.Decimal) {
	k := s.outcomesOf(conditionID)
	cost := splitCost(k)
	for i := 0; i < k; i++ {
		ps := s.at(conditionID, i)
		ledger.ApplyMint(&ps.pos, amount, cost)
	}
	s.diag.ImplicitSplitFromTrades++
	s.diag.ImplicitSplitTokens = s.diag.ImplicitSplitTokens.Add(amount)
}

func (e *Engine) replaySplit(s *replayState, ev *types.TradeEvent) {
	k := s.outcomesOf(ev.ConditionID)
	cost := splitCost(k)
	for i := 0; i < k; i++ {
		ps := s.at(ev.ConditionID, i)
		ledger.ApplyMint(&ps.pos, ev.Tokens, cost)
	}
}

// replayMerge burns one token of every outcome per USDC returned: the exact
// inverse of a split, valued at the split cost.
func (e *Engine) replayMerge(s *replayState, ev *types.TradeEvent) {
	k := s.outcomesOf(ev.ConditionID)
	cost := splitCost(k)
	for i := 0; i < k; i++ {
		ps := s.at(ev.ConditionID, i)
		_, overcap := ledger.ApplySellCapped(&ps.pos, ev.Tokens, cost)
		if overcap.Sign() > 0 {
			s.diag.Warnings = append(s.diag.Warnings,
				fmt.Sprintf("merge deficit %s on %s/%d", overcap, ev.ConditionID, i))
		}
	}
}

func (e *Engine) replayRedemption(s *replayState, ev *types.TradeEvent, resolutions map[string]types.Resolution) {
	outcome := ev.OutcomeIndex
	price := decimal.NewFromInt(1)
	if ev.Tokens.Sign() > 0 && ev.USDC.Sign() > 0 {
		price = ev.Price()
	}

	if outcome < 0 {
		// Condition-level redemption: attribute to the winning outcome.
		res, ok := resolutions[ev.ConditionID]
		if !ok {
			s.diag.Warnings = append(s.diag.Warnings,
				"redemption on unresolved condition "+ev.ConditionID)
			return
		}
		outcome = winningOutcome(&res)
		price = res.PayoutFor(outcome)
	}

	ps := s.at(ev.ConditionID, outcome)
	_, overcap := ledger.ApplySellCapped(&ps.pos, ev.Tokens, price)
	if overcap.Sign() <= 0 {
		return
	}
	if s.mixedTx[strings.ToLower(ev.TxHash)] {
		e.mintImplicitSplit(s, ev.ConditionID, overcap)
		ledger.ApplySellCapped(&ps.pos, overcap, price)
		return
	}
	// Redeeming more than we track without split evidence: clamp and count.
	s.diag.RedeemDeficitNoSplitEvidence++
}

// settle resolves or marks every touched position and accumulates the
// report totals.
func (e *Engine) settle(s *replayState, resolutions map[string]types.Resolution, opts *Options, report *Report) {
	keys := make([]string, 0, len(s.positions))
	for k := range s.positions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		ps := s.positions[key]
		if res, ok := resolutions[ps.conditionID]; ok {
			if !ps.pos.Amount.IsZero() {
				s.diag.ResolvedPositions++
			}
			ledger.SettleAtResolution(&ps.pos, res.PayoutFor(ps.outcomeIndex))
		} else if !ps.pos.Amount.IsZero() {
			s.diag.ActivePositions++
			mark := opts.mark(ps.conditionID, ps.outcomeIndex)
			report.Unrealized = report.Unrealized.Add(ps.pos.UnrealizedPnL(mark))
			report.PositionValue = report.PositionValue.Add(ps.pos.MarkValue(mark))
		}
		report.Realized = report.Realized.Add(ps.pos.RealizedPnL)
	}
}

func winningOutcome(res *types.Resolution) int {
	best, bestIdx := decimal.Zero, 0
	for i, p := range res.Payouts {
		if p.GreaterThan(best) {
			best, bestIdx = p, i
		}
	}
	return bestIdx
}

func classifyCohort(diag *Diagnostics, opts *Options) Cohort {
	if opts != nil && opts.CohortOverride != "" {
		return opts.CohortOverride
	}
	switch {
	case diag.ClobCount == 0 && diag.NonClobCount == 0:
		return CohortNoData
	case diag.NonClobCount > 0:
		return CohortMixed
	case diag.ActivePositions > 0:
		return CohortClobActive
	default:
		return CohortClobClosed
	}
}

// BatchResult captures one wallet's outcome inside a batch run.
type BatchResult struct {
	Wallet string
	Report *Report
	Err    error
}

// ComputeBatch runs the engine over many wallets with bounded concurrency.
// Per-wallet failures are captured in the result, never aborting the batch.
func (e *Engine) ComputeBatch(ctx context.Context, wallets []string, opts *Options, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = 4
	}
	results := make([]BatchResult, len(wallets))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, w := range wallets {
		wg.Add(1)
		go func(i int, wallet string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			report, err := e.ComputeWalletPnL(ctx, wallet, opts)
			results[i] = BatchResult{Wallet: wallet, Report: report, Err: err}
		}(i, w)
	}
	wg.Wait()
	return results
}
