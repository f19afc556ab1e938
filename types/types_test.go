package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeWallet(t *testing.T) {
	assert.Equal(t, "0xabc", NormalizeWallet("0xABC"))
	assert.Equal(t, "0xabc", NormalizeWallet("  0xAbC "))
}

func TestSourceTypePnLBearing(t *testing.T) {
	bearing := []SourceType{SourceCLOB, SourcePositionSplit, SourcePositionsMerge, SourcePayoutRedemption, SourceERC1155Transfer}
	for _, s := range bearing {
		assert.True(t, s.PnLBearing(), "%s", s)
	}
	assert.False(t, SourceDeposit.PnLBearing())
	assert.False(t, SourceWithdrawal.PnLBearing())
}

func TestTradeEventPrice(t *testing.T) {
	ev := TradeEvent{Tokens: decimal.NewFromInt(100), USDC: decimal.NewFromInt(40)}
	assert.Equal(t, "0.4", ev.Price().String())

	empty := TradeEvent{}
	assert.True(t, empty.Price().IsZero(), "zero tokens imply zero price")
}

func TestResolutionPayoutFor(t *testing.T) {
	r := Resolution{Payouts: []decimal.Decimal{decimal.Zero, decimal.NewFromInt(1)}}
	assert.True(t, r.PayoutFor(0).IsZero())
	assert.Equal(t, "1", r.PayoutFor(1).String())
	assert.True(t, r.PayoutFor(5).IsZero(), "out of range is zero")
	assert.True(t, r.PayoutFor(-1).IsZero())
}
