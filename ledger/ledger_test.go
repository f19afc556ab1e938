package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestApplyBuyThenSellRoundTrip(t *testing.T) {
	var p Position
	ApplyBuy(&p, d(100), d(0.40))
	assert.True(t, p.Amount.Equal(d(100)))
	assert.True(t, p.TotalCost.Equal(d(40)))
	assert.True(t, p.AvgPrice().Equal(d(0.40)))

	realized := ApplySell(&p, d(100), d(0.55))
	assert.True(t, realized.Equal(d(15)), "realized = %s", realized)
	assert.True(t, p.Amount.IsZero())
	assert.True(t, p.TotalCost.IsZero())
	assert.True(t, p.RealizedPnL.Equal(d(15)))
}

func TestApplySellCrossesZero(t *testing.T) {
	// Long 3 @ 0.40, sell 8 @ 0.60: close 3 at long average, then open a
	// 5-token short at the trade price. Exactly two ledger effects.
	var p Position
	ApplyBuy(&p, d(3), d(0.40))
	realized := ApplySell(&p, d(8), d(0.60))

	assert.True(t, realized.Equal(d(0.60).Sub(d(0.40)).Mul(d(3))), "close leg realizes (0.60-0.40)*3")
	assert.True(t, p.Amount.Equal(d(-5)))
	assert.True(t, p.TotalCost.Equal(d(-3)), "short credit = 5 * 0.60")
	assert.True(t, p.AvgPrice().Equal(d(0.60)))
}

func TestApplyBuyCoversShort(t *testing.T) {
	var p Position
	ApplySell(&p, d(10), d(0.70)) // open short 10 @ 0.70
	require.True(t, p.Amount.Equal(d(-10)))

	ApplyBuy(&p, d(4), d(0.50))
	// (s - p) * closed = (0.70 - 0.50) * 4
	assert.True(t, p.RealizedPnL.Equal(d(0.8)))
	assert.True(t, p.Amount.Equal(d(-6)))
	assert.True(t, p.AvgPrice().Equal(d(0.70)), "short average unchanged by partial cover")

	// Cover the rest and go long 2.
	ApplyBuy(&p, d(8), d(0.50))
	assert.True(t, p.Amount.Equal(d(2)))
	assert.True(t, p.AvgPrice().Equal(d(0.50)))
	assert.True(t, p.RealizedPnL.Equal(d(0.8).Add(d(0.2).Mul(d(6)))))
}

func TestApplySellCapped(t *testing.T) {
	var p Position
	ApplyBuy(&p, d(10), d(0.30))

	realized, overcap := ApplySellCapped(&p, d(25), d(0.50))
	assert.True(t, realized.Equal(d(2)), "(0.50-0.30)*10")
	assert.True(t, overcap.Equal(d(15)))
	assert.True(t, p.Amount.IsZero(), "capped sell never opens a short")

	realized, overcap = ApplySellCapped(&p, d(5), d(0.50))
	assert.True(t, realized.IsZero())
	assert.True(t, overcap.Equal(d(5)))
}

func TestApplyMintWeightedAverage(t *testing.T) {
	var p Position
	ApplyBuy(&p, d(100), d(0.60))
	ApplyMint(&p, d(100), SplitCostBasis)

	// 100 @ 0.60 + 100 @ 0.50 => 200 @ 0.55
	assert.True(t, p.Amount.Equal(d(200)))
	assert.True(t, p.AvgPrice().Equal(d(0.55)))
	assert.True(t, p.FromSplits.Equal(d(100)))
	assert.True(t, p.FromClob.Equal(d(100)))
}

func TestSettleAtResolution(t *testing.T) {
	t.Run("long wins", func(t *testing.T) {
		var p Position
		ApplyBuy(&p, d(100), d(0.40))
		delta := SettleAtResolution(&p, d(1))
		assert.True(t, delta.Equal(d(60)))
		assert.True(t, p.Amount.IsZero())
	})

	t.Run("long loses", func(t *testing.T) {
		var p Position
		ApplyBuy(&p, d(100), d(0.40))
		delta := SettleAtResolution(&p, d(0))
		assert.True(t, delta.Equal(d(-40)))
	})

	t.Run("short against winning outcome", func(t *testing.T) {
		var p Position
		ApplySell(&p, d(50), d(0.80)) // short 50 @ 0.80
		delta := SettleAtResolution(&p, d(1))
		// (s - p) * |q| = (0.80 - 1.00) * 50
		assert.True(t, delta.Equal(d(-10)))
	})

	t.Run("short against losing outcome", func(t *testing.T) {
		var p Position
		ApplySell(&p, d(50), d(0.80))
		delta := SettleAtResolution(&p, d(0))
		assert.True(t, delta.Equal(d(40)))
	})

	t.Run("flat position is a no-op", func(t *testing.T) {
		var p Position
		assert.True(t, SettleAtResolution(&p, d(1)).IsZero())
	})
}

// The core accounting identity: realized + amount*mark - totalCost equals the
// net cash flow plus the marked inventory value, for any trade sequence.
func TestCashConservationIdentity(t *testing.T) {
	type step struct {
		side  string
		qty   float64
		price float64
	}
	sequences := [][]step{
		{{"buy", 100, 0.40}, {"sell", 100, 0.55}},
		{{"buy", 3, 0.40}, {"sell", 8, 0.60}, {"buy", 5, 0.30}},
		{{"sell", 10, 0.70}, {"buy", 4, 0.50}, {"buy", 8, 0.55}, {"sell", 2, 0.65}},
		{{"buy", 7, 0.10}, {"buy", 13, 0.90}, {"sell", 20, 0.50}, {"sell", 5, 0.45}, {"buy", 5, 0.20}},
	}

	mark := d(0.5)
	for i, seq := range sequences {
		var p Position
		cash := decimal.Zero
		for _, s := range seq {
			switch s.side {
			case "buy":
				ApplyBuy(&p, d(s.qty), d(s.price))
				cash = cash.Sub(d(s.qty).Mul(d(s.price)))
			case "sell":
				ApplySell(&p, d(s.qty), d(s.price))
				cash = cash.Add(d(s.qty).Mul(d(s.price)))
			}
		}
		lhs := p.RealizedPnL.Add(p.UnrealizedPnL(mark))
		rhs := cash.Add(p.MarkValue(mark))
		assert.True(t, lhs.Equal(rhs), "sequence %d: realized+unrealized=%s cash+value=%s", i, lhs, rhs)
	}
}
