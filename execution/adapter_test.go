package execution

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Scotty108/cascadian/types"
)

func req(price, size, cap float64) Request {
	return Request{
		ConditionID:        "0xc1",
		Side:               types.SideBuy,
		Price:              decimal.NewFromFloat(price),
		Size:               decimal.NewFromFloat(size),
		MaxCopyPerTradeUsd: decimal.NewFromFloat(cap),
	}
}

func TestDryRunSimulates(t *testing.T) {
	a := New(true)
	res := a.Execute(context.Background(), req(0.40, 100, 100))
	assert.Equal(t, types.StatusSimulated, res.Status)
}

func TestDryRunRespectsNotionalCap(t *testing.T) {
	a := New(true)
	res := a.Execute(context.Background(), req(0.60, 500, 100)) // $300 > $100
	assert.Equal(t, types.StatusSkipped, res.Status)
	assert.Equal(t, ReasonNotionalExceedsMax, res.Reason)
}

func TestDryRunZeroCapMeansUncapped(t *testing.T) {
	a := New(true)
	res := a.Execute(context.Background(), req(0.60, 5000, 0))
	assert.Equal(t, types.StatusSimulated, res.Status)
}

func TestLiveRefusesWithoutEnvGate(t *testing.T) {
	t.Setenv(EnableLiveEnv, "")
	a := New(false)
	res := a.Execute(context.Background(), req(0.40, 10, 100))
	assert.Equal(t, types.StatusSkipped, res.Status)
	assert.Equal(t, ReasonLiveDisabled, res.Reason)
}

func TestLiveRefusesEvenWhenEnabled(t *testing.T) {
	t.Setenv(EnableLiveEnv, "true")
	a := New(false)
	res := a.Execute(context.Background(), req(0.40, 10, 100))
	assert.Equal(t, types.StatusSkipped, res.Status)
	assert.Equal(t, ReasonLiveAdapterUnconfigured, res.Reason)
}

func TestEnvGateIsLiteralTrue(t *testing.T) {
	t.Setenv(EnableLiveEnv, "TRUE")
	a := New(false)
	res := a.Execute(context.Background(), req(0.40, 10, 100))
	assert.Equal(t, ReasonLiveDisabled, res.Reason, "gate matches the literal string only")
}
