package reward

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/types"
)

func TestStopLossDisciplineBonus(t *testing.T) {
	f := Default()
	withStop := f.Compute(types.TradeOutcome{PnLPercent: -10, HitStopLoss: true})
	without := f.Compute(types.TradeOutcome{PnLPercent: -10})

	assert.Greater(t, withStop, without)
	for _, pnl := range []float64{0.001, 0.5, 1, 5, 25} {
		assert.Less(t, withStop, f.Compute(types.TradeOutcome{PnLPercent: pnl}), "pnl %v", pnl)
	}
}

func TestLossPenaltyOutweighsWinBonus(t *testing.T) {
	f := Default()
	win := f.Compute(types.TradeOutcome{PnLPercent: 15})
	loss := f.Compute(types.TradeOutcome{PnLPercent: -15})
	// the extra beyond raw pnl is larger on the losing side
	assert.Greater(t, -loss-15, win-15)
}

func TestBaseRewardIsPnL(t *testing.T) {
	f := Default()
	assert.Equal(t, 2.0, f.Compute(types.TradeOutcome{PnLPercent: 2}))
	assert.Equal(t, -1.0, f.Compute(types.TradeOutcome{PnLPercent: -1}))
	assert.Equal(t, 0.0, f.Compute(types.TradeOutcome{PnLPercent: math.NaN()}))
}

func TestKnownValues(t *testing.T) {
	f := Default()
	// 8 + 0.5*(8-5) + 1
	assert.InDelta(t, 10.5, f.Compute(types.TradeOutcome{PnLPercent: 8, HitTakeProfit: true}), 1e-12)
	// -10 - 1.0*(10-3) + 0.5
	assert.InDelta(t, -16.5, f.Compute(types.TradeOutcome{PnLPercent: -10, HitStopLoss: true}), 1e-12)
}

func TestTakeProfitBeatsStopLossBonus(t *testing.T) {
	f := Default()
	tp := f.Compute(types.TradeOutcome{PnLPercent: 1, HitTakeProfit: true})
	sl := f.Compute(types.TradeOutcome{PnLPercent: 1, HitStopLoss: true})
	assert.Greater(t, tp, sl)
}

func TestNewRejectsSymmetricShaping(t *testing.T) {
	cfg := config.Default().Reward
	cfg.LargeLossPenalty = 0.1
	_, err := New(cfg)
	require.Error(t, err)

	cfg = config.Default().Reward
	cfg.Scale = 0.01
	_, err = New(cfg)
	require.Error(t, err, "stop-loss bonus outweighs the scaled loss threshold")

	f, err := New(config.Default().Reward)
	require.NoError(t, err)
	assert.Equal(t, Default().Compute(types.TradeOutcome{PnLPercent: 3}), f.Compute(types.TradeOutcome{PnLPercent: 3}))
}

func TestStopLossNeverBeatsProfitAtSmallScale(t *testing.T) {
	cfg := config.Default().Reward
	cfg.Scale = 0.2
	f, err := New(cfg)
	require.NoError(t, err)

	for _, pnl := range []float64{-3, -10, -40} {
		sl := f.Compute(types.TradeOutcome{PnLPercent: pnl, HitStopLoss: true})
		assert.Less(t, sl, 0.0, "pnl %v", pnl)
		assert.Less(t, sl, f.Compute(types.TradeOutcome{PnLPercent: 1}), "pnl %v", pnl)
	}
}
