// Package reward turns a closed trade into the scalar signal the position
// sizer learns from.
package reward

import (
	"math"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/types"
)

// Func is a configured reward function. It is a pure value; copies are safe.
type Func struct {
	cfg config.RewardConfig
}

// New validates the configuration and returns the reward function.
func New(cfg config.RewardConfig) (Func, error) {
	if err := cfg.Validate(); err != nil {
		return Func{}, err
	}
	return Func{cfg: cfg}, nil
}

// Default returns the reward function with the documented defaults.
func Default() Func {
	return Func{cfg: config.Default().Reward}
}

// Compute returns the shaped reward for o:
//
//	pnl*scale
//	+ winBonus  * (pnl - winThreshold)   when pnl > winThreshold
//	- lossPenalty * (lossThreshold - pnl) when pnl < lossThreshold
//	+ takeProfitBonus when the take-profit fired
//	+ stopLossBonus   when the stop-loss fired
func (f Func) Compute(o types.TradeOutcome) float64 {
	pnl := o.PnLPercent
	if math.IsNaN(pnl) {
		pnl = 0
	}
	c := f.cfg
	r := pnl * c.Scale
	switch {
	case pnl > c.LargeWinThreshold:
		r += c.LargeWinBonus * (pnl - c.LargeWinThreshold) * c.Scale
	case pnl < c.LargeLossThreshold:
		r -= c.LargeLossPenalty * (c.LargeLossThreshold - pnl) * c.Scale
	}
	if o.HitTakeProfit {
		r += c.TakeProfitBonus
	}
	if o.HitStopLoss {
		r += c.StopLossBonus
	}
	return r
}
