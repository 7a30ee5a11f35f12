// Package risk turns raw sizing numbers into something an account and an
// exchange will accept.
package risk

import (
	"math"

	"github.com/evdnx/gotsrl/config"
)

// Limits bounds capital and leverage.
type Limits struct {
	MinLeverage        float64
	MaxLeverage        float64
	MaxCapitalFraction float64
	// IntegerLeverage truncates leverage to a whole number before clamping,
	// as most perpetual venues require.
	IntegerLeverage bool
}

// NewLimits copies the bounds out of cfg.
func NewLimits(cfg config.LimitsConfig) Limits {
	return Limits{
		MinLeverage:        cfg.MinLeverage,
		MaxLeverage:        cfg.MaxLeverage,
		MaxCapitalFraction: cfg.MaxCapitalFraction,
		IntegerLeverage:    cfg.IntegerLeverage,
	}
}

// Clamp keeps capital within [0, available*MaxCapitalFraction] and leverage
// within [MinLeverage, MaxLeverage].
func (l Limits) Clamp(capital, available, leverage float64) (float64, float64) {
	maxCap := available * l.MaxCapitalFraction
	if math.IsNaN(maxCap) || maxCap < 0 {
		maxCap = 0
	}
	if math.IsNaN(capital) || capital < 0 {
		capital = 0
	}
	capital = math.Min(capital, maxCap)

	if math.IsNaN(leverage) {
		leverage = l.MinLeverage
	}
	if l.IntegerLeverage {
		leverage = math.Trunc(leverage)
	}
	leverage = math.Max(l.MinLeverage, math.Min(l.MaxLeverage, leverage))
	return capital, leverage
}

// CalcQty converts a margin amount at the given leverage into an order
// quantity, floored to the exchange step size and rounded to the
// configured precision. Quantities below MinQty come back as zero.
func CalcQty(capital, leverage, price float64, cfg config.StrategyConfig) float64 {
	if price <= 0 || capital <= 0 || leverage <= 0 {
		return 0
	}
	qty := capital * leverage / price

	if cfg.StepSize > 0 {
		qty = math.Floor(qty/cfg.StepSize+1e-9) * cfg.StepSize
	}
	if cfg.QuantityPrecision >= 0 {
		p := math.Pow(10, float64(cfg.QuantityPrecision))
		qty = math.Round(qty*p) / p
	}
	if qty < cfg.MinQty {
		return 0
	}
	return qty
}
