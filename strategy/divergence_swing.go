package strategy

import (
	"github.com/evdnx/goti"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/types"
)

// DivergenceSwing votes on oscillator divergence (or a plain price
// reversal) confirmed by the HMA trend.
type DivergenceSwing struct {
	*BaseStrategy
}

// NewDivergenceSwing builds the suite with the supplied config.
func NewDivergenceSwing(cfg config.StrategyConfig, log logger.Logger) (*DivergenceSwing, error) {
	suiteFactory := func() (*goti.IndicatorSuite, error) {
		ic := goti.DefaultConfig()
		ic.RSIOverbought = cfg.RSIOverbought
		ic.RSIOversold = cfg.RSIOversold
		ic.MFIOverbought = cfg.MFIOverbought
		ic.MFIOversold = cfg.MFIOversold
		return goti.NewIndicatorSuiteWithConfig(ic)
	}
	base, err := NewBaseStrategy(types.Swing, cfg, suiteFactory, log)
	if err != nil {
		return nil, err
	}
	return &DivergenceSwing{BaseStrategy: base}, nil
}

// ProcessBar updates the suite and re-evaluates the vote.
func (d *DivergenceSwing) ProcessBar(high, low, close, volume float64) {
	if !d.addBar(high, low, close, volume) {
		return
	}

	hBull, err := d.Suite.GetHMA().IsBullishCrossover()
	hBull = crossover(d.bullishFallback(), hBull, err)
	hBear, err := d.Suite.GetHMA().IsBearishCrossover()
	hBear = crossover(d.bearishFallback(), hBear, err)

	// any oscillator may fire
	bullDiv, bearDiv := d.bullishReversal(), d.bearishReversal()
	if ok, typ, err := d.Suite.GetRSI().IsDivergence(); err == nil && ok {
		bullDiv = bullDiv || typ == "Bullish"
		bearDiv = bearDiv || typ == "Bearish"
	}
	if dir, err := d.Suite.GetMFI().IsDivergence(); err == nil {
		bullDiv = bullDiv || dir == "Bullish"
		bearDiv = bearDiv || dir == "Bearish"
	}
	if ok, typ := d.Suite.GetAMDO().IsDivergence(); ok {
		bullDiv = bullDiv || typ == "Bullish"
		bearDiv = bearDiv || typ == "Bearish"
	}

	d.setVote(tally(d.ID(), []bool{bullDiv, hBull}, []bool{bearDiv, hBear}))
}
