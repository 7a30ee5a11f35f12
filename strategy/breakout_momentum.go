package strategy

import (
	"github.com/evdnx/goti"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/types"
)

// BreakoutMomentum votes on HMA, VWAO and ATSO crossovers agreeing.
type BreakoutMomentum struct {
	*BaseStrategy
}

// NewBreakoutMomentum builds the suite and injects a logger.
func NewBreakoutMomentum(cfg config.StrategyConfig, log logger.Logger) (*BreakoutMomentum, error) {
	suiteFactory := func() (*goti.IndicatorSuite, error) {
		ic := goti.DefaultConfig()
		ic.ATSEMAperiod = cfg.ATSEMAperiod
		return goti.NewIndicatorSuiteWithConfig(ic)
	}
	base, err := NewBaseStrategy(types.Momentum, cfg, suiteFactory, log)
	if err != nil {
		return nil, err
	}
	return &BreakoutMomentum{BaseStrategy: base}, nil
}

// ProcessBar updates the suite and re-evaluates the vote.
func (bm *BreakoutMomentum) ProcessBar(high, low, close, volume float64) {
	if !bm.addBar(high, low, close, volume) {
		return
	}
	up, down := bm.bullishFallback(), bm.bearishFallback()

	hBull, err := bm.Suite.GetHMA().IsBullishCrossover()
	hBull = crossover(up, hBull, err)
	hBear, err := bm.Suite.GetHMA().IsBearishCrossover()
	hBear = crossover(down, hBear, err)
	vBull, err := bm.Suite.GetVWAO().IsBullishCrossover()
	vBull = crossover(up, vBull, err)
	vBear, err := bm.Suite.GetVWAO().IsBearishCrossover()
	vBear = crossover(down, vBear, err)
	atBull := up || bm.Suite.GetATSO().IsBullishCrossover()
	atBear := down || bm.Suite.GetATSO().IsBearishCrossover()

	bm.setVote(tally(bm.ID(), []bool{hBull, vBull, atBull}, []bool{hBear, vBear, atBear}))
}
