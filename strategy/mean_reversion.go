package strategy

import (
	"github.com/evdnx/goti"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/types"
)

// MeanReversion votes on the RSI, MFI and VWAO oscillator crossovers.
type MeanReversion struct {
	*BaseStrategy
}

// NewMeanReversion builds the suite and injects a logger.
func NewMeanReversion(cfg config.StrategyConfig, log logger.Logger) (*MeanReversion, error) {
	suiteFactory := func() (*goti.IndicatorSuite, error) {
		ic := goti.DefaultConfig()
		ic.RSIOverbought = cfg.RSIOverbought
		ic.RSIOversold = cfg.RSIOversold
		ic.MFIOverbought = cfg.MFIOverbought
		ic.MFIOversold = cfg.MFIOversold
		ic.VWAOStrongTrend = cfg.VWAOStrongTrend
		return goti.NewIndicatorSuiteWithConfig(ic)
	}
	base, err := NewBaseStrategy(types.MeanReversion, cfg, suiteFactory, log)
	if err != nil {
		return nil, err
	}
	return &MeanReversion{BaseStrategy: base}, nil
}

// ProcessBar updates the suite and re-evaluates the vote.
func (mr *MeanReversion) ProcessBar(high, low, close, volume float64) {
	if !mr.addBar(high, low, close, volume) {
		return
	}
	up, down := mr.bullishFallback(), mr.bearishFallback()

	rsiBull, err := mr.Suite.GetRSI().IsBullishCrossover()
	rsiBull = crossover(up, rsiBull, err)
	rsiBear, err := mr.Suite.GetRSI().IsBearishCrossover()
	rsiBear = crossover(down, rsiBear, err)
	mfiBull, err := mr.Suite.GetMFI().IsBullishCrossover()
	mfiBull = crossover(up, mfiBull, err)
	mfiBear, err := mr.Suite.GetMFI().IsBearishCrossover()
	mfiBear = crossover(down, mfiBear, err)
	vwaoBull, err := mr.Suite.GetVWAO().IsBullishCrossover()
	vwaoBull = crossover(up, vwaoBull, err)
	vwaoBear, err := mr.Suite.GetVWAO().IsBearishCrossover()
	vwaoBear = crossover(down, vwaoBear, err)

	mr.setVote(tally(mr.ID(),
		[]bool{rsiBull, mfiBull, vwaoBull},
		[]bool{rsiBear, mfiBear, vwaoBear},
	))
}
