package strategy

import (
	"math"

	"github.com/evdnx/goti"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/types"
)

// TrendComposite is the trend-following provider: HMA, ADMO and ATSO
// crossovers plus the sign of the raw ADMO and ATSO readings.
type TrendComposite struct {
	*BaseStrategy
}

// NewTrendComposite builds the suite and injects a logger.
func NewTrendComposite(cfg config.StrategyConfig, log logger.Logger) (*TrendComposite, error) {
	suiteFactory := func() (*goti.IndicatorSuite, error) {
		ic := goti.DefaultConfig()
		ic.RSIOverbought = cfg.RSIOverbought
		ic.RSIOversold = cfg.RSIOversold
		ic.MFIOverbought = cfg.MFIOverbought
		ic.MFIOversold = cfg.MFIOversold
		ic.VWAOStrongTrend = cfg.VWAOStrongTrend
		ic.ATSEMAperiod = cfg.ATSEMAperiod
		return goti.NewIndicatorSuiteWithConfig(ic)
	}
	base, err := NewBaseStrategy(types.TrendFollowing, cfg, suiteFactory, log)
	if err != nil {
		return nil, err
	}
	return &TrendComposite{BaseStrategy: base}, nil
}

// ProcessBar updates the suite and re-evaluates the vote.
func (t *TrendComposite) ProcessBar(high, low, close, volume float64) {
	if !t.addBar(high, low, close, volume) {
		return
	}
	up, down := t.bullishFallback(), t.bearishFallback()

	hBull, err := t.Suite.GetHMA().IsBullishCrossover()
	hBull = crossover(up, hBull, err)
	hBear, err := t.Suite.GetHMA().IsBearishCrossover()
	hBear = crossover(down, hBear, err)
	aBull, err := t.Suite.GetAMDO().IsBullishCrossover()
	aBull = crossover(up, aBull, err)
	aBear, err := t.Suite.GetAMDO().IsBearishCrossover()
	aBear = crossover(down, aBear, err)
	atBull := up || t.Suite.GetATSO().IsBullishCrossover()
	atBear := down || t.Suite.GetATSO().IsBearishCrossover()

	// raw readings give the momentum direction
	admoVal, err := t.Suite.GetAMDO().Calculate()
	if err != nil {
		admoVal = t.prices.Slope()
	}
	atsoVal, err := t.Suite.GetATSO().Calculate()
	if err != nil {
		atsoVal = t.prices.Slope()
	} else {
		atsoVal = t.sanitizeVolatility(math.Abs(atsoVal), close) * math.Copysign(1, atsoVal)
	}

	t.setVote(tally(t.ID(),
		[]bool{hBull, aBull, atBull, admoVal > 0, atsoVal > 0},
		[]bool{hBear, aBear, atBear, admoVal < 0, atsoVal < 0},
	))
}
