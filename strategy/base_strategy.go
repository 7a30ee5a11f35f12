package strategy

import (
	"math"
	"sync"

	"github.com/evdnx/goti"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/types"
)

// BaseStrategy bundles the common dependencies and helpers.
type BaseStrategy struct {
	Log   logger.Logger
	Cfg   config.StrategyConfig
	Suite *goti.IndicatorSuite

	id     types.StrategyID
	prices *closeWindow

	mu   sync.Mutex
	vote types.StrategyVote
}

// NewBaseStrategy creates the indicator suite (using the supplied factory)
// and validates the config. All concrete providers call this from their
// own constructors.
func NewBaseStrategy(id types.StrategyID, cfg config.StrategyConfig,
	suiteFactory func() (*goti.IndicatorSuite, error),
	log logger.Logger) (*BaseStrategy, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	suite, err := suiteFactory()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &BaseStrategy{
		Log:    log,
		Cfg:    cfg,
		Suite:  suite,
		id:     id,
		prices: newCloseWindow(64),
		vote:   types.NoneVote(id),
	}, nil
}

func (b *BaseStrategy) ID() types.StrategyID { return b.id }

// Vote returns the vote produced by the latest bar.
func (b *BaseStrategy) Vote() types.StrategyVote {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vote
}

func (b *BaseStrategy) setVote(v types.StrategyVote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vote = v
}

// addBar feeds the suite and the close window. It reports false when the
// bar was rejected or the provider is still warming up; a rejected bar
// leaves the previous vote in place.
func (b *BaseStrategy) addBar(high, low, close, volume float64) bool {
	if err := b.Suite.Add(high, low, close, volume); err != nil {
		b.Log.Warn("suite_add_error",
			logger.String("strategy", string(b.id)),
			logger.Err(err),
		)
		return false
	}
	b.prices.Add(close)
	if !b.hasHistory(b.Cfg.WarmupBars) {
		b.setVote(types.NoneVote(b.id))
		return false
	}
	return true
}

// tally turns per-side sub-signals into a vote: the side with more true
// signals wins and confidence is the share of its signals that fired.
func tally(id types.StrategyID, bull, bear []bool) types.StrategyVote {
	nb, ns := count(bull), count(bear)
	n := len(bull)
	if len(bear) > n {
		n = len(bear)
	}
	switch {
	case n == 0 || nb == ns:
		return types.NoneVote(id)
	case nb > ns:
		return types.NewVote(id, types.DirBuy, float64(nb)/float64(n))
	default:
		return types.NewVote(id, types.DirSell, float64(ns)/float64(n))
	}
}

func count(sig []bool) int {
	n := 0
	for _, s := range sig {
		if s {
			n++
		}
	}
	return n
}

// crossover ORs a fallible indicator signal into the price-only fallback.
func crossover(fallback bool, ok bool, err error) bool {
	if err != nil {
		return fallback
	}
	return fallback || ok
}

func (b *BaseStrategy) bullishFallback() bool {
	if b.prices.Len() < 3 {
		return false
	}
	return b.prices.Trend() > 0 && b.prices.Slope() > 0
}

func (b *BaseStrategy) bearishFallback() bool {
	if b.prices.Len() < 3 {
		return false
	}
	return b.prices.Trend() < 0 && b.prices.Slope() < 0
}

// sanitizeVolatility replaces an implausible indicator reading with the
// window's own volatility, or 2% of price when there is none.
func (b *BaseStrategy) sanitizeVolatility(raw, price float64) float64 {
	if price <= 0 {
		price = 1
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw <= 0 || raw > price*0.1 {
		fallback := b.prices.Volatility()
		if fallback <= 0 {
			fallback = price * 0.02
		}
		return math.Max(fallback, 0.0001)
	}
	return raw
}

func (b *BaseStrategy) hasHistory(n int) bool {
	return n <= 0 || b.prices.Len() >= n
}

// bullishReversal: two consecutive higher closes after a dip inside the
// last six bars.
func (b *BaseStrategy) bullishReversal() bool {
	return reversal(b.prices.Values(), 1)
}

// bearishReversal mirrors bullishReversal.
func (b *BaseStrategy) bearishReversal() bool {
	return reversal(b.prices.Values(), -1)
}

// reversal works on sign-adjusted closes so one routine serves both sides.
func reversal(vals []float64, sign float64) bool {
	n := len(vals)
	if n < 4 {
		return false
	}
	if !(sign*vals[n-1] > sign*vals[n-2] && sign*vals[n-2] > sign*vals[n-3]) {
		return false
	}
	window := 6
	if window > n {
		window = n
	}
	seg := vals[n-window:]
	dipped := false
	for i := 1; i < len(seg)-2; i++ {
		if sign*seg[i] < sign*seg[i-1] {
			dipped = true
			break
		}
	}
	if !dipped {
		return false
	}
	extIdx := 0
	for i, v := range seg {
		if sign*v < sign*seg[extIdx] {
			extIdx = i
		}
	}
	return extIdx <= window-3 && sign*seg[extIdx] < sign*seg[len(seg)-1]
}
