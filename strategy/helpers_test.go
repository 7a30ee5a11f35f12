package strategy

import (
	"testing"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/testutils"
)

// candle represents a single OHLCV bar that the tests feed to a provider.
type candle struct {
	high, low, close, volume float64
}

func feedBars(t *testing.T, p Provider, bars []candle) {
	t.Helper()
	for _, b := range bars {
		p.ProcessBar(b.high, b.low, b.close, b.volume)
	}
}

// ramp builds n bars moving step per bar from start+step.
func ramp(n int, start, step float64) []candle {
	var bars []candle
	for i := 1; i <= n; i++ {
		price := start + step*float64(i)
		bars = append(bars, candle{
			high:   price + 0.5,
			low:    price - 0.5,
			close:  price,
			volume: 1000,
		})
	}
	return bars
}

func testConfig() config.StrategyConfig {
	return config.DefaultStrategy()
}

func buildAll(t *testing.T) map[string]Provider {
	t.Helper()
	cfg := testConfig()
	log := testutils.NewMockLogger()

	swing, err := NewDivergenceSwing(cfg, log)
	if err != nil {
		t.Fatalf("NewDivergenceSwing failed: %v", err)
	}
	mom, err := NewBreakoutMomentum(cfg, log)
	if err != nil {
		t.Fatalf("NewBreakoutMomentum failed: %v", err)
	}
	mr, err := NewMeanReversion(cfg, log)
	if err != nil {
		t.Fatalf("NewMeanReversion failed: %v", err)
	}
	tc, err := NewTrendComposite(cfg, log)
	if err != nil {
		t.Fatalf("NewTrendComposite failed: %v", err)
	}
	return map[string]Provider{
		"swing": swing, "momentum": mom, "mean_reversion": mr, "trend": tc,
	}
}
