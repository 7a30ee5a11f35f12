// Package marketstate reduces price history and account activity into the
// small discrete state the position sizer keys its value table on.
package marketstate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/types"
)

// Dimensions is the number of components of a market state.
const Dimensions = 6

// MarketState is the raw (continuous) view of market and account conditions.
type MarketState struct {
	Volatility       float64 `json:"volatility"`
	TrendStrength    float64 `json:"trend_strength"`
	RecentWinRate    float64 `json:"recent_win_rate"`
	CurrentDrawdown  float64 `json:"current_drawdown"`
	OpenPositions    int     `json:"open_positions"`
	SignalConfidence float64 `json:"signal_confidence"`
}

// DiscreteState holds one bucket index per dimension, in MarketState order.
type DiscreteState [Dimensions]int

// Key encodes the state as underscore-joined bucket indices ("2_0_1_0_1_2").
func (s DiscreteState) Key() string {
	var b strings.Builder
	for i, v := range s {
		if i > 0 {
			b.WriteByte('_')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

func (s DiscreteState) String() string { return s.Key() }

// ParseDiscreteState is the inverse of Key.
func ParseDiscreteState(key string) (DiscreteState, error) {
	var s DiscreteState
	parts := strings.Split(key, "_")
	if len(parts) != Dimensions {
		return s, fmt.Errorf("state key %q: want %d components, got %d", key, Dimensions, len(parts))
	}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return s, fmt.Errorf("state key %q: %w", key, err)
		}
		if v < 0 {
			return s, fmt.Errorf("state key %q: negative bucket", key)
		}
		s[i] = v
	}
	return s, nil
}

// Input is everything the extractor needs for one sizing decision. All of
// it is expected to be materialised by the caller.
type Input struct {
	// Closes is the price history, oldest first.
	Closes []float64
	// Trades is the closed-trade history, oldest first.
	Trades []types.ClosedTrade
	// Equity is an optional equity curve, oldest first. When empty the
	// curve is rebuilt from Trades starting at the configured equity.
	Equity           []float64
	SignalConfidence float64
	OpenPositions    int
}

// Extractor computes MarketState values from an Input.
type Extractor struct {
	cfg config.StateConfig
}

// NewExtractor validates cfg and returns an extractor.
func NewExtractor(cfg config.StateConfig) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{cfg: cfg}, nil
}

// MinLookback is the number of closes required for volatility and trend to
// be computed rather than defaulted to neutral.
func (e *Extractor) MinLookback() int {
	n := e.cfg.VolatilityLookback + 1
	if e.cfg.SlowMA > n {
		n = e.cfg.SlowMA
	}
	return n
}

// Sufficient reports whether closes is long enough for a full state.
func (e *Extractor) Sufficient(closes []float64) bool {
	return len(closes) >= e.MinLookback()
}

// Extract never fails: short or missing history degrades to neutral values.
func (e *Extractor) Extract(in Input) MarketState {
	st := MarketState{
		RecentWinRate:    e.winRate(in.Trades),
		CurrentDrawdown:  e.drawdown(in),
		OpenPositions:    e.positions(in.OpenPositions),
		SignalConfidence: clamp(in.SignalConfidence, 0, 1),
	}
	if e.Sufficient(in.Closes) {
		st.Volatility = volatility(tail(in.Closes, e.cfg.VolatilityLookback+1))
		st.TrendStrength = e.trend(in.Closes)
	}
	return st
}

func (e *Extractor) positions(n int) int {
	if n < 0 {
		return 0
	}
	if n > e.cfg.MaxOpenPositions {
		return e.cfg.MaxOpenPositions
	}
	return n
}

// volatility is the sample standard deviation of simple returns.
func volatility(closes []float64) float64 {
	rets := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if !finite(prev) || !finite(cur) || prev <= 0 {
			continue
		}
		rets = append(rets, cur/prev-1)
	}
	if len(rets) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	ss := 0.0
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	return math.Sqrt(ss / float64(len(rets)-1))
}

// trend is the relative distance of the fast average above the slow one,
// bounded to [-1, 1].
func (e *Extractor) trend(closes []float64) float64 {
	fast := mean(tail(closes, e.cfg.FastMA))
	slow := mean(tail(closes, e.cfg.SlowMA))
	if slow <= 0 {
		return 0
	}
	return clamp((fast-slow)/slow, -1, 1)
}

func (e *Extractor) winRate(trades []types.ClosedTrade) float64 {
	if len(trades) < e.cfg.MinTrades || len(trades) == 0 {
		return 0.5
	}
	recent := trades
	if len(recent) > e.cfg.WinRateWindow {
		recent = recent[len(recent)-e.cfg.WinRateWindow:]
	}
	wins := 0
	for _, t := range recent {
		if t.Win() {
			wins++
		}
	}
	return float64(wins) / float64(len(recent))
}

func (e *Extractor) drawdown(in Input) float64 {
	curve := in.Equity
	if len(curve) == 0 {
		curve = make([]float64, 0, len(in.Trades)+1)
		eq := e.cfg.StartingEquity
		curve = append(curve, eq)
		for _, t := range in.Trades {
			if finite(t.PnLAmount) {
				eq += t.PnLAmount
			}
			curve = append(curve, eq)
		}
	}
	peak := math.Inf(-1)
	for _, v := range curve {
		if finite(v) && v > peak {
			peak = v
		}
	}
	cur := curve[len(curve)-1]
	if peak <= 0 || !finite(cur) {
		return 0
	}
	return clamp((peak-cur)/peak, 0, 1)
}

// Discretizer maps a MarketState onto bucket indices using fixed
// thresholds. It is a pure function of its configuration.
type Discretizer struct {
	b config.BucketConfig
}

// NewDiscretizer validates the thresholds and returns a discretizer.
func NewDiscretizer(b config.BucketConfig) (*Discretizer, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &Discretizer{b: b}, nil
}

// Discretize is total: NaN and out-of-range values land in the nearest
// valid bucket.
func (d *Discretizer) Discretize(s MarketState) DiscreteState {
	return DiscreteState{
		bucket(s.Volatility, d.b.Volatility),
		bucket(math.Abs(s.TrendStrength), d.b.Trend),
		bucket(s.RecentWinRate, d.b.WinRate),
		bucket(math.Abs(s.CurrentDrawdown), d.b.Drawdown),
		bucket(float64(s.OpenPositions), d.b.Positions),
		bucket(s.SignalConfidence, d.b.Confidence),
	}
}

// Buckets returns the number of bins per dimension.
func (d *Discretizer) Buckets() [Dimensions]int {
	return [Dimensions]int{
		len(d.b.Volatility) + 1,
		len(d.b.Trend) + 1,
		len(d.b.WinRate) + 1,
		len(d.b.Drawdown) + 1,
		len(d.b.Positions) + 1,
		len(d.b.Confidence) + 1,
	}
}

func bucket(v float64, thresholds []float64) int {
	if math.IsNaN(v) {
		return 0
	}
	n := 0
	for _, th := range thresholds {
		if v >= th {
			n++
		}
	}
	return n
}

func tail(v []float64, n int) []float64 {
	if n >= len(v) {
		return v
	}
	return v[len(v)-n:]
}

func mean(v []float64) float64 {
	sum, n := 0.0, 0
	for _, x := range v {
		if finite(x) {
			sum += x
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
