package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evdnx/gotsrl/types"
)

// Config aggregates every tunable section of the decision pipeline.
type Config struct {
	Strategy StrategyConfig `yaml:"strategy"`
	Ensemble EnsembleConfig `yaml:"ensemble"`
	State    StateConfig    `yaml:"state"`
	Sizer    SizerConfig    `yaml:"sizer"`
	Reward   RewardConfig   `yaml:"reward"`
	Limits   LimitsConfig   `yaml:"limits"`
	Gate     GateConfig     `yaml:"gate"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
}

// StrategyConfig holds the indicator thresholds shared by the signal
// providers plus the exchange constraints used for quantity rounding.
type StrategyConfig struct {
	// Indicator thresholds – you can tune them per‑strategy
	RSIOverbought   float64 `yaml:"rsi_overbought"`    // default 70
	RSIOversold     float64 `yaml:"rsi_oversold"`      // default 30
	MFIOverbought   float64 `yaml:"mfi_overbought"`    // default 80
	MFIOversold     float64 `yaml:"mfi_oversold"`      // default 20
	VWAOStrongTrend float64 `yaml:"vwao_strong_trend"` // default 70
	HMAPeriod       int     `yaml:"hma_period"`        // default 9
	ADMOOverbought  float64 `yaml:"admo_overbought"`   // default 1.0
	ADMOOversold    float64 `yaml:"admo_oversold"`     // default -1.0
	ATSEMAperiod    int     `yaml:"atse_ma_period"`    // default 5
	WarmupBars      int     `yaml:"warmup_bars"`       // default 15

	// Exit levels used by the paper executor.
	StopLossPct   float64 `yaml:"stop_loss_pct"`   // e.g. 0.015 = 1.5 %
	TakeProfitPct float64 `yaml:"take_profit_pct"` // e.g. 0.03  = 3 %

	// QuantityPrecision defines the number of decimal places to round to
	// (e.g. 2 for crypto/futures, 0 for equities).
	QuantityPrecision int `yaml:"quantity_precision"`

	// Minimum order size accepted by the broker (e.g. 0.001 BTC).
	MinQty float64 `yaml:"min_qty"`

	// StepSize – the increment allowed by the exchange (e.g. 0.0001).
	StepSize float64 `yaml:"step_size"`
}

// WeightConfig maps each strategy to its (non‑normalised) voting weight.
// Strategies absent from the map weigh zero.
type WeightConfig map[types.StrategyID]float64

// EnsembleConfig configures the vote aggregation.
type EnsembleConfig struct {
	Weights WeightConfig `yaml:"weights"`
	// MinConfidence is the ensemble confidence a directional decision needs
	// before the pipeline goes on to size a trade.
	MinConfidence float64 `yaml:"min_confidence"`
}

// BucketConfig holds ascending thresholds per state dimension. A value
// falls into bucket i when exactly i thresholds are <= value.
type BucketConfig struct {
	Volatility []float64 `yaml:"volatility"`
	Trend      []float64 `yaml:"trend"`
	WinRate    []float64 `yaml:"win_rate"`
	Drawdown   []float64 `yaml:"drawdown"`
	Positions  []float64 `yaml:"positions"`
	Confidence []float64 `yaml:"confidence"`
}

// StateConfig configures market state extraction and discretisation.
type StateConfig struct {
	VolatilityLookback int          `yaml:"volatility_lookback"`
	FastMA             int          `yaml:"fast_ma"`
	SlowMA             int          `yaml:"slow_ma"`
	WinRateWindow      int          `yaml:"win_rate_window"`
	MinTrades          int          `yaml:"min_trades"`
	StartingEquity     float64      `yaml:"starting_equity"`
	MaxOpenPositions   int          `yaml:"max_open_positions"`
	Buckets            BucketConfig `yaml:"buckets"`
}

// SizerConfig holds the Q‑learning hyper‑parameters.
type SizerConfig struct {
	LearningRate   float64 `yaml:"learning_rate"`
	DiscountFactor float64 `yaml:"discount_factor"`
	Epsilon        float64 `yaml:"epsilon"`
	// Seed for the exploration source; 0 seeds from the clock.
	Seed int64 `yaml:"seed"`
}

// RewardConfig shapes the scalar reward handed to the learner.
type RewardConfig struct {
	Scale              float64 `yaml:"scale"`
	LargeWinThreshold  float64 `yaml:"large_win_threshold"`
	LargeWinBonus      float64 `yaml:"large_win_bonus"`
	LargeLossThreshold float64 `yaml:"large_loss_threshold"`
	LargeLossPenalty   float64 `yaml:"large_loss_penalty"`
	TakeProfitBonus    float64 `yaml:"take_profit_bonus"`
	StopLossBonus      float64 `yaml:"stop_loss_bonus"`
}

// LimitsConfig bounds the raw sizing numbers before they leave the core.
type LimitsConfig struct {
	BaseLeverage       float64 `yaml:"base_leverage"`
	MinLeverage        float64 `yaml:"min_leverage"`
	MaxLeverage        float64 `yaml:"max_leverage"`
	MaxCapitalFraction float64 `yaml:"max_capital_fraction"`
	IntegerLeverage    bool    `yaml:"integer_leverage"`
}

// GateConfig configures the sentiment / on‑chain confirmation filters.
type GateConfig struct {
	Enabled                bool    `yaml:"enabled"`
	SentimentMinConfidence float64 `yaml:"sentiment_min_confidence"`
	OnChainMinStrength     float64 `yaml:"onchain_min_strength"`
}

// StoreConfig selects and configures the durable Q‑table backend.
type StoreConfig struct {
	Kind          string        `yaml:"kind"` // file | redis | postgres | memory
	Path          string        `yaml:"path"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisKey      string        `yaml:"redis_key"`
	PostgresDSN   string        `yaml:"postgres_dsn"`
	TableName     string        `yaml:"table_name"`
	Timeout       time.Duration `yaml:"timeout"`
	Breaker       bool          `yaml:"breaker"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the documented defaults for every section.
func Default() Config {
	return Config{
		Strategy: DefaultStrategy(),
		Ensemble: EnsembleConfig{
			Weights:       DefaultWeights(),
			MinConfidence: 0.5,
		},
		State: StateConfig{
			VolatilityLookback: 20,
			FastMA:             10,
			SlowMA:             50,
			WinRateWindow:      20,
			MinTrades:          5,
			StartingEquity:     1000,
			MaxOpenPositions:   5,
			Buckets: BucketConfig{
				Volatility: []float64{0.01, 0.02, 0.03, 0.04},
				Trend:      []float64{0.1, 0.2},
				WinRate:    []float64{0.5, 1.0},
				Drawdown:   []float64{0.1, 0.2, 0.3},
				Positions:  []float64{1, 2, 3},
				Confidence: []float64{1.0 / 3, 2.0 / 3, 1.0},
			},
		},
		Sizer: SizerConfig{
			LearningRate:   0.1,
			DiscountFactor: 0.95,
			Epsilon:        0.1,
		},
		Reward: RewardConfig{
			Scale:              1.0,
			LargeWinThreshold:  5.0,
			LargeWinBonus:      0.5,
			LargeLossThreshold: -3.0,
			LargeLossPenalty:   1.0,
			TakeProfitBonus:    1.0,
			StopLossBonus:      0.5,
		},
		Limits: LimitsConfig{
			BaseLeverage:       3,
			MinLeverage:        1,
			MaxLeverage:        5,
			MaxCapitalFraction: 1.0,
			IntegerLeverage:    true,
		},
		Gate: GateConfig{
			Enabled:                true,
			SentimentMinConfidence: 0.5,
			OnChainMinStrength:     0.5,
		},
		Store: StoreConfig{
			Kind:      "file",
			Path:      "rl_state.json",
			RedisKey:  "gotsrl:qtable",
			TableName: "default",
			Timeout:   5 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultStrategy returns production indicator thresholds.
func DefaultStrategy() StrategyConfig {
	return StrategyConfig{
		RSIOverbought:     70,
		RSIOversold:       30,
		MFIOverbought:     80,
		MFIOversold:       20,
		VWAOStrongTrend:   70,
		HMAPeriod:         9,
		ADMOOverbought:    1.0,
		ADMOOversold:      -1.0,
		ATSEMAperiod:      5,
		WarmupBars:        15,
		StopLossPct:       0.015,
		TakeProfitPct:     0.03,
		QuantityPrecision: 3,
		MinQty:            0.001,
		StepSize:          0.001,
	}
}

// DefaultWeights returns the default ensemble weights.
func DefaultWeights() WeightConfig {
	return WeightConfig{
		types.Swing:          0.30,
		types.Momentum:       0.25,
		types.MeanReversion:  0.25,
		types.TrendFollowing: 0.20,
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if err := c.Strategy.Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if err := c.Ensemble.Validate(); err != nil {
		return fmt.Errorf("ensemble: %w", err)
	}
	if err := c.State.Validate(); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if err := c.Sizer.Validate(); err != nil {
		return fmt.Errorf("sizer: %w", err)
	}
	if err := c.Reward.Validate(); err != nil {
		return fmt.Errorf("reward: %w", err)
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	if err := c.Gate.Validate(); err != nil {
		return fmt.Errorf("gate: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// Validate checks that all numeric fields are within sensible bounds.
func (c *StrategyConfig) Validate() error {
	// Only equality is forbidden: tests invert the thresholds on purpose so
	// the value checks always pass.
	if c.RSIOverbought == c.RSIOversold {
		return errors.New("RSIOverbought and RSIOversold cannot be equal")
	}
	if c.MFIOverbought == c.MFIOversold {
		return errors.New("MFIOverbought and MFIOversold cannot be equal")
	}
	if c.HMAPeriod <= 0 {
		return errors.New("HMAPeriod must be positive")
	}
	if c.ATSEMAperiod <= 0 {
		return errors.New("ATSEMAperiod must be positive")
	}
	if c.WarmupBars < 0 {
		return errors.New("WarmupBars cannot be negative")
	}
	if c.StopLossPct <= 0 || c.StopLossPct > 0.2 {
		return fmt.Errorf("StopLossPct (%f) must be >0 and <=0.2", c.StopLossPct)
	}
	if c.TakeProfitPct < 0 || c.TakeProfitPct > 5 {
		return fmt.Errorf("TakeProfitPct (%f) out of realistic range", c.TakeProfitPct)
	}
	if c.QuantityPrecision < 0 {
		return errors.New("QuantityPrecision cannot be negative")
	}
	if c.MinQty < 0 {
		return errors.New("MinQty cannot be negative")
	}
	if c.StepSize <= 0 {
		return errors.New("StepSize must be positive")
	}
	return nil
}

// Validate rejects unknown strategies, negative or non-finite weights and
// an all-zero configuration.
func (w WeightConfig) Validate() error {
	total := 0.0
	for id, v := range w {
		if !id.Known() {
			return fmt.Errorf("unknown strategy %q", id)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("weight for %s is not finite", id)
		}
		if v < 0 {
			return fmt.Errorf("weight for %s is negative (%f)", id, v)
		}
		total += v
	}
	if total <= 0 {
		return errors.New("weights sum to zero")
	}
	return nil
}

// Normalized returns a copy of the weights scaled to sum to 1, with every
// known strategy present. Call Validate first.
func (w WeightConfig) Normalized() WeightConfig {
	total := 0.0
	for _, v := range w {
		total += v
	}
	out := make(WeightConfig, len(w))
	for _, id := range types.AllStrategies() {
		if total > 0 {
			out[id] = w[id] / total
		} else {
			out[id] = 0
		}
	}
	return out
}

func (c *EnsembleConfig) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("MinConfidence (%f) must be within [0,1]", c.MinConfidence)
	}
	return nil
}

func (c *StateConfig) Validate() error {
	if c.VolatilityLookback < 2 {
		return errors.New("VolatilityLookback must be at least 2")
	}
	if c.FastMA <= 0 || c.SlowMA <= 0 {
		return errors.New("moving average periods must be positive")
	}
	if c.FastMA >= c.SlowMA {
		return fmt.Errorf("FastMA (%d) must be shorter than SlowMA (%d)", c.FastMA, c.SlowMA)
	}
	if c.WinRateWindow <= 0 {
		return errors.New("WinRateWindow must be positive")
	}
	if c.MinTrades < 0 || c.MinTrades > c.WinRateWindow {
		return fmt.Errorf("MinTrades (%d) must be within [0,%d]", c.MinTrades, c.WinRateWindow)
	}
	if c.StartingEquity <= 0 {
		return errors.New("StartingEquity must be positive")
	}
	if c.MaxOpenPositions <= 0 {
		return errors.New("MaxOpenPositions must be positive")
	}
	return c.Buckets.Validate()
}

func (b *BucketConfig) Validate() error {
	dims := []struct {
		name string
		th   []float64
	}{
		{"volatility", b.Volatility},
		{"trend", b.Trend},
		{"win_rate", b.WinRate},
		{"drawdown", b.Drawdown},
		{"positions", b.Positions},
		{"confidence", b.Confidence},
	}
	for _, d := range dims {
		for i, v := range d.th {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%s threshold %d is not finite", d.name, i)
			}
			if i > 0 && v <= d.th[i-1] {
				return fmt.Errorf("%s thresholds must be strictly ascending", d.name)
			}
		}
	}
	return nil
}

func (c *SizerConfig) Validate() error {
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("LearningRate (%f) must be >0 and <=1", c.LearningRate)
	}
	if c.DiscountFactor < 0 || c.DiscountFactor > 1 {
		return fmt.Errorf("DiscountFactor (%f) must be within [0,1]", c.DiscountFactor)
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("Epsilon (%f) must be within [0,1]", c.Epsilon)
	}
	return nil
}

func (c *RewardConfig) Validate() error {
	if c.Scale <= 0 {
		return errors.New("Scale must be positive")
	}
	if c.LargeWinThreshold <= 0 {
		return errors.New("LargeWinThreshold must be positive")
	}
	if c.LargeLossThreshold >= 0 {
		return errors.New("LargeLossThreshold must be negative")
	}
	if c.LargeWinBonus < 0 {
		return errors.New("LargeWinBonus cannot be negative")
	}
	// losses must weigh more than equally sized wins
	if c.LargeLossPenalty <= c.LargeWinBonus {
		return fmt.Errorf("LargeLossPenalty (%f) must exceed LargeWinBonus (%f)", c.LargeLossPenalty, c.LargeWinBonus)
	}
	if c.StopLossBonus < 0 {
		return errors.New("StopLossBonus cannot be negative")
	}
	if c.TakeProfitBonus <= c.StopLossBonus {
		return fmt.Errorf("TakeProfitBonus (%f) must exceed StopLossBonus (%f)", c.TakeProfitBonus, c.StopLossBonus)
	}
	// a stop-loss close at or past the loss threshold stays below zero
	if limit := c.Scale * math.Abs(c.LargeLossThreshold); c.StopLossBonus >= limit {
		return fmt.Errorf("StopLossBonus (%f) must be below Scale*|LargeLossThreshold| (%f)", c.StopLossBonus, limit)
	}
	return nil
}

func (c *LimitsConfig) Validate() error {
	if c.BaseLeverage <= 0 {
		return errors.New("BaseLeverage must be positive")
	}
	if c.MinLeverage <= 0 || c.MaxLeverage < c.MinLeverage {
		return fmt.Errorf("leverage bounds [%f,%f] are invalid", c.MinLeverage, c.MaxLeverage)
	}
	if c.MaxCapitalFraction <= 0 || c.MaxCapitalFraction > 1 {
		return fmt.Errorf("MaxCapitalFraction (%f) must be >0 and <=1", c.MaxCapitalFraction)
	}
	return nil
}

func (c *GateConfig) Validate() error {
	if c.SentimentMinConfidence < 0 || c.SentimentMinConfidence > 1 {
		return errors.New("SentimentMinConfidence must be within [0,1]")
	}
	if c.OnChainMinStrength < 0 || c.OnChainMinStrength > 1 {
		return errors.New("OnChainMinStrength must be within [0,1]")
	}
	return nil
}

func (c *StoreConfig) Validate() error {
	switch c.Kind {
	case "file":
		if c.Path == "" {
			return errors.New("file store needs a path")
		}
	case "redis":
		if c.RedisAddr == "" || c.RedisKey == "" {
			return errors.New("redis store needs redis_addr and redis_key")
		}
	case "postgres":
		if c.PostgresDSN == "" || c.TableName == "" {
			return errors.New("postgres store needs postgres_dsn and table_name")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store kind %q", c.Kind)
	}
	if c.Timeout < 0 {
		return errors.New("Timeout cannot be negative")
	}
	return nil
}
