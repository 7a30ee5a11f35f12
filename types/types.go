package types

import "math"

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type Order struct {
	Symbol string
	Side   Side
	Qty    float64
	Price  float64 // limit price; 0 = market
	// meta
	Comment string
}

// Direction is the directional outcome of a vote or an ensemble decision.
type Direction string

const (
	DirBuy  Direction = "BUY"
	DirSell Direction = "SELL"
	DirNone Direction = "NONE"
)

// Valid reports whether d is one of the three known directions.
func (d Direction) Valid() bool {
	return d == DirBuy || d == DirSell || d == DirNone
}

// Side maps a directional decision onto an order side. NONE has no side.
func (d Direction) Side() (Side, bool) {
	switch d {
	case DirBuy:
		return Buy, true
	case DirSell:
		return Sell, true
	}
	return "", false
}

// StrategyID identifies one of the four vote sources.
type StrategyID string

const (
	Swing          StrategyID = "swing"
	Momentum       StrategyID = "momentum"
	MeanReversion  StrategyID = "mean_reversion"
	TrendFollowing StrategyID = "trend_following"
)

var allStrategies = [...]StrategyID{Swing, Momentum, MeanReversion, TrendFollowing}

// AllStrategies returns the four strategy ids in their fixed display order.
func AllStrategies() []StrategyID {
	out := make([]StrategyID, len(allStrategies))
	copy(out, allStrategies[:])
	return out
}

// Known reports whether id is one of the four strategy ids.
func (id StrategyID) Known() bool {
	for _, s := range allStrategies {
		if s == id {
			return true
		}
	}
	return false
}

// StrategyVote is one strategy's opinion for a single evaluation cycle.
type StrategyVote struct {
	Strategy   StrategyID `json:"strategy"`
	Direction  Direction  `json:"direction"`
	Confidence float64    `json:"confidence"`
}

// NewVote builds a vote with confidence clamped into [0,1]. A NONE vote
// always carries zero confidence.
func NewVote(id StrategyID, dir Direction, confidence float64) StrategyVote {
	if dir == DirNone || math.IsNaN(confidence) {
		confidence = 0
	}
	return StrategyVote{Strategy: id, Direction: dir, Confidence: clamp01(confidence)}
}

// NoneVote is the stand-in for a provider that produced nothing this cycle.
func NoneVote(id StrategyID) StrategyVote {
	return StrategyVote{Strategy: id, Direction: DirNone}
}

// EnsembleDecision is the aggregated outcome of the four votes.
type EnsembleDecision struct {
	Direction  Direction      `json:"direction"`
	Confidence float64        `json:"confidence"`
	Consensus  float64        `json:"consensus"`
	Votes      []StrategyVote `json:"votes"`
}

// Action is one of the fixed sizing choices of the position sizer.
type Action struct {
	Allocation         float64 `json:"allocation"`
	LeverageMultiplier float64 `json:"leverage_multiplier"`
}

// TradeOutcome describes a closed position as reported by the execution layer.
type TradeOutcome struct {
	PnLPercent           float64 `json:"pnl_percent"`
	HitStopLoss          bool    `json:"hit_stop_loss"`
	HitTakeProfit        bool    `json:"hit_take_profit"`
	PositionSizeFraction float64 `json:"position_size_fraction"`
}

// ClosedTrade is the slice of trade history the state extractor needs.
type ClosedTrade struct {
	PnLPercent float64 `json:"pnl_percent"`
	PnLAmount  float64 `json:"pnl_amount"`
}

// Win reports whether the trade closed in profit.
func (t ClosedTrade) Win() bool { return t.PnLPercent > 0 }

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
