// Package gate holds the optional confirmation filters that can veto an
// approved ensemble decision: market sentiment and on-chain flow.
// Missing or low-quality data never blocks a trade.
package gate

import (
	"math"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/types"
)

// Bias is the coarse reading of a sentiment or on-chain signal.
type Bias string

const (
	Bullish Bias = "BULLISH"
	Bearish Bias = "BEARISH"
	Neutral Bias = "NEUTRAL"
)

const (
	socialWeight = 0.6
	newsWeight   = 0.4

	flowWeight    = 0.4
	addressWeight = 0.6

	deadBand = 0.2
)

// SentimentScore is a [-1, 1] reading of market mood.
type SentimentScore struct {
	Overall    float64 `json:"overall"`
	News       float64 `json:"news"`
	Social     float64 `json:"social"`
	Confidence float64 `json:"confidence"`
}

// Bias classifies the overall score with a ±0.2 dead band.
func (s SentimentScore) Bias() Bias {
	switch {
	case s.Overall > deadBand:
		return Bullish
	case s.Overall < -deadBand:
		return Bearish
	}
	return Neutral
}

// CombineSentiment weights social 60/40 over news. Either input may be
// missing; with both missing there is no score.
func CombineSentiment(news, social *float64) *SentimentScore {
	var sum, weight float64
	out := SentimentScore{}
	if social != nil && finite(*social) {
		sum += *social * socialWeight
		weight += socialWeight
		out.Social = *social
	}
	if news != nil && finite(*news) {
		sum += *news * newsWeight
		weight += newsWeight
		out.News = *news
	}
	if weight == 0 {
		return nil
	}
	out.Overall = sum / weight
	out.Confidence = 0.5
	if weight > socialWeight {
		out.Confidence = 1
	}
	return &out
}

// ConfirmSentiment reports whether s allows a trade in direction d. BUY
// needs a non-negative score and SELL a non-positive one.
func ConfirmSentiment(s *SentimentScore, d types.Direction, minConfidence float64) bool {
	if s == nil || s.Confidence < minConfidence {
		return true
	}
	switch d {
	case types.DirBuy:
		return s.Overall >= 0
	case types.DirSell:
		return s.Overall <= 0
	}
	return true
}

// OnChainSignal summarises exchange flows and address activity.
type OnChainSignal struct {
	Type     Bias    `json:"type"`
	Strength float64 `json:"strength"`
}

// ClassifyOnChain weights address trend 60/40 over exchange flow. Scores
// inside the dead band are NEUTRAL with strength 0.5.
func ClassifyOnChain(exchangeFlow, addressTrend *float64) OnChainSignal {
	var sum, weight float64
	if exchangeFlow != nil && finite(*exchangeFlow) {
		sum += *exchangeFlow * flowWeight
		weight += flowWeight
	}
	if addressTrend != nil && finite(*addressTrend) {
		sum += *addressTrend * addressWeight
		weight += addressWeight
	}
	if weight == 0 {
		return OnChainSignal{Type: Neutral}
	}
	score := sum / weight
	switch {
	case score > deadBand:
		return OnChainSignal{Type: Bullish, Strength: math.Min(1, math.Abs(score))}
	case score < -deadBand:
		return OnChainSignal{Type: Bearish, Strength: math.Min(1, math.Abs(score))}
	}
	return OnChainSignal{Type: Neutral, Strength: 0.5}
}

// ConfirmOnChain vetoes a BUY on a strong bearish signal and a SELL on a
// strong bullish one.
func ConfirmOnChain(sig *OnChainSignal, d types.Direction, minStrength float64) bool {
	if sig == nil || sig.Strength < minStrength {
		return true
	}
	switch d {
	case types.DirBuy:
		return sig.Type != Bearish
	case types.DirSell:
		return sig.Type != Bullish
	}
	return true
}

// Gate applies both filters with configured thresholds.
type Gate struct {
	cfg config.GateConfig
}

func New(cfg config.GateConfig) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gate{cfg: cfg}, nil
}

// Check returns false and the name of the vetoing filter when d is
// blocked. A disabled gate passes everything.
func (g *Gate) Check(d types.Direction, s *SentimentScore, sig *OnChainSignal) (bool, string) {
	if g == nil || !g.cfg.Enabled {
		return true, ""
	}
	if !ConfirmSentiment(s, d, g.cfg.SentimentMinConfidence) {
		return false, "sentiment"
	}
	if !ConfirmOnChain(sig, d, g.cfg.OnChainMinStrength) {
		return false, "onchain"
	}
	return true, ""
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
