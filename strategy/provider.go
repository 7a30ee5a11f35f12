// Package strategy holds the technical-analysis vote providers feeding the
// ensemble. Each provider owns an indicator suite, consumes OHLCV bars and
// exposes its latest vote.
package strategy

import (
	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/types"
)

// Provider is one vote source.
type Provider interface {
	ID() types.StrategyID
	ProcessBar(high, low, close, volume float64)
	Vote() types.StrategyVote
}

// Set drives several providers from the same bar stream.
type Set struct {
	providers []Provider
}

// NewSet groups providers; order is preserved in Votes.
func NewSet(providers ...Provider) *Set {
	return &Set{providers: providers}
}

// NewDefaultSet builds the four standard providers for one instrument.
func NewDefaultSet(cfg config.StrategyConfig, log logger.Logger) (*Set, error) {
	swing, err := NewDivergenceSwing(cfg, log)
	if err != nil {
		return nil, err
	}
	mom, err := NewBreakoutMomentum(cfg, log)
	if err != nil {
		return nil, err
	}
	mr, err := NewMeanReversion(cfg, log)
	if err != nil {
		return nil, err
	}
	trend, err := NewTrendComposite(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewSet(swing, mom, mr, trend), nil
}

// ProcessBar forwards the bar to every provider.
func (s *Set) ProcessBar(high, low, close, volume float64) {
	for _, p := range s.providers {
		p.ProcessBar(high, low, close, volume)
	}
}

// Votes collects the latest vote of every provider.
func (s *Set) Votes() []types.StrategyVote {
	out := make([]types.StrategyVote, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, p.Vote())
	}
	return out
}

func (s *Set) Providers() []Provider {
	return append([]Provider(nil), s.providers...)
}
