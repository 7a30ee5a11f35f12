// Package ensemble folds the four strategy votes into one directional
// decision using a weighted vote.
package ensemble

import (
	"errors"
	"fmt"
	"math"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/metrics"
	"github.com/evdnx/gotsrl/types"
)

var (
	// ErrInvalidVotes reports a malformed vote set.
	ErrInvalidVotes = errors.New("ensemble: invalid votes")
	// ErrInvalidWeights reports a weight configuration that cannot be normalised.
	ErrInvalidWeights = errors.New("ensemble: invalid weights")
)

// Complete returns one vote per known strategy in AllStrategies order,
// substituting a NONE vote for every strategy missing from votes. Votes
// for unknown strategies are dropped; for duplicates the first one wins.
func Complete(votes []types.StrategyVote) []types.StrategyVote {
	byID := make(map[types.StrategyID]types.StrategyVote, len(votes))
	for _, v := range votes {
		if _, dup := byID[v.Strategy]; !dup {
			byID[v.Strategy] = v
		}
	}
	out := make([]types.StrategyVote, 0, 4)
	for _, id := range types.AllStrategies() {
		if v, ok := byID[id]; ok {
			out = append(out, v)
		} else {
			out = append(out, types.NoneVote(id))
		}
	}
	return out
}

func validateVotes(votes []types.StrategyVote) error {
	all := types.AllStrategies()
	if len(votes) > len(all) {
		return fmt.Errorf("%w: %d votes for %d strategies", ErrInvalidVotes, len(votes), len(all))
	}
	seen := make(map[types.StrategyID]bool, len(votes))
	for _, v := range votes {
		if !v.Strategy.Known() {
			return fmt.Errorf("%w: unknown strategy %q", ErrInvalidVotes, v.Strategy)
		}
		if seen[v.Strategy] {
			return fmt.Errorf("%w: duplicate vote for %s", ErrInvalidVotes, v.Strategy)
		}
		seen[v.Strategy] = true
		if !v.Direction.Valid() {
			return fmt.Errorf("%w: %s voted %q", ErrInvalidVotes, v.Strategy, v.Direction)
		}
		if math.IsNaN(v.Confidence) || v.Confidence < 0 || v.Confidence > 1 {
			return fmt.Errorf("%w: %s confidence %v outside [0,1]", ErrInvalidVotes, v.Strategy, v.Confidence)
		}
	}
	return nil
}

// Aggregate is the weighted vote. Strategies without a vote count as NONE.
//
// BUY and SELL each score the sum of weight*confidence of their voters; the
// strictly higher score wins and anything else is NONE. Confidence is the
// winning score over the weight of all directional voters. Consensus is the
// weight agreeing with the winner over the total weight.
func Aggregate(votes []types.StrategyVote, weights config.WeightConfig) (types.EnsembleDecision, error) {
	if err := validateVotes(votes); err != nil {
		return types.EnsembleDecision{}, err
	}
	if err := weights.Validate(); err != nil {
		return types.EnsembleDecision{}, fmt.Errorf("%w: %v", ErrInvalidWeights, err)
	}
	w := weights.Normalized()
	full := Complete(votes)

	var buy, sell, buyWeight, sellWeight, directional, total float64
	for _, v := range full {
		wt := w[v.Strategy]
		total += wt
		switch v.Direction {
		case types.DirBuy:
			buy += wt * v.Confidence
			buyWeight += wt
			directional += wt
		case types.DirSell:
			sell += wt * v.Confidence
			sellWeight += wt
			directional += wt
		}
	}

	d := types.EnsembleDecision{Direction: types.DirNone, Votes: full}
	var score, agreeing float64
	switch {
	case buy > sell:
		d.Direction, score, agreeing = types.DirBuy, buy, buyWeight
	case sell > buy:
		d.Direction, score, agreeing = types.DirSell, sell, sellWeight
	default:
		return d, nil
	}
	if directional > 0 {
		d.Confidence = math.Min(1, score/directional)
	}
	if total > 0 {
		d.Consensus = math.Min(1, agreeing/total)
	}
	return d, nil
}

// Aggregator applies Aggregate with fixed weights, logging and recording
// every decision.
type Aggregator struct {
	weights config.WeightConfig
	log     logger.Logger
}

func NewAggregator(cfg config.EnsembleConfig, log logger.Logger) (*Aggregator, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWeights, err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Aggregator{weights: cfg.Weights.Normalized(), log: log}, nil
}

// Weights returns the normalised weights in use.
func (a *Aggregator) Weights() config.WeightConfig {
	out := make(config.WeightConfig, len(a.weights))
	for k, v := range a.weights {
		out[k] = v
	}
	return out
}

// Decide fills in missing providers and aggregates. Only duplicate or
// unknown strategies and out-of-range confidences are errors.
func (a *Aggregator) Decide(votes []types.StrategyVote) (types.EnsembleDecision, error) {
	if err := validateVotes(votes); err != nil {
		a.log.Warn("ensemble_invalid_votes", logger.Err(err))
		return types.EnsembleDecision{}, err
	}
	d, err := Aggregate(Complete(votes), a.weights)
	if err != nil {
		return d, err
	}
	for _, v := range d.Votes {
		metrics.StrategyVotes.WithLabelValues(string(v.Strategy), string(v.Direction)).Inc()
	}
	metrics.EnsembleDecisions.WithLabelValues(string(d.Direction)).Inc()
	if d.Direction != types.DirNone {
		metrics.EnsembleConfidence.Observe(d.Confidence)
	}
	a.log.Info("ensemble_decision",
		logger.String("direction", string(d.Direction)),
		logger.Float64("confidence", d.Confidence),
		logger.Float64("consensus", d.Consensus),
	)
	return d, nil
}
