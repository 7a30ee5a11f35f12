package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewVoteClampsConfidence(t *testing.T) {
	assert.Equal(t, 1.0, NewVote(Swing, DirBuy, 1.7).Confidence)
	assert.Equal(t, 0.0, NewVote(Swing, DirSell, -0.2).Confidence)
	assert.Equal(t, 0.0, NewVote(Swing, DirBuy, math.NaN()).Confidence)
	assert.Equal(t, 0.0, NewVote(Swing, DirNone, 0.9).Confidence, "NONE votes carry no confidence")
}

func TestAllStrategiesOrderIsFixed(t *testing.T) {
	ids := AllStrategies()
	assert.Equal(t, []StrategyID{Swing, Momentum, MeanReversion, TrendFollowing}, ids)

	// mutating the returned slice must not leak into the next call
	ids[0] = "bogus"
	assert.Equal(t, Swing, AllStrategies()[0])
	assert.False(t, StrategyID("bogus").Known())
}

func TestDirectionSide(t *testing.T) {
	s, ok := DirBuy.Side()
	assert.True(t, ok)
	assert.Equal(t, Buy, s)
	s, ok = DirSell.Side()
	assert.True(t, ok)
	assert.Equal(t, Sell, s)
	_, ok = DirNone.Side()
	assert.False(t, ok)
}
