package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/gate"
	"github.com/evdnx/gotsrl/marketstate"
	"github.com/evdnx/gotsrl/rl"
	"github.com/evdnx/gotsrl/store"
	"github.com/evdnx/gotsrl/testutils"
	"github.com/evdnx/gotsrl/types"
)

// With no price or trade history and the default buckets the engine lands
// in this state for a 0.7667 confidence decision.
var coldState = marketstate.DiscreteState{0, 0, 1, 0, 0, 2}

type fixture struct {
	eng   *Engine
	table *rl.QTable
	store *testutils.MockStore
	log   *testutils.MockLogger
}

func newFixture(t *testing.T, cfg config.Config, rnd rl.Rand) fixture {
	t.Helper()
	f := fixture{
		table: rl.NewQTable(),
		store: testutils.NewMockStore(),
		log:   testutils.NewMockLogger(),
	}
	if rnd == nil {
		rnd = testutils.NewScriptedRand(nil, nil)
	}
	eng, err := NewFromConfig(cfg, f.table, f.store, rnd, f.log)
	require.NoError(t, err)
	eng.d.Now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	f.eng = eng
	return f
}

func buyVotes() []types.StrategyVote {
	return []types.StrategyVote{
		{Strategy: types.Swing, Direction: types.DirBuy, Confidence: 0.85},
		{Strategy: types.Momentum, Direction: types.DirBuy, Confidence: 0.70},
		{Strategy: types.MeanReversion, Direction: types.DirNone},
		{Strategy: types.TrendFollowing, Direction: types.DirBuy, Confidence: 0.65},
	}
}

func input() Input {
	return Input{Symbol: "BTCUSDT", Votes: buyVotes(), AvailableCapital: 1000}
}

func TestEvaluateSizesGreedyAction(t *testing.T) {
	f := newFixture(t, config.Default(), nil)

	d, err := f.eng.Evaluate(context.Background(), input())
	require.NoError(t, err)
	require.True(t, d.Trade, d.Reason)

	assert.Equal(t, types.DirBuy, d.Direction)
	assert.InDelta(t, 0.7667, d.Ensemble.Confidence, 1e-4)
	assert.Equal(t, coldState.Key(), d.State)
	// empty table: lowest index wins, 20% allocation at half leverage
	assert.Equal(t, 0, d.Action)
	assert.InDelta(t, 200, d.Capital, 1e-9)
	// 3 * 0.5 = 1.5 truncates to 1
	assert.Equal(t, 1.0, d.Leverage)
	assert.NotEmpty(t, d.TradeID)

	open := f.eng.OpenTrades()
	require.Len(t, open, 1)
	assert.Equal(t, d.TradeID, open[0].ID)
	assert.Equal(t, coldState, open[0].State)
	assert.True(t, f.log.Has("info", "trade_approved"))
}

func TestEvaluateAppliesLimits(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.MaxCapitalFraction = 0.5
	f := newFixture(t, cfg, nil)
	f.table.Set(coldState, 14, 5)

	d, err := f.eng.Evaluate(context.Background(), input())
	require.NoError(t, err)
	require.True(t, d.Trade)
	assert.Equal(t, 14, d.Action)
	assert.Equal(t, types.Action{Allocation: 1.0, LeverageMultiplier: 1.5}, d.Choice)
	assert.InDelta(t, 500, d.Capital, 1e-9)
	assert.Equal(t, 4.0, d.Leverage)
}

func TestEvaluateExploresWhenTraining(t *testing.T) {
	f := newFixture(t, config.Default(), testutils.NewScriptedRand([]float64{0}, []int{13}))
	in := input()
	in.Training = true

	d, err := f.eng.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 13, d.Action)
}

func TestEvaluateNoTradeReasons(t *testing.T) {
	none := []types.StrategyVote{
		{Strategy: types.Swing, Direction: types.DirNone},
	}
	bearish := &gate.SentimentScore{Overall: -0.5, Confidence: 1}

	cases := []struct {
		name   string
		mutate func(*config.Config, *Input)
		reason string
	}{
		{"no direction", func(_ *config.Config, in *Input) { in.Votes = none }, ReasonNoDirection},
		{"low confidence", func(c *config.Config, _ *Input) { c.Ensemble.MinConfidence = 0.9 }, ReasonLowConfidence},
		{"sentiment veto", func(_ *config.Config, in *Input) { in.Sentiment = bearish }, "vetoed_sentiment"},
		{"onchain veto", func(_ *config.Config, in *Input) {
			in.OnChain = &gate.OnChainSignal{Type: gate.Bearish, Strength: 0.9}
		}, "vetoed_onchain"},
		{"no capital", func(_ *config.Config, in *Input) { in.AvailableCapital = 0 }, ReasonNoCapital},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			in := input()
			tc.mutate(&cfg, &in)
			f := newFixture(t, cfg, nil)

			d, err := f.eng.Evaluate(context.Background(), in)
			require.NoError(t, err)
			assert.False(t, d.Trade)
			assert.Equal(t, tc.reason, d.Reason)
			assert.Empty(t, f.eng.OpenTrades())
		})
	}
}

func TestDisabledGatePassesVetoes(t *testing.T) {
	cfg := config.Default()
	cfg.Gate.Enabled = false
	f := newFixture(t, cfg, nil)
	in := input()
	in.Sentiment = &gate.SentimentScore{Overall: -1, Confidence: 1}

	d, err := f.eng.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, d.Trade)
}

func TestEvaluateRejectsBadVotes(t *testing.T) {
	f := newFixture(t, config.Default(), nil)
	in := input()
	in.Votes = append(in.Votes, in.Votes[0])

	_, err := f.eng.Evaluate(context.Background(), in)
	assert.Error(t, err)
}

func TestEvaluateHonoursCancelledContext(t *testing.T) {
	f := newFixture(t, config.Default(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.eng.Evaluate(ctx, input())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCloseLearnsAndSaves(t *testing.T) {
	f := newFixture(t, config.Default(), nil)
	d, err := f.eng.Evaluate(context.Background(), input())
	require.NoError(t, err)

	r, err := f.eng.Close(context.Background(), d.TradeID, types.TradeOutcome{PnLPercent: 8, HitTakeProfit: true}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 10.5, r, 1e-12)

	// terminal: 0 + 0.1*(10.5 - 0)
	assert.InDelta(t, 1.05, f.table.Value(coldState, 0), 1e-12)
	assert.Equal(t, 1, f.store.SaveCount())
	assert.InDelta(t, 1.05, f.store.Values()[store.Key{State: coldState.Key(), Action: 0}], 1e-12)
	assert.Empty(t, f.eng.OpenTrades())

	_, err = f.eng.Close(context.Background(), d.TradeID, types.TradeOutcome{}, nil)
	assert.ErrorIs(t, err, ErrUnknownTrade)
	assert.Equal(t, 1, f.store.SaveCount())
}

func TestCloseBootstrapsFromNextState(t *testing.T) {
	f := newFixture(t, config.Default(), nil)
	d, err := f.eng.Evaluate(context.Background(), input())
	require.NoError(t, err)

	next := marketstate.DiscreteState{0, 0, 1, 0, 0, 0}
	f.table.Set(next, 3, 2)

	_, err = f.eng.Close(context.Background(), d.TradeID, types.TradeOutcome{PnLPercent: 1}, &marketstate.Input{})
	require.NoError(t, err)
	// 0.1 * (1 + 0.95*2)
	assert.InDelta(t, 0.29, f.table.Value(coldState, 0), 1e-12)
}

func TestCloseSaveFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, config.Default(), nil)
	f.store.SaveErr = errors.New("disk full")
	d, err := f.eng.Evaluate(context.Background(), input())
	require.NoError(t, err)

	_, err = f.eng.Close(context.Background(), d.TradeID, types.TradeOutcome{PnLPercent: -1}, nil)
	require.NoError(t, err)
	assert.True(t, f.log.Has("warn", "qtable_save_failed"))
	assert.InDelta(t, -0.1, f.table.Value(coldState, 0), 1e-12)
}

func TestConcurrentCloseSettlesOnce(t *testing.T) {
	f := newFixture(t, config.Default(), nil)
	d, err := f.eng.Evaluate(context.Background(), input())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.eng.Close(context.Background(), d.TradeID, types.TradeOutcome{PnLPercent: 1}, nil); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.InDelta(t, 0.1, f.table.Value(coldState, 0), 1e-12)
}

// gatedStore holds its first Save until release is closed.
type gatedStore struct {
	*testutils.MockStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) Save(ctx context.Context, values map[store.Key]float64) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.MockStore.Save(ctx, values)
}

func TestConcurrentClosesPersistNewestTable(t *testing.T) {
	cfg := config.Default()
	table := rl.NewQTable()
	st := &gatedStore{
		MockStore: testutils.NewMockStore(),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	eng, err := NewFromConfig(cfg, table, st, testutils.NewScriptedRand(nil, nil), testutils.NewMockLogger())
	require.NoError(t, err)

	first, err := eng.Evaluate(context.Background(), input())
	require.NoError(t, err)
	second, err := eng.Evaluate(context.Background(), input())
	require.NoError(t, err)
	require.Equal(t, first.Action, second.Action)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := eng.Close(context.Background(), first.TradeID, types.TradeOutcome{PnLPercent: 1}, nil)
		assert.NoError(t, err)
	}()
	<-st.entered
	go func() {
		defer wg.Done()
		_, err := eng.Close(context.Background(), second.TradeID, types.TradeOutcome{PnLPercent: 2}, nil)
		assert.NoError(t, err)
	}()
	// give the second close time to update and reach the store
	time.Sleep(50 * time.Millisecond)
	close(st.release)
	wg.Wait()

	want := table.Value(coldState, first.Action)
	assert.InDelta(t, 0.29, want, 1e-12)
	assert.InDelta(t, want, st.Values()[store.Key{State: coldState.Key(), Action: first.Action}], 1e-12)
	assert.Equal(t, 2, st.SaveCount())
}

func TestCloseKeepsTradeOpenWhenUpdateRejected(t *testing.T) {
	f := newFixture(t, config.Default(), nil)
	d, err := f.eng.Evaluate(context.Background(), input())
	require.NoError(t, err)

	_, err = f.eng.Close(context.Background(), d.TradeID, types.TradeOutcome{PnLPercent: math.Inf(-1)}, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownTrade)
	require.Len(t, f.eng.OpenTrades(), 1)
	assert.Equal(t, 0, f.store.SaveCount())

	r, err := f.eng.Close(context.Background(), d.TradeID, types.TradeOutcome{PnLPercent: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r)
	assert.Empty(t, f.eng.OpenTrades())
}

func TestNewValidatesDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestCancelSkipsLearning(t *testing.T) {
	f := newFixture(t, config.Default(), nil)
	d, err := f.eng.Evaluate(context.Background(), input())
	require.NoError(t, err)

	assert.True(t, f.eng.Cancel(d.TradeID))
	assert.False(t, f.eng.Cancel(d.TradeID))
	_, err = f.eng.Close(context.Background(), d.TradeID, types.TradeOutcome{PnLPercent: 1}, nil)
	assert.ErrorIs(t, err, ErrUnknownTrade)
	assert.Equal(t, 0.0, f.table.Value(coldState, 0))
	assert.Equal(t, 0, f.store.SaveCount())
}
