package rl

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/marketstate"
	"github.com/evdnx/gotsrl/store"
	"github.com/evdnx/gotsrl/testutils"
	"github.com/evdnx/gotsrl/types"
)

var (
	stateA = marketstate.DiscreteState{2, 1, 1, 0, 1, 2}
	stateB = marketstate.DiscreteState{0, 0, 1, 0, 0, 3}
)

func newSizer(t *testing.T, rnd Rand) (*Sizer, *QTable) {
	t.Helper()
	table := NewQTable()
	s, err := NewSizer(table, config.Default().Sizer, rnd, testutils.NewMockLogger())
	require.NoError(t, err)
	return s, table
}

func TestActionTable(t *testing.T) {
	require.Equal(t, 15, NumActions)
	assert.Equal(t, types.Action{Allocation: 0.20, LeverageMultiplier: 0.5}, Actions[0])
	assert.Equal(t, types.Action{Allocation: 0.20, LeverageMultiplier: 1.5}, Actions[2])
	assert.Equal(t, types.Action{Allocation: 0.50, LeverageMultiplier: 1.0}, Actions[7])
	assert.Equal(t, types.Action{Allocation: 1.00, LeverageMultiplier: 1.5}, Actions[14])

	_, err := ActionAt(15)
	assert.ErrorIs(t, err, ErrInvalidAction)
	_, err = ActionAt(-1)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestGreedyTieBreaksToLowestIndex(t *testing.T) {
	s, table := newSizer(t, nil)
	// empty row: all zeros
	assert.Equal(t, 0, s.SelectAction(stateA, false))

	table.Set(stateA, 9, 1.5)
	table.Set(stateA, 4, 1.5)
	table.Set(stateA, 12, 1.2)
	assert.Equal(t, 4, s.SelectAction(stateA, false))

	table.Set(stateA, 0, -3)
	table.Set(stateB, 3, -1)
	// state B: every other action is 0 > -1
	assert.Equal(t, 0, s.SelectAction(stateB, false))
}

func TestExploitNeverDrawsRandom(t *testing.T) {
	rnd := testutils.NewScriptedRand([]float64{0}, []int{13})
	s, table := newSizer(t, rnd)
	table.Set(stateA, 6, 2)

	for i := 0; i < 20; i++ {
		assert.Equal(t, 6, s.SelectAction(stateA, false))
	}
	assert.Equal(t, 0, rnd.Calls)
}

func TestTrainingExploresBelowEpsilon(t *testing.T) {
	// 0.05 < 0.1 explores, 0.5 exploits
	rnd := testutils.NewScriptedRand([]float64{0.05, 0.5}, []int{13})
	s, table := newSizer(t, rnd)
	table.Set(stateA, 6, 2)

	assert.Equal(t, 13, s.SelectAction(stateA, true))
	assert.Equal(t, 6, s.SelectAction(stateA, true))
}

func TestZeroEpsilonIsDeterministic(t *testing.T) {
	cfg := config.Default().Sizer
	cfg.Epsilon = 0
	rnd := testutils.NewScriptedRand([]float64{0}, []int{3})
	s, err := NewSizer(NewQTable(), cfg, rnd, nil)
	require.NoError(t, err)
	s.Table().Set(stateA, 8, 1)
	for i := 0; i < 10; i++ {
		assert.Equal(t, 8, s.SelectAction(stateA, true))
	}
	assert.Equal(t, 0, rnd.Calls)
}

func TestSelectActionAlwaysInRange(t *testing.T) {
	s, _ := newSizer(t, NewRand(42))
	cfg := config.Default().Sizer
	cfg.Epsilon = 1
	explorer, err := NewSizer(NewQTable(), cfg, NewRand(7), nil)
	require.NoError(t, err)
	for i := 0; i < 500; i++ {
		a := s.SelectAction(stateA, true)
		assert.True(t, a >= 0 && a < NumActions)
		a = explorer.SelectAction(stateB, true)
		assert.True(t, a >= 0 && a < NumActions)
	}
}

func TestUpdateFromColdTable(t *testing.T) {
	s, table := newSizer(t, nil)
	// 0 + 0.1*(10 + 0.95*0 - 0)
	require.NoError(t, s.Update(stateA, 3, 10, nil))
	assert.InDelta(t, 1.0, table.Value(stateA, 3), 1e-12)
	assert.Equal(t, 0.0, table.Value(stateA, 2), "other actions untouched")
}

func TestUpdateBootstrapsFromNextState(t *testing.T) {
	s, table := newSizer(t, nil)
	table.Set(stateB, 1, 2)
	table.Set(stateB, 5, 4)
	table.Set(stateA, 0, 1)

	require.NoError(t, s.Update(stateA, 0, 1, &stateB))
	// 1 + 0.1*(1 + 0.95*4 - 1) = 1.38
	assert.InDelta(t, 1.38, table.Value(stateA, 0), 1e-12)
}

func TestUpdateMovesTowardTarget(t *testing.T) {
	s, table := newSizer(t, nil)
	for _, start := range []float64{-5, 0, 3, 20} {
		table.Set(stateA, 7, start)
		target := 4.0
		require.NoError(t, s.Update(stateA, 7, target, nil))
		got := table.Value(stateA, 7)
		assert.Less(t, math.Abs(got-target), math.Abs(start-target))
	}
}

func TestUpdateRejectsBadInput(t *testing.T) {
	s, table := newSizer(t, nil)
	assert.ErrorIs(t, s.Update(stateA, 15, 1, nil), ErrInvalidAction)
	assert.ErrorIs(t, s.Update(stateA, -1, 1, nil), ErrInvalidAction)
	assert.Error(t, s.Update(stateA, 0, math.NaN(), nil))
	assert.Equal(t, 0, table.Len())
}

func TestConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	cfg := config.Default().Sizer
	cfg.LearningRate = 1
	cfg.DiscountFactor = 0
	table := NewQTable()
	s, err := NewSizer(table, cfg, nil, nil)
	require.NoError(t, err)

	// with lr=1, gamma=0 each update sets Q to the reward; run per-action
	var wg sync.WaitGroup
	for a := 0; a < NumActions; a++ {
		wg.Add(1)
		go func(a int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = s.Update(stateA, a, float64(a), nil)
				_ = s.SelectAction(stateA, false)
			}
		}(a)
	}
	wg.Wait()
	for a := 0; a < NumActions; a++ {
		assert.Equal(t, float64(a), table.Value(stateA, a))
	}
}

func TestSizeRawNumbers(t *testing.T) {
	s, _ := newSizer(t, nil)
	sz, err := s.Size(7, 1000, 3) // 0.50 × 1.0
	require.NoError(t, err)
	assert.InDelta(t, 500, sz.Capital, 1e-9)
	assert.InDelta(t, 3, sz.Leverage, 1e-9)

	sz, err = s.Size(14, 1000, 3) // 1.00 × 1.5
	require.NoError(t, err)
	assert.InDelta(t, 1000, sz.Capital, 1e-9)
	assert.InDelta(t, 4.5, sz.Leverage, 1e-9)

	_, err = s.Size(99, 1000, 3)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestStats(t *testing.T) {
	s, table := newSizer(t, nil)
	table.Set(stateA, 1, 0.5)
	table.Set(stateB, 2, -0.5)
	table.Set(stateB, 3, 0)
	st := s.Stats()
	assert.Equal(t, 2, st.States)
	assert.Equal(t, 2, st.NonZero)
	assert.Equal(t, 0.1, st.Epsilon)

	states := table.States()
	require.Len(t, states, 2)
	assert.Less(t, states[0].Key(), states[1].Key())

	table.Reset()
	assert.Equal(t, 0, table.Len())
	assert.Empty(t, table.States())
}

func TestOutOfRangeActionsAreIgnored(t *testing.T) {
	table := NewQTable()
	require.NoError(t, table.Set(stateA, 2, 1.5))

	assert.Equal(t, 0.0, table.Value(stateA, -1))
	assert.Equal(t, 0.0, table.Value(stateA, NumActions))
	assert.ErrorIs(t, table.Set(stateA, NumActions, 9), ErrInvalidAction)
	assert.ErrorIs(t, table.Set(stateB, -1, 9), ErrInvalidAction)

	old, updated := table.Apply(stateA, 99, nil, func(float64, float64) float64 { return 42 })
	assert.Equal(t, 0.0, old)
	assert.Equal(t, 0.0, updated)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, 1.5, table.Row(stateA)[2])
}

func TestNewSizerValidates(t *testing.T) {
	cfg := config.Default().Sizer
	cfg.LearningRate = 0
	_, err := NewSizer(nil, cfg, nil, nil)
	assert.Error(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	table := NewQTable()
	table.Set(stateA, 0, 0.1)
	table.Set(stateA, 14, -7.25)
	table.Set(stateB, 5, 1.0/3.0)

	snap := table.Snapshot()
	assert.Len(t, snap, 2*NumActions)

	back, err := FromSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, table.Row(stateA), back.Row(stateA))
	assert.Equal(t, table.Row(stateB), back.Row(stateB))

	_, err = FromSnapshot(map[store.Key]float64{{State: "nope", Action: 1}: 1})
	assert.ErrorIs(t, err, store.ErrCorrupt)
	_, err = FromSnapshot(map[store.Key]float64{{State: stateA.Key(), Action: 15}: 1})
	assert.ErrorIs(t, err, store.ErrCorrupt)
}

func TestLoadSaveThroughStore(t *testing.T) {
	ctx := context.Background()
	st := testutils.NewMockStore()
	log := testutils.NewMockLogger()

	cold := LoadTable(ctx, st, log)
	assert.Equal(t, 0, cold.Len())
	assert.True(t, log.Has("info", "qtable_cold_start"))

	cold.Set(stateA, 2, 3.5)
	require.NoError(t, SaveTable(ctx, st, cold))

	warm := LoadTable(ctx, st, log)
	assert.Equal(t, 3.5, warm.Value(stateA, 2))
	assert.Equal(t, cold.Row(stateA), warm.Row(stateA))
}

func TestLoadTableToleratesBrokenStore(t *testing.T) {
	ctx := context.Background()
	log := testutils.NewMockLogger()

	st := testutils.NewMockStore()
	st.LoadErr = errors.New("connection reset")
	assert.Equal(t, 0, LoadTable(ctx, st, log).Len())
	assert.True(t, log.Has("warn", "qtable_load_failed"))

	bad := testutils.NewMockStore()
	require.NoError(t, bad.Save(ctx, map[store.Key]float64{{State: "1_2", Action: 0}: 1}))
	assert.Equal(t, 0, LoadTable(ctx, bad, log).Len())
	assert.Equal(t, 2, log.Count("warn"))
}

func TestSaveTableReportsFailure(t *testing.T) {
	st := testutils.NewMockStore()
	st.SaveErr = errors.New("read-only file system")
	assert.Error(t, SaveTable(context.Background(), st, NewQTable()))
}
