// Package rl is the tabular Q-learning position sizer: a fixed menu of
// allocation and leverage actions, a value table keyed by discrete market
// state, and an epsilon-greedy policy over it.
package rl

import (
	"fmt"
	"sort"
	"sync"

	"github.com/evdnx/gotsrl/marketstate"
	"github.com/evdnx/gotsrl/store"
	"github.com/evdnx/gotsrl/types"
)

var (
	allocationLevels = [...]float64{0.20, 0.33, 0.50, 0.70, 1.00}
	leverageLevels   = [...]float64{0.5, 1.0, 1.5}
)

// NumActions is the size of the action menu.
const NumActions = len(allocationLevels) * len(leverageLevels)

// Actions lists every action; index = allocationIdx*3 + leverageIdx.
var Actions = func() [NumActions]types.Action {
	var out [NumActions]types.Action
	for i, a := range allocationLevels {
		for j, l := range leverageLevels {
			out[i*len(leverageLevels)+j] = types.Action{Allocation: a, LeverageMultiplier: l}
		}
	}
	return out
}()

func validAction(a int) bool { return a >= 0 && a < NumActions }

// ActionAt returns the action for index a.
func ActionAt(a int) (types.Action, error) {
	if !validAction(a) {
		return types.Action{}, fmt.Errorf("%w: %d", ErrInvalidAction, a)
	}
	return Actions[a], nil
}

type row [NumActions]float64

// QTable maps discrete states to one value per action. Missing states
// read as all zeros. Safe for concurrent use.
type QTable struct {
	mu   sync.RWMutex
	rows map[marketstate.DiscreteState]*row
}

func NewQTable() *QTable {
	return &QTable{rows: make(map[marketstate.DiscreteState]*row)}
}

// Value returns Q(s, a). Unknown states and out-of-range actions read as 0.
func (t *QTable) Value(s marketstate.DiscreteState, a int) float64 {
	if !validAction(a) {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.rows[s]; ok {
		return r[a]
	}
	return 0
}

// Row returns a copy of the values for s.
func (t *QTable) Row(s marketstate.DiscreteState) [NumActions]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.rows[s]; ok {
		return *r
	}
	return row{}
}

// Set overwrites Q(s, a).
func (t *QTable) Set(s marketstate.DiscreteState, a int, v float64) error {
	if !validAction(a) {
		return fmt.Errorf("%w: %d", ErrInvalidAction, a)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rowLocked(s)[a] = v
	return nil
}

// Apply replaces Q(s, a) with fn(Q(s, a), max_a' Q(next, a')) under a single
// write lock. A nil next passes 0 for the maximum. It returns the old and new
// values. An out-of-range action leaves the table untouched.
func (t *QTable) Apply(s marketstate.DiscreteState, a int, next *marketstate.DiscreteState, fn func(old, maxNext float64) float64) (float64, float64) {
	if !validAction(a) {
		return 0, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	maxNext := 0.0
	if next != nil {
		if r, ok := t.rows[*next]; ok {
			maxNext = maxOf(r)
		}
	}
	r := t.rowLocked(s)
	old := r[a]
	r[a] = fn(old, maxNext)
	return old, r[a]
}

func (t *QTable) rowLocked(s marketstate.DiscreteState) *row {
	r, ok := t.rows[s]
	if !ok {
		r = new(row)
		t.rows[s] = r
	}
	return r
}

// Len is the number of states with a row.
func (t *QTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// States lists the states with a row, ordered by key.
func (t *QTable) States() []marketstate.DiscreteState {
	t.mu.RLock()
	out := make([]marketstate.DiscreteState, 0, len(t.rows))
	for s := range t.rows {
		out = append(out, s)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Reset drops every row.
func (t *QTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = make(map[marketstate.DiscreteState]*row)
}

// Snapshot flattens the table for persistence, every action of every row.
func (t *QTable) Snapshot() map[store.Key]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[store.Key]float64, len(t.rows)*NumActions)
	for s, r := range t.rows {
		key := s.Key()
		for a, v := range r {
			out[store.Key{State: key, Action: a}] = v
		}
	}
	return out
}

// FromSnapshot rebuilds a table. Keys that do not decode to a state or an
// action index yield an error wrapping store.ErrCorrupt.
func FromSnapshot(values map[store.Key]float64) (*QTable, error) {
	t := NewQTable()
	for k, v := range values {
		s, err := marketstate.ParseDiscreteState(k.State)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrCorrupt, err)
		}
		if !validAction(k.Action) {
			return nil, fmt.Errorf("%w: action %d", store.ErrCorrupt, k.Action)
		}
		t.rowLocked(s)[k.Action] = v
	}
	return t, nil
}

func maxOf(r *row) float64 {
	m := r[0]
	for _, v := range r[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// argmax returns the lowest index holding the largest value.
func argmax(r [NumActions]float64) int {
	best := 0
	for i := 1; i < NumActions; i++ {
		if r[i] > r[best] {
			best = i
		}
	}
	return best
}
