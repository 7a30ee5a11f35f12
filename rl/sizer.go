package rl

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/marketstate"
	"github.com/evdnx/gotsrl/metrics"
	"github.com/evdnx/gotsrl/types"
)

// ErrInvalidAction is returned for action indices outside [0, NumActions).
var ErrInvalidAction = errors.New("rl: invalid action index")

// Rand is the exploration source. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// NewRand returns a seeded source; seed 0 seeds from the clock.
func NewRand(seed int64) Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Sizing is the raw capital and leverage derived from an action, before
// account and exchange limits are applied.
type Sizing struct {
	Action   int          `json:"action"`
	Choice   types.Action `json:"choice"`
	Capital  float64      `json:"capital"`
	Leverage float64      `json:"leverage"`
}

// Stats summarises the table.
type Stats struct {
	States       int     `json:"num_states"`
	NonZero      int     `json:"non_zero_values"`
	LearningRate float64 `json:"learning_rate"`
	Epsilon      float64 `json:"epsilon"`
}

// Sizer picks actions epsilon-greedily from a QTable and learns from
// rewards. The table is injected so tests can use an in-memory one and
// callers decide when it is persisted.
type Sizer struct {
	table *QTable
	cfg   config.SizerConfig
	log   logger.Logger

	rndMu sync.Mutex
	rnd   Rand
}

func NewSizer(table *QTable, cfg config.SizerConfig, rnd Rand, log logger.Logger) (*Sizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if table == nil {
		table = NewQTable()
	}
	if rnd == nil {
		rnd = NewRand(cfg.Seed)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Sizer{table: table, cfg: cfg, rnd: rnd, log: log}, nil
}

func (s *Sizer) Table() *QTable { return s.table }

// SelectAction explores with probability epsilon when training; otherwise
// it returns the best-valued action for st, lowest index on ties. The
// random source is only consulted when training.
func (s *Sizer) SelectAction(st marketstate.DiscreteState, training bool) int {
	mode := "exploit"
	var a int
	if training && s.explore() {
		mode = "explore"
		a = s.randomAction()
	} else {
		a = argmax(s.table.Row(st))
	}
	metrics.SizingActions.WithLabelValues(strconv.Itoa(a), mode).Inc()
	s.log.Debug("sizing_action_selected",
		logger.String("state", st.Key()),
		logger.Int("action", a),
		logger.String("mode", mode),
	)
	return a
}

func (s *Sizer) explore() bool {
	if s.cfg.Epsilon <= 0 {
		return false
	}
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.rnd.Float64() < s.cfg.Epsilon
}

func (s *Sizer) randomAction() int {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	a := s.rnd.Intn(NumActions)
	if !validAction(a) {
		return 0
	}
	return a
}

// Update applies Q(s,a) += lr * (reward + gamma*max Q(next) - Q(s,a)).
// A nil next marks a terminal transition.
func (s *Sizer) Update(st marketstate.DiscreteState, a int, reward float64, next *marketstate.DiscreteState) error {
	if !validAction(a) {
		return fmt.Errorf("%w: %d", ErrInvalidAction, a)
	}
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		return fmt.Errorf("rl: reward %v is not finite", reward)
	}
	lr, gamma := s.cfg.LearningRate, s.cfg.DiscountFactor
	old, updated := s.table.Apply(st, a, next, func(old, maxNext float64) float64 {
		return old + lr*(reward+gamma*maxNext-old)
	})
	metrics.QUpdates.Inc()
	metrics.QTableStates.Set(float64(s.table.Len()))
	s.log.Debug("q_update",
		logger.String("state", st.Key()),
		logger.Int("action", a),
		logger.Float64("reward", reward),
		logger.Float64("old", old),
		logger.Float64("new", updated),
	)
	return nil
}

// Size converts action a into raw capital and leverage.
func (s *Sizer) Size(a int, availableCapital, baseLeverage float64) (Sizing, error) {
	act, err := ActionAt(a)
	if err != nil {
		return Sizing{}, err
	}
	return Sizing{
		Action:   a,
		Choice:   act,
		Capital:  availableCapital * act.Allocation,
		Leverage: baseLeverage * act.LeverageMultiplier,
	}, nil
}

// Best returns the greedy action for st and its value.
func (s *Sizer) Best(st marketstate.DiscreteState) (int, float64) {
	r := s.table.Row(st)
	a := argmax(r)
	return a, r[a]
}

func (s *Sizer) Stats() Stats {
	snap := s.table.Snapshot()
	nz := 0
	for _, v := range snap {
		if v != 0 {
			nz++
		}
	}
	return Stats{
		States:       s.table.Len(),
		NonZero:      nz,
		LearningRate: s.cfg.LearningRate,
		Epsilon:      s.cfg.Epsilon,
	}
}
