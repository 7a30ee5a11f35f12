// Package engine runs one evaluation cycle: votes in, a sized trade (or a
// reason not to trade) out. It also closes the loop when a trade finishes,
// turning the outcome into a reward and a value-table update.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/ensemble"
	"github.com/evdnx/gotsrl/gate"
	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/marketstate"
	"github.com/evdnx/gotsrl/metrics"
	"github.com/evdnx/gotsrl/reward"
	"github.com/evdnx/gotsrl/risk"
	"github.com/evdnx/gotsrl/rl"
	"github.com/evdnx/gotsrl/store"
	"github.com/evdnx/gotsrl/types"
)

// ErrUnknownTrade is returned by Close for ids that are not open.
var ErrUnknownTrade = errors.New("engine: unknown trade")

// Reasons reported with a no-trade decision.
const (
	ReasonNoDirection   = "no_direction"
	ReasonLowConfidence = "low_confidence"
	ReasonNoCapital     = "no_capital"
	ReasonVetoPrefix    = "vetoed_"
)

// Deps are the collaborators of an Engine.
type Deps struct {
	Aggregator    *ensemble.Aggregator
	Extractor     *marketstate.Extractor
	Discretizer   *marketstate.Discretizer
	Sizer         *rl.Sizer
	Reward        reward.Func
	Store         store.Store
	Limits        risk.Limits
	Gate          *gate.Gate
	MinConfidence float64
	BaseLeverage  float64
	Log           logger.Logger
	Now           func() time.Time
}

// Input is everything one evaluation needs.
type Input struct {
	Symbol           string
	Votes            []types.StrategyVote
	Market           marketstate.Input
	AvailableCapital float64
	// Training enables exploration. Live trading leaves it off.
	Training  bool
	Sentiment *gate.SentimentScore
	OnChain   *gate.OnChainSignal
}

// Decision is the engine's answer for one cycle.
type Decision struct {
	Trade     bool                   `json:"trade"`
	Reason    string                 `json:"reason,omitempty"`
	TradeID   string                 `json:"trade_id,omitempty"`
	Symbol    string                 `json:"symbol,omitempty"`
	Direction types.Direction        `json:"direction"`
	Ensemble  types.EnsembleDecision `json:"ensemble"`
	State     string                 `json:"state,omitempty"`
	Action    int                    `json:"action"`
	Choice    types.Action           `json:"choice"`
	Capital   float64                `json:"capital"`
	Leverage  float64                `json:"leverage"`
}

// OpenTrade is the journal entry kept between Evaluate and Close.
type OpenTrade struct {
	ID        string                    `json:"id"`
	Symbol    string                    `json:"symbol"`
	Direction types.Direction           `json:"direction"`
	State     marketstate.DiscreteState `json:"state"`
	Action    int                       `json:"action"`
	OpenedAt  time.Time                 `json:"opened_at"`
}

// Engine is safe for concurrent use.
type Engine struct {
	d Deps

	mu   sync.Mutex
	open map[string]OpenTrade

	// saveMu covers snapshot and write so the last save holds the newest table.
	saveMu sync.Mutex
}

func New(d Deps) (*Engine, error) {
	if d.Aggregator == nil || d.Extractor == nil || d.Discretizer == nil || d.Sizer == nil || d.Store == nil {
		return nil, errors.New("engine: aggregator, extractor, discretizer, sizer and store are required")
	}
	if d.BaseLeverage <= 0 {
		return nil, fmt.Errorf("engine: base leverage %v must be positive", d.BaseLeverage)
	}
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Engine{d: d, open: make(map[string]OpenTrade)}, nil
}

// NewFromConfig wires an engine from configuration around an existing
// table and store.
func NewFromConfig(cfg config.Config, table *rl.QTable, st store.Store, rnd rl.Rand, log logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	agg, err := ensemble.NewAggregator(cfg.Ensemble, log)
	if err != nil {
		return nil, err
	}
	ext, err := marketstate.NewExtractor(cfg.State)
	if err != nil {
		return nil, err
	}
	disc, err := marketstate.NewDiscretizer(cfg.State.Buckets)
	if err != nil {
		return nil, err
	}
	sizer, err := rl.NewSizer(table, cfg.Sizer, rnd, log)
	if err != nil {
		return nil, err
	}
	rf, err := reward.New(cfg.Reward)
	if err != nil {
		return nil, err
	}
	g, err := gate.New(cfg.Gate)
	if err != nil {
		return nil, err
	}
	return New(Deps{
		Aggregator:    agg,
		Extractor:     ext,
		Discretizer:   disc,
		Sizer:         sizer,
		Reward:        rf,
		Store:         st,
		Limits:        risk.NewLimits(cfg.Limits),
		Gate:          g,
		MinConfidence: cfg.Ensemble.MinConfidence,
		BaseLeverage:  cfg.Limits.BaseLeverage,
		Log:           log,
	})
}

func (e *Engine) Sizer() *rl.Sizer { return e.d.Sizer }

// Evaluate aggregates the votes and, when the decision is strong enough and
// not vetoed, sizes a trade and records it as open. Only malformed votes
// are errors.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	ens, err := e.d.Aggregator.Decide(in.Votes)
	if err != nil {
		return Decision{}, err
	}
	dec := Decision{Symbol: in.Symbol, Direction: ens.Direction, Ensemble: ens, Action: -1}

	switch {
	case ens.Direction == types.DirNone:
		return e.skip(dec, ReasonNoDirection), nil
	case ens.Confidence < e.d.MinConfidence:
		return e.skip(dec, ReasonLowConfidence), nil
	}
	if ok, filter := e.d.Gate.Check(ens.Direction, in.Sentiment, in.OnChain); !ok {
		return e.skip(dec, ReasonVetoPrefix+filter), nil
	}

	market := in.Market
	market.SignalConfidence = ens.Confidence
	st := e.d.Discretizer.Discretize(e.d.Extractor.Extract(market))
	a := e.d.Sizer.SelectAction(st, in.Training)
	sz, err := e.d.Sizer.Size(a, in.AvailableCapital, e.d.BaseLeverage)
	if err != nil {
		return Decision{}, err
	}
	capital, leverage := e.d.Limits.Clamp(sz.Capital, in.AvailableCapital, sz.Leverage)

	dec.State = st.Key()
	dec.Action = a
	dec.Choice = sz.Choice
	dec.Capital = capital
	dec.Leverage = leverage
	if capital <= 0 {
		return e.skip(dec, ReasonNoCapital), nil
	}

	trade := OpenTrade{
		ID:        uuid.NewString(),
		Symbol:    in.Symbol,
		Direction: ens.Direction,
		State:     st,
		Action:    a,
		OpenedAt:  e.d.Now(),
	}
	e.mu.Lock()
	e.open[trade.ID] = trade
	n := len(e.open)
	e.mu.Unlock()
	metrics.TradesOpen.Set(float64(n))

	dec.Trade = true
	dec.TradeID = trade.ID
	e.d.Log.Info("trade_approved",
		logger.String("trade_id", trade.ID),
		logger.String("symbol", in.Symbol),
		logger.String("direction", string(ens.Direction)),
		logger.String("state", dec.State),
		logger.Int("action", a),
		logger.Any("choice", sz.Choice),
		logger.Float64("capital", capital),
		logger.Float64("leverage", leverage),
	)
	return dec, nil
}

func (e *Engine) skip(d Decision, reason string) Decision {
	d.Trade = false
	d.Reason = reason
	e.d.Log.Debug("trade_skipped",
		logger.String("symbol", d.Symbol),
		logger.String("reason", reason),
	)
	return d
}

// Close settles a trade exactly once: reward, value update, then a save.
// A failed save is logged and does not fail the call; the update stays
// in memory and goes out with the next successful save. next describes
// the market after the trade; nil treats the transition as terminal.
// A trade whose update is rejected, such as one with an infinite PnL,
// stays open.
func (e *Engine) Close(ctx context.Context, tradeID string, outcome types.TradeOutcome, next *marketstate.Input) (float64, error) {
	e.mu.Lock()
	trade, ok := e.open[tradeID]
	if ok {
		delete(e.open, tradeID)
	}
	n := len(e.open)
	e.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTrade, tradeID)
	}
	metrics.TradesOpen.Set(float64(n))

	r := e.d.Reward.Compute(outcome)
	metrics.TradeReward.Observe(r)

	var nextState *marketstate.DiscreteState
	if next != nil {
		s := e.d.Discretizer.Discretize(e.d.Extractor.Extract(*next))
		nextState = &s
	}
	if err := e.d.Sizer.Update(trade.State, trade.Action, r, nextState); err != nil {
		// still open: the caller may retry with a usable outcome or cancel
		e.mu.Lock()
		e.open[tradeID] = trade
		n = len(e.open)
		e.mu.Unlock()
		metrics.TradesOpen.Set(float64(n))
		return r, err
	}
	e.save(ctx, tradeID)
	e.d.Log.Info("trade_closed",
		logger.String("trade_id", tradeID),
		logger.Float64("pnl_percent", outcome.PnLPercent),
		logger.Bool("hit_stop_loss", outcome.HitStopLoss),
		logger.Bool("hit_take_profit", outcome.HitTakeProfit),
		logger.Float64("reward", r),
	)
	return r, nil
}

func (e *Engine) save(ctx context.Context, tradeID string) {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	if err := rl.SaveTable(ctx, e.d.Store, e.d.Sizer.Table()); err != nil {
		e.d.Log.Warn("qtable_save_failed", logger.String("trade_id", tradeID), logger.Err(err))
		return
	}
	e.d.Log.Info("qtable_saved", logger.Int("states", e.d.Sizer.Table().Len()))
}

// Cancel drops an open trade without learning from it, for entries the
// execution layer refused. It reports whether the id was open.
func (e *Engine) Cancel(tradeID string) bool {
	e.mu.Lock()
	_, ok := e.open[tradeID]
	delete(e.open, tradeID)
	n := len(e.open)
	e.mu.Unlock()
	if ok {
		metrics.TradesOpen.Set(float64(n))
		e.d.Log.Info("trade_cancelled", logger.String("trade_id", tradeID))
	}
	return ok
}

// OpenTrades lists open trades, oldest first.
func (e *Engine) OpenTrades() []OpenTrade {
	e.mu.Lock()
	out := make([]OpenTrade, 0, len(e.open))
	for _, t := range e.open {
		out = append(out, t)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
