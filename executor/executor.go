package executor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/metrics"
	"github.com/evdnx/gotsrl/risk"
	"github.com/evdnx/gotsrl/types"
)

var (
	ErrPositionOpen       = errors.New("executor: position already open")
	ErrInsufficientMargin = errors.New("executor: insufficient margin")
	ErrQtyTooSmall        = errors.New("executor: quantity below exchange minimum")
	ErrNoDirection        = errors.New("executor: NONE is not tradable")
)

// OpenRequest is a sized entry.
type OpenRequest struct {
	TradeID   string
	Symbol    string
	Direction types.Direction
	Capital   float64 // margin committed
	Leverage  float64
	Price     float64
}

// Position is an open leveraged position with its exit levels.
type Position struct {
	TradeID    string
	Symbol     string
	Side       types.Side
	Qty        float64
	Entry      float64
	Margin     float64
	Leverage   float64
	StopLoss   float64
	TakeProfit float64 // 0 = none
	// SizeFraction is the margin as a share of equity at entry.
	SizeFraction float64
}

// Exit describes a closed position.
type Exit struct {
	TradeID string
	Price   float64
	Outcome types.TradeOutcome
	Trade   types.ClosedTrade
}

type Executor interface {
	Open(req OpenRequest) (Position, error)
	CheckExits(symbol string, high, low, close float64) *Exit
	Close(symbol string, price float64) *Exit
	// For back‑testing we expose the portfolio state
	Equity() float64
	Position(symbol string) (Position, bool)
}

// PaperExecutor is a margin paper‑trader: perfect fills, no slippage, one
// position per symbol.
type PaperExecutor struct {
	mu        sync.Mutex
	cfg       config.StrategyConfig
	log       logger.Logger
	equity    float64
	positions map[string]*Position
	orders    []types.Order
}

func NewPaperExecutor(startEquity float64, cfg config.StrategyConfig, log logger.Logger) *PaperExecutor {
	if log == nil {
		log = logger.NewNop()
	}
	metrics.EquityGauge.Set(startEquity)
	return &PaperExecutor{
		cfg:       cfg,
		log:       log,
		equity:    startEquity,
		positions: make(map[string]*Position),
	}
}

// Open fills req at req.Price and places the stop-loss and take-profit.
func (p *PaperExecutor) Open(req OpenRequest) (Position, error) {
	side, ok := req.Direction.Side()
	if !ok {
		return Position{}, ErrNoDirection
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, open := p.positions[req.Symbol]; open {
		return Position{}, fmt.Errorf("%w: %s", ErrPositionOpen, req.Symbol)
	}
	if req.Capital > p.availableLocked() {
		return Position{}, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientMargin, req.Capital, p.availableLocked())
	}
	qty := risk.CalcQty(req.Capital, req.Leverage, req.Price, p.cfg)
	if qty <= 0 {
		return Position{}, ErrQtyTooSmall
	}
	pos := &Position{
		TradeID:  req.TradeID,
		Symbol:   req.Symbol,
		Side:     side,
		Qty:      qty,
		Entry:    req.Price,
		Margin:   qty * req.Price / req.Leverage,
		Leverage: req.Leverage,
	}
	if p.equity > 0 {
		pos.SizeFraction = pos.Margin / p.equity
	}
	sl, tp := p.cfg.StopLossPct, p.cfg.TakeProfitPct
	if side == types.Buy {
		pos.StopLoss = req.Price * (1 - sl)
		if tp > 0 {
			pos.TakeProfit = req.Price * (1 + tp)
		}
	} else {
		pos.StopLoss = req.Price * (1 + sl)
		if tp > 0 {
			pos.TakeProfit = req.Price * (1 - tp)
		}
	}
	p.positions[req.Symbol] = pos
	p.submitLocked(types.Order{Symbol: req.Symbol, Side: side, Qty: qty, Price: req.Price, Comment: "open " + req.TradeID})
	return *pos, nil
}

// CheckExits closes the symbol's position when the bar touched its
// stop-loss or take-profit. The stop is checked first when a bar spans both.
func (p *PaperExecutor) CheckExits(symbol string, high, low, close float64) *Exit {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return nil
	}
	long := pos.Side == types.Buy
	switch {
	case long && low <= pos.StopLoss, !long && high >= pos.StopLoss:
		return p.closeLocked(pos, pos.StopLoss, true, false)
	case pos.TakeProfit > 0 && long && high >= pos.TakeProfit,
		pos.TakeProfit > 0 && !long && low <= pos.TakeProfit:
		return p.closeLocked(pos, pos.TakeProfit, false, true)
	}
	return nil
}

// Close flattens the symbol's position at price.
func (p *PaperExecutor) Close(symbol string, price float64) *Exit {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return nil
	}
	return p.closeLocked(pos, price, false, false)
}

func (p *PaperExecutor) closeLocked(pos *Position, price float64, hitSL, hitTP bool) *Exit {
	dir := 1.0
	exitSide := types.Sell
	if pos.Side == types.Sell {
		dir = -1
		exitSide = types.Buy
	}
	pnl := (price - pos.Entry) * pos.Qty * dir
	pct := 0.0
	if pos.Margin > 0 {
		pct = pnl / pos.Margin * 100
	}
	p.equity += pnl
	delete(p.positions, pos.Symbol)
	p.submitLocked(types.Order{Symbol: pos.Symbol, Side: exitSide, Qty: pos.Qty, Price: price, Comment: "close " + pos.TradeID})

	return &Exit{
		TradeID: pos.TradeID,
		Price:   price,
		Outcome: types.TradeOutcome{
			PnLPercent:           pct,
			HitStopLoss:          hitSL,
			HitTakeProfit:        hitTP,
			PositionSizeFraction: pos.SizeFraction,
		},
		Trade: types.ClosedTrade{PnLPercent: pct, PnLAmount: pnl},
	}
}

func (p *PaperExecutor) submitLocked(o types.Order) {
	p.orders = append(p.orders, o)
	metrics.OrdersSubmitted.WithLabelValues(string(o.Side)).Inc()
	metrics.EquityGauge.Set(p.equity)
	p.log.Info("order_filled",
		logger.String("symbol", o.Symbol),
		logger.String("side", string(o.Side)),
		logger.Float64("qty", o.Qty),
		logger.Float64("price", o.Price),
		logger.Float64("equity", p.equity),
		logger.String("ctx", o.Comment),
	)
}

func (p *PaperExecutor) availableLocked() float64 {
	used := 0.0
	for _, pos := range p.positions {
		used += pos.Margin
	}
	return p.equity - used
}

func (p *PaperExecutor) Equity() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.equity
}

// Available is equity not locked as margin.
func (p *PaperExecutor) Available() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.availableLocked()
}

func (p *PaperExecutor) Position(sym string) (Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[sym]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// OpenCount is the number of open positions.
func (p *PaperExecutor) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.positions)
}

// Orders returns every fill so far.
func (p *PaperExecutor) Orders() []types.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Order(nil), p.orders...)
}
