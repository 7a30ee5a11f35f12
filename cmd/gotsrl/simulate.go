package main

import (
	"context"
	"errors"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/engine"
	"github.com/evdnx/gotsrl/executor"
	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/marketstate"
	"github.com/evdnx/gotsrl/strategy"
	"github.com/evdnx/gotsrl/types"
)

// episodeResult summarises one pass over the bars.
type episodeResult struct {
	Episode     int     `json:"episode"`
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	Skipped     int     `json:"skipped"`
	TotalReward float64 `json:"total_reward"`
	StartEquity float64 `json:"start_equity"`
	FinalEquity float64 `json:"final_equity"`
}

// simulator replays bars through fresh providers and a paper executor,
// training the engine's sizer on every closed position.
type simulator struct {
	cfg    config.Config
	eng    *engine.Engine
	log    logger.Logger
	symbol string
}

func (s *simulator) runEpisode(ctx context.Context, n int, bars []bar) (episodeResult, error) {
	res := episodeResult{Episode: n, StartEquity: s.cfg.State.StartingEquity}
	providers, err := strategy.NewDefaultSet(s.cfg.Strategy, s.log)
	if err != nil {
		return res, err
	}
	ex := executor.NewPaperExecutor(s.cfg.State.StartingEquity, s.cfg.Strategy, s.log)

	closes := make([]float64, 0, len(bars))
	var trades []types.ClosedTrade
	market := func() marketstate.Input {
		return marketstate.Input{Closes: closes, Trades: trades, OpenPositions: ex.OpenCount()}
	}
	settle := func(exit *executor.Exit, confidence float64) error {
		trades = append(trades, exit.Trade)
		next := market()
		next.SignalConfidence = confidence
		r, err := s.eng.Close(ctx, exit.TradeID, exit.Outcome, &next)
		if err != nil {
			return err
		}
		res.Trades++
		if exit.Trade.Win() {
			res.Wins++
		}
		res.TotalReward += r
		return nil
	}

	lastConfidence := 0.0
	for _, b := range bars {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		providers.ProcessBar(b.High, b.Low, b.Close, b.Volume)
		closes = append(closes, b.Close)

		if exit := ex.CheckExits(s.symbol, b.High, b.Low, b.Close); exit != nil {
			if err := settle(exit, lastConfidence); err != nil {
				return res, err
			}
		}
		if _, open := ex.Position(s.symbol); open {
			continue
		}

		d, err := s.eng.Evaluate(ctx, engine.Input{
			Symbol:           s.symbol,
			Votes:            providers.Votes(),
			Market:           market(),
			AvailableCapital: ex.Available(),
			Training:         true,
		})
		if err != nil {
			return res, err
		}
		lastConfidence = d.Ensemble.Confidence
		if !d.Trade {
			continue
		}
		_, err = ex.Open(executor.OpenRequest{
			TradeID:   d.TradeID,
			Symbol:    s.symbol,
			Direction: d.Direction,
			Capital:   d.Capital,
			Leverage:  d.Leverage,
			Price:     b.Close,
		})
		switch {
		case errors.Is(err, executor.ErrQtyTooSmall), errors.Is(err, executor.ErrInsufficientMargin):
			s.eng.Cancel(d.TradeID)
			res.Skipped++
		case err != nil:
			s.eng.Cancel(d.TradeID)
			return res, err
		}
	}

	if len(bars) > 0 {
		if exit := ex.Close(s.symbol, bars[len(bars)-1].Close); exit != nil {
			if err := settle(exit, lastConfidence); err != nil {
				return res, err
			}
		}
	}
	res.FinalEquity = ex.Equity()
	s.log.Info("episode_finished",
		logger.Int("episode", n),
		logger.Int("trades", res.Trades),
		logger.Int("wins", res.Wins),
		logger.Float64("final_equity", res.FinalEquity),
	)
	return res, nil
}
