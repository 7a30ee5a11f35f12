package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/evdnx/gotsrl/engine"
	"github.com/evdnx/gotsrl/gate"
	"github.com/evdnx/gotsrl/marketstate"
	"github.com/evdnx/gotsrl/rl"
)

type decideOptions struct {
	votes     string
	closes    string
	symbol    string
	capital   float64
	leverage  float64
	positions int
	training  bool

	news, social       float64
	exchangeFlow, addr float64
}

func newDecideCmd(root *rootOptions) *cobra.Command {
	o := &decideOptions{}
	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Aggregate votes and size a trade",
		Long: `Aggregate strategy votes into a direction and, when confident enough,
pick an allocation and leverage from the learned value table. The decision,
including the state key and action index needed by "close", is printed as
JSON.

Example:
  gotsrl decide --votes swing=BUY:0.85,momentum=BUY:0.7,trend_following=BUY:0.65 \
      --closes btc.csv --capital 1000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.setup()
			if err != nil {
				return err
			}
			defer a.close()
			return runDecide(cmd, a, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.votes, "votes", "", "Votes as strategy=DIRECTION:confidence, comma separated")
	f.StringVar(&o.closes, "closes", "", "CSV file with recent bars or closes, oldest first")
	f.StringVar(&o.symbol, "symbol", "BTCUSDT", "Instrument symbol")
	f.Float64Var(&o.capital, "capital", 1000, "Available capital")
	f.Float64Var(&o.leverage, "leverage", 0, "Base leverage (0 uses the configured value)")
	f.IntVar(&o.positions, "open-positions", 0, "Number of positions already open")
	f.BoolVar(&o.training, "training", false, "Allow exploration")
	f.Float64Var(&o.news, "news-sentiment", 0, "News sentiment in [-1,1]")
	f.Float64Var(&o.social, "social-sentiment", 0, "Social sentiment in [-1,1]")
	f.Float64Var(&o.exchangeFlow, "exchange-flow", 0, "Normalised exchange net flow score")
	f.Float64Var(&o.addr, "address-trend", 0, "Normalised active address trend score")
	_ = cmd.MarkFlagRequired("votes")
	return cmd
}

func runDecide(cmd *cobra.Command, a *app, o *decideOptions) error {
	if o.capital < 0 {
		return errors.New("capital must not be negative")
	}
	votes, err := parseVotes(o.votes)
	if err != nil {
		return err
	}
	var closes []float64
	if o.closes != "" {
		bars, err := readBarsFile(o.closes)
		if err != nil {
			return err
		}
		closes = closesOf(bars)
	}

	cfg := a.cfg
	if o.leverage > 0 {
		cfg.Limits.BaseLeverage = o.leverage
	}
	ctx := cmd.Context()
	eng, err := engine.NewFromConfig(cfg, a.loadTable(ctx), a.store, rl.NewRand(cfg.Sizer.Seed), a.log)
	if err != nil {
		return err
	}

	in := engine.Input{
		Symbol:           o.symbol,
		Votes:            votes,
		Market:           marketstate.Input{Closes: closes, OpenPositions: o.positions},
		AvailableCapital: o.capital,
		Training:         o.training,
	}
	fl := cmd.Flags()
	in.Sentiment = gate.CombineSentiment(optional(fl.Changed("news-sentiment"), o.news), optional(fl.Changed("social-sentiment"), o.social))
	if fl.Changed("exchange-flow") || fl.Changed("address-trend") {
		sig := gate.ClassifyOnChain(optional(fl.Changed("exchange-flow"), o.exchangeFlow), optional(fl.Changed("address-trend"), o.addr))
		in.OnChain = &sig
	}

	d, err := eng.Evaluate(ctx, in)
	if err != nil {
		return err
	}
	return writeJSON(a, d)
}

func optional(set bool, v float64) *float64 {
	if !set {
		return nil
	}
	return &v
}

func writeJSON(a *app, v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
