package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evdnx/gotsrl/engine"
	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/rl"
)

type simulateOptions struct {
	bars        string
	symbol      string
	seed        int64
	episodes    int
	metricsAddr string
}

type simulateReport struct {
	Episodes []episodeResult `json:"episodes"`
	Table    rl.Stats        `json:"table"`
}

func newSimulateCmd(root *rootOptions) *cobra.Command {
	o := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Train the sizer by replaying historical bars",
		Long: `Replay OHLCV bars through the four vote providers, the decision engine
with exploration on and a paper executor. Every closed position updates
the value table, which is saved after each trade and again at the end.
With --metrics-addr the run's collectors are served on /metrics until it
finishes.

Example:
  gotsrl simulate --bars btc_1h.csv --episodes 20 --seed 7 --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.setup()
			if err != nil {
				return err
			}
			defer a.close()
			return runSimulate(cmd, a, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.bars, "bars", "", "CSV file of OHLCV bars, oldest first")
	f.StringVar(&o.symbol, "symbol", "BTCUSDT", "Instrument symbol")
	f.Int64Var(&o.seed, "seed", 0, "Exploration seed (0 uses the configured seed)")
	f.IntVar(&o.episodes, "episodes", 1, "Number of passes over the bars")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the run lasts")
	_ = cmd.MarkFlagRequired("bars")
	return cmd
}

func runSimulate(cmd *cobra.Command, a *app, o *simulateOptions) error {
	if o.episodes < 1 {
		return fmt.Errorf("episodes must be at least 1, got %d", o.episodes)
	}
	bars, err := readBarsFile(o.bars)
	if err != nil {
		return err
	}
	seed := a.cfg.Sizer.Seed
	if o.seed != 0 {
		seed = o.seed
	}
	ctx := cmd.Context()
	if o.metricsAddr != "" {
		srvCtx, stop := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- serveMetrics(srvCtx, o.metricsAddr, a.log) }()
		defer func() {
			stop()
			if err := <-done; err != nil {
				a.log.Warn("metrics_server_failed", logger.Err(err))
			}
		}()
	}
	table := a.loadTable(ctx)
	eng, err := engine.NewFromConfig(a.cfg, table, a.store, rl.NewRand(seed), a.log)
	if err != nil {
		return err
	}
	sim := &simulator{cfg: a.cfg, eng: eng, log: a.log, symbol: o.symbol}

	report := simulateReport{}
	for ep := 1; ep <= o.episodes; ep++ {
		res, err := sim.runEpisode(ctx, ep, bars)
		if err != nil {
			return fmt.Errorf("episode %d: %w", ep, err)
		}
		report.Episodes = append(report.Episodes, res)
	}
	if err := rl.SaveTable(ctx, a.store, table); err != nil {
		return fmt.Errorf("save q-table: %w", err)
	}
	report.Table = eng.Sizer().Stats()
	return writeJSON(a, report)
}
