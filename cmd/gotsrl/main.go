package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/evdnx/gotsrl/config"
	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/rl"
	"github.com/evdnx/gotsrl/store"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	out        io.Writer

	// openStore is swapped in tests.
	openStore func(config.StoreConfig) (store.Store, error)
}

// app is what a subcommand works with once configuration is resolved.
type app struct {
	cfg   config.Config
	log   logger.Logger
	store store.Store
	out   io.Writer
}

// configure resolves the config file and builds the logger.
func (o *rootOptions) configure() (config.Config, logger.Logger, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, nil, err
		}
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	log, err := logger.NewZapLogger(cfg.Log.Level)
	if err != nil {
		return cfg, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

// setup is configure plus the value-table store.
func (o *rootOptions) setup() (*app, error) {
	cfg, log, err := o.configure()
	if err != nil {
		return nil, err
	}
	st, err := o.openStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{cfg: cfg, log: log, store: st, out: o.out}, nil
}

func (a *app) loadTable(ctx context.Context) *rl.QTable {
	return rl.LoadTable(ctx, a.store, a.log)
}

func (a *app) close() {
	if err := store.Close(a.store); err != nil {
		a.log.Warn("store_close_failed", logger.Err(err))
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out, openStore: store.Open}
	root := &cobra.Command{
		Use:   "gotsrl",
		Short: "Ensemble trade direction with reinforcement-learned position sizing",
		Long: `gotsrl combines four technical-analysis votes into one trade direction and
sizes the trade with a tabular Q-learning policy over allocation and
leverage. The value table is persisted in a file, Redis or Postgres.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level override: debug, info, warn, error")

	root.AddCommand(
		newDecideCmd(opts),
		newCloseCmd(opts),
		newSimulateCmd(opts),
		newQTableCmd(opts),
		newServeMetricsCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
