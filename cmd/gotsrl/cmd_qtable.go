package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/rl"
)

type stateSummary struct {
	State      string  `json:"state"`
	BestAction int     `json:"best_action"`
	Allocation float64 `json:"allocation"`
	Leverage   float64 `json:"leverage_multiplier"`
	Value      float64 `json:"value"`
}

func newQTableCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qtable",
		Short: "Inspect or reset the learned value table",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print table statistics and the greedy action per state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.setup()
			if err != nil {
				return err
			}
			defer a.close()
			return runQTableShow(cmd, a, format)
		},
	}
	show.Flags().StringVar(&format, "format", "table", "Output format: table, json")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Overwrite the stored table with an empty one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.setup()
			if err != nil {
				return err
			}
			defer a.close()
			table := a.loadTable(cmd.Context())
			dropped := table.Len()
			table.Reset()
			if err := rl.SaveTable(cmd.Context(), a.store, table); err != nil {
				return fmt.Errorf("reset q-table: %w", err)
			}
			a.log.Info("qtable_reset", logger.Int("states_dropped", dropped))
			_, err = fmt.Fprintf(a.out, "q-table reset, %d states dropped\n", dropped)
			return err
		},
	}

	cmd.AddCommand(show, reset)
	return cmd
}

func runQTableShow(cmd *cobra.Command, a *app, format string) error {
	table := a.loadTable(cmd.Context())
	sizer, err := rl.NewSizer(table, a.cfg.Sizer, nil, a.log)
	if err != nil {
		return err
	}
	var rows []stateSummary
	for _, s := range table.States() {
		best, v := sizer.Best(s)
		act := rl.Actions[best]
		rows = append(rows, stateSummary{
			State:      s.Key(),
			BestAction: best,
			Allocation: act.Allocation,
			Leverage:   act.LeverageMultiplier,
			Value:      v,
		})
	}
	stats := sizer.Stats()

	switch format {
	case "json":
		return writeJSON(a, struct {
			Stats  rl.Stats       `json:"stats"`
			States []stateSummary `json:"states"`
		}{stats, rows})
	case "table":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	fmt.Fprintf(a.out, "states: %d  non-zero values: %d  learning rate: %g  epsilon: %g\n\n",
		stats.States, stats.NonZero, stats.LearningRate, stats.Epsilon)
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tACTION\tALLOC\tLEV\tVALUE")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.1fx\t%.4f\n", r.State, r.BestAction, r.Allocation, r.Leverage, r.Value)
	}
	return w.Flush()
}
