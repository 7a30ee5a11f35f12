package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evdnx/gotsrl/marketstate"
	"github.com/evdnx/gotsrl/reward"
	"github.com/evdnx/gotsrl/rl"
	"github.com/evdnx/gotsrl/types"
)

type closeOptions struct {
	state    string
	next     string
	action   int
	pnl      float64
	size     float64
	stopLoss bool
	takeProf bool
}

type closeResult struct {
	State    string  `json:"state"`
	Action   int     `json:"action"`
	Reward   float64 `json:"reward"`
	OldValue float64 `json:"old_value"`
	NewValue float64 `json:"new_value"`
}

func newCloseCmd(root *rootOptions) *cobra.Command {
	o := &closeOptions{}
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Learn from a closed trade",
		Long: `Turn a closed trade's outcome into a reward, update the value of the
state/action pair printed by "decide" and save the table.

Example:
  gotsrl close --state 2_0_1_0_1_2 --action 7 --pnl -2.4 --stop`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.setup()
			if err != nil {
				return err
			}
			defer a.close()
			return runClose(cmd, a, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.state, "state", "", "State key of the trade at entry")
	f.IntVar(&o.action, "action", -1, "Action index chosen at entry")
	f.Float64Var(&o.pnl, "pnl", 0, "Realised PnL in percent")
	f.Float64Var(&o.size, "size", 0, "Position size as a fraction of equity")
	f.BoolVar(&o.stopLoss, "stop", false, "The stop-loss closed the trade")
	f.BoolVar(&o.takeProf, "tp", false, "The take-profit closed the trade")
	f.StringVar(&o.next, "next", "", "State key after the trade (terminal when empty)")
	_ = cmd.MarkFlagRequired("state")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("pnl")
	return cmd
}

func runClose(cmd *cobra.Command, a *app, o *closeOptions) error {
	if _, err := rl.ActionAt(o.action); err != nil {
		return err
	}
	st, err := marketstate.ParseDiscreteState(o.state)
	if err != nil {
		return err
	}
	var next *marketstate.DiscreteState
	if o.next != "" {
		n, err := marketstate.ParseDiscreteState(o.next)
		if err != nil {
			return err
		}
		next = &n
	}
	rf, err := reward.New(a.cfg.Reward)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	table := a.loadTable(ctx)
	sizer, err := rl.NewSizer(table, a.cfg.Sizer, nil, a.log)
	if err != nil {
		return err
	}

	r := rf.Compute(types.TradeOutcome{
		PnLPercent:           o.pnl,
		HitStopLoss:          o.stopLoss,
		HitTakeProfit:        o.takeProf,
		PositionSizeFraction: o.size,
	})
	old := table.Value(st, o.action)
	if err := sizer.Update(st, o.action, r, next); err != nil {
		return err
	}
	if err := rl.SaveTable(ctx, a.store, table); err != nil {
		return fmt.Errorf("save q-table: %w", err)
	}
	return writeJSON(a, closeResult{
		State:    st.Key(),
		Action:   o.action,
		Reward:   r,
		OldValue: old,
		NewValue: table.Value(st, o.action),
	})
}
