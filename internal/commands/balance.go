package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smsledger/smsledger/internal/activity"
	"github.com/smsledger/smsledger/internal/store"
)

func newBalanceCommand(opts *rootOptions) *cobra.Command {
	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "Show or change the tracked balance",
	}
	balanceCmd.AddCommand(
		newBalanceShowCommand(opts),
		newBalanceSetCommand(opts),
		newBalanceResetCommand(opts),
	)
	return balanceCmd
}

func newBalanceShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runBalanceShow(cmd.Context(), a)
		},
	}
}

func runBalanceShow(ctx context.Context, a *app) error {
	st, err := store.Open(ctx, a.cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	b, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading balance: %w", err)
	}
	fmt.Fprintf(a.out, "Balance: %s\n", a.format(b))
	return nil
}

func newBalanceSetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <amount>",
		Short: "Set the initial balance (use -- before negative amounts)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(strings.ReplaceAll(args[0], ",", ""))
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			a, err := loadApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runBalanceSet(cmd.Context(), a, amount)
		},
	}
}

func runBalanceSet(ctx context.Context, a *app, amount decimal.Decimal) error {
	l, closeLedger, err := a.openLedger(ctx, true)
	if err != nil {
		return err
	}
	defer closeLedger()

	b := l.SetInitial(amount)
	a.record(activity.Entry{Action: activity.ActionSet, Balance: b})
	return nil
}

func newBalanceResetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the balance; transactions are ignored until it is set again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runBalanceReset(cmd.Context(), a)
		},
	}
}

func runBalanceReset(ctx context.Context, a *app) error {
	l, closeLedger, err := a.openLedger(ctx, true)
	if err != nil {
		return err
	}
	defer closeLedger()

	l.Reset()
	a.record(activity.Entry{Action: activity.ActionReset})
	return nil
}

func (a *app) record(e activity.Entry) {
	if err := activity.NewLog(a.cfg.DataDir).Record(e); err != nil {
		a.logger.Warn("recording activity failed", zap.Error(err))
	}
}
