package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/smsledger/smsledger/internal/activity"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent balance activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runHistory(a, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show (0 for all)")

	return cmd
}

func runHistory(a *app, limit int) error {
	entries, err := activity.Tail(a.cfg.DataDir, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No activity yet.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tSENDER\tDIRECTION\tAMOUNT\tBALANCE\tRULE")
	for _, e := range entries {
		amount := "-"
		if e.Amount.Valid {
			amount = e.Amount.Decimal.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime),
			e.Action,
			dash(e.Sender),
			dash(string(e.Direction)),
			amount,
			a.format(e.Balance),
			dash(e.Rule))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
