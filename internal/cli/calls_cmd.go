package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newCallsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calls",
		Short: "Inspect the incoming call log",
	}
	cmd.AddCommand(newCallsRecentCmd())
	return cmd
}

func newCallsRecentCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
		opts   appOptions
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the most recent call events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, &opts, func(_ context.Context, a *app) error {
				records, err := a.callLog.Recent(limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), records)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No calls recorded.")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tEVENT\tCALLER\tPROJECT\tCALL")
				for _, r := range records {
					project := "-"
					if r.ProjectID != nil {
						project = strconv.FormatUint(*r.ProjectID, 10)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						r.CreatedAt.Local().Format(time.DateTime), r.Event, r.CallerLogin, project, r.CallID)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the events as JSON")
	return cmd
}
