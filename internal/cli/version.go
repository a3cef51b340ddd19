package cli

import (
	"fmt"

	"github.com/soyeahso/crewdesk/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of crewdesk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), version.Current())
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print build metadata as JSON")
	return cmd
}
