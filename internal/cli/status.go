package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/crewdesk/internal/config"
	"github.com/soyeahso/crewdesk/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show crewdesk status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			b := version.Current()
			fmt.Fprintf(out, "crewdesk %s (commit %s)\n\n", b.Version, b.Commit)

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:     %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Gateway:  port=%d bind=%s auth=%s\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode)
			fmt.Fprintf(out, "Database: %s\n", paths.DatabasePath(cfg.Store))
			fmt.Fprintf(out, "Persist:  %v\n", cfg.Assistant.ToolPersistence())

			if len(cfg.Assistant.ContextServers) > 0 {
				ids := make([]string, len(cfg.Assistant.ContextServers))
				for i, cs := range cfg.Assistant.ContextServers {
					ids[i] = cs.ID
				}
				fmt.Fprintf(out, "Servers:  %s\n", strings.Join(ids, ", "))
			} else {
				fmt.Fprintln(out, "Servers:  (none configured)")
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
				return nil
			}

			return withApp(cmd, &appOptions{}, func(_ context.Context, a *app) error {
				snap := a.ws.Snapshot()
				fmt.Fprintf(out, "Profiles: %s\n", strings.Join(a.selector.Profiles().IDs(), ", "))
				fmt.Fprintf(out, "Tools:    %d enabled, scripting=%v\n", snap.EnabledCount(), snap.ScriptingEnabled)
				if schema, err := a.db.SchemaVersion(); err == nil {
					fmt.Fprintf(out, "Schema:   v%d\n", schema)
				}
				return nil
			})
		},
	}

	return cmd
}
