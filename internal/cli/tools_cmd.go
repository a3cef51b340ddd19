package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/soyeahso/crewdesk/internal/menu"
	"github.com/soyeahso/crewdesk/internal/tools"
	"github.com/soyeahso/crewdesk/internal/tui"
	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	var opts appOptions

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and change the assistant's tool selection",
	}
	cmd.PersistentFlags().BoolVar(&opts.contextServers, "context-servers", false, "start configured context servers to include their tools")

	cmd.AddCommand(newToolsMenuCmd(&opts))
	cmd.AddCommand(newToolsToggleCmd(&opts))
	cmd.AddCommand(newToolsProfileCmd(&opts))
	cmd.AddCommand(newToolsTUICmd(&opts))

	return cmd
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, opts *appOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, log, *opts)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(ctx, a)
}

func newToolsMenuCmd(opts *appOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Print the tool selector menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				m := a.selector.Open()
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), m)
				}
				fmt.Fprint(cmd.OutOrStdout(), m.Text())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the menu as JSON")
	return cmd
}

func newToolsToggleCmd(opts *appOptions) *cobra.Command {
	var sourceFlag string

	cmd := &cobra.Command{
		Use:   "toggle [all | <tool>]",
		Short: "Flip a tool, a whole source, or every tool",
		Long: "toggle <tool> flips one tool of --source (native by default).\n" +
			"toggle --source <id> with no tool flips every tool of that context server.\n" +
			"toggle all flips everything, including scripting.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := tools.Native()
			if sourceFlag != "" {
				src = tools.ContextServer(sourceFlag)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				action, err := toggleAction(a.ws, src, args)
				if err != nil {
					return err
				}
				if err := a.selector.Invoke(ctx, action); err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), a.selector.Open().Text())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sourceFlag, "source", "", "context server id (default native tools)")
	return cmd
}

// toggleAction resolves the command line of `tools toggle` to the action the
// matching menu entry would carry.
func toggleAction(ws *tools.WorkingSet, src tools.Source, args []string) (menu.Action, error) {
	snap := ws.Snapshot()

	if len(args) == 0 {
		if src.IsNative() {
			return menu.Action{}, fmt.Errorf("name a tool, \"all\", or a context server with --source")
		}
		if !slices.ContainsFunc(snap.Sources, func(s tools.SourceState) bool { return s.Source == src }) {
			return menu.Action{}, fmt.Errorf("unknown source %q", src.ID)
		}
		return menu.SetSource(src, !snap.AllEnabledForSource(src)), nil
	}

	name := args[0]
	if name == "all" {
		return menu.SetAll(!snap.AllEnabled()), nil
	}
	if src.IsNative() && name == tools.ScriptingToolName {
		return menu.SetScripting(!snap.ScriptingEnabled), nil
	}
	for _, s := range snap.Sources {
		if s.Source != src {
			continue
		}
		for _, t := range s.Tools {
			if t.Name == name {
				return menu.SetTool(src, name, !t.Enabled), nil
			}
		}
	}
	return menu.Action{}, fmt.Errorf("unknown tool %q in %s", name, src)
}

func newToolsProfileCmd(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profile [id]",
		Short: "List profiles, or activate one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					for _, p := range a.selector.Profiles().All() {
						fmt.Fprintf(out, "%-16s %s (%d tools)\n", p.ID, p.Name, len(p.EnabledTools()))
					}
					return nil
				}
				if err := a.selector.ActivateProfileByID(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Activated %s\n", args[0])
				fmt.Fprint(out, a.selector.Open().Text())
				return nil
			})
		},
	}
}

func newToolsTUICmd(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive tool selector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				updates := make(chan tea.Msg, 1)
				a.ws.OnChange(func(tools.Change) {
					select {
					case updates <- tui.Refresh():
					default:
					}
				})
				return tui.Run(ctx, a.selector, updates, tea.WithAltScreen())
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
