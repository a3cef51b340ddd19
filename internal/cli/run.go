package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/crewdesk/internal/call"
	"github.com/soyeahso/crewdesk/internal/config"
	"github.com/soyeahso/crewdesk/internal/gateway"
	"github.com/soyeahso/crewdesk/internal/logging"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// callQueue is the buffer of the in-process incoming call stream.
const callQueue = 16

func newRunCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tool selector, call notifier and gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if issues := config.Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			runLog := log
			if logLevel == "" {
				runLog = logging.NewWithOptions(logging.Options{
					Level:        cfg.Logging.Level,
					ConsoleStyle: cfg.Logging.ConsoleStyle,
					File:         cfg.Logging.File,
				})
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, runLog, appOptions{contextServers: true})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			if err := a.settings.Watch(ctx, 0); err != nil {
				runLog.Warn().Err(err).Msg("config watcher unavailable, edits need a restart")
			}
			a.settings.Observe(func(next config.Config) {
				a.servers.Sync(ctx, next.Assistant.ContextServers)
			})

			gwCfg := cfg.Gateway
			if port != 0 {
				gwCfg.Port = port
			}
			if bind != "" {
				gwCfg.Bind = bind
			}
			srv := gateway.New(gwCfg, runLog,
				gateway.WithHooks(a.hooks),
				gateway.WithSelector(a.selector),
				gateway.WithSettings(a.settings),
				gateway.WithCallLog(a.callLog),
				gateway.WithGatherer(a.registry),
			)
			srv.WatchTools(a.ws)

			hub := call.NewHub(callQueue)
			defer hub.Close()
			notifier := call.NewNotifier(
				call.Deps{Users: hub, Calls: hub, Workspace: srv, Windows: srv},
				runLog,
				call.WithHooks(a.hooks),
				call.WithMetrics(a.metrics),
				call.WithJoinTimeout(time.Duration(cfg.Calls.JoinTimeout)*time.Second),
			)
			srv.AttachCalls(notifier, hub)

			runLog.Info().
				Int("tools", a.ws.Snapshot().EnabledCount()).
				Int("contextServers", len(a.servers.List())).
				Msg("crewdesk started")

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := notifier.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			g.Go(func() error { return srv.Start(gctx) })
			err = g.Wait()
			notifier.Wait()
			return err
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}
