package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/soyeahso/crewdesk/internal/contextserver"
	"github.com/soyeahso/crewdesk/internal/hooks"
	"github.com/soyeahso/crewdesk/internal/logging"
	"github.com/soyeahso/crewdesk/internal/menu"
	"github.com/soyeahso/crewdesk/internal/metrics"
	"github.com/soyeahso/crewdesk/internal/profile"
	"github.com/soyeahso/crewdesk/internal/settings"
	"github.com/soyeahso/crewdesk/internal/store"
	"github.com/soyeahso/crewdesk/internal/tools"
)

// app holds the components shared by the long-running and one-shot commands.
type app struct {
	log       *logging.Logger
	hooks     *hooks.Manager
	settings  *settings.Store
	db        *store.DB
	toolState *store.ToolStateStore
	callLog   *store.CallLog
	ws        *tools.WorkingSet
	servers   *contextserver.Registry
	profiles  *profile.Resolver
	selector  *menu.Selector
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
}

type appOptions struct {
	// contextServers starts the configured context servers so their tools
	// appear in the working set.
	contextServers bool
}

// openApp loads the config and assembles the tool working set on top of the
// persisted state. Callers must Close the result.
func openApp(ctx context.Context, log *logging.Logger, opts appOptions) (*app, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating crewdesk directories: %w", err)
	}

	a := &app{log: log, hooks: hooks.NewManager(log)}

	st, err := settings.Open(paths.Config, a.hooks, log)
	if err != nil {
		return nil, err
	}
	a.settings = st
	cfg := st.Current()

	a.registry = prometheus.NewRegistry()
	if a.metrics, err = metrics.New(a.registry); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	dbPath := paths.DatabasePath(cfg.Store)
	if a.db, err = store.Open(dbPath, log); err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.toolState = store.NewToolStateStore(a.db)
	a.callLog = store.NewCallLog(a.db)
	a.callLog.Subscribe(a.hooks)

	a.ws = tools.NewWorkingSet()
	a.ws.Register(tools.NativeTools()...)
	if cfg.Assistant.ToolPersistence() {
		if err := a.toolState.Restore(a.ws); err != nil {
			a.db.Close()
			return nil, fmt.Errorf("restoring tool state: %w", err)
		}
		a.toolState.Track(a.ws)
	}
	a.ws.OnChange(func(tools.Change) {
		a.metrics.SetToolsEnabled(a.ws.Snapshot().EnabledCount())
	})
	a.metrics.SetToolsEnabled(a.ws.Snapshot().EnabledCount())

	a.servers = contextserver.NewRegistry(a.ws, log, contextserver.WithHooks(a.hooks))
	if opts.contextServers {
		a.servers.StartAll(ctx, cfg.Assistant.ContextServers)
	}

	a.profiles = profile.NewResolver(st, log)
	a.selector = menu.NewSelector(a.profiles, a.ws, log,
		menu.WithHooks(a.hooks), menu.WithMetrics(a.metrics))

	log.Debug().
		Str("config", paths.Config).
		Str("database", dbPath).
		Int("profiles", a.profiles.Current().Len()).
		Msg("app assembled")
	return a, nil
}

// Close stops context servers and closes the database.
func (a *app) Close(ctx context.Context) {
	a.servers.CloseAll(ctx)
	if err := a.db.Close(); err != nil {
		a.log.Error().Err(err).Msg("closing database")
	}
}
