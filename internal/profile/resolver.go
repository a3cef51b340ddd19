package profile

import (
	"sync/atomic"

	"github.com/soyeahso/crewdesk/internal/config"
	"github.com/soyeahso/crewdesk/internal/logging"
)

// Settings is the part of the settings store the resolver depends on.
type Settings interface {
	Current() config.Config
	Observe(fn func(config.Config))
}

// Resolver keeps the resolved profile set in step with the settings store.
// Every change recomputes the whole set and swaps it in one store, so readers
// never observe a partially updated set.
type Resolver struct {
	current atomic.Pointer[Set]
	log     *logging.Logger
}

// NewResolver resolves the current settings and subscribes to later changes.
func NewResolver(settings Settings, log *logging.Logger) *Resolver {
	r := &Resolver{log: log.Sub("profiles")}
	r.refresh(settings.Current())
	settings.Observe(r.refresh)
	return r
}

// Current returns the latest resolved profile set.
func (r *Resolver) Current() Set {
	return *r.current.Load()
}

func (r *Resolver) refresh(cfg config.Config) {
	set := Resolve(cfg.Assistant.Profiles)
	r.current.Store(&set)
	r.log.Debug().Strs("profiles", set.IDs()).Msg("profiles resolved")
}
