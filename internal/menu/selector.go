package menu

import (
	"context"

	"github.com/soyeahso/crewdesk/internal/hooks"
	"github.com/soyeahso/crewdesk/internal/logging"
	"github.com/soyeahso/crewdesk/internal/metrics"
	"github.com/soyeahso/crewdesk/internal/profile"
	"github.com/soyeahso/crewdesk/internal/tools"
)

// Profiles supplies the current resolved profile set.
type Profiles interface {
	Current() profile.Set
}

// Selector is the tool selector popover: it builds a menu from the latest
// profiles and working-set state each time it is opened, and applies the
// actions the user picks.
type Selector struct {
	profiles Profiles
	ws       *tools.WorkingSet
	hooks    *hooks.Manager
	metrics  *metrics.Metrics
	log      *logging.Logger
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithHooks emits profile_activated on the given manager.
func WithHooks(hm *hooks.Manager) SelectorOption {
	return func(s *Selector) { s.hooks = hm }
}

// WithMetrics counts applied actions.
func WithMetrics(m *metrics.Metrics) SelectorOption {
	return func(s *Selector) { s.metrics = m }
}

// NewSelector creates a selector over profiles and ws.
func NewSelector(profiles Profiles, ws *tools.WorkingSet, log *logging.Logger, opts ...SelectorOption) *Selector {
	s := &Selector{profiles: profiles, ws: ws, log: log.Sub("selector")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profiles returns the current profile set.
func (s *Selector) Profiles() profile.Set {
	return s.profiles.Current()
}

// Open builds a fresh menu.
func (s *Selector) Open() Menu {
	return Build(s.profiles.Current(), s.ws.Snapshot())
}

// Invoke applies a to the working set.
func (s *Selector) Invoke(ctx context.Context, a Action) error {
	if err := Apply(s.ws, a); err != nil {
		s.log.Warn().Err(err).Str("kind", string(a.Kind)).Msg("rejected menu action")
		return err
	}
	s.metrics.ToolAction(string(a.Kind))

	ev := s.log.Debug().Str("kind", string(a.Kind)).Bool("enable", a.Enable)
	if a.Tool != "" {
		ev = ev.Str("tool", a.Tool).Stringer("source", a.Source)
	}
	ev.Msg("menu action applied")

	if a.Kind == ActionActivateProfile {
		s.hooks.Emit(ctx, hooks.EventProfileActivated, map[string]any{
			"id":   a.Profile.ID,
			"name": a.Profile.Name,
		})
	}
	return nil
}

// ActivateProfileByID applies the profile with the given id from the current set.
func (s *Selector) ActivateProfileByID(ctx context.Context, id string) error {
	p, ok := s.profiles.Current().Get(id)
	if !ok {
		return &UnknownProfileError{ID: id}
	}
	return s.Invoke(ctx, ActivateProfile(p))
}

// UnknownProfileError reports a profile id absent from the current set.
type UnknownProfileError struct {
	ID string
}

func (e *UnknownProfileError) Error() string { return "unknown profile: " + e.ID }
