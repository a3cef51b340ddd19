// Package settings holds the live configuration snapshot and notifies
// observers whenever a valid new version is loaded from disk.
package settings

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/soyeahso/crewdesk/internal/config"
	"github.com/soyeahso/crewdesk/internal/hooks"
	"github.com/soyeahso/crewdesk/internal/logging"
)

// InvalidError is returned by Reload when the file parses but fails validation.
type InvalidError struct {
	Issues []config.ValidationIssue
}

func (e *InvalidError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

// Store owns the current config snapshot.
type Store struct {
	path  string
	hooks *hooks.Manager
	log   *logging.Logger

	mu        sync.RWMutex
	current   config.Config
	observers []func(config.Config)
}

// New creates a store seeded with cfg. Reload reads from path.
func New(path string, cfg config.Config, hm *hooks.Manager, log *logging.Logger) *Store {
	return &Store{
		path:    path,
		current: cfg,
		hooks:   hm,
		log:     log.Sub("settings"),
	}
}

// Open loads and validates path and returns a store holding the result.
func Open(path string, hm *hooks.Manager, log *logging.Logger) (*Store, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	return New(path, cfg, hm, log), nil
}

// Path returns the config file the store reloads from.
func (s *Store) Path() string { return s.path }

// Current returns the latest valid snapshot.
func (s *Store) Current() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Observe registers fn to be called with every new snapshot.
func (s *Store) Observe(fn func(config.Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Reload reads the config file again. When it fails to parse or validate,
// the previous snapshot stays current and the error is returned.
func (s *Store) Reload(ctx context.Context) error {
	cfg, err := load(s.path)
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("config reload rejected, keeping previous settings")
		return err
	}
	s.Set(ctx, cfg)
	s.log.Info().Str("path", s.path).Msg("settings reloaded")
	return nil
}

// Set replaces the snapshot and notifies observers.
func (s *Store) Set(ctx context.Context, cfg config.Config) {
	s.mu.Lock()
	s.current = cfg
	observers := make([]func(config.Config), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(cfg)
	}
	s.hooks.Emit(ctx, hooks.EventSettingsReloaded, map[string]any{
		"path":     s.path,
		"profiles": len(cfg.Assistant.Profiles),
	})
}

func load(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load %s: %w", path, err)
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		return cfg, &InvalidError{Issues: issues}
	}
	return cfg, nil
}
