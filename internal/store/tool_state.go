package store

import (
	"fmt"
	"time"

	"github.com/soyeahso/crewdesk/internal/tools"
)

// ToolState is the persisted enabled flag of one tool.
type ToolState struct {
	Source    tools.Source `json:"source"`
	Name      string       `json:"name"`
	Enabled   bool         `json:"enabled"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// ToolStateStore persists the tool working set. The scripting pseudo-tool is
// stored as a native tool row.
type ToolStateStore struct {
	db *DB
}

// NewToolStateStore creates a tool state store using the given database.
func NewToolStateStore(db *DB) *ToolStateStore {
	return &ToolStateStore{db: db}
}

// Load returns every persisted flag, ordered by source then name.
func (s *ToolStateStore) Load() ([]ToolState, error) {
	rows, err := s.db.sql.Query(
		`SELECT source, name, enabled, updated_at FROM tool_state ORDER BY source, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tool state: %w", err)
	}
	defer rows.Close()

	var out []ToolState
	for rows.Next() {
		var (
			st        ToolState
			src       string
			updatedAt string
		)
		if err := rows.Scan(&src, &st.Name, &st.Enabled, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning tool state: %w", err)
		}
		st.Source, err = tools.ParseSource(src)
		if err != nil {
			s.db.log.Warn().Err(err).Str("source", src).Msg("skipping tool state with bad source")
			continue
		}
		st.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
		out = append(out, st)
	}
	return out, rows.Err()
}

// Save upserts the given flags in one transaction.
func (s *ToolStateStore) Save(states ...ToolState) error {
	if len(states) == 0 {
		return nil
	}
	tx, err := s.db.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin tool state: %w", err)
	}
	now := time.Now().UTC().Format(time.DateTime)
	for _, st := range states {
		if _, err := tx.Exec(
			`INSERT INTO tool_state (source, name, enabled, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (source, name) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
			st.Source.String(), st.Name, st.Enabled, now,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("saving tool %s/%s: %w", st.Source, st.Name, err)
		}
	}
	return tx.Commit()
}

// SaveScripting persists the scripting pseudo-tool flag.
func (s *ToolStateStore) SaveScripting(enabled bool) error {
	return s.Save(ToolState{Source: tools.Native(), Name: tools.ScriptingToolName, Enabled: enabled})
}

// Reset forgets every persisted flag.
func (s *ToolStateStore) Reset() error {
	if _, err := s.db.sql.Exec(`DELETE FROM tool_state`); err != nil {
		return fmt.Errorf("clearing tool state: %w", err)
	}
	return nil
}

// Restore applies the persisted flags to ws.
func (s *ToolStateStore) Restore(ws *tools.WorkingSet) error {
	states, err := s.Load()
	if err != nil {
		return err
	}
	flags := make(map[tools.Source]map[string]bool)
	scripting := ws.IsScriptingEnabled()
	for _, st := range states {
		if st.Source.IsNative() && st.Name == tools.ScriptingToolName {
			scripting = st.Enabled
			continue
		}
		if flags[st.Source] == nil {
			flags[st.Source] = make(map[string]bool)
		}
		flags[st.Source][st.Name] = st.Enabled
	}
	ws.Restore(flags, scripting)
	s.db.log.Debug().Int("flags", len(states)).Bool("scripting", scripting).Msg("tool state restored")
	return nil
}

// Track persists every later flag change of ws. Write errors are logged.
func (s *ToolStateStore) Track(ws *tools.WorkingSet) {
	ws.OnChange(func(c tools.Change) {
		var err error
		switch c.Kind {
		case tools.ChangeEnabled, tools.ChangeDisabled:
			states := make([]ToolState, 0, len(c.Names))
			for _, n := range c.Names {
				states = append(states, ToolState{Source: c.Source, Name: n, Enabled: c.Enabled})
			}
			err = s.Save(states...)
		case tools.ChangeScripting:
			err = s.SaveScripting(c.Enabled)
		default:
			return
		}
		if err != nil {
			s.db.log.Error().Err(err).Stringer("source", c.Source).Msg("failed to persist tool state")
		}
	})
}
