package tools

// ToolState is one registered tool and its flag at snapshot time.
type ToolState struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// SourceState is one source's tools in registration order.
type SourceState struct {
	Source Source      `json:"source"`
	Tools  []ToolState `json:"tools"`
}

// Snapshot is an immutable copy of the working set. Sources are ordered native
// first, then context servers in registration order.
type Snapshot struct {
	Sources          []SourceState `json:"sources"`
	ScriptingEnabled bool          `json:"scriptingEnabled"`
}

// AllEnabled reports whether every tool of every source and the scripting
// pseudo-tool are enabled.
func (s Snapshot) AllEnabled() bool {
	if !s.ScriptingEnabled {
		return false
	}
	for _, src := range s.Sources {
		if !src.allEnabled() {
			return false
		}
	}
	return true
}

// AllEnabledForSource reports whether every tool of src is enabled. A source
// with no tools counts as enabled.
func (s Snapshot) AllEnabledForSource(src Source) bool {
	for _, st := range s.Sources {
		if st.Source == src {
			return st.allEnabled()
		}
	}
	return true
}

// EnabledCount returns the number of enabled tools, scripting included.
func (s Snapshot) EnabledCount() int {
	n := 0
	if s.ScriptingEnabled {
		n++
	}
	for _, st := range s.Sources {
		for _, t := range st.Tools {
			if t.Enabled {
				n++
			}
		}
	}
	return n
}

// Enabled returns the enabled tool names of src in registration order.
func (s Snapshot) Enabled(src Source) []string {
	var out []string
	for _, st := range s.Sources {
		if st.Source != src {
			continue
		}
		for _, t := range st.Tools {
			if t.Enabled {
				out = append(out, t.Name)
			}
		}
	}
	return out
}

func (st SourceState) allEnabled() bool {
	for _, t := range st.Tools {
		if !t.Enabled {
			return false
		}
	}
	return true
}
