// Package profile resolves the tool profiles offered to the user: the built-in
// ones plus whatever the settings declare.
package profile

import (
	"maps"
	"slices"

	"github.com/soyeahso/crewdesk/internal/config"
	"github.com/soyeahso/crewdesk/internal/tools"
)

// Built-in profile ids.
const (
	ReadOnlyID   = "read-only"
	CodeWriterID = "code-writer"
)

// Profile is a named bundle of tool flags.
type Profile struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Tools map[string]bool `json:"tools"`
}

// EnabledTools returns the names the profile enables, sorted, without the
// scripting pseudo-tool.
func (p Profile) EnabledTools() []string {
	var out []string
	for name, on := range p.Tools {
		if on && name != tools.ScriptingToolName {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// DeclaresScripting reports whether the profile lists the scripting
// pseudo-tool. The flag value is not consulted.
func (p Profile) DeclaresScripting() bool {
	_, ok := p.Tools[tools.ScriptingToolName]
	return ok
}

var readOnlyTools = []string{
	"diagnostics", "fetch", "list-directory", "now",
	"path-search", "read-file", "regex-search", "thinking",
}

// ReadOnly returns the built-in read-only profile.
func ReadOnly() Profile {
	p := Profile{ID: ReadOnlyID, Name: "Read-only", Tools: map[string]bool{}}
	for _, t := range readOnlyTools {
		p.Tools[t] = true
	}
	return p
}

// CodeWriter returns the built-in code-writer profile.
func CodeWriter() Profile {
	p := Profile{ID: CodeWriterID, Name: "Code Writer", Tools: map[string]bool{}}
	for _, t := range readOnlyTools {
		p.Tools[t] = true
	}
	for _, t := range []string{"bash", "delete-path", "edit-files", tools.ScriptingToolName} {
		p.Tools[t] = true
	}
	return p
}

// Set is an id-ordered collection of profiles. The zero value is empty.
type Set struct {
	ids  []string
	byID map[string]Profile
}

// NewSet builds a Set from profiles; a later duplicate id wins.
func NewSet(ps ...Profile) Set {
	s := Set{byID: make(map[string]Profile, len(ps))}
	for _, p := range ps {
		s.byID[p.ID] = p
	}
	s.ids = slices.Sorted(maps.Keys(s.byID))
	return s
}

// IDs returns the profile ids in order.
func (s Set) IDs() []string { return slices.Clone(s.ids) }

// Len returns the number of profiles.
func (s Set) Len() int { return len(s.ids) }

// Get returns the profile with the given id.
func (s Set) Get(id string) (Profile, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// All returns the profiles in id order.
func (s Set) All() []Profile {
	out := make([]Profile, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.byID[id])
	}
	return out
}

// Resolve merges user profiles with the built-ins. A user profile whose id
// matches a built-in replaces it outright; tool lists are never merged.
func Resolve(user map[string]config.ProfileConfig) Set {
	ps := make([]Profile, 0, len(user)+2)
	for id, pc := range user {
		name := pc.Name
		if name == "" {
			name = id
		}
		ps = append(ps, Profile{ID: id, Name: name, Tools: maps.Clone(pc.Tools)})
	}
	if _, ok := user[ReadOnlyID]; !ok {
		ps = append(ps, ReadOnly())
	}
	if _, ok := user[CodeWriterID]; !ok {
		ps = append(ps, CodeWriter())
	}
	return NewSet(ps...)
}
