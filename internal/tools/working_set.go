package tools

import (
	"slices"
	"sync"
)

// ChangeKind names the mutation reported to observers.
type ChangeKind string

const (
	ChangeRegistered   ChangeKind = "registered"
	ChangeUnregistered ChangeKind = "unregistered"
	ChangeEnabled      ChangeKind = "enabled"
	ChangeDisabled     ChangeKind = "disabled"
	ChangeScripting    ChangeKind = "scripting"
)

// Change describes one mutation of the working set. For ChangeEnabled and
// ChangeDisabled, Names holds every tool whose flag was written.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	Source  Source     `json:"source"`
	Names   []string   `json:"names,omitempty"`
	Enabled bool       `json:"enabled"`
}

// WorkingSet tracks the registered tools per source and their enabled flags.
// Flags are kept independently of registration so that state set for a tool
// survives its source going away and coming back.
type WorkingSet struct {
	mu        sync.RWMutex
	order     []Source
	tools     map[Source][]Tool
	enabled   map[Source]map[string]bool
	scripting bool
	observers []func(Change)
}

// NewWorkingSet returns an empty working set with scripting disabled.
func NewWorkingSet() *WorkingSet {
	return &WorkingSet{
		tools:   make(map[Source][]Tool),
		enabled: make(map[Source]map[string]bool),
	}
}

// OnChange registers fn to be called after every mutation. Observers run on
// the mutating goroutine, after the lock is released.
func (w *WorkingSet) OnChange(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers = append(w.observers, fn)
}

func (w *WorkingSet) notify(c Change) {
	w.mu.RLock()
	observers := slices.Clone(w.observers)
	w.mu.RUnlock()
	for _, fn := range observers {
		fn(c)
	}
}

// Register adds tools. A tool with the same source and name replaces the
// earlier registration in place. Tools with no recorded flag start enabled.
func (w *WorkingSet) Register(ts ...Tool) {
	if len(ts) == 0 {
		return
	}
	bySource := make(map[Source][]string)
	var sources []Source

	w.mu.Lock()
	for _, t := range ts {
		src := t.Source()
		if _, ok := w.tools[src]; !ok {
			w.addSourceLocked(src)
		}
		list := w.tools[src]
		if i := indexOf(list, t.Name()); i >= 0 {
			list[i] = t
		} else {
			w.tools[src] = append(list, t)
		}
		flags := w.flagsLocked(src)
		if _, ok := flags[t.Name()]; !ok {
			flags[t.Name()] = true
		}
		if _, ok := bySource[src]; !ok {
			sources = append(sources, src)
		}
		bySource[src] = append(bySource[src], t.Name())
	}
	w.mu.Unlock()

	for _, src := range sources {
		w.notify(Change{Kind: ChangeRegistered, Source: src, Names: bySource[src]})
	}
}

// addSourceLocked keeps native first and everything else in arrival order.
func (w *WorkingSet) addSourceLocked(src Source) {
	w.tools[src] = nil
	if src.IsNative() {
		w.order = append([]Source{src}, w.order...)
		return
	}
	w.order = append(w.order, src)
}

// Unregister removes every tool provided by src. Enabled flags are kept.
func (w *WorkingSet) Unregister(src Source) {
	w.mu.Lock()
	list, ok := w.tools[src]
	if !ok {
		w.mu.Unlock()
		return
	}
	delete(w.tools, src)
	w.order = slices.DeleteFunc(w.order, func(s Source) bool { return s == src })
	names := toolNames(list)
	w.mu.Unlock()

	w.notify(Change{Kind: ChangeUnregistered, Source: src, Names: names})
}

// Enable marks the named tools of src enabled.
func (w *WorkingSet) Enable(src Source, names []string) {
	w.set(src, names, true)
}

// Disable marks the named tools of src disabled.
func (w *WorkingSet) Disable(src Source, names []string) {
	w.set(src, names, false)
}

func (w *WorkingSet) set(src Source, names []string, enabled bool) {
	if len(names) == 0 {
		return
	}
	w.mu.Lock()
	flags := w.flagsLocked(src)
	for _, n := range names {
		flags[n] = enabled
	}
	w.mu.Unlock()

	w.notify(Change{Kind: flagChange(enabled), Source: src, Names: slices.Clone(names), Enabled: enabled})
}

// EnableSource enables every registered tool of src.
func (w *WorkingSet) EnableSource(src Source) {
	w.setSource(src, true)
}

// DisableSource disables every tool of src, including flags recorded for
// tools that are not currently registered.
func (w *WorkingSet) DisableSource(src Source) {
	w.setSource(src, false)
}

func (w *WorkingSet) setSource(src Source, enabled bool) {
	w.mu.Lock()
	names := w.sourceNamesLocked(src, !enabled)
	flags := w.flagsLocked(src)
	for _, n := range names {
		flags[n] = enabled
	}
	w.mu.Unlock()

	w.notify(Change{Kind: flagChange(enabled), Source: src, Names: names, Enabled: enabled})
}

// EnableAll enables every registered tool of every source and the scripting
// pseudo-tool.
func (w *WorkingSet) EnableAll() {
	w.setAll(true)
}

// DisableAll disables every tool of every source and the scripting pseudo-tool.
func (w *WorkingSet) DisableAll() {
	w.setAll(false)
}

func (w *WorkingSet) setAll(enabled bool) {
	w.mu.Lock()
	sources := slices.Clone(w.order)
	if !enabled {
		for src := range w.enabled {
			if _, registered := w.tools[src]; !registered {
				sources = append(sources, src)
			}
		}
	}
	changes := make([]Change, 0, len(sources)+1)
	for _, src := range sources {
		names := w.sourceNamesLocked(src, !enabled)
		flags := w.flagsLocked(src)
		for _, n := range names {
			flags[n] = enabled
		}
		changes = append(changes, Change{Kind: flagChange(enabled), Source: src, Names: names, Enabled: enabled})
	}
	w.scripting = enabled
	w.mu.Unlock()

	for _, c := range changes {
		w.notify(c)
	}
	w.notify(Change{Kind: ChangeScripting, Source: Native(), Names: []string{ScriptingToolName}, Enabled: enabled})
}

// EnableScripting enables the scripting pseudo-tool.
func (w *WorkingSet) EnableScripting() { w.setScripting(true) }

// DisableScripting disables the scripting pseudo-tool.
func (w *WorkingSet) DisableScripting() { w.setScripting(false) }

func (w *WorkingSet) setScripting(enabled bool) {
	w.mu.Lock()
	w.scripting = enabled
	w.mu.Unlock()
	w.notify(Change{Kind: ChangeScripting, Source: Native(), Names: []string{ScriptingToolName}, Enabled: enabled})
}

// IsScriptingEnabled reports whether the scripting pseudo-tool is enabled.
func (w *WorkingSet) IsScriptingEnabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.scripting
}

// IsEnabled reports whether the named tool of src is enabled.
func (w *WorkingSet) IsEnabled(src Source, name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.enabled[src][name]
}

// AreAllEnabled reports whether every registered tool of every source and the
// scripting pseudo-tool are enabled.
func (w *WorkingSet) AreAllEnabled() bool {
	return w.Snapshot().AllEnabled()
}

// AreAllEnabledForSource reports whether every registered tool of src is enabled.
func (w *WorkingSet) AreAllEnabledForSource(src Source) bool {
	return w.Snapshot().AllEnabledForSource(src)
}

// ToolsBySource returns the registered tools grouped by source, native first,
// each list in registration order.
func (w *WorkingSet) ToolsBySource() []SourceGroup {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]SourceGroup, 0, len(w.order))
	for _, src := range w.order {
		out = append(out, SourceGroup{Source: src, Tools: slices.Clone(w.tools[src])})
	}
	return out
}

// SourceGroup is one source and its registered tools.
type SourceGroup struct {
	Source Source
	Tools  []Tool
}

// Snapshot captures the current state as an immutable value.
func (w *WorkingSet) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := Snapshot{ScriptingEnabled: w.scripting}
	for _, src := range w.order {
		st := SourceState{Source: src}
		for _, t := range w.tools[src] {
			st.Tools = append(st.Tools, ToolState{
				Name:        t.Name(),
				Description: t.Description(),
				Enabled:     w.enabled[src][t.Name()],
			})
		}
		snap.Sources = append(snap.Sources, st)
	}
	return snap
}

// Flags returns a copy of every recorded flag, registered or not.
func (w *WorkingSet) Flags() map[Source]map[string]bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[Source]map[string]bool, len(w.enabled))
	for src, flags := range w.enabled {
		cp := make(map[string]bool, len(flags))
		for n, e := range flags {
			cp[n] = e
		}
		out[src] = cp
	}
	return out
}

// Restore overwrites recorded flags without notifying observers. It is meant
// for loading persisted state at startup.
func (w *WorkingSet) Restore(flags map[Source]map[string]bool, scripting bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for src, fs := range flags {
		dst := w.flagsLocked(src)
		for n, e := range fs {
			dst[n] = e
		}
	}
	w.scripting = scripting
}

func (w *WorkingSet) flagsLocked(src Source) map[string]bool {
	flags, ok := w.enabled[src]
	if !ok {
		flags = make(map[string]bool)
		w.enabled[src] = flags
	}
	return flags
}

// sourceNamesLocked returns the registered tool names of src, plus every
// recorded flag when includeUnregistered is set.
func (w *WorkingSet) sourceNamesLocked(src Source, includeUnregistered bool) []string {
	names := toolNames(w.tools[src])
	if !includeUnregistered {
		return names
	}
	var extra []string
	for n := range w.enabled[src] {
		if !slices.Contains(names, n) {
			extra = append(extra, n)
		}
	}
	slices.Sort(extra)
	return append(names, extra...)
}

func flagChange(enabled bool) ChangeKind {
	if enabled {
		return ChangeEnabled
	}
	return ChangeDisabled
}

func toolNames(list []Tool) []string {
	names := make([]string, 0, len(list))
	for _, t := range list {
		names = append(names, t.Name())
	}
	return names
}

func indexOf(list []Tool, name string) int {
	return slices.IndexFunc(list, func(t Tool) bool { return t.Name() == name })
}
