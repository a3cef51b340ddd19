// Package menu builds the tool selector menu: a declarative tree of headers,
// separators and toggles whose actions are plain data applied later against
// the tool working set.
package menu

import (
	"slices"
	"strings"

	"github.com/soyeahso/crewdesk/internal/profile"
	"github.com/soyeahso/crewdesk/internal/tools"
)

// Fixed labels.
const (
	ProfilesHeader = "Profiles"
	AllToolsLabel  = "All Tools"
	NativeHeader   = "Zed Tools"
)

// ItemKind discriminates menu items.
type ItemKind string

const (
	KindHeader    ItemKind = "header"
	KindSeparator ItemKind = "separator"
	KindToggle    ItemKind = "toggle"
)

// Item is one row of the menu. Only toggles carry an action.
type Item struct {
	Kind    ItemKind `json:"kind"`
	Label   string   `json:"label,omitempty"`
	Checked bool     `json:"checked,omitempty"`
	Action  *Action  `json:"action,omitempty"`
}

// Menu is an ordered list of items. It is built fresh on every open and never
// mutated afterwards.
type Menu struct {
	Items []Item `json:"items"`
}

// Toggles returns the toggle items in order.
func (m Menu) Toggles() []Item {
	var out []Item
	for _, it := range m.Items {
		if it.Kind == KindToggle {
			out = append(out, it)
		}
	}
	return out
}

// Section returns the items following the header with the given label, up to
// the next separator.
func (m Menu) Section(header string) []Item {
	for i, it := range m.Items {
		if it.Kind != KindHeader || it.Label != header {
			continue
		}
		var out []Item
		for _, next := range m.Items[i+1:] {
			if next.Kind == KindSeparator {
				break
			}
			out = append(out, next)
		}
		return out
	}
	return nil
}

// Headers returns the header labels in order.
func (m Menu) Headers() []string {
	var out []string
	for _, it := range m.Items {
		if it.Kind == KindHeader {
			out = append(out, it.Label)
		}
	}
	return out
}

// Text renders the menu as an indented plain-text tree.
func (m Menu) Text() string {
	var b strings.Builder
	indent := ""
	for _, it := range m.Items {
		switch it.Kind {
		case KindHeader:
			b.WriteString(it.Label + "\n")
			indent = "  "
		case KindSeparator:
			b.WriteString("\n")
			indent = ""
		case KindToggle:
			box := "[ ]"
			if it.Checked {
				box = "[x]"
			}
			b.WriteString(indent + box + " " + it.Label + "\n")
		}
	}
	return b.String()
}

func header(label string) Item { return Item{Kind: KindHeader, Label: label} }

func separator() Item { return Item{Kind: KindSeparator} }

func toggle(label string, checked bool, a Action) Item {
	return Item{Kind: KindToggle, Label: label, Checked: checked, Action: &a}
}

// Build lays out the menu for the given profiles and working-set snapshot.
// It only reads its inputs.
func Build(profiles profile.Set, snap tools.Snapshot) Menu {
	var items []Item

	items = append(items, header(ProfilesHeader))
	for _, p := range profiles.All() {
		items = append(items, toggle(p.Name, false, ActivateProfile(p)))
	}

	items = append(items, separator())
	all := snap.AllEnabled()
	items = append(items, toggle(AllToolsLabel, all, SetAll(!all)))

	for _, src := range snap.Sources {
		items = append(items, separator())

		entries := slices.Clone(src.Tools)
		if src.Source.IsNative() {
			items = append(items, header(NativeHeader))
			entries = append(entries, tools.ToolState{
				Name:    tools.ScriptingToolName,
				Enabled: snap.ScriptingEnabled,
			})
			slices.SortStableFunc(entries, func(a, b tools.ToolState) int {
				return strings.Compare(a.Name, b.Name)
			})
		} else {
			items = append(items, header(src.Source.ID))
			srcAll := snap.AllEnabledForSource(src.Source)
			items = append(items, toggle(AllToolsLabel, srcAll, SetSource(src.Source, !srcAll)))
		}

		for _, t := range entries {
			var a Action
			if src.Source.IsNative() && t.Name == tools.ScriptingToolName {
				a = SetScripting(!t.Enabled)
			} else {
				a = SetTool(src.Source, t.Name, !t.Enabled)
			}
			items = append(items, toggle(t.Name, t.Enabled, a))
		}
	}

	return Menu{Items: items}
}
