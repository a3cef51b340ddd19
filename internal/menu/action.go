package menu

import (
	"errors"
	"fmt"

	"github.com/soyeahso/crewdesk/internal/profile"
	"github.com/soyeahso/crewdesk/internal/tools"
)

// ErrInvalidAction is returned by Apply for actions it cannot execute.
var ErrInvalidAction = errors.New("invalid menu action")

// ActionKind names what an action does.
type ActionKind string

const (
	ActionActivateProfile ActionKind = "activate-profile"
	ActionSetAll          ActionKind = "set-all"
	ActionSetSource       ActionKind = "set-source"
	ActionSetTool         ActionKind = "set-tool"
	ActionSetScripting    ActionKind = "set-scripting"
)

// Action is the command bound to a toggle. It carries everything needed to
// run it later, so invoking it never depends on the state the menu was built
// from.
type Action struct {
	Kind    ActionKind       `json:"kind"`
	Source  tools.Source     `json:"source"`
	Tool    string           `json:"tool,omitempty"`
	Enable  bool             `json:"enable"`
	Profile *profile.Profile `json:"profile,omitempty"`
}

// ActivateProfile returns the action applying p.
func ActivateProfile(p profile.Profile) Action {
	return Action{Kind: ActionActivateProfile, Profile: &p}
}

// SetAll returns the action enabling or disabling everything.
func SetAll(enable bool) Action {
	return Action{Kind: ActionSetAll, Enable: enable}
}

// SetSource returns the action enabling or disabling one source.
func SetSource(src tools.Source, enable bool) Action {
	return Action{Kind: ActionSetSource, Source: src, Enable: enable}
}

// SetTool returns the action enabling or disabling one tool.
func SetTool(src tools.Source, name string, enable bool) Action {
	return Action{Kind: ActionSetTool, Source: src, Tool: name, Enable: enable}
}

// SetScripting returns the action enabling or disabling the scripting pseudo-tool.
func SetScripting(enable bool) Action {
	return Action{Kind: ActionSetScripting, Source: tools.Native(), Tool: tools.ScriptingToolName, Enable: enable}
}

// Registry is the set of working-set mutations actions are applied through.
type Registry interface {
	Enable(src tools.Source, names []string)
	Disable(src tools.Source, names []string)
	EnableSource(src tools.Source)
	DisableSource(src tools.Source)
	EnableAll()
	DisableAll()
	EnableScripting()
	DisableScripting()
}

// Apply runs a against reg.
func Apply(reg Registry, a Action) error {
	switch a.Kind {
	case ActionActivateProfile:
		if a.Profile == nil {
			return fmt.Errorf("%w: %s without a profile", ErrInvalidAction, a.Kind)
		}
		applyProfile(reg, *a.Profile)
	case ActionSetAll:
		if a.Enable {
			reg.EnableAll()
		} else {
			reg.DisableAll()
		}
	case ActionSetSource:
		if a.Source == (tools.Source{}) {
			return fmt.Errorf("%w: %s without a source", ErrInvalidAction, a.Kind)
		}
		if a.Enable {
			reg.EnableSource(a.Source)
		} else {
			reg.DisableSource(a.Source)
		}
	case ActionSetTool:
		if a.Source == (tools.Source{}) || a.Tool == "" {
			return fmt.Errorf("%w: %s needs a source and a tool", ErrInvalidAction, a.Kind)
		}
		if a.Source.IsNative() && a.Tool == tools.ScriptingToolName {
			return Apply(reg, SetScripting(a.Enable))
		}
		if a.Enable {
			reg.Enable(a.Source, []string{a.Tool})
		} else {
			reg.Disable(a.Source, []string{a.Tool})
		}
	case ActionSetScripting:
		if a.Enable {
			reg.EnableScripting()
		} else {
			reg.DisableScripting()
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, a.Kind)
	}
	return nil
}

// applyProfile replaces the native tool selection with the profile's. Tools
// from other sources are left as they are.
func applyProfile(reg Registry, p profile.Profile) {
	reg.DisableSource(tools.Native())
	reg.DisableScripting()
	reg.Enable(tools.Native(), p.EnabledTools())
	if p.DeclaresScripting() {
		reg.EnableScripting()
	}
}
