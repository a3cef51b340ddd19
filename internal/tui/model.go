// Package tui renders the tool selector menu in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/soyeahso/crewdesk/internal/menu"
)

// Selector is the part of menu.Selector the model drives.
type Selector interface {
	Open() menu.Menu
	Invoke(ctx context.Context, a menu.Action) error
}

// refreshMsg asks the model to rebuild its menu.
type refreshMsg struct{}

// Refresh returns a message that rebuilds the menu. Send it to a running
// program when the working set changes elsewhere.
func Refresh() tea.Msg { return refreshMsg{} }

// Model is the bubbletea model of the tool selector.
type Model struct {
	ctx     context.Context
	sel     Selector
	menu    menu.Menu
	toggles []int // indices of toggle items in menu.Items
	cursor  int   // index into toggles
	width   int
	status  string
	err     error
}

// New builds the initial menu.
func New(ctx context.Context, sel Selector) Model {
	m := Model{ctx: ctx, sel: sel}
	m.rebuild("")
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case refreshMsg:
		m.rebuild(m.cursorKey())
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "up", "k":
			m.move(-1)
		case "down", "j":
			m.move(1)
		case "home", "g":
			m.cursor = 0
		case "end", "G":
			m.cursor = max(len(m.toggles)-1, 0)
		case "enter", " ", "x":
			m.toggle()
		case "r":
			m.rebuild(m.cursorKey())
		}
	}
	return m, nil
}

func (m *Model) move(delta int) {
	if len(m.toggles) == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.toggles)-1)
}

func (m *Model) toggle() {
	item, ok := m.Selected()
	if !ok || item.Action == nil {
		return
	}
	key := m.cursorKey()
	if err := m.sel.Invoke(m.ctx, *item.Action); err != nil {
		m.err = err
		m.status = ""
		return
	}
	m.err = nil
	state := "off"
	if !item.Checked {
		state = "on"
	}
	if item.Action.Kind == menu.ActionActivateProfile {
		state = "activated"
	}
	m.status = fmt.Sprintf("%s %s", item.Label, state)
	m.rebuild(key)
}

// rebuild reopens the menu and puts the cursor back on the toggle with key.
func (m *Model) rebuild(key string) {
	m.menu = m.sel.Open()
	m.toggles = nil
	for i, it := range m.menu.Items {
		if it.Kind == menu.KindToggle {
			m.toggles = append(m.toggles, i)
		}
	}
	m.cursor = min(m.cursor, max(len(m.toggles)-1, 0))
	if key == "" {
		return
	}
	for i, idx := range m.toggles {
		if itemKey(m.menu.Items, idx) == key {
			m.cursor = i
			return
		}
	}
}

func (m Model) cursorKey() string {
	if len(m.toggles) == 0 {
		return ""
	}
	return itemKey(m.menu.Items, m.toggles[m.cursor])
}

// itemKey names a toggle by its enclosing header, the separators crossed
// since, and its label. Labels alone repeat ("All Tools").
func itemKey(items []menu.Item, idx int) string {
	section, seps := "", 0
	for _, it := range items[:idx] {
		switch it.Kind {
		case menu.KindHeader:
			section, seps = it.Label, 0
		case menu.KindSeparator:
			seps++
		}
	}
	return fmt.Sprintf("%s/%d/%s", section, seps, items[idx].Label)
}

// Selected returns the toggle under the cursor.
func (m Model) Selected() (menu.Item, bool) {
	if len(m.toggles) == 0 {
		return menu.Item{}, false
	}
	return m.menu.Items[m.toggles[m.cursor]], true
}

// Menu returns the menu currently shown.
func (m Model) Menu() menu.Menu { return m.menu }

// Err returns the error of the last toggle, if it failed.
func (m Model) Err() error { return m.err }

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	current := -1
	if len(m.toggles) > 0 {
		current = m.toggles[m.cursor]
	}

	ruleWidth := ruleWidthHint
	if m.width > 0 {
		ruleWidth = min(m.width, 60)
	}
	for i, it := range m.menu.Items {
		switch it.Kind {
		case menu.KindHeader:
			b.WriteString(headerStyle.Render(it.Label))
		case menu.KindSeparator:
			b.WriteString(ruleStyle.Render(strings.Repeat("─", ruleWidth)))
		case menu.KindToggle:
			box := "[ ]"
			if it.Checked {
				box = checkedStyle.Render("[x]")
			}
			line := box + " " + it.Label
			if i == current {
				b.WriteString(cursorStyle.Render("› " + line))
			} else {
				b.WriteString(itemStyle.Render("  " + line))
			}
		}
		b.WriteByte('\n')
	}

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		b.WriteByte('\n')
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
		b.WriteByte('\n')
	}
	b.WriteString(helpStyle.Render("↑/↓ move • enter toggle • r refresh • q quit"))
	return b.String()
}

// Run shows the selector until the user quits or ctx ends. Messages sent on
// updates (usually Refresh) are forwarded to the program.
func Run(ctx context.Context, sel Selector, updates <-chan tea.Msg, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(New(ctx, sel), opts...)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case msg, ok := <-updates:
				if !ok {
					return
				}
				p.Send(msg)
			}
		}
	}()

	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
