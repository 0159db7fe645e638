// internal/tui/picker.go
//
// The interactive phase picker. It follows bubbletea's Elm Architecture:
// the Picker model holds the list state, Update reacts to key presses and
// View renders the list. Choosing a phase quits the program and hands the
// name back to the caller, which dispatches it outside the TUI so tool
// output streams to a normal terminal.

package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/stubflow/internal/phase"
)

// ErrCancelled is returned when the picker closes without a choice.
var ErrCancelled = errors.New("tui: selection cancelled")

const (
	defaultWidth  = 72
	defaultHeight = 24
)

// phaseItem implements list.Item for one phase.
type phaseItem struct {
	name     string
	desc     string
	requires []string
}

func (i phaseItem) Title() string { return i.name }
func (i phaseItem) Description() string {
	if len(i.requires) == 0 {
		return i.desc
	}
	return fmt.Sprintf("%s (after %s)", i.desc, strings.Join(i.requires, ", "))
}
func (i phaseItem) FilterValue() string { return i.name }

// Picker is the bubbletea model for choosing a phase.
type Picker struct {
	list      list.Model
	choice    string
	cancelled bool
}

// NewPicker builds a picker listing phases in declaration order.
func NewPicker(phases []phase.Phase) *Picker {
	items := make([]list.Item, len(phases))
	for i, p := range phases {
		items[i] = phaseItem{name: p.Name, desc: p.Description, requires: p.Requires}
	}
	menu := list.New(items, list.NewDefaultDelegate(), defaultWidth, defaultHeight)
	menu.Title = "stubflow · choose a phase"
	menu.SetShowStatusBar(false)
	menu.Styles.Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#5B8DEF")).
		Padding(0, 1)
	return &Picker{list: menu}
}

// Init implements tea.Model.
func (p *Picker) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (p *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.list.SetSize(msg.Width, msg.Height-1)
		return p, nil
	case tea.KeyMsg:
		if p.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			p.cancelled = true
			return p, tea.Quit
		case "enter":
			if item, ok := p.list.SelectedItem().(phaseItem); ok {
				p.choice = item.name
				return p, tea.Quit
			}
			return p, nil
		}
	}
	var cmd tea.Cmd
	p.list, cmd = p.list.Update(msg)
	return p, cmd
}

// View implements tea.Model.
func (p *Picker) View() string {
	if p.choice != "" || p.cancelled {
		return ""
	}
	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Render("enter: run · /: filter · q: quit")
	return lipgloss.JoinVertical(lipgloss.Left, p.list.View(), hint)
}

// Choice returns the selected phase, if any.
func (p *Picker) Choice() (string, bool) {
	return p.choice, p.choice != ""
}

// Pick runs the picker program and returns the chosen phase name.
func Pick(phases []phase.Phase, opts ...tea.ProgramOption) (string, error) {
	if len(phases) == 0 {
		return "", fmt.Errorf("tui: no phases to choose from")
	}
	final, err := tea.NewProgram(NewPicker(phases), opts...).Run()
	if err != nil {
		return "", fmt.Errorf("tui: run picker: %w", err)
	}
	picker, ok := final.(*Picker)
	if !ok {
		return "", fmt.Errorf("tui: unexpected model %T", final)
	}
	choice, ok := picker.Choice()
	if !ok {
		return "", ErrCancelled
	}
	return choice, nil
}
