package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/avanderberg/scrumline/internal/backlog"
	"github.com/avanderberg/scrumline/internal/domain"
)

type reorderKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Grab    key.Binding
	Confirm key.Binding
	Quit    key.Binding
}

func newReorderKeyMap() reorderKeyMap {
	return reorderKeyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j", "down")),
		Grab:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "grab/release")),
		Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save")),
		Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "cancel")),
	}
}

// reorderModel is the bubbletea model for interactive backlog reordering.
// Space grabs the ticket under the cursor; while grabbed, moving the cursor
// drags it. Enter confirms, q or esc cancels.
type reorderModel struct {
	items     []backlog.Item
	keys      reorderKeyMap
	cursor    int
	grabbed   bool
	confirmed bool
}

func newReorderModel(items []backlog.Item) reorderModel {
	return reorderModel{items: items, keys: newReorderKeyMap()}
}

func (m reorderModel) order() []int64 {
	ids := make([]int64, len(m.items))
	for i, item := range m.items {
		ids[i] = item.Ticket.ID
	}
	return ids
}

func (m reorderModel) Init() tea.Cmd { return nil }

func (m reorderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Confirm):
		m.confirmed = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Grab):
		m.grabbed = !m.grabbed
	case key.Matches(keyMsg, m.keys.Up):
		m.move(-1)
	case key.Matches(keyMsg, m.keys.Down):
		m.move(1)
	}
	return m, nil
}

func (m *reorderModel) move(delta int) {
	next := m.cursor + delta
	if next < 0 || next >= len(m.items) {
		return
	}
	if m.grabbed {
		m.items[m.cursor], m.items[next] = m.items[next], m.items[m.cursor]
	}
	m.cursor = next
}

func (m reorderModel) View() string {
	var b strings.Builder
	b.WriteString(styleHeader.Render("Reorder backlog"))
	b.WriteString("\n\n")
	for i, item := range m.items {
		marker := "  "
		if i == m.cursor {
			if m.grabbed {
				marker = "* "
			} else {
				marker = "> "
			}
		}
		b.WriteString(fmt.Sprintf("%s#%d %s\n", marker, item.Ticket.ID,
			item.Ticket.Get(domain.FieldSummary)))
	}
	b.WriteString("\n")
	b.WriteString(styleDim.Render("space grab/release, j/k move, enter save, q cancel"))
	b.WriteString("\n")
	return b.String()
}
