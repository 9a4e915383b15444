package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kerbaras/mapareas/pkg/app/styles"
	"github.com/kerbaras/mapareas/pkg/data"
)

// MapListView renders list elements and tracks which item row is selected.
// Only item rows can be selected.
type MapListView struct {
	Items         []data.ListElement
	SelectedIndex int
	Width         int
	Height        int

	spinner spinner.Model
}

func NewMapListView() *MapListView {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)
	return &MapListView{
		Items:         []data.ListElement{},
		SelectedIndex: -1,
		Width:         80,
		Height:        20,
		spinner:       s,
	}
}

// SetItems swaps the rows, keeping the selection on the same map if it is
// still listed.
func (m *MapListView) SetItems(items []data.ListElement) {
	var selected *data.MapID
	if info := m.Selected(); info != nil {
		id := info.ID
		selected = &id
	}

	m.Items = items
	m.SelectedIndex = -1
	if selected != nil {
		for i, e := range items {
			if e.Kind == data.ElementItem && e.Info.ID == *selected {
				m.SelectedIndex = i
				return
			}
		}
	}
	m.SelectedIndex = m.step(-1, 1)
}

// step finds the next item row from index in direction dir, wrapping around.
func (m *MapListView) step(from, dir int) int {
	n := len(m.Items)
	if n == 0 {
		return -1
	}
	i := from
	for range n {
		i = ((i+dir)%n + n) % n
		if m.Items[i].Kind == data.ElementItem {
			return i
		}
	}
	return -1
}

func (m *MapListView) Next() {
	m.SelectedIndex = m.step(m.SelectedIndex, 1)
}

func (m *MapListView) Prev() {
	from := m.SelectedIndex
	if from < 0 {
		from = 0
	}
	m.SelectedIndex = m.step(from, -1)
}

func (m *MapListView) Selected() *data.ViewMapInfo {
	if m.SelectedIndex < 0 || m.SelectedIndex >= len(m.Items) {
		return nil
	}
	e := m.Items[m.SelectedIndex]
	if e.Kind != data.ElementItem {
		return nil
	}
	return &e.Info
}

// Tick starts the loading spinner.
func (m *MapListView) Tick() tea.Cmd {
	return m.spinner.Tick
}

func (m *MapListView) UpdateSpinner(msg spinner.TickMsg) tea.Cmd {
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return cmd
}

func (m *MapListView) View() string {
	if len(m.Items) == 0 {
		emptyMsg := styles.MutedStyle.Render("No maps to show")
		return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center, emptyMsg)
	}

	var b strings.Builder
	for i, e := range m.Items {
		switch e.Kind {
		case data.ElementHeader:
			b.WriteString(styles.HeaderStyle.Render(e.Title))
		case data.ElementDivider:
			b.WriteString(styles.DividerStyle.Render(strings.Repeat("─", max(m.Width-4, 1))))
		case data.ElementLoading:
			b.WriteString(m.spinner.View() + " " + styles.MutedStyle.Render("Loading..."))
		case data.ElementItem:
			b.WriteString(m.renderItem(e.Info, i == m.SelectedIndex))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *MapListView) renderItem(info data.ViewMapInfo, selected bool) string {
	cardStyle := styles.CardStyle
	if selected {
		cardStyle = styles.ActiveCardStyle
	}

	title := styles.TitleStyle.UnsetMarginBottom().Render(info.Title)

	// Truncate description
	desc := info.Description
	if len(desc) > 80 {
		desc = desc[:77] + "..."
	}

	rows := []string{title}
	if desc != "" {
		rows = append(rows, styles.TextStyle.Render(desc))
	}
	if info.Status.Kind == data.StatusInProgress {
		rows = append(rows, renderProgressBar(info.Status.Percent, max(m.Width-12, 10)))
	}
	rows = append(rows, StatusText(info.Status))

	return cardStyle.Width(max(m.Width-4, 20)).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
