package screens

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/kerbaras/mapareas/pkg/app/styles"
	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/kerbaras/mapareas/pkg/services"
)

// DetailsScreen shows what a renderer would open for one map.
type DetailsScreen struct {
	renderer   Renderer
	id         data.MapID
	renderable *services.Renderable
	width      int
	height     int
	err        error
}

func NewDetailsScreen(renderer Renderer, id data.MapID) *DetailsScreen {
	return &DetailsScreen{
		renderer: renderer,
		id:       id,
	}
}

func (s *DetailsScreen) Init() tea.Cmd {
	return s.loadDetails
}

func (s *DetailsScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "r":
			s.err = nil
			return s, s.loadDetails
		case "esc", "backspace":
			return s, func() tea.Msg {
				return SwitchScreenMsg{Screen: "maps", Data: nil}
			}
		}

	case detailsLoadedMsg:
		if msg.id != s.id {
			return s, nil
		}
		s.renderable = msg.renderable
		s.err = msg.err
	}

	return s, nil
}

func (s *DetailsScreen) View() string {
	if s.width == 0 {
		return "Loading..."
	}

	help := styles.HelpStyle.Render("r: reload • esc: back • q: quit")

	if s.err != nil {
		header := styles.TitleStyle.Render(s.id.Key)
		errorMsg := styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err))
		return fmt.Sprintf("%s\n\n%s\n%s", header, errorMsg, help)
	}
	if s.renderable == nil {
		return "Loading..."
	}

	header := styles.TitleStyle.Render(s.renderable.Title)
	return fmt.Sprintf("%s\n\n%s\n%s", header, s.renderInfo(), help)
}

func (s *DetailsScreen) renderInfo() string {
	m := s.renderable
	rows := []string{
		styles.SubtitleStyle.Render(string(m.ID.Type)),
		"",
	}

	switch m.ID.Type {
	case data.MapTypeRemote:
		rows = append(rows, field("Item", m.ID.Key), field("URL", m.URL))
	default:
		rows = append(rows,
			field("Area", m.ID.Key),
			field("Location", m.Dir),
			field("Packages", strings.Join(m.Packages, ", ")),
			field("Maps", strings.Join(m.Maps, ", ")),
			field("Size", humanize.Bytes(uint64(max(m.Bytes, 0)))),
		)
		if !m.DownloadedAt.IsZero() {
			rows = append(rows, field("Downloaded", humanize.Time(m.DownloadedAt)))
		}
	}

	return styles.CardStyle.Width(max(s.width-4, 20)).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func field(label, value string) string {
	if value == "" {
		value = "-"
	}
	return styles.MutedStyle.Render(label+": ") + styles.TextStyle.Render(value)
}

// Messages
type detailsLoadedMsg struct {
	id         data.MapID
	renderable *services.Renderable
	err        error
}

// Commands
func (s *DetailsScreen) loadDetails() tea.Msg {
	r, err := s.renderer.GetRenderableMap(context.Background(), s.id.Type, s.id.Key)
	return detailsLoadedMsg{id: s.id, renderable: r, err: err}
}
