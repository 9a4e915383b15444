package screens

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kerbaras/mapareas/pkg/app/components"
	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/kerbaras/mapareas/pkg/services"
)

type screenType int

const (
	mapsView screenType = iota
	detailsView
)

// SwitchScreenMsg asks the root screen to show another screen.
type SwitchScreenMsg struct {
	Screen string
	Data   interface{}
}

// Renderer opens a map for the details screen.
type Renderer interface {
	GetRenderableMap(ctx context.Context, mapType data.MapType, id string) (*services.Renderable, error)
}

type RootScreen struct {
	renderer Renderer

	currentView screenType
	maps        *MapsScreen
	details     *DetailsScreen

	width  int
	height int
}

func NewRootScreen(list *components.MapList, renderer Renderer, refresh func()) *RootScreen {
	return &RootScreen{
		renderer:    renderer,
		currentView: mapsView,
		maps:        NewMapsScreen(list, refresh),
	}
}

func (r *RootScreen) Init() tea.Cmd {
	return r.maps.Init()
}

func (r *RootScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.width = msg.Width
		r.height = msg.Height
		// Both screens track the size
		r.maps.Update(msg)
		if r.details != nil {
			r.details.Update(msg)
		}
		return r, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			r.maps.Close()
			return r, tea.Quit
		}

	case SwitchScreenMsg:
		switch msg.Screen {
		case "maps":
			r.currentView = mapsView
			r.details = nil
		case "details":
			if id, ok := msg.Data.(data.MapID); ok {
				r.details = NewDetailsScreen(r.renderer, id)
				r.details.width, r.details.height = r.width, r.height
				r.currentView = detailsView
				cmd = r.details.Init()
			}
		}
		return r, cmd
	}

	// Keys go to the active screen. Everything else belongs to the maps
	// screen, which keeps following its list while details are shown.
	if _, isKey := msg.(tea.KeyMsg); isKey && r.currentView == detailsView && r.details != nil {
		newModel, newCmd := r.details.Update(msg)
		r.details = newModel.(*DetailsScreen)
		return r, newCmd
	}
	if _, ok := msg.(detailsLoadedMsg); ok {
		if r.details != nil {
			newModel, newCmd := r.details.Update(msg)
			r.details = newModel.(*DetailsScreen)
			return r, newCmd
		}
		return r, nil
	}

	newModel, newCmd := r.maps.Update(msg)
	r.maps = newModel.(*MapsScreen)
	return r, newCmd
}

func (r *RootScreen) View() string {
	var content string
	switch r.currentView {
	case mapsView:
		content = r.maps.View()
	case detailsView:
		if r.details != nil {
			content = r.details.View()
		}
	}
	return fmt.Sprintf("%s\n", content)
}
