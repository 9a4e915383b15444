package app

import (
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kerbaras/mapareas/pkg/app/components"
	"github.com/kerbaras/mapareas/pkg/app/screens"
	"github.com/kerbaras/mapareas/pkg/services"
)

type App struct {
	controller *services.Controller
	logger     *slog.Logger
}

func NewApp(controller *services.Controller, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{controller: controller, logger: logger}
}

func (a *App) Run() error {
	c := a.controller
	cfg := c.Config

	list := components.NewMapList(c.Repository, cfg.WebMapID, cfg.WebMapTitle, cfg.MapAreasTitle, a.logger)
	refresh := func() { c.Areas.Invalidate(cfg.WebMapID) }

	model := screens.NewRootScreen(list, c.Repository, refresh)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}
