package services

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/kerbaras/mapareas/pkg/config"
	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/kerbaras/mapareas/pkg/sources"
	"github.com/kerbaras/mapareas/pkg/storage"
)

// PortalClient is a portal that can also produce download jobs.
type PortalClient interface {
	sources.Portal
	sources.JobFactory
}

// Controller wires the services for one configured web map.
type Controller struct {
	Config     *config.Config
	Catalog    *data.Repository
	Store      *storage.AreaStore
	Tracker    *Tracker
	Areas      *AreaSource
	Repository *MapRepository

	closeOnce sync.Once
	closeErr  error
}

func NewController(cfg *config.Config, logger *slog.Logger) (*Controller, error) {
	return NewControllerWithPortal(cfg, sources.NewArcGISPortal(cfg.PortalURL, cfg.APIKey), logger)
}

func NewControllerWithPortal(cfg *config.Config, portal PortalClient, logger *slog.Logger) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}

	catalog, err := data.NewDuckDBRepository(cfg.CatalogPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	store := storage.NewOsAreaStore(cfg.AreasDir())
	tracker := NewTracker(store, portal, logger)
	areas := NewAreaSource(portal, catalog, tracker, cfg.CacheSize, cfg.CacheTTL, logger)

	return &Controller{
		Config:     cfg,
		Catalog:    catalog,
		Store:      store,
		Tracker:    tracker,
		Areas:      areas,
		Repository: NewMapRepository(portal, catalog, areas, tracker, logger),
	}, nil
}

// WebMapID is the configured top-level map.
func (c *Controller) WebMapID() string {
	return c.Config.WebMapID
}

// Close cancels running downloads and closes the catalog.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.Tracker.Close()
		c.closeErr = c.Catalog.Close()
	})
	return c.closeErr
}
