package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/klauspost/compress/zip"
	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/kerbaras/mapareas/pkg/sources"
	"golang.org/x/sync/singleflight"
)

// Catalog is the offline snapshot of the portal the sources fall back to.
type Catalog interface {
	SaveItem(item *data.PortalItem) error
	GetItem(id string) (*data.PortalItem, error)
	SaveAreas(parentID string, areas []data.Area) error
	GetAreas(parentID string) ([]data.Area, error)
	Purge() error
}

// AreaStatus pairs a catalog area with its current download status.
type AreaStatus struct {
	Area   data.Area
	Status data.DownloadStatus
}

// Renderable is a map ready to hand to a renderer: either a remote web map
// URL or an opened offline bundle.
type Renderable struct {
	ID           data.MapID
	Title        string
	URL          string
	Dir          string
	Packages     []string
	Maps         []string
	Bytes        int64
	DownloadedAt time.Time
}

// mapEntryDir holds the map definitions inside a package archive.
const mapEntryDir = "maps/"

// AreaSource lists the preplanned areas of a web map and manages their
// offline copies.
type AreaSource struct {
	portal  sources.Portal
	catalog Catalog
	tracker *Tracker
	logger  *slog.Logger

	cache *expirable.LRU[string, []data.Area]
	group singleflight.Group
}

func NewAreaSource(portal sources.Portal, catalog Catalog, tracker *Tracker, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *AreaSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheSize <= 0 {
		cacheSize = 32
	}
	return &AreaSource{
		portal:  portal,
		catalog: catalog,
		tracker: tracker,
		logger:  logger.With("component", "area_source"),
		cache:   expirable.NewLRU[string, []data.Area](cacheSize, nil, cacheTTL),
	}
}

// areas returns the catalog of parentID. Concurrent callers share one
// portal fetch, which outlives any single caller; each caller stops waiting
// when its own ctx ends. When the portal is unreachable the last snapshot is
// used.
func (s *AreaSource) areas(ctx context.Context, parentID string) ([]data.Area, error) {
	if cached, ok := s.cache.Get(parentID); ok {
		return slices.Clone(cached), nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(parentID, func() (any, error) {
		return s.fetch(fetchCtx, parentID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]data.Area)), nil
	}
}

func (s *AreaSource) fetch(ctx context.Context, parentID string) ([]data.Area, error) {
	areas, err := s.portal.GetAreas(ctx, parentID)
	if err == nil {
		if err := s.catalog.SaveAreas(parentID, areas); err != nil {
			s.logger.Warn("failed to save area snapshot", "parent", parentID, "error", err)
		}
		s.cache.Add(parentID, areas)
		return areas, nil
	}

	snapshot, snapErr := s.catalog.GetAreas(parentID)
	if snapErr != nil {
		s.logger.Error("unable to load map areas", "parent", parentID, "error", err, "snapshot_error", snapErr)
		return nil, data.NewFailure("unable to load map areas", err)
	}
	s.logger.Warn("portal unreachable, using offline snapshot", "parent", parentID, "areas", len(snapshot), "error", err)
	return snapshot, nil
}

// ListAreas returns every area of parentID with its resolved status.
func (s *AreaSource) ListAreas(ctx context.Context, parentID string) ([]AreaStatus, error) {
	areas, err := s.areas(ctx, parentID)
	if err != nil {
		return nil, err
	}
	out := make([]AreaStatus, len(areas))
	for i, a := range areas {
		out[i] = AreaStatus{Area: a, Status: s.tracker.Resolve(a.ID)}
	}
	return out, nil
}

func (s *AreaSource) FindArea(ctx context.Context, parentID, areaID string) (data.Area, error) {
	areas, err := s.areas(ctx, parentID)
	if err != nil {
		return data.Area{}, err
	}
	for _, a := range areas {
		if a.ID == areaID {
			return a, nil
		}
	}
	return data.Area{}, fmt.Errorf("%w: %s not in %s", data.ErrAreaNotInParent, areaID, parentID)
}

func (s *AreaSource) DeleteArea(areaID string) (bool, error) {
	return s.tracker.Delete(areaID)
}

// LoadRenderable opens the offline bundle of a downloaded area. A bundle
// that cannot be read is deleted so the area can be downloaded again.
func (s *AreaSource) LoadRenderable(areaID string) (*Renderable, error) {
	if !s.tracker.Downloaded(areaID) {
		return nil, data.NewFailure("area "+areaID, data.ErrNotDownloaded)
	}

	r, err := s.openBundle(areaID)
	if err != nil {
		s.logger.Warn("deleting unreadable offline bundle", "area", areaID, "error", err)
		if _, delErr := s.tracker.Delete(areaID); delErr != nil {
			s.logger.Error("failed to delete offline bundle", "area", areaID, "error", delErr)
		}
		return nil, data.NewFailure("unable to open offline map "+areaID, fmt.Errorf("%w: %v", data.ErrCorruptPackage, err))
	}
	return r, nil
}

func (s *AreaSource) openBundle(areaID string) (*Renderable, error) {
	store := s.tracker.store

	f, err := store.Open(areaID, sources.ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("missing manifest: %w", err)
	}
	var manifest sources.Manifest
	err = json.NewDecoder(f).Decode(&manifest)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if len(manifest.Packages) == 0 {
		return nil, errors.New("manifest lists no packages")
	}

	r := &Renderable{
		ID:           data.MapID{Type: data.MapTypeLocalStorage, Key: areaID},
		Title:        manifest.Title,
		Dir:          store.Dir(areaID),
		Packages:     manifest.Packages,
		Bytes:        manifest.Bytes,
		DownloadedAt: manifest.DownloadedAt,
	}
	for _, pkg := range manifest.Packages {
		maps, err := s.packageMaps(areaID, pkg)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", pkg, err)
		}
		r.Maps = append(r.Maps, maps...)
	}
	if len(r.Maps) == 0 {
		return nil, errors.New("bundle contains no maps")
	}
	return r, nil
}

// packageMaps lists the map entries of one package archive.
func (s *AreaSource) packageMaps(areaID, name string) ([]string, error) {
	store := s.tracker.store

	info, err := store.Stat(areaID, name)
	if err != nil {
		return nil, err
	}
	f, err := store.Open(areaID, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return nil, err
	}
	var maps []string
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() || !strings.HasPrefix(entry.Name, mapEntryDir) {
			continue
		}
		base := path.Base(entry.Name)
		maps = append(maps, strings.TrimSuffix(base, path.Ext(base)))
	}
	return maps, nil
}

// Invalidate drops the cached catalog of parentID.
func (s *AreaSource) Invalidate(parentID string) {
	s.cache.Remove(parentID)
}

// Purge clears the cache and the offline snapshot. Downloaded areas stay.
func (s *AreaSource) Purge() error {
	s.cache.Purge()
	if err := s.catalog.Purge(); err != nil {
		return fmt.Errorf("failed to purge catalog: %w", err)
	}
	return nil
}
