package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/kerbaras/mapareas/pkg/sources"
)

// AreasUpdate is one emission of the area stream. A non-nil Err is the last
// value before the stream closes.
type AreasUpdate struct {
	Areas []data.ViewMapInfo
	Err   error
}

// MapRepository is what the UI talks to: the web map, its areas and their
// downloads.
type MapRepository struct {
	portal  sources.Portal
	catalog Catalog
	areas   *AreaSource
	tracker *Tracker
	logger  *slog.Logger
}

func NewMapRepository(portal sources.Portal, catalog Catalog, areas *AreaSource, tracker *Tracker, logger *slog.Logger) *MapRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MapRepository{
		portal:  portal,
		catalog: catalog,
		areas:   areas,
		tracker: tracker,
		logger:  logger.With("component", "repository"),
	}
}

// GetTopLevelMap returns the web map itself. It can be browsed online but
// not downloaded, so its status is always Unavailable.
func (r *MapRepository) GetTopLevelMap(ctx context.Context, id string) (data.ViewMapInfo, error) {
	item, err := r.portal.GetItem(ctx, id)
	if err == nil {
		if err := r.catalog.SaveItem(item); err != nil {
			r.logger.Warn("failed to save web map snapshot", "id", id, "error", err)
		}
		return item.ToViewMapInfo(), nil
	}

	snapshot, snapErr := r.catalog.GetItem(id)
	if snapErr != nil {
		r.logger.Error("unable to load web map", "id", id, "error", err, "snapshot_error", snapErr)
		return data.ViewMapInfo{}, data.NewFailure("unable to load web map", err)
	}
	r.logger.Warn("portal unreachable, using offline snapshot", "id", id, "error", err)
	return snapshot.ToViewMapInfo(), nil
}

// GetMapAreas streams the areas of a web map. The full list is sent first,
// then again whenever a download changes it. The channel closes when ctx
// ends or after an update carrying an error.
func (r *MapRepository) GetMapAreas(ctx context.Context, id string) <-chan AreasUpdate {
	out := make(chan AreasUpdate, 1)
	changes, stop := r.tracker.Changes()

	send := func(u AreasUpdate) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case out <- u:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		defer stop()

		var last []data.ViewMapInfo
		first := true
		for {
			list, err := r.areas.ListAreas(ctx, id)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				send(AreasUpdate{Err: err})
				return
			}
			infos := make([]data.ViewMapInfo, len(list))
			for i, a := range list {
				infos[i] = a.Area.ToViewMapInfo(a.Status)
			}
			if first || !sameInfos(last, infos) {
				if !send(AreasUpdate{Areas: infos}) {
					return
				}
				last, first = infos, false
			}

			select {
			case <-ctx.Done():
				return
			case <-changes:
			}
		}
	}()
	return out
}

func sameInfos(a, b []data.ViewMapInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.Title != y.Title || x.Description != y.Description || x.ImageURL != y.ImageURL || !x.Status.Equal(y.Status) {
			return false
		}
	}
	return true
}

// DownloadMapArea downloads childID of parentID and streams its status.
func (r *MapRepository) DownloadMapArea(ctx context.Context, parentID, childID string) <-chan data.DownloadStatus {
	if r.tracker.Downloaded(childID) {
		return closedWith(data.Completed)
	}

	area, err := r.areas.FindArea(ctx, parentID, childID)
	if err != nil {
		if errors.Is(err, data.ErrAreaNotInParent) {
			r.logger.Warn("download requested for unknown area", "parent", parentID, "area", childID)
			return closedWith(data.Aborted(data.ErrAreaNotInParent.Error(), err))
		}
		reason := "unable to load map areas"
		var failure *data.Failure
		if errors.As(err, &failure) && failure.Message != "" {
			reason = failure.Message
		}
		return closedWith(data.Aborted(reason, err))
	}
	return r.tracker.Start(ctx, parentID, area)
}

// DeleteDownloadedMapArea reports whether anything was deleted.
func (r *MapRepository) DeleteDownloadedMapArea(id string) bool {
	deleted, err := r.areas.DeleteArea(id)
	if err != nil {
		r.logger.Error("failed to delete map area", "area", id, "error", err)
		return false
	}
	return deleted
}

func (r *MapRepository) CancelRunningDownloads() int {
	return r.tracker.CancelAll()
}

// GetRenderableMap resolves a map id into something a renderer can open.
func (r *MapRepository) GetRenderableMap(ctx context.Context, mapType data.MapType, id string) (*Renderable, error) {
	switch mapType {
	case data.MapTypeRemote:
		info, err := r.GetTopLevelMap(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Renderable{ID: info.ID, Title: info.Title, URL: r.portal.ItemURL(id)}, nil
	case data.MapTypeLocalStorage:
		return r.areas.LoadRenderable(id)
	default:
		return nil, data.NewFailure("cannot render map "+id, data.ErrInvalidMapType)
	}
}
