package components

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/kerbaras/mapareas/pkg/services"
)

// Repository is the part of services.MapRepository the list needs.
type Repository interface {
	GetTopLevelMap(ctx context.Context, id string) (data.ViewMapInfo, error)
	GetMapAreas(ctx context.Context, id string) <-chan services.AreasUpdate
	DownloadMapArea(ctx context.Context, parentID, childID string) <-chan data.DownloadStatus
	DeleteDownloadedMapArea(id string) bool
	CancelRunningDownloads() int
}

// MapList assembles the web map and its areas into one ordered display list
// and keeps area statuses current. It is safe for concurrent use; every
// mutation replaces the list under a single lock.
type MapList struct {
	repo          Repository
	webMapID      string
	webMapTitle   string
	mapAreasTitle string
	logger        *slog.Logger

	mu       sync.Mutex
	elements []data.ListElement
	err      error
	changes  chan struct{}
}

func NewMapList(repo Repository, webMapID, webMapTitle, mapAreasTitle string, logger *slog.Logger) *MapList {
	if logger == nil {
		logger = slog.Default()
	}
	return &MapList{
		repo:          repo,
		webMapID:      webMapID,
		webMapTitle:   webMapTitle,
		mapAreasTitle: mapAreasTitle,
		logger:        logger.With("component", "map_list"),
		changes:       make(chan struct{}, 1),
	}
}

// Elements returns a copy of the current list.
func (m *MapList) Elements() []data.ListElement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.elements)
}

// Err is the error that stopped the last Populate, if any.
func (m *MapList) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Changes fires after every mutation. Bursts collapse into one signal.
func (m *MapList) Changes() <-chan struct{} {
	return m.changes
}

func (m *MapList) signal() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

// Populate loads the web map, then follows its area stream until ctx ends or
// the stream fails. Once ctx has ended it no longer touches the list, so a
// newer Populate owns it.
func (m *MapList) Populate(ctx context.Context) error {
	if !m.replaceIfLive(ctx, []data.ListElement{data.Loading}, nil) {
		return ctx.Err()
	}

	top, err := m.repo.GetTopLevelMap(ctx, m.webMapID)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		m.logger.Error("unable to load web map", "id", m.webMapID, "error", err)
		m.replaceIfLive(ctx, nil, err)
		return err
	}

	topRows := []data.ListElement{data.Header(m.webMapTitle), data.Item(top)}
	if !m.replaceIfLive(ctx, append(slices.Clone(topRows), data.Loading), nil) {
		return ctx.Err()
	}

	for u := range m.repo.GetMapAreas(ctx, m.webMapID) {
		if ctx.Err() != nil {
			break
		}
		if u.Err != nil {
			m.logger.Error("unable to load map areas", "id", m.webMapID, "error", u.Err)
			m.replaceIfLive(ctx, slices.Clone(topRows), u.Err)
			return u.Err
		}

		list := append(slices.Clone(topRows), data.Divider, data.Header(m.mapAreasTitle))
		for _, info := range u.Areas {
			list = append(list, data.Item(info))
		}
		m.replaceIfLive(ctx, list, nil)
	}
	return ctx.Err()
}

// replaceIfLive replaces the list unless ctx has ended. The check and the
// write happen under the same lock.
func (m *MapList) replaceIfLive(ctx context.Context, elements []data.ListElement, err error) bool {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return false
	}
	m.elements = elements
	m.err = err
	m.mu.Unlock()
	m.signal()
	return true
}

// ApplyStatus sets the status of the item row with the given id.
func (m *MapList) ApplyStatus(id data.MapID, status data.DownloadStatus) {
	m.mu.Lock()
	changed := false
	list := slices.Clone(m.elements)
	for i, e := range list {
		if e.Kind == data.ElementItem && e.Info.ID == id {
			list[i] = data.Item(e.Info.WithStatus(status))
			changed = true
		}
	}
	if changed {
		m.elements = list
	}
	m.mu.Unlock()

	if changed {
		m.signal()
	}
}

// TriggerDownload downloads an area and applies every status it reports.
// It returns the last status seen.
func (m *MapList) TriggerDownload(ctx context.Context, id data.MapID) data.DownloadStatus {
	last := data.Idle
	for status := range m.repo.DownloadMapArea(ctx, m.webMapID, id.Key) {
		m.ApplyStatus(id, status)
		last = status
	}
	return last
}

// TriggerDelete deletes a downloaded area and marks it Idle.
func (m *MapList) TriggerDelete(id data.MapID) error {
	if !m.repo.DeleteDownloadedMapArea(id.Key) {
		return data.NewFailure("cannot delete "+id.Key, data.ErrNothingToDelete)
	}
	m.ApplyStatus(id, data.Idle)
	return nil
}

// CancelAll stops every running download.
func (m *MapList) CancelAll() int {
	return m.repo.CancelRunningDownloads()
}
