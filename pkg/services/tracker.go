package services

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/kerbaras/mapareas/pkg/sources"
	"github.com/kerbaras/mapareas/pkg/storage"
	"github.com/spf13/afero"
)

const (
	reasonCanceling = "canceling"
	reasonCanceled  = "canceled"
	reasonFailed    = "download failed"
	reasonNoResult  = "job ended without result"
)

// statusFromJob translates a job observation into a DownloadStatus.
// Failed jobs carry no usable diagnostics, so the reason stays generic.
func statusFromJob(u sources.JobUpdate) data.DownloadStatus {
	switch u.Status {
	case sources.JobNotStarted:
		return data.Idle
	case sources.JobStarted, sources.JobPaused:
		return data.InProgress(u.Progress)
	case sources.JobCanceling:
		return data.Aborted(reasonCanceling, nil)
	case sources.JobSucceeded:
		return data.Completed
	case sources.JobFailed:
		return data.Aborted(reasonFailed, nil)
	default:
		return data.Aborted(reasonFailed, nil)
	}
}

// subscriber holds at most one pending status; a newer status replaces an
// unread one.
type subscriber struct {
	ch   chan data.DownloadStatus
	stop func() bool
}

func (s *subscriber) offer(status data.DownloadStatus) {
	select {
	case s.ch <- status:
	default:
		select {
		case <-s.ch:
		default:
		}
		s.ch <- status
	}
}

type activeJob struct {
	areaID   string
	parentID string
	job      sources.Job

	mu       sync.Mutex
	last     data.DownloadStatus
	subs     map[*subscriber]struct{}
	done     bool
	canceled bool
}

func closedWith(status data.DownloadStatus) <-chan data.DownloadStatus {
	ch := make(chan data.DownloadStatus, 1)
	ch <- status
	close(ch)
	return ch
}

// subscribe delivers the current status first, then every later one, and
// closes after the terminal status or when ctx ends.
func (e *activeJob) subscribe(ctx context.Context) <-chan data.DownloadStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return closedWith(e.last)
	}

	sub := &subscriber{ch: make(chan data.DownloadStatus, 1)}
	sub.ch <- e.last
	e.subs[sub] = struct{}{}
	sub.stop = context.AfterFunc(ctx, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[sub]; ok {
			delete(e.subs, sub)
			close(sub.ch)
		}
	})
	return sub.ch
}

// keyedMutex serializes work per area id without a global lock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Tracker owns the registry of in-flight download jobs. There is at most one
// job per area id; later requests for the same area join the running job.
type Tracker struct {
	store   *storage.AreaStore
	factory sources.JobFactory
	logger  *slog.Logger

	jobCtx    context.Context
	jobCancel context.CancelFunc

	keys keyedMutex

	mu     sync.RWMutex
	active map[string]*activeJob

	listenersMu sync.Mutex
	listeners   map[chan struct{}]struct{}
}

func NewTracker(store *storage.AreaStore, factory sources.JobFactory, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		store:     store,
		factory:   factory,
		logger:    logger.With("component", "tracker"),
		jobCtx:    ctx,
		jobCancel: cancel,
		active:    make(map[string]*activeJob),
		listeners: make(map[chan struct{}]struct{}),
	}
}

func (t *Tracker) lookup(areaID string) *activeJob {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active[areaID]
}

// Start downloads area unless it is already on disk or already running.
// The returned channel yields Starting (or the running job's last status, or
// Completed) first and closes after a terminal status or when ctx ends.
// Ending ctx only stops observing; the download keeps going.
func (t *Tracker) Start(ctx context.Context, parentID string, area data.Area) <-chan data.DownloadStatus {
	unlock := t.keys.Lock(area.ID)
	defer unlock()

	if e := t.lookup(area.ID); e != nil {
		t.logger.Info("joining in-progress download", "area", area.ID)
		return e.subscribe(ctx)
	}

	if t.store.Exists(area.ID) {
		t.logger.Info("map area already downloaded", "area", area.ID)
		return closedWith(data.Completed)
	}

	if err := t.store.EnsureRoot(); err != nil {
		t.logger.Error("unable to create offline map directory", "path", t.store.Root(), "error", err)
		return closedWith(data.Aborted("unable to create directory on file system", err))
	}

	job, err := t.factory.NewDownloadJob(parentID, area, t.store.Fs(), t.store.Dir(area.ID))
	if err != nil {
		t.logger.Error("unable to create download job", "area", area.ID, "error", err)
		return closedWith(data.Aborted("unable to create download job", err))
	}

	e := &activeJob{
		areaID:   area.ID,
		parentID: parentID,
		job:      job,
		last:     data.Starting,
		subs:     make(map[*subscriber]struct{}),
	}
	ch := e.subscribe(ctx)

	t.mu.Lock()
	t.active[area.ID] = e
	count := len(t.active)
	t.mu.Unlock()
	t.logger.Info("registered download", "area", area.ID, "job", job.ID(), "active", count)
	t.notify()

	if err := job.Start(t.jobCtx); err != nil {
		t.logger.Error("unable to start download job", "area", area.ID, "job", job.ID(), "error", err)
		t.deletePartial(area.ID)
		t.finish(e, data.Aborted("unable to start download", err))
		return ch
	}

	go t.observe(e)
	return ch
}

func (t *Tracker) observe(e *activeJob) {
	for u := range e.job.Updates() {
		status := statusFromJob(u)
		t.logger.Debug("job update",
			"area", e.areaID,
			"job", e.job.ID(),
			"job_status", u.Status,
			"progress", u.Progress,
			"message", u.Message,
		)
		switch u.Status {
		case sources.JobSucceeded:
			t.finish(e, status)
		case sources.JobFailed:
			if u.Message != "" {
				status.Err = errors.New(u.Message)
			}
			t.logger.Warn("download failed", "area", e.areaID, "job", e.job.ID(), "message", u.Message)
			t.abandon(e, status)
		default:
			t.apply(e, status)
		}
	}

	e.mu.Lock()
	done, canceled := e.done, e.canceled
	e.mu.Unlock()

	if !done {
		t.abandon(e, data.Aborted(reasonNoResult, nil))
	}
	if canceled {
		t.sweep(e.areaID)
	}
}

// abandon ends a job that did not succeed and deletes its partial files,
// provided the entry still owns the area.
func (t *Tracker) abandon(e *activeJob, status data.DownloadStatus) {
	unlock := t.keys.Lock(e.areaID)
	defer unlock()

	if t.lookup(e.areaID) == e {
		t.deletePartial(e.areaID)
	}
	t.finish(e, status)
}

func (t *Tracker) apply(e *activeJob, status data.DownloadStatus) {
	e.mu.Lock()
	if e.done || e.last.Equal(status) {
		e.mu.Unlock()
		return
	}
	e.last = status
	for sub := range e.subs {
		sub.offer(status)
	}
	e.mu.Unlock()
	t.notify()
}

// finish records a terminal status, removes the registry entry and closes
// every subscription. Only the first call for an entry has any effect.
func (t *Tracker) finish(e *activeJob, status data.DownloadStatus) bool {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return false
	}
	e.done = true
	e.last = status
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	t.mu.Lock()
	if t.active[e.areaID] == e {
		delete(t.active, e.areaID)
	}
	count := len(t.active)
	t.mu.Unlock()
	t.logger.Info("removed download", "area", e.areaID, "job", e.job.ID(), "status", status.String(), "active", count)

	for sub := range subs {
		sub.stop()
		sub.offer(status)
		close(sub.ch)
	}
	t.notify()
	return true
}

func (t *Tracker) deletePartial(areaID string) {
	if _, err := t.store.Delete(areaID); err != nil {
		t.logger.Error("failed to delete partial download", "area", areaID, "error", err)
	}
}

// sweep removes what a canceled job may have written after its directory
// was deleted, unless a newer download owns the area or finished it.
func (t *Tracker) sweep(areaID string) {
	unlock := t.keys.Lock(areaID)
	defer unlock()

	if t.lookup(areaID) != nil {
		return
	}
	if ok, _ := afero.Exists(t.store.Fs(), filepath.Join(t.store.Dir(areaID), sources.ManifestFile)); ok {
		return
	}
	t.deletePartial(areaID)
}

// Status returns the last known status of a running download.
func (t *Tracker) Status(areaID string) (data.DownloadStatus, bool) {
	e := t.lookup(areaID)
	if e == nil {
		return data.DownloadStatus{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return data.DownloadStatus{}, false
	}
	return e.last, true
}

// Active lists the area ids with a registered job.
func (t *Tracker) Active() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	return ids
}

// Cancel asks the job to stop, forgets it and deletes whatever it wrote.
// Cancellation is not confirmed by the job before the files go. It returns
// false when nothing was running or the job finished first.
func (t *Tracker) Cancel(areaID string) bool {
	unlock := t.keys.Lock(areaID)
	defer unlock()

	e := t.lookup(areaID)
	if e == nil {
		return false
	}

	t.logger.Info("canceling active job", "area", areaID, "job", e.job.ID())
	e.mu.Lock()
	e.canceled = true
	e.mu.Unlock()

	// TODO: surface failed cancellations once jobs report them.
	if err := e.job.Cancel(); err != nil {
		t.logger.Warn("job cancel failed", "area", areaID, "job", e.job.ID(), "error", err)
	}
	// The job may have reached a terminal status while being canceled. Its
	// result stands and a completed bundle stays on disk.
	if !t.finish(e, data.Aborted(reasonCanceled, nil)) {
		t.logger.Info("job finished before it was canceled", "area", areaID, "job", e.job.ID())
		return false
	}
	t.deletePartial(areaID)
	return true
}

// CancelAll cancels every running download and reports how many there were.
func (t *Tracker) CancelAll() int {
	ids := t.Active()
	t.logger.Info("canceling running downloads", "active", len(ids))
	n := 0
	for _, id := range ids {
		if t.Cancel(id) {
			n++
		}
	}
	return n
}

// Delete removes a finished download from disk. It returns false when there
// is nothing on disk or the area is still downloading.
func (t *Tracker) Delete(areaID string) (bool, error) {
	unlock := t.keys.Lock(areaID)
	defer unlock()

	if t.lookup(areaID) != nil {
		return false, nil
	}
	deleted, err := t.store.Delete(areaID)
	if deleted {
		t.logger.Info("deleted offline map area", "area", areaID)
		t.notify()
	}
	return deleted, err
}

// Downloaded reports whether the area is on disk and not being written.
func (t *Tracker) Downloaded(areaID string) bool {
	return t.lookup(areaID) == nil && t.store.Exists(areaID)
}

// Resolve returns the status of an area for display: the running job's
// status, else Completed when on disk, else Idle.
func (t *Tracker) Resolve(areaID string) data.DownloadStatus {
	if status, ok := t.Status(areaID); ok {
		return status
	}
	if t.store.Exists(areaID) {
		return data.Completed
	}
	return data.Idle
}

// Changes returns a signal that fires whenever any download changes state.
// Bursts collapse into one signal. Call the returned func to stop.
func (t *Tracker) Changes() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	t.listenersMu.Lock()
	t.listeners[ch] = struct{}{}
	t.listenersMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.listenersMu.Lock()
			delete(t.listeners, ch)
			t.listenersMu.Unlock()
		})
	}
}

func (t *Tracker) notify() {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	for ch := range t.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close cancels all downloads and stops the job context.
func (t *Tracker) Close() {
	t.CancelAll()
	t.jobCancel()
}
