package components

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/kerbaras/mapareas/pkg/services"
)

type fakeRepo struct {
	top     data.ViewMapInfo
	topErr  error
	topGate chan struct{}
	areas   chan services.AreasUpdate

	mu        sync.Mutex
	downloads map[string][]data.DownloadStatus
	deletable map[string]bool
	canceled  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		top: data.ViewMapInfo{
			ID:     data.MapID{Type: data.MapTypeRemote, Key: "web-map"},
			Title:  "Explore Maine",
			Status: data.Unavailable,
		},
		areas:     make(chan services.AreasUpdate, 4),
		downloads: make(map[string][]data.DownloadStatus),
		deletable: make(map[string]bool),
	}
}

func (r *fakeRepo) GetTopLevelMap(ctx context.Context, id string) (data.ViewMapInfo, error) {
	if r.topGate != nil {
		<-r.topGate
	}
	return r.top, r.topErr
}

func (r *fakeRepo) GetMapAreas(ctx context.Context, id string) <-chan services.AreasUpdate {
	return r.areas
}

func (r *fakeRepo) DownloadMapArea(ctx context.Context, parentID, childID string) <-chan data.DownloadStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	statuses := r.downloads[childID]
	ch := make(chan data.DownloadStatus, len(statuses))
	for _, s := range statuses {
		ch <- s
	}
	close(ch)
	return ch
}

func (r *fakeRepo) DeleteDownloadedMapArea(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ok := r.deletable[id]
	delete(r.deletable, id)
	return ok
}

func (r *fakeRepo) CancelRunningDownloads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled++
	return 2
}

func areaInfo(key string, status data.DownloadStatus) data.ViewMapInfo {
	return data.ViewMapInfo{
		ID:     data.MapID{Type: data.MapTypeLocalStorage, Key: key},
		Title:  "Area " + key,
		Status: status,
	}
}

func kinds(elements []data.ListElement) string {
	out := ""
	for _, e := range elements {
		switch e.Kind {
		case data.ElementHeader:
			out += "H"
		case data.ElementItem:
			out += "I"
		case data.ElementDivider:
			out += "D"
		case data.ElementLoading:
			out += "L"
		}
	}
	return out
}

func waitForKinds(t *testing.T, list *MapList, want string) []data.ListElement {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		elements := list.Elements()
		if kinds(elements) == want {
			return elements
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("list never became %q, last was %q", want, kinds(list.Elements()))
	return nil
}

func populated(t *testing.T, repo *fakeRepo) (*MapList, context.CancelFunc) {
	t.Helper()
	list := NewMapList(repo, "web-map", "Web Map", "Map Areas", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go list.Populate(ctx)

	repo.areas <- services.AreasUpdate{Areas: []data.ViewMapInfo{
		areaInfo("a", data.Idle),
		areaInfo("b", data.Completed),
	}}
	waitForKinds(t, list, "HIDHII")
	return list, cancel
}

func TestPopulateMergePolicy(t *testing.T) {
	repo := newFakeRepo()
	repo.topGate = make(chan struct{})
	list := NewMapList(repo, "web-map", "Web Map", "Map Areas", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- list.Populate(ctx) }()

	// top pending: only a loading row
	waitForKinds(t, list, "L")

	// top resolved, areas pending
	close(repo.topGate)
	elements := waitForKinds(t, list, "HIL")
	if elements[0].Title != "Web Map" {
		t.Errorf("Expected web map header, got %q", elements[0].Title)
	}
	if elements[1].Info.Title != "Explore Maine" {
		t.Errorf("Expected top map row, got %q", elements[1].Info.Title)
	}

	// both resolved
	repo.areas <- services.AreasUpdate{Areas: []data.ViewMapInfo{
		areaInfo("a", data.Idle),
		areaInfo("b", data.Completed),
		areaInfo("c", data.Idle),
	}}
	elements = waitForKinds(t, list, "HIDHIII")
	if elements[3].Title != "Map Areas" {
		t.Errorf("Expected map areas header, got %q", elements[3].Title)
	}
	if elements[5].Info.Status.Kind != data.StatusCompleted {
		t.Errorf("Expected area b completed, got %s", elements[5].Info.Status)
	}

	// later updates replace the area rows
	repo.areas <- services.AreasUpdate{Areas: []data.ViewMapInfo{
		areaInfo("a", data.InProgress(10)),
		areaInfo("b", data.Completed),
		areaInfo("c", data.Idle),
	}}
	deadline := time.Now().Add(2 * time.Second)
	for list.Elements()[4].Info.Status.Kind != data.StatusInProgress {
		if time.Now().After(deadline) {
			t.Fatal("area a never showed progress")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(repo.areas)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected populate to end cleanly, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("populate did not return")
	}
}

func TestPopulateTopFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.topErr = errors.New("portal down")
	list := NewMapList(repo, "web-map", "Web Map", "Map Areas", nil)

	err := list.Populate(context.Background())

	if err == nil {
		t.Fatal("Expected error")
	}
	if len(list.Elements()) != 0 {
		t.Errorf("Expected empty list, got %q", kinds(list.Elements()))
	}
	if list.Err() == nil {
		t.Error("Expected Err to be set")
	}
}

func TestPopulateAreasFailure(t *testing.T) {
	repo := newFakeRepo()
	list := NewMapList(repo, "web-map", "Web Map", "Map Areas", nil)
	repo.areas <- services.AreasUpdate{Err: errors.New("portal down")}

	err := list.Populate(context.Background())

	if err == nil {
		t.Fatal("Expected error")
	}
	if got := kinds(list.Elements()); got != "HI" {
		t.Errorf("Expected top rows only, got %q", got)
	}
	if list.Err() == nil {
		t.Error("Expected Err to be set")
	}
}

func TestApplyStatus(t *testing.T) {
	repo := newFakeRepo()
	list, cancel := populated(t, repo)
	defer cancel()

	// drain pending signal
	select {
	case <-list.Changes():
	default:
	}

	list.ApplyStatus(data.MapID{Type: data.MapTypeLocalStorage, Key: "a"}, data.InProgress(42))

	elements := list.Elements()
	if !elements[4].Info.Status.Equal(data.InProgress(42)) {
		t.Errorf("Expected InProgress(42), got %s", elements[4].Info.Status)
	}
	if elements[5].Info.Status.Kind != data.StatusCompleted {
		t.Errorf("Expected other rows untouched, got %s", elements[5].Info.Status)
	}
	select {
	case <-list.Changes():
	default:
		t.Error("Expected change signal")
	}

	before := kinds(list.Elements())
	list.ApplyStatus(data.MapID{Type: data.MapTypeLocalStorage, Key: "zzz"}, data.Completed)
	if kinds(list.Elements()) != before {
		t.Error("Expected unknown id to be a no-op")
	}
}

func TestApplyStatusConcurrent(t *testing.T) {
	repo := newFakeRepo()
	list := NewMapList(repo, "web-map", "Web Map", "Map Areas", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go list.Populate(ctx)

	var infos []data.ViewMapInfo
	for i := 0; i < 20; i++ {
		infos = append(infos, areaInfo(fmt.Sprintf("area-%d", i), data.Idle))
	}
	repo.areas <- services.AreasUpdate{Areas: infos}
	deadline := time.Now().Add(2 * time.Second)
	for len(list.Elements()) != 24 {
		if time.Now().After(deadline) {
			t.Fatal("areas never loaded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			list.ApplyStatus(data.MapID{Type: data.MapTypeLocalStorage, Key: fmt.Sprintf("area-%d", i)}, data.InProgress(i))
		}(i)
	}
	wg.Wait()

	for _, e := range list.Elements()[4:] {
		if e.Info.Status.Kind != data.StatusInProgress {
			t.Errorf("Expected %s in progress, got %s", e.Info.ID.Key, e.Info.Status)
		}
	}
}

func TestTriggerDownload(t *testing.T) {
	repo := newFakeRepo()
	repo.downloads["a"] = []data.DownloadStatus{data.Starting, data.InProgress(50), data.Completed}
	list, cancel := populated(t, repo)
	defer cancel()

	last := list.TriggerDownload(context.Background(), data.MapID{Type: data.MapTypeLocalStorage, Key: "a"})

	if last.Kind != data.StatusCompleted {
		t.Errorf("Expected completed, got %s", last)
	}
	if list.Elements()[4].Info.Status.Kind != data.StatusCompleted {
		t.Errorf("Expected row completed, got %s", list.Elements()[4].Info.Status)
	}
}

func TestTriggerDelete(t *testing.T) {
	repo := newFakeRepo()
	list, cancel := populated(t, repo)
	defer cancel()
	id := data.MapID{Type: data.MapTypeLocalStorage, Key: "b"}

	err := list.TriggerDelete(id)
	if !errors.Is(err, data.ErrNothingToDelete) {
		t.Errorf("Expected ErrNothingToDelete, got %v", err)
	}
	if list.Elements()[5].Info.Status.Kind != data.StatusCompleted {
		t.Error("Expected row unchanged after failed delete")
	}

	repo.deletable["b"] = true
	if err := list.TriggerDelete(id); err != nil {
		t.Fatalf("Expected delete to succeed, got %v", err)
	}
	if list.Elements()[5].Info.Status.Kind != data.StatusIdle {
		t.Errorf("Expected row idle, got %s", list.Elements()[5].Info.Status)
	}
}

func TestCancelAll(t *testing.T) {
	repo := newFakeRepo()
	list := NewMapList(repo, "web-map", "Web Map", "Map Areas", nil)

	if n := list.CancelAll(); n != 2 {
		t.Errorf("Expected 2 canceled, got %d", n)
	}
	if repo.canceled != 1 {
		t.Errorf("Expected repository to be asked once, got %d", repo.canceled)
	}
}

func TestCanceledPopulateLeavesListAlone(t *testing.T) {
	repo := newFakeRepo()
	repo.topGate = make(chan struct{})
	list := NewMapList(repo, "web-map", "Web Map", "Map Areas", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- list.Populate(ctx) }()
	waitForKinds(t, list, "L")

	// the web map arrives after a refresh gave up on this load
	cancel()
	close(repo.topGate)

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("populate did not return")
	}
	if got := kinds(list.Elements()); got != "L" {
		t.Errorf("Expected list untouched, got %q", got)
	}
}

func TestCanceledPopulateIgnoresLateAreas(t *testing.T) {
	repo := newFakeRepo()
	list, cancel := populated(t, repo)

	cancel()
	repo.areas <- services.AreasUpdate{Areas: []data.ViewMapInfo{
		areaInfo("a", data.Idle),
		areaInfo("b", data.Completed),
		areaInfo("c", data.Idle),
	}}
	time.Sleep(50 * time.Millisecond)

	if got := kinds(list.Elements()); got != "HIDHII" {
		t.Errorf("Expected stale areas to be dropped, got %q", got)
	}
}
