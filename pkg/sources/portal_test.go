package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePortal serves a web map with two areas, each backed by packages.
func fakePortal(t *testing.T, packages map[string][]byte) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/sharing/rest/content/items/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/sharing/rest/content/items/")
		parts := strings.Split(rest, "/")
		id := parts[0]

		switch {
		case len(parts) == 1 && id == "web-map":
			writeJSON(w, Item{ID: "web-map", Title: "Explore Maine", Snippet: "Trails", Thumbnail: "thumb.png", Type: "Web Map"})
		case len(parts) == 1:
			writeJSON(w, map[string]any{"error": map[string]any{"code": 400, "message": "Item does not exist or is inaccessible."}})
		case parts[1] == "relatedItems" && r.URL.Query().Get("relationshipType") == relationMapToArea:
			writeJSON(w, relatedResponse{Total: 2, RelatedItems: []Item{
				{ID: "area-1", Title: "Acadia", Snippet: "Coast"},
				{ID: "area-2", Title: "Baxter", Snippet: "Mountains", Thumbnail: "b.png"},
			}})
		case parts[1] == "relatedItems" && r.URL.Query().Get("relationshipType") == relationAreaToPackage:
			writeJSON(w, relatedResponse{Total: 1, RelatedItems: []Item{{ID: "pkg-" + id}}})
		case parts[1] == "data":
			body, ok := packages[id]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
			w.Write(body)
		default:
			http.NotFound(w, r)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestArcGISPortal_GetItem(t *testing.T) {
	server := fakePortal(t, nil)
	portal := NewArcGISPortal(server.URL, "")

	item, err := portal.GetItem(context.Background(), "web-map")
	require.NoError(t, err)
	assert.Equal(t, "web-map", item.ID)
	assert.Equal(t, "Explore Maine", item.Title)
	assert.Equal(t, server.URL+"/sharing/rest/content/items/web-map/info/thumb.png", item.ThumbnailURL)
}

func TestArcGISPortal_GetItemPortalError(t *testing.T) {
	server := fakePortal(t, nil)
	portal := NewArcGISPortal(server.URL, "")

	_, err := portal.GetItem(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Item does not exist")
}

func TestArcGISPortal_GetAreas(t *testing.T) {
	server := fakePortal(t, nil)
	portal := NewArcGISPortal(server.URL, "")

	areas, err := portal.GetAreas(context.Background(), "web-map")
	require.NoError(t, err)
	require.Len(t, areas, 2)

	assert.Equal(t, "area-1", areas[0].ID)
	assert.Equal(t, "web-map", areas[0].ParentID)
	assert.Equal(t, []string{"pkg-area-1"}, areas[0].PackageIDs)
	assert.Empty(t, areas[0].ThumbnailURL)
	assert.Equal(t, "Baxter", areas[1].Title)
	assert.NotEmpty(t, areas[1].ThumbnailURL)
}

func TestArcGISPortal_TokenIsSent(t *testing.T) {
	var token string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.URL.Query().Get("token")
		json.NewEncoder(w).Encode(Item{ID: "web-map"})
	}))
	defer server.Close()

	portal := NewArcGISPortal(server.URL, "secret")
	_, err := portal.GetItem(context.Background(), "web-map")
	require.NoError(t, err)
	assert.Equal(t, "secret", token)
}

func collectUpdates(t *testing.T, job Job) []JobUpdate {
	t.Helper()
	var updates []JobUpdate
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-job.Updates():
			if !ok {
				return updates
			}
			updates = append(updates, u)
		case <-timeout:
			t.Fatal("timed out waiting for job updates")
		}
	}
}

func TestPackageJob_DownloadsAndWritesManifest(t *testing.T) {
	payload := []byte(strings.Repeat("x", 100*1024))
	server := fakePortal(t, map[string][]byte{"pkg-area-1": payload})
	portal := NewArcGISPortal(server.URL, "")
	fs := afero.NewMemMapFs()

	area := data.Area{ID: "area-1", Title: "Acadia", PackageIDs: []string{"pkg-area-1"}}
	job, err := portal.NewDownloadJob("web-map", area, fs, "/cache/areas/area-1")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID())

	require.NoError(t, job.Start(context.Background()))
	updates := collectUpdates(t, job)

	require.NotEmpty(t, updates)
	assert.Equal(t, JobStarted, updates[0].Status)
	last := updates[len(updates)-1]
	assert.Equal(t, JobSucceeded, last.Status)
	assert.Equal(t, 100, last.Progress)

	// progress never goes backwards
	prev := 0
	for _, u := range updates {
		assert.GreaterOrEqual(t, u.Progress, prev)
		prev = u.Progress
	}

	content, err := afero.ReadFile(fs, "/cache/areas/area-1/package.mmpk")
	require.NoError(t, err)
	assert.Len(t, content, len(payload))

	raw, err := afero.ReadFile(fs, "/cache/areas/area-1/"+ManifestFile)
	require.NoError(t, err)
	var manifest Manifest
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Equal(t, "area-1", manifest.AreaID)
	assert.Equal(t, []string{"package.mmpk"}, manifest.Packages)
	assert.Equal(t, int64(len(payload)), manifest.Bytes)
}

func TestPackageJob_FailsOnMissingPackage(t *testing.T) {
	server := fakePortal(t, nil)
	portal := NewArcGISPortal(server.URL, "")
	fs := afero.NewMemMapFs()

	job, err := portal.NewDownloadJob("web-map", data.Area{ID: "area-1", PackageIDs: []string{"pkg-area-1"}}, fs, "/a")
	require.NoError(t, err)
	require.NoError(t, job.Start(context.Background()))

	updates := collectUpdates(t, job)
	last := updates[len(updates)-1]
	assert.Equal(t, JobFailed, last.Status)

	exists, _ := afero.Exists(fs, "/a/"+ManifestFile)
	assert.False(t, exists)
}

func TestPackageJob_StartTwice(t *testing.T) {
	server := fakePortal(t, map[string][]byte{"pkg-area-1": []byte("x")})
	portal := NewArcGISPortal(server.URL, "")

	job, err := portal.NewDownloadJob("web-map", data.Area{ID: "area-1", PackageIDs: []string{"pkg-area-1"}}, afero.NewMemMapFs(), "/a")
	require.NoError(t, err)
	require.NoError(t, job.Start(context.Background()))
	assert.Error(t, job.Start(context.Background()))
	collectUpdates(t, job)
}

func TestPackageJob_CancelBeforeStart(t *testing.T) {
	portal := NewArcGISPortal("http://unused", "")
	job, err := portal.NewDownloadJob("web-map", data.Area{ID: "area-1", PackageIDs: []string{"p"}}, afero.NewMemMapFs(), "/a")
	require.NoError(t, err)
	assert.Error(t, job.Cancel())
}

func TestNewDownloadJobRequiresPackages(t *testing.T) {
	portal := NewArcGISPortal("http://unused", "")
	_, err := portal.NewDownloadJob("web-map", data.Area{ID: "area-1"}, afero.NewMemMapFs(), "/a")
	assert.Error(t, err)
}

func TestPackagePercent(t *testing.T) {
	assert.Equal(t, 0, packagePercent(0, 1, 0, 100))
	assert.Equal(t, 50, packagePercent(0, 1, 50, 100))
	assert.Equal(t, 99, packagePercent(0, 1, 100, 100))
	assert.Equal(t, 75, packagePercent(1, 2, 50, 100))
	assert.Equal(t, 0, packagePercent(0, 1, 10, -1))
}
