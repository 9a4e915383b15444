package sources

import (
	"context"
	"fmt"
	"net/url"

	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/kerbaras/mapareas/pkg/utils"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	relationMapToArea     = "Map2Area"
	relationAreaToPackage = "Area2Package"
)

// Item mirrors the portal's item JSON.
type Item struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	Thumbnail string `json:"thumbnail"`
	Type      string `json:"type"`
	Size      int64  `json:"size"`
}

type portalError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *portalError) Error() string {
	return fmt.Sprintf("portal error %d: %s", e.Code, e.Message)
}

type itemResponse struct {
	Item
	Error *portalError `json:"error"`
}

type relatedResponse struct {
	Total        int          `json:"total"`
	RelatedItems []Item       `json:"relatedItems"`
	Error        *portalError `json:"error"`
}

// ArcGISPortal talks to an ArcGIS-style sharing REST API.
type ArcGISPortal struct {
	api *utils.API
}

func NewArcGISPortal(baseURL, token string) *ArcGISPortal {
	api := utils.NewAPI(baseURL)
	if token != "" {
		api = api.WithToken(token)
	}
	return &ArcGISPortal{api: api}
}

func NewArcGISPortalWithAPI(api *utils.API) *ArcGISPortal {
	return &ArcGISPortal{api: api}
}

func itemPath(id string) string {
	return fmt.Sprintf("/sharing/rest/content/items/%s", url.PathEscape(id))
}

func (p *ArcGISPortal) thumbnailURL(item *Item) string {
	if item.Thumbnail == "" {
		return ""
	}
	return fmt.Sprintf("%s%s/info/%s", p.api.BaseURL(), itemPath(item.ID), item.Thumbnail)
}

func (p *ArcGISPortal) ItemURL(id string) string {
	return p.api.BaseURL() + itemPath(id)
}

func (p *ArcGISPortal) GetItem(ctx context.Context, id string) (*data.PortalItem, error) {
	var resp itemResponse
	if err := p.api.Get(ctx, itemPath(id), url.Values{"f": {"json"}}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("portal item %s: %w", id, data.ErrNotFound)
	}
	return &data.PortalItem{
		ID:           resp.ID,
		Title:        resp.Title,
		Snippet:      resp.Snippet,
		ThumbnailURL: p.thumbnailURL(&resp.Item),
		Type:         resp.Type,
	}, nil
}

func (p *ArcGISPortal) related(ctx context.Context, id, relationship string) ([]Item, error) {
	params := url.Values{
		"f":                {"json"},
		"relationshipType": {relationship},
		"direction":        {"forward"},
	}
	var resp relatedResponse
	if err := p.api.Get(ctx, itemPath(id)+"/relatedItems", params, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.RelatedItems, nil
}

// GetAreas lists the preplanned map areas of a web map together with the
// offline packages each one is made of.
func (p *ArcGISPortal) GetAreas(ctx context.Context, parentID string) ([]data.Area, error) {
	items, err := p.related(ctx, parentID, relationMapToArea)
	if err != nil {
		return nil, fmt.Errorf("failed to get map areas: %w", err)
	}

	areas := make([]data.Area, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i := range items {
		item := items[i]
		g.Go(func() error {
			packages, err := p.related(ctx, item.ID, relationAreaToPackage)
			if err != nil {
				return fmt.Errorf("area %s: %w", item.ID, err)
			}
			ids := make([]string, len(packages))
			for j, pkg := range packages {
				ids[j] = pkg.ID
			}
			areas[i] = data.Area{
				ID:           item.ID,
				ParentID:     parentID,
				Title:        item.Title,
				Snippet:      item.Snippet,
				ThumbnailURL: p.thumbnailURL(&item),
				PackageIDs:   ids,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return areas, nil
}

// NewDownloadJob implements JobFactory by streaming the area's packages.
func (p *ArcGISPortal) NewDownloadJob(parentID string, area data.Area, fs afero.Fs, dir string) (Job, error) {
	if len(area.PackageIDs) == 0 {
		return nil, fmt.Errorf("area %s has no offline packages", area.ID)
	}
	return newPackageJob(p.api, parentID, area, fs, dir), nil
}
