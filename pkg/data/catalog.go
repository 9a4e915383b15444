package data

import "time"

// PortalItem is a top-level web map hosted on the portal.
type PortalItem struct {
	ID           string
	Title        string
	Snippet      string
	ThumbnailURL string
	Type         string
	FetchedAt    time.Time
}

// Area is a preplanned, downloadable sub-region of a web map.
type Area struct {
	ID           string
	ParentID     string
	Title        string
	Snippet      string
	ThumbnailURL string
	PackageIDs   []string
	FetchedAt    time.Time
}

// ToViewMapInfo converts a portal item into its display record. Web maps are
// browsed online and cannot be downloaded as a whole.
func (p *PortalItem) ToViewMapInfo() ViewMapInfo {
	return ViewMapInfo{
		ID:          MapID{Type: MapTypeRemote, Key: p.ID},
		ImageURL:    p.ThumbnailURL,
		Title:       p.Title,
		Description: p.Snippet,
		Status:      Unavailable,
	}
}

func (a *Area) ToViewMapInfo(status DownloadStatus) ViewMapInfo {
	return ViewMapInfo{
		ID:          MapID{Type: MapTypeLocalStorage, Key: a.ID},
		ImageURL:    a.ThumbnailURL,
		Title:       a.Title,
		Description: a.Snippet,
		Status:      status,
	}
}
