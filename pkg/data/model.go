package data

import "fmt"

// MapType tags where a map is served from.
type MapType string

const (
	MapTypeRemote       MapType = "RemoteMap"
	MapTypeLocalStorage MapType = "LocalStorageMap"
	MapTypeUnknown      MapType = "unknown"
)

// ParseMapType maps a type key back to a MapType. Unrecognised keys yield MapTypeUnknown.
func ParseMapType(key string) MapType {
	switch MapType(key) {
	case MapTypeRemote, MapTypeLocalStorage:
		return MapType(key)
	default:
		return MapTypeUnknown
	}
}

// MapID is a strongly typed reference to a catalog resource.
type MapID struct {
	Type MapType
	Key  string
}

func (id MapID) String() string {
	return fmt.Sprintf("%s:%s", id.Type, id.Key)
}

type StatusKind int

const (
	StatusUnavailable StatusKind = iota
	StatusIdle
	StatusStarting
	StatusInProgress
	StatusAborted
	StatusCompleted
)

func (k StatusKind) String() string {
	switch k {
	case StatusUnavailable:
		return "unavailable"
	case StatusIdle:
		return "idle"
	case StatusStarting:
		return "starting"
	case StatusInProgress:
		return "downloading"
	case StatusAborted:
		return "aborted"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// DownloadStatus is the lifecycle state of one area's download.
// Percent is only meaningful for StatusInProgress, Reason and Err only for StatusAborted.
type DownloadStatus struct {
	Kind    StatusKind
	Percent int
	Reason  string
	Err     error
}

var (
	Unavailable = DownloadStatus{Kind: StatusUnavailable}
	Idle        = DownloadStatus{Kind: StatusIdle}
	Starting    = DownloadStatus{Kind: StatusStarting}
	Completed   = DownloadStatus{Kind: StatusCompleted}
)

// InProgress returns an in-progress status with percent clamped to 0..100.
func InProgress(percent int) DownloadStatus {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return DownloadStatus{Kind: StatusInProgress, Percent: percent}
}

func Aborted(reason string, err error) DownloadStatus {
	return DownloadStatus{Kind: StatusAborted, Reason: reason, Err: err}
}

// IsTerminal reports whether no further status will follow.
func (s DownloadStatus) IsTerminal() bool {
	return s.Kind == StatusCompleted || s.Kind == StatusAborted
}

// Equal compares statuses ignoring the wrapped error.
func (s DownloadStatus) Equal(o DownloadStatus) bool {
	return s.Kind == o.Kind && s.Percent == o.Percent && s.Reason == o.Reason
}

func (s DownloadStatus) String() string {
	switch s.Kind {
	case StatusInProgress:
		return fmt.Sprintf("%s (%d%%)", s.Kind, s.Percent)
	case StatusAborted:
		if s.Reason != "" {
			return fmt.Sprintf("%s: %s", s.Kind, s.Reason)
		}
	}
	return s.Kind.String()
}

// ViewMapInfo is the display record for one map or area.
type ViewMapInfo struct {
	ID          MapID
	ImageURL    string
	Title       string
	Description string
	Status      DownloadStatus
}

// WithStatus returns a copy of the record carrying status.
func (v ViewMapInfo) WithStatus(status DownloadStatus) ViewMapInfo {
	v.Status = status
	return v
}

type ElementKind int

const (
	ElementHeader ElementKind = iota + 1
	ElementItem
	ElementDivider
	ElementLoading
)

// ListElement is one display row. Title is set for headers, Info for items.
type ListElement struct {
	Kind  ElementKind
	Title string
	Info  ViewMapInfo
}

func Header(title string) ListElement {
	return ListElement{Kind: ElementHeader, Title: title}
}

func Item(info ViewMapInfo) ListElement {
	return ListElement{Kind: ElementItem, Info: info}
}

var (
	Divider = ListElement{Kind: ElementDivider}
	Loading = ListElement{Kind: ElementLoading}
)
