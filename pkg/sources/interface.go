package sources

import (
	"context"

	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/spf13/afero"
)

// Portal is the catalog side of a map portal.
type Portal interface {
	GetItem(ctx context.Context, id string) (*data.PortalItem, error)
	GetAreas(ctx context.Context, parentID string) ([]data.Area, error)
	// ItemURL is where an online client can load the web map from.
	ItemURL(id string) string
}

// JobFactory creates download jobs that write an area's offline package
// into dir on fs.
type JobFactory interface {
	NewDownloadJob(parentID string, area data.Area, fs afero.Fs, dir string) (Job, error)
}

type JobStatus int

const (
	JobNotStarted JobStatus = iota
	JobStarted
	JobPaused
	JobCanceling
	JobSucceeded
	JobFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobNotStarted:
		return "not-started"
	case JobStarted:
		return "started"
	case JobPaused:
		return "paused"
	case JobCanceling:
		return "canceling"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// JobUpdate is one observation of a job. Progress is a percentage.
type JobUpdate struct {
	Status   JobStatus
	Progress int
	Message  string
}

// Job is a long-running download. Updates is closed after the job reaches
// JobSucceeded or JobFailed, or after it honours a Cancel.
type Job interface {
	ID() string
	Start(ctx context.Context) error
	Updates() <-chan JobUpdate
	Cancel() error
}
