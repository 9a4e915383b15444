package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kerbaras/mapareas/pkg/data"
	"github.com/kerbaras/mapareas/pkg/utils"
	"github.com/spf13/afero"
)

// ManifestFile sits next to the downloaded packages and describes them.
const ManifestFile = "manifest.json"

// Manifest records what a finished download contains.
type Manifest struct {
	AreaID       string    `json:"areaId"`
	ParentID     string    `json:"parentId"`
	Title        string    `json:"title"`
	Packages     []string  `json:"packages"`
	Bytes        int64     `json:"bytes"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

// PackageFile names the i-th package of an area on disk.
func PackageFile(i int) string {
	if i == 0 {
		return "package.mmpk"
	}
	return fmt.Sprintf("package-%d.mmpk", i)
}

// packageJob streams every package of an area into dir and writes the
// manifest last, so a directory without a manifest is never complete.
type packageJob struct {
	id       string
	api      *utils.API
	parentID string
	area     data.Area
	fs       afero.Fs
	dir      string

	updates chan JobUpdate

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

func newPackageJob(api *utils.API, parentID string, area data.Area, fs afero.Fs, dir string) *packageJob {
	return &packageJob{
		id:       uuid.NewString(),
		api:      api,
		parentID: parentID,
		area:     area,
		fs:       fs,
		dir:      dir,
		updates:  make(chan JobUpdate, 16),
	}
}

func (j *packageJob) ID() string {
	return j.id
}

func (j *packageJob) Updates() <-chan JobUpdate {
	return j.updates
}

func (j *packageJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return fmt.Errorf("job %s already started", j.id)
	}
	j.started = true

	ctx, j.cancel = context.WithCancel(ctx)
	go j.run(ctx)
	return nil
}

// Cancel is best effort: the running copy stops at its next read.
func (j *packageJob) Cancel() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel == nil {
		return fmt.Errorf("job %s not started", j.id)
	}
	j.cancel()
	return nil
}

func (j *packageJob) run(ctx context.Context) {
	defer close(j.updates)

	j.updates <- JobUpdate{Status: JobStarted, Progress: 0}

	written, err := j.download(ctx)
	if errors.Is(err, context.Canceled) {
		j.updates <- JobUpdate{Status: JobCanceling, Message: "canceled"}
		return
	}
	if err != nil {
		j.updates <- JobUpdate{Status: JobFailed, Message: err.Error()}
		return
	}

	manifest := Manifest{
		AreaID:       j.area.ID,
		ParentID:     j.parentID,
		Title:        j.area.Title,
		Bytes:        written,
		DownloadedAt: time.Now(),
	}
	for i := range j.area.PackageIDs {
		manifest.Packages = append(manifest.Packages, PackageFile(i))
	}
	if err := j.writeManifest(&manifest); err != nil {
		j.updates <- JobUpdate{Status: JobFailed, Message: err.Error()}
		return
	}

	j.updates <- JobUpdate{Status: JobSucceeded, Progress: 100}
}

func (j *packageJob) download(ctx context.Context) (int64, error) {
	if err := j.fs.MkdirAll(j.dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create area directory: %w", err)
	}

	var total int64
	count := len(j.area.PackageIDs)
	lastPercent := 0

	for i, pkgID := range j.area.PackageIDs {
		body, size, err := j.api.Open(ctx, itemPath(pkgID)+"/data")
		if err != nil {
			return total, fmt.Errorf("failed to fetch package %s: %w", pkgID, err)
		}

		file, err := j.fs.Create(filepath.Join(j.dir, PackageFile(i)))
		if err != nil {
			body.Close()
			return total, fmt.Errorf("failed to create package file: %w", err)
		}

		n, err := copyWithProgress(ctx, file, body, func(read int64) {
			percent := packagePercent(i, count, read, size)
			if percent > lastPercent {
				lastPercent = percent
				j.updates <- JobUpdate{Status: JobStarted, Progress: percent}
			}
		})
		body.Close()
		file.Close()
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// packagePercent spreads progress evenly over packages and stops at 99 so
// that 100 is only reported once the manifest is written.
func packagePercent(index, count int, read, size int64) int {
	var fraction float64
	if size > 0 {
		fraction = float64(read) / float64(size)
	}
	if fraction > 1 {
		fraction = 1
	}
	percent := int((float64(index) + fraction) / float64(count) * 100)
	if percent > 99 {
		percent = 99
	}
	return percent
}

func (j *packageJob) writeManifest(m *Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(j.fs, filepath.Join(j.dir, ManifestFile), raw, 0o644)
}

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, progress func(int64)) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			total += int64(nw)
			if werr != nil {
				return total, werr
			}
			if nr != nw {
				return total, io.ErrShortWrite
			}
			progress(total)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			return total, err
		}
	}
}
