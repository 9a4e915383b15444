package components

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/kerbaras/mapareas/pkg/app/styles"
	"github.com/kerbaras/mapareas/pkg/data"
)

type activeDownload struct {
	title  string
	status data.DownloadStatus
}

// ProgressTracker keeps the downloads worth showing: running ones and
// aborted ones until cleared.
type ProgressTracker struct {
	downloads map[string]*activeDownload
	width     int
}

func NewProgressTracker(width int) *ProgressTracker {
	return &ProgressTracker{
		downloads: make(map[string]*activeDownload),
		width:     width,
	}
}

func (p *ProgressTracker) SetWidth(width int) {
	p.width = width
}

func (p *ProgressTracker) Update(info data.ViewMapInfo) {
	key := info.ID.Key
	switch info.Status.Kind {
	case data.StatusStarting, data.StatusInProgress, data.StatusAborted:
		p.downloads[key] = &activeDownload{title: info.Title, status: info.Status}
	default:
		// Remove finished or never started areas
		delete(p.downloads, key)
	}
}

// Sync updates the tracked downloads from the items of a list. An aborted
// download stays visible when its row falls back to Idle.
func (p *ProgressTracker) Sync(elements []data.ListElement) {
	for _, e := range elements {
		if e.Kind != data.ElementItem {
			continue
		}
		d, ok := p.downloads[e.Info.ID.Key]
		if ok && d.status.Kind == data.StatusAborted && e.Info.Status.Kind == data.StatusIdle {
			continue
		}
		p.Update(e.Info)
	}
}

func (p *ProgressTracker) Clear() {
	p.downloads = make(map[string]*activeDownload)
}

func (p *ProgressTracker) HasActive() bool {
	return len(p.downloads) > 0
}

func (p *ProgressTracker) View() string {
	if len(p.downloads) == 0 {
		return ""
	}

	keys := make([]string, 0, len(p.downloads))
	for k := range p.downloads {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Active Downloads"))
	b.WriteString("\n\n")

	for _, k := range keys {
		d := p.downloads[k]
		b.WriteString(styles.TextStyle.Render(d.title))
		b.WriteString("\n")

		if d.status.Kind == data.StatusInProgress {
			b.WriteString(renderProgressBar(d.status.Percent, p.width-4))
			b.WriteString("\n")
		}

		b.WriteString(StatusText(d.status))
		b.WriteString("\n")

		if d.status.Err != nil {
			b.WriteString(styles.StatusError.Render(fmt.Sprintf("Error: %s", d.status.Err)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}

// StatusText renders a status with its color.
func StatusText(status data.DownloadStatus) string {
	var text string
	switch status.Kind {
	case data.StatusUnavailable:
		text = "online only"
	case data.StatusIdle:
		text = "not downloaded"
	case data.StatusCompleted:
		text = "downloaded"
	default:
		text = status.String()
	}
	return styles.DownloadStatusStyle(status.Kind).Render(text)
}

func renderProgressBar(percent, width int) string {
	if width <= 0 {
		return ""
	}
	bar := progress.New(
		progress.WithGradient(string(styles.Secondary), string(styles.Primary)),
		progress.WithWidth(width),
	)
	return bar.ViewAs(float64(percent) / 100)
}

// SimpleProgress renders a progress bar for a percentage.
func SimpleProgress(percent, width int) string {
	return renderProgressBar(percent, width)
}
