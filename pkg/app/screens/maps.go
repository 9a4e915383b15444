package screens

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/kerbaras/mapareas/pkg/app/components"
	"github.com/kerbaras/mapareas/pkg/app/styles"
	"github.com/kerbaras/mapareas/pkg/data"
)

type MapsScreen struct {
	list     *components.MapList
	mapList  *components.MapListView
	progress *components.ProgressTracker
	refresh  func()

	ctx    context.Context
	cancel context.CancelFunc

	width  int
	height int
	err    error
	notice string
}

func NewMapsScreen(list *components.MapList, refresh func()) *MapsScreen {
	ctx, cancel := context.WithCancel(context.Background())
	return &MapsScreen{
		list:     list,
		mapList:  components.NewMapListView(),
		progress: components.NewProgressTracker(80),
		refresh:  refresh,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *MapsScreen) Init() tea.Cmd {
	return tea.Batch(
		s.populate(s.ctx),
		s.waitForChange,
		s.mapList.Tick(),
	)
}

func (s *MapsScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		s.mapList.Width = msg.Width - 4
		s.mapList.Height = msg.Height - 10
		s.progress.SetWidth(msg.Width - 4)

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			s.mapList.Prev()
		case "down", "j":
			s.mapList.Next()
		case "enter":
			selected := s.mapList.Selected()
			if selected == nil {
				return s, nil
			}
			if selected.ID.Type == data.MapTypeRemote || selected.Status.Kind == data.StatusCompleted {
				id := selected.ID
				return s, func() tea.Msg {
					return SwitchScreenMsg{Screen: "details", Data: id}
				}
			}
			return s, s.download(*selected)
		case "d":
			if selected := s.mapList.Selected(); selected != nil {
				return s, s.download(*selected)
			}
		case "x":
			if selected := s.mapList.Selected(); selected != nil && selected.ID.Type == data.MapTypeLocalStorage {
				return s, s.deleteArea(selected.ID)
			}
		case "c":
			n := s.list.CancelAll()
			s.notice = fmt.Sprintf("Canceled %d download(s)", n)
		case "r":
			s.cancel()
			s.ctx, s.cancel = context.WithCancel(context.Background())
			if s.refresh != nil {
				s.refresh()
			}
			s.err = nil
			s.notice = ""
			s.progress.Clear()
			return s, s.populate(s.ctx)
		}

	case listChangedMsg:
		elements := s.list.Elements()
		s.mapList.SetItems(elements)
		s.progress.Sync(elements)
		if err := s.list.Err(); err != nil {
			s.err = err
		}
		return s, s.waitForChange

	case populateDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			s.err = msg.err
		}

	case downloadDoneMsg:
		s.progress.Update(msg.info.WithStatus(msg.status))
		if msg.status.Kind == data.StatusAborted {
			s.notice = fmt.Sprintf("%s: %s", msg.info.Title, msg.status)
		}

	case areaDeletedMsg:
		if msg.err != nil {
			s.err = msg.err
		} else {
			s.notice = "Deleted " + msg.id.Key
		}

	case spinner.TickMsg:
		return s, s.mapList.UpdateSpinner(msg)
	}

	return s, nil
}

func (s *MapsScreen) View() string {
	if s.width == 0 {
		return "Loading..."
	}

	header := styles.TitleStyle.Render("🗺  Offline Map Areas")

	var errorMsg string
	if s.err != nil {
		errorMsg = styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err))
		errorMsg += "\n\n"
	}

	var notice string
	if s.notice != "" {
		notice = styles.MutedStyle.Render(s.notice) + "\n"
	}

	help := styles.HelpStyle.Render(
		"↑/k ↓/j: navigate • enter: open • d: download • x: delete • c: cancel all • r: refresh • q: quit",
	)

	return fmt.Sprintf("%s\n\n%s%s\n%s%s\n%s",
		header,
		errorMsg,
		s.mapList.View(),
		notice,
		s.progress.View(),
		help,
	)
}

// Close stops following the list and cancels running downloads.
func (s *MapsScreen) Close() {
	s.cancel()
	s.list.CancelAll()
}

// Messages
type listChangedMsg struct{}

type populateDoneMsg struct {
	err error
}

type downloadDoneMsg struct {
	info   data.ViewMapInfo
	status data.DownloadStatus
}

type areaDeletedMsg struct {
	id  data.MapID
	err error
}

// Commands
func (s *MapsScreen) populate(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		return populateDoneMsg{err: s.list.Populate(ctx)}
	}
}

func (s *MapsScreen) waitForChange() tea.Msg {
	<-s.list.Changes()
	return listChangedMsg{}
}

func (s *MapsScreen) download(info data.ViewMapInfo) tea.Cmd {
	if info.ID.Type != data.MapTypeLocalStorage {
		return nil
	}
	switch info.Status.Kind {
	case data.StatusIdle, data.StatusAborted:
	default:
		return nil
	}

	s.progress.Update(info.WithStatus(data.Starting))
	ctx := s.ctx
	return func() tea.Msg {
		return downloadDoneMsg{info: info, status: s.list.TriggerDownload(ctx, info.ID)}
	}
}

func (s *MapsScreen) deleteArea(id data.MapID) tea.Cmd {
	return func() tea.Msg {
		return areaDeletedMsg{id: id, err: s.list.TriggerDelete(id)}
	}
}
