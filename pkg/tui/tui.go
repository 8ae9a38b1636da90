// Package tui provides an interactive terminal player for lyrica
package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/james-see/lyrica/pkg/player"
	"github.com/james-see/lyrica/pkg/song"
)

// Color scheme
var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			Width(10)

	valueStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)
)

// refreshInterval is how often the playing view polls the engine
const refreshInterval = 100 * time.Millisecond

// speedStep is the change applied by the +/- keys
const speedStep = 100

// State represents the current TUI state
type State int

const (
	StateFilePicker State = iota
	StatePlaying
	StateResult
)

// Model represents the TUI model
type Model struct {
	state      State
	engine     *player.Engine
	library    *song.Library
	pauseKey   string
	filePicker filepicker.Model
	spinner    spinner.Model
	progress   progress.Model
	song       *song.Song
	status     player.Status
	pressIndex int
	err        error
	width      int
	height     int
}

// songLoadedMsg carries a parsed song
type songLoadedMsg struct {
	song *song.Song
	err  error
}

// playDoneMsg signals that playback returned
type playDoneMsg struct {
	err error
}

type refreshMsg struct{}

// New creates a new TUI model that plays songs on engine
func New(engine *player.Engine, library *song.Library, pauseKey string) Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".json", ".txt", ".skysheet", ".mid", ".midi"}
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	if pauseKey == "" {
		pauseKey = "#"
	}

	return Model{
		state:      StateFilePicker,
		engine:     engine,
		library:    library,
		pauseKey:   pauseKey,
		filePicker: fp,
		spinner:    s,
		progress:   progress.New(progress.WithSolidFill(string(acidGreen)), progress.WithoutPercentage()),
		pressIndex: nearestPreset(engine.PressDuration()),
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.filePicker.Init(), m.spinner.Tick)
}

func nearestPreset(d time.Duration) int {
	best := 0
	for i, p := range player.PressDurationPresets {
		if absDuration(p-d) < absDuration(player.PressDurationPresets[best]-d) {
			best = i
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// The file picker needs to receive all messages while it is shown
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "q", "ctrl+c", "esc":
				return m, tea.Quit
			}
		}
		if loaded, ok := msg.(songLoadedMsg); ok {
			return m.startPlayback(loaded)
		}
		if size, ok := msg.(tea.WindowSizeMsg); ok {
			m.resize(size)
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)
		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			return m, tea.Batch(cmd, m.loadSong(path))
		}
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StatePlaying:
			return m.updatePlaying(msg)
		case StateResult:
			return m.updateResult(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case refreshMsg:
		if m.state != StatePlaying {
			return m, nil
		}
		m.status = m.engine.Status()
		return m, refresh()

	case playDoneMsg:
		m.state = StateResult
		m.status = m.engine.Status()
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m *Model) resize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height
	m.filePicker.SetHeight(msg.Height - 10)
	if w := msg.Width - 12; w > 10 {
		m.progress.Width = w
	}
}

func (m Model) loadSong(path string) tea.Cmd {
	return func() tea.Msg {
		s, err := m.library.Parse(path)
		return songLoadedMsg{song: s, err: err}
	}
}

func (m Model) startPlayback(msg songLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.state = StateResult
		m.err = msg.err
		return m, nil
	}
	m.song = msg.song
	m.state = StatePlaying
	m.err = nil
	m.status = m.engine.Status()

	engine, s := m.engine, msg.song
	play := func() tea.Msg {
		return playDoneMsg{err: engine.Play(s)}
	}
	return m, tea.Batch(play, refresh(), m.spinner.Tick)
}

func (m Model) updatePlaying(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k := msg.String(); k {
	case " ", m.pauseKey:
		m.engine.PauseSignal().Toggle()
	case "s", "esc":
		go m.engine.Stop()
	case "+", "=":
		m.engine.SetSpeed(m.engine.CurrentSpeed() + speedStep)
	case "-", "_":
		m.engine.SetSpeed(m.engine.CurrentSpeed() - speedStep)
	case "1", "2", "3", "4":
		i := int(k[0] - '1')
		if i < len(player.SpeedPresets) {
			m.engine.SetSpeed(player.SpeedPresets[i])
		}
	case "d":
		m.pressIndex = (m.pressIndex + 1) % len(player.PressDurationPresets)
		_ = m.engine.SetPressDuration(player.PressDurationPresets[m.pressIndex])
	case "q", "ctrl+c":
		m.engine.Stop()
		return m, tea.Quit
	}
	m.status = m.engine.Status()
	return m, nil
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.state = StateFilePicker
		m.err = nil
		m.song = nil
		return m, m.filePicker.Init()
	case "r":
		if m.song != nil {
			return m.startPlayback(songLoadedMsg{song: m.song})
		}
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	var help string
	switch m.state {
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
		help = "↑/↓: navigate • enter: play • q: quit"
	case StatePlaying:
		s.WriteString(m.viewPlaying())
		help = fmt.Sprintf("space/%s: pause • +/-: speed • 1-4: speed presets • d: hold time • s: stop • q: quit", m.pauseKey)
	case StateResult:
		s.WriteString(m.viewResult())
		help = "enter: pick another song • r: replay • q: quit"
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render(help))

	return s.String()
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT SONG "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())

	return s.String()
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
}

func (m Model) viewPlaying() string {
	var s strings.Builder
	st := m.status

	heading := " PLAYING "
	if st.State == player.StatePaused {
		heading = " PAUSED "
	}
	s.WriteString(titleStyle.Render(heading))
	s.WriteString("\n\n")

	title := st.Title
	if title == "" && m.song != nil {
		title = m.song.Title
	}
	s.WriteString(fmt.Sprintf("%s %s\n\n", m.spinner.View(), title))

	frac := 0.0
	if st.Total > 0 {
		frac = float64(st.Index+1) / float64(st.Total)
	}
	s.WriteString(m.progress.ViewAs(frac))
	s.WriteString("\n\n")

	s.WriteString(row("Note", fmt.Sprintf("%d / %d", st.Index+1, st.Total)))
	s.WriteString(row("Speed", fmt.Sprintf("%.0f (effective %.0f)", st.Speed, st.EffectiveSpeed)))
	s.WriteString(row("Hold", player.PressDurationPresets[m.pressIndex].String()))
	s.WriteString(row("Pauses", fmt.Sprintf("%d (%s)", st.Stats.PauseCount, st.Stats.TotalPauseTime.Round(time.Second))))
	if st.Stats.NotesSkipped > 0 {
		s.WriteString(statusStyle.Render(fmt.Sprintf("%d notes skipped", st.Stats.NotesSkipped)))
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewResult() string {
	var s strings.Builder

	if m.err != nil {
		s.WriteString(titleStyle.Render(" ERROR "))
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s", m.err.Error())))
	} else {
		st := m.status
		s.WriteString(titleStyle.Render(" " + strings.ToUpper(st.State.String()) + " "))
		s.WriteString("\n\n")
		s.WriteString(successStyle.Render(fmt.Sprintf("✓ %s", st.Title)))
		s.WriteString("\n\n")
		s.WriteString(row("Played", fmt.Sprintf("%d notes", st.Stats.NotesPlayed)))
		s.WriteString(row("Skipped", fmt.Sprintf("%d notes", st.Stats.NotesSkipped)))
		s.WriteString(row("Paused", fmt.Sprintf("%d times, %s", st.Stats.PauseCount, st.Stats.TotalPauseTime.Round(time.Millisecond))))
		if m.song != nil && m.song.Path != "" {
			s.WriteString(row("File", filepath.Base(m.song.Path)))
		}
	}

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
   _    __   _______ ___ ____    _
  | |   \ \ / /  _ \_ _/ ___|  / \
  | |    \ V /| |_) | | |     / _ \
  | |___  | | |  _ <| | |___ / ___ \
  |_____| |_| |_| \_\___\____/_/   \_\
`
	return lipgloss.NewStyle().Foreground(acidGreen).Render(logo)
}

// Run starts the TUI application
func Run(engine *player.Engine, library *song.Library, pauseKey string) error {
	p := tea.NewProgram(New(engine, library, pauseKey), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
