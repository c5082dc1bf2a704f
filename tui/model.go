// Package tui is an interactive terminal table over a download manager.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"dlsim/config"
	"dlsim/downloads"
	"dlsim/si"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	refreshInterval = 100 * time.Millisecond
	barWidth        = 20
)

// Engine is the part of *downloads.Manager the table drives.
type Engine interface {
	CreateAndSubmit(d downloads.Descriptor) *downloads.Task
	NextSeq() int
	Tasks() []*downloads.Task
	Stats() downloads.Stats
	SetMaxConcurrent(n int)
	MaxConcurrent() int
	Prune() int
	Shutdown()
}

type tickMsg time.Time

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	helpStyle     = lipgloss.NewStyle().Faint(true)

	statusStyles = map[downloads.Status]lipgloss.Style{
		downloads.StatusQueued:      lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		downloads.StatusDownloading: lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		downloads.StatusPaused:      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		downloads.StatusCancelled:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		downloads.StatusCompleted:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	}
)

var columns = []struct {
	title string
	width int
}{
	{"NAME", 18},
	{"SIZE", 11},
	{"PROGRESS", barWidth + 9},
	{"STATUS", 12},
	{"MESSAGE", 34},
}

type Model struct {
	engine   Engine
	defaults config.Defaults
	tasks    []*downloads.Task
	cursor   int
	quitting bool
}

func NewModel(engine Engine, defaults config.Defaults) Model {
	return Model{
		engine:   engine,
		defaults: defaults,
		tasks:    engine.Tasks(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.refresh()
		return m, tick()
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.engine.Shutdown()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.tasks)-1 {
			m.cursor++
		}
	case "a":
		m.engine.CreateAndSubmit(m.defaults.Descriptor("", "", "", m.engine.NextSeq()))
		m.refresh()
		m.cursor = len(m.tasks) - 1
	case "p":
		if t := m.selected(); t != nil {
			t.Pause()
		}
	case "r":
		if t := m.selected(); t != nil {
			t.Resume()
		}
	case "c":
		if t := m.selected(); t != nil {
			t.Cancel()
		}
	case "+", "=":
		m.engine.SetMaxConcurrent(m.engine.MaxConcurrent() + 1)
	case "-":
		m.engine.SetMaxConcurrent(m.engine.MaxConcurrent() - 1)
	case "x":
		m.engine.Prune()
		m.refresh()
	}
	return m, nil
}

func (m *Model) refresh() {
	m.tasks = m.engine.Tasks()
	if m.cursor >= len(m.tasks) {
		m.cursor = max(0, len(m.tasks)-1)
	}
}

func (m Model) selected() *downloads.Task {
	if m.cursor < 0 || m.cursor >= len(m.tasks) {
		return nil
	}
	return m.tasks[m.cursor]
}

func (m Model) View() string {
	if m.quitting {
		return "shutting down\n"
	}

	var b strings.Builder
	st := m.engine.Stats()
	bandwidth := "unlimited"
	if st.BandwidthLimit > 0 {
		bandwidth = si.NewBytes(st.BandwidthLimit).Binary() + "/s"
	}
	fmt.Fprintln(&b, titleStyle.Render(fmt.Sprintf("dlsim  active %d/%d  max concurrent %d  bandwidth %s",
		st.Active, st.Total, st.MaxConcurrent, bandwidth)))
	fmt.Fprintln(&b)

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = lipgloss.NewStyle().Width(col.width).Render(col.title)
	}
	fmt.Fprintln(&b, "  "+headerStyle.Render(strings.Join(header, " ")))

	if len(m.tasks) == 0 {
		fmt.Fprintln(&b, helpStyle.Render("  no downloads, press a to add one"))
	}
	for i, t := range m.tasks {
		line := renderRow(t.Snapshot())
		if i == m.cursor {
			fmt.Fprintln(&b, "> "+selectedStyle.Render(line))
		} else {
			fmt.Fprintln(&b, "  "+line)
		}
	}

	fmt.Fprintln(&b)
	fmt.Fprint(&b, helpStyle.Render("↑/↓ select  a add  p pause  r resume  c cancel  +/- concurrency  x prune  q quit"))
	return b.String()
}

func renderRow(s downloads.Snapshot) string {
	status, ok := statusStyles[s.Status]
	if !ok {
		status = lipgloss.NewStyle()
	}
	cells := []string{
		truncate(s.Name, columns[0].width),
		si.NewBytes(s.TotalBytes).Binary(),
		fmt.Sprintf("%s %5.1f%%", bar(s.Fraction), 100*s.Fraction),
		status.Render(string(s.Status)),
		truncate(s.Message, columns[4].width),
	}
	for i, cell := range cells {
		cells[i] = lipgloss.NewStyle().Width(columns[i].width).Render(cell)
	}
	return strings.Join(cells, " ")
}

func bar(fraction float64) string {
	filled := int(fraction * barWidth)
	filled = min(max(filled, 0), barWidth)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled) + "]"
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

// Run drives the table until the user quits or ctx is done. Quitting shuts
// the engine down.
func Run(ctx context.Context, engine Engine, defaults config.Defaults, in io.Reader, out io.Writer) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(out), tea.WithAltScreen()}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	_, err := tea.NewProgram(NewModel(engine, defaults), opts...).Run()
	return err
}
