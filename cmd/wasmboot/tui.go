package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-boot/frame"
	"github.com/wippyai/wasm-boot/loader"
	"github.com/wippyai/wasm-boot/status"
)

const refreshInterval = 100 * time.Millisecond

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Width(13)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// source is the part of the loader the TUI reads.
type source interface {
	Status() *status.Indicator
	Stats() loader.Stats
}

type refreshMsg time.Time

type bootDoneMsg struct {
	err error
}

type bootModel struct {
	src     source
	logs    *logRing
	cancel  context.CancelFunc
	err     error
	url     string
	state   status.State
	stats   loader.Stats
	spinner spinner.Model
	done    bool
}

func newBootModel(src source, url string, logs *logRing, cancel context.CancelFunc) *bootModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(status.ColorLoading))
	return &bootModel{
		src:     src,
		logs:    logs,
		cancel:  cancel,
		url:     url,
		spinner: sp,
		state:   src.Status().Current(),
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m *bootModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, refresh())
}

func (m *bootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancel()
			return m, tea.Quit
		}

	case refreshMsg:
		m.state = m.src.Status().Current()
		m.stats = m.src.Stats()
		return m, refresh()

	case bootDoneMsg:
		m.done = true
		m.err = msg.err
		m.state = m.src.Status().Current()
		m.stats = m.src.Stats()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *bootModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("wasmboot"))
	b.WriteString(" ")
	b.WriteString(m.url)
	b.WriteString("\n\n")

	text := m.state.Text
	if text == "" {
		text = status.TextLoading
	}
	if m.state.Phase == status.PhaseLoading || m.state.Phase == status.PhaseIdle {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
	}
	color := m.state.Color
	if color == "" {
		color = status.ColorIdle
	}
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(text))
	b.WriteString("\n\n")

	if m.state.Phase == status.PhaseRunning {
		hook := m.stats.Hook
		if hook == "" {
			hook = "(waiting)"
		}
		row := func(label, value string) {
			b.WriteString(labelStyle.Render(label))
			b.WriteString(valueStyle.Render(value))
			b.WriteString("\n")
		}
		row("hook", hook)
		row("frames", fmt.Sprintf("%d", m.stats.Frames))
		row("invocations", fmt.Sprintf("%d", m.stats.Invocations))
		row("skipped", fmt.Sprintf("%d", m.stats.Skipped))
		row("fps", fmt.Sprintf("%.0f", m.stats.FPS))
		b.WriteString("\n")
	}

	if m.done && m.err != nil && m.state.Phase != status.PhaseError {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Stopped: %v", m.err)))
		b.WriteString("\n\n")
	}

	if m.logs != nil {
		for _, line := range m.logs.Lines() {
			b.WriteString(logStyle.Render(line))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("q quit"))
	return b.String()
}

// runTUI boots the module in the background and renders its progress until
// the user quits. The user quitting cancels the boot.
func runTUI(ctx context.Context, cancel context.CancelFunc, l *loader.Loader, url string, sched frame.Scheduler, logs *logRing) error {
	p := tea.NewProgram(newBootModel(l, url, logs, cancel), tea.WithAltScreen(), tea.WithContext(ctx))

	bootErr := make(chan error, 1)
	go func() {
		err := l.Boot(ctx, url, sched)
		bootErr <- err
		p.Send(bootDoneMsg{err: err})
	}()

	_, runErr := p.Run()
	cancel()
	err := <-bootErr

	if runErr != nil && !stderrors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return err
}
