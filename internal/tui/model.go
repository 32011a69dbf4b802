// SPDX-License-Identifier: MIT
/*
Package tui renders the transport panel: a Bubble Tea program that polls a
play head and sends transport commands from the keyboard.
*/
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"playhead/internal/analysis"
	applog "playhead/internal/log"
	"playhead/pkg/playhead"
)

// DefaultRefresh is how often the panel polls the play head.
const DefaultRefresh = 50 * time.Millisecond

// TempoStep is the BPM change per +/- key press.
const TempoStep = 1.0

// ticksPerBeat is the resolution of the tick field in bar.beat.tick.
const ticksPerBeat = 960

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D7D7D")).
			Width(10)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Bold(true)

	playStyle  = badge("#25A065")
	recStyle   = badge("#D7263D")
	loopStyle  = badge("#3D5A80")
	idleStyle  = badge("#4A4A4A")
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0A458")).Italic(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#D7263D"))
)

func badge(bg string) lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFDF5")).
		Background(lipgloss.Color(bg)).
		Padding(0, 1)
}

// Transport is the tempo and loop control the panel needs beyond the
// play head. *timeline.Timeline implements it.
type Transport interface {
	Tempo() float64
	SetTempo(bpm float64) error
	Looping() bool
	SetLooping(looping bool) error
}

// Options configures a Model. Only PlayHead is required.
type Options struct {
	Title     string
	PlayHead  playhead.PlayHead
	Transport Transport
	Level     func() analysis.Level
	Recorded  func() int64
	Refresh   time.Duration
}

type tickMsg time.Time

// Model is the transport panel.
type Model struct {
	opts  Options
	keys  keyMap
	help  help.Model
	meter progress.Model

	pos       playhead.PositionInfo
	available bool
	level     analysis.Level
	recorded  int64
	err       error
	width     int
	quitting  bool
}

// New returns a panel for opts.
func New(opts Options) Model {
	if opts.Title == "" {
		opts.Title = "playhead"
	}
	if opts.Refresh <= 0 {
		opts.Refresh = DefaultRefresh
	}
	if opts.PlayHead == nil {
		opts.PlayHead = playhead.Unavailable()
	}

	m := Model{
		opts:  opts,
		keys:  defaultKeyMap(),
		help:  help.New(),
		meter: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(30)),
	}
	m.keys.setControls(opts.PlayHead.CanControlTransport())
	if opts.Transport == nil {
		m.keys.Loop.SetEnabled(false)
		m.keys.TempoUp.SetEnabled(false)
		m.keys.TempoDown.SetEnabled(false)
	}
	m.poll()
	return m
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

// poll refreshes the cached readouts from the play head and sources.
func (m *Model) poll() {
	m.pos, m.available = playhead.Query(m.opts.PlayHead)
	if m.opts.Level != nil {
		m.level = m.opts.Level()
	}
	if m.opts.Recorded != nil {
		m.recorded = m.opts.Recorded()
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.poll()
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ph := m.opts.PlayHead
	m.err = nil

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Play):
		ph.TransportPlay(!m.pos.IsPlaying)

	case key.Matches(msg, m.keys.Record):
		ph.TransportRecord(!m.pos.IsRecording)

	case key.Matches(msg, m.keys.Rewind):
		ph.TransportRewind()

	case key.Matches(msg, m.keys.Loop):
		m.err = m.opts.Transport.SetLooping(!m.opts.Transport.Looping())

	case key.Matches(msg, m.keys.TempoUp):
		m.err = m.opts.Transport.SetTempo(m.opts.Transport.Tempo() + TempoStep)

	case key.Matches(msg, m.keys.TempoDown):
		m.err = m.opts.Transport.SetTempo(m.opts.Transport.Tempo() - TempoStep)
	}

	if m.err != nil {
		applog.Warnf("TUI: %v", m.err)
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.opts.Title))
	b.WriteString("  ")
	b.WriteString(m.badges())
	b.WriteString("\n\n")

	if !m.available {
		b.WriteString(hintStyle.Render("Waiting for the first audio block..."))
		b.WriteString("\n\n")
	} else {
		m.renderPosition(&b)
	}

	if !m.opts.PlayHead.CanControlTransport() {
		b.WriteString(hintStyle.Render("Transport control is disabled for this play head."))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) badges() string {
	p := m.pos
	play := idleStyle.Render("STOPPED")
	if p.IsPlaying {
		play = playStyle.Render("PLAYING")
	}
	parts := []string{play}
	if p.IsRecording {
		parts = append(parts, recStyle.Render("REC"))
	}
	if p.IsLooping {
		parts = append(parts, loopStyle.Render("LOOP"))
	}
	return strings.Join(parts, " ")
}

func (m Model) renderPosition(b *strings.Builder) {
	p := m.pos
	bar, beat, frac := p.BarBeat()

	row(b, "Position", fmt.Sprintf("%d.%d.%03d", bar, beat, int(frac*ticksPerBeat)))
	row(b, "Timecode", fmt.Sprintf("%s  (%s)", p.Timecode(), p.FrameRate))
	row(b, "Time", fmt.Sprintf("%.3f s  %d samples", p.TimeInSeconds, p.TimeInSamples))
	row(b, "Tempo", fmt.Sprintf("%.2f BPM  %d/%d", p.BPM, p.TimeSigNumerator, p.TimeSigDenominator))
	if p.PPQLoopEnd > p.PPQLoopStart {
		row(b, "Loop", fmt.Sprintf("%.2f - %.2f ppq", p.PPQLoopStart, p.PPQLoopEnd))
	}
	if m.opts.Level != nil {
		row(b, "Level", fmt.Sprintf("%s %s", m.meter.ViewAs(m.level.Peak), formatDBFS(m.level.Peak)))
	}
	if m.opts.Recorded != nil && (p.IsRecording || m.recorded > 0) {
		row(b, "Recorded", humanize.IBytes(uint64(max(m.recorded, 0))))
	}
	b.WriteString("\n")
}

func row(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

func formatDBFS(v float64) string {
	db := analysis.DBFS(v)
	if math.IsInf(db, -1) {
		return "-inf dBFS"
	}
	return fmt.Sprintf("%.1f dBFS", db)
}

// Run starts the panel on the terminal and blocks until the user quits or
// ctx is done.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
