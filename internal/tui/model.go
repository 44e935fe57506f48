// Package tui provides the Bubble Tea post-editing interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/mtpe/internal/editdist"
	"github.com/verte-zerg/mtpe/internal/model"
	"github.com/verte-zerg/mtpe/internal/session"
	"github.com/verte-zerg/mtpe/internal/tracker"
)

// Model implements the Bubble Tea editing UI over one session.
type Model struct {
	ctx    context.Context
	ctrl   *session.Controller
	config model.Config
	log    *slog.Logger
	input  textinput.Model

	width  int
	height int

	status    string
	statusErr bool
	finished  bool
}

type tickMsg time.Time

var (
	sourceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	keptStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	insertedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	deletedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Strikethrough(true)
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	contextStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5A5A5A"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// NewModel constructs an editor bound to ctrl. The active segment must be set.
func NewModel(ctx context.Context, ctrl *session.Controller, cfg model.Config, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	input.Focus()
	m := &Model{
		ctx:    ctx,
		ctrl:   ctrl,
		config: cfg,
		log:    logger,
		input:  input,
	}
	m.loadActive()
	return m
}

// Finished reports whether the session was closed from the editor.
func (m *Model) Finished() bool {
	return m.finished
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.tick())
}

func (m *Model) tick() tea.Cmd {
	interval := m.config.TickInterval
	if interval <= 0 {
		interval = tracker.DefaultTickInterval
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, m.contentWidth()-lipgloss.Width(m.input.Prompt)-1)
		return m, nil
	case tickMsg:
		if m.finished {
			return m, nil
		}
		if _, err := m.ctrl.Tick(m.ctx); err != nil {
			m.log.Error("checkpoint failed", "session", m.ctrl.ID(), "err", err)
			m.setError(err)
		}
		return m, m.tick()
	case tea.KeyMsg:
		return m.handleKey(msg)
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		if err := m.ctrl.Suspend(m.ctx); err != nil {
			m.log.Error("suspend failed", "session", m.ctrl.ID(), "err", err)
		}
		return m, tea.Quit
	case "ctrl+n", "enter", "pgdown":
		m.navigate(1)
		return m, nil
	case "ctrl+p", "pgup":
		m.navigate(-1)
		return m, nil
	case "ctrl+s":
		m.toggleTimer()
		return m, nil
	case "ctrl+f":
		if err := m.ctrl.Finish(m.ctx); err != nil {
			m.log.Error("finish failed", "session", m.ctrl.ID(), "err", err)
		}
		m.finished = true
		return m, tea.Quit
	}
	if !m.ctrl.CanEdit() {
		m.setStatus("Timer is not running; press ctrl+s to start")
		return m, nil
	}
	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if err := m.ctrl.Edit(m.input.Value()); err != nil {
		m.input.SetValue(before)
		m.setError(err)
		return m, cmd
	}
	m.status = ""
	return m, cmd
}

// navigate finalizes the active segment and moves delta segments.
func (m *Model) navigate(delta int) {
	from := m.ctrl.Active()
	target := min(max(from+delta, 0), m.ctrl.Len()-1)
	if target == from {
		if delta > 0 {
			m.setStatus("Last segment; press ctrl+f to finish")
		} else {
			m.setStatus("First segment")
		}
		return
	}
	if err := m.ctrl.Activate(m.ctx, target); err != nil {
		m.log.Error("segment switch failed", "session", m.ctrl.ID(), "segment", from, "err", err)
		m.setError(err)
		if m.ctrl.Active() < 0 {
			return
		}
	} else {
		m.status = ""
	}
	m.loadActive()
}

func (m *Model) toggleTimer() {
	if err := m.ctrl.Toggle(); err != nil {
		m.setError(err)
		return
	}
	m.setStatus("Timer " + timerLabel(m.ctrl.TrackerState()))
}

func (m *Model) loadActive() {
	idx := m.ctrl.Active()
	if idx < 0 {
		m.input.SetValue("")
		return
	}
	m.input.SetValue(m.ctrl.Segment(idx).Current)
	m.input.CursorEnd()
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(err error) {
	m.status = describeError(err)
	m.statusErr = true
}

// describeError turns controller errors into short operator hints.
func describeError(err error) string {
	var dwell *tracker.DwellError
	var transition *tracker.TransitionError
	switch {
	case errors.As(err, &dwell):
		return fmt.Sprintf("Read the segment first: timer can start in %.1fs", dwell.Remaining.Seconds())
	case errors.As(err, &transition):
		if transition.Mode == model.ModeCurrent && (transition.Op == "pause" || transition.Op == "resume") {
			return "The timer runs automatically in current mode"
		}
		return fmt.Sprintf("Cannot %s while the timer is %s", transition.Op, transition.State)
	case errors.Is(err, session.ErrFinished):
		return "Session is finished"
	default:
		return err.Error()
	}
}

func timerLabel(s tracker.State) string {
	switch s {
	case tracker.IdleBeforeStart:
		return "not started"
	case tracker.Running:
		return "running"
	case tracker.Paused:
		return "paused"
	default:
		return "stopped"
	}
}

func (m *Model) contentWidth() int {
	if m.width == 0 {
		return 0
	}
	return max(int(float64(m.width)*0.70), 1)
}

// View implements tea.Model.
func (m *Model) View() string {
	idx := m.ctrl.Active()
	if idx < 0 {
		return ""
	}
	content := m.renderBody(idx)
	if m.width == 0 || m.height == 0 {
		return content + "\n" + m.renderFooter()
	}
	contentWidth := m.contentWidth()
	content = lipgloss.NewStyle().Width(contentWidth).Render(content)
	footer := m.renderFooter()
	if footer == "" || m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	bodyHeight := m.height - 1
	body := lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) renderBody(idx int) string {
	width := m.contentWidth()
	seg := m.ctrl.Segment(idx)
	var parts []string
	for i := max(0, idx-m.config.ContextLines); i < idx; i++ {
		parts = append(parts, m.renderContext(i, width))
	}
	parts = append(parts,
		labelStyle.Render("Source"),
		wrapText(seg.Source, sourceStyle, width),
		"",
		labelStyle.Render("Machine translation"),
		wrapText(seg.MT, pendingStyle, width),
		"",
		labelStyle.Render("Post-edit"),
		m.input.View(),
		"",
		labelStyle.Render("Changes"),
		wrapStyledRunes(buildDiffRunes(editdist.Diff(seg.MT, m.input.Value(), editdist.Words)), width),
	)
	for i := idx + 1; i <= min(idx+m.config.ContextLines, m.ctrl.Len()-1); i++ {
		parts = append(parts, m.renderContext(i, width))
	}
	return strings.Join(parts, "\n")
}

func (m *Model) renderContext(i, width int) string {
	seg := m.ctrl.Segment(i)
	marker := " "
	if m.ctrl.Metric(i) != nil {
		marker = "✓"
	}
	line := fmt.Sprintf("%s %d. %s", marker, i+1, seg.Current)
	return wrapText(line, contextStyle, width) + "\n"
}

func (m *Model) renderFooter() string {
	idx := m.ctrl.Active()
	if idx < 0 {
		return ""
	}
	agg := m.ctrl.Aggregate()
	elapsed := m.ctrl.Elapsed()
	segments := []string{
		fmt.Sprintf("Segment %d/%d", idx+1, m.ctrl.Len()),
		fmt.Sprintf("Mode %s", m.ctrl.Mode()),
		fmt.Sprintf("Timer %s", timerLabel(m.ctrl.TrackerState())),
		fmt.Sprintf("Active %s", formatElapsed(elapsed.ActiveMs)),
		fmt.Sprintf("Done %d/%d", agg.SegmentsCompleted, agg.SegmentsTotal),
	}
	if elapsed.PauseCount > 0 {
		segments = append(segments, fmt.Sprintf("Pauses %d", elapsed.PauseCount))
	}
	footer := footerStyle.Render(strings.Join(segments, "  "))
	if m.status == "" {
		return footer
	}
	style := footerStyle
	if m.statusErr {
		style = errorStyle
	}
	return footer + "  " + style.Render(m.status)
}

func formatElapsed(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	minutes := int(d / time.Minute)
	seconds := d.Seconds() - float64(minutes*60)
	return fmt.Sprintf("%d:%04.1f", minutes, seconds)
}
