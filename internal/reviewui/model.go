// Package reviewui provides the Bubble Tea session review interface.
package reviewui

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/verte-zerg/mtpe/internal/editdist"
	"github.com/verte-zerg/mtpe/internal/model"
	"github.com/verte-zerg/mtpe/internal/stats"
	"github.com/verte-zerg/mtpe/internal/store"
)

const (
	tabOverview = iota
	tabSegments
	tabChanges
)

const plotHeight = 10

type filterMode int

const (
	filterAll filterMode = iota
	filterModified
	filterUnchanged
)

func (f filterMode) String() string {
	switch f {
	case filterModified:
		return "modified"
	case filterUnchanged:
		return "unchanged"
	default:
		return "all"
	}
}

type sortKey int

const (
	sortBySegment sortKey = iota
	sortByEditTime
	sortByEdits
)

func (k sortKey) String() string {
	switch k {
	case sortByEditTime:
		return "edit time"
	case sortByEdits:
		return "edits"
	default:
		return "segment"
	}
}

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	sectionStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	insertedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	deletedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Strikethrough(true)
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
)

// Model implements the Bubble Tea review UI.
type Model struct {
	store *store.Store
	cfg   model.ReportConfig

	report stats.Report
	errMsg string

	tabs      []string
	activeTab int
	viewports []viewport.Model
	segTable  table.Model
	layout    tableLayout

	visible []*model.EditMetric
	query   string
	filter  filterMode
	sortBy  sortKey

	searchMode bool
	search     textinput.Model

	width  int
	height int
}

type tableLayout struct {
	width  int
	height int
}

// NewModel constructs a review UI over the session selected by cfg.
func NewModel(st *store.Store, cfg model.ReportConfig) *Model {
	m := newModel(cfg)
	m.store = st
	m.refreshReport()
	return m
}

func newModel(cfg model.ReportConfig) *Model {
	if cfg.CurveWindow <= 0 {
		cfg.CurveWindow = 5
	}
	m := &Model{
		cfg:  cfg,
		tabs: []string{"Overview", "Segments", "Changes"},
	}
	m.search = textinput.New()
	m.search.Prompt = "Search: "
	m.search.Placeholder = "text in source, MT or edit"
	m.search.CharLimit = 0
	m.search.Cursor.SetMode(cursor.CursorBlink)
	m.segTable = table.New(
		table.WithColumns(segmentColumns()),
		table.WithHeight(1),
	)
	m.segTable.SetStyles(segmentTableStyles())
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.searchMode {
			return m.updateSearch(msg)
		}
		if m.activeTab == tabSegments {
			m.segTable.Focus()
		} else {
			m.segTable.Blur()
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l", "tab":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "=":
			m.cfg.CurveWindow = nextCurveWindow(m.cfg.CurveWindow)
			m.renderTabContents()
			return m, nil
		case "-":
			m.cfg.CurveWindow = prevCurveWindow(m.cfg.CurveWindow)
			m.renderTabContents()
			return m, nil
		case "/":
			return m.startSearch()
		case "m":
			m.filter = (m.filter + 1) % 3
			m.applySelection()
			return m, nil
		case "s":
			m.sortBy = (m.sortBy + 1) % 3
			m.applySelection()
			return m, nil
		case "enter":
			if m.activeTab == tabSegments && len(m.visible) > 0 {
				m.activeTab = tabChanges
				m.segTable.Blur()
				m.renderTabContents()
				return m, tea.ClearScreen
			}
			return m, nil
		case "g", "home":
			if m.activeTab == tabSegments {
				m.segTable.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabSegments {
				m.segTable.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == tabSegments {
				var cmd tea.Cmd
				m.segTable, cmd = m.segTable.Update(msg)
				m.renderTabContents()
				return m, cmd
			}
			vp := m.viewports[m.activeTab]
			var cmd tea.Cmd
			vp, cmd = vp.Update(msg)
			m.viewports[m.activeTab] = vp
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(lipgloss.Height(activeNavStyle.Render("X")), 1)
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if m.searchMode || m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(m.height-headerHeight-footerHeight, 1)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = bodyHeight
	}
	m.setTableSize(m.width, bodyHeight)
	m.search.Width = max(10, m.width-lipgloss.Width(m.search.Prompt)-2)
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	m.activeTab = ((m.activeTab+delta)%count + count) % count
	if m.activeTab == tabSegments {
		m.segTable.Focus()
	} else {
		m.segTable.Blur()
	}
	m.renderTabContents()
}

func (m *Model) refreshReport() {
	if m.store == nil {
		return
	}
	report, err := stats.BuildReport(context.Background(), m.store, m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		for i := range m.viewports {
			m.viewports[i].SetContent("Failed to load session.")
		}
		return
	}
	m.setReport(report)
}

func (m *Model) setReport(report stats.Report) {
	m.errMsg = ""
	m.report = report
	m.applySelection()
}

// applySelection recomputes the visible segments and the views built on them.
func (m *Model) applySelection() {
	m.visible = selectMetrics(m.report.Session.Metrics, m.query, m.filter, m.sortBy)
	m.segTable.SetRows(buildSegmentRows(m.visible, m.report.HeavyEdits))
	if m.segTable.Cursor() >= len(m.visible) {
		m.segTable.SetCursor(max(len(m.visible)-1, 0))
	}
	m.renderTabContents()
}

func (m *Model) selected() *model.EditMetric {
	idx := m.segTable.Cursor()
	if idx < 0 || idx >= len(m.visible) {
		return nil
	}
	return m.visible[idx]
}

func (m *Model) renderTabContents() {
	if m.errMsg != "" {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabOverview].SetContent(renderOverview(m.report, m.cfg.CurveWindow, width))
	m.viewports[tabChanges].SetContent(renderChanges(m.selected(), width))
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	return tabs + "\n" + padLine(m.renderSessionLine(), m.width)
}

func (m *Model) renderSessionLine() string {
	s := m.report.Session
	if s.ID == "" {
		return headerStyle.Render("No session loaded")
	}
	parts := []string{fmt.Sprintf("Session %s", shortID(s.ID)), string(s.Mode)}
	if s.Operator != "" {
		parts = append(parts, s.Operator)
	}
	if !s.UpdatedAt.IsZero() {
		parts = append(parts, "updated "+humanize.Time(s.UpdatedAt))
	}
	parts = append(parts, fmt.Sprintf("filter=%s  sort=%s  window=%d", m.filter, m.sortBy, m.cfg.CurveWindow))
	if m.query != "" {
		parts = append(parts, fmt.Sprintf("search=%q", m.query))
	}
	return headerStyle.Render(truncateLine(strings.Join(parts, "  "), m.width))
}

func (m *Model) renderFooter() string {
	help := "Nav: left/right  Scroll: up/down  Search: /  Filter: m  Sort: s  Window: -/=  Quit: q"
	if m.activeTab == tabSegments {
		help = "Nav: left/right  Select: up/down  Changes: enter  Search: /  Filter: m  Sort: s  Quit: q"
	}
	lines := []string{headerStyle.Render(help)}
	if m.searchMode {
		lines = append(lines, m.search.View())
	} else if m.errMsg != "" {
		lines = append(lines, errorStyle.Render(m.errMsg))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderBody(height int) string {
	if m.activeTab == tabSegments {
		if len(m.visible) == 0 {
			return fitLines("No segments match.", m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.segTable.View()), m.width, height)
	}
	return fitLines(m.viewports[m.activeTab].View(), m.width, height)
}

func (m *Model) startSearch() (tea.Model, tea.Cmd) {
	m.searchMode = true
	m.search.SetValue(m.query)
	m.search.CursorEnd()
	m.updateLayout()
	return m, m.search.Focus()
}

func (m *Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.searchMode = false
		m.search.Blur()
		m.query = ""
		m.applySelection()
		m.updateLayout()
		return m, nil
	case tea.KeyEnter:
		m.searchMode = false
		m.search.Blur()
		m.updateLayout()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if q := strings.TrimSpace(m.search.Value()); q != m.query {
		m.query = q
		m.applySelection()
	}
	return m, cmd
}

// selectMetrics filters finalized metrics by query and filter, then sorts them.
// Heavier edits sort first; ties keep segment order.
func selectMetrics(metrics []*model.EditMetric, query string, filter filterMode, key sortKey) []*model.EditMetric {
	needle := strings.ToLower(query)
	out := make([]*model.EditMetric, 0, len(metrics))
	for _, m := range metrics {
		if m == nil {
			continue
		}
		switch filter {
		case filterModified:
			if !m.Modified() {
				continue
			}
		case filterUnchanged:
			if m.Modified() {
				continue
			}
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(m.Source), needle) &&
			!strings.Contains(strings.ToLower(m.MT), needle) &&
			!strings.Contains(strings.ToLower(m.Edited), needle) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		switch key {
		case sortByEditTime:
			if out[i].EditTime != out[j].EditTime {
				return out[i].EditTime > out[j].EditTime
			}
		case sortByEdits:
			if out[i].TotalEdits() != out[j].TotalEdits() {
				return out[i].TotalEdits() > out[j].TotalEdits()
			}
		}
		return out[i].SegmentID < out[j].SegmentID
	})
	return out
}

func segmentColumns() []table.Column {
	return []table.Column{
		{Title: "#", Width: 4},
		{Title: "Edit (s)", Width: 8},
		{Title: "Idle (s)", Width: 8},
		{Title: "Pauses", Width: 6},
		{Title: "Ins", Width: 4},
		{Title: "Del", Width: 4},
		{Title: "BLEU", Width: 6},
		{Title: "chrF", Width: 6},
		{Title: "TER", Width: 6},
		{Title: "Flags", Width: 12},
	}
}

func buildSegmentRows(metrics []*model.EditMetric, heavy map[int]struct{}) []table.Row {
	rows := make([]table.Row, 0, len(metrics))
	for _, m := range metrics {
		bleu, chrf, ter := "-", "-", "-"
		if m.Quality != nil {
			bleu = fmt.Sprintf("%.1f", m.Quality.BLEU)
			chrf = fmt.Sprintf("%.1f", m.Quality.CHRF)
			ter = fmt.Sprintf("%.1f", m.Quality.TER)
		}
		var flags []string
		if _, ok := heavy[m.SegmentID]; ok {
			flags = append(flags, "heavy")
		}
		if m.NoTimeRecorded {
			flags = append(flags, "no time")
		}
		if !m.Modified() {
			flags = append(flags, "kept")
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", m.SegmentID+1),
			fmt.Sprintf("%.1f", m.EditTime),
			fmt.Sprintf("%.1f", m.IdleTime),
			fmt.Sprintf("%d", m.PauseCount),
			fmt.Sprintf("%d", m.Insertions),
			fmt.Sprintf("%d", m.Deletions),
			bleu,
			chrf,
			ter,
			strings.Join(flags, ","),
		})
	}
	return rows
}

func segmentTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func (m *Model) setTableSize(width, height int) {
	viewportHeight := max(1, height-1)
	if m.layout.width == width && m.layout.height == viewportHeight {
		return
	}
	m.layout.width = width
	m.layout.height = viewportHeight
	m.segTable.SetWidth(width)
	m.segTable.SetHeight(viewportHeight)
	if viewHeight := lipgloss.Height(m.segTable.View()); viewHeight != height {
		m.layout.height = max(1, viewportHeight+height-viewHeight)
		m.segTable.SetHeight(m.layout.height)
	}
}

func renderOverview(r stats.Report, window, width int) string {
	if len(stats.Finalized(r.Session.Metrics)) == 0 {
		return "No finalized segments yet."
	}
	cards := renderSummaryCards(r.Summary, width)
	var buf bytes.Buffer
	if err := stats.RenderCurvesWithSize(&buf, r.Session.Metrics, window, width, plotHeight, true); err != nil {
		return cards + "\n\n" + fmt.Sprintf("Failed to render curves: %v", err)
	}
	return strings.TrimRight(cards+"\n\n"+buf.String(), "\n")
}

func renderSummaryCards(sum stats.Summary, width int) string {
	scores := "n/a"
	if sum.CorpusScoreOK {
		scores = fmt.Sprintf("%.1f / %.1f / %.1f", sum.Corpus.BLEU, sum.Corpus.CHRF, sum.Corpus.TER)
	}
	cards := []string{
		metricCard("Segments", fmt.Sprintf("%d/%d", sum.SegmentsCompleted, sum.SegmentsTotal)),
		metricCard("Modified", fmt.Sprintf("%d", sum.SegmentsModified)),
		metricCard("Active", formatDuration(sum.ActiveMs)),
		metricCard("Avg/segment", fmt.Sprintf("%.1fs", sum.AvgEditTime)),
		metricCard("Words/hour", humanize.Comma(int64(sum.WordsPerHour))),
		metricCard("BLEU/chrF/TER", scores),
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4], cards[5])
	return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

// renderChanges shows one segment with its word-level changes.
func renderChanges(m *model.EditMetric, width int) string {
	if m == nil {
		return "No segment selected. Pick one on the Segments tab."
	}
	wrap := lipgloss.NewStyle().Width(max(width-2, 10))
	lines := []string{
		sectionStyle.Render(fmt.Sprintf("Segment %d", m.SegmentID+1)) +
			headerStyle.Render(fmt.Sprintf("  edit %.1fs  idle %.1fs  pauses %d", m.EditTime, m.IdleTime, m.PauseCount)),
		"",
		sectionStyle.Render("Source"),
		wrap.Render(m.Source),
		"",
		sectionStyle.Render("Machine translation"),
		wrap.Render(m.MT),
		"",
		sectionStyle.Render("Post-edit"),
		wrap.Render(m.Edited),
		"",
		sectionStyle.Render("Changes"),
		wrap.Render(renderDiff(editdist.Diff(m.MT, m.Edited, editdist.Words))),
		"",
		fmt.Sprintf("Words +%d -%d  Chars +%d -%d", m.Insertions, m.Deletions, m.CharInsertions, m.CharDeletions),
	}
	if m.Quality != nil {
		lines = append(lines, fmt.Sprintf("BLEU %.2f  chrF %.2f  TER %.2f", m.Quality.BLEU, m.Quality.CHRF, m.Quality.TER))
	} else {
		lines = append(lines, warnStyle.Render("Quality scores unavailable for this segment."))
	}
	if m.NoTimeRecorded {
		lines = append(lines, warnStyle.Render("Text changed but no editing time was recorded."))
	}
	return strings.Join(lines, "\n")
}

func renderDiff(ops []editdist.Op) string {
	if len(ops) == 0 {
		return "(empty)"
	}
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case editdist.Equal:
			parts = append(parts, op.B)
		case editdist.Insert:
			parts = append(parts, insertedStyle.Render("+"+op.B))
		case editdist.Delete:
			parts = append(parts, deletedStyle.Render("-"+op.A))
		case editdist.Substitute:
			parts = append(parts, deletedStyle.Render("-"+op.A), insertedStyle.Render("+"+op.B))
		}
	}
	return strings.Join(parts, " ")
}

func formatDuration(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func nextCurveWindow(n int) int {
	if n < 5 {
		return 5
	}
	return (n/5 + 1) * 5
}

func prevCurveWindow(n int) int {
	if n <= 5 {
		return 1
	}
	if n%5 == 0 {
		return n - 5
	}
	return (n / 5) * 5
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
