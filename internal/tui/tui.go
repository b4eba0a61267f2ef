// Package tui implements the Bubble Tea terminal review interface.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/redline/internal/model"
	"github.com/sprite-ai/redline/internal/session"
)

const undoTickInterval = 250 * time.Millisecond

// undoTickMsg re-renders while an undo notice is showing so it disappears
// when the session's undo window closes.
type undoTickMsg struct{}

// generatedMsg reports the end of a background export.
type generatedMsg struct {
	path string
	err  error
}

// Model is the top-level Bubble Tea model for redline review.
type Model struct {
	sess     *session.Session
	text     []rune
	filename string

	theme  *Theme
	gen    Generator
	outDir string

	// UI state
	width    int
	height   int
	rows     []row
	scroll   int // first visible row
	showHelp bool

	// Cursor and selection, as rune offsets
	cursor    int
	selecting bool
	selAnchor int

	status    string
	statusErr bool

	generating bool
	exported   string
}

// Option configures a Model.
type Option func(*Model)

// WithTheme sets the highlight theme.
func WithTheme(t *Theme) Option {
	return func(m *Model) { m.theme = t }
}

// WithGenerator enables export of the redacted document.
func WithGenerator(gen Generator) Option {
	return func(m *Model) { m.gen = gen }
}

// WithOutputDir sets where exported documents are written.
func WithOutputDir(dir string) Option {
	return func(m *Model) { m.outDir = dir }
}

// WithFilename sets the document name shown in the header and used for the
// exported file.
func WithFilename(name string) Option {
	return func(m *Model) { m.filename = name }
}

// New creates a review model over a session.
func New(sess *session.Session, opts ...Option) Model {
	m := Model{
		sess:   sess,
		text:   sess.Document().Runes(),
		outDir: ".",
	}
	for _, opt := range opts {
		opt(&m)
	}
	if m.theme == nil {
		m.theme = NewTheme(DefaultTheme)
	}
	m.rows = layout(m.text, 80)
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.rows = layout(m.text, m.textWidth())
		m.ensureVisible()
		return m, nil

	case undoTickMsg:
		if m.sess.UndoAvailable() {
			return m, undoTick()
		}
		return m, nil

	case generatedMsg:
		m.generating = false
		if msg.err != nil {
			m.setError(msg.err.Error())
			return m, nil
		}
		m.exported = msg.path
		m.setStatus("Saved " + msg.path)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		return m, nil
	}
	if m.showHelp {
		return m, nil
	}

	// While a candidate is open only its answers are accepted; any other
	// key dismisses it.
	if _, open := m.sess.Candidate(); open {
		choice := session.ChoiceDismiss
		switch {
		case key.Matches(msg, keys.One):
			choice = session.ChoiceOne
		case key.Matches(msg, keys.All):
			choice = session.ChoiceAll
		case key.Matches(msg, keys.Cancel):
			choice = session.ChoiceCancel
		}
		return m, m.afterOutcome(m.sess.Resolve(choice))
	}

	m.status = ""
	switch {
	case key.Matches(msg, keys.Left):
		m.moveTo(m.cursor - 1)
	case key.Matches(msg, keys.Right):
		m.moveTo(m.cursor + 1)
	case key.Matches(msg, keys.Up):
		m.moveRows(-1)
	case key.Matches(msg, keys.Down):
		m.moveRows(1)
	case key.Matches(msg, keys.NextSpan):
		m.jumpToNextSpan()
	case key.Matches(msg, keys.PrevSpan):
		m.jumpToPrevSpan()

	case key.Matches(msg, keys.Reject):
		spans := m.sess.SpansAt(m.cursor)
		if len(spans) == 0 {
			m.setStatus("No redaction under the cursor")
			return m, nil
		}
		return m, m.afterOutcome(m.sess.Reject(spans[0], m.anchor()))

	case key.Matches(msg, keys.Edit):
		if !m.sess.ToggleEditMode() {
			m.selecting = false
		}

	case key.Matches(msg, keys.Select):
		if !m.sess.EditMode() {
			m.setStatus("Press e to enter edit mode")
			return m, nil
		}
		m.selecting = !m.selecting
		m.selAnchor = m.cursor

	case key.Matches(msg, keys.Add):
		return m, m.add()

	case key.Matches(msg, keys.Cancel):
		m.selecting = false

	case key.Matches(msg, keys.Undo):
		if n := m.sess.Undo(); n > 0 {
			m.setStatus(fmt.Sprintf("Restored %d item(s).", n))
		}

	case key.Matches(msg, keys.Export):
		return m, m.export()
	}

	return m, nil
}

// add turns the current selection, or the word under the cursor, into a
// gesture.
func (m *Model) add() tea.Cmd {
	if !m.sess.EditMode() {
		m.setStatus("Press e to enter edit mode")
		return nil
	}

	g := session.Gesture{Offset: m.cursor, Anchor: m.anchor()}
	from, to := m.selection()
	if m.selecting && to > from {
		g.Selection = string(m.text[from:to])
		g.OnHighlight = len(m.sess.SpansAt(from)) > 0
	} else {
		g.OnHighlight = len(m.sess.SpansAt(m.cursor)) > 0
	}
	m.selecting = false

	out := m.sess.Add(g)
	if out == session.OutcomeIgnored {
		m.setStatus("Nothing to redact here")
	}
	return m.afterOutcome(out)
}

func (m *Model) export() tea.Cmd {
	if m.gen == nil {
		m.setError("No analysis service configured for export")
		return nil
	}
	if m.generating {
		m.setError("A document is already being generated")
		return nil
	}
	m.generating = true
	m.setStatus("Generating redacted document...")

	gen, name, dir := m.gen, m.filename, m.outDir
	redactions := m.sess.Redactions()
	return func() tea.Msg {
		path, err := exportDocument(context.Background(), gen, name, dir, redactions)
		return generatedMsg{path: path, err: err}
	}
}

func (m *Model) afterOutcome(out session.Outcome) tea.Cmd {
	if out == session.OutcomeApplied && m.sess.UndoAvailable() {
		return undoTick()
	}
	return nil
}

func undoTick() tea.Cmd {
	return tea.Tick(undoTickInterval, func(time.Time) tea.Msg { return undoTickMsg{} })
}

// Result returns the outcome of the review so far.
func (m Model) Result() *ReviewResult {
	return &ReviewResult{
		Filename:   m.filename,
		Redactions: m.sess.Redactions(),
		Exported:   m.exported,
	}
}

// --- cursor movement ---

func (m *Model) moveTo(offset int) {
	m.cursor = max(0, min(offset, len(m.text)))
	m.ensureVisible()
}

func (m *Model) moveRows(delta int) {
	if len(m.rows) == 0 {
		return
	}
	cur := rowOf(m.rows, m.cursor)
	next := max(0, min(cur+delta, len(m.rows)-1))
	if next == cur {
		return
	}
	col := m.cursor - m.rows[cur].Start
	r := m.rows[next]
	m.moveTo(min(r.Start+col, r.End))
}

func (m *Model) jumpToNextSpan() {
	for _, sp := range m.sess.Redactions() {
		if sp.Start > m.cursor {
			m.moveTo(sp.Start)
			return
		}
	}
}

func (m *Model) jumpToPrevSpan() {
	spans := m.sess.Redactions()
	for i := len(spans) - 1; i >= 0; i-- {
		if spans[i].Start < m.cursor {
			m.moveTo(spans[i].Start)
			return
		}
	}
}

func (m *Model) ensureVisible() {
	cur := rowOf(m.rows, m.cursor)
	h := m.visibleRows()
	if cur < m.scroll {
		m.scroll = cur
	} else if cur >= m.scroll+h {
		m.scroll = cur - h + 1
	}
}

// selection returns the selected rune range, cursor inclusive.
func (m Model) selection() (int, int) {
	if !m.selecting {
		return 0, 0
	}
	from, to := m.selAnchor, m.cursor
	if from > to {
		from, to = to, from
	}
	return from, min(to+1, len(m.text))
}

func (m Model) anchor() session.Anchor {
	cur := rowOf(m.rows, m.cursor)
	return session.Anchor{Top: cur - m.scroll + 1, Left: m.cursor - m.rows[cur].Start}
}

func (m *Model) setStatus(s string) {
	m.status, m.statusErr = s, false
}

func (m *Model) setError(s string) {
	m.status, m.statusErr = s, true
}

// --- layout ---

func (m Model) sidebarWidth() int {
	w := m.width / 3
	if w > 40 {
		w = 40
	}
	if w < 20 {
		w = 20
	}
	return w
}

func (m Model) textWidth() int {
	if m.width == 0 {
		return 80
	}
	return max(m.width-m.sidebarWidth()-1-4, 10)
}

func (m Model) visibleRows() int {
	if m.height == 0 {
		return 20
	}
	// status bar, borders and header
	h := m.height - 1 - 2 - 2
	if _, open := m.sess.Candidate(); open {
		h -= 4
	}
	return max(h, 1)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	sideWidth := m.sidebarWidth()
	docWidth := m.width - sideWidth - 1

	docView := m.renderDocView(docWidth)
	if c, open := m.sess.Candidate(); open {
		docView = lipgloss.JoinVertical(lipgloss.Left, docView, renderPopover(c, docWidth))
	}
	sidebar := m.renderSidebar(sideWidth, m.height-1)

	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " ", docView)
	return lipgloss.JoinVertical(lipgloss.Left, main, m.renderStatusBar())
}

func (m Model) renderDocView(width int) string {
	doc := m.sess.Document()
	header := docHeaderStyle.Render(truncate(m.title(), width-4))

	from, to := m.selection()
	v := viewState{
		cursor:   m.cursor,
		selFrom:  from,
		selTo:    to,
		cells:    highlightCells(len(m.text), m.sess.Segments()),
		theme:    m.theme,
		showCurs: true,
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')
	end := min(m.scroll+m.visibleRows(), len(m.rows))
	for i := m.scroll; i < end; i++ {
		b.WriteString(renderRow(m.text, m.rows[i], v))
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
	if doc.Len() == 0 {
		b.WriteString(helpBarStyle.Render("Empty document"))
	}

	return docViewStyle.Width(width).Height(m.visibleRows() + 2).Render(b.String())
}

func (m Model) title() string {
	name := m.filename
	if name == "" {
		name = "document"
	}
	doc := m.sess.Document()
	if n := doc.PageCount(); n > 0 {
		return fmt.Sprintf("%s  page %d/%d", name, max(doc.PageOf(m.cursor), 1), n)
	}
	return name
}

func (m Model) renderSidebar(width, height int) string {
	spans := m.sess.Redactions()
	var b strings.Builder
	b.WriteString(sidebarHeaderStyle.Render(fmt.Sprintf("Redactions (%d)", len(spans))))
	b.WriteByte('\n')

	selected := -1
	for i, sp := range spans {
		if sp.Contains(m.cursor) {
			selected = i
			break
		}
	}

	visible := max(height-4, 1)
	start := 0
	if selected >= visible {
		start = selected - visible + 1
	}
	end := min(start+visible, len(spans))

	inner := width - 4
	for i := start; i < end; i++ {
		sp := spans[i]
		label := pageLabelStyle.Render(fmt.Sprintf("p.%-3s", sp.PageLabel()))
		kind := m.theme.Style(sp.Kind).Render(kindTag(sp.Kind))
		text := truncate(sp.Text, inner-lipgloss.Width(label)-lipgloss.Width(kind)-2)

		style := spanItemStyle
		if i == selected {
			style = spanItemSelectedStyle
		}
		b.WriteString(label + " " + kind + " " + style.Render(text))
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
	if len(spans) == 0 {
		b.WriteString(helpBarStyle.Render("No redactions"))
	}

	return sidebarStyle.Width(width).Height(height - 2).Render(b.String())
}

// kindTag is the short label shown next to a span.
func kindTag(k model.Kind) string {
	s := k.String()
	if len(s) > 4 {
		s = s[:4]
	}
	return s
}

func renderPopover(c session.Candidate, width int) string {
	verb := "Redact"
	if c.Mode == session.ModeReject {
		verb = "Reject"
	}
	prompt := popoverTitleStyle.Render(c.Prompt())
	choices := fmt.Sprintf("%s %s this one  %s %s all %d  %s cancel",
		helpKeyStyle.Render("[1]"), verb,
		helpKeyStyle.Render("[a]"), verb, c.Count,
		helpKeyStyle.Render("[esc]"))
	return popoverStyle.Width(width).Render(prompt + "\n" + choices)
}

func (m Model) renderStatusBar() string {
	left := fmt.Sprintf(" %d redaction(s)", len(m.sess.Spans()))
	if m.sess.EditMode() {
		left += "  " + editModeStyle.Render("EDIT")
		if m.selecting {
			left += editModeStyle.Render(" SELECT")
		}
	}

	var right string
	switch {
	case m.status != "" && m.statusErr:
		right = errorStyle.Render(m.status)
	case m.sess.UndoAvailable():
		right = undoNoticeStyle.Render(session.UndoNotice(len(m.sess.LastRejected())) + " u to undo")
	case m.status != "":
		right = m.status
	default:
		right = "? help"
	}
	right += " "

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(helpHeaderStyle.Render("redline: Keyboard Shortcuts"))
	b.WriteString("\n\n")

	for _, kb := range []key.Binding{
		keys.Left, keys.Right, keys.Up, keys.Down,
		keys.NextSpan, keys.PrevSpan,
		keys.Reject, keys.Edit, keys.Select, keys.Add,
		keys.One, keys.All, keys.Cancel,
		keys.Undo, keys.Export, keys.Help, keys.Quit,
	} {
		h := kb.Help()
		b.WriteString(fmt.Sprintf("  %s  %s\n", helpKeyStyle.Width(12).Render(h.Key), h.Desc))
	}

	b.WriteString("\n")
	b.WriteString(helpBarStyle.Render("Press ? to close help"))
	return b.String()
}

// Run starts the TUI application and returns the review result when the
// user quits.
func Run(sess *session.Session, opts ...Option) (*ReviewResult, error) {
	m := New(sess, opts...)
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	fm, ok := final.(Model)
	if !ok {
		return nil, nil
	}
	return fm.Result(), nil
}
