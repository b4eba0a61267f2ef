package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sprite-ai/redline/internal/model"
	"github.com/sprite-ai/redline/internal/session"
)

const testText = "Contact Jane Doe or Jane Doe at jane@x.com\nAcme Corp pays."

func testSpans() []model.Span {
	return []model.Span{
		{ID: "p1", Text: "Jane Doe", Start: 8, End: 16, Kind: model.KindPerson, Page: 1},
		{ID: "p2", Text: "Jane Doe", Start: 20, End: 28, Kind: model.KindPerson, Page: 1},
		{ID: "e1", Text: "jane@x.com", Start: 32, End: 42, Kind: model.KindEmail, Page: 1},
	}
}

func setupModel(t *testing.T, opts ...Option) (Model, *session.ManualClock) {
	t.Helper()
	clock := session.NewManualClock()
	sess := session.New(model.NewDocument(testText, []int{0}), testSpans(), session.WithClock(clock))
	t.Cleanup(sess.Close)

	m := New(sess, append([]Option{WithFilename("contract.pdf")}, opts...)...)
	newM, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return newM.(Model), clock
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		var newM tea.Model
		newM, cmd = m.Update(msg)
		m = newM.(Model)
	}
	return m, cmd
}

func TestModelInit(t *testing.T) {
	m, _ := setupModel(t)

	if m.cursor != 0 {
		t.Errorf("expected cursor 0, got %d", m.cursor)
	}
	if len(m.rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(m.rows))
	}
	if m.theme == nil {
		t.Error("expected default theme")
	}
}

func TestSpanNavigation(t *testing.T) {
	m, _ := setupModel(t)

	m, _ = press(t, m, "n")
	if m.cursor != 8 {
		t.Errorf("expected cursor on first span, got %d", m.cursor)
	}
	m, _ = press(t, m, "n", "n")
	if m.cursor != 32 {
		t.Errorf("expected cursor on email, got %d", m.cursor)
	}
	// Past the last span the cursor stays.
	m, _ = press(t, m, "n")
	if m.cursor != 32 {
		t.Errorf("expected cursor to stay at 32, got %d", m.cursor)
	}
	m, _ = press(t, m, "N")
	if m.cursor != 20 {
		t.Errorf("expected cursor on second span, got %d", m.cursor)
	}
}

func TestCursorMovement(t *testing.T) {
	m, _ := setupModel(t)

	m, _ = press(t, m, "h")
	if m.cursor != 0 {
		t.Errorf("expected cursor clamped at 0, got %d", m.cursor)
	}
	m, _ = press(t, m, "l", "l", "j")
	if m.cursor != 45 {
		t.Errorf("expected cursor at column 2 of second line, got %d", m.cursor)
	}
	m, _ = press(t, m, "k")
	if m.cursor != 2 {
		t.Errorf("expected cursor back on first line, got %d", m.cursor)
	}
}

func TestRejectUniqueSpan(t *testing.T) {
	m, clock := setupModel(t)

	m, _ = press(t, m, "n", "n", "n")
	m, cmd := press(t, m, "x")
	if len(m.sess.Spans()) != 2 {
		t.Fatalf("expected email rejected, got %d spans", len(m.sess.Spans()))
	}
	if cmd == nil {
		t.Error("expected undo tick to be scheduled")
	}
	if !strings.Contains(m.View(), "1 item(s) removed.") {
		t.Error("expected undo notice in view")
	}

	clock.Advance(session.DefaultUndoWindow)
	newM, cmd := m.Update(undoTickMsg{})
	m = newM.(Model)
	if cmd != nil {
		t.Error("expected ticking to stop after expiry")
	}
	if strings.Contains(m.View(), "item(s) removed.") {
		t.Error("expected undo notice gone after expiry")
	}
}

func TestRejectAllThenUndo(t *testing.T) {
	m, _ := setupModel(t)

	m, _ = press(t, m, "n", "x")
	c, open := m.sess.Candidate()
	if !open || c.Count != 2 {
		t.Fatalf("expected candidate for 2 instances, got %+v (open=%v)", c, open)
	}
	if !strings.Contains(m.View(), `Found 2 instances of "Jane Doe".`) {
		t.Error("expected popover prompt in view")
	}

	m, _ = press(t, m, "a")
	if len(m.sess.Spans()) != 1 {
		t.Fatalf("expected 1 span left, got %d", len(m.sess.Spans()))
	}
	if !strings.Contains(m.View(), "2 item(s) removed.") {
		t.Error("expected undo notice for 2 items")
	}

	m, _ = press(t, m, "u")
	if len(m.sess.Spans()) != 3 {
		t.Errorf("expected 3 spans after undo, got %d", len(m.sess.Spans()))
	}
}

func TestCandidateDismissedByOtherKey(t *testing.T) {
	m, _ := setupModel(t)

	m, _ = press(t, m, "n", "x", "l")
	if _, open := m.sess.Candidate(); open {
		t.Error("expected candidate dismissed")
	}
	if len(m.sess.Spans()) != 3 {
		t.Errorf("expected no change, got %d spans", len(m.sess.Spans()))
	}
	if m.cursor != 8 {
		t.Errorf("expected dismissing key not to move the cursor, got %d", m.cursor)
	}
}

func TestRejectWithNothingUnderCursor(t *testing.T) {
	m, _ := setupModel(t)

	m, _ = press(t, m, "x")
	if len(m.sess.Spans()) != 3 {
		t.Errorf("expected no change, got %d spans", len(m.sess.Spans()))
	}
	if m.status == "" {
		t.Error("expected a status hint")
	}
}

func TestAddRequiresEditMode(t *testing.T) {
	m, _ := setupModel(t)

	m, _ = press(t, m, "enter")
	if len(m.sess.Spans()) != 3 {
		t.Errorf("expected add ignored outside edit mode")
	}

	m, _ = press(t, m, "e", "enter")
	spans := m.sess.Spans()
	if len(spans) != 4 {
		t.Fatalf("expected word added in edit mode, got %d spans", len(spans))
	}
	added := spans[3]
	if added.Text != "Contact" || added.Kind != model.KindManual || added.Page != 1 {
		t.Errorf("unexpected added span %+v", added)
	}
}

func TestAddSelection(t *testing.T) {
	m, _ := setupModel(t)

	// Select "Acme Corp" on the second line.
	m, _ = press(t, m, "e", "j")
	if m.cursor != 43 {
		t.Fatalf("expected cursor at start of second line, got %d", m.cursor)
	}
	m, _ = press(t, m, "v")
	for i := 0; i < 8; i++ {
		m, _ = press(t, m, "l")
	}
	m, _ = press(t, m, "enter")

	spans := m.sess.Redactions()
	last := spans[len(spans)-1]
	if last.Text != "Acme Corp" || last.Start != 43 || last.End != 52 {
		t.Errorf("unexpected span %+v", last)
	}
	if m.selecting {
		t.Error("expected selection cleared after add")
	}
}

func TestSelectOutsideEditMode(t *testing.T) {
	m, _ := setupModel(t)

	m, _ = press(t, m, "v")
	if m.selecting {
		t.Error("selection should need edit mode")
	}
}

func TestExportGuardsConcurrentGeneration(t *testing.T) {
	dir := t.TempDir()
	var got []model.Span
	gen := func(ctx context.Context, redactions []model.Span) ([]byte, error) {
		got = redactions
		return []byte("%PDF-redacted"), nil
	}
	m, _ := setupModel(t, WithGenerator(gen), WithOutputDir(dir))

	m, cmd := press(t, m, "d")
	if cmd == nil || !m.generating {
		t.Fatal("expected generation to start")
	}

	m, second := press(t, m, "d")
	if second != nil || !m.statusErr {
		t.Error("expected second export to be refused")
	}

	newM, _ := m.Update(cmd())
	m = newM.(Model)
	if m.generating {
		t.Error("expected generation finished")
	}
	want := filepath.Join(dir, "redacted_contract.pdf")
	if m.exported != want {
		t.Errorf("expected export at %s, got %s", want, m.exported)
	}
	data, err := os.ReadFile(want)
	if err != nil || string(data) != "%PDF-redacted" {
		t.Errorf("unexpected export contents %q (%v)", data, err)
	}
	if len(got) != 3 || got[0].Start != 8 {
		t.Errorf("expected sorted redactions sent to generator, got %+v", got)
	}

	res := m.Result()
	if res.Exported != want || !strings.Contains(res.Report(), "redacted_contract.pdf") {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestExportFailureKeepsSpans(t *testing.T) {
	gen := func(ctx context.Context, redactions []model.Span) ([]byte, error) {
		return nil, errors.New("Failed to generate PDF")
	}
	m, _ := setupModel(t, WithGenerator(gen), WithOutputDir(t.TempDir()))

	m, cmd := press(t, m, "d")
	newM, _ := m.Update(cmd())
	m = newM.(Model)

	if !m.statusErr || m.status != "Failed to generate PDF" {
		t.Errorf("expected error status, got %q", m.status)
	}
	if len(m.sess.Spans()) != 3 {
		t.Errorf("expected spans untouched, got %d", len(m.sess.Spans()))
	}
}

func TestExportWithoutGenerator(t *testing.T) {
	m, _ := setupModel(t)

	m, cmd := press(t, m, "d")
	if cmd != nil || !m.statusErr {
		t.Error("expected export refused without a generator")
	}
}

func TestViewRenders(t *testing.T) {
	m, _ := setupModel(t)

	view := m.View()
	for _, want := range []string{"contract.pdf", "Redactions (3)", "jane@x.com", "Acme Corp"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestHelpToggle(t *testing.T) {
	m, _ := setupModel(t)

	m, _ = press(t, m, "?")
	if !m.showHelp {
		t.Error("expected help to be shown")
	}
	if !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Error("expected help view to contain shortcuts")
	}

	// Keys other than help and quit are swallowed while help is open.
	m, _ = press(t, m, "n")
	if m.cursor != 0 {
		t.Error("expected navigation ignored under help")
	}
}

func TestLayout(t *testing.T) {
	rows := layout([]rune("abcdef\n\nxy"), 4)
	want := []row{{0, 4}, {4, 6}, {7, 7}, {8, 10}}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %v", len(want), rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d: expected %v, got %v", i, want[i], rows[i])
		}
	}

	if got := rowOf(rows, 6); got != 1 {
		t.Errorf("newline should belong to the row it ends, got %d", got)
	}
	if got := rowOf(rows, 4); got != 1 {
		t.Errorf("wrap boundary should start the next row, got %d", got)
	}
}

func TestThemeFallback(t *testing.T) {
	th := NewTheme("no-such-theme")
	if th.Name() == "" {
		t.Error("expected a fallback theme name")
	}
	// Unknown kinds still render.
	if th.Style(model.Kind("CUSTOM")).Render("x") == "" {
		t.Error("expected fallback style to render")
	}
}

func TestResultSummary(t *testing.T) {
	res := &ReviewResult{Filename: "a.pdf", Redactions: testSpans()}
	if got := res.Summary(); got != "1 EMAIL, 2 PERSON" {
		t.Errorf("unexpected summary %q", got)
	}
	if !strings.Contains(res.Report(), "Page 1") {
		t.Errorf("expected page labels in report:\n%s", res.Report())
	}
}
