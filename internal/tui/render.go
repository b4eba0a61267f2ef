package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/redline/internal/model"
	"github.com/sprite-ai/redline/internal/render"
)

// row is one visual line of the document: the half-open rune range it
// shows, without the trailing newline.
type row struct {
	Start int
	End   int
}

// layout hard-wraps text into rows of at most width runes. Every logical
// line yields at least one row, so an empty line still takes a row.
func layout(text []rune, width int) []row {
	if width < 1 {
		width = 1
	}
	var rows []row
	lineStart := 0
	for i := 0; i <= len(text); i++ {
		if i < len(text) && text[i] != '\n' {
			continue
		}
		start := lineStart
		for i-start > width {
			rows = append(rows, row{Start: start, End: start + width})
			start += width
		}
		rows = append(rows, row{Start: start, End: i})
		lineStart = i + 1
	}
	return rows
}

// rowOf returns the index of the row showing offset. An offset on a newline
// belongs to the row it ends.
func rowOf(rows []row, offset int) int {
	idx := 0
	for i, r := range rows {
		if r.Start > offset {
			break
		}
		idx = i
	}
	return idx
}

// cellKind marks each rune with the kind of the first highlighted segment
// covering it. Unhighlighted runes have ok=false.
type cellKind struct {
	kind model.Kind
	ok   bool
}

func highlightCells(n int, segs []render.Segment) []cellKind {
	cells := make([]cellKind, n)
	for _, seg := range segs {
		if !seg.Highlighted || seg.Span == nil {
			continue
		}
		for i := max(seg.Start, 0); i < seg.End && i < n; i++ {
			if !cells[i].ok {
				cells[i] = cellKind{kind: seg.Span.Kind, ok: true}
			}
		}
	}
	return cells
}

// viewState is what renderRow needs beyond the text.
type viewState struct {
	cursor   int
	selFrom  int
	selTo    int // exclusive; selFrom == selTo means no selection
	cells    []cellKind
	theme    *Theme
	showCurs bool
}

// cellClass identifies how a rune is drawn.
type cellClass struct {
	class int
	kind  model.Kind
}

const (
	classPlain = iota
	classHighlight
	classSelection
	classCursor
)

func (v viewState) classAt(i int) cellClass {
	switch {
	case v.showCurs && i == v.cursor:
		return cellClass{class: classCursor}
	case i >= v.selFrom && i < v.selTo:
		return cellClass{class: classSelection}
	case i < len(v.cells) && v.cells[i].ok:
		return cellClass{class: classHighlight, kind: v.cells[i].kind}
	default:
		return cellClass{class: classPlain}
	}
}

func (v viewState) style(c cellClass) lipgloss.Style {
	switch c.class {
	case classCursor:
		return cursorStyle
	case classSelection:
		return selectionStyle
	case classHighlight:
		return v.theme.Style(c.kind)
	default:
		return plainTextStyle
	}
}

// renderRow styles one row, grouping runs of runes that share a class.
func renderRow(text []rune, r row, v viewState) string {
	var b strings.Builder
	runStart := r.Start
	for i := r.Start; i <= r.End; i++ {
		if i < r.End && v.classAt(i) == v.classAt(runStart) {
			continue
		}
		if i > runStart {
			b.WriteString(v.style(v.classAt(runStart)).Render(string(text[runStart:i])))
		}
		runStart = i
	}
	// A cursor past the last visible rune sits on the newline or the end of
	// the document.
	if v.showCurs && v.cursor == r.End {
		b.WriteString(cursorStyle.Render(" "))
	}
	return b.String()
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
