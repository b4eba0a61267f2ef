// Package render turns a document and its redaction spans into the ordered
// sequence of plain and highlighted segments a viewer displays.
package render

import (
	"sort"

	"github.com/sprite-ai/redline/internal/model"
)

// Segment is one displayable run of the document. Plain segments carry a
// slice of the text; highlighted segments carry the span they came from.
type Segment struct {
	Highlighted bool        `json:"highlighted"`
	Text        string      `json:"text"`
	Start       int         `json:"start"`
	End         int         `json:"end"`
	Span        *model.Span `json:"span,omitempty"`
}

// Segments renders spans over text.
//
// Spans are walked in start order with a cursor that only moves forward.
// Every span yields exactly one highlighted segment, even when it is covered
// by an earlier span, so each span stays individually addressable. Overlaps
// are not merged.
func Segments(text string, spans []model.Span) []Segment {
	return SegmentsRunes([]rune(text), spans)
}

// SegmentsRunes is Segments over pre-decoded text.
func SegmentsRunes(text []rune, spans []model.Span) []Segment {
	sorted := make([]model.Span, len(spans))
	copy(sorted, spans)
	sortSpans(sorted)

	var out []Segment
	cursor := 0
	for i := range sorted {
		sp := &sorted[i]
		start := clamp(sp.Start, 0, len(text))
		end := clamp(sp.End, start, len(text))

		if start > cursor {
			out = append(out, plain(text, cursor, start))
		}
		out = append(out, Segment{
			Highlighted: true,
			Text:        sp.Text,
			Start:       sp.Start,
			End:         sp.End,
			Span:        sp,
		})
		if end > cursor {
			cursor = end
		}
	}

	if cursor < len(text) {
		out = append(out, plain(text, cursor, len(text)))
	}
	return out
}

// Highlighted returns only the highlighted segments, in render order.
func Highlighted(segs []Segment) []Segment {
	var out []Segment
	for _, s := range segs {
		if s.Highlighted {
			out = append(out, s)
		}
	}
	return out
}

func plain(text []rune, start, end int) Segment {
	return Segment{
		Text:  string(text[start:end]),
		Start: start,
		End:   end,
	}
}

// sortSpans orders by start, then by every remaining field so the output
// does not depend on the order spans were supplied in.
func sortSpans(spans []model.Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		switch {
		case a.Start != b.Start:
			return a.Start < b.Start
		case a.End != b.End:
			return a.End < b.End
		case a.Text != b.Text:
			return a.Text < b.Text
		case a.Kind != b.Kind:
			return a.Kind < b.Kind
		case a.Page != b.Page:
			return a.Page < b.Page
		default:
			return a.ID < b.ID
		}
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
