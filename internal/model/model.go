// Package model defines the core data types shared across redline.
package model

import (
	"sort"
	"strconv"
	"strings"
)

// Kind classifies a redaction. The set is open-ended; kinds drive display
// styling only and never change how a span behaves.
type Kind string

const (
	KindUnclassified Kind = ""
	KindPerson       Kind = "PERSON"
	KindOrg          Kind = "ORG"
	KindLocation     Kind = "LOCATION"
	KindEmail        Kind = "EMAIL"
	KindPhone        Kind = "PHONE"
	KindManual       Kind = "MANUAL"
)

// KnownKinds returns the built-in kinds in display order.
func KnownKinds() []Kind {
	return []Kind{KindPerson, KindOrg, KindLocation, KindEmail, KindPhone, KindManual}
}

func (k Kind) String() string {
	if k == KindUnclassified {
		return "unclassified"
	}
	return string(k)
}

// Known reports whether k is one of the built-in kinds.
func (k Kind) Known() bool {
	for _, known := range KnownKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Span is a redaction over the document text. Start and End are half-open
// character offsets (End exclusive).
type Span struct {
	ID    string `json:"id,omitempty"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Kind  Kind   `json:"type"`
	Page  int    `json:"page"`
}

// SameOffsets reports whether s and o cover the same range. This is the
// equality used for removal.
func (s Span) SameOffsets(o Span) bool {
	return s.Start == o.Start && s.End == o.End
}

// SameText reports whether s and o share literal text. This is the equality
// used to group spans for bulk operations.
func (s Span) SameText(o Span) bool {
	return s.Text == o.Text
}

// Len returns the number of characters covered.
func (s Span) Len() int {
	return s.End - s.Start
}

// Valid reports whether the offsets fit a text of docLen characters.
func (s Span) Valid(docLen int) bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= docLen
}

// Contains reports whether offset falls inside the span.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

// PageLabel returns the page for display, "N/A" when unattributed.
func (s Span) PageLabel() string {
	if s.Page <= 0 {
		return "N/A"
	}
	return strconv.Itoa(s.Page)
}

// Occurrence is one exact textual match within the document.
type Occurrence struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// SortByStart sorts spans in place by start offset, keeping the relative
// order of spans that start at the same offset.
func SortByStart(spans []Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].Start < spans[j].Start
	})
}

// CountText returns how many spans carry exactly text.
func CountText(spans []Span, text string) int {
	n := 0
	for _, s := range spans {
		if s.Text == text {
			n++
		}
	}
	return n
}

// ByKind groups spans by kind.
func ByKind(spans []Span) map[Kind][]Span {
	m := make(map[Kind][]Span)
	for _, s := range spans {
		m[s.Kind] = append(m[s.Kind], s)
	}
	return m
}

// ByPage groups spans by page.
func ByPage(spans []Span) map[int][]Span {
	m := make(map[int][]Span)
	for _, s := range spans {
		m[s.Page] = append(m[s.Page], s)
	}
	return m
}

// NormalizeKind upper-cases a kind tag from the wire and folds the location
// aliases the detector emits.
func NormalizeKind(raw string) Kind {
	k := strings.ToUpper(strings.TrimSpace(raw))
	switch k {
	case "GPE", "LOC":
		return KindLocation
	}
	return Kind(k)
}
