package model

// Document is the immutable text under review together with its page
// boundary table. Offsets into a Document count characters, not bytes.
type Document struct {
	Text        string
	PageOffsets []int

	runes []rune
}

// NewDocument builds a Document. The offsets table is copied.
func NewDocument(text string, pageOffsets []int) *Document {
	offsets := make([]int, len(pageOffsets))
	copy(offsets, pageOffsets)
	return &Document{
		Text:        text,
		PageOffsets: offsets,
		runes:       []rune(text),
	}
}

// Runes returns the decoded text. Callers must not modify it.
func (d *Document) Runes() []rune {
	return d.runes
}

// Len returns the document length in characters.
func (d *Document) Len() int {
	return len(d.runes)
}

// Slice returns the text between two character offsets, clamped to the
// document bounds.
func (d *Document) Slice(start, end int) string {
	start = clamp(start, 0, len(d.runes))
	end = clamp(end, start, len(d.runes))
	return string(d.runes[start:end])
}

// PageOf returns the 1-based page containing offset.
func (d *Document) PageOf(offset int) int {
	return PageOf(d.PageOffsets, offset)
}

// PageCount returns the number of pages the boundary table describes.
func (d *Document) PageCount() int {
	if len(d.PageOffsets) == 0 {
		return 1
	}
	return len(d.PageOffsets)
}

// PageOf maps a character offset to a 1-based page number using an
// ascending table of page start offsets (the first entry is normally 0).
// The page is the index of the first boundary strictly greater than offset;
// past the last boundary it is the table length. An empty table puts
// everything on page 1.
func PageOf(pageOffsets []int, offset int) int {
	if len(pageOffsets) == 0 {
		return 1
	}
	page := len(pageOffsets)
	for i, boundary := range pageOffsets {
		if offset < boundary {
			page = i
			break
		}
	}
	if page < 1 {
		return 1
	}
	return page
}

// Analysis is the response of the external analysis service: the extracted
// text, its page table and the proposed redactions.
type Analysis struct {
	Filename            string `json:"filename,omitempty"`
	FileSize            int64  `json:"file_size,omitempty"`
	FullText            string `json:"full_text"`
	Redactions          []Span `json:"redactions"`
	PageOffsets         []int  `json:"page_offsets"`
	ExtractionTimestamp string `json:"extraction_timestamp"`
	ContractType        string `json:"contract_type,omitempty"`
}

// Document returns the immutable document described by the analysis.
func (a *Analysis) Document() *Document {
	return NewDocument(a.FullText, a.PageOffsets)
}

// Validate normalizes kinds and drops redactions whose offsets do not fit
// the text. It returns the number of redactions dropped.
func (a *Analysis) Validate() int {
	n := len([]rune(a.FullText))
	kept := a.Redactions[:0]
	dropped := 0
	for _, r := range a.Redactions {
		if !r.Valid(n) {
			dropped++
			continue
		}
		r.Kind = NormalizeKind(string(r.Kind))
		kept = append(kept, r)
	}
	a.Redactions = kept
	return dropped
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
