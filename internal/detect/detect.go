// Package detect implements rule-based detection passes over plain text.
//
// It is the offline counterpart of the analysis service: text is split into
// pages on form feeds, each page is scanned by every enabled pass, and the
// result has the same shape the service returns.
package detect

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sprite-ai/redline/internal/model"
)

// ContractType is reported for every locally produced analysis.
const ContractType = "redaction_analysis"

// Page is one page of input text.
type Page struct {
	Number int    // 1-based
	Text   string // page text without the trailing newline
	Offset int    // character offset of the page in the full text
}

// Pass scans one page and returns spans with offsets relative to the full
// text.
type Pass func(p Page) []model.Span

// AllPasses returns the ordered list of all detection passes.
func AllPasses() []string {
	return []string{"email", "phone", "org"}
}

// PassNames maps pass names to pass functions (for --skip).
var PassNames = map[string]Pass{
	"email": EmailPass,
	"phone": PhonePass,
	"org":   OrgPass,
}

// Options controls a detection run.
type Options struct {
	// DenyList holds terms that are never reported, compared
	// case-insensitively after trimming. Nil means DefaultDenyList.
	DenyList []string
	// Skip names passes to leave out.
	Skip []string
	// Filename is copied into the result.
	Filename string
	// Now stamps the result. Defaults to time.Now.
	Now func() time.Time
}

// Run splits text into pages, runs the enabled passes and returns the
// aggregated analysis. Spans are sorted by start.
func Run(text string, opts Options) *model.Analysis {
	skipSet := make(map[string]bool)
	for _, s := range opts.Skip {
		skipSet[s] = true
	}

	denyList := opts.DenyList
	if denyList == nil {
		denyList = DefaultDenyList
	}
	deny := make(map[string]bool, len(denyList))
	for _, term := range denyList {
		deny[normalizeTerm(term)] = true
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	pages := SplitPages(text)
	result := &model.Analysis{
		Filename:            opts.Filename,
		FileSize:            int64(len(text)),
		PageOffsets:         make([]int, 0, len(pages)),
		Redactions:          []model.Span{},
		ExtractionTimestamp: now().UTC().Format(time.RFC3339),
		ContractType:        ContractType,
	}

	var full strings.Builder
	for _, p := range pages {
		result.PageOffsets = append(result.PageOffsets, p.Offset)
		full.WriteString(p.Text)
		full.WriteByte('\n')

		for _, name := range AllPasses() {
			if skipSet[name] {
				continue
			}
			for _, sp := range PassNames[name](p) {
				if deny[normalizeTerm(sp.Text)] {
					continue
				}
				result.Redactions = append(result.Redactions, sp)
			}
		}
	}
	result.FullText = full.String()

	model.SortByStart(result.Redactions)
	return result
}

// SplitPages splits text on form feeds. Offsets account for the newline
// appended after every page in the full text.
func SplitPages(text string) []Page {
	raw := strings.Split(text, "\f")
	pages := make([]Page, 0, len(raw))
	offset := 0
	for i, t := range raw {
		pages = append(pages, Page{Number: i + 1, Text: t, Offset: offset})
		offset += utf8.RuneCountInString(t) + 1
	}
	return pages
}

// ValidatePasses reports an unknown pass name in skip.
func ValidatePasses(skip []string) error {
	for _, s := range skip {
		if _, ok := PassNames[s]; !ok {
			return fmt.Errorf("unknown pass %q (valid: %s)", s, strings.Join(AllPasses(), ", "))
		}
	}
	return nil
}

// Counts returns the number of spans per kind.
func Counts(spans []model.Span) map[model.Kind]int {
	counts := make(map[model.Kind]int)
	for _, sp := range spans {
		counts[sp.Kind]++
	}
	return counts
}

// Summary returns a one-line summary of detected spans.
func Summary(spans []model.Span) string {
	if len(spans) == 0 {
		return "No sensitive text found"
	}

	counts := Counts(spans)
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	var parts []string
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%d %s", counts[model.Kind(k)], model.Kind(k)))
	}
	return strings.Join(parts, ", ")
}

func normalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
