package detect

import (
	"regexp"
	"unicode/utf8"

	"github.com/sprite-ai/redline/internal/model"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`(\d{3}[- .]?){2}\d{4}`)
	orgPattern   = regexp.MustCompile(`\b(?:[A-Z][A-Za-z0-9&'-]*\s+){1,4}(?:Inc|LLC|Ltd|Corp|Corporation|Company|GmbH|PLC)\b\.?`)
)

// DefaultDenyList holds generic contract terms that look like entities but
// are never redacted.
var DefaultDenyList = []string{
	"licensee", "licensor", "party", "parties", "agreement", "effective date",
	"content", "software", "f-1", "censoring", "maintenance",
	"governmental authority", "law", "laws", "appendix", "exhibit",
	"person", "persons", "affiliate", "affiliates",
	"licensed content", "licensee's affiliates", "e-house", "the share purchase agreement",
	"advertising sale agency agreement", "content license agreement", "the effective date",
	"the licensed domain names", "the agency agreement", "operating content", "e-house research",
	"training institute", "licensee control", "content distribution", "licensee obligations",
	"confidential information", "dispute", "commission", "claimant", "respondent",
	"warranties", "entire agreement", "public announcements", "legal department",
	"the securities exchange act", "termination of original agreement", "the mutual termination agreement",
}

// EmailPass flags email addresses.
func EmailPass(p Page) []model.Span {
	return matchPass(p, emailPattern, model.KindEmail)
}

// PhonePass flags ten-digit phone numbers with optional separators.
func PhonePass(p Page) []model.Span {
	return matchPass(p, phonePattern, model.KindPhone)
}

// OrgPass flags capitalised names ending in a corporate suffix.
func OrgPass(p Page) []model.Span {
	return matchPass(p, orgPattern, model.KindOrg)
}

// matchPass converts regexp byte offsets into character offsets in the full
// text.
func matchPass(p Page, re *regexp.Regexp, kind model.Kind) []model.Span {
	matches := re.FindAllStringIndex(p.Text, -1)
	if len(matches) == 0 {
		return nil
	}

	spans := make([]model.Span, 0, len(matches))
	bytePos, runePos := 0, 0
	for _, m := range matches {
		runePos += utf8.RuneCountInString(p.Text[bytePos:m[0]])
		start := runePos
		runePos += utf8.RuneCountInString(p.Text[m[0]:m[1]])
		bytePos = m[1]

		spans = append(spans, model.Span{
			Text:  p.Text[m[0]:m[1]],
			Start: p.Offset + start,
			End:   p.Offset + runePos,
			Kind:  kind,
			Page:  p.Number,
		})
	}
	return spans
}
