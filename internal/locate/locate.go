// Package locate finds text occurrences and word boundaries inside a
// document. All offsets are character (rune) offsets.
package locate

import (
	"strings"
	"unicode/utf8"

	"github.com/sprite-ai/redline/internal/model"
)

// FindAll returns every occurrence of needle in haystack, left to right.
// Scanning resumes one character past each match start rather than at the
// match end, so a needle that overlaps itself is reported at every shift:
// FindAll("aaa", "aa") yields [0,2) and [1,3).
func FindAll(haystack, needle string) []model.Occurrence {
	if needle == "" {
		return nil
	}
	width := utf8.RuneCountInString(needle)

	var results []model.Occurrence
	bytePos, runePos := 0, 0
	for bytePos <= len(haystack) {
		idx := strings.Index(haystack[bytePos:], needle)
		if idx < 0 {
			break
		}
		runePos += utf8.RuneCountInString(haystack[bytePos : bytePos+idx])
		bytePos += idx

		results = append(results, model.Occurrence{
			Text:  needle,
			Start: runePos,
			End:   runePos + width,
		})

		_, size := utf8.DecodeRuneInString(haystack[bytePos:])
		bytePos += size
		runePos++
	}
	return results
}

// Count returns the number of occurrences FindAll would report.
func Count(haystack, needle string) int {
	return len(FindAll(haystack, needle))
}

// First returns the first occurrence of needle, if any.
func First(haystack, needle string) (model.Occurrence, bool) {
	if needle == "" {
		return model.Occurrence{}, false
	}
	idx := strings.Index(haystack, needle)
	if idx < 0 {
		return model.Occurrence{}, false
	}
	start := utf8.RuneCountInString(haystack[:idx])
	return model.Occurrence{
		Text:  needle,
		Start: start,
		End:   start + utf8.RuneCountInString(needle),
	}, true
}

// WordAt returns the word containing the character at offset. Words are
// delimited only by spaces and newlines. It reports false when offset
// lands on a delimiter or outside the text.
func WordAt(text string, offset int) (model.Occurrence, bool) {
	return WordAtRunes([]rune(text), offset)
}

// WordAtRunes is WordAt over pre-decoded text.
func WordAtRunes(text []rune, offset int) (model.Occurrence, bool) {
	if offset < 0 || offset >= len(text) || isGap(text[offset]) {
		return model.Occurrence{}, false
	}

	start, end := offset, offset
	for start > 0 && !isGap(text[start-1]) {
		start--
	}
	for end < len(text)-1 && !isGap(text[end+1]) {
		end++
	}

	return model.Occurrence{
		Text:  string(text[start : end+1]),
		Start: start,
		End:   end + 1,
	}, true
}

func isGap(r rune) bool {
	return r == ' ' || r == '\n'
}
