package core

// convert.go turns raw spreadsheet cells into typed field values and back.
//
// These functions handle the messy reality of user-provided files:
//   - Excel formula prefixes (="value") and stray quotes
//   - Lists written as "a, b", "[a, b]" or "['a','b']"
//   - Phase lists written as "[1,2]", "1-3" or "1, 2, 3"
//   - Numbers with trailing junk ("3.5", "4 days")
//
// Empty cells and the literal "undefined" count as missing.

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5/pgtype"
)

// MinPhase and MaxPhase bound the valid phase numbers.
const (
	MinPhase = 1
	MaxPhase = 6
)

// maxRangeSpan caps "a-b" phase ranges so a typo like "1-100000" cannot
// allocate a huge slice.
const maxRangeSpan = 100

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding double quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}

	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}

	return strings.TrimSpace(s)
}

// IsMissing reports whether a cleaned cell should be treated as absent.
func IsMissing(s string) bool {
	return s == "" || s == "undefined"
}

// ParseInt4 converts a cell to a nullable integer.
// Missing cells are invalid. Anything else is parsed by its leading
// integer; when there is none the value is 0 so range checks report it.
func ParseInt4(s string) pgtype.Int4 {
	s = CleanCell(s)
	if IsMissing(s) {
		return pgtype.Int4{}
	}
	n, ok := leadingInt(s)
	if !ok {
		return pgtype.Int4{Int32: 0, Valid: true}
	}
	return pgtype.Int4{Int32: n, Valid: true}
}

// Int4 returns a valid pgtype.Int4 holding n.
func Int4(n int) pgtype.Int4 {
	return pgtype.Int4{Int32: int32(n), Valid: true}
}

// leadingInt parses an optional sign followed by digits at the start of s.
func leadingInt(s string) (int32, bool) {
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 32)
	if err != nil {
		// Out of int32 range; saturate so range checks still fire.
		if strings.HasPrefix(s, "-") {
			return -1 << 31, true
		}
		return 1<<31 - 1, true
	}
	return int32(n), true
}

// SplitList parses a list cell. Missing cells return nil; otherwise the
// result is non-nil even when no items survive trimming.
func SplitList(s string) []string {
	s = CleanCell(s)
	if IsMissing(s) {
		return nil
	}
	s = trimBrackets(s)

	out := make([]string, 0, strings.Count(s, ",")+1)
	for _, part := range strings.Split(s, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParsePhases parses a phase cell. Accepted forms are "[1,2]", "1-3" and
// "1, 2". Non-numeric tokens are dropped; out-of-range numbers are kept so
// the validator can report them.
func ParsePhases(s string) []int {
	s = CleanCell(s)
	if IsMissing(s) {
		return nil
	}

	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		return parsePhaseTokens(trimBrackets(s))
	}

	if lo, hi, ok := parseRange(s); ok {
		if hi < lo {
			return []int{}
		}
		out := make([]int, 0, hi-lo+1)
		for p := lo; p <= hi; p++ {
			out = append(out, p)
		}
		return out
	}

	return parsePhaseTokens(s)
}

func parsePhaseTokens(s string) []int {
	out := make([]int, 0, strings.Count(s, ",")+1)
	for _, tok := range strings.Split(s, ",") {
		tok = strings.Trim(strings.TrimSpace(tok), `"'`)
		if n, ok := leadingInt(tok); ok {
			out = append(out, int(n))
		}
	}
	return out
}

// parseRange recognizes "a-b" with a bounded span. A reversed range is
// returned as is and yields no phases.
func parseRange(s string) (int, int, bool) {
	if strings.Contains(s, ",") {
		return 0, 0, false
	}
	idx := strings.Index(s[1:], "-")
	if idx < 0 {
		return 0, 0, false
	}
	idx++
	lo, errLo := strconv.Atoi(strings.TrimSpace(s[:idx]))
	hi, errHi := strconv.Atoi(strings.TrimSpace(s[idx+1:]))
	if errLo != nil || errHi != nil || hi-lo > maxRangeSpan {
		return 0, 0, false
	}
	return lo, hi, true
}

func trimBrackets(s string) string {
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		return s[1 : len(s)-1]
	}
	return s
}

// ValidPhases returns the phases within [MinPhase, MaxPhase], preserving order.
func ValidPhases(phases []int) []int {
	out := make([]int, 0, len(phases))
	for _, p := range phases {
		if p >= MinPhase && p <= MaxPhase {
			out = append(out, p)
		}
	}
	return out
}

// FormatList joins list items the way exported files present them.
func FormatList(items []string) string {
	return strings.Join(items, ", ")
}

// FormatPhases joins phase numbers with ", ".
func FormatPhases(phases []int) string {
	parts := make([]string, len(phases))
	for i, p := range phases {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}

// NormalizeHeader lowercases a header and strips all whitespace.
func NormalizeHeader(h string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, CleanCell(h))
}

// HeaderSimilarity scores two normalized headers by character overlap:
// the number of characters of the shorter string that occur anywhere in the
// longer one, divided by the length of the longer string.
func HeaderSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longer, shorter := rb, ra
	if len(ra) > len(rb) {
		longer, shorter = ra, rb
	}
	if len(longer) == 0 {
		return 0
	}

	set := make(map[rune]bool, len(longer))
	for _, r := range longer {
		set[r] = true
	}
	matches := 0
	for _, r := range shorter {
		if set[r] {
			matches++
		}
	}
	return float64(matches) / float64(len(longer))
}
