package resolver

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// NormalizedMarket is the text-feature view of one venue market used for
// cross-venue matching.
type NormalizedMarket struct {
	// Normalized is the scrubbed, lowercased, whitespace-collapsed text.
	Normalized string
	// Tokens are the normalized words with short and purely numeric tokens
	// removed.
	Tokens []string
	// Dates are every date mention found in the raw text.
	Dates []time.Time
}

var (
	reSlashDate = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	reISODate   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	reMonthDate = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+(\d{1,2}),?\s+(\d{4})\b`)
)

// Normalize builds the matching features for a market's title and
// description. Idempotent: normalizing already-normalized text is a no-op.
func Normalize(title, description string) NormalizedMarket {
	raw := title
	if description != "" {
		raw = title + " " + description
	}

	lowered := strings.ToLower(raw)
	dates := extractDates(lowered)

	scrubbed := scrub(lowered)
	tokens := tokenize(scrubbed)

	return NormalizedMarket{
		Normalized: scrubbed,
		Tokens:     tokens,
		Dates:      dates,
	}
}

// scrub replaces every non-alphanumeric rune with a space, collapses runs of
// whitespace, and trims.
func scrub(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}

// tokenize splits on whitespace and drops tokens of length <= 2 and tokens
// that are purely numeric.
func tokenize(s string) []string {
	fields := strings.Fields(s)
	tokens := make([]string, 0, len(fields))

	for _, f := range fields {
		if len(f) <= 2 {
			continue
		}
		if isNumeric(f) {
			continue
		}
		tokens = append(tokens, f)
	}

	return tokens
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// extractDates scans three date shapes: MM/DD/YYYY, YYYY-MM-DD, and
// "<month abbrev> DD, YYYY". Unparseable hits are discarded.
func extractDates(s string) []time.Time {
	var dates []time.Time

	for _, m := range reSlashDate.FindAllStringSubmatch(s, -1) {
		t, err := time.Parse("1/2/2006", m[1]+"/"+m[2]+"/"+m[3])
		if err == nil {
			dates = append(dates, t)
		}
	}

	for _, m := range reISODate.FindAllStringSubmatch(s, -1) {
		t, err := time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+m[3])
		if err == nil {
			dates = append(dates, t)
		}
	}

	for _, m := range reMonthDate.FindAllStringSubmatch(s, -1) {
		t, err := time.Parse("Jan 2 2006", m[1]+" "+m[2]+" "+m[3])
		if err == nil {
			dates = append(dates, t)
		}
	}

	return dates
}
