package resolver

import (
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Composite similarity weights. The four terms always sum to 1.0.
const (
	weightLevenshtein = 0.20
	weightJaroWinkler = 0.30
	weightJaccard     = 0.30
	weightDates       = 0.20

	// dateWindow is how far apart two date mentions may be and still count
	// as referring to the same moment.
	dateWindow = 24 * time.Hour
)

// Similarity scores two normalized markets in [0,1]. Symmetric, and 1.0 for
// a market against itself.
func Similarity(a, b NormalizedMarket) float64 {
	lev := strutil.Similarity(a.Normalized, b.Normalized, metrics.NewLevenshtein())
	jw := strutil.Similarity(a.Normalized, b.Normalized, metrics.NewJaroWinkler())
	jac := tokenJaccard(a.Tokens, b.Tokens)
	dates := dateSimilarity(a.Dates, b.Dates)

	score := weightLevenshtein*lev +
		weightJaroWinkler*jw +
		weightJaccard*jac +
		weightDates*dates

	return clamp01(score)
}

// tokenJaccard is set overlap over set union of the token sets. Two empty
// sets are identical.
func tokenJaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]struct{}, len(a))
	for _, tok := range a {
		setA[tok] = struct{}{}
	}

	setB := make(map[string]struct{}, len(b))
	for _, tok := range b {
		setB[tok] = struct{}{}
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// dateSimilarity compares date mentions: 1.0 when neither side has any, 0.5
// when exactly one side has none, 1.0 when any cross pair is within the
// window, 0.0 otherwise.
func dateSimilarity(a, b []time.Time) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.5
	}

	for _, da := range a {
		for _, db := range b {
			diff := da.Sub(db)
			if diff < 0 {
				diff = -diff
			}
			if diff <= dateWindow {
				return 1.0
			}
		}
	}

	return 0.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
