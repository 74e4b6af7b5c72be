package types

import "time"

// Venue identifies one of the two trading venues the engine connects to.
type Venue string

const (
	VenueA Venue = "A"
	VenueB Venue = "B"
)

// Valid reports whether v is one of the two known venues.
func (v Venue) Valid() bool {
	return v == VenueA || v == VenueB
}

// Other returns the opposite venue.
func (v Venue) Other() Venue {
	if v == VenueA {
		return VenueB
	}
	return VenueA
}

// Side is a binary market outcome.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite returns the complementary outcome.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// VenueMarket is one binary outcome market listed on one venue.
type VenueMarket struct {
	Venue       Venue  `json:"venue"`
	MarketID    string `json:"market_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Confidence buckets a similarity score for human review.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ConfidenceFor maps a similarity score to a confidence bucket.
func ConfidenceFor(score float64) Confidence {
	switch {
	case score >= 0.95:
		return ConfidenceHigh
	case score >= 0.85:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// CanonicalMarket links up to one market per venue under a stable identity.
// At least one venue market id is always present; a venue market id belongs
// to at most one canonical market.
type CanonicalMarket struct {
	CanonicalID     string     `json:"canonical_id"`
	Title           string     `json:"title"`
	VenueAMarketID  string     `json:"venue_a_market_id,omitempty"`
	VenueBMarketID  string     `json:"venue_b_market_id,omitempty"`
	SimilarityScore float64    `json:"similarity_score"`
	Confidence      Confidence `json:"confidence"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// MarketIDFor returns the market id this mapping holds for the given venue.
func (c *CanonicalMarket) MarketIDFor(v Venue) string {
	if v == VenueA {
		return c.VenueAMarketID
	}
	return c.VenueBMarketID
}

// Complete reports whether both venues are linked.
func (c *CanonicalMarket) Complete() bool {
	return c.VenueAMarketID != "" && c.VenueBMarketID != ""
}
