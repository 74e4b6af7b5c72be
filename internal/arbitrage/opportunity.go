package arbitrage

import (
	"time"

	"github.com/google/uuid"

	"github.com/mselser95/crossvenue-arb/pkg/types"
)

// Status is the lifecycle state of an opportunity.
type Status string

const (
	StatusDetected  Status = "detected"
	StatusExecuting Status = "executing"
	StatusExecuted  Status = "executed"
	StatusExpired   Status = "expired"
)

// Opportunity is a detected pricing inefficiency for one canonical market at
// one instant. Buying the chosen YES/NO pair across both venues costs
// CombinedCost per contract and settles at 1.0.
type Opportunity struct {
	ID          string `json:"id"`
	CanonicalID string `json:"canonical_id"`

	// Prices captured at detection.
	VenueAYesPrice float64 `json:"venue_a_yes_price"`
	VenueANoPrice  float64 `json:"venue_a_no_price"`
	VenueBYesPrice float64 `json:"venue_b_yes_price"`
	VenueBNoPrice  float64 `json:"venue_b_no_price"`

	// Chosen leg: the side bought on venue A; the opposite side is bought
	// on venue B.
	VenueASide types.Side `json:"venue_a_side"`
	VenueBSide types.Side `json:"venue_b_side"`

	// Venue market ids at detection, carried so the coordinator does not
	// depend on the mapping index still holding the pair.
	VenueAMarketID string `json:"venue_a_market_id"`
	VenueBMarketID string `json:"venue_b_market_id"`

	CombinedCost    float64 `json:"combined_cost"`
	ProfitPotential float64 `json:"profit_potential"`
	LiquidityA      float64 `json:"liquidity_a"`
	LiquidityB      float64 `json:"liquidity_b"`
	RecommendedSize float64 `json:"recommended_size"`
	EstimatedFees   float64 `json:"estimated_fees"`
	GrossProfit     float64 `json:"gross_profit"`
	NetProfit       float64 `json:"net_profit"`

	Status     Status     `json:"status"`
	DetectedAt time.Time  `json:"detected_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// PriceFor returns the detection-time price of the chosen side on a venue.
func (o *Opportunity) PriceFor(venue types.Venue) float64 {
	if venue == types.VenueA {
		if o.VenueASide == types.SideYes {
			return o.VenueAYesPrice
		}
		return o.VenueANoPrice
	}
	if o.VenueBSide == types.SideYes {
		return o.VenueBYesPrice
	}
	return o.VenueBNoPrice
}

// SideFor returns the chosen side on a venue.
func (o *Opportunity) SideFor(venue types.Venue) types.Side {
	if venue == types.VenueA {
		return o.VenueASide
	}
	return o.VenueBSide
}

// MarketIDFor returns the venue market id for a venue.
func (o *Opportunity) MarketIDFor(venue types.Venue) string {
	if venue == types.VenueA {
		return o.VenueAMarketID
	}
	return o.VenueBMarketID
}

// Active reports whether the opportunity can still be executed.
func (o *Opportunity) Active(now time.Time) bool {
	if o.Status != StatusDetected && o.Status != StatusExecuting {
		return false
	}
	if o.ExpiresAt != nil && now.After(*o.ExpiresAt) {
		return false
	}
	return true
}

func newOpportunityID() string {
	return uuid.New().String()
}
