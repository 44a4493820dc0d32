package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantmill/quoter/pkg/models"
)

// Inventory thresholds, as fractions of MaxInventory. Past the suppress
// threshold a side is pulled entirely; between throttle and suppress the
// quote distance from mid widens as inventory builds.
const (
	throttleThreshold = 0.5
	suppressThreshold = 0.8
)

// ConstraintEngine turns raw risk-model spreads into final tradeable quote
// prices: inventory throttling, then the minimum-spread floor, then tick-size
// rounding.
type ConstraintEngine struct {
	maxInventory float64
	minSpreadPct float64
}

func NewConstraintEngine(p Parameters) *ConstraintEngine {
	return &ConstraintEngine{
		maxInventory: p.MaxInventory,
		minSpreadPct: p.MinSpreadPct,
	}
}

// Apply computes the final quote from the mid-price, the raw spread offsets
// and the current inventory. A zero mid short-circuits to a fully suppressed
// quote; callers must check before submitting.
func (e *ConstraintEngine) Apply(mid, bidSpread, askSpread, inventory float64) models.QuoteState {
	if mid == 0 {
		return models.NoQuote()
	}

	bid := mid - bidSpread
	ask := mid + askSpread

	bid = e.throttleBid(mid, bid, inventory)
	ask = e.throttleAsk(mid, ask, inventory)

	// Min-spread floor: recenter symmetrically around mid when the two-sided
	// quote would be tighter than mid * minSpreadPct.
	if q := (models.QuoteState{BidPrice: bid, AskPrice: ask}); q.TwoSided() {
		minSpread := mid * e.minSpreadPct
		if ask-bid < minSpread {
			bid = mid - minSpread/2
			ask = mid + minSpread/2
		}
	}

	decimals := priceDecimals(mid)
	if bid > 0 {
		bid = roundPrice(bid, decimals)
	}
	if (models.QuoteState{BidPrice: bid, AskPrice: ask}).HasAsk() {
		ask = roundPrice(ask, decimals)
	}

	return models.QuoteState{BidPrice: bid, AskPrice: ask, Timestamp: time.Now()}
}

// throttleBid de-aggresses the bid as long inventory builds: the distance from
// mid widens smoothly from the throttle threshold and the bid is pulled
// entirely at the suppress threshold.
func (e *ConstraintEngine) throttleBid(mid, bid, inventory float64) float64 {
	switch {
	case inventory >= e.maxInventory*suppressThreshold:
		return models.NoBid
	case inventory >= e.maxInventory*throttleThreshold:
		factor := (e.maxInventory - inventory) / e.maxInventory
		return mid - (mid-bid)/factor
	default:
		return bid
	}
}

func (e *ConstraintEngine) throttleAsk(mid, ask, inventory float64) float64 {
	switch {
	case inventory <= -e.maxInventory*suppressThreshold:
		return models.NoAsk
	case inventory <= -e.maxInventory*throttleThreshold:
		factor := (e.maxInventory + inventory) / e.maxInventory
		return mid + (ask-mid)/factor
	default:
		return ask
	}
}

// priceDecimals scales quote precision inversely with price magnitude,
// mirroring tick-size conventions across instrument price ranges.
func priceDecimals(mid float64) int32 {
	switch {
	case mid >= 100:
		return 2
	case mid >= 10:
		return 3
	case mid >= 1:
		return 4
	default:
		return 6
	}
}

func roundPrice(price float64, decimals int32) float64 {
	rounded, _ := decimal.NewFromFloat(price).Round(decimals).Float64()
	return rounded
}
