package models

import (
	"time"
)

// MarketTrade is a trade printed on the public tape, as delivered by the
// trade stream. Kept in a bounded recent-trades buffer for observability.
type MarketTrade struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

func (t MarketTrade) Notional() float64 {
	return t.Price * t.Size
}
