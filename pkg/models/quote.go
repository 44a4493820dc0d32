package models

import (
	"math"
	"time"
)

// NoBid and NoAsk are the sentinel prices for a suppressed quote side.
// A zero bid means "do not buy more"; an infinite ask means "do not sell more".
var (
	NoBid = 0.0
	NoAsk = math.Inf(1)
)

// QuoteState is the pair of resting quote prices produced on each tick.
// It is recomputed every tick and never persisted.
type QuoteState struct {
	BidPrice  float64
	AskPrice  float64
	Timestamp time.Time
}

func (q QuoteState) HasBid() bool {
	return q.BidPrice > 0 && !math.IsInf(q.BidPrice, 1)
}

func (q QuoteState) HasAsk() bool {
	return q.AskPrice > 0 && !math.IsInf(q.AskPrice, 1)
}

// TwoSided reports whether both quote sides are live.
func (q QuoteState) TwoSided() bool {
	return q.HasBid() && q.HasAsk()
}

// NoQuote is the fully suppressed quote state, returned when there is no
// two-sided market to quote against.
func NoQuote() QuoteState {
	return QuoteState{BidPrice: NoBid, AskPrice: NoAsk, Timestamp: time.Now()}
}

// QuoteSample is a point-in-time snapshot of quoting state kept in the
// bounded quote history and served over the API.
type QuoteSample struct {
	Timestamp    time.Time
	MidPrice     float64
	BidPrice     float64
	AskPrice     float64
	Inventory    float64
	MarkToMarket float64
}
