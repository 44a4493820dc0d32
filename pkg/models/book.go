package models

import (
	"sync"
	"time"
)

// BookLevel is a single price level delta as delivered by the market data feed.
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook tracks the visible depth for one symbol. The feed goroutine writes
// level deltas while the quoting loop reads best prices, so all access goes
// through the internal RWMutex. A level with size <= 0 removes that price.
type OrderBook struct {
	Symbol string

	mu         sync.RWMutex
	bids       map[float64]float64
	asks       map[float64]float64
	lastUpdate time.Time
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		bids:   make(map[float64]float64),
		asks:   make(map[float64]float64),
	}
}

// Update merges level deltas into the book. Levels come from an authoritative
// feed, so no monotonicity validation is performed. Re-applying the same deltas
// is idempotent.
func (b *OrderBook) Update(bids, asks []BookLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, lvl := range bids {
		if lvl.Size > 0 {
			b.bids[lvl.Price] = lvl.Size
		} else {
			delete(b.bids, lvl.Price)
		}
	}
	for _, lvl := range asks {
		if lvl.Size > 0 {
			b.asks[lvl.Price] = lvl.Size
		} else {
			delete(b.asks, lvl.Price)
		}
	}
	b.lastUpdate = time.Now()
}

// BestBidAsk returns the top of book, or (0, 0) when either side is empty.
// An empty side is a routine market condition, not an error.
func (b *OrderBook) BestBidAsk() (float64, float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestBidAskLocked()
}

func (b *OrderBook) bestBidAskLocked() (float64, float64) {
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return 0, 0
	}

	var bestBid float64
	for price := range b.bids {
		if price > bestBid {
			bestBid = price
		}
	}

	bestAsk := 0.0
	for price := range b.asks {
		if bestAsk == 0 || price < bestAsk {
			bestAsk = price
		}
	}

	return bestBid, bestAsk
}

// MidPrice returns the midpoint of the best bid and ask, or 0 when the book
// is one-sided or empty.
func (b *OrderBook) MidPrice() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bid, ask := b.bestBidAskLocked()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// LastUpdateTime reports when the book was last mutated, for staleness checks.
func (b *OrderBook) LastUpdateTime() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// Depth returns a copy of both sides for API consumers.
func (b *OrderBook) Depth() (bids, asks []BookLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids = make([]BookLevel, 0, len(b.bids))
	for price, size := range b.bids {
		bids = append(bids, BookLevel{Price: price, Size: size})
	}
	asks = make([]BookLevel, 0, len(b.asks))
	for price, size := range b.asks {
		asks = append(asks, BookLevel{Price: price, Size: size})
	}
	return bids, asks
}

// Clear empties both sides. Called on shutdown only.
func (b *OrderBook) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = make(map[float64]float64)
	b.asks = make(map[float64]float64)
	b.lastUpdate = time.Now()
}
