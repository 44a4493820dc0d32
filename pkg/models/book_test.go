package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderBookEmpty(t *testing.T) {
	book := NewOrderBook("BTCUSDT")

	bid, ask := book.BestBidAsk()
	assert.Equal(t, 0.0, bid)
	assert.Equal(t, 0.0, ask)
	assert.Equal(t, 0.0, book.MidPrice())
}

func TestOrderBookOneSided(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.Update([]BookLevel{{Price: 100, Size: 1}}, nil)

	bid, ask := book.BestBidAsk()
	assert.Equal(t, 0.0, bid)
	assert.Equal(t, 0.0, ask)
	assert.Equal(t, 0.0, book.MidPrice())
}

func TestOrderBookBestAndMid(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.Update(
		[]BookLevel{{Price: 99, Size: 2}, {Price: 100, Size: 1}, {Price: 98, Size: 5}},
		[]BookLevel{{Price: 101, Size: 1}, {Price: 102, Size: 3}},
	)

	bid, ask := book.BestBidAsk()
	assert.Equal(t, 100.0, bid)
	assert.Equal(t, 101.0, ask)
	assert.Equal(t, 100.5, book.MidPrice())
}

func TestOrderBookUpdateIdempotent(t *testing.T) {
	bids := []BookLevel{{Price: 100, Size: 1}, {Price: 99, Size: 2}}
	asks := []BookLevel{{Price: 101, Size: 1}}

	book := NewOrderBook("BTCUSDT")
	book.Update(bids, asks)
	bid1, ask1 := book.BestBidAsk()

	book.Update(bids, asks)
	bid2, ask2 := book.BestBidAsk()

	assert.Equal(t, bid1, bid2)
	assert.Equal(t, ask1, ask2)
}

func TestOrderBookZeroSizeRemovesLevel(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.Update(
		[]BookLevel{{Price: 100, Size: 1}, {Price: 99, Size: 2}},
		[]BookLevel{{Price: 101, Size: 1}},
	)

	book.Update([]BookLevel{{Price: 100, Size: 0}}, nil)

	bid, ask := book.BestBidAsk()
	assert.Equal(t, 99.0, bid)
	assert.Equal(t, 101.0, ask)
}

func TestOrderBookLastUpdateTime(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	assert.True(t, book.LastUpdateTime().IsZero())

	book.Update([]BookLevel{{Price: 100, Size: 1}}, nil)
	assert.False(t, book.LastUpdateTime().IsZero())
}

func TestOrderBookClear(t *testing.T) {
	book := NewOrderBook("BTCUSDT")
	book.Update([]BookLevel{{Price: 100, Size: 1}}, []BookLevel{{Price: 101, Size: 1}})

	book.Clear()
	assert.Equal(t, 0.0, book.MidPrice())
}
