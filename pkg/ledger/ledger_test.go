package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantmill/quoter/pkg/models"
)

func TestApplyFillBuySell(t *testing.T) {
	l := New(10000, 0)

	l.ApplyFill(models.OrderSideBuy, 100, 0.01, 100.5)
	l.ApplyFill(models.OrderSideSell, 101, 0.01, 100.5)

	cash, inventory := l.Snapshot()
	assert.InDelta(t, 10000.01, cash, 1e-9)
	assert.InDelta(t, 0, inventory, 1e-9)

	// Flat book: mark-to-market is price-independent.
	assert.InDelta(t, 10000.01, l.MarkToMarket(123.45), 1e-9)
	assert.InDelta(t, 10000.01, l.MarkToMarket(99999), 1e-9)
}

func TestApplyFillRecordsPostFillSnapshots(t *testing.T) {
	l := New(1000, 2)

	rec := l.ApplyFill(models.OrderSideBuy, 50, 1, 50.5)
	assert.Equal(t, models.OrderSideBuy, rec.Side)
	assert.InDelta(t, 3, rec.InventoryAfter, 1e-9)
	assert.InDelta(t, 950, rec.CashAfter, 1e-9)
	assert.InDelta(t, 50.5, rec.MidPrice, 1e-9)

	trades := l.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, rec.Side, trades[0].Side)
	assert.Equal(t, rec.CashAfter, trades[0].CashAfter)
}

func TestLedgerMatchesRecomputedHistory(t *testing.T) {
	l := New(10000, 1)

	fills := []struct {
		side  models.OrderSide
		price float64
		size  float64
	}{
		{models.OrderSideBuy, 100.25, 0.3},
		{models.OrderSideSell, 101.5, 0.1},
		{models.OrderSideBuy, 99.75, 0.7},
		{models.OrderSideSell, 100.0, 0.2},
		{models.OrderSideSell, 102.25, 0.4},
	}
	for _, f := range fills {
		l.ApplyFill(f.side, f.price, f.size, 100)
	}

	// Recompute cash and inventory from the trade history and compare with
	// the incremental totals: no drift allowed.
	cash, inventory := 10000.0, 1.0
	for _, rec := range l.Trades() {
		if rec.Side == models.OrderSideBuy {
			inventory += rec.Size
			cash -= rec.Price * rec.Size
		} else {
			inventory -= rec.Size
			cash += rec.Price * rec.Size
		}
	}

	gotCash, gotInventory := l.Snapshot()
	assert.InDelta(t, cash, gotCash, 1e-9)
	assert.InDelta(t, inventory, gotInventory, 1e-9)
	assert.InDelta(t, cash+inventory*100, l.MarkToMarket(100), 1e-9)
}

func TestApplyFillConcurrentAtomicity(t *testing.T) {
	l := New(0, 0)

	var wg sync.WaitGroup
	const workers = 8
	const fillsPerWorker = 200

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < fillsPerWorker; i++ {
				l.ApplyFill(models.OrderSideBuy, 10, 1, 10)
				l.ApplyFill(models.OrderSideSell, 10, 1, 10)
			}
		}()
	}
	wg.Wait()

	cash, inventory := l.Snapshot()
	assert.InDelta(t, 0, cash, 1e-6)
	assert.InDelta(t, 0, inventory, 1e-6)
	assert.Len(t, l.Trades(), workers*fillsPerWorker*2)

	// Every record must carry a consistent post-fill pair.
	for _, rec := range l.Trades() {
		assert.InDelta(t, rec.CashAfter, -10*rec.InventoryAfter, 1e-6)
	}
}

func TestMarkToMarketHistoryBounded(t *testing.T) {
	l := New(100, 0)
	for i := 0; i < historyCap+50; i++ {
		l.MarkToMarket(float64(i))
	}

	first, last, ok := l.PnLTrend()
	require.True(t, ok)
	assert.Equal(t, 100.0, first) // flat book: every sample is cash
	assert.Equal(t, 100.0, last)
}

func TestPnLTrendEmpty(t *testing.T) {
	l := New(100, 0)
	_, _, ok := l.PnLTrend()
	assert.False(t, ok)
}
