package ledger

import (
	"sync"
	"time"

	"github.com/quantmill/quoter/pkg/models"
)

// historyCap bounds the rolling mark-to-market history.
const historyCap = 1000

// TradeRecord is the post-fill accounting snapshot appended for every fill.
type TradeRecord struct {
	Timestamp      time.Time        `json:"timestamp"`
	Side           models.OrderSide `json:"side"`
	Price          float64          `json:"price"`
	Size           float64          `json:"size"`
	MidPrice       float64          `json:"mid_price"`
	InventoryAfter float64          `json:"inventory_after"`
	CashAfter      float64          `json:"cash_after"`
}

// Ledger owns cash, inventory and the trade history. ApplyFill is the only
// mutation path for cash and inventory: the two always move together under
// one lock so concurrent readers never observe a half-applied fill.
type Ledger struct {
	mu        sync.RWMutex
	cash      float64
	inventory float64
	trades    []TradeRecord
	pnl       []float64
}

func New(initialCash, initialInventory float64) *Ledger {
	return &Ledger{
		cash:      initialCash,
		inventory: initialInventory,
	}
}

// ApplyFill books one fill: a buy adds inventory and spends cash, a sell
// mirrors. The appended record carries post-fill snapshots of both fields.
func (l *Ledger) ApplyFill(side models.OrderSide, price, size, midPrice float64) TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	if side == models.OrderSideBuy {
		l.inventory += size
		l.cash -= price * size
	} else {
		l.inventory -= size
		l.cash += price * size
	}

	rec := TradeRecord{
		Timestamp:      time.Now(),
		Side:           side,
		Price:          price,
		Size:           size,
		MidPrice:       midPrice,
		InventoryAfter: l.inventory,
		CashAfter:      l.cash,
	}
	l.trades = append(l.trades, rec)
	return rec
}

// MarkToMarket values the book at the given mid-price and records the sample
// into the rolling history.
func (l *Ledger) MarkToMarket(midPrice float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	mtm := l.cash + l.inventory*midPrice
	l.pnl = append(l.pnl, mtm)
	if len(l.pnl) > historyCap {
		l.pnl = l.pnl[len(l.pnl)-historyCap:]
	}
	return mtm
}

// Snapshot returns a consistent cash/inventory pair.
func (l *Ledger) Snapshot() (cash, inventory float64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash, l.inventory
}

func (l *Ledger) Cash() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

func (l *Ledger) Inventory() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inventory
}

// Trades returns a copy of the trade history.
func (l *Ledger) Trades() []TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}

// PnLTrend reports the first and most recent mark-to-market samples. ok is
// false until at least one sample has been recorded.
func (l *Ledger) PnLTrend() (first, last float64, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.pnl) == 0 {
		return 0, 0, false
	}
	return l.pnl[0], l.pnl[len(l.pnl)-1], true
}
