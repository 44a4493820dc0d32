package strategy

import (
	"fmt"
	"time"
)

// Parameters is the immutable configuration for one quoting session. It is
// constructed externally (config file, flags, environment) and passed fully
// formed into the controller; nothing mutates it after start.
type Parameters struct {
	Symbol string

	// Sigma is the mid-price volatility over the quoting window.
	Sigma float64
	// Gamma is the risk-aversion coefficient.
	Gamma float64
	// K is the order-book liquidity decay parameter.
	K float64
	// C is the base arrival intensity of counterparty orders.
	C float64
	// HorizonDays is the quoting time horizon T, in days.
	HorizonDays float64

	MaxInventory float64
	OrderSize    float64
	MinSpreadPct float64

	InitialCash      float64
	InitialInventory float64

	// TickInterval paces the quoting loop when book updates are sparse.
	TickInterval time.Duration
}

// Validate rejects parameter sets the quoting formulas cannot safely consume.
// The controller refuses to start on any error here.
func (p Parameters) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("symbol must be set")
	}
	if p.Sigma <= 0 {
		return fmt.Errorf("sigma must be positive, got %v", p.Sigma)
	}
	if p.Gamma <= 0 {
		return fmt.Errorf("gamma must be positive, got %v", p.Gamma)
	}
	if p.K <= 0 {
		return fmt.Errorf("k must be positive, got %v", p.K)
	}
	if p.C < 0 {
		return fmt.Errorf("c must be non-negative, got %v", p.C)
	}
	if p.HorizonDays <= 0 {
		return fmt.Errorf("horizon must be positive, got %v", p.HorizonDays)
	}
	if p.MaxInventory <= 0 {
		return fmt.Errorf("max inventory must be positive, got %v", p.MaxInventory)
	}
	if p.OrderSize <= 0 {
		return fmt.Errorf("order size must be positive, got %v", p.OrderSize)
	}
	if p.MinSpreadPct <= 0 {
		return fmt.Errorf("min spread pct must be positive, got %v", p.MinSpreadPct)
	}
	if p.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", p.TickInterval)
	}
	return nil
}
