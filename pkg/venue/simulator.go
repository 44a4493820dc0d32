package venue

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantmill/quoter/pkg/models"
)

const secondsPerDay = 86400.0

// Simulator stands in for a real execution venue when no exchange is
// connected. Counterparty arrivals follow a Poisson process whose intensity
// decays exponentially with the quoted distance from mid:
//
//	lambda = c * exp(-k * spreadFromMid)
//
// scaled to the tick length, with at most one fill per side per tick.
type Simulator struct {
	c            float64
	k            float64
	tickInterval time.Duration
	book         *models.OrderBook
	logger       *logrus.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator builds a paper venue over the given book. src seeds the arrival
// draws; tests pass a fixed-seed source for determinism.
func NewSimulator(c, k float64, tickInterval time.Duration, book *models.OrderBook, src rand.Source, logger *logrus.Logger) *Simulator {
	return &Simulator{
		c:            c,
		k:            k,
		tickInterval: tickInterval,
		book:         book,
		logger:       logger,
		rng:          rand.New(src),
	}
}

// SubmitQuote draws an arrival for the quoted side. A bid is hit by a seller,
// an ask is lifted by a buyer; either way the fill is at our quoted price for
// our quoted size.
func (s *Simulator) SubmitQuote(_ context.Context, side models.OrderSide, price, size float64) (SubmitResult, error) {
	mid := s.book.MidPrice()
	if mid == 0 || price <= 0 || math.IsInf(price, 1) {
		return SubmitResult{Status: StatusRejected}, nil
	}

	var spread float64
	if side == models.OrderSideBuy {
		spread = math.Max(0, mid-price)
	} else {
		spread = math.Max(0, price-mid)
	}

	lambda := s.c * math.Exp(-s.k*spread)
	lambda *= s.tickInterval.Seconds() / secondsPerDay

	s.mu.Lock()
	arrivals := s.poisson(lambda)
	s.mu.Unlock()

	if arrivals == 0 {
		return SubmitResult{Status: StatusPending}, nil
	}

	// At most one fill per side per tick.
	fill := &models.Fill{
		Side:      side,
		Price:     price,
		Size:      size,
		Timestamp: time.Now(),
	}
	s.logger.WithFields(logrus.Fields{
		"side":  side,
		"price": price,
		"size":  size,
	}).Info("Simulated fill")
	return SubmitResult{Status: StatusFilled, Fill: fill}, nil
}

// CancelAll is a no-op: simulated quotes never rest past the tick.
func (s *Simulator) CancelAll(context.Context) error {
	return nil
}

// poisson draws a Poisson-distributed count via Knuth's inversion. The
// intensities here are tiny (tick-scaled), so the loop terminates almost
// always on the first iteration.
func (s *Simulator) poisson(lambda float64) int {
	limit := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= s.rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}
