package maker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantmill/quoter/pkg/ledger"
	"github.com/quantmill/quoter/pkg/metrics"
	"github.com/quantmill/quoter/pkg/models"
	"github.com/quantmill/quoter/pkg/strategy"
	"github.com/quantmill/quoter/pkg/venue"
)

type State string

const (
	StateIdle         State = "idle"
	StateActive       State = "active"
	StateShuttingDown State = "shutting_down"
	StateStopped      State = "stopped"
)

const quoteHistoryCap = 100

// Controller runs the quoting loop: refresh mid-price, compute risk spreads,
// apply constraints, publish quotes, book fills, emit metrics. One tick runs
// to completion before the next begins; book updates arriving faster than
// ticks coalesce into the latest book state. A stopped controller cannot be
// restarted; construct a new one.
type Controller struct {
	params      strategy.Parameters
	book        *models.OrderBook
	risk        *strategy.RiskModel
	constraints *strategy.ConstraintEngine
	ledger      *ledger.Ledger
	venue       venue.Venue
	sink        metrics.Sink
	logger      *logrus.Logger

	updates    <-chan struct{}
	feedErrors <-chan error

	mu        sync.RWMutex
	state     State
	quote     models.QuoteState
	history   []models.QuoteSample
	startTime time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// New validates the strategy parameters eagerly: a controller never enters
// the active state with a parameter set the formulas cannot consume.
func New(
	params strategy.Parameters,
	book *models.OrderBook,
	lgr *ledger.Ledger,
	v venue.Venue,
	sink metrics.Sink,
	updates <-chan struct{},
	feedErrors <-chan error,
	logger *logrus.Logger,
) (*Controller, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy parameters: %w", err)
	}
	return &Controller{
		params:      params,
		book:        book,
		risk:        strategy.NewRiskModel(params),
		constraints: strategy.NewConstraintEngine(params),
		ledger:      lgr,
		venue:       v,
		sink:        sink,
		logger:      logger,
		updates:     updates,
		feedErrors:  feedErrors,
		state:       StateIdle,
		quote:       models.NoQuote(),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Run drives the tick loop until Stop is called or ctx is cancelled. The
// stop check sits at the top of the loop: a tick in flight always completes,
// so the ledger is never observed mid-fill.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.doneCh)

	c.mu.Lock()
	c.startTime = time.Now()
	c.mu.Unlock()

	c.logger.WithField("symbol", c.params.Symbol).Info("Quoting loop started")

	ticker := time.NewTicker(c.params.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-c.stopCh:
			c.shutdown()
			return
		case err := <-c.feedErrors:
			c.sink.FeedError()
			c.logger.WithError(err).Warn("Feed reported ingestion failure")
		case <-c.updates:
			c.tick(ctx)
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// Stop requests shutdown. Safe to call more than once; honored between
// ticks, never mid-computation.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Done closes once the controller has reached the stopped state.
func (c *Controller) Done() <-chan struct{} { return c.doneCh }

func (c *Controller) tick(ctx context.Context) {
	mid := c.book.MidPrice()
	if mid == 0 {
		// No two-sided market: a routine condition, not an error. Quotes are
		// left unchanged and the tick is counted as degraded.
		if c.State() == StateActive {
			c.sink.DegradedTick()
		}
		return
	}

	if c.State() == StateIdle {
		c.setState(StateActive)
		c.logger.WithField("mid_price", mid).Info("First two-sided book, quoting active")
	}

	inventory := c.ledger.Inventory()
	remaining := strategy.RemainingDays(c.startTime, c.params.HorizonDays, time.Now())

	bidSpread := c.risk.OptimalBidSpread(inventory, remaining, c.params.Sigma)
	askSpread := c.risk.OptimalAskSpread(inventory, remaining, c.params.Sigma)
	quote := c.constraints.Apply(mid, bidSpread, askSpread, inventory)

	c.mu.Lock()
	c.quote = quote
	c.mu.Unlock()

	if quote.HasBid() {
		c.publish(ctx, models.OrderSideBuy, quote.BidPrice, mid)
	}
	if quote.HasAsk() {
		c.publish(ctx, models.OrderSideSell, quote.AskPrice, mid)
	}

	mtm := c.ledger.MarkToMarket(mid)
	cash, inventoryAfter := c.ledger.Snapshot()

	c.sink.Observe(metrics.Sample{
		MidPrice:     mid,
		Inventory:    inventoryAfter,
		Cash:         cash,
		MarkToMarket: mtm,
		BidQuote:     quote.BidPrice,
		AskQuote:     quote.AskPrice,
	})
	c.recordSample(models.QuoteSample{
		Timestamp:    time.Now(),
		MidPrice:     mid,
		BidPrice:     quote.BidPrice,
		AskPrice:     quote.AskPrice,
		Inventory:    inventoryAfter,
		MarkToMarket: mtm,
	})
}

// publish submits one quote side and books any resulting fill. Venue failures
// are recovered locally: the quote is simply not filled this tick.
func (c *Controller) publish(ctx context.Context, side models.OrderSide, price, mid float64) {
	result, err := c.venue.SubmitQuote(ctx, side, price, c.params.OrderSize)
	if err != nil {
		c.sink.SubmitError()
		c.logger.WithError(err).WithField("side", side).Warn("Quote submission failed")
		return
	}

	switch result.Status {
	case venue.StatusFilled:
		if result.Fill != nil {
			rec := c.ledger.ApplyFill(result.Fill.Side, result.Fill.Price, result.Fill.Size, mid)
			c.sink.FillRecorded(string(result.Fill.Side))
			c.logger.WithFields(logrus.Fields{
				"side":      rec.Side,
				"price":     rec.Price,
				"size":      rec.Size,
				"inventory": rec.InventoryAfter,
				"cash":      rec.CashAfter,
			}).Info("Fill applied")
		}
	case venue.StatusRejected:
		c.sink.SubmitError()
	}
}

func (c *Controller) shutdown() {
	c.setState(StateShuttingDown)
	c.logger.Info("Withdrawing quotes")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.venue.CancelAll(ctx); err != nil {
		// Best-effort: the ledger already accounts for the position whether
		// or not the cancel lands.
		c.logger.WithError(err).Warn("Cancel-all failed during shutdown")
	}

	c.mu.Lock()
	c.quote = models.NoQuote()
	c.mu.Unlock()
	c.book.Clear()

	c.setState(StateStopped)
	c.logger.Info("Quoting loop stopped")
}

func (c *Controller) recordSample(s models.QuoteSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, s)
	if len(c.history) > quoteHistoryCap {
		c.history = c.history[len(c.history)-quoteHistoryCap:]
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Quote returns the current resting quote state.
func (c *Controller) Quote() models.QuoteState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quote
}

// QuoteHistory returns a copy of the bounded quote sample ring, oldest first.
func (c *Controller) QuoteHistory() []models.QuoteSample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.QuoteSample, len(c.history))
	copy(out, c.history)
	return out
}

// Params exposes the immutable strategy parameters.
func (c *Controller) Params() strategy.Parameters { return c.params }
