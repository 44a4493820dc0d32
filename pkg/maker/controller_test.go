package maker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantmill/quoter/pkg/ledger"
	"github.com/quantmill/quoter/pkg/metrics"
	"github.com/quantmill/quoter/pkg/models"
	"github.com/quantmill/quoter/pkg/strategy"
	"github.com/quantmill/quoter/pkg/venue"
)

// fakeVenue scripts submit outcomes and records calls.
type fakeVenue struct {
	mu         sync.Mutex
	submits    []models.OrderSide
	cancels    int
	fillNext   bool
	failNext   bool
	rejectNext bool
}

func (f *fakeVenue) SubmitQuote(_ context.Context, side models.OrderSide, price, size float64) (venue.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, side)

	if f.failNext {
		return venue.SubmitResult{}, errors.New("venue unavailable")
	}
	if f.rejectNext {
		return venue.SubmitResult{Status: venue.StatusRejected}, nil
	}
	if f.fillNext {
		return venue.SubmitResult{
			Status: venue.StatusFilled,
			Fill:   &models.Fill{Side: side, Price: price, Size: size, Timestamp: time.Now()},
		}, nil
	}
	return venue.SubmitResult{Status: venue.StatusPending}, nil
}

func (f *fakeVenue) CancelAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func (f *fakeVenue) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func (f *fakeVenue) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

// captureSink records emitted samples and event counts.
type captureSink struct {
	mu            sync.Mutex
	samples       []metrics.Sample
	fills         int
	degradedTicks int
	feedErrors    int
	submitErrors  int
}

func (c *captureSink) Observe(s metrics.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, s)
}
func (c *captureSink) FillRecorded(string) { c.mu.Lock(); c.fills++; c.mu.Unlock() }
func (c *captureSink) DegradedTick()       { c.mu.Lock(); c.degradedTicks++; c.mu.Unlock() }
func (c *captureSink) FeedError()          { c.mu.Lock(); c.feedErrors++; c.mu.Unlock() }
func (c *captureSink) SubmitError()        { c.mu.Lock(); c.submitErrors++; c.mu.Unlock() }

func (c *captureSink) sampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testParams() strategy.Parameters {
	return strategy.Parameters{
		Symbol:           "btcusdt",
		Sigma:            0.3,
		Gamma:            0.1,
		K:                1.5,
		C:                1.0,
		HorizonDays:      1.0,
		MaxInventory:     100,
		OrderSize:        0.01,
		MinSpreadPct:     0.001,
		InitialCash:      10000,
		InitialInventory: 0,
		TickInterval:     5 * time.Millisecond,
	}
}

type fixture struct {
	controller *Controller
	book       *models.OrderBook
	ledger     *ledger.Ledger
	venue      *fakeVenue
	sink       *captureSink
	updates    chan struct{}
	feedErrors chan error
}

func newFixture(t *testing.T, params strategy.Parameters) *fixture {
	t.Helper()

	book := models.NewOrderBook(params.Symbol)
	lgr := ledger.New(params.InitialCash, params.InitialInventory)
	fv := &fakeVenue{}
	sink := &captureSink{}
	updates := make(chan struct{}, 1)
	feedErrors := make(chan error, 4)

	controller, err := New(params, book, lgr, fv, sink, updates, feedErrors, quietLogger())
	require.NoError(t, err)

	return &fixture{
		controller: controller,
		book:       book,
		ledger:     lgr,
		venue:      fv,
		sink:       sink,
		updates:    updates,
		feedErrors: feedErrors,
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond, msg)
}

func TestNewRejectsInvalidParameters(t *testing.T) {
	params := testParams()
	params.Sigma = -1

	_, err := New(params, models.NewOrderBook("x"), ledger.New(0, 0), &fakeVenue{}, &captureSink{}, nil, nil, quietLogger())
	assert.Error(t, err)
}

func TestControllerIdleUntilTwoSidedBook(t *testing.T) {
	f := newFixture(t, testParams())
	assert.Equal(t, StateIdle, f.controller.State())

	go f.controller.Run(context.Background())
	defer func() {
		f.controller.Stop()
		<-f.controller.Done()
	}()

	// Ticks with an empty book keep the controller idle and submit nothing.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateIdle, f.controller.State())
	assert.Equal(t, 0, f.venue.submitCount())

	f.book.Update(
		[]models.BookLevel{{Price: 99.5, Size: 1}},
		[]models.BookLevel{{Price: 100.5, Size: 1}},
	)
	f.updates <- struct{}{}

	eventually(t, func() bool { return f.controller.State() == StateActive }, "controller should activate")
	eventually(t, func() bool { return f.venue.submitCount() >= 2 }, "both quote sides should be submitted")
}

func TestControllerAppliesSimulatedFills(t *testing.T) {
	f := newFixture(t, testParams())
	f.venue.fillNext = true

	f.book.Update(
		[]models.BookLevel{{Price: 99.5, Size: 1}},
		[]models.BookLevel{{Price: 100.5, Size: 1}},
	)

	go f.controller.Run(context.Background())
	defer func() {
		f.controller.Stop()
		<-f.controller.Done()
	}()

	eventually(t, func() bool { return len(f.ledger.Trades()) >= 2 }, "fills should reach the ledger")

	// Buy and sell at the same tick net out close to flat.
	trades := f.ledger.Trades()
	var buys, sells int
	for _, rec := range trades {
		if rec.Side == models.OrderSideBuy {
			buys++
		} else {
			sells++
		}
	}
	assert.Greater(t, buys, 0)
	assert.Greater(t, sells, 0)
}

func TestControllerSkipsTickWithoutMarket(t *testing.T) {
	f := newFixture(t, testParams())

	go f.controller.Run(context.Background())
	defer func() {
		f.controller.Stop()
		<-f.controller.Done()
	}()

	// Activate, then empty the book: subsequent ticks are degraded.
	f.book.Update(
		[]models.BookLevel{{Price: 99.5, Size: 1}},
		[]models.BookLevel{{Price: 100.5, Size: 1}},
	)
	f.updates <- struct{}{}
	eventually(t, func() bool { return f.controller.State() == StateActive }, "controller should activate")

	f.book.Update(
		[]models.BookLevel{{Price: 99.5, Size: 0}},
		nil,
	)
	eventually(t, func() bool {
		f.sink.mu.Lock()
		defer f.sink.mu.Unlock()
		return f.sink.degradedTicks > 0
	}, "empty book should produce degraded ticks")
}

func TestControllerSurvivesVenueFailures(t *testing.T) {
	f := newFixture(t, testParams())
	f.venue.failNext = true

	f.book.Update(
		[]models.BookLevel{{Price: 99.5, Size: 1}},
		[]models.BookLevel{{Price: 100.5, Size: 1}},
	)

	go f.controller.Run(context.Background())
	defer func() {
		f.controller.Stop()
		<-f.controller.Done()
	}()

	eventually(t, func() bool {
		f.sink.mu.Lock()
		defer f.sink.mu.Unlock()
		return f.sink.submitErrors > 2
	}, "submit errors should be counted")

	// The loop keeps quoting and the ledger stays untouched.
	assert.Equal(t, StateActive, f.controller.State())
	assert.Empty(t, f.ledger.Trades())
}

func TestControllerCountsFeedErrors(t *testing.T) {
	f := newFixture(t, testParams())

	go f.controller.Run(context.Background())
	defer func() {
		f.controller.Stop()
		<-f.controller.Done()
	}()

	f.feedErrors <- errors.New("stream reset")
	f.feedErrors <- errors.New("stream reset")

	eventually(t, func() bool {
		f.sink.mu.Lock()
		defer f.sink.mu.Unlock()
		return f.sink.feedErrors == 2
	}, "feed errors should be surfaced as health metrics")
}

func TestControllerShutdownSequence(t *testing.T) {
	f := newFixture(t, testParams())

	f.book.Update(
		[]models.BookLevel{{Price: 99.5, Size: 1}},
		[]models.BookLevel{{Price: 100.5, Size: 1}},
	)

	go f.controller.Run(context.Background())
	eventually(t, func() bool { return f.controller.State() == StateActive }, "controller should activate")

	f.controller.Stop()
	<-f.controller.Done()

	assert.Equal(t, StateStopped, f.controller.State())
	assert.Equal(t, 1, f.venue.cancelCount())
	assert.Equal(t, 0.0, f.book.MidPrice())

	quote := f.controller.Quote()
	assert.False(t, quote.HasBid())
	assert.False(t, quote.HasAsk())

	// Stop is idempotent.
	f.controller.Stop()
	assert.Equal(t, StateStopped, f.controller.State())
}

func TestControllerContextCancelStops(t *testing.T) {
	f := newFixture(t, testParams())
	ctx, cancel := context.WithCancel(context.Background())

	go f.controller.Run(ctx)
	cancel()
	<-f.controller.Done()

	assert.Equal(t, StateStopped, f.controller.State())
}

func TestControllerEmitsSamples(t *testing.T) {
	f := newFixture(t, testParams())

	f.book.Update(
		[]models.BookLevel{{Price: 99.5, Size: 1}},
		[]models.BookLevel{{Price: 100.5, Size: 1}},
	)

	go f.controller.Run(context.Background())
	defer func() {
		f.controller.Stop()
		<-f.controller.Done()
	}()

	eventually(t, func() bool { return f.sink.sampleCount() > 0 }, "samples should be emitted")

	f.sink.mu.Lock()
	sample := f.sink.samples[0]
	f.sink.mu.Unlock()

	assert.Equal(t, 100.0, sample.MidPrice)
	assert.Equal(t, 10000.0, sample.Cash)
	assert.InDelta(t, 10000.0, sample.MarkToMarket, 1e-9)
	assert.Greater(t, sample.BidQuote, 0.0)
	assert.Greater(t, sample.AskQuote, sample.BidQuote)

	history := f.controller.QuoteHistory()
	require.NotEmpty(t, history)
	assert.Equal(t, 100.0, history[0].MidPrice)
}

func TestControllerSuppressedSideNotSubmitted(t *testing.T) {
	params := testParams()
	params.InitialInventory = 90 // past the bid suppression threshold
	f := newFixture(t, params)

	f.book.Update(
		[]models.BookLevel{{Price: 99.5, Size: 1}},
		[]models.BookLevel{{Price: 100.5, Size: 1}},
	)

	go f.controller.Run(context.Background())
	defer func() {
		f.controller.Stop()
		<-f.controller.Done()
	}()

	eventually(t, func() bool { return f.venue.submitCount() >= 3 }, "ask side should keep quoting")

	f.venue.mu.Lock()
	defer f.venue.mu.Unlock()
	for _, side := range f.venue.submits {
		assert.Equal(t, models.OrderSideSell, side, "suppressed bid must never reach the venue")
	}
}
