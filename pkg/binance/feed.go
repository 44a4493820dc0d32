package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/quantmill/quoter/pkg/models"
)

const tapeCap = 20

// depthMessage is the diff-depth stream payload. Prices and sizes arrive as
// decimal strings.
type depthMessage struct {
	EventType string     `json:"e"`
	EventTime int64      `json:"E"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

type tradeMessage struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
}

// Feed streams book deltas and the public trade tape for one symbol. Book
// deltas go straight into the shared OrderBook; each applied delta produces a
// notification on Updates so the quoting loop can coalesce. Ingestion
// failures are reported on Errors rather than swallowed, so the controller
// can surface them as a health metric.
type Feed struct {
	baseURL        string
	symbol         string
	book           *models.OrderBook
	logger         *logrus.Logger
	reconnectDelay time.Duration

	updates chan struct{}
	errors  chan error

	tapeMu sync.RWMutex
	tape   []models.MarketTrade
}

func NewFeed(baseURL, symbol string, book *models.OrderBook, reconnectDelay time.Duration, logger *logrus.Logger) *Feed {
	return &Feed{
		baseURL:        baseURL,
		symbol:         strings.ToLower(symbol),
		book:           book,
		logger:         logger,
		reconnectDelay: reconnectDelay,
		updates:        make(chan struct{}, 1),
		errors:         make(chan error, 16),
	}
}

// Updates signals once per applied book delta. Capacity 1: if the loop is
// busy, intermediate signals collapse into one (drop-and-replace).
func (f *Feed) Updates() <-chan struct{} { return f.updates }

// Errors carries ingestion failures to the health metric.
func (f *Feed) Errors() <-chan error { return f.errors }

// Run connects both streams and blocks until ctx is done, reconnecting on
// failure after the configured delay.
func (f *Feed) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		f.runStream(ctx, fmt.Sprintf("%s/ws/%s@depth@100ms", f.baseURL, f.symbol), "depth", f.handleDepth)
	}()
	go func() {
		defer wg.Done()
		f.runStream(ctx, fmt.Sprintf("%s/ws/%s@trade", f.baseURL, f.symbol), "trade", f.handleTrade)
	}()

	wg.Wait()
}

func (f *Feed) runStream(ctx context.Context, url, name string, handler func([]byte) error) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := f.consume(ctx, url, name, handler); err != nil {
			f.reportError(fmt.Errorf("%s stream: %w", name, err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.reconnectDelay):
			f.logger.WithField("stream", name).Info("Reconnecting stream")
		}
	}
}

func (f *Feed) consume(ctx context.Context, url, name string, handler func([]byte) error) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	f.logger.WithFields(logrus.Fields{"stream": name, "url": url}).Info("Stream connected")

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go f.keepAlive(ctx, conn)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := handler(payload); err != nil {
			f.reportError(fmt.Errorf("%s message: %w", name, err))
		}
	}
}

func (f *Feed) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *Feed) handleDepth(payload []byte) error {
	var msg depthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode depth: %w", err)
	}

	bids, err := parseLevels(msg.Bids)
	if err != nil {
		return fmt.Errorf("parse bids: %w", err)
	}
	asks, err := parseLevels(msg.Asks)
	if err != nil {
		return fmt.Errorf("parse asks: %w", err)
	}
	if len(bids) == 0 && len(asks) == 0 {
		return nil
	}

	f.book.Update(bids, asks)

	select {
	case f.updates <- struct{}{}:
	default:
	}
	return nil
}

func (f *Feed) handleTrade(payload []byte) error {
	var msg tradeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode trade: %w", err)
	}

	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil {
		return fmt.Errorf("parse trade price %q: %w", msg.Price, err)
	}
	size, err := strconv.ParseFloat(msg.Quantity, 64)
	if err != nil {
		return fmt.Errorf("parse trade size %q: %w", msg.Quantity, err)
	}

	trade := models.MarketTrade{
		Symbol:    strings.ToUpper(f.symbol),
		Price:     price,
		Size:      size,
		Timestamp: time.UnixMilli(msg.EventTime),
	}

	f.tapeMu.Lock()
	f.tape = append(f.tape, trade)
	if len(f.tape) > tapeCap {
		f.tape = f.tape[len(f.tape)-tapeCap:]
	}
	f.tapeMu.Unlock()

	f.logger.WithFields(logrus.Fields{
		"price":    trade.Price,
		"size":     trade.Size,
		"notional": trade.Notional(),
	}).Debug("Tape trade")
	return nil
}

// RecentTrades returns a copy of the bounded trade tape, newest last.
func (f *Feed) RecentTrades() []models.MarketTrade {
	f.tapeMu.RLock()
	defer f.tapeMu.RUnlock()
	out := make([]models.MarketTrade, len(f.tape))
	copy(out, f.tape)
	return out
}

func (f *Feed) reportError(err error) {
	f.logger.WithError(err).Error("Feed error")
	select {
	case f.errors <- err:
	default:
	}
}

func parseLevels(raw [][]string) ([]models.BookLevel, error) {
	levels := make([]models.BookLevel, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			return nil, fmt.Errorf("malformed level %v", entry)
		}
		price, err := strconv.ParseFloat(entry[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", entry[0], err)
		}
		size, err := strconv.ParseFloat(entry[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse size %q: %w", entry[1], err)
		}
		levels = append(levels, models.BookLevel{Price: price, Size: size})
	}
	return levels, nil
}
