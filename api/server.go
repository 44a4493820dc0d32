package api

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/quantmill/quoter/pkg/binance"
	"github.com/quantmill/quoter/pkg/ledger"
	"github.com/quantmill/quoter/pkg/maker"
	"github.com/quantmill/quoter/pkg/models"
)

// Server exposes the quoter's observability surface: current quotes, ledger
// state, trade history, the market tape and Prometheus metrics.
type Server struct {
	controller *maker.Controller
	ledger     *ledger.Ledger
	feed       *binance.Feed
	book       *models.OrderBook
	registry   *prometheus.Registry
	logger     *logrus.Logger
	port       string
	jwtSecret  string
}

func NewServer(
	controller *maker.Controller,
	lgr *ledger.Ledger,
	feed *binance.Feed,
	book *models.OrderBook,
	registry *prometheus.Registry,
	logger *logrus.Logger,
	port string,
	jwtSecret string,
) *Server {
	return &Server{
		controller: controller,
		ledger:     lgr,
		feed:       feed,
		book:       book,
		registry:   registry,
		logger:     logger,
		port:       port,
		jwtSecret:  jwtSecret,
	}
}

func (s *Server) Start() error {
	s.logger.Infof("Starting API server on port %s", s.port)
	return http.ListenAndServe(":"+s.port, s.routes())
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/quotes", s.handleQuotes)
	mux.HandleFunc("/api/quotes/history", s.handleQuoteHistory)
	mux.HandleFunc("/api/ledger", s.handleLedger)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/trades/market", s.handleMarketTrades)
	mux.HandleFunc("/api/book", s.handleBook)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	var handler http.Handler = mux
	if s.jwtSecret != "" {
		handler = s.authMiddleware(handler)
	}
	return corsMiddleware(handler)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	staleness := time.Duration(0)
	if last := s.bookLastUpdate(); !last.IsZero() {
		staleness = time.Since(last)
	}

	response := map[string]interface{}{
		"status":         "healthy",
		"state":          s.controller.State(),
		"book_staleness": staleness.String(),
		"timestamp":      time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	quote := s.controller.Quote()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"bid_price": quote.BidPrice,
		"ask_price": jsonSafe(quote.AskPrice),
		"has_bid":   quote.HasBid(),
		"has_ask":   quote.HasAsk(),
		"timestamp": quote.Timestamp,
	})
}

func (s *Server) handleQuoteHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	history := s.controller.QuoteHistory()
	out := make([]map[string]interface{}, 0, len(history))
	for _, sample := range history {
		out = append(out, map[string]interface{}{
			"timestamp":      sample.Timestamp,
			"mid_price":      sample.MidPrice,
			"bid_price":      sample.BidPrice,
			"ask_price":      jsonSafe(sample.AskPrice),
			"inventory":      sample.Inventory,
			"mark_to_market": sample.MarkToMarket,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cash, inventory := s.ledger.Snapshot()
	response := map[string]interface{}{
		"cash":      cash,
		"inventory": inventory,
	}
	if first, last, ok := s.ledger.PnLTrend(); ok {
		response["mark_to_market"] = last
		response["pnl_change"] = last - first
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.ledger.Trades())
}

func (s *Server) handleMarketTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	trades := s.feed.RecentTrades()
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	bids, asks := s.book.Depth()
	bestBid, bestAsk := s.book.BestBidAsk()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    s.book.Symbol,
		"best_bid":  bestBid,
		"best_ask":  bestAsk,
		"mid_price": s.book.MidPrice(),
		"bids":      bids,
		"asks":      asks,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *Server) bookLastUpdate() time.Time {
	return s.book.LastUpdateTime()
}

// jsonSafe maps the +Inf suppressed-ask sentinel to 0, which encoding/json
// cannot represent.
func jsonSafe(v float64) float64 {
	if math.IsInf(v, 1) || math.IsNaN(v) {
		return 0
	}
	return v
}
