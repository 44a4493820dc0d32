package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quantmill/quoter/api"
	"github.com/quantmill/quoter/internal/config"
	"github.com/quantmill/quoter/pkg/binance"
	"github.com/quantmill/quoter/pkg/ledger"
	"github.com/quantmill/quoter/pkg/maker"
	"github.com/quantmill/quoter/pkg/metrics"
	"github.com/quantmill/quoter/pkg/models"
	"github.com/quantmill/quoter/pkg/venue"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quoter",
		Short: "Avellaneda-Stoikov market-making quote engine",
		Long:  `A market maker that quotes a two-sided market from the Avellaneda-Stoikov optimal spread formula, with inventory throttling and a simulated or live execution venue`,
		Run:   runQuoter,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runQuoter(cmd *cobra.Command, args []string) {
	// Initialize logger
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Local credentials, if present
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	// Set log level
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	params := cfg.StrategyParameters()
	book := models.NewOrderBook(params.Symbol)
	positions := ledger.New(params.InitialCash, params.InitialInventory)

	feed := binance.NewFeed(cfg.Exchange.WebSocketURL, params.Symbol, book, cfg.ReconnectDelay(), logger)

	var quoteVenue venue.Venue
	switch cfg.Exchange.Mode {
	case "live":
		quoteVenue = binance.NewGateway(
			cfg.Exchange.RESTURL,
			cfg.Exchange.APIKey,
			cfg.Exchange.APISecret,
			params.Symbol,
			cfg.Exchange.OrdersPerSecond,
			logger,
		)
		logger.Info("Using live order gateway")
	default:
		quoteVenue = venue.NewSimulator(
			params.C,
			params.K,
			params.TickInterval,
			book,
			rand.NewSource(time.Now().UnixNano()),
			logger,
		)
		logger.Info("Using simulated venue (paper mode)")
	}

	registry := prometheus.NewRegistry()
	sink := metrics.NewPrometheusSink(registry, params.Symbol)

	controller, err := maker.New(params, book, positions, quoteVenue, sink, feed.Updates(), feed.Errors(), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to construct controller")
	}

	go feed.Run(ctx)
	go controller.Run(ctx)

	// Start API server
	apiServer := api.NewServer(controller, positions, feed, book, registry, logger, fmt.Sprintf("%d", cfg.Server.Port), jwtSecret(cfg))
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Quoter is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")

	// Graceful shutdown: stop quoting first, then tear down the feed.
	controller.Stop()
	<-controller.Done()
	cancel()

	logger.Info("Quoter stopped")
}

func jwtSecret(cfg *config.Config) string {
	if cfg.Server.AuthEnabled {
		return cfg.Server.JWTSecret
	}
	return ""
}
