package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/quantmill/quoter/pkg/secrets"
	"github.com/quantmill/quoter/pkg/strategy"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	GCP      GCPConfig      `mapstructure:"gcp"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	AuthEnabled bool   `mapstructure:"auth_enabled"`
	JWTSecret   string `mapstructure:"jwt_secret"`
}

type ExchangeConfig struct {
	// Mode selects the quote venue: "paper" runs the arrival simulator,
	// "live" submits real orders.
	Mode string `mapstructure:"mode"`

	RESTURL      string `mapstructure:"rest_url"`
	WebSocketURL string `mapstructure:"websocket_url"`
	APIKey       string `mapstructure:"api_key"`
	APISecret    string `mapstructure:"api_secret"`

	ReconnectDelaySeconds int     `mapstructure:"reconnect_delay_seconds"`
	OrdersPerSecond       float64 `mapstructure:"orders_per_second"`
}

type StrategyConfig struct {
	Symbol           string  `mapstructure:"symbol"`
	Sigma            float64 `mapstructure:"sigma"`
	Gamma            float64 `mapstructure:"gamma"`
	K                float64 `mapstructure:"k"`
	C                float64 `mapstructure:"c"`
	HorizonDays      float64 `mapstructure:"horizon_days"`
	MaxInventory     float64 `mapstructure:"max_inventory"`
	OrderSize        float64 `mapstructure:"order_size"`
	MinSpreadPct     float64 `mapstructure:"min_spread_pct"`
	InitialCash      float64 `mapstructure:"initial_cash"`
	InitialInventory float64 `mapstructure:"initial_inventory"`
	TickIntervalMS   int     `mapstructure:"tick_interval_ms"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GCPConfig struct {
	ProjectID       string              `mapstructure:"project_id"`
	UseSecrets      bool                `mapstructure:"use_secrets"`
	CredentialsFile string              `mapstructure:"credentials_file"`
	SecretNames     secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/quoter")
	}

	v.SetEnvPrefix("QUOTER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	return &config, nil
}

// StrategyParameters maps the strategy section onto the immutable parameter
// struct the controller consumes. Validation happens at controller
// construction, not here.
func (c *Config) StrategyParameters() strategy.Parameters {
	return strategy.Parameters{
		Symbol:           c.Strategy.Symbol,
		Sigma:            c.Strategy.Sigma,
		Gamma:            c.Strategy.Gamma,
		K:                c.Strategy.K,
		C:                c.Strategy.C,
		HorizonDays:      c.Strategy.HorizonDays,
		MaxInventory:     c.Strategy.MaxInventory,
		OrderSize:        c.Strategy.OrderSize,
		MinSpreadPct:     c.Strategy.MinSpreadPct,
		InitialCash:      c.Strategy.InitialCash,
		InitialInventory: c.Strategy.InitialInventory,
		TickInterval:     time.Duration(c.Strategy.TickIntervalMS) * time.Millisecond,
	}
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Exchange.ReconnectDelaySeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth_enabled", false)
	v.SetDefault("server.jwt_secret", "")

	// Exchange defaults
	v.SetDefault("exchange.mode", "paper")
	v.SetDefault("exchange.rest_url", "https://api.binance.com")
	v.SetDefault("exchange.websocket_url", "wss://stream.binance.com:9443")
	v.SetDefault("exchange.reconnect_delay_seconds", 5)
	v.SetDefault("exchange.orders_per_second", 5.0)

	// Strategy defaults mirror the canonical BTC-USDT parameter set.
	v.SetDefault("strategy.symbol", "btcusdt")
	v.SetDefault("strategy.sigma", 0.3)
	v.SetDefault("strategy.gamma", 0.1)
	v.SetDefault("strategy.k", 1.5)
	v.SetDefault("strategy.c", 1.0)
	v.SetDefault("strategy.horizon_days", 1.0)
	v.SetDefault("strategy.max_inventory", 5.0)
	v.SetDefault("strategy.order_size", 0.01)
	v.SetDefault("strategy.min_spread_pct", 0.001)
	v.SetDefault("strategy.initial_cash", 10000.0)
	v.SetDefault("strategy.initial_inventory", 0.0)
	v.SetDefault("strategy.tick_interval_ms", 100)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// GCP defaults
	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.credentials_file", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.exchange_api_key", secretNames.ExchangeAPIKey)
	v.SetDefault("gcp.secret_names.exchange_api_secret", secretNames.ExchangeAPISecret)
	v.SetDefault("gcp.secret_names.api_auth_token", secretNames.APIAuthToken)
}

func overrideFromEnv(config *Config) {
	if apiKey := os.Getenv("BINANCE_API_KEY"); apiKey != "" {
		config.Exchange.APIKey = apiKey
	}
	if apiSecret := os.Getenv("BINANCE_API_SECRET"); apiSecret != "" {
		config.Exchange.APISecret = apiSecret
	}
	if jwtSecret := os.Getenv("QUOTER_JWT_SECRET"); jwtSecret != "" {
		config.Server.JWTSecret = jwtSecret
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, config.GCP.CredentialsFile, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	// Only load secrets that are not already set
	if config.Exchange.APIKey == "" {
		config.Exchange.APIKey = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.ExchangeAPIKey, "")
	}
	if config.Exchange.APISecret == "" {
		config.Exchange.APISecret = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.ExchangeAPISecret, "")
	}
	if config.Server.JWTSecret == "" {
		config.Server.JWTSecret = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.APIAuthToken, "")
	}

	logger.Info("Successfully loaded secrets from GCP Secret Manager")
	return nil
}

// Validate rejects configuration the process cannot start with. Strategy
// parameter validation is layered on top by the controller.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Exchange.Mode != "paper" && c.Exchange.Mode != "live" {
		return fmt.Errorf("exchange mode must be paper or live, got %q", c.Exchange.Mode)
	}
	if c.Exchange.Mode == "live" && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("live mode requires exchange credentials")
	}
	if c.Server.AuthEnabled && c.Server.JWTSecret == "" {
		return fmt.Errorf("api auth enabled but no jwt secret configured")
	}
	return nil
}
