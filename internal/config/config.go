package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Symbols  []string `yaml:"symbols"`
	Interval string   `yaml:"interval"`

	// Account and economics
	StartingBalance float64 `yaml:"starting_balance"`
	FeeRate         float64 `yaml:"fee_rate"`
	PositionRiskPct float64 `yaml:"position_risk_pct"`

	// Risk gate
	FixedRiskPct    float64 `yaml:"fixed_risk_pct"`
	MinNotional     float64 `yaml:"min_notional"`
	StopLossPct     float64 `yaml:"stop_loss_pct"`
	TakeProfitPct   float64 `yaml:"take_profit_pct"`
	MinGainPct      float64 `yaml:"min_gain_pct"`
	MaxTradesPerDay int     `yaml:"max_trades_per_day"`
	MaxDrawdownPct  float64 `yaml:"max_drawdown_pct"`

	// Strategies
	ConsensusQuorum      int      `yaml:"consensus_quorum"`
	Strategies           []string `yaml:"strategies"`
	RSIBuyBelow          float64  `yaml:"rsi_buy_below"`
	RSISellAbove         float64  `yaml:"rsi_sell_above"`
	ForecastURL          string   `yaml:"forecast_url"`
	ForecastBuyThreshold float64  `yaml:"forecast_buy_threshold"`

	// Feature window
	WindowSize int `yaml:"window_size"`
	MinRows    int `yaml:"min_rows"`

	// Storage
	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"-"`
	DBName     string `yaml:"db_name"`
	DBSSLMode  string `yaml:"db_sslmode"`

	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`

	TelegramBotToken string `yaml:"-"`
	TelegramChatID   int64  `yaml:"telegram_chat_id"`

	// Ops
	BinanceRESTURL string        `yaml:"binance_rest_url"`
	BinanceWSURL   string        `yaml:"binance_ws_url"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	PnLLogInterval time.Duration `yaml:"pnl_log_interval"`
	RecorderQueue  int           `yaml:"recorder_queue"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	RequestTimeout int           `yaml:"request_timeout"` // seconds
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Symbols:              []string{"BTCUSDT"},
		Interval:             "1m",
		StartingBalance:      50000,
		FeeRate:              0.00075,
		PositionRiskPct:      0.10,
		FixedRiskPct:         1.0,
		MinNotional:          100,
		StopLossPct:          0.05,
		TakeProfitPct:        0.04,
		MinGainPct:           0.0045,
		MaxTradesPerDay:      30,
		MaxDrawdownPct:       0.30,
		ConsensusQuorum:      2,
		Strategies:           []string{"RSI", "EMA Crossover", "MACD", "Bollinger Bands", "ML Strategy"},
		RSIBuyBelow:          40,
		RSISellAbove:         60,
		ForecastBuyThreshold: 0.5,
		WindowSize:           100,
		MinRows:              30,
		DBPort:               "5432",
		DBSSLMode:            "disable",
		RedisPrefix:          "papertrader",
		BinanceRESTURL:       "https://api.binance.com",
		BinanceWSURL:         "wss://stream.binance.com:9443",
		MetricsAddr:          ":9100",
		PnLLogInterval:       time.Minute,
		RecorderQueue:        1024,
		LogLevel:             "info",
		LogFormat:            "console",
		RequestTimeout:       30,
	}
}

// Load initializes configuration from defaults, an optional YAML file and environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Symbols = getEnvListWithDefault("SYMBOLS", c.Symbols)
	c.Interval = getEnvWithDefault("INTERVAL", c.Interval)

	c.StartingBalance = getEnvFloatWithDefault("STARTING_BALANCE", c.StartingBalance)
	c.FeeRate = getEnvFloatWithDefault("FEE_RATE", c.FeeRate)
	c.PositionRiskPct = getEnvFloatWithDefault("POSITION_RISK_PCT", c.PositionRiskPct)

	c.FixedRiskPct = getEnvFloatWithDefault("FIXED_RISK_PCT", c.FixedRiskPct)
	c.MinNotional = getEnvFloatWithDefault("MIN_NOTIONAL", c.MinNotional)
	c.StopLossPct = getEnvFloatWithDefault("STOP_LOSS_PCT", c.StopLossPct)
	c.TakeProfitPct = getEnvFloatWithDefault("TAKE_PROFIT_PCT", c.TakeProfitPct)
	c.MinGainPct = getEnvFloatWithDefault("MIN_GAIN_PCT", c.MinGainPct)
	c.MaxTradesPerDay = getEnvIntWithDefault("MAX_TRADES_PER_DAY", c.MaxTradesPerDay)
	c.MaxDrawdownPct = getEnvFloatWithDefault("MAX_DRAWDOWN_PCT", c.MaxDrawdownPct)

	c.ConsensusQuorum = getEnvIntWithDefault("CONSENSUS_QUORUM", c.ConsensusQuorum)
	c.Strategies = getEnvListWithDefault("STRATEGIES", c.Strategies)
	c.RSIBuyBelow = getEnvFloatWithDefault("RSI_BUY_BELOW", c.RSIBuyBelow)
	c.RSISellAbove = getEnvFloatWithDefault("RSI_SELL_ABOVE", c.RSISellAbove)
	c.ForecastURL = getEnvWithDefault("FORECAST_URL", c.ForecastURL)
	c.ForecastBuyThreshold = getEnvFloatWithDefault("FORECAST_BUY_THRESHOLD", c.ForecastBuyThreshold)

	c.WindowSize = getEnvIntWithDefault("WINDOW_SIZE", c.WindowSize)
	c.MinRows = getEnvIntWithDefault("MIN_ROWS", c.MinRows)

	c.DBHost = getEnvWithDefault("DB_HOST", c.DBHost)
	c.DBPort = getEnvWithDefault("DB_PORT", c.DBPort)
	c.DBUser = getEnvWithDefault("DB_USER", c.DBUser)
	c.DBPassword = getEnvWithDefault("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnvWithDefault("DB_NAME", c.DBName)
	c.DBSSLMode = getEnvWithDefault("DB_SSLMODE", c.DBSSLMode)

	c.RedisAddr = getEnvWithDefault("REDIS_ADDR", c.RedisAddr)
	c.RedisPrefix = getEnvWithDefault("REDIS_PREFIX", c.RedisPrefix)

	c.TelegramBotToken = getEnvWithDefault("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.TelegramChatID = getEnvInt64WithDefault("TELEGRAM_CHAT_ID", c.TelegramChatID)

	c.BinanceRESTURL = getEnvWithDefault("BINANCE_REST_URL", c.BinanceRESTURL)
	c.BinanceWSURL = getEnvWithDefault("BINANCE_WS_URL", c.BinanceWSURL)
	c.MetricsAddr = getEnvWithDefault("METRICS_ADDR", c.MetricsAddr)
	c.PnLLogInterval = getEnvDurationWithDefault("PNL_LOG_INTERVAL", c.PnLLogInterval)
	c.RecorderQueue = getEnvIntWithDefault("RECORDER_QUEUE", c.RecorderQueue)
	c.LogLevel = getEnvWithDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvWithDefault("LOG_FORMAT", c.LogFormat)
	c.RequestTimeout = getEnvIntWithDefault("REQUEST_TIMEOUT", c.RequestTimeout)
}

// normalize brings symbols to the exchange's upper-case form, which keys stored candles, positions
// and risk windows. Blanks and duplicates are dropped.
func (c *Config) normalize() {
	seen := make(map[string]bool, len(c.Symbols))
	symbols := c.Symbols[:0]
	for _, s := range c.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		symbols = append(symbols, s)
	}
	c.Symbols = symbols
}

// Validate rejects configurations the trading core cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("at least one symbol is required"))
	}
	if c.StartingBalance <= 0 {
		errs = append(errs, fmt.Errorf("starting balance must be positive, got %v", c.StartingBalance))
	}
	if c.FeeRate < 0 || c.FeeRate >= 1 {
		errs = append(errs, fmt.Errorf("fee rate must be in [0,1), got %v", c.FeeRate))
	}
	if c.PositionRiskPct <= 0 || c.PositionRiskPct > 1 {
		errs = append(errs, fmt.Errorf("position risk pct must be in (0,1], got %v", c.PositionRiskPct))
	}
	if c.StopLossPct <= 0 || c.TakeProfitPct <= 0 {
		errs = append(errs, errors.New("stop loss and take profit must be positive"))
	}
	if c.MinGainPct < 0 {
		errs = append(errs, fmt.Errorf("min gain pct must not be negative, got %v", c.MinGainPct))
	}
	if c.MaxTradesPerDay <= 0 {
		errs = append(errs, fmt.Errorf("max trades per day must be positive, got %d", c.MaxTradesPerDay))
	}
	if c.MaxDrawdownPct <= 0 {
		errs = append(errs, fmt.Errorf("max drawdown pct must be positive, got %v", c.MaxDrawdownPct))
	}
	if c.ConsensusQuorum <= 0 {
		errs = append(errs, fmt.Errorf("consensus quorum must be positive, got %d", c.ConsensusQuorum))
	}
	if c.MinRows <= 0 || c.WindowSize < c.MinRows {
		errs = append(errs, fmt.Errorf("window size %d must be >= min rows %d > 0", c.WindowSize, c.MinRows))
	}
	return errors.Join(errs...)
}

// DatabaseEnabled reports whether enough settings are present to open PostgreSQL.
func (c *Config) DatabaseEnabled() bool {
	return c.DBHost != "" && c.DBName != ""
}

// TelegramEnabled reports whether trade notifications can be sent.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvListWithDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
