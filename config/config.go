package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the root configuration for the paper trading bot
type Config struct {
	BotConfig      BotConfig      `json:"bot"`
	MarketConfig   MarketConfig   `json:"market"`
	RiskConfig     RiskConfig     `json:"risk"`
	SignalConfig   SignalConfig   `json:"signal"`
	RulesConfig    RulesConfig    `json:"rules"`
	AIConfig       AIConfig       `json:"ai"`
	StateConfig    StateConfig    `json:"state"`
	TradeLogConfig TradeLogConfig `json:"trade_log"`
	ServerConfig   ServerConfig   `json:"server"`
	AuthConfig     AuthConfig     `json:"auth"`
	VaultConfig    VaultConfig    `json:"vault"`
	RedisConfig    RedisConfig    `json:"redis"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

// BotConfig holds engine-level settings
type BotConfig struct {
	Symbol                  string  `json:"symbol"`
	Timeframe               string  `json:"timeframe"`
	AnalysisIntervalSeconds int     `json:"analysis_interval_seconds"`
	PaperBalance            float64 `json:"paper_balance"` // Starting simulated balance
	FeePercent              float64 `json:"fee_percent"`   // Simulated taker fee per fill
	SignalHistorySize       int     `json:"signal_history_size"`
}

// MarketConfig holds market data source configuration
type MarketConfig struct {
	BaseURL    string `json:"base_url"`
	StreamURL  string `json:"stream_url"`
	KlineLimit int    `json:"kline_limit"`
	MockMode   bool   `json:"mock_mode"` // Use simulated data when the exchange API is unavailable
}

// RiskConfig holds risk management configuration
type RiskConfig struct {
	RiskPercent               float64 `json:"risk_percent"`      // Percentage of balance to risk per trade
	MaxPositionSize           float64 `json:"max_position_size"` // Maximum quantity per position
	DailyLossLimit            float64 `json:"daily_loss_limit"`  // Max realized daily loss before blocking trades
	StopMode                  string  `json:"stop_mode"`         // "percent" or "atr"
	StopLossPercent           float64 `json:"stop_loss_percent"`
	TakeProfitPercent         float64 `json:"take_profit_percent"`
	ATRMultiplierSL           float64 `json:"atr_multiplier_sl"`
	ATRMultiplierTP           float64 `json:"atr_multiplier_tp"`
	PricePrecision            int     `json:"price_precision"` // Decimal places for SL/TP rounding
	UseTrailingStop           bool    `json:"use_trailing_stop"`
	TrailingStopPercent       float64 `json:"trailing_stop_percent"`       // Trailing distance as percent of price
	TrailingATRMultiplier     float64 `json:"trailing_atr_multiplier"`     // ATR-based trailing distance
	TrailingActivationPercent float64 `json:"trailing_activation_percent"` // Profit % to activate trailing stop
}

// SignalConfig holds signal generation configuration
type SignalConfig struct {
	MinConfluence     int      `json:"min_confluence"`
	LongConditions    []string `json:"long_conditions"`  // Ordered condition battery for longs
	ShortConditions   []string `json:"short_conditions"` // Ordered condition battery for shorts
	UseRegimeFilter   bool     `json:"use_regime_filter"`
	ADXTrendThreshold float64  `json:"adx_trend_threshold"`
}

// RulesConfig holds expression rule configuration sources
type RulesConfig struct {
	Enabled        bool   `json:"enabled"`
	StrategyFile   string `json:"strategy_file"`   // Regime thresholds + entry expression
	IndicatorsFile string `json:"indicators_file"` // Indicator definitions (wins on key collision)
	CacheSize      int    `json:"cache_size"`      // Compiled expression LRU capacity
}

// AIConfig holds AI validation configuration
type AIConfig struct {
	Enabled           bool    `json:"enabled"`
	Provider          string  `json:"provider"` // "claude" or "openai"
	APIKey            string  `json:"api_key"`
	Model             string  `json:"model"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	MinConfidence     float64 `json:"min_confidence"`      // Below this the signal is vetoed
	DeepPassThreshold float64 `json:"deep_pass_threshold"` // Upper bound of the ambiguous band that triggers a deep pass
}

// StateConfig holds position recovery configuration
type StateConfig struct {
	Backend      string `json:"backend"`       // "file" or "redis"
	RecoveryFile string `json:"recovery_file"` // Path for the JSON recovery document
}

// TradeLogConfig holds trade log persistence configuration
type TradeLogConfig struct {
	Backend     string `json:"backend"` // "memory" or "postgres"
	DatabaseURL string `json:"database_url"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`  // CORS allowed origins
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	Enabled              bool          `json:"enabled"`
	JWTSecret            string        `json:"jwt_secret"`
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	OperatorUser         string        `json:"operator_user"`
	OperatorPasswordHash string        `json:"operator_password_hash"` // bcrypt hash
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path for the AI API key secret
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// RedisConfig holds Redis configuration for shared position state
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // JSON output instead of console
}

// Load reads config.json if present, then applies environment overrides.
// A .env file in the working directory is loaded first when it exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := loadFromFile(getEnvOrDefault("CONFIG_FILE", "config.json"))
	if err != nil {
		cfg = Default()
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in configuration used when no config file exists.
func Default() *Config {
	return &Config{
		BotConfig: BotConfig{
			Symbol:                  "BTCUSDT",
			Timeframe:               "15m",
			AnalysisIntervalSeconds: 60,
			PaperBalance:            10000,
			FeePercent:              0.1,
			SignalHistorySize:       100,
		},
		MarketConfig: MarketConfig{
			BaseURL:    "https://api.binance.com",
			StreamURL:  "wss://stream.binance.com:9443/ws",
			KlineLimit: 200,
		},
		RiskConfig: RiskConfig{
			RiskPercent:               1.0,
			MaxPositionSize:           100,
			DailyLossLimit:            500,
			StopMode:                  "atr",
			StopLossPercent:           1.0,
			TakeProfitPercent:         2.0,
			ATRMultiplierSL:           1.5,
			ATRMultiplierTP:           2.0,
			PricePrecision:            2,
			UseTrailingStop:           true,
			TrailingStopPercent:       1.0,
			TrailingATRMultiplier:     2.0,
			TrailingActivationPercent: 1.0,
		},
		SignalConfig: SignalConfig{
			MinConfluence: 3,
			LongConditions: []string{
				"ema_alignment_long", "rsi_zone_long", "macd_cross_long",
				"adx_strength", "band_position_long", "volume_confirmation",
			},
			ShortConditions: []string{
				"ema_alignment_short", "rsi_zone_short", "macd_cross_short",
				"adx_strength", "band_position_short", "volume_confirmation",
			},
			UseRegimeFilter:   true,
			ADXTrendThreshold: 25,
		},
		RulesConfig: RulesConfig{
			CacheSize: 128,
		},
		AIConfig: AIConfig{
			Provider:          "claude",
			Model:             "claude-sonnet-4-20250514",
			TimeoutSeconds:    30,
			MinConfidence:     0.6,
			DeepPassThreshold: 0.75,
		},
		StateConfig: StateConfig{
			Backend:      "file",
			RecoveryFile: "position_recovery.json",
		},
		TradeLogConfig: TradeLogConfig{
			Backend: "memory",
		},
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ShutdownTimeout: 10,
		},
		AuthConfig: AuthConfig{
			AccessTokenDuration: 15 * time.Minute,
			OperatorUser:        "operator",
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		LoggingConfig: LoggingConfig{
			Level: "info",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.BotConfig.Symbol = getEnvOrDefault("BOT_SYMBOL", cfg.BotConfig.Symbol)
	cfg.BotConfig.Timeframe = getEnvOrDefault("BOT_TIMEFRAME", cfg.BotConfig.Timeframe)
	cfg.BotConfig.AnalysisIntervalSeconds = getEnvInt("BOT_ANALYSIS_INTERVAL", cfg.BotConfig.AnalysisIntervalSeconds)
	cfg.BotConfig.PaperBalance = getEnvFloat("BOT_PAPER_BALANCE", cfg.BotConfig.PaperBalance)

	cfg.MarketConfig.BaseURL = getEnvOrDefault("MARKET_BASE_URL", cfg.MarketConfig.BaseURL)
	cfg.MarketConfig.StreamURL = getEnvOrDefault("MARKET_STREAM_URL", cfg.MarketConfig.StreamURL)
	cfg.MarketConfig.MockMode = getEnvBool("MARKET_MOCK_MODE", cfg.MarketConfig.MockMode)

	cfg.RiskConfig.RiskPercent = getEnvFloat("RISK_PERCENT", cfg.RiskConfig.RiskPercent)
	cfg.RiskConfig.DailyLossLimit = getEnvFloat("RISK_DAILY_LOSS_LIMIT", cfg.RiskConfig.DailyLossLimit)

	cfg.AIConfig.Enabled = getEnvBool("AI_ENABLED", cfg.AIConfig.Enabled)
	cfg.AIConfig.APIKey = getEnvOrDefault("AI_API_KEY", cfg.AIConfig.APIKey)

	cfg.StateConfig.RecoveryFile = getEnvOrDefault("STATE_RECOVERY_FILE", cfg.StateConfig.RecoveryFile)

	cfg.TradeLogConfig.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.TradeLogConfig.DatabaseURL)
	if cfg.TradeLogConfig.DatabaseURL != "" && cfg.TradeLogConfig.Backend == "" {
		cfg.TradeLogConfig.Backend = "postgres"
	}

	cfg.ServerConfig.Enabled = getEnvBool("SERVER_ENABLED", cfg.ServerConfig.Enabled)
	cfg.ServerConfig.Port = getEnvInt("SERVER_PORT", cfg.ServerConfig.Port)

	cfg.AuthConfig.Enabled = getEnvBool("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.OperatorPasswordHash = getEnvOrDefault("AUTH_OPERATOR_PASSWORD_HASH", cfg.AuthConfig.OperatorPasswordHash)

	cfg.VaultConfig.Enabled = getEnvBool("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)

	cfg.RedisConfig.Enabled = getEnvBool("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.JSONFormat = getEnvBool("LOG_JSON", cfg.LoggingConfig.JSONFormat)
}

// Validate checks configuration invariants at construction time.
func (c *Config) Validate() error {
	if c.BotConfig.AnalysisIntervalSeconds <= 0 {
		return fmt.Errorf("bot.analysis_interval_seconds must be positive, got %d", c.BotConfig.AnalysisIntervalSeconds)
	}
	if c.RiskConfig.RiskPercent <= 0 || c.RiskConfig.RiskPercent > 100 {
		return fmt.Errorf("risk.risk_percent out of range (0, 100]: %.2f", c.RiskConfig.RiskPercent)
	}
	if c.RiskConfig.StopMode != "percent" && c.RiskConfig.StopMode != "atr" {
		return fmt.Errorf("risk.stop_mode must be %q or %q, got %q", "percent", "atr", c.RiskConfig.StopMode)
	}
	if c.RiskConfig.DailyLossLimit < 0 {
		return fmt.Errorf("risk.daily_loss_limit must not be negative: %.2f", c.RiskConfig.DailyLossLimit)
	}
	if c.SignalConfig.MinConfluence < 1 {
		return fmt.Errorf("signal.min_confluence must be at least 1, got %d", c.SignalConfig.MinConfluence)
	}
	if c.AIConfig.MinConfidence < 0 || c.AIConfig.MinConfidence > 1 {
		return fmt.Errorf("ai.min_confidence out of range [0, 1]: %.2f", c.AIConfig.MinConfidence)
	}
	if c.StateConfig.Backend != "file" && c.StateConfig.Backend != "redis" {
		return fmt.Errorf("state.backend must be %q or %q, got %q", "file", "redis", c.StateConfig.Backend)
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}
