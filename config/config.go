package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppConfig          AppConfig          `json:"app"`
	BinanceConfig      BinanceConfig      `json:"binance"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	TradingConfig      TradingConfig      `json:"trading"`
	StrategyConfig     StrategyConfig     `json:"strategy"`
	ConsensusConfig    ConsensusConfig    `json:"consensus"`
	MonitorConfig      MonitorConfig      `json:"monitor"`
	AIConfig           AIConfig           `json:"ai"`
	NotificationConfig NotificationConfig `json:"notification"`
	ServerConfig       ServerConfig       `json:"server"`
}

type AppConfig struct {
	Name        string `json:"name"`
	Environment string `json:"environment"`
	LogLevel    string `json:"log_level"` // debug, info, warn, error
	LogJSON     bool   `json:"log_json"`
}

type BinanceConfig struct {
	BaseURL string `json:"base_url"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type TradingConfig struct {
	Symbol       string  `json:"symbol"`
	Timeframe    string  `json:"timeframe"`     // timeframe used by the live trade poller
	PollSeconds  int     `json:"poll_seconds"`  // seconds between open-trade evaluations
	CandlesLimit int     `json:"candles_limit"` // candles fetched per analysis window
	TakerFeeRate float64 `json:"taker_fee_rate"`
}

// StrategyConfig holds the confirmation-rule parameters for the strategy engine.
type StrategyConfig struct {
	MAFast          int     `json:"ma_fast"`
	MASlow          int     `json:"ma_slow"`
	RSIPeriod       int     `json:"rsi_period"`
	RSIMin          float64 `json:"rsi_min"`
	RSIMax          float64 `json:"rsi_max"`
	ATRMultiplierSL float64 `json:"atr_multiplier_sl"`
	RiskReward      float64 `json:"risk_reward"`
}

// ConsensusConfig controls the multi-timeframe consensus pass.
type ConsensusConfig struct {
	FetchDelay time.Duration `json:"fetch_delay"` // pause between per-timeframe kline fetches
}

type MonitorConfig struct {
	Interval      time.Duration `json:"interval"`       // cadence of the monitoring pass
	MinConfidence float64       `json:"min_confidence"` // consensus confidence required to alert
}

type AIConfig struct {
	Enabled          bool    `json:"enabled"`
	Provider         string  `json:"provider"` // claude, openai, deepseek
	APIKey           string  `json:"api_key"`
	Model            string  `json:"model"`
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float64 `json:"temperature"`
	QualityThreshold float64 `json:"quality_threshold"` // minimum quality_score to open
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	AllowedOrigins string `json:"allowed_origins"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; explicit environment variables
// take precedence over it.
func Load() (*Config, error) {
	// Missing .env is fine, the environment may be fully populated already.
	_ = godotenv.Load()

	cfg := &Config{
		AppConfig: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "crypto-signal-bot"),
			Environment: getEnvOrDefault("ENVIRONMENT", "development"),
			LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
			LogJSON:     getEnvOrDefault("LOG_JSON", "false") == "true",
		},
		BinanceConfig: BinanceConfig{
			BaseURL: getEnvOrDefault("BINANCE_BASE_URL", "https://api.binance.com"),
		},
		DatabaseConfig: DatabaseConfig{
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:     getEnvIntOrDefault("POSTGRES_PORT", 5432),
			User:     getEnvOrDefault("POSTGRES_USER", "signalbot"),
			Password: getEnvOrDefault("POSTGRES_PASSWORD", ""),
			Database: getEnvOrDefault("POSTGRES_DB", "signalbot"),
			SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		},
		RedisConfig: RedisConfig{
			Enabled:  getEnvOrDefault("REDIS_ENABLED", "false") == "true",
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getEnvIntOrDefault("REDIS_DB", 0),
		},
		TradingConfig: TradingConfig{
			Symbol:       getEnvOrDefault("SYMBOL", "BTCUSDT"),
			Timeframe:    getEnvOrDefault("TIMEFRAME", "15m"),
			PollSeconds:  getEnvIntOrDefault("POLL_SECONDS", 30),
			CandlesLimit: getEnvIntOrDefault("CANDLES_LIMIT", 300),
			TakerFeeRate: getEnvFloatOrDefault("BINANCE_TAKER_FEE", 0.001),
		},
		StrategyConfig: StrategyConfig{
			MAFast:          getEnvIntOrDefault("MA_FAST", 20),
			MASlow:          getEnvIntOrDefault("MA_SLOW", 50),
			RSIPeriod:       getEnvIntOrDefault("RSI_PERIOD", 14),
			RSIMin:          getEnvFloatOrDefault("RSI_MIN", 45),
			RSIMax:          getEnvFloatOrDefault("RSI_MAX", 70),
			ATRMultiplierSL: getEnvFloatOrDefault("ATR_MULTIPLIER_SL", 1.5),
			RiskReward:      getEnvFloatOrDefault("RISK_REWARD", 2.0),
		},
		ConsensusConfig: ConsensusConfig{
			FetchDelay: time.Duration(getEnvIntOrDefault("CONSENSUS_FETCH_DELAY_MS", 300)) * time.Millisecond,
		},
		MonitorConfig: MonitorConfig{
			Interval:      time.Duration(getEnvIntOrDefault("MONITOR_INTERVAL_MINUTES", 15)) * time.Minute,
			MinConfidence: getEnvFloatOrDefault("MONITOR_MIN_CONFIDENCE", 50),
		},
		AIConfig: AIConfig{
			Enabled:          getEnvOrDefault("AI_ENABLED", "false") == "true",
			Provider:         getEnvOrDefault("AI_PROVIDER", "claude"),
			APIKey:           getEnvOrDefault("AI_API_KEY", ""),
			Model:            getEnvOrDefault("AI_MODEL", ""),
			MaxTokens:        getEnvIntOrDefault("AI_MAX_TOKENS", 1024),
			Temperature:      getEnvFloatOrDefault("AI_TEMPERATURE", 0.2),
			QualityThreshold: getEnvFloatOrDefault("AI_QUALITY_THRESHOLD", 75),
		},
		NotificationConfig: NotificationConfig{
			Enabled: getEnvOrDefault("NOTIFICATIONS_ENABLED", "true") == "true",
			Telegram: TelegramConfig{
				Enabled:  getEnvOrDefault("TELEGRAM_ENABLED", "false") == "true",
				BotToken: getEnvOrDefault("TELEGRAM_BOT_TOKEN", ""),
				ChatID:   getEnvOrDefault("TELEGRAM_CHAT_ID", ""),
			},
		},
		ServerConfig: ServerConfig{
			Host:           getEnvOrDefault("WEB_HOST", "0.0.0.0"),
			Port:           getEnvIntOrDefault("WEB_PORT", 8088),
			AllowedOrigins: getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.StrategyConfig.MAFast <= 0 || c.StrategyConfig.MASlow <= 0 {
		return fmt.Errorf("invalid moving average periods: fast=%d slow=%d", c.StrategyConfig.MAFast, c.StrategyConfig.MASlow)
	}
	if c.StrategyConfig.RSIMin < 0 || c.StrategyConfig.RSIMax > 100 || c.StrategyConfig.RSIMin >= c.StrategyConfig.RSIMax {
		return fmt.Errorf("invalid RSI range: min=%.1f max=%.1f", c.StrategyConfig.RSIMin, c.StrategyConfig.RSIMax)
	}
	if c.TradingConfig.PollSeconds <= 0 {
		return fmt.Errorf("POLL_SECONDS must be positive, got %d", c.TradingConfig.PollSeconds)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
