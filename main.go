package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"crypto-signal-bot/config"
	"crypto-signal-bot/internal/ai/llm"
	"crypto-signal-bot/internal/analysis"
	"crypto-signal-bot/internal/api"
	"crypto-signal-bot/internal/binance"
	"crypto-signal-bot/internal/database"
	"crypto-signal-bot/internal/monitor"
	"crypto-signal-bot/internal/notification"
	"crypto-signal-bot/internal/strategy"
	"crypto-signal-bot/internal/trade"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg)
	logger.Info().
		Str("environment", cfg.AppConfig.Environment).
		Str("symbol", cfg.TradingConfig.Symbol).
		Msg("starting crypto signal bot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("database migration failed")
	}
	repo := database.NewRepository(db)

	market := binance.NewClient(cfg.BinanceConfig.BaseURL)

	engine := strategy.NewEngine(strategy.Params{
		MAFast:          cfg.StrategyConfig.MAFast,
		MASlow:          cfg.StrategyConfig.MASlow,
		RSIPeriod:       cfg.StrategyConfig.RSIPeriod,
		RSIMin:          cfg.StrategyConfig.RSIMin,
		RSIMax:          cfg.StrategyConfig.RSIMax,
		ATRMultiplierSL: cfg.StrategyConfig.ATRMultiplierSL,
		RiskReward:      cfg.StrategyConfig.RiskReward,
	})

	analyzer := analysis.NewAnalyzer(market, engine, cfg.ConsensusConfig.FetchDelay, logger)

	var notifyManager *notification.Manager
	if cfg.NotificationConfig.Enabled {
		var notifiers []notification.Notifier
		if cfg.NotificationConfig.Telegram.Enabled {
			notifiers = append(notifiers, notification.NewTelegramNotifier(
				cfg.NotificationConfig.Telegram.BotToken,
				cfg.NotificationConfig.Telegram.ChatID,
			))
			logger.Info().Msg("telegram notifications enabled")
		}
		if len(notifiers) > 0 {
			notifyManager = notification.NewManager(logger, notifiers...)
		}
	}

	var validator *llm.Validator
	if cfg.AIConfig.Enabled && cfg.AIConfig.APIKey != "" {
		client := llm.NewClient(&llm.ClientConfig{
			Provider:    llm.Provider(cfg.AIConfig.Provider),
			APIKey:      cfg.AIConfig.APIKey,
			Model:       cfg.AIConfig.Model,
			MaxTokens:   cfg.AIConfig.MaxTokens,
			Temperature: cfg.AIConfig.Temperature,
			Timeout:     30 * time.Second,
		})
		validator = llm.NewValidator(client, cfg.AIConfig.QualityThreshold, logger)
		logger.Info().Str("provider", cfg.AIConfig.Provider).Msg("AI signal validation enabled")
	}

	var alertState monitor.AlertState = monitor.NewMemoryAlertState()
	if cfg.RedisConfig.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, falling back to in-memory alert state")
		} else {
			alertState = monitor.NewRedisAlertState(redisClient, logger)
			logger.Info().Str("addr", cfg.RedisConfig.Addr).Msg("redis alert state enabled")
			defer redisClient.Close()
		}
	}

	var monitorValidator monitor.SignalValidator
	if validator != nil {
		monitorValidator = validator
	}
	var monitorAlerter monitor.Alerter
	if notifyManager != nil {
		monitorAlerter = notifyManager
	}

	signalMonitor := monitor.New(analyzer, alertState, monitorValidator, monitorAlerter, repo, market, monitor.Options{
		Symbol:        cfg.TradingConfig.Symbol,
		FeeRate:       cfg.TradingConfig.TakerFeeRate,
		MinConfidence: cfg.MonitorConfig.MinConfidence,
		Interval:      cfg.MonitorConfig.Interval,
	}, logger)

	var closeNotifier trade.CloseNotifier
	if notifyManager != nil {
		closeNotifier = notifyManager
	}
	tradeManager := trade.NewManager(repo, market, closeNotifier,
		cfg.TradingConfig.Timeframe,
		time.Duration(cfg.TradingConfig.PollSeconds)*time.Second,
		logger)

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		Environment:    cfg.AppConfig.Environment,
	}, api.Deps{
		Market:        market,
		Engine:        engine,
		Analyzer:      analyzer,
		Repo:          repo,
		Validator:     validator,
		Notifications: notifyManager,
		Symbol:        cfg.TradingConfig.Symbol,
		Timeframe:     cfg.TradingConfig.Timeframe,
		CandlesLimit:  cfg.TradingConfig.CandlesLimit,
		FeeRate:       cfg.TradingConfig.TakerFeeRate,
	}, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		signalMonitor.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		tradeManager.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server exited")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	wg.Wait()
	logger.Info().Msg("crypto signal bot stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.AppConfig.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.AppConfig.LogJSON {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Str("app", cfg.AppConfig.Name).Logger()
}
