package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/ai/llm"
	"crypto-signal-bot/internal/analysis"
	"crypto-signal-bot/internal/binance"
	"crypto-signal-bot/internal/database"
	"crypto-signal-bot/internal/notification"
	"crypto-signal-bot/internal/strategy"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins string
	Environment    string
}

// Deps are the services the handlers draw on. Validator and Notifications
// may be nil; the affected endpoints degrade accordingly.
type Deps struct {
	Market        *binance.Client
	Engine        *strategy.Engine
	Analyzer      *analysis.Analyzer
	Repo          *database.Repository
	Validator     *llm.Validator
	Notifications *notification.Manager
	Symbol        string
	Timeframe     string
	CandlesLimit  int
	FeeRate       float64
}

// Server is the HTTP API exposing signals and trade history.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	deps       Deps
	logger     zerolog.Logger
}

func NewServer(cfg ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router: router,
		deps:   deps,
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/signals/simple", s.handleSimpleSignal)
		v1.GET("/signals/multi-timeframe", s.handleMultiTimeframeSignal)
		v1.GET("/trades", s.handleListTrades)
		v1.GET("/trades/:id", s.handleGetTrade)
		v1.POST("/ai/validate-signal", s.handleValidateSignal)
	}
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
