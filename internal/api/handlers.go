package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"crypto-signal-bot/internal/ai/llm"
	"crypto-signal-bot/internal/analysis"
	"crypto-signal-bot/internal/binance"
	"crypto-signal-bot/internal/database"
	"crypto-signal-bot/internal/strategy"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSimpleSignal evaluates a single timeframe on demand. A firing
// signal is announced and recorded like a monitor-discovered one.
func (s *Server) handleSimpleSignal(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", s.deps.Symbol)
	timeframe := c.DefaultQuery("timeframe", s.deps.Timeframe)

	if err := binance.ValidateInterval(timeframe); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	klines, err := s.deps.Market.GetKlines(symbol, timeframe, s.deps.CandlesLimit)
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("kline fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch market data"})
		return
	}

	sig := s.deps.Engine.ComputeSignal(klines)

	if sig.Type != strategy.SignalNone {
		ctx := c.Request.Context()

		if s.deps.Notifications != nil && s.deps.Notifications.Enabled() {
			if err := s.deps.Notifications.SendSignalAlert(ctx, symbol, timeframe, sig); err != nil {
				s.logger.Warn().Err(err).Msg("signal alert delivery failed")
			}
		}

		if s.deps.Repo != nil {
			trade := &database.Trade{
				Symbol:        symbol,
				Timeframe:     timeframe,
				Side:          string(sig.Type),
				EntryPrice:    sig.Entry,
				StopLoss:      sig.StopLoss,
				TakeProfit:    sig.TakeProfit,
				FeeRate:       s.deps.FeeRate,
				StrategyName:  "simple_breakout",
				Confirmations: sig.Reason,
			}
			if err := s.deps.Repo.CreateTrade(ctx, trade); err != nil {
				s.logger.Error().Err(err).Msg("failed to persist trade")
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"timeframe": timeframe,
		"signal":    sig,
	})
}

func (s *Server) handleMultiTimeframeSignal(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", s.deps.Symbol)

	result, err := s.deps.Analyzer.Analyze(c.Request.Context(), symbol)
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("consensus analysis failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to run multi-timeframe analysis"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListTrades(c *gin.Context) {
	status := c.Query("status")
	if status != "" && status != database.TradeStatusOpen && status != database.TradeStatusClosed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be open or closed"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = parsed
	}

	trades, err := s.deps.Repo.ListTrades(c.Request.Context(), status, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("trade listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list trades"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": trades,
		"count":  len(trades),
	})
}

func (s *Server) handleGetTrade(c *gin.Context) {
	trade, err := s.deps.Repo.GetTradeByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrTradeNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "trade not found"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("trade lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch trade"})
		return
	}

	c.JSON(http.StatusOK, trade)
}

// handleValidateSignal runs the AI review over a caller-supplied consensus
// result, mainly for tuning prompts and thresholds.
func (s *Server) handleValidateSignal(c *gin.Context) {
	if s.deps.Validator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI validation is not configured"})
		return
	}

	var result analysis.ConsensusResult
	if err := c.ShouldBindJSON(&result); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid consensus payload: " + err.Error()})
		return
	}
	if result.Symbol == "" || result.Signal == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and signal are required"})
		return
	}

	var winRate *float64
	if s.deps.Repo != nil {
		rate, err := s.deps.Repo.WinRate(c.Request.Context())
		if err != nil {
			s.logger.Warn().Err(err).Msg("win rate lookup failed")
		} else {
			winRate = rate
		}
	}

	marketContext := ""
	if s.deps.Market != nil {
		timeframe := s.deps.Timeframe
		if result.Setup != nil {
			timeframe = result.Setup.Timeframe
		}
		klines, err := s.deps.Market.GetKlines(result.Symbol, timeframe, 50)
		if err != nil {
			s.logger.Warn().Err(err).Msg("market context fetch failed")
		} else {
			marketContext = llm.BuildMarketContext(klines)
		}
	}

	verdict := s.deps.Validator.ValidateSignal(c.Request.Context(), &result, marketContext, winRate)
	c.JSON(http.StatusOK, gin.H{
		"verdict":     verdict,
		"should_open": s.deps.Validator.ShouldOpen(verdict),
	})
}
