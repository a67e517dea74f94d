package monitor

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/ai/llm"
	"crypto-signal-bot/internal/analysis"
	"crypto-signal-bot/internal/binance"
	"crypto-signal-bot/internal/database"
	"crypto-signal-bot/internal/strategy"
)

// Dedup thresholds: a repeat alert in the same direction goes out only after
// the re-alert window, or when the setup strengthened meaningfully.
const (
	realertAfter      = 4 * time.Hour
	confidenceJumpMin = 15.0
	priceMovePctMin   = 1.0
)

// marketContextCandles is how much recent history feeds the AI prompt's
// market context.
const marketContextCandles = 50

// ConsensusSource produces a multi-timeframe consensus for a symbol.
type ConsensusSource interface {
	Analyze(ctx context.Context, symbol string) (*analysis.ConsensusResult, error)
}

// MarketData supplies recent candles for the AI prompt's market context.
type MarketData interface {
	GetKlines(symbol, interval string, limit int) ([]binance.Kline, error)
}

// SignalValidator is the AI quality gate.
type SignalValidator interface {
	ValidateSignal(ctx context.Context, result *analysis.ConsensusResult, marketContext string, winRate *float64) *llm.ValidationResult
	ShouldOpen(verdict *llm.ValidationResult) bool
}

// Alerter delivers consensus alerts.
type Alerter interface {
	SendConsensusAlert(ctx context.Context, result *analysis.ConsensusResult, verdict string) error
}

// TradeRecorder persists alerted signals as paper trades and reports the
// historical win rate for the AI prompt.
type TradeRecorder interface {
	CreateTrade(ctx context.Context, trade *database.Trade) error
	WinRate(ctx context.Context) (*float64, error)
}

// Monitor periodically runs the consensus analysis and turns qualifying
// signals into alerts and tracked trades. The validator, alerter and
// recorder are all optional: a nil validator means no AI gate, a nil
// alerter or recorder just skips that output.
type Monitor struct {
	source        ConsensusSource
	state         AlertState
	validator     SignalValidator
	alerter       Alerter
	trades        TradeRecorder
	market        MarketData
	symbol        string
	feeRate       float64
	minConfidence float64
	interval      time.Duration
	now           func() time.Time
	logger        zerolog.Logger
}

type Options struct {
	Symbol        string
	FeeRate       float64
	MinConfidence float64
	Interval      time.Duration
}

func New(source ConsensusSource, state AlertState, validator SignalValidator, alerter Alerter, trades TradeRecorder, market MarketData, opts Options, logger zerolog.Logger) *Monitor {
	return &Monitor{
		source:        source,
		state:         state,
		validator:     validator,
		alerter:       alerter,
		trades:        trades,
		market:        market,
		symbol:        opts.Symbol,
		feeRate:       opts.FeeRate,
		minConfidence: opts.MinConfidence,
		interval:      opts.Interval,
		now:           time.Now,
		logger:        logger.With().Str("component", "monitor").Logger(),
	}
}

// Run executes monitoring passes on a fixed cadence until ctx is cancelled.
// The first pass runs immediately.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info().Dur("interval", m.interval).Str("symbol", m.symbol).Msg("signal monitor started")

	if err := m.RunPass(ctx); err != nil {
		m.logger.Error().Err(err).Msg("monitoring pass failed")
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("signal monitor stopped")
			return
		case <-ticker.C:
			if err := m.RunPass(ctx); err != nil {
				m.logger.Error().Err(err).Msg("monitoring pass failed")
			}
		}
	}
}

// RunPass executes one monitoring pass: consensus, confidence gate, dedup,
// AI review, then alert and trade persistence. Alerting and persistence are
// independent best-effort steps so one failing output cannot mute the other.
func (m *Monitor) RunPass(ctx context.Context) error {
	passLog := m.logger.With().Str("pass_id", uuid.NewString()[:8]).Logger()

	result, err := m.source.Analyze(ctx, m.symbol)
	if err != nil {
		return err
	}

	if result.Signal == strategy.SignalNone {
		passLog.Debug().Msg("no signal")
		// Forget the previous alert so the next real signal always fires.
		if err := m.state.Reset(ctx, m.symbol); err != nil {
			passLog.Warn().Err(err).Msg("failed to reset alert state")
		}
		return nil
	}

	// A signal below the confidence floor is skipped but the dedup state is
	// kept: a brief confidence dip must not re-arm alerting for an
	// unchanged signal.
	if result.Confidence < m.minConfidence {
		passLog.Debug().
			Str("signal", string(result.Signal)).
			Float64("confidence", result.Confidence).
			Msg("signal below confidence floor")
		return nil
	}

	last, err := m.state.Last(ctx, m.symbol)
	if err != nil {
		passLog.Warn().Err(err).Msg("failed to read alert state, treating signal as new")
		last = nil
	}

	price := referencePrice(result)
	if !m.shouldAlert(last, result, price) {
		passLog.Info().
			Str("signal", string(result.Signal)).
			Float64("confidence", result.Confidence).
			Msg("signal suppressed as duplicate")
		return nil
	}

	verdictText := ""
	var verdict *llm.ValidationResult
	if m.validator != nil {
		var winRate *float64
		if m.trades != nil {
			winRate, err = m.trades.WinRate(ctx)
			if err != nil {
				passLog.Warn().Err(err).Msg("failed to compute win rate for AI prompt")
				winRate = nil
			}
		}
		verdict = m.validator.ValidateSignal(ctx, result, m.marketContext(result, passLog), winRate)
		if !m.validator.ShouldOpen(verdict) {
			passLog.Info().
				Float64("quality_score", verdict.QualityScore).
				Str("recommendation", verdict.Recommendation).
				Msg("signal rejected by AI review")
			return nil
		}
		verdictText = verdict.Reasoning
	}

	if m.alerter != nil {
		if err := m.alerter.SendConsensusAlert(ctx, result, verdictText); err != nil {
			passLog.Warn().Err(err).Msg("consensus alert delivery failed")
		}
	}

	if m.trades != nil && result.Setup != nil {
		if err := m.trades.CreateTrade(ctx, m.buildTrade(result, verdict)); err != nil {
			passLog.Error().Err(err).Msg("failed to persist trade")
		}
	}

	if err := m.state.Record(ctx, m.symbol, LastAlert{
		Signal:     result.Signal,
		Price:      price,
		Confidence: result.Confidence,
		SentAt:     m.now(),
	}); err != nil {
		passLog.Warn().Err(err).Msg("failed to record alert state")
	}

	passLog.Info().
		Str("signal", string(result.Signal)).
		Float64("confidence", result.Confidence).
		Msg("alert sent")
	return nil
}

// marketContext fetches recent candles at the setup's timeframe and renders
// them for the AI prompt. Fetch failures degrade to an empty context.
func (m *Monitor) marketContext(result *analysis.ConsensusResult, passLog zerolog.Logger) string {
	if m.market == nil {
		return ""
	}
	timeframe := analysis.ConsensusTimeframes[0]
	if result.Setup != nil {
		timeframe = result.Setup.Timeframe
	}
	klines, err := m.market.GetKlines(m.symbol, timeframe, marketContextCandles)
	if err != nil {
		passLog.Warn().Err(err).Msg("market context fetch failed")
		return ""
	}
	return llm.BuildMarketContext(klines)
}

// shouldAlert decides whether the signal is new enough to announce again.
func (m *Monitor) shouldAlert(last *LastAlert, result *analysis.ConsensusResult, price float64) bool {
	if last == nil {
		return true
	}
	if last.Signal != result.Signal {
		return true
	}
	if m.now().Sub(last.SentAt) > realertAfter {
		return true
	}

	confidenceJump := result.Confidence - last.Confidence
	priceMovePct := 0.0
	if last.Price != 0 {
		priceMovePct = math.Abs(price-last.Price) / last.Price * 100
	}
	return confidenceJump >= confidenceJumpMin && priceMovePct > priceMovePctMin
}

func (m *Monitor) buildTrade(result *analysis.ConsensusResult, verdict *llm.ValidationResult) *database.Trade {
	trade := &database.Trade{
		Symbol:       result.Symbol,
		Timeframe:    result.Setup.Timeframe,
		Side:         string(result.Signal),
		EntryPrice:   result.Setup.Entry,
		StopLoss:     result.Setup.StopLoss,
		TakeProfit:   result.Setup.TakeProfit,
		FeeRate:      m.feeRate,
		StrategyName: "multi_timeframe_consensus",
		Confirmations: map[string]interface{}{
			"confidence":     result.Confidence,
			"weighted_score": result.WeightedScore,
			"long_votes":     result.LongVotes,
			"short_votes":    result.ShortVotes,
			"neutral_votes":  result.NeutralVotes,
			"recommendation": result.Recommendation,
		},
	}
	if verdict != nil {
		trade.AINote = &verdict.Reasoning
		trade.AIQualityScore = &verdict.QualityScore
		trade.AIRecommendation = &verdict.Recommendation
	}
	return trade
}

// referencePrice picks the price the dedup comparison tracks: the setup
// entry when present, otherwise the lowest timeframe's last price.
func referencePrice(result *analysis.ConsensusResult) float64 {
	if result.Setup != nil {
		return result.Setup.Entry
	}
	if len(result.Timeframes) > 0 {
		return result.Timeframes[0].Price
	}
	return 0
}
