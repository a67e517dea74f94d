package analysis

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/binance"
	"crypto-signal-bot/internal/strategy"
)

// MarketDataSource is the slice of the exchange client the analyzer needs.
type MarketDataSource interface {
	GetKlines(symbol, interval string, limit int) ([]binance.Kline, error)
}

// Timeframes analyzed per consensus pass, lowest to highest. Higher
// timeframes carry more weight because their signals are slower to flip.
var (
	ConsensusTimeframes = []string{"15m", "1h", "4h", "1d"}

	timeframeWeights = map[string]float64{
		"15m": 1,
		"1h":  2,
		"4h":  3,
		"1d":  4,
	}
)

const (
	klinesPerTimeframe = 300

	// Weighted-score thresholds used when the vote count alone is not
	// decisive.
	scoreLongThreshold  = 30.0
	scoreShortThreshold = -30.0

	minAgreeingVotes = 2
)

// TimeframeSignal is one timeframe's contribution to the consensus.
type TimeframeSignal struct {
	Timeframe  string                 `json:"timeframe"`
	Signal     strategy.SignalType    `json:"signal"`
	Price      float64                `json:"price"`
	Confidence float64                `json:"confidence"`
	Weight     float64                `json:"weight"`
	Entry      *float64               `json:"entry,omitempty"`
	StopLoss   *float64               `json:"stop_loss,omitempty"`
	TakeProfit *float64               `json:"take_profit,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// TradingSetup is the actionable entry taken from the strongest agreeing
// timeframe.
type TradingSetup struct {
	Timeframe  string  `json:"timeframe"`
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	RiskReward float64 `json:"risk_reward"`
}

// ConsensusResult aggregates all timeframe votes into a single decision.
type ConsensusResult struct {
	Symbol         string              `json:"symbol"`
	Signal         strategy.SignalType `json:"signal"`
	Confidence     float64             `json:"confidence"`
	WeightedScore  float64             `json:"weighted_score"`
	LongVotes      int                 `json:"long_votes"`
	ShortVotes     int                 `json:"short_votes"`
	NeutralVotes   int                 `json:"neutral_votes"`
	Recommendation string              `json:"recommendation"`
	Timeframes     []TimeframeSignal   `json:"timeframes"`
	Setup          *TradingSetup       `json:"setup,omitempty"`
	AnalyzedAt     time.Time           `json:"analyzed_at"`
}

// Analyzer runs the strategy engine across all consensus timeframes and
// merges the votes.
type Analyzer struct {
	source     MarketDataSource
	engine     *strategy.Engine
	fetchDelay time.Duration
	logger     zerolog.Logger
}

func NewAnalyzer(source MarketDataSource, engine *strategy.Engine, fetchDelay time.Duration, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		source:     source,
		engine:     engine,
		fetchDelay: fetchDelay,
		logger:     logger.With().Str("component", "consensus").Logger(),
	}
}

// Analyze evaluates symbol across every consensus timeframe sequentially,
// pausing fetchDelay between exchange calls to stay friendly to rate limits.
// A failed timeframe degrades to a neutral vote instead of failing the pass.
func (a *Analyzer) Analyze(ctx context.Context, symbol string) (*ConsensusResult, error) {
	legs := make([]TimeframeSignal, 0, len(ConsensusTimeframes))

	for i, tf := range ConsensusTimeframes {
		if i > 0 {
			if err := a.sleep(ctx); err != nil {
				return nil, err
			}
		}
		legs = append(legs, a.analyzeTimeframe(symbol, tf))
	}

	result := a.merge(symbol, legs)
	a.logger.Info().
		Str("symbol", symbol).
		Str("signal", string(result.Signal)).
		Float64("confidence", result.Confidence).
		Float64("weighted_score", result.WeightedScore).
		Msg("consensus pass complete")

	return result, nil
}

func (a *Analyzer) sleep(ctx context.Context) error {
	if a.fetchDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(a.fetchDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (a *Analyzer) analyzeTimeframe(symbol, timeframe string) TimeframeSignal {
	weight := timeframeWeights[timeframe]

	klines, err := a.source.GetKlines(symbol, timeframe, klinesPerTimeframe)
	if err != nil {
		a.logger.Warn().Err(err).
			Str("symbol", symbol).
			Str("timeframe", timeframe).
			Msg("timeframe fetch failed, counting as neutral")
		return TimeframeSignal{
			Timeframe:  timeframe,
			Signal:     strategy.SignalNone,
			Weight:     weight,
			Confidence: 0,
			Details:    map[string]interface{}{"error": err.Error()},
		}
	}

	sig := a.engine.ComputeSignal(klines)

	leg := TimeframeSignal{
		Timeframe: timeframe,
		Signal:    sig.Type,
		Price:     sig.Price,
		Weight:    weight,
		Details:   sig.Reason,
	}
	if sig.Type != strategy.SignalNone {
		leg.Confidence = 100
		entry, sl, tp := sig.Entry, sig.StopLoss, sig.TakeProfit
		leg.Entry = &entry
		leg.StopLoss = &sl
		leg.TakeProfit = &tp
	}
	return leg
}

func (a *Analyzer) merge(symbol string, legs []TimeframeSignal) *ConsensusResult {
	var longVotes, shortVotes, neutralVotes int
	var totalWeight, score float64

	for _, leg := range legs {
		totalWeight += leg.Weight
		switch leg.Signal {
		case strategy.SignalLong:
			longVotes++
			score += leg.Weight
		case strategy.SignalShort:
			shortVotes++
			score -= leg.Weight
		default:
			neutralVotes++
		}
	}

	weightedScore := 0.0
	if totalWeight > 0 {
		weightedScore = score / totalWeight * 100
	}

	decision := strategy.SignalNone
	switch {
	case longVotes >= minAgreeingVotes && longVotes > shortVotes:
		decision = strategy.SignalLong
	case shortVotes >= minAgreeingVotes && shortVotes > longVotes:
		decision = strategy.SignalShort
	case weightedScore > scoreLongThreshold:
		decision = strategy.SignalLong
	case weightedScore < scoreShortThreshold:
		decision = strategy.SignalShort
	}

	confidence := 0.0
	if decision != strategy.SignalNone {
		var matchingWeight float64
		for _, leg := range legs {
			if leg.Signal == decision {
				matchingWeight += leg.Weight
			}
		}
		weightPct := 0.0
		if totalWeight > 0 {
			weightPct = matchingWeight / totalWeight * 100
		}
		confidence = (weightPct + math.Min(math.Abs(weightedScore), 100)) / 2
	}

	result := &ConsensusResult{
		Symbol:        symbol,
		Signal:        decision,
		Confidence:    confidence,
		WeightedScore: weightedScore,
		LongVotes:     longVotes,
		ShortVotes:    shortVotes,
		NeutralVotes:  neutralVotes,
		Timeframes:    legs,
		AnalyzedAt:    time.Now().UTC(),
	}
	result.Recommendation = recommendation(decision, confidence)
	result.Setup = bestSetup(decision, legs)
	return result
}

func recommendation(decision strategy.SignalType, confidence float64) string {
	if decision == strategy.SignalNone {
		return "No consensus across timeframes, stay out"
	}
	side := "long"
	if decision == strategy.SignalShort {
		side = "short"
	}
	switch {
	case confidence >= 70:
		return fmt.Sprintf("Strong %s setup, timeframes aligned", side)
	case confidence >= 50:
		return fmt.Sprintf("Moderate %s setup, partial alignment", side)
	default:
		return fmt.Sprintf("Weak %s lean, timeframes conflict", side)
	}
}

// bestSetup picks the entry levels from the highest-weight timeframe that
// agrees with the decision.
func bestSetup(decision strategy.SignalType, legs []TimeframeSignal) *TradingSetup {
	if decision == strategy.SignalNone {
		return nil
	}

	var best *TimeframeSignal
	for i := range legs {
		leg := &legs[i]
		if leg.Signal != decision || leg.Entry == nil {
			continue
		}
		if best == nil || leg.Weight > best.Weight {
			best = leg
		}
	}
	if best == nil {
		return nil
	}

	setup := &TradingSetup{
		Timeframe:  best.Timeframe,
		Entry:      *best.Entry,
		StopLoss:   *best.StopLoss,
		TakeProfit: *best.TakeProfit,
	}
	risk := math.Abs(setup.Entry - setup.StopLoss)
	if risk > 0 {
		setup.RiskReward = math.Abs(setup.TakeProfit-setup.Entry) / risk
	}
	return setup
}
