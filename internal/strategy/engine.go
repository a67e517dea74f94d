package strategy

import (
	"fmt"
	"math"

	"crypto-signal-bot/internal/binance"
)

type SignalType string

const (
	SignalLong  SignalType = "LONG"
	SignalShort SignalType = "SHORT"
	SignalNone  SignalType = "NONE"
)

// Params holds the confirmation-rule parameters for one engine run.
type Params struct {
	MAFast          int
	MASlow          int
	RSIPeriod       int
	RSIMin          float64
	RSIMax          float64
	ATRMultiplierSL float64
	RiskReward      float64
}

// Signal is the outcome of evaluating one candle series. Entry, StopLoss and
// TakeProfit are only meaningful when Type is LONG or SHORT. Reason always
// carries the structured confirmation detail for audit and AI prompts.
type Signal struct {
	Type       SignalType             `json:"signal"`
	Price      float64                `json:"price"`
	Entry      float64                `json:"entry,omitempty"`
	StopLoss   float64                `json:"stop_loss,omitempty"`
	TakeProfit float64                `json:"take_profit,omitempty"`
	Reason     map[string]interface{} `json:"reason"`
}

const (
	atrPeriod = 14

	// Breakout lookback shrinks from 5 to 3 candles when ATR exceeds the
	// high-volatility threshold, making the zone more reactive.
	baseBreakoutLookback     = 5
	volatileBreakoutLookback = 3
	highVolatilityATR        = 500.0

	// Entry zone tolerance: accept entries 0.3% inside the recent extreme
	// instead of requiring an exact new high/low.
	entryZonePct = 0.003

	// Swing structure window for the reason payload.
	swingWindow = 60
)

// Engine evaluates a single timeframe's candles against the confirmation
// rule set: trend (fast vs slow MA), breakout zone, RSI gate and ATR
// validity.
type Engine struct {
	params Params
}

func NewEngine(params Params) *Engine {
	return &Engine{params: params}
}

// ComputeSignal evaluates klines and returns at most one directional signal.
// Insufficient history resolves to SignalNone, never an error: NaN
// indicators simply fail their conditions.
func (e *Engine) ComputeSignal(klines []binance.Kline) Signal {
	if len(klines) == 0 {
		return Signal{
			Type:   SignalNone,
			Reason: map[string]interface{}{"note": "no candle data"},
		}
	}

	closes := make([]float64, len(klines))
	highs := make([]float64, len(klines))
	lows := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
		highs[i] = k.High
		lows[i] = k.Low
	}

	maFast := CalculateSMA(closes, e.params.MAFast)
	maSlow := CalculateSMA(closes, e.params.MASlow)
	rsiSeries := CalculateRSI(closes, e.params.RSIPeriod)
	atrSeries := CalculateATR(highs, lows, closes, atrPeriod)

	last := len(klines) - 1
	lastPrice := closes[last]

	// NaN comparisons are false, so an unfilled MA window means no trend.
	trendUp := maFast[last] > maSlow[last]
	trendDown := maFast[last] < maSlow[last]

	lastRSI := rsiSeries[last]
	if math.IsNaN(lastRSI) {
		lastRSI = 50.0
	}
	lastATR := atrSeries[last]
	if math.IsNaN(lastATR) {
		lastATR = 0.0
	}

	swingHigh, swingLow := HighestLowest(highs, lows, swingWindow)

	lookback := baseBreakoutLookback
	if lastATR > highVolatilityATR {
		lookback = volatileBreakoutLookback
	}
	prevHigh, prevLow := HighestLowest(highs, lows, lookback)

	entryZoneHigh := prevHigh * (1 - entryZonePct)
	entryZoneLow := prevLow * (1 + entryZonePct)
	breakoutUp := lastPrice > entryZoneHigh
	breakoutDown := lastPrice < entryZoneLow

	rsiOkLong := e.params.RSIMin <= lastRSI && lastRSI <= e.params.RSIMax
	rsiOkShort := (100-e.params.RSIMax) <= lastRSI && lastRSI <= (100-e.params.RSIMin)

	trendLabel := "flat"
	if trendUp {
		trendLabel = "up (MA fast > MA slow)"
	} else if trendDown {
		trendLabel = "down (MA fast < MA slow)"
	}

	reason := map[string]interface{}{
		"trend": trendLabel,
		"rsi":   lastRSI,
		"atr":   lastATR,
		"structure_zone": map[string]interface{}{
			"swing_low":  swingLow,
			"swing_high": swingHigh,
		},
	}

	if trendUp && breakoutUp && rsiOkLong && lastATR > 0 {
		entry := lastPrice
		sl := entry - e.params.ATRMultiplierSL*lastATR
		tp := entry + e.params.RiskReward*(entry-sl)
		reason["breakout"] = fmt.Sprintf("close > high(%d)", lookback)

		return Signal{
			Type:       SignalLong,
			Price:      lastPrice,
			Entry:      entry,
			StopLoss:   sl,
			TakeProfit: tp,
			Reason:     reason,
		}
	}

	if trendDown && breakoutDown && rsiOkShort && lastATR > 0 {
		entry := lastPrice
		sl := entry + e.params.ATRMultiplierSL*lastATR
		tp := entry - e.params.RiskReward*(sl-entry)
		reason["breakout"] = fmt.Sprintf("close < low(%d)", lookback)

		return Signal{
			Type:       SignalShort,
			Price:      lastPrice,
			Entry:      entry,
			StopLoss:   sl,
			TakeProfit: tp,
			Reason:     reason,
		}
	}

	reason["breakout"] = fmt.Sprintf("no breakout within %d-candle zone", lookback)
	reason["note"] = "no setup with sufficient confirmations"

	return Signal{
		Type:   SignalNone,
		Price:  lastPrice,
		Reason: reason,
	}
}

// MinCandles reports how much history the engine needs before every
// indicator has a defined value.
func (e *Engine) MinCandles() int {
	n := e.params.MASlow
	if e.params.RSIPeriod > n {
		n = e.params.RSIPeriod
	}
	if atrPeriod > n {
		n = atrPeriod
	}
	return n + 1
}
