package llm

import (
	"fmt"
	"strings"

	"crypto-signal-bot/internal/analysis"
	"crypto-signal-bot/internal/binance"
	"crypto-signal-bot/internal/strategy"
)

const validationSystemPrompt = `You are a senior crypto trading analyst reviewing automated signals before execution.
You receive a proposed trade with its technical confirmations and recent market context.
Judge the setup on confluence quality, risk placement and market conditions.

Respond with a single JSON object only, no prose around it, using exactly these fields:
{
  "quality_score": <0-100 integer, overall setup quality>,
  "confidence": "<LOW|MEDIUM|HIGH>",
  "confluences": ["<factor supporting the trade>", ...],
  "risks": ["<factor against the trade>", ...],
  "recommendation": "<OPEN|WAIT|SKIP>",
  "reasoning": "<one or two sentences>"
}`

// BuildValidationPrompt renders the user prompt describing the proposed
// trade for the quality review.
func BuildValidationPrompt(result *analysis.ConsensusResult, marketContext string, winRate *float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Proposed trade for %s:\n", result.Symbol)
	fmt.Fprintf(&b, "- Direction: %s\n", result.Signal)
	fmt.Fprintf(&b, "- Consensus confidence: %.1f%%\n", result.Confidence)
	fmt.Fprintf(&b, "- Weighted score: %.1f\n", result.WeightedScore)
	fmt.Fprintf(&b, "- Votes: %d long / %d short / %d neutral\n",
		result.LongVotes, result.ShortVotes, result.NeutralVotes)

	if result.Setup != nil {
		fmt.Fprintf(&b, "- Entry %.4f, stop-loss %.4f, take-profit %.4f (R:R %.2f, from %s)\n",
			result.Setup.Entry, result.Setup.StopLoss, result.Setup.TakeProfit,
			result.Setup.RiskReward, result.Setup.Timeframe)
	}

	b.WriteString("\nPer-timeframe votes:\n")
	for _, leg := range result.Timeframes {
		fmt.Fprintf(&b, "- %s: %s", leg.Timeframe, leg.Signal)
		if trend, ok := leg.Details["trend"]; ok {
			fmt.Fprintf(&b, " (trend %v", trend)
			if rsi, ok := leg.Details["rsi"]; ok {
				fmt.Fprintf(&b, ", RSI %.1f", rsi)
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
	}

	if marketContext != "" {
		b.WriteString("\nRecent market context:\n")
		b.WriteString(marketContext)
		b.WriteString("\n")
	}

	if winRate != nil {
		fmt.Fprintf(&b, "\nHistorical win rate of this strategy: %.1f%%\n", *winRate)
	}

	b.WriteString("\nReview the setup and answer with the JSON object.")
	return b.String()
}

// BuildMarketContext summarizes recent candles into a few lines of price
// action for the prompt.
func BuildMarketContext(klines []binance.Kline) string {
	if len(klines) == 0 {
		return ""
	}

	last := klines[len(klines)-1]
	first := klines[0]

	high := last.High
	low := last.Low
	volumeSum := 0.0
	for _, k := range klines {
		if k.High > high {
			high = k.High
		}
		if k.Low < low {
			low = k.Low
		}
		volumeSum += k.Volume
	}

	changePct := 0.0
	if first.Close != 0 {
		changePct = (last.Close - first.Close) / first.Close * 100
	}

	var b strings.Builder
	fmt.Fprintf(&b, "- Last close: %.4f\n", last.Close)
	fmt.Fprintf(&b, "- Window change: %+.2f%% over %d candles\n", changePct, len(klines))
	fmt.Fprintf(&b, "- Window high/low: %.4f / %.4f\n", high, low)
	fmt.Fprintf(&b, "- Average volume: %.2f\n", volumeSum/float64(len(klines)))
	return b.String()
}

// signalWord maps a signal to the side word used in alert texts.
func signalWord(t strategy.SignalType) string {
	switch t {
	case strategy.SignalLong:
		return "long"
	case strategy.SignalShort:
		return "short"
	default:
		return "flat"
	}
}
