package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/analysis"
	"crypto-signal-bot/internal/database"
	"crypto-signal-bot/internal/strategy"
)

// Notifier delivers one formatted message over a single channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, message string) error
}

// Manager formats alerts and fans them out to every registered channel. A
// channel failure is logged and does not block the others.
type Manager struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

func NewManager(logger zerolog.Logger, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		logger:    logger.With().Str("component", "notification").Logger(),
	}
}

// Enabled reports whether any channel is registered.
func (m *Manager) Enabled() bool {
	return len(m.notifiers) > 0
}

func (m *Manager) send(ctx context.Context, message string) error {
	var failed []string
	for _, n := range m.notifiers {
		if err := n.Send(ctx, message); err != nil {
			m.logger.Warn().Err(err).Str("channel", n.Name()).Msg("alert delivery failed")
			failed = append(failed, n.Name())
		}
	}
	if len(failed) == len(m.notifiers) && len(m.notifiers) > 0 {
		return fmt.Errorf("all channels failed: %s", strings.Join(failed, ", "))
	}
	return nil
}

// SendConsensusAlert announces a multi-timeframe consensus signal.
func (m *Manager) SendConsensusAlert(ctx context.Context, result *analysis.ConsensusResult, verdict string) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s *%s consensus: %s*\n\n", directionEmoji(result.Signal), result.Symbol, result.Signal)
	fmt.Fprintf(&b, "Confidence: %.1f%%\n", result.Confidence)
	fmt.Fprintf(&b, "Weighted score: %.1f\n", result.WeightedScore)
	fmt.Fprintf(&b, "Votes: %d long / %d short / %d neutral\n",
		result.LongVotes, result.ShortVotes, result.NeutralVotes)

	b.WriteString("\nTimeframes:\n")
	for _, leg := range result.Timeframes {
		fmt.Fprintf(&b, "  %s %s: %s\n", voteEmoji(leg.Signal), leg.Timeframe, leg.Signal)
	}

	if result.Setup != nil {
		fmt.Fprintf(&b, "\nSetup (%s):\n", result.Setup.Timeframe)
		fmt.Fprintf(&b, "  Entry: %.4f\n", result.Setup.Entry)
		fmt.Fprintf(&b, "  Stop-loss: %.4f\n", result.Setup.StopLoss)
		fmt.Fprintf(&b, "  Take-profit: %.4f\n", result.Setup.TakeProfit)
		fmt.Fprintf(&b, "  R:R: %.2f\n", result.Setup.RiskReward)
	}

	fmt.Fprintf(&b, "\n%s", result.Recommendation)
	if verdict != "" {
		fmt.Fprintf(&b, "\nAI review: %s", verdict)
	}

	return m.send(ctx, b.String())
}

// SendSignalAlert announces a single-timeframe signal.
func (m *Manager) SendSignalAlert(ctx context.Context, symbol, timeframe string, sig strategy.Signal) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s *%s %s signal (%s)*\n\n", directionEmoji(sig.Type), symbol, sig.Type, timeframe)
	fmt.Fprintf(&b, "Entry: %.4f\n", sig.Entry)
	fmt.Fprintf(&b, "Stop-loss: %.4f\n", sig.StopLoss)
	fmt.Fprintf(&b, "Take-profit: %.4f\n", sig.TakeProfit)

	if trend, ok := sig.Reason["trend"]; ok {
		fmt.Fprintf(&b, "Trend: %v\n", trend)
	}
	if rsi, ok := sig.Reason["rsi"].(float64); ok {
		fmt.Fprintf(&b, "RSI: %.1f\n", rsi)
	}

	return m.send(ctx, b.String())
}

// SendCloseAlert announces a resolved trade.
func (m *Manager) SendCloseAlert(ctx context.Context, t *database.Trade, result string, closePrice, pnlAbs, pnlPct float64) error {
	emoji := "✅"
	if result == database.TradeResultLoss {
		emoji = "🛑"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s %s closed: %s*\n\n", emoji, t.Symbol, t.Side, strings.ToUpper(result))
	fmt.Fprintf(&b, "Entry: %.4f\n", t.EntryPrice)
	fmt.Fprintf(&b, "Close: %.4f\n", closePrice)
	fmt.Fprintf(&b, "PnL: %+.4f (%+.2f%%)\n", pnlAbs, pnlPct)

	return m.send(ctx, b.String())
}

func directionEmoji(t strategy.SignalType) string {
	switch t {
	case strategy.SignalLong:
		return "📈"
	case strategy.SignalShort:
		return "📉"
	default:
		return "⏸"
	}
}

func voteEmoji(t strategy.SignalType) string {
	switch t {
	case strategy.SignalLong:
		return "🟢"
	case strategy.SignalShort:
		return "🔴"
	default:
		return "⚪"
	}
}
