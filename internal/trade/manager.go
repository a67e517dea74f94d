package trade

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/database"
)

// Store is the slice of the trade repository the manager needs.
type Store interface {
	GetOpenTrades(ctx context.Context) ([]*database.Trade, error)
	CloseTrade(ctx context.Context, id string, closePrice float64, result string, feePaid, pnlAbs, pnlPct float64) (bool, error)
}

// PriceSource supplies the latest close for a symbol.
type PriceSource interface {
	GetLastPrice(symbol, interval string) (float64, error)
}

// CloseNotifier is told about resolved trades. Delivery failures are logged,
// never propagated.
type CloseNotifier interface {
	SendCloseAlert(ctx context.Context, t *database.Trade, result string, closePrice, pnlAbs, pnlPct float64) error
}

// Manager polls open trades against the market and closes the ones that hit
// their stop or target.
type Manager struct {
	store     Store
	prices    PriceSource
	notifier  CloseNotifier
	timeframe string
	interval  time.Duration
	logger    zerolog.Logger
}

func NewManager(store Store, prices PriceSource, notifier CloseNotifier, timeframe string, interval time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		store:     store,
		prices:    prices,
		notifier:  notifier,
		timeframe: timeframe,
		interval:  interval,
		logger:    logger.With().Str("component", "trade_manager").Logger(),
	}
}

// Run evaluates open trades on a fixed cadence until ctx is cancelled. A
// failed pass is logged and the loop keeps going.
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info().Dur("interval", m.interval).Msg("trade manager started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("trade manager stopped")
			return
		case <-ticker.C:
			if err := m.EvaluateOpenTrades(ctx); err != nil {
				m.logger.Error().Err(err).Msg("trade evaluation pass failed")
			}
		}
	}
}

// EvaluateOpenTrades runs one evaluation pass. Each trade is handled
// independently so one bad symbol cannot stall the rest.
func (m *Manager) EvaluateOpenTrades(ctx context.Context) error {
	trades, err := m.store.GetOpenTrades(ctx)
	if err != nil {
		return err
	}

	for _, t := range trades {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.evaluate(ctx, t)
	}
	return nil
}

func (m *Manager) evaluate(ctx context.Context, t *database.Trade) {
	price, err := m.prices.GetLastPrice(t.Symbol, m.timeframe)
	if err != nil {
		m.logger.Warn().Err(err).Str("symbol", t.Symbol).Str("trade_id", t.ID).Msg("price fetch failed")
		return
	}

	outcome := CheckHit(t, price)
	if outcome == nil {
		return
	}

	feePaid, pnlAbs, pnlPct, err := ClosePnL(t, outcome.ClosePrice)
	if err != nil {
		m.logger.Error().Err(err).Str("trade_id", t.ID).Msg("cannot compute close PnL")
		return
	}

	closed, err := m.store.CloseTrade(ctx, t.ID, outcome.ClosePrice, outcome.Result, feePaid, pnlAbs, pnlPct)
	if err != nil {
		m.logger.Error().Err(err).Str("trade_id", t.ID).Msg("failed to close trade")
		return
	}
	if !closed {
		// Another pass got there first.
		return
	}

	m.logger.Info().
		Str("trade_id", t.ID).
		Str("symbol", t.Symbol).
		Str("result", outcome.Result).
		Float64("close_price", outcome.ClosePrice).
		Float64("pnl_abs", pnlAbs).
		Msg("trade closed")

	if m.notifier != nil {
		if err := m.notifier.SendCloseAlert(ctx, t, outcome.Result, outcome.ClosePrice, pnlAbs, pnlPct); err != nil {
			m.logger.Warn().Err(err).Str("trade_id", t.ID).Msg("close alert delivery failed")
		}
	}
}
