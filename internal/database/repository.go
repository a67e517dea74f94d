package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrTradeNotFound is returned when a lookup matches no trade.
var ErrTradeNotFound = errors.New("trade not found")

// Repository persists trades.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

const tradeColumns = `id, symbol, timeframe, side, status, entry_price, stop_loss, take_profit,
	opened_at, closed_at, close_price, result, fee_rate, fee_paid, pnl_abs, pnl_pct,
	strategy_name, confirmations, ai_note, ai_quality_score, ai_recommendation`

// CreateTrade inserts a new open trade. A missing ID or OpenedAt is filled
// in before the insert.
func (r *Repository) CreateTrade(ctx context.Context, trade *Trade) error {
	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}
	if trade.OpenedAt.IsZero() {
		trade.OpenedAt = time.Now().UTC()
	}
	if trade.Status == "" {
		trade.Status = TradeStatusOpen
	}

	var confirmations []byte
	if trade.Confirmations != nil {
		var err error
		confirmations, err = json.Marshal(trade.Confirmations)
		if err != nil {
			return fmt.Errorf("failed to encode confirmations: %w", err)
		}
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO trades (
			id, symbol, timeframe, side, status, entry_price, stop_loss, take_profit,
			opened_at, fee_rate, strategy_name, confirmations,
			ai_note, ai_quality_score, ai_recommendation
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		trade.ID, trade.Symbol, trade.Timeframe, trade.Side, trade.Status,
		trade.EntryPrice, trade.StopLoss, trade.TakeProfit,
		trade.OpenedAt, trade.FeeRate, trade.StrategyName, confirmations,
		trade.AINote, trade.AIQualityScore, trade.AIRecommendation,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// GetTradeByID fetches one trade, ErrTradeNotFound when absent.
func (r *Repository) GetTradeByID(ctx context.Context, id string) (*Trade, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id)

	trade, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trade: %w", err)
	}
	return trade, nil
}

// ListTrades returns trades newest first, optionally filtered by status.
func (r *Repository) ListTrades(ctx context.Context, status string, limit int) ([]*Trade, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = r.db.Pool.Query(ctx,
			`SELECT `+tradeColumns+` FROM trades WHERE status = $1 ORDER BY opened_at DESC LIMIT $2`,
			status, limit)
	} else {
		rows, err = r.db.Pool.Query(ctx,
			`SELECT `+tradeColumns+` FROM trades ORDER BY opened_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// GetOpenTrades returns every trade still awaiting an outcome.
func (r *Repository) GetOpenTrades(ctx context.Context) ([]*Trade, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE status = $1 ORDER BY opened_at`,
		TradeStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to list open trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// CloseTrade records the outcome of an open trade. The status guard makes
// the close idempotent: a second close of the same trade matches no row and
// returns false without error.
func (r *Repository) CloseTrade(ctx context.Context, id string, closePrice float64, result string, feePaid, pnlAbs, pnlPct float64) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE trades
		SET status = $2, closed_at = $3, close_price = $4, result = $5,
			fee_paid = $6, pnl_abs = $7, pnl_pct = $8
		WHERE id = $1 AND status = $9`,
		id, TradeStatusClosed, time.Now().UTC(), closePrice, result,
		feePaid, pnlAbs, pnlPct, TradeStatusOpen,
	)
	if err != nil {
		return false, fmt.Errorf("failed to close trade: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// WinRate returns the percentage of closed trades that hit take-profit, or
// nil when no trade has closed yet.
func (r *Repository) WinRate(ctx context.Context) (*float64, error) {
	var wins, total int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE result = $1),
			COUNT(*)
		FROM trades WHERE status = $2`,
		TradeResultWin, TradeStatusClosed,
	).Scan(&wins, &total)
	if err != nil {
		return nil, fmt.Errorf("failed to compute win rate: %w", err)
	}
	if total == 0 {
		return nil, nil
	}
	rate := float64(wins) / float64(total) * 100
	return &rate, nil
}

func collectTrades(rows pgx.Rows) ([]*Trade, error) {
	trades := make([]*Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trade row iteration failed: %w", err)
	}
	return trades, nil
}

func scanTrade(row pgx.Row) (*Trade, error) {
	var (
		trade         Trade
		confirmations []byte
	)
	err := row.Scan(
		&trade.ID, &trade.Symbol, &trade.Timeframe, &trade.Side, &trade.Status,
		&trade.EntryPrice, &trade.StopLoss, &trade.TakeProfit,
		&trade.OpenedAt, &trade.ClosedAt, &trade.ClosePrice, &trade.Result,
		&trade.FeeRate, &trade.FeePaid, &trade.PnLAbs, &trade.PnLPct,
		&trade.StrategyName, &confirmations,
		&trade.AINote, &trade.AIQualityScore, &trade.AIRecommendation,
	)
	if err != nil {
		return nil, err
	}
	if len(confirmations) > 0 {
		if err := json.Unmarshal(confirmations, &trade.Confirmations); err != nil {
			return nil, fmt.Errorf("failed to decode confirmations: %w", err)
		}
	}
	return &trade, nil
}
