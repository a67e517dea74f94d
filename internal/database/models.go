package database

import "time"

// Trade lifecycle status.
const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)

// Trade side.
const (
	TradeSideLong  = "LONG"
	TradeSideShort = "SHORT"
)

// Trade outcome.
const (
	TradeResultWin     = "win"
	TradeResultLoss    = "loss"
	TradeResultUnknown = "unknown"
)

// Trade is a recorded signal position, paper-tracked from open to close.
// Close fields are nil while the trade is open.
type Trade struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Side       string    `json:"side"`
	Status     string    `json:"status"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	OpenedAt   time.Time `json:"opened_at"`

	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	ClosePrice *float64   `json:"close_price,omitempty"`
	Result     *string    `json:"result,omitempty"`

	FeeRate float64  `json:"fee_rate"`
	FeePaid *float64 `json:"fee_paid,omitempty"`
	PnLAbs  *float64 `json:"pnl_abs,omitempty"`
	PnLPct  *float64 `json:"pnl_pct,omitempty"`

	StrategyName  string                 `json:"strategy_name,omitempty"`
	Confirmations map[string]interface{} `json:"confirmations,omitempty"`

	AINote           *string  `json:"ai_note,omitempty"`
	AIQualityScore   *float64 `json:"ai_quality_score,omitempty"`
	AIRecommendation *string  `json:"ai_recommendation,omitempty"`
}

// IsOpen reports whether the trade is still being tracked.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeStatusOpen
}
