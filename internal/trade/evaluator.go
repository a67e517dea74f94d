package trade

import (
	"fmt"

	"crypto-signal-bot/internal/database"
)

// Outcome is a resolved trade exit.
type Outcome struct {
	Result     string
	ClosePrice float64
}

// CheckHit resolves whether price closes the trade. The stop-loss is checked
// before the take-profit, so a candle spanning both levels counts as a loss.
func CheckHit(t *database.Trade, price float64) *Outcome {
	switch t.Side {
	case database.TradeSideLong:
		if price <= t.StopLoss {
			return &Outcome{Result: database.TradeResultLoss, ClosePrice: price}
		}
		if price >= t.TakeProfit {
			return &Outcome{Result: database.TradeResultWin, ClosePrice: price}
		}
	case database.TradeSideShort:
		if price >= t.StopLoss {
			return &Outcome{Result: database.TradeResultLoss, ClosePrice: price}
		}
		if price <= t.TakeProfit {
			return &Outcome{Result: database.TradeResultWin, ClosePrice: price}
		}
	}
	return nil
}

// ClosePnL computes the fee and profit figures for closing t at closePrice.
// The returned pnlAbs is net of the fee; pnlPct is the gross move relative
// to entry.
func ClosePnL(t *database.Trade, closePrice float64) (feePaid, pnlAbs, pnlPct float64, err error) {
	var gross float64
	switch t.Side {
	case database.TradeSideLong:
		gross = closePrice - t.EntryPrice
	case database.TradeSideShort:
		gross = t.EntryPrice - closePrice
	default:
		return 0, 0, 0, fmt.Errorf("unknown trade side %q", t.Side)
	}

	feePaid = t.FeeRate * (t.EntryPrice + closePrice)
	pnlAbs = gross - feePaid
	if t.EntryPrice != 0 {
		pnlPct = gross / t.EntryPrice * 100
	}
	return feePaid, pnlAbs, pnlPct, nil
}
