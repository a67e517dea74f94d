package trade

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/database"
)

func longTrade() *database.Trade {
	return &database.Trade{
		ID:         "t-long",
		Symbol:     "BTCUSDT",
		Side:       database.TradeSideLong,
		Status:     database.TradeStatusOpen,
		EntryPrice: 100,
		StopLoss:   95,
		TakeProfit: 110,
		FeeRate:    0.001,
	}
}

func shortTrade() *database.Trade {
	return &database.Trade{
		ID:         "t-short",
		Symbol:     "BTCUSDT",
		Side:       database.TradeSideShort,
		Status:     database.TradeStatusOpen,
		EntryPrice: 100,
		StopLoss:   105,
		TakeProfit: 90,
		FeeRate:    0.001,
	}
}

func TestCheckHit(t *testing.T) {
	cases := []struct {
		name       string
		trade      *database.Trade
		price      float64
		wantResult string
	}{
		{"long below stop", longTrade(), 94, database.TradeResultLoss},
		{"long at stop", longTrade(), 95, database.TradeResultLoss},
		{"long in range", longTrade(), 100, ""},
		{"long at target", longTrade(), 110, database.TradeResultWin},
		{"long above target", longTrade(), 111, database.TradeResultWin},
		{"short above stop", shortTrade(), 106, database.TradeResultLoss},
		{"short at stop", shortTrade(), 105, database.TradeResultLoss},
		{"short in range", shortTrade(), 100, ""},
		{"short at target", shortTrade(), 90, database.TradeResultWin},
		{"short below target", shortTrade(), 89, database.TradeResultWin},
	}

	for _, tc := range cases {
		outcome := CheckHit(tc.trade, tc.price)
		if tc.wantResult == "" {
			if outcome != nil {
				t.Errorf("%s: got outcome %+v, want none", tc.name, outcome)
			}
			continue
		}
		if outcome == nil {
			t.Errorf("%s: got no outcome, want %s", tc.name, tc.wantResult)
			continue
		}
		if outcome.Result != tc.wantResult {
			t.Errorf("%s: result = %s, want %s", tc.name, outcome.Result, tc.wantResult)
		}
		if outcome.ClosePrice != tc.price {
			t.Errorf("%s: close price = %f, want the triggering price %f", tc.name, outcome.ClosePrice, tc.price)
		}
	}
}

func TestCheckHitStopBeatsTarget(t *testing.T) {
	// Degenerate levels where one price satisfies both: the stop wins.
	tr := longTrade()
	tr.StopLoss = 100
	tr.TakeProfit = 100

	outcome := CheckHit(tr, 100)
	if outcome == nil || outcome.Result != database.TradeResultLoss {
		t.Errorf("outcome = %+v, want the stop-loss to take precedence", outcome)
	}
}

func TestClosePnLLong(t *testing.T) {
	feePaid, pnlAbs, pnlPct, err := ClosePnL(longTrade(), 110)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantFee := 0.001 * (100 + 110)
	if math.Abs(feePaid-wantFee) > 1e-9 {
		t.Errorf("fee = %f, want %f", feePaid, wantFee)
	}
	if math.Abs(pnlAbs-(10-wantFee)) > 1e-9 {
		t.Errorf("pnlAbs = %f, want gross 10 minus fee", pnlAbs)
	}
	if math.Abs(pnlPct-10) > 1e-9 {
		t.Errorf("pnlPct = %f, want gross 10%% ignoring fees", pnlPct)
	}
}

func TestClosePnLShort(t *testing.T) {
	_, pnlAbs, pnlPct, err := ClosePnL(shortTrade(), 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pnlAbs <= 0 {
		t.Errorf("pnlAbs = %f, a short closed at its target must profit", pnlAbs)
	}
	if math.Abs(pnlPct-10) > 1e-9 {
		t.Errorf("pnlPct = %f, want 10", pnlPct)
	}
}

func TestClosePnLSymmetry(t *testing.T) {
	// Equal favorable moves should pay the same on both sides when the
	// close prices match in fee terms.
	long := longTrade()
	short := shortTrade()

	_, longAbs, _, err := ClosePnL(long, 105)
	if err != nil {
		t.Fatal(err)
	}
	_, shortAbs, _, err := ClosePnL(short, 95)
	if err != nil {
		t.Fatal(err)
	}

	// Gross is 5 on both; the short pays fee on 195 notional, the long on
	// 205, so the short nets slightly more.
	if shortAbs <= longAbs {
		t.Errorf("shortAbs = %f, longAbs = %f: lower close notional must mean lower fee", shortAbs, longAbs)
	}
}

func TestClosePnLUnknownSide(t *testing.T) {
	tr := longTrade()
	tr.Side = "SIDEWAYS"
	if _, _, _, err := ClosePnL(tr, 100); err == nil {
		t.Error("expected an error for an unknown side")
	}
}

type fakeStore struct {
	open    []*database.Trade
	closed  map[string]string
	failGet bool
}

func (f *fakeStore) GetOpenTrades(ctx context.Context) ([]*database.Trade, error) {
	if f.failGet {
		return nil, errors.New("db down")
	}
	return f.open, nil
}

func (f *fakeStore) CloseTrade(ctx context.Context, id string, closePrice float64, result string, feePaid, pnlAbs, pnlPct float64) (bool, error) {
	if f.closed == nil {
		f.closed = make(map[string]string)
	}
	if _, done := f.closed[id]; done {
		return false, nil
	}
	f.closed[id] = result
	return true, nil
}

type fixedPrices struct {
	price float64
	err   error
}

func (f *fixedPrices) GetLastPrice(symbol, interval string) (float64, error) {
	return f.price, f.err
}

type recordingNotifier struct {
	alerts int
}

func (r *recordingNotifier) SendCloseAlert(ctx context.Context, t *database.Trade, result string, closePrice, pnlAbs, pnlPct float64) error {
	r.alerts++
	return nil
}

func TestEvaluateOpenTradesClosesHits(t *testing.T) {
	store := &fakeStore{open: []*database.Trade{longTrade(), shortTrade()}}
	notifier := &recordingNotifier{}
	m := NewManager(store, &fixedPrices{price: 111}, notifier, "15m", 0, zerolog.Nop())

	if err := m.EvaluateOpenTrades(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 111 is a long win and a short stop-out.
	if store.closed["t-long"] != database.TradeResultWin {
		t.Errorf("long trade result = %s, want win", store.closed["t-long"])
	}
	if store.closed["t-short"] != database.TradeResultLoss {
		t.Errorf("short trade result = %s, want loss", store.closed["t-short"])
	}
	if notifier.alerts != 2 {
		t.Errorf("alerts = %d, want 2", notifier.alerts)
	}
}

func TestEvaluateOpenTradesLeavesRunningTrades(t *testing.T) {
	store := &fakeStore{open: []*database.Trade{longTrade()}}
	m := NewManager(store, &fixedPrices{price: 100}, nil, "15m", 0, zerolog.Nop())

	if err := m.EvaluateOpenTrades(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.closed) != 0 {
		t.Errorf("closed = %v, want no closes while price is between the levels", store.closed)
	}
}

func TestEvaluateOpenTradesSecondCloseIsSilent(t *testing.T) {
	// The store reports the trade already closed (a concurrent pass won the
	// race): no alert may go out and the recorded result must not change.
	tr := longTrade()
	store := &fakeStore{
		open:   []*database.Trade{tr},
		closed: map[string]string{tr.ID: database.TradeResultWin},
	}
	notifier := &recordingNotifier{}
	m := NewManager(store, &fixedPrices{price: 111}, notifier, "15m", 0, zerolog.Nop())

	if err := m.EvaluateOpenTrades(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifier.alerts != 0 {
		t.Errorf("alerts = %d, want none for an already-closed trade", notifier.alerts)
	}
	if store.closed[tr.ID] != database.TradeResultWin {
		t.Errorf("recorded result = %s, want the first close untouched", store.closed[tr.ID])
	}
}

func TestEvaluateOpenTradesSurvivesPriceErrors(t *testing.T) {
	store := &fakeStore{open: []*database.Trade{longTrade()}}
	m := NewManager(store, &fixedPrices{err: errors.New("rate limited")}, nil, "15m", 0, zerolog.Nop())

	if err := m.EvaluateOpenTrades(context.Background()); err != nil {
		t.Fatalf("price errors must not fail the pass: %v", err)
	}
	if len(store.closed) != 0 {
		t.Errorf("closed = %v, want none", store.closed)
	}
}

func TestEvaluateOpenTradesPropagatesStoreError(t *testing.T) {
	m := NewManager(&fakeStore{failGet: true}, &fixedPrices{price: 100}, nil, "15m", 0, zerolog.Nop())
	if err := m.EvaluateOpenTrades(context.Background()); err == nil {
		t.Error("expected the store error to surface")
	}
}
