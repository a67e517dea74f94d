package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/ai/llm"
	"crypto-signal-bot/internal/analysis"
	"crypto-signal-bot/internal/binance"
	"crypto-signal-bot/internal/database"
	"crypto-signal-bot/internal/strategy"
)

type fakeSource struct {
	result *analysis.ConsensusResult
	err    error
}

func (f *fakeSource) Analyze(ctx context.Context, symbol string) (*analysis.ConsensusResult, error) {
	return f.result, f.err
}

type fakeAlerter struct {
	sent []string
	err  error
}

func (f *fakeAlerter) SendConsensusAlert(ctx context.Context, result *analysis.ConsensusResult, verdict string) error {
	f.sent = append(f.sent, string(result.Signal))
	return f.err
}

type fakeRecorder struct {
	trades  []*database.Trade
	winRate *float64
}

func (f *fakeRecorder) CreateTrade(ctx context.Context, trade *database.Trade) error {
	f.trades = append(f.trades, trade)
	return nil
}

func (f *fakeRecorder) WinRate(ctx context.Context) (*float64, error) {
	return f.winRate, nil
}

type fakeValidator struct {
	verdict       *llm.ValidationResult
	open          bool
	marketContext string
}

func (f *fakeValidator) ValidateSignal(ctx context.Context, result *analysis.ConsensusResult, marketContext string, winRate *float64) *llm.ValidationResult {
	f.marketContext = marketContext
	return f.verdict
}

func (f *fakeValidator) ShouldOpen(verdict *llm.ValidationResult) bool {
	return f.open
}

func longConsensus(confidence float64) *analysis.ConsensusResult {
	return &analysis.ConsensusResult{
		Symbol:     "BTCUSDT",
		Signal:     strategy.SignalLong,
		Confidence: confidence,
		Setup: &analysis.TradingSetup{
			Timeframe:  "4h",
			Entry:      50000,
			StopLoss:   48500,
			TakeProfit: 53000,
			RiskReward: 2,
		},
	}
}

type fakeMarket struct {
	klines []binance.Kline
	err    error
	asked  string
}

func (f *fakeMarket) GetKlines(symbol, interval string, limit int) ([]binance.Kline, error) {
	f.asked = interval
	return f.klines, f.err
}

func newTestMonitor(source ConsensusSource, state AlertState, validator SignalValidator, alerter Alerter, trades TradeRecorder) *Monitor {
	return New(source, state, validator, alerter, trades, nil, Options{
		Symbol:        "BTCUSDT",
		FeeRate:       0.001,
		MinConfidence: 50,
		Interval:      time.Minute,
	}, zerolog.Nop())
}

func TestRunPassFirstSignalAlertsAndPersists(t *testing.T) {
	alerter := &fakeAlerter{}
	recorder := &fakeRecorder{}
	state := NewMemoryAlertState()
	m := newTestMonitor(&fakeSource{result: longConsensus(65)}, state, nil, alerter, recorder)

	if err := m.RunPass(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(alerter.sent) != 1 {
		t.Fatalf("alerts sent = %d, want 1", len(alerter.sent))
	}
	if len(recorder.trades) != 1 {
		t.Fatalf("trades persisted = %d, want 1", len(recorder.trades))
	}

	trade := recorder.trades[0]
	if trade.Side != database.TradeSideLong || trade.EntryPrice != 50000 {
		t.Errorf("trade = %+v, want long at 50000", trade)
	}
	if trade.StrategyName != "multi_timeframe_consensus" {
		t.Errorf("strategy name = %s", trade.StrategyName)
	}

	last, _ := state.Last(context.Background(), "BTCUSDT")
	if last == nil || last.Signal != strategy.SignalLong {
		t.Errorf("alert state = %+v, want the sent alert recorded", last)
	}
}

func TestRunPassSuppressesDuplicate(t *testing.T) {
	alerter := &fakeAlerter{}
	state := NewMemoryAlertState()
	m := newTestMonitor(&fakeSource{result: longConsensus(65)}, state, nil, alerter, nil)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Same signal ten minutes later, same strength.
	m.now = func() time.Time { return base.Add(10 * time.Minute) }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(alerter.sent) != 1 {
		t.Errorf("alerts sent = %d, want the repeat suppressed", len(alerter.sent))
	}
}

func TestRunPassRealertsAfterWindow(t *testing.T) {
	alerter := &fakeAlerter{}
	state := NewMemoryAlertState()
	m := newTestMonitor(&fakeSource{result: longConsensus(65)}, state, nil, alerter, nil)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	m.now = func() time.Time { return base.Add(realertAfter + time.Minute) }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(alerter.sent) != 2 {
		t.Errorf("alerts sent = %d, want a re-alert after the window", len(alerter.sent))
	}
}

func TestRunPassAlertsOnDirectionChange(t *testing.T) {
	alerter := &fakeAlerter{}
	state := NewMemoryAlertState()
	source := &fakeSource{result: longConsensus(65)}
	m := newTestMonitor(source, state, nil, alerter, nil)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	flipped := longConsensus(65)
	flipped.Signal = strategy.SignalShort
	source.result = flipped
	m.now = func() time.Time { return base.Add(5 * time.Minute) }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(alerter.sent) != 2 || alerter.sent[1] != "SHORT" {
		t.Errorf("alerts = %v, want an immediate alert on direction change", alerter.sent)
	}
}

func TestRunPassAlertsOnStrengthenedSetup(t *testing.T) {
	alerter := &fakeAlerter{}
	state := NewMemoryAlertState()
	source := &fakeSource{result: longConsensus(55)}
	m := newTestMonitor(source, state, nil, alerter, nil)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Confidence +15 and price moved over 1%.
	stronger := longConsensus(70)
	stronger.Setup.Entry = 51000
	source.result = stronger
	m.now = func() time.Time { return base.Add(30 * time.Minute) }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(alerter.sent) != 2 {
		t.Errorf("alerts sent = %d, want strengthened setup to re-alert", len(alerter.sent))
	}
}

func TestRunPassConfidenceJumpAloneIsNotEnough(t *testing.T) {
	alerter := &fakeAlerter{}
	state := NewMemoryAlertState()
	source := &fakeSource{result: longConsensus(55)}
	m := newTestMonitor(source, state, nil, alerter, nil)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Confidence jumped but price barely moved.
	stronger := longConsensus(70)
	source.result = stronger
	m.now = func() time.Time { return base.Add(30 * time.Minute) }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(alerter.sent) != 1 {
		t.Errorf("alerts sent = %d, want jump without price move suppressed", len(alerter.sent))
	}
}

func TestRunPassResetsStateOnNoSignal(t *testing.T) {
	alerter := &fakeAlerter{}
	state := NewMemoryAlertState()
	source := &fakeSource{result: longConsensus(65)}
	m := newTestMonitor(source, state, nil, alerter, nil)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The signal disappears, then reappears five minutes later. The reset
	// in between means it must alert again.
	source.result = &analysis.ConsensusResult{Symbol: "BTCUSDT", Signal: strategy.SignalNone}
	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	source.result = longConsensus(65)
	m.now = func() time.Time { return base.Add(5 * time.Minute) }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(alerter.sent) != 2 {
		t.Errorf("alerts sent = %d, want a fresh alert after the signal lapsed", len(alerter.sent))
	}
}

func TestRunPassConfidenceDipKeepsDedupState(t *testing.T) {
	alerter := &fakeAlerter{}
	state := NewMemoryAlertState()
	source := &fakeSource{result: longConsensus(65)}
	m := newTestMonitor(source, state, nil, alerter, nil)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The signal holds but confidence dips under the floor, then recovers.
	// The dip must not re-arm alerting for the unchanged signal.
	source.result = longConsensus(40)
	m.now = func() time.Time { return base.Add(15 * time.Minute) }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	source.result = longConsensus(65)
	m.now = func() time.Time { return base.Add(30 * time.Minute) }
	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(alerter.sent) != 1 {
		t.Errorf("alerts sent = %d, want the post-dip repeat suppressed", len(alerter.sent))
	}
}

func TestRunPassSuppliesMarketContextToValidator(t *testing.T) {
	validator := &fakeValidator{
		verdict: &llm.ValidationResult{QualityScore: 85, Recommendation: llm.RecommendationOpen},
		open:    true,
	}
	market := &fakeMarket{klines: []binance.Kline{
		{Open: 49000, High: 51000, Low: 48000, Close: 50000, Volume: 120},
		{Open: 50000, High: 52000, Low: 49500, Close: 51500, Volume: 80},
	}}
	m := New(&fakeSource{result: longConsensus(65)}, NewMemoryAlertState(), validator, nil, nil, market, Options{
		Symbol:        "BTCUSDT",
		MinConfidence: 50,
		Interval:      time.Minute,
	}, zerolog.Nop())

	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}

	if market.asked != "4h" {
		t.Errorf("market context timeframe = %s, want the setup's 4h", market.asked)
	}
	if !strings.Contains(validator.marketContext, "Last close: 51500") {
		t.Errorf("validator market context = %q, want recent price action included", validator.marketContext)
	}
	if !strings.Contains(validator.marketContext, "Average volume: 100.00") {
		t.Errorf("validator market context = %q, want the volume average", validator.marketContext)
	}
}

func TestRunPassMarketContextFetchFailureDegrades(t *testing.T) {
	validator := &fakeValidator{
		verdict: &llm.ValidationResult{QualityScore: 85, Recommendation: llm.RecommendationOpen},
		open:    true,
	}
	market := &fakeMarket{err: errors.New("rate limited")}
	alerter := &fakeAlerter{}
	m := New(&fakeSource{result: longConsensus(65)}, NewMemoryAlertState(), validator, alerter, nil, market, Options{
		Symbol:        "BTCUSDT",
		MinConfidence: 50,
		Interval:      time.Minute,
	}, zerolog.Nop())

	if err := m.RunPass(context.Background()); err != nil {
		t.Fatalf("market context failure must not fail the pass: %v", err)
	}
	if validator.marketContext != "" {
		t.Errorf("market context = %q, want empty on fetch failure", validator.marketContext)
	}
	if len(alerter.sent) != 1 {
		t.Errorf("alerts = %d, want the pass to continue without context", len(alerter.sent))
	}
}

func TestRunPassLowConfidenceIsIgnored(t *testing.T) {
	alerter := &fakeAlerter{}
	m := newTestMonitor(&fakeSource{result: longConsensus(30)}, NewMemoryAlertState(), nil, alerter, nil)

	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(alerter.sent) != 0 {
		t.Errorf("alerts sent = %d, want none below the confidence floor", len(alerter.sent))
	}
}

func TestRunPassAIGateBlocks(t *testing.T) {
	alerter := &fakeAlerter{}
	recorder := &fakeRecorder{}
	validator := &fakeValidator{
		verdict: &llm.ValidationResult{QualityScore: 20, Recommendation: llm.RecommendationSkip},
		open:    false,
	}
	m := newTestMonitor(&fakeSource{result: longConsensus(65)}, NewMemoryAlertState(), validator, alerter, recorder)

	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(alerter.sent) != 0 || len(recorder.trades) != 0 {
		t.Errorf("alerts=%d trades=%d, want the AI gate to block both", len(alerter.sent), len(recorder.trades))
	}
}

func TestRunPassAIVerdictStoredOnTrade(t *testing.T) {
	recorder := &fakeRecorder{}
	validator := &fakeValidator{
		verdict: &llm.ValidationResult{QualityScore: 85, Recommendation: llm.RecommendationOpen, Reasoning: "clean confluence"},
		open:    true,
	}
	m := newTestMonitor(&fakeSource{result: longConsensus(65)}, NewMemoryAlertState(), validator, nil, recorder)

	if err := m.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(recorder.trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(recorder.trades))
	}
	trade := recorder.trades[0]
	if trade.AIQualityScore == nil || *trade.AIQualityScore != 85 {
		t.Errorf("AI quality score = %v, want 85", trade.AIQualityScore)
	}
	if trade.AINote == nil || *trade.AINote != "clean confluence" {
		t.Errorf("AI note = %v", trade.AINote)
	}
}

func TestRunPassPropagatesAnalysisError(t *testing.T) {
	m := newTestMonitor(&fakeSource{err: errors.New("exchange down")}, NewMemoryAlertState(), nil, nil, nil)
	if err := m.RunPass(context.Background()); err == nil {
		t.Error("expected the analysis error to surface")
	}
}

func TestRunPassAlertFailureStillPersistsTrade(t *testing.T) {
	alerter := &fakeAlerter{err: errors.New("telegram down")}
	recorder := &fakeRecorder{}
	m := newTestMonitor(&fakeSource{result: longConsensus(65)}, NewMemoryAlertState(), nil, alerter, recorder)

	if err := m.RunPass(context.Background()); err != nil {
		t.Fatalf("alert failure must not fail the pass: %v", err)
	}
	if len(recorder.trades) != 1 {
		t.Errorf("trades = %d, want persistence independent of alert delivery", len(recorder.trades))
	}
}

func TestMemoryAlertStateRoundTrip(t *testing.T) {
	state := NewMemoryAlertState()
	ctx := context.Background()

	if last, err := state.Last(ctx, "BTCUSDT"); err != nil || last != nil {
		t.Fatalf("empty state = (%v, %v), want (nil, nil)", last, err)
	}

	alert := LastAlert{Signal: strategy.SignalLong, Price: 50000, Confidence: 65, SentAt: time.Now()}
	if err := state.Record(ctx, "BTCUSDT", alert); err != nil {
		t.Fatal(err)
	}
	last, err := state.Last(ctx, "BTCUSDT")
	if err != nil || last == nil || last.Price != 50000 {
		t.Fatalf("recorded state = (%+v, %v)", last, err)
	}

	if err := state.Reset(ctx, "BTCUSDT"); err != nil {
		t.Fatal(err)
	}
	if last, _ := state.Last(ctx, "BTCUSDT"); last != nil {
		t.Errorf("state after reset = %+v, want nil", last)
	}
}
