package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/strategy"
)

// LastAlert is what the monitor remembers about the most recent alert it
// sent for a symbol.
type LastAlert struct {
	Signal     strategy.SignalType `json:"signal"`
	Price      float64             `json:"price"`
	Confidence float64             `json:"confidence"`
	SentAt     time.Time           `json:"sent_at"`
}

// AlertState stores per-symbol alert history for deduplication. Lookups
// return nil when no alert has been recorded.
type AlertState interface {
	Last(ctx context.Context, symbol string) (*LastAlert, error)
	Record(ctx context.Context, symbol string, alert LastAlert) error
	Reset(ctx context.Context, symbol string) error
}

// MemoryAlertState keeps alert history in process memory. It is the default
// when Redis is not configured; history is lost on restart, which only means
// one extra alert after a deploy.
type MemoryAlertState struct {
	mu     sync.Mutex
	alerts map[string]LastAlert
}

func NewMemoryAlertState() *MemoryAlertState {
	return &MemoryAlertState{alerts: make(map[string]LastAlert)}
}

func (s *MemoryAlertState) Last(ctx context.Context, symbol string) (*LastAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[symbol]
	if !ok {
		return nil, nil
	}
	return &alert, nil
}

func (s *MemoryAlertState) Record(ctx context.Context, symbol string, alert LastAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[symbol] = alert
	return nil
}

func (s *MemoryAlertState) Reset(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alerts, symbol)
	return nil
}

// redisAlertTTL bounds how long stale alert history lingers in Redis.
const redisAlertTTL = 7 * 24 * time.Hour

// RedisAlertState keeps alert history in Redis so deduplication survives
// restarts.
type RedisAlertState struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedisAlertState(client *redis.Client, logger zerolog.Logger) *RedisAlertState {
	return &RedisAlertState{
		client: client,
		logger: logger.With().Str("component", "alert_state").Logger(),
	}
}

func alertKey(symbol string) string {
	return "signal:last_alert:" + symbol
}

func (s *RedisAlertState) Last(ctx context.Context, symbol string) (*LastAlert, error) {
	raw, err := s.client.Get(ctx, alertKey(symbol)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read alert state: %w", err)
	}

	var alert LastAlert
	if err := json.Unmarshal([]byte(raw), &alert); err != nil {
		// Corrupt state is dropped rather than wedging the monitor.
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("discarding unreadable alert state")
		return nil, nil
	}
	return &alert, nil
}

func (s *RedisAlertState) Record(ctx context.Context, symbol string, alert LastAlert) error {
	raw, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert state: %w", err)
	}
	if err := s.client.Set(ctx, alertKey(symbol), raw, redisAlertTTL).Err(); err != nil {
		return fmt.Errorf("failed to store alert state: %w", err)
	}
	return nil
}

func (s *RedisAlertState) Reset(ctx context.Context, symbol string) error {
	if err := s.client.Del(ctx, alertKey(symbol)).Err(); err != nil {
		return fmt.Errorf("failed to reset alert state: %w", err)
	}
	return nil
}
