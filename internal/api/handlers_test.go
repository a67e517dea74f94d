package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func newTestServer() *Server {
	gin.SetMode(gin.TestMode)
	return NewServer(ServerConfig{
		Host:           "127.0.0.1",
		Port:           0,
		AllowedOrigins: "*",
	}, Deps{
		Symbol:    "BTCUSDT",
		Timeframe: "15m",
	}, zerolog.Nop())
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestListTradesRejectsUnknownStatus(t *testing.T) {
	s := newTestServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trades?status=pending", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListTradesRejectsBadLimit(t *testing.T) {
	s := newTestServer()

	for _, limit := range []string{"0", "-5", "5000", "abc"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/trades?limit="+limit, nil)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("limit %q: status = %d, want 400", limit, w.Code)
		}
	}
}

func TestSimpleSignalRejectsUnknownTimeframe(t *testing.T) {
	s := newTestServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/simple?timeframe=7m", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestValidateSignalWithoutValidator(t *testing.T) {
	s := newTestServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/validate-signal",
		strings.NewReader(`{"symbol":"BTCUSDT","signal":"LONG"}`))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when AI is not configured", w.Code)
	}
}
