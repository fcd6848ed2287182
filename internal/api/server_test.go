package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trading-bot/config"
	"paper-trading-bot/internal/auth"
	"paper-trading-bot/internal/bot"
	"paper-trading-bot/internal/broker"
	"paper-trading-bot/internal/events"
	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/market"
	"paper-trading-bot/internal/monitor"
	"paper-trading-bot/internal/risk"
	"paper-trading-bot/internal/signal"
	"paper-trading-bot/internal/state"
	"paper-trading-bot/internal/tradelog"
)

func testLog() *logging.Logger {
	return logging.New(&logging.Config{Level: "error", JSONFormat: true})
}

type emptySource struct{}

func (emptySource) Fetch(_ context.Context, _ string, _, _ time.Time, _ string) ([]market.Candle, string, error) {
	return nil, "stub", nil
}

func testServer(t *testing.T, authEnabled bool) (*Server, *tradelog.MemoryRecorder) {
	t.Helper()
	log := testLog()

	cfg := config.Default()
	cfg.BotConfig.AnalysisIntervalSeconds = 3600
	cfg.StateConfig.RecoveryFile = filepath.Join(t.TempDir(), "recovery.json")

	riskMgr := risk.NewManager(risk.Config{
		RiskPercent:     1.0,
		MaxPositionSize: 10,
		StopMode:        "percent",
		StopLossPercent: 1.0, TakeProfitPercent: 2.0,
		PricePrecision: 2,
	}, log)
	registry := signal.NewDefaultRegistry(cfg.SignalConfig.ADXTrendThreshold)
	gen, err := signal.NewGenerator(signal.Config{
		MinConfluence:   cfg.SignalConfig.MinConfluence,
		LongConditions:  cfg.SignalConfig.LongConditions,
		ShortConditions: cfg.SignalConfig.ShortConditions,
	}, registry, log)
	require.NoError(t, err)

	bus := events.NewEventBus()
	trades := tradelog.NewMemoryRecorder(100)
	engine, err := bot.NewEngine(cfg, bot.Deps{
		Broker:     broker.NewPaperBroker(cfg.BotConfig.PaperBalance, cfg.BotConfig.FeePercent, log),
		Source:     emptySource{},
		Indicators: market.NewDefaultIndicators(market.DefaultIndicatorConfig()),
		Signals:    gen,
		Risk:       riskMgr,
		Monitor:    monitor.NewMonitor(riskMgr, 1.0, bus, log),
		Store:      state.NewFileStore(cfg.StateConfig.RecoveryFile, log),
		Trades:     trades,
		Bus:        bus,
	}, log)
	require.NoError(t, err)

	authCfg := config.AuthConfig{AccessTokenDuration: time.Minute, OperatorUser: "operator"}
	if authEnabled {
		hash, err := auth.HashPassword("op-secret")
		require.NoError(t, err)
		authCfg.Enabled = true
		authCfg.JWTSecret = "test-secret"
		authCfg.OperatorPasswordHash = hash
	}

	server := NewServer(cfg.ServerConfig, engine, trades, auth.NewService(authCfg, log), bus, log)
	return server, trades
}

func doRequest(s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t, false)

	w := doRequest(s, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "IDLE", resp["state"])
}

func TestStatusWithoutAuth(t *testing.T) {
	s, _ := testServer(t, false)

	w := doRequest(s, http.MethodGet, "/api/bot/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status bot.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, bot.StateIdle, status.State)
	assert.Equal(t, "BTCUSDT", status.Symbol)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s, _ := testServer(t, true)

	w := doRequest(s, http.MethodGet, "/api/bot/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(s, http.MethodPost, "/api/auth/login",
		`{"username":"operator","password":"op-secret"}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	var login struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotEmpty(t, login.AccessToken)

	w = doRequest(s, http.MethodGet, "/api/bot/status", "", login.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s, _ := testServer(t, true)

	w := doRequest(s, http.MethodPost, "/api/auth/login",
		`{"username":"operator","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStartAndStop(t *testing.T) {
	s, _ := testServer(t, false)

	w := doRequest(s, http.MethodPost, "/api/bot/stop", `{}`, "")
	assert.Equal(t, http.StatusConflict, w.Code, "stopping an idle engine conflicts")

	w = doRequest(s, http.MethodPost, "/api/bot/start", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodPost, "/api/bot/start", "", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(s, http.MethodPost, "/api/bot/stop", `{"close_position":false}`, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestClosePositionWithoutPosition(t *testing.T) {
	s, _ := testServer(t, false)

	w := doRequest(s, http.MethodPost, "/api/position/close", `{"reason":"test"}`, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTradesEndpoint(t *testing.T) {
	s, trades := testServer(t, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, trades.Open(ctx, &tradelog.Entry{
			Symbol: "BTCUSDT", Side: broker.SideBuy, Quantity: 1, EntryPrice: 100,
		}))
	}

	w := doRequest(s, http.MethodGet, "/api/trades?limit=2", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Trades []tradelog.Entry `json:"trades"`
		Count  int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, int64(3), resp.Trades[0].ID)
}

func TestSignalsEndpointEmpty(t *testing.T) {
	s, _ := testServer(t, false)

	w := doRequest(s, http.MethodGet, "/api/signals", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
}

func TestLoginRateLimit(t *testing.T) {
	s, _ := testServer(t, true)

	var last int
	for i := 0; i < 12; i++ {
		w := doRequest(s, http.MethodPost, "/api/auth/login",
			`{"username":"operator","password":"wrong"}`, "")
		last = w.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
