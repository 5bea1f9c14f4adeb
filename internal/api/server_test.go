package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"signal-core/internal/engine"
	"signal-core/internal/followup"
	"signal-core/internal/locks"
	"signal-core/internal/mockex"
	"signal-core/internal/order"
	"signal-core/internal/position"
	"signal-core/internal/risk"
	"signal-core/internal/router"
	"signal-core/pkg/db"
	"signal-core/pkg/exchanges/common"
)

type btcResolver struct{}

func (btcResolver) Resolve(ctx context.Context, coin string) (string, common.Filters, error) {
	f, err := mockex.BTCFilters()(ctx, "BTCUSDT")
	return "BTCUSDT", f, err
}

func newTestServer(t *testing.T) (*Server, *db.Database) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ex := &mockex.Mock{MarkPrice: 86100}
	v := common.NewValidator(ex, mockex.BTCFilters(), 3)
	creator := order.NewCreator(v, mockex.BTCFilters(), 0.05)
	sl := risk.NewStopLossManager(v, creator)
	tp := risk.NewTakeProfitManager(v, creator)
	resolve := func(ctx context.Context, coin string) (string, common.Filters, error) {
		return btcResolver{}.Resolve(ctx, coin)
	}
	pos := position.NewManager(v, database, resolve, nil, 0.0002)
	reg := locks.NewRegistry()
	eng := engine.New(v, btcResolver{}, creator, sl, tp, pos, database, nil, reg,
		nil, engine.Params{TradeAmount: 100, DryRun: true})

	r := router.New(map[string]*engine.Engine{"binance": eng}, nil, "binance")
	fp := followup.NewProcessor(database, r, reg, 5*time.Minute)

	hash, err := HashAccessKey("test-key")
	if err != nil {
		t.Fatal(err)
	}
	AccessKeyHash = hash

	return NewServer(r, fp, nil, database, "test-secret", SystemMeta{DryRun: true, Venues: []string{"binance"}}), database
}

func bearerToken(t *testing.T, s *Server) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"client_id": "test", "access_key": "test-key"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", bytes.NewReader(body))
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("token issue = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Token
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/trades", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestTokenIssueRejectsWrongKey(t *testing.T) {
	s, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"access_key": "wrong"})
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/token", bytes.NewReader(body)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestPostSignalAndListTrades(t *testing.T) {
	s, _ := newTestServer(t)
	token := bearerToken(t, s)

	payload := map[string]any{
		"coin_symbol":       "BTC",
		"position_type":     "LONG",
		"order_type":        "LIMIT",
		"entry_prices":      []float64{86050, 85050},
		"stop_loss":         83058,
		"take_profits":      []float64{88000},
		"trader":            "@Johnny",
		"source_message_id": "msg-1",
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	}
	body, _ := json.Marshal(payload)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/signals", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("post signal = %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/trades?coin=BTC&status=OPEN", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get trades = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Trades []db.Trade `json:"trades"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Trades) != 1 || resp.Trades[0].Status != db.TradeOpen {
		t.Fatalf("trades = %+v, want one OPEN trade", resp.Trades)
	}
}

func TestPostSignalValidationError(t *testing.T) {
	s, _ := newTestServer(t)
	token := bearerToken(t, s)

	body, _ := json.Marshal(map[string]any{
		"coin_symbol":       "BTC",
		"position_type":     "SIDEWAYS",
		"order_type":        "LIMIT",
		"entry_prices":      []float64{86050},
		"trader":            "@Johnny",
		"source_message_id": "msg-bad",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/signals", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestFuturesMirrorEndpoints(t *testing.T) {
	s, database := newTestServer(t)
	token := bearerToken(t, s)

	body, _ := json.Marshal(map[string]string{"trader": "@Johnny", "content": "BTC Entry: 86050"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/futures", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("post futures = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/futures/1/close", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("close futures = %d: %s", w.Code, w.Body.String())
	}

	closed, err := database.ClosedFuturesSince(context.Background(), time.Now().Add(-time.Minute), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(closed) != 1 || closed[0].ID != resp.ID {
		t.Fatalf("closed = %+v, want entry %d", closed, resp.ID)
	}
}
