package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/api"
	"github.com/stockgame/engine/internal/game"
	"github.com/stockgame/engine/internal/ledger"
	"github.com/stockgame/engine/internal/market"
	"github.com/stockgame/engine/internal/model"
	"github.com/stockgame/engine/internal/store"
	"github.com/stockgame/engine/internal/symbol"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

var testNow = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

// newTestEnv creates a loaded session over an in-memory store and mounts
// the service on a chi router.
func newTestEnv(t *testing.T, hub *api.WSHub) (*game.Session, chi.Router) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return testNow }
	catalog := symbol.NewCatalog(symbol.All())

	var notifier game.Notifier
	if hub != nil {
		notifier = hub
	}
	session := game.New(game.Config{StartingBalance: d(10000), HistoryDays: 30}, game.Deps{
		Catalog:   catalog,
		Generator: market.NewGenerator(fixedSource(0.5), catalog, market.WithClock(clock)),
		Ledger:    ledger.New(ledger.DefaultFee, ledger.WithClock(clock)),
		Store: store.NewStateStore(store.NewMemoryKV(), store.Defaults{
			StartingBalance: d(10000),
			PlayerName:      "Tester",
			NewID:           func() string { return "player-1" },
			Now:             clock,
		}, logger),
		Notifier: notifier,
		Logger:   logger,
	})
	session.Load(context.Background())

	r := chi.NewRouter()
	r.Route("/api/v1", api.NewService(session, hub).Routes)
	return session, r
}

func do(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body: %v (%s)", err, w.Body.String())
	}
	return body["error"]
}

// --- Trade execution tests ---

func TestExecuteTrade_Buy(t *testing.T) {
	_, router := newTestEnv(t, nil)

	w := do(t, router, "POST", "/api/v1/trade", api.TradeRequest{
		Action:   model.ActionBuy,
		Symbol:   "AAPL",
		Quantity: 10,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp game.TradeResult
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Trade.ID == "" {
		t.Error("expected non-empty trade id")
	}
	if !resp.Balance.Equal(d(8175.01)) {
		t.Errorf("balance = %s, want 8175.01", resp.Balance)
	}
	if resp.Holding == nil || resp.Holding.Shares != 10 {
		t.Errorf("holding = %+v", resp.Holding)
	}
}

func TestExecuteTrade_SelectedSymbol(t *testing.T) {
	_, router := newTestEnv(t, nil)

	w := do(t, router, "POST", "/api/v1/trade", api.TradeRequest{Action: model.ActionBuy, Quantity: 1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("no selection: expected 400, got %d", w.Code)
	}

	if w := do(t, router, "POST", "/api/v1/select", api.SelectRequest{Symbol: "msft"}); w.Code != http.StatusOK {
		t.Fatalf("select: %d %s", w.Code, w.Body.String())
	}
	w = do(t, router, "POST", "/api/v1/trade", api.TradeRequest{Action: model.ActionBuy, Quantity: 1})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp game.TradeResult
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Trade.Symbol != "MSFT" {
		t.Errorf("traded %q, want MSFT", resp.Trade.Symbol)
	}
}

func TestExecuteTrade_ErrorStatuses(t *testing.T) {
	_, router := newTestEnv(t, nil)
	stale := d(1)

	tests := []struct {
		name string
		req  api.TradeRequest
		code int
	}{
		{"invalid action", api.TradeRequest{Action: "short", Symbol: "AAPL", Quantity: 1}, http.StatusBadRequest},
		{"zero quantity", api.TradeRequest{Action: model.ActionBuy, Symbol: "AAPL"}, http.StatusBadRequest},
		{"unknown symbol", api.TradeRequest{Action: model.ActionBuy, Symbol: "ZZZZ", Quantity: 1}, http.StatusNotFound},
		{"insufficient funds", api.TradeRequest{Action: model.ActionBuy, Symbol: "NVDA", Quantity: 100}, http.StatusConflict},
		{"no holding", api.TradeRequest{Action: model.ActionSell, Symbol: "AAPL", Quantity: 1}, http.StatusConflict},
		{"stale price", api.TradeRequest{Action: model.ActionBuy, Symbol: "AAPL", Quantity: 1, ConfirmedPrice: &stale}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/trade", tt.req)
			if w.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			if errorOf(t, w) == "" {
				t.Error("expected an error message")
			}
		})
	}
}

func TestExecuteTrade_InvalidBody(t *testing.T) {
	_, router := newTestEnv(t, nil)
	req := httptest.NewRequest("POST", "/api/v1/trade", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestPreviewTrade(t *testing.T) {
	session, router := newTestEnv(t, nil)

	w := do(t, router, "POST", "/api/v1/trade/preview", api.TradeRequest{Action: model.ActionBuy, Symbol: "AAPL", Quantity: 100})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var pv ledger.Preview
	json.Unmarshal(w.Body.Bytes(), &pv)
	if pv.Valid || pv.Reason == "" {
		t.Errorf("100 AAPL should preview as invalid: %+v", pv)
	}
	if len(session.Trades()) != 0 {
		t.Error("preview executed a trade")
	}
}

// --- Read views ---

func TestListStocks(t *testing.T) {
	_, router := newTestEnv(t, nil)

	w := do(t, router, "GET", "/api/v1/stocks?q=semi", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var quotes []model.Quote
	json.Unmarshal(w.Body.Bytes(), &quotes)
	// Ticker or name match only; sector is not searched.
	if len(quotes) != 0 {
		t.Errorf("quotes = %+v", quotes)
	}

	w = do(t, router, "GET", "/api/v1/stocks?q=corp", nil)
	json.Unmarshal(w.Body.Bytes(), &quotes)
	if len(quotes) != 3 {
		t.Errorf("corp matched %d, want MSFT, NVDA and INTC", len(quotes))
	}
}

func TestGetStock(t *testing.T) {
	session, router := newTestEnv(t, nil)

	w := do(t, router, "GET", "/api/v1/stocks/tsla", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var det game.Detail
	json.Unmarshal(w.Body.Bytes(), &det)
	if det.Quote.Symbol != "TSLA" || det.Info.Sector != "Consumer Cyclical" || len(det.History) == 0 {
		t.Errorf("detail = %+v", det.Quote)
	}
	if session.Selected() != "" {
		t.Error("GET should not select")
	}

	if w := do(t, router, "GET", "/api/v1/stocks/NOPE", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown: expected 404, got %d", w.Code)
	}
}

func TestGetPortfolio_AfterTrade(t *testing.T) {
	_, router := newTestEnv(t, nil)
	do(t, router, "POST", "/api/v1/trade", api.TradeRequest{Action: model.ActionBuy, Symbol: "AMD", Quantity: 5})

	w := do(t, router, "GET", "/api/v1/portfolio", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var pf game.Portfolio
	json.Unmarshal(w.Body.Bytes(), &pf)
	if len(pf.Positions) != 1 || pf.Positions[0].Symbol != "AMD" {
		t.Fatalf("positions = %+v", pf.Positions)
	}
	// 10000 - 600 - 4.99
	if !pf.Balance.Equal(d(9395.01)) || !pf.TotalValue.Equal(d(9995.01)) {
		t.Errorf("balance %s value %s", pf.Balance, pf.TotalValue)
	}
}

func TestGetLeaderboardAndProfile(t *testing.T) {
	_, router := newTestEnv(t, nil)

	w := do(t, router, "GET", "/api/v1/leaderboard", nil)
	var board []model.LeaderboardEntry
	json.Unmarshal(w.Body.Bytes(), &board)
	if len(board) != 5 || board[0].Name != "WallStreetWolf" || !board[2].IsPlayer {
		t.Errorf("board = %+v", board)
	}

	w = do(t, router, "GET", "/api/v1/profile", nil)
	var prof game.Profile
	json.Unmarshal(w.Body.Bytes(), &prof)
	if prof.Name != "Tester" || prof.Rank != 3 || len(prof.Achievements) != 6 {
		t.Errorf("profile = %+v", prof)
	}
}

func TestExportTrades_CSV(t *testing.T) {
	_, router := newTestEnv(t, nil)
	do(t, router, "POST", "/api/v1/trade", api.TradeRequest{Action: model.ActionBuy, Symbol: "AAPL", Quantity: 10})
	do(t, router, "POST", "/api/v1/trade", api.TradeRequest{Action: model.ActionSell, Symbol: "AAPL", Quantity: 5})

	w := do(t, router, "GET", "/api/v1/trades.csv", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("got %d %q", w.Code, w.Header().Get("Content-Type"))
	}

	var rows []struct {
		Action string `csv:"action"`
		Symbol string `csv:"symbol"`
		Total  string `csv:"total"`
		Profit string `csv:"profit"`
	}
	if err := gocsv.UnmarshalString(w.Body.String(), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].Action != "sell" || rows[0].Total != "910.00" || rows[0].Profit != "0.00" {
		t.Errorf("newest row = %+v", rows[0])
	}
	if rows[1].Action != "buy" || rows[1].Profit != "" {
		t.Errorf("oldest row = %+v", rows[1])
	}
}

func TestToggleThemeAndReset(t *testing.T) {
	session, router := newTestEnv(t, nil)

	w := do(t, router, "POST", "/api/v1/theme/toggle", nil)
	var th api.ThemeResponse
	json.Unmarshal(w.Body.Bytes(), &th)
	if th.Theme != model.ThemeLight {
		t.Errorf("theme = %q", th.Theme)
	}

	do(t, router, "POST", "/api/v1/trade", api.TradeRequest{Action: model.ActionBuy, Symbol: "INTC", Quantity: 3})
	w = do(t, router, "POST", "/api/v1/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: %d %s", w.Code, w.Body.String())
	}
	if len(session.Trades()) != 0 || session.ViewProfile().Theme != model.ThemeDark {
		t.Error("reset should restore a fresh game")
	}
}

// --- WebSocket ---

func TestWSHub_BroadcastsTrades(t *testing.T) {
	hub := api.NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	_, router := newTestEnv(t, hub)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Clients() != 1 {
		t.Fatalf("clients = %d", hub.Clients())
	}

	hub.Publish(game.Event{Type: game.EventTradeExecuted, Symbol: "AAPL"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var ev game.Event
	json.Unmarshal(msg, &ev)
	if ev.Type != game.EventTradeExecuted || ev.Symbol != "AAPL" {
		t.Errorf("event = %+v", ev)
	}
}
