// Package api serves the game session over HTTP: JSON handlers for every
// player command plus a CSV export of the trade log.
//
// All monetary values use shopspring/decimal and serialize as strings.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/game"
	"github.com/stockgame/engine/internal/ledger"
	"github.com/stockgame/engine/internal/model"
)

// Service exposes a game session over HTTP.
type Service struct {
	session *game.Session
	hub     *WSHub // optional WebSocket endpoint
}

// NewService creates the HTTP service. Pass nil for hub if WebSocket
// streaming is not needed.
func NewService(session *game.Session, hub *WSHub) *Service {
	return &Service{session: session, hub: hub}
}

// Routes mounts every endpoint under r, which is expected to be the
// /api/v1 subrouter.
func (s *Service) Routes(r chi.Router) {
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	r.Get("/stocks", s.ListStocks)
	r.Get("/stocks/{symbol}", s.GetStock)
	r.Post("/select", s.SelectSymbol)

	r.Post("/trade/preview", s.PreviewTrade)
	r.Post("/trade", s.ExecuteTrade)

	r.Get("/portfolio", s.GetPortfolio)
	r.Get("/leaderboard", s.GetLeaderboard)
	r.Get("/profile", s.GetProfile)
	r.Get("/trades", s.ListTrades)
	r.Get("/trades.csv", s.ExportTrades)

	r.Post("/theme/toggle", s.ToggleTheme)
	r.Post("/reset", s.Reset)
}

// --- Request/Response types ---

// SelectRequest is the JSON body for POST /select.
type SelectRequest struct {
	Symbol string `json:"symbol"`
}

// TradeRequest is the JSON body for POST /trade and POST /trade/preview.
type TradeRequest struct {
	Action         model.Action     `json:"action"`   // "buy" or "sell"
	Symbol         string           `json:"symbol"`   // empty = selected symbol
	Quantity       int64            `json:"quantity"` // whole shares
	ConfirmedPrice *decimal.Decimal `json:"confirmed_price,omitempty"`
}

// ThemeResponse is returned from POST /theme/toggle.
type ThemeResponse struct {
	Theme model.Theme `json:"theme"`
}

// tradeRow is one line of the CSV trade export.
type tradeRow struct {
	ID            string `csv:"id"`
	Timestamp     string `csv:"timestamp"`
	Action        string `csv:"action"`
	Symbol        string `csv:"symbol"`
	Quantity      int64  `csv:"quantity"`
	Price         string `csv:"price"`
	Total         string `csv:"total"`
	Fee           string `csv:"fee"`
	Profit        string `csv:"profit"`
	ProfitPercent string `csv:"profit_percent"`
}

// --- HTTP Handlers ---

// ListStocks handles GET /api/v1/stocks?q=<term>
func (s *Service) ListStocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Search(r.URL.Query().Get("q")))
}

// GetStock handles GET /api/v1/stocks/{symbol}
// Returns the detail view without changing the selection.
func (s *Service) GetStock(w http.ResponseWriter, r *http.Request) {
	detail, err := s.session.Stock(chi.URLParam(r, "symbol"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// SelectSymbol handles POST /api/v1/select
func (s *Service) SelectSymbol(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Symbol) == "" {
		writeError(w, "symbol is required", http.StatusBadRequest)
		return
	}
	detail, err := s.session.SelectSymbol(r.Context(), req.Symbol)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// PreviewTrade handles POST /api/v1/trade/preview
// A preview that would be rejected is still 200 with valid=false.
func (s *Service) PreviewTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	pv, err := s.session.PreviewTrade(req.Action, req.Symbol, req.Quantity)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pv)
}

// ExecuteTrade handles POST /api/v1/trade
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.session.ExecuteTrade(r.Context(), game.TradeRequest{
		Action:         req.Action,
		Symbol:         req.Symbol,
		Quantity:       req.Quantity,
		ConfirmedPrice: req.ConfirmedPrice,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetPortfolio handles GET /api/v1/portfolio
func (s *Service) GetPortfolio(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.ViewPortfolio())
}

// GetLeaderboard handles GET /api/v1/leaderboard
func (s *Service) GetLeaderboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.ViewLeaderboard())
}

// GetProfile handles GET /api/v1/profile
func (s *Service) GetProfile(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.ViewProfile())
}

// ListTrades handles GET /api/v1/trades
// Returns the trade log newest first.
func (s *Service) ListTrades(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Trades())
}

// ExportTrades handles GET /api/v1/trades.csv
func (s *Service) ExportTrades(w http.ResponseWriter, _ *http.Request) {
	trades := s.session.Trades()
	rows := make([]*tradeRow, 0, len(trades))
	for _, t := range trades {
		row := &tradeRow{
			ID:        t.ID,
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
			Action:    string(t.Action),
			Symbol:    t.Symbol,
			Quantity:  t.Quantity,
			Price:     t.Price.StringFixed(2),
			Total:     t.Total.StringFixed(2),
			Fee:       t.Fee.StringFixed(2),
		}
		if t.Profit != nil {
			row.Profit = t.Profit.StringFixed(2)
		}
		if t.ProfitPercent != nil {
			row.ProfitPercent = t.ProfitPercent.StringFixed(2)
		}
		rows = append(rows, row)
	}

	csv, err := gocsv.MarshalString(&rows)
	if err != nil {
		slog.Error("trade export failed", "err", err)
		writeError(w, "failed to export trades", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="trades.csv"`)
	w.Write([]byte(csv))
}

// ToggleTheme handles POST /api/v1/theme/toggle
func (s *Service) ToggleTheme(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ThemeResponse{Theme: s.session.ToggleTheme(r.Context())})
}

// Reset handles POST /api/v1/reset
// Wipes stored state and returns the fresh profile.
func (s *Service) Reset(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ResetSession(r.Context()); err != nil {
		slog.Error("session reset failed", "err", err)
		writeError(w, "failed to reset session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.session.ViewProfile())
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrUnknownSymbol):
		return http.StatusNotFound
	case errors.Is(err, game.ErrNoSymbolSelected),
		errors.Is(err, game.ErrInvalidAction),
		errors.Is(err, ledger.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrStaleQuote),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientShares),
		errors.Is(err, ledger.ErrNoSuchHolding):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
