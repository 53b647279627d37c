package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-sportsbot/internal/orderbook"
	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"go.uber.org/zap"
)

// PortfolioHandler serves read-only portfolio and book endpoints.
type PortfolioHandler struct {
	state   *state.Manager
	tracker *orderbook.Tracker
	logger  *zap.Logger
}

// NewPortfolioHandler creates a new portfolio handler.
func NewPortfolioHandler(st *state.Manager, tracker *orderbook.Tracker, logger *zap.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		state:   st,
		tracker: tracker,
		logger:  logger,
	}
}

// PositionJSON is the wire form of one open position.
type PositionJSON struct {
	MarketSlug    string `json:"market_slug"`
	Side          string `json:"side"`
	Quantity      int64  `json:"quantity"`
	AvgEntryPrice string `json:"avg_entry_price"`
	CostBasis     string `json:"cost_basis"`
	RealizedPnL   string `json:"realized_pnl"`
	OpenedAt      string `json:"opened_at"`
}

// OrderJSON is the wire form of one open order.
type OrderJSON struct {
	OrderID           string `json:"order_id"`
	MarketSlug        string `json:"market_slug"`
	Side              string `json:"side"`
	Intent            string `json:"intent"`
	Price             string `json:"price"`
	OriginalQuantity  int64  `json:"original_quantity"`
	RemainingQuantity int64  `json:"remaining_quantity"`
	Status            string `json:"status"`
	Strategy          string `json:"strategy"`
	CreatedAt         string `json:"created_at"`
}

// PnLJSON is the wire form of a portfolio snapshot.
type PnLJSON struct {
	Balance     string `json:"balance"`
	Equity      string `json:"equity"`
	RealizedPnL string `json:"realized_pnl"`
	Positions   int    `json:"positions"`
	OpenOrders  int    `json:"open_orders"`
	TakenAt     string `json:"taken_at"`
}

// LevelJSON is one book level.
type LevelJSON struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookJSON is the wire form of one token's tracked book.
type BookJSON struct {
	TokenID     string      `json:"token_id"`
	MarketSlug  string      `json:"market_slug"`
	Bids        []LevelJSON `json:"bids"`
	Asks        []LevelJSON `json:"asks"`
	Sequence    int64       `json:"sequence"`
	LastUpdated string      `json:"last_updated"`
}

// ErrorResponse is a JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandlePositions handles GET /api/positions.
func (h *PortfolioHandler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	positions := h.state.AllPositions()

	out := make([]PositionJSON, 0, len(positions))
	for _, pos := range positions {
		out = append(out, PositionJSON{
			MarketSlug:    pos.MarketSlug,
			Side:          string(pos.Side),
			Quantity:      pos.Quantity,
			AvgEntryPrice: pos.AvgEntryPrice.String(),
			CostBasis:     pos.CostBasis().String(),
			RealizedPnL:   pos.RealizedPnL.String(),
			OpenedAt:      pos.OpenedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, out)
}

// HandleOrders handles GET /api/orders.
func (h *PortfolioHandler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.state.OpenOrders()

	out := make([]OrderJSON, 0, len(orders))
	for _, order := range orders {
		out = append(out, OrderJSON{
			OrderID:           order.OrderID,
			MarketSlug:        order.MarketSlug,
			Side:              string(order.Side),
			Intent:            string(order.Intent),
			Price:             order.Price.String(),
			OriginalQuantity:  order.OriginalQuantity,
			RemainingQuantity: order.RemainingQuantity,
			Status:            string(order.Status),
			Strategy:          order.Strategy,
			CreatedAt:         order.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, out)
}

// HandlePnL handles GET /api/pnl.
func (h *PortfolioHandler) HandlePnL(w http.ResponseWriter, r *http.Request) {
	snap := h.state.TakeSnapshot(time.Now())

	h.writeJSON(w, http.StatusOK, PnLJSON{
		Balance:     snap.Balance.String(),
		Equity:      snap.Equity.String(),
		RealizedPnL: snap.RealizedPnL.String(),
		Positions:   snap.Positions,
		OpenOrders:  snap.OpenOrders,
		TakenAt:     snap.TakenAt.Format(time.RFC3339),
	})
}

// HandleBook handles GET /api/books/{token}.
func (h *PortfolioHandler) HandleBook(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "token")
	if tokenID == "" {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing token"})
		return
	}

	snapshot, ok := h.tracker.Snapshot(tokenID)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "book not tracked"})
		return
	}

	book := BookJSON{
		TokenID:     snapshot.TokenID,
		MarketSlug:  snapshot.MarketSlug,
		Bids:        make([]LevelJSON, 0, len(snapshot.Bids)),
		Asks:        make([]LevelJSON, 0, len(snapshot.Asks)),
		Sequence:    snapshot.Sequence,
		LastUpdated: snapshot.LastUpdated.Format(time.RFC3339),
	}
	for _, lvl := range snapshot.Bids {
		book.Bids = append(book.Bids, LevelJSON{Price: lvl.Price.String(), Size: lvl.Size.String()})
	}
	for _, lvl := range snapshot.Asks {
		book.Asks = append(book.Asks, LevelJSON{Price: lvl.Price.String(), Size: lvl.Size.String()})
	}

	h.writeJSON(w, http.StatusOK, book)
}

func (h *PortfolioHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}
