package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vitos/points_trading/internal/domain"
	"github.com/vitos/points_trading/internal/usecase"
	"go.uber.org/zap"
)

type positionView struct {
	ID           int64   `json:"id"`
	Symbol       string  `json:"symbol"`
	Direction    string  `json:"direction"`
	EntryPrice   float64 `json:"entry_price"`
	CurrentPrice float64 `json:"current_price"`
	Stake        int64   `json:"stake"`
	Leverage     int     `json:"leverage"`
	Duration     string  `json:"duration"`
	OpenedAt     string  `json:"opened_at"`
	ClosesAt     string  `json:"closes_at"`
	Status       string  `json:"status"`
	ProfitLoss   int64   `json:"profit_loss"`
	ChangePct    float64 `json:"change_pct"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.service.Balance(r.Context(), s.userID)
	if err != nil {
		s.logger.Error("Failed to get balance", zap.Error(err))
		http.Error(w, "Failed to get balance", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int64{"balance": balance})
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.service.Positions(r.Context(), s.userID)
	if err != nil {
		s.logger.Error("Failed to list positions", zap.Error(err))
		http.Error(w, "Failed to list positions", http.StatusInternalServerError)
		return
	}

	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, toView(p))
	}
	writeJSON(w, views)
}

func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol    string `json:"symbol"`
		Category  string `json:"category"`
		Direction string `json:"direction"`
		Stake     int64  `json:"stake"`
		Duration  string `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	asset := domain.Asset{Symbol: req.Symbol, Category: req.Category}
	pos, err := s.service.Open(r.Context(), s.userID, asset,
		domain.Direction(req.Direction), req.Stake, domain.Duration(req.Duration))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientBalance),
			errors.Is(err, domain.ErrInvalidStake),
			errors.Is(err, domain.ErrInvalidDuration):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrPriceUnavailable):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			s.logger.Error("Failed to open position", zap.Error(err))
			http.Error(w, "Failed to open position", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, toView(pos))
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid position id", http.StatusBadRequest)
		return
	}

	pos, err := s.service.GetPosition(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrPositionNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.logger.Error("Failed to get position", zap.Error(err))
		http.Error(w, "Failed to get position", http.StatusInternalServerError)
		return
	}
	if pos.UserID != s.userID {
		http.Error(w, "Position not found", http.StatusNotFound)
		return
	}

	snapshot := s.service.Cache().Snapshot([]string{pos.Symbol})
	closed, err := s.service.CloseEarly(r.Context(), pos, snapshot)
	if err != nil {
		if errors.Is(err, domain.ErrPositionNotActive) {
			// Already settled, e.g. by the expiry sweep. Report the final state.
			if latest, gerr := s.service.GetPosition(r.Context(), id); gerr == nil {
				pos = latest
			}
			writeJSON(w, toView(pos))
			return
		}
		s.logger.Error("Failed to close position", zap.Error(err))
		http.Error(w, "Failed to close position", http.StatusInternalServerError)
		return
	}
	writeJSON(w, toView(closed))
}

func toView(p *domain.Position) positionView {
	var change float64
	if p.EntryPrice > 0 {
		change = usecase.LeveragedChangePct(p.EntryPrice, p.CurrentPrice, p.Direction, p.Leverage)
	}
	return positionView{
		ID:           p.ID,
		Symbol:       p.Symbol,
		Direction:    string(p.Direction),
		EntryPrice:   p.EntryPrice,
		CurrentPrice: p.CurrentPrice,
		Stake:        p.Stake,
		Leverage:     p.Leverage,
		Duration:     string(p.Duration),
		OpenedAt:     p.OpenedAt.Format("2006-01-02 15:04:05"),
		ClosesAt:     p.ClosesAt.Format("2006-01-02 15:04:05"),
		Status:       string(p.Status),
		ProfitLoss:   p.ProfitLoss,
		ChangePct:    change,
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
