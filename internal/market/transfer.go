package market

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"
)

// TransferCoinsRequest is the JSON body for POST /api/v1/transfers.
type TransferCoinsRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// BuyFromGridRequest is the JSON body for POST /api/v1/grid/buy.
type BuyFromGridRequest struct {
	Buyer  string          `json:"buyer"`
	Amount decimal.Decimal `json:"amount"` // energy units
}

// TransferCoins handles POST /api/v1/transfers. It moves coins between
// two participants. The source must cover the amount with both its coin
// balance and its frozen coins.
func (s *Service) TransferCoins(w http.ResponseWriter, r *http.Request) {
	var req TransferCoinsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	from, err := s.store.GetParticipant(ctx, req.From)
	if err != nil {
		writeErr(w, err)
		return
	}
	to, err := s.store.GetParticipant(ctx, req.To)
	if err != nil {
		writeErr(w, err)
		return
	}

	if from.CoinBalance.LessThan(req.Amount) || from.FrozenCoins.LessThan(req.Amount) {
		writeErr(w, fmt.Errorf("%w: participant %s has %s coins (%s frozen), needs %s",
			ErrInsufficientFunds, from.ID, from.CoinBalance, from.FrozenCoins, req.Amount))
		return
	}

	from.CoinBalance = from.CoinBalance.Sub(req.Amount)
	to.CoinBalance = to.CoinBalance.Add(req.Amount)

	if err := s.store.UpdateParticipant(ctx, from); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.store.UpdateParticipant(ctx, to); err != nil {
		writeErr(w, err)
		return
	}

	slog.Info("coins transferred", "from", from.ID, "to", to.ID, "amount", req.Amount)
	w.WriteHeader(http.StatusNoContent)
}

// BuyFromGrid handles POST /api/v1/grid/buy. The buyer purchases energy
// directly from the grid at the grid's buy price, outside any auction.
func (s *Service) BuyFromGrid(w http.ResponseWriter, r *http.Request) {
	var req BuyFromGridRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	buyer, err := s.store.GetParticipant(ctx, req.Buyer)
	if err != nil {
		writeErr(w, err)
		return
	}
	grid, err := s.store.GetGrid(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}

	cost := req.Amount.Mul(decimal.NewFromInt(grid.GridBuyPrice))
	if buyer.CoinBalance.LessThan(cost) || buyer.FrozenCoins.LessThan(cost) {
		writeErr(w, fmt.Errorf("%w: participant %s has %s coins (%s frozen), needs %s",
			ErrInsufficientFunds, buyer.ID, buyer.CoinBalance, buyer.FrozenCoins, cost))
		return
	}

	buyer.CoinBalance = buyer.CoinBalance.Sub(cost)
	buyer.EnergyBalance = buyer.EnergyBalance.Add(req.Amount)
	grid.CoinBalance = grid.CoinBalance.Add(cost)
	grid.EnergyBalance = grid.EnergyBalance.Sub(req.Amount)

	if err := s.store.UpdateParticipant(ctx, buyer); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.store.PutGrid(ctx, grid); err != nil {
		writeErr(w, err)
		return
	}

	slog.Info("grid purchase", "buyer", buyer.ID, "amount", req.Amount, "cost", cost)
	writeJSON(w, http.StatusOK, map[string]any{
		"buyer": buyer,
		"grid":  grid,
	})
}
