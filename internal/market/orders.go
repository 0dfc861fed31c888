package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hypenergy/energymarket/internal/auction"
	"github.com/hypenergy/energymarket/internal/metrics"
	"github.com/hypenergy/energymarket/internal/model"
)

// PlaceOrderRequest is the JSON body for POST /api/v1/bids and /asks.
// Price and amount never reach the public record; they are written to the
// sender's private collection.
type PlaceOrderRequest struct {
	ID        string `json:"id"`
	AuctionID string `json:"auction_id"`
	Sender    string `json:"sender"`
	Price     int64  `json:"price"`
	Amount    int64  `json:"amount"`
}

// PlaceBid handles POST /api/v1/bids.
func (s *Service) PlaceBid(w http.ResponseWriter, r *http.Request) {
	s.placeOrder(w, r, model.SideBid)
}

// PlaceAsk handles POST /api/v1/asks.
func (s *Service) PlaceAsk(w http.ResponseWriter, r *http.Request) {
	s.placeOrder(w, r, model.SideAsk)
}

func (s *Service) placeOrder(w http.ResponseWriter, r *http.Request, side model.OrderSide) {
	caller := r.Header.Get(identityHeader)
	if caller == "" {
		writeErr(w, ErrMissingIdentity)
		return
	}

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// The caller's participant must be the declared sender.
	participant, err := s.store.GetParticipantByFingerprint(ctx, caller)
	if err != nil {
		writeErr(w, err)
		return
	}
	if participant.ID != req.Sender {
		writeErr(w, fmt.Errorf("%w: expected sender %q, got %q",
			ErrSenderMismatch, participant.ID, req.Sender))
		return
	}

	if req.Price < 0 || req.Price >= int64(s.priceLevels) {
		writeErr(w, fmt.Errorf("%w: price %d, axis is [0,%d)",
			auction.ErrPriceOutOfRange, req.Price, s.priceLevels))
		return
	}
	if req.Amount <= 0 {
		writeErr(w, fmt.Errorf("%w: amount %d", auction.ErrInvalidAmount, req.Amount))
		return
	}

	a, err := s.store.GetAuction(ctx, req.AuctionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if a.Status != model.AuctionOpen {
		writeErr(w, fmt.Errorf("%w: auction %s is %s", ErrAuctionNotOpen, a.ID, a.Status))
		return
	}
	// First operation observing the period's end closes the auction.
	if !s.now().Before(a.End) {
		a.Status = model.AuctionClosed
		if err := s.store.UpdateAuction(ctx, a); err != nil {
			writeErr(w, err)
			return
		}
		writeErr(w, fmt.Errorf("%w: auction %s ended at %s", ErrAuctionNotOpen, a.ID, a.End))
		return
	}

	exposure, err := s.openExposure(ctx, req.AuctionID, participant.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.limiter.Check(req.Amount, exposure); err != nil {
		metrics.OrderLimitRejections.Inc()
		writeErr(w, err)
		return
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	order := &model.Order{
		ID:        req.ID,
		AuctionID: req.AuctionID,
		Sender:    req.Sender,
		Side:      side,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	details := &model.PrivateOrderDetails{
		ID:     req.ID,
		Price:  req.Price,
		Amount: req.Amount,
	}
	if err := s.store.PutPrivateDetails(ctx, req.Sender, details); err != nil {
		writeErr(w, err)
		return
	}

	metrics.OrdersTotal.WithLabelValues(string(side)).Inc()
	slog.Info("order placed",
		"id", order.ID,
		"auction", order.AuctionID,
		"sender", order.Sender,
		"side", side,
	)
	writeJSON(w, http.StatusCreated, order)
}

// ListBids handles GET /api/v1/auctions/{auctionID}/bids.
func (s *Service) ListBids(w http.ResponseWriter, r *http.Request) {
	s.listOrders(w, r, model.SideBid)
}

// ListAsks handles GET /api/v1/auctions/{auctionID}/asks.
func (s *Service) ListAsks(w http.ResponseWriter, r *http.Request) {
	s.listOrders(w, r, model.SideAsk)
}

func (s *Service) listOrders(w http.ResponseWriter, r *http.Request, side model.OrderSide) {
	orders, err := s.store.GetOrdersByAuction(r.Context(), chi.URLParam(r, "auctionID"), side, false)
	if err != nil {
		writeErr(w, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// loadBook merges one side of an auction's public orders with their
// sender-scoped private details into full order views. Results inherit
// the store's ascending-id order.
func (s *Service) loadBook(ctx context.Context, auctionID string, side model.OrderSide, successfulOnly bool) ([]model.FullOrder, error) {
	orders, err := s.store.GetOrdersByAuction(ctx, auctionID, side, successfulOnly)
	if err != nil {
		return nil, err
	}

	full := make([]model.FullOrder, 0, len(orders))
	for _, o := range orders {
		details, err := s.store.GetPrivateDetails(ctx, o.Sender, o.ID)
		if err != nil {
			return nil, err
		}
		full = append(full, model.FullOrder{
			ID:              o.ID,
			AuctionID:       o.AuctionID,
			Sender:          o.Sender,
			Side:            o.Side,
			Price:           details.Price,
			Amount:          details.Amount,
			Successful:      o.Successful,
			UnmatchedAmount: details.UnmatchedAmount,
		})
	}
	return full, nil
}

// openExposure sums the amounts of the participant's existing orders on
// both sides of the auction's book, for the order limiter.
func (s *Service) openExposure(ctx context.Context, auctionID, participantID string) (int64, error) {
	var total int64
	for _, side := range []model.OrderSide{model.SideBid, model.SideAsk} {
		book, err := s.store.GetOrdersByAuction(ctx, auctionID, side, false)
		if err != nil {
			return 0, err
		}
		for _, o := range book {
			if o.Sender != participantID {
				continue
			}
			details, err := s.store.GetPrivateDetails(ctx, o.Sender, o.ID)
			if err != nil {
				return 0, err
			}
			total += details.Amount
		}
	}
	return total, nil
}
