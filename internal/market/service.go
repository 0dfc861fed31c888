// Package market provides the HTTP handlers and business logic for the
// local energy market: participant and auction management, order
// placement with private details, auction clearing, settlement, and
// balance transfers.
//
// Caller identity is threaded explicitly through the X-Participant header
// (the fingerprint bound to a participant at creation); nothing reads
// ambient state. Persistence goes through the store.Store interface only.
package market

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hypenergy/energymarket/internal/auction"
	"github.com/hypenergy/energymarket/internal/limits"
	"github.com/hypenergy/energymarket/internal/model"
	"github.com/hypenergy/energymarket/internal/period"
	"github.com/hypenergy/energymarket/internal/settlement"
	"github.com/hypenergy/energymarket/internal/store"
)

// identityHeader carries the caller's fingerprint. Authentication of the
// fingerprint itself is the transport collaborator's job.
const identityHeader = "X-Participant"

var (
	// ErrMissingIdentity is returned when a request lacks the caller
	// identity header.
	ErrMissingIdentity = errors.New("market: missing caller identity")

	// ErrSenderMismatch is returned when the caller's participant does
	// not match the order's declared sender.
	ErrSenderMismatch = errors.New("market: sender does not match caller identity")

	// ErrAuctionNotOpen is returned when an order targets an auction
	// whose period has ended.
	ErrAuctionNotOpen = errors.New("market: auction no longer accepts orders")

	// ErrAuctionStillOpen is returned when clearing is attempted before
	// the auction period has ended.
	ErrAuctionStillOpen = errors.New("market: auction is still open and cannot be cleared yet")

	// ErrAlreadyCleared is returned when clearing is attempted twice;
	// an auction transitions to cleared exactly once.
	ErrAlreadyCleared = errors.New("market: auction is already cleared")

	// ErrInsufficientFunds is returned by the balance transfer
	// primitives when the source account cannot cover the move.
	ErrInsufficientFunds = errors.New("market: insufficient funds")
)

// Service handles market operations. The clearing and settlement engines
// it drives are pure; the service loads their inputs, runs them, and
// persists their outputs. Serialization of concurrent operations on the
// same auction or singleton is the surrounding transaction mechanism's
// responsibility, not the service's.
type Service struct {
	store       store.Store
	limiter     *limits.OrderLimiter
	priceLevels int
	hub         *WSHub // optional, nil disables broadcasts
	now         func() time.Time
}

// NewService creates a new market service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, limiter *limits.OrderLimiter, priceLevels int, hub *WSHub) *Service {
	return &Service{
		store:       st,
		limiter:     limiter,
		priceLevels: priceLevels,
		hub:         hub,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the service's time source. Tests use this to make the
// open/closed transitions deterministic.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// --- Request types ---

// CreateParticipantRequest is the JSON body for participant creation.
type CreateParticipantRequest struct {
	ID            string          `json:"id"`
	CoinBalance   decimal.Decimal `json:"coin_balance"`
	EnergyBalance decimal.Decimal `json:"energy_balance"`
}

// CreateAuctionRequest is the JSON body for auction creation. When ID is
// a period ticker (AUC-YYYYMMDD-HH) and start/end are zero, the period is
// derived from the ticker.
type CreateAuctionRequest struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CreateMarketRequest is the JSON body for creating the market singleton.
type CreateMarketRequest struct {
	GridBuyPrice  int64 `json:"grid_buy_price"`
	GridSellPrice int64 `json:"grid_sell_price"`
	AuctionTime   int64 `json:"auction_time"`
}

// CreateGridRequest is the JSON body for creating the grid singleton.
type CreateGridRequest struct {
	GridBuyPrice  int64 `json:"grid_buy_price"`
	GridSellPrice int64 `json:"grid_sell_price"`
}

// --- Participant handlers ---

// CreateParticipant handles POST /api/v1/participants. The caller's
// fingerprint is bound to the new participant.
func (s *Service) CreateParticipant(w http.ResponseWriter, r *http.Request) {
	caller := r.Header.Get(identityHeader)
	if caller == "" {
		writeErr(w, ErrMissingIdentity)
		return
	}

	var req CreateParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		writeError(w, "id is required", http.StatusBadRequest)
		return
	}

	p := &model.MarketParticipant{
		ID:            req.ID,
		Fingerprint:   caller,
		CoinBalance:   req.CoinBalance,
		FrozenCoins:   decimal.Zero,
		EnergyBalance: req.EnergyBalance,
	}
	if err := s.store.CreateParticipant(r.Context(), p); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("participant created", "id", p.ID, "fingerprint", caller)
	writeJSON(w, http.StatusCreated, p)
}

// GetParticipant handles GET /api/v1/participants/{participantID}.
func (s *Service) GetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetParticipant(r.Context(), chi.URLParam(r, "participantID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListParticipants handles GET /api/v1/participants.
func (s *Service) ListParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := s.store.ListParticipants(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if participants == nil {
		participants = []model.MarketParticipant{}
	}
	writeJSON(w, http.StatusOK, participants)
}

// SendReading handles POST /api/v1/readings. The reading is appended to
// the calling participant's record, one expected per cleared auction.
func (s *Service) SendReading(w http.ResponseWriter, r *http.Request) {
	caller := r.Header.Get(identityHeader)
	if caller == "" {
		writeErr(w, ErrMissingIdentity)
		return
	}

	var reading model.SmartMeterReading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if reading.AuctionPeriod == "" {
		writeError(w, "auction_period is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	p, err := s.store.GetParticipantByFingerprint(ctx, caller)
	if err != nil {
		writeErr(w, err)
		return
	}

	p.Readings = append(p.Readings, reading)
	if err := s.store.UpdateParticipant(ctx, p); err != nil {
		writeErr(w, err)
		return
	}

	slog.Info("reading recorded",
		"participant", p.ID,
		"period", reading.AuctionPeriod,
		"consumed", reading.Consumed,
		"produced", reading.Produced,
	)
	writeJSON(w, http.StatusOK, p)
}

// --- Auction handlers ---

// CreateAuction handles POST /api/v1/auctions.
func (s *Service) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	// A period ticker id carries its own start/end.
	if req.Start.IsZero() && period.IsTicker(req.ID) {
		p, err := period.Parse(req.ID)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Start, req.End = p.Start, p.End
	}
	if !req.End.After(req.Start) {
		writeError(w, "auction end must be after start", http.StatusBadRequest)
		return
	}

	a := &model.Auction{
		ID:     req.ID,
		Start:  req.Start,
		End:    req.End,
		Status: model.AuctionOpen,
		MCP:    model.NoMatchPrice,
	}
	if err := s.store.CreateAuction(r.Context(), a); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("auction created", "id", a.ID, "start", a.Start, "end", a.End)
	writeJSON(w, http.StatusCreated, a)
}

// GetAuction handles GET /api/v1/auctions/{auctionID}.
func (s *Service) GetAuction(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAuction(r.Context(), chi.URLParam(r, "auctionID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListAuctions handles GET /api/v1/auctions.
func (s *Service) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := s.store.ListAuctions(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if auctions == nil {
		auctions = []model.Auction{}
	}
	writeJSON(w, http.StatusOK, auctions)
}

// --- Singleton handlers ---

// CreateMarket handles POST /api/v1/market.
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m := &model.Market{
		ID:            model.MarketID,
		CoinBalance:   decimal.Zero,
		EnergyBalance: decimal.Zero,
		GridBuyPrice:  req.GridBuyPrice,
		GridSellPrice: req.GridSellPrice,
		AuctionTime:   req.AuctionTime,
	}
	if err := s.store.PutMarket(r.Context(), m); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GetMarket handles GET /api/v1/market.
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMarket(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CreateGrid handles POST /api/v1/grid. The caller's fingerprint is bound
// to the grid record.
func (s *Service) CreateGrid(w http.ResponseWriter, r *http.Request) {
	var req CreateGridRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	g := &model.Grid{
		ID:            model.GridID,
		Fingerprint:   r.Header.Get(identityHeader),
		CoinBalance:   decimal.Zero,
		EnergyBalance: decimal.Zero,
		GridBuyPrice:  req.GridBuyPrice,
		GridSellPrice: req.GridSellPrice,
	}
	if err := s.store.PutGrid(r.Context(), g); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// GetGrid handles GET /api/v1/grid.
func (s *Service) GetGrid(w http.ResponseWriter, r *http.Request) {
	g, err := s.store.GetGrid(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps a domain error onto its HTTP status.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMissingIdentity),
		errors.Is(err, ErrSenderMismatch),
		errors.Is(err, auction.ErrPriceOutOfRange),
		errors.Is(err, auction.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuctionNotOpen),
		errors.Is(err, ErrAuctionStillOpen),
		errors.Is(err, ErrAlreadyCleared),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, settlement.ErrNotCleared),
		errors.Is(err, limits.ErrOrderTooLarge),
		errors.Is(err, limits.ErrExposureExceeded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
