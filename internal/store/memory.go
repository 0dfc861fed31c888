package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hypenergy/energymarket/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	participants map[string]*model.MarketParticipant
	auctions     map[string]*model.Auction
	orders       map[string]*model.Order
	private      map[string]map[string]*model.PrivateOrderDetails // sender → order id
	market       *model.Market
	grid         *model.Grid
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		participants: make(map[string]*model.MarketParticipant),
		auctions:     make(map[string]*model.Auction),
		orders:       make(map[string]*model.Order),
		private:      make(map[string]map[string]*model.PrivateOrderDetails),
	}
}

func (s *MemoryStore) CreateParticipant(_ context.Context, p *model.MarketParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[p.ID]; ok {
		return fmt.Errorf("participant %s already exists", p.ID)
	}
	cp := cloneParticipant(p)
	s.participants[p.ID] = cp
	return nil
}

func (s *MemoryStore) GetParticipant(_ context.Context, id string) (*model.MarketParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[id]
	if !ok {
		return nil, fmt.Errorf("%w: participant %s", ErrNotFound, id)
	}
	return cloneParticipant(p), nil
}

func (s *MemoryStore) GetParticipantByFingerprint(_ context.Context, fingerprint string) (*model.MarketParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.participants))
	for id := range s.participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if s.participants[id].Fingerprint == fingerprint {
			return cloneParticipant(s.participants[id]), nil
		}
	}
	return nil, fmt.Errorf("%w: participant with fingerprint %s", ErrNotFound, fingerprint)
}

func (s *MemoryStore) ListParticipants(_ context.Context) ([]model.MarketParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.MarketParticipant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, *cloneParticipant(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateParticipant(_ context.Context, p *model.MarketParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[p.ID]; !ok {
		return fmt.Errorf("%w: participant %s", ErrNotFound, p.ID)
	}
	s.participants[p.ID] = cloneParticipant(p)
	return nil
}

func (s *MemoryStore) CreateAuction(_ context.Context, a *model.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[a.ID]; ok {
		return fmt.Errorf("auction %s already exists", a.ID)
	}
	cp := *a
	s.auctions[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAuction(_ context.Context, id string) (*model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[id]
	if !ok {
		return nil, fmt.Errorf("%w: auction %s", ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAuctions(_ context.Context) ([]model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateAuction(_ context.Context, a *model.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[a.ID]; !ok {
		return fmt.Errorf("%w: auction %s", ErrNotFound, a.ID)
	}
	cp := *a
	s.auctions[a.ID] = &cp
	return nil
}

func (s *MemoryStore) CreateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *MemoryStore) GetOrdersByAuction(_ context.Context, auctionID string, side model.OrderSide, successfulOnly bool) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Order
	for _, o := range s.orders {
		if o.AuctionID != auctionID || o.Side != side {
			continue
		}
		if successfulOnly && !o.Successful {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; !ok {
		return fmt.Errorf("%w: order %s", ErrNotFound, o.ID)
	}
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *MemoryStore) PutPrivateDetails(_ context.Context, sender string, d *model.PrivateOrderDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.private[sender]
	if !ok {
		coll = make(map[string]*model.PrivateOrderDetails)
		s.private[sender] = coll
	}
	cp := *d
	coll[d.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPrivateDetails(_ context.Context, sender, orderID string) (*model.PrivateOrderDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.private[sender][orderID]
	if !ok {
		return nil, fmt.Errorf("%w: private details for order %s in collection %s", ErrNotFound, orderID, sender)
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) PutMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *m
	s.market = &cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.market == nil {
		return nil, fmt.Errorf("%w: market singleton", ErrNotFound)
	}
	cp := *s.market
	return &cp, nil
}

func (s *MemoryStore) PutGrid(_ context.Context, g *model.Grid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *g
	s.grid = &cp
	return nil
}

func (s *MemoryStore) GetGrid(_ context.Context) (*model.Grid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.grid == nil {
		return nil, fmt.Errorf("%w: grid singleton", ErrNotFound)
	}
	cp := *s.grid
	return &cp, nil
}

// cloneParticipant copies a participant including its readings slice so
// callers can never mutate stored state through a returned pointer.
func cloneParticipant(p *model.MarketParticipant) *model.MarketParticipant {
	cp := *p
	cp.Readings = make([]model.SmartMeterReading, len(p.Readings))
	copy(cp.Readings, p.Readings)
	return &cp
}
