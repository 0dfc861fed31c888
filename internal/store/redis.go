package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hypenergy/energymarket/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the records the engines hit repeatedly: auctions, participants
// and the two singletons. Writes go to the primary store and invalidate
// the cache; reads check Redis first then fall back to the primary.
// Order and private-detail records pass through uncached — the book is
// read once per clearing.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Participants ---

func (s *CachedStore) CreateParticipant(ctx context.Context, p *model.MarketParticipant) error {
	if err := s.primary.CreateParticipant(ctx, p); err != nil {
		return err
	}
	s.cacheJSON(ctx, participantKey(p.ID), p)
	return nil
}

func (s *CachedStore) GetParticipant(ctx context.Context, id string) (*model.MarketParticipant, error) {
	var p model.MarketParticipant
	if s.readJSON(ctx, participantKey(id), &p) {
		return &p, nil
	}

	got, err := s.primary.GetParticipant(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, participantKey(id), got)
	return got, nil
}

func (s *CachedStore) GetParticipantByFingerprint(ctx context.Context, fingerprint string) (*model.MarketParticipant, error) {
	// Try cache via fingerprint→id mapping.
	if id, err := s.rdb.Get(ctx, fingerprintKey(fingerprint)).Result(); err == nil {
		return s.GetParticipant(ctx, id)
	}

	p, err := s.primary.GetParticipantByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, participantKey(p.ID), p)
	s.rdb.Set(ctx, fingerprintKey(fingerprint), p.ID, s.ttl)
	return p, nil
}

func (s *CachedStore) ListParticipants(ctx context.Context) ([]model.MarketParticipant, error) {
	return s.primary.ListParticipants(ctx)
}

func (s *CachedStore) UpdateParticipant(ctx context.Context, p *model.MarketParticipant) error {
	if err := s.primary.UpdateParticipant(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, participantKey(p.ID))
	return nil
}

// --- Auctions ---

func (s *CachedStore) CreateAuction(ctx context.Context, a *model.Auction) error {
	if err := s.primary.CreateAuction(ctx, a); err != nil {
		return err
	}
	s.cacheJSON(ctx, auctionKey(a.ID), a)
	return nil
}

func (s *CachedStore) GetAuction(ctx context.Context, id string) (*model.Auction, error) {
	var a model.Auction
	if s.readJSON(ctx, auctionKey(id), &a) {
		return &a, nil
	}

	got, err := s.primary.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, auctionKey(id), got)
	return got, nil
}

func (s *CachedStore) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	return s.primary.ListAuctions(ctx)
}

func (s *CachedStore) UpdateAuction(ctx context.Context, a *model.Auction) error {
	if err := s.primary.UpdateAuction(ctx, a); err != nil {
		return err
	}
	s.rdb.Del(ctx, auctionKey(a.ID))
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateOrder(ctx context.Context, o *model.Order) error {
	return s.primary.CreateOrder(ctx, o)
}

func (s *CachedStore) GetOrdersByAuction(ctx context.Context, auctionID string, side model.OrderSide, successfulOnly bool) ([]model.Order, error) {
	return s.primary.GetOrdersByAuction(ctx, auctionID, side, successfulOnly)
}

func (s *CachedStore) UpdateOrder(ctx context.Context, o *model.Order) error {
	return s.primary.UpdateOrder(ctx, o)
}

func (s *CachedStore) PutPrivateDetails(ctx context.Context, sender string, d *model.PrivateOrderDetails) error {
	return s.primary.PutPrivateDetails(ctx, sender, d)
}

func (s *CachedStore) GetPrivateDetails(ctx context.Context, sender, orderID string) (*model.PrivateOrderDetails, error) {
	return s.primary.GetPrivateDetails(ctx, sender, orderID)
}

// --- Singletons ---

func (s *CachedStore) PutMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.PutMarket(ctx, m); err != nil {
		return err
	}
	s.rdb.Del(ctx, singletonKey(model.MarketID))
	return nil
}

func (s *CachedStore) GetMarket(ctx context.Context) (*model.Market, error) {
	var m model.Market
	if s.readJSON(ctx, singletonKey(model.MarketID), &m) {
		return &m, nil
	}

	got, err := s.primary.GetMarket(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, singletonKey(model.MarketID), got)
	return got, nil
}

func (s *CachedStore) PutGrid(ctx context.Context, g *model.Grid) error {
	if err := s.primary.PutGrid(ctx, g); err != nil {
		return err
	}
	s.rdb.Del(ctx, singletonKey(model.GridID))
	return nil
}

func (s *CachedStore) GetGrid(ctx context.Context) (*model.Grid, error) {
	var g model.Grid
	if s.readJSON(ctx, singletonKey(model.GridID), &g) {
		return &g, nil
	}

	got, err := s.primary.GetGrid(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, singletonKey(model.GridID), got)
	return got, nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func (s *CachedStore) readJSON(ctx context.Context, key string, v any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func participantKey(id string) string { return fmt.Sprintf("participant:%s", id) }
func fingerprintKey(fp string) string { return fmt.Sprintf("fingerprint:%s", fp) }
func auctionKey(id string) string     { return fmt.Sprintf("auction:%s", id) }
func singletonKey(id string) string   { return fmt.Sprintf("singleton:%s", id) }
