// Package store defines the persistence interface for the energy market
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/hypenergy/energymarket/internal/model"
)

// ErrNotFound is returned (wrapped, with the missing identifier) when a
// requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. Methods returning lists order
// results by ascending id: the clearing and settlement engines must see
// the same sequence on every replica.
type Store interface {
	// --- Participants ---

	// CreateParticipant persists a new market participant.
	CreateParticipant(ctx context.Context, p *model.MarketParticipant) error

	// GetParticipant retrieves a participant by its ID.
	GetParticipant(ctx context.Context, id string) (*model.MarketParticipant, error)

	// GetParticipantByFingerprint resolves a caller identity to its participant.
	GetParticipantByFingerprint(ctx context.Context, fingerprint string) (*model.MarketParticipant, error)

	// ListParticipants returns all participants, ascending by id.
	ListParticipants(ctx context.Context) ([]model.MarketParticipant, error)

	// UpdateParticipant replaces a participant record.
	UpdateParticipant(ctx context.Context, p *model.MarketParticipant) error

	// --- Auctions ---

	// CreateAuction persists a new auction.
	CreateAuction(ctx context.Context, a *model.Auction) error

	// GetAuction retrieves an auction by its ID.
	GetAuction(ctx context.Context, id string) (*model.Auction, error)

	// ListAuctions returns all auctions, ascending by id.
	ListAuctions(ctx context.Context) ([]model.Auction, error)

	// UpdateAuction replaces an auction record.
	UpdateAuction(ctx context.Context, a *model.Auction) error

	// --- Public orders ---

	// CreateOrder persists the public half of an order.
	CreateOrder(ctx context.Context, o *model.Order) error

	// GetOrdersByAuction returns the public orders of one side of an
	// auction's book, ascending by id. successfulOnly restricts the result
	// to orders flagged by the clearing engine.
	GetOrdersByAuction(ctx context.Context, auctionID string, side model.OrderSide, successfulOnly bool) ([]model.Order, error)

	// UpdateOrder replaces a public order record.
	UpdateOrder(ctx context.Context, o *model.Order) error

	// --- Private order details (sender-scoped) ---

	// PutPrivateDetails writes an order's private details into the
	// sender's private collection, overwriting any previous record.
	PutPrivateDetails(ctx context.Context, sender string, d *model.PrivateOrderDetails) error

	// GetPrivateDetails reads an order's private details from the
	// sender's private collection.
	GetPrivateDetails(ctx context.Context, sender, orderID string) (*model.PrivateOrderDetails, error)

	// --- Singletons ---

	// PutMarket creates or replaces the market buffer record.
	PutMarket(ctx context.Context, m *model.Market) error

	// GetMarket retrieves the market buffer record.
	GetMarket(ctx context.Context) (*model.Market, error)

	// PutGrid creates or replaces the grid record.
	PutGrid(ctx context.Context, g *model.Grid) error

	// GetGrid retrieves the grid record.
	GetGrid(ctx context.Context) (*model.Grid, error)
}
