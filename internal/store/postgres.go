package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hypenergy/energymarket/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Coin and energy balances are stored as NUMERIC for exact decimal
// precision; meter readings are stored as JSONB on the participant row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func notFoundIfNoRows(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// --- Participants ---

func (s *PostgresStore) CreateParticipant(ctx context.Context, p *model.MarketParticipant) error {
	readings, err := json.Marshal(p.Readings)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO participants (id, fingerprint, coin_balance, frozen_coins, energy_balance, readings)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)`,
		p.ID, p.Fingerprint,
		p.CoinBalance.String(), p.FrozenCoins.String(), p.EnergyBalance.String(),
		readings,
	)
	return err
}

const participantCols = `id, fingerprint,
       coin_balance::TEXT, frozen_coins::TEXT, energy_balance::TEXT, readings`

func scanParticipant(row pgx.Row) (*model.MarketParticipant, error) {
	var p model.MarketParticipant
	var coin, frozen, energy string
	var readings []byte

	if err := row.Scan(&p.ID, &p.Fingerprint, &coin, &frozen, &energy, &readings); err != nil {
		return nil, err
	}
	p.CoinBalance, _ = decimal.NewFromString(coin)
	p.FrozenCoins, _ = decimal.NewFromString(frozen)
	p.EnergyBalance, _ = decimal.NewFromString(energy)
	if len(readings) > 0 {
		if err := json.Unmarshal(readings, &p.Readings); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (s *PostgresStore) GetParticipant(ctx context.Context, id string) (*model.MarketParticipant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+participantCols+` FROM participants WHERE id = $1`, id)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, notFoundIfNoRows(err, "participant %s", id)
	}
	return p, nil
}

func (s *PostgresStore) GetParticipantByFingerprint(ctx context.Context, fingerprint string) (*model.MarketParticipant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+participantCols+` FROM participants WHERE fingerprint = $1 ORDER BY id LIMIT 1`, fingerprint)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, notFoundIfNoRows(err, "participant with fingerprint %s", fingerprint)
	}
	return p, nil
}

func (s *PostgresStore) ListParticipants(ctx context.Context) ([]model.MarketParticipant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+participantCols+` FROM participants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MarketParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateParticipant(ctx context.Context, p *model.MarketParticipant) error {
	readings, err := json.Marshal(p.Readings)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE participants
		 SET fingerprint = $2, coin_balance = $3::NUMERIC, frozen_coins = $4::NUMERIC,
		     energy_balance = $5::NUMERIC, readings = $6
		 WHERE id = $1`,
		p.ID, p.Fingerprint,
		p.CoinBalance.String(), p.FrozenCoins.String(), p.EnergyBalance.String(),
		readings,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: participant %s", ErrNotFound, p.ID)
	}
	return nil
}

// --- Auctions ---

func (s *PostgresStore) CreateAuction(ctx context.Context, a *model.Auction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO auctions (id, start_ts, end_ts, status, mcp, matched_amount, unmatched_demand, unmatched_supply)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Start, a.End, string(a.Status),
		a.MCP, a.MatchedAmount, a.UnmatchedDemand, a.UnmatchedSupply,
	)
	return err
}

const auctionCols = `id, start_ts, end_ts, status, mcp, matched_amount, unmatched_demand, unmatched_supply`

func scanAuction(row pgx.Row) (*model.Auction, error) {
	var a model.Auction
	var status string
	if err := row.Scan(&a.ID, &a.Start, &a.End, &status,
		&a.MCP, &a.MatchedAmount, &a.UnmatchedDemand, &a.UnmatchedSupply); err != nil {
		return nil, err
	}
	a.Status = model.AuctionStatus(status)
	return &a, nil
}

func (s *PostgresStore) GetAuction(ctx context.Context, id string) (*model.Auction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+auctionCols+` FROM auctions WHERE id = $1`, id)
	a, err := scanAuction(row)
	if err != nil {
		return nil, notFoundIfNoRows(err, "auction %s", id)
	}
	return a, nil
}

func (s *PostgresStore) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+auctionCols+` FROM auctions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateAuction(ctx context.Context, a *model.Auction) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auctions
		 SET start_ts = $2, end_ts = $3, status = $4, mcp = $5,
		     matched_amount = $6, unmatched_demand = $7, unmatched_supply = $8
		 WHERE id = $1`,
		a.ID, a.Start, a.End, string(a.Status),
		a.MCP, a.MatchedAmount, a.UnmatchedDemand, a.UnmatchedSupply,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: auction %s", ErrNotFound, a.ID)
	}
	return nil
}

// --- Public orders ---

func (s *PostgresStore) CreateOrder(ctx context.Context, o *model.Order) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO orders (id, auction_id, sender, side, successful, unmatched_amount)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.AuctionID, o.Sender, string(o.Side), o.Successful, o.UnmatchedAmount,
	)
	return err
}

func (s *PostgresStore) GetOrdersByAuction(ctx context.Context, auctionID string, side model.OrderSide, successfulOnly bool) ([]model.Order, error) {
	query := `SELECT id, auction_id, sender, side, successful, unmatched_amount
	          FROM orders WHERE auction_id = $1 AND side = $2`
	if successfulOnly {
		query += ` AND successful`
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, auctionID, string(side))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		var o model.Order
		var sideS string
		if err := rows.Scan(&o.ID, &o.AuctionID, &o.Sender, &sideS, &o.Successful, &o.UnmatchedAmount); err != nil {
			return nil, err
		}
		o.Side = model.OrderSide(sideS)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateOrder(ctx context.Context, o *model.Order) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET successful = $2, unmatched_amount = $3 WHERE id = $1`,
		o.ID, o.Successful, o.UnmatchedAmount,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s", ErrNotFound, o.ID)
	}
	return nil
}

// --- Private order details ---

func (s *PostgresStore) PutPrivateDetails(ctx context.Context, sender string, d *model.PrivateOrderDetails) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO private_order_details (sender, id, price, amount, unmatched_amount)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (sender, id) DO UPDATE
		 SET price = EXCLUDED.price, amount = EXCLUDED.amount, unmatched_amount = EXCLUDED.unmatched_amount`,
		sender, d.ID, d.Price, d.Amount, d.UnmatchedAmount,
	)
	return err
}

func (s *PostgresStore) GetPrivateDetails(ctx context.Context, sender, orderID string) (*model.PrivateOrderDetails, error) {
	var d model.PrivateOrderDetails
	err := s.pool.QueryRow(ctx,
		`SELECT id, price, amount, unmatched_amount
		 FROM private_order_details WHERE sender = $1 AND id = $2`,
		sender, orderID).
		Scan(&d.ID, &d.Price, &d.Amount, &d.UnmatchedAmount)
	if err != nil {
		return nil, notFoundIfNoRows(err, "private details for order %s in collection %s", orderID, sender)
	}
	return &d, nil
}

// --- Singletons ---

func (s *PostgresStore) PutMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO market (id, coin_balance, energy_balance, grid_buy_price, grid_sell_price, auction_time)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET coin_balance = EXCLUDED.coin_balance, energy_balance = EXCLUDED.energy_balance,
		     grid_buy_price = EXCLUDED.grid_buy_price, grid_sell_price = EXCLUDED.grid_sell_price,
		     auction_time = EXCLUDED.auction_time`,
		m.ID, m.CoinBalance.String(), m.EnergyBalance.String(),
		m.GridBuyPrice, m.GridSellPrice, m.AuctionTime,
	)
	return err
}

func (s *PostgresStore) GetMarket(ctx context.Context) (*model.Market, error) {
	var m model.Market
	var coin, energy string
	err := s.pool.QueryRow(ctx,
		`SELECT id, coin_balance::TEXT, energy_balance::TEXT, grid_buy_price, grid_sell_price, auction_time
		 FROM market WHERE id = $1`, model.MarketID).
		Scan(&m.ID, &coin, &energy, &m.GridBuyPrice, &m.GridSellPrice, &m.AuctionTime)
	if err != nil {
		return nil, notFoundIfNoRows(err, "market singleton")
	}
	m.CoinBalance, _ = decimal.NewFromString(coin)
	m.EnergyBalance, _ = decimal.NewFromString(energy)
	return &m, nil
}

func (s *PostgresStore) PutGrid(ctx context.Context, g *model.Grid) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO grid (id, fingerprint, coin_balance, energy_balance, grid_buy_price, grid_sell_price)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET fingerprint = EXCLUDED.fingerprint, coin_balance = EXCLUDED.coin_balance,
		     energy_balance = EXCLUDED.energy_balance, grid_buy_price = EXCLUDED.grid_buy_price,
		     grid_sell_price = EXCLUDED.grid_sell_price`,
		g.ID, g.Fingerprint, g.CoinBalance.String(), g.EnergyBalance.String(),
		g.GridBuyPrice, g.GridSellPrice,
	)
	return err
}

func (s *PostgresStore) GetGrid(ctx context.Context) (*model.Grid, error) {
	var g model.Grid
	var coin, energy string
	err := s.pool.QueryRow(ctx,
		`SELECT id, fingerprint, coin_balance::TEXT, energy_balance::TEXT, grid_buy_price, grid_sell_price
		 FROM grid WHERE id = $1`, model.GridID).
		Scan(&g.ID, &g.Fingerprint, &coin, &energy, &g.GridBuyPrice, &g.GridSellPrice)
	if err != nil {
		return nil, notFoundIfNoRows(err, "grid singleton")
	}
	g.CoinBalance, _ = decimal.NewFromString(coin)
	g.EnergyBalance, _ = decimal.NewFromString(energy)
	return &g, nil
}
