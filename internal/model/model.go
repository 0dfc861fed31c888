// Package model defines the core domain types shared across the energy
// market engine. All coin and energy balances use shopspring/decimal —
// never float64 for money. Order prices and amounts are integers on the
// discretized price axis [0, PriceLevels).
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of an auction period.
type AuctionStatus string

const (
	// AuctionOpen accepts new bids and asks until the period ends.
	AuctionOpen AuctionStatus = "open"
	// AuctionClosed is past its end but not yet cleared.
	AuctionClosed AuctionStatus = "closed"
	// AuctionCleared has a frozen MCP and matched amounts.
	AuctionCleared AuctionStatus = "cleared"
)

// NoMatchPrice is the MCP sentinel for a cleared auction with no
// supply/demand intersection.
const NoMatchPrice int64 = -1

// Auction is one periodic double-sided auction for a trading period.
// MCP, MatchedAmount, UnmatchedDemand and UnmatchedSupply are only
// meaningful once Status == AuctionCleared.
type Auction struct {
	ID              string        `json:"id" db:"id"`
	Start           time.Time     `json:"start" db:"start_ts"`
	End             time.Time     `json:"end" db:"end_ts"`
	Status          AuctionStatus `json:"status" db:"status"`
	MCP             int64         `json:"mcp" db:"mcp"`
	MatchedAmount   int64         `json:"matched_amount" db:"matched_amount"`
	UnmatchedDemand int64         `json:"unmatched_demand" db:"unmatched_demand"`
	UnmatchedSupply int64         `json:"unmatched_supply" db:"unmatched_supply"`
}

// OrderSide distinguishes bids (demand) from asks (supply).
type OrderSide string

const (
	SideBid OrderSide = "bid"
	SideAsk OrderSide = "ask"
)

// Order is the public half of a placed order, visible to all parties.
// Price and amount live in the sender-scoped PrivateOrderDetails record.
// Successful and UnmatchedAmount are only ever set by the clearing engine.
type Order struct {
	ID              string    `json:"id" db:"id"`
	AuctionID       string    `json:"auction_id" db:"auction_id"`
	Sender          string    `json:"sender" db:"sender"`
	Side            OrderSide `json:"side" db:"side"`
	Successful      bool      `json:"successful" db:"successful"`
	UnmatchedAmount int64     `json:"unmatched_amount,omitempty" db:"unmatched_amount"`
}

// PrivateOrderDetails holds the sensitive half of an order, scoped to the
// sender's private collection. UnmatchedAmount is zero unless the clearing
// engine split this order at the margin.
type PrivateOrderDetails struct {
	ID              string `json:"id" db:"id"`
	Price           int64  `json:"price" db:"price"`
	Amount          int64  `json:"amount" db:"amount"`
	UnmatchedAmount int64  `json:"unmatched_amount,omitempty" db:"unmatched_amount"`
}

// FullOrder is the merge of an Order with its PrivateOrderDetails. It is
// assembled in memory for clearing and settlement and never persisted.
type FullOrder struct {
	ID              string    `json:"id"`
	AuctionID       string    `json:"auction_id"`
	Sender          string    `json:"sender"`
	Side            OrderSide `json:"side"`
	Price           int64     `json:"price"`
	Amount          int64     `json:"amount"`
	Successful      bool      `json:"successful"`
	UnmatchedAmount int64     `json:"unmatched_amount,omitempty"`
}

// MatchedAmount returns the traded quantity of the order: the full amount,
// reduced by the unmatched remainder when the order was split.
func (o FullOrder) MatchedAmount() int64 {
	return o.Amount - o.UnmatchedAmount
}

// SmartMeterReading is one metering report for an auction period.
type SmartMeterReading struct {
	AuctionPeriod string `json:"auction_period" db:"auction_period"`
	Consumed      int64  `json:"consumed" db:"consumed"`
	Produced      int64  `json:"produced" db:"produced"`
}

// MarketParticipant is one trading identity with coin and energy accounts.
// Fingerprint is the caller identity bound at creation time; every order
// placement verifies it.
type MarketParticipant struct {
	ID            string              `json:"id" db:"id"`
	Fingerprint   string              `json:"fingerprint" db:"fingerprint"`
	CoinBalance   decimal.Decimal     `json:"coin_balance" db:"coin_balance"`
	FrozenCoins   decimal.Decimal     `json:"frozen_coins" db:"frozen_coins"`
	EnergyBalance decimal.Decimal     `json:"energy_balance" db:"energy_balance"`
	Readings      []SmartMeterReading `json:"readings" db:"readings"`
}

// ReadingFor returns the participant's meter reading for the given auction
// period, or false when none was sent.
func (p *MarketParticipant) ReadingFor(auctionID string) (SmartMeterReading, bool) {
	for _, r := range p.Readings {
		if r.AuctionPeriod == auctionID {
			return r, true
		}
	}
	return SmartMeterReading{}, false
}

// Market is the singleton local-market buffer account. It absorbs the gap
// between predicted and metered quantities during settlement so that
// participants never settle against each other directly.
type Market struct {
	ID            string          `json:"id" db:"id"`
	CoinBalance   decimal.Decimal `json:"coin_balance" db:"coin_balance"`
	EnergyBalance decimal.Decimal `json:"energy_balance" db:"energy_balance"`
	GridBuyPrice  int64           `json:"grid_buy_price" db:"grid_buy_price"`
	GridSellPrice int64           `json:"grid_sell_price" db:"grid_sell_price"`
	AuctionTime   int64           `json:"auction_time" db:"auction_time"` // period length in seconds
}

// Grid is the singleton external grid account. The market's residual energy
// imbalance is netted against it after every settlement.
type Grid struct {
	ID            string          `json:"id" db:"id"`
	Fingerprint   string          `json:"fingerprint" db:"fingerprint"`
	CoinBalance   decimal.Decimal `json:"coin_balance" db:"coin_balance"`
	EnergyBalance decimal.Decimal `json:"energy_balance" db:"energy_balance"`
	GridBuyPrice  int64           `json:"grid_buy_price" db:"grid_buy_price"`
	GridSellPrice int64           `json:"grid_sell_price" db:"grid_sell_price"`
}

// Canonical IDs for the singleton records.
const (
	MarketID = "MKT"
	GridID   = "GRID"
)
