// Package settlement reconciles predicted traded amounts against actual
// metered consumption and production after an auction has cleared, moving
// coin and energy balances between participants, the local market buffer
// and the external grid.
//
// The market acts as a netting buffer: each participant settles only
// against it, and after all participants are processed the market's
// residual energy imbalance is exchanged with the grid in one step. That
// keeps settlement O(participants) and conserves coins and energy — the
// deltas across {participants, market} sum to zero before the grid step,
// and across {participants, market, grid} after it.
//
// Settle is a pure function of its input: re-running it with the same
// input produces the same output, and participants are processed in
// ascending id order so replicated executions stay bit-identical.
package settlement

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/hypenergy/energymarket/internal/model"
)

// ErrNotCleared is returned when settlement is attempted before the
// auction has been cleared.
var ErrNotCleared = errors.New("settlement: auction is not cleared")

// Input carries everything one settlement run reads: the cleared auction,
// all participants with their meter readings, the two singleton accounts,
// and the successful bids and asks merged to full detail.
type Input struct {
	Auction      model.Auction
	Participants []model.MarketParticipant
	Market       model.Market
	Grid         model.Grid
	Bids         []model.FullOrder
	Asks         []model.FullOrder
}

// Outcome holds the updated account copies. Nothing in the Input is
// mutated; the caller persists the outcome atomically.
type Outcome struct {
	Participants []model.MarketParticipant
	Market       model.Market
	Grid         model.Grid
}

// Settle reconciles one cleared auction.
//
// Per participant: the predicted bid amount is settled at the MCP against
// the market, consumption beyond it is bought through the market at the
// grid buy price, consumption below it is sold back at the grid sell
// price. The ask side is symmetric with the roles of credit and debit
// reversed. A participant without a reading for the period settles as if
// it had metered zero.
//
// When the auction cleared without a match (MCP sentinel), no order was
// flagged successful, so both trade legs are zero and actual consumption
// and production settle purely through the market buffer at grid prices.
func Settle(in Input) (*Outcome, error) {
	if in.Auction.Status != model.AuctionCleared {
		return nil, fmt.Errorf("%w: auction %s has status %q",
			ErrNotCleared, in.Auction.ID, in.Auction.Status)
	}

	out := &Outcome{
		Participants: make([]model.MarketParticipant, len(in.Participants)),
		Market:       in.Market,
		Grid:         in.Grid,
	}
	copy(out.Participants, in.Participants)
	sort.Slice(out.Participants, func(i, j int) bool {
		return out.Participants[i].ID < out.Participants[j].ID
	})

	mcp := in.Auction.MCP
	if mcp < 0 {
		mcp = 0 // sentinel never enters a monetary term: amounts below are zero
	}

	for idx := range out.Participants {
		p := &out.Participants[idx]

		reading, _ := p.ReadingFor(in.Auction.ID) // zero value when absent
		consumption := reading.Consumed
		production := reading.Produced
		bidAmount := tradedAmount(in.Bids, p.ID)
		askAmount := tradedAmount(in.Asks, p.ID)

		if consumption != 0 || bidAmount != 0 {
			// Predicted demand is satisfied from within the local market.
			exchange(p, &out.Market, bidAmount, bidAmount*mcp)

			if consumption > bidAmount {
				// Shortfall is bought from the grid via the market buffer.
				short := consumption - bidAmount
				exchange(p, &out.Market, short, short*in.Market.GridBuyPrice)
			}
			if consumption < bidAmount {
				// Excess energy bought at the MCP is sold straight back.
				excess := bidAmount - consumption
				exchange(p, &out.Market, -excess, -excess*in.Market.GridSellPrice)
			}
		}

		if production != 0 || askAmount != 0 {
			// Predicted supply is delivered to the local market.
			exchange(p, &out.Market, -askAmount, -askAmount*mcp)

			if production > askAmount {
				// Surplus production is sold to the market at the sell price.
				surplus := production - askAmount
				exchange(p, &out.Market, -surplus, -surplus*in.Market.GridSellPrice)
			}
			if production < askAmount {
				// Under-delivery: the missing energy is bought back at the
				// buy price to make the promised ask whole.
				missing := askAmount - production
				exchange(p, &out.Market, missing, missing*in.Market.GridBuyPrice)
			}
		}
	}

	settleResidual(&out.Market, &out.Grid)
	return out, nil
}

// exchange moves energy units and coins between a participant and the
// market buffer in opposite directions: positive energy flows to the
// participant, coins flow to the market, and vice versa for negative
// values. The mirror image keeps the pairwise deltas at exactly zero.
func exchange(p *model.MarketParticipant, m *model.Market, energy, coins int64) {
	e := decimal.NewFromInt(energy)
	c := decimal.NewFromInt(coins)
	p.CoinBalance = p.CoinBalance.Sub(c)
	p.EnergyBalance = p.EnergyBalance.Add(e)
	m.CoinBalance = m.CoinBalance.Add(c)
	m.EnergyBalance = m.EnergyBalance.Sub(e)
}

// settleResidual nets the market's energy imbalance against the grid: a
// deficit is bought at the grid buy price, a surplus sold at the grid sell
// price. Either way the market's energy balance returns to zero.
func settleResidual(m *model.Market, g *model.Grid) {
	switch {
	case m.EnergyBalance.IsNegative():
		deficit := m.EnergyBalance.Neg()
		cost := deficit.Mul(decimal.NewFromInt(m.GridBuyPrice))
		g.CoinBalance = g.CoinBalance.Add(cost)
		g.EnergyBalance = g.EnergyBalance.Sub(deficit)
		m.CoinBalance = m.CoinBalance.Sub(cost)
		m.EnergyBalance = m.EnergyBalance.Add(deficit)
	case m.EnergyBalance.IsPositive():
		surplus := m.EnergyBalance
		revenue := surplus.Mul(decimal.NewFromInt(m.GridSellPrice))
		g.CoinBalance = g.CoinBalance.Sub(revenue)
		g.EnergyBalance = g.EnergyBalance.Add(surplus)
		m.CoinBalance = m.CoinBalance.Add(revenue)
		m.EnergyBalance = m.EnergyBalance.Sub(surplus)
	}
}

// tradedAmount sums the matched quantities of the sender's successful
// orders: the full amount unless the clearing engine split the order, in
// which case the unmatched remainder is excluded.
func tradedAmount(orders []model.FullOrder, sender string) int64 {
	var total int64
	for _, o := range orders {
		if o.Sender == sender {
			total += o.MatchedAmount()
		}
	}
	return total
}
