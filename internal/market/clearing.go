package market

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hypenergy/energymarket/internal/auction"
	"github.com/hypenergy/energymarket/internal/metrics"
	"github.com/hypenergy/energymarket/internal/model"
	"github.com/hypenergy/energymarket/internal/settlement"
)

// ClearAuction handles POST /api/v1/auctions/{auctionID}/clear.
//
// Precondition: the auction period must have ended. The clearing engine
// runs on the merged book, then the auction, every winning public order
// and the one split private record are persisted. Atomicity of that write
// set is provided by the surrounding transaction mechanism; the handler
// computes everything before writing anything.
func (s *Service) ClearAuction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	a, err := s.store.GetAuction(ctx, chi.URLParam(r, "auctionID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if a.Status == model.AuctionCleared {
		writeErr(w, fmt.Errorf("%w: auction %s", ErrAlreadyCleared, a.ID))
		return
	}
	if !s.now().After(a.End) {
		writeErr(w, fmt.Errorf("%w: auction %s ends at %s", ErrAuctionStillOpen, a.ID, a.End))
		return
	}

	bids, err := s.loadBook(ctx, a.ID, model.SideBid, false)
	if err != nil {
		writeErr(w, err)
		return
	}
	asks, err := s.loadBook(ctx, a.ID, model.SideAsk, false)
	if err != nil {
		writeErr(w, err)
		return
	}

	res, err := auction.Clear(bids, asks, s.priceLevels)
	if err != nil {
		writeErr(w, err)
		return
	}

	a.Status = model.AuctionCleared
	a.MCP = res.MCP
	a.MatchedAmount = res.MatchedAmount
	a.UnmatchedDemand = res.UnmatchedDemand
	a.UnmatchedSupply = res.UnmatchedSupply

	if err := s.persistClearing(ctx, a, res); err != nil {
		writeErr(w, err)
		return
	}

	outcome := "matched"
	if res.MCP == model.NoMatchPrice {
		outcome = "no_match"
	}
	metrics.AuctionsCleared.WithLabelValues(outcome).Inc()
	metrics.MatchedVolume.Add(float64(res.MatchedAmount))
	metrics.ClearingLatency.Observe(time.Since(start).Seconds())

	slog.Info("auction cleared",
		"id", a.ID,
		"mcp", a.MCP,
		"matched", a.MatchedAmount,
		"unmatched_demand", a.UnmatchedDemand,
		"unmatched_supply", a.UnmatchedSupply,
	)

	if s.hub != nil {
		s.hub.Broadcast(WSMessage{
			Type:            "auction_cleared",
			AuctionID:       a.ID,
			MCP:             a.MCP,
			MatchedAmount:   a.MatchedAmount,
			UnmatchedDemand: a.UnmatchedDemand,
			UnmatchedSupply: a.UnmatchedSupply,
		})
	}

	writeJSON(w, http.StatusOK, a)
}

// persistClearing writes the cleared auction, the flagged public orders,
// and the split order's rewritten private record. Only winning orders are
// touched; every other private record stays untouched.
func (s *Service) persistClearing(ctx context.Context, a *model.Auction, res *auction.Result) error {
	if err := s.store.UpdateAuction(ctx, a); err != nil {
		return err
	}

	for _, book := range [][]model.FullOrder{res.Bids, res.Asks} {
		for _, o := range book {
			if !o.Successful {
				continue
			}
			if err := s.store.UpdateOrder(ctx, &model.Order{
				ID:              o.ID,
				AuctionID:       o.AuctionID,
				Sender:          o.Sender,
				Side:            o.Side,
				Successful:      true,
				UnmatchedAmount: o.UnmatchedAmount,
			}); err != nil {
				return err
			}
		}
	}

	if res.Split != nil {
		sp := res.Split
		if err := s.store.PutPrivateDetails(ctx, sp.Sender, &model.PrivateOrderDetails{
			ID:              sp.ID,
			Price:           sp.Price,
			Amount:          sp.Amount,
			UnmatchedAmount: sp.UnmatchedAmount,
		}); err != nil {
			return err
		}
	}
	return nil
}

// EscrowAuction handles POST /api/v1/auctions/{auctionID}/escrow.
//
// Precondition: the auction must be cleared. The settlement engine runs
// on copies of every account; its outcome is persisted afterwards, so a
// failed precondition never leaves a balance half-transferred.
//
// There is no settled flag: replaying the request re-applies the balance
// moves. Deduplicating settlement calls is the surrounding transaction
// mechanism's responsibility, like serialization of every other write.
func (s *Service) EscrowAuction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	a, err := s.store.GetAuction(ctx, chi.URLParam(r, "auctionID"))
	if err != nil {
		writeErr(w, err)
		return
	}

	participants, err := s.store.ListParticipants(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	mkt, err := s.store.GetMarket(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	grid, err := s.store.GetGrid(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	bids, err := s.loadBook(ctx, a.ID, model.SideBid, true)
	if err != nil {
		writeErr(w, err)
		return
	}
	asks, err := s.loadBook(ctx, a.ID, model.SideAsk, true)
	if err != nil {
		writeErr(w, err)
		return
	}

	out, err := settlement.Settle(settlement.Input{
		Auction:      *a,
		Participants: participants,
		Market:       *mkt,
		Grid:         *grid,
		Bids:         bids,
		Asks:         asks,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	for i := range out.Participants {
		if err := s.store.UpdateParticipant(ctx, &out.Participants[i]); err != nil {
			writeErr(w, err)
			return
		}
	}
	if err := s.store.PutMarket(ctx, &out.Market); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.store.PutGrid(ctx, &out.Grid); err != nil {
		writeErr(w, err)
		return
	}

	metrics.SettlementsTotal.Inc()
	metrics.SettlementLatency.Observe(time.Since(start).Seconds())

	slog.Info("auction settled",
		"id", a.ID,
		"participants", len(out.Participants),
		"market_coins", out.Market.CoinBalance.String(),
		"grid_coins", out.Grid.CoinBalance.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(WSMessage{
			Type:      "auction_settled",
			AuctionID: a.ID,
			MCP:       a.MCP,
		})
	}

	writeJSON(w, http.StatusOK, out)
}
