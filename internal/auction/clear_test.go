package auction

import (
	"errors"
	"testing"

	"github.com/hypenergy/energymarket/internal/model"
)

func bid(id string, price, amount int64) model.FullOrder {
	return model.FullOrder{ID: id, Sender: "s-" + id, Side: model.SideBid, Price: price, Amount: amount}
}

func ask(id string, price, amount int64) model.FullOrder {
	return model.FullOrder{ID: id, Sender: "s-" + id, Side: model.SideAsk, Price: price, Amount: amount}
}

// --- Curve construction ---

func TestBuildCurves_Cumulative(t *testing.T) {
	bids := []model.FullOrder{bid("b1", 8, 4)}
	asks := []model.FullOrder{ask("a1", 5, 3), ask("a2", 8, 5)}

	c, err := BuildCurves(bids, asks, DefaultPriceLevels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Lowest != 5 || c.Highest != 8 {
		t.Errorf("expected bounds [5,8], got [%d,%d]", c.Lowest, c.Highest)
	}
	// Supply accumulates upward.
	if c.Supply[5] != 3 || c.Supply[7] != 3 || c.Supply[8] != 8 {
		t.Errorf("wrong supply curve: %v", c.Supply[5:9])
	}
	// Demand accumulates downward.
	if c.Demand[8] != 4 || c.Demand[5] != 4 {
		t.Errorf("wrong demand curve: %v", c.Demand[5:9])
	}
	if c.TotalDemand() != 4 || c.TotalSupply() != 8 {
		t.Errorf("expected totals 4/8, got %d/%d", c.TotalDemand(), c.TotalSupply())
	}
}

func TestBuildCurves_PriceOutOfRange(t *testing.T) {
	_, err := BuildCurves([]model.FullOrder{bid("b1", 30, 5)}, nil, 30)
	if !errors.Is(err, ErrPriceOutOfRange) {
		t.Errorf("expected ErrPriceOutOfRange, got %v", err)
	}
	_, err = BuildCurves(nil, []model.FullOrder{ask("a1", -1, 5)}, 30)
	if !errors.Is(err, ErrPriceOutOfRange) {
		t.Errorf("expected ErrPriceOutOfRange for negative price, got %v", err)
	}
}

func TestBuildCurves_InvalidAmount(t *testing.T) {
	_, err := BuildCurves([]model.FullOrder{bid("b1", 5, 0)}, nil, 30)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

// --- Clearing ---

func TestClear_SimpleCross(t *testing.T) {
	bids := []model.FullOrder{bid("b1", 10, 5)}
	asks := []model.FullOrder{ask("a1", 6, 5)}

	res, err := Clear(bids, asks, DefaultPriceLevels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.MCP != 6 {
		t.Errorf("expected mcp=6, got %d", res.MCP)
	}
	if res.MatchedAmount != 5 {
		t.Errorf("expected matched=5, got %d", res.MatchedAmount)
	}
	if !res.Bids[0].Successful || !res.Asks[0].Successful {
		t.Errorf("expected both orders successful: bid=%v ask=%v",
			res.Bids[0].Successful, res.Asks[0].Successful)
	}
	if res.Split != nil {
		t.Errorf("expected no split order, got %+v", res.Split)
	}
	if res.UnmatchedDemand != 0 || res.UnmatchedSupply != 0 {
		t.Errorf("expected no unmatched quantity, got demand=%d supply=%d",
			res.UnmatchedDemand, res.UnmatchedSupply)
	}
}

func TestClear_OversupplySplitsMarginalAsk(t *testing.T) {
	bids := []model.FullOrder{bid("b1", 8, 4)}
	asks := []model.FullOrder{ask("a1", 5, 3), ask("a2", 8, 5)}

	res, err := Clear(bids, asks, DefaultPriceLevels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.MCP != 8 {
		t.Errorf("expected mcp=8, got %d", res.MCP)
	}
	if res.MatchedAmount != 4 {
		t.Errorf("expected matched=4, got %d", res.MatchedAmount)
	}
	if res.Split == nil {
		t.Fatal("expected a split order")
	}
	if res.Split.ID != "a2" {
		t.Errorf("expected a2 to be the marginal order, got %s", res.Split.ID)
	}
	// The 4-unit bid takes the 3-unit cheap ask plus 1 unit of a2.
	if res.Split.UnmatchedAmount != 4 {
		t.Errorf("expected unmatched=4 on the split ask, got %d", res.Split.UnmatchedAmount)
	}
	if !res.Split.Successful {
		t.Error("split order must be flagged successful")
	}
	if res.Split.MatchedAmount() != 1 {
		t.Errorf("expected split matched amount 1, got %d", res.Split.MatchedAmount())
	}
	if res.UnmatchedSupply != 4 {
		t.Errorf("expected unmatched supply 4, got %d", res.UnmatchedSupply)
	}
}

func TestClear_NoIntersection(t *testing.T) {
	bids := []model.FullOrder{bid("b1", 5, 10)}
	asks := []model.FullOrder{ask("a1", 20, 10)}

	res, err := Clear(bids, asks, DefaultPriceLevels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.MCP != model.NoMatchPrice {
		t.Errorf("expected no-match sentinel, got mcp=%d", res.MCP)
	}
	if res.MatchedAmount != 0 {
		t.Errorf("expected matched=0, got %d", res.MatchedAmount)
	}
	if res.UnmatchedDemand != 10 || res.UnmatchedSupply != 10 {
		t.Errorf("expected unmatched 10/10, got %d/%d",
			res.UnmatchedDemand, res.UnmatchedSupply)
	}
	if res.Bids[0].Successful || res.Asks[0].Successful {
		t.Error("no order may be successful without an intersection")
	}
}

func TestClear_EmptyBooks(t *testing.T) {
	res, err := Clear(nil, nil, DefaultPriceLevels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MCP != model.NoMatchPrice || res.MatchedAmount != 0 {
		t.Errorf("expected empty no-match result, got mcp=%d matched=%d",
			res.MCP, res.MatchedAmount)
	}
	if res.UnmatchedDemand != 0 || res.UnmatchedSupply != 0 {
		t.Errorf("expected zero unmatched totals, got %d/%d",
			res.UnmatchedDemand, res.UnmatchedSupply)
	}
}

func TestClear_OneSidedBook(t *testing.T) {
	res, err := Clear([]model.FullOrder{bid("b1", 10, 7)}, nil, DefaultPriceLevels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MCP != model.NoMatchPrice {
		t.Errorf("expected no match for a bid-only book, got mcp=%d", res.MCP)
	}
	if res.UnmatchedDemand != 7 || res.UnmatchedSupply != 0 {
		t.Errorf("expected unmatched 7/0, got %d/%d",
			res.UnmatchedDemand, res.UnmatchedSupply)
	}
}

func TestClear_AskOnlyMultiLevelBook(t *testing.T) {
	// Supply across two price levels with no demand at all: supply at the
	// upper level dominates a zero demand curve, but a price where nothing
	// can match is not an intersection.
	asks := []model.FullOrder{ask("a1", 4, 3), ask("a2", 5, 3)}

	res, err := Clear(nil, asks, DefaultPriceLevels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MCP != model.NoMatchPrice {
		t.Errorf("expected no match for an ask-only book, got mcp=%d", res.MCP)
	}
	if res.MatchedAmount != 0 {
		t.Errorf("expected matched=0, got %d", res.MatchedAmount)
	}
	if res.UnmatchedDemand != 0 || res.UnmatchedSupply != 6 {
		t.Errorf("expected unmatched 0/6, got %d/%d",
			res.UnmatchedDemand, res.UnmatchedSupply)
	}
	for _, o := range res.Asks {
		if o.Successful {
			t.Errorf("ask %s flagged successful without demand", o.ID)
		}
	}
}

func TestClear_DemandEntirelyBelowMultiLevelSupply(t *testing.T) {
	// The only bid sits below both ask levels, so the books never cross
	// even though supply spans multiple levels.
	bids := []model.FullOrder{bid("b1", 2, 5)}
	asks := []model.FullOrder{ask("a1", 4, 3), ask("a2", 5, 3)}

	res, err := Clear(bids, asks, DefaultPriceLevels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MCP != model.NoMatchPrice {
		t.Errorf("expected no match for non-crossing books, got mcp=%d", res.MCP)
	}
	if res.MatchedAmount != 0 {
		t.Errorf("expected matched=0, got %d", res.MatchedAmount)
	}
	if res.UnmatchedDemand != 5 || res.UnmatchedSupply != 6 {
		t.Errorf("expected unmatched 5/6, got %d/%d",
			res.UnmatchedDemand, res.UnmatchedSupply)
	}
	if res.Bids[0].Successful || res.Asks[0].Successful || res.Asks[1].Successful {
		t.Error("no order may be successful without an intersection")
	}
}

func TestClear_TieAdjustmentStepsBack(t *testing.T) {
	// Demand at price 3 (1 unit) is thinner than the supply already
	// available below it (5 units at price 2), so the price steps back to 2
	// where the bulk of demand sits.
	bids := []model.FullOrder{bid("b1", 2, 10), bid("b2", 4, 1)}
	asks := []model.FullOrder{ask("a1", 2, 5), ask("a2", 3, 5)}

	res, err := Clear(bids, asks, DefaultPriceLevels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.MCP != 2 {
		t.Errorf("expected mcp=2 after tie adjustment, got %d", res.MCP)
	}
	if res.MatchedAmount != 5 {
		t.Errorf("expected matched=5, got %d", res.MatchedAmount)
	}
	if res.Split == nil || res.Split.ID != "b1" {
		t.Fatalf("expected b1 to be the marginal order, got %+v", res.Split)
	}
	// 1 unit goes to the aggressive b2, leaving 4 of the 10-unit b1 covered.
	if res.Split.UnmatchedAmount != 6 {
		t.Errorf("expected unmatched=6 on the split bid, got %d", res.Split.UnmatchedAmount)
	}
}

func TestClear_TieAdjustmentWithZeroDemandAtScannedLevel(t *testing.T) {
	// At price 3 demand is zero, but stepping back lands on price 2 where
	// 10 units of demand meet 5 units of supply: a genuine match, not a
	// degenerate one.
	bids := []model.FullOrder{bid("b1", 2, 10)}
	asks := []model.FullOrder{ask("a1", 2, 5), ask("a2", 3, 5)}

	res, err := Clear(bids, asks, DefaultPriceLevels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MCP != 2 {
		t.Errorf("expected mcp=2, got %d", res.MCP)
	}
	if res.MatchedAmount != 5 {
		t.Errorf("expected matched=5, got %d", res.MatchedAmount)
	}
	if res.Split == nil || res.Split.ID != "b1" || res.Split.UnmatchedAmount != 5 {
		t.Errorf("expected b1 split with unmatched=5, got %+v", res.Split)
	}
}

func TestClear_SplitInvariant(t *testing.T) {
	// The split order's unmatched remainder must stay strictly inside
	// (0, amount): a fully unmet equal-price order is never flagged.
	bids := []model.FullOrder{bid("b1", 6, 3)}
	asks := []model.FullOrder{ask("a1", 6, 3), ask("a2", 6, 4)}

	res, err := Clear(bids, asks, DefaultPriceLevels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.MCP != 6 || res.MatchedAmount != 3 {
		t.Fatalf("expected mcp=6 matched=3, got mcp=%d matched=%d", res.MCP, res.MatchedAmount)
	}
	// a1 absorbs the whole budget; a2 must stay unflagged, not become a
	// zero-fill split.
	if res.Split != nil {
		t.Errorf("expected no split order, got %+v", res.Split)
	}
	for _, o := range res.Asks {
		if o.ID == "a2" && o.Successful {
			t.Error("fully unmet equal-price ask must not be successful")
		}
	}
}

func TestClear_QuantityConservation(t *testing.T) {
	bids := []model.FullOrder{bid("b1", 9, 6), bid("b2", 7, 3), bid("b3", 4, 8)}
	asks := []model.FullOrder{ask("a1", 3, 5), ask("a2", 6, 4), ask("a3", 8, 7)}

	res, err := Clear(bids, asks, DefaultPriceLevels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var totalBids, totalAsks int64
	for _, b := range bids {
		totalBids += b.Amount
	}
	for _, a := range asks {
		totalAsks += a.Amount
	}

	if res.MatchedAmount+res.UnmatchedDemand != totalBids {
		t.Errorf("demand not conserved: matched=%d unmatched=%d total=%d",
			res.MatchedAmount, res.UnmatchedDemand, totalBids)
	}
	if res.MatchedAmount+res.UnmatchedSupply != totalAsks {
		t.Errorf("supply not conserved: matched=%d unmatched=%d total=%d",
			res.MatchedAmount, res.UnmatchedSupply, totalAsks)
	}
}

func TestClear_DeterministicUnderLoadOrder(t *testing.T) {
	bids := []model.FullOrder{bid("b1", 8, 4), bid("b2", 8, 4)}
	asks := []model.FullOrder{ask("a1", 5, 3), ask("a2", 8, 5), ask("a3", 8, 2)}

	first, err := Clear(bids, asks, DefaultPriceLevels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Reverse the load order; the outcome must not move.
	revBids := []model.FullOrder{bids[1], bids[0]}
	revAsks := []model.FullOrder{asks[2], asks[1], asks[0]}
	second, err := Clear(revBids, revAsks, DefaultPriceLevels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.MCP != second.MCP || first.MatchedAmount != second.MatchedAmount {
		t.Errorf("clearing depends on load order: (%d,%d) vs (%d,%d)",
			first.MCP, first.MatchedAmount, second.MCP, second.MatchedAmount)
	}
	if (first.Split == nil) != (second.Split == nil) {
		t.Fatalf("split disagreement: %+v vs %+v", first.Split, second.Split)
	}
	if first.Split != nil && first.Split.ID != second.Split.ID {
		t.Errorf("different marginal order per load order: %s vs %s",
			first.Split.ID, second.Split.ID)
	}
}

func TestClear_DoesNotMutateInput(t *testing.T) {
	bids := []model.FullOrder{bid("b1", 8, 4)}
	asks := []model.FullOrder{ask("a1", 5, 3), ask("a2", 8, 5)}

	if _, err := Clear(bids, asks, DefaultPriceLevels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if bids[0].Successful || asks[0].Successful || asks[1].UnmatchedAmount != 0 {
		t.Error("Clear must operate on copies, not the caller's books")
	}
}
