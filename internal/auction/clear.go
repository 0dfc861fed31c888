package auction

import (
	"sort"

	"github.com/hypenergy/energymarket/internal/model"
)

// Result is the outcome of clearing one auction. Bids and Asks are updated
// copies of the input books with Successful (and, on the one marginal
// order, UnmatchedAmount) set. Split points at the marginal order inside
// the updated book, nil when no order was split.
//
// MCP is model.NoMatchPrice when the curves never intersect; the auction
// still counts as cleared with a zero matched amount.
type Result struct {
	MCP             int64
	MatchedAmount   int64
	UnmatchedDemand int64
	UnmatchedSupply int64
	Bids            []model.FullOrder
	Asks            []model.FullOrder
	Split           *model.FullOrder
}

// Clear derives the market clearing price and matched quantities from the
// given order books.
//
// The clearing price is the smallest price level p where cumulative supply
// meets or exceeds cumulative demand and supply is non-zero. Three guards
// apply at each candidate: a boundary rejection skips levels where neither
// supply below nor demand at the level exists, a tie adjustment steps back
// one level when demand at p is below the supply already available under p,
// and a candidate whose final level carries zero demand is skipped — a
// price where nothing can match is not an intersection.
//
// Orders at exactly the clearing price are allocated in ascending order-id
// order, so that every replica splits the same marginal order.
func Clear(bids, asks []model.FullOrder, priceLevels int) (*Result, error) {
	bids = sortedByID(bids)
	asks = sortedByID(asks)

	curves, err := BuildCurves(bids, asks, priceLevels)
	if err != nil {
		return nil, err
	}

	for i := curves.Lowest; i <= curves.Highest; i++ {
		if curves.Supply[i] < curves.Demand[i] || curves.Supply[i] == 0 {
			continue
		}

		// No supply below this level and no demand at it: the books touch
		// the level from opposite sides without overlapping.
		if i > 0 && curves.Supply[i-1] == 0 && curves.Demand[i] == 0 {
			continue
		}

		// Demand at i is thinner than the supply already available below
		// it; step back so the price sits where demand actually is.
		p := i
		if i > 0 && curves.Demand[i] < curves.Supply[i-1] {
			p = i - 1
		}

		// Zero demand at the candidate level means nothing can match there,
		// so this is not a genuine overlap. Supply-only books and books
		// whose demand sits entirely below the asks end up here.
		if curves.Demand[p] == 0 {
			continue
		}

		return allocate(bids, asks, curves, p), nil
	}

	// No intersection anywhere: all demand and supply stays unmatched.
	return &Result{
		MCP:             model.NoMatchPrice,
		MatchedAmount:   0,
		UnmatchedDemand: curves.TotalDemand(),
		UnmatchedSupply: curves.TotalSupply(),
		Bids:            bids,
		Asks:            asks,
	}, nil
}

// allocate flags winning orders at clearing price mcp and splits the one
// marginal order that cannot be fully filled. Mutates the (already copied)
// books in place.
func allocate(bids, asks []model.FullOrder, curves *Curves, mcp int64) *Result {
	res := &Result{MCP: mcp, Bids: bids, Asks: asks}

	budget := curves.Demand[mcp]
	if curves.Supply[mcp] < budget {
		budget = curves.Supply[mcp]
	}

	if curves.Supply[mcp] > curves.Demand[mcp] {
		// Oversupply: every bid at or above the price wins in full; asks
		// compete for the matched-amount budget.
		for idx := range bids {
			if bids[idx].Price >= mcp {
				bids[idx].Successful = true
			}
		}
		for idx := range asks {
			if asks[idx].Price < mcp {
				budget -= asks[idx].Amount
				res.MatchedAmount += asks[idx].Amount
				asks[idx].Successful = true
			}
		}
		res.Split = fillMarginal(asks, mcp, &budget, &res.MatchedAmount)
	} else {
		// Undersupply or exact balance: every ask at or below the price
		// wins in full; bids compete for the budget.
		for idx := range asks {
			if asks[idx].Price <= mcp {
				asks[idx].Successful = true
			}
		}
		for idx := range bids {
			if bids[idx].Price > mcp {
				budget -= bids[idx].Amount
				res.MatchedAmount += bids[idx].Amount
				bids[idx].Successful = true
			}
		}
		res.Split = fillMarginal(bids, mcp, &budget, &res.MatchedAmount)
	}

	res.UnmatchedDemand = curves.TotalDemand() - res.MatchedAmount
	res.UnmatchedSupply = curves.TotalSupply() - res.MatchedAmount
	return res
}

// fillMarginal walks the orders at exactly the clearing price in book
// order, filling them fully while the budget covers them. The first order
// the remaining budget cannot cover becomes the split order: flagged
// successful with the uncovered remainder recorded as UnmatchedAmount.
// Allocation stops there; later equal-price orders stay unflagged. A zero
// remaining budget splits nothing.
func fillMarginal(orders []model.FullOrder, mcp int64, budget, matched *int64) *model.FullOrder {
	for idx := range orders {
		o := &orders[idx]
		if o.Price != mcp {
			continue
		}
		if *budget-o.Amount >= 0 {
			*budget -= o.Amount
			*matched += o.Amount
			o.Successful = true
			continue
		}
		if *budget <= 0 {
			return nil
		}
		o.UnmatchedAmount = o.Amount - *budget
		*matched += *budget
		*budget = 0
		o.Successful = true
		return o
	}
	return nil
}

// sortedByID returns a copy of the book ordered by ascending order id.
// Load order from the store must never influence the clearing outcome.
func sortedByID(orders []model.FullOrder) []model.FullOrder {
	out := make([]model.FullOrder, len(orders))
	copy(out, orders)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
