// Package auction implements the clearing algorithm for the periodic
// double-sided energy auction: cumulative supply/demand curve construction
// over a discretized integer price axis, intersection search with
// tie-breaks, and partial-fill splitting of the one marginal order.
//
// All functions are pure and deterministic — no clocks, no randomness, no
// map iteration influences output. Replicated executions with the same
// order books converge on identical results.
package auction

import (
	"errors"
	"fmt"

	"github.com/hypenergy/energymarket/internal/model"
)

// DefaultPriceLevels is the size of the discretized price axis. Valid
// prices are integers in [0, PriceLevels).
const DefaultPriceLevels = 30

var (
	// ErrPriceOutOfRange is returned when an order's price falls outside
	// the configured [0, PriceLevels) axis.
	ErrPriceOutOfRange = errors.New("auction: order price outside price axis")

	// ErrInvalidAmount is returned when an order's amount is not positive.
	ErrInvalidAmount = errors.New("auction: order amount must be positive")
)

// Curves holds the cumulative supply and demand curves for one auction.
//
// After Build, Supply[p] is the total quantity sellers are willing to
// deliver at price p or below, and Demand[p] is the total quantity buyers
// are willing to pay for at price p or above. Lowest and Highest bound the
// populated region; with no orders, Lowest stays at its sentinel (one past
// the axis) and Highest at zero, leaving both curves all-zero.
type Curves struct {
	Supply  []int64
	Demand  []int64
	Lowest  int64
	Highest int64
}

// BuildCurves buckets the given bid and ask amounts per price point and
// accumulates them into cumulative curves. Orders must carry prices in
// [0, priceLevels) and positive amounts; a violating order fails the whole
// build, since clearing must be all-or-nothing.
func BuildCurves(bids, asks []model.FullOrder, priceLevels int) (*Curves, error) {
	c := &Curves{
		Supply:  make([]int64, priceLevels),
		Demand:  make([]int64, priceLevels),
		Lowest:  int64(priceLevels), // sentinel above any valid price
		Highest: 0,
	}

	bucket := func(o model.FullOrder, curve []int64) error {
		if o.Price < 0 || o.Price >= int64(priceLevels) {
			return fmt.Errorf("%w: order %s has price %d, axis is [0,%d)",
				ErrPriceOutOfRange, o.ID, o.Price, priceLevels)
		}
		if o.Amount <= 0 {
			return fmt.Errorf("%w: order %s has amount %d", ErrInvalidAmount, o.ID, o.Amount)
		}
		curve[o.Price] += o.Amount
		if o.Price < c.Lowest {
			c.Lowest = o.Price
		}
		if o.Price > c.Highest {
			c.Highest = o.Price
		}
		return nil
	}

	for _, b := range bids {
		if err := bucket(b, c.Demand); err != nil {
			return nil, err
		}
	}
	for _, a := range asks {
		if err := bucket(a, c.Supply); err != nil {
			return nil, err
		}
	}

	// Cumulative pass: supply accumulates upward from the lowest price,
	// demand accumulates downward from the highest, in lockstep.
	hp := c.Highest
	for p := c.Lowest; p <= c.Highest; p++ {
		if p > 0 {
			c.Supply[p] += c.Supply[p-1]
		}
		if hp > 0 {
			c.Demand[hp-1] += c.Demand[hp]
		}
		hp--
	}

	return c, nil
}

// TotalDemand returns the cumulative demand over the whole populated
// region, i.e. every bid quantity in the book.
func (c *Curves) TotalDemand() int64 {
	if c.Lowest >= int64(len(c.Demand)) {
		return 0
	}
	return c.Demand[c.Lowest]
}

// TotalSupply returns the cumulative supply over the whole populated
// region, i.e. every ask quantity in the book.
func (c *Curves) TotalSupply() int64 {
	return c.Supply[c.Highest]
}
