// Package limits enforces per-participant order limits at placement time.
//
// A single runaway order (fat-finger amount) or a participant stacking
// orders on one auction can distort the clearing price for the whole
// period. The limiter caps the amount of one order and the aggregate
// amount a participant has open on one auction's book.
package limits

import (
	"errors"
)

var (
	// ErrOrderTooLarge is returned when a single order's amount exceeds
	// the per-order maximum.
	ErrOrderTooLarge = errors.New("limits: order amount exceeds per-order maximum")

	// ErrExposureExceeded is returned when an order would push a
	// participant's aggregate open amount on one auction beyond the
	// per-auction maximum.
	ErrExposureExceeded = errors.New("limits: aggregate auction exposure limit exceeded")
)

// OrderLimiter validates order amounts against configured maxima. Zero or
// negative maxima disable the corresponding check.
type OrderLimiter struct {
	// MaxOrderAmount is the largest amount a single order may carry.
	MaxOrderAmount int64

	// MaxAuctionExposure is the largest aggregate amount a participant
	// may have open across both sides of one auction's book.
	MaxAuctionExposure int64
}

// NewOrderLimiter creates a limiter with the given per-order and
// per-auction maxima.
func NewOrderLimiter(maxOrderAmount, maxAuctionExposure int64) *OrderLimiter {
	return &OrderLimiter{
		MaxOrderAmount:     maxOrderAmount,
		MaxAuctionExposure: maxAuctionExposure,
	}
}

// Check validates a new order of the given amount for a participant whose
// existing open amount on the auction is existingExposure.
func (l *OrderLimiter) Check(amount, existingExposure int64) error {
	if l.MaxOrderAmount > 0 && amount > l.MaxOrderAmount {
		return ErrOrderTooLarge
	}
	if l.MaxAuctionExposure > 0 && existingExposure+amount > l.MaxAuctionExposure {
		return ErrExposureExceeded
	}
	return nil
}
