package booking

import (
	"errors"
	"fmt"
)

var (
	ErrGameNotFound    = errors.New("game not found")
	ErrBookingNotFound = errors.New("booking not found")
	// ErrInconsistentState signals a counter that no longer matches the
	// booking rows behind it. Nothing is mutated when this is returned.
	ErrInconsistentState = errors.New("booking records are in an inconsistent state")
	// ErrNotRefundable covers bookings that never had money behind them.
	ErrNotRefundable = errors.New("booking is not refundable")
	// ErrRefundTooLarge rejects partial refunds above what the group paid.
	ErrRefundTooLarge = errors.New("refund amount exceeds the amount paid")
)

// CapacityError reports a reservation that would overfill a game. Remaining
// is the spot count at the time of the failed attempt.
type CapacityError struct {
	Remaining uint
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("not enough spots available. %d spots remaining", e.Remaining)
}
