package payments

import (
	"context"
	"errors"
)

var (
	// ErrNoChargeToRefund means the referenced payment never produced a
	// settled charge, so there is nothing to reverse.
	ErrNoChargeToRefund = errors.New("no charge found for this payment")
	// ErrGatewayUnavailable covers network failures and gateway outages; the
	// caller may retry, nothing was charged or refunded.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// IntentMetadata travels with the charge intent and is echoed back on the
// asynchronous success notification. It is the durable record of what was
// being purchased.
type IntentMetadata struct {
	GameID          string
	ParkName        string
	NumberOfPlayers int
	PlayerNames     []string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
}

type ChargeIntentInput struct {
	AmountCents int64
	Currency    string
	Metadata    IntentMetadata
}

type ChargeIntent struct {
	IntentRef   string
	ClientToken string
}

type RefundOutcome struct {
	RefundRef   string
	AmountCents int64
	Currency    string
	Status      string
}

// Gateway is the payment provider as consumed by the booking core. The
// provider's card-collection UI and its webhook delivery/retry policy stay on
// the provider side; this interface only creates intents and reverses charges.
type Gateway interface {
	// CreateChargeIntent registers a charge for the given amount and returns a
	// client token the purchaser completes payment with.
	CreateChargeIntent(ctx context.Context, in *ChargeIntentInput) (*ChargeIntent, error)

	// RefundCharge reverses the settled charge behind a payment reference,
	// fully when amountCents is nil. Returns ErrNoChargeToRefund when the
	// payment never settled.
	RefundCharge(ctx context.Context, paymentRef string, amountCents *int64, reason string) (*RefundOutcome, error)
}

// DeclineCategory is the purchaser-facing classification of a failed payment.
type DeclineCategory string

const (
	DECLINE_GENERIC            DeclineCategory = "declined"
	DECLINE_INSUFFICIENT_FUNDS DeclineCategory = "insufficient_funds"
	DECLINE_NETWORK            DeclineCategory = "network"
)

func (c DeclineCategory) Message() string {
	switch c {
	case DECLINE_INSUFFICIENT_FUNDS:
		return "Your card has insufficient funds. Please try a different card."
	case DECLINE_NETWORK:
		return "We could not reach the payment provider. Please try again."
	default:
		return "Your card was declined. Please try a different card."
	}
}
