package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/quanwangniuniu/EasySoccerPlay/src/lib"

	"github.com/stripe/stripe-go/v82"
)

// StripeGateway implements Gateway on Stripe payment intents. The intent's
// metadata mirrors IntentMetadata so the webhook can reconstruct the purchase
// without a locally persisted pending-order record.
type StripeGateway struct {
	sc *stripe.Client
}

func NewStripeGateway() *StripeGateway {
	return &StripeGateway{sc: lib.GetStripeClient()}
}

func (g *StripeGateway) CreateChargeIntent(ctx context.Context, in *ChargeIntentInput) (*ChargeIntent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(in.AmountCents),
		Currency: stripe.String(in.Currency),
		Metadata: MetadataMap(&in.Metadata),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	pi, err := g.sc.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		log.Printf("[stripe] Error creating PaymentIntent: %s\n", err.Error())
		return nil, wrapGatewayError(err)
	}
	return &ChargeIntent{IntentRef: pi.ID, ClientToken: pi.ClientSecret}, nil
}

func (g *StripeGateway) RefundCharge(ctx context.Context, paymentRef string, amountCents *int64, reason string) (*RefundOutcome, error) {
	retrieveParams := &stripe.PaymentIntentRetrieveParams{}
	retrieveParams.AddExpand("latest_charge")
	pi, err := g.sc.V1PaymentIntents.Retrieve(ctx, paymentRef, retrieveParams)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, ErrNoChargeToRefund
		}
		log.Printf("[stripe] Error retrieving PaymentIntent %s: %s\n", paymentRef, err.Error())
		return nil, wrapGatewayError(err)
	}
	if pi.LatestCharge == nil || pi.LatestCharge.Status != stripe.ChargeStatusSucceeded {
		log.Printf("[stripe] PaymentIntent %s has status %s and no settled charge\n", pi.ID, pi.Status)
		return nil, ErrNoChargeToRefund
	}

	refundReason := reason
	if refundReason == "" {
		refundReason = "requested_by_customer"
	}
	params := &stripe.RefundCreateParams{
		Charge: stripe.String(pi.LatestCharge.ID),
		Reason: stripe.String(refundReason),
	}
	if amountCents != nil {
		params.Amount = stripe.Int64(*amountCents)
	}
	refund, err := g.sc.V1Refunds.Create(ctx, params)
	if err != nil {
		log.Printf("[stripe] Error creating Refund for charge %s: %s\n", pi.LatestCharge.ID, err.Error())
		return nil, wrapGatewayError(err)
	}
	return &RefundOutcome{
		RefundRef:   refund.ID,
		AmountCents: refund.Amount,
		Currency:    string(refund.Currency),
		Status:      string(refund.Status),
	}, nil
}

// MetadataMap flattens IntentMetadata into the string map the gateway stores
// with the intent. Keys match what the webhook reads back.
func MetadataMap(md *IntentMetadata) map[string]string {
	return map[string]string{
		"gameId":          md.GameID,
		"parkName":        md.ParkName,
		"numberOfPlayers": strconv.Itoa(md.NumberOfPlayers),
		"playerNames":     strings.Join(md.PlayerNames, ", "),
		"customerName":    md.CustomerName,
		"customerEmail":   md.CustomerEmail,
		"customerPhone":   md.CustomerPhone,
	}
}

// ParseMetadata is the inverse of MetadataMap, applied to the metadata echoed
// on a payment notification. Missing numberOfPlayers falls back to 1 and a
// missing roster falls back to the customer name, mirroring what the booking
// form always sends.
func ParseMetadata(md map[string]string) *IntentMetadata {
	out := &IntentMetadata{
		GameID:        md["gameId"],
		ParkName:      md["parkName"],
		CustomerName:  md["customerName"],
		CustomerEmail: md["customerEmail"],
		CustomerPhone: md["customerPhone"],
	}
	n, err := strconv.Atoi(md["numberOfPlayers"])
	if err != nil || n < 1 {
		n = 1
	}
	out.NumberOfPlayers = n
	if names := md["playerNames"]; names != "" {
		out.PlayerNames = strings.Split(names, ", ")
	} else if out.CustomerName != "" {
		out.PlayerNames = []string{out.CustomerName}
	}
	return out
}

// ClassifyDecline buckets a gateway error into the plain-language category
// shown to the purchaser.
func ClassifyDecline(err error) DeclineCategory {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return DECLINE_NETWORK
	}
	if stripeErr.Code == stripe.ErrorCodeCardDeclined {
		if stripeErr.DeclineCode == stripe.DeclineCodeInsufficientFunds {
			return DECLINE_INSUFFICIENT_FUNDS
		}
		return DECLINE_GENERIC
	}
	if stripeErr.Type == stripe.ErrorTypeCard {
		return DECLINE_GENERIC
	}
	return DECLINE_NETWORK
}

func wrapGatewayError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) || stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 0 {
		return fmt.Errorf("%w: %s", ErrGatewayUnavailable, err.Error())
	}
	return err
}
