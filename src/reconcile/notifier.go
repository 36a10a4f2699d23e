// Package reconcile turns asynchronous payment notifications into booking
// records. Money state at the gateway is the source of truth; this package
// verifies each notification and applies it to the ledger exactly once.
package reconcile

import (
	"encoding/json"
	"log"
	"os"

	"github.com/quanwangniuniu/EasySoccerPlay/src/booking"
	"github.com/quanwangniuniu/EasySoccerPlay/src/config"
	"github.com/quanwangniuniu/EasySoccerPlay/src/payments"
	"github.com/quanwangniuniu/EasySoccerPlay/src/types"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// State tracks a notification through its lifecycle. Every notification
// starts as NOTIFICATION_RECEIVED and ends in exactly one terminal state.
type State string

const (
	NOTIFICATION_RECEIVED     State = "received"
	NOTIFICATION_VERIFIED     State = "verified"
	NOTIFICATION_APPLIED      State = "applied"
	NOTIFICATION_REJECTED     State = "rejected"
	NOTIFICATION_APPLY_FAILED State = "apply_failed"
)

// Result is the outcome of processing one notification. Rejected means the
// signature did not verify and the sender should retry with a valid one;
// every other terminal state acknowledges receipt.
type Result struct {
	State       State
	EventType   string
	PaymentRef  string
	BookedCount uint
	Err         error
}

// Acknowledged reports whether the notification should be acked to stop the
// sender's retries. Apply failures are acked too: redelivering a payment for
// a full game can never succeed, and the failure is surfaced by audit
// instead.
func (r *Result) Acknowledged() bool {
	return r.State != NOTIFICATION_REJECTED
}

type Notifier struct {
	ledger *booking.Ledger
}

func NewNotifier(ledger *booking.Ledger) *Notifier {
	return &Notifier{ledger: ledger}
}

// Handle verifies a signed notification payload and applies it. The
// signature check gates everything; an unverified payload is never parsed
// beyond what verification itself requires.
func (n *Notifier) Handle(payload []byte, sigHeader string) *Result {
	res := &Result{State: NOTIFICATION_RECEIVED}

	secret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	event, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		log.Printf("[Notifier] signature verification failed: %s\n", err.Error())
		res.State = NOTIFICATION_REJECTED
		res.Err = err
		return res
	}
	res.State = NOTIFICATION_VERIFIED
	res.EventType = string(event.Type)

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			log.Printf("[Notifier] Error parsing PaymentIntent from event %s: %s\n", event.ID, err.Error())
			res.State = NOTIFICATION_APPLY_FAILED
			res.Err = err
			return res
		}
		n.applyPayment(&pi, res)
	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err == nil {
			res.PaymentRef = pi.ID
			log.Printf("[Notifier] payment %s failed, nothing to apply\n", pi.ID)
		}
	default:
		log.Printf("[Notifier] ignoring event type %s\n", event.Type)
	}
	return res
}

// applyPayment reserves the seats a settled payment was for. The intent's
// metadata carries the whole purchase, so a payment can be applied even if
// it is the first time this process hears about it.
func (n *Notifier) applyPayment(pi *stripe.PaymentIntent, res *Result) {
	res.PaymentRef = pi.ID

	if string(pi.Currency) != config.Currency {
		log.Printf("[Notifier] payment %s is in %s, expected %s\n", pi.ID, pi.Currency, config.Currency)
		res.State = NOTIFICATION_APPLY_FAILED
		return
	}

	md := payments.ParseMetadata(pi.Metadata)
	gameID, err := uuid.Parse(md.GameID)
	if err != nil {
		log.Printf("[Notifier] payment %s has no usable gameId: %s\n", pi.ID, err.Error())
		res.State = NOTIFICATION_APPLY_FAILED
		res.Err = err
		return
	}
	if len(md.PlayerNames) == 0 {
		log.Printf("[Notifier] payment %s names no players\n", pi.ID)
		res.State = NOTIFICATION_APPLY_FAILED
		return
	}

	meta := types.JSONB{}
	for k, v := range pi.Metadata {
		meta[k] = v
	}
	out, err := n.ledger.ReserveGroup(&booking.ReserveGroupInput{
		GameID:        gameID,
		PlayerNames:   md.PlayerNames,
		CustomerName:  md.CustomerName,
		CustomerEmail: md.CustomerEmail,
		CustomerPhone: md.CustomerPhone,
		PaymentRef:    pi.ID,
		TotalCents:    pi.Amount,
		Currency:      string(pi.Currency),
		Metadata:      &meta,
	})
	if err != nil {
		log.Printf("[Notifier] could not apply payment %s: %s\n", pi.ID, err.Error())
		res.State = NOTIFICATION_APPLY_FAILED
		res.Err = err
		return
	}
	if out.AlreadyApplied {
		log.Printf("[Notifier] payment %s already applied, booked count %d\n", pi.ID, out.BookedCount)
	}
	res.State = NOTIFICATION_APPLIED
	res.BookedCount = out.BookedCount
}
