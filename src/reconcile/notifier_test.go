package reconcile

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quanwangniuniu/EasySoccerPlay/src/booking"
	"github.com/quanwangniuniu/EasySoccerPlay/src/models"
	"github.com/quanwangniuniu/EasySoccerPlay/src/payments"
	"github.com/quanwangniuniu/EasySoccerPlay/src/types"

	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookSecret = "whsec_test_secret"

type nopGateway struct{}

func (nopGateway) CreateChargeIntent(ctx context.Context, in *payments.ChargeIntentInput) (*payments.ChargeIntent, error) {
	return &payments.ChargeIntent{IntentRef: "pi_test", ClientToken: "pi_test_secret"}, nil
}

func (nopGateway) RefundCharge(ctx context.Context, paymentRef string, amountCents *int64, reason string) (*payments.RefundOutcome, error) {
	return &payments.RefundOutcome{RefundRef: "re_test"}, nil
}

type NotifierTestSuite struct {
	suite.Suite
	db       *gorm.DB
	notifier *Notifier
	game     *models.Game
}

func (s *NotifierTestSuite) SetupTest() {
	s.T().Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)

	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_txlock=immediate", filepath.Join(s.T().TempDir(), "notifier.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(&models.Game{}, &models.Booking{}))
	s.Require().NoError(models.EnsureIndexes(db))
	s.db = db
	s.notifier = NewNotifier(booking.NewLedger(db, nopGateway{}))

	s.game = &models.Game{
		ParkName:  "Jubilee Park",
		Slug:      "jubilee-park",
		StartTime: time.Now().Add(24 * time.Hour),
		EndTime:   time.Now().Add(26 * time.Hour),
		Capacity:  10,
	}
	s.Require().NoError(db.Create(s.game).Error)
}

func signedHeader(payload []byte, secret string) string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func (s *NotifierTestSuite) eventPayload(eventType string, object map[string]any) []byte {
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_test",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        eventType,
		"data":        map[string]any{"object": object},
	})
	s.Require().NoError(err)
	return payload
}

func (s *NotifierTestSuite) paymentIntent(ref string, amount int64, currency string, players string) map[string]any {
	return map[string]any{
		"id":       ref,
		"object":   "payment_intent",
		"amount":   amount,
		"currency": currency,
		"metadata": map[string]string{
			"gameId":          s.game.ID.String(),
			"parkName":        s.game.ParkName,
			"numberOfPlayers": fmt.Sprintf("%d", len(splitNames(players))),
			"playerNames":     players,
			"customerName":    "Alice",
			"customerEmail":   "alice@example.com",
		},
	}
}

func splitNames(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ", ")
}

func (s *NotifierTestSuite) TestRejectsBadSignature() {
	payload := s.eventPayload("payment_intent.succeeded", s.paymentIntent("pi_abc", 5400, "aud", "Alice, Bob, Carol"))

	res := s.notifier.Handle(payload, signedHeader(payload, "whsec_wrong"))
	s.Equal(NOTIFICATION_REJECTED, res.State)
	s.False(res.Acknowledged())

	var count int64
	s.Require().NoError(s.db.Model(&models.Booking{}).Count(&count).Error)
	s.Equal(int64(0), count)
}

func (s *NotifierTestSuite) TestIgnoresForeignEventTypes() {
	payload := s.eventPayload("customer.created", map[string]any{"id": "cus_123", "object": "customer"})

	res := s.notifier.Handle(payload, signedHeader(payload, testWebhookSecret))
	s.Equal(NOTIFICATION_VERIFIED, res.State)
	s.True(res.Acknowledged())
}

func (s *NotifierTestSuite) TestAppliesSucceededPayment() {
	payload := s.eventPayload("payment_intent.succeeded", s.paymentIntent("pi_abc", 5400, "aud", "Alice, Bob, Carol"))

	res := s.notifier.Handle(payload, signedHeader(payload, testWebhookSecret))
	s.Equal(NOTIFICATION_APPLIED, res.State)
	s.Equal("pi_abc", res.PaymentRef)
	s.Equal(uint(3), res.BookedCount)
	s.True(res.Acknowledged())

	var rows []models.Booking
	s.Require().NoError(s.db.Where("payment_ref = ?", "pi_abc").Order("player_index asc").Find(&rows).Error)
	s.Require().Len(rows, 3)
	s.Equal("Alice", rows[0].PlayerName)
	s.Equal(int64(5400), rows[0].AmountCents)
	s.Equal(int64(1800), rows[0].AmountPerPlayerCents)
	s.Equal(types.ORIGIN_PAID, rows[0].Origin)
}

func (s *NotifierTestSuite) TestDuplicateDeliveryIsIdempotent() {
	payload := s.eventPayload("payment_intent.succeeded", s.paymentIntent("pi_abc", 3600, "aud", "Alice, Bob"))

	res := s.notifier.Handle(payload, signedHeader(payload, testWebhookSecret))
	s.Equal(NOTIFICATION_APPLIED, res.State)

	res = s.notifier.Handle(payload, signedHeader(payload, testWebhookSecret))
	s.Equal(NOTIFICATION_APPLIED, res.State)
	s.Equal(uint(2), res.BookedCount)

	var count int64
	s.Require().NoError(s.db.Model(&models.Booking{}).Where("payment_ref = ?", "pi_abc").Count(&count).Error)
	s.Equal(int64(2), count)

	var game models.Game
	s.Require().NoError(s.db.First(&game, "id = ?", s.game.ID).Error)
	s.Equal(uint(2), game.BookedCount)
}

func (s *NotifierTestSuite) TestFullGameIsApplyFailedButAcked() {
	s.Require().NoError(s.db.Model(&models.Game{}).Where("id = ?", s.game.ID).UpdateColumn("booked_count", 9).Error)
	payload := s.eventPayload("payment_intent.succeeded", s.paymentIntent("pi_late", 3600, "aud", "Alice, Bob"))

	res := s.notifier.Handle(payload, signedHeader(payload, testWebhookSecret))
	s.Equal(NOTIFICATION_APPLY_FAILED, res.State)
	s.True(res.Acknowledged())
	var capErr *booking.CapacityError
	s.Require().ErrorAs(res.Err, &capErr)
	s.Equal(uint(1), capErr.Remaining)

	var count int64
	s.Require().NoError(s.db.Model(&models.Booking{}).Where("payment_ref = ?", "pi_late").Count(&count).Error)
	s.Equal(int64(0), count)
}

func (s *NotifierTestSuite) TestWrongCurrencyIsApplyFailed() {
	payload := s.eventPayload("payment_intent.succeeded", s.paymentIntent("pi_usd", 5400, "usd", "Alice"))

	res := s.notifier.Handle(payload, signedHeader(payload, testWebhookSecret))
	s.Equal(NOTIFICATION_APPLY_FAILED, res.State)
	s.True(res.Acknowledged())
}

func (s *NotifierTestSuite) TestRosterFallsBackToCustomerName() {
	pi := s.paymentIntent("pi_solo", 1800, "aud", "")
	pi["metadata"].(map[string]string)["playerNames"] = ""
	pi["metadata"].(map[string]string)["numberOfPlayers"] = "1"
	payload := s.eventPayload("payment_intent.succeeded", pi)

	res := s.notifier.Handle(payload, signedHeader(payload, testWebhookSecret))
	s.Equal(NOTIFICATION_APPLIED, res.State)

	var row models.Booking
	s.Require().NoError(s.db.First(&row, "payment_ref = ?", "pi_solo").Error)
	s.Equal("Alice", row.PlayerName)
}

func (s *NotifierTestSuite) TestFailedPaymentAppliesNothing() {
	payload := s.eventPayload("payment_intent.payment_failed", s.paymentIntent("pi_bad", 5400, "aud", "Alice, Bob, Carol"))

	res := s.notifier.Handle(payload, signedHeader(payload, testWebhookSecret))
	s.Equal(NOTIFICATION_VERIFIED, res.State)
	s.Equal("pi_bad", res.PaymentRef)

	var count int64
	s.Require().NoError(s.db.Model(&models.Booking{}).Count(&count).Error)
	s.Equal(int64(0), count)
}

func TestNotifierTestSuite(t *testing.T) {
	suite.Run(t, new(NotifierTestSuite))
}
