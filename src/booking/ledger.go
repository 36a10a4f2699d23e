package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/quanwangniuniu/EasySoccerPlay/src/config"
	"github.com/quanwangniuniu/EasySoccerPlay/src/models"
	"github.com/quanwangniuniu/EasySoccerPlay/src/payments"
	"github.com/quanwangniuniu/EasySoccerPlay/src/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const maxTxAttempts = 3

// Ledger owns every mutation of games and bookings. All writes go through a
// single transaction so BookedCount and the booking rows can never drift
// apart; capacity is enforced with a conditional update that either claims
// the spots or touches nothing.
type Ledger struct {
	db      *gorm.DB
	gateway payments.Gateway
}

func NewLedger(db *gorm.DB, gateway payments.Gateway) *Ledger {
	return &Ledger{db: db, gateway: gateway}
}

type ReserveGroupInput struct {
	GameID        uuid.UUID
	PlayerNames   []string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	PaymentRef    string
	TotalCents    int64
	Currency      string
	Metadata      *types.JSONB
}

type ReserveResult struct {
	BookedCount    uint
	SeatsReserved  int
	AlreadyApplied bool
}

// ReserveGroup books one seat per player name against a single payment
// reference. Replaying the same reference is a no-op; an overfull game
// reserves nothing and returns a CapacityError with the remaining spots.
func (l *Ledger) ReserveGroup(in *ReserveGroupInput) (*ReserveResult, error) {
	n := len(in.PlayerNames)
	if n == 0 {
		return nil, errors.New("reservation has no players")
	}
	if n > config.MaxGroupSize {
		return nil, fmt.Errorf("a group can have at most %d players", config.MaxGroupSize)
	}
	out := &ReserveResult{}
	err := l.withRetry(func(tx *gorm.DB) error {
		// cancelled seats still count: a payment that was applied once is
		// never applied again, even after its bookings are gone
		var existing int64
		if err := tx.Unscoped().Model(&models.Booking{}).Where("payment_ref = ?", in.PaymentRef).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			var game models.Game
			if err := tx.First(&game, "id = ?", in.GameID).Error; err != nil {
				return translateNotFound(err, ErrGameNotFound)
			}
			out.BookedCount = game.BookedCount
			out.AlreadyApplied = true
			return nil
		}

		game, err := l.claimSpots(tx, in.GameID, uint(n))
		if err != nil {
			return err
		}

		perPlayer := in.TotalCents / int64(n)
		rows := make([]models.Booking, 0, n)
		for i, name := range in.PlayerNames {
			rows = append(rows, models.Booking{
				GameID:               game.ID,
				ParkName:             game.ParkName,
				PlayerName:           name,
				CustomerName:         in.CustomerName,
				CustomerEmail:        in.CustomerEmail,
				CustomerPhone:        in.CustomerPhone,
				PaymentRef:           in.PaymentRef,
				Origin:               types.ORIGIN_PAID,
				AmountCents:          in.TotalCents,
				AmountPerPlayerCents: perPlayer,
				Currency:             in.Currency,
				GroupSize:            uint(n),
				PlayerIndex:          uint(i + 1),
				Status:               types.BOOKING_CONFIRMED,
				Metadata:             in.Metadata,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			// a concurrent delivery of the same reference got past the count
			// above; the unique index on paid (payment_ref, player_index)
			// rejects the second insert and rolls back the claimed spots
			if isDuplicateKey(err) {
				return errDuplicateReservation
			}
			return err
		}
		out.BookedCount = game.BookedCount
		out.SeatsReserved = n
		return nil
	})
	if errors.Is(err, errDuplicateReservation) {
		var game models.Game
		if err := l.db.First(&game, "id = ?", in.GameID).Error; err != nil {
			return nil, translateNotFound(err, ErrGameNotFound)
		}
		return &ReserveResult{BookedCount: game.BookedCount, AlreadyApplied: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

type CancelResult struct {
	SeatsCancelled int
	BookedCount    uint
}

// CancelGroup removes a booking and every confirmed seat bought with it.
// Administrative and manual seats were never part of a paid group, so they
// cancel alone.
func (l *Ledger) CancelGroup(bookingID uuid.UUID) (*CancelResult, error) {
	out := &CancelResult{}
	err := l.withRetry(func(tx *gorm.DB) error {
		var bk models.Booking
		if err := tx.First(&bk, "id = ?", bookingID).Error; err != nil {
			return translateNotFound(err, ErrBookingNotFound)
		}

		var members []models.Booking
		q := tx.Where("game_id = ? AND status = ?", bk.GameID, types.BOOKING_CONFIRMED)
		if bk.Origin == types.ORIGIN_PAID {
			q = q.Where("payment_ref = ?", bk.PaymentRef)
		} else {
			q = q.Where("id = ?", bk.ID)
		}
		if err := q.Find(&members).Error; err != nil {
			return err
		}
		if len(members) == 0 {
			return ErrBookingNotFound
		}

		ids := make([]uuid.UUID, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Booking{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			log.Printf("[Ledger] cancel expected %d rows, deleted %d\n", len(ids), res.RowsAffected)
			return ErrInconsistentState
		}

		remaining, err := l.releaseSpots(tx, bk.GameID, uint(len(ids)))
		if err != nil {
			return err
		}
		out.SeatsCancelled = len(ids)
		out.BookedCount = remaining
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type RefundResult struct {
	RefundRef     string
	AmountCents   int64
	SeatsRefunded int
	BookedCount   uint
}

// RefundGroup reverses the charge behind a paid booking and marks every seat
// of the group refunded. The gateway refund is fully resolved before any
// local record changes, so a gateway failure leaves the roster untouched.
// A nil amount refunds the full charge; a partial amount may not exceed it.
func (l *Ledger) RefundGroup(ctx context.Context, bookingID uuid.UUID, amountCents *int64, reason string) (*RefundResult, error) {
	var bk models.Booking
	if err := l.db.First(&bk, "id = ?", bookingID).Error; err != nil {
		return nil, translateNotFound(err, ErrBookingNotFound)
	}
	if !bk.Refundable() {
		return nil, ErrNotRefundable
	}
	if bk.Status == types.BOOKING_REFUNDED {
		return nil, ErrNotRefundable
	}
	if amountCents != nil && *amountCents > bk.AmountCents {
		return nil, ErrRefundTooLarge
	}

	outcome, err := l.gateway.RefundCharge(ctx, bk.PaymentRef, amountCents, reason)
	if err != nil {
		return nil, err
	}

	out := &RefundResult{RefundRef: outcome.RefundRef, AmountCents: outcome.AmountCents}
	err = l.withRetry(func(tx *gorm.DB) error {
		var members []models.Booking
		if err := tx.Where("game_id = ? AND payment_ref = ? AND status = ?", bk.GameID, bk.PaymentRef, types.BOOKING_CONFIRMED).
			Order("player_index asc").Find(&members).Error; err != nil {
			return err
		}
		if len(members) == 0 {
			return ErrBookingNotFound
		}

		now := time.Now()
		shares := SplitRefund(outcome.AmountCents, len(members))
		for i := range members {
			share := shares[i]
			updates := map[string]any{
				"status":                types.BOOKING_REFUNDED,
				"refund_ref":            outcome.RefundRef,
				"refunded_amount_cents": share,
				"refunded_at":           now,
			}
			if reason != "" {
				updates["refund_reason"] = reason
			}
			res := tx.Model(&models.Booking{}).
				Where("id = ? AND status = ?", members[i].ID, types.BOOKING_CONFIRMED).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			// a seat that vanished between the read above and this update
			// means a concurrent cancel got there first; releasing its spot
			// again would drive the counter below the truth
			if res.RowsAffected != 1 {
				log.Printf("[Ledger] refund %s expected seat %s, matched %d rows\n", outcome.RefundRef, members[i].ID, res.RowsAffected)
				return ErrInconsistentState
			}
		}

		remaining, err := l.releaseSpots(tx, bk.GameID, uint(len(members)))
		if err != nil {
			return err
		}
		out.SeatsRefunded = len(members)
		out.BookedCount = remaining
		return nil
	})
	if err != nil {
		log.Printf("[Ledger] refund %s applied at gateway but not recorded: %s\n", out.RefundRef, err.Error())
		return nil, err
	}
	return out, nil
}

type ManualAddInput struct {
	GameID        uuid.UUID
	PlayerName    string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

// ManualAdd books a single unpaid seat on behalf of a player. It consumes
// capacity like any other seat but carries no charge and cannot be refunded.
func (l *Ledger) ManualAdd(in *ManualAddInput) (*models.Booking, error) {
	var created models.Booking
	err := l.withRetry(func(tx *gorm.DB) error {
		game, err := l.claimSpots(tx, in.GameID, 1)
		if err != nil {
			return err
		}
		created = models.Booking{
			GameID:        game.ID,
			ParkName:      game.ParkName,
			PlayerName:    in.PlayerName,
			CustomerName:  in.CustomerName,
			CustomerEmail: in.CustomerEmail,
			CustomerPhone: in.CustomerPhone,
			PaymentRef:    types.PAYMENT_REF_MANUAL,
			Origin:        types.ORIGIN_MANUAL,
			Currency:      "",
			GroupSize:     1,
			Status:        types.BOOKING_CONFIRMED,
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// claimSpots atomically takes n spots from a game. The guarded update either
// claims all n or leaves the row untouched, which is what keeps concurrent
// reservations from overfilling a game.
func (l *Ledger) claimSpots(tx *gorm.DB, gameID uuid.UUID, n uint) (*models.Game, error) {
	res := tx.Model(&models.Game{}).
		Where("id = ? AND booked_count + ? <= capacity", gameID, n).
		UpdateColumn("booked_count", gorm.Expr("booked_count + ?", n))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var game models.Game
		if err := tx.First(&game, "id = ?", gameID).Error; err != nil {
			return nil, translateNotFound(err, ErrGameNotFound)
		}
		return nil, &CapacityError{Remaining: game.SpotsRemaining()}
	}
	var game models.Game
	if err := tx.First(&game, "id = ?", gameID).Error; err != nil {
		return nil, err
	}
	return &game, nil
}

// releaseSpots gives n spots back. A counter that cannot cover the release
// means the records drifted, and nothing is written.
func (l *Ledger) releaseSpots(tx *gorm.DB, gameID uuid.UUID, n uint) (uint, error) {
	res := tx.Model(&models.Game{}).
		Where("id = ? AND booked_count >= ?", gameID, n).
		UpdateColumn("booked_count", gorm.Expr("booked_count - ?", n))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		var game models.Game
		if err := tx.First(&game, "id = ?", gameID).Error; err != nil {
			return 0, translateNotFound(err, ErrGameNotFound)
		}
		log.Printf("[Ledger] game %s has booked_count %d, cannot release %d spots\n", gameID, game.BookedCount, n)
		return 0, ErrInconsistentState
	}
	var game models.Game
	if err := tx.First(&game, "id = ?", gameID).Error; err != nil {
		return 0, err
	}
	return game.BookedCount, nil
}

// SplitRefund divides a refunded amount across n seats so the shares sum
// exactly to the total. The remainder cents go to the lowest player indexes.
func SplitRefund(totalCents int64, n int) []int64 {
	shares := make([]int64, n)
	if n == 0 {
		return shares
	}
	base := totalCents / int64(n)
	rem := totalCents % int64(n)
	for i := range shares {
		shares[i] = base
		if int64(i) < rem {
			shares[i]++
		}
	}
	return shares
}

type AuditFinding struct {
	GameID        uuid.UUID
	ParkName      string
	BookedCount   uint
	ConfirmedRows int64
}

// Audit compares every game's counter with its confirmed booking rows and
// reports the games where the two disagree.
func (l *Ledger) Audit() ([]AuditFinding, error) {
	var games []models.Game
	if err := l.db.Find(&games).Error; err != nil {
		return nil, err
	}
	var findings []AuditFinding
	for _, g := range games {
		var confirmed int64
		if err := l.db.Model(&models.Booking{}).Where("game_id = ? AND status = ?", g.ID, types.BOOKING_CONFIRMED).Count(&confirmed).Error; err != nil {
			return nil, err
		}
		if confirmed != int64(g.BookedCount) {
			findings = append(findings, AuditFinding{
				GameID:        g.ID,
				ParkName:      g.ParkName,
				BookedCount:   g.BookedCount,
				ConfirmedRows: confirmed,
			})
		}
	}
	return findings, nil
}

// withRetry runs fn in a transaction, retrying serialization failures and
// lock timeouts a bounded number of times.
func (l *Ledger) withRetry(fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = l.db.Transaction(fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		log.Printf("[Ledger] transaction attempt %d failed: %s\n", attempt, err.Error())
	}
	return err
}

// errDuplicateReservation marks a payment reference that lost the race
// against its own duplicate; the caller reports it as already applied.
var errDuplicateReservation = errors.New("payment reference already reserved")

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return strings.Contains(err.Error(), "database is locked")
}

func translateNotFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
