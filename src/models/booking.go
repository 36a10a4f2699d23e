package models

import (
	"time"

	"github.com/quanwangniuniu/EasySoccerPlay/src/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Booking is one player seat. A group purchase produces GroupSize rows that
// share a PaymentRef; every member of the group records the full charge in
// AmountCents and its own share in AmountPerPlayerCents.
type Booking struct {
	ID     uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`
	GameID uuid.UUID `gorm:"type:uuid;index" json:"game_id"`

	ParkName      string `json:"park_name,omitempty"`
	PlayerName    string `json:"player_name,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`

	PaymentRef           string              `gorm:"index" json:"payment_ref,omitempty"`
	Origin               types.BookingOrigin `gorm:"default:'paid'" json:"origin,omitempty"`
	AmountCents          int64               `json:"amount_cents"`
	AmountPerPlayerCents int64               `json:"amount_per_player_cents"`
	Currency             string              `json:"currency,omitempty"`
	GroupSize            uint                `json:"group_size,omitempty"`
	PlayerIndex          uint                `json:"player_index,omitempty"`
	Status               types.BookingStatus `gorm:"default:'confirmed'" json:"status,omitempty"`

	RefundRef           *string      `json:"refund_ref,omitempty"`
	RefundedAmountCents *int64       `json:"refunded_amount_cents,omitempty"`
	RefundedAt          *time.Time   `json:"refunded_at,omitempty"`
	RefundReason        *string      `json:"refund_reason,omitempty"`
	Metadata            *types.JSONB `json:"metadata,omitempty"`

	Game *Game `gorm:"foreignKey:game_id" json:"game,omitempty"`

	types.Timestamps
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Refundable reports whether the booking is backed by a real charge.
// Administrative and manual seats can only be cancelled.
func (b *Booking) Refundable() bool {
	return b.Origin == types.ORIGIN_PAID
}

// EnsureIndexes creates the constraints AutoMigrate cannot express. A paid
// payment reference is insertable exactly once per seat, across concurrent
// transactions and regardless of isolation level; the admin/manual sentinel
// references stay shareable because the index only covers paid rows.
func EnsureIndexes(db *gorm.DB) error {
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_paid_ref_seat ON bookings (payment_ref, player_index) WHERE origin = 'paid'`,
	).Error
}
