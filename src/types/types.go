package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return errors.New("type assertion to []byte failed")
		}
		b = []byte(s)
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type BookingStatus string

const (
	BOOKING_CONFIRMED BookingStatus = "confirmed"
	BOOKING_REFUNDED  BookingStatus = "refunded"
)

// BookingOrigin tags how a seat was taken. Administrative and manual seats
// carry a sentinel payment reference and are cancellable but never refundable.
type BookingOrigin string

const (
	ORIGIN_PAID           BookingOrigin = "paid"
	ORIGIN_ADMINISTRATIVE BookingOrigin = "administrative"
	ORIGIN_MANUAL         BookingOrigin = "manual"
)

// Sentinel payment references for bookings that never touched the gateway.
const (
	PAYMENT_REF_ADMIN  = "admin_booking"
	PAYMENT_REF_MANUAL = "manual_booking"
)

type SimpleRequestParams struct {
	ID string `uri:"id" binding:"required,uuid"`
}

type CreateGameRequestBody struct {
	ParkName     string `json:"park_name" binding:"required"`
	StartTime    string `json:"game_time_start" binding:"required,bookabledate" time_format:"2006-01-02 15:04:05 -07:00"`
	EndTime      string `json:"game_time_end" binding:"required,bookabledate,gtdate=StartTime" time_format:"2006-01-02 15:04:05 -07:00"`
	TotalPlayers uint   `json:"total_players" binding:"required,min=2"`
}

type IntentPlayer struct {
	Name string `json:"name" binding:"required"`
}

type CreateIntentRequestBody struct {
	GameID        string         `json:"game_id" binding:"required,uuid"`
	Players       []IntentPlayer `json:"players" binding:"required,min=1,max=6,dive"`
	CustomerName  string         `json:"customer_name" binding:"required"`
	CustomerEmail string         `json:"customer_email,omitempty" binding:"omitempty,email"`
	CustomerPhone string         `json:"customer_phone,omitempty"`
}

type ManualBookingRequestBody struct {
	PlayerName    string `json:"player_name" binding:"required"`
	CustomerEmail string `json:"customer_email,omitempty" binding:"omitempty,email"`
	CustomerPhone string `json:"customer_phone,omitempty"`
}

type CancelBookingRequestBody struct {
	PaymentRef string `json:"payment_ref,omitempty"`
}

type RefundBookingRequestBody struct {
	PaymentRef   string `json:"payment_ref" binding:"required"`
	RefundAmount *int64 `json:"refund_amount,omitempty" binding:"omitempty,min=1"`
	Reason       string `json:"reason,omitempty"`
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}
