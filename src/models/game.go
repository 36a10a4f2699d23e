package models

import (
	"time"

	"github.com/quanwangniuniu/EasySoccerPlay/src/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Game is the unit of capacity. BookedCount is a denormalized aggregate over
// the Booking records referencing the game; it is only ever mutated in the
// same transaction as the records it summarizes.
type Game struct {
	ID          uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`
	ParkName    string    `json:"park_name,omitempty"`
	Slug        string    `json:"slug,omitempty"`
	StartTime   time.Time `json:"game_time_start,omitempty"`
	EndTime     time.Time `json:"game_time_end,omitempty"`
	Capacity    uint      `json:"total_players,omitempty"`
	BookedCount uint      `json:"booked_count"`

	Bookings []Booking `gorm:"foreignKey:game_id" json:"bookings,omitempty"`

	types.Timestamps
}

func (g *Game) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

func (g *Game) SpotsRemaining() uint {
	if g.BookedCount >= g.Capacity {
		return 0
	}
	return g.Capacity - g.BookedCount
}
