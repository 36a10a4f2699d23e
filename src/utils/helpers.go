package utils

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/quanwangniuniu/EasySoccerPlay/src/booking"
	"github.com/quanwangniuniu/EasySoccerPlay/src/config"
	"github.com/quanwangniuniu/EasySoccerPlay/src/db"
	"github.com/quanwangniuniu/EasySoccerPlay/src/lib"
	"github.com/quanwangniuniu/EasySoccerPlay/src/models"
	"github.com/quanwangniuniu/EasySoccerPlay/src/types"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// GamesCacheKey holds the cached public games listing.
const GamesCacheKey = "games:upcoming"

// CreateNewGame creates a game with the administrator already on the roster.
// The admin seat consumes one spot, so a fresh game starts with a booked
// count of 1 and both writes land in the same transaction.
func CreateNewGame(params *types.CreateGameRequestBody) (*models.Game, error) {
	startTime, err := time.Parse(config.TIME_PARSE_FORMAT, params.StartTime)
	if err != nil {
		log.Printf("Error parsing game_time_start: %s\n", err.Error())
		return nil, err
	}
	endTime, err := time.Parse(config.TIME_PARSE_FORMAT, params.EndTime)
	if err != nil {
		log.Printf("Error parsing game_time_end: %s\n", err.Error())
		return nil, err
	}

	game := models.Game{
		ParkName:    params.ParkName,
		Slug:        slug.Make(fmt.Sprintf("%s %s", params.ParkName, startTime.Format("2006-01-02 1504"))),
		StartTime:   startTime,
		EndTime:     endTime,
		Capacity:    params.TotalPlayers,
		BookedCount: 1,
	}
	db := db.GetDb()
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&game).Error; err != nil {
			return err
		}
		adminSeat := models.Booking{
			GameID:     game.ID,
			ParkName:   game.ParkName,
			PlayerName: config.AdminPlayerName(),
			PaymentRef: types.PAYMENT_REF_ADMIN,
			Origin:     types.ORIGIN_ADMINISTRATIVE,
			GroupSize:  1,
			Status:     types.BOOKING_CONFIRMED,
		}
		return tx.Create(&adminSeat).Error
	})
	if err != nil {
		return nil, err
	}
	InvalidateGamesCache()
	return &game, nil
}

// DeleteGame removes a game and everything booked on it. The game row goes
// first so the game stops being bookable even if the booking cleanup is
// interrupted; orphaned bookings reference a dead game and are swept up by
// the next delete or flagged by audit.
func DeleteGame(gameID uuid.UUID) (int64, error) {
	db := db.GetDb()

	var expected int64
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Booking{}).Where("game_id = ?", gameID).Count(&expected).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Game{}, "id = ?", gameID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return booking.ErrGameNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	res := db.Where("game_id = ?", gameID).Delete(&models.Booking{})
	if res.Error != nil {
		log.Printf("[DeleteGame] game %s deleted but booking cleanup failed: %s\n", gameID, res.Error.Error())
		return 0, nil
	}
	if res.RowsAffected != expected {
		log.Printf("[DeleteGame] game %s expected %d bookings, deleted %d\n", gameID, expected, res.RowsAffected)
	}
	InvalidateGamesCache()
	return res.RowsAffected, nil
}

// InvalidateGamesCache drops the cached games listing. Safe without redis.
func InvalidateGamesCache() {
	rc := lib.GetRedisClient()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Del(ctx, GamesCacheKey).Err(); err != nil {
		log.Printf("Error invalidating games cache: %s\n", err.Error())
	}
}
