package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/quanwangniuniu/EasySoccerPlay/src/booking"
	"github.com/quanwangniuniu/EasySoccerPlay/src/db"
	"github.com/quanwangniuniu/EasySoccerPlay/src/lib"
	"github.com/quanwangniuniu/EasySoccerPlay/src/models"
	"github.com/quanwangniuniu/EasySoccerPlay/src/types"
	"github.com/quanwangniuniu/EasySoccerPlay/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const gamesCacheTTL = 30 * time.Second

func gameRoutes(g *gin.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.
		GET("/games", func(ctx *gin.Context) {
			rc := lib.GetRedisClient()
			if rc != nil {
				cached, err := rc.Get(context.Background(), utils.GamesCacheKey).Result()
				if err == nil && cached != "" {
					ctx.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cached))
					return
				}
			}

			var games []models.Game
			db := db.GetDb()
			if err := db.Where("end_time > ?", time.Now()).Order("start_time asc").Find(&games).Error; err != nil {
				log.Printf("Error listing games: %s\n", err.Error())
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			body, err := listGamesResponse(games)
			if err != nil {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if rc != nil {
				if err := rc.Set(context.Background(), utils.GamesCacheKey, body, gamesCacheTTL).Err(); err != nil {
					log.Printf("Error caching games: %s\n", err.Error())
				}
			}
			ctx.Data(http.StatusOK, "application/json; charset=utf-8", body)
		}).
		GET("/games/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var game models.Game
			db := db.GetDb()
			if err := db.First(&game, "id = ?", params.ID).Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": booking.ErrGameNotFound.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": gameSummary(&game)})
		}).
		GET("/games/:id/players", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			db := db.GetDb()
			var game models.Game
			if err := db.First(&game, "id = ?", params.ID).Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": booking.ErrGameNotFound.Error()})
				return
			}
			var roster []models.Booking
			if err := db.
				Where("game_id = ? AND status = ?", game.ID, types.BOOKING_CONFIRMED).
				Order("created_at asc").
				Find(&roster).Error; err != nil {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			players := make([]gin.H, 0, len(roster))
			for _, b := range roster {
				players = append(players, gin.H{"player_name": b.PlayerName})
			}
			ctx.JSON(http.StatusOK, gin.H{
				"data": gin.H{
					"game":    gameSummary(&game),
					"players": players,
				},
			})
		})
	return apiv1
}

func adminGameRoutes(authorized *gin.RouterGroup) {
	games := authorized.Group("/admin/games")
	games.
		POST("", func(ctx *gin.Context) {
			var body types.CreateGameRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			game, err := utils.CreateNewGame(&body)
			if err != nil {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": gameSummary(game)})
		}).
		DELETE("/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			gameID := uuid.MustParse(params.ID)
			deleted, err := utils.DeleteGame(gameID)
			if err != nil {
				if errors.Is(err, booking.ErrGameNotFound) {
					ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
					return
				}
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{"bookings_removed": deleted}})
		}).
		POST("/:id/players", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.ManualBookingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			bk, err := newLedger().ManualAdd(&booking.ManualAddInput{
				GameID:        uuid.MustParse(params.ID),
				PlayerName:    body.PlayerName,
				CustomerEmail: body.CustomerEmail,
				CustomerPhone: body.CustomerPhone,
			})
			if err != nil {
				respondLedgerError(ctx, err)
				return
			}
			utils.InvalidateGamesCache()
			ctx.JSON(http.StatusCreated, gin.H{"data": bk})
		})
}

func gameSummary(game *models.Game) gin.H {
	return gin.H{
		"id":              game.ID,
		"park_name":       game.ParkName,
		"slug":            game.Slug,
		"game_time_start": game.StartTime,
		"game_time_end":   game.EndTime,
		"total_players":   game.Capacity,
		"booked_count":    game.BookedCount,
		"spots_remaining": game.SpotsRemaining(),
	}
}

func listGamesResponse(games []models.Game) ([]byte, error) {
	summaries := make([]gin.H, 0, len(games))
	for i := range games {
		summaries = append(summaries, gameSummary(&games[i]))
	}
	return jsonBody(gin.H{"data": summaries})
}
