package main

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/quanwangniuniu/EasySoccerPlay/src/booking"
	"github.com/quanwangniuniu/EasySoccerPlay/src/config"
	"github.com/quanwangniuniu/EasySoccerPlay/src/db"
	"github.com/quanwangniuniu/EasySoccerPlay/src/models"
	"github.com/quanwangniuniu/EasySoccerPlay/src/payments"
	"github.com/quanwangniuniu/EasySoccerPlay/src/reconcile"
	"github.com/quanwangniuniu/EasySoccerPlay/src/types"
	"github.com/quanwangniuniu/EasySoccerPlay/src/utils"

	"github.com/gin-gonic/gin"
)

func paymentRoutes(g *gin.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.POST("/payments/intent", func(ctx *gin.Context) {
		var body types.CreateIntentRequestBody
		if err := ctx.ShouldBindJSON(&body); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var game models.Game
		if err := db.GetDb().First(&game, "id = ?", body.GameID).Error; err != nil {
			ctx.JSON(http.StatusNotFound, gin.H{"error": booking.ErrGameNotFound.Error()})
			return
		}
		n := len(body.Players)
		// advisory only; the reservation itself re-checks capacity when the
		// payment lands
		if uint(n) > game.SpotsRemaining() {
			capErr := &booking.CapacityError{Remaining: game.SpotsRemaining()}
			ctx.JSON(http.StatusConflict, gin.H{"error": capErr.Error(), "spots_remaining": capErr.Remaining})
			return
		}

		names := make([]string, 0, n)
		for _, p := range body.Players {
			names = append(names, p.Name)
		}
		unit := config.UnitPriceCents()
		total := unit * int64(n)

		intent, err := getGateway().CreateChargeIntent(ctx, &payments.ChargeIntentInput{
			AmountCents: total,
			Currency:    config.Currency,
			Metadata: payments.IntentMetadata{
				GameID:          game.ID.String(),
				ParkName:        game.ParkName,
				NumberOfPlayers: n,
				PlayerNames:     names,
				CustomerName:    body.CustomerName,
				CustomerEmail:   body.CustomerEmail,
				CustomerPhone:   body.CustomerPhone,
			},
		})
		if err != nil {
			if errors.Is(err, payments.ErrGatewayUnavailable) {
				ctx.JSON(http.StatusBadGateway, gin.H{"error": payments.DECLINE_NETWORK.Message()})
				return
			}
			cat := payments.ClassifyDecline(err)
			ctx.JSON(http.StatusPaymentRequired, gin.H{"error": cat.Message(), "decline": cat})
			return
		}
		ctx.JSON(http.StatusCreated, gin.H{
			"data": gin.H{
				"payment_ref":      intent.IntentRef,
				"client_token":     intent.ClientToken,
				"amount_cents":     total,
				"unit_price_cents": unit,
				"currency":         config.Currency,
			},
		})
	})
	return apiv1
}

func stripeWebhookRoute(g *gin.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.POST("/webhook/stripe", func(ctx *gin.Context) {
		payload, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			log.Printf("Error reading request body: %s\n", err.Error())
			ctx.Status(http.StatusServiceUnavailable)
			return
		}
		notifier := reconcile.NewNotifier(newLedger())
		res := notifier.Handle(payload, ctx.GetHeader("Stripe-Signature"))
		if !res.Acknowledged() {
			ctx.Status(http.StatusBadRequest)
			return
		}
		if res.State == reconcile.NOTIFICATION_APPLIED {
			utils.InvalidateGamesCache()
		}
		ctx.JSON(http.StatusOK, gin.H{"received": true, "state": res.State})
	})
	return apiv1
}
