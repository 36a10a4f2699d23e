package main

import (
	"errors"
	"net/http"

	"github.com/quanwangniuniu/EasySoccerPlay/src/booking"
	"github.com/quanwangniuniu/EasySoccerPlay/src/db"
	"github.com/quanwangniuniu/EasySoccerPlay/src/models"
	"github.com/quanwangniuniu/EasySoccerPlay/src/payments"
	"github.com/quanwangniuniu/EasySoccerPlay/src/types"
	"github.com/quanwangniuniu/EasySoccerPlay/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func adminBookingRoutes(authorized *gin.RouterGroup) {
	bookings := authorized.Group("/admin/bookings")
	bookings.
		GET("", func(ctx *gin.Context) {
			q := db.GetDb().Order("created_at desc")
			if gameID := ctx.Query("game_id"); gameID != "" {
				id, err := uuid.Parse(gameID)
				if err != nil {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": "game_id must be a uuid"})
					return
				}
				q = q.Where("game_id = ?", id)
			}
			var rows []models.Booking
			if err := q.Find(&rows).Error; err != nil {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": rows})
		}).
		PUT("/:id/cancel", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.CancelBookingRequestBody
			if ctx.Request.ContentLength > 0 {
				if err := ctx.ShouldBindJSON(&body); err != nil {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
			}
			bookingID := uuid.MustParse(params.ID)
			if body.PaymentRef != "" {
				var bk models.Booking
				if err := db.GetDb().First(&bk, "id = ?", bookingID).Error; err != nil {
					ctx.JSON(http.StatusNotFound, gin.H{"error": booking.ErrBookingNotFound.Error()})
					return
				}
				if bk.PaymentRef != body.PaymentRef {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": "payment_ref does not match this booking"})
					return
				}
			}
			res, err := newLedger().CancelGroup(bookingID)
			if err != nil {
				respondLedgerError(ctx, err)
				return
			}
			utils.InvalidateGamesCache()
			ctx.JSON(http.StatusOK, gin.H{
				"data": gin.H{
					"seats_cancelled": res.SeatsCancelled,
					"booked_count":    res.BookedCount,
				},
			})
		}).
		POST("/:id/refund", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.RefundBookingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			bookingID := uuid.MustParse(params.ID)
			var bk models.Booking
			if err := db.GetDb().First(&bk, "id = ?", bookingID).Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": booking.ErrBookingNotFound.Error()})
				return
			}
			if bk.PaymentRef != body.PaymentRef {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "payment_ref does not match this booking"})
				return
			}
			res, err := newLedger().RefundGroup(ctx, bookingID, body.RefundAmount, body.Reason)
			if err != nil {
				respondLedgerError(ctx, err)
				return
			}
			utils.InvalidateGamesCache()
			ctx.JSON(http.StatusOK, gin.H{
				"data": gin.H{
					"refund_ref":     res.RefundRef,
					"amount_cents":   res.AmountCents,
					"seats_refunded": res.SeatsRefunded,
					"booked_count":   res.BookedCount,
				},
			})
		})
}

func respondLedgerError(ctx *gin.Context, err error) {
	var capErr *booking.CapacityError
	switch {
	case errors.As(err, &capErr):
		ctx.JSON(http.StatusConflict, gin.H{"error": capErr.Error(), "spots_remaining": capErr.Remaining})
	case errors.Is(err, booking.ErrGameNotFound), errors.Is(err, booking.ErrBookingNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, booking.ErrNotRefundable), errors.Is(err, booking.ErrRefundTooLarge):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, payments.ErrNoChargeToRefund):
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, payments.ErrGatewayUnavailable):
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, booking.ErrInconsistentState):
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
