package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/internal/app/service/reconcile"
	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/pkg/response"
	"github.com/fatflowers/yachtclub/pkg/types"
)

// CheckoutService is the part of reconciliation the storefront calls.
type CheckoutService interface {
	RecordCheckout(ctx context.Context, req reconcile.CheckoutRequest) (*models.PaymentSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.PaymentSession, error)
}

// @Summary      List Tiers
// @Description  Returns every membership tier with its price and display metadata.
// @Tags         Membership
// @Produce      json
// @Success      200  {object}  handlers.RespTiers
// @Router       /api/v1/tiers [get]
func ApiListTiers(tiers *types.TierTable) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(tiers.List()))
	}
}

// @Summary      Record Checkout
// @Description  Opens a pending payment session for a wallet before redirecting to the payment page.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body reconcile.CheckoutRequest true "Checkout request"
// @Success      200  {object}  handlers.RespPaymentSession
// @Router       /api/v1/checkout [post]
func ApiRecordCheckout(svc CheckoutService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reconcile.CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		sess, err := svc.RecordCheckout(c.Request.Context(), req)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sess))
	}
}

// @Summary      Get Checkout
// @Description  Returns the state of a payment session; the success page polls it until a token id appears.
// @Tags         Payment
// @Produce      json
// @Param        session_id path string true "Payment session id"
// @Success      200  {object}  handlers.RespPaymentSession
// @Router       /api/v1/checkout/{session_id} [get]
func ApiGetCheckout(svc CheckoutService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := svc.GetSession(c.Request.Context(), c.Param("session_id"))
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sess))
	}
}

func RegisterCheckoutRoutes(r gin.IRouter, tiers *types.TierTable, svc CheckoutService, log *zap.SugaredLogger) {
	r.GET("/tiers", ApiListTiers(tiers))
	r.POST("/checkout", ApiRecordCheckout(svc, log))
	r.GET("/checkout/:session_id", ApiGetCheckout(svc, log))
}
