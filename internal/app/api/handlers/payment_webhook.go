package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/internal/app/service/reconcile"
	"github.com/fatflowers/yachtclub/internal/platform/stripe/stripe_webhook"
	"github.com/fatflowers/yachtclub/pkg/logctx"
	"github.com/fatflowers/yachtclub/pkg/response"
)

const maxWebhookBody = 64 << 10

type WebhookService interface {
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*reconcile.WebhookResult, error)
}

// @Summary      Stripe Webhook
// @Description  Receives signed checkout events. Answers 400 for bad signatures or payloads and 500 when the mint failed, so the sender redelivers.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "Stripe signature header"
// @Param        payload body object true "Stripe event"
// @Success      200  {object}  handlers.RespWebhook
// @Router       /api/v1/webhook/stripe [post]
func ApiStripeWebhook(svc WebhookService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		lg := logctx.FromGin(c, log)
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "unreadable body"))
			return
		}

		res, err := svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader(stripe_webhook.SignatureHeader))
		switch {
		case errors.Is(err, reconcile.ErrInvalidSignature):
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeUnauthorized, "invalid signature"))
		case errors.Is(err, reconcile.ErrInvalidPayload):
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
		case err != nil:
			lg.Errorw("webhook_stripe_handle_error", "error", err.Error())
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, res))
		default:
			lg.Infow("webhook_stripe_handled", "event_id", res.EventID, "outcome", res.Outcome)
			c.JSON(http.StatusOK, response.OKT(res))
		}
	}
}

func RegisterPaymentWebhookRoutes(r gin.IRouter, svc WebhookService, log *zap.SugaredLogger) {
	// Mount under provided group, expected at "/api/v1/webhook"
	r.POST("/stripe", ApiStripeWebhook(svc, log))
}
