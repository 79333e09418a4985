package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/internal/app/service/verification"
	"github.com/fatflowers/yachtclub/pkg/response"
)

type TerminalVerifyRequest struct {
	CardID string `json:"card_id" binding:"required"`
}

// @Summary      Terminal Verify
// @Description  Access terminal tap check. Requires X-Terminal-ID and X-Terminal-Key and is rate limited per terminal.
// @Tags         Verification
// @Accept       json
// @Produce      json
// @Param        X-Terminal-ID  header string true "Terminal id"
// @Param        X-Terminal-Key header string true "Terminal key"
// @Param        request body handlers.TerminalVerifyRequest true "Tapped card"
// @Success      200  {object}  handlers.RespVerify
// @Router       /api/v1/terminal/verify [post]
func ApiTerminalVerify(svc *verification.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TerminalVerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svc.Verify(c.Request.Context(), req.CardID)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterTerminalRoutes(r gin.IRouter, svc *verification.Service, log *zap.SugaredLogger) {
	r.POST("/verify", ApiTerminalVerify(svc, log))
}
