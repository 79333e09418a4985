package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/yachtclub/internal/app/api/middleware"
	"github.com/fatflowers/yachtclub/internal/app/service/registry"
	"github.com/fatflowers/yachtclub/pkg/response"
)

type TransferRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

// @Summary      Transfer Membership
// @Description  Moves a token from its holder to another wallet. The authenticated wallet is the operator: the holder itself, or an approved marketplace while transfers are restricted.
// @Tags         Membership
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        token_id path int true "Token id"
// @Param        request body handlers.TransferRequest true "Transfer request"
// @Success      200  {object}  handlers.RespReceipt
// @Router       /api/v1/members/{token_id}/transfer [post]
func ApiTransferMembership(reg *registry.Registry, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tokenIDParam(c)
		if !ok {
			return
		}
		var req TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		receipt, err := reg.TransferFrom(c.Request.Context(), mw.Caller(c), req.From, req.To, id)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(receipt))
	}
}

func RegisterTransferRoutes(r gin.IRouter, reg *registry.Registry, log *zap.SugaredLogger) {
	r.POST("/members/:token_id/transfer", ApiTransferMembership(reg, log))
}
