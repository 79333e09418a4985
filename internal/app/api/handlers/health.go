package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/pkg/logctx"
	"github.com/fatflowers/yachtclub/pkg/response"
)

// StateReader is the part of the ledger gateway the health check needs.
type StateReader interface {
	State(ctx context.Context) (*models.RegistryState, error)
}

type HealthResponse struct {
	Status string `json:"status"`
	Height int64  `json:"height"`
}

// @Summary      Health check
// @Description  Reports whether the registry state is readable and the current journal height
// @Tags         System
// @Produce      json
// @Success      200  {object}  response.APIResponse[HealthResponse]
// @Failure      503  {object}  response.APIResponse[any]
// @Router       /healthz [get]
func Healthz(state StateReader, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := state.State(c.Request.Context())
		if err != nil {
			logctx.FromGin(c, log).Errorw("healthz_state_failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, response.ErrorT[any](response.APIResponseCodeError, "registry state unavailable"))
			return
		}
		c.JSON(http.StatusOK, response.OKT(HealthResponse{Status: "ok", Height: s.Height}))
	}
}

func RegisterHealthRoutes(r gin.IRouter, state StateReader, log *zap.SugaredLogger) {
	r.GET("/healthz", Healthz(state, log))
}
