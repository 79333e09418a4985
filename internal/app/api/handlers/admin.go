package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/yachtclub/internal/app/api/middleware"
	"github.com/fatflowers/yachtclub/internal/app/service/ledger"
	notificationlog "github.com/fatflowers/yachtclub/internal/app/service/notification_log"
	"github.com/fatflowers/yachtclub/internal/app/service/reconcile"
	"github.com/fatflowers/yachtclub/internal/app/service/registry"
	"github.com/fatflowers/yachtclub/internal/app/service/statistics"
	"github.com/fatflowers/yachtclub/pkg/response"
	"github.com/fatflowers/yachtclub/pkg/types"
)

type TokenRequest struct {
	TokenID int64 `json:"token_id" binding:"required,gt=0"`
}

type LinkCardRequest struct {
	TokenID      int64  `json:"token_id" binding:"required,gt=0"`
	CardID       string `json:"card_id" binding:"required"`
	SerialNumber string `json:"serial_number"`
	CardType     string `json:"card_type"`
}

type UpdateTierRequest struct {
	TokenID int64      `json:"token_id" binding:"required,gt=0"`
	Tier    types.Tier `json:"tier"`
}

type UpdateEmailRequest struct {
	TokenID int64  `json:"token_id" binding:"required,gt=0"`
	Email   string `json:"email"`
}

type RoyaltyRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Fraction  int64  `json:"fraction"`
}

type TransferRestrictionRequest struct {
	Restricted bool `json:"restricted"`
}

type MarketplaceRequest struct {
	Address  string `json:"address" binding:"required"`
	Approved bool   `json:"approved"`
}

type AddressRequest struct {
	Address string `json:"address" binding:"required"`
}

type ListSessionsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

// writeHandler binds a JSON body of type T and runs an owner write with the
// authenticated caller. A nil receipt means the write changed nothing.
func writeHandler[T any](log *zap.SugaredLogger, fn func(c *gin.Context, caller string, req *T) (*ledger.Receipt, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req T
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		receipt, err := fn(c, mw.Caller(c), &req)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(receipt))
	}
}

// @Summary      Mint Membership (Admin)
// @Description  Mints a membership outside checkout, e.g. a complimentary one. The caller must be the authorized minter.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body registry.MintRequest true "Mint request"
// @Success      200  {object}  handlers.RespMint
// @Router       /api/v1/admin/mint [post]
func ApiMintMembership(reg *registry.Registry, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registry.MintRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		// admin mints are not tied to a payment session
		req.Reference = ""
		res, err := reg.MintMembership(c.Request.Context(), mw.Caller(c), req)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List Payment Sessions (Admin)
// @Description  Retrieves a paginated and filterable list of payment sessions.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ListSessionsRequest true "List sessions request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListSessions
// @Router       /api/v1/admin/sessions/list [post]
func ApiListSessions(svc *reconcile.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListSessionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svc.ScanSessions(c.Request.Context(), &reconcile.ScanSessionsRequest{
			Filters: req.Filters, From: req.From, Size: req.Size, SortBy: req.SortBy, SortOrder: req.SortOrder,
		})
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Session Webhook Log (Admin)
// @Description  Every webhook delivery recorded for a payment session, oldest first.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        session_id path string true "Payment session id"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/sessions/{session_id}/logs [get]
func ApiSessionLogs(svc *notificationlog.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := svc.ListBySession(c.Request.Context(), c.Param("session_id"))
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(rows))
	}
}

// @Summary      Get Statistics (Admin)
// @Description  Membership, card and revenue statistics.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body statistics.StatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespStatistic
// @Router       /api/v1/admin/statistics [post]
func ApiGetStatistic(svc *statistics.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.StatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svc.GetStatistic(c.Request.Context(), &req)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Journal Entry (Admin)
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        height path int true "Journal height"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/ledger/{height} [get]
func ApiLedgerEntry(gw *ledger.Gateway, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		height, err := strconv.ParseInt(c.Param("height"), 10, 64)
		if err != nil || height <= 0 {
			badRequest(c, "invalid height")
			return
		}
		e, err := gw.Entry(c.Request.Context(), height)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(e))
	}
}

// @Summary      Verify Journal (Admin)
// @Description  Recomputes the journal hash chain up to the registry head.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/ledger/verify [get]
func ApiVerifyLedger(gw *ledger.Gateway, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := gw.VerifyChain(c.Request.Context())
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(map[string]int64{"verified_entries": n}))
	}
}

// adminWrites are the registry writes exposed to the admin console, keyed by
// route. The registry enforces who may call each one.
func adminWrites(reg *registry.Registry, log *zap.SugaredLogger) map[string]gin.HandlerFunc {
	return map[string]gin.HandlerFunc{
		"/cards/link": writeHandler(log, func(c *gin.Context, caller string, req *LinkCardRequest) (*ledger.Receipt, error) {
			return reg.LinkNFCCard(c.Request.Context(), caller, req.TokenID, req.CardID, req.SerialNumber, req.CardType)
		}),
		"/cards/unlink": writeHandler(log, func(c *gin.Context, caller string, req *TokenRequest) (*ledger.Receipt, error) {
			return reg.UnlinkNFCCard(c.Request.Context(), caller, req.TokenID)
		}),
		"/cards/deactivate": writeHandler(log, func(c *gin.Context, caller string, req *TokenRequest) (*ledger.Receipt, error) {
			return reg.DeactivateNFCCard(c.Request.Context(), caller, req.TokenID)
		}),
		"/cards/reactivate": writeHandler(log, func(c *gin.Context, caller string, req *TokenRequest) (*ledger.Receipt, error) {
			return reg.ReactivateNFCCard(c.Request.Context(), caller, req.TokenID)
		}),
		"/members/tier": writeHandler(log, func(c *gin.Context, caller string, req *UpdateTierRequest) (*ledger.Receipt, error) {
			return reg.UpdateMemberTier(c.Request.Context(), caller, req.TokenID, req.Tier)
		}),
		"/members/email": writeHandler(log, func(c *gin.Context, caller string, req *UpdateEmailRequest) (*ledger.Receipt, error) {
			return reg.UpdateMemberEmail(c.Request.Context(), caller, req.TokenID, req.Email)
		}),
		"/members/deactivate": writeHandler(log, func(c *gin.Context, caller string, req *TokenRequest) (*ledger.Receipt, error) {
			return reg.DeactivateMembership(c.Request.Context(), caller, req.TokenID)
		}),
		"/members/reactivate": writeHandler(log, func(c *gin.Context, caller string, req *TokenRequest) (*ledger.Receipt, error) {
			return reg.ReactivateMembership(c.Request.Context(), caller, req.TokenID)
		}),
		"/royalty": writeHandler(log, func(c *gin.Context, caller string, req *RoyaltyRequest) (*ledger.Receipt, error) {
			return reg.SetRoyaltyInfo(c.Request.Context(), caller, req.Recipient, req.Fraction)
		}),
		"/transfer_restriction": writeHandler(log, func(c *gin.Context, caller string, req *TransferRestrictionRequest) (*ledger.Receipt, error) {
			return reg.SetTransferRestricted(c.Request.Context(), caller, req.Restricted)
		}),
		"/marketplaces": writeHandler(log, func(c *gin.Context, caller string, req *MarketplaceRequest) (*ledger.Receipt, error) {
			return reg.SetMarketplaceApproval(c.Request.Context(), caller, req.Address, req.Approved)
		}),
		"/minter": writeHandler(log, func(c *gin.Context, caller string, req *AddressRequest) (*ledger.Receipt, error) {
			return reg.SetAuthorizedMinter(c.Request.Context(), caller, req.Address)
		}),
		"/ownership": writeHandler(log, func(c *gin.Context, caller string, req *AddressRequest) (*ledger.Receipt, error) {
			return reg.TransferOwnership(c.Request.Context(), caller, req.Address)
		}),
	}
}

func RegisterAdminRoutes(r gin.IRouter, reg *registry.Registry, gw *ledger.Gateway, rec *reconcile.Service, stats *statistics.Service, notifLog *notificationlog.Service, log *zap.SugaredLogger) {
	for path, h := range adminWrites(reg, log) {
		r.POST(path, h)
	}
	r.POST("/mint", ApiMintMembership(reg, log))
	r.POST("/sessions/list", ApiListSessions(rec, log))
	r.GET("/sessions/:session_id/logs", ApiSessionLogs(notifLog, log))
	r.POST("/statistics", ApiGetStatistic(stats, log))
	r.GET("/ledger/verify", ApiVerifyLedger(gw, log))
	r.GET("/ledger/:height", ApiLedgerEntry(gw, log))
}
