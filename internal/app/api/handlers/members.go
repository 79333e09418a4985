package handlers

import (
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/internal/app/service/registry"
	"github.com/fatflowers/yachtclub/internal/app/service/verification"
	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/pkg/response"
)

type RegistrySettings struct {
	*models.RegistryState
	ApprovedMarketplaces []string `json:"approved_marketplaces"`
}

type MemberByWalletResponse struct {
	Address  string `json:"address"`
	TokenID  int64  `json:"token_id"`
	IsMember bool   `json:"is_member"`
}

// @Summary      Get Member
// @Description  Returns tier, holder, status and linked card of one membership token.
// @Tags         Membership
// @Produce      json
// @Param        token_id path int true "Token id"
// @Success      200  {object}  handlers.RespMemberInfo
// @Router       /api/v1/members/{token_id} [get]
func ApiGetMember(reg *registry.Registry, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tokenIDParam(c)
		if !ok {
			return
		}
		info, err := reg.GetMemberInfo(c.Request.Context(), id)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(info))
	}
}

// @Summary      Get Token Owner
// @Tags         Membership
// @Produce      json
// @Param        token_id path int true "Token id"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/members/{token_id}/owner [get]
func ApiOwnerOf(reg *registry.Registry, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tokenIDParam(c)
		if !ok {
			return
		}
		owner, err := reg.OwnerOf(c.Request.Context(), id)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(map[string]any{"token_id": id, "owner": owner}))
	}
}

// @Summary      Royalty Info
// @Description  Royalty owed on a secondary sale at sale_price (integer, smallest currency unit).
// @Tags         Membership
// @Produce      json
// @Param        token_id   path  int    true "Token id"
// @Param        sale_price query string true "Sale price"
// @Success      200  {object}  handlers.RespRoyalty
// @Router       /api/v1/members/{token_id}/royalty [get]
func ApiRoyaltyInfo(reg *registry.Registry, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tokenIDParam(c)
		if !ok {
			return
		}
		price, ok := new(big.Int).SetString(c.Query("sale_price"), 10)
		if !ok {
			badRequest(c, "invalid sale_price")
			return
		}
		royalty, err := reg.RoyaltyInfo(c.Request.Context(), id, price)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(royalty))
	}
}

// @Summary      Member By Wallet
// @Description  Returns the token held by a wallet; token_id is 0 when it holds none.
// @Tags         Membership
// @Produce      json
// @Param        address path string true "Wallet address"
// @Success      200  {object}  handlers.RespMemberByWallet
// @Router       /api/v1/members/by_wallet/{address} [get]
func ApiMemberByWallet(reg *registry.Registry, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		addr := c.Param("address")
		id, err := reg.GetTokenIDByMember(ctx, addr)
		if err != nil {
			respondError(c, log, err)
			return
		}
		isMember, err := reg.IsMember(ctx, addr)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&MemberByWalletResponse{Address: addr, TokenID: id, IsMember: isMember}))
	}
}

// @Summary      Total Supply
// @Tags         Registry
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/registry/total_supply [get]
func ApiTotalSupply(reg *registry.Registry, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := reg.TotalSupply(c.Request.Context())
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(map[string]int64{"total_supply": n}))
	}
}

// @Summary      Registry Settings
// @Description  Owner, authorized minter, royalty, transfer restriction and approved marketplaces.
// @Tags         Registry
// @Produce      json
// @Success      200  {object}  handlers.RespRegistrySettings
// @Router       /api/v1/registry/settings [get]
func ApiRegistrySettings(reg *registry.Registry, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		state, err := reg.Settings(ctx)
		if err != nil {
			respondError(c, log, err)
			return
		}
		markets, err := reg.ApprovedMarketplaces(ctx)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&RegistrySettings{RegistryState: state, ApprovedMarketplaces: markets}))
	}
}

// @Summary      Verify Card
// @Description  Whether an NFC card currently grants club access. Unknown cards are reported invalid.
// @Tags         Verification
// @Produce      json
// @Param        card_id path string true "Card id"
// @Success      200  {object}  handlers.RespVerify
// @Router       /api/v1/cards/{card_id}/verify [get]
func ApiVerifyCard(svc *verification.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Verify(c.Request.Context(), c.Param("card_id"))
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterMemberRoutes(r gin.IRouter, reg *registry.Registry, verifier *verification.Service, log *zap.SugaredLogger) {
	r.GET("/members/by_wallet/:address", ApiMemberByWallet(reg, log))
	r.GET("/members/:token_id", ApiGetMember(reg, log))
	r.GET("/members/:token_id/owner", ApiOwnerOf(reg, log))
	r.GET("/members/:token_id/royalty", ApiRoyaltyInfo(reg, log))
	r.GET("/registry/total_supply", ApiTotalSupply(reg, log))
	r.GET("/registry/settings", ApiRegistrySettings(reg, log))
	r.GET("/cards/:card_id/verify", ApiVerifyCard(verifier, log))
}
