package handlers

import (
	"github.com/fatflowers/yachtclub/internal/app/service/ledger"
	"github.com/fatflowers/yachtclub/internal/app/service/reconcile"
	"github.com/fatflowers/yachtclub/internal/app/service/registry"
	"github.com/fatflowers/yachtclub/internal/app/service/statistics"
	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/pkg/response"
	"github.com/fatflowers/yachtclub/pkg/types"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespTiers struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []types.TierDefinition   `json:"data"`
}

type RespPaymentSession struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.PaymentSession    `json:"data"`
}

type RespWebhook struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    reconcile.WebhookResult  `json:"data"`
}

type RespMemberInfo struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    registry.MemberInfo      `json:"data"`
}

type RespMemberByWallet struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    MemberByWalletResponse   `json:"data"`
}

type RespRoyalty struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    registry.Royalty         `json:"data"`
}

type RespRegistrySettings struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    RegistrySettings         `json:"data"`
}

type RespVerify struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    registry.VerifyResult    `json:"data"`
}

// RespReceipt wraps the journal receipt of a registry write. Data is null
// when the write changed nothing.
type RespReceipt struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    *ledger.Receipt          `json:"data"`
}

type RespMint struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    registry.MintResult      `json:"data"`
}

type RespListSessions struct {
	Code    response.APIResponseCode       `json:"code"`
	Message string                         `json:"message"`
	Data    reconcile.ScanSessionsResponse `json:"data"`
}

type RespStatistic struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    statistics.StatisticResponse `json:"data"`
}
