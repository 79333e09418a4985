package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mw "github.com/fatflowers/yachtclub/internal/app/api/middleware"
	"github.com/fatflowers/yachtclub/internal/app/service/ledger"
	notificationlog "github.com/fatflowers/yachtclub/internal/app/service/notification_log"
	"github.com/fatflowers/yachtclub/internal/app/service/reconcile"
	"github.com/fatflowers/yachtclub/internal/app/service/registry"
	"github.com/fatflowers/yachtclub/internal/app/service/statistics"
	"github.com/fatflowers/yachtclub/internal/app/service/verification"
	"github.com/fatflowers/yachtclub/internal/platform/db/dbtest"
	"github.com/fatflowers/yachtclub/internal/platform/stripe/stripe_webhook"
	"github.com/fatflowers/yachtclub/pkg/config"
	"github.com/fatflowers/yachtclub/pkg/response"
	"github.com/fatflowers/yachtclub/pkg/types"
)

const (
	webhookSecret = "whsec_handlers"
	terminalKey   = "gate-key"
	owner         = "0x00000000000000000000000000000000000000a1"
	minter        = "0x00000000000000000000000000000000000000b2"
	walletA       = "0x1111111111111111111111111111111111111111"
	walletB       = "0x2222222222222222222222222222222222222222"
	marketplace   = "0x3333333333333333333333333333333333333333"
)

type env struct {
	r    *gin.Engine
	auth *mw.WalletAuth
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()
	ctx := context.Background()

	db := dbtest.New(t)
	gw := ledger.NewGateway(db, nil, ledger.Options{}, nil, log)
	_, err := gw.EnsureState(ctx, ledger.Genesis{Owner: owner, AuthorizedMinter: minter, RoyaltyRecipient: owner, RoyaltyFraction: 500})
	require.NoError(t, err)
	reg := registry.New(gw, "ipfs://test/", log)
	tiers := types.NewTierTable()
	notifLog := notificationlog.New(db, log)
	rec := reconcile.New(reconcile.Params{
		DB:       db,
		Registry: reg,
		Minter:   minter,
		Tiers:    tiers,
		Verifier: stripe_webhook.NewVerifier(webhookSecret, 0),
		NotifLog: notifLog,
		Log:      log,
	})
	verifier := verification.New(reg, nil, log)

	hash, err := mw.HashTerminalKey(terminalKey)
	require.NoError(t, err)
	auth := mw.NewWalletAuth(config.AuthConfig{JWTSecret: "jwt-secret", Issuer: "yachtclub", TokenTTL: time.Hour})
	terminals := mw.NewTerminalAuth([]config.TerminalConfig{{ID: "gate-1", KeyHash: hash, RPS: 100, Burst: 100}})

	r := gin.New()
	r.Use(mw.TraceMiddleware(), mw.RequestLoggerMiddleware(log))
	RegisterHealthRoutes(r, gw, log)
	api := r.Group("/api/v1")
	RegisterCheckoutRoutes(api, tiers, rec, log)
	RegisterPaymentWebhookRoutes(api.Group("/webhook"), rec, log)
	RegisterMemberRoutes(api, reg, verifier, log)
	RegisterTerminalRoutes(api.Group("/terminal", terminals.Middleware(log)), verifier, log)
	authed := api.Group("", auth.Middleware(log))
	RegisterTransferRoutes(authed, reg, log)
	RegisterAdminRoutes(api.Group("/admin", auth.Middleware(log)), reg, gw, rec, statistics.New(db), notifLog, log)

	return &env{r: r, auth: auth}
}

type envelope struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    json.RawMessage          `json:"data"`
}

func (e *env) call(t *testing.T, method, path string, body any, header http.Header) (int, envelope) {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		raw = b
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	var out envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func (e *env) as(t *testing.T, wallet string) http.Header {
	t.Helper()
	tok, err := e.auth.Issue(wallet)
	require.NoError(t, err)
	return http.Header{"Authorization": {"Bearer " + tok}}
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func completedEvent(eventID, session, wallet string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":"checkout.session.completed","created":%d,"data":{"object":{"id":%q,"amount_total":249900,"currency":"usd","customer_email":"a@example.com","payment_status":"paid","metadata":{"tier":"premium","walletAddress":%q}}}}`,
		eventID, time.Now().Unix(), session, wallet))
}

func (e *env) deliver(t *testing.T, payload []byte) (int, envelope) {
	t.Helper()
	header := http.Header{stripe_webhook.SignatureHeader: {stripe_webhook.SignatureHeaderValue(webhookSecret, payload, time.Now())}}
	return e.call(t, http.MethodPost, "/api/v1/webhook/stripe", payload, header)
}

func TestRegisterRoutes_RegistersEndpoints(t *testing.T) {
	e := newEnv(t)
	routes := map[string]bool{}
	for _, rt := range e.r.Routes() {
		routes[rt.Method+" "+rt.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"GET /api/v1/tiers",
		"POST /api/v1/checkout",
		"GET /api/v1/checkout/:session_id",
		"POST /api/v1/webhook/stripe",
		"GET /api/v1/members/:token_id",
		"GET /api/v1/members/:token_id/owner",
		"GET /api/v1/members/:token_id/royalty",
		"GET /api/v1/members/by_wallet/:address",
		"GET /api/v1/registry/total_supply",
		"GET /api/v1/cards/:card_id/verify",
		"POST /api/v1/members/:token_id/transfer",
		"POST /api/v1/terminal/verify",
		"POST /api/v1/admin/cards/link",
		"POST /api/v1/admin/cards/unlink",
		"POST /api/v1/admin/members/tier",
		"POST /api/v1/admin/royalty",
		"POST /api/v1/admin/marketplaces",
		"POST /api/v1/admin/ownership",
		"POST /api/v1/admin/mint",
		"POST /api/v1/admin/statistics",
		"GET /api/v1/admin/ledger/:height",
	} {
		require.True(t, routes[want], want)
	}
}

func TestHealthz_ReportsJournalHeight(t *testing.T) {
	e := newEnv(t)

	status, res := e.call(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, HealthResponse{Status: "ok", Height: 0}, decode[HealthResponse](t, res))

	_, res = e.call(t, http.MethodPost, "/api/v1/admin/mint", map[string]any{"to": walletA, "tier": "standard"}, e.as(t, minter))
	require.Equal(t, response.APIResponseCodeOK, res.Code, res.Message)

	_, res = e.call(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, int64(1), decode[HealthResponse](t, res).Height)
}

func TestCheckoutToMembership(t *testing.T) {
	e := newEnv(t)

	code, res := e.call(t, http.MethodGet, "/api/v1/tiers", nil, nil)
	require.Equal(t, http.StatusOK, code)
	tiers := decode[[]types.TierDefinition](t, res)
	require.Len(t, tiers, 4)
	require.Equal(t, types.TierPremium, tiers[1].Tier)

	_, res = e.call(t, http.MethodPost, "/api/v1/checkout", map[string]any{"session_id": "cs_1", "wallet_address": walletA, "tier": "premium", "email": "a@example.com"}, nil)
	require.Equal(t, response.APIResponseCodeOK, res.Code, res.Message)
	sess := decode[map[string]any](t, res)
	require.Equal(t, "pending", sess["status"])
	require.EqualValues(t, 249900, sess["amount"])

	_, res = e.call(t, http.MethodPost, "/api/v1/checkout", map[string]any{"session_id": "cs_x", "wallet_address": "nope"}, nil)
	require.Equal(t, response.APIResponseCodeBadRequest, res.Code)

	payload := completedEvent("evt_1", "cs_1", walletA)
	code, res = e.deliver(t, payload)
	require.Equal(t, http.StatusOK, code)
	wh := decode[reconcile.WebhookResult](t, res)
	require.Equal(t, reconcile.OutcomeMinted, wh.Outcome)

	code, res = e.deliver(t, payload)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, reconcile.OutcomeReplayed, decode[reconcile.WebhookResult](t, res).Outcome)

	code, _ = e.call(t, http.MethodPost, "/api/v1/webhook/stripe", payload, http.Header{stripe_webhook.SignatureHeader: {"t=1,v1=deadbeef"}})
	require.Equal(t, http.StatusBadRequest, code)

	_, res = e.call(t, http.MethodGet, "/api/v1/checkout/cs_1", nil, nil)
	sess = decode[map[string]any](t, res)
	require.Equal(t, "completed", sess["status"])
	require.EqualValues(t, 1, sess["token_id"])

	_, res = e.call(t, http.MethodGet, "/api/v1/checkout/cs_missing", nil, nil)
	require.Equal(t, response.APIResponseCodeNotFound, res.Code)

	_, res = e.call(t, http.MethodGet, "/api/v1/members/1", nil, nil)
	info := decode[registry.MemberInfo](t, res)
	require.Equal(t, walletA, info.Owner)
	require.Equal(t, types.TierPremium, info.Tier)
	require.True(t, info.Active)

	_, res = e.call(t, http.MethodGet, "/api/v1/members/by_wallet/"+walletA, nil, nil)
	byWallet := decode[MemberByWalletResponse](t, res)
	require.Equal(t, int64(1), byWallet.TokenID)
	require.True(t, byWallet.IsMember)

	_, res = e.call(t, http.MethodGet, "/api/v1/members/by_wallet/"+walletB, nil, nil)
	require.Equal(t, int64(0), decode[MemberByWalletResponse](t, res).TokenID)

	_, res = e.call(t, http.MethodGet, "/api/v1/members/1/royalty?sale_price=10000", nil, nil)
	royalty := decode[map[string]any](t, res)
	require.EqualValues(t, 500, royalty["amount"])
	require.Equal(t, owner, royalty["recipient"])

	_, res = e.call(t, http.MethodGet, "/api/v1/members/1/royalty?sale_price=abc", nil, nil)
	require.Equal(t, response.APIResponseCodeBadRequest, res.Code)

	_, res = e.call(t, http.MethodGet, "/api/v1/members/99", nil, nil)
	require.Equal(t, response.APIResponseCodeNotFound, res.Code)

	_, res = e.call(t, http.MethodGet, "/api/v1/members/zero", nil, nil)
	require.Equal(t, response.APIResponseCodeBadRequest, res.Code)

	_, res = e.call(t, http.MethodGet, "/api/v1/registry/total_supply", nil, nil)
	require.EqualValues(t, 1, decode[map[string]int64](t, res)["total_supply"])
}

func TestStripeWebhook_MintFailureAsksForRedelivery(t *testing.T) {
	e := newEnv(t)

	code, _ := e.deliver(t, completedEvent("evt_1", "cs_1", walletA))
	require.Equal(t, http.StatusOK, code)

	// a second paid session for a wallet that already holds a token cannot mint
	code, res := e.deliver(t, completedEvent("evt_2", "cs_2", walletA))
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, response.APIResponseCodeError, res.Code)

	code, _ = e.deliver(t, []byte(`{"id":"evt_3","type":"checkout.session.completed","data":{"object":{"id":"cs_3","payment_status":"paid","metadata":{}}}}`))
	require.Equal(t, http.StatusBadRequest, code)
}

func TestAdminCardLifecycleAndVerification(t *testing.T) {
	e := newEnv(t)
	code, _ := e.deliver(t, completedEvent("evt_1", "cs_1", walletA))
	require.Equal(t, http.StatusOK, code)

	link := map[string]any{"token_id": 1, "card_id": "04A1B2C3", "serial_number": "SN-1", "card_type": "NTAG215"}

	code, _ = e.call(t, http.MethodPost, "/api/v1/admin/cards/link", link, nil)
	require.Equal(t, http.StatusUnauthorized, code)

	_, res := e.call(t, http.MethodPost, "/api/v1/admin/cards/link", link, e.as(t, walletA))
	require.Equal(t, response.APIResponseCodeForbidden, res.Code)

	_, res = e.call(t, http.MethodPost, "/api/v1/admin/cards/link", map[string]any{"token_id": 1, "card_id": "card 42"}, e.as(t, owner))
	require.Equal(t, response.APIResponseCodeBadRequest, res.Code, "ids terminals reject cannot be linked")

	_, res = e.call(t, http.MethodPost, "/api/v1/admin/cards/link", link, e.as(t, owner))
	require.Equal(t, response.APIResponseCodeOK, res.Code, res.Message)
	receipt := decode[*ledger.Receipt](t, res)
	require.NotNil(t, receipt)
	require.Positive(t, receipt.Height)

	_, res = e.call(t, http.MethodPost, "/api/v1/admin/cards/link", map[string]any{"token_id": 1, "card_id": "FFEE0000"}, e.as(t, owner))
	require.Equal(t, response.APIResponseCodeConflict, res.Code)

	_, res = e.call(t, http.MethodGet, "/api/v1/cards/04A1B2C3/verify", nil, nil)
	v := decode[registry.VerifyResult](t, res)
	require.True(t, v.IsValid)
	require.Equal(t, walletA, v.MemberAddress)
	require.Equal(t, types.TierPremium, v.Tier)

	_, res = e.call(t, http.MethodGet, "/api/v1/cards/a%20b/verify", nil, nil)
	require.Equal(t, response.APIResponseCodeBadRequest, res.Code)

	terminal := http.Header{mw.HeaderTerminalID: {"gate-1"}, mw.HeaderTerminalKey: {terminalKey}}
	code, res = e.call(t, http.MethodPost, "/api/v1/terminal/verify", map[string]string{"card_id": "04A1B2C3"}, terminal)
	require.Equal(t, http.StatusOK, code)
	require.True(t, decode[registry.VerifyResult](t, res).IsValid)

	code, _ = e.call(t, http.MethodPost, "/api/v1/terminal/verify", map[string]string{"card_id": "04A1B2C3"}, nil)
	require.Equal(t, http.StatusUnauthorized, code)

	_, res = e.call(t, http.MethodPost, "/api/v1/admin/members/deactivate", map[string]any{"token_id": 1}, e.as(t, owner))
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	_, res = e.call(t, http.MethodGet, "/api/v1/cards/04A1B2C3/verify", nil, nil)
	v = decode[registry.VerifyResult](t, res)
	require.False(t, v.IsValid)
	require.Equal(t, types.ZeroAddress, v.MemberAddress)

	_, res = e.call(t, http.MethodPost, "/api/v1/admin/cards/unlink", map[string]any{"token_id": 1}, e.as(t, owner))
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	_, res = e.call(t, http.MethodPost, "/api/v1/admin/cards/unlink", map[string]any{"token_id": 1}, e.as(t, owner))
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	require.Equal(t, "null", string(res.Data))

	_, res = e.call(t, http.MethodGet, "/api/v1/admin/ledger/1", nil, e.as(t, owner))
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	require.Equal(t, "mintMembership", decode[map[string]any](t, res)["method"])

	_, res = e.call(t, http.MethodGet, "/api/v1/admin/ledger/999", nil, e.as(t, owner))
	require.Equal(t, response.APIResponseCodeNotFound, res.Code)

	_, res = e.call(t, http.MethodGet, "/api/v1/admin/ledger/verify", nil, e.as(t, owner))
	require.Equal(t, response.APIResponseCodeOK, res.Code)
}

func TestTransferThroughApprovedMarketplace(t *testing.T) {
	e := newEnv(t)
	code, _ := e.deliver(t, completedEvent("evt_1", "cs_1", walletA))
	require.Equal(t, http.StatusOK, code)

	transfer := map[string]string{"from": walletA, "to": walletB}

	_, res := e.call(t, http.MethodPost, "/api/v1/members/1/transfer", transfer, e.as(t, walletA))
	require.Equal(t, response.APIResponseCodeForbidden, res.Code)

	_, res = e.call(t, http.MethodPost, "/api/v1/admin/marketplaces", map[string]any{"address": marketplace, "approved": true}, e.as(t, owner))
	require.Equal(t, response.APIResponseCodeOK, res.Code)

	_, res = e.call(t, http.MethodPost, "/api/v1/members/1/transfer", transfer, e.as(t, marketplace))
	require.Equal(t, response.APIResponseCodeOK, res.Code, res.Message)

	_, res = e.call(t, http.MethodGet, "/api/v1/members/1/owner", nil, nil)
	require.Equal(t, walletB, decode[map[string]any](t, res)["owner"])

	_, res = e.call(t, http.MethodGet, "/api/v1/registry/settings", nil, nil)
	settings := decode[map[string]any](t, res)
	require.Equal(t, true, settings["transfers_restricted"])
	require.Equal(t, []any{marketplace}, settings["approved_marketplaces"])
}

func TestAdminMintAndStatistics(t *testing.T) {
	e := newEnv(t)

	_, res := e.call(t, http.MethodPost, "/api/v1/admin/mint", map[string]any{"to": walletA, "tier": "elite"}, e.as(t, owner))
	require.Equal(t, response.APIResponseCodeForbidden, res.Code, "only the authorized minter mints")

	_, res = e.call(t, http.MethodPost, "/api/v1/admin/mint", map[string]any{"to": walletA, "tier": "elite"}, e.as(t, minter))
	require.Equal(t, response.APIResponseCodeOK, res.Code, res.Message)
	require.Equal(t, int64(1), decode[registry.MintResult](t, res).TokenID)

	_, res = e.call(t, http.MethodPost, "/api/v1/admin/statistics", map[string]any{"data_items": []map[string]string{{"id": "total_member_count"}}}, e.as(t, owner))
	require.Equal(t, response.APIResponseCodeOK, res.Code, res.Message)
	stats := decode[statistics.StatisticResponse](t, res)
	require.Equal(t, int64(1), stats.DataItems[statistics.StatisticTypeTotalMemberCount][0].Value)

	_, res = e.call(t, http.MethodPost, "/api/v1/admin/statistics", map[string]any{"data_items": []map[string]string{{"id": "bogus"}}}, e.as(t, owner))
	require.Equal(t, response.APIResponseCodeBadRequest, res.Code)

	_, res = e.call(t, http.MethodPost, "/api/v1/admin/sessions/list", map[string]any{"size": 5}, e.as(t, owner))
	require.Equal(t, response.APIResponseCodeOK, res.Code)
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want response.APIResponseCode
	}{
		{registry.ErrUnauthorized, response.APIResponseCodeForbidden},
		{fmt.Errorf("wrap: %w", registry.ErrAlreadyMember), response.APIResponseCodeConflict},
		{registry.ErrTokenNotFound, response.APIResponseCodeNotFound},
		{registry.ErrInvalidTier, response.APIResponseCodeBadRequest},
		{reconcile.ErrInvalidCheckout, response.APIResponseCodeBadRequest},
		{reconcile.ErrSessionNotFound, response.APIResponseCodeNotFound},
		{ledger.ErrEntryNotFound, response.APIResponseCodeNotFound},
		{fmt.Errorf("db down"), response.APIResponseCodeError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, errorCode(tc.err), tc.err.Error())
	}
}
