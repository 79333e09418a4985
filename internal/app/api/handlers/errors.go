package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/internal/app/service/ledger"
	"github.com/fatflowers/yachtclub/internal/app/service/reconcile"
	"github.com/fatflowers/yachtclub/internal/app/service/registry"
	"github.com/fatflowers/yachtclub/pkg/logctx"
	"github.com/fatflowers/yachtclub/pkg/response"
)

var registryCodes = map[registry.Kind]response.APIResponseCode{
	registry.KindAuthorization: response.APIResponseCodeForbidden,
	registry.KindConflict:      response.APIResponseCodeConflict,
	registry.KindNotFound:      response.APIResponseCodeNotFound,
	registry.KindInvalid:       response.APIResponseCodeBadRequest,
}

// errorCode maps service errors to envelope codes. Unclassified errors are
// internal.
func errorCode(err error) response.APIResponseCode {
	switch {
	case errors.Is(err, reconcile.ErrInvalidCheckout), errors.Is(err, reconcile.ErrInvalidPayload):
		return response.APIResponseCodeBadRequest
	case errors.Is(err, reconcile.ErrSessionNotFound), errors.Is(err, ledger.ErrEntryNotFound):
		return response.APIResponseCodeNotFound
	}
	if code, ok := registryCodes[registry.KindOf(err)]; ok {
		return code
	}
	return response.APIResponseCodeError
}

func respondError(c *gin.Context, log *zap.SugaredLogger, err error) {
	code := errorCode(err)
	if code == response.APIResponseCodeError {
		logctx.FromGin(c, log).Errorw("request_failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusOK, response.ErrorT[any](code, "internal error"))
		return
	}
	c.JSON(http.StatusOK, response.ErrorT[any](code, err.Error()))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, msg))
}

// tokenIDParam reads the :token_id path parameter, answering bad request
// when it is not a positive integer.
func tokenIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("token_id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid token_id")
		return 0, false
	}
	return id, true
}
