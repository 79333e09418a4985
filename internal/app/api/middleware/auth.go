package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/pkg/config"
	"github.com/fatflowers/yachtclub/pkg/logctx"
	"github.com/fatflowers/yachtclub/pkg/response"
	"github.com/fatflowers/yachtclub/pkg/types"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// WalletAuth authenticates wallet holders with HS256 bearer tokens whose
// subject is the wallet address. The address becomes the caller of every
// registry operation made by the request.
type WalletAuth struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewWalletAuth(cfg config.AuthConfig) *WalletAuth {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &WalletAuth{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for wallet.
func (a *WalletAuth) Issue(wallet string) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("auth.jwt_secret is not set")
	}
	addr, err := types.NormalizeAddress(wallet)
	if err != nil {
		return "", err
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   addr,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates raw and returns the normalized wallet address it names.
func (a *WalletAuth) Parse(raw string) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	var claims jwt.RegisteredClaims
	if _, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return a.secret, nil }, opts...); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	addr, err := types.NormalizeAddress(claims.Subject)
	if err != nil || types.IsZeroAddress(addr) {
		return "", fmt.Errorf("%w: subject is not a wallet address", ErrInvalidToken)
	}
	return addr, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// wallet under logctx.KeyCaller.
func (a *WalletAuth) Middleware(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, ErrMissingToken.Error()))
			return
		}
		wallet, err := a.Parse(raw)
		if err != nil {
			logctx.FromGin(c, base).Infow("auth_rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, ErrInvalidToken.Error()))
			return
		}
		SetCaller(c, base, wallet)
		c.Next()
	}
}

// SetCaller records the authenticated principal on c and its logger.
func SetCaller(c *gin.Context, base *zap.SugaredLogger, caller string) {
	c.Set(logctx.KeyCaller, caller)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logctx.KeyCaller, caller))
	setLogger(c, logctx.FromGin(c, base).With("caller", caller))
}

// Caller returns the principal set by an auth middleware, or "".
func Caller(c *gin.Context) string {
	return c.GetString(logctx.KeyCaller)
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
