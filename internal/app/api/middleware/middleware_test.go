package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fatflowers/yachtclub/pkg/config"
	"github.com/fatflowers/yachtclub/pkg/logctx"
)

const wallet = "0xAbCdEf0123456789abcdef0123456789ABCDEF01"

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()
	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(log), AccessLogMiddleware(log))
	r.Use(mw...)
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, Caller(c)+"|"+logctx.TraceID(c.Request.Context()))
	})
	return r
}

func do(r http.Handler, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTraceMiddleware_PropagatesRequestID(t *testing.T) {
	r := newEngine()

	w := do(r, http.Header{HeaderRequestID: {"req-123"}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "req-123", w.Header().Get(HeaderRequestID))
	require.Equal(t, "|req-123", w.Body.String())

	w = do(r, nil)
	require.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestWalletAuth(t *testing.T) {
	auth := NewWalletAuth(config.AuthConfig{JWTSecret: "s3cret", Issuer: "yachtclub", TokenTTL: time.Hour})
	r := newEngine(auth.Middleware(zap.NewNop().Sugar()))

	token, err := auth.Issue(wallet)
	require.NoError(t, err)

	w := do(r, http.Header{"Authorization": {"Bearer " + token}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "0xabcdef0123456789abcdef0123456789abcdef01|")

	w = do(r, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.Header{"Authorization": {"Bearer " + token + "x"}})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	other := NewWalletAuth(config.AuthConfig{JWTSecret: "other", Issuer: "yachtclub"})
	forged, err := other.Issue(wallet)
	require.NoError(t, err)
	w = do(r, http.Header{"Authorization": {"Bearer " + forged}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWalletAuth_RejectsBadClaims(t *testing.T) {
	auth := NewWalletAuth(config.AuthConfig{JWTSecret: "s3cret", Issuer: "yachtclub"})
	sign := func(claims jwt.RegisteredClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
		require.NoError(t, err)
		return s
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	_, err := auth.Parse(sign(jwt.RegisteredClaims{Subject: wallet, Issuer: "yachtclub"}))
	require.ErrorIs(t, err, ErrInvalidToken, "expiry is required")

	_, err = auth.Parse(sign(jwt.RegisteredClaims{Subject: wallet, Issuer: "someone-else", ExpiresAt: exp}))
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.Parse(sign(jwt.RegisteredClaims{Subject: "not-a-wallet", Issuer: "yachtclub", ExpiresAt: exp}))
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.Parse(sign(jwt.RegisteredClaims{Subject: wallet, Issuer: "yachtclub", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}))
	require.ErrorIs(t, err, ErrInvalidToken)

	addr, err := auth.Parse(sign(jwt.RegisteredClaims{Subject: wallet, Issuer: "yachtclub", ExpiresAt: exp}))
	require.NoError(t, err)
	require.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", addr)
}

func TestWalletAuth_NoSecretRejectsEverything(t *testing.T) {
	auth := NewWalletAuth(config.AuthConfig{})
	_, err := auth.Issue(wallet)
	require.Error(t, err)
	_, err = auth.Parse("anything")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTerminalAuth(t *testing.T) {
	hash, err := HashTerminalKey("door-key")
	require.NoError(t, err)
	ta := NewTerminalAuth([]config.TerminalConfig{{ID: "marina-gate", KeyHash: hash, RPS: 0.001, Burst: 2}})
	r := newEngine(ta.Middleware(zap.NewNop().Sugar()))

	good := http.Header{HeaderTerminalID: {"marina-gate"}, HeaderTerminalKey: {"door-key"}}

	w := do(r, good)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "terminal:marina-gate|")

	w = do(r, http.Header{HeaderTerminalID: {"marina-gate"}, HeaderTerminalKey: {"wrong"}})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.Header{HeaderTerminalID: {"boathouse"}, HeaderTerminalKey: {"door-key"}})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// burst of 2: the first call above used one token
	require.Equal(t, http.StatusOK, do(r, good).Code)
	require.Equal(t, http.StatusTooManyRequests, do(r, good).Code)
}

func TestTerminalAuth_UnknownIDStillComparesKey(t *testing.T) {
	hash, err := HashTerminalKey("door-key")
	require.NoError(t, err)
	ta := NewTerminalAuth([]config.TerminalConfig{{ID: "marina-gate", KeyHash: hash, RPS: 100, Burst: 100}})

	var compared [][]byte
	ta.compare = func(h, key []byte) error {
		compared = append(compared, h)
		return bcrypt.CompareHashAndPassword(h, key)
	}
	r := newEngine(ta.Middleware(zap.NewNop().Sugar()))

	require.Equal(t, http.StatusUnauthorized, do(r, http.Header{HeaderTerminalID: {"boathouse"}, HeaderTerminalKey: {"door-key"}}).Code)
	require.Len(t, compared, 1)
	require.Equal(t, ta.dummyHash, compared[0])

	wantCost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	gotCost, err := bcrypt.Cost(ta.dummyHash)
	require.NoError(t, err)
	require.Equal(t, wantCost, gotCost)
}

func TestTerminalAuth_CachesVerifiedKey(t *testing.T) {
	hash, err := HashTerminalKey("door-key")
	require.NoError(t, err)
	ta := NewTerminalAuth([]config.TerminalConfig{{ID: "marina-gate", KeyHash: hash, RPS: 100, Burst: 100}})

	calls := 0
	ta.compare = func(h, key []byte) error {
		calls++
		return bcrypt.CompareHashAndPassword(h, key)
	}
	r := newEngine(ta.Middleware(zap.NewNop().Sugar()))
	good := http.Header{HeaderTerminalID: {"marina-gate"}, HeaderTerminalKey: {"door-key"}}

	require.Equal(t, http.StatusOK, do(r, good).Code)
	require.Equal(t, http.StatusOK, do(r, good).Code)
	require.Equal(t, 1, calls)

	// a wrong key never matches the cached digest
	require.Equal(t, http.StatusUnauthorized, do(r, http.Header{HeaderTerminalID: {"marina-gate"}, HeaderTerminalKey: {"door-kez"}}).Code)
	require.Equal(t, 2, calls)
	require.Equal(t, http.StatusOK, do(r, good).Code)
	require.Equal(t, 2, calls)
}
