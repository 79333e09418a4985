package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/fatflowers/yachtclub/pkg/config"
	"github.com/fatflowers/yachtclub/pkg/logctx"
	"github.com/fatflowers/yachtclub/pkg/response"
)

const (
	HeaderTerminalID  = "X-Terminal-ID"
	HeaderTerminalKey = "X-Terminal-Key"

	defaultTerminalRPS   = 5
	defaultTerminalBurst = 10
)

type terminal struct {
	keyHash []byte
	limiter *rate.Limiter
	// verified is the sha256 of the last key that passed bcrypt.
	verified atomic.Pointer[[sha256.Size]byte]
}

// TerminalAuth admits configured access terminals. Keys are checked against
// their bcrypt hashes and each terminal has its own token bucket. Unknown
// terminal ids pay for a bcrypt comparison too, so response time does not
// reveal which ids exist.
type TerminalAuth struct {
	terminals map[string]*terminal
	dummyHash []byte
	compare   func(hash, key []byte) error
}

func NewTerminalAuth(cfgs []config.TerminalConfig) *TerminalAuth {
	ta := &TerminalAuth{
		terminals: make(map[string]*terminal, len(cfgs)),
		compare:   bcrypt.CompareHashAndPassword,
	}
	cost := bcrypt.DefaultCost
	for _, tc := range cfgs {
		if tc.ID == "" || tc.KeyHash == "" {
			continue
		}
		rps, burst := tc.RPS, tc.Burst
		if rps <= 0 {
			rps = defaultTerminalRPS
		}
		if burst <= 0 {
			burst = defaultTerminalBurst
		}
		ta.terminals[tc.ID] = &terminal{keyHash: []byte(tc.KeyHash), limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		if c, err := bcrypt.Cost([]byte(tc.KeyHash)); err == nil {
			cost = c
		}
	}
	// Same cost as the configured hashes so both paths take as long.
	ta.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("no such terminal"), cost)
	return ta
}

// authenticate reports whether key belongs to terminal id. A key that
// already passed bcrypt is accepted from its digest.
func (ta *TerminalAuth) authenticate(id, key string) (*terminal, bool) {
	digest := sha256.Sum256([]byte(key))
	t, ok := ta.terminals[id]
	if !ok {
		_ = ta.compare(ta.dummyHash, []byte(key))
		return nil, false
	}
	if last := t.verified.Load(); last != nil && subtle.ConstantTimeCompare(last[:], digest[:]) == 1 {
		return t, true
	}
	if ta.compare(t.keyHash, []byte(key)) != nil {
		return nil, false
	}
	t.verified.Store(&digest)
	return t, true
}

// HashTerminalKey returns the bcrypt hash to put in a terminal's key_hash.
func HashTerminalKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(h), err
}

// Middleware authenticates the terminal, then applies its rate limit. The
// terminal id becomes the request caller.
func (ta *TerminalAuth) Middleware(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderTerminalID)
		t, ok := ta.authenticate(id, c.GetHeader(HeaderTerminalKey))
		if !ok {
			logctx.FromGin(c, base).Infow("terminal_rejected", "terminal_id", id)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "unknown terminal or bad key"))
			return
		}
		if !t.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.ErrorT[any](response.APIResponseCodeTooMany, "rate limit exceeded"))
			return
		}
		SetCaller(c, base, "terminal:"+id)
		c.Next()
	}
}
