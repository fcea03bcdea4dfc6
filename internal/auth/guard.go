// Package auth はレンダラーAPIのキー認証とブラウザセッションを扱います。
package auth

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/logger"
)

var (
	attemptWindow = 15 * time.Minute
	lockDuration  = 10 * time.Minute
	maxAttempts   = 5
)

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Guard は Authorization: Bearer <key> を bcrypt ハッシュと照合するミドルウェアです。
// 同じIPからの失敗が続いた場合は一定時間ロックします。
type Guard struct {
	hash     []byte
	now      func() time.Time
	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewGuard は Guard を作成します。hash が空の場合は認証を行いません（ローカル開発用）。
func NewGuard(hash string) *Guard {
	return &Guard{
		hash:     []byte(hash),
		now:      time.Now,
		attempts: make(map[string]*attemptState),
	}
}

// Enabled は認証が有効かどうかを返します。
func (g *Guard) Enabled() bool {
	return len(g.hash) > 0
}

// RequireAPIKey はAPIキーを検証するミドルウェアを返します。
// エラーはレンダラーAPIと同じ {error, details} 形式で返します。
func (g *Guard) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.Enabled() {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if retryAfter := g.checkLock(ip); retryAfter > 0 {
			c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too many attempts",
				"details": "try again later",
			})
			return
		}

		key, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || bcrypt.CompareHashAndPassword(g.hash, []byte(key)) != nil {
			remaining := g.recordFailure(ip)
			logger.Logger.Warn().Str("ip", ip).Int("remaining", remaining).Msg("renderer api key rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "Unauthorized",
				"details":           "missing or invalid API key",
				"remainingAttempts": remaining,
			})
			return
		}

		g.resetAttempts(ip)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func (g *Guard) checkLock(ip string) time.Duration {
	g.lock.Lock()
	defer g.lock.Unlock()

	state, ok := g.attempts[ip]
	if !ok {
		return 0
	}
	now := g.now()
	if !now.Before(state.lockedUntil) {
		if state.expired(now) {
			delete(g.attempts, ip)
		}
		return 0
	}
	return state.lockedUntil.Sub(now)
}

func (g *Guard) recordFailure(ip string) int {
	g.lock.Lock()
	defer g.lock.Unlock()

	now := g.now()
	g.pruneLocked(now)
	state, ok := g.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > attemptWindow {
		state = &attemptState{firstAttempt: now}
		g.attempts[ip] = state
	}

	state.count++
	if state.count >= maxAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxAttempts
	}
	return max(maxAttempts-state.count, 0)
}

// pruneLocked はカウント期間とロックの両方が切れたエントリを削除します。g.lock を保持して呼びます。
func (g *Guard) pruneLocked(now time.Time) {
	for ip, state := range g.attempts {
		if state.expired(now) {
			delete(g.attempts, ip)
		}
	}
}

func (s *attemptState) expired(now time.Time) bool {
	return now.Sub(s.firstAttempt) > attemptWindow && !now.Before(s.lockedUntil)
}

func (g *Guard) resetAttempts(ip string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	delete(g.attempts, ip)
}
