package auth

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/jobs"
)

func newGuard(t *testing.T, key string) *Guard {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	return NewGuard(string(hash))
}

func guardedRouter(g *Guard) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/generate", g.RequireAPIKey(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func call(router http.Handler, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	req.RemoteAddr = "192.0.2.10:5000"
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGuardDisabledWithoutHash(t *testing.T) {
	g := NewGuard("")
	assert.False(t, g.Enabled())
	assert.Equal(t, http.StatusOK, call(guardedRouter(g), "").Code)
}

func TestGuardAcceptsValidKey(t *testing.T) {
	g := newGuard(t, "secret-key")
	router := guardedRouter(g)

	assert.Equal(t, http.StatusOK, call(router, "Bearer secret-key").Code)
	assert.Equal(t, http.StatusOK, call(router, "bearer secret-key").Code)
}

func TestGuardRejectsInvalidKey(t *testing.T) {
	g := newGuard(t, "secret-key")
	router := guardedRouter(g)

	rec := call(router, "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"Unauthorized"`)
	assert.Contains(t, rec.Body.String(), `"remainingAttempts":4`)

	assert.Equal(t, http.StatusUnauthorized, call(router, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(router, "Basic c2VjcmV0").Code)
}

func TestGuardLocksAfterRepeatedFailures(t *testing.T) {
	g := newGuard(t, "secret-key")
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	router := guardedRouter(g)

	for range maxAttempts {
		assert.Equal(t, http.StatusUnauthorized, call(router, "Bearer wrong").Code)
	}

	rec := call(router, "Bearer secret-key")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "600", rec.Header().Get("Retry-After"))

	now = now.Add(lockDuration)
	assert.Equal(t, http.StatusOK, call(router, "Bearer secret-key").Code)
	assert.Empty(t, g.attempts)
}

func TestGuardWindowResetsCount(t *testing.T) {
	g := newGuard(t, "secret-key")
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	for range maxAttempts - 1 {
		g.recordFailure("192.0.2.10")
	}
	now = now.Add(attemptWindow + time.Second)
	assert.Equal(t, maxAttempts-1, g.recordFailure("192.0.2.10"))
	assert.Zero(t, g.checkLock("192.0.2.10"))
}

func TestGuardPrunesStaleAttempts(t *testing.T) {
	g := newGuard(t, "secret-key")
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	for i := range 50 {
		g.recordFailure("198.51.100." + strconv.Itoa(i))
	}
	for range maxAttempts {
		g.recordFailure("203.0.113.7")
	}
	require.Len(t, g.attempts, 51)

	// 期間は切れたがロック中のエントリは残る
	now = now.Add(attemptWindow + time.Second)
	g.lock.Lock()
	g.attempts["203.0.113.7"].lockedUntil = now.Add(time.Minute)
	g.lock.Unlock()
	g.recordFailure("192.0.2.10")
	assert.Len(t, g.attempts, 2)
	assert.Positive(t, g.checkLock("203.0.113.7"))

	now = now.Add(time.Minute)
	assert.Zero(t, g.checkLock("203.0.113.7"))
	assert.Len(t, g.attempts, 1)
	assert.Contains(t, g.attempts, "192.0.2.10")
}

func TestPinnedContextRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(sessions.Sessions(SessionCookieName, cookie.NewStore([]byte("test-secret"))))
	router.PUT("/pin/:id", func(c *gin.Context) {
		require.NoError(t, PinContext(c, jobs.ContextID("tab-"+c.Param("id"))))
		c.Status(http.StatusNoContent)
	})
	router.GET("/pinned", func(c *gin.Context) {
		c.String(http.StatusOK, string(PinnedContext(c)))
	})
	router.DELETE("/pin/:id", func(c *gin.Context) {
		ForgetContext(c, jobs.ContextID("tab-"+c.Param("id")))
		c.Status(http.StatusNoContent)
	})

	do := func(method, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	empty := do(http.MethodGet, "/pinned", nil)
	assert.Empty(t, empty.Body.String())

	pinned := do(http.MethodPut, "/pin/7", nil)
	cookies := pinned.Result().Cookies()
	require.NotEmpty(t, cookies)

	assert.Equal(t, "tab-7", do(http.MethodGet, "/pinned", cookies).Body.String())

	// 別のコンテキストの削除では消えない
	other := do(http.MethodDelete, "/pin/8", cookies)
	if next := other.Result().Cookies(); len(next) > 0 {
		cookies = next
	}
	assert.Equal(t, "tab-7", do(http.MethodGet, "/pinned", cookies).Body.String())

	forgotten := do(http.MethodDelete, "/pin/7", cookies)
	assert.Empty(t, do(http.MethodGet, "/pinned", forgotten.Result().Cookies()).Body.String())
}
