package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newLimitedRouter(perMinute, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/submit", func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set(ContextUserID, user)
		}
		c.Next()
	}, RateLimitPerUser(perMinute, burst), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func hit(r *gin.Engine, user string) int {
	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimitPerUserIsolatesBuckets(t *testing.T) {
	r := newLimitedRouter(1, 2)

	require.Equal(t, http.StatusNoContent, hit(r, "alice"))
	require.Equal(t, http.StatusNoContent, hit(r, "alice"))
	require.Equal(t, http.StatusTooManyRequests, hit(r, "alice"))

	require.Equal(t, http.StatusNoContent, hit(r, "bob"))

	// Anonymous callers share the client IP bucket.
	require.Equal(t, http.StatusNoContent, hit(r, ""))
	require.Equal(t, http.StatusNoContent, hit(r, ""))
	require.Equal(t, http.StatusTooManyRequests, hit(r, ""))
}

func TestRateLimitDisabled(t *testing.T) {
	r := newLimitedRouter(0, 0)
	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusNoContent, hit(r, "alice"))
	}
}

func TestRateLimitDropsIdleBuckets(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiters := newUserLimiters(1, 2)
	limiters.now = func() time.Time { return clock }

	for i := 0; i < 50; i++ {
		require.True(t, limiters.allow(fmt.Sprintf("ip:10.0.0.%d", i)))
	}
	require.True(t, limiters.allow("alice"))
	require.True(t, limiters.allow("alice"))
	require.False(t, limiters.allow("alice"))
	require.Equal(t, 51, limiters.size())

	// Two minutes refill a burst of two, so every idle bucket is forgotten.
	clock = clock.Add(2 * time.Minute)
	require.True(t, limiters.allow("bob"))
	require.Equal(t, 1, limiters.size())

	require.True(t, limiters.allow("alice"))
	require.True(t, limiters.allow("alice"))
	require.False(t, limiters.allow("alice"))
}

func TestRateLimitKeepsActiveBuckets(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiters := newUserLimiters(1, 2)
	limiters.now = func() time.Time { return clock }

	require.True(t, limiters.allow("alice"))
	require.True(t, limiters.allow("alice"))

	clock = clock.Add(90 * time.Second)
	require.True(t, limiters.allow("alice"))
	require.False(t, limiters.allow("alice"))

	clock = clock.Add(90 * time.Second)
	require.True(t, limiters.allow("carol"))
	require.Equal(t, 2, limiters.size())
}
