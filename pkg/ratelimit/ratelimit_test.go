package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/auditlog/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestDefaultIngestConfig(t *testing.T) {
	cfg := DefaultIngestConfig()
	assert.Equal(t, float64(50), cfg.Rate)
	assert.Equal(t, 100, cfg.Burst)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 5*time.Minute, cfg.MaxAge)
}

func TestNew(t *testing.T) {
	t.Run("creates limiter with config", func(t *testing.T) {
		rl := New(Config{Rate: 10, Burst: 20, CleanupInterval: time.Second, MaxAge: time.Minute})
		defer rl.Stop()

		assert.Equal(t, float64(10), rl.Config().Rate)
		assert.Equal(t, 20, rl.Config().Burst)
	})

	t.Run("sets defaults if zero", func(t *testing.T) {
		rl := New(Config{Rate: 10, Burst: 20})
		defer rl.Stop()

		assert.Equal(t, time.Minute, rl.Config().CleanupInterval)
		assert.Equal(t, 5*time.Minute, rl.Config().MaxAge)
	})
}

func TestAllow(t *testing.T) {
	rl := New(Config{Rate: 1, Burst: 3, CleanupInterval: time.Hour, MaxAge: time.Hour})
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("ip:192.168.1.1"), "request %d should be allowed", i)
	}
	assert.False(t, rl.Allow("ip:192.168.1.1"))
	assert.True(t, rl.Allow("ip:192.168.1.2"), "keys have separate buckets")
	assert.Equal(t, 2, rl.Len())
}

func newRouter(rl *Limiter, user string) *gin.Engine {
	router := gin.New()
	if user != "" {
		router.Use(func(c *gin.Context) { c.Set("username", user) })
	}
	router.Use(rl.Middleware())
	router.POST("/api/events", func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	return router
}

func post(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/events", nil)
	req.RemoteAddr = remoteAddr
	router.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	t.Run("returns 429 when rate limited", func(t *testing.T) {
		rl := New(Config{Rate: 1, Burst: 2, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()
		router := newRouter(rl, "")
		before := testutil.ToFloat64(metrics.IngestBatches.WithLabelValues("api", "throttled"))

		for i := 0; i < 2; i++ {
			assert.Equal(t, http.StatusAccepted, post(router, "192.168.1.1:12345").Code)
		}
		w := post(router, "192.168.1.1:12345")

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "TOO_MANY_REQUESTS")
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
		assert.Equal(t, before+1, testutil.ToFloat64(metrics.IngestBatches.WithLabelValues("api", "throttled")))
	})

	t.Run("keys by user when known", func(t *testing.T) {
		rl := New(Config{Rate: 1, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()
		router := newRouter(rl, "billing-service")

		assert.Equal(t, http.StatusAccepted, post(router, "10.0.0.1:1").Code)
		assert.Equal(t, http.StatusTooManyRequests, post(router, "10.0.0.2:1").Code,
			"the same user shares a bucket across addresses")
	})
}

func TestKey(t *testing.T) {
	rl := New(Config{Rate: 1, Burst: 1}, "sub")
	defer rl.Stop()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.RemoteAddr = "192.0.2.10:4000"
	assert.Equal(t, "ip:192.0.2.10", rl.Key(c))

	c.Set("username", "ignored")
	assert.Equal(t, "ip:192.0.2.10", rl.Key(c), "only the configured keys are consulted")

	c.Set("sub", "orders")
	assert.Equal(t, "user:orders", rl.Key(c))
}

func TestCleanup(t *testing.T) {
	rl := New(Config{
		Rate:            10,
		Burst:           10,
		CleanupInterval: 50 * time.Millisecond,
		MaxAge:          100 * time.Millisecond,
	})
	defer rl.Stop()

	rl.Allow("ip:192.168.1.1")
	rl.Allow("ip:192.168.1.2")
	require.Equal(t, 2, rl.Len())

	assert.Eventually(t, func() bool { return rl.Len() == 0 }, 2*time.Second, 25*time.Millisecond)
}

func TestStop_Idempotent(t *testing.T) {
	rl := New(Config{Rate: 1, Burst: 1})
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}

func TestConcurrency(t *testing.T) {
	rl := New(Config{Rate: 1000, Burst: 1000, CleanupInterval: time.Hour, MaxAge: time.Hour})
	defer rl.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rl.Allow("ip:192.168.1.1")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, rl.Len())
}
