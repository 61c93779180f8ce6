package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DavidAGInnovation/dogg-tap-api/internal/store"
)

func newLimitedRouter(t *testing.T, max int64) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	lim := NewLimiter(store.NewRedisStore(rdb), max, time.Minute, zap.NewNop())

	r := gin.New()
	r.GET("/x", lim.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r, mr
}

func hit(r *gin.Engine, addr string) int {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = addr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

// ── Admission ────────────────────────────────────────────────────────────────

func TestLimiter_AdmitsUpToMax(t *testing.T) {
	r, _ := newLimitedRouter(t, 3)

	for i := 0; i < 3; i++ {
		if code := hit(r, "10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, code)
		}
	}
	if code := hit(r, "10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("request over limit: status %d, want 429", code)
	}
}

func TestLimiter_OriginsAreIndependent(t *testing.T) {
	r, _ := newLimitedRouter(t, 1)

	if code := hit(r, "10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("first origin: %d", code)
	}
	if code := hit(r, "10.0.0.1:1"); code != http.StatusTooManyRequests {
		t.Fatalf("first origin second hit: %d", code)
	}
	if code := hit(r, "10.0.0.2:1"); code != http.StatusOK {
		t.Fatalf("second origin must not share the window: %d", code)
	}
}

func TestLimiter_WindowResets(t *testing.T) {
	r, mr := newLimitedRouter(t, 1)

	if code := hit(r, "10.0.0.9:1"); code != http.StatusOK {
		t.Fatal("first hit rejected")
	}
	if code := hit(r, "10.0.0.9:1"); code != http.StatusTooManyRequests {
		t.Fatal("second hit admitted inside window")
	}

	mr.FastForward(61 * time.Second)

	if code := hit(r, "10.0.0.9:1"); code != http.StatusOK {
		t.Fatalf("hit after window expiry: %d, want 200", code)
	}
}

// ── Fail-open ────────────────────────────────────────────────────────────────

func TestLimiter_FailsOpenWhenStoreDown(t *testing.T) {
	r, mr := newLimitedRouter(t, 1)
	mr.Close()

	for i := 0; i < 5; i++ {
		if code := hit(r, "10.0.0.3:1"); code != http.StatusOK {
			t.Fatalf("store outage must admit traffic, got %d", code)
		}
	}
}
