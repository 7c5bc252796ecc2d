package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestClientLimiter(t *testing.T) {
	limiter := newClientLimiter(true, 2)
	key := "127.0.0.1"
	now := time.Now()

	if !limiter.allow(key, now) {
		t.Fatalf("expected first request to be allowed")
	}
	if !limiter.allow(key, now) {
		t.Fatalf("expected second request to be allowed")
	}
	if limiter.allow(key, now) {
		t.Fatalf("expected third request to be rate limited")
	}
	if !limiter.allow("10.0.0.2", now) {
		t.Fatalf("expected another client to have its own budget")
	}

	// Two per minute refills one token every 30 seconds.
	if !limiter.allow(key, now.Add(31*time.Second)) {
		t.Fatalf("expected request to be allowed after refill")
	}
	if got := limiter.retryAfter(); got != 30 {
		t.Fatalf("expected retry after 30s, got %d", got)
	}
}

func TestClientLimiterDropsIdleClients(t *testing.T) {
	limiter := newClientLimiter(true, 5)
	now := time.Now()

	limiter.allow("10.0.0.1", now)
	limiter.allow("10.0.0.2", now.Add(idleClientTTL+time.Second))
	limiter.allow("10.0.0.2", now.Add(2*idleClientTTL+2*time.Second))

	if _, ok := limiter.clients["10.0.0.1"]; ok {
		t.Fatalf("expected idle client to be dropped")
	}
	if _, ok := limiter.clients["10.0.0.2"]; !ok {
		t.Fatalf("expected active client to be kept")
	}
}

func TestClientLimiterDisabledWithoutBudget(t *testing.T) {
	if newClientLimiter(true, 0).enabled {
		t.Fatalf("expected limiter with zero budget to be disabled")
	}
}

func newTokenRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(APIToken(token))
	router.GET("/runs", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestAPIToken(t *testing.T) {
	router := newTokenRouter("s3cret")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer s3cret", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/runs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestAPITokenRejectsEverythingWhenUnset(t *testing.T) {
	router := newTokenRouter("")

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SecurityHeaders())
	router.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected X-Frame-Options header")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Fatalf("expected CSP header")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected history responses to be uncacheable")
	}
}
