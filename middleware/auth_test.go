package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cppla/winsome/utils"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/who", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, ctx.GetString(ContextUsernameKey))
	})
	r.GET("/boom", func(ctx *gin.Context) {
		panic("boom")
	})
	return r
}

func TestAuthRequired(t *testing.T) {
	blacklist := utils.NewTokenBlacklist(nil)
	r := newEngine(AuthRequired("secret", blacklist))

	good, _, _ := utils.GenerateToken("secret", "alice", time.Hour)
	revoked, claims, _ := utils.GenerateToken("secret", "bob", time.Hour)
	blacklist.Revoke(context.Background(), claims.ID, claims.ExpiresAt.Time)
	foreign, _, _ := utils.GenerateToken("other", "alice", time.Hour)

	cases := []struct {
		name   string
		target string
		header string
		status int
		body   string
	}{
		{"bearer", "/who", "Bearer " + good, http.StatusOK, "alice"},
		{"query", "/who?token=" + good, "", http.StatusOK, "alice"},
		{"missing", "/who", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "/who", "Basic " + good, http.StatusUnauthorized, ""},
		{"revoked", "/who", "Bearer " + revoked, http.StatusUnauthorized, ""},
		{"foreign secret", "/who", "Bearer " + foreign, http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, tc.target, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, w.Code)
		}
		if tc.body != "" && w.Body.String() != tc.body {
			t.Fatalf("%s: expected body %q, got %q", tc.name, tc.body, w.Body.String())
		}
	}
}

func TestRateLimitPerIP(t *testing.T) {
	r := newEngine(RateLimitMiddleware(2))
	send := func(ip string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/who", nil)
		req.RemoteAddr = ip + ":1234"
		r.ServeHTTP(w, req)
		return w.Code
	}
	if send("10.0.0.1") != http.StatusOK {
		t.Fatalf("first request should pass")
	}
	if send("10.0.0.1") != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited")
	}
	if send("10.0.0.2") != http.StatusOK {
		t.Fatalf("other clients have their own bucket")
	}
}

func TestGinzapAndRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	r := newEngine(Ginzap(logger), RecoveryWithZap(logger))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/who?x=1", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", bytes.NewReader(nil)))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("panic should become 500, got %d", w.Code)
	}

	if n := logs.FilterMessage("panic recovered").Len(); n != 1 {
		t.Fatalf("expected one panic log, got %d", n)
	}
	reqs := logs.FilterMessage("http request").All()
	if len(reqs) != 2 {
		t.Fatalf("expected two request logs, got %d", len(reqs))
	}
	if reqs[0].ContextMap()["query"] != "x=1" || reqs[1].ContextMap()["status"] != int64(500) {
		t.Fatalf("unexpected request fields %v %v", reqs[0].ContextMap(), reqs[1].ContextMap())
	}
}
