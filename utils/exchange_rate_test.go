package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseRate(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"0.1234567890\n", 0.123456789, true},
		{"  0.5  ", 0.5, true},
		{"", 0, false},
		{"abc", 0, false},
		{"0", 0, false},
		{"-0.3", 0, false},
	}
	for _, tc := range cases {
		got, err := parseRate(tc.raw)
		if (err == nil) != tc.ok || got != tc.want {
			t.Fatalf("parseRate(%q) = %v, %v", tc.raw, got, err)
		}
	}
}

func TestRandomOrgRateCaches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("0.25\n"))
	}))
	defer srv.Close()

	kv := newMemKV()
	src := NewRandomOrgRate(srv.URL, time.Second, kv, time.Minute)
	for i := 0; i < 3; i++ {
		rate, err := src.Rate(context.Background())
		if err != nil || rate != 0.25 {
			t.Fatalf("rate = %v, %v", rate, err)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected one upstream call, got %d", n)
	}
	if kv.ttl[exchangeRateKey] != time.Minute {
		t.Fatalf("unexpected cache ttl %v", kv.ttl[exchangeRateKey])
	}
}

func TestRandomOrgRateFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mode") == "slow" {
			time.Sleep(200 * time.Millisecond)
		}
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewRandomOrgRate(srv.URL, time.Second, nil, 0).Rate(context.Background()); err == nil {
		t.Fatalf("expected status error")
	}
	if _, err := NewRandomOrgRate(srv.URL+"?mode=slow", 20*time.Millisecond, nil, 0).Rate(context.Background()); err == nil {
		t.Fatalf("expected timeout error")
	}
}
