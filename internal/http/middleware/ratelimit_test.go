package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitPerCall(t *testing.T) {
	handler := RateLimit(1, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/turn", strings.NewReader(body))
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Same call burns through its bucket.
	assert.Equal(t, http.StatusOK, do(`{"call_id":"call-1"}`))
	assert.Equal(t, http.StatusTooManyRequests, do(`{"call_id":"call-1"}`))

	// A different call from the same address is unaffected.
	assert.Equal(t, http.StatusOK, do(`{"call_id":"call-2"}`))
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	handler := RateLimit(1, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/webhooks/voice/turn", nil)
		req.Header.Set("X-Real-Ip", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, do("203.0.113.7"))
	assert.Equal(t, http.StatusOK, do("203.0.113.8"))
}

func TestRateLimitBodyStaysReadable(t *testing.T) {
	var seen string
	handler := RateLimit(10, 10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := make([]byte, 64)
		n, _ := r.Body.Read(raw)
		seen = string(raw[:n])
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/turn", strings.NewReader(`{"call_id":"call-9"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"call_id":"call-9"}`, seen)
}
