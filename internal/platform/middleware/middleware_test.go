// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	"github.com/taibuivan/yomira-iam/internal/platform/constants"
	"github.com/taibuivan/yomira-iam/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-iam/internal/platform/middleware"
)

type stubConfig struct {
	production bool
	allowed    string
}

func (c stubConfig) IsProduction() bool                { return c.production }
func (c stubConfig) AllowedOrigin(origin string) bool { return origin == c.allowed }

var okHandler = http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
	writer.WriteHeader(http.StatusOK)
})

/*
TestRequestID verifies that IDs are generated when absent and preserved when supplied.
*/
func TestRequestID(t *testing.T) {
	var seen string
	handler := middleware.RequestID()(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		seen = ctxutil.GetRequestID(request.Context())
	}))

	// 1. Generated
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, recorder.Header().Get("X-Request-ID"))

	// 2. Preserved
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("X-Request-ID", "client-supplied")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, "client-supplied", seen)
}

/*
TestRateLimitWith verifies that requests beyond the burst are rejected per IP and
that the cleanup goroutine exits with its context.
*/
func TestRateLimitWith(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := middleware.RateLimitWith(ctx, rate.Limit(0.001), 2)(okHandler)

	send := func(remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodPost, "/login", nil)
		request.RemoteAddr = remoteAddr
		if forwardedFor != "" {
			request.Header.Set(constants.HeaderXForwardedFor, forwardedFor)
			request.Header.Set(constants.HeaderXRealIP, forwardedFor)
		}
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000", "198.51.100.1").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5001", "198.51.100.2").Code)

	// Rotating forwarding headers does not open a new bucket
	limited := send("10.0.0.1:5002", "198.51.100.3")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1000", limited.Header().Get("Retry-After"))

	body := decodeError(t, limited)
	assert.Equal(t, "RATE_LIMITED", body["code"])
	assert.NotEmpty(t, body["error"])

	// A different client has its own bucket
	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000", "").Code)
}

func TestPanicRecovery(t *testing.T) {
	handler := middleware.PanicRecovery(nil)(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		panic("boom")
	}))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request = request.WithContext(ctxutil.WithLogger(request.Context(), discardLogger()))
	recorder := httptest.NewRecorder()

	assert.NotPanics(t, func() { handler.ServeHTTP(recorder, request) })
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)

	body := decodeError(t, recorder)
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.NotContains(t, body["error"], "boom")
}

func TestCORS(t *testing.T) {
	handler := middleware.CORS(stubConfig{allowed: "https://app.yomira.app"})(okHandler)

	tests := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantAllowed bool
	}{
		{"allowed_origin", http.MethodGet, "https://app.yomira.app", http.StatusOK, true},
		{"foreign_origin", http.MethodGet, "https://evil.example.com", http.StatusOK, false},
		{"preflight", http.MethodOptions, "https://app.yomira.app", http.StatusNoContent, true},
		{"no_origin", http.MethodGet, "", http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				request.Header.Set("Origin", tt.origin)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			if tt.wantAllowed {
				assert.Equal(t, tt.origin, recorder.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestSecureHeaders(t *testing.T) {
	handler := middleware.SecureHeaders(stubConfig{})(okHandler)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "DENY", recorder.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", recorder.Header().Get("X-Content-Type-Options"))
}

func TestRealIP_IgnoresForwardingHeaders(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.RemoteAddr = "192.0.2.1:4321"
	assert.Equal(t, "192.0.2.1", middleware.RealIP(request))

	request.Header.Set(constants.HeaderXForwardedFor, "203.0.113.5, 10.0.0.1")
	request.Header.Set(constants.HeaderXRealIP, "198.51.100.7")
	assert.Equal(t, "192.0.2.1", middleware.RealIP(request))
}

func TestTrustedProxies(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name       string
		prefixes   []netip.Prefix
		remoteAddr string
		want       string
	}{
		{name: "trusted_peer_forwards", prefixes: proxies, remoteAddr: "10.1.2.3:443", want: "203.0.113.5"},
		{name: "untrusted_peer_ignored", prefixes: proxies, remoteAddr: "192.0.2.1:443", want: "192.0.2.1"},
		{name: "no_proxies_configured", prefixes: nil, remoteAddr: "10.1.2.3:443", want: "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := middleware.TrustedProxies(tt.prefixes)(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				seen = middleware.RealIP(request)
			}))

			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.RemoteAddr = tt.remoteAddr
			request.Header.Set(constants.HeaderXForwardedFor, "203.0.113.5")
			handler.ServeHTTP(httptest.NewRecorder(), request)

			assert.Equal(t, tt.want, seen)
		})
	}
}
