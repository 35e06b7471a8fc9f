package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitIP_Disabled(t *testing.T) {
	handler := RateLimitIP(RateLimitConfig{Enabled: false})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predict", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 when disabled, got %d", rec.Code)
	}
}

func TestRateLimitHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	resetAt := time.Now().Add(10 * time.Second)

	setRateLimitHeaders(rec, 50, 45, resetAt)

	if rec.Header().Get("X-RateLimit-Limit") != "50" {
		t.Errorf("expected X-RateLimit-Limit=50, got %s", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "45" {
		t.Errorf("expected X-RateLimit-Remaining=45, got %s", rec.Header().Get("X-RateLimit-Remaining"))
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected X-RateLimit-Reset to be set")
	}
}

func TestRateLimitHeaders_ZeroLimit(t *testing.T) {
	rec := httptest.NewRecorder()

	setRateLimitHeaders(rec, 0, 0, time.Now())

	if rec.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("expected no headers for zero limit")
	}
}

func Test429Response(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRateLimitError(rec, 5*time.Second)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", rec.Code)
	}

	if rec.Header().Get("Content-Type") != "application/json" {
		t.Error("expected JSON content type")
	}

	if len(rec.Body.String()) == 0 {
		t.Error("expected error body")
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{
			name:   "x-forwarded-for single",
			header: map[string]string{"X-Forwarded-For": "203.0.113.7"},
			remote: "10.0.0.1:1234",
			want:   "203.0.113.7",
		},
		{
			name:   "x-forwarded-for chain takes first",
			header: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"},
			remote: "10.0.0.1:1234",
			want:   "203.0.113.7",
		},
		{
			name:   "x-real-ip",
			header: map[string]string{"X-Real-IP": "203.0.113.9"},
			remote: "10.0.0.1:1234",
			want:   "203.0.113.9",
		},
		{
			name:   "remote addr fallback",
			remote: "10.0.0.1:1234",
			want:   "10.0.0.1:1234",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}

			if got := getClientIP(req); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
