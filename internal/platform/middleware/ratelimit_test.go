package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func limitedRequest(t *testing.T, h echo.HandlerFunc, ip string) (error, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/public/lab/ref-1/verify", nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	return h(e.NewContext(req, rec)), rec
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	l, err := NewRateLimiter("2-M")
	if err != nil {
		t.Fatalf("NewRateLimiter: %v", err)
	}
	h := RateLimit(l, zerolog.New(io.Discard))(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		if err, _ := limitedRequest(t, h, "10.0.0.1"); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}
	err, rec := limitedRequest(t, h, "10.0.0.1")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected remaining 0, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	l, _ := NewRateLimiter("1-M")
	h := RateLimit(l, zerolog.New(io.Discard))(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	if err, _ := limitedRequest(t, h, "10.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err, _ := limitedRequest(t, h, "10.0.0.2"); err != nil {
		t.Errorf("second client should have its own quota, got %v", err)
	}
}

func TestNewRateLimiter_RejectsBadFormat(t *testing.T) {
	if _, err := NewRateLimiter("lots"); err == nil {
		t.Error("expected error for malformed rate")
	}
}
