package mw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/echodoc-ai/echodoc/pkg/server/config"
	"github.com/echodoc-ai/echodoc/pkg/server/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_Burst429IncludesRetryAfter(t *testing.T) {
	lim := ratelimit.New(ratelimit.Config{Requests: ratelimit.Budget{Rate: 1, Burst: 1}})
	h := RateLimit(config.Config{}, lim, okHandler())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/session-chat", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("first request status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/session-chat", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status=%d body=%q", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After=%q", got)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"type":"rate_limit_error"`) || !strings.Contains(body, `"code":"requests"`) {
		t.Fatalf("unexpected body: %q", body)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health must bypass limits, status=%d", rr.Code)
	}
}

func TestRateLimit_ReportBudgetOnlyGatesReportGeneration(t *testing.T) {
	lim := ratelimit.New(ratelimit.Config{
		Requests: ratelimit.Budget{Rate: 100, Burst: 100},
		Reports:  ratelimit.PerMinute(1, 1),
	})
	h := RateLimit(config.Config{}, lim, okHandler())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/medical-report", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("first report status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/medical-report", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second report status=%d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After=%q", got)
	}
	if body := rr.Body.String(); !strings.Contains(body, `"code":"reports"`) || !strings.Contains(body, "report generation limit") {
		t.Fatalf("unexpected body: %q", body)
	}

	for _, path := range []string{"/api/session-chat?sessionId=all", "/api/doctors"} {
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s status=%d", path, rr.Code)
		}
	}
}

func TestRateLimit_DisabledLimiterPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := RateLimit(config.Config{}, ratelimit.New(ratelimit.Config{}), next)
	rr := httptest.NewRecorder()
	for i := 0; i < 5; i++ {
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/doctors", nil))
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
}
