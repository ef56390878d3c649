package httpapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestMetrics_CountsRequestsAndErrors(t *testing.T) {
	metrics = newMetricsStore()
	h := NewHandler()

	// 1) ok request
	{
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("healthz status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 2) error request
	{
		req := httptest.NewRequest(http.MethodGet, "/sub", nil) // missing url => validate_request error
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("sub status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 2b) the same conversion twice: one cache miss, then one hit
	for i := 0; i < 2; i++ {
		target := "/sub?target=clash&url=" + url.QueryEscape("trojan://pw@hk.node.net:443#HK")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("convert #%d status=%d body=%q", i, rr.Code, rr.Body.String())
		}
	}

	// 3) metrics snapshot (note: /metrics request itself isn't counted inside its own response).
	{
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("metrics status=%d body=%q", rr.Code, rr.Body.String())
		}

		body := rr.Body.String()

		if !strings.Contains(body, "subforge_http_requests_total 4\n") {
			t.Fatalf("metrics body missing total requests=4, got:\n%s", body)
		}
		if !strings.Contains(body, `pattern="GET /healthz",status="200"} 1`) {
			t.Fatalf("metrics body missing healthz counter, got:\n%s", body)
		}
		if !strings.Contains(body, `pattern="GET /sub",status="400"} 1`) {
			t.Fatalf("metrics body missing sub 400 counter, got:\n%s", body)
		}
		if !strings.Contains(body, `subforge_app_errors_total{stage="validate_request",code="INVALID_ARGUMENT"} 1`) {
			t.Fatalf("metrics body missing app error counter, got:\n%s", body)
		}
		if !strings.Contains(body, `pattern="GET /sub",status="200"} 2`) {
			t.Fatalf("metrics body missing sub 200 counter, got:\n%s", body)
		}
		if !strings.Contains(body, `subforge_cache_lookups_total{result="hit"} 1`) ||
			!strings.Contains(body, `subforge_cache_lookups_total{result="miss"} 1`) {
			t.Fatalf("metrics body missing cache counters, got:\n%s", body)
		}
	}
}
