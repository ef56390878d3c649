package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMux_IndexAndHealthz(t *testing.T) {
	mux := NewMux()

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("index status = %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Fatalf("index Content-Type = %q", got)
	}
	if !strings.Contains(rr.Body.String(), "/sub?") {
		t.Fatalf("index page should build /sub links, got:\n%s", rr.Body.String())
	}
	for _, scheme := range []string{"vless", "hysteria2", "anytls", "socks5"} {
		if !strings.Contains(rr.Body.String(), scheme) {
			t.Fatalf("index page missing scheme %q", scheme)
		}
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("healthz status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status = %d, want 404", rr.Code)
	}
}

func TestDetectTarget(t *testing.T) {
	cases := map[string]string{
		"SFI/1.10.0 (iOS; sing-box 1.10.0)":         "singbox",
		"sing-box 1.11.4":                           "singbox",
		"clash.meta":                                "clash",
		"mihomo/1.18.5":                             "clash",
		"Stash/2.4.0 Clash/1.9.0":                   "clash",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64)": "preview",
		"Mozilla/5.0 ClashForWindows/0.20.39":       "clash",
		"curl/8.5.0":                                "clash",
		"":                                          "clash",
	}
	for ua, want := range cases {
		if got := DetectTarget(ua); string(got) != want {
			t.Fatalf("DetectTarget(%q) = %q, want %q", ua, got, want)
		}
	}
}
