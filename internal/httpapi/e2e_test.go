package httpapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/John-Robertt/subforge/internal/config"
	"github.com/John-Robertt/subforge/internal/model"
)

const (
	hkURI    = "trojan://p1@hk.node.net:443#HK%2001"
	jpURI    = "ss://YWVzLTEyOC1nY206cGFzcw@jp.node.net:8388#JP%200.5x"
	relayURI = "trojan://p2@relay.node.net:443#Relay"
	exitURI  = "ss://YWVzLTEyOC1nY206cGFzcw@exit.node.net:8388#Exit"
)

type upstream struct {
	*httptest.Server
	subHits atomic.Int64
}

// newUpstream serves a provider subscription (/sub), an aggregation
// document (/agg) and a few broken endpoints.
func newUpstream(t *testing.T) *upstream {
	t.Helper()
	up := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sub", func(w http.ResponseWriter, r *http.Request) {
		up.subHits.Add(1)
		w.Header().Set("Subscription-Userinfo", "upload=1; download=2; total=3; expire=0")
		w.Header().Set("Profile-Title", "base64:"+base64.StdEncoding.EncodeToString([]byte("机场 A")))
		body := strings.Join([]string{hkURI, jpURI, "bogus-line"}, "\n")
		_, _ = fmt.Fprint(w, base64.StdEncoding.EncodeToString([]byte(body)))
	})
	mux.HandleFunc("/agg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "# relay list\n%s\n%s|dialer-proxy:Relay\nhttp://%s/sub\n", relayURI, exitURI, r.Host)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	up.Server = httptest.NewServer(mux)
	t.Cleanup(up.Close)
	return up
}

func doRequest(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func doGET(t *testing.T, h http.Handler, path string, ua string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	return doRequest(t, h, req)
}

func doPOSTJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return doRequest(t, h, req)
}

func subPath(source string, extra string) string {
	p := "/sub?url=" + url.QueryEscape(source)
	if extra != "" {
		p += "&" + extra
	}
	return p
}

func TestSub_ClashFromSubscription(t *testing.T) {
	up := newUpstream(t)
	mux := NewMux()

	rr := doGET(t, mux, subPath(up.URL+"/sub", "target=clash"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "text/yaml; charset=utf-8" {
		t.Fatalf("Content-Type=%q", got)
	}
	if got, want := rr.Header().Get("Subscription-Userinfo"), "upload=1; download=2; total=3; expire=0"; got != want {
		t.Fatalf("Subscription-Userinfo=%q, want %q", got, want)
	}
	if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, "%E6%9C%BA%E5%9C%BA%20A.yaml") {
		t.Fatalf("Content-Disposition=%q, want title-based filename", got)
	}
	if got := rr.Header().Get(HeaderDiagnostics); got != "MALFORMED_URI=1" {
		t.Fatalf("%s=%q, want MALFORMED_URI=1", HeaderDiagnostics, got)
	}
	if got := rr.Header().Get(HeaderStats); !strings.Contains(got, "valid=2") {
		t.Fatalf("%s=%q, want valid=2", HeaderStats, got)
	}

	body := rr.Body.String()
	for _, want := range []string{"香港 01", "[0.5x]", model.GroupNameSelect, model.GroupNameLowRate, "MATCH,"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "HK 01") {
		t.Fatalf("subscription names should be region formatted:\n%s", body)
	}
}

func TestSub_AutoTargetByUserAgent(t *testing.T) {
	up := newUpstream(t)
	mux := NewMux()

	cases := []struct {
		ua          string
		contentType string
	}{
		{"SFA/1.11.0 (Android; sing-box 1.11.0)", "application/json; charset=utf-8"},
		{"clash-verge/v2.0.0", "text/yaml; charset=utf-8"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15", "text/html; charset=utf-8"},
		{"", "text/yaml; charset=utf-8"},
	}
	for _, c := range cases {
		rr := doGET(t, mux, subPath(up.URL+"/sub", ""), c.ua)
		if rr.Code != http.StatusOK {
			t.Fatalf("ua=%q status=%d body=%s", c.ua, rr.Code, rr.Body.String())
		}
		if got := rr.Header().Get("Content-Type"); got != c.contentType {
			t.Fatalf("ua=%q Content-Type=%q, want %q", c.ua, got, c.contentType)
		}
	}
}

func TestConvertPOST_MatchesGET(t *testing.T) {
	up := newUpstream(t)
	mux := NewMux()

	get := doGET(t, mux, subPath(up.URL+"/sub", "target=singbox&rename=0"), "")
	if get.Code != http.StatusOK {
		t.Fatalf("GET status=%d body=%s", get.Code, get.Body.String())
	}
	post := doPOSTJSON(t, mux, "/api/convert", map[string]any{
		"url":    up.URL + "/sub",
		"target": "singbox",
		"rename": false,
	})
	if post.Code != http.StatusOK {
		t.Fatalf("POST status=%d body=%s", post.Code, post.Body.String())
	}
	if get.Body.String() != post.Body.String() {
		t.Fatalf("GET/POST mismatch\n--- GET ---\n%s\n--- POST ---\n%s", get.Body.String(), post.Body.String())
	}

	var doc struct {
		Outbounds []struct {
			Tag string `json:"tag"`
		} `json:"outbounds"`
	}
	if err := json.Unmarshal(post.Body.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	found := false
	for _, ob := range doc.Outbounds {
		found = found || ob.Tag == "HK 01"
	}
	if !found {
		t.Fatalf("rename=0 should keep provider names, got %+v", doc.Outbounds)
	}
}

func TestSub_ResponseCache(t *testing.T) {
	up := newUpstream(t)
	mux := NewMux()

	path := subPath(up.URL+"/sub", "target=clash")
	first := doGET(t, mux, path, "")
	second := doGET(t, mux, path, "")
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("status=%d/%d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatal("cached body differs from the computed one")
	}
	if got := up.subHits.Load(); got != 1 {
		t.Fatalf("upstream hits=%d, want 1", got)
	}
	if got := second.Header().Get("Subscription-Userinfo"); got == "" {
		t.Fatal("cached response lost its headers")
	}

	doGET(t, mux, subPath(up.URL+"/sub", "target=clash&keep=first"), "")
	if got := up.subHits.Load(); got != 2 {
		t.Fatalf("upstream hits=%d, want 2 for different options", got)
	}
}

func TestSub_CacheDisabledByConfig(t *testing.T) {
	up := newUpstream(t)
	cfg, err := config.Parse([]byte("cache:\n  enabled: false\n"), "")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	mux := NewMuxWithOptions(Options{Config: func() *config.Config { return cfg }})

	path := subPath(up.URL+"/sub", "target=clash")
	doGET(t, mux, path, "")
	doGET(t, mux, path, "")
	if got := up.subHits.Load(); got != 2 {
		t.Fatalf("upstream hits=%d, want 2", got)
	}
}

func TestSub_SingleURIsWithChain(t *testing.T) {
	mux := NewMux()
	rr := doGET(t, mux, subPath(hkURI+" "+jpURI, "target=clash&chain="+url.QueryEscape("JP->HK 01")), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if !strings.Contains(body, "dialer-proxy: HK 01") {
		t.Fatalf("missing dialer-proxy:\n%s", body)
	}
	if strings.Contains(body, model.GroupNameLowRate) {
		t.Fatalf("single URIs should not get the low-rate group:\n%s", body)
	}
	if rr.Header().Get("Subscription-Userinfo") != "" {
		t.Fatal("single URIs carry no traffic metadata")
	}
}

func TestSub_AggregationDocument(t *testing.T) {
	up := newUpstream(t)
	mux := NewMux()

	rr := doGET(t, mux, subPath("aggregate+"+up.URL+"/agg", "target=clash"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"name: Relay", "name: Exit", "dialer-proxy: Relay", "name: HK 01"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, model.GroupNameLowRate) {
		t.Fatalf("low-rate group is off by default for aggregation documents:\n%s", body)
	}

	rr = doGET(t, mux, subPath("aggregate+"+up.URL+"/agg", "target=clash&lowrate=1"), "")
	if !strings.Contains(rr.Body.String(), model.GroupNameLowRate) {
		t.Fatalf("lowrate=1 should force the low-rate group:\n%s", rr.Body.String())
	}
}

func TestSub_ConfigRulesAndFileName(t *testing.T) {
	up := newUpstream(t)
	cfg, err := config.Parse([]byte("rules:\n  - DOMAIN-SUFFIX,openai.com,PROXY\n"), "")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	mux := NewMuxWithOptions(Options{Config: func() *config.Config { return cfg }})

	rr := doGET(t, mux, subPath(up.URL+"/sub", "target=clash&fileName=my"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "DOMAIN-SUFFIX,openai.com,"+model.GroupNameSelect) {
		t.Fatalf("config rule missing:\n%s", rr.Body.String())
	}
	if got, want := rr.Header().Get("Content-Disposition"), "attachment; filename*=UTF-8''my.yaml"; got != want {
		t.Fatalf("Content-Disposition=%q, want %q", got, want)
	}
}

func TestSub_Errors(t *testing.T) {
	up := newUpstream(t)
	mux := NewMux()

	cases := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"missing url", "/sub", http.StatusBadRequest, model.CodeInvalidArgument},
		{"unknown param", subPath(up.URL+"/sub", "mode=config"), http.StatusBadRequest, model.CodeInvalidArgument},
		{"bad target", subPath(up.URL+"/sub", "target=surge"), http.StatusBadRequest, model.CodeInvalidArgument},
		{"bad flag", subPath(up.URL+"/sub", "rename=maybe"), http.StatusBadRequest, model.CodeInvalidArgument},
		{"bad keep", subPath(up.URL+"/sub", "keep=newest"), http.StatusBadRequest, model.CodeInvalidArgument},
		{"repeated param", subPath(up.URL+"/sub", "target=clash&target=singbox"), http.StatusBadRequest, model.CodeInvalidArgument},
		{"not a url", subPath("ftp://files.net/sub", ""), http.StatusBadRequest, model.CodeInvalidArgument},
		{"upstream 500", subPath(up.URL+"/broken", ""), http.StatusBadGateway, model.CodeFetchFailed},
		{"empty subscription", subPath(up.URL+"/empty", ""), http.StatusUnprocessableEntity, model.CodeEmptySource},
		{"malformed uri", subPath("trojan://@hk.node.net:443#x", ""), http.StatusUnprocessableEntity, model.CodeMalformedURI},
	}
	for _, c := range cases {
		rr := doGET(t, mux, c.path, "")
		assertError(t, c.name, rr, c.status, c.code)
	}

	rr := doPOSTJSON(t, mux, "/api/convert", map[string]any{"url": up.URL + "/sub", "mode": "config"})
	assertError(t, "unknown json field", rr, http.StatusBadRequest, model.CodeInvalidArgument)

	rr = doPOSTJSON(t, mux, "/api/convert", map[string]any{"url": up.URL + "/sub", "rules": []string{"MATCH,DIRECT"}})
	assertError(t, "bad request rule", rr, http.StatusUnprocessableEntity, model.CodeRuleParse)
}

func assertError(t *testing.T, name string, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("%s: status=%d, want %d, body=%s", name, rr.Code, status, rr.Body.String())
	}
	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s: unmarshal: %v body=%q", name, err, rr.Body.String())
	}
	if resp.Error.Code != code {
		t.Fatalf("%s: code=%q, want %q", name, resp.Error.Code, code)
	}
}

func TestHandler_Gzip(t *testing.T) {
	up := newUpstream(t)
	h := NewHandler()

	req := httptest.NewRequest(http.MethodGet, subPath(up.URL+"/sub", "target=clash"), nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := doRequest(t, h, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := rr.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding=%q, want gzip", got)
	}
}
