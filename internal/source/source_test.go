package source

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/subforge/internal/dedupe"
	"github.com/John-Robertt/subforge/internal/fetch"
	"github.com/John-Robertt/subforge/internal/model"
)

type fakeFetcher struct {
	docs  map[string]string
	meta  map[string]model.SubscriptionMetadata
	calls atomic.Int32
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*fetch.Document, error) {
	f.calls.Add(1)
	body, ok := f.docs[url]
	if !ok {
		return nil, &fetch.FetchError{
			Status:   502,
			AppError: model.AppError{Code: model.CodeFetchFailed, Message: "not found", Stage: "fetch_sub", URL: url},
		}
	}
	return &fetch.Document{URL: url, Body: body, Meta: f.meta[url]}, nil
}

const (
	hkURI = "trojan://p1@hk.node.net:443#HK%2001"
	jpURI = "ss://YWVzLTEyOC1nY206cGFzcw@jp.node.net:8388#JP"
	// hkURI, jpURI, "bogus-line" and "ssr://abc" as a Base64 subscription.
	b64Sub = "dHJvamFuOi8vcDFAaGsubm9kZS5uZXQ6NDQzI0hLJTIwMDEKc3M6Ly9ZV1Z6TFRFeU9DMW5ZMjA2Y0dGemN3QGpwLm5vZGUubmV0OjgzODgjSlAKYm9ndXMtbGluZQpzc3I6Ly9hYmMK"
)

func names(ps []model.Proxy) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func TestResolve_SingleURIs(t *testing.T) {
	r := &Resolver{}
	res, err := r.Resolve(context.Background(), hkURI+"  "+jpURI)
	require.NoError(t, err)
	require.Equal(t, KindSingle, res.Kind)
	require.Equal(t, []string{"HK 01", "JP"}, names(res.Proxies))
}

func TestResolve_SingleMalformedURIKeepsItsError(t *testing.T) {
	r := &Resolver{}
	_, err := r.Resolve(context.Background(), "vmess://not-base64!!")
	app, ok := model.PayloadOf(err)
	require.True(t, ok)
	require.Equal(t, model.CodeMalformedURI, app.Code)
}

func TestResolve_Base64SubscriptionIsolatesBadLines(t *testing.T) {
	f := &fakeFetcher{
		docs: map[string]string{"https://sub.provider.net/a": b64Sub},
		meta: map[string]model.SubscriptionMetadata{"https://sub.provider.net/a": {Name: "机场 A", Total: 100}},
	}
	r := &Resolver{Fetcher: f}
	res, err := r.Resolve(context.Background(), "https://sub.provider.net/a")
	require.NoError(t, err)
	require.Equal(t, KindSubscription, res.Kind)
	require.Equal(t, []string{"HK 01", "JP"}, names(res.Proxies))
	require.Equal(t, "机场 A", res.Meta.Name)
	require.Equal(t, 1, res.Diagnostics.Counts[model.CodeMalformedURI])
	require.Equal(t, 1, res.Diagnostics.Counts[model.CodeUnsupportedProtocol])
	require.Equal(t, "MALFORMED_URI=1,UNSUPPORTED_PROTOCOL=1", res.Diagnostics.Summary())
}

func TestResolve_MultipleSubscriptionsKeepOrder(t *testing.T) {
	f := &fakeFetcher{docs: map[string]string{
		"https://a.net/s": jpURI + "\n",
		"https://b.net/s": hkURI + "\n",
	}}
	res, err := (&Resolver{Fetcher: f}).Resolve(context.Background(), "https://a.net/s|https://b.net/s")
	require.NoError(t, err)
	require.Equal(t, []string{"JP", "HK 01"}, names(res.Proxies))
}

func TestResolve_SubscriptionFetchFailureIsFatal(t *testing.T) {
	_, err := (&Resolver{Fetcher: &fakeFetcher{}}).Resolve(context.Background(), "https://missing.net/s")
	var fe *fetch.FetchError
	require.True(t, errors.As(err, &fe))
}

func TestResolve_EmptySubscription(t *testing.T) {
	f := &fakeFetcher{docs: map[string]string{"https://a.net/s": "bogus\nssr://abc\n"}}
	_, err := (&Resolver{Fetcher: f}).Resolve(context.Background(), "https://a.net/s")
	app, ok := model.PayloadOf(err)
	require.True(t, ok)
	require.Equal(t, model.CodeEmptySource, app.Code)
	require.Contains(t, app.Hint, "UNSUPPORTED_PROTOCOL=1")
}

func TestResolve_RejectsNonURL(t *testing.T) {
	_, err := (&Resolver{Fetcher: &fakeFetcher{}}).Resolve(context.Background(), "just some text")
	app, ok := model.PayloadOf(err)
	require.True(t, ok)
	require.Equal(t, model.CodeInvalidArgument, app.Code)
}

const tabularDoc = `mixed-port: 7890
proxies:
  - {name: "HK 01", type: trojan, server: hk.node.net, port: 443, password: p1, sni: hk.cdn.net, skip-cert-verify: true}
  - name: VL
    type: vless
    server: vl.node.net
    port: 443
    uuid: 2b7a2a0c-1b1c-4c44-9a3b-0d3c3f1e2a11
    network: ws
    ws-opts: {path: /ws, headers: {Host: cdn.net}}
    tls: true
    servername: cdn.net
    dialer-proxy: "HK 01"
  - {name: TU, type: tuic, server: tu.node.net, port: 443, uuid: 0c2e, password: x, congestion-controller: bbr}
  - {name: bad, type: vmess, server: "", port: 443, uuid: u}
rules:
  - MATCH,DIRECT
`

func TestParseDocument_Tabular(t *testing.T) {
	ps, rules, diag := ParseDocument("https://a.net/s", tabularDoc)
	require.Equal(t, []string{"HK 01", "VL", "TU"}, names(ps))
	require.Equal(t, 1, diag.Counts[model.CodeMalformedURI])
	require.Equal(t, 4, diag.Samples[0].Line)

	tr := ps[0].Options.(*model.TrojanOptions)
	require.True(t, tr.TLS.Enabled)
	require.Equal(t, "hk.cdn.net", tr.TLS.SNI)
	require.True(t, tr.TLS.SkipCertVerify)

	vl := ps[1].Options.(*model.VLESSOptions)
	require.Empty(t, ps[1].Upstream, "dialer-proxy is resolved by the chain stage")
	require.Equal(t, []model.ChainRule{{Target: "VL", Upstream: "HK 01", Node: dedupe.Key(ps[1])}}, rules)
	require.Equal(t, model.Transport{Network: "ws", Path: "/ws", Host: "cdn.net"}, vl.Transport)
	require.Equal(t, "tls", vl.Security())

	g := ps[2].Options.(*model.GenericOptions)
	require.Equal(t, "tuic", g.Kind)
	require.Equal(t, "bbr", g.Fields["congestion-controller"])
	require.NotContains(t, g.Fields, "name")
}

func TestParseDocument_RawListWithBOMAndComments(t *testing.T) {
	ps, rules, diag := ParseDocument("", "\uFEFF# comment\n"+hkURI+"\r\n\n"+jpURI)
	require.Equal(t, []string{"HK 01", "JP"}, names(ps))
	require.Empty(t, rules)
	require.Zero(t, diag.Total())
}

func TestParseDocument_Garbage(t *testing.T) {
	ps, _, diag := ParseDocument("u", "%%% not base64 %%%")
	require.Empty(t, ps)
	require.Equal(t, 1, diag.Counts[model.CodeMalformedURI])
}

func TestResolve_AggregationDocument(t *testing.T) {
	f := &fakeFetcher{docs: map[string]string{
		"https://lists.net/mine.txt": "# my nodes\n" +
			hkURI + "\n" +
			"https://sub.provider.net/a\n" +
			"trojan://p2@us.node.net:443#US Relayed|dialer-proxy:HK 01\n" +
			"bogus\n" +
			"https://gone.net/s\n",
		"https://sub.provider.net/a": b64Sub,
	}}
	r := &Resolver{Fetcher: f, Concurrency: 2}
	res, err := r.Resolve(context.Background(), "aggregate+https://lists.net/mine.txt")
	require.NoError(t, err)
	require.Equal(t, KindAggregation, res.Kind)
	require.Equal(t, []string{"HK 01", "HK 01", "JP", "US Relayed"}, names(res.Proxies))
	require.Equal(t, []model.ChainRule{{Target: "US Relayed", Upstream: "HK 01", Node: dedupe.Key(res.Proxies[3])}}, res.ChainRules)
	// bogus line, unreachable nested URL, and the nested document's two bad lines.
	require.Equal(t, 3, res.Diagnostics.Counts[model.CodeMalformedURI]+res.Diagnostics.Counts[model.CodeFetchFailed])
	require.Equal(t, 1, res.Diagnostics.Counts[model.CodeFetchFailed])
	require.Equal(t, 1, res.Diagnostics.Counts[model.CodeUnsupportedProtocol])
}

func TestResolve_AggregationMarker(t *testing.T) {
	f := &fakeFetcher{docs: map[string]string{"https://lists.net/x#aggregate": hkURI}}
	r := &Resolver{Fetcher: f, AggregationMarkers: []string{"#aggregate"}}
	res, err := r.Resolve(context.Background(), "https://lists.net/x#aggregate")
	require.NoError(t, err)
	require.Equal(t, KindAggregation, res.Kind)
}

func TestResolve_EmptyAggregationDocument(t *testing.T) {
	f := &fakeFetcher{docs: map[string]string{"https://lists.net/e": "\n  \n# only comments\n"}}
	_, err := (&Resolver{Fetcher: f}).Resolve(context.Background(), "aggregate+https://lists.net/e")
	app, ok := model.PayloadOf(err)
	require.True(t, ok)
	require.Equal(t, model.CodeEmptySource, app.Code)
}

func TestResolve_SelfReferencingAggregationTerminates(t *testing.T) {
	f := &fakeFetcher{docs: map[string]string{
		"https://lists.net/loop": hkURI + "\naggregate+https://lists.net/loop\n",
	}}
	r := &Resolver{Fetcher: f, MaxDepth: 2}
	res, err := r.Resolve(context.Background(), "aggregate+https://lists.net/loop")
	require.NoError(t, err)
	// depth 0, 1 and 2 each contribute the HK line.
	require.Len(t, res.Proxies, 3)
	require.Equal(t, 1, res.Diagnostics.Counts[model.CodeCycleDetected])
	require.EqualValues(t, 3, f.calls.Load())
}

func TestSplitDirective(t *testing.T) {
	cases := []struct{ in, uri, up string }{
		{"ss://x#a|dialer-proxy:B", "ss://x#a", "B"},
		{"ss://x#a | detour: Relay 1", "ss://x#a", "Relay 1"},
		{"ss://x#a|CHAIN:B", "ss://x#a", "B"},
		{"ss://x#a|b", "ss://x#a|b", ""},
		{"ss://x#a|chain:", "ss://x#a|chain:", ""},
	}
	for _, c := range cases {
		uri, up := splitDirective(c.in)
		require.Equal(t, c.uri, uri, c.in)
		require.Equal(t, c.up, up, c.in)
	}
}
