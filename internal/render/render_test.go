package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/subforge/internal/model"
)

func sampleProxies() []model.Proxy {
	return []model.Proxy{
		{
			Name: "🇭🇰 香港 01", Server: "hk.node.net", Port: 8388,
			Options: &model.SSOptions{
				Cipher: "aes-128-gcm", Password: "123", Plugin: "obfs-local",
				PluginOpts: []model.KV{{Key: "obfs", Value: "http"}, {Key: "obfs-host", Value: "cdn.net"}},
			},
		},
		{
			Name: "🇯🇵 JP 东京 01 [0.5x]", Server: "jp.node.net", Port: 443, Upstream: "🇭🇰 香港 01",
			Options: &model.TrojanOptions{
				Password:  "p",
				Transport: model.Transport{Network: "ws", Path: "/ws", Host: "cdn.net"},
				TLS:       model.TLS{Enabled: true, SNI: "cdn.net"},
			},
		},
		{
			Name: "US Reality", Server: "us.node.net", Port: 443, Upstream: "gone",
			Options: &model.VLESSOptions{
				UUID: "u", Flow: "xtls-rprx-vision",
				TLS: model.TLS{Enabled: true, SNI: "www.apple.com", Reality: &model.Reality{PublicKey: "pk", ShortID: "ab"}},
			},
		},
	}
}

type clashDoc struct {
	Proxies []map[string]any `yaml:"proxies"`
	Groups  []struct {
		Name     string   `yaml:"name"`
		Type     string   `yaml:"type"`
		Proxies  []string `yaml:"proxies"`
		URL      string   `yaml:"url"`
		Interval int      `yaml:"interval"`
	} `yaml:"proxy-groups"`
	Providers map[string]any `yaml:"rule-providers"`
	Rules     []string       `yaml:"rules"`
}

func decodeClash(t *testing.T, body []byte) clashDoc {
	t.Helper()
	var doc clashDoc
	require.NoError(t, yaml.Unmarshal(body, &doc), string(body))
	return doc
}

func groupNames(doc clashDoc) []string {
	out := make([]string, 0, len(doc.Groups))
	for _, g := range doc.Groups {
		out = append(out, g.Name)
	}
	return out
}

func TestCompileTabular_Document(t *testing.T) {
	out, err := CompileTabular(sampleProxies(), TabularOptions{
		Rules: []model.Rule{
			{Type: "DOMAIN-SUFFIX", Value: "openai.com", Action: model.ActionProxy},
			{Type: "GEOIP", Value: "CN", Action: model.ActionDirect},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "text/yaml; charset=utf-8", out.ContentType)
	require.Zero(t, out.Diagnostics.Total())

	doc := decodeClash(t, out.Body)
	require.Len(t, doc.Proxies, 3)

	ss := doc.Proxies[0]
	require.Equal(t, "ss", ss["type"])
	require.Equal(t, "123", ss["password"])
	require.Equal(t, "obfs", ss["plugin"])
	require.Equal(t, map[string]any{"mode": "http", "host": "cdn.net"}, ss["plugin-opts"])

	trojan := doc.Proxies[1]
	require.Equal(t, "🇭🇰 香港 01", trojan["dialer-proxy"])
	require.Equal(t, "cdn.net", trojan["sni"])
	require.Equal(t, "ws", trojan["network"])
	require.Equal(t, "/ws", trojan["ws-opts"].(map[string]any)["path"])
	require.NotContains(t, trojan, "tls")

	vless := doc.Proxies[2]
	require.NotContains(t, vless, "dialer-proxy")
	require.Equal(t, true, vless["tls"])
	require.Equal(t, "www.apple.com", vless["servername"])
	require.Equal(t, map[string]any{"public-key": "pk", "short-id": "ab"}, vless["reality-opts"])

	require.Equal(t, []string{
		model.GroupNameSelect, model.GroupNameAuto, "🇭🇰 香港节点", "🇯🇵 日本节点", "🇺🇸 美国节点",
	}, groupNames(doc))
	require.Equal(t, []string{
		model.GroupNameAuto, "DIRECT", "🇭🇰 香港节点", "🇯🇵 日本节点", "🇺🇸 美国节点",
		"🇭🇰 香港 01", "🇯🇵 JP 东京 01 [0.5x]", "US Reality",
	}, doc.Groups[0].Proxies)
	require.Equal(t, "url-test", doc.Groups[1].Type)
	require.Equal(t, DefaultTestURL, doc.Groups[1].URL)
	require.Equal(t, 300, doc.Groups[1].Interval)

	require.Equal(t, "DOMAIN-SUFFIX,openai.com,"+model.GroupNameSelect, doc.Rules[0])
	require.Equal(t, "GEOIP,CN,DIRECT", doc.Rules[1])
	require.Contains(t, doc.Rules, "RULE-SET,cn_ip,DIRECT,no-resolve")
	require.Equal(t, "MATCH,"+model.GroupNameSelect, doc.Rules[len(doc.Rules)-1])
	require.Len(t, doc.Providers, len(clashRuleProviders))
}

func TestCompileTabular_LowRateGroupOnlyForAggregatedSources(t *testing.T) {
	proxies := []model.Proxy{
		{Name: "HK 0.5x", Server: "a.node.net", Port: 1080, Options: &model.SOCKS5Options{}},
		{Name: "HK 2x", Server: "b.node.net", Port: 1080, Options: &model.SOCKS5Options{}},
		{Name: "US", Server: "c.node.net", Port: 1080, Options: &model.SOCKS5Options{}},
	}

	out, err := CompileTabular(proxies, TabularOptions{})
	require.NoError(t, err)
	require.NotContains(t, groupNames(decodeClash(t, out.Body)), model.GroupNameLowRate)

	out, err = CompileTabular(proxies, TabularOptions{AggregatedSource: true})
	require.NoError(t, err)
	doc := decodeClash(t, out.Body)
	last := doc.Groups[len(doc.Groups)-1]
	require.Equal(t, model.GroupNameLowRate, last.Name)
	require.Equal(t, []string{"HK 0.5x"}, last.Proxies)
	require.Contains(t, doc.Groups[0].Proxies, model.GroupNameLowRate)
}

func TestCompileTabular_EmptyProxyList(t *testing.T) {
	out, err := CompileTabular(nil, TabularOptions{})
	require.NoError(t, err)
	doc := decodeClash(t, out.Body)
	require.Empty(t, doc.Proxies)
	require.Empty(t, doc.Groups)
	require.Equal(t, "MATCH,DIRECT", doc.Rules[len(doc.Rules)-1])
	require.Contains(t, doc.Rules, "RULE-SET,proxy_domain,DIRECT")
}

func TestCompileTabular_GenericVerbatim(t *testing.T) {
	out, err := CompileTabular([]model.Proxy{{
		Name: "tuic-1", Server: "t.node.net", Port: 443,
		Options: &model.GenericOptions{Kind: "tuic", Fields: map[string]any{
			"uuid": "x", "password": "y", "congestion-controller": "bbr",
		}},
	}}, TabularOptions{})
	require.NoError(t, err)
	p := decodeClash(t, out.Body).Proxies[0]
	require.Equal(t, "tuic", p["type"])
	require.Equal(t, "bbr", p["congestion-controller"])
	require.Equal(t, "x", p["uuid"])
}

func TestCompileTabular_Template(t *testing.T) {
	tmpl := "mixed-port: 1\nproxies:\n  #@PROXIES@#\nproxy-groups:\n  #@GROUPS@#\nrules:\n  #@RULES@#\n"
	out, err := CompileTabular(sampleProxies(), TabularOptions{Template: tmpl, TemplatePath: "t.yaml"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(out.Body), "mixed-port: 1\n"))
	doc := decodeClash(t, out.Body)
	require.Len(t, doc.Proxies, 3)
	require.Len(t, doc.Groups, 5)
	require.Empty(t, doc.Providers)

	_, err = CompileTabular(sampleProxies(), TabularOptions{Template: "proxies:\n  #@PROXIES@#\n", TemplatePath: "t.yaml"})
	require.Error(t, err)
	app, ok := model.PayloadOf(err)
	require.True(t, ok)
	require.Equal(t, model.CodeTemplate, app.Code)
}

func TestTabularHeaders(t *testing.T) {
	h := TabularHeaders(model.SubscriptionMetadata{
		Name: "机场 A", Upload: 1, Download: 2, Total: 3, Expire: 1700000000, Homepage: "https://p.net",
	})
	require.Equal(t, "upload=1; download=2; total=3; expire=1700000000", h.Get("Subscription-Userinfo"))
	require.Equal(t, "base64:5py65Zy6IEE=", h.Get("Profile-Title"))
	require.Equal(t, "attachment; filename*=UTF-8''%E6%9C%BA%E5%9C%BA%20A.yaml", h.Get("Content-Disposition"))
	require.Equal(t, "Tue, 14 Nov 2023 22:13:20 GMT", h.Get("Expires"))
	require.Equal(t, "24", h.Get("Profile-Update-Interval"))
	require.Equal(t, "https://p.net", h.Get("Profile-Web-Page-Url"))

	h = TabularHeaders(model.SubscriptionMetadata{UpdateIntervalHours: 6})
	require.Empty(t, h.Get("Subscription-Userinfo"))
	require.Empty(t, h.Get("Expires"))
	require.Equal(t, "6", h.Get("Profile-Update-Interval"))
	require.Equal(t, "attachment; filename*=UTF-8''subforge.yaml", h.Get("Content-Disposition"))

	require.Equal(t, "attachment; filename*=UTF-8''subforge.json", NestedHeaders(model.SubscriptionMetadata{}).Get("Content-Disposition"))
}

type singDoc struct {
	Log       map[string]any   `json:"log"`
	Outbounds []map[string]any `json:"outbounds"`
	Route     struct {
		Rules []map[string]any `json:"rules"`
		Final string           `json:"final"`
	} `json:"route"`
}

func decodeSing(t *testing.T, body []byte) singDoc {
	t.Helper()
	var doc singDoc
	require.NoError(t, json.Unmarshal(body, &doc), string(body))
	return doc
}

func tags(doc singDoc) []string {
	out := make([]string, 0, len(doc.Outbounds))
	for _, ob := range doc.Outbounds {
		out = append(out, ob["tag"].(string))
	}
	return out
}

func TestCompileNested_Document(t *testing.T) {
	proxies := append(sampleProxies(), model.Proxy{
		Name: "tuic-1", Server: "t.node.net", Port: 443,
		Options: &model.GenericOptions{Kind: "tuic", Fields: map[string]any{"uuid": "x"}},
	})
	out, err := CompileNested(proxies, NestedOptions{
		Rules: []model.Rule{
			{Type: "DOMAIN-SUFFIX", Value: "openai.com", Action: model.ActionProxy},
			{Type: "GEOIP", Value: "CN", Action: model.ActionDirect},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "application/json; charset=utf-8", out.ContentType)
	require.Equal(t, 2, out.Diagnostics.Counts[model.CodeUnsupportedProtocol])

	doc := decodeSing(t, out.Body)
	require.Equal(t, []string{
		"proxy", "auto", "🇭🇰 香港节点", "🇯🇵 日本节点", "🇺🇸 美国节点",
		"🇭🇰 香港 01", "🇯🇵 JP 东京 01 [0.5x]", "US Reality", "direct",
	}, tags(doc))

	sel := doc.Outbounds[0]
	require.Equal(t, "selector", sel["type"])
	require.Equal(t, "auto", sel["default"])
	require.Equal(t, []any{"auto", "direct"}, sel["outbounds"].([]any)[:2])
	require.Equal(t, "urltest", doc.Outbounds[1]["type"])
	require.Equal(t, "5m0s", doc.Outbounds[1]["interval"])

	ss := doc.Outbounds[5]
	require.Equal(t, "shadowsocks", ss["type"])
	require.Equal(t, "obfs-local", ss["plugin"])
	require.Equal(t, "obfs=http;obfs-host=cdn.net", ss["plugin_opts"])

	trojan := doc.Outbounds[6]
	require.Equal(t, "🇭🇰 香港 01", trojan["detour"])
	require.Equal(t, "ws", trojan["transport"].(map[string]any)["type"])

	vless := doc.Outbounds[7]
	require.NotContains(t, vless, "detour")
	tls := vless["tls"].(map[string]any)
	require.Equal(t, "pk", tls["reality"].(map[string]any)["public_key"])
	require.Equal(t, "chrome", tls["utls"].(map[string]any)["fingerprint"])

	require.Equal(t, "proxy", doc.Route.Final)
	require.Equal(t, "sniff", doc.Route.Rules[0]["action"])
	require.Equal(t, "hijack-dns", doc.Route.Rules[1]["action"])
	require.Equal(t, []any{"openai.com"}, doc.Route.Rules[2]["domain_suffix"])
	require.Equal(t, "proxy", doc.Route.Rules[2]["outbound"])
	require.Len(t, doc.Route.Rules, 5)
}

func TestCompileNested_Empty(t *testing.T) {
	out, err := CompileNested(nil, NestedOptions{})
	require.NoError(t, err)
	doc := decodeSing(t, out.Body)
	require.Equal(t, []string{"direct"}, tags(doc))
	require.Equal(t, "direct", doc.Route.Final)
}

func TestCompileNested_CustomBase(t *testing.T) {
	base := []byte(`{
  // operator skeleton
  "log": {"level": "warn"},
  "outbounds": [
    {"type": "direct", "tag": "direct"},
    {"type": "block", "tag": "my-block"}
  ],
  /* no route rules */
  "route": {"rules": []}
}`)
	out, err := CompileNested(sampleProxies()[:1], NestedOptions{
		Base:  base,
		Rules: []model.Rule{{Type: "DOMAIN", Value: "ads.net", Action: model.ActionReject}},
	})
	require.NoError(t, err)
	doc := decodeSing(t, out.Body)
	require.Equal(t, "warn", doc.Log["level"])
	require.Equal(t, []string{"proxy", "auto", "🇭🇰 香港节点", "🇭🇰 香港 01", "direct", "my-block"}, tags(doc))
	require.Equal(t, []map[string]any{{"domain": []any{"ads.net"}, "action": "reject"}}, doc.Route.Rules)

	_, err = CompileNested(nil, NestedOptions{Base: []byte(`[1, 2`), BasePath: "base.jsonc"})
	app, ok := model.PayloadOf(err)
	require.True(t, ok)
	require.Equal(t, model.CodeTemplate, app.Code)
	require.Equal(t, "base.jsonc", app.URL)
}

func TestServerPorts(t *testing.T) {
	require.Equal(t, []string{"20000:30000", "443:443"}, serverPorts("20000-30000, 443"))
	require.Nil(t, serverPorts(""))
}

func TestParseTarget(t *testing.T) {
	for in, want := range map[string]Target{
		"":         TargetAuto,
		"Clash":    TargetClash,
		"mihomo":   TargetClash,
		"sing-box": TargetSingBox,
		"preview":  TargetPreview,
	} {
		got, err := ParseTarget(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseTarget("surge")
	app, ok := model.PayloadOf(err)
	require.True(t, ok)
	require.Equal(t, model.CodeInvalidArgument, app.Code)
}

func TestRenderPreview_EscapesNames(t *testing.T) {
	proxies := []model.Proxy{{Name: "<script>x</script>", Server: "a.node.net", Port: 1080, Options: &model.SOCKS5Options{}}}
	tab, err := CompileTabular(proxies, TabularOptions{})
	require.NoError(t, err)
	nested, err := CompileNested(proxies, NestedOptions{})
	require.NoError(t, err)

	var diag model.Diagnostics
	diag.AddPayload(model.AppError{Code: model.CodeMalformedURI, Message: "bad", Stage: "parse_uri"})
	page, err := RenderPreview(tab, nested, 1, model.SubscriptionMetadata{Name: "Demo"}, diag)
	require.NoError(t, err)
	html := string(page)
	require.NotContains(t, html, "<script>")
	require.Contains(t, html, "&lt;script&gt;")
	require.Contains(t, html, "<title>Demo · subforge</title>")
	require.Contains(t, html, "MALFORMED_URI=1")
	require.Equal(t, 1, diag.Total())
}
