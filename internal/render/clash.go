package render

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/template"
)

type TabularOptions struct {
	// AggregatedSource enables the low-rate group. It is a policy input: the
	// caller decides which sources count as multi-provider bundles.
	AggregatedSource bool

	// Rules are operator rules inserted before the skeleton rules.
	Rules []model.Rule

	// Template, when set, replaces the built-in skeleton. It must carry the
	// #@PROXIES@#, #@GROUPS@# and #@RULES@# anchors.
	Template     string
	TemplatePath string

	Meta     model.SubscriptionMetadata
	TestURL  string
	Interval int // seconds; 0 means the default
}

func (o TabularOptions) groupOptions() GroupOptions {
	return GroupOptions{
		AggregatedSource: o.AggregatedSource,
		TestURL:          o.TestURL,
		Interval:         secondsToDuration(o.Interval),
	}
}

const ruleProviderBase = "https://testingcf.jsdelivr.net/gh/MetaCubeX/meta-rules-dat@meta/geo/"

// clashRuleProviders feed the fixed tail of the rule list.
var clashRuleProviders = []struct {
	Name     string
	Behavior string
	Path     string
	Action   string // "PROXY" resolves to the main selector
	Suffix   string
}{
	{"private", "domain", "geosite/private.mrs", model.ActionDirect, ""},
	{"ads", "domain", "geosite/category-ads-all.mrs", model.ActionReject, ""},
	{"proxy_domain", "domain", "geosite/geolocation-!cn.mrs", model.ActionProxy, ""},
	{"cn_domain", "domain", "geosite/cn.mrs", model.ActionDirect, ""},
	{"telegram_ip", "ipcidr", "geoip/telegram.mrs", model.ActionProxy, ",no-resolve"},
	{"cn_ip", "ipcidr", "geoip/cn.mrs", model.ActionDirect, ",no-resolve"},
}

// CompileTabular renders the Clash (mihomo) document. Generic proxies from
// tabular sources are emitted with their original fields.
func CompileTabular(proxies []model.Proxy, opt TabularOptions) (Output, error) {
	var out Output
	known := lo.SliceToMap(proxies, func(p model.Proxy) (string, struct{}) { return p.Name, struct{}{} })

	proxyNodes := make([]ordered, 0, len(proxies))
	for _, p := range proxies {
		proxyNodes = append(proxyNodes, clashProxy(p, known))
	}

	groups := BuildGroups(proxies, opt.groupOptions())
	groupNodes := lo.Map(groups, func(g model.Group, _ int) ordered { return clashGroup(g) })

	proxyTarget := model.TargetDirect
	if len(groups) > 0 {
		proxyTarget = model.GroupNameSelect
	}
	rules := clashRules(opt.Rules, proxyTarget, &out.Diagnostics)

	var (
		body []byte
		err  error
	)
	if opt.Template != "" {
		body, err = injectTemplate(opt, proxyNodes, groupNodes, rules)
	} else {
		body, err = marshalYAML(clashSkeleton(proxyNodes, groupNodes, rules))
	}
	if err != nil {
		return Output{}, err
	}

	out.Body = body
	out.ContentType = "text/yaml; charset=utf-8"
	out.Headers = TabularHeaders(opt.Meta)
	return out, nil
}

func injectTemplate(opt TabularOptions, proxies, groups []ordered, rules []string) ([]byte, error) {
	var blocks template.Blocks
	for _, b := range []struct {
		dst *string
		v   any
	}{
		{&blocks.Proxies, proxies},
		{&blocks.Groups, groups},
		{&blocks.Rules, rules},
	} {
		raw, err := marshalYAML(b.v)
		if err != nil {
			return nil, internalError("YAML 序列化失败", err)
		}
		*b.dst = string(raw)
	}

	doc, err := template.InjectAnchors(opt.Template, blocks, opt.TemplatePath)
	if err != nil {
		return nil, err
	}
	if err := template.Validate(doc, opt.TemplatePath); err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func clashSkeleton(proxies, groups []ordered, rules []string) ordered {
	var providers ordered
	for _, rp := range clashRuleProviders {
		providers.always(rp.Name, ordered{
			{"type", "http"},
			{"behavior", rp.Behavior},
			{"format", "mrs"},
			{"url", ruleProviderBase + rp.Path},
			{"interval", 86400},
		})
	}

	return ordered{
		{"mixed-port", 7890},
		{"allow-lan", false},
		{"mode", "rule"},
		{"log-level", "info"},
		{"ipv6", false},
		{"unified-delay", true},
		{"tcp-concurrent", true},
		{"external-controller", "127.0.0.1:9090"},
		{"profile", ordered{{"store-selected", true}, {"store-fake-ip", true}}},
		{"dns", ordered{
			{"enable", true},
			{"listen", "0.0.0.0:1053"},
			{"ipv6", false},
			{"enhanced-mode", "fake-ip"},
			{"fake-ip-range", "198.18.0.1/16"},
			{"fake-ip-filter", []string{"*.lan", "*.local", "+.msftconnecttest.com", "+.msftncsi.com", "time.*.com", "ntp.*.com"}},
			{"default-nameserver", []string{"223.5.5.5", "119.29.29.29"}},
			{"nameserver", []string{"https://dns.alidns.com/dns-query", "https://doh.pub/dns-query"}},
			{"proxy-server-nameserver", []string{"https://dns.alidns.com/dns-query"}},
		}},
		{"sniffer", ordered{
			{"enable", true},
			{"sniff", ordered{
				{"HTTP", ordered{{"ports", []any{80, "8080-8880"}}, {"override-destination", true}}},
				{"TLS", ordered{{"ports", []int{443, 8443}}}},
				{"QUIC", ordered{{"ports", []int{443, 8443}}}},
			}},
		}},
		{"proxies", proxies},
		{"proxy-groups", groups},
		{"rule-providers", providers},
		{"rules", rules},
	}
}

func clashRules(custom []model.Rule, proxyTarget string, diag *model.Diagnostics) []string {
	allowed := supportedRuleTypes(TargetClash)
	action := func(a string) string {
		if a == model.ActionProxy {
			return proxyTarget
		}
		return a
	}

	out := make([]string, 0, len(custom)+len(clashRuleProviders)+1)
	for _, r := range custom {
		if _, ok := allowed[r.Type]; !ok {
			diag.AddPayload(skipped("clash 不支持的规则类型", r.Type+","+r.Value))
			continue
		}
		line := r.Type + "," + r.Value + "," + action(r.Action)
		if r.NoResolve {
			line += ",no-resolve"
		}
		out = append(out, line)
	}
	for _, rp := range clashRuleProviders {
		out = append(out, "RULE-SET,"+rp.Name+","+action(rp.Action)+rp.Suffix)
	}
	return append(out, "MATCH,"+proxyTarget)
}

func clashGroup(g model.Group) ordered {
	o := ordered{
		{"name", g.Name},
		{"type", g.Type},
		{"proxies", g.Members},
	}
	if g.Type == model.GroupURLTest {
		o.set("url", g.TestURL)
		o.set("interval", int(g.Interval.Seconds()))
		o.set("tolerance", g.Tolerance)
	}
	return o
}

func clashProxy(p model.Proxy, known map[string]struct{}) ordered {
	o := ordered{
		{"name", p.Name},
		{"type", p.Type()},
		{"server", p.Server},
		{"port", p.Port},
	}

	switch opt := p.Options.(type) {
	case *model.SSOptions:
		o.always("cipher", opt.Cipher)
		o.always("password", opt.Password)
		o.always("udp", true)
		if opt.Plugin != "" {
			name, opts := clashSSPlugin(opt)
			o.set("plugin", name)
			o.set("plugin-opts", opts)
		}
	case *model.VMessOptions:
		o.always("uuid", opt.UUID)
		o.always("alterId", opt.AlterID)
		o.always("cipher", opt.Cipher)
		o.always("udp", true)
		clashTLS(&o, opt.TLS, "servername")
		clashTransport(&o, opt.Transport)
	case *model.TrojanOptions:
		o.always("password", opt.Password)
		o.always("udp", true)
		clashTLS(&o, opt.TLS, "sni")
		clashTransport(&o, opt.Transport)
	case *model.VLESSOptions:
		o.always("uuid", opt.UUID)
		o.set("flow", opt.Flow)
		o.always("udp", true)
		clashTLS(&o, opt.TLS, "servername")
		clashTransport(&o, opt.Transport)
	case *model.Hysteria2Options:
		o.always("password", opt.Password)
		o.set("ports", opt.Ports)
		o.set("obfs", opt.Obfs)
		o.set("obfs-password", opt.ObfsPassword)
		clashTLS(&o, opt.TLS, "sni")
	case *model.AnyTLSOptions:
		o.always("password", opt.Password)
		o.always("udp", true)
		clashTLS(&o, opt.TLS, "sni")
		if n, ok := seconds(opt.IdleSessionCheckInterval); ok {
			o.always("idle-session-check-interval", n)
		}
		if n, ok := seconds(opt.IdleSessionTimeout); ok {
			o.always("idle-session-timeout", n)
		}
		if n, err := strconv.Atoi(opt.MinIdleSession); err == nil {
			o.always("min-idle-session", n)
		}
	case *model.SOCKS5Options:
		o.set("username", opt.Username)
		o.set("password", opt.Password)
		o.always("udp", true)
	case *model.GenericOptions:
		keys := lo.Keys(opt.Fields)
		sort.Strings(keys)
		for _, k := range keys {
			if k == "dialer-proxy" {
				continue
			}
			o.always(k, opt.Fields[k])
		}
	}

	if _, ok := known[p.Upstream]; ok && p.Upstream != p.Name {
		o.always("dialer-proxy", p.Upstream)
	}
	return o
}

// clashTLS writes the TLS block. Trojan-like protocols are always TLS and
// carry no "tls" key.
func clashTLS(o *ordered, t model.TLS, sniKey string) {
	switch o.typ() {
	case "vmess", "vless":
		if !t.Enabled {
			return
		}
		o.always("tls", true)
	}
	o.set(sniKey, t.SNI)
	o.set("skip-cert-verify", t.SkipCertVerify)
	o.set("client-fingerprint", t.Fingerprint)
	o.set("alpn", t.ALPN)
	if t.Reality != nil {
		ro := ordered{{"public-key", t.Reality.PublicKey}}
		ro.set("short-id", t.Reality.ShortID)
		o.always("reality-opts", ro)
	}
}

func clashTransport(o *ordered, t model.Transport) {
	switch t.Network {
	case "", "tcp":
		return
	case "ws", "httpupgrade":
		o.always("network", "ws")
		ws := ordered{}
		ws.set("path", t.Path)
		if t.Host != "" {
			ws.always("headers", ordered{{"Host", t.Host}})
		}
		if t.Network == "httpupgrade" {
			ws.always("v2ray-http-upgrade", true)
		}
		o.set("ws-opts", ws)
	case "grpc":
		o.always("network", "grpc")
		o.always("grpc-opts", ordered{{"grpc-service-name", t.ServiceName}})
	case "h2":
		o.always("network", "h2")
		h2 := ordered{}
		if t.Host != "" {
			h2.always("host", []string{t.Host})
		}
		h2.set("path", t.Path)
		o.set("h2-opts", h2)
	case "http":
		o.always("network", "http")
		h := ordered{}
		if t.Path != "" {
			h.always("path", []string{t.Path})
		}
		if t.Host != "" {
			h.always("headers", ordered{{"Host", []string{t.Host}}})
		}
		o.set("http-opts", h)
	default:
		o.always("network", t.Network)
	}
}

// clashSSPlugin maps SIP002 plugin names onto mihomo's.
func clashSSPlugin(opt *model.SSOptions) (string, ordered) {
	get := func(k string) string {
		for _, kv := range opt.PluginOpts {
			if kv.Key == k {
				return kv.Value
			}
		}
		return ""
	}
	switch opt.Plugin {
	case "obfs-local", "simple-obfs", "obfs":
		po := ordered{{"mode", get("obfs")}}
		po.set("host", get("obfs-host"))
		return "obfs", po
	case "v2ray-plugin":
		mode := get("mode")
		if mode == "" {
			mode = "websocket"
		}
		po := ordered{{"mode", mode}}
		po.set("host", get("host"))
		po.set("path", get("path"))
		po.set("tls", get("tls") == "true")
		return "v2ray-plugin", po
	default:
		po := ordered{}
		for _, kv := range opt.PluginOpts {
			po.always(kv.Key, kv.Value)
		}
		return opt.Plugin, po
	}
}

func (o ordered) typ() string {
	for _, f := range o {
		if f.Key == "type" {
			return fmt.Sprint(f.Value)
		}
	}
	return ""
}

// seconds accepts "30" or "30s".
func seconds(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "s"))
	return n, err == nil
}
