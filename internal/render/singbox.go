package render

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/muhammadmuzzammil1998/jsonc"
	"github.com/samber/lo"

	"github.com/John-Robertt/subforge/internal/model"
)

//go:embed singbox_base.jsonc
var defaultSingBoxBase []byte

const (
	tagSelect = "proxy"
	tagAuto   = "auto"
	tagDirect = "direct"
)

type NestedOptions struct {
	// AggregatedSource enables the low-rate group.
	AggregatedSource bool

	Rules []model.Rule

	// Base is an operator JSONC document replacing the built-in skeleton.
	// Its own outbounds are kept after the generated ones unless a tag
	// collides.
	Base     []byte
	BasePath string

	Meta     model.SubscriptionMetadata
	TestURL  string
	Interval int // seconds
}

type singTLS struct {
	Enabled    bool         `json:"enabled"`
	ServerName string       `json:"server_name,omitempty"`
	Insecure   bool         `json:"insecure,omitempty"`
	ALPN       []string     `json:"alpn,omitempty"`
	UTLS       *singUTLS    `json:"utls,omitempty"`
	Reality    *singReality `json:"reality,omitempty"`
}

type singUTLS struct {
	Enabled     bool   `json:"enabled"`
	Fingerprint string `json:"fingerprint"`
}

type singReality struct {
	Enabled   bool   `json:"enabled"`
	PublicKey string `json:"public_key"`
	ShortID   string `json:"short_id,omitempty"`
}

type singTransport struct {
	Type        string            `json:"type"`
	Path        string            `json:"path,omitempty"`
	Host        any               `json:"host,omitempty"` // []string for http, string for httpupgrade
	Headers     map[string]string `json:"headers,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
}

type singObfs struct {
	Type     string `json:"type"`
	Password string `json:"password,omitempty"`
}

type singOutbound struct {
	Type        string   `json:"type"`
	Tag         string   `json:"tag"`
	Server      string   `json:"server,omitempty"`
	ServerPort  int      `json:"server_port,omitempty"`
	ServerPorts []string `json:"server_ports,omitempty"`

	Method     string `json:"method,omitempty"`
	Password   string `json:"password,omitempty"`
	Plugin     string `json:"plugin,omitempty"`
	PluginOpts string `json:"plugin_opts,omitempty"`
	UUID       string `json:"uuid,omitempty"`
	Security   string `json:"security,omitempty"`
	AlterID    int    `json:"alter_id,omitempty"`
	Flow       string `json:"flow,omitempty"`
	Version    string `json:"version,omitempty"`
	Username   string `json:"username,omitempty"`

	Obfs      *singObfs      `json:"obfs,omitempty"`
	TLS       *singTLS       `json:"tls,omitempty"`
	Transport *singTransport `json:"transport,omitempty"`

	IdleSessionCheckInterval string `json:"idle_session_check_interval,omitempty"`
	IdleSessionTimeout       string `json:"idle_session_timeout,omitempty"`
	MinIdleSession           int    `json:"min_idle_session,omitempty"`

	// selector / urltest
	Outbounds []string `json:"outbounds,omitempty"`
	Default   string   `json:"default,omitempty"`
	URL       string   `json:"url,omitempty"`
	Interval  string   `json:"interval,omitempty"`
	Tolerance int      `json:"tolerance,omitempty"`

	Detour string `json:"detour,omitempty"`
}

// CompileNested renders the sing-box document. Generic proxies have no
// structural mapping and are skipped with a diagnostic.
func CompileNested(proxies []model.Proxy, opt NestedOptions) (Output, error) {
	var out Output

	doc, err := loadBase(opt)
	if err != nil {
		return Output{}, err
	}

	compiled := make([]model.Proxy, 0, len(proxies))
	for _, p := range proxies {
		if _, generic := p.Options.(*model.GenericOptions); generic {
			out.Diagnostics.AddPayload(skipped(fmt.Sprintf("sing-box 不支持的节点类型：%s", p.Type()), p.Name))
			continue
		}
		compiled = append(compiled, p)
	}
	known := lo.SliceToMap(compiled, func(p model.Proxy) (string, struct{}) { return p.Name, struct{}{} })

	groups := BuildGroups(compiled, GroupOptions{
		AggregatedSource: opt.AggregatedSource,
		TestURL:          opt.TestURL,
		Interval:         secondsToDuration(opt.Interval),
	})

	outbounds := make([]any, 0, len(groups)+len(compiled)+1)
	for _, g := range groups {
		outbounds = append(outbounds, singGroup(g))
	}
	for _, p := range compiled {
		outbounds = append(outbounds, singProxy(p, known))
	}
	outbounds = append(outbounds, singOutbound{Type: "direct", Tag: tagDirect})

	taken := map[string]struct{}{tagDirect: {}}
	for _, g := range groups {
		taken[singTag(g.Name)] = struct{}{}
	}
	for name := range known {
		taken[name] = struct{}{}
	}
	if baseOutbounds, ok := doc["outbounds"].([]any); ok {
		for _, ob := range baseOutbounds {
			m, ok := ob.(map[string]any)
			if !ok {
				continue
			}
			tag, _ := m["tag"].(string)
			if _, dup := taken[tag]; dup {
				continue
			}
			taken[tag] = struct{}{}
			outbounds = append(outbounds, m)
		}
	}
	doc["outbounds"] = outbounds

	final := tagDirect
	if len(groups) > 0 {
		final = tagSelect
	}
	route, _ := doc["route"].(map[string]any)
	if route == nil {
		route = map[string]any{}
	}
	route["rules"] = insertRouteRules(route["rules"], singRules(opt.Rules, final, &out.Diagnostics))
	route["final"] = final
	doc["route"] = route

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return Output{}, internalError("JSON 序列化失败", err)
	}
	out.Body = buf.Bytes()
	out.ContentType = "application/json; charset=utf-8"
	out.Headers = NestedHeaders(opt.Meta)
	return out, nil
}

func loadBase(opt NestedOptions) (map[string]any, error) {
	raw := opt.Base
	if len(raw) == 0 {
		raw = defaultSingBoxBase
	}
	var doc map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(raw), &doc); err != nil || doc == nil {
		return nil, &RenderError{
			AppError: model.AppError{
				Code:    model.CodeTemplate,
				Message: "sing-box 基础配置不是合法 JSONC 对象",
				Stage:   "render",
				URL:     opt.BasePath,
			},
			Cause: err,
		}
	}
	return doc, nil
}

// insertRouteRules places operator rules after the leading action rules
// (sniff, hijack-dns) so that sniffed domains are matched.
func insertRouteRules(existing any, custom []any) []any {
	base, _ := existing.([]any)
	i := 0
	for ; i < len(base); i++ {
		m, ok := base[i].(map[string]any)
		if !ok {
			break
		}
		action, _ := m["action"].(string)
		if action != "sniff" && action != "hijack-dns" {
			break
		}
	}
	out := make([]any, 0, len(base)+len(custom))
	out = append(out, base[:i]...)
	out = append(out, custom...)
	return append(out, base[i:]...)
}

func singRules(custom []model.Rule, proxyTag string, diag *model.Diagnostics) []any {
	allowed := supportedRuleTypes(TargetSingBox)
	out := make([]any, 0, len(custom))
	for _, r := range custom {
		if _, ok := allowed[r.Type]; !ok {
			diag.AddPayload(skipped("sing-box 不支持的规则类型", r.Type+","+r.Value))
			continue
		}
		key := map[string]string{
			"DOMAIN":         "domain",
			"DOMAIN-SUFFIX":  "domain_suffix",
			"DOMAIN-KEYWORD": "domain_keyword",
			"IP-CIDR":        "ip_cidr",
			"IP-CIDR6":       "ip_cidr",
			"PROCESS-NAME":   "process_name",
		}[r.Type]
		rule := map[string]any{key: []string{r.Value}}
		switch r.Action {
		case model.ActionReject:
			rule["action"] = "reject"
		case model.ActionDirect:
			rule["outbound"] = tagDirect
		default:
			rule["outbound"] = proxyTag
		}
		out = append(out, rule)
	}
	return out
}

// singTag maps the generated group names onto the fixed sing-box tags.
func singTag(name string) string {
	switch name {
	case model.GroupNameSelect:
		return tagSelect
	case model.GroupNameAuto:
		return tagAuto
	case model.TargetDirect:
		return tagDirect
	default:
		return name
	}
}

func singGroup(g model.Group) singOutbound {
	ob := singOutbound{
		Tag:       singTag(g.Name),
		Outbounds: lo.Map(g.Members, func(m string, _ int) string { return singTag(m) }),
	}
	if g.Type == model.GroupURLTest {
		ob.Type = "urltest"
		ob.URL = g.TestURL
		ob.Interval = g.Interval.String()
		ob.Tolerance = g.Tolerance
		return ob
	}
	ob.Type = "selector"
	ob.Default = tagAuto
	return ob
}

func singProxy(p model.Proxy, known map[string]struct{}) singOutbound {
	ob := singOutbound{Tag: p.Name, Server: p.Server, ServerPort: p.Port}
	switch o := p.Options.(type) {
	case *model.SSOptions:
		ob.Type = "shadowsocks"
		ob.Method = o.Cipher
		ob.Password = o.Password
		if o.Plugin != "" {
			ob.Plugin = o.Plugin
			if ob.Plugin == "simple-obfs" {
				ob.Plugin = "obfs-local"
			}
			ob.PluginOpts = strings.Join(lo.Map(o.PluginOpts, func(kv model.KV, _ int) string {
				return kv.Key + "=" + kv.Value
			}), ";")
		}
	case *model.VMessOptions:
		ob.Type = "vmess"
		ob.UUID = o.UUID
		ob.Security = o.Cipher
		ob.AlterID = o.AlterID
		ob.TLS = singTLSOf(o.TLS)
		ob.Transport = singTransportOf(o.Transport)
	case *model.TrojanOptions:
		ob.Type = "trojan"
		ob.Password = o.Password
		ob.TLS = singTLSOf(o.TLS)
		ob.Transport = singTransportOf(o.Transport)
	case *model.VLESSOptions:
		ob.Type = "vless"
		ob.UUID = o.UUID
		ob.Flow = o.Flow
		ob.TLS = singTLSOf(o.TLS)
		ob.Transport = singTransportOf(o.Transport)
	case *model.Hysteria2Options:
		ob.Type = "hysteria2"
		ob.Password = o.Password
		ob.ServerPorts = serverPorts(o.Ports)
		if o.Obfs != "" {
			ob.Obfs = &singObfs{Type: o.Obfs, Password: o.ObfsPassword}
		}
		ob.TLS = singTLSOf(o.TLS)
	case *model.AnyTLSOptions:
		ob.Type = "anytls"
		ob.Password = o.Password
		ob.TLS = singTLSOf(o.TLS)
		if n, ok := seconds(o.IdleSessionCheckInterval); ok {
			ob.IdleSessionCheckInterval = fmt.Sprintf("%ds", n)
		}
		if n, ok := seconds(o.IdleSessionTimeout); ok {
			ob.IdleSessionTimeout = fmt.Sprintf("%ds", n)
		}
		ob.MinIdleSession, _ = seconds(o.MinIdleSession)
	case *model.SOCKS5Options:
		ob.Type = "socks"
		ob.Version = "5"
		ob.Username = o.Username
		ob.Password = o.Password
	}
	if _, ok := known[p.Upstream]; ok && p.Upstream != p.Name {
		ob.Detour = p.Upstream
	}
	return ob
}

func singTLSOf(t model.TLS) *singTLS {
	if !t.Enabled {
		return nil
	}
	out := &singTLS{
		Enabled:    true,
		ServerName: t.SNI,
		Insecure:   t.SkipCertVerify,
		ALPN:       t.ALPN,
	}
	if t.Fingerprint != "" {
		out.UTLS = &singUTLS{Enabled: true, Fingerprint: t.Fingerprint}
	}
	if t.Reality != nil {
		out.Reality = &singReality{Enabled: true, PublicKey: t.Reality.PublicKey, ShortID: t.Reality.ShortID}
		if out.UTLS == nil {
			// sing-box refuses reality without uTLS.
			out.UTLS = &singUTLS{Enabled: true, Fingerprint: "chrome"}
		}
	}
	return out
}

func singTransportOf(t model.Transport) *singTransport {
	switch t.Network {
	case "ws":
		tr := &singTransport{Type: "ws", Path: t.Path}
		if t.Host != "" {
			tr.Headers = map[string]string{"Host": t.Host}
		}
		return tr
	case "httpupgrade":
		tr := &singTransport{Type: "httpupgrade", Path: t.Path}
		if t.Host != "" {
			tr.Host = t.Host
		}
		return tr
	case "h2", "http":
		tr := &singTransport{Type: "http", Path: t.Path}
		if t.Host != "" {
			tr.Host = []string{t.Host}
		}
		return tr
	case "grpc":
		return &singTransport{Type: "grpc", ServiceName: t.ServiceName}
	default:
		return nil
	}
}

// serverPorts converts "20000-30000,443" into sing-box ranges.
func serverPorts(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		if !strings.Contains(part, "-") {
			part = part + ":" + part
		}
		out = append(out, strings.Replace(part, "-", ":", 1))
	}
	return out
}
