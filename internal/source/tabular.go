package source

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/sub"
	"github.com/John-Robertt/subforge/internal/sub/hysteria2"
)

// tabularDocument only reads the proxy list; every other top-level key of a
// provider config is ignored.
type tabularDocument struct {
	Proxies []map[string]any `yaml:"proxies"`
}

// looksTabular reports whether body carries a top-level "proxies:" key.
func looksTabular(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimRight(line, "\r \t"), "proxies:") {
			return true
		}
	}
	return false
}

// parseTabular maps every proxy entry. A dialer-proxy field does not set
// the upstream directly; it becomes a rule bound to that entry so the chain
// resolver can still reject loops.
func parseTabular(url, body string) ([]model.Proxy, []model.ChainRule, model.Diagnostics) {
	var diag model.Diagnostics
	var doc tabularDocument
	if err := yaml.Unmarshal([]byte(body), &doc); err != nil {
		diag.AddPayload(model.AppError{
			Code:    model.CodeMalformedURI,
			Message: "tabular 文档不是合法 YAML",
			Stage:   "parse_tabular",
			URL:     url,
			Hint:    err.Error(),
		})
		return nil, nil, diag
	}

	out := make([]model.Proxy, 0, len(doc.Proxies))
	var rules []model.ChainRule
	for i, m := range doc.Proxies {
		p, err := mapTabularProxy(m)
		if err == nil {
			err = sub.Validate(p)
		}
		if err != nil {
			diag.AddPayload(model.AppError{
				Code:    model.CodeMalformedURI,
				Message: err.Error(),
				Stage:   "parse_tabular",
				URL:     url,
				Line:    i + 1,
				Snippet: str(m, "name"),
			})
			continue
		}
		out = append(out, p)
		if up := strings.TrimSpace(str(m, "dialer-proxy")); up != "" {
			rules = append(rules, boundRule(p, up))
		}
	}
	return out, rules, diag
}

// mapTabularProxy maps one mihomo proxy entry onto the canonical record.
// Types without a codec are kept as Generic so the tabular compiler can
// emit them unchanged.
func mapTabularProxy(m map[string]any) (model.Proxy, error) {
	typ := strings.ToLower(str(m, "type"))
	if typ == "" {
		return model.Proxy{}, fmt.Errorf("proxy %q: missing type", str(m, "name"))
	}
	p := model.Proxy{
		Name:   str(m, "name"),
		Server: str(m, "server"),
		Port:   intv(m, "port"),
	}

	switch typ {
	case "ss":
		p.Options = &model.SSOptions{
			Cipher:     strings.ToLower(str(m, "cipher")),
			Password:   str(m, "password"),
			Plugin:     str(m, "plugin"),
			PluginOpts: kvs(m, "plugin-opts"),
		}
	case "vmess":
		cipher := str(m, "cipher")
		if cipher == "" {
			cipher = "auto"
		}
		p.Options = &model.VMessOptions{
			UUID:      str(m, "uuid"),
			AlterID:   intv(m, "alterId"),
			Cipher:    cipher,
			Transport: transport(m),
			TLS:       tlsOf(m, boolv(m, "tls")),
		}
	case "trojan":
		p.Options = &model.TrojanOptions{
			Password:  str(m, "password"),
			Transport: transport(m),
			TLS:       tlsOf(m, true),
		}
	case "vless":
		p.Options = &model.VLESSOptions{
			UUID:       str(m, "uuid"),
			Flow:       str(m, "flow"),
			Encryption: str(m, "encryption"),
			Transport:  transport(m),
			TLS:        tlsOf(m, boolv(m, "tls")),
		}
	case "hysteria2", "hy2":
		t := tlsOf(m, true)
		if len(t.ALPN) == 0 {
			t.ALPN = append([]string(nil), hysteria2.DefaultALPN...)
		}
		p.Options = &model.Hysteria2Options{
			Password:     str(m, "password"),
			Obfs:         str(m, "obfs"),
			ObfsPassword: str(m, "obfs-password"),
			Ports:        str(m, "ports"),
			TLS:          t,
		}
	case "anytls":
		p.Options = &model.AnyTLSOptions{
			Password:                 str(m, "password"),
			TLS:                      tlsOf(m, true),
			IdleSessionCheckInterval: str(m, "idle-session-check-interval"),
			IdleSessionTimeout:       str(m, "idle-session-timeout"),
			MinIdleSession:           str(m, "min-idle-session"),
		}
	case "socks5":
		p.Options = &model.SOCKS5Options{
			Username: str(m, "username"),
			Password: str(m, "password"),
		}
	default:
		fields := make(map[string]any, len(m))
		for k, v := range m {
			switch k {
			case "name", "server", "port", "type", "dialer-proxy":
				continue
			}
			fields[k] = v
		}
		p.Options = &model.GenericOptions{Kind: typ, Fields: fields}
	}
	return p, nil
}

func tlsOf(m map[string]any, enabled bool) model.TLS {
	t := model.TLS{
		Enabled:        enabled,
		SNI:            firstStr(m, "servername", "sni"),
		Fingerprint:    str(m, "client-fingerprint"),
		ALPN:           list(m, "alpn"),
		SkipCertVerify: boolv(m, "skip-cert-verify"),
	}
	if ro, ok := m["reality-opts"].(map[string]any); ok {
		t.Enabled = true
		t.Reality = &model.Reality{
			PublicKey: str(ro, "public-key"),
			ShortID:   str(ro, "short-id"),
		}
	}
	return t
}

func transport(m map[string]any) model.Transport {
	t := model.Transport{Network: strings.ToLower(str(m, "network"))}
	if t.Network == "" {
		t.Network = "tcp"
	}
	switch t.Network {
	case "ws", "httpupgrade":
		opts, _ := m["ws-opts"].(map[string]any)
		t.Path = str(opts, "path")
		if h, ok := opts["headers"].(map[string]any); ok {
			t.Host = firstStr(h, "Host", "host")
		}
	case "h2":
		opts, _ := m["h2-opts"].(map[string]any)
		t.Path = str(opts, "path")
		if hosts := list(opts, "host"); len(hosts) > 0 {
			t.Host = hosts[0]
		}
	case "http":
		opts, _ := m["http-opts"].(map[string]any)
		if paths := list(opts, "path"); len(paths) > 0 {
			t.Path = paths[0]
		}
		if h, ok := opts["headers"].(map[string]any); ok {
			if hosts := list(h, "Host"); len(hosts) > 0 {
				t.Host = hosts[0]
			}
		}
	case "grpc":
		opts, _ := m["grpc-opts"].(map[string]any)
		t.ServiceName = str(opts, "grpc-service-name")
	}
	return t
}

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func firstStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(m, k); s != "" {
			return s
		}
	}
	return ""
}

func intv(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	default:
		return 0
	}
}

func boolv(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	case int:
		return v != 0
	default:
		return false
	}
}

// list accepts both a YAML sequence and a comma-separated string.
func list(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s := strings.TrimSpace(fmt.Sprint(e)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// kvs flattens plugin-opts into key-sorted pairs.
func kvs(m map[string]any, key string) []model.KV {
	opts, ok := m[key].(map[string]any)
	if !ok || len(opts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]model.KV, 0, len(keys))
	for _, k := range keys {
		out = append(out, model.KV{Key: k, Value: str(opts, k)})
	}
	return out
}
