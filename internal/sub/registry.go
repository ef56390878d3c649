// Package sub dispatches proxy URIs to the per-protocol codecs.
package sub

import (
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/sub/anytls"
	"github.com/John-Robertt/subforge/internal/sub/codec"
	"github.com/John-Robertt/subforge/internal/sub/hysteria2"
	"github.com/John-Robertt/subforge/internal/sub/socks5"
	"github.com/John-Robertt/subforge/internal/sub/ss"
	"github.com/John-Robertt/subforge/internal/sub/trojan"
	"github.com/John-Robertt/subforge/internal/sub/vless"
	"github.com/John-Robertt/subforge/internal/sub/vmess"
)

type protocol struct {
	kind     string
	schemes  []string
	parse    func(string) (model.Proxy, error)
	toURI    func(model.Proxy) (string, bool)
	validate func(model.Proxy) error
}

var protocols = []protocol{
	{kind: model.TypeSS, schemes: []string{"ss"}, parse: ss.Parse, toURI: ss.ToURI, validate: ss.Validate},
	{kind: model.TypeVMess, schemes: []string{"vmess"}, parse: vmess.Parse, toURI: vmess.ToURI, validate: vmess.Validate},
	{kind: model.TypeTrojan, schemes: []string{"trojan"}, parse: trojan.Parse, toURI: trojan.ToURI, validate: trojan.Validate},
	{kind: model.TypeVLESS, schemes: []string{"vless"}, parse: vless.Parse, toURI: vless.ToURI, validate: vless.Validate},
	{kind: model.TypeHysteria2, schemes: []string{"hysteria2", "hy2"}, parse: hysteria2.Parse, toURI: hysteria2.ToURI, validate: hysteria2.Validate},
	{kind: model.TypeAnyTLS, schemes: []string{"anytls"}, parse: anytls.Parse, toURI: anytls.ToURI, validate: anytls.Validate},
	{kind: model.TypeSOCKS5, schemes: []string{"socks5", "socks"}, parse: socks5.Parse, toURI: socks5.ToURI, validate: socks5.Validate},
}

// knownUnsupported are proxy schemes seen in subscriptions that have no codec.
var knownUnsupported = map[string]bool{
	"ssr":       true,
	"tuic":      true,
	"hysteria":  true,
	"wireguard": true,
	"wg":        true,
	"juicity":   true,
	"snell":     true,
	"mieru":     true,
	"naive":     true,
	"ssh":       true,
}

var (
	byScheme = map[string]*protocol{}
	byKind   = map[string]*protocol{}
)

func init() {
	for i := range protocols {
		p := &protocols[i]
		byKind[p.kind] = p
		for _, s := range p.schemes {
			byScheme[s] = p
		}
	}
}

// Scheme returns the lower-cased scheme of s, or "" when s has none.
func Scheme(s string) string {
	scheme, _, ok := strings.Cut(strings.TrimSpace(s), "://")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}

// IsProxyURI reports whether s starts with a proxy scheme, supported or not.
func IsProxyURI(s string) bool {
	scheme := Scheme(s)
	return byScheme[scheme] != nil || knownUnsupported[scheme]
}

// Schemes lists every scheme with a codec.
func Schemes() []string {
	var out []string
	for _, p := range protocols {
		out = append(out, p.schemes...)
	}
	return out
}

// Parse decodes one proxy URI and validates the result.
func Parse(uri string) (model.Proxy, error) {
	uri = strings.TrimSpace(uri)
	scheme := Scheme(uri)
	if scheme == "" {
		return model.Proxy{}, codec.Malformed(uri, "缺少协议前缀", nil)
	}
	p, ok := byScheme[scheme]
	if !ok {
		if knownUnsupported[scheme] {
			return model.Proxy{}, codec.Unsupported(uri, scheme)
		}
		return model.Proxy{}, codec.Malformed(uri, fmt.Sprintf("未知协议：%s", scheme), nil)
	}
	proxy, err := p.parse(uri)
	if err != nil {
		return model.Proxy{}, err
	}
	if err := Validate(proxy); err != nil {
		return model.Proxy{}, codec.Malformed(uri, "节点校验失败", err)
	}
	return proxy, nil
}

// ToURI returns false for protocols without a codec (tabular passthrough
// entries) and for records whose options do not match their codec.
func ToURI(p model.Proxy) (string, bool) {
	proto, ok := byKind[p.Type()]
	if !ok {
		return "", false
	}
	return proto.toURI(p)
}

// Validate runs the shared endpoint checks first and then the
// protocol-specific credential check.
func Validate(p model.Proxy) error {
	if strings.TrimSpace(p.Server) == "" {
		return errors.New("empty server")
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("port out of range: %d", p.Port)
	}
	if p.Options == nil {
		return errors.New("missing protocol options")
	}
	if proto, ok := byKind[p.Type()]; ok {
		return proto.validate(p)
	}
	if _, ok := p.Options.(*model.GenericOptions); ok {
		if p.Options.Credential() == "" {
			return fmt.Errorf("%s: missing credential", p.Type())
		}
		return nil
	}
	return fmt.Errorf("unknown proxy type %q", p.Type())
}
