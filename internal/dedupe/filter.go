package dedupe

import (
	"net/netip"
	"strings"

	"github.com/John-Robertt/subforge/internal/model"
)

// publicResolvers are well-known DNS resolver addresses. A "proxy" pointing
// at one of them is a placeholder, not a node.
var publicResolvers = map[netip.Addr]bool{}

func init() {
	for _, s := range []string{
		"8.8.8.8", "8.8.4.4",
		"1.1.1.1", "1.0.0.1",
		"9.9.9.9", "149.112.112.112",
		"208.67.222.222", "208.67.220.220",
		"114.114.114.114", "114.114.115.115",
		"223.5.5.5", "223.6.6.6",
		"119.29.29.29", "180.76.76.76",
		"2001:4860:4860::8888", "2001:4860:4860::8844",
		"2606:4700:4700::1111", "2606:4700:4700::1001",
	} {
		publicResolvers[netip.MustParseAddr(s)] = true
	}
}

// documentation ranges (RFC 5737, RFC 3849) and shared address space.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("2001:db8::/32"),
}

var reservedTLDs = []string{"localhost", "local", "test", "example", "invalid", "internal", "home.arpa"}

var exampleDomains = []string{"example.com", "example.net", "example.org"}

// informationalMarkers are banner fragments providers inject as fake nodes.
var informationalMarkers = []string{
	"剩余流量", "套餐到期", "到期时间", "过期时间", "距离下次重置", "下次重置",
	"流量重置", "官网", "官方网站", "订阅链接", "有效期", "请勿连接",
	"expire", "traffic left", "remaining traffic", "reset in",
}

// IsInvalid reports whether p cannot be a working node: bad port, or a
// server that is loopback, unspecified, link-local, private, a public DNS
// resolver, or under a reserved name.
func IsInvalid(p model.Proxy) bool {
	if p.Port < 1 || p.Port > 65535 {
		return true
	}
	return isInvalidServer(p.Server)
}

func isInvalidServer(server string) bool {
	host := strings.ToLower(strings.TrimSuffix(strings.Trim(strings.TrimSpace(server), "[]"), "."))
	if host == "" {
		return true
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return isInvalidAddr(addr.Unmap())
	}
	for _, tld := range reservedTLDs {
		if host == tld || strings.HasSuffix(host, "."+tld) {
			return true
		}
	}
	for _, d := range exampleDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func isInvalidAddr(addr netip.Addr) bool {
	switch {
	case addr.IsLoopback(), addr.IsUnspecified(),
		addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast(),
		addr.IsPrivate(), addr.IsMulticast():
		return true
	}
	if publicResolvers[addr] {
		return true
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IsInformational reports whether the display name is a provider banner.
func IsInformational(p model.Proxy) bool {
	name := strings.ToLower(p.Name)
	if name == "" {
		return false
	}
	for _, m := range informationalMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}
