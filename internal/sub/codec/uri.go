package codec

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/John-Robertt/subforge/internal/model"
)

// URI is a proxy link split into its positional parts. It is deliberately
// looser than net/url: credentials in the wild often carry unescaped
// reserved characters.
type URI struct {
	Raw      string
	Scheme   string
	UserInfo string // still percent-encoded
	Host     string // brackets removed
	Port     int
	Query    url.Values
	Name     string
}

// SplitURI parses scheme://userinfo@host:port[/][?query][#name].
func SplitURI(raw string) (*URI, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(raw), "://")
	if !ok || scheme == "" {
		return nil, Malformed(raw, "缺少协议前缀", nil)
	}
	u := &URI{Raw: raw, Scheme: strings.ToLower(scheme)}

	rest, frag, _ := strings.Cut(rest, "#")
	u.Name = DecodeName(frag)

	rest, query, _ := strings.Cut(rest, "?")
	u.Query = ParseQuery(query)

	hostPart := rest
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		u.UserInfo = rest[:at]
		hostPart = rest[at+1:]
	}
	if idx := strings.IndexByte(hostPart, '/'); idx >= 0 {
		hostPart = hostPart[:idx]
	}

	host, port, err := SplitHostPort(hostPart)
	if err != nil {
		return nil, Malformed(raw, "服务器地址或端口不合法", err)
	}
	u.Host = host
	u.Port = port
	return u, nil
}

// User returns the percent-decoded user-info.
func (u *URI) User() string {
	if s, err := url.PathUnescape(u.UserInfo); err == nil {
		return s
	}
	return u.UserInfo
}

func SplitHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return "", 0, err
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "", 0, errors.New("empty host")
	}
	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil {
		return "", 0, err
	}
	if port < 1 || port > 65535 {
		return "", 0, errors.New("port out of range")
	}
	return host, port, nil
}

// JoinHostPort brackets IPv6 literals.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// DecodeName percent-decodes a fragment and removes control characters.
func DecodeName(frag string) string {
	if frag == "" {
		return ""
	}
	name, err := url.PathUnescape(frag)
	if err != nil {
		name = frag
	}
	return CleanName(name)
}

// CleanName removes control characters and surrounding space.
func CleanName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(name)
}

func EncodeName(name string) string {
	if name == "" {
		return ""
	}
	return "#" + url.PathEscape(name)
}

// ParseQuery splits on '&' only; values that fail to unescape are kept raw.
func ParseQuery(raw string) url.Values {
	q := url.Values{}
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		q.Add(unescape(k), unescape(v))
	}
	return q
}

func unescape(s string) string {
	if out, err := url.QueryUnescape(s); err == nil {
		return out
	}
	return s
}

// First returns the first non-empty value among keys.
func First(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func Bool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func SplitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// TransportFromQuery reads the transport selected by "type".
func TransportFromQuery(q url.Values) model.Transport {
	t := model.Transport{Network: strings.ToLower(First(q, "type", "net"))}
	if t.Network == "" {
		t.Network = "tcp"
	}
	switch t.Network {
	case "ws", "httpupgrade", "h2", "http":
		t.Path = q.Get("path")
		t.Host = q.Get("host")
	case "grpc":
		t.ServiceName = First(q, "serviceName", "service_name", "path")
	}
	return t
}

func WriteTransport(q url.Values, t model.Transport) {
	if t.Network != "" && t.Network != "tcp" {
		q.Set("type", t.Network)
	}
	if t.Path != "" {
		q.Set("path", t.Path)
	}
	if t.Host != "" {
		q.Set("host", t.Host)
	}
	if t.ServiceName != "" {
		q.Set("serviceName", t.ServiceName)
	}
}

// TLSFromQuery reads SNI, fingerprint, ALPN, certificate checks and the
// Reality parameters. Enabled is left to the caller.
func TLSFromQuery(q url.Values) model.TLS {
	t := model.TLS{
		SNI:            First(q, "sni", "peer", "servername"),
		Fingerprint:    First(q, "fp", "fingerprint"),
		ALPN:           SplitList(q.Get("alpn")),
		SkipCertVerify: Bool(First(q, "allowInsecure", "insecure", "skip-cert-verify")),
	}
	if strings.EqualFold(q.Get("security"), "reality") {
		t.Enabled = true
		t.Reality = &model.Reality{
			PublicKey: q.Get("pbk"),
			ShortID:   q.Get("sid"),
			SpiderX:   q.Get("spx"),
		}
	}
	return t
}

func WriteTLS(q url.Values, t model.TLS) {
	if t.SNI != "" {
		q.Set("sni", t.SNI)
	}
	if t.Fingerprint != "" {
		q.Set("fp", t.Fingerprint)
	}
	if len(t.ALPN) > 0 {
		q.Set("alpn", strings.Join(t.ALPN, ","))
	}
	if t.SkipCertVerify {
		q.Set("allowInsecure", "1")
	}
	if t.Reality != nil {
		q.Set("security", "reality")
		q.Set("pbk", t.Reality.PublicKey)
		if t.Reality.ShortID != "" {
			q.Set("sid", t.Reality.ShortID)
		}
		if t.Reality.SpiderX != "" {
			q.Set("spx", t.Reality.SpiderX)
		}
	}
}

// BuildURI assembles scheme://userinfo@host:port?query#name.
func BuildURI(scheme, userInfo, host string, port int, q url.Values, name string) string {
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	if userInfo != "" {
		b.WriteString(userInfo)
		b.WriteByte('@')
	}
	b.WriteString(JoinHostPort(host, port))
	if len(q) > 0 {
		b.WriteByte('?')
		b.WriteString(q.Encode())
	}
	b.WriteString(EncodeName(name))
	return b.String()
}

// EscapeUser percent-encodes a credential for the user-info position.
func EscapeUser(s string) string {
	return url.PathEscape(s)
}
