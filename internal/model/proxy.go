package model

type KV struct {
	Key   string
	Value string
}

// Protocol type tags.
const (
	TypeSS        = "ss"
	TypeVMess     = "vmess"
	TypeTrojan    = "trojan"
	TypeVLESS     = "vless"
	TypeHysteria2 = "hysteria2"
	TypeAnyTLS    = "anytls"
	TypeSOCKS5    = "socks5"
)

// Proxy is the canonical node record shared by every stage of the pipeline.
//
// Server/Port/Options carry the connection identity. Name is display
// metadata only and never takes part in identity.
type Proxy struct {
	// Name comes from the URI fragment (#name) or the tabular "name" field.
	// It may be empty and is not guaranteed to be unique until the compiler
	// normalizes names.
	Name string

	// Server is a host name or an IP literal. IPv6 literals are stored
	// without brackets.
	Server string
	Port   int

	// Upstream names the proxy this one dials through. It is empty at parse
	// time and only set by the chain resolver.
	Upstream string

	Options Options
}

// Type returns the protocol tag of p, or "" when Options is unset.
func (p Proxy) Type() string {
	if p.Options == nil {
		return ""
	}
	return p.Options.Type()
}

// Options is the closed set of per-protocol payloads.
type Options interface {
	Type() string

	// Credential returns the mandatory credential material of the protocol.
	// An empty value means the record is not usable.
	Credential() string

	// IdentityKey is an ordered tuple of every field that changes network
	// behavior. It never includes the display name.
	IdentityKey() string

	isOptions()
}

type TLS struct {
	Enabled        bool
	SNI            string
	Fingerprint    string
	ALPN           []string
	SkipCertVerify bool

	// Reality is set only for VLESS/Trojan with security=reality.
	Reality *Reality
}

type Reality struct {
	PublicKey string
	ShortID   string
	SpiderX   string
}

type Transport struct {
	// Network is "tcp", "ws", "grpc", "h2" or "http". Empty means tcp.
	Network     string
	Path        string
	Host        string
	ServiceName string
}

type SSOptions struct {
	Cipher   string
	Password string

	// Plugin/PluginOpts come from the SIP002 "plugin" parameter.
	// PluginOpts must preserve order (no map).
	Plugin     string
	PluginOpts []KV
}

type VMessOptions struct {
	UUID      string
	AlterID   int
	Cipher    string // "auto" when absent
	Transport Transport
	TLS       TLS
}

type TrojanOptions struct {
	Password  string
	Transport Transport
	TLS       TLS // always enabled
}

type VLESSOptions struct {
	UUID       string
	Flow       string
	Encryption string
	Transport  Transport
	TLS        TLS
}

// Security reports the VLESS security layer: "reality", "tls" or "none".
func (o *VLESSOptions) Security() string {
	switch {
	case o.TLS.Reality != nil:
		return "reality"
	case o.TLS.Enabled:
		return "tls"
	default:
		return "none"
	}
}

type Hysteria2Options struct {
	Password     string
	Obfs         string
	ObfsPassword string
	Ports        string // port hopping range, verbatim
	TLS          TLS
}

type AnyTLSOptions struct {
	Password string
	TLS      TLS

	// Idle-session tuning, passed through unmodified.
	IdleSessionCheckInterval string
	IdleSessionTimeout       string
	MinIdleSession           string
}

type SOCKS5Options struct {
	Username string
	Password string
}

// GenericOptions keeps tabular entries whose type has no codec (tuic, ssr, ...).
// Fields holds every original key except name/server/port/type.
type GenericOptions struct {
	Kind   string
	Fields map[string]any
}

func (*SSOptions) Type() string        { return TypeSS }
func (*VMessOptions) Type() string     { return TypeVMess }
func (*TrojanOptions) Type() string    { return TypeTrojan }
func (*VLESSOptions) Type() string     { return TypeVLESS }
func (*Hysteria2Options) Type() string { return TypeHysteria2 }
func (*AnyTLSOptions) Type() string    { return TypeAnyTLS }
func (*SOCKS5Options) Type() string    { return TypeSOCKS5 }
func (o *GenericOptions) Type() string { return o.Kind }

func (o *SSOptions) Credential() string {
	if o.Cipher == "" {
		return ""
	}
	return o.Password
}
func (o *VMessOptions) Credential() string     { return o.UUID }
func (o *TrojanOptions) Credential() string    { return o.Password }
func (o *VLESSOptions) Credential() string     { return o.UUID }
func (o *Hysteria2Options) Credential() string { return o.Password }
func (o *AnyTLSOptions) Credential() string    { return o.Password }

func (o *SOCKS5Options) Credential() string {
	if o.Username == "" || o.Password == "" {
		return ""
	}
	return o.Username + ":" + o.Password
}

func (o *GenericOptions) Credential() string {
	for _, k := range []string{"password", "uuid", "username", "private-key", "token", "auth-str"} {
		if v, ok := o.Fields[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func (*SSOptions) isOptions()        {}
func (*VMessOptions) isOptions()     {}
func (*TrojanOptions) isOptions()    {}
func (*VLESSOptions) isOptions()     {}
func (*Hysteria2Options) isOptions() {}
func (*AnyTLSOptions) isOptions()    {}
func (*SOCKS5Options) isOptions()    {}
func (*GenericOptions) isOptions()   {}
