package hysteria2

import (
	"errors"
	"net/url"
	"strings"

	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/sub/codec"
)

// DefaultALPN applies when the link carries no alpn parameter.
var DefaultALPN = []string{"h3"}

// Parse decodes hysteria2:// and its hy2:// spelling.
func Parse(uri string) (model.Proxy, error) {
	u, err := codec.SplitURI(uri)
	if err != nil {
		return model.Proxy{}, err
	}
	if u.Scheme != "hysteria2" && u.Scheme != "hy2" {
		return model.Proxy{}, codec.Malformed(uri, "不是 hysteria2:// 链接", nil)
	}
	password := u.User()
	if password == "" {
		password = u.Query.Get("auth")
	}
	if password == "" {
		return model.Proxy{}, codec.Malformed(uri, "hysteria2 缺少密码", nil)
	}

	alpn := codec.SplitList(u.Query.Get("alpn"))
	if len(alpn) == 0 {
		alpn = append([]string(nil), DefaultALPN...)
	}

	return model.Proxy{
		Name:   u.Name,
		Server: u.Host,
		Port:   u.Port,
		Options: &model.Hysteria2Options{
			Password:     password,
			Obfs:         u.Query.Get("obfs"),
			ObfsPassword: u.Query.Get("obfs-password"),
			Ports:        codec.First(u.Query, "mport", "ports"),
			TLS: model.TLS{
				Enabled:        true,
				SNI:            codec.First(u.Query, "sni", "peer"),
				Fingerprint:    u.Query.Get("fp"),
				ALPN:           alpn,
				SkipCertVerify: codec.Bool(u.Query.Get("insecure")),
			},
		},
	}, nil
}

func ToURI(p model.Proxy) (string, bool) {
	o, ok := p.Options.(*model.Hysteria2Options)
	if !ok || o == nil {
		return "", false
	}
	q := url.Values{}
	if o.TLS.SNI != "" {
		q.Set("sni", o.TLS.SNI)
	}
	if o.TLS.Fingerprint != "" {
		q.Set("fp", o.TLS.Fingerprint)
	}
	if o.TLS.SkipCertVerify {
		q.Set("insecure", "1")
	}
	if len(o.TLS.ALPN) > 0 {
		q.Set("alpn", strings.Join(o.TLS.ALPN, ","))
	}
	if o.Obfs != "" {
		q.Set("obfs", o.Obfs)
	}
	if o.ObfsPassword != "" {
		q.Set("obfs-password", o.ObfsPassword)
	}
	if o.Ports != "" {
		q.Set("mport", o.Ports)
	}
	return codec.BuildURI("hysteria2", codec.EscapeUser(o.Password), p.Server, p.Port, q, p.Name), true
}

func Validate(p model.Proxy) error {
	o, ok := p.Options.(*model.Hysteria2Options)
	if !ok || o == nil {
		return errors.New("not a hysteria2 proxy")
	}
	if o.Password == "" {
		return errors.New("empty password")
	}
	return nil
}
