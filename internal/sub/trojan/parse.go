package trojan

import (
	"errors"
	"net/url"

	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/sub/codec"
)

// Parse decodes trojan://password@host:port?sni=..&type=ws|grpc#name.
// Trojan always runs over TLS; security=reality switches in Reality keys.
func Parse(uri string) (model.Proxy, error) {
	u, err := codec.SplitURI(uri)
	if err != nil {
		return model.Proxy{}, err
	}
	if u.Scheme != "trojan" {
		return model.Proxy{}, codec.Malformed(uri, "不是 trojan:// 链接", nil)
	}
	password := u.User()
	if password == "" {
		return model.Proxy{}, codec.Malformed(uri, "trojan 缺少密码", nil)
	}

	tls := codec.TLSFromQuery(u.Query)
	tls.Enabled = true

	return model.Proxy{
		Name:   u.Name,
		Server: u.Host,
		Port:   u.Port,
		Options: &model.TrojanOptions{
			Password:  password,
			Transport: codec.TransportFromQuery(u.Query),
			TLS:       tls,
		},
	}, nil
}

func ToURI(p model.Proxy) (string, bool) {
	o, ok := p.Options.(*model.TrojanOptions)
	if !ok || o == nil {
		return "", false
	}
	q := url.Values{}
	codec.WriteTransport(q, o.Transport)
	codec.WriteTLS(q, o.TLS)
	return codec.BuildURI("trojan", codec.EscapeUser(o.Password), p.Server, p.Port, q, p.Name), true
}

func Validate(p model.Proxy) error {
	o, ok := p.Options.(*model.TrojanOptions)
	if !ok || o == nil {
		return errors.New("not a trojan proxy")
	}
	if o.Password == "" {
		return errors.New("empty password")
	}
	return nil
}
