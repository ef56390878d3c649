package vless

import (
	"errors"
	"net/url"
	"strings"

	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/sub/codec"
)

// Parse decodes vless://uuid@host:port?security=tls|reality&type=ws|grpc#name.
// Reality public key and short id are kept verbatim.
func Parse(uri string) (model.Proxy, error) {
	u, err := codec.SplitURI(uri)
	if err != nil {
		return model.Proxy{}, err
	}
	if u.Scheme != "vless" {
		return model.Proxy{}, codec.Malformed(uri, "不是 vless:// 链接", nil)
	}
	id := strings.TrimSpace(u.User())
	if id == "" {
		return model.Proxy{}, codec.Malformed(uri, "vless 缺少 uuid", nil)
	}

	tls := codec.TLSFromQuery(u.Query)
	switch strings.ToLower(u.Query.Get("security")) {
	case "tls", "xtls":
		tls.Enabled = true
	case "reality":
		if tls.Reality.PublicKey == "" {
			return model.Proxy{}, codec.Malformed(uri, "reality 缺少 pbk", nil)
		}
	default:
		// Plain VLESS: any TLS hints in the query are meaningless.
		tls = model.TLS{}
	}

	return model.Proxy{
		Name:   u.Name,
		Server: u.Host,
		Port:   u.Port,
		Options: &model.VLESSOptions{
			UUID:       id,
			Flow:       u.Query.Get("flow"),
			Encryption: u.Query.Get("encryption"),
			Transport:  codec.TransportFromQuery(u.Query),
			TLS:        tls,
		},
	}, nil
}

func ToURI(p model.Proxy) (string, bool) {
	o, ok := p.Options.(*model.VLESSOptions)
	if !ok || o == nil {
		return "", false
	}
	q := url.Values{}
	if o.Encryption != "" {
		q.Set("encryption", o.Encryption)
	}
	if o.Flow != "" {
		q.Set("flow", o.Flow)
	}
	codec.WriteTransport(q, o.Transport)
	if o.TLS.Enabled {
		q.Set("security", "tls")
		codec.WriteTLS(q, o.TLS)
	}
	return codec.BuildURI("vless", codec.EscapeUser(o.UUID), p.Server, p.Port, q, p.Name), true
}

func Validate(p model.Proxy) error {
	o, ok := p.Options.(*model.VLESSOptions)
	if !ok || o == nil {
		return errors.New("not a vless proxy")
	}
	if strings.TrimSpace(o.UUID) == "" {
		return errors.New("empty uuid")
	}
	if o.TLS.Reality != nil && o.TLS.Reality.PublicKey == "" {
		return errors.New("reality without public key")
	}
	return nil
}
