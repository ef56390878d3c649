package anytls

import (
	"errors"
	"net/url"

	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/sub/codec"
)

// Idle-session query keys, passed through unmodified.
const (
	keyCheckInterval = "idle_session_check_interval"
	keyTimeout       = "idle_session_timeout"
	keyMinIdle       = "min_idle_session"
)

func Parse(uri string) (model.Proxy, error) {
	u, err := codec.SplitURI(uri)
	if err != nil {
		return model.Proxy{}, err
	}
	if u.Scheme != "anytls" {
		return model.Proxy{}, codec.Malformed(uri, "不是 anytls:// 链接", nil)
	}
	password := u.User()
	if password == "" {
		return model.Proxy{}, codec.Malformed(uri, "anytls 缺少密码", nil)
	}

	tls := codec.TLSFromQuery(u.Query)
	tls.Enabled = true
	tls.Reality = nil

	return model.Proxy{
		Name:   u.Name,
		Server: u.Host,
		Port:   u.Port,
		Options: &model.AnyTLSOptions{
			Password:                 password,
			TLS:                      tls,
			IdleSessionCheckInterval: u.Query.Get(keyCheckInterval),
			IdleSessionTimeout:       u.Query.Get(keyTimeout),
			MinIdleSession:           u.Query.Get(keyMinIdle),
		},
	}, nil
}

func ToURI(p model.Proxy) (string, bool) {
	o, ok := p.Options.(*model.AnyTLSOptions)
	if !ok || o == nil {
		return "", false
	}
	q := url.Values{}
	codec.WriteTLS(q, o.TLS)
	if o.IdleSessionCheckInterval != "" {
		q.Set(keyCheckInterval, o.IdleSessionCheckInterval)
	}
	if o.IdleSessionTimeout != "" {
		q.Set(keyTimeout, o.IdleSessionTimeout)
	}
	if o.MinIdleSession != "" {
		q.Set(keyMinIdle, o.MinIdleSession)
	}
	return codec.BuildURI("anytls", codec.EscapeUser(o.Password), p.Server, p.Port, q, p.Name), true
}

func Validate(p model.Proxy) error {
	o, ok := p.Options.(*model.AnyTLSOptions)
	if !ok || o == nil {
		return errors.New("not an anytls proxy")
	}
	if o.Password == "" {
		return errors.New("empty password")
	}
	return nil
}
