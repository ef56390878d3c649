package socks5

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/sub/codec"
)

// userStrategies prefers Base64 only when the decoded text carries the
// user:pass separator, then falls back to plaintext.
var userStrategies = func() []codec.DecodeStrategy {
	out := make([]codec.DecodeStrategy, 0, len(codec.Base64Strategies)+1)
	for _, st := range codec.Base64Strategies {
		out = append(out, codec.RequireSeparator(st, ":"))
	}
	return append(out, codec.RequireSeparator(codec.Plaintext, ":"))
}()

// Parse accepts socks5:// and socks://.
func Parse(uri string) (model.Proxy, error) {
	u, err := codec.SplitURI(uri)
	if err != nil {
		return model.Proxy{}, err
	}
	if u.Scheme != "socks5" && u.Scheme != "socks" {
		return model.Proxy{}, codec.Malformed(uri, "不是 socks5:// 链接", nil)
	}
	if u.UserInfo == "" {
		return model.Proxy{}, codec.Malformed(uri, "socks5 缺少用户名密码", nil)
	}
	decoded, ok := codec.Decode(u.UserInfo, userStrategies...)
	if !ok {
		return model.Proxy{}, codec.Malformed(uri, "socks5 用户信息缺少 user:pass", nil)
	}
	user, pass, _ := strings.Cut(decoded, ":")
	if user == "" || pass == "" {
		return model.Proxy{}, codec.Malformed(uri, "socks5 用户名或密码为空", nil)
	}

	return model.Proxy{
		Name:   u.Name,
		Server: u.Host,
		Port:   u.Port,
		Options: &model.SOCKS5Options{
			Username: user,
			Password: pass,
		},
	}, nil
}

// ToURI emits the Base64 user-info form.
func ToURI(p model.Proxy) (string, bool) {
	o, ok := p.Options.(*model.SOCKS5Options)
	if !ok || o == nil {
		return "", false
	}
	user := base64.RawURLEncoding.EncodeToString([]byte(o.Username + ":" + o.Password))
	return codec.BuildURI("socks5", user, p.Server, p.Port, nil, p.Name), true
}

func Validate(p model.Proxy) error {
	o, ok := p.Options.(*model.SOCKS5Options)
	if !ok || o == nil {
		return errors.New("not a socks5 proxy")
	}
	if o.Username == "" || o.Password == "" {
		return errors.New("empty username or password")
	}
	return nil
}
