package ss

import (
	"errors"
	"net/url"
	"strings"

	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/sub/codec"
)

const scheme = "ss://"

// userInfoStrategies decodes the SIP002 user-info: Base64 of method:password
// in either alphabet, or plain percent-encoded text (AEAD-2022 links). A
// strategy only counts when the result carries the ':' separator.
var userInfoStrategies = func() []codec.DecodeStrategy {
	all := append(append([]codec.DecodeStrategy(nil), codec.Base64Strategies...), codec.Plaintext)
	out := make([]codec.DecodeStrategy, 0, len(all))
	for _, st := range all {
		out = append(out, codec.RequireSeparator(st, ":"))
	}
	return out
}()

// Parse accepts both encodings in the wild:
//
//	Form A: ss://<b64(method:password)>@host:port[/?plugin=...][#name]
//	Form B: ss://<b64(method:password@host:port)>[#name]
func Parse(uri string) (model.Proxy, error) {
	s := strings.TrimSpace(uri)
	if !strings.HasPrefix(strings.ToLower(s), scheme) {
		return model.Proxy{}, codec.Malformed(uri, "不是 ss:// 链接", nil)
	}

	withoutFrag, frag, _ := strings.Cut(s[len(scheme):], "#")
	name := codec.DecodeName(frag)

	withoutQuery, query, _ := strings.Cut(withoutFrag, "?")
	plugin, pluginOpts, err := parsePlugin(uri, query)
	if err != nil {
		return model.Proxy{}, err
	}

	rest := strings.TrimSuffix(withoutQuery, "/")
	if rest == "" {
		return model.Proxy{}, codec.Malformed(uri, "ss:// 后缺少内容", nil)
	}

	var method, password, hostPort string
	if userPart, hostPart, ok := cutLast(rest, "@"); ok {
		// Form A. '@' is outside the Base64 alphabet, so a Form B blob never
		// reaches this branch.
		decoded, ok := codec.Decode(userPart, userInfoStrategies...)
		if !ok {
			return model.Proxy{}, codec.Malformed(uri, "ss userinfo 解码失败", nil)
		}
		method, password, err = splitMethodPassword(decoded)
		if err != nil {
			return model.Proxy{}, codec.Malformed(uri, "ss userinfo 缺少 cipher:password", err)
		}
		hostPort = hostPart
	} else {
		// Form B
		decoded, ok := codec.DecodeBase64(rest)
		if !ok {
			return model.Proxy{}, codec.Malformed(uri, "ss base64 解码失败", nil)
		}
		cred, hp, ok := cutLast(decoded, "@")
		if !ok {
			return model.Proxy{}, codec.Malformed(uri, "ss base64 解码结果缺少 @ 分隔符", nil)
		}
		method, password, err = splitMethodPassword(cred)
		if err != nil {
			return model.Proxy{}, codec.Malformed(uri, "ss base64 解码结果缺少 cipher:password", err)
		}
		hostPort = strings.TrimSuffix(strings.TrimSpace(hp), "/")
	}

	server, port, err := codec.SplitHostPort(hostPort)
	if err != nil {
		return model.Proxy{}, codec.Malformed(uri, "服务器地址或端口不合法", err)
	}

	return model.Proxy{
		Name:   name,
		Server: server,
		Port:   port,
		Options: &model.SSOptions{
			Cipher:     method,
			Password:   password,
			Plugin:     plugin,
			PluginOpts: pluginOpts,
		},
	}, nil
}

// ToURI always emits Form A with URL-safe unpadded Base64.
func ToURI(p model.Proxy) (string, bool) {
	o, ok := p.Options.(*model.SSOptions)
	if !ok || o == nil {
		return "", false
	}
	user := rawURLBase64(o.Cipher + ":" + o.Password)

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString(user)
	b.WriteByte('@')
	b.WriteString(codec.JoinHostPort(p.Server, p.Port))
	if o.Plugin != "" {
		var pv strings.Builder
		pv.WriteString(o.Plugin)
		for _, kv := range o.PluginOpts {
			pv.WriteByte(';')
			pv.WriteString(kv.Key)
			pv.WriteByte('=')
			pv.WriteString(kv.Value)
		}
		b.WriteString("/?plugin=")
		b.WriteString(url.QueryEscape(pv.String()))
	}
	b.WriteString(codec.EncodeName(p.Name))
	return b.String(), true
}

func Validate(p model.Proxy) error {
	o, ok := p.Options.(*model.SSOptions)
	if !ok || o == nil {
		return errors.New("not a shadowsocks proxy")
	}
	if o.Cipher == "" {
		return errors.New("empty cipher")
	}
	if o.Password == "" {
		return errors.New("empty password")
	}
	return nil
}

// parsePlugin only looks at the "plugin" parameter. The value is split on
// ';' into a name and ordered k=v options, e.g.
// plugin=obfs-local;obfs=http;obfs-host=cdn.test
func parsePlugin(uri, query string) (string, []model.KV, error) {
	if query == "" {
		return "", nil, nil
	}
	q := codec.ParseQuery(query)
	raw := strings.TrimSpace(q.Get("plugin"))
	if raw == "" {
		return "", nil, nil
	}

	segs := strings.Split(raw, ";")
	name := strings.TrimSpace(segs[0])
	if name == "" {
		return "", nil, codec.Malformed(uri, "plugin 名称不能为空", nil)
	}
	opts := make([]model.KV, 0, len(segs)-1)
	for _, seg := range segs[1:] {
		if seg == "" {
			continue
		}
		k, v, ok := strings.Cut(seg, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			return "", nil, codec.Malformed(uri, "plugin 选项 key 不能为空", nil)
		}
		if !ok {
			// Bare flags such as "tls" in v2ray-plugin.
			v = "true"
		}
		opts = append(opts, model.KV{Key: k, Value: v})
	}
	return name, opts, nil
}

func splitMethodPassword(s string) (string, string, error) {
	method, password, ok := strings.Cut(s, ":")
	if !ok {
		return "", "", errors.New("missing ':'")
	}
	method = strings.TrimSpace(method)
	// Some providers encode "method:password\r\n".
	password = strings.TrimRight(password, "\r\n")
	if method == "" || password == "" {
		return "", "", errors.New("empty method or password")
	}
	if strings.ContainsAny(method, "\r\n\x00") || strings.ContainsAny(password, "\r\n\x00") {
		return "", "", errors.New("control chars in method/password")
	}
	return strings.ToLower(method), password, nil
}

func cutLast(s, sep string) (string, string, bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
