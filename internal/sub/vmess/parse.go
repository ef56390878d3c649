package vmess

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/sub/codec"
)

const scheme = "vmess://"

// link is the v2rayN share format. Providers emit port/aid both as numbers
// and as strings, hence flexString.
type link struct {
	V    flexString `json:"v,omitempty"`
	PS   string     `json:"ps,omitempty"`
	Add  string     `json:"add"`
	Port flexString `json:"port"`
	ID   string     `json:"id"`
	Aid  flexString `json:"aid,omitempty"`
	Scy  string     `json:"scy,omitempty"`
	Net  string     `json:"net,omitempty"`
	Type string     `json:"type,omitempty"`
	Host string     `json:"host,omitempty"`
	Path string     `json:"path,omitempty"`
	TLS  string     `json:"tls,omitempty"`
	SNI  string     `json:"sni,omitempty"`
	ALPN string     `json:"alpn,omitempty"`
	FP   string     `json:"fp,omitempty"`
}

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Parse decodes vmess://<base64(json)>.
func Parse(uri string) (model.Proxy, error) {
	s := strings.TrimSpace(uri)
	if !strings.HasPrefix(strings.ToLower(s), scheme) {
		return model.Proxy{}, codec.Malformed(uri, "不是 vmess:// 链接", nil)
	}
	body, _, _ := strings.Cut(s[len(scheme):], "#")

	decoded, ok := codec.DecodeBase64(body)
	if !ok {
		return model.Proxy{}, codec.Malformed(uri, "vmess base64 解码失败", nil)
	}
	var l link
	if err := json.Unmarshal([]byte(decoded), &l); err != nil {
		return model.Proxy{}, codec.Malformed(uri, "vmess JSON 不合法", err)
	}

	server := strings.Trim(strings.TrimSpace(l.Add), "[]")
	if server == "" {
		return model.Proxy{}, codec.Malformed(uri, "vmess 缺少 add", nil)
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(l.Port)))
	if err != nil || port < 1 || port > 65535 {
		return model.Proxy{}, codec.Malformed(uri, "vmess port 不合法", err)
	}
	id := strings.TrimSpace(l.ID)
	if id == "" {
		return model.Proxy{}, codec.Malformed(uri, "vmess 缺少 id", nil)
	}
	aid := 0
	if a := strings.TrimSpace(string(l.Aid)); a != "" {
		aid, err = strconv.Atoi(a)
		if err != nil || aid < 0 {
			return model.Proxy{}, codec.Malformed(uri, "vmess aid 不合法", err)
		}
	}

	o := &model.VMessOptions{
		UUID:    id,
		AlterID: aid,
		Cipher:  strings.TrimSpace(l.Scy),
	}
	if o.Cipher == "" {
		o.Cipher = "auto"
	}

	o.Transport.Network = strings.ToLower(strings.TrimSpace(l.Net))
	if o.Transport.Network == "" {
		o.Transport.Network = "tcp"
	}
	switch o.Transport.Network {
	case "ws", "httpupgrade", "h2", "http":
		o.Transport.Path = l.Path
		o.Transport.Host = l.Host
	case "grpc":
		// v2rayN stores the gRPC service name in "path".
		o.Transport.ServiceName = l.Path
	}

	if strings.EqualFold(strings.TrimSpace(l.TLS), "tls") {
		o.TLS = model.TLS{
			Enabled:     true,
			SNI:         strings.TrimSpace(l.SNI),
			Fingerprint: strings.TrimSpace(l.FP),
			ALPN:        codec.SplitList(l.ALPN),
		}
	}

	return model.Proxy{
		Name:    codec.CleanName(l.PS),
		Server:  server,
		Port:    port,
		Options: o,
	}, nil
}

func ToURI(p model.Proxy) (string, bool) {
	o, ok := p.Options.(*model.VMessOptions)
	if !ok || o == nil {
		return "", false
	}
	l := link{
		V:    "2",
		PS:   p.Name,
		Add:  p.Server,
		Port: flexString(strconv.Itoa(p.Port)),
		ID:   o.UUID,
		Aid:  flexString(strconv.Itoa(o.AlterID)),
		Scy:  o.Cipher,
		Net:  o.Transport.Network,
		Host: o.Transport.Host,
		Path: o.Transport.Path,
	}
	if o.Transport.Network == "grpc" {
		l.Path = o.Transport.ServiceName
		l.Host = ""
	}
	if o.TLS.Enabled {
		l.TLS = "tls"
		l.SNI = o.TLS.SNI
		l.FP = o.TLS.Fingerprint
		l.ALPN = strings.Join(o.TLS.ALPN, ",")
	}
	b, err := json.Marshal(l)
	if err != nil {
		return "", false
	}
	return scheme + base64.StdEncoding.EncodeToString(b), true
}

func Validate(p model.Proxy) error {
	o, ok := p.Options.(*model.VMessOptions)
	if !ok || o == nil {
		return errors.New("not a vmess proxy")
	}
	if strings.TrimSpace(o.UUID) == "" {
		return errors.New("empty uuid")
	}
	if o.AlterID < 0 {
		return errors.New("negative alterId")
	}
	return nil
}
