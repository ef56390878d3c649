package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// keyBuilder joins identity fields with a unit separator so that adjacent
// fields can never run into each other.
type keyBuilder struct {
	b strings.Builder
}

func (k *keyBuilder) add(vals ...string) {
	for _, v := range vals {
		if k.b.Len() > 0 {
			k.b.WriteByte(0x1f)
		}
		k.b.WriteString(v)
	}
}

func (k *keyBuilder) addInt(v int) { k.add(strconv.Itoa(v)) }

func (k *keyBuilder) addBool(v bool) {
	if v {
		k.add("1")
		return
	}
	k.add("0")
}

func (k *keyBuilder) addTLS(t TLS) {
	k.addBool(t.Enabled)
	k.add(strings.ToLower(t.SNI), t.Fingerprint)
	k.add(sortedALPN(t.ALPN))
	k.addBool(t.SkipCertVerify)
	if t.Reality != nil {
		k.add("reality", t.Reality.PublicKey, t.Reality.ShortID)
	} else {
		k.add("", "", "")
	}
}

func (k *keyBuilder) addTransport(t Transport) {
	network := t.Network
	if network == "" {
		network = "tcp"
	}
	k.add(network, t.Path, strings.ToLower(t.Host), t.ServiceName)
}

func (k *keyBuilder) String() string { return k.b.String() }

// CanonicalUUID lower-cases and normalizes s when it parses as a UUID, so
// that "ABCD..." and "{abcd...}" identify the same user.
func CanonicalUUID(s string) string {
	s = strings.TrimSpace(s)
	if u, err := uuid.Parse(s); err == nil {
		return u.String()
	}
	return strings.ToLower(s)
}

func sortedALPN(alpn []string) string {
	if len(alpn) == 0 {
		return ""
	}
	cp := slices.Clone(alpn)
	slices.Sort(cp)
	return strings.Join(cp, ",")
}

func (o *SSOptions) IdentityKey() string {
	var k keyBuilder
	k.add(strings.ToLower(o.Cipher), o.Password, o.Plugin)
	for _, kv := range o.PluginOpts {
		k.add(kv.Key + "=" + kv.Value)
	}
	return k.String()
}

func (o *VMessOptions) IdentityKey() string {
	var k keyBuilder
	k.add(CanonicalUUID(o.UUID))
	k.addInt(o.AlterID)
	k.add(o.Cipher)
	k.addTransport(o.Transport)
	k.addTLS(o.TLS)
	return k.String()
}

func (o *TrojanOptions) IdentityKey() string {
	var k keyBuilder
	k.add(o.Password)
	k.addTransport(o.Transport)
	k.addTLS(o.TLS)
	return k.String()
}

func (o *VLESSOptions) IdentityKey() string {
	var k keyBuilder
	k.add(CanonicalUUID(o.UUID), o.Flow, o.Encryption)
	k.addTransport(o.Transport)
	k.addTLS(o.TLS)
	return k.String()
}

func (o *Hysteria2Options) IdentityKey() string {
	var k keyBuilder
	k.add(o.Password, o.Obfs, o.ObfsPassword, o.Ports)
	k.addTLS(o.TLS)
	return k.String()
}

func (o *AnyTLSOptions) IdentityKey() string {
	var k keyBuilder
	k.add(o.Password)
	k.addTLS(o.TLS)
	k.add(o.IdleSessionCheckInterval, o.IdleSessionTimeout, o.MinIdleSession)
	return k.String()
}

func (o *SOCKS5Options) IdentityKey() string {
	var k keyBuilder
	k.add(o.Username, o.Password)
	return k.String()
}

// IdentityKey falls back to a structural serialization of every field.
// encoding/json emits map keys sorted, which keeps the key deterministic.
func (o *GenericOptions) IdentityKey() string {
	fields := make(map[string]any, len(o.Fields))
	for k, v := range o.Fields {
		if k == "name" {
			continue
		}
		fields[k] = v
	}
	b, err := json.Marshal(fields)
	if err != nil {
		// Non-string map keys. fmt prints maps with sorted keys too.
		return fmt.Sprintf("%v", fields)
	}
	return string(b)
}
