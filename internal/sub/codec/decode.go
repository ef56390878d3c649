package codec

import (
	"encoding/base64"
	"net/url"
	"strings"
	"unicode/utf8"
)

// DecodeStrategy turns an encoded segment into text. ok=false means the
// strategy does not apply and the next one should be tried.
type DecodeStrategy func(s string) (string, bool)

// Base64Strategies is the fallback order for Base64 payloads: both
// alphabets, padded first, then raw.
var Base64Strategies = []DecodeStrategy{
	base64With(base64.StdEncoding),
	base64With(base64.URLEncoding),
	base64With(base64.RawStdEncoding),
	base64With(base64.RawURLEncoding),
}

// Decode runs strategies in order and returns the first success.
func Decode(s string, strategies ...DecodeStrategy) (string, bool) {
	for _, st := range strategies {
		if out, ok := st(s); ok {
			return out, true
		}
	}
	return "", false
}

// DecodeBase64 is Decode with Base64Strategies.
func DecodeBase64(s string) (string, bool) {
	return Decode(s, Base64Strategies...)
}

// Plaintext accepts s as percent-encoded text.
func Plaintext(s string) (string, bool) {
	out, err := url.PathUnescape(s)
	if err != nil {
		return "", false
	}
	return out, true
}

// RequireSeparator wraps a strategy so that it only succeeds when the decoded
// value contains sep.
func RequireSeparator(st DecodeStrategy, sep string) DecodeStrategy {
	return func(s string) (string, bool) {
		out, ok := st(s)
		if !ok || !strings.Contains(out, sep) {
			return "", false
		}
		return out, true
	}
}

func base64With(enc *base64.Encoding) DecodeStrategy {
	return func(s string) (string, bool) {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", false
		}
		if enc.Padding() != base64.NoPadding {
			s = RestorePadding(strings.TrimRight(s, "="))
		}
		b, err := enc.DecodeString(s)
		if err != nil || !utf8.Valid(b) {
			return "", false
		}
		return string(b), true
	}
}

// RestorePadding appends "=" until len(s) is a multiple of 4.
func RestorePadding(s string) string {
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}
	return s
}

// RemoveWhitespace drops spaces, tabs and line breaks, as found in
// wrapped Base64 subscription bodies.
func RemoveWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func StripBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}
