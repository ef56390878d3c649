package codec

import (
	"testing"
)

func TestDecodeBase64_RestoresPadding(t *testing.T) {
	for _, in := range []string{
		"YWVzLTI1Ni1nY206cGFzcw==",
		"YWVzLTI1Ni1nY206cGFzcw",
		"YWVzLTI1Ni1nY206cGFzcw=",
	} {
		got, ok := DecodeBase64(in)
		if !ok {
			t.Fatalf("DecodeBase64(%q) failed", in)
		}
		if got != "aes-256-gcm:pass" {
			t.Fatalf("DecodeBase64(%q)=%q, want=%q", in, got, "aes-256-gcm:pass")
		}
	}
}

func TestDecodeBase64_URLAlphabet(t *testing.T) {
	// "??>" encodes to "Pz8-" in the URL alphabet and "Pz8+" in the standard one.
	for _, in := range []string{"Pz8-", "Pz8+"} {
		got, ok := DecodeBase64(in)
		if !ok || got != "??>" {
			t.Fatalf("DecodeBase64(%q)=%q,%v, want=%q", in, got, ok, "??>")
		}
	}
}

func TestDecode_OrderIsRespected(t *testing.T) {
	first := func(string) (string, bool) { return "first", true }
	second := func(string) (string, bool) { return "second", true }
	got, ok := Decode("x", first, second)
	if !ok || got != "first" {
		t.Fatalf("got=%q, want=%q", got, "first")
	}

	none := func(string) (string, bool) { return "", false }
	got, ok = Decode("x", none, second)
	if !ok || got != "second" {
		t.Fatalf("got=%q, want=%q", got, "second")
	}

	if _, ok := Decode("x", none); ok {
		t.Fatalf("expected failure when no strategy applies")
	}
}

func TestRequireSeparator(t *testing.T) {
	st := RequireSeparator(Plaintext, ":")
	if _, ok := st("nocolon"); ok {
		t.Fatalf("expected rejection without separator")
	}
	if got, ok := st("a%3Ab"); !ok || got != "a:b" {
		t.Fatalf("got=%q,%v, want=%q", got, ok, "a:b")
	}
}

func TestSplitURI(t *testing.T) {
	u, err := SplitURI("trojan://p%40ss@[2001:db8::1]:443/?sni=a.test&type=ws#HK%20%E9%A6%99%E6%B8%AF")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Scheme != "trojan" || u.User() != "p@ss" {
		t.Fatalf("scheme/user=%q/%q", u.Scheme, u.User())
	}
	if u.Host != "2001:db8::1" || u.Port != 443 {
		t.Fatalf("host/port=%q/%d", u.Host, u.Port)
	}
	if u.Query.Get("sni") != "a.test" || u.Query.Get("type") != "ws" {
		t.Fatalf("query=%v", u.Query)
	}
	if u.Name != "HK 香港" {
		t.Fatalf("name=%q, want=%q", u.Name, "HK 香港")
	}
}

func TestSplitURI_BadPort(t *testing.T) {
	for _, in := range []string{"trojan://a@h.test", "trojan://a@h.test:0", "trojan://a@h.test:x", "trojan://a@:443"} {
		if _, err := SplitURI(in); err == nil {
			t.Fatalf("SplitURI(%q): expected error", in)
		}
	}
}

func TestSnippet_RuneBoundary(t *testing.T) {
	got := Snippet("香港香港", 4)
	if got != "香" {
		t.Fatalf("got=%q, want=%q", got, "香")
	}
}
