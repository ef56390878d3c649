package httpapi

import (
	"strings"
	"testing"

	"github.com/John-Robertt/subforge/internal/render"
)

func TestValidateFileName(t *testing.T) {
	if got, err := validateFileName("  my sub "); err != nil || got != "my sub" {
		t.Fatalf("validateFileName = %q, %v", got, err)
	}
	if got, err := validateFileName(""); err != nil || got != "" {
		t.Fatalf("empty fileName = %q, %v", got, err)
	}
	for _, bad := range []string{"a/b", `a\b`, "a\nb", strings.Repeat("x", 201)} {
		if _, err := validateFileName(bad); err == nil {
			t.Fatalf("validateFileName(%q) should fail", bad)
		}
	}
}

func TestWithExt(t *testing.T) {
	cases := []struct {
		name   string
		target render.Target
		want   string
	}{
		{"my", render.TargetClash, "my.yaml"},
		{"my", render.TargetSingBox, "my.json"},
		{"my.conf", render.TargetClash, "my.conf"},
		{".hidden", render.TargetSingBox, ".hidden.json"},
	}
	for _, c := range cases {
		if got := withExt(c.name, c.target); got != c.want {
			t.Fatalf("withExt(%q, %s) = %q, want %q", c.name, c.target, got, c.want)
		}
	}
}
