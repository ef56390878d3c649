package httpapi

import (
	"strings"

	"github.com/John-Robertt/subforge/internal/render"
)

// DetectTarget picks the output for target=auto from the User-Agent:
// sing-box apps get the nested document, browsers the preview page and
// everything else the tabular document.
func DetectTarget(userAgent string) render.Target {
	ua := strings.ToLower(userAgent)
	switch {
	case containsAny(ua, "sing-box", "singbox", "sfa/", "sfi/", "sfm/", "sft/"):
		return render.TargetSingBox
	case containsAny(ua, "clash", "mihomo", "stash"):
		return render.TargetClash
	case strings.HasPrefix(ua, "mozilla/"):
		return render.TargetPreview
	default:
		return render.TargetClash
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
