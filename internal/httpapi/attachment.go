package httpapi

import (
	"strings"

	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/render"
)

// validateFileName checks the optional fileName override. By default the
// attachment name comes from the subscription title.
func validateFileName(name string) (string, error) {
	base := strings.TrimSpace(name)
	if base == "" {
		return "", nil
	}
	if strings.ContainsAny(base, "\r\n\x00") {
		return "", requestError(model.CodeInvalidArgument, "fileName 含有非法控制字符", "")
	}
	if strings.Contains(base, "/") || strings.Contains(base, "\\") {
		return "", requestError(model.CodeInvalidArgument, "fileName 不允许包含路径分隔符", "")
	}
	if len(base) > 200 {
		return "", requestError(model.CodeInvalidArgument, "fileName 过长", "max=200 bytes")
	}
	return base, nil
}

// withExt appends the extension of target unless name already has one.
func withExt(name string, target render.Target) string {
	if hasExt(name) {
		return name
	}
	switch target {
	case render.TargetClash:
		return name + ".yaml"
	case render.TargetSingBox:
		return name + ".json"
	default:
		return name
	}
}

func hasExt(name string) bool {
	i := strings.LastIndexByte(name, '.')
	return i > 0 && i < len(name)-1
}
