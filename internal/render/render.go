// Package render compiles canonical proxies into client documents: the
// tabular Clash (mihomo) YAML and the nested sing-box JSON.
package render

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/John-Robertt/subforge/internal/model"
)

type Target string

const (
	TargetAuto    Target = "auto"
	TargetClash   Target = "clash"
	TargetSingBox Target = "singbox"
	TargetPreview Target = "preview"
)

// ParseTarget accepts the query spellings of a target; "" means auto.
func ParseTarget(s string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return TargetAuto, nil
	case "clash", "mihomo", "clash.meta", "yaml":
		return TargetClash, nil
	case "singbox", "sing-box", "sfa", "sfi", "json":
		return TargetSingBox, nil
	case "preview", "html":
		return TargetPreview, nil
	default:
		return "", &RenderError{AppError: model.AppError{
			Code:    model.CodeInvalidArgument,
			Message: fmt.Sprintf("不支持的 target：%s", s),
			Stage:   "validate_request",
			Hint:    "target=auto|clash|singbox|preview",
		}}
	}
}

// Output is one compiled document plus the transport headers it should be
// served with.
type Output struct {
	Body        []byte
	ContentType string
	Headers     http.Header

	// Diagnostics lists proxies or rules the target could not express.
	Diagnostics model.Diagnostics
}

type RenderError struct {
	AppError model.AppError
	Cause    error
}

func (e *RenderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

func (e *RenderError) Payload() model.AppError { return e.AppError }

func internalError(message string, cause error) error {
	return &RenderError{
		AppError: model.AppError{Code: model.CodeInternal, Message: message, Stage: "render"},
		Cause:    cause,
	}
}

// skipped records a proxy or rule dropped by one target.
func skipped(message, snippet string) model.AppError {
	return model.AppError{
		Code:    model.CodeUnsupportedProtocol,
		Message: message,
		Stage:   "render",
		Snippet: snippet,
	}
}
