package source

import (
	"fmt"

	"github.com/John-Robertt/subforge/internal/model"
)

type SourceError struct {
	AppError model.AppError
	Cause    error
}

func (e *SourceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *SourceError) Unwrap() error { return e.Cause }

func (e *SourceError) Payload() model.AppError { return e.AppError }

func newSourceError(code, message, url, hint string, cause error) error {
	return &SourceError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "resolve_source",
			URL:     url,
			Hint:    hint,
		},
		Cause: cause,
	}
}

func emptySource(url string, diag model.Diagnostics) error {
	hint := ""
	if s := diag.Summary(); s != "" {
		hint = "skipped: " + s
	}
	return newSourceError(model.CodeEmptySource, "订阅解析后没有任何可用节点", url, hint, nil)
}

// lineError tags a per-line failure with its position in the document.
func lineError(err error, url string, line int) model.AppError {
	app, ok := model.PayloadOf(err)
	if !ok {
		app = model.AppError{Code: model.CodeMalformedURI, Message: err.Error(), Stage: "parse_uri"}
	}
	if app.URL == "" {
		app.URL = url
	}
	app.Line = line
	return app
}
