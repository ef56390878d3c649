package template

import (
	"fmt"

	"github.com/John-Robertt/subforge/internal/model"
)

type TemplateError struct {
	AppError model.AppError
	Cause    error
}

func (e *TemplateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *TemplateError) Unwrap() error { return e.Cause }

func (e *TemplateError) Payload() model.AppError { return e.AppError }

func templateError(path, message, snippet, hint string, cause error) error {
	return &TemplateError{
		AppError: model.AppError{
			Code:    model.CodeTemplate,
			Message: message,
			Stage:   "validate_template",
			URL:     path,
			Snippet: snippet,
			Hint:    hint,
		},
		Cause: cause,
	}
}
