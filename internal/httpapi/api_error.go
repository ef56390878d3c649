package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/subforge/internal/fetch"
	"github.com/John-Robertt/subforge/internal/model"
)

// APIError is used by the HTTP layer for request validation and a few
// HTTP-specific errors.
type APIError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

func (e *APIError) Payload() model.AppError { return e.AppError }

func apiError(status int, app model.AppError, cause error) error {
	return &APIError{Status: status, AppError: app, Cause: cause}
}

func requestError(code, message, hint string) error {
	return apiError(http.StatusBadRequest, model.AppError{
		Code:    code,
		Message: message,
		Stage:   "validate_request",
		Hint:    hint,
	}, nil)
}

func writeErrorFromErr(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var ae *APIError
	if errors.As(err, &ae) {
		WriteError(w, ae.Status, ae.AppError)
		return
	}

	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		WriteError(w, fe.Status, fe.AppError)
		return
	}

	if app, ok := model.PayloadOf(err); ok {
		WriteError(w, statusForCode(app.Code), app)
		return
	}

	// Fallback: internal bug.
	logrus.WithError(err).Errorln("[HTTP] unclassified error")
	WriteError(w, http.StatusInternalServerError, model.AppError{
		Code:    model.CodeInternal,
		Message: "服务端内部错误",
		Stage:   "internal",
	})
}

// statusForCode maps stage errors that carry no HTTP status of their own.
// Anything about the user's content is 422.
func statusForCode(code string) int {
	switch code {
	case model.CodeInvalidArgument:
		return http.StatusBadRequest
	case model.CodeFetchTimeout:
		return http.StatusGatewayTimeout
	case model.CodeFetchFailed:
		return http.StatusBadGateway
	case model.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}
