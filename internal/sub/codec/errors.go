package codec

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/subforge/internal/model"
)

type ParseError struct {
	AppError model.AppError
	Cause    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

func (e *ParseError) Payload() model.AppError { return e.AppError }

// Malformed reports a MALFORMED_URI failure for uri.
func Malformed(uri, message string, cause error) error {
	return newParseError(uri, model.CodeMalformedURI, message, "", cause)
}

// Unsupported reports a recognised scheme without a codec.
func Unsupported(uri, scheme string) error {
	return newParseError(uri, model.CodeUnsupportedProtocol, fmt.Sprintf("不支持的协议：%s", scheme),
		"supported: ss, vmess, trojan, vless, hysteria2, anytls, socks5", nil)
}

func newParseError(uri, code, message, hint string, cause error) error {
	return &ParseError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "parse_uri",
			Snippet: Snippet(uri, 200),
			Hint:    hint,
		},
		Cause: cause,
	}
}

// Snippet trims s to max bytes on a rune boundary and drops line breaks.
func Snippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
