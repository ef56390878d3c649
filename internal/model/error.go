package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AppError is the only error payload returned by this service.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage"`

	URL     string `json:"url,omitempty"`
	Line    int    `json:"line,omitempty"`    // 1-based; 0 means "not set"
	Snippet string `json:"snippet,omitempty"` // <= 200 chars
	Hint    string `json:"hint,omitempty"`
}

type ErrorResponse struct {
	Error AppError `json:"error"`
}

// Error codes shared across stages.
const (
	CodeMalformedURI        = "MALFORMED_URI"
	CodeUnsupportedProtocol = "UNSUPPORTED_PROTOCOL"
	CodeEmptySource         = "EMPTY_SOURCE"
	CodeOversizedSource     = "OVERSIZED_SOURCE"
	CodeCycleDetected       = "CYCLE_DETECTED"
	CodeFetchFailed         = "FETCH_FAILED"
	CodeFetchTimeout        = "FETCH_TIMEOUT"
	CodeFetchInvalidUTF8    = "FETCH_INVALID_UTF8"
	CodeInvalidArgument     = "INVALID_ARGUMENT"
	CodeRuleParse           = "RULE_PARSE_ERROR"
	CodeUnsupportedRule     = "UNSUPPORTED_RULE_TYPE"
	CodeTemplate            = "TEMPLATE_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
)

// Coded is implemented by every stage error of this service.
type Coded interface {
	error
	Payload() AppError
}

// PayloadOf extracts the AppError carried by err, if any.
func PayloadOf(err error) (AppError, bool) {
	var c Coded
	if errors.As(err, &c) {
		return c.Payload(), true
	}
	return AppError{}, false
}

const maxDiagnosticSamples = 20

// Diagnostics aggregates isolated failures of a batch (one bad line never
// aborts the batch). Counts are keyed by error code.
type Diagnostics struct {
	Counts  map[string]int `json:"counts,omitempty"`
	Samples []AppError     `json:"samples,omitempty"`
}

func (d *Diagnostics) Add(err error) {
	if err == nil {
		return
	}
	app, ok := PayloadOf(err)
	if !ok {
		app = AppError{Code: CodeInternal, Message: err.Error(), Stage: "internal"}
	}
	d.AddPayload(app)
}

func (d *Diagnostics) AddPayload(app AppError) {
	if d.Counts == nil {
		d.Counts = make(map[string]int)
	}
	d.Counts[app.Code]++
	if len(d.Samples) < maxDiagnosticSamples {
		d.Samples = append(d.Samples, app)
	}
}

func (d *Diagnostics) Merge(o Diagnostics) {
	for code, n := range o.Counts {
		if d.Counts == nil {
			d.Counts = make(map[string]int)
		}
		d.Counts[code] += n
	}
	for _, s := range o.Samples {
		if len(d.Samples) >= maxDiagnosticSamples {
			break
		}
		d.Samples = append(d.Samples, s)
	}
}

func (d Diagnostics) Total() int {
	n := 0
	for _, c := range d.Counts {
		n += c
	}
	return n
}

// Summary renders counts as "CODE=n" pairs sorted by code, e.g.
// "MALFORMED_URI=2,UNSUPPORTED_PROTOCOL=1".
func (d Diagnostics) Summary() string {
	if len(d.Counts) == 0 {
		return ""
	}
	codes := make([]string, 0, len(d.Counts))
	for code := range d.Counts {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var b strings.Builder
	for i, code := range codes {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%d", code, d.Counts[code])
	}
	return b.String()
}
