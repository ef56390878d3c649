package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/John-Robertt/subforge/internal/compiler"
	"github.com/John-Robertt/subforge/internal/model"
)

func TestWriteError_JSONShapeAndHeaders(t *testing.T) {
	metrics = newMetricsStore()
	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusUnprocessableEntity, model.AppError{
		Code:    "RULE_PARSE_ERROR",
		Message: "invalid rule line",
		Stage:   "parse_rules",
		URL:     "request:rules",
		Line:    123,
		Snippet: "DOMAIN-SUFFIX,google.com",
		Hint:    "expected: TYPE,VALUE[,ACTION][,no-resolve]",
	})

	if got, want := rr.Code, http.StatusUnprocessableEntity; got != want {
		t.Fatalf("status = %d, want %d", got, want)
	}

	if got, want := rr.Header().Get("Content-Type"), "application/json; charset=utf-8"; got != want {
		t.Fatalf("Content-Type = %q, want %q", got, want)
	}

	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nbody=%q", err, rr.Body.String())
	}
	if resp.Error.Code != "RULE_PARSE_ERROR" {
		t.Fatalf("code = %q, want %q", resp.Error.Code, "RULE_PARSE_ERROR")
	}
	if resp.Error.Stage != "parse_rules" {
		t.Fatalf("stage = %q, want %q", resp.Error.Stage, "parse_rules")
	}
	if resp.Error.Line != 123 {
		t.Fatalf("line = %d, want %d", resp.Error.Line, 123)
	}

	_, _, errs, _, _ := metricsSnapshot()
	if len(errs) != 1 || errs[0].Stage != "parse_rules" || errs[0].Code != "RULE_PARSE_ERROR" || errs[0].N != 1 {
		t.Fatalf("app error metrics = %+v, want one parse_rules/RULE_PARSE_ERROR", errs)
	}
}

func TestWriteErrorFromErr_StageErrorStatus(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{model.CodeEmptySource, http.StatusUnprocessableEntity},
		{model.CodeFetchTimeout, http.StatusGatewayTimeout},
		{model.CodeFetchFailed, http.StatusBadGateway},
		{model.CodeInvalidArgument, http.StatusBadRequest},
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		writeErrorFromErr(rr, &compiler.CompileError{AppError: model.AppError{Code: c.code, Stage: "compile"}})
		if rr.Code != c.want {
			t.Fatalf("%s: status = %d, want %d", c.code, rr.Code, c.want)
		}
	}
}
