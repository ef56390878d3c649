package rules

import (
	"errors"
	"testing"

	"github.com/John-Robertt/subforge/internal/model"
)

func TestParseInlineRule_RequireAction(t *testing.T) {
	_, err := ParseInlineRule("DOMAIN,example.com")
	var re *RuleError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuleError, got %T: %v", err, err)
	}
	if re.Code != "RULE_PARSE_ERROR" {
		t.Fatalf("code=%q, want=%q", re.Code, "RULE_PARSE_ERROR")
	}
}

func TestParseInlineRule_IPCIDR_NoResolveWithoutAction_Error(t *testing.T) {
	_, err := ParseInlineRule("IP-CIDR,1.1.1.1/32,no-resolve")
	var re *RuleError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuleError, got %T: %v", err, err)
	}
	if re.Code != "RULE_PARSE_ERROR" {
		t.Fatalf("code=%q, want=%q", re.Code, "RULE_PARSE_ERROR")
	}
}

func TestParseInlineRule_UnsupportedType(t *testing.T) {
	_, err := ParseInlineRule("DST-PORT,443,DIRECT")
	var re *RuleError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuleError, got %T: %v", err, err)
	}
	if re.Code != "UNSUPPORTED_RULE_TYPE" {
		t.Fatalf("code=%q, want=%q", re.Code, "UNSUPPORTED_RULE_TYPE")
	}
}

func TestParseInlineRule_ActionIsLimited(t *testing.T) {
	r, err := ParseInlineRule("domain-suffix, openai.com , proxy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Type != "DOMAIN-SUFFIX" || r.Value != "openai.com" || r.Action != model.ActionProxy {
		t.Fatalf("rule=%+v", r)
	}

	_, err = ParseInlineRule("DOMAIN,example.com,MyGroup")
	var re *RuleError
	if !errors.As(err, &re) || re.Code != model.CodeRuleParse {
		t.Fatalf("expected RULE_PARSE_ERROR, got %v", err)
	}
}

func TestParseInlineRule_CIDRFamilies(t *testing.T) {
	r, err := ParseInlineRule("IP-CIDR6,2001:db8::/32,REJECT,no-resolve")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.NoResolve || r.Action != model.ActionReject {
		t.Fatalf("rule=%+v", r)
	}
	if _, err := ParseInlineRule("IP-CIDR,2001:db8::/32,DIRECT"); err == nil {
		t.Fatalf("expected error for ipv6 prefix in IP-CIDR")
	}
}

func TestParseInlineRule_MatchRejected(t *testing.T) {
	if _, err := ParseInlineRule("MATCH,DIRECT"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseText_Position(t *testing.T) {
	text := "# mine\nDOMAIN,a.com,DIRECT\n\nGEOIP,cn,DIRECT\nDOMAIN,b.com\n"
	_, err := ParseText("request", text)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if pe.AppError.Line != 5 || pe.AppError.URL != "request" || pe.AppError.Stage != "parse_rules" {
		t.Fatalf("payload=%+v", pe.AppError)
	}

	got, err := ParseText("config", "DOMAIN,a.com,DIRECT\r\nGEOIP,cn,DIRECT\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[1].Value != "CN" {
		t.Fatalf("rules=%+v", got)
	}
}
