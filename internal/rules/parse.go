// Package rules parses operator rule lines (TYPE,VALUE,ACTION[,no-resolve]).
package rules

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/John-Robertt/subforge/internal/model"
)

// RuleError is the position-free failure of a single line.
type RuleError struct {
	Code    string
	Message string
	Hint    string
	Cause   error
}

func (e *RuleError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *RuleError) Unwrap() error { return e.Cause }

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

// Types lists the accepted rule types.
var Types = []string{
	"DOMAIN", "DOMAIN-SUFFIX", "DOMAIN-KEYWORD", "GEOIP", "GEOSITE",
	"IP-CIDR", "IP-CIDR6", "PROCESS-NAME",
}

// ParseText parses newline-separated rule lines; '#' comments and blank
// lines are skipped. origin ("config" or "request") ends up in errors so an
// operator can tell which list is broken. The first bad line fails the
// whole list.
func ParseText(origin, text string) ([]model.Rule, error) {
	lines := strings.Split(text, "\n")
	out := make([]model.Rule, 0, len(lines))
	for i, raw := range lines {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r, err := ParseInlineRule(line)
		if err != nil {
			return nil, positioned(err, origin, i+1, raw)
		}
		out = append(out, r)
	}
	return out, nil
}

// ParseLines is ParseText over an already split list (config file form).
func ParseLines(origin string, lines []string) ([]model.Rule, error) {
	return ParseText(origin, strings.Join(lines, "\n"))
}

func positioned(err error, origin string, line int, raw string) error {
	app := model.AppError{
		Code:    model.CodeRuleParse,
		Message: "invalid rule line",
		Stage:   "parse_rules",
		URL:     origin,
		Line:    line,
		Snippet: truncateSnippet(raw, 200),
	}
	var rerr *RuleError
	if errors.As(err, &rerr) {
		app.Code, app.Message, app.Hint = rerr.Code, rerr.Message, rerr.Hint
		err = rerr.Cause
	}
	return &ParseError{AppError: app, Cause: err}
}

// ParseInlineRule parses a single rule line. ACTION is required.
func ParseInlineRule(line string) (model.Rule, error) {
	line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	if line == "" {
		return model.Rule{}, &RuleError{Code: model.CodeRuleParse, Message: "rule line is empty"}
	}
	if strings.HasPrefix(line, "#") {
		return model.Rule{}, &RuleError{Code: model.CodeRuleParse, Message: "rule line is comment"}
	}

	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	typ := strings.ToUpper(parts[0])
	switch typ {
	case "":
		return model.Rule{}, &RuleError{Code: model.CodeRuleParse, Message: "规则类型不能为空"}
	case "DOMAIN", "DOMAIN-SUFFIX", "DOMAIN-KEYWORD", "GEOIP", "GEOSITE", "PROCESS-NAME":
		return parseSimple(typ, parts)
	case "IP-CIDR", "IP-CIDR6":
		return parseIPCidr(typ, parts)
	case "MATCH", "FINAL":
		return model.Rule{}, &RuleError{
			Code:    model.CodeRuleParse,
			Message: "自定义规则不允许包含 MATCH",
			Hint:    "the final rule is generated",
		}
	default:
		return model.Rule{}, &RuleError{
			Code:    model.CodeUnsupportedRule,
			Message: fmt.Sprintf("不支持的规则类型：%s", typ),
			Hint:    "supported: " + strings.Join(Types, ", "),
		}
	}
}

func parseSimple(typ string, parts []string) (model.Rule, error) {
	if len(parts) != 3 {
		return model.Rule{}, &RuleError{
			Code:    model.CodeRuleParse,
			Message: "规则字段数量不合法",
			Hint:    "expected: TYPE,VALUE,ACTION",
		}
	}
	if parts[1] == "" {
		return model.Rule{}, &RuleError{Code: model.CodeRuleParse, Message: "规则 VALUE 不能为空"}
	}
	action, err := parseAction(parts[2])
	if err != nil {
		return model.Rule{}, err
	}
	value := parts[1]
	if typ == "GEOIP" || typ == "GEOSITE" {
		value = strings.ToUpper(value)
	}
	return model.Rule{Type: typ, Value: value, Action: action}, nil
}

func parseIPCidr(typ string, parts []string) (model.Rule, error) {
	hint := "expected: " + typ + ",CIDR,ACTION[,no-resolve]"
	if len(parts) < 3 || len(parts) > 4 {
		return model.Rule{}, &RuleError{Code: model.CodeRuleParse, Message: typ + " 规则字段数量不合法", Hint: hint}
	}
	if strings.EqualFold(parts[2], "no-resolve") {
		return model.Rule{}, &RuleError{
			Code:    model.CodeRuleParse,
			Message: typ + " 缺少 ACTION（不允许仅写 no-resolve）",
			Hint:    hint,
		}
	}
	if len(parts) == 4 && !strings.EqualFold(parts[3], "no-resolve") {
		return model.Rule{}, &RuleError{Code: model.CodeRuleParse, Message: typ + " 的可选项仅支持 no-resolve", Hint: hint}
	}
	if err := validateCIDR(typ, parts[1]); err != nil {
		return model.Rule{}, &RuleError{Code: model.CodeRuleParse, Message: typ + " 的 CIDR 不合法", Hint: hint, Cause: err}
	}
	action, err := parseAction(parts[2])
	if err != nil {
		return model.Rule{}, err
	}
	return model.Rule{Type: typ, Value: parts[1], Action: action, NoResolve: len(parts) == 4}, nil
}

func parseAction(s string) (string, error) {
	switch a := strings.ToUpper(strings.TrimSpace(s)); a {
	case model.ActionDirect, model.ActionReject, model.ActionProxy:
		return a, nil
	case "":
		return "", &RuleError{Code: model.CodeRuleParse, Message: "规则缺少 ACTION", Hint: "expected: TYPE,VALUE,ACTION"}
	default:
		return "", &RuleError{
			Code:    model.CodeRuleParse,
			Message: fmt.Sprintf("不支持的 ACTION：%s", s),
			Hint:    "ACTION must be DIRECT, REJECT or PROXY",
		}
	}
}

func validateCIDR(typ, s string) error {
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return err
	}
	if typ == "IP-CIDR" && !prefix.Addr().Is4() {
		return errors.New("not an ipv4 cidr")
	}
	if typ == "IP-CIDR6" && !prefix.Addr().Is6() {
		return errors.New("not an ipv6 cidr")
	}
	return nil
}

func truncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}
