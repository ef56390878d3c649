package source

import (
	"strings"

	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/sub"
	"github.com/John-Robertt/subforge/internal/sub/codec"
)

// ParseDocument sniffs a fetched subscription body and parses it. Three
// shapes are recognised, tried in order: tabular YAML with a top-level
// proxies key, a plain URI list, and a Base64-encoded URI list. Only
// tabular documents carry chain rules, taken from dialer-proxy fields.
func ParseDocument(url, body string) ([]model.Proxy, []model.ChainRule, model.Diagnostics) {
	body = strings.TrimSpace(codec.StripBOM(body))
	if body == "" {
		return nil, nil, model.Diagnostics{}
	}
	if looksTabular(body) {
		return parseTabular(url, body)
	}
	if strings.Contains(body, "://") {
		ps, diag := parseLines(url, body)
		return ps, nil, diag
	}

	decoded, ok := codec.DecodeBase64(codec.RemoveWhitespace(body))
	if !ok {
		var diag model.Diagnostics
		diag.AddPayload(model.AppError{
			Code:    model.CodeMalformedURI,
			Message: "订阅内容既不是 URI 列表也不是 Base64",
			Stage:   "decode_sub",
			URL:     url,
			Snippet: codec.Snippet(body, 200),
		})
		return nil, nil, diag
	}
	if looksTabular(decoded) {
		return parseTabular(url, decoded)
	}
	ps, diag := parseLines(url, decoded)
	return ps, nil, diag
}

func parseLines(url, text string) ([]model.Proxy, model.Diagnostics) {
	var (
		out  []model.Proxy
		diag model.Diagnostics
	)
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if isSkippable(line) {
			continue
		}
		p, err := sub.Parse(line)
		if err != nil {
			diag.AddPayload(lineError(err, url, i+1))
			continue
		}
		out = append(out, p)
	}
	return out, diag
}

func isSkippable(line string) bool {
	return line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//")
}
