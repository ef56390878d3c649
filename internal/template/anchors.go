// Package template injects generated YAML blocks into an operator-supplied
// Clash skeleton.
package template

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	AnchorProxies = "#@PROXIES@#"
	AnchorGroups  = "#@GROUPS@#"
	AnchorRules   = "#@RULES@#"
)

var anchors = []string{AnchorProxies, AnchorGroups, AnchorRules}

// Blocks are YAML sequences without their parent key; each line is
// indented by the anchor's own indentation.
type Blocks struct {
	Proxies string
	Groups  string
	Rules   string
}

// InjectAnchors validates anchors and injects 3 blocks into the template.
// It preserves indentation (leading whitespace) and newline style (CRLF/LF).
// path only labels errors.
func InjectAnchors(templateText string, blocks Blocks, path string) (string, error) {
	if strings.TrimSpace(templateText) == "" {
		return "", templateError(path, "template 不能为空", "", "", nil)
	}

	newline := detectNewline(templateText)
	normalized := strings.ReplaceAll(templateText, "\r\n", "\n")
	lines := strings.Split(normalized, "\n")
	endsWithNewline := strings.HasSuffix(normalized, "\n")

	pos, err := findAnchors(lines, path)
	if err != nil {
		return "", err
	}

	lines[pos[AnchorProxies]] = indentBlock(lines[pos[AnchorProxies]], blocks.Proxies)
	lines[pos[AnchorGroups]] = indentBlock(lines[pos[AnchorGroups]], blocks.Groups)
	lines[pos[AnchorRules]] = indentBlock(lines[pos[AnchorRules]], blocks.Rules)

	out := strings.Join(lines, "\n")
	if !endsWithNewline {
		out = strings.TrimSuffix(out, "\n")
	}
	if newline == "\r\n" {
		out = strings.ReplaceAll(out, "\n", "\r\n")
	}
	return out, nil
}

// Validate reports whether the injected document is still a YAML mapping.
func Validate(doc, path string) error {
	var root map[string]any
	if err := yaml.Unmarshal([]byte(doc), &root); err != nil {
		return templateError(path, "注入后的模板不是合法 YAML", "", "", err)
	}
	if root == nil {
		return templateError(path, "注入后的模板为空", "", "", nil)
	}
	return nil
}

func findAnchors(lines []string, path string) (map[string]int, error) {
	pos := make(map[string]int, len(anchors))
	for i, line := range lines {
		for _, a := range anchors {
			if !strings.Contains(line, a) {
				continue
			}
			// Fail fast if an anchor appears but is not standalone.
			if strings.TrimSpace(line) != a {
				return nil, templateError(path, "锚点必须独占一行", line, a, nil)
			}
			if _, dup := pos[a]; dup {
				return nil, templateError(path, fmt.Sprintf("锚点 %s 重复出现", a), line, a, nil)
			}
			// Blocks are list items, so an anchor at column 0 would land
			// outside its parent key.
			if leadingWhitespace(line) == "" {
				return nil, templateError(path, "模板锚点缩进不能为 0（应位于对应列表下方）", line, a, nil)
			}
			pos[a] = i
		}
	}
	for _, a := range anchors {
		if _, ok := pos[a]; !ok {
			return nil, templateError(path, fmt.Sprintf("缺少锚点 %s", a), "", a, nil)
		}
	}
	return pos, nil
}

func indentBlock(anchorLine string, block string) string {
	indent := leadingWhitespace(anchorLine)
	if block == "" {
		return ""
	}
	blockLines := strings.Split(strings.TrimRight(block, "\n"), "\n")
	for i := range blockLines {
		blockLines[i] = indent + blockLines[i]
	}
	return strings.Join(blockLines, "\n")
}

func leadingWhitespace(line string) string {
	i := 0
	for i < len(line) {
		if line[i] == ' ' || line[i] == '\t' {
			i++
			continue
		}
		break
	}
	return line[:i]
}

func detectNewline(s string) string {
	if strings.Contains(s, "\r\n") {
		return "\r\n"
	}
	return "\n"
}
