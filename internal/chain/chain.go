// Package chain resolves "A->B" directives into single-hop upstream
// annotations on proxies.
package chain

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/subforge/internal/dedupe"
	"github.com/John-Robertt/subforge/internal/model"
)

type SkipReason string

const (
	SkipSelf       SkipReason = "self_reference"
	SkipCycle      SkipReason = "cycle"
	SkipNoUpstream SkipReason = "no_upstream"
	SkipNoTarget   SkipReason = "no_target"
)

// Skip records a rule (or one target of a rule) that was not applied.
type Skip struct {
	Rule   model.ChainRule
	Target string
	Reason SkipReason
}

// Payload reports self references and cycles as CYCLE_DETECTED and
// unmatched patterns as INVALID_ARGUMENT.
func (s Skip) Payload() model.AppError {
	code := model.CodeInvalidArgument
	if s.Reason == SkipSelf || s.Reason == SkipCycle {
		code = model.CodeCycleDetected
	}
	return model.AppError{
		Code:    code,
		Message: fmt.Sprintf("链式规则被跳过（%s）", s.Reason),
		Stage:   "chain",
		Snippet: s.Rule.Target + "->" + s.Rule.Upstream,
		Hint:    s.Target,
	}
}

// ParseRules splits rule text on ';' or newlines. "A->B->C" expands to the
// pairwise rules A->B and B->C. Rules with an empty side are dropped.
func ParseRules(text string) []model.ChainRule {
	var out []model.ChainRule
	for _, raw := range strings.FieldsFunc(text, func(r rune) bool { return r == ';' || r == '\n' }) {
		parts := lo.Map(strings.Split(raw, "->"), func(s string, _ int) string { return strings.TrimSpace(s) })
		if len(parts) < 2 || lo.Contains(parts, "") {
			if strings.TrimSpace(raw) != "" {
				logrus.WithField("rule", strings.TrimSpace(raw)).Warnln("[Chain] malformed rule ignored")
			}
			continue
		}
		for i := 0; i+1 < len(parts); i++ {
			out = append(out, model.ChainRule{Target: parts[i], Upstream: parts[i+1]})
		}
	}
	return out
}

// Match reports whether name matches pattern. "*kw" matches names
// containing kw case-insensitively; other patterns match an exact name or
// a substring of it.
func Match(name, pattern string) bool {
	if kw, ok := strings.CutPrefix(pattern, "*"); ok {
		return strings.Contains(strings.ToLower(name), strings.ToLower(kw))
	}
	return name == pattern || strings.Contains(name, pattern)
}

// Apply annotates a copy of proxies in rule order. For each rule the
// upstream is the first exact-name match, else the first pattern match.
// Rules bound to a node apply to that record only; the others apply to
// every name matching Target. A target that already has an upstream keeps
// it. Self references and assignments that would close a loop are skipped.
func Apply(proxies []model.Proxy, rules []model.ChainRule) ([]model.Proxy, []Skip) {
	out := make([]model.Proxy, len(proxies))
	copy(out, proxies)

	byName := make(map[string]int, len(out))
	for i, p := range out {
		if _, dup := byName[p.Name]; !dup {
			byName[p.Name] = i
		}
	}

	var skips []Skip
	for _, rule := range rules {
		up := findUpstream(out, rule.Upstream)
		if up < 0 {
			skips = append(skips, Skip{Rule: rule, Reason: SkipNoUpstream})
			continue
		}
		upName := out[up].Name

		matched := false
		for i := range out {
			if !targets(out[i], rule) {
				continue
			}
			matched = true
			if out[i].Upstream != "" {
				continue
			}
			if i == up || out[i].Name == upName {
				skips = append(skips, Skip{Rule: rule, Target: out[i].Name, Reason: SkipSelf})
				continue
			}
			if reaches(out, byName, upName, out[i].Name) {
				skips = append(skips, Skip{Rule: rule, Target: out[i].Name, Reason: SkipCycle})
				continue
			}
			out[i].Upstream = upName
		}
		if !matched {
			skips = append(skips, Skip{Rule: rule, Reason: SkipNoTarget})
		}
	}
	return out, skips
}

// ApplyText parses rule text, applies it and logs every skipped rule.
func ApplyText(proxies []model.Proxy, text string) []model.Proxy {
	out, skips := Apply(proxies, ParseRules(text))
	LogSkips(skips)
	return out
}

func LogSkips(skips []Skip) {
	for _, s := range skips {
		logrus.WithFields(logrus.Fields{
			"target":   s.Rule.Target,
			"upstream": s.Rule.Upstream,
			"node":     s.Target,
			"reason":   s.Reason,
		}).Warnln("[Chain] rule skipped")
	}
}

func targets(p model.Proxy, rule model.ChainRule) bool {
	if rule.Node != "" {
		return dedupe.Key(p) == rule.Node
	}
	return rule.Target != "" && Match(p.Name, rule.Target)
}

func findUpstream(ps []model.Proxy, pattern string) int {
	if !strings.HasPrefix(pattern, "*") {
		for i, p := range ps {
			if p.Name == pattern {
				return i
			}
		}
	}
	for i, p := range ps {
		if Match(p.Name, pattern) {
			return i
		}
	}
	return -1
}

// reaches walks the upstream chain starting at from and reports whether it
// arrives at target. The visited set bounds the walk even when existing
// annotations already form a loop.
func reaches(ps []model.Proxy, byName map[string]int, from, target string) bool {
	visited := make(map[string]bool)
	for cur := from; cur != ""; {
		if cur == target {
			return true
		}
		if visited[cur] {
			return false
		}
		visited[cur] = true
		i, ok := byName[cur]
		if !ok {
			return false
		}
		cur = ps[i].Upstream
	}
	return false
}
