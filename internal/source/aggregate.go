package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/subforge/internal/dedupe"
	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/sub"
	"github.com/John-Robertt/subforge/internal/sub/codec"
)

const (
	defaultMaxDepth    = 3
	defaultConcurrency = 8
)

// Inline chain directives accepted after a proxy URI in an aggregation
// document, e.g. "ss://...#HK|dialer-proxy:Relay".
var directives = []string{"dialer-proxy:", "detour:", "chain:"}

type lineResult struct {
	proxies []model.Proxy
	rules   []model.ChainRule
	diag    model.Diagnostics
}

func (r *Resolver) maxDepth() int {
	if r.MaxDepth > 0 {
		return r.MaxDepth
	}
	return defaultMaxDepth
}

func (r *Resolver) concurrency() int {
	if r.Concurrency > 0 {
		return r.Concurrency
	}
	return defaultConcurrency
}

// resolveAggregation fetches an aggregation document and resolves its lines
// concurrently. A failing line never aborts the others; results are joined
// in line order.
func (r *Resolver) resolveAggregation(ctx context.Context, input string, depth int) (*Result, error) {
	url := input
	if strings.HasPrefix(strings.ToLower(url), AggregatePrefix) {
		url = url[len(AggregatePrefix):]
	}
	doc, err := r.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	type numbered struct {
		no   int
		text string
	}
	var lines []numbered
	for i, line := range strings.Split(doc.Body, "\n") {
		line = strings.TrimSpace(line)
		if isSkippable(line) {
			continue
		}
		lines = append(lines, numbered{no: i + 1, text: line})
	}
	if len(lines) == 0 {
		return nil, emptySource(url, model.Diagnostics{})
	}

	results := make([]lineResult, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())
	for i, l := range lines {
		g.Go(func() error {
			results[i] = r.resolveLine(gctx, url, l.no, l.text, depth)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Kind: KindAggregation}
	for _, lr := range results {
		res.Proxies = append(res.Proxies, lr.proxies...)
		res.ChainRules = append(res.ChainRules, lr.rules...)
		res.Diagnostics.Merge(lr.diag)
	}
	logrus.WithFields(logrus.Fields{
		"lines":   len(lines),
		"proxies": len(res.Proxies),
		"depth":   depth,
	}).Debugln("[Source] aggregation resolved")

	if len(res.Proxies) == 0 {
		return nil, emptySource(url, res.Diagnostics)
	}
	return res, nil
}

func (r *Resolver) resolveLine(ctx context.Context, docURL string, no int, line string, depth int) (lr lineResult) {
	if isHTTPURL(line) || strings.HasPrefix(strings.ToLower(line), AggregatePrefix) {
		return r.resolveNested(ctx, docURL, no, line, depth+1)
	}

	uri, upstream := splitDirective(line)
	p, err := sub.Parse(uri)
	if err != nil {
		lr.diag.AddPayload(lineError(err, docURL, no))
		return lr
	}
	lr.proxies = []model.Proxy{p}
	if upstream != "" {
		lr.rules = []model.ChainRule{boundRule(p, upstream)}
	}
	return lr
}

// resolveNested resolves a subscription URL found inside an aggregation
// document. Its failures are recorded against the line, not raised.
func (r *Resolver) resolveNested(ctx context.Context, docURL string, no int, url string, depth int) (lr lineResult) {
	if depth > r.maxDepth() {
		lr.diag.AddPayload(model.AppError{
			Code:    model.CodeCycleDetected,
			Message: fmt.Sprintf("嵌套订阅层数超过上限（>%d）", r.maxDepth()),
			Stage:   "resolve_source",
			URL:     docURL,
			Line:    no,
			Snippet: url,
		})
		return lr
	}

	if r.isAggregation(url) {
		res, err := r.resolveAggregation(ctx, url, depth)
		if err != nil {
			lr.diag.AddPayload(lineError(err, docURL, no))
			return lr
		}
		lr.proxies, lr.rules, lr.diag = res.Proxies, res.ChainRules, res.Diagnostics
		return lr
	}

	doc, err := r.fetch(ctx, url)
	if err != nil {
		lr.diag.AddPayload(lineError(err, docURL, no))
		return lr
	}
	lr.proxies, lr.rules, lr.diag = ParseDocument(url, doc.Body)
	return lr
}

// boundRule ties an upstream to p itself rather than to its name, which
// may be empty or shared with unrelated nodes.
func boundRule(p model.Proxy, upstream string) model.ChainRule {
	target := p.Name
	if target == "" {
		target = codec.JoinHostPort(p.Server, p.Port)
	}
	return model.ChainRule{Target: target, Upstream: upstream, Node: dedupe.Key(p)}
}

// splitDirective separates "uri|dialer-proxy:X" into the URI and X. Only
// the last '|' segment is inspected, so URIs containing '|' elsewhere stay
// intact.
func splitDirective(line string) (string, string) {
	i := strings.LastIndex(line, "|")
	if i < 0 {
		return line, ""
	}
	tail := strings.TrimSpace(line[i+1:])
	for _, d := range directives {
		if len(tail) > len(d) && strings.EqualFold(tail[:len(d)], d) {
			return strings.TrimSpace(line[:i]), strings.TrimSpace(tail[len(d):])
		}
	}
	return line, ""
}
