// Package source turns user input into a flat proxy list: single URIs,
// standard subscriptions (Base64 or tabular), and aggregation documents.
package source

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/subforge/internal/fetch"
	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/sub"
)

type Kind int

const (
	// KindSingle is one or more proxy URIs given inline.
	KindSingle Kind = iota
	// KindSubscription is a fetched provider document.
	KindSubscription
	// KindAggregation is a fetched line document of URIs and nested URLs.
	KindAggregation
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindSubscription:
		return "subscription"
	case KindAggregation:
		return "aggregation"
	default:
		return "unknown"
	}
}

// Fetcher is the "text for a URL" capability. Retries and timeouts are its
// own business.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Document, error)
}

type FetcherFunc func(ctx context.Context, url string) (*fetch.Document, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (*fetch.Document, error) {
	return f(ctx, url)
}

// AggregatePrefix marks an aggregation document explicitly:
// aggregate+https://host/list.txt
const AggregatePrefix = "aggregate+"

type Resolver struct {
	Fetcher Fetcher

	// AggregationMarkers classify an http(s) URL containing any of them as
	// an aggregation document.
	AggregationMarkers []string

	// MaxDepth bounds nested subscription URLs inside aggregation
	// documents. Default 3.
	MaxDepth int

	// Concurrency bounds parallel line parsing. Default 8.
	Concurrency int
}

type Result struct {
	Kind        Kind
	Proxies     []model.Proxy
	ChainRules  []model.ChainRule
	Meta        model.SubscriptionMetadata
	Diagnostics model.Diagnostics
}

// Resolve classifies input and produces its proxies. Isolated line failures
// end up in Result.Diagnostics; zero proxies is EMPTY_SOURCE.
func (r *Resolver) Resolve(ctx context.Context, input string) (*Result, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, newSourceError(model.CodeInvalidArgument, "输入为空", "", "", nil)
	}

	var (
		res *Result
		err error
	)
	switch {
	case r.isAggregation(input):
		res, err = r.resolveAggregation(ctx, input, 0)
	case sub.IsProxyURI(input):
		res, err = resolveURIs(input)
	default:
		res, err = r.resolveSubscriptions(ctx, input)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"kind":    res.Kind.String(),
		"proxies": len(res.Proxies),
		"skipped": res.Diagnostics.Summary(),
	}).Debugln("[Source] resolved")
	return res, nil
}

func (r *Resolver) isAggregation(s string) bool {
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, AggregatePrefix+"http://") || strings.HasPrefix(lower, AggregatePrefix+"https://") {
		return true
	}
	if !isHTTPURL(s) {
		return false
	}
	for _, m := range r.AggregationMarkers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// resolveURIs handles inline URIs separated by whitespace. A lone URI that
// fails to parse reports its own error rather than EMPTY_SOURCE.
func resolveURIs(input string) (*Result, error) {
	res := &Result{Kind: KindSingle}
	fields := strings.Fields(input)
	var firstErr error
	for i, f := range fields {
		p, err := sub.Parse(f)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			res.Diagnostics.AddPayload(lineError(err, "", i+1))
			continue
		}
		res.Proxies = append(res.Proxies, p)
	}
	if len(res.Proxies) == 0 {
		if len(fields) == 1 {
			return nil, firstErr
		}
		return nil, emptySource("", res.Diagnostics)
	}
	return res, nil
}

// resolveSubscriptions fetches one or more '|'-separated URLs and merges
// their proxies in order. Metadata comes from the first document.
func (r *Resolver) resolveSubscriptions(ctx context.Context, input string) (*Result, error) {
	res := &Result{Kind: KindSubscription}
	urls := splitURLs(input)
	for _, u := range urls {
		if !isHTTPURL(u) {
			return nil, newSourceError(model.CodeInvalidArgument, "订阅地址必须是 http/https URL 或节点链接", u,
				"schemes: "+strings.Join(sub.Schemes(), ", "), nil)
		}
	}

	for i, u := range urls {
		doc, err := r.fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		ps, rules, diag := ParseDocument(u, doc.Body)
		res.Proxies = append(res.Proxies, ps...)
		res.ChainRules = append(res.ChainRules, rules...)
		res.Diagnostics.Merge(diag)
		if i == 0 {
			res.Meta = doc.Meta
		}
	}
	if len(res.Proxies) == 0 {
		return nil, emptySource(urls[0], res.Diagnostics)
	}
	return res, nil
}

func (r *Resolver) fetch(ctx context.Context, url string) (*fetch.Document, error) {
	if r.Fetcher == nil {
		return nil, newSourceError(model.CodeInternal, "未配置拉取能力", url, "", nil)
	}
	return r.Fetcher.Fetch(ctx, url)
}

func splitURLs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isHTTPURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
