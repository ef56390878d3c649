// Package compiler runs the canonicalisation pipeline: resolve, dedupe,
// chain, rename. Its output is what both config compilers consume.
package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/subforge/internal/chain"
	"github.com/John-Robertt/subforge/internal/dedupe"
	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/region"
	"github.com/John-Robertt/subforge/internal/source"
)

type Request struct {
	// Source is a subscription URL list, proxy URIs or an aggregation URL.
	Source string

	// Chain is request rule text ("A->B;C->D"), applied after the inline
	// directives of an aggregation document.
	Chain string

	Dedupe dedupe.Options

	// NoRename keeps provider names even for standard subscriptions.
	NoRename bool
}

type Result struct {
	Kind        source.Kind
	Proxies     []model.Proxy
	Meta        model.SubscriptionMetadata
	Stats       dedupe.Stats
	Diagnostics model.Diagnostics
}

type Pipeline struct {
	Resolver  *source.Resolver
	Formatter *region.Formatter
}

type CompileError struct {
	AppError model.AppError
	Cause    error
}

func (e *CompileError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *CompileError) Unwrap() error { return e.Cause }

func (e *CompileError) Payload() model.AppError { return e.AppError }

// Run executes one request. Isolated failures (bad lines, skipped chain
// rules) end up in Result.Diagnostics; only an empty result is fatal.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if p.Resolver == nil {
		return nil, &CompileError{AppError: model.AppError{Code: model.CodeInternal, Message: "pipeline 未配置 resolver", Stage: "compile"}}
	}
	src, err := p.Resolver.Resolve(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	proxies, stats := dedupe.Dedupe(src.Proxies, req.Dedupe)
	logrus.WithFields(logrus.Fields{
		"kind":  src.Kind.String(),
		"stats": stats.String(),
	}).Infoln("[Compile] dedupe")
	if len(proxies) == 0 {
		return nil, &CompileError{AppError: model.AppError{
			Code:    model.CodeEmptySource,
			Message: "过滤后没有任何可用节点",
			Stage:   "dedupe",
			Hint:    stats.String(),
		}}
	}
	proxies = UniqueNames(proxies)

	diag := src.Diagnostics
	rules := append(append([]model.ChainRule(nil), src.ChainRules...), chain.ParseRules(req.Chain)...)
	if len(rules) > 0 {
		var skips []chain.Skip
		proxies, skips = chain.Apply(proxies, rules)
		chain.LogSkips(skips)
		for _, s := range skips {
			diag.AddPayload(s.Payload())
		}
	}

	if ShouldRename(src.Kind, req.NoRename) {
		f := p.Formatter
		if f == nil {
			f = region.New(nil)
		}
		proxies = UniqueNames(f.FormatAll(proxies))
	}

	logrus.WithFields(logrus.Fields{
		"proxies": len(proxies),
		"skipped": diag.Summary(),
	}).Debugln("[Compile] done")
	return &Result{
		Kind:        src.Kind,
		Proxies:     proxies,
		Meta:        src.Meta,
		Stats:       stats,
		Diagnostics: diag,
	}, nil
}

// ShouldRename reports whether region formatting applies. Single URIs and
// aggregation documents keep their names.
func ShouldRename(kind source.Kind, disabled bool) bool {
	return kind == source.KindSubscription && !disabled
}

// UniqueNames makes every name distinct and non-reserved. Later duplicates
// get "-2", "-3", ... in input order; an empty name falls back to
// server:port. Upstream references follow the first proxy of each
// original name.
func UniqueNames(in []model.Proxy) []model.Proxy {
	out := make([]model.Proxy, len(in))
	copy(out, in)

	used := make(map[string]struct{}, len(out))
	renamed := make(map[string]string)
	for i := range out {
		base := strings.TrimSpace(out[i].Name)
		if base == "" {
			base = fmt.Sprintf("%s:%d", out[i].Server, out[i].Port)
		}

		name := base
		if _, reserved := model.ReservedNames[name]; reserved {
			name = ""
		}
		if name != "" {
			if _, ok := used[name]; ok {
				name = ""
			}
		}
		if name == "" {
			// Pick base-N starting from 2.
			for n := 2; ; n++ {
				try := fmt.Sprintf("%s-%d", base, n)
				if _, ok := used[try]; ok {
					continue
				}
				name = try
				break
			}
		}

		if _, ok := renamed[out[i].Name]; !ok {
			renamed[out[i].Name] = name
		}
		out[i].Name = name
		used[name] = struct{}{}
	}

	for i := range out {
		if up := out[i].Upstream; up != "" {
			if n, ok := renamed[up]; ok {
				out[i].Upstream = n
			}
		}
	}
	return out
}
