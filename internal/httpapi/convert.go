package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/patrickmn/go-cache"

	"github.com/John-Robertt/subforge/internal/compiler"
	"github.com/John-Robertt/subforge/internal/config"
	"github.com/John-Robertt/subforge/internal/dedupe"
	"github.com/John-Robertt/subforge/internal/fetch"
	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/render"
	"github.com/John-Robertt/subforge/internal/rules"
	"github.com/John-Robertt/subforge/internal/source"
)

const (
	HeaderDiagnostics = "X-Subforge-Diagnostics"
	HeaderStats       = "X-Subforge-Stats"
)

type convertRequest struct {
	Source   string
	Target   render.Target
	Chain    string
	Keep     string
	Rename   *bool
	Info     *bool
	LowRate  *bool
	Rules    []string
	FileName string
}

type convertRequestJSON struct {
	URL      string   `json:"url"`
	Target   string   `json:"target"`
	Chain    string   `json:"chain"`
	Keep     string   `json:"keep"`
	Rename   *bool    `json:"rename"`
	Info     *bool    `json:"info"`
	LowRate  *bool    `json:"lowrate"`
	Rules    []string `json:"rules"`
	FileName string   `json:"fileName"`
}

// response is what the cache stores: a finished document.
type response struct {
	ContentType string
	Header      http.Header
	Body        []byte
}

type convertHandler struct {
	opt   Options
	cache *cache.Cache

	// last is the config the cached entries were built with.
	last atomic.Pointer[config.Config]
}

func newConvertHandler(opt Options) *convertHandler {
	return &convertHandler{
		opt:   opt,
		cache: cache.New(config.DefaultCacheTTL, 2*config.DefaultCacheTTL),
	}
}

func (h *convertHandler) handleSub(w http.ResponseWriter, r *http.Request) {
	req, err := parseConvertGET(r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	h.serve(w, r, req)
}

func (h *convertHandler) handleConvert(w http.ResponseWriter, r *http.Request) {
	req, err := parseConvertPOST(r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	h.serve(w, r, req)
}

func (h *convertHandler) serve(w http.ResponseWriter, r *http.Request, req convertRequest) {
	cfg := h.opt.Config()
	target := req.Target
	if target == render.TargetAuto {
		target = DetectTarget(r.UserAgent())
	}

	useCache := cfg.CacheEnabled()
	key := cacheKey(target, req)
	if useCache {
		if prev := h.last.Swap(cfg); prev != nil && prev != cfg {
			h.cache.Flush()
		}
		if v, ok := h.cache.Get(key); ok {
			metricsIncCache(true)
			writeResponse(w, v.(*response))
			return
		}
		metricsIncCache(false)
	}

	resp, err := h.convert(r.Context(), cfg, target, req)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	if useCache {
		h.cache.Set(key, resp, cfg.Cache.TTL)
	}
	writeResponse(w, resp)
}

func (h *convertHandler) convert(ctx context.Context, cfg *config.Config, target render.Target, req convertRequest) (*response, error) {
	// Keep a hard upper bound so handlers don't hang forever if upstream misbehaves.
	ctx, cancel := context.WithTimeout(ctx, h.opt.convertTimeout(cfg))
	defer cancel()

	dd := cfg.DedupeOptions()
	if req.Keep != "" {
		keep, err := dedupe.ParseKeepStrategy(req.Keep)
		if err != nil {
			return nil, requestError(model.CodeInvalidArgument, "不支持的 keep", "keep=first|last|shorter")
		}
		dd.Keep = keep
	}
	if req.Info != nil {
		dd.FilterInformational = !*req.Info
	}

	custom := cfg.CustomRules()
	if len(req.Rules) > 0 {
		extra, err := rules.ParseLines("request:rules", req.Rules)
		if err != nil {
			return nil, err
		}
		custom = append(append([]model.Rule(nil), custom...), extra...)
	}

	res, err := h.pipeline(cfg).Run(ctx, compiler.Request{
		Source:   req.Source,
		Chain:    joinChain(cfg.Chain, req.Chain),
		Dedupe:   dd,
		NoRename: req.Rename != nil && !*req.Rename,
	})
	if err != nil {
		return nil, err
	}

	aggregated := res.Kind == source.KindSubscription
	if req.LowRate != nil {
		aggregated = *req.LowRate
	}
	tmpl, tmplPath := cfg.ClashTemplate()
	base, basePath := cfg.SingBoxBase()
	tabular := func() (render.Output, error) {
		return render.CompileTabular(res.Proxies, render.TabularOptions{
			AggregatedSource: aggregated,
			Rules:            custom,
			Template:         tmpl,
			TemplatePath:     tmplPath,
			Meta:             res.Meta,
		})
	}
	nested := func() (render.Output, error) {
		return render.CompileNested(res.Proxies, render.NestedOptions{
			AggregatedSource: aggregated,
			Rules:            custom,
			Base:             base,
			BasePath:         basePath,
			Meta:             res.Meta,
		})
	}

	var (
		out  render.Output
		diag model.Diagnostics
	)
	diag.Merge(res.Diagnostics)
	switch target {
	case render.TargetSingBox:
		out, err = nested()
	case render.TargetPreview:
		out, err = preview(res, tabular, nested)
	default:
		out, err = tabular()
	}
	if err != nil {
		return nil, err
	}
	diag.Merge(out.Diagnostics)

	header := out.Headers.Clone()
	if header == nil {
		header = http.Header{}
	}
	if s := diag.Summary(); s != "" {
		header.Set(HeaderDiagnostics, s)
	}
	header.Set(HeaderStats, res.Stats.String())
	if req.FileName != "" && target != render.TargetPreview {
		header.Set("Content-Disposition", render.AttachmentDisposition(withExt(req.FileName, target)))
	}
	return &response{ContentType: out.ContentType, Header: header, Body: out.Body}, nil
}

func preview(res *compiler.Result, tabular, nested func() (render.Output, error)) (render.Output, error) {
	tab, err := tabular()
	if err != nil {
		return render.Output{}, err
	}
	nest, err := nested()
	if err != nil {
		return render.Output{}, err
	}
	body, err := render.RenderPreview(tab, nest, len(res.Proxies), res.Meta, res.Diagnostics)
	if err != nil {
		return render.Output{}, err
	}
	var diag model.Diagnostics
	diag.Merge(tab.Diagnostics)
	diag.Merge(nest.Diagnostics)
	return render.Output{Body: body, ContentType: "text/html; charset=utf-8", Diagnostics: diag}, nil
}

func (h *convertHandler) pipeline(cfg *config.Config) *compiler.Pipeline {
	fetcher := h.opt.Fetcher
	if fetcher == nil {
		fo := cfg.FetchOptions()
		if h.opt.FetchTimeout > 0 {
			fo.Timeout = h.opt.FetchTimeout
		}
		fetcher = fetch.NewClient(fo)
	}
	return &compiler.Pipeline{
		Resolver: &source.Resolver{
			Fetcher:            fetcher,
			AggregationMarkers: cfg.Aggregation.Markers,
			MaxDepth:           cfg.Aggregation.MaxDepth,
			Concurrency:        cfg.Aggregation.Concurrency,
		},
		Formatter: cfg.Formatter(),
	}
}

func writeResponse(w http.ResponseWriter, resp *response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Body)
}

func joinChain(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ";")
}

func cacheKey(target render.Target, req convertRequest) string {
	flag := func(b *bool) string {
		if b == nil {
			return "-"
		}
		return strconv.FormatBool(*b)
	}
	return strings.Join([]string{
		string(target), req.Source, req.Chain, req.Keep,
		flag(req.Rename), flag(req.Info), flag(req.LowRate),
		strings.Join(req.Rules, "\n"), req.FileName,
	}, "\x00")
}

func parseConvertGET(r *http.Request) (convertRequest, error) {
	q := r.URL.Query()
	for key := range q {
		switch key {
		case "url", "target", "chain", "keep", "rename", "info", "lowrate", "fileName":
		default:
			return convertRequest{}, requestError(model.CodeInvalidArgument, fmt.Sprintf("不支持的 query 参数：%s", key), "")
		}
	}

	var req convertRequest
	var err error
	if req.Source, err = singleQuery(q, "url", true); err != nil {
		return convertRequest{}, err
	}
	targetStr, err := singleQuery(q, "target", false)
	if err != nil {
		return convertRequest{}, err
	}
	if req.Chain, err = singleQuery(q, "chain", false); err != nil {
		return convertRequest{}, err
	}
	if req.Keep, err = singleQuery(q, "keep", false); err != nil {
		return convertRequest{}, err
	}
	fileName, err := singleQuery(q, "fileName", false)
	if err != nil {
		return convertRequest{}, err
	}
	for _, f := range []struct {
		key string
		dst **bool
	}{
		{"rename", &req.Rename},
		{"info", &req.Info},
		{"lowrate", &req.LowRate},
	} {
		if *f.dst, err = flagQuery(q, f.key); err != nil {
			return convertRequest{}, err
		}
	}
	return finishRequest(req, targetStr, fileName)
}

func parseConvertPOST(r *http.Request) (convertRequest, error) {
	var body convertRequestJSON
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return convertRequest{}, requestError(model.CodeInvalidArgument, "JSON body 解析失败", err.Error())
	}
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return convertRequest{}, requestError(model.CodeInvalidArgument, "JSON body 不允许多段", "")
	} else if !errors.Is(err, io.EOF) {
		return convertRequest{}, requestError(model.CodeInvalidArgument, "JSON body 解析失败", err.Error())
	}

	return finishRequest(convertRequest{
		Source:  body.URL,
		Chain:   body.Chain,
		Keep:    body.Keep,
		Rename:  body.Rename,
		Info:    body.Info,
		LowRate: body.LowRate,
		Rules:   body.Rules,
	}, body.Target, body.FileName)
}

// finishRequest applies the checks shared by GET and POST.
func finishRequest(req convertRequest, target, fileName string) (convertRequest, error) {
	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		return convertRequest{}, requestError(model.CodeInvalidArgument, "url 不能为空", "expected: url=<subscription url | proxy uri>")
	}
	t, err := render.ParseTarget(target)
	if err != nil {
		return convertRequest{}, err
	}
	req.Target = t
	if _, err := dedupe.ParseKeepStrategy(req.Keep); err != nil {
		return convertRequest{}, requestError(model.CodeInvalidArgument, "不支持的 keep", "keep=first|last|shorter")
	}
	if req.FileName, err = validateFileName(fileName); err != nil {
		return convertRequest{}, err
	}
	return req, nil
}

func singleQuery(q url.Values, key string, required bool) (string, error) {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		if required {
			return "", requestError(model.CodeInvalidArgument, fmt.Sprintf("缺少 %s 参数", key), "")
		}
		return "", nil
	}
	if len(values) != 1 {
		return "", requestError(model.CodeInvalidArgument, fmt.Sprintf("%s 参数只能出现一次", key), "")
	}
	return values[0], nil
}

// flagQuery reads an optional 0/1 (or true/false) switch.
func flagQuery(q url.Values, key string) (*bool, error) {
	v, err := singleQuery(q, key, false)
	if err != nil || v == "" {
		return nil, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, requestError(model.CodeInvalidArgument, fmt.Sprintf("%s 只能是 0 或 1", key), v)
	}
	return &b, nil
}
