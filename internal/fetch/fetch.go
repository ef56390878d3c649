package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/subforge/internal/model"
)

type Kind int

const (
	KindSubscription Kind = iota
	KindTemplate
)

func (k Kind) stage() string {
	switch k {
	case KindSubscription:
		return "fetch_sub"
	case KindTemplate:
		return "fetch_template"
	default:
		return "fetch"
	}
}

func (k Kind) defaultMaxBytes() int64 {
	switch k {
	case KindSubscription:
		return 5 * 1024 * 1024
	case KindTemplate:
		return 2 * 1024 * 1024
	default:
		return 1 * 1024 * 1024
	}
}

// DefaultUserAgent makes providers answer with their full node list; many
// of them return a stripped body to unknown clients.
const DefaultUserAgent = "clash.meta"

type Options struct {
	Timeout      time.Duration // default 15s
	MaxBytes     int64         // default per kind
	MaxRedirects int           // default 5
	UserAgent    string        // default DefaultUserAgent
}

func (o Options) withDefaults(kind Kind) Options {
	if o.Timeout == 0 {
		o.Timeout = 15 * time.Second
	}
	if o.MaxRedirects == 0 {
		o.MaxRedirects = 5
	}
	if o.MaxBytes == 0 {
		o.MaxBytes = kind.defaultMaxBytes()
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// Document is one fetched text resource with the metadata found in its
// response headers.
type Document struct {
	URL  string
	Body string
	Meta model.SubscriptionMetadata
}

// Client is the default fetch capability of the source resolver. It does
// not retry.
type Client struct {
	Options Options
}

func NewClient(opt Options) *Client { return &Client{Options: opt} }

func (c *Client) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	return FetchDocument(ctx, KindSubscription, rawURL, c.Options)
}

type FetchError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

func (e *FetchError) Payload() model.AppError { return e.AppError }

var (
	errTooManyRedirects   = errors.New("too many redirects")
	errRedirectBadScheme  = errors.New("redirect target scheme is not http/https")
	errInvalidURLOrScheme = errors.New("invalid url or scheme")
)

func FetchText(ctx context.Context, kind Kind, rawURL string) (string, error) {
	return FetchTextWithOptions(ctx, kind, rawURL, Options{})
}

func FetchTextWithOptions(ctx context.Context, kind Kind, rawURL string, opt Options) (string, error) {
	doc, err := FetchDocument(ctx, kind, rawURL, opt)
	if err != nil {
		return "", err
	}
	return doc.Body, nil
}

// FetchDocument GETs rawURL and returns its body and header metadata. The
// body must be valid UTF-8 and at most MaxBytes long; a larger body fails
// with OVERSIZED_SOURCE before anything is parsed.
func FetchDocument(ctx context.Context, kind Kind, rawURL string, opt Options) (*Document, error) {
	opt = opt.withDefaults(kind)
	fail := func(status int, code, message string, cause error) error {
		return &FetchError{
			Status:   status,
			AppError: model.AppError{Code: code, Message: message, Stage: kind.stage(), URL: rawURL},
			Cause:    cause,
		}
	}

	if opt.MaxBytes <= 0 {
		return nil, fail(http.StatusBadRequest, model.CodeInvalidArgument, "响应大小上限必须大于 0", nil)
	}
	u, err := url.Parse(rawURL)
	if err != nil || u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fail(http.StatusBadRequest, model.CodeInvalidArgument, "仅允许 http/https URL", errors.Join(errInvalidURLOrScheme, err))
	}

	client := &http.Client{
		Timeout:   opt.Timeout,
		Transport: http.DefaultTransport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// 1st redirect => len(via)==1.
			if len(via) > opt.MaxRedirects {
				return errTooManyRedirects
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return errRedirectBadScheme
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fail(http.StatusBadRequest, model.CodeInvalidArgument, "请求 URL 不合法", err)
	}
	req.Header.Set("User-Agent", opt.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		switch {
		case errors.Is(err, errTooManyRedirects):
			return nil, fail(http.StatusBadGateway, model.CodeFetchFailed, fmt.Sprintf("重定向次数超过上限（>%d）", opt.MaxRedirects), err)
		case errors.Is(err, errRedirectBadScheme):
			return nil, fail(http.StatusBadRequest, model.CodeInvalidArgument, "重定向目标仅允许 http/https", err)
		case isTimeout(err):
			return nil, fail(http.StatusGatewayTimeout, model.CodeFetchTimeout, "拉取远程资源超时", err)
		default:
			return nil, fail(http.StatusBadGateway, model.CodeFetchFailed, "拉取远程资源失败", err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fail(http.StatusBadGateway, model.CodeFetchFailed, fmt.Sprintf("上游返回非 2xx 状态码：%d", resp.StatusCode), nil)
	}

	// Read at most MaxBytes+1 to detect overflow deterministically.
	body, err := io.ReadAll(io.LimitReader(resp.Body, opt.MaxBytes+1))
	if err != nil {
		if isTimeout(err) {
			return nil, fail(http.StatusGatewayTimeout, model.CodeFetchTimeout, "拉取远程资源超时", err)
		}
		return nil, fail(http.StatusBadGateway, model.CodeFetchFailed, "读取上游响应失败", err)
	}
	if int64(len(body)) > opt.MaxBytes {
		return nil, fail(http.StatusUnprocessableEntity, model.CodeOversizedSource, fmt.Sprintf("远程资源过大（>%d bytes）", opt.MaxBytes), nil)
	}
	if !utf8.Valid(body) {
		return nil, fail(http.StatusUnprocessableEntity, model.CodeFetchInvalidUTF8, "远程资源不是合法 UTF-8 文本", nil)
	}

	logrus.WithFields(logrus.Fields{"stage": kind.stage(), "bytes": len(body)}).Debugln("[Fetch] ok")
	return &Document{
		URL:  rawURL,
		Body: string(body),
		Meta: ParseMetadata(resp.Header),
	}, nil
}

// isTimeout unwraps *url.Error and friends.
func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
