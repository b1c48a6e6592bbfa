package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultURL       = "https://www.cloudflare.com/ips-v4"
	DefaultTimeout   = 10 * time.Second
	maxResponseBytes = 10 << 20 // 10 MiB safety cap
)

// Fetcher downloads the published range list and turns it into candidates.
type Fetcher struct {
	url     string
	client  *http.Client
	timeout time.Duration
	opts    ParseOptions
	group   singleflight.Group

	maxBytes int64
}

type Option func(*Fetcher)

func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

func WithParseOptions(opts ParseOptions) Option {
	return func(f *Fetcher) {
		f.opts = opts
	}
}

func NewFetcher(sourceURL string, timeout time.Duration, opts ...Option) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	f := &Fetcher{
		url:      sourceURL,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxResponseBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) URL() string {
	return f.url
}

// Fetch returns the candidates of the range list. Concurrent callers share a
// single request, bounded by the fetch timeout only, so one caller giving up
// does not fail the others. Every failure is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	shared := context.WithoutCancel(ctx)
	ch := f.group.DoChan(f.url, func() (interface{}, error) {
		return f.fetch(shared)
	})

	select {
	case <-ctx.Done():
		return nil, transportError(f.url, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return append([]string(nil), res.Val.([]string)...), nil
	}
}

func (f *Fetcher) fetch(ctx context.Context) ([]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, &FetchError{Kind: Unreachable, URL: f.url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, transportError(f.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &FetchError{
			Kind:   HTTPStatus,
			URL:    f.url,
			Status: resp.StatusCode,
			Err:    errors.New(strings.TrimSpace(string(body))),
		}
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, transportError(f.url, fmt.Errorf("read response: %w", err))
	}
	if int64(len(content)) > f.maxBytes {
		return nil, &FetchError{Kind: UnexpectedFormat, URL: f.url, Err: fmt.Errorf("response exceeds %d bytes", f.maxBytes)}
	}

	if looksLikeHTML(content) {
		return nil, &FetchError{Kind: UnexpectedFormat, URL: f.url, Err: errors.New("response is an HTML document, not a plain-text range list")}
	}

	candidates := ParseCandidates(string(content), f.opts)
	if len(candidates) == 0 {
		return nil, &FetchError{Kind: UnexpectedFormat, URL: f.url, Err: errors.New("response contains no address lines")}
	}

	log.Debug("Fetched address ranges", "url", f.url, "bytes", len(content), "candidates", len(candidates))
	return candidates, nil
}

// looksLikeHTML reports whether the body contains any markup token. Plain
// range lists never contain tags, so a single one marks an anti-scraping or
// error page.
func looksLikeHTML(body []byte) bool {
	if !bytes.ContainsRune(body, '<') {
		return false
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken, html.DoctypeToken, html.CommentToken:
			return true
		}
	}
}
