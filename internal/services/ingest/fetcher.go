package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultRenderWait     = 3 * time.Second
	defaultMaxBodySize    = 10 * 1024 * 1024
	defaultUserAgent      = "comparo/1.0"
)

// FetchResult carries the raw document bytes and the content type the server
// reported (or that rendering implies)
type FetchResult struct {
	Body        []byte
	ContentType string
}

// Fetcher retrieves document sources over HTTP. PDF and static HTML go
// through a plain client; JavaScript-heavy pages can be rendered with
// headless Chrome when configured.
type Fetcher struct {
	client      *http.Client
	config      *common.IngestConfig
	maxBodySize int64
	userAgent   string
	renderWait  time.Duration
	logger      arbor.ILogger
}

// NewFetcher creates a fetcher from the ingest configuration
func NewFetcher(cfg *common.IngestConfig, logger arbor.ILogger) *Fetcher {
	timeout := defaultRequestTimeout
	if d, err := time.ParseDuration(cfg.RequestTimeout); err == nil && d > 0 {
		timeout = d
	}
	renderWait := defaultRenderWait
	if d, err := time.ParseDuration(cfg.RenderWait); err == nil && d > 0 {
		renderWait = d
	}
	maxBody := int64(defaultMaxBodySize)
	if cfg.MaxBodySize > 0 {
		maxBody = int64(cfg.MaxBodySize)
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Fetcher{
		client:      &http.Client{Timeout: timeout},
		config:      cfg,
		maxBodySize: maxBody,
		userAgent:   userAgent,
		renderWait:  renderWait,
		logger:      logger,
	}
}

// Fetch retrieves the source URL. When JavaScript rendering is enabled and
// the response is HTML, the page is re-fetched through headless Chrome so
// client-rendered content is present in the body.
func (f *Fetcher) Fetch(ctx context.Context, sourceURL string) (*FetchResult, error) {
	result, err := f.fetchHTTP(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	if f.config.RenderJS && isHTMLContentType(result.ContentType) {
		rendered, renderErr := f.renderPage(ctx, sourceURL)
		if renderErr != nil {
			f.logger.Warn().
				Err(renderErr).
				Str("url", sourceURL).
				Msg("JavaScript render failed, using static HTML")
			return result, nil
		}
		return rendered, nil
	}

	return result, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, sourceURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: HTTP status %d", sourceURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", sourceURL, f.maxBodySize)
	}

	return &FetchResult{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// renderPage loads the URL in headless Chrome and returns the settled DOM
func (f *Fetcher) renderPage(ctx context.Context, sourceURL string) (*FetchResult, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserAgent(f.userAgent),
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(sourceURL),
		chromedp.Sleep(f.renderWait),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", sourceURL, err)
	}

	return &FetchResult{
		Body:        []byte(html),
		ContentType: "text/html",
	}, nil
}

func isHTMLContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml")
}
