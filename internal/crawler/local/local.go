package local

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"

	"github.com/atom-ai-labs/cataloger/internal/crawler"
)

// Fetcher renders a single page with a headless browser and extracts its
// readable text. It stands in for the remote crawl service when no API key is
// configured; it does not follow links, so the response carries one result.
type Fetcher struct {
	Timeout  time.Duration
	MaxChars int
}

// Crawl fetches req.URL and returns its readable text as one raw content block.
func (f Fetcher) Crawl(ctx context.Context, req crawler.Request) (crawler.Response, error) {
	target := strings.TrimSpace(req.URL)
	if target == "" {
		return crawler.Response{}, errors.New("invalid url")
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	html, err := fetchHTML(ctx, target)
	if err != nil {
		return crawler.Response{}, err
	}

	parsed, err := url.Parse(target)
	if err != nil {
		parsed = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		// Readability can fail on sparse markup; fall back to the raw HTML so
		// the normalizer still has something to strip.
		return crawler.Response{Results: []crawler.Result{{URL: target, RawContent: html}}}, nil
	}
	text := article.TextContent
	if f.MaxChars > 0 && len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}
	return crawler.Response{Results: []crawler.Result{{URL: target, RawContent: text}}}, nil
}

func fetchHTML(ctx context.Context, target string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("cataloger/1.0 (+hello@atom-ai-labs.com)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}
