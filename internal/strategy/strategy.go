// Package strategy implements the per-source-type crawlers that discover
// product image URLs newest first.
//
// Every strategy honors the same contract: it walks at most a bounded number
// of products, halts at the first checkpoint URL it meets and never returns an
// error. Fetch or parse failures end the walk with whatever was collected.
package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

// Strategy crawls one domain.
type Strategy interface {
	Crawl(ctx context.Context, cfg crawler.DomainConfig, stop crawler.StopSet) crawler.Result
}

// Finalizer cleans an extracted image URL (see resolver.Resolver.Finalize).
type Finalizer interface {
	Finalize(ctx context.Context, imageURL string, cfg crawler.DomainConfig) (string, bool)
}

// Options holds the crawl bounds and endpoint templates shared by all strategies.
type Options struct {
	MaxAPIPages           int
	MaxLinkSteps          int
	APIURLPattern         string
	ProductListURLPattern string
	ProductSitemapMarker  string
	PageTimeout           time.Duration
	AttachmentTimeout     time.Duration
	SitemapTimeout        time.Duration
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		MaxAPIPages:           2,
		MaxLinkSteps:          100,
		APIURLPattern:         "https://{domain}/wp-json/wp/v2/product?per_page=100&page={page}&orderby=date&order=desc",
		ProductListURLPattern: "https://raw.githubusercontent.com/ktbteam/productcrawler/main/domain/{domain}.txt",
		ProductSitemapMarker:  "_products_",
		PageTimeout:           30 * time.Second,
		AttachmentTimeout:     20 * time.Second,
		SitemapTimeout:        60 * time.Second,
	}
}

// Deps are the collaborators strategies share.
type Deps struct {
	Fetcher  crawler.Fetcher
	Resolver Finalizer
	Options  Options
	Logger   *zap.Logger
}

// base carries the shared plumbing for every strategy.
type base struct {
	fetcher  crawler.Fetcher
	resolver Finalizer
	opts     Options
	logger   *zap.Logger
}

func newBase(deps Deps, name string) base {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		fetcher:  deps.Fetcher,
		resolver: deps.Resolver,
		opts:     deps.Options,
		logger:   logger.Named("strategy." + name),
	}
}

func (b base) fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	req := crawler.FetchRequest{URL: url, Timeout: timeout}
	resp, err := b.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return resp.Body, nil
}

func (b base) fetchJSON(ctx context.Context, url string, timeout time.Duration, v any) error {
	body, err := b.fetch(ctx, url, timeout)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func (b base) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := b.fetch(ctx, url, b.opts.PageTimeout)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}

// add finalizes imageURL and records it against productURL.
func (b base) add(
	ctx context.Context,
	result *crawler.Result,
	cfg crawler.DomainConfig,
	imageURL, productURL, title string,
) {
	final, ok := b.resolver.Finalize(ctx, imageURL, cfg)
	if !ok {
		return
	}
	result.Add(crawler.Item{ImageURL: final, ProductURL: productURL, ProductTitle: title})
}

func (b base) apiURL(cfg crawler.DomainConfig, page int) string {
	pattern := cfg.APIURLPattern
	if pattern == "" {
		pattern = b.opts.APIURLPattern
	}
	return strings.NewReplacer("{domain}", cfg.Domain(), "{page}", strconv.Itoa(page)).Replace(pattern)
}

func maxOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
