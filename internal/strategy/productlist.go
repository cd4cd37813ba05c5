package strategy

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
	"github.com/JakeFAU/product-image-crawler/internal/resolver"
)

// ProductList visits product URLs listed in a remote text file, newest first.
type ProductList struct {
	base
}

// NewProductList builds the "product-list" strategy.
func NewProductList(deps Deps) *ProductList {
	return &ProductList{base: newBase(deps, "productlist")}
}

// Crawl implements Strategy.
func (s *ProductList) Crawl(ctx context.Context, cfg crawler.DomainConfig, stop crawler.StopSet) crawler.Result {
	var result crawler.Result
	logger := s.logger.With(zap.String("domain", cfg.Domain()))

	listURL := s.listURL(cfg)
	body, err := s.fetch(ctx, listURL, s.opts.PageTimeout)
	if err != nil {
		logger.Warn("product list fetch failed", zap.String("url", listURL), zap.Error(err))
		return result
	}

	urls := parseLines(body)
	for i, u := range urls {
		if stop.Contains(u) {
			result.StoppedAt = u
			urls = urls[:i]
			logger.Info("reached checkpoint", zap.String("url", u), zap.Int("pending", i))
			break
		}
	}

	limit := maxOr(s.opts.MaxLinkSteps, 1)
	for _, productURL := range urls {
		if ctx.Err() != nil || len(result.Items) >= limit {
			break
		}
		doc, err := s.fetchDocument(ctx, productURL)
		if err != nil {
			logger.Warn("product fetch failed", zap.String("url", productURL), zap.Error(err))
			continue
		}
		if img, ok := resolver.SelectBestImage(doc, productURL, cfg); ok {
			s.add(ctx, &result, cfg, img, productURL, resolver.PageTitle(doc))
		}
	}
	return result
}

func (s *ProductList) listURL(cfg crawler.DomainConfig) string {
	if cfg.ProductListURL != "" {
		return cfg.ProductListURL
	}
	return strings.ReplaceAll(s.opts.ProductListURLPattern, "{domain}", cfg.Domain())
}

func parseLines(body []byte) []string {
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out
}
