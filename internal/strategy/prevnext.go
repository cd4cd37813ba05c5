package strategy

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
	"github.com/JakeFAU/product-image-crawler/internal/resolver"
)

// PrevNext walks product pages by following each page's "next" link.
type PrevNext struct {
	base
}

// NewPrevNext builds the "prevnext" strategy.
func NewPrevNext(deps Deps) *PrevNext {
	return &PrevNext{base: newBase(deps, "prevnext")}
}

// Crawl implements Strategy.
func (s *PrevNext) Crawl(ctx context.Context, cfg crawler.DomainConfig, stop crawler.StopSet) crawler.Result {
	var result crawler.Result
	logger := s.logger.With(zap.String("domain", cfg.Domain()))

	if cfg.FirstProductSelector == "" || cfg.NextProductSelector == "" {
		logger.Warn("first_product_selector and next_product_selector are required")
		return result
	}

	seed, err := s.fetchDocument(ctx, cfg.URL)
	if err != nil {
		logger.Warn("seed fetch failed", zap.Error(err))
		return result
	}
	href := strings.TrimSpace(seed.Find(cfg.FirstProductSelector).First().AttrOr("href", ""))
	if href == "" {
		logger.Warn("no first product link", zap.String("selector", cfg.FirstProductSelector))
		return result
	}
	current := crawler.ResolveReference(cfg.URL, href)

	for steps := 0; steps < maxOr(s.opts.MaxLinkSteps, 1); steps++ {
		if ctx.Err() != nil {
			break
		}
		if stop.Contains(current) {
			result.StoppedAt = current
			logger.Info("reached checkpoint", zap.String("url", current), zap.Int("images", len(result.Items)))
			break
		}
		doc, err := s.fetchDocument(ctx, current)
		if err != nil {
			logger.Warn("product fetch failed", zap.String("url", current), zap.Error(err))
			break
		}
		if img, ok := resolver.SelectBestImage(doc, current, cfg); ok {
			s.add(ctx, &result, cfg, img, current, resolver.PageTitle(doc))
		}
		next := strings.TrimSpace(doc.Find(cfg.NextProductSelector).First().AttrOr("href", ""))
		if next == "" {
			break
		}
		current = crawler.ResolveReference(current, next)
	}
	return result
}
