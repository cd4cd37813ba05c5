package strategy

import (
	"bytes"
	"context"
	"slices"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

// Sitemap reads product image URLs straight out of image sitemaps.
//
// The checkpoint is checked before any filtering. Hitting it halts every
// remaining sitemap but keeps the items already collected, including those
// from the same sitemap. A nested sitemap that fails to load ends the walk
// the same way.
type Sitemap struct {
	base
}

// NewSitemap builds the "sitemap" strategy.
func NewSitemap(deps Deps) *Sitemap {
	return &Sitemap{base: newBase(deps, "sitemap")}
}

type sitemapEntry struct {
	loc        string
	imageLoc   string
	imageTitle string
}

// Crawl implements Strategy.
func (s *Sitemap) Crawl(ctx context.Context, cfg crawler.DomainConfig, stop crawler.StopSet) crawler.Result {
	var result crawler.Result
	logger := s.logger.With(zap.String("domain", cfg.Domain()))

	targets, err := s.productSitemaps(ctx, cfg)
	if err != nil {
		logger.Warn("sitemap index failed", zap.String("url", cfg.URL), zap.Error(err))
		return result
	}
	if len(targets) == 0 {
		logger.Warn("no product sitemaps in index", zap.String("url", cfg.URL))
		return result
	}

	designs := make(map[string]struct{})
	for _, sitemapURL := range targets {
		if ctx.Err() != nil {
			break
		}
		entries, err := s.entries(ctx, sitemapURL)
		if err != nil {
			logger.Warn("product sitemap failed", zap.String("url", sitemapURL), zap.Error(err))
			break
		}
		if cfg.CrawlSitemapBackwards {
			slices.Reverse(entries)
		}
		for _, e := range entries {
			if stop.Contains(e.loc) {
				result.StoppedAt = e.loc
				logger.Info("reached checkpoint", zap.String("url", e.loc), zap.Int("images", len(result.Items)))
				return result
			}
			urlPath := crawler.URLPath(e.loc)
			if !keywordFilter(urlPath, cfg.ProductURLKeywords, cfg.ProductURLExclusions) {
				continue
			}
			if cfg.DesignDedupEnabled() {
				if slug := DesignSlug(urlPath, cfg.ProductURLKeywords); slug != "" {
					if _, seen := designs[slug]; seen {
						continue
					}
					designs[slug] = struct{}{}
				}
			}
			if e.imageLoc == "" {
				continue
			}
			s.add(ctx, &result, cfg, e.imageLoc, e.loc, e.imageTitle)
		}
	}
	return result
}

// productSitemaps returns the last N index entries containing the product marker.
func (s *Sitemap) productSitemaps(ctx context.Context, cfg crawler.DomainConfig) ([]string, error) {
	body, err := s.fetch(ctx, cfg.URL, s.opts.PageTimeout)
	if err != nil {
		return nil, err
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	marker := cfg.ProductSitemapMarker
	if marker == "" {
		marker = s.opts.ProductSitemapMarker
	}
	var sitemaps []string
	for _, n := range xmlquery.Find(doc, "//loc") {
		if loc := strings.TrimSpace(n.InnerText()); strings.Contains(loc, marker) {
			sitemaps = append(sitemaps, loc)
		}
	}
	limit := maxOr(cfg.SitemapCrawlLimit, 1)
	if len(sitemaps) > limit {
		sitemaps = sitemaps[len(sitemaps)-limit:]
	}
	return sitemaps, nil
}

func (s *Sitemap) entries(ctx context.Context, sitemapURL string) ([]sitemapEntry, error) {
	body, err := s.fetch(ctx, sitemapURL, s.opts.SitemapTimeout)
	if err != nil {
		return nil, err
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var entries []sitemapEntry
	for _, u := range xmlquery.Find(doc, "//url") {
		var e sitemapEntry
		for child := u.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != xmlquery.ElementNode {
				continue
			}
			switch {
			case child.Data == "loc" && !isImageNode(child):
				e.loc = strings.TrimSpace(child.InnerText())
			case child.Data == "image" && isImageNode(child) && e.imageLoc == "":
				e.imageLoc, e.imageTitle = imageFields(child)
			}
		}
		if e.loc != "" {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func imageFields(image *xmlquery.Node) (loc, title string) {
	for child := image.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode || !isImageNode(child) {
			continue
		}
		switch child.Data {
		case "loc":
			loc = strings.TrimSpace(child.InnerText())
		case "title":
			title = strings.TrimSpace(child.InnerText())
		}
	}
	return loc, title
}

func isImageNode(n *xmlquery.Node) bool {
	return n.Prefix == "image" || strings.Contains(n.NamespaceURI, "sitemap-image")
}

// keywordFilter requires one keyword (when any are set) and rejects any exclusion.
func keywordFilter(urlPath string, keywords, exclusions []string) bool {
	if len(keywords) > 0 && !slices.ContainsFunc(keywords, func(k string) bool { return strings.Contains(urlPath, k) }) {
		return false
	}
	return !slices.ContainsFunc(exclusions, func(k string) bool { return strings.Contains(urlPath, k) })
}

// DesignSlug groups colour and size variants of one design. The last path
// segment is cut after the first keyword it contains, or else before its last
// hyphen. An empty result means the URL is not deduplicated.
func DesignSlug(urlPath string, keywords []string) string {
	trimmed := strings.TrimSuffix(urlPath, "/")
	slug := trimmed[strings.LastIndex(trimmed, "/")+1:]
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if pos := strings.Index(slug, k); pos >= 0 {
			return slug[:pos+len(k)]
		}
	}
	if i := strings.LastIndex(slug, "-"); i > 0 {
		return slug[:i]
	}
	return ""
}
