package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

// wpProduct is the subset of a WordPress REST product we read.
type wpProduct struct {
	Link  string `json:"link"`
	Title struct {
		Rendered string `json:"rendered"`
	} `json:"title"`
	Content struct {
		Rendered string `json:"rendered"`
	} `json:"content"`
	YoastHeadJSON json.RawMessage `json:"yoast_head_json"`
	Links         struct {
		Attachment []struct {
			Href string `json:"href"`
		} `json:"wp:attachment"`
	} `json:"_links"`
}

func (p wpProduct) title() string {
	return strings.TrimSpace(html.UnescapeString(p.Title.Rendered))
}

// imageURL prefers the Yoast og_image, then the first <img> in the rendered content.
func (p wpProduct) imageURL() string {
	var yoast struct {
		OGImage []struct {
			URL string `json:"url"`
		} `json:"og_image"`
	}
	if len(p.YoastHeadJSON) > 0 && json.Unmarshal(p.YoastHeadJSON, &yoast) == nil &&
		len(yoast.OGImage) > 0 && yoast.OGImage[0].URL != "" {
		return yoast.OGImage[0].URL
	}
	if p.Content.Rendered == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.Content.Rendered))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("img").First().AttrOr("src", ""))
}

func (p wpProduct) attachmentHref() string {
	if len(p.Links.Attachment) == 0 {
		return ""
	}
	return p.Links.Attachment[0].Href
}

// API pages through the WordPress product endpoint.
type API struct {
	base
}

// NewAPI builds the "api" strategy.
func NewAPI(deps Deps) *API {
	return &API{base: newBase(deps, "api")}
}

// Crawl implements Strategy.
func (s *API) Crawl(ctx context.Context, cfg crawler.DomainConfig, stop crawler.StopSet) crawler.Result {
	var result crawler.Result
	logger := s.logger.With(zap.String("domain", cfg.Domain()))

	for page := 1; page <= maxOr(s.opts.MaxAPIPages, 1); page++ {
		if ctx.Err() != nil {
			break
		}
		products, ok := s.page(ctx, cfg, page, logger)
		if !ok {
			break
		}
		for _, p := range products {
			if p.Link != "" && stop.Contains(p.Link) {
				result.StoppedAt = p.Link
				logger.Info("reached checkpoint", zap.String("url", p.Link), zap.Int("images", len(result.Items)))
				return result
			}
			img := p.imageURL()
			if img == "" {
				continue
			}
			s.add(ctx, &result, cfg, crawler.UpgradeHTTPS(img), p.Link, p.title())
		}
	}
	return result
}

// page fetches one listing page; false means stop paginating.
func (s *API) page(ctx context.Context, cfg crawler.DomainConfig, page int, logger *zap.Logger) ([]wpProduct, bool) {
	url := s.apiURL(cfg, page)
	body, err := s.fetch(ctx, url, s.opts.PageTimeout)
	if err != nil {
		logger.Warn("api page fetch failed", zap.Int("page", page), zap.Error(err))
		return nil, false
	}
	var products []wpProduct
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&products); err != nil {
		logger.Warn("api page decode failed", zap.Int("page", page), zap.Error(err))
		return nil, false
	}
	return products, len(products) > 0
}
