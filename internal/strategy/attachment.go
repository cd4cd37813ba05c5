package strategy

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

var preferredSizes = []string{"full", "large", "medium", "thumbnail"}

// wpMedia is one entry of a WordPress attachment listing.
type wpMedia struct {
	SourceURL    string          `json:"source_url"`
	MediaDetails json.RawMessage `json:"media_details"`
	GUID         struct {
		Rendered string `json:"rendered"`
	} `json:"guid"`
}

// bestURL returns source_url, then the largest named size, then guid.rendered.
func (m wpMedia) bestURL() string {
	if m.SourceURL != "" {
		return m.SourceURL
	}
	var details struct {
		Sizes map[string]struct {
			SourceURL string `json:"source_url"`
		} `json:"sizes"`
	}
	// media_details is [] for some media types, which just leaves sizes empty.
	if len(m.MediaDetails) > 0 && json.Unmarshal(m.MediaDetails, &details) == nil {
		for _, size := range preferredSizes {
			if s, ok := details.Sizes[size]; ok && s.SourceURL != "" {
				return s.SourceURL
			}
		}
	}
	return m.GUID.Rendered
}

// Attachment pages through products and resolves each one's attachment listing.
type Attachment struct {
	api *API
}

// NewAttachment builds the "api-attachment" strategy.
func NewAttachment(deps Deps) *Attachment {
	return &Attachment{api: &API{base: newBase(deps, "attachment")}}
}

// Crawl implements Strategy.
func (s *Attachment) Crawl(ctx context.Context, cfg crawler.DomainConfig, stop crawler.StopSet) crawler.Result {
	var result crawler.Result
	logger := s.api.logger.With(zap.String("domain", cfg.Domain()))

	prefix := strings.ToLower(cfg.AttachmentPrefixFilter)
	if prefix == "" {
		logger.Warn("attachment_prefix_filter is required")
		return result
	}

	for page := 1; page <= maxOr(s.api.opts.MaxAPIPages, 1); page++ {
		if ctx.Err() != nil {
			break
		}
		products, ok := s.api.page(ctx, cfg, page, logger)
		if !ok {
			break
		}
		for _, p := range products {
			if p.Link != "" && stop.Contains(p.Link) {
				result.StoppedAt = p.Link
				logger.Info("reached checkpoint", zap.String("url", p.Link), zap.Int("images", len(result.Items)))
				return result
			}
			href := p.attachmentHref()
			if href == "" {
				continue
			}
			var media []wpMedia
			if err := s.api.fetchJSON(ctx, href, s.api.opts.AttachmentTimeout, &media); err != nil {
				logger.Warn("attachment fetch failed", zap.String("url", href), zap.Error(err))
				continue
			}
			for _, m := range media {
				img := m.bestURL()
				if img == "" {
					continue
				}
				filename := img[strings.LastIndex(img, "/")+1:]
				if !strings.HasPrefix(strings.ToLower(filename), prefix) {
					continue
				}
				s.api.add(ctx, &result, cfg, img, p.Link, p.title())
				break
			}
		}
	}
	return result
}
