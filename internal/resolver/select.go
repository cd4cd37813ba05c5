package resolver

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

// SelectBestImage picks the product image from a parsed page.
//
// Preference: a tag whose source ends with one of the configured suffixes
// (suffix order first), then og:image, then the first image tag when neither
// a selector nor replacements are configured. URLs resolve against baseURL.
func SelectBestImage(doc *goquery.Document, baseURL string, cfg crawler.DomainConfig) (string, bool) {
	if doc == nil {
		return "", false
	}
	tags := doc.Find("img")
	if cfg.Selector != "" {
		tags = doc.Find(cfg.Selector)
	}

	for _, suffix := range cfg.Suffixes() {
		var found string
		tags.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			src := imageSource(s)
			if src != "" && strings.HasSuffix(src, suffix) {
				found = src
				return false
			}
			return true
		})
		if found != "" {
			return crawler.ResolveReference(baseURL, found), true
		}
	}

	if og, ok := MetaContent(doc, "og:image"); ok {
		return crawler.ResolveReference(baseURL, og), true
	}

	if cfg.Selector == "" && !cfg.HasReplacements() {
		var found string
		tags.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found = imageSource(s)
			return found == ""
		})
		if found != "" {
			return crawler.ResolveReference(baseURL, found), true
		}
	}
	return "", false
}

// PageTitle returns og:title, falling back to the document title.
func PageTitle(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	if title, ok := MetaContent(doc, "og:title"); ok {
		return title
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// MetaContent returns the content of the first <meta property=...> tag.
func MetaContent(doc *goquery.Document, property string) (string, bool) {
	content := strings.TrimSpace(doc.Find(`meta[property="` + property + `"]`).First().AttrOr("content", ""))
	return content, content != ""
}

func imageSource(s *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}
