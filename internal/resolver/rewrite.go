package resolver

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

var fallbackPrefixPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ApplyFallback strips a randomized "<prefix>-" from the filename when rules
// match the URL's host and the stripped URL is live. Otherwise imageURL is returned.
func (r *Resolver) ApplyFallback(ctx context.Context, imageURL string, rules *crawler.FallbackRules) string {
	if imageURL == "" || rules == nil || rules.Type != crawler.FallbackCutFilenamePrefix {
		return imageURL
	}
	u, err := url.Parse(imageURL)
	if err != nil || u.Host != rules.Domain {
		return imageURL
	}

	// Cut on the escaped path so the filename keeps its original percent-encoding.
	n := rules.PrefixLength
	dir, filename := splitFilename(u.EscapedPath())
	if n < 1 || len(filename) <= n || filename[n-1] != '-' || !fallbackPrefixPattern.MatchString(filename[:n-1]) {
		return imageURL
	}

	rawPath := dir + filename[n:]
	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return imageURL
	}
	candidate := *u
	candidate.Path = decoded
	candidate.RawPath = rawPath
	candidateURL := candidate.String()
	if !r.IsLive(ctx, candidateURL) {
		r.logger.Debug("fallback candidate not live", zap.String("url", imageURL), zap.String("candidate", candidateURL))
		return imageURL
	}
	r.logger.Debug("fallback applied", zap.String("url", imageURL), zap.String("candidate", candidateURL))
	return candidateURL
}

// ApplyReplacements tries the candidates of the first rule whose match occurs
// in imageURL and returns the first live one, or the first one when always is
// set. Later rules are never consulted.
func (r *Resolver) ApplyReplacements(
	ctx context.Context,
	imageURL string,
	rules []crawler.SubstitutionRule,
	always bool,
) string {
	if imageURL == "" {
		return imageURL
	}
	for _, rule := range rules {
		if rule.Match == "" || !strings.Contains(imageURL, rule.Match) {
			continue
		}
		for _, replacement := range rule.Candidates {
			candidate := strings.ReplaceAll(imageURL, rule.Match, replacement)
			if always || r.IsLive(ctx, candidate) {
				return candidate
			}
		}
		r.logger.Debug("no live replacement", zap.String("url", imageURL), zap.String("match", rule.Match))
		return imageURL
	}
	return imageURL
}

// Finalize runs the fallback rule, then the substitution rules. It reports
// false only for an empty input.
func (r *Resolver) Finalize(ctx context.Context, imageURL string, cfg crawler.DomainConfig) (string, bool) {
	if imageURL == "" {
		return "", false
	}
	clean := r.ApplyFallback(ctx, imageURL, cfg.FallbackRules)
	return r.ApplyReplacements(ctx, clean, cfg.Substitutions(), cfg.AlwaysReplace), true
}

func splitFilename(p string) (dir, filename string) {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}
	return p[:i+1], p[i+1:]
}
