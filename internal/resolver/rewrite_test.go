package resolver

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

func TestApplyFallback(t *testing.T) {
	t.Parallel()

	rules := &crawler.FallbackRules{Type: crawler.FallbackCutFilenamePrefix, Domain: "cdn.example", PrefixLength: 7}
	ctx := context.Background()

	t.Run("cuts prefix when candidate is live", func(t *testing.T) {
		t.Parallel()
		f := newFakeFetcher()
		f.live("https://cdn.example/img/product.jpg")
		r := newTestResolver(f)
		got := r.ApplyFallback(ctx, "https://cdn.example/img/abc123-product.jpg", rules)
		assert.Equal(t, "https://cdn.example/img/product.jpg", got)
	})

	t.Run("keeps original when candidate is dead", func(t *testing.T) {
		t.Parallel()
		f := newFakeFetcher()
		f.status("https://cdn.example/img/product.jpg", http.StatusNotFound)
		r := newTestResolver(f)
		got := r.ApplyFallback(ctx, "https://cdn.example/img/abc123-product.jpg", rules)
		assert.Equal(t, "https://cdn.example/img/abc123-product.jpg", got)
	})

	t.Run("keeps percent-encoding of the filename", func(t *testing.T) {
		t.Parallel()
		f := newFakeFetcher()
		f.live("https://cdn.example/img/a%2Bb.jpg")
		r := newTestResolver(f)
		got := r.ApplyFallback(ctx, "https://cdn.example/img/abc123-a%2Bb.jpg", rules)
		assert.Equal(t, "https://cdn.example/img/a%2Bb.jpg", got)
		assert.Equal(t, []string{"https://cdn.example/img/a%2Bb.jpg"}, f.calls)
	})

	t.Run("keeps encoded spaces", func(t *testing.T) {
		t.Parallel()
		f := newFakeFetcher()
		f.live("https://cdn.example/img/red%20shirt.jpg")
		r := newTestResolver(f)
		got := r.ApplyFallback(ctx, "https://cdn.example/img/abc123-red%20shirt.jpg", rules)
		assert.Equal(t, "https://cdn.example/img/red%20shirt.jpg", got)
	})

	tests := []struct {
		name  string
		url   string
		rules *crawler.FallbackRules
	}{
		{name: "no hyphen at cut point", url: "https://cdn.example/img/abc1234product.jpg", rules: rules},
		{name: "prefix with invalid characters", url: "https://cdn.example/img/ab.c12-product.jpg", rules: rules},
		{name: "other host", url: "https://other.example/img/abc123-product.jpg", rules: rules},
		{name: "filename too short", url: "https://cdn.example/img/abc123-", rules: rules},
		{name: "nil rules", url: "https://cdn.example/img/abc123-product.jpg", rules: nil},
		{name: "other type", url: "https://cdn.example/img/abc123-product.jpg", rules: &crawler.FallbackRules{Type: "other", Domain: "cdn.example", PrefixLength: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFakeFetcher()
			r := newTestResolver(f)
			assert.Equal(t, tt.url, r.ApplyFallback(ctx, tt.url, tt.rules))
			assert.Empty(t, f.calls)
		})
	}
}

func TestApplyReplacements(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rules := []crawler.SubstitutionRule{{Match: "-large", Candidates: []string{"-medium", "-small"}}}

	t.Run("falls through dead candidate", func(t *testing.T) {
		t.Parallel()
		f := newFakeFetcher()
		f.status("https://cdn.example/a-medium.jpg", http.StatusNotFound)
		f.live("https://cdn.example/a-small.jpg")
		r := newTestResolver(f)
		assert.Equal(t, "https://cdn.example/a-small.jpg", r.ApplyReplacements(ctx, "https://cdn.example/a-large.jpg", rules, false))
		assert.Equal(t, 1, f.callCount("https://cdn.example/a-medium.jpg"))
	})

	t.Run("keeps original when nothing validates", func(t *testing.T) {
		t.Parallel()
		r := newTestResolver(newFakeFetcher())
		assert.Equal(t, "https://cdn.example/a-large.jpg", r.ApplyReplacements(ctx, "https://cdn.example/a-large.jpg", rules, false))
	})

	t.Run("always replace skips validation", func(t *testing.T) {
		t.Parallel()
		f := newFakeFetcher()
		r := newTestResolver(f)
		assert.Equal(t, "https://cdn.example/a-medium.jpg", r.ApplyReplacements(ctx, "https://cdn.example/a-large.jpg", rules, true))
		assert.Empty(t, f.calls)
	})

	t.Run("only the first matching key applies", func(t *testing.T) {
		t.Parallel()
		f := newFakeFetcher()
		f.live("https://cdn.example/a-large-v2.jpg")
		r := newTestResolver(f)
		multi := []crawler.SubstitutionRule{
			{Match: "-thumb", Candidates: []string{"-full"}},
			{Match: "-large", Candidates: []string{"-xl"}},
			{Match: ".jpg", Candidates: []string{"-v2.jpg"}},
		}
		assert.Equal(t, "https://cdn.example/a-large.jpg", r.ApplyReplacements(ctx, "https://cdn.example/a-large.jpg", multi, false))
		assert.Equal(t, 0, f.callCount("https://cdn.example/a-large-v2.jpg"))
	})

	t.Run("no rules", func(t *testing.T) {
		t.Parallel()
		r := newTestResolver(newFakeFetcher())
		assert.Equal(t, "https://cdn.example/a.jpg", r.ApplyReplacements(ctx, "https://cdn.example/a.jpg", nil, false))
	})
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("identity without rules", func(t *testing.T) {
		t.Parallel()
		f := newFakeFetcher()
		r := newTestResolver(f)
		got, ok := r.Finalize(ctx, "https://cdn.example/x/a.jpg", crawler.DomainConfig{})
		assert.True(t, ok)
		assert.Equal(t, "https://cdn.example/x/a.jpg", got)
		assert.Empty(t, f.calls)
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		r := newTestResolver(newFakeFetcher())
		_, ok := r.Finalize(ctx, "", crawler.DomainConfig{})
		assert.False(t, ok)
	})

	t.Run("fallback runs before replacements", func(t *testing.T) {
		t.Parallel()
		f := newFakeFetcher()
		f.live("https://cdn.example/x/shirt-400.jpg")
		f.live("https://cdn.example/x/shirt-full.jpg")
		r := newTestResolver(f)
		cfg := crawler.DomainConfig{
			FallbackRules: &crawler.FallbackRules{Type: crawler.FallbackCutFilenamePrefix, Domain: "cdn.example", PrefixLength: 6},
			Replacements:  crawler.SubstitutionRules{{Match: "/shirt-400", Candidates: []string{"/shirt-full"}}},
		}
		got, ok := r.Finalize(ctx, "https://cdn.example/x/a1b2c-shirt-400.jpg", cfg)
		assert.True(t, ok)
		assert.Equal(t, "https://cdn.example/x/shirt-full.jpg", got)
	})

	t.Run("suffix list is not a substitution", func(t *testing.T) {
		t.Parallel()
		f := newFakeFetcher()
		r := newTestResolver(f)
		cfg := crawler.DomainConfig{Replacements: crawler.PrioritizedSuffixes{"-1.jpg"}}
		got, _ := r.Finalize(ctx, "https://cdn.example/a-2.jpg", cfg)
		assert.Equal(t, "https://cdn.example/a-2.jpg", got)
	})
}
