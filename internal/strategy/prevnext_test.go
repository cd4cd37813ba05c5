package strategy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

func productHTML(title, image, next string) string {
	nextLink := ""
	if next != "" {
		nextLink = fmt.Sprintf(`<a class="next" href="%s">older</a>`, next)
	}
	return fmt.Sprintf(`<html><head><title>%s</title><meta property="og:image" content="%s"></head><body>%s</body></html>`,
		title, image, nextLink)
}

func prevNextConfig() crawler.DomainConfig {
	return crawler.DomainConfig{
		URL:                  "https://shop.example/shop",
		SourceType:           crawler.SourcePrevNext,
		FirstProductSelector: "a.product",
		NextProductSelector:  "a.next",
	}
}

func TestPrevNextFollowsChainUntilCheckpoint(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(map[string]string{
		"https://shop.example/shop": `<html><body><a class="product" href="/p/5">newest</a><a class="product" href="/p/x">other</a></body></html>`,
		"https://shop.example/p/5":  productHTML("Five", "/img/5.jpg", "/p/4"),
		"https://shop.example/p/4":  productHTML("Four", "https://cdn.example/4.jpg", "3"),
		"https://shop.example/p/3":  productHTML("Three", "/img/3.jpg", "/p/2"),
	})
	s := NewPrevNext(testDeps(f))

	res := s.Crawl(context.Background(), prevNextConfig(), crawler.NewStopSet([]string{"https://shop.example/p/3"}))

	assert.Equal(t, []string{"https://shop.example/img/5.jpg", "https://cdn.example/4.jpg"}, res.ImageURLs())
	assert.Equal(t, []string{"https://shop.example/p/5", "https://shop.example/p/4"}, res.ProductURLs)
	assert.Equal(t, "Five", res.Items[0].ProductTitle)
	assert.Equal(t, "https://shop.example/p/3", res.StoppedAt)
	assert.False(t, f.fetched("https://shop.example/p/3"))
}

func TestPrevNextStopsWithoutNextLink(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(map[string]string{
		"https://shop.example/shop": `<a class="product" href="https://shop.example/p/1">only</a>`,
		"https://shop.example/p/1":  productHTML("One", "/img/1.jpg", ""),
	})
	res := NewPrevNext(testDeps(f)).Crawl(context.Background(), prevNextConfig(), nil)

	assert.Equal(t, []string{"https://shop.example/img/1.jpg"}, res.ImageURLs())
	assert.Len(t, f.calls, 2)
}

func TestPrevNextStepCap(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{"https://shop.example/shop": `<a class="product" href="/p/0">first</a>`}
	for i := 0; i < 10; i++ {
		bodies[fmt.Sprintf("https://shop.example/p/%d", i)] = productHTML("P", fmt.Sprintf("/img/%d.jpg", i), fmt.Sprintf("/p/%d", i+1))
	}
	f := newFakeFetcher(bodies)
	deps := testDeps(f)
	deps.Options.MaxLinkSteps = 3
	res := NewPrevNext(deps).Crawl(context.Background(), prevNextConfig(), nil)

	assert.Len(t, res.Items, 3)
	assert.False(t, f.fetched("https://shop.example/p/3"))
}

func TestPrevNextFailures(t *testing.T) {
	t.Parallel()

	t.Run("missing selectors", func(t *testing.T) {
		t.Parallel()
		f := newFakeFetcher(nil)
		res := NewPrevNext(testDeps(f)).Crawl(context.Background(), crawler.DomainConfig{URL: "https://shop.example/"}, nil)
		assert.Empty(t, res.Items)
		assert.Empty(t, f.calls)
	})

	t.Run("seed unavailable", func(t *testing.T) {
		t.Parallel()
		res := NewPrevNext(testDeps(newFakeFetcher(nil))).Crawl(context.Background(), prevNextConfig(), nil)
		assert.Empty(t, res.Items)
	})

	t.Run("product fetch error keeps partial", func(t *testing.T) {
		t.Parallel()
		f := newFakeFetcher(map[string]string{
			"https://shop.example/shop": `<a class="product" href="/p/2">x</a>`,
			"https://shop.example/p/2":  productHTML("Two", "/img/2.jpg", "/p/1"),
		})
		res := NewPrevNext(testDeps(f)).Crawl(context.Background(), prevNextConfig(), nil)
		assert.Equal(t, []string{"https://shop.example/img/2.jpg"}, res.ImageURLs())
	})
}
