package strategy

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  []crawler.FetchRequest
}

func newFakeFetcher(bodies map[string]string) *fakeFetcher {
	return &fakeFetcher{bodies: bodies}
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	body, ok := f.bodies[req.URL]
	if !ok {
		return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusNotFound},
			fmt.Errorf("%w: 404", crawler.ErrHTTPStatus)
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func (f *fakeFetcher) fetched(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.URL == url {
			return true
		}
	}
	return false
}

func (f *fakeFetcher) timeoutFor(url string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.URL == url {
			return c.Timeout
		}
	}
	return 0
}

// identityFinalizer returns URLs unchanged, optionally rewriting through a map.
type identityFinalizer struct {
	rewrite map[string]string
}

func (f identityFinalizer) Finalize(_ context.Context, imageURL string, _ crawler.DomainConfig) (string, bool) {
	if imageURL == "" {
		return "", false
	}
	if out, ok := f.rewrite[imageURL]; ok {
		return out, true
	}
	return imageURL, true
}

func testDeps(f crawler.Fetcher) Deps {
	opts := DefaultOptions()
	return Deps{Fetcher: f, Resolver: identityFinalizer{}, Options: opts}
}
