package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]crawler.FetchResponse
	errs      map[string]error
	calls     []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: map[string]crawler.FetchResponse{},
		errs:      map[string]error{},
	}
}

func (f *fakeFetcher) live(url string, headers ...string) {
	h := http.Header{}
	for i := 0; i+1 < len(headers); i += 2 {
		h.Set(headers[i], headers[i+1])
	}
	f.responses[url] = crawler.FetchResponse{URL: url, StatusCode: http.StatusOK, Headers: h}
}

func (f *fakeFetcher) status(url string, code int) {
	f.responses[url] = crawler.FetchResponse{URL: url, StatusCode: code, Headers: http.Header{}}
	f.errs[url] = fmt.Errorf("%w: %d", crawler.ErrHTTPStatus, code)
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.URL)
	if err, ok := f.errs[req.URL]; ok {
		return f.responses[req.URL], err
	}
	if resp, ok := f.responses[req.URL]; ok {
		return resp, nil
	}
	return crawler.FetchResponse{}, errors.New("dial tcp: connection refused")
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}
