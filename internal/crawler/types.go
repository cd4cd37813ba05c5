package crawler

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrHTTPStatus marks a fetch that completed with a non-2xx status.
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrUnknownSourceType is returned when no strategy is registered for a source type.
	ErrUnknownSourceType = errors.New("unknown source type")
)

// URLMetadata is the memoized outcome of a HEAD check.
type URLMetadata struct {
	Status   int  `json:"status"`
	IsRecent bool `json:"is_recent"`
}

// Item is one harvested image together with the product it came from.
type Item struct {
	ImageURL     string `json:"image_url"`
	ProductURL   string `json:"product_url"`
	ProductTitle string `json:"product_title"`
}

// Result is what a strategy returns for one domain.
// Items are newest first; ProductURLs lists the product pages that produced
// an item, in the same order, and is used to roll the checkpoint forward.
type Result struct {
	Items       []Item
	ProductURLs []string
	// StoppedAt is the checkpoint URL that halted the crawl, if any.
	StoppedAt string

	seen map[string]struct{}
}

// Add appends item unless its image URL was already emitted.
// It reports whether the item was added.
func (r *Result) Add(item Item) bool {
	if item.ImageURL == "" {
		return false
	}
	if r.seen == nil {
		r.seen = make(map[string]struct{}, len(r.Items)+1)
		for _, existing := range r.Items {
			r.seen[existing.ImageURL] = struct{}{}
		}
	}
	if _, dup := r.seen[item.ImageURL]; dup {
		return false
	}
	r.seen[item.ImageURL] = struct{}{}
	r.Items = append(r.Items, item)
	if item.ProductURL != "" {
		r.ProductURLs = append(r.ProductURLs, item.ProductURL)
	}
	return true
}

// ImageURLs returns the image URLs of all items in order.
func (r Result) ImageURLs() []string {
	out := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, it.ImageURL)
	}
	return out
}

// StopSet holds the checkpoint URLs of one domain.
type StopSet map[string]struct{}

// NewStopSet builds a StopSet from the persisted checkpoint list.
func NewStopSet(urls []string) StopSet {
	set := make(StopSet, len(urls))
	for _, u := range urls {
		if u != "" {
			set[u] = struct{}{}
		}
	}
	return set
}

// Contains reports whether u is a checkpoint URL.
func (s StopSet) Contains(u string) bool {
	_, ok := s[u]
	return ok
}

// Checkpoint maps a domain to its most recently seen product URLs.
type Checkpoint map[string][]string

// Roll replaces the domain entry with the first limit product URLs.
// An empty list leaves the previous entry untouched.
func (c Checkpoint) Roll(domain string, productURLs []string, limit int) {
	if len(productURLs) == 0 {
		return
	}
	if limit > 0 && len(productURLs) > limit {
		productURLs = productURLs[:limit]
	}
	c[domain] = append([]string(nil), productURLs...)
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Method  string
	Timeout time.Duration
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
// When a request fails with ErrHTTPStatus the response still carries the
// status code and headers.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
