package strategy

import (
	"fmt"
	"sort"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

// Registry maps source types to strategies.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry registers the built-in strategies.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(crawler.SourceAPI, NewAPI(deps))
	r.Register(crawler.SourceAPIAttachment, NewAttachment(deps))
	r.Register(crawler.SourcePrevNext, NewPrevNext(deps))
	r.Register(crawler.SourceProductList, NewProductList(deps))
	r.Register(crawler.SourceSitemap, NewSitemap(deps))
	return r
}

// Register binds s to sourceType, replacing any previous binding.
func (r *Registry) Register(sourceType string, s Strategy) {
	r.strategies[sourceType] = s
}

// Lookup returns the strategy for sourceType or an error wrapping crawler.ErrUnknownSourceType.
func (r *Registry) Lookup(sourceType string) (Strategy, error) {
	s, ok := r.strategies[sourceType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", crawler.ErrUnknownSourceType, sourceType)
	}
	return s, nil
}

// SourceTypes lists the registered source types in sorted order.
func (r *Registry) SourceTypes() []string {
	out := make([]string, 0, len(r.strategies))
	for k := range r.strategies {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
