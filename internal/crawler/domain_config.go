package crawler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
)

// Source types understood by the strategy registry.
const (
	SourceAPI           = "api"
	SourceAPIAttachment = "api-attachment"
	SourcePrevNext      = "prevnext"
	SourceProductList   = "product-list"
	SourceSitemap       = "sitemap"
)

// FallbackCutFilenamePrefix is the only fallback rule type.
const FallbackCutFilenamePrefix = "cut_filename_prefix"

// DomainConfig describes how to harvest one domain.
type DomainConfig struct {
	URL           string         `json:"url"`
	SourceType    string         `json:"source_type"`
	Selector      string         `json:"selector,omitempty"`
	Replacements  Replacements   `json:"-"`
	AlwaysReplace bool           `json:"always_replace,omitempty"`
	FallbackRules *FallbackRules `json:"fallback_rules,omitempty"`
	CheckRecency  bool           `json:"check_recency,omitempty"`

	// api / api-attachment
	APIURLPattern          string `json:"api_url_pattern,omitempty"`
	AttachmentPrefixFilter string `json:"attachment_prefix_filter,omitempty"`

	// prevnext
	FirstProductSelector string `json:"first_product_selector,omitempty"`
	NextProductSelector  string `json:"next_product_selector,omitempty"`

	// product-list
	ProductListURL string `json:"product_list_url,omitempty"`

	// sitemap
	ProductURLKeywords        []string `json:"product_url_keywords,omitempty"`
	ProductURLExclusions      []string `json:"product_url_exclusions,omitempty"`
	CrawlSitemapBackwards     bool     `json:"crawl_sitemap_backwards,omitempty"`
	SitemapCrawlLimit         int      `json:"sitemap_crawl_limit,omitempty"`
	EnableDesignDeduplication *bool    `json:"enable_design_deduplication,omitempty"`
	ProductSitemapMarker      string   `json:"product_sitemap_marker,omitempty"`

	// downloads
	DownloadImages               bool          `json:"download_images,omitempty"`
	DownloadFilenameRegexReplace *RegexReplace `json:"download_filename_regex_replace,omitempty"`
	DownloadFilenameRegexCut     string        `json:"download_filename_regex_cut,omitempty"`
	DownloadFilenameFromTitle    bool          `json:"download_filename_from_title,omitempty"`
}

// FallbackRules describes the filename-prefix recovery rule.
type FallbackRules struct {
	Type         string `json:"type"`
	Domain       string `json:"domain"`
	PrefixLength int    `json:"prefix_length"`
}

// RegexReplace is a pattern/replacement pair applied to download filenames.
type RegexReplace struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
}

// Domain returns the host of the seed URL, which keys history and checkpoints.
func (c DomainConfig) Domain() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// DesignDedupEnabled reports whether sitemap design dedup is on (default true).
func (c DomainConfig) DesignDedupEnabled() bool {
	return c.EnableDesignDeduplication == nil || *c.EnableDesignDeduplication
}

// Suffixes returns the prioritized suffix list, if that is the configured variant.
func (c DomainConfig) Suffixes() []string {
	if s, ok := c.Replacements.(PrioritizedSuffixes); ok {
		return s
	}
	return nil
}

// Substitutions returns the substitution rules, if that is the configured variant.
func (c DomainConfig) Substitutions() []SubstitutionRule {
	if s, ok := c.Replacements.(SubstitutionRules); ok {
		return s
	}
	return nil
}

// Replacements is either PrioritizedSuffixes or SubstitutionRules.
type Replacements interface {
	isReplacements()
	// Empty reports whether no replacement data was configured.
	Empty() bool
}

// PrioritizedSuffixes lists image URL suffixes in preference order.
type PrioritizedSuffixes []string

func (PrioritizedSuffixes) isReplacements() {}

// Empty implements Replacements.
func (s PrioritizedSuffixes) Empty() bool { return len(s) == 0 }

// SubstitutionRule maps a substring to ordered candidate substitutions.
type SubstitutionRule struct {
	Match      string
	Candidates []string
}

// SubstitutionRules keeps the rules in configuration order.
type SubstitutionRules []SubstitutionRule

func (SubstitutionRules) isReplacements() {}

// Empty implements Replacements.
func (s SubstitutionRules) Empty() bool { return len(s) == 0 }

// HasReplacements reports whether any replacement variant is configured.
func (c DomainConfig) HasReplacements() bool {
	return c.Replacements != nil && !c.Replacements.Empty()
}

type domainConfigAlias DomainConfig

// UnmarshalJSON decodes the config and resolves the replacements variant once.
func (c *DomainConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		domainConfigAlias
		Replacements json.RawMessage `json:"replacements"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = DomainConfig(raw.domainConfigAlias)
	repl, err := decodeReplacements(raw.Replacements)
	if err != nil {
		return fmt.Errorf("replacements: %w", err)
	}
	c.Replacements = repl
	return nil
}

func decodeReplacements(data json.RawMessage) (Replacements, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	switch data[0] {
	case '[':
		var suffixes []string
		if err := json.Unmarshal(data, &suffixes); err != nil {
			return nil, err
		}
		return PrioritizedSuffixes(suffixes), nil
	case '{':
		return decodeSubstitutions(data)
	default:
		return nil, errors.New("must be a list or an object")
	}
}

// decodeSubstitutions walks the object with a token decoder so key order survives.
func decodeSubstitutions(data []byte) (SubstitutionRules, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var rules SubstitutionRules
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		candidates, err := decodeCandidates(value)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", key, err)
		}
		rules = append(rules, SubstitutionRule{Match: key, Candidates: candidates})
	}
	return rules, nil
}

func decodeCandidates(value json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(value, &list); err == nil {
		return list, nil
	}
	var single string
	if err := json.Unmarshal(value, &single); err != nil {
		return nil, errors.New("candidates must be a string or a list of strings")
	}
	return []string{single}, nil
}

// LoadDomainConfigs reads the JSON array of domain configs at path.
func LoadDomainConfigs(path string) ([]DomainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domain configs: %w", err)
	}
	var configs []DomainConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("decode domain configs %s: %w", path, err)
	}
	return configs, nil
}
