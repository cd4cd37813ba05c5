package crawler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainConfigUnmarshalReplacements(t *testing.T) {
	t.Parallel()

	t.Run("suffix list", func(t *testing.T) {
		t.Parallel()
		var cfg DomainConfig
		require.NoError(t, json.Unmarshal([]byte(`{"url":"https://shop.example/","source_type":"prevnext","replacements":["-1.jpg","-2.jpg"]}`), &cfg))
		assert.Equal(t, PrioritizedSuffixes{"-1.jpg", "-2.jpg"}, cfg.Replacements)
		assert.Equal(t, []string{"-1.jpg", "-2.jpg"}, []string(cfg.Suffixes()))
		assert.Nil(t, cfg.Substitutions())
		assert.True(t, cfg.HasReplacements())
	})

	t.Run("substitution map keeps key order", func(t *testing.T) {
		t.Parallel()
		var cfg DomainConfig
		raw := `{"url":"https://shop.example/","replacements":{"-zz":["-a","-b"],"-large":"-full","-aa":["-c"]}}`
		require.NoError(t, json.Unmarshal([]byte(raw), &cfg))
		rules := cfg.Substitutions()
		require.Len(t, rules, 3)
		assert.Equal(t, SubstitutionRule{Match: "-zz", Candidates: []string{"-a", "-b"}}, rules[0])
		assert.Equal(t, SubstitutionRule{Match: "-large", Candidates: []string{"-full"}}, rules[1])
		assert.Equal(t, "-aa", rules[2].Match)
		assert.Nil(t, cfg.Suffixes())
	})

	t.Run("absent", func(t *testing.T) {
		t.Parallel()
		var cfg DomainConfig
		require.NoError(t, json.Unmarshal([]byte(`{"url":"https://shop.example/","selector":"img.main"}`), &cfg))
		assert.Nil(t, cfg.Replacements)
		assert.False(t, cfg.HasReplacements())
		assert.Equal(t, "img.main", cfg.Selector)
	})

	t.Run("empty object", func(t *testing.T) {
		t.Parallel()
		var cfg DomainConfig
		require.NoError(t, json.Unmarshal([]byte(`{"url":"https://shop.example/","replacements":{}}`), &cfg))
		assert.False(t, cfg.HasReplacements())
	})

	t.Run("invalid type", func(t *testing.T) {
		t.Parallel()
		var cfg DomainConfig
		err := json.Unmarshal([]byte(`{"url":"https://shop.example/","replacements":42}`), &cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "replacements")
	})
}

func TestDomainConfigDefaults(t *testing.T) {
	t.Parallel()

	var cfg DomainConfig
	raw := `{
		"url": "https://shop.example/sitemap_index.xml",
		"source_type": "sitemap",
		"fallback_rules": {"type": "cut_filename_prefix", "domain": "cdn.shop.example", "prefix_length": 7},
		"download_filename_regex_replace": {"pattern": "^(.*)-mockup$", "replacement": "$1"},
		"sitemap_crawl_limit": 2
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))

	assert.Equal(t, "shop.example", cfg.Domain())
	assert.True(t, cfg.DesignDedupEnabled())
	require.NotNil(t, cfg.FallbackRules)
	assert.Equal(t, FallbackRules{Type: FallbackCutFilenamePrefix, Domain: "cdn.shop.example", PrefixLength: 7}, *cfg.FallbackRules)
	require.NotNil(t, cfg.DownloadFilenameRegexReplace)
	assert.Equal(t, "$1", cfg.DownloadFilenameRegexReplace.Replacement)
	assert.Equal(t, 2, cfg.SitemapCrawlLimit)

	var off DomainConfig
	require.NoError(t, json.Unmarshal([]byte(`{"url":"https://a.example/","enable_design_deduplication":false}`), &off))
	assert.False(t, off.DesignDedupEnabled())
}

func TestLoadDomainConfigs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "config.json")
		content := `[
			{"url": "https://one.example/", "source_type": "api"},
			{"url": "https://two.example/list", "source_type": "product-list", "replacements": ["-full.jpg"]}
		]`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		configs, err := LoadDomainConfigs(path)
		require.NoError(t, err)
		require.Len(t, configs, 2)
		assert.Equal(t, SourceAPI, configs[0].SourceType)
		assert.Equal(t, "two.example", configs[1].Domain())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDomainConfigs(filepath.Join(dir, "nope.json"))
		require.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))
		_, err := LoadDomainConfigs(path)
		require.Error(t, err)
	})
}
