// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. IMAGECRAWLER_CRAWL_MAX_API_PAGES.
const EnvPrefix = "IMAGECRAWLER"

// DefaultUserAgent is a desktop browser UA; several storefronts reject bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Report   ReportConfig   `mapstructure:"report"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Server   ServerConfig   `mapstructure:"server"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// PathsConfig locates the data files of a run.
type PathsConfig struct {
	DomainsFile    string `mapstructure:"domains_file"`
	CheckpointFile string `mapstructure:"checkpoint_file"`
	HistoryDir     string `mapstructure:"history_dir"`
	RunLog         string `mapstructure:"run_log"`
	DownloadDir    string `mapstructure:"download_dir"`
}

// CrawlConfig bounds the strategies.
type CrawlConfig struct {
	UserAgent             string        `mapstructure:"user_agent"`
	MaxHistoryURLs        int           `mapstructure:"max_history_urls"`
	MaxAPIPages           int           `mapstructure:"max_api_pages"`
	MaxLinkSteps          int           `mapstructure:"max_link_steps"`
	StopURLsCount         int           `mapstructure:"stop_urls_count"`
	APIURLPattern         string        `mapstructure:"api_url_pattern"`
	ProductListURLPattern string        `mapstructure:"product_list_url_pattern"`
	ProductSitemapMarker  string        `mapstructure:"product_sitemap_marker"`
	RecencyWindow         time.Duration `mapstructure:"recency_window"`
	RequestsPerSecond     float64       `mapstructure:"requests_per_second"`
	Burst                 int           `mapstructure:"burst"`
	MaxBodyBytes          int           `mapstructure:"max_body_bytes"`
}

// HTTPConfig holds per-call timeouts.
type HTTPConfig struct {
	PageTimeout       time.Duration `mapstructure:"page_timeout"`
	HeadTimeout       time.Duration `mapstructure:"head_timeout"`
	AttachmentTimeout time.Duration `mapstructure:"attachment_timeout"`
	SitemapTimeout    time.Duration `mapstructure:"sitemap_timeout"`
	DownloadTimeout   time.Duration `mapstructure:"download_timeout"`
}

// ReportConfig controls the run log.
type ReportConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// TelegramConfig holds bot credentials.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DispatchConfig targets a GitHub repository_dispatch.
type DispatchConfig struct {
	Token   string `mapstructure:"token"`
	Repo    string `mapstructure:"repo"`
	Event   string `mapstructure:"event"`
	APIBase string `mapstructure:"api_base"`
}

// PubSubConfig holds the run event topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// StorageConfig configures the GCS image mirror.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the image catalog database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// MetricsConfig sets the pushgateway target.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// PublishConfig toggles the git publish step.
type PublishConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	RepoDir string `mapstructure:"repo_dir"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ScheduleConfig sets the serve-mode cadence.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TracingConfig controls OpenTelemetry sampling.
type TracingConfig struct {
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.domains_file", "config.json")
	v.SetDefault("paths.checkpoint_file", "stop_urls.txt")
	v.SetDefault("paths.history_dir", "domain")
	v.SetDefault("paths.run_log", "imagecrawler.log")
	v.SetDefault("paths.download_dir", "downloads")
	v.SetDefault("crawl.user_agent", DefaultUserAgent)
	v.SetDefault("crawl.max_history_urls", 500)
	v.SetDefault("crawl.max_api_pages", 2)
	v.SetDefault("crawl.max_link_steps", 100)
	v.SetDefault("crawl.stop_urls_count", 10)
	v.SetDefault("crawl.api_url_pattern",
		"https://{domain}/wp-json/wp/v2/product?per_page=100&page={page}&orderby=date&order=desc")
	v.SetDefault("crawl.product_list_url_pattern",
		"https://raw.githubusercontent.com/ktbteam/productcrawler/main/domain/{domain}.txt")
	v.SetDefault("crawl.product_sitemap_marker", "_products_")
	v.SetDefault("crawl.recency_window", "24h")
	v.SetDefault("crawl.requests_per_second", 0)
	v.SetDefault("crawl.burst", 1)
	v.SetDefault("crawl.max_body_bytes", 50*1024*1024)
	v.SetDefault("http.page_timeout", "30s")
	v.SetDefault("http.head_timeout", "10s")
	v.SetDefault("http.attachment_timeout", "20s")
	v.SetDefault("http.sitemap_timeout", "60s")
	v.SetDefault("http.download_timeout", "60s")
	v.SetDefault("report.timezone", "Asia/Ho_Chi_Minh")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("dispatch.token", "")
	v.SetDefault("dispatch.repo", "")
	v.SetDefault("dispatch.event", "new_image_available")
	v.SetDefault("dispatch.api_base", "https://api.github.com")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "images")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "harvested_images")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "imagecrawler")
	v.SetDefault("publish.enabled", true)
	v.SetDefault("publish.repo_dir", ".")
	v.SetDefault("server.port", 8080)
	v.SetDefault("schedule.cron", "0 * * * *")
	v.SetDefault("logging.development", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// bindLegacyEnv keeps the unprefixed variable names of existing .env files working.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"telegram.bot_token": {"TELEGRAM_BOT_TOKEN"},
		"telegram.chat_id":   {"TELEGRAM_CHAT_ID"},
		"dispatch.token":     {"GITHUB_DISPATCH_TOKEN", "KTBHUB_PAT"},
	}
	for key, legacy := range bindings {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, legacy...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch {
	case c.Paths.DomainsFile == "":
		return fmt.Errorf("paths.domains_file is required")
	case c.Paths.CheckpointFile == "":
		return fmt.Errorf("paths.checkpoint_file is required")
	case c.Paths.HistoryDir == "":
		return fmt.Errorf("paths.history_dir is required")
	case c.Crawl.MaxHistoryURLs <= 0:
		return fmt.Errorf("crawl.max_history_urls must be > 0")
	case c.Crawl.MaxAPIPages <= 0:
		return fmt.Errorf("crawl.max_api_pages must be > 0")
	case c.Crawl.MaxLinkSteps <= 0:
		return fmt.Errorf("crawl.max_link_steps must be > 0")
	case c.Crawl.StopURLsCount <= 0:
		return fmt.Errorf("crawl.stop_urls_count must be > 0")
	case c.Crawl.RequestsPerSecond < 0:
		return fmt.Errorf("crawl.requests_per_second must be >= 0")
	case c.HTTP.PageTimeout <= 0, c.HTTP.HeadTimeout <= 0, c.HTTP.AttachmentTimeout <= 0,
		c.HTTP.SitemapTimeout <= 0, c.HTTP.DownloadTimeout <= 0:
		return fmt.Errorf("http timeouts must be > 0")
	case c.Server.Port <= 0:
		return fmt.Errorf("server.port must be > 0")
	case c.PubSub.Topic != "" && c.PubSub.ProjectID == "":
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	case c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1:
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return fmt.Errorf("schedule.cron: %w", err)
	}
	return nil
}

// Location loads the report time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return nil, fmt.Errorf("report.timezone: %w", err)
	}
	return loc, nil
}

// StatePaths are the files the git publish step stages.
func (c Config) StatePaths() []string {
	paths := []string{c.Paths.HistoryDir, c.Paths.CheckpointFile}
	if c.Paths.RunLog != "" {
		paths = append(paths, c.Paths.RunLog)
	}
	return paths
}
