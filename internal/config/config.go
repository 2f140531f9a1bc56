package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置，来自环境变量，数据源列表可由 YAML 文件覆盖
type Config struct {
	AppPort  string
	Env      string
	LogLevel string

	// BasicAuthUser / BasicAuthPass 同时配置时启用全站 Basic Auth
	BasicAuthUser string
	BasicAuthPass string

	StoreDriver string // postgres / memory
	PostgresDSN string
	RedisAddr   string

	CronSpec          string
	AutoPostCronSpec  string
	AutoScoreOnIngest bool

	Dedup  DedupConfig
	Ingest IngestConfig
	Retry  RetryConfig

	OpenAI   OpenAIConfig
	Webhooks WebhookConfig

	NewsDataAPIKey string
	SourcesFile    string
	Sources        []SourceConfig
}

// DedupConfig 去重参数
type DedupConfig struct {
	Threshold      int           // 相似度阈值（百分比）
	Lookback       time.Duration // 只和窗口内的历史文章比较
	SourcePriority []string      // 平局时靠前的数据源优先
}

// IngestConfig 采集并发与超时
type IngestConfig struct {
	Concurrency  int
	FetchTimeout time.Duration
}

// RetryConfig 外部服务重试策略
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
}

type OpenAIConfig struct {
	APIKey   string
	Endpoint string
	Model    string
}

// WebhookConfig 各发布渠道的 webhook 地址
type WebhookConfig struct {
	Slack    string
	Figma    string
	WhatsApp string
}

// SourceConfig 描述一个数据源适配器
type SourceConfig struct {
	Name       string            `yaml:"name"`
	Kind       string            `yaml:"kind"` // rss / newsdata / page / hackernews
	URL        string            `yaml:"url"`
	Query      string            `yaml:"query"`
	Limit      int               `yaml:"limit"`
	Keywords   []string          `yaml:"keywords"`
	Selectors  map[string]string `yaml:"selectors"`
	DateLayout string            `yaml:"dateLayout"`
}

type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

func Load() (*Config, error) {
	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "9000"),
		Env:           getEnv("ENV", "production"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		BasicAuthUser: getEnv("APP_BASIC_USER", ""),
		BasicAuthPass: getEnv("APP_BASIC_PASS", ""),
		StoreDriver:   getEnv("STORE_DRIVER", "postgres"),
		PostgresDSN:   getEnv("POSTGRES_DSN", "host=localhost user=curator password=curator dbname=curator port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),

		CronSpec:          getEnv("CRON_SPEC", "0 9 * * *"),
		AutoPostCronSpec:  getEnv("AUTO_POST_CRON", ""),
		AutoScoreOnIngest: getBoolEnv("AUTO_SCORE_ON_INGEST", false),

		Dedup: DedupConfig{
			Threshold:      getIntEnv("DEDUP_THRESHOLD", 85),
			Lookback:       getDurationEnv("DEDUP_LOOKBACK", 14*24*time.Hour),
			SourcePriority: getListEnv("SOURCE_PRIORITY"),
		},
		Ingest: IngestConfig{
			Concurrency:  getIntEnv("INGEST_CONCURRENCY", 4),
			FetchTimeout: getDurationEnv("FETCH_TIMEOUT", 20*time.Second),
		},
		Retry: RetryConfig{
			MaxRetries:      getIntEnv("RETRY_MAX", 3),
			InitialInterval: getDurationEnv("RETRY_INITIAL", 500*time.Millisecond),
		},
		OpenAI: OpenAIConfig{
			APIKey:   getEnv("OPENAI_API_KEY", ""),
			Endpoint: getEnv("OPENAI_ENDPOINT", "https://api.openai.com/v1/chat/completions"),
			Model:    getEnv("OPENAI_MODEL", "gpt-4o"),
		},
		Webhooks: WebhookConfig{
			Slack:    getEnv("SLACK_WEBHOOK_URL", ""),
			Figma:    getEnv("SLACK_WEBHOOK_FIGMA_URL", ""),
			WhatsApp: getEnv("WHATSAPP_WEBHOOK_URL", ""),
		},
		NewsDataAPIKey: getEnv("NEWSDATA_API_KEY", ""),
		SourcesFile:    getEnv("SOURCES_FILE", ""),
	}

	if cfg.SourcesFile != "" {
		sources, err := loadSources(cfg.SourcesFile)
		if err != nil {
			return nil, err
		}
		cfg.Sources = sources
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultSources(cfg.NewsDataAPIKey != "")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	if c.Dedup.Threshold < 0 || c.Dedup.Threshold > 100 {
		return fmt.Errorf("DEDUP_THRESHOLD must be within 0..100, got %d", c.Dedup.Threshold)
	}
	if c.Dedup.Lookback <= 0 {
		return fmt.Errorf("DEDUP_LOOKBACK must be positive")
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("INGEST_CONCURRENCY must be positive")
	}
	if c.Ingest.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("RETRY_MAX must not be negative")
	}
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	for _, s := range c.Sources {
		switch s.Kind {
		case "rss", "newsdata", "page", "hackernews":
		default:
			return fmt.Errorf("source %q: unknown kind %q", s.Name, s.Kind)
		}
	}
	return nil
}

func loadSources(path string) ([]SourceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}
	var f sourcesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	return f.Sources, nil
}

func defaultSources(withNewsData bool) []SourceConfig {
	sources := []SourceConfig{
		{Name: "Aviation Week", Kind: "rss", URL: "https://aviationweek.com/rss.xml"},
		{Name: "Flight Global", Kind: "rss", URL: "https://www.flightglobal.com/rss"},
		{Name: "AIN Online", Kind: "rss", URL: "https://www.ainonline.com/rss.xml"},
		{Name: "Simple Flying", Kind: "rss", URL: "https://simpleflying.com/feed/"},
		{
			Name: "SkyWest, Inc.",
			Kind: "page",
			URL:  "https://inc.skywest.com/news-and-events/press-releases/",
			Selectors: map[string]string{
				"item":  "div.news-release-item",
				"title": "h4 > a",
				"link":  "h4 > a",
				"date":  "div.news-release-date",
			},
			DateLayout: "01/02/2006",
			Limit:      15,
		},
	}
	if withNewsData {
		sources = append(sources, SourceConfig{Name: "Newsdata.io", Kind: "newsdata", Query: "aviation"})
	}
	return sources
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getListEnv 逗号分隔，忽略空项
func getListEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Now returns current time, 方便后续做可测试封装
func Now() time.Time {
	return time.Now()
}
