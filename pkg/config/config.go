// Package config loads and validates the pipeline configuration from YAML
// files with .env and environment-variable overrides. It provides typed
// structs for every subsystem (Server, Sources, Relevance, Cache, Assembler,
// Redis, Kafka, Postgres, etc.).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	HTTP      HTTPConfig      `yaml:"http"`
	Sources   SourcesConfig   `yaml:"sources"`
	Relevance RelevanceConfig `yaml:"relevance"`
	Cache     CacheConfig     `yaml:"cache"`
	Assembler AssemblerConfig `yaml:"assembler"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// HTTPConfig controls the API surface of the feed server.
type HTTPConfig struct {
	CacheMaxAge    time.Duration `yaml:"cacheMaxAge"`
	AllowOrigins   []string      `yaml:"allowOrigins"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	// AdminToken guards cache invalidation. Empty leaves it open.
	AdminToken string `yaml:"adminToken"`
}

// SourcesConfig groups the per-upstream adapter settings.
type SourcesConfig struct {
	Keywords   []string         `yaml:"keywords"`
	RSS        RSSConfig        `yaml:"rss"`
	X          XConfig          `yaml:"x"`
	Polymarket PolymarketConfig `yaml:"polymarket"`
}

// FeedSource is one syndicated feed.
type FeedSource struct {
	URL      string `yaml:"url"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// RSSConfig controls the syndicated-feed adapter.
type RSSConfig struct {
	Feeds       []FeedSource  `yaml:"feeds"`
	MaxPerFeed  int           `yaml:"maxPerFeed"`
	MergeLimit  int           `yaml:"mergeLimit"`
	Timeout     time.Duration `yaml:"timeout"`
	Workers     int           `yaml:"workers"`
	UserAgent   string        `yaml:"userAgent"`
	ExcerptSize int           `yaml:"excerptSize"`
}

// XConfig controls the social-search adapter.
type XConfig struct {
	BaseURL           string             `yaml:"baseUrl"`
	BearerToken       string             `yaml:"bearerToken"`
	Accounts          []string           `yaml:"accounts"`
	AccountWeights    map[string]float64 `yaml:"accountWeights"`
	Keywords          []string           `yaml:"keywords"`
	MaxResults        int                `yaml:"maxResults"`
	MaxItems          int                `yaml:"maxItems"`
	MaxPerAccount     int                `yaml:"maxPerAccount"`
	MaxAge            time.Duration      `yaml:"maxAge"`
	MinTextLength     int                `yaml:"minTextLength"`
	MinEngagement     int                `yaml:"minEngagement"`
	MinScore          float64            `yaml:"minScore"`
	Timeout           time.Duration      `yaml:"timeout"`
	RequestsPerWindow int                `yaml:"requestsPerWindow"`
	BudgetWindow      time.Duration      `yaml:"budgetWindow"`
}

// PolymarketConfig controls the prediction-market adapter.
type PolymarketConfig struct {
	GammaURL       string        `yaml:"gammaUrl"`
	ClobURL        string        `yaml:"clobUrl"`
	EventLimit     int           `yaml:"eventLimit"`
	MaxOutcomes    int           `yaml:"maxOutcomes"`
	Timeout        time.Duration `yaml:"timeout"`
	HistoryTimeout time.Duration `yaml:"historyTimeout"`
	HistoryEnabled bool          `yaml:"historyEnabled"`
}

// RelevanceConfig controls the language-model classifier.
type RelevanceConfig struct {
	APIKey         string        `yaml:"apiKey"`
	BaseURL        string        `yaml:"baseUrl"`
	Model          string        `yaml:"model"`
	MarketModel    string        `yaml:"marketModel"`
	BatchSize      int           `yaml:"batchSize"`
	MaxConcurrent  int           `yaml:"maxConcurrent"`
	MaxTokens      int64         `yaml:"maxTokens"`
	Timeout        time.Duration `yaml:"timeout"`
	MarketPool     int           `yaml:"marketPool"`
	CallsPerWindow int           `yaml:"callsPerWindow"`
	BudgetWindow   time.Duration `yaml:"budgetWindow"`
	FilterArticles bool          `yaml:"filterArticles"`
	FilterSocial   bool          `yaml:"filterSocial"`
	RankMarkets    bool          `yaml:"rankMarkets"`
}

// CacheConfig holds the per-source-class TTLs.
type CacheConfig struct {
	ArticlesTTL time.Duration `yaml:"articlesTTL"`
	SocialTTL   time.Duration `yaml:"socialTTL"`
	MarketsTTL  time.Duration `yaml:"marketsTTL"`
	LastGoodTTL time.Duration `yaml:"lastGoodTTL"`
}

// AssemblerConfig controls the final response composition.
type AssemblerConfig struct {
	FeedCap        int `yaml:"feedCap"`
	MarketCap      int `yaml:"marketCap"`
	ReservedSocial int `yaml:"reservedSocial"`
}

// RedisConfig holds Redis connection parameters for the last-good mirror.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RefreshEvents string `yaml:"refreshEvents"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// AnalyticsConfig controls the refresh-event collector and snapshotting.
type AnalyticsConfig struct {
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), loads a .env file from the
// working directory when one exists, and applies environment-variable
// overrides on top.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Assembler.FeedCap <= 0 {
		errs = append(errs, errors.New("assembler.feedCap must be positive"))
	}
	if c.Assembler.MarketCap <= 0 {
		errs = append(errs, errors.New("assembler.marketCap must be positive"))
	}
	if c.Assembler.ReservedSocial < 0 || c.Assembler.ReservedSocial > c.Assembler.FeedCap {
		errs = append(errs, errors.New("assembler.reservedSocial must be between 0 and feedCap"))
	}
	if c.Cache.ArticlesTTL <= 0 || c.Cache.SocialTTL <= 0 || c.Cache.MarketsTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	if c.Relevance.BatchSize <= 0 {
		errs = append(errs, errors.New("relevance.batchSize must be positive"))
	}
	if c.Relevance.MaxTokens <= 0 {
		errs = append(errs, errors.New("relevance.maxTokens must be positive"))
	}
	for i, f := range c.Sources.RSS.Feeds {
		if f.URL == "" || f.Name == "" {
			errs = append(errs, fmt.Errorf("sources.rss.feeds[%d] needs url and name", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Redacted returns a copy with credentials masked, for printing.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	c.Sources.X.BearerToken = mask(c.Sources.X.BearerToken)
	c.Relevance.APIKey = mask(c.Relevance.APIKey)
	c.HTTP.AdminToken = mask(c.HTTP.AdminToken)
	c.Redis.Password = mask(c.Redis.Password)
	c.Postgres.Password = mask(c.Postgres.Password)
	return c
}

// defaultConfig returns a Config with the dashboard's production defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		HTTP: HTTPConfig{
			CacheMaxAge:    55 * time.Second,
			AllowOrigins:   []string{"*"},
			RequestTimeout: 25 * time.Second,
		},
		Sources: SourcesConfig{
			Keywords: defaultKeywords(),
			RSS: RSSConfig{
				Feeds:       defaultFeeds(),
				MaxPerFeed:  10,
				MergeLimit:  60,
				Timeout:     6 * time.Second,
				Workers:     5,
				UserAgent:   "SituationFeed/1.0",
				ExcerptSize: 180,
			},
			X: XConfig{
				BaseURL:  "https://api.x.com",
				Accounts: []string{"auroraintel", "sentdefender", "intelcrab", "faytuks", "loaboringwar"},
				AccountWeights: map[string]float64{
					"auroraintel":  1.25,
					"sentdefender": 1.15,
					"intelcrab":    1.05,
					"faytuks":      1.0,
					"loaboringwar": 1.0,
				},
				Keywords:          []string{"iran", "tehran", "irgc", "hormuz", "strait of hormuz", "nuclear", "hezbollah", "israel", "us"},
				MaxResults:        40,
				MaxItems:          6,
				MaxPerAccount:     2,
				MaxAge:            12 * time.Hour,
				MinTextLength:     40,
				MinEngagement:     12,
				MinScore:          22,
				Timeout:           8 * time.Second,
				RequestsPerWindow: 180,
				BudgetWindow:      15 * time.Minute,
			},
			Polymarket: PolymarketConfig{
				GammaURL:       "https://gamma-api.polymarket.com",
				ClobURL:        "https://clob.polymarket.com",
				EventLimit:     50,
				MaxOutcomes:    6,
				Timeout:        8 * time.Second,
				HistoryTimeout: 5 * time.Second,
				HistoryEnabled: true,
			},
		},
		Relevance: RelevanceConfig{
			Model:          "claude-3-5-haiku-latest",
			MarketModel:    "claude-3-5-haiku-latest",
			BatchSize:      20,
			MaxConcurrent:  2,
			MaxTokens:      120,
			Timeout:        6 * time.Second,
			MarketPool:     20,
			CallsPerWindow: 120,
			BudgetWindow:   time.Hour,
			FilterArticles: true,
			FilterSocial:   true,
			RankMarkets:    true,
		},
		Cache: CacheConfig{
			ArticlesTTL: 60 * time.Second,
			SocialTTL:   90 * time.Second,
			MarketsTTL:  120 * time.Second,
			LastGoodTTL: time.Hour,
		},
		Assembler: AssemblerConfig{
			FeedCap:        25,
			MarketCap:      6,
			ReservedSocial: 5,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "situation-feed-analytics",
			Topics: KafkaTopics{
				RefreshEvents: "feed-refresh-events",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "situationfeed",
			User:            "situationfeed",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			BatchSize:        50,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

func defaultKeywords() []string {
	return []string{
		"iran", "tehran", "irgc", "khamenei", "hormuz", "hezbollah",
		"persian gulf", "nuclear", "natanz", "fordow", "middle east strike",
		"houthi", "strait", "regime change", "isfahan", "karaj", "parchin",
		"qom", "arabian sea", "red sea", "iran war", "iran conflict",
		"revolutionary guard", "jcpoa", "enrichment", "centrifuge",
		"iran sanctions", "iran deal", "pezeshkian",
	}
}

func defaultFeeds() []FeedSource {
	return []FeedSource{
		{URL: "https://www.iranintl.com/en/feed", Name: "Iran Intl", Category: "breaking"},
		{URL: "https://news.google.com/rss/search?q=iran+war+OR+iran+strike+OR+tehran+OR+irgc+OR+hormuz&hl=en&gl=US&ceid=US:en", Name: "Google News", Category: "breaking"},
		{URL: "https://feeds.reuters.com/reuters/worldNews", Name: "Reuters", Category: "breaking"},
		{URL: "https://www.aljazeera.com/xml/rss/all.xml", Name: "Al Jazeera", Category: "breaking"},
		{URL: "https://www.middleeasteye.net/rss", Name: "Middle East Eye", Category: "regional"},
		{URL: "https://www.timesofisrael.com/feed/", Name: "Times of Israel", Category: "regional"},
		{URL: "https://www.jpost.com/rss/rssfeedsmiddleeast", Name: "Jerusalem Post", Category: "regional"},
		{URL: "https://www.bellingcat.com/feed/", Name: "Bellingcat", Category: "osint"},
		{URL: "https://breakingdefense.com/feed/", Name: "Breaking Defense", Category: "analysis"},
		{URL: "https://warontherocks.com/feed/", Name: "War on the Rocks", Category: "analysis"},
	}
}

// applyEnvOverrides reads the credential variables and SF_* overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("X_BEARER_TOKEN"); v != "" {
		cfg.Sources.X.BearerToken = strings.TrimSpace(v)
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Relevance.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("ANTHROPIC_MODEL"); v != "" {
		cfg.Relevance.Model = strings.TrimSpace(v)
	}
	if v := os.Getenv("ANTHROPIC_MARKET_MODEL"); v != "" {
		cfg.Relevance.MarketModel = strings.TrimSpace(v)
	}
	if v := os.Getenv("SF_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SF_ADMIN_TOKEN"); v != "" {
		cfg.HTTP.AdminToken = strings.TrimSpace(v)
	}
	if v := os.Getenv("SF_X_BASE_URL"); v != "" {
		cfg.Sources.X.BaseURL = v
	}
	if v := os.Getenv("SF_POLYMARKET_GAMMA_URL"); v != "" {
		cfg.Sources.Polymarket.GammaURL = v
	}
	if v := os.Getenv("SF_POLYMARKET_CLOB_URL"); v != "" {
		cfg.Sources.Polymarket.ClobURL = v
	}
	if v := os.Getenv("SF_RELEVANCE_BASE_URL"); v != "" {
		cfg.Relevance.BaseURL = v
	}
	overrideDuration("SF_CACHE_ARTICLES_TTL", &cfg.Cache.ArticlesTTL)
	overrideDuration("SF_CACHE_SOCIAL_TTL", &cfg.Cache.SocialTTL)
	overrideDuration("SF_CACHE_MARKETS_TTL", &cfg.Cache.MarketsTTL)
	if v := os.Getenv("SF_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SF_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SF_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("SF_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SF_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SF_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SF_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SF_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SF_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SF_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func overrideDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
