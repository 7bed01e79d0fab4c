// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost               = "0.0.0.0"
	DefaultPort               = 8080
	DefaultLogLevel           = "INFO"
	DefaultEnvironment        = "development"
	DefaultRequestTimeout     = 30 * time.Second
	DefaultEmbeddingDimension = 1536
	DefaultEmbeddingModel     = "text-embedding-3-small"
	DefaultChatModel          = "gpt-4o-mini"
	DefaultProviderTimeout    = 60 * time.Second
	DefaultProviderRetries    = 5

	DefaultVectorThreshold = 0.0
	DefaultFuzzyThreshold  = 0.6
	DefaultHybridVector    = 0.6
	DefaultHybridSQL       = 0.4
	DefaultSKURecallK      = 20
	DefaultSKUMinCosine    = 0.70
	DefaultUnitVectorMin   = 0.85
	DefaultUnitFuzzyMin    = 0.75
	DefaultColorVectorMin  = 0.82
	DefaultColorFuzzyMin   = 0.75

	DefaultMaterialTTL = time.Hour
	DefaultSearchTTL   = 5 * time.Minute
	DefaultSuggestTTL  = time.Hour
	DefaultCombinedTTL = 24 * time.Hour

	DefaultBatchMaxItems  = 10000
	DefaultBatchWorkers   = 5
	DefaultBatchChunkSize = 50
	DefaultItemTimeout    = 60 * time.Second

	DefaultPoolMin        = 2
	DefaultPoolMax        = 20
	DefaultPoolTargetUtil = 0.8
	DefaultResizeInterval = 30 * time.Second

	DefaultHeartbeatInterval = 60 * time.Second

	DefaultRatePerMinute = 120
	DefaultRatePerHour   = 2000
	DefaultRateBurst     = 20

	DefaultMaxBodyBytes = 50 << 20
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// ParseLogFormat parses a log format string, defaulting to text.
func ParseLogFormat(s string) LogFormat {
	if strings.EqualFold(s, "json") {
		return LogFormatJSON
	}
	return LogFormatText
}

// SearchConfig holds search-engine tuning.
type SearchConfig struct {
	vectorThreshold float64
	fuzzyThreshold  float64
	hybridVector    float64
	hybridSQL       float64
	skuRecallK      int
	skuMinCosine    float64
	unitVectorMin   float64
	unitFuzzyMin    float64
	colorVectorMin  float64
	colorFuzzyMin   float64
	strictColor     bool
}

// NewSearchConfig creates a SearchConfig with defaults.
func NewSearchConfig() SearchConfig {
	return SearchConfig{
		vectorThreshold: DefaultVectorThreshold,
		fuzzyThreshold:  DefaultFuzzyThreshold,
		hybridVector:    DefaultHybridVector,
		hybridSQL:       DefaultHybridSQL,
		skuRecallK:      DefaultSKURecallK,
		skuMinCosine:    DefaultSKUMinCosine,
		unitVectorMin:   DefaultUnitVectorMin,
		unitFuzzyMin:    DefaultUnitFuzzyMin,
		colorVectorMin:  DefaultColorVectorMin,
		colorFuzzyMin:   DefaultColorFuzzyMin,
	}
}

// VectorThreshold returns the default vector similarity threshold.
func (s SearchConfig) VectorThreshold() float64 { return s.vectorThreshold }

// FuzzyThreshold returns the default fuzzy similarity threshold.
func (s SearchConfig) FuzzyThreshold() float64 { return s.fuzzyThreshold }

// HybridVectorWeight returns the vector-side fusion weight.
func (s SearchConfig) HybridVectorWeight() float64 { return s.hybridVector }

// HybridSQLWeight returns the sql-side fusion weight.
func (s SearchConfig) HybridSQLWeight() float64 { return s.hybridSQL }

// SKURecallK returns the SKU recall candidate count.
func (s SearchConfig) SKURecallK() int { return s.skuRecallK }

// SKUMinCosine returns the SKU recall cosine floor.
func (s SearchConfig) SKUMinCosine() float64 { return s.skuMinCosine }

// UnitVectorMin returns the unit RAG vector threshold.
func (s SearchConfig) UnitVectorMin() float64 { return s.unitVectorMin }

// UnitFuzzyMin returns the unit RAG fuzzy threshold.
func (s SearchConfig) UnitFuzzyMin() float64 { return s.unitFuzzyMin }

// ColorVectorMin returns the color RAG vector threshold.
func (s SearchConfig) ColorVectorMin() float64 { return s.colorVectorMin }

// ColorFuzzyMin returns the color RAG fuzzy threshold.
func (s SearchConfig) ColorFuzzyMin() float64 { return s.colorFuzzyMin }

// StrictColorSymmetry reports whether color compatibility is checked in
// both directions during SKU matching.
func (s SearchConfig) StrictColorSymmetry() bool { return s.strictColor }

// WithStrictColorSymmetry returns a copy with symmetric color matching.
func (s SearchConfig) WithStrictColorSymmetry(strict bool) SearchConfig {
	s.strictColor = strict
	return s
}

// CacheConfig holds cache connection and TTL settings.
type CacheConfig struct {
	redisAddr   string
	redisDB     int
	materialTTL time.Duration
	searchTTL   time.Duration
	suggestTTL  time.Duration
	combinedTTL time.Duration
}

// NewCacheConfig creates a CacheConfig with defaults and no Redis address.
func NewCacheConfig() CacheConfig {
	return CacheConfig{
		materialTTL: DefaultMaterialTTL,
		searchTTL:   DefaultSearchTTL,
		suggestTTL:  DefaultSuggestTTL,
		combinedTTL: DefaultCombinedTTL,
	}
}

// RedisAddr returns the Redis address, empty when the in-memory fallback
// should be used.
func (c CacheConfig) RedisAddr() string { return c.redisAddr }

// RedisDB returns the Redis logical database.
func (c CacheConfig) RedisDB() int { return c.redisDB }

// MaterialTTL returns the material cache TTL.
func (c CacheConfig) MaterialTTL() time.Duration { return c.materialTTL }

// SearchTTL returns the search result cache TTL.
func (c CacheConfig) SearchTTL() time.Duration { return c.searchTTL }

// SuggestTTL returns the suggestion cache TTL.
func (c CacheConfig) SuggestTTL() time.Duration { return c.suggestTTL }

// CombinedTTL returns the enrichment combined-text cache TTL.
func (c CacheConfig) CombinedTTL() time.Duration { return c.combinedTTL }

// WithRedis returns a copy pointing at a Redis instance.
func (c CacheConfig) WithRedis(addr string, db int) CacheConfig {
	c.redisAddr = addr
	c.redisDB = db
	return c
}

// BatchConfig holds batch ingestion settings.
type BatchConfig struct {
	maxItems    int
	workers     int
	chunkSize   int
	itemTimeout time.Duration
}

// NewBatchConfig creates a BatchConfig with defaults.
func NewBatchConfig() BatchConfig {
	return BatchConfig{
		maxItems:    DefaultBatchMaxItems,
		workers:     DefaultBatchWorkers,
		chunkSize:   DefaultBatchChunkSize,
		itemTimeout: DefaultItemTimeout,
	}
}

// MaxItems returns the per-request item cap.
func (b BatchConfig) MaxItems() int { return b.maxItems }

// Workers returns the worker pool size.
func (b BatchConfig) Workers() int { return b.workers }

// ChunkSize returns the processing chunk size.
func (b BatchConfig) ChunkSize() int { return b.chunkSize }

// ItemTimeout returns the per-item processing deadline.
func (b BatchConfig) ItemTimeout() time.Duration { return b.itemTimeout }

// RateLimitConfig holds per-endpoint-class rate limits.
type RateLimitConfig struct {
	perMinute int
	perHour   int
	burst     int
}

// NewRateLimitConfig creates a RateLimitConfig with defaults.
func NewRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		perMinute: DefaultRatePerMinute,
		perHour:   DefaultRatePerHour,
		burst:     DefaultRateBurst,
	}
}

// PerMinute returns the sliding-window per-minute cap.
func (r RateLimitConfig) PerMinute() int { return r.perMinute }

// PerHour returns the sliding-window per-hour cap.
func (r RateLimitConfig) PerHour() int { return r.perHour }

// Burst returns the short-burst allowance.
func (r RateLimitConfig) Burst() int { return r.burst }

// PoolConfig holds adapter pool sizing.
type PoolConfig struct {
	min            int
	max            int
	targetUtil     float64
	resizeInterval time.Duration
}

// NewPoolConfig creates a PoolConfig with defaults.
func NewPoolConfig() PoolConfig {
	return PoolConfig{
		min:            DefaultPoolMin,
		max:            DefaultPoolMax,
		targetUtil:     DefaultPoolTargetUtil,
		resizeInterval: DefaultResizeInterval,
	}
}

// Min returns the pool floor.
func (p PoolConfig) Min() int { return p.min }

// Max returns the pool ceiling.
func (p PoolConfig) Max() int { return p.max }

// TargetUtil returns the utilization target.
func (p PoolConfig) TargetUtil() float64 { return p.targetUtil }

// ResizeInterval returns the resize loop interval.
func (p PoolConfig) ResizeInterval() time.Duration { return p.resizeInterval }

// TunnelConfig holds SSH tunnel supervisor settings.
type TunnelConfig struct {
	enabled           bool
	host              string
	port              int
	user              string
	keyPath           string
	localPort         int
	remoteHost        string
	remotePort        int
	heartbeatInterval time.Duration
	autoRestart       bool
}

// NewTunnelConfig creates a disabled TunnelConfig.
func NewTunnelConfig() TunnelConfig {
	return TunnelConfig{
		heartbeatInterval: DefaultHeartbeatInterval,
		autoRestart:       true,
	}
}

// Enabled reports whether the tunnel supervisor runs.
func (t TunnelConfig) Enabled() bool { return t.enabled }

// Host returns the SSH host.
func (t TunnelConfig) Host() string { return t.host }

// Port returns the SSH port.
func (t TunnelConfig) Port() int { return t.port }

// User returns the SSH user.
func (t TunnelConfig) User() string { return t.user }

// KeyPath returns the private key path.
func (t TunnelConfig) KeyPath() string { return t.keyPath }

// LocalPort returns the local forward port.
func (t TunnelConfig) LocalPort() int { return t.localPort }

// RemoteHost returns the forward target host.
func (t TunnelConfig) RemoteHost() string { return t.remoteHost }

// RemotePort returns the forward target port.
func (t TunnelConfig) RemotePort() int { return t.remotePort }

// HeartbeatInterval returns the probe interval.
func (t TunnelConfig) HeartbeatInterval() time.Duration { return t.heartbeatInterval }

// AutoRestart reports whether a degraded tunnel reconnects.
func (t TunnelConfig) AutoRestart() bool { return t.autoRestart }

// ProviderConfig holds AI provider settings.
type ProviderConfig struct {
	baseURL        string
	apiKey         string
	embeddingModel string
	chatModel      string
	dimension      int
	timeout        time.Duration
	maxRetries     int
}

// NewProviderConfig creates a ProviderConfig with defaults.
func NewProviderConfig() ProviderConfig {
	return ProviderConfig{
		embeddingModel: DefaultEmbeddingModel,
		chatModel:      DefaultChatModel,
		dimension:      DefaultEmbeddingDimension,
		timeout:        DefaultProviderTimeout,
		maxRetries:     DefaultProviderRetries,
	}
}

// BaseURL returns the provider base URL, empty for the default.
func (p ProviderConfig) BaseURL() string { return p.baseURL }

// APIKey returns the provider API key.
func (p ProviderConfig) APIKey() string { return p.apiKey }

// EmbeddingModel returns the embedding model id.
func (p ProviderConfig) EmbeddingModel() string { return p.embeddingModel }

// ChatModel returns the chat model id used for parsing.
func (p ProviderConfig) ChatModel() string { return p.chatModel }

// Dimension returns the fixed embedding dimension.
func (p ProviderConfig) Dimension() int { return p.dimension }

// Timeout returns the provider request timeout.
func (p ProviderConfig) Timeout() time.Duration { return p.timeout }

// MaxRetries returns the embedding retry budget.
func (p ProviderConfig) MaxRetries() int { return p.maxRetries }

// IsConfigured reports whether an API key is present.
func (p ProviderConfig) IsConfigured() bool { return p.apiKey != "" }

// SecurityConfig holds request guarding settings.
type SecurityConfig struct {
	maxBodyBytes int64
}

// NewSecurityConfig creates a SecurityConfig with defaults.
func NewSecurityConfig() SecurityConfig {
	return SecurityConfig{maxBodyBytes: DefaultMaxBodyBytes}
}

// MaxBodyBytes returns the request body cap.
func (s SecurityConfig) MaxBodyBytes() int64 { return s.maxBodyBytes }

// AppConfig holds the main application configuration.
type AppConfig struct {
	host              string
	port              int
	logLevel          string
	logFormat         LogFormat
	environment       string
	dbURL             string
	cursorSecret      string
	seedColorsPath    string
	seedUnitsPath     string
	requestTimeout    time.Duration
	enableFallbackDBs bool
	search            SearchConfig
	cache             CacheConfig
	batch             BatchConfig
	rateLimit         RateLimitConfig
	pool              PoolConfig
	tunnel            TunnelConfig
	provider          ProviderConfig
	security          SecurityConfig
}

// NewAppConfig creates an AppConfig with defaults.
func NewAppConfig() AppConfig {
	return AppConfig{
		host:              DefaultHost,
		port:              DefaultPort,
		logLevel:          DefaultLogLevel,
		logFormat:         LogFormatText,
		environment:       DefaultEnvironment,
		dbURL:             "sqlite:///:memory:",
		requestTimeout:    DefaultRequestTimeout,
		enableFallbackDBs: true,
		search:            NewSearchConfig(),
		cache:             NewCacheConfig(),
		batch:             NewBatchConfig(),
		rateLimit:         NewRateLimitConfig(),
		pool:              NewPoolConfig(),
		tunnel:            NewTunnelConfig(),
		provider:          NewProviderConfig(),
		security:          NewSecurityConfig(),
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string { return fmt.Sprintf("%s:%d", c.host, c.port) }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// Environment returns the deployment environment name.
func (c AppConfig) Environment() string { return c.environment }

// IsProduction reports whether security headers and strict guards apply.
func (c AppConfig) IsProduction() bool { return strings.EqualFold(c.environment, "production") }

// DBURL returns the SQL database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// CursorSecret returns the cursor signing secret, empty to generate one
// per process.
func (c AppConfig) CursorSecret() string { return c.cursorSecret }

// SeedColorsPath returns the colors seed file path.
func (c AppConfig) SeedColorsPath() string { return c.seedColorsPath }

// SeedUnitsPath returns the units seed file path.
func (c AppConfig) SeedUnitsPath() string { return c.seedUnitsPath }

// RequestTimeout returns the request envelope deadline.
func (c AppConfig) RequestTimeout() time.Duration { return c.requestTimeout }

// EnableFallbackDatabases reports whether degraded operation on a subset
// of backends is allowed.
func (c AppConfig) EnableFallbackDatabases() bool { return c.enableFallbackDBs }

// Search returns the search tuning config.
func (c AppConfig) Search() SearchConfig { return c.search }

// Cache returns the cache config.
func (c AppConfig) Cache() CacheConfig { return c.cache }

// Batch returns the batch ingestion config.
func (c AppConfig) Batch() BatchConfig { return c.batch }

// RateLimit returns the rate limiting config.
func (c AppConfig) RateLimit() RateLimitConfig { return c.rateLimit }

// Pool returns the adapter pool config.
func (c AppConfig) Pool() PoolConfig { return c.pool }

// Tunnel returns the SSH tunnel config.
func (c AppConfig) Tunnel() TunnelConfig { return c.tunnel }

// Provider returns the AI provider config.
func (c AppConfig) Provider() ProviderConfig { return c.provider }

// Security returns the request guarding config.
func (c AppConfig) Security() SecurityConfig { return c.security }

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithEnvironment sets the deployment environment.
func WithEnvironment(env string) AppConfigOption {
	return func(c *AppConfig) { c.environment = env }
}

// WithDBURL sets the SQL database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithCursorSecret sets the cursor signing secret.
func WithCursorSecret(secret string) AppConfigOption {
	return func(c *AppConfig) { c.cursorSecret = secret }
}

// WithSeedPaths sets the reference seed file paths.
func WithSeedPaths(colors, units string) AppConfigOption {
	return func(c *AppConfig) {
		c.seedColorsPath = colors
		c.seedUnitsPath = units
	}
}

// WithRequestTimeout sets the request envelope deadline.
func WithRequestTimeout(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithFallbackDatabases toggles degraded-mode allowance.
func WithFallbackDatabases(enabled bool) AppConfigOption {
	return func(c *AppConfig) { c.enableFallbackDBs = enabled }
}

// WithSearchConfig sets the search tuning config.
func WithSearchConfig(s SearchConfig) AppConfigOption {
	return func(c *AppConfig) { c.search = s }
}

// WithCacheConfig sets the cache config.
func WithCacheConfig(cc CacheConfig) AppConfigOption {
	return func(c *AppConfig) { c.cache = cc }
}

// WithBatchConfig sets the batch config.
func WithBatchConfig(b BatchConfig) AppConfigOption {
	return func(c *AppConfig) { c.batch = b }
}

// WithRateLimitConfig sets the rate limit config.
func WithRateLimitConfig(r RateLimitConfig) AppConfigOption {
	return func(c *AppConfig) { c.rateLimit = r }
}

// WithPoolConfig sets the pool config.
func WithPoolConfig(p PoolConfig) AppConfigOption {
	return func(c *AppConfig) { c.pool = p }
}

// WithTunnelConfig sets the tunnel config.
func WithTunnelConfig(t TunnelConfig) AppConfigOption {
	return func(c *AppConfig) { c.tunnel = t }
}

// WithProviderConfig sets the AI provider config.
func WithProviderConfig(p ProviderConfig) AppConfigOption {
	return func(c *AppConfig) { c.provider = p }
}

// WithSecurityConfig sets the security config.
func WithSecurityConfig(s SecurityConfig) AppConfigOption {
	return func(c *AppConfig) { c.security = s }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// Secrets are masked.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("addr", c.Addr()),
		slog.String("environment", c.environment),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("redis_addr", c.cache.RedisAddr()),
		slog.String("embedding_model", c.provider.EmbeddingModel()),
		slog.Int("embedding_dimension", c.provider.Dimension()),
		slog.Bool("provider_configured", c.provider.IsConfigured()),
		slog.Bool("tunnel_enabled", c.tunnel.Enabled()),
		slog.Bool("fallback_databases", c.enableFallbackDBs),
		slog.Bool("cursor_secret_set", c.cursorSecret != ""),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(default)"
	}
	if strings.HasPrefix(c.dbURL, "sqlite:") {
		return c.dbURL
	}
	return "postgres://***@***"
}
