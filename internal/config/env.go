// Package config provides application configuration.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration. Variables carry
// the MATCAT_ prefix; nested structs use underscore delimiters, e.g.
// MATCAT_CACHE_REDIS_ADDR.
type EnvConfig struct {
	// Host is the server host to bind to.
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	Port int `envconfig:"PORT" default:"8080"`

	// LogLevel is the log verbosity level.
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (text or json).
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// Environment toggles production behavior (security headers).
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// DBURL is the SQL database connection URL.
	DBURL string `envconfig:"DB_URL"`

	// CursorSecret signs pagination cursors. A random per-process secret
	// is generated when empty.
	CursorSecret string `envconfig:"CURSOR_SECRET"`

	// SeedColorsPath and SeedUnitsPath point at YAML reference seeds.
	SeedColorsPath string `envconfig:"SEED_COLORS_PATH"`
	SeedUnitsPath  string `envconfig:"SEED_UNITS_PATH"`

	// RequestTimeoutSeconds is the request envelope deadline.
	RequestTimeoutSeconds float64 `envconfig:"REQUEST_TIMEOUT_SECONDS" default:"30"`

	// EnableFallbackDatabases allows degraded operation on a subset of
	// backends.
	EnableFallbackDatabases bool `envconfig:"ENABLE_FALLBACK_DATABASES" default:"true"`

	Search    SearchEnv    `envconfig:"SEARCH"`
	Cache     CacheEnv     `envconfig:"CACHE"`
	Batch     BatchEnv     `envconfig:"BATCH"`
	RateLimit RateLimitEnv `envconfig:"RATELIMIT"`
	Pool      PoolEnv      `envconfig:"POOL"`
	Tunnel    TunnelEnv    `envconfig:"TUNNEL"`
	Provider  ProviderEnv  `envconfig:"PROVIDER"`
	Security  SecurityEnv  `envconfig:"SECURITY"`
}

// SearchEnv holds search tuning environment overrides.
type SearchEnv struct {
	VectorThreshold    float64 `envconfig:"VECTOR_THRESHOLD" default:"0.0"`
	FuzzyThreshold     float64 `envconfig:"FUZZY_THRESHOLD" default:"0.6"`
	HybridVectorWeight float64 `envconfig:"HYBRID_VECTOR_WEIGHT" default:"0.6"`
	HybridSQLWeight    float64 `envconfig:"HYBRID_SQL_WEIGHT" default:"0.4"`
	SKURecallK         int     `envconfig:"SKU_RECALL_K" default:"20"`
	SKUMinCosine       float64 `envconfig:"SKU_MIN_COSINE" default:"0.70"`
	UnitVectorMin      float64 `envconfig:"UNIT_VECTOR_MIN" default:"0.85"`
	UnitFuzzyMin       float64 `envconfig:"UNIT_FUZZY_MIN" default:"0.75"`
	ColorVectorMin     float64 `envconfig:"COLOR_VECTOR_MIN" default:"0.82"`
	ColorFuzzyMin      float64 `envconfig:"COLOR_FUZZY_MIN" default:"0.75"`
	SKUColorStrictSym  bool    `envconfig:"SKU_COLOR_STRICT_SYMMETRY" default:"false"`
}

// CacheEnv holds cache environment overrides.
type CacheEnv struct {
	RedisAddr          string `envconfig:"REDIS_ADDR"`
	RedisDB            int    `envconfig:"REDIS_DB" default:"0"`
	MaterialTTLSeconds int    `envconfig:"MATERIAL_TTL_SECONDS" default:"3600"`
	SearchTTLSeconds   int    `envconfig:"SEARCH_TTL_SECONDS" default:"300"`
	SuggestTTLSeconds  int    `envconfig:"SUGGEST_TTL_SECONDS" default:"3600"`
	CombinedTTLSeconds int    `envconfig:"COMBINED_TTL_SECONDS" default:"86400"`
}

// BatchEnv holds batch environment overrides.
type BatchEnv struct {
	MaxItemsPerRequest int `envconfig:"MAX_ITEMS_PER_REQUEST" default:"10000"`
	WorkerPool         int `envconfig:"WORKER_POOL" default:"5"`
	ChunkSize          int `envconfig:"CHUNK_SIZE" default:"50"`
	ItemTimeoutSeconds int `envconfig:"ITEM_TIMEOUT_SECONDS" default:"60"`
}

// RateLimitEnv holds rate limit environment overrides.
type RateLimitEnv struct {
	RPM   int `envconfig:"RPM" default:"120"`
	RPH   int `envconfig:"RPH" default:"2000"`
	Burst int `envconfig:"BURST" default:"20"`
}

// PoolEnv holds pool environment overrides.
type PoolEnv struct {
	Min                   int     `envconfig:"MIN" default:"2"`
	Max                   int     `envconfig:"MAX" default:"20"`
	TargetUtil            float64 `envconfig:"TARGET_UTIL" default:"0.8"`
	ResizeIntervalSeconds int     `envconfig:"RESIZE_INTERVAL_SECONDS" default:"30"`
}

// TunnelEnv holds SSH tunnel environment overrides.
type TunnelEnv struct {
	Enable                   bool   `envconfig:"ENABLE" default:"false"`
	Host                     string `envconfig:"HOST"`
	Port                     int    `envconfig:"PORT" default:"22"`
	User                     string `envconfig:"USER"`
	KeyPath                  string `envconfig:"KEY_PATH"`
	LocalPort                int    `envconfig:"LOCAL_PORT"`
	RemoteHost               string `envconfig:"REMOTE_HOST" default:"127.0.0.1"`
	RemotePort               int    `envconfig:"REMOTE_PORT"`
	HeartbeatIntervalSeconds int    `envconfig:"HEARTBEAT_INTERVAL_SECONDS" default:"60"`
	AutoRestart              bool   `envconfig:"AUTO_RESTART" default:"true"`
}

// ProviderEnv holds AI provider environment overrides.
type ProviderEnv struct {
	BaseURL        string  `envconfig:"BASE_URL"`
	APIKey         string  `envconfig:"API_KEY"`
	EmbeddingModel string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	ChatModel      string  `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	Dimension      int     `envconfig:"EMBEDDING_DIMENSION" default:"1536"`
	TimeoutSeconds float64 `envconfig:"TIMEOUT_SECONDS" default:"60"`
	MaxRetries     int     `envconfig:"MAX_RETRIES" default:"5"`
}

// SecurityEnv holds request guard environment overrides.
type SecurityEnv struct {
	MaxBodyBytes int64 `envconfig:"MAX_BODY_BYTES" default:"52428800"`
}

// Load reads .env (when present) and the MATCAT_ environment into an
// EnvConfig.
func Load() (EnvConfig, error) {
	_ = godotenv.Load()
	var cfg EnvConfig
	if err := envconfig.Process("matcat", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig().Apply(
		WithHost(e.Host),
		WithPort(e.Port),
		WithLogLevel(e.LogLevel),
		WithLogFormat(ParseLogFormat(e.LogFormat)),
		WithEnvironment(e.Environment),
		WithCursorSecret(e.CursorSecret),
		WithSeedPaths(e.SeedColorsPath, e.SeedUnitsPath),
		WithRequestTimeout(time.Duration(e.RequestTimeoutSeconds*float64(time.Second))),
		WithFallbackDatabases(e.EnableFallbackDatabases),
		WithSearchConfig(e.Search.ToSearchConfig()),
		WithCacheConfig(e.Cache.ToCacheConfig()),
		WithBatchConfig(e.Batch.ToBatchConfig()),
		WithRateLimitConfig(e.RateLimit.ToRateLimitConfig()),
		WithPoolConfig(e.Pool.ToPoolConfig()),
		WithTunnelConfig(e.Tunnel.ToTunnelConfig()),
		WithProviderConfig(e.Provider.ToProviderConfig()),
		WithSecurityConfig(e.Security.ToSecurityConfig()),
	)
	if e.DBURL != "" {
		cfg = cfg.Apply(WithDBURL(e.DBURL))
	}
	return cfg
}

// ToSearchConfig converts SearchEnv to SearchConfig.
func (s SearchEnv) ToSearchConfig() SearchConfig {
	return SearchConfig{
		vectorThreshold: s.VectorThreshold,
		fuzzyThreshold:  s.FuzzyThreshold,
		hybridVector:    s.HybridVectorWeight,
		hybridSQL:       s.HybridSQLWeight,
		skuRecallK:      s.SKURecallK,
		skuMinCosine:    s.SKUMinCosine,
		unitVectorMin:   s.UnitVectorMin,
		unitFuzzyMin:    s.UnitFuzzyMin,
		colorVectorMin:  s.ColorVectorMin,
		colorFuzzyMin:   s.ColorFuzzyMin,
		strictColor:     s.SKUColorStrictSym,
	}
}

// ToCacheConfig converts CacheEnv to CacheConfig.
func (c CacheEnv) ToCacheConfig() CacheConfig {
	return CacheConfig{
		redisAddr:   c.RedisAddr,
		redisDB:     c.RedisDB,
		materialTTL: time.Duration(c.MaterialTTLSeconds) * time.Second,
		searchTTL:   time.Duration(c.SearchTTLSeconds) * time.Second,
		suggestTTL:  time.Duration(c.SuggestTTLSeconds) * time.Second,
		combinedTTL: time.Duration(c.CombinedTTLSeconds) * time.Second,
	}
}

// ToBatchConfig converts BatchEnv to BatchConfig.
func (b BatchEnv) ToBatchConfig() BatchConfig {
	return BatchConfig{
		maxItems:    b.MaxItemsPerRequest,
		workers:     b.WorkerPool,
		chunkSize:   b.ChunkSize,
		itemTimeout: time.Duration(b.ItemTimeoutSeconds) * time.Second,
	}
}

// ToRateLimitConfig converts RateLimitEnv to RateLimitConfig.
func (r RateLimitEnv) ToRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{perMinute: r.RPM, perHour: r.RPH, burst: r.Burst}
}

// ToPoolConfig converts PoolEnv to PoolConfig.
func (p PoolEnv) ToPoolConfig() PoolConfig {
	return PoolConfig{
		min:            p.Min,
		max:            p.Max,
		targetUtil:     p.TargetUtil,
		resizeInterval: time.Duration(p.ResizeIntervalSeconds) * time.Second,
	}
}

// ToTunnelConfig converts TunnelEnv to TunnelConfig.
func (t TunnelEnv) ToTunnelConfig() TunnelConfig {
	return TunnelConfig{
		enabled:           t.Enable,
		host:              t.Host,
		port:              t.Port,
		user:              t.User,
		keyPath:           t.KeyPath,
		localPort:         t.LocalPort,
		remoteHost:        t.RemoteHost,
		remotePort:        t.RemotePort,
		heartbeatInterval: time.Duration(t.HeartbeatIntervalSeconds) * time.Second,
		autoRestart:       t.AutoRestart,
	}
}

// ToProviderConfig converts ProviderEnv to ProviderConfig.
func (p ProviderEnv) ToProviderConfig() ProviderConfig {
	return ProviderConfig{
		baseURL:        p.BaseURL,
		apiKey:         p.APIKey,
		embeddingModel: p.EmbeddingModel,
		chatModel:      p.ChatModel,
		dimension:      p.Dimension,
		timeout:        time.Duration(p.TimeoutSeconds * float64(time.Second)),
		maxRetries:     p.MaxRetries,
	}
}

// ToSecurityConfig converts SecurityEnv to SecurityConfig.
func (s SecurityEnv) ToSecurityConfig() SecurityConfig {
	return SecurityConfig{maxBodyBytes: s.MaxBodyBytes}
}
