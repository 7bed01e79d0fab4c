package matcat

import (
	"io"

	"github.com/severstroy/matcat/infrastructure/cache"
	"github.com/severstroy/matcat/infrastructure/provider"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/database"
	"github.com/severstroy/matcat/internal/log"
)

// clientConfig holds configuration for Client construction.
// Use newClientConfig() to create with defaults from internal/config.
type clientConfig struct {
	cfg      config.AppConfig
	logger   *log.Logger
	embedder provider.Embedder
	parser   provider.MaterialParser
	cache    cache.Cache
	db       *database.Database
	sqlDB    *database.Database
	closers  []io.Closer
}

func newClientConfig() *clientConfig {
	return &clientConfig{cfg: config.NewAppConfig()}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithConfig replaces the default application configuration. Combine
// with config.Load() to pick the configuration up from the environment.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		c.cfg = cfg
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithEmbedder sets a custom embedding provider. When absent, an OpenAI
// provider is built from the configured credentials.
func WithEmbedder(e provider.Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithMaterialParser sets a custom chat parser for the enrichment
// pipeline. When absent, the OpenAI provider doubles as the parser.
func WithMaterialParser(p provider.MaterialParser) Option {
	return func(c *clientConfig) {
		c.parser = p
	}
}

// WithCache sets the cache backend, overriding the configured
// Redis-or-memory choice. The caller keeps ownership: Close will not
// close a provided cache.
func WithCache(cc cache.Cache) Option {
	return func(c *clientConfig) {
		c.cache = cc
	}
}

// WithDatabase uses an already-open primary database instead of dialing
// the configured URL. The caller keeps ownership.
func WithDatabase(db database.Database) Option {
	return func(c *clientConfig) {
		c.db = &db
	}
}

// WithSQLDatabase sets a dedicated relational database for the SQL
// search tier and the job store. Without it the relational tier shares
// the primary database when fallback databases are enabled, and is
// disabled otherwise.
func WithSQLDatabase(db database.Database) Option {
	return func(c *clientConfig) {
		c.sqlDB = &db
	}
}

// WithCloser registers a resource to be closed when the Client shuts
// down.
func WithCloser(closer io.Closer) Option {
	return func(c *clientConfig) {
		c.closers = append(c.closers, closer)
	}
}
