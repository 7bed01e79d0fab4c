// Package matcat provides a library for construction-material cataloging,
// AI enrichment, and hybrid search.
//
// Matcat stores materials in a vector-first multi-tier backend, normalizes
// free-form supplier names through a four-stage enrichment pipeline, and
// answers advanced queries over vector, SQL, and fuzzy tiers.
//
// Basic usage:
//
//	client, err := matcat.New(
//	    matcat.WithConfig(cfg),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Create a material
//	m, err := client.Materials.Create(ctx,
//	    material.New(uuid.NewString(), "Кирпич керамический", "шт"))
//
//	// Hybrid search
//	resp, err := client.Search.Search(ctx,
//	    search.NewQuery("кирпич", search.ModeHybrid))
//
//	for _, hit := range resp.Hits() {
//	    fmt.Println(hit.Material.Name(), hit.Score)
//	}
package matcat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/severstroy/matcat/application/service"
	"github.com/severstroy/matcat/domain/job"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/domain/search"
	"github.com/severstroy/matcat/infrastructure/api"
	"github.com/severstroy/matcat/infrastructure/cache"
	"github.com/severstroy/matcat/infrastructure/persistence"
	"github.com/severstroy/matcat/infrastructure/pool"
	"github.com/severstroy/matcat/infrastructure/provider"
	"github.com/severstroy/matcat/infrastructure/tunnel"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/database"
	"github.com/severstroy/matcat/internal/log"
)

// Sentinel errors for client construction and lifecycle.
var (
	ErrClientClosed = errors.New("matcat: client is closed")
	ErrNoEmbedder   = errors.New("matcat: no embedding provider configured")
)

// Client is the main entry point for the matcat library. Background
// workers start automatically on creation.
//
// Access resources via struct fields:
//
//	client.Materials.Get(ctx, id)
//	client.Search.Search(ctx, query)
//	client.Batch.Submit(ctx, items)
type Client struct {
	// Public resource fields (direct service access)
	Materials *service.MaterialsService
	Search    *service.SearchEngine
	Prices    *service.PriceService
	Reference *service.ReferenceService
	Health    *service.HealthService

	// Enrichment and Batch are nil when no material parser is
	// configured; the enrichment endpoints are then not mounted.
	Enrichment *service.EnrichmentService
	Batch      *service.BatchService

	cfg    config.AppConfig
	logger *log.Logger

	db        database.Database
	sqlDB     *database.Database
	cache     cache.Cache
	analytics *persistence.AnalyticsStore

	recorder   *service.AnalyticsRecorder
	reconciler *service.Reconciler
	pools      *pool.Manager
	tunnel     *tunnel.Supervisor
	server     *api.Server

	closers   []io.Closer
	ownsDB    bool
	ownsCache bool

	closed atomic.Bool
	mu     sync.Mutex
}

// New creates a Client, opening the configured backends, seeding the
// reference collections, and starting the background workers.
func New(opts ...Option) (*Client, error) {
	cc := newClientConfig()
	for _, opt := range opts {
		opt(cc)
	}
	cfg := cc.cfg

	logger := cc.logger
	if logger == nil {
		logger = log.NewLogger(cfg)
	}

	ctx := context.Background()

	// The SSH tunnel carries the relational tier. A tunnel that never
	// comes up degrades to vector-only operation rather than failing
	// construction.
	var sup *tunnel.Supervisor
	if cfg.Tunnel().Enabled() {
		sup = tunnel.NewSupervisor(cfg.Tunnel(), logger)
		if err := sup.Start(ctx); err != nil {
			logger.Warn("ssh tunnel failed to start, continuing without it", "error", err)
		}
	}

	c := cc.cache
	ownsCache := false
	if c == nil {
		if cfg.Cache().RedisAddr() != "" {
			c = cache.NewRedisCache(cfg.Cache())
		} else {
			c = cache.NewMemoryCache()
		}
		ownsCache = true
	}

	var (
		db     database.Database
		ownsDB bool
		err    error
	)
	if cc.db != nil {
		db = *cc.db
	} else {
		db, err = database.NewDatabase(ctx, cfg.DBURL())
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		ownsDB = true
	}

	fail := func(err error) (*Client, error) {
		if ownsDB {
			err = errors.Join(err, db.Close())
		}
		if ownsCache {
			err = errors.Join(err, c.Close())
		}
		if sup != nil {
			sup.Stop()
		}
		return nil, err
	}

	if err := persistence.AutoMigrate(db); err != nil {
		return fail(fmt.Errorf("auto migrate: %w", err))
	}

	embedder := cc.embedder
	parser := cc.parser
	if (embedder == nil || parser == nil) && cfg.Provider().IsConfigured() {
		openai := provider.NewOpenAIProvider(cfg.Provider())
		if embedder == nil {
			embedder = openai
		}
		if parser == nil {
			parser = openai
		}
	}
	if embedder == nil {
		return fail(ErrNoEmbedder)
	}

	vectors := persistence.NewVectorStore(db, embedder.Dimension())
	outbox := persistence.NewOutboxStore(db)
	refStore := persistence.NewReferenceStore(db)
	catalog := persistence.NewCatalogVectorStore(db)
	analyticsStore := persistence.NewAnalyticsStore(db)
	priceStore := persistence.NewPriceStore(db)

	// The relational tier: a dedicated database when provided, the
	// primary when fallback databases are enabled, disabled otherwise.
	var (
		texts material.TextStore
		sqlDB *database.Database
	)
	switch {
	case cc.sqlDB != nil:
		if err := persistence.AutoMigrate(*cc.sqlDB); err != nil {
			return fail(fmt.Errorf("auto migrate sql database: %w", err))
		}
		texts = persistence.NewSQLTextStore(*cc.sqlDB)
		sqlDB = cc.sqlDB
	case cfg.EnableFallbackDatabases():
		texts = persistence.NewSQLTextStore(db)
	}

	codec := search.NewCursorCodec([]byte(cfg.CursorSecret()))

	refSvc := service.NewReferenceService(refStore, embedder, logger,
		service.WithReferenceChangeHook(func(ctx context.Context) {
			for _, pattern := range []string{"combined:*", "search:*", "suggest:*"} {
				if _, err := c.DeletePattern(ctx, pattern); err != nil {
					logger.WarnContext(ctx, "cache invalidation after reference change failed",
						"pattern", pattern, "error", err)
				}
			}
		}))
	if err := refSvc.Seed(ctx, cfg.SeedColorsPath(), cfg.SeedUnitsPath()); err != nil {
		return fail(fmt.Errorf("seed reference collections: %w", err))
	}

	recorder := service.NewAnalyticsRecorder(analyticsStore, logger)
	recorder.Start()

	engine := service.NewSearchEngine(vectors, texts, embedder, c, codec,
		cfg.Search(), cfg.Cache(), logger,
		service.WithAnalyticsRecorder(recorder.Record),
		service.WithAnalyticsStore(analyticsStore),
	)

	materials := service.NewMaterialsService(vectors, texts, c, embedder,
		outbox, cfg.Cache(), cfg.Batch(), logger)

	var (
		enrich *service.EnrichmentService
		batch  *service.BatchService
	)
	if parser != nil {
		enrich = service.NewEnrichmentService(parser, embedder, refSvc, catalog,
			cache.NewFlight(c), cfg.Search(), cfg.Cache(), logger)

		batch = service.NewBatchService(jobStoreFor(sqlDB, c), enrich, cfg.Batch(), logger)
		batch.Start()
	}

	var reconciler *service.Reconciler
	if texts != nil {
		reconciler = service.NewReconciler(outbox, texts, logger)
		reconciler.Start()
	}

	prices := service.NewPriceService(priceStore, logger)

	pools := pool.NewManager(cfg.Pool(), logger)
	if dbPool, err := pool.NewDatabasePool("vector", db, cfg.Pool().Min()); err != nil {
		logger.Warn("vector pool supervision unavailable", "error", err)
	} else {
		pools.Register(dbPool)
	}
	if sqlDB != nil {
		if sqlPool, err := pool.NewDatabasePool("sql", *sqlDB, cfg.Pool().Min()); err != nil {
			logger.Warn("sql pool supervision unavailable", "error", err)
		} else {
			pools.Register(sqlPool)
		}
	}
	if rc, ok := c.(*cache.RedisCache); ok {
		pools.Register(pool.NewRedisPool("cache", rc.Client()))
	}
	pools.Start()

	health := service.NewHealthService(logger)
	health.RegisterCheck("vector", true, db.Ping)
	health.RegisterCheck("cache", false, c.Ping)
	if sqlDB != nil {
		health.RegisterCheck("sql", false, sqlDB.Ping)
	}
	if sup != nil {
		health.RegisterCheck("tunnel", false, func(context.Context) error {
			if !sup.Healthy() {
				return fmt.Errorf("tunnel state %s", sup.State())
			}
			return nil
		})
	}
	if batch != nil {
		health.RegisterDetail("batch_queue_depth", func() any { return batch.QueueDepth() })
	}
	health.RegisterDetail("analytics_queue_depth", func() any { return recorder.QueueDepth() })
	health.RegisterDetail("pools", func() any { return pools.Snapshot() })

	client := &Client{
		Materials:  materials,
		Search:     engine,
		Prices:     prices,
		Reference:  refSvc,
		Health:     health,
		Enrichment: enrich,
		Batch:      batch,

		cfg:       cfg,
		logger:    logger,
		db:        db,
		sqlDB:     sqlDB,
		cache:     c,
		analytics: analyticsStore,

		recorder:   recorder,
		reconciler: reconciler,
		pools:      pools,
		tunnel:     sup,

		closers:   cc.closers,
		ownsDB:    ownsDB,
		ownsCache: ownsCache,
	}
	client.server = client.buildServer()

	return client, nil
}

// jobStoreFor picks the job-tracking backend: durable SQL when a
// dedicated relational database exists, cache-backed otherwise.
func jobStoreFor(sqlDB *database.Database, c cache.Cache) job.Store {
	if sqlDB != nil {
		return persistence.NewSQLJobStore(*sqlDB)
	}
	return persistence.NewCacheJobStore(c)
}

// Close stops the background workers and releases all resources.
// Shutdown order mirrors data flow: ingress first, stores last.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.server.Shutdown(ctx); err != nil {
		c.logger.Error("http shutdown failed", "error", err)
	}

	if c.Batch != nil {
		c.Batch.Stop()
	}
	if c.reconciler != nil {
		c.reconciler.Stop()
	}
	c.recorder.Stop()
	c.pools.Stop()
	if c.tunnel != nil {
		c.tunnel.Stop()
	}

	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", "error", err)
		}
	}

	var errs []error
	if c.ownsCache {
		if err := c.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if c.ownsDB {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	c.logger.Info("matcat client closed")
	return nil
}

// Logger returns the client's logger.
func (c *Client) Logger() *log.Logger {
	return c.logger
}
