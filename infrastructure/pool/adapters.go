package pool

import (
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/severstroy/matcat/internal/database"
)

// connMaxLifetime applied whenever a database pool is resized.
const connMaxLifetime = 30 * time.Minute

// DatabasePool adapts a GORM-backed database to the Resizable interface.
// Resizes go through database/sql.SetMaxOpenConns.
type DatabasePool struct {
	name string
	db   database.Database
	size atomic.Int64
}

// NewDatabasePool creates a DatabasePool and applies the initial size.
func NewDatabasePool(name string, db database.Database, initial int) (*DatabasePool, error) {
	p := &DatabasePool{name: name, db: db}
	if err := p.Resize(initial); err != nil {
		return nil, err
	}
	return p, nil
}

// Name identifies the pool.
func (p *DatabasePool) Name() string { return p.name }

// Size returns the configured maximum open connections.
func (p *DatabasePool) Size() int { return int(p.size.Load()) }

// InUse returns the connections currently checked out.
func (p *DatabasePool) InUse() int {
	stats, err := p.db.PoolStats()
	if err != nil {
		return 0
	}
	return stats.InUse
}

// Resize applies a new maximum open-connection count. Idle capacity follows
// at half the open limit.
func (p *DatabasePool) Resize(size int) error {
	if size < 1 {
		size = 1
	}
	idle := size / 2
	if idle < 1 {
		idle = 1
	}
	if err := p.db.ConfigurePool(size, idle, connMaxLifetime); err != nil {
		return err
	}
	p.size.Store(int64(size))
	return nil
}

var _ Resizable = (*DatabasePool)(nil)

// RedisPool adapts a go-redis client to the Resizable interface. go-redis
// fixes its connection queue at client creation, so a resize only changes
// the reported target until the client is rebuilt.
type RedisPool struct {
	name   string
	client *redis.Client
	size   atomic.Int64
}

// NewRedisPool creates a RedisPool reporting the client's configured size.
func NewRedisPool(name string, client *redis.Client) *RedisPool {
	p := &RedisPool{name: name, client: client}
	p.size.Store(int64(client.Options().PoolSize))
	return p
}

// Name identifies the pool.
func (p *RedisPool) Name() string { return p.name }

// Size returns the target pool size.
func (p *RedisPool) Size() int { return int(p.size.Load()) }

// InUse returns the connections currently checked out.
func (p *RedisPool) InUse() int {
	stats := p.client.PoolStats()
	inUse := int(stats.TotalConns) - int(stats.IdleConns)
	if inUse < 0 {
		return 0
	}
	return inUse
}

// Resize records the new target size.
func (p *RedisPool) Resize(size int) error {
	if size < 1 {
		size = 1
	}
	p.size.Store(int64(size))
	p.client.Options().PoolSize = size
	return nil
}

var _ Resizable = (*RedisPool)(nil)
