// Package pool manages backend connection pools: it tracks utilization and
// wait latency per pool and resizes them between configured bounds.
package pool

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/log"
)

// Resizable is a backend pool the manager can observe and resize.
type Resizable interface {
	// Name identifies the pool (vector, sql, cache).
	Name() string

	// Size returns the current maximum pool size.
	Size() int

	// InUse returns how many connections are checked out.
	InUse() int

	// Resize applies a new maximum pool size.
	Resize(size int) error
}

// Resize thresholds: utilization above growUtil grows the pool by
// resizeStep, below shrinkUtil shrinks it, both clamped to config bounds.
const (
	shrinkUtil = 0.4
	resizeStep = 0.2

	waitRingSize = 256
)

var (
	sizeGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matcat_pool_size",
		Help: "Configured maximum size per connection pool.",
	}, []string{"pool"})
	inUseGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matcat_pool_in_use",
		Help: "Connections currently checked out per pool.",
	}, []string{"pool"})
	waitP95Gauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matcat_pool_wait_p95_ms",
		Help: "95th percentile connection wait per pool in milliseconds.",
	}, []string{"pool"})
)

// Stats is one pool's health snapshot.
type Stats struct {
	Name    string        `json:"name"`
	Size    int           `json:"size"`
	InUse   int           `json:"in_use"`
	WaitP95 time.Duration `json:"wait_p95"`
}

// waitRing keeps the most recent connection waits for percentile reads.
type waitRing struct {
	mu     sync.Mutex
	waits  [waitRingSize]time.Duration
	next   int
	filled int
}

func (r *waitRing) observe(d time.Duration) {
	r.mu.Lock()
	r.waits[r.next] = d
	r.next = (r.next + 1) % waitRingSize
	if r.filled < waitRingSize {
		r.filled++
	}
	r.mu.Unlock()
}

func (r *waitRing) p95() time.Duration {
	r.mu.Lock()
	n := r.filled
	snapshot := make([]time.Duration, n)
	copy(snapshot, r.waits[:n])
	r.mu.Unlock()
	if n == 0 {
		return 0
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i] < snapshot[j] })
	idx := (n * 95) / 100
	if idx >= n {
		idx = n - 1
	}
	return snapshot[idx]
}

type tracked struct {
	pool Resizable
	ring *waitRing
}

// Manager owns the registered pools and the periodic resize loop. Resizes
// are decided and applied serially from one goroutine.
type Manager struct {
	cfg    config.PoolConfig
	logger *log.Logger

	mu    sync.RWMutex
	pools map[string]*tracked

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewManager creates a Manager.
func NewManager(cfg config.PoolConfig, logger *log.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger,
		pools:  make(map[string]*tracked),
		done:   make(chan struct{}),
	}
}

// Register adds a pool to the manager.
func (m *Manager) Register(p Resizable) {
	m.mu.Lock()
	m.pools[p.Name()] = &tracked{pool: p, ring: &waitRing{}}
	m.mu.Unlock()
}

// ObserveWait records a connection wait for the named pool.
func (m *Manager) ObserveWait(name string, d time.Duration) {
	m.mu.RLock()
	t, ok := m.pools[name]
	m.mu.RUnlock()
	if ok {
		t.ring.observe(d)
	}
}

// Start launches the resize loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.ResizeInterval())
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				m.resizeAll()
			}
		}
	}()
}

// Stop halts the resize loop. Idempotent.
func (m *Manager) Stop() {
	m.once.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
}

// Snapshot returns per-pool stats for the health endpoint, sorted by name.
func (m *Manager) Snapshot() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stats, 0, len(m.pools))
	for name, t := range m.pools {
		out = append(out, Stats{
			Name:    name,
			Size:    t.pool.Size(),
			InUse:   t.pool.InUse(),
			WaitP95: t.ring.p95(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manager) resizeAll() {
	m.mu.RLock()
	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		m.mu.RLock()
		t := m.pools[name]
		m.mu.RUnlock()
		m.resizeOne(t)
	}
}

func (m *Manager) resizeOne(t *tracked) {
	size := t.pool.Size()
	inUse := t.pool.InUse()

	sizeGauge.WithLabelValues(t.pool.Name()).Set(float64(size))
	inUseGauge.WithLabelValues(t.pool.Name()).Set(float64(inUse))
	waitP95Gauge.WithLabelValues(t.pool.Name()).Set(float64(t.ring.p95().Milliseconds()))

	target := nextSize(size, inUse, m.cfg.Min(), m.cfg.Max(), m.cfg.TargetUtil())
	if target == size {
		return
	}
	if err := t.pool.Resize(target); err != nil {
		m.logger.Warn("pool resize failed",
			"pool", t.pool.Name(), "from", size, "to", target, "error", err)
		return
	}
	m.logger.Info("pool resized",
		"pool", t.pool.Name(), "from", size, "to", target,
		"utilization", utilization(size, inUse))
}

// nextSize computes the resize decision for one pool.
func nextSize(size, inUse, min, max int, growUtil float64) int {
	if size <= 0 {
		return clamp(min, min, max)
	}
	util := utilization(size, inUse)
	switch {
	case util > growUtil:
		return clamp(scale(size, 1+resizeStep), min, max)
	case util < shrinkUtil:
		return clamp(scale(size, 1-resizeStep), min, max)
	default:
		return clamp(size, min, max)
	}
}

func utilization(size, inUse int) float64 {
	if size <= 0 {
		return 0
	}
	return float64(inUse) / float64(size)
}

// scale rounds away from the current size so a step always moves at least
// one connection.
func scale(size int, factor float64) int {
	scaled := int(float64(size) * factor)
	if scaled == size {
		if factor > 1 {
			return size + 1
		}
		return size - 1
	}
	return scaled
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
