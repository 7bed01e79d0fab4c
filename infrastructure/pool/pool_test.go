package pool

import (
	"errors"
	"testing"
	"time"

	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	name      string
	size      int
	inUse     int
	resizeErr error
	resizes   []int
}

func (f *fakePool) Name() string { return f.name }
func (f *fakePool) Size() int    { return f.size }
func (f *fakePool) InUse() int   { return f.inUse }
func (f *fakePool) Resize(size int) error {
	if f.resizeErr != nil {
		return f.resizeErr
	}
	f.resizes = append(f.resizes, size)
	f.size = size
	return nil
}

func testPoolConfig() config.PoolConfig {
	return config.PoolEnv{
		Min:                   2,
		Max:                   20,
		TargetUtil:            0.8,
		ResizeIntervalSeconds: 30,
	}.ToPoolConfig()
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := log.NewLogger(config.NewAppConfigWithOptions(config.WithLogLevel("error")))
	m := NewManager(testPoolConfig(), logger)
	t.Cleanup(m.Stop)
	return m
}

func TestNextSize(t *testing.T) {
	tests := []struct {
		name        string
		size, inUse int
		want        int
	}{
		{"grows above target", 10, 9, 12},
		{"shrinks below threshold", 10, 3, 8},
		{"steady in band", 10, 6, 10},
		{"grow clamped to max", 18, 18, 20},
		{"shrink clamped to min", 3, 0, 2},
		{"small pool still steps", 2, 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextSize(tt.size, tt.inUse, 2, 20, 0.8)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWaitRingP95(t *testing.T) {
	r := &waitRing{}
	assert.Equal(t, time.Duration(0), r.p95(), "empty ring")

	for i := 1; i <= 100; i++ {
		r.observe(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, 96*time.Millisecond, r.p95())
}

func TestManagerResizesRegisteredPools(t *testing.T) {
	m := newTestManager(t)

	hot := &fakePool{name: "vector", size: 10, inUse: 9}
	cold := &fakePool{name: "sql", size: 10, inUse: 1}
	steady := &fakePool{name: "cache", size: 10, inUse: 6}
	m.Register(hot)
	m.Register(cold)
	m.Register(steady)

	m.resizeAll()

	assert.Equal(t, []int{12}, hot.resizes)
	assert.Equal(t, []int{8}, cold.resizes)
	assert.Empty(t, steady.resizes)
}

func TestManagerResizeFailureKeepsSize(t *testing.T) {
	m := newTestManager(t)
	p := &fakePool{name: "vector", size: 10, inUse: 9, resizeErr: errors.New("locked")}
	m.Register(p)

	m.resizeAll()
	assert.Equal(t, 10, p.Size())
}

func TestManagerSnapshot(t *testing.T) {
	m := newTestManager(t)
	m.Register(&fakePool{name: "vector", size: 10, inUse: 4})
	m.Register(&fakePool{name: "cache", size: 5, inUse: 1})
	m.ObserveWait("vector", 7*time.Millisecond)

	stats := m.Snapshot()
	require.Len(t, stats, 2)
	assert.Equal(t, "cache", stats[0].Name, "sorted by name")
	assert.Equal(t, "vector", stats[1].Name)
	assert.Equal(t, 10, stats[1].Size)
	assert.Equal(t, 4, stats[1].InUse)
	assert.Equal(t, 7*time.Millisecond, stats[1].WaitP95)
}

func TestObserveWaitUnknownPool(t *testing.T) {
	m := newTestManager(t)
	m.ObserveWait("nope", time.Millisecond)
}
