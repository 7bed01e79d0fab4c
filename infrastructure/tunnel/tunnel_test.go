package tunnel

import (
	"context"
	"testing"
	"time"

	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.NewLogger(config.NewAppConfigWithOptions(config.WithLogLevel("error")))
}

func testTunnelConfig() config.TunnelConfig {
	return config.TunnelEnv{
		Enable:                   true,
		Host:                     "ssh.example.test",
		Port:                     22,
		User:                     "deploy",
		KeyPath:                  "/nonexistent/key",
		LocalPort:                15432,
		RemoteHost:               "db.internal",
		RemotePort:               5432,
		HeartbeatIntervalSeconds: 60,
		AutoRestart:              true,
	}.ToTunnelConfig()
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "stopped", StateStopped.String())
}

func TestNextRestartDelaySchedule(t *testing.T) {
	assert.Equal(t, 15*time.Second, nextRestartDelay(5*time.Second))
	assert.Equal(t, 45*time.Second, nextRestartDelay(15*time.Second))
	assert.Equal(t, 135*time.Second, nextRestartDelay(45*time.Second))
	assert.Equal(t, restartBackoffCap, nextRestartDelay(3*time.Minute), "capped")
	assert.Equal(t, restartBackoffCap, nextRestartDelay(restartBackoffCap))
}

func TestSupervisorStartFailsWithoutKey(t *testing.T) {
	s := NewSupervisor(testTunnelConfig(), testLogger(t))
	assert.Equal(t, StateIdle, s.State())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Start(ctx)
	require.Error(t, err)
	assert.Equal(t, StateIdle, s.State(), "failed start returns to idle")
	assert.False(t, s.Healthy())
}

func TestSupervisorStopIsTerminal(t *testing.T) {
	s := NewSupervisor(testTunnelConfig(), testLogger(t))
	s.Stop()
	s.Stop()
	assert.Equal(t, StateStopped, s.State())

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSupervisorAddr(t *testing.T) {
	s := NewSupervisor(testTunnelConfig(), testLogger(t))
	assert.Equal(t, "127.0.0.1:15432", s.Addr())
}
