// Package tunnel supervises the SSH port forward that carries SQL traffic
// to the remote relational database.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/log"
	"golang.org/x/crypto/ssh"
)

// State is the supervisor lifecycle state.
type State int32

// State values. Transitions: idle -> connecting -> active -> {degraded ->
// connecting} -> stopped. stopped is terminal.
const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateDegraded
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDegraded:
		return "degraded"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// heartbeatFailThreshold is how many consecutive probe failures demote an
// active tunnel to degraded.
const heartbeatFailThreshold = 2

// Restart backoff schedule: each delay triples, capped.
const (
	restartBackoffInitial = 5 * time.Second
	restartBackoffFactor  = 3
	restartBackoffCap     = 5 * time.Minute
)

var (
	restartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matcat_tunnel_restarts_total",
		Help: "Number of SSH tunnel restart attempts.",
	})
	stateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matcat_tunnel_state",
		Help: "Current tunnel state (0=idle 1=connecting 2=active 3=degraded 4=stopped).",
	})
)

// ErrStopped is returned when an operation runs against a stopped
// supervisor.
var ErrStopped = errors.New("tunnel supervisor stopped")

// Supervisor owns the SSH client, the local listener, and the heartbeat
// loop. It restarts the tunnel with exponential backoff while AutoRestart
// is enabled.
type Supervisor struct {
	cfg    config.TunnelConfig
	logger *log.Logger

	state atomic.Int32

	mu       sync.Mutex
	client   *ssh.Client
	listener net.Listener

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	heartbeatFails int
}

// NewSupervisor creates a Supervisor in the idle state.
func NewSupervisor(cfg config.TunnelConfig, logger *log.Logger) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
	s.setState(StateIdle)
	return s
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	stateGauge.Set(float64(st))
}

// Addr returns the local forward address SQL clients should dial.
func (s *Supervisor) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.cfg.LocalPort())
}

// Start establishes the tunnel and launches the accept and heartbeat
// loops. An error means the tunnel never reached active; the caller
// decides whether to fall back to vector-only operation.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.State() == StateStopped {
		return ErrStopped
	}
	s.setState(StateConnecting)
	if err := s.connect(ctx); err != nil {
		s.setState(StateIdle)
		return err
	}
	s.setState(StateActive)
	s.logger.InfoContext(ctx, "ssh tunnel active",
		"local_addr", s.Addr(),
		"remote", fmt.Sprintf("%s:%d", s.cfg.RemoteHost(), s.cfg.RemotePort()))

	s.wg.Add(1)
	go s.heartbeatLoop()
	return nil
}

func (s *Supervisor) connect(ctx context.Context) error {
	key, err := os.ReadFile(s.cfg.KeyPath())
	if err != nil {
		return fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return fmt.Errorf("parse ssh key: %w", err)
	}

	clientCfg := &ssh.ClientConfig{
		User: s.cfg.User(),
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// Remote host key is not pinned; the tunnel endpoint comes from
		// operator-controlled configuration.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}

	sshAddr := fmt.Sprintf("%s:%d", s.cfg.Host(), s.cfg.Port())
	client, err := ssh.Dial("tcp", sshAddr, clientCfg)
	if err != nil {
		return fmt.Errorf("dial ssh %s: %w", sshAddr, err)
	}

	listener, err := net.Listen("tcp", s.Addr())
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("listen %s: %w", s.Addr(), err)
	}

	s.mu.Lock()
	s.client = client
	s.listener = listener
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(listener, client)
	return nil
}

func (s *Supervisor) acceptLoop(listener net.Listener, client *ssh.Client) {
	defer s.wg.Done()
	remote := fmt.Sprintf("%s:%d", s.cfg.RemoteHost(), s.cfg.RemotePort())
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.forward(conn, client, remote)
		}()
	}
}

func (s *Supervisor) forward(local net.Conn, client *ssh.Client, remote string) {
	defer local.Close()
	upstream, err := client.Dial("tcp", remote)
	if err != nil {
		s.logger.Warn("tunnel forward dial failed", "remote", remote, "error", err)
		return
	}
	defer upstream.Close()

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(upstream, local)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(local, upstream)
		done <- struct{}{}
	}()
	<-done
}

func (s *Supervisor) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.heartbeat()
		}
	}
}

// heartbeat probes the remote endpoint through the tunnel. Two consecutive
// failures demote the tunnel to degraded and, with AutoRestart on, start
// the reconnect loop.
func (s *Supervisor) heartbeat() {
	if s.State() != StateActive {
		return
	}
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return
	}

	remote := fmt.Sprintf("%s:%d", s.cfg.RemoteHost(), s.cfg.RemotePort())
	conn, err := client.Dial("tcp", remote)
	if err == nil {
		_ = conn.Close()
		s.heartbeatFails = 0
		return
	}

	s.heartbeatFails++
	s.logger.Warn("tunnel heartbeat failed",
		"consecutive_failures", s.heartbeatFails, "error", err)
	if s.heartbeatFails < heartbeatFailThreshold {
		return
	}

	s.heartbeatFails = 0
	s.setState(StateDegraded)
	s.closeTunnel()
	if s.cfg.AutoRestart() {
		s.wg.Add(1)
		go s.reconnectLoop()
	}
}

func (s *Supervisor) reconnectLoop() {
	defer s.wg.Done()
	delay := restartBackoffInitial
	for {
		select {
		case <-s.done:
			return
		case <-time.After(delay):
		}
		if s.State() == StateStopped {
			return
		}

		restartsTotal.Inc()
		s.setState(StateConnecting)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := s.connect(ctx)
		cancel()
		if err == nil {
			s.setState(StateActive)
			s.logger.Info("ssh tunnel restored", "local_addr", s.Addr())
			return
		}

		s.setState(StateDegraded)
		s.logger.Warn("tunnel reconnect failed", "retry_in", delay.String(), "error", err)
		delay = nextRestartDelay(delay)
	}
}

// nextRestartDelay advances the restart backoff schedule.
func nextRestartDelay(current time.Duration) time.Duration {
	next := current * restartBackoffFactor
	if next > restartBackoffCap {
		return restartBackoffCap
	}
	return next
}

func (s *Supervisor) closeTunnel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
}

// Stop tears the tunnel down. Terminal and idempotent.
func (s *Supervisor) Stop() {
	s.once.Do(func() {
		s.setState(StateStopped)
		close(s.done)
		s.closeTunnel()
		s.wg.Wait()
	})
}

// Healthy reports whether SQL traffic can flow.
func (s *Supervisor) Healthy() bool {
	return s.State() == StateActive
}
