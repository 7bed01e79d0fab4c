package service

import (
	"context"
	"sync"
	"time"

	"github.com/severstroy/matcat/internal/log"
)

// Component health states.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

const componentPingTimeout = 2 * time.Second

// ComponentHealth is one backend's probe result.
type ComponentHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health is the aggregate probe result. Status is ok when every critical
// component answers, degraded when only optional ones fail, down otherwise.
type Health struct {
	Status     string            `json:"status"`
	Components []ComponentHealth `json:"components,omitempty"`
	Extra      map[string]any    `json:"extra,omitempty"`
}

type healthCheck struct {
	name     string
	critical bool
	probe    func(ctx context.Context) error
}

// HealthService aggregates component probes for the health endpoints.
type HealthService struct {
	mu     sync.RWMutex
	checks []healthCheck
	extras map[string]func() any
	logger *log.Logger
}

// NewHealthService creates a HealthService.
func NewHealthService(logger *log.Logger) *HealthService {
	return &HealthService{extras: make(map[string]func() any), logger: logger}
}

// RegisterCheck adds a component probe. Critical components take the
// aggregate down; optional ones only degrade it.
func (s *HealthService) RegisterCheck(name string, critical bool, probe func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, healthCheck{name: name, critical: critical, probe: probe})
}

// RegisterDetail adds a named value included in the detailed report, such
// as queue depth or pool stats.
func (s *HealthService) RegisterDetail(name string, value func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extras[name] = value
}

// Live is the liveness probe: the process is up.
func (s *HealthService) Live() Health {
	return Health{Status: StatusOK}
}

// Ready runs every probe and reports the aggregate without details.
func (s *HealthService) Ready(ctx context.Context) Health {
	h := s.Detailed(ctx)
	return Health{Status: h.Status}
}

// Detailed runs every probe concurrently and reports per-component results
// plus the registered details.
func (s *HealthService) Detailed(ctx context.Context) Health {
	s.mu.RLock()
	checks := append([]healthCheck(nil), s.checks...)
	extras := make(map[string]func() any, len(s.extras))
	for k, v := range s.extras {
		extras[k] = v
	}
	s.mu.RUnlock()

	components := make([]ComponentHealth, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c healthCheck) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, componentPingTimeout)
			defer cancel()
			started := time.Now()
			err := c.probe(probeCtx)
			ch := ComponentHealth{
				Name:    c.name,
				Status:  StatusOK,
				Latency: time.Since(started).Round(time.Millisecond).String(),
			}
			if err != nil {
				ch.Status = StatusDown
				ch.Detail = err.Error()
			}
			components[i] = ch
		}(i, c)
	}
	wg.Wait()

	status := StatusOK
	for i, c := range checks {
		if components[i].Status != StatusDown {
			continue
		}
		if c.critical {
			status = StatusDown
			break
		}
		status = StatusDegraded
	}

	extra := make(map[string]any, len(extras))
	for name, fn := range extras {
		extra[name] = fn()
	}
	if len(extra) == 0 {
		extra = nil
	}
	return Health{Status: status, Components: components, Extra: extra}
}
