package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/severstroy/matcat/application/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthLiveAlwaysOK(t *testing.T) {
	svc := service.NewHealthService(testLogger())
	assert.Equal(t, service.StatusOK, svc.Live().Status)
}

func TestHealthAllComponentsUp(t *testing.T) {
	svc := service.NewHealthService(testLogger())
	svc.RegisterCheck("vector", true, func(context.Context) error { return nil })
	svc.RegisterCheck("cache", false, func(context.Context) error { return nil })

	h := svc.Detailed(context.Background())
	assert.Equal(t, service.StatusOK, h.Status)
	require.Len(t, h.Components, 2)
	for _, c := range h.Components {
		assert.Equal(t, service.StatusOK, c.Status)
		assert.NotEmpty(t, c.Latency)
	}
}

func TestHealthOptionalFailureDegrades(t *testing.T) {
	svc := service.NewHealthService(testLogger())
	svc.RegisterCheck("vector", true, func(context.Context) error { return nil })
	svc.RegisterCheck("sql", false, func(context.Context) error { return errors.New("down") })

	h := svc.Detailed(context.Background())
	assert.Equal(t, service.StatusDegraded, h.Status)

	byName := map[string]service.ComponentHealth{}
	for _, c := range h.Components {
		byName[c.Name] = c
	}
	assert.Equal(t, service.StatusDown, byName["sql"].Status)
	assert.Equal(t, "down", byName["sql"].Detail)
}

func TestHealthCriticalFailureTakesDown(t *testing.T) {
	svc := service.NewHealthService(testLogger())
	svc.RegisterCheck("vector", true, func(context.Context) error { return errors.New("gone") })
	svc.RegisterCheck("sql", false, func(context.Context) error { return nil })

	h := svc.Detailed(context.Background())
	assert.Equal(t, service.StatusDown, h.Status)
	assert.Equal(t, service.StatusDown, svc.Ready(context.Background()).Status)
}

func TestHealthDetailsIncluded(t *testing.T) {
	svc := service.NewHealthService(testLogger())
	svc.RegisterDetail("queue_depth", func() any { return 7 })

	h := svc.Detailed(context.Background())
	require.NotNil(t, h.Extra)
	assert.Equal(t, 7, h.Extra["queue_depth"])
}
