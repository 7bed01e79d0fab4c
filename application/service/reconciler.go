package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/infrastructure/persistence"
	"github.com/severstroy/matcat/internal/log"
)

const (
	reconcileInterval  = 30 * time.Second
	reconcileBatchSize = 100
)

var outboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "matcat_outbox_depth",
	Help: "Reconciliation events waiting for the relational backend.",
})

// Reconciler drains the reconciliation outbox into the relational store
// once it answers pings again. Events replay in append order; upserts and
// deletes are idempotent so a crash mid-drain only repeats work.
type Reconciler struct {
	outbox *persistence.OutboxStore
	texts  material.TextStore
	logger *log.Logger

	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewReconciler creates a Reconciler.
func NewReconciler(outbox *persistence.OutboxStore, texts material.TextStore, logger *log.Logger) *Reconciler {
	return &Reconciler{
		outbox:   outbox,
		texts:    texts,
		logger:   logger,
		interval: reconcileInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the drain loop.
func (r *Reconciler) Start() {
	go r.loop()
}

// Stop terminates the loop and waits for an in-flight drain to finish.
func (r *Reconciler) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reconciler) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			if err := r.DrainOnce(ctx); err != nil {
				r.logger.WarnContext(ctx, "reconciliation pass failed", "error", err)
			}
			cancel()
		}
	}
}

// DrainOnce replays pending events while the relational backend is
// reachable. Returns nil when there is nothing to do.
func (r *Reconciler) DrainOnce(ctx context.Context) error {
	if r.texts == nil {
		return nil
	}
	if depth, err := r.outbox.Depth(ctx); err == nil {
		outboxDepth.Set(float64(depth))
		if depth == 0 {
			return nil
		}
	}
	if err := r.texts.Ping(ctx); err != nil {
		// Backend still down; try again next tick.
		return nil
	}

	for {
		events, err := r.outbox.Pending(ctx, reconcileBatchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			break
		}

		resolved := make([]uint, 0, len(events))
		for _, ev := range events {
			if err := r.apply(ctx, ev); err != nil {
				r.logger.WarnContext(ctx, "reconciliation event failed",
					"event_id", ev.ID, "material_id", ev.MaterialID, "error", err)
				// Keep order: later events for the same material must not
				// overtake this one.
				break
			}
			resolved = append(resolved, ev.ID)
		}
		if len(resolved) > 0 {
			if err := r.outbox.Resolve(ctx, resolved...); err != nil {
				return err
			}
			r.logger.InfoContext(ctx, "reconciliation events replayed", "count", len(resolved))
		}
		if len(resolved) < len(events) {
			break
		}
	}

	if depth, err := r.outbox.Depth(ctx); err == nil {
		outboxDepth.Set(float64(depth))
	}
	return nil
}

func (r *Reconciler) apply(ctx context.Context, ev persistence.OutboxEvent) error {
	switch ev.Op {
	case persistence.OutboxOpDelete:
		return r.texts.Delete(ctx, ev.MaterialID)
	default:
		m, err := DecodeMaterialPayload(ev.Payload)
		if err != nil {
			return err
		}
		return r.texts.Upsert(ctx, m)
	}
}
