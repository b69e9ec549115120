// Package alerts runs the bounded worker pool that processes accepted
// alerts. Each alert is one independent task; ordering between addresses is
// unconstrained, ordering within an address is enforced further down by the
// verification engine's per-address serialization.
package alerts

import (
	"context"
	"sync/atomic"

	"vigil/internal/config"
	"vigil/internal/metrics"
	"vigil/internal/verification"

	"github.com/charmbracelet/log"
)

type Task struct {
	SensorID string
	IP       string
	Score    float64
}

type Queue struct {
	tasks  chan Task
	engine *verification.Engine
	closed atomic.Bool
}

// StartDispatcher sizes the queue and worker count from configuration and
// launches the workers. Worker count is fixed for the process lifetime;
// queue pressure is visible via the queue-depth gauge.
func StartDispatcher(ctx context.Context, engine *verification.Engine) *Queue {
	cfg := config.GetConfig()

	workers := int(cfg.Ingest.AlertWorkers)
	if workers <= 0 {
		workers = 8
	}
	size := int(cfg.Ingest.QueueSize)
	if size <= 0 {
		size = 1024
	}

	q := &Queue{
		tasks:  make(chan Task, size),
		engine: engine,
	}

	for i := 0; i < workers; i++ {
		go q.work(ctx)
	}

	log.Info("Alert dispatcher started", "workers", workers, "queue_size", size)
	return q
}

// Enqueue hands one accepted alert to the pool. It never blocks the
// ingestion handler: a full queue is reported back so the boundary can shed
// load instead of stalling sensors.
func (q *Queue) Enqueue(task Task) bool {
	if q.closed.Load() {
		return false
	}
	select {
	case q.tasks <- task:
		metrics.AlertQueueDepth.Set(float64(len(q.tasks)))
		return true
	default:
		return false
	}
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			metrics.AlertQueueDepth.Set(float64(len(q.tasks)))
			// Errors are already audited by the engine; the alert counts
			// as not processed and the sensor is never told synchronously.
			if _, err := q.engine.ProcessAlert(ctx, task.SensorID, task.IP, task.Score); err != nil {
				log.Debug("alert processing failed", "sensor", task.SensorID, "ip", task.IP, "error", err)
			}
		}
	}
}

func (q *Queue) Close() {
	q.closed.Store(true)
}
