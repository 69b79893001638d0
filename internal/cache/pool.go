package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/objectfs/imagecache/pkg/health"
	"github.com/objectfs/imagecache/pkg/recovery"
	"github.com/objectfs/imagecache/pkg/status"
)

// defaultPoolWorkers and defaultPoolQueueSize size the default
// TaskSubmitter implementation when none is specified.
const (
	defaultPoolWorkers   = 8
	defaultPoolQueueSize = 1024
)

// Pool is the default TaskSubmitter: a bounded goroutine pool backed by a
// buffered channel, grounded on the batch processor's worker+stopCh+
// WaitGroup shape. Each task runs through a recovery.RecoveryManager so a
// panicking task is recovered and logged instead of taking down a worker.
type Pool struct {
	tasks   chan func()
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex

	recoveryMgr   *recovery.RecoveryManager
	healthTracker *health.Tracker
	logger        *slog.Logger
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Workers   int
	QueueSize int
}

// NewPool constructs a Pool. Call Start before submitting tasks.
func NewPool(cfg PoolConfig) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultPoolWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultPoolQueueSize
	}

	healthTracker := health.NewTracker(health.DefaultConfig())
	healthTracker.RegisterComponent("cache-pool")

	statusTracker := status.NewTracker(status.TrackerConfig{HealthTracker: healthTracker})

	recoveryCfg := recovery.DefaultRecoveryConfig()
	recoveryCfg.StatusTracker = statusTracker

	return &Pool{
		tasks:         make(chan func(), queueSize),
		stopCh:        make(chan struct{}),
		recoveryMgr:   recovery.NewRecoveryManager(recoveryCfg),
		healthTracker: healthTracker,
		logger:        slog.Default().With("component", "cache-pool"),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	workers := cap(p.tasks)
	if workers > defaultPoolWorkers {
		workers = defaultPoolWorkers
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case fn := <-p.tasks:
			p.runSafely(fn)
		}
	}
}

// Submit enqueues fn for background execution. If the queue is full,
// Submit still does not block the caller: it logs and runs fn on a
// transient goroutine instead, preserving the fire-and-forget contract.
func (p *Pool) Submit(fn func()) {
	select {
	case p.tasks <- fn:
	default:
		p.logger.Warn("pool queue full, running task on transient goroutine")
		go p.runSafely(fn)
	}
}

func (p *Pool) runSafely(fn func()) {
	var panicked interface{}

	_ = p.recoveryMgr.Execute(context.Background(), "cache-pool", "task", func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				panicked = r
				p.logger.Error("cache pool task panicked", "recover", r)
			}
		}()
		fn()
		return nil
	})

	if panicked != nil {
		p.healthTracker.RecordError("cache-pool", fmt.Errorf("task panicked: %v", panicked))
		return
	}
	p.healthTracker.RecordSuccess("cache-pool")
}

// Shutdown stops accepting new work on worker goroutines and waits for
// in-flight tasks to finish. Already-running transient goroutines spawned
// by a full queue are not waited on.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}
