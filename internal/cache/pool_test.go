package cache

import (
	"sync"
	"testing"
	"time"
)

func TestPoolSubmitRunsTask(t *testing.T) {
	p := NewPool(PoolConfig{})
	p.Start()
	defer p.Shutdown()

	done := make(chan struct{})
	p.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted task did not run")
	}
}

func TestPoolRecoversPanickingTask(t *testing.T) {
	p := NewPool(PoolConfig{})
	p.Start()
	defer p.Shutdown()

	done := make(chan struct{})
	p.Submit(func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panicking task blocked the pool")
	}

	// A subsequent task must still run: a panic must not take down a worker.
	ran := make(chan struct{})
	p.Submit(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("pool stopped accepting work after a panicking task")
	}
}

func TestPoolQueueFullFallsBackToTransientGoroutine(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 1, QueueSize: 1})
	// Do not Start: with no workers draining, the bounded queue fills and
	// Submit must still run fn rather than blocking the caller.
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		p.Submit(func() { wg.Done() })
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit() blocked or dropped work when the queue was full")
	}
}

func TestPoolShutdownWaitsForStartedWorkers(t *testing.T) {
	p := NewPool(PoolConfig{})
	p.Start()

	var ran bool
	var mu sync.Mutex
	p.Submit(func() {
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		ran = true
		mu.Unlock()
	})

	p.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if !ran {
		t.Error("Shutdown returned before an in-flight task completed")
	}
}

func TestPoolShutdownWithoutStartIsSafe(t *testing.T) {
	p := NewPool(PoolConfig{})
	p.Shutdown()
}
