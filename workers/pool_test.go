package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := New(Options{CoreWorkers: 2, MaxWorkers: 4, QueueSize: 8, KeepAlive: 50 * time.Millisecond})
	var n int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			atomic.AddInt32(&n, 1)
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	wg.Wait()
	if got := atomic.LoadInt32(&n); got != 100 {
		t.Fatalf("expected 100 tasks, got %d", got)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestPoolGrowsUpToMaxThenRejects(t *testing.T) {
	p := New(Options{CoreWorkers: 1, MaxWorkers: 2, QueueSize: 1, Policy: AbortPolicy{}})
	release := make(chan struct{})
	block := func() { <-release }

	for i := 0; i < 3; i++ {
		if err := p.Submit(block); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if got := p.Running(); got != 2 {
		t.Fatalf("expected 2 workers, got %d", got)
	}
	if err := p.Submit(block); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	close(release)
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestRetryPolicyFallsBackToCaller(t *testing.T) {
	p := New(Options{CoreWorkers: 1, MaxWorkers: 1, QueueSize: 0, Policy: RetryPolicy{Attempts: 2, Wait: time.Millisecond}})
	release := make(chan struct{})
	if err := p.Submit(func() { <-release }); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ran := false
	if err := p.Submit(func() { ran = true }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// the saturated pool ran it synchronously on this goroutine
	if !ran {
		t.Fatalf("expected task to run on caller")
	}
	close(release)
	_ = p.Shutdown(context.Background())
}

func TestRetryPolicySucceedsWhenWorkerFrees(t *testing.T) {
	p := New(Options{CoreWorkers: 1, MaxWorkers: 1, QueueSize: 0, Policy: RetryPolicy{Attempts: 50, Wait: 5 * time.Millisecond}})
	release := make(chan struct{})
	if err := p.Submit(func() { <-release }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	done := make(chan struct{})
	if err := p.Submit(func() { close(done) }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task never ran")
	}
	_ = p.Shutdown(context.Background())
}

func TestDiscardPolicyDropsTask(t *testing.T) {
	p := New(Options{CoreWorkers: 1, MaxWorkers: 1, QueueSize: 0, Policy: DiscardPolicy{}})
	release := make(chan struct{})
	_ = p.Submit(func() { <-release })

	var ran int32
	if err := p.Submit(func() { atomic.StoreInt32(&ran, 1) }); err != nil {
		t.Fatalf("discard should not fail: %v", err)
	}
	close(release)
	_ = p.Shutdown(context.Background())
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatalf("discarded task ran")
	}
}

func TestIdleWorkersAboveCoreExit(t *testing.T) {
	p := New(Options{CoreWorkers: 0, MaxWorkers: 3, QueueSize: 0, KeepAlive: 10 * time.Millisecond})
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		_ = p.Submit(func() {
			defer wg.Done()
			time.Sleep(5 * time.Millisecond)
		})
	}
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for p.Running() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected idle workers to exit, %d still running", p.Running())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestQueuedTaskRunsWithoutCoreWorkers(t *testing.T) {
	p := New(Options{CoreWorkers: 0, MaxWorkers: 1, QueueSize: 4, KeepAlive: 10 * time.Millisecond})
	done := make(chan struct{})
	if err := p.Submit(func() { close(done) }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("queued task never ran")
	}
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	p := New(Options{CoreWorkers: 1, MaxWorkers: 1, QueueSize: 4})
	_ = p.Submit(func() { panic("boom") })
	done := make(chan struct{})
	_ = p.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker died after panic")
	}
	_ = p.Shutdown(context.Background())
}

func TestShutdownRejectsAndDrains(t *testing.T) {
	p := New(Options{CoreWorkers: 1, MaxWorkers: 1, QueueSize: 4})
	var n int32
	for i := 0; i < 4; i++ {
		_ = p.Submit(func() {
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&n, 1)
		})
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := atomic.LoadInt32(&n); got != 4 {
		t.Fatalf("expected queued tasks to drain, ran %d", got)
	}
	if err := p.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestShutdownHonorsContext(t *testing.T) {
	p := New(Options{CoreWorkers: 1, MaxWorkers: 1})
	release := make(chan struct{})
	defer close(release)
	_ = p.Submit(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
