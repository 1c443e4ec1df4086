// Package workers runs request tasks on a bounded pool with a pluggable overload policy.
package workers

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cppla/winsome/utils"
)

// ErrRejected is returned when a task could not be scheduled.
var ErrRejected = errors.New("task rejected")

// ErrPoolClosed is returned by Submit once Shutdown started.
var ErrPoolClosed = errors.New("pool closed")

// Task is one unit of work.
type Task func()

// Options sizes a Pool.
type Options struct {
	CoreWorkers int
	MaxWorkers  int
	// KeepAlive is how long a worker above CoreWorkers waits idle before exiting.
	KeepAlive time.Duration
	QueueSize int
	Policy    RejectionPolicy
}

// Pool keeps CoreWorkers goroutines around, grows to MaxWorkers when the queue is full
// and hands everything else to its RejectionPolicy.
type Pool struct {
	opts  Options
	queue chan Task

	mu      sync.Mutex
	running int
	closed  bool
	wg      sync.WaitGroup
}

// New builds a pool. Zero values fall back to one worker, no queue and RetryPolicy defaults.
func New(opts Options) *Pool {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	if opts.CoreWorkers < 0 {
		opts.CoreWorkers = 0
	}
	if opts.CoreWorkers > opts.MaxWorkers {
		opts.CoreWorkers = opts.MaxWorkers
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = time.Second
	}
	if opts.Policy == nil {
		opts.Policy = RetryPolicy{Attempts: 5, Wait: 50 * time.Millisecond}
	}
	return &Pool{opts: opts, queue: make(chan Task, opts.QueueSize)}
}

// Submit schedules task without blocking on a saturated pool; saturation is resolved by the policy.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return nil
	}
	switch err := p.TrySubmit(task); {
	case err == nil:
		return nil
	case errors.Is(err, ErrPoolClosed):
		return err
	}
	return p.opts.Policy.Rejected(task, p)
}

// TrySubmit schedules task or returns ErrRejected when every worker is busy and the queue is full.
func (p *Pool) TrySubmit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if p.running < p.opts.CoreWorkers {
		p.spawnLocked(task, true)
		return nil
	}
	select {
	case p.queue <- task:
		if p.running == 0 {
			p.spawnLocked(nil, false)
		}
		return nil
	default:
	}
	if p.running < p.opts.MaxWorkers {
		p.spawnLocked(task, false)
		return nil
	}
	return ErrRejected
}

// Running returns the live worker count.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int {
	return len(p.queue)
}

// Shutdown stops accepting tasks and waits for queued and running ones until ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) spawnLocked(first Task, core bool) {
	p.running++
	p.wg.Add(1)
	go p.work(first, core)
}

func (p *Pool) work(task Task, core bool) {
	defer p.wg.Done()
	if task != nil {
		run(task)
	}

	var idle *time.Timer
	if !core {
		idle = time.NewTimer(p.opts.KeepAlive)
		defer idle.Stop()
	}
	for {
		if core {
			t, ok := <-p.queue
			if !ok {
				p.exit()
				return
			}
			run(t)
			continue
		}
		select {
		case t, ok := <-p.queue:
			if !ok {
				p.exit()
				return
			}
			run(t)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(p.opts.KeepAlive)
		case <-idle.C:
			p.exit()
			return
		}
	}
}

func (p *Pool) exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running--
	// a task queued while the last idle worker was leaving still needs a worker
	if p.running == 0 && !p.closed && len(p.queue) > 0 {
		p.spawnLocked(nil, false)
	}
}

// run executes a task, recovering and logging a panic so the worker survives.
func run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			utils.Sugar.Errorf("worker task panic: %v\n%s", r, debug.Stack())
		}
	}()
	task()
}
