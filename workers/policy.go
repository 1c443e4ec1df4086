package workers

import (
	"errors"
	"time"

	"github.com/cppla/winsome/utils"
)

// RejectionPolicy decides what happens to a task the pool could not take.
type RejectionPolicy interface {
	Rejected(task Task, p *Pool) error
}

// RetryPolicy retries the submission Attempts times, sleeping Wait in between,
// then runs the task on the calling goroutine. It never drops a task.
type RetryPolicy struct {
	Attempts int
	Wait     time.Duration
}

func (r RetryPolicy) Rejected(task Task, p *Pool) error {
	for i := 0; i < r.Attempts; i++ {
		time.Sleep(r.Wait)
		err := p.TrySubmit(task)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPoolClosed) {
			break
		}
	}
	utils.Sugar.Warnf("worker pool saturated after %d retries, running task on caller", r.Attempts)
	run(task)
	return nil
}

// CallerRunsPolicy runs the task on the calling goroutine right away.
type CallerRunsPolicy struct{}

func (CallerRunsPolicy) Rejected(task Task, _ *Pool) error {
	run(task)
	return nil
}

// DiscardPolicy drops the task and logs it.
type DiscardPolicy struct{}

func (DiscardPolicy) Rejected(Task, *Pool) error {
	utils.Sugar.Warn("worker pool saturated, task discarded")
	return nil
}

// AbortPolicy refuses the task with ErrRejected.
type AbortPolicy struct{}

func (AbortPolicy) Rejected(Task, *Pool) error {
	return ErrRejected
}
