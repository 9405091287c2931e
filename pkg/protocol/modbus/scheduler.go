package modbus

import (
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"modbusgateway/pkg/runtime"
)

var _ runtime.Scheduler = (*Scheduler)(nil)

// Scheduler runs fixed delay tasks on their own goroutines until cancelled or shut down.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(ctx context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{ctx: ctx, cancel: cancel}
}

// ScheduleWithFixedDelay the first run starts immediately, the delay is measured from the end
// of one run to the start of the next, so runs of one task never overlap.
func (s *Scheduler) ScheduleWithFixedDelay(task func(), delay time.Duration) runtime.CancelFunc {
	ctx, cancel := context.WithCancel(s.ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		wait.UntilWithContext(ctx, func(context.Context) { task() }, delay)
	}()
	return runtime.CancelFunc(cancel)
}

func (s *Scheduler) Execute(task func()) {
	if s.ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		task()
	}()
}

// Shutdown cancels every task, in flight runs are not waited for.
func (s *Scheduler) Shutdown() {
	s.cancel()
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}
