// Package scheduler runs indexing jobs one at a time on a single background
// goroutine: jobs never run concurrently with each other, and the scheduler
// never blocks the caller that submits one.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Job is a unit of work the scheduler runs exclusively: a scan, a prune
// pass, a refresh. Jobs receive the scheduler's run context so a shutdown
// can cancel a long-running scan.
type Job func(ctx context.Context) error

// Scheduler drains a queue of submitted jobs on a single worker goroutine.
type Scheduler struct {
	jobs   chan namedJob
	logger *log.Logger

	mu      sync.Mutex
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type namedJob struct {
	name string
	job  Job
	err  chan<- error
}

// New creates a Scheduler with the given submission queue depth. With a
// depth of 0, a Submit made while the worker is busy is handed off from a
// background goroutine; Submit itself does not block.
func New(queueDepth int, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		jobs:   make(chan namedJob, queueDepth),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Scheduler) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case nj, ok := <-s.jobs:
			if !ok {
				return
			}
			s.mu.Lock()
			s.running = true
			s.mu.Unlock()

			err := nj.job(s.ctx)
			if err != nil {
				s.logger.Printf("scheduler: job %q failed: %v", nj.name, err)
			}
			if nj.err != nil {
				nj.err <- err
				close(nj.err)
			}

			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}
}

// Submit enqueues a job to run once the worker is free, returning
// immediately. When the queue is full the enqueue moves to a goroutine so a
// running job can schedule follow-up work without deadlocking the worker;
// use SubmitWait to block for a job's result.
func (s *Scheduler) Submit(name string, job Job) {
	nj := namedJob{name: name, job: job}
	select {
	case s.jobs <- nj:
	case <-s.ctx.Done():
	default:
		go func() {
			select {
			case s.jobs <- nj:
			case <-s.ctx.Done():
			}
		}()
	}
}

// SubmitWait enqueues a job and blocks until it has run, returning its
// error.
func (s *Scheduler) SubmitWait(name string, job Job) error {
	errc := make(chan error, 1)
	select {
	case s.jobs <- namedJob{name: name, job: job, err: errc}:
	case <-s.ctx.Done():
		return fmt.Errorf("scheduler: stopped before %q could be submitted", name)
	}
	select {
	case err := <-errc:
		return err
	case <-s.ctx.Done():
		return fmt.Errorf("scheduler: stopped while %q was running", name)
	}
}

// Running reports whether a job is currently executing.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop cancels the run context and waits for the worker goroutine to exit.
// Any job mid-flight observes context cancellation; queued-but-unstarted
// jobs are dropped.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.done
}
