/*
scheduler.go - Fixed-interval job runner

PURPOSE:
  Runs one batch job (heartbeat, notification poller, trial reminder
  poller) on its own fixed schedule in a background goroutine. Jobs are
  idempotent per run, so overlapping schedules and restarts are safe;
  none of them are cancellable mid-run beyond context cancellation
  between items.

USAGE:
  runner := jobs.NewRunner("heartbeat", time.Hour, heartbeat.Run)
  runner.Start()
  // ... later
  runner.Stop()
*/
package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Runner executes a job function on a fixed interval, starting with an
// immediate run.
type Runner struct {
	Name     string
	Interval time.Duration
	RunFunc  func(ctx context.Context) error

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewRunner(name string, interval time.Duration, run func(ctx context.Context) error) *Runner {
	return &Runner{
		Name:     name,
		Interval: interval,
		RunFunc:  run,
		stop:     make(chan struct{}),
	}
}

// Start begins the schedule.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ticker = time.NewTicker(r.Interval)
	r.wg.Add(1)
	go r.loop()

	log.Printf("[%s] started with interval %v", r.Name, r.Interval)
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ticker != nil {
		r.ticker.Stop()
		close(r.stop)
		r.wg.Wait()
		log.Printf("[%s] stopped", r.Name)
	}
}

// RunNow triggers an immediate run (for admin endpoints and tests).
func (r *Runner) RunNow() {
	r.runOnce()
}

func (r *Runner) loop() {
	defer r.wg.Done()

	r.runOnce()
	for {
		select {
		case <-r.ticker.C:
			r.runOnce()
		case <-r.stop:
			return
		}
	}
}

func (r *Runner) runOnce() {
	if err := r.RunFunc(context.Background()); err != nil {
		log.Printf("[%s] run failed: %v", r.Name, err)
	}
}
