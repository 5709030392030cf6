/*
scheduler.go - Daily rollover scheduler

PURPOSE:
  Fires the rollover once per day at a fixed local time, so that every
  user has a record for the new day before the serving line opens.

DESIGN:
  - Runs a background goroutine sleeping until the next firing time
  - Delegates to meal.Engine.RunRollover, which is idempotent: a
    restart that fires twice for the same day creates nothing on the
    second pass
  - RunNow triggers an immediate run (admin/testing)

CONFIGURATION:
  - Hour: local hour of day to fire (default: 0, i.e. midnight)
  - Enabled: whether the scheduler is active (default: true)

USAGE:
  scheduler := NewRolloverScheduler(engine)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - meal/rollover.go: The idempotent rollover itself
  - handlers.go: TriggerRollover endpoint (manual run)
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dinehall/meal-engine/meal"
)

// RolloverScheduler runs the daily rollover at a fixed local hour.
type RolloverScheduler struct {
	Engine  *meal.Engine
	Hour    int // local hour of day, 0-23
	Enabled bool

	stop chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
}

// NewRolloverScheduler creates a scheduler firing at local midnight.
func NewRolloverScheduler(engine *meal.Engine) *RolloverScheduler {
	return &RolloverScheduler{
		Engine:  engine,
		Hour:    0,
		Enabled: true,
		stop:    make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Rollover] Disabled, not starting")
		return
	}

	rs.wg.Add(1)
	go rs.run()

	log.Printf("[Rollover] Started, fires daily at %02d:00 local time (next: %v)",
		rs.Hour, rs.nextFiring(time.Now()))
}

// Stop stops the scheduler.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	close(rs.stop)
	rs.wg.Wait()
	log.Println("[Rollover] Stopped")
}

func (rs *RolloverScheduler) run() {
	defer rs.wg.Done()

	// Catch up immediately on start: a restart after the firing time
	// still rolls the day over (idempotent, so a double run is safe).
	rs.RunNow()

	for {
		timer := time.NewTimer(time.Until(rs.nextFiring(time.Now())))
		select {
		case <-timer.C:
			rs.RunNow()
		case <-rs.stop:
			timer.Stop()
			return
		}
	}
}

// RunNow triggers an immediate rollover for today.
func (rs *RolloverScheduler) RunNow() {
	ctx := context.Background()
	today := meal.Today()

	result, err := rs.Engine.RunRollover(ctx, today)
	if err != nil {
		log.Printf("[Rollover] %s: %d created, %d skipped, %d failed (first error: %v)",
			result.Day, result.Created, result.Skipped, result.Failed, err)
		return
	}
	log.Printf("[Rollover] %s: %d created, %d skipped", result.Day, result.Created, result.Skipped)
}

// nextFiring returns the next occurrence of the configured local hour
// strictly after now.
func (rs *RolloverScheduler) nextFiring(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), rs.Hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
