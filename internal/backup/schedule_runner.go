package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleRunner triggers backups on a cron schedule.
// It polls on a fixed interval and starts a run once the next run time has
// passed. A tick that lands while a run is still going is skipped.
type ScheduleRunner struct {
	manager  *Manager
	schedule string
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	nextRun time.Time
	wg      sync.WaitGroup
}

// NewScheduleRunner validates schedule and computes the first run time.
func NewScheduleRunner(manager *Manager, schedule string) (*ScheduleRunner, error) {
	sr := &ScheduleRunner{
		manager:  manager,
		schedule: schedule,
		interval: 30 * time.Second,
		now:      time.Now,
	}

	next, err := computeNextRun(schedule, sr.now())
	if err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}
	sr.nextRun = next
	return sr, nil
}

// NextRun returns the next time a backup is due.
func (sr *ScheduleRunner) NextRun() time.Time {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.nextRun
}

// Start polls until ctx is cancelled. It does not block.
func (sr *ScheduleRunner) Start(ctx context.Context) {
	log.Printf("[BackupSchedule] Next backup at %s", sr.NextRun().Format(time.RFC3339))

	ticker := time.NewTicker(sr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Printf("[BackupSchedule] Stopping schedule runner")
				return
			case <-ticker.C:
				sr.runDue(ctx, sr.now())
			}
		}
	}()
}

// Wait blocks until every run started by the runner has returned.
func (sr *ScheduleRunner) Wait() {
	sr.wg.Wait()
}

// runDue starts a run if now is at or past the next run time and reports
// whether it did.
func (sr *ScheduleRunner) runDue(ctx context.Context, now time.Time) bool {
	sr.mu.Lock()
	if now.Before(sr.nextRun) {
		sr.mu.Unlock()
		return false
	}

	next, err := computeNextRun(sr.schedule, now)
	if err != nil {
		sr.mu.Unlock()
		log.Printf("[BackupSchedule] Invalid schedule: %v", err)
		return false
	}
	sr.nextRun = next
	sr.mu.Unlock()

	sr.wg.Add(1)
	go func() {
		defer sr.wg.Done()
		sr.execute(ctx)
	}()
	return true
}

func (sr *ScheduleRunner) execute(ctx context.Context) {
	record, err := sr.manager.Run(ctx, TriggerScheduled)
	if errors.Is(err, ErrRunInProgress) {
		log.Printf("[BackupSchedule] Skipping scheduled backup: previous run still in progress")
		return
	}
	if err != nil {
		log.Printf("[BackupSchedule] Scheduled backup failed: %v", err)
		return
	}
	log.Printf("[BackupSchedule] Scheduled backup %s finished with status %s, next at %s",
		record.ID, record.Status, sr.NextRun().Format(time.RFC3339))
}

func computeNextRun(schedule string, from time.Time) (time.Time, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	parsed, err := parser.Parse(schedule)
	if err != nil {
		return time.Time{}, err
	}

	return parsed.Next(from), nil
}
