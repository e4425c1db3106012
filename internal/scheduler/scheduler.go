// Package scheduler runs periodic jobs for the live task loops.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// EntryID identifies a scheduled job
type EntryID int

// Scheduler adds and removes fixed-interval jobs. A job never overlaps itself: a
// tick that fires while the previous run is still executing is skipped.
type Scheduler interface {
	Every(interval time.Duration, name string, job func()) (EntryID, error)
	Remove(id EntryID)
}

// CronScheduler is a Scheduler backed by robfig/cron
type CronScheduler struct {
	cron   *cron.Cron
	logger *logrus.Logger

	mu        sync.RWMutex
	isRunning bool
	names     map[EntryID]string

	gracefulTimeout time.Duration
}

// NewCronScheduler creates a new scheduler. Jobs recover from panics and are skipped
// while a previous run of the same job is in flight.
func NewCronScheduler(logger *logrus.Logger) *CronScheduler {
	cronLogger := cron.PrintfLogger(logger)
	return &CronScheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger:          logger,
		names:           make(map[EntryID]string),
		gracefulTimeout: 30 * time.Second,
	}
}

// Every schedules job to run every interval, starting interval from now.
// Sub-second intervals are rounded up to one second.
func (s *CronScheduler) Every(interval time.Duration, name string, job func()) (EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", interval)
	}
	if job == nil {
		return 0, fmt.Errorf("job is required")
	}

	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(job))

	s.mu.Lock()
	s.names[EntryID(id)] = name
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"job":      name,
		"interval": interval.String(),
		"entry_id": int(id),
	}).Debug("Scheduled job")
	return EntryID(id), nil
}

// Remove unschedules a job. A run already in progress is not interrupted.
func (s *CronScheduler) Remove(id EntryID) {
	s.cron.Remove(cron.EntryID(id))

	s.mu.Lock()
	name := s.names[id]
	delete(s.names, id)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{"job": name, "entry_id": int(id)}).Debug("Removed job")
}

// Len returns the number of scheduled jobs
func (s *CronScheduler) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Start starts the scheduler
func (s *CronScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.Infof("Scheduler started with %d jobs", len(s.names))

	return nil
}

// Stop stops the scheduler and waits for running jobs, up to the graceful timeout
func (s *CronScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	done := s.cron.Stop().Done()
	s.isRunning = false
	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-time.After(s.gracefulTimeout):
		return fmt.Errorf("scheduler stop timed out after %s", s.gracefulTimeout)
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *CronScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
