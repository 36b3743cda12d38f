package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clinicsync/admissions/pkg/common/logger"
	"github.com/clinicsync/admissions/pkg/observability/metrics"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is the unit of work fired on every tick.
type Job func(ctx context.Context) error

var ErrAlreadyStarted = errors.New("scheduler already started")

// Scheduler fires a Job on a cron spec in a fixed time zone. A tick that
// arrives while the previous run is still executing is skipped. Failed runs
// are logged and never retried.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	job     Job
	mu      sync.Mutex
	entry   cron.EntryID
	started bool
}

func New(job Job, spec string, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	log := cronLogger{entry: logger.WithField("component", "scheduler")}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(log),
			cron.WithChain(cron.SkipIfStillRunning(log)),
		),
		spec: spec,
		job:  job,
	}
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	id, err := s.cron.AddFunc(s.spec, s.tick)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}
	s.entry = id
	s.started = true
	s.cron.Start()

	logger.Log.WithFields(logrus.Fields{
		"schedule": s.spec,
		"next_run": s.cron.Entry(id).Next.Format(time.RFC3339),
	}).Info("Reconciliation scheduler started")
	return nil
}

// Stop prevents further ticks and waits for a running job until ctx ends.
// The scheduler may be started again afterwards.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cron.Remove(s.entry)
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		logger.Log.Info("Reconciliation scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next planned tick, zero when not started.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) tick() {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Log.WithField("panic", r).Error("Scheduled reconciliation panicked")
		}
	}()

	if err := s.job(context.Background()); err != nil {
		logger.Log.WithError(err).WithField("duration_ms", time.Since(start).Milliseconds()).
			Error("Scheduled reconciliation failed")
		return
	}
	logger.Log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Scheduled reconciliation finished")
}

// cronLogger routes cron's internal logging to logrus.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		metrics.ObserveSkippedTick()
		l.entry.WithFields(fields(keysAndValues)).Warn("Scheduled tick skipped, previous run still executing")
		return
	}
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	out := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
