package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicsync/admissions/pkg/admissions"
	"github.com/clinicsync/admissions/pkg/common/logger"
	"github.com/clinicsync/admissions/pkg/common/models"
	"github.com/clinicsync/admissions/pkg/observability/metrics"
	"github.com/clinicsync/admissions/pkg/runlog"
	"github.com/sirupsen/logrus"
)

const (
	eventSource           = "admissions-sync"
	defaultPublishTimeout = 5 * time.Second
)

type Extractor interface {
	Extract(ctx context.Context, window models.Window) ([]admissions.Record, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, records []admissions.Record) (*models.ReconciliationResult, error)
}

type RunRecorder interface {
	Record(ctx context.Context, run *runlog.Run) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Controller turns calendar requests into windows and runs extraction
// followed by reconciliation. Concurrent calls are not serialised.
type Controller struct {
	extractor Extractor
	engine    Reconciler
	runs      RunRecorder
	events    EventPublisher
	loc       *time.Location
	now       func() time.Time

	publishTimeout time.Duration
}

// NewController wires the pipeline. runs and events may be nil.
func NewController(extractor Extractor, engine Reconciler, runs RunRecorder, events EventPublisher, loc *time.Location) *Controller {
	if loc == nil {
		loc = time.Local
	}
	return &Controller{
		extractor: extractor,
		engine:    engine,
		runs:      runs,
		events:    events,
		loc:       loc,
		now:       time.Now,

		publishTimeout: defaultPublishTimeout,
	}
}

func (c *Controller) Location() *time.Location {
	return c.loc
}

// ReconcileForPreviousDay covers [yesterday 00:00, today 00:00) in the
// source time zone. The returned result carries no window.
func (c *Controller) ReconcileForPreviousDay(ctx context.Context) (*models.ReconciliationResult, error) {
	today := midnight(c.now().In(c.loc), c.loc)
	window := models.Window{Start: today.AddDate(0, 0, -1), End: today}
	return c.run(ctx, runlog.TriggerPreviousDay, window, false)
}

// ReconcileForDateRange covers every calendar day from start to end
// inclusive. Only the date part of start and end is used.
func (c *Controller) ReconcileForDateRange(ctx context.Context, start, end time.Time) (*models.ReconciliationResult, error) {
	startDay := midnight(start, c.loc)
	endDay := midnight(end, c.loc)
	if startDay.After(endDay) {
		return nil, ValidationError{reason: fmt.Errorf("start date %s is after end date %s",
			startDay.Format(dateLayout), endDay.Format(dateLayout))}
	}
	window := models.Window{Start: startDay, End: endDay.AddDate(0, 0, 1)}
	return c.run(ctx, runlog.TriggerRange, window, true)
}

func (c *Controller) run(ctx context.Context, trigger string, window models.Window, includeWindow bool) (*models.ReconciliationResult, error) {
	startedAt := c.now()
	log := logger.Log.WithFields(logrus.Fields{
		"trigger":      trigger,
		"window_start": window.Start.Format(time.RFC3339),
		"window_end":   window.End.Format(time.RFC3339),
	})
	log.Info("Reconciliation run started")

	records, err := c.extractor.Extract(ctx, window)
	if err != nil {
		log.WithError(err).Error("Admission extraction failed")
		c.finish(ctx, trigger, window, nil, err, startedAt)
		return nil, err
	}
	log.WithField("records", len(records)).Info("Admissions extracted")

	result, err := c.engine.Reconcile(ctx, records)
	if result != nil && includeWindow {
		w := window
		result.Window = &w
	}
	if err != nil {
		log.WithError(err).Error("Reconciliation failed")
	}
	c.finish(ctx, trigger, window, result, err, startedAt)
	return result, err
}

// finish records side effects of a run. None of them affect the caller.
func (c *Controller) finish(ctx context.Context, trigger string, window models.Window, result *models.ReconciliationResult, runErr error, startedAt time.Time) {
	finishedAt := c.now()
	metrics.ObserveRun(result, runErr, finishedAt.Sub(startedAt))

	run := runlog.NewRun(trigger, window, result, runErr, startedAt, finishedAt)
	if c.runs != nil {
		if err := c.runs.Record(ctx, run); err != nil {
			logger.Log.WithError(err).WithField("run_id", run.ID).Warn("Failed to record reconciliation run")
		}
	}

	if c.events == nil {
		return
	}
	data := map[string]interface{}{
		"run_id":             run.ID.String(),
		"trigger":            trigger,
		"window_start":       window.Start.Format(time.RFC3339),
		"window_end":         window.End.Format(time.RFC3339),
		"success":            run.Success,
		"records_seen":       run.RecordsSeen,
		"patients_created":   run.PatientsCreated,
		"encounters_created": run.EncountersCreated,
		"companies_repaired": run.CompaniesRepaired,
	}
	if runErr != nil {
		data["error"] = runErr.Error()
	}
	publishCtx, cancel := context.WithTimeout(ctx, c.publishTimeout)
	defer cancel()
	if err := c.events.PublishEvent(publishCtx, "reconciliation", eventSource, data); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.WithError(err).WithField("run_id", run.ID).Warn("Failed to publish reconciliation event")
	}
}

const dateLayout = "2006-01-02"

// midnight keeps the calendar date of t as written and places it at 00:00
// in loc.
func midnight(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
