package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinicsync/admissions/pkg/admissions"
	"github.com/clinicsync/admissions/pkg/common/models"
	"github.com/clinicsync/admissions/pkg/extraction"
	"github.com/clinicsync/admissions/pkg/runlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	windows []models.Window
	records []admissions.Record
	err     error
}

func (f *fakeExtractor) Extract(ctx context.Context, window models.Window) ([]admissions.Record, error) {
	f.windows = append(f.windows, window)
	return f.records, f.err
}

type fakeEngine struct {
	calls  int
	result *models.ReconciliationResult
	err    error
}

func (f *fakeEngine) Reconcile(ctx context.Context, records []admissions.Record) (*models.ReconciliationResult, error) {
	f.calls++
	if f.result == nil {
		return &models.ReconciliationResult{Success: true, RecordsSeen: len(records), Errors: []string{}}, f.err
	}
	copied := *f.result
	return &copied, f.err
}

type fakeRecorder struct {
	runs []*runlog.Run
	err  error
}

func (f *fakeRecorder) Record(ctx context.Context, run *runlog.Run) error {
	f.runs = append(f.runs, run)
	return f.err
}

type fakePublisher struct {
	events []map[string]interface{}
	err    error
	block  bool
}

func (f *fakePublisher) PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error {
	f.events = append(f.events, data)
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func bogota(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Bogota")
	if err != nil {
		return time.FixedZone("COT", -5*60*60)
	}
	return loc
}

func newTestController(t *testing.T, extractor *fakeExtractor, engine *fakeEngine) (*Controller, *fakeRecorder, *fakePublisher) {
	recorder := &fakeRecorder{}
	publisher := &fakePublisher{}
	c := NewController(extractor, engine, recorder, publisher, bogota(t))
	c.now = func() time.Time { return time.Date(2025, 12, 2, 11, 0, 0, 0, c.loc) }
	return c, recorder, publisher
}

func TestReconcileForPreviousDayWindow(t *testing.T) {
	extractor := &fakeExtractor{records: make([]admissions.Record, 3)}
	engine := &fakeEngine{}
	c, recorder, publisher := newTestController(t, extractor, engine)

	result, err := c.ReconcileForPreviousDay(context.Background())
	require.NoError(t, err)

	require.Len(t, extractor.windows, 1)
	window := extractor.windows[0]
	assert.True(t, window.Start.Equal(time.Date(2025, 12, 1, 0, 0, 0, 0, c.loc)))
	assert.True(t, window.End.Equal(time.Date(2025, 12, 2, 0, 0, 0, 0, c.loc)))
	assert.Nil(t, result.Window)
	assert.Equal(t, 3, result.RecordsSeen)

	require.Len(t, recorder.runs, 1)
	assert.Equal(t, runlog.TriggerPreviousDay, recorder.runs[0].Trigger)
	assert.True(t, recorder.runs[0].Success)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, runlog.TriggerPreviousDay, publisher.events[0]["trigger"])
}

func TestReconcileForPreviousDayUsesSourceZone(t *testing.T) {
	extractor := &fakeExtractor{}
	c, _, _ := newTestController(t, extractor, &fakeEngine{})
	// 02:00 UTC on the 2nd is still the 1st in Bogota.
	c.now = func() time.Time { return time.Date(2025, 12, 2, 2, 0, 0, 0, time.UTC) }

	_, err := c.ReconcileForPreviousDay(context.Background())
	require.NoError(t, err)
	assert.True(t, extractor.windows[0].Start.Equal(time.Date(2025, 11, 30, 0, 0, 0, 0, c.loc)))
	assert.True(t, extractor.windows[0].End.Equal(time.Date(2025, 12, 1, 0, 0, 0, 0, c.loc)))
}

func TestReconcileForDateRange(t *testing.T) {
	extractor := &fakeExtractor{}
	c, recorder, _ := newTestController(t, extractor, &fakeEngine{})
	start := time.Date(2025, 11, 28, 15, 30, 0, 0, c.loc)
	end := time.Date(2025, 11, 30, 0, 0, 0, 0, c.loc)

	result, err := c.ReconcileForDateRange(context.Background(), start, end)
	require.NoError(t, err)

	expected := models.Window{
		Start: time.Date(2025, 11, 28, 0, 0, 0, 0, c.loc),
		End:   time.Date(2025, 12, 1, 0, 0, 0, 0, c.loc),
	}
	require.NotNil(t, result.Window)
	assert.True(t, result.Window.Start.Equal(expected.Start))
	assert.True(t, result.Window.End.Equal(expected.End))
	assert.True(t, extractor.windows[0].End.Equal(expected.End))
	assert.Equal(t, runlog.TriggerRange, recorder.runs[0].Trigger)
}

func TestReconcileForDateRangeSingleDay(t *testing.T) {
	extractor := &fakeExtractor{}
	c, _, _ := newTestController(t, extractor, &fakeEngine{})
	day := time.Date(2025, 11, 28, 0, 0, 0, 0, c.loc)

	_, err := c.ReconcileForDateRange(context.Background(), day, day)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, extractor.windows[0].End.Sub(extractor.windows[0].Start))
}

func TestReconcileForDateRangeRejectsInvertedRange(t *testing.T) {
	extractor := &fakeExtractor{}
	engine := &fakeEngine{}
	c, recorder, publisher := newTestController(t, extractor, engine)

	result, err := c.ReconcileForDateRange(context.Background(),
		time.Date(2025, 12, 2, 0, 0, 0, 0, c.loc),
		time.Date(2025, 12, 1, 0, 0, 0, 0, c.loc))

	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Nil(t, result)
	assert.Empty(t, extractor.windows)
	assert.Zero(t, engine.calls)
	assert.Empty(t, recorder.runs)
	assert.Empty(t, publisher.events)
}

func TestExtractionFailurePropagates(t *testing.T) {
	extractor := &fakeExtractor{err: extraction.ConnectionError{Op: "connect", Target: "sqlserver://db:1433"}}
	engine := &fakeEngine{}
	c, recorder, publisher := newTestController(t, extractor, engine)

	result, err := c.ReconcileForPreviousDay(context.Background())
	assert.Nil(t, result)
	assert.True(t, extraction.IsConnectionError(err))
	assert.Zero(t, engine.calls)

	require.Len(t, recorder.runs, 1)
	assert.False(t, recorder.runs[0].Success)
	assert.Contains(t, recorder.runs[0].ErrorMessage, "connect")
	require.Len(t, publisher.events, 1)
	assert.Equal(t, false, publisher.events[0]["success"])
}

func TestSideEffectFailuresDoNotChangeResult(t *testing.T) {
	extractor := &fakeExtractor{records: make([]admissions.Record, 2)}
	c, recorder, publisher := newTestController(t, extractor, &fakeEngine{})
	recorder.err = errors.New("history table locked")
	publisher.err = errors.New("broker down")

	result, err := c.ReconcileForPreviousDay(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.RecordsSeen)
}

func TestControllerWithoutOptionalCollaborators(t *testing.T) {
	c := NewController(&fakeExtractor{}, &fakeEngine{}, nil, nil, nil)
	assert.Equal(t, time.Local, c.Location())

	result, err := c.ReconcileForPreviousDay(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestStalledBrokerDoesNotHoldRun(t *testing.T) {
	c, _, publisher := newTestController(t, &fakeExtractor{}, &fakeEngine{})
	publisher.block = true
	c.publishTimeout = 50 * time.Millisecond

	start := time.Now()
	result, err := c.ReconcileForPreviousDay(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, publisher.events, 1)
}
