package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clinicsync/admissions/pkg/common/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRunUpdatesGauges(t *testing.T) {
	committedBefore := testutil.ToFloat64(runsTotal.WithLabelValues("committed"))

	ObserveRun(&models.ReconciliationResult{
		Success:           true,
		RecordsSeen:       3,
		Patients:          models.EntityCounts{Created: 1, Skipped: 1},
		Encounters:        models.EntityCounts{Created: 2},
		CompaniesRepaired: 1,
		Errors:            []string{"record 3: missing natural id"},
	}, nil, 1500*time.Millisecond)

	assert.Equal(t, committedBefore+1, testutil.ToFloat64(runsTotal.WithLabelValues("committed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(lastRunSuccess))
	assert.Equal(t, float64(3), testutil.ToFloat64(lastRecordsSeen))
	assert.Equal(t, float64(2), testutil.ToFloat64(lastEntities.WithLabelValues("encounter", "created")))
	assert.Equal(t, float64(1), testutil.ToFloat64(lastEntities.WithLabelValues("company", "repaired")))
	assert.Equal(t, float64(1), testutil.ToFloat64(lastRecordDiagnostics))

	failedBefore := testutil.ToFloat64(runsTotal.WithLabelValues("failed"))
	ObserveRun(nil, errors.New("source unreachable"), time.Second)
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(runsTotal.WithLabelValues("failed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(lastRunSuccess))
	assert.Equal(t, float64(3), testutil.ToFloat64(lastRecordsSeen))
}

func TestHandlerExposesRegistry(t *testing.T) {
	ObserveSkippedTick()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "admissions_scheduler_skipped_ticks_total")
	assert.Contains(t, body, "admissions_reconcile_run_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines")
}
