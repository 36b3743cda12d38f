package metrics

import (
	"net/http"
	"time"

	"github.com/clinicsync/admissions/pkg/common/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "admissions"

var (
	registry = prometheus.NewRegistry()

	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "runs_total",
		Help:      "Reconciliation runs by outcome.",
	}, []string{"outcome"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "run_duration_seconds",
		Help:      "Wall time of reconciliation runs.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	lastRunSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "last_run_success",
		Help:      "1 when the latest run committed.",
	})

	lastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the latest run finished.",
	})

	lastRecordsSeen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "last_records_seen",
		Help:      "Source records examined by the latest run.",
	})

	lastEntities = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "last_entities",
		Help:      "Entities created or skipped by the latest run.",
	}, []string{"entity", "action"})

	lastRecordDiagnostics = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "last_record_diagnostics",
		Help:      "Record diagnostics returned by the latest run.",
	})

	skippedTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "skipped_ticks_total",
		Help:      "Scheduled ticks skipped because a run was still executing.",
	})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		runsTotal,
		runDuration,
		lastRunSuccess,
		lastRunTimestamp,
		lastRecordsSeen,
		lastEntities,
		lastRecordDiagnostics,
		skippedTicks,
	)
}

// ObserveRun records the outcome of one reconciliation run. result may be nil
// when the run failed before the engine produced one.
func ObserveRun(result *models.ReconciliationResult, err error, duration time.Duration) {
	runDuration.Observe(duration.Seconds())
	lastRunTimestamp.Set(float64(time.Now().Unix()))

	if err != nil || result == nil || !result.Success {
		runsTotal.WithLabelValues("failed").Inc()
		lastRunSuccess.Set(0)
	} else {
		runsTotal.WithLabelValues("committed").Inc()
		lastRunSuccess.Set(1)
	}
	if result == nil {
		return
	}
	lastRecordsSeen.Set(float64(result.RecordsSeen))
	lastEntities.WithLabelValues("patient", "created").Set(float64(result.Patients.Created))
	lastEntities.WithLabelValues("patient", "skipped").Set(float64(result.Patients.Skipped))
	lastEntities.WithLabelValues("encounter", "created").Set(float64(result.Encounters.Created))
	lastEntities.WithLabelValues("encounter", "skipped").Set(float64(result.Encounters.Skipped))
	lastEntities.WithLabelValues("company", "repaired").Set(float64(result.CompaniesRepaired))
	lastRecordDiagnostics.Set(float64(len(result.Errors)))
}

func ObserveSkippedTick() {
	skippedTicks.Inc()
}

// Handler serves the service registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
