package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicsync/admissions/pkg/admissions"
	"github.com/clinicsync/admissions/pkg/batch"
	"github.com/clinicsync/admissions/pkg/common/config"
	"github.com/clinicsync/admissions/pkg/common/database"
	"github.com/clinicsync/admissions/pkg/common/kafka"
	"github.com/clinicsync/admissions/pkg/common/logger"
	"github.com/clinicsync/admissions/pkg/extraction"
	"github.com/clinicsync/admissions/pkg/gateway/middleware"
	"github.com/clinicsync/admissions/pkg/observability/metrics"
	"github.com/clinicsync/admissions/pkg/reconcile"
	"github.com/clinicsync/admissions/pkg/runlog"
	"github.com/clinicsync/admissions/pkg/scheduler"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.OpenLocal(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to local store")
	}
	defer database.CloseLocal(db)

	repo := admissions.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate admission tables")
	}
	runRepo := runlog.NewRepository(db)
	if err := runRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate run history")
	}

	policy, err := admissions.LoadPolicy(cfg.ReconcilePolicyFile)
	if err != nil {
		logger.Log.WithError(err).WithField("path", cfg.ReconcilePolicyFile).Fatal("failed to load reconciliation policy")
	}

	redisClient := database.NewRedis(cfg)
	defer database.CloseRedis(redisClient)
	runs := runlog.NewStore(runRepo, redisClient, cfg.RunCacheTTL)

	var events batch.EventPublisher
	if len(cfg.KafkaBrokers) > 0 && cfg.ReconcileEventsTopic != "" {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.ReconcileEventsTopic)
		defer producer.Close()
		events = producer
	}

	loc := cfg.Location()
	extractor := extraction.NewExtractor(extraction.ConfigSource(cfg), policy, loc)
	engine := reconcile.NewEngine(db, policy)
	controller := batch.NewController(extractor, engine, runs, events, loc)

	var sched *scheduler.Scheduler
	if cfg.SyncEnabled {
		sched = scheduler.New(func(ctx context.Context) error {
			_, err := controller.ReconcileForPreviousDay(ctx)
			return err
		}, cfg.SyncSchedule, loc)
		if err := sched.Start(); err != nil {
			logger.Log.WithError(err).Fatal("failed to start reconciliation scheduler")
		}
	} else {
		logger.Log.Warn("Scheduled reconciliation disabled")
	}

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RateLimit(1, 5), middleware.BodyLimit(cfg.MaxRequestBody))
	batch.NewHTTPHandler(controller, runs, cfg.MaxRequestBody).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(logrus.Fields{
			"host":     cfg.ServerHost,
			"port":     cfg.ServerPort,
			"timezone": loc.String(),
		}).Info("Admission Sync Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Admission Sync Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Log.WithError(err).Warn("scheduled reconciliation still running at shutdown")
		}
	}

	logger.Log.Info("Admission Sync Service stopped")
}
