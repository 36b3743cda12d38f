package runlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/clinicsync/admissions/pkg/common/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "runs.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := NewRepository(db)
	require.NoError(t, repo.AutoMigrate())
	return repo
}

var testWindow = models.Window{
	Start: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC),
}

func TestNewRunFromResult(t *testing.T) {
	started := time.Date(2025, 12, 2, 11, 0, 0, 0, time.UTC)
	result := &models.ReconciliationResult{
		Success:           true,
		RecordsSeen:       3,
		Patients:          models.EntityCounts{Created: 1, Skipped: 1},
		Encounters:        models.EntityCounts{Created: 2},
		CompaniesRepaired: 1,
		Errors:            []string{"record 3: missing natural id"},
	}

	run := NewRun(TriggerPreviousDay, testWindow, result, nil, started, started.Add(time.Second))
	assert.True(t, run.Success)
	assert.Equal(t, 2, run.EncountersCreated)
	assert.Equal(t, 1, run.CompaniesRepaired)
	assert.Equal(t, []string{"record 3: missing natural id"}, run.Diagnostics())
	assert.Empty(t, run.ErrorMessage)

	failed := NewRun(TriggerRange, testWindow, nil, errors.New("connect: refused"), started, started)
	assert.False(t, failed.Success)
	assert.Equal(t, "connect: refused", failed.ErrorMessage)
	assert.Empty(t, failed.Diagnostics())
}

func TestStoreLatestAndRecent(t *testing.T) {
	store := NewStore(newTestRepository(t), nil, 0)
	ctx := context.Background()

	_, err := store.Latest(ctx)
	assert.ErrorIs(t, err, ErrRunNotFound)

	base := time.Date(2025, 12, 2, 11, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		started := base.Add(time.Duration(i) * time.Hour)
		run := NewRun(TriggerPreviousDay, testWindow, &models.ReconciliationResult{Success: true, RecordsSeen: i}, nil, started, started)
		require.NoError(t, store.Record(ctx, run))
	}

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.RecordsSeen)

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 2, recent[0].RecordsSeen)
	assert.Equal(t, 1, recent[1].RecordsSeen)
}

func TestStoreFallsBackWhenCacheUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	store := NewStore(newTestRepository(t), client, time.Minute)
	ctx := context.Background()
	started := time.Date(2025, 12, 2, 11, 0, 0, 0, time.UTC)

	run := NewRun(TriggerRange, testWindow, &models.ReconciliationResult{Success: true, RecordsSeen: 7}, nil, started, started)
	require.NoError(t, store.Record(ctx, run))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, 7, latest.RecordsSeen)
}
