package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/clinicsync/admissions/pkg/common/config"
	"github.com/clinicsync/admissions/pkg/common/logger"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenLocal connects to the local operational store selected by LOCAL_DB_DRIVER.
func OpenLocal(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.LocalDBDriver) {
	case "postgres", "postgresql":
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.LocalDBHost,
			cfg.LocalDBUser,
			cfg.LocalDBPassword,
			cfg.LocalDBName,
			cfg.LocalDBPort,
			cfg.LocalDBSSLMode,
		)
		dialector = postgres.Open(dsn)
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=Local",
			cfg.LocalDBUser,
			cfg.LocalDBPassword,
			cfg.LocalDBHost,
			cfg.LocalDBPort,
			cfg.LocalDBName,
		)
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported LOCAL_DB_DRIVER %q", cfg.LocalDBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(logger.Log, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		logger.Log.WithError(err).WithField("driver", cfg.LocalDBDriver).Error("Failed to connect to local store")
		return nil, err
	}

	logger.Log.WithField("driver", cfg.LocalDBDriver).Info("Connected to local store")
	return db, nil
}

func CloseLocal(db *gorm.DB) error {
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
