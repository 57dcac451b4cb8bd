package config

import (
	"errors"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresDB holds sessions, turns, evaluations, scenarios, knowledge,
// progress and challenges.
var PostgresDB *gorm.DB

// InitPostgres opens the pool. SQL logging goes through l at GORM_LOG_LEVEL;
// a nil l keeps gorm's default writer.
func InitPostgres(l *logrus.Logger) error {
	uri := os.Getenv("POSTGRES_URI")
	if uri == "" {
		return errors.New("POSTGRES_URI environment variable is not set")
	}

	db, err := gorm.Open(postgres.Open(uri), &gorm.Config{
		Logger:  GormLogger(l, os.Getenv("GORM_LOG_LEVEL")),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(getEnvInt("POSTGRES_MAX_IDLE", 10))
	sqlDB.SetMaxOpenConns(getEnvInt("POSTGRES_MAX_OPEN", 50))
	sqlDB.SetConnMaxLifetime(getEnvDuration("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute))
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	PostgresDB = db
	return nil
}

func GormLogger(l *logrus.Logger, level string) logger.Interface {
	if l == nil {
		return logger.Default.LogMode(gormLogLevel(level))
	}
	return logger.New(l, logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  gormLogLevel(level),
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	})
}

func ClosePostgres() error {
	if PostgresDB == nil {
		return nil
	}
	sqlDB, err := PostgresDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func gormLogLevel(v string) logger.LogLevel {
	switch v {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}
