package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"archean-status-relay/config"
	"archean-status-relay/internal/model"
)

// Init opens the database named by the DSN and runs migrations.
// postgres:// URLs and key=value DSNs select PostgreSQL, anything else is a SQLite path.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(dialector(cfg.DSN), &gorm.Config{
		Logger: newGormLogger(zerolog.GlobalLevel()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Info().Str("driver", db.Dialector.Name()).Msg("running database migrations")
	if err := db.AutoMigrate(
		&model.Reminder{},
		&model.StatisticRecord{},
		&model.PushSubscription{},
	); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	log.Info().Msg("database initialization complete")
	return db, nil
}

func dialector(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return postgres.Open(dsn)
	default:
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	}
}

// gormWriter forwards gorm's formatted log lines to zerolog at a fixed level.
type gormWriter struct {
	level zerolog.Level
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	log.WithLevel(w.level).Str("component", "gorm").Msgf(format, args...)
}

// gormLevels maps a zerolog level onto gorm's coarser levels, returning the
// gorm level and the zerolog level its lines are written at.
func gormLevels(level zerolog.Level) (logger.LogLevel, zerolog.Level) {
	switch {
	case level <= zerolog.DebugLevel:
		return logger.Info, zerolog.DebugLevel
	case level >= zerolog.ErrorLevel:
		return logger.Error, zerolog.ErrorLevel
	default:
		return logger.Warn, zerolog.WarnLevel
	}
}

func newGormLogger(level zerolog.Level) logger.Interface {
	gormLevel, writeLevel := gormLevels(level)
	return logger.New(gormWriter{level: writeLevel}, logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  gormLevel,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
