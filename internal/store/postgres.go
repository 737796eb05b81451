package store

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ridgeline-labs/review-orchestrator/internal/config"
	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
	"github.com/ridgeline-labs/review-orchestrator/internal/logger"
)

// Open connects to Postgres and auto-migrates the jobs table, mirroring the
// teacher's PostgresService.
func Open(cfg config.Config, log *logger.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresName,
	)

	stdGormLog := gormlogger.New(
		stdLogAdapter(),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Info("connecting to postgres", "host", cfg.PostgresHost, "db", cfg.PostgresName)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   stdGormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := db.AutoMigrate(&domain.Job{}, &domain.JobEvent{}); err != nil {
		return nil, fmt.Errorf("automigrate jobs tables: %w", err)
	}
	log.Info("jobs tables migrated")

	return db, nil
}

func stdLogAdapter() *log.Logger {
	return log.New(os.Stdout, "\r\n", log.LstdFlags)
}
