package main

import (
	"flag"
	"log"

	"github.com/mspfin/billing-engine/internal/config"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/postgres"
	_ "github.com/lib/pq"
)

func main() {
	down := flag.Bool("down", false, "Roll back every migration instead of applying them")
	version := flag.Bool("version", false, "Print the current schema version and exit")
	flag.Parse()

	if err := config.LoadEnvFiles(); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host, "dbname", cfg.Postgres.DBName)
	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	switch {
	case *version:
		m, err := postgres.NewMigrator(db)
		if err != nil {
			logger.Fatalw("Failed to open migrator", "error", err)
		}
		v, dirty, err := m.Version()
		if err != nil {
			logger.Fatalw("Failed to read schema version", "error", err)
		}
		logger.Infow("Schema version", "version", v, "dirty", dirty)
	case *down:
		logger.Info("Rolling back database migrations...")
		if err := postgres.MigrateDown(db); err != nil {
			logger.Fatalw("Failed to roll back migrations", "error", err)
		}
		logger.Info("Rollback completed successfully")
	default:
		logger.Info("Running database migrations...")
		if err := postgres.MigrateUp(db); err != nil {
			logger.Fatalw("Failed to apply migrations", "error", err)
		}
		logger.Info("Migration completed successfully")
	}
}
