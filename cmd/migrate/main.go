package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/config"
	"github.com/smarttransit/seat-booking-core/internal/database"
	"github.com/smarttransit/seat-booking-core/internal/database/migrations"
)

const usage = `Usage: migrate [-database-url URL] <command>

Commands:
  up             apply all pending migrations
  down           roll back all migrations
  version        print the current schema version
  force VERSION  mark VERSION as applied after a manual fix
`

func main() {
	var dbURL string
	flag.StringVar(&dbURL, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	if dbURL == "" {
		cfg, err := config.Load()
		if err != nil {
			logger.Fatalf("Failed to load configuration: %v", err)
		}
		dbURL = cfg.Database.URL
	}

	db, err := database.NewConnection(config.DatabaseConfig{URL: dbURL, MaxConnections: 2, MaxIdleConnections: 1})
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	runner := migrations.NewRunner(db.DB.DB, logger)
	defer runner.Close()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		if err := runner.MigrateUp(); err != nil {
			logger.Fatalf("Migration failed: %v", err)
		}
	case "down":
		if err := runner.MigrateDown(); err != nil {
			logger.Fatalf("Rollback failed: %v", err)
		}
		logger.Info("All migrations rolled back")
	case "version":
		version, dirty, err := runner.Version()
		if err != nil {
			logger.Fatalf("Failed to read version: %v", err)
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
	case "force":
		if flag.NArg() < 2 {
			logger.Fatal("force requires a version")
		}
		v, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			logger.Fatalf("Invalid version %q: %v", flag.Arg(1), err)
		}
		if err := runner.Force(v); err != nil {
			logger.Fatalf("Force failed: %v", err)
		}
		logger.WithField("version", v).Info("Schema version forced")
	default:
		logger.Errorf("Unknown command %q", cmd)
		flag.Usage()
		os.Exit(2)
	}
}
