package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/smarttransit/seat-booking-core/internal/config"
	"github.com/smarttransit/seat-booking-core/internal/database"
)

// booking tables, children first
var tables = []string{
	"payment_sessions",
	"bookings",
	"seat_locks",
	"schedules",
}

func main() {
	var dbURLFlag string
	var keepSchedules bool
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&keepSchedules, "keep-schedules", false, "Clear bookings and locks but keep schedules")
	flag.Parse()

	// .env is optional; it keeps secrets off the command line
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	targets := tables
	if keepSchedules {
		targets = tables[:len(tables)-1]
	}

	fmt.Println("Connected to database. Truncating tables...")
	truncateSQL := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(targets, ", "))
	if _, err := db.Exec(truncateSQL); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}
	if keepSchedules {
		if _, err := db.Exec(`UPDATE schedules SET available_seats = total_seats, updated_at = NOW()`); err != nil {
			log.Fatalf("failed to reset seat counts: %v", err)
		}
	}

	fmt.Println("Booking data cleared.")

	fmt.Println("Post-clear row counts:")
	for _, t := range tables {
		var count int
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&count); err != nil {
			fmt.Printf("  %s: error: %v\n", t, err)
			continue
		}
		fmt.Printf("  %s: %d\n", t, count)
	}
}
