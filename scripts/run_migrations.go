package main

import (
	"context"
	"log"
	"os"

	"github.com/safar/tapcart/internal/config"
	"github.com/safar/tapcart/internal/database"
	"github.com/safar/tapcart/migrations"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := database.Direction(os.Args[1])
	if direction != database.Up && direction != database.Down {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	applied, err := database.Migrate(context.Background(), db, migrations.FS, direction)
	if err != nil {
		log.Fatalf("Migrate %s: %v", direction, err)
	}

	for _, v := range applied {
		log.Printf("Ran migration %s (%s)", v, direction)
	}
	log.Printf("Successfully ran %d migration(s) %s", len(applied), direction)
}
