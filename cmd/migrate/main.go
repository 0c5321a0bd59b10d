package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-payment-verification/internal/config"
	"ms-payment-verification/internal/database/migrations"
	"ms-payment-verification/internal/logger"
	"ms-payment-verification/internal/models"
)

const usage = `usage: migrate [-dir path] <command>

commands:
  up          apply all pending migrations
  down        roll back every migration
  to <n>      migrate up or down to version n
  version     print the applied version
  seed        insert a demo event with ticket types`

func main() {
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	log := logger.NewConsoleLogger(os.Stdout)
	cfg := config.Load()

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	opts := migrations.DefaultOptions()
	if *dir != "" {
		opts.Source = os.DirFS(*dir)
	}
	runner := migrations.NewRunner(bunDB, opts, log)

	switch flag.Arg(0) {
	case "up":
		err = runner.MigrateUp()
	case "down":
		err = runner.MigrateDown()
	case "to":
		var version uint
		if _, scanErr := fmt.Sscan(flag.Arg(1), &version); scanErr != nil {
			log.Fatal("CONFIG", fmt.Sprintf("invalid version %q", flag.Arg(1)))
		}
		err = runner.MigrateTo(version)
	case "version":
		version, dirty, verr := runner.Version()
		if verr == nil {
			log.Info("DATABASE", fmt.Sprintf("Schema version %d (dirty=%t)", version, dirty))
		}
		err = verr
	case "seed":
		err = seedData(context.Background(), bunDB)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("%s failed: %v", flag.Arg(0), err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ %s done", flag.Arg(0)))
}

func seedData(ctx context.Context, db *bun.DB) error {
	event := &models.Event{
		ID:        "evt-demo",
		Name:      "Demo Concert",
		Venue:     "Nelum Pokuna, Colombo",
		StartDate: time.Now().AddDate(0, 1, 0).Truncate(time.Hour),
		CreatedAt: time.Now(),
	}
	ticketTypes := []models.TicketType{
		{ID: "tt-demo-vip", EventID: event.ID, Name: "VIP", Price: 15000, Quantity: 50},
		{ID: "tt-demo-regular", EventID: event.ID, Name: "Regular", Price: 5000, Quantity: 500},
	}

	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(event).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		if _, err := tx.NewInsert().Model(&ticketTypes).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert ticket types: %w", err)
		}
		return nil
	})
}
