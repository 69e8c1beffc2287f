package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"worktrack.org/internal/migrate"
	"worktrack.org/internal/obs"
	"worktrack.org/migrations"
)

func main() {
	_ = godotenv.Load()
	log := obs.Logger()
	dsn := flag.String("dsn", os.Getenv("WORKTRACK_PG_DSN"), "PostgreSQL DSN")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or WORKTRACK_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer db.Close()

	mgr := migrate.NewManager(db, migrations.FS, migrate.WithLogger(log))

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		if err == nil && len(applied) == 0 {
			log.Info("schema is up to date")
		}
	case "down":
		_, err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Println(item)
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.WithError(err).Fatalf("migrate %s", flag.Arg(0))
	}
}
