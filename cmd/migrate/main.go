package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version = flag.Uint("version", 0, "Target version (for force command)")
		dir     = flag.String("dir", "./migrations", "Migrations directory")
	)
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	switch *command {
	case "up":
		if err := run(*dir, dsn, true, *steps); err != nil {
			log.Fatalf("migration up failed: %v", err)
		}
		fmt.Println("migrations applied")
	case "down":
		if err := run(*dir, dsn, false, *steps); err != nil {
			log.Fatalf("migration down failed: %v", err)
		}
		fmt.Println("migrations rolled back")
	case "version":
		v, dirty, err := currentVersion(*dir, dsn)
		if err != nil {
			log.Fatalf("version lookup failed: %v", err)
		}
		if dirty {
			fmt.Printf("database is dirty at version %d\n", v)
			os.Exit(1)
		}
		fmt.Printf("current version: %d\n", v)
	case "force":
		if *version == 0 {
			log.Fatal("force requires -version")
		}
		m, closeFn, err := newMigrate(*dir, dsn)
		if err != nil {
			log.Fatalf("force failed: %v", err)
		}
		defer closeFn()
		if err := m.Force(int(*version)); err != nil {
			log.Fatalf("force failed: %v", err)
		}
		fmt.Printf("forced version %d\n", *version)
	default:
		log.Fatalf("unknown command %q (supported: up, down, version, force)", *command)
	}
}

func newMigrate(dir, dsn string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, func() { db.Close() }, nil
}

func run(dir, dsn string, up bool, steps int) error {
	m, closeFn, err := newMigrate(dir, dsn)
	if err != nil {
		return err
	}
	defer closeFn()

	if steps > 0 {
		n := steps
		if !up {
			n = -steps
		}
		if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("apply steps: %w", err)
		}
		return nil
	}

	if up {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	}
	if err := m.Down(); err != nil {
		return fmt.Errorf("roll back migrations: %w", err)
	}
	return nil
}

func currentVersion(dir, dsn string) (uint, bool, error) {
	m, closeFn, err := newMigrate(dir, dsn)
	if err != nil {
		return 0, false, err
	}
	defer closeFn()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
