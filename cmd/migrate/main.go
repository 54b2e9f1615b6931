package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/ManuelReschke/FoxPay/internal/pkg/config"
	"github.com/ManuelReschke/FoxPay/internal/pkg/env"
	"github.com/ManuelReschke/FoxPay/internal/pkg/logger"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	zl, err := logger.New(env.GetEnv("LOG_LEVEL", "info"), env.IsDev())
	if err != nil {
		log.Fatal(err)
	}
	defer zl.Sync() //nolint:errcheck

	db := config.LoadDatabase()
	zl.Info("connecting to database",
		zap.String("user", db.User),
		zap.String("host", db.Host),
		zap.String("port", db.Port),
		zap.String("name", db.Name))

	m, err := migrate.New("file://migrations", db.MigrateURL())
	if err != nil {
		zl.Fatal("failed to initialize migrations", zap.Error(err))
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			zl.Warn("failed to close migration resources", zap.NamedError("source", sourceErr), zap.NamedError("database", dbErr))
		}
	}()

	switch command {
	case "up":
		err := m.Up()
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			zl.Info("no change: database is up to date")
		case err != nil:
			zl.Fatal("failed to apply migrations", zap.Error(err))
		default:
			zl.Info("migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			zl.Fatal("failed to roll back the last migration", zap.Error(err))
		}
		zl.Info("last migration rolled back")

	case "goto":
		if len(os.Args) < 3 {
			zl.Fatal("goto needs a version number")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			zl.Fatal("invalid version number", zap.Error(err))
		}
		err = m.Migrate(uint(version))
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			zl.Info("no change: database is already at version", zap.Uint64("version", version))
		case err != nil:
			zl.Fatal("failed to migrate", zap.Uint64("version", version), zap.Error(err))
		default:
			zl.Info("migrated", zap.Uint64("version", version))
		}

	case "status":
		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			zl.Info("no migrations applied yet")
		case err != nil:
			zl.Fatal("failed to read migration version", zap.Error(err))
		default:
			zl.Info("current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: go run cmd/migrate/main.go [command]")
	fmt.Println("Commands:")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  goto N - migrate to version N")
	fmt.Println("  status - show the current migration version")
}
