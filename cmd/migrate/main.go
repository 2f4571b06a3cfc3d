package main

import (
	"flag"
	"fmt"

	"github.com/kdimtricp/vmood/internal/config"
	"github.com/kdimtricp/vmood/internal/database"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	var (
		dbType         = flag.String("db", cfg.Database.Type, "Database type (postgres or sqlite)")
		host           = flag.String("host", cfg.Database.Host, "Database host")
		port           = flag.Int("port", cfg.Database.Port, "Database port")
		user           = flag.String("user", cfg.Database.User, "Database user")
		password       = flag.String("password", cfg.Database.Password, "Database password")
		dbName         = flag.String("name", cfg.Database.Name, "Database name")
		migrationsPath = flag.String("migrations", cfg.MigrationsPath, "Path to migrations directory")
		status         = flag.Bool("status", false, "Show migration status only")
	)
	flag.Parse()

	logger := cfg.NewLogger()

	dbConfig := cfg.Database
	dbConfig.Type = *dbType
	dbConfig.Host = *host
	dbConfig.Port = *port
	dbConfig.User = *user
	dbConfig.Password = *password
	dbConfig.Name = *dbName

	db, err := database.NewDB(dbConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if !*status {
		fmt.Printf("Running migrations from %s...\n", *migrationsPath)
		if err := db.RunMigrations(*migrationsPath); err != nil {
			logger.WithError(err).Fatal("failed to run migrations")
		}
		fmt.Println("Migrations completed successfully!")
		return
	}

	migrator := database.NewMigrator(db.Conn(), dbConfig.Type, logger)
	if dbConfig.Type != "postgres" {
		fmt.Println("SQLite schemas are created on open; no migrations to report")
		return
	}
	if err := migrator.Initialize(); err != nil {
		logger.WithError(err).Fatal("failed to initialize migrator")
	}

	applied, err := migrator.GetAppliedMigrations()
	if err != nil {
		logger.WithError(err).Fatal("failed to get applied migrations")
	}

	migrations, err := migrator.LoadMigrations(*migrationsPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load migrations")
	}

	fmt.Println("Migration Status:")
	fmt.Println("=================")
	for _, m := range migrations {
		state := "pending"
		if applied[m.Version] {
			state = "applied"
		}
		fmt.Printf("%s - %s [%s]\n", m.Version, m.Name, state)
	}
}
