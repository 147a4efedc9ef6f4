package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/avanderberg/scrumline/internal/cli"
	"github.com/avanderberg/scrumline/internal/config"
	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/repository"
	"github.com/avanderberg/scrumline/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := openDatabase()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	store := repository.NewStore(database, cfg)
	uow := db.NewUnitOfWork(database)
	listeners := []service.ChangeListener{
		service.NewBacklogUpdater(store),
		service.NewBurndownLogger(store),
	}

	tickets := service.NewTicketService(store, cfg, uow, listeners)
	backlogs := service.NewBacklogService(store, cfg, tickets)
	if err := backlogs.EnsureDefaults(context.Background()); err != nil {
		return fmt.Errorf("seeding default backlogs: %w", err)
	}

	app := &cli.App{
		Config:     cfg,
		Database:   database,
		Store:      store,
		Tickets:    tickets,
		Sprints:    service.NewSprintService(store, uow),
		Milestones: service.NewMilestoneService(store, uow),
		Teams:      service.NewTeamService(store),
		Backlogs:   backlogs,
		Burndown:   service.NewBurndownService(store),
	}

	return cli.NewRootCmd(app).Execute()
}

// loadConfig reads SCRUMLINE_CONFIG when set, otherwise the built-in
// defaults apply.
func loadConfig() (*config.Config, error) {
	path := os.Getenv("SCRUMLINE_CONFIG")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// openDatabase picks MySQL when SCRUMLINE_MYSQL_DSN is set, otherwise a
// SQLite file under the home directory (or SCRUMLINE_DB).
func openDatabase() (*db.DB, error) {
	if dsn := os.Getenv("SCRUMLINE_MYSQL_DSN"); dsn != "" {
		return db.OpenMySQL(dsn)
	}
	path := os.Getenv("SCRUMLINE_DB")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("finding home directory: %w", err)
		}
		dir := filepath.Join(home, ".scrumline")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "scrumline.db")
	}
	return db.OpenSQLite(path)
}
