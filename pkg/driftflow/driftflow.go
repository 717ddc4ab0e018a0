package driftflow

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/driftflow/driftflow/internal/capability"
	"github.com/driftflow/driftflow/internal/config"
	"github.com/driftflow/driftflow/internal/controllers"
	"github.com/driftflow/driftflow/internal/engine"
	"github.com/driftflow/driftflow/internal/migrations"
	"github.com/driftflow/driftflow/internal/nodes"
	"github.com/driftflow/driftflow/internal/notify"
	"github.com/driftflow/driftflow/internal/repository"
	"github.com/driftflow/driftflow/internal/scheduler"
	"github.com/driftflow/driftflow/internal/secrets"
	"github.com/driftflow/driftflow/pkg/driftflow/core"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lmittmann/tint"

	_ "github.com/go-sql-driver/mysql"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// App bundles everything Setup wires together: the database, the run
// manager, the cron scheduler and the HTTP mux. Run boots the engine and
// blocks serving HTTP until the context is cancelled.
type App struct {
	DB        *sql.DB
	Manager   *engine.Manager
	Scheduler *scheduler.Service
	Mux       *http.ServeMux

	addr         string
	pollInterval time.Duration
}

// Start boots the workflow engine and HTTP server with the default clock.
// This call blocks until the HTTP server stops.
func Start(mux *http.ServeMux) error {
	return Setup(mux).Run(context.Background())
}

// Setup opens the database, runs migrations and wires every component. It
// exits the process on fatal misconfiguration.
func Setup(mux *http.ServeMux) *App {
	return SetupWithClock(mux, core.NewRealClock())
}

func SetupWithClock(mux *http.ServeMux, clock core.Clock) *App {
	databaseType := config.GetSystemSettingString(config.DATABASE_TYPE)
	if databaseType == "" || (databaseType != config.DATABASE_TYPE_POSTGRES && databaseType != config.DATABASE_TYPE_MYSQL && databaseType != config.DATABASE_TYPE_SQLLITE) {
		panic("DFLOW_DATABASE_TYPE must be set to one of the following values: POSTGRES, MYSQL, SQLLITE")
	}

	var db *sql.DB
	if databaseType == config.DATABASE_TYPE_POSTGRES {
		db = setupPostgresDatabase()
	}
	if databaseType == config.DATABASE_TYPE_SQLLITE {
		db = setupSqlLiteDatabase()
	}
	if databaseType == config.DATABASE_TYPE_MYSQL {
		db = setupMysqlDatabase()
	}

	box, err := secrets.FromEnv()
	if err != nil {
		slog.Error("Secret key setup failed", "error", err)
		os.Exit(1)
	}

	executionRepo := repository.NewExecutionRepository(db, clock)
	nodeExecutionRepo := repository.NewNodeExecutionRepository(db, clock)
	approvalRepo := repository.NewApprovalRepository(db, clock)
	definitionRepo := repository.NewDefinitionRepository(db, clock)
	instanceRepo := repository.NewEngineInstanceRepository(db, clock)

	provider := &capability.Router{
		SQL:  capability.NewSQLProvider(),
		HTTP: capability.NewHTTPProvider(),
	}
	registry := nodes.NewRegistry(nodes.Deps{
		Clock:     clock,
		Provider:  provider,
		Notifier:  notify.LogNotifier{},
		Approvals: approvalRepo,
	})

	manager := engine.NewManager(
		executionRepo, nodeExecutionRepo, approvalRepo, definitionRepo, instanceRepo,
		registry, box, clock)
	sched := scheduler.New(manager, definitionRepo)

	if mux == nil {
		mux = http.NewServeMux()
	}
	controllers.NewDefinitionsController(manager).RegisterRoutes(mux)
	controllers.NewExecutionsController(manager).RegisterRoutes(mux)
	controllers.NewApprovalsController(manager).RegisterRoutes(mux)
	controllers.NewEngineController(manager).RegisterRoutes(mux)

	pollInterval, err := time.ParseDuration(config.GetSystemSettingString(config.ENGINE_CHECK_DB_INTERVAL))
	if err != nil {
		panic("DFLOW_ENGINE_CHECK_DB_INTERVAL must be a duration such as 3s")
	}

	addr := ":" + config.GetSystemSettingString(config.ENGINE_SERVER_WEB_PORT)
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		addr = v
	}

	return &App{
		DB:           db,
		Manager:      manager,
		Scheduler:    sched,
		Mux:          mux,
		addr:         addr,
		pollInterval: pollInterval,
	}
}

// Run starts the engine loop, the scheduler and the HTTP server, then blocks
// until the context is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	defer a.DB.Close()

	go a.Manager.StartEngine(ctx, a.pollInterval)
	go a.Scheduler.Start(ctx)

	srv := &http.Server{Addr: a.addr, Handler: a.Mux}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", a.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown failed", "error", err)
			return err
		}
		return nil
	case err := <-errCh:
		slog.Error("HTTP server failed", "error", err)
		return err
	}
}

func setupPostgresDatabase() *sql.DB {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if dbURL == "" {
		panic("DFLOW_DATABASE_URL must be set when using the POSTGRES database type")
	}
	slog.Info("Using Postgres database", "url", dbURL)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("postgres", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening Postgres database")
	dbPostgres, err := sql.Open("postgres", dbURL)
	if err != nil {
		slog.Error("DB connection failed", "error", err)
		os.Exit(1)
	}
	return dbPostgres
}

func setupSqlLiteDatabase() *sql.DB {
	fileName := config.GetSystemSettingString(config.DATABASE_SQLLITE_FILE_NAME)
	if fileName == "" {
		panic("DFLOW_DATABASE_SQLLITE_FILE_NAME must be set")
	}
	dbURL := "sqlite3://" + fileName
	slog.Info("Using SQLite database", "file", fileName)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("sqllite3", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening SQLite database")
	dbSqlLite, err := sql.Open("sqlite3", fileName)
	if err != nil {
		log.Fatalf("Failed to open SQLite DB: %v", err)
	}
	if err := dbSqlLite.Ping(); err != nil {
		log.Fatalf("Failed to ping SQLite DB: %v", err)
	}
	return dbSqlLite
}

func setupMysqlDatabase() *sql.DB {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if dbURL == "" {
		panic("DFLOW_DATABASE_URL must be set when using the MYSQL database type")
	}
	// panic if url does not contain ?parseTime=true
	if !strings.Contains(dbURL, "parseTime=true") {
		panic("DFLOW_DATABASE_URL must contain 'parseTime=true' for MySQL")
	}
	// panic if url does not  start with mysql://
	if !strings.HasPrefix(dbURL, "mysql://") {
		panic("DFLOW_DATABASE_URL must start with 'mysql://' for MySQL")
	}

	slog.Info("Using MySQL database", "url", dbURL)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("mysql", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening MySQL database")
	//remove mysql:// prefix from url
	dbMysql, err := sql.Open("mysql", strings.Replace(dbURL, "mysql://", "", 1))
	if err != nil {
		slog.Error("DB connection failed", "error", err)
		os.Exit(1)
	}
	return dbMysql
}

func runMigrationsFromEmbed(migrationsPath string, dbURL string) error {
	sub, err := fs.Sub(migrations.FS, migrationsPath)
	if err != nil {
		return err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func SetupLogger() {
	w := os.Stderr
	_ = slog.New(tint.NewHandler(w, nil))
	slog.SetDefault(slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: time.RFC3339Nano,
		}),
	))
}
