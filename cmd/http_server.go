package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tverlabs/timekeep/internal"
	"github.com/tverlabs/timekeep/internal/audit"
	"github.com/tverlabs/timekeep/internal/compliance"
	compliancepg "github.com/tverlabs/timekeep/internal/compliance/postgres"
	"github.com/tverlabs/timekeep/internal/entry"
	entrypg "github.com/tverlabs/timekeep/internal/entry/postgres"
	"github.com/tverlabs/timekeep/internal/nonconformance"
	"github.com/tverlabs/timekeep/internal/payroll"
	payrollpg "github.com/tverlabs/timekeep/internal/payroll/postgres"
	"github.com/tverlabs/timekeep/internal/tenant"
	"github.com/tverlabs/timekeep/internal/timesheet"
	timesheetpg "github.com/tverlabs/timekeep/internal/timesheet/postgres"
	"github.com/tverlabs/timekeep/internal/transport/rest"
	"github.com/tverlabs/timekeep/pkg/database"
	"github.com/tverlabs/timekeep/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *gorm.DB
	HealthDB *sqlx.DB
	Router   *chi.Mux
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.HealthDB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	db, err := database.Open(database.Options{
		DSN:             config.Database.Source,
		MaxOpenConns:    config.Database.MaxOpenConns,
		MaxIdleConns:    config.Database.MaxIdleConns,
		ConnMaxLifetime: config.Database.ConnMaxLifetime,
		ConnMaxIdleTime: config.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	healthDB, err := sqlx.Connect("pgx", config.Database.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open health check connection: %w", err)
	}

	publicKey, err := config.Security.GetPublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load JWT public key: %w", err)
	}

	tx := database.NewTxManager(db)
	recorder := audit.NewRecorder(db)
	timezones := tenant.NewTimezoneResolver(db, lg)
	ncCreator := nonconformance.NewCreator(db, lg)

	sheetRepo := timesheetpg.NewTimesheetRepository(db)
	entryRepo := entrypg.NewEntryRepository(db)
	ruleRepo := compliancepg.NewRuleRepository(db)
	resultRepo := compliancepg.NewResultRepository(db)
	exportRepo := payrollpg.NewExportRepository(db)

	engine := compliance.NewEngine(ruleRepo, resultRepo, entryRepo, timezones, ncCreator, lg)

	sheetService := timesheet.NewService(tx, sheetRepo, engine, recorder, lg)
	entryService := entry.NewService(tx, entryRepo, sheetRepo, recorder, lg)
	complianceService := compliance.NewService(tx, ruleRepo, resultRepo, engine, sheetRepo, recorder, lg)
	payrollService := payroll.NewService(tx, exportRepo, sheetRepo, entryRepo, recorder, lg)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, healthDB, publicKey, rest.Handlers{
		Timesheet:  timesheet.NewHandler(sheetService),
		Entry:      entry.NewHandler(entryService),
		Compliance: compliance.NewHandler(complianceService),
		Payroll:    payroll.NewHandler(payrollService),
	}, lg)

	return &Dependencies{
		Config:   config,
		DB:       db,
		HealthDB: healthDB,
		Router:   router,
		Logger:   lg,
	}, nil
}
