package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/api"
	"github.com/gmsas95/dosetrack/internal/cli"
	"github.com/gmsas95/dosetrack/internal/config"
	"github.com/gmsas95/dosetrack/internal/insights"
	"github.com/gmsas95/dosetrack/internal/meds"
	"github.com/gmsas95/dosetrack/internal/reminders"
	"github.com/gmsas95/dosetrack/internal/storage"
	"github.com/gmsas95/dosetrack/internal/vitals"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

// App holds the application components.
type App struct {
	config   *config.Config
	logger   *zap.Logger
	persist  meds.Persistence
	closeFn  func() error
	store    *meds.Store
	ledger   *meds.Ledger
	doser    *meds.DoseLogger
	notifier *reminders.Notifier
}

var cliCommands = map[string]bool{
	"list": true, "ls": true, "add": true, "log": true,
	"history": true, "overdue": true, "export": true, "help": true,
}

func main() {
	// Handle subcommands before flag parsing
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Printf("dosetrack version %s\n", version)
			return
		}
		if cliCommands[os.Args[1]] {
			runCLI(os.Args[1:])
			return
		}
	}

	flag.Parse()

	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting dosetrack", zap.String("version", version))

	app, err := newApp(*configPath, *dataDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}

	app.runServer()
}

// newApp loads config, opens storage, and seeds the in-memory state.
func newApp(configPath, dataDir string, logger *zap.Logger) (*App, error) {
	cfg, err := config.Load(configPath, dataDir)
	if err != nil {
		return nil, err
	}

	var persist meds.Persistence
	closeFn := func() error { return nil }
	switch cfg.Storage.Backend {
	case "file":
		persist = storage.NewFileStore(cfg.Storage.FilePath)
	default:
		st, err := storage.New(&cfg.Storage)
		if err != nil {
			return nil, err
		}
		persist = st
		closeFn = st.Close
	}

	store := meds.NewStore(nil)
	ledger := meds.NewLedger()

	list, err := persist.Load()
	if err != nil {
		return nil, err
	}
	store.Replace(list)

	history, err := persist.LoadHistory()
	if err != nil {
		return nil, err
	}
	ledger.Seed(history)

	// Every mutation writes the collection back. Dose commits additionally
	// append their ledger entry through the dose logger's persistence hook.
	store.Subscribe(func() {
		if err := persist.Save(store.List()); err != nil {
			logger.Warn("Failed to persist medications", zap.Error(err))
		}
	})

	doser := meds.NewDoseLogger(store, ledger, logger,
		meds.WithSettleDelay(cfg.Dosing.SettleDelay()),
		meds.WithPersistence(persist),
	)

	return &App{
		config:  cfg,
		logger:  logger,
		persist: persist,
		closeFn: closeFn,
		store:   store,
		ledger:  ledger,
		doser:   doser,
	}, nil
}

func runCLI(args []string) {
	logger := zap.NewNop()

	app, err := newApp("", "", logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.closeFn()
	defer app.doser.Close()

	c := cli.New(app.store, app.ledger, app.doser, nil, os.Stdout, logger)
	if err := c.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (app *App) runServer() {
	cfg := app.config

	insightsClient := insights.NewClient(cfg.Insights, app.logger)
	vitalsStore := vitals.NewStore()

	// Reminder sweep
	if cfg.Reminders.Enabled {
		app.notifier = reminders.NewNotifier(app.store, nil, cfg.Reminders.LowSupplyThreshold,
			func(alerts []reminders.Alert) {
				for _, a := range alerts {
					app.logger.Info("Reminder",
						zap.String("reason", string(a.Reason)),
						zap.String("name", a.Medication.Name),
					)
				}
			}, app.logger)
		if err := app.notifier.Start(cfg.Reminders.Schedule); err != nil {
			app.logger.Error("Failed to start reminder notifier", zap.Error(err))
		}
	}

	server := api.New(cfg, api.Deps{
		Store:    app.store,
		Ledger:   app.ledger,
		Doser:    app.doser,
		Insights: insightsClient,
		Vitals:   vitalsStore,
	}, app.logger)

	go func() {
		if err := server.Start(); err != nil {
			app.logger.Fatal("Server error", zap.Error(err))
		}
	}()

	app.logger.Info("Server started",
		zap.String("address", cfg.Server.Address),
		zap.Int("port", cfg.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.logger.Info("Shutting down...")

	if app.notifier != nil {
		app.notifier.Stop()
	}
	if err := server.Shutdown(); err != nil {
		app.logger.Error("Server shutdown error", zap.Error(err))
	}
	app.doser.Close()
	if err := app.closeFn(); err != nil {
		app.logger.Error("Storage close error", zap.Error(err))
	}

	app.logger.Info("Goodbye")
}
