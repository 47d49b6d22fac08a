// cmd/radialctl/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"radial-config/internal/config"
	"radial-config/internal/discovery"
	"radial-config/internal/discovery/serial"
	"radial-config/internal/discovery/usb"
	"radial-config/internal/driver"
	"radial-config/internal/handler"
	"radial-config/internal/service"
	"radial-config/internal/utils"
)

// Application represents the main application
type Application struct {
	config        *config.Config
	logger        *zap.Logger
	serviceLogger *utils.ServiceLogger

	eventBus       *handler.EventBus
	driverRegistry *driver.Registry
	scannerManager *discovery.ScannerManager
	configService  *service.ConfigService

	shell *Shell
}

var (
	configPath string
	evalOnly   bool
	outputJSON bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to the configuration file.")
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

func main() {
	flag.Parse()

	app, err := NewApplication(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer utils.LogPanic(app.logger)

	if err := app.Start(flag.Args()...); err != nil {
		utils.LogError(app.logger, "Command failed", err)
		app.shutdown()
		os.Exit(1)
	}
	app.shutdown()
}

// NewApplication creates a new application instance
func NewApplication(path string) (*Application, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, cfg.App.Name)
	serviceLogger.LogServiceStart(cfg.App.Version,
		zap.String("environment", cfg.App.Environment),
		zap.String("layout", cfg.Device.Layout),
		zap.String("save_mode", cfg.Device.SaveMode),
	)

	app := &Application{
		config:        cfg,
		logger:        logger,
		serviceLogger: serviceLogger,
	}

	app.initializeDriverRegistry()
	app.initializeScanners()
	app.initializeServices()

	app.shell = NewShell(app, !evalOnly, outputJSON)
	return app, nil
}

// initializeDriverRegistry sets up device driver registry
func (app *Application) initializeDriverRegistry() {
	app.driverRegistry = driver.NewRegistry(app.logger)
	driver.RegisterDefaultDrivers(app.driverRegistry)

	app.logger.Debug("Driver registry initialized",
		zap.Int("registered_drivers", len(app.driverRegistry.ListDrivers())),
	)
}

// initializeScanners registers all available scanners
func (app *Application) initializeScanners() {
	filter := discovery.Filter{
		VendorID:  app.config.Device.VendorID,
		ProductID: app.config.Device.ProductID,
	}

	app.scannerManager = discovery.NewScannerManager(app.logger)
	app.scannerManager.RegisterScanner(serial.NewScanner(app.logger, filter))
	if usbScanner := usb.NewScanner(app.logger, filter, 5*time.Second); usbScanner.IsAvailable() {
		app.scannerManager.RegisterScanner(usbScanner)
	}

	app.logger.Debug("Discovery scanners initialized",
		zap.Strings("available_scanners", app.scannerManager.GetAvailableScanners()),
	)
}

// initializeServices creates service instances
func (app *Application) initializeServices() {
	app.eventBus = handler.NewEventBus(app.logger, 1000)
	eventHandler := handler.NewBusEventHandler(app.eventBus, app.logger)

	app.configService = service.NewConfigService(
		app.driverRegistry,
		app.scannerManager,
		eventHandler,
		app.config,
		app.logger,
	)
}

// Start runs the shell until it exits or a shutdown signal arrives
func (app *Application) Start(args ...string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go app.eventBus.Start(ctx)
	go app.shell.WatchEvents(ctx, app.eventBus.Subscribe())

	done := make(chan error, 1)
	go func() {
		done <- app.shell.Run(args...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		app.logger.Info("Received shutdown signal")
		app.shell.Close()
		return nil
	}
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	app.serviceLogger.LogServiceStop("shell exited")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := app.configService.Disconnect(ctx); err != nil {
		utils.LogError(app.logger, "Disconnect on shutdown failed", err)
	}
	app.eventBus.Close()

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Fprintf(os.Stderr, "Logger close error: %v\n", err)
	}
}
