package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"opportunity-engine/internal/config"
	"opportunity-engine/internal/handler"
	"opportunity-engine/internal/service"
	"opportunity-engine/pkg/logger"
	"opportunity-engine/pkg/metrics"
	"opportunity-engine/pkg/ratelimit"
)

type Application struct {
	configPath string
	debug      bool
}

func main() {
	app := &Application{}

	flag.StringVar(&app.configPath, "config", os.Getenv("MOE_CONFIG"), "Configuration file path (env: MOE_CONFIG)")
	flag.BoolVar(&app.debug, "debug", false, "Enable debug mode")
	flag.Parse()

	if err := app.Run(); err != nil {
		log.Fatalf("Application failed: %v", err)
	}
}

func (app *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.NewManager().Load(app.configPath)
	if err != nil {
		return err
	}
	if app.debug {
		cfg.Logger.Level = "debug"
	}
	logger.SetLogger(logger.New(cfg.Logger))
	metrics.Init()

	l := logger.GetLogger().WithField("component", "server")

	if err := service.RequireCredential(cfg); err != nil {
		return err
	}

	outputs, err := service.OpenOutputs(ctx, cfg)
	if err != nil {
		return err
	}
	defer outputs.Close()

	runner, err := service.NewRunner(cfg, ratelimit.NewPool(), outputs.Options()...)
	if err != nil {
		return err
	}

	server := fiber.New(fiber.Config{
		AppName:               "opportunity-engine",
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		DisableStartupMessage: true,
	})
	server.Use(recover.New())
	handler.NewController(runner).Register(server)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		l.Info("Shutdown signal received")
		cancel()
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listenErr := make(chan error, 1)
	go func() {
		l.WithField("addr", addr).Info("Server started")
		listenErr <- server.Listen(addr)
	}()

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		if err != nil {
			runner.Shutdown(context.Background()) //nolint:errcheck
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
	}

	l.Info("Shutting down gracefully")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		l.WithError(err).Warn("HTTP server did not stop cleanly")
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		l.WithError(err).Warn("Background analyses did not finish before timeout")
	}

	l.Info("Server stopped")
	return nil
}
