package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/i474232898/weather-ar-overlay/internal/api/http"
	"github.com/i474232898/weather-ar-overlay/internal/config"
	"github.com/i474232898/weather-ar-overlay/internal/overlay"
)

func serveCmd() *cobra.Command {
	var (
		port       string
		permission string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the panel API and keep the weather data fresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if port != "" {
				cfg.Port = port
			}
			perm, err := overlay.ParsePermission(permission)
			if err != nil {
				return err
			}

			log := newLogger(cfg.LogLevel)
			slog.SetDefault(log)

			return serve(cmd.Context(), buildApp(cfg, log, perm, nil))
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "HTTP port (overrides PORT)")
	cmd.Flags().StringVar(&permission, "permission", "requesting", "Initial camera permission (requesting, denied, granted)")
	return cmd
}

func serve(parent context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Basic app configuration. No write timeout: event streams stay open.
	srv := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	srv.Use(logger.New())
	srv.Use(recover.New())

	deps := httpapi.Deps{
		Screen:      a.screen,
		Weather:     a.service,
		Metrics:     a.metrics,
		BaseContext: ctx,
		Platform:    a.cfg.Platform,
	}
	if a.accelPush != nil {
		deps.Accel = a.accelPush
	}
	if a.motionPush != nil {
		deps.Motion = a.motionPush
	}
	httpapi.RegisterRoutes(srv, deps)

	if err := a.screen.Activate(ctx); err != nil {
		return fmt.Errorf("activate screen: %w", err)
	}
	defer a.screen.Deactivate()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server listening",
			"port", a.cfg.Port,
			"location", a.cfg.Location.Key(),
			"sensors", a.cfg.SensorSource)
		if err := srv.Listen(":" + a.cfg.Port); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
			a.logger.Error("error during shutdown", "error", err)
		}
		return nil
	})
	return g.Wait()
}
