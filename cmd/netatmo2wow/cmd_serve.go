package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge on its schedule and serve the HTTP endpoints",
	Long: `Start the scheduled bridge together with an HTTP server exposing
/health, /metrics, the archived observations and the Netatmo OAuth callback.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app := appFrom(ctx)

	db, err := app.openDatabase(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	client, authorized, err := app.restoreClient(ctx, db)
	if err != nil {
		return err
	}
	if !authorized {
		app.Logger.Warn("No netatmo tokens yet: runs fail until the OAuth callback completes")
	}

	reg := prometheus.NewRegistry()
	service, err := app.buildService(client, db, reg, false)
	if err != nil {
		return err
	}
	if err := service.Start(); err != nil {
		return err
	}

	exchanger := &codeExchanger{app: app, dm: db, client: client}
	routeManager := NewRouteManager(nil, nil, exchanger, reg, app.Logger)
	if db != nil {
		// a typed nil manager would make the interfaces non-nil
		routeManager = NewRouteManager(db, db, exchanger, reg, app.Logger)
	}
	routeManager.Setup()

	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	server := &http.Server{
		Handler:      routeManager.Router,
		Addr:         addr,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		app.Logger.Info("Shutdown signal received")

		service.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			app.Logger.WithError(err).Error("Server shutdown error")
		}
	}()

	app.Logger.WithField("addr", addr).Info("Starting netatmo2wow server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
