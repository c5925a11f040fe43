package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/leadworks/qualifier/internal/catalog"
	"github.com/leadworks/qualifier/internal/core/api"
	"github.com/leadworks/qualifier/internal/core/config"
	"github.com/leadworks/qualifier/internal/core/db"
	"github.com/leadworks/qualifier/internal/core/store"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the HTTP admin API service",
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.Flags().String("host", "0.0.0.0", "HTTP server host")
	apiCmd.Flags().Int("port", 8080, "HTTP server port")
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer conn.Close()

	if err := db.MigrateUp(conn); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	queries, err := db.LoadQueries(conn)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	service, err := api.NewService(store.NewSQL(queries), catalog.NewStore(queries), cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           service.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting qualifier admin API",
		"version", Version, "addr", server.Addr, "db", cfg.DatabaseURL)

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
			return
		}
		errChan <- nil
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		slog.Info("shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}
