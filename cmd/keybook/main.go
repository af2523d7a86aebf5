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

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/daisho-wakazashi/keybook/internal/config"
	"github.com/daisho-wakazashi/keybook/internal/logging"
	"github.com/daisho-wakazashi/keybook/internal/server"
	"github.com/daisho-wakazashi/keybook/internal/version"
)

var (
	logger  zerolog.Logger
	cfg     *config.Config
	logPath string
	logFile *os.File
)

var rootCmd = &cobra.Command{
	Use:     "keybook",
	Short:   "Keybook - availability publishing and booking",
	Long:    "Keybook lets owners publish hourly availability and lets claimants book single time blocks with exactly-once allocation.",
	Version: version.Version,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logFile == nil {
			return nil
		}
		return logFile.Close()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Keybook API server",
	Long:  "Start the HTTP API server and, when configured, the separate metrics listener",
	RunE:  runServe,
}

func init() {
	rootCmd.SetVersionTemplate(version.String() + "\n")
	rootCmd.PersistentFlags().StringVar(&logPath, "log-file", "", "Also append JSON log records to this file")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if logPath == "" {
		logger = logging.Setup(cfg.Environment)
		return nil
	}

	logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logger = logging.SetupWithWriter(cfg.Environment, logFile)
	return nil
}

// openServices loads config and wires storage and engines for one-shot commands.
func openServices() (*server.Services, error) {
	if err := loadConfig(); err != nil {
		return nil, err
	}
	return server.OpenServices(cfg, logger)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Keybook starting")

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	metricsServer := srv.MetricsServer()
	if metricsServer != nil {
		go func() {
			logger.Info().Str("addr", metricsServer.Addr).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(timeoutCtx); err != nil {
			logger.Error().Err(err).Msg("metrics shutdown failed")
		}
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Keybook stopped")
	return nil
}
