// Package main runs a controller simulator serving the tag API that plcsnmp
// connects to.
//
// Usage:
//
//	plcsim --symbols symbols.yaml --port 8851
//	plcsim --symbols symbols.yaml --api-key $KEY
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/plcsnmp/plcsnmp/internal/auth"
	"github.com/plcsnmp/plcsnmp/internal/config"
	"github.com/plcsnmp/plcsnmp/internal/logging"
	"github.com/plcsnmp/plcsnmp/internal/plcsim"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:   "plcsim",
	Short: "Simulate a controller tag API",
	Long: `plcsim serves an in-memory controller program loaded from a YAML symbol
file. Symbols carrying snmp_oid and snmp_address attributes are picked up by
plcsnmp; PUT /api/v1/state switches the simulated run state.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runSim,
}

func init() {
	rootCmd.Flags().StringP("symbols", "s", "", "path to symbol file (required)")
	rootCmd.Flags().String("host", config.DefaultControllerHost, "listen host")
	rootCmd.Flags().Int("port", config.DefaultControllerPort, "listen port")
	rootCmd.Flags().String("api-key", os.Getenv("PLCSNMP_CONTROLLER_API_KEY"), "shared key for bearer tokens; empty disables auth")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = rootCmd.MarkFlagRequired("symbols")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSim(cmd *cobra.Command, args []string) error {
	symbolsPath, _ := cmd.Flags().GetString("symbols")
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	apiKey, _ := cmd.Flags().GetString("api-key")
	level, _ := cmd.Flags().GetString("log-level")

	logger, closer, err := logging.New(config.LoggingConfig{Level: level, Format: "text", Output: "stdout"})
	if err != nil {
		return err
	}
	defer closer.Close()

	store, err := plcsim.LoadFile(symbolsPath)
	if err != nil {
		return err
	}

	var tokens *auth.Service
	if apiKey != "" {
		tokens, err = auth.NewService(apiKey, 0)
		if err != nil {
			return fmt.Errorf("failed to initialize token service: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           plcsim.NewRouter(store, tokens, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("plcsim listening",
			"addr", srv.Addr,
			"device", store.Device().Name,
			"state", store.State().String(),
			"symbols", len(store.Symbols(false)),
			"auth", tokens != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("plcsim stopped", "writes", store.Writes())
	return nil
}
