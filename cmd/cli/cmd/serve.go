// Package cmd - serve command
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rxcost/api"
	"rxcost/gate"
	"rxcost/internal/app"
	"rxcost/internal/config"
	"rxcost/internal/logging"
)

var (
	serveAddr string
	serveUI   string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the aggregation API server",
	Long: `Start the HTTP server that exposes the price aggregation API and,
optionally, a static UI directory.

Examples:
  rxcost serve
  rxcost serve --addr :9090 --ui ./ui
  rxcost serve --config rxcost.hcl`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveUI, "ui", "", "path to static UI files (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveUI != "" {
		cfg.Server.UIDir = serveUI
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to assemble the service: %w", err)
	}

	apiServer := api.NewServer(application, version)
	if cfg.Gate.Enabled() {
		g, err := gate.New(cfg.Gate)
		if err != nil {
			return fmt.Errorf("failed to build the passcode gate: %w", err)
		}
		apiServer.SetGate(g.Wrap)
		logging.Info("passcode gate enabled")
	}

	fmt.Printf("rxcost server v%s listening on %s\n", version, cfg.Server.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case sig := <-stop:
		logging.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			logging.Error("shutdown did not complete cleanly", zap.Error(err))
		}
	}
	return nil
}
