// Package main - entry point for the rxcost aggregation server
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"rxcost/api"
	"rxcost/gate"
	"rxcost/internal/app"
	"rxcost/internal/config"
	"rxcost/internal/logging"
)

const version = "1.0.0"

func main() {
	addr := flag.String("addr", "", "listen address (overrides config)")
	cfgFile := flag.String("config", "", "config file (.hcl or .json)")
	uiPath := flag.String("ui", "", "path to static UI files (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *cfgFile != "" {
		loaded, err := config.Load(*cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.Finalize()
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *uiPath != "" {
		cfg.Server.UIDir = *uiPath
	}
	config.Set(cfg)

	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
	defer logging.Sync()

	application, err := app.New(cfg)
	if err != nil {
		logging.Fatal("failed to assemble the service", zap.Error(err))
	}

	apiServer := api.NewServer(application, version)
	if cfg.Gate.Enabled() {
		g, err := gate.New(cfg.Gate)
		if err != nil {
			logging.Fatal("failed to build the passcode gate", zap.Error(err))
		}
		apiServer.SetGate(g.Wrap)
		logging.Info("passcode gate enabled")
	}

	fmt.Printf("rxcost server v%s\n", version)
	fmt.Printf("  API: http://localhost%s/api/prices\n", cfg.Server.Addr)
	if cfg.Server.UIDir != "" {
		fmt.Printf("  UI:  http://localhost%s/\n", cfg.Server.Addr)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logging.Fatal("server failed", zap.Error(err))
		}
	case sig := <-stop:
		logging.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			logging.Error("shutdown did not complete cleanly", zap.Error(err))
		}
	}
}
