// Command api serves battles between catalog units over HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pefman/w40k-combat/internal/catalog"
	"github.com/pefman/w40k-combat/internal/config"
	"github.com/pefman/w40k-combat/internal/logging"
	"github.com/pefman/w40k-combat/internal/server"
)

// Build metadata injected via -ldflags at build time
var (
	buildVersion = "dev"
	buildTime    = ""
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		config.Exitf("Error: %v", err)
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.IntVar(&cfg.Port, "port", cfg.Port, "listen port")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		config.Exitf("Error: %v", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		config.Exitf("Error: %v", err)
	}
	defer log.Sync()

	cat, err := catalog.Open(cfg.Catalog)
	if err != nil {
		log.Fatal("load catalog", zap.Error(err))
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: server.New(cat, server.Options{
			MaxRounds: cfg.MaxRounds,
			Workers:   cfg.Workers,
			Logger:    log,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Info("W40K API listening",
		zap.String("addr", srv.Addr),
		zap.Int("units", cat.Len()),
		zap.String("version", buildVersion),
		zap.String("built", buildTime),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("serve", zap.Error(err))
	}
}
