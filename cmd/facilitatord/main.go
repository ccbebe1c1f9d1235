// facilitatord is the x402 payment facilitator: it gates priced backend
// resources behind HTTP 402 challenges and settles client payments on a
// Solana network before relaying the content.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitwit/x402-facilitator/clients"
	"github.com/vitwit/x402-facilitator/config"
	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/metrics"
	"github.com/vitwit/x402-facilitator/server"
)

func main() {
	cfg := config.FromEnv()
	log := logger.NewZapLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	var rec metrics.Recorder = metrics.NoopRecorder{}
	if cfg.EnableMetrics {
		rec = metrics.NewPrometheusRecorder()
	}

	ledger, err := clients.NewSolanaLedger(cfg.Network, cfg.SolanaRPCURL, cfg.ConfirmLevel)
	if err != nil {
		log.Error("failed to create ledger client", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer ledger.Close()

	srv, err := server.New(cfg, ledger, server.WithLogger(log), server.WithMetrics(rec))
	if err != nil {
		log.Error("failed to build server", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("facilitator listening", map[string]any{
			"addr":    cfg.HTTPAddr,
			"network": cfg.Network.String(),
			"backend": cfg.BackendURL,
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", map[string]any{"error": err.Error()})
	}
}
