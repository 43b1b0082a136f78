package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-client/internal/api/http"
	"github.com/spec-kit/support-client/internal/config"
	"github.com/spec-kit/support-client/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := httptransport.NewSandboxServer(*cfg, logger)
	if err != nil {
		logger.Fatal("failed to build sandbox", zap.Error(err))
	}

	ln, err := net.Listen("tcp", cfg.Sandbox.Addr())
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.Sandbox.Addr()), zap.Error(err))
	}

	if err := srv.Serve(ctx, ln); err != nil {
		logger.Fatal("sandbox server", zap.Error(err))
	}
	logger.Info("shutting down")
}
