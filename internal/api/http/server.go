package http

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/api/http/handlers"
	"github.com/spec-kit/support-client/internal/auth"
	"github.com/spec-kit/support-client/internal/config"
	"github.com/spec-kit/support-client/internal/domain"
	"github.com/spec-kit/support-client/internal/observability"
	"github.com/spec-kit/support-client/internal/sandbox"
)

// SandboxServer is the fiber application serving an in-memory backend.
type SandboxServer struct {
	App     *fiber.App
	Backend *sandbox.Backend
	Metrics *observability.Metrics
	logger  *zap.Logger
}

// NewSandboxServer wires the backend, auth and routes.
func NewSandboxServer(cfg config.Config, logger *zap.Logger) (*SandboxServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	keys, err := auth.NewKeyVerifier(cfg.Sandbox.APIKey, cfg.Sandbox.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash sandbox api key: %w", err)
	}
	tokens := auth.NewTokenManager(cfg.Sandbox.JWTSecret, cfg.Sandbox.TokenTTLMinutes)

	backend := sandbox.NewBackend(sandbox.Dependencies{
		Logger:          observability.Component(logger, "sandbox"),
		DefaultAssignee: domain.AssigneeType(cfg.Sandbox.DefaultAssignee),
	})
	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name + "-sandbox",
		DisableStartupMessage: true,
		BodyLimit:             32 << 20,
	})
	RegisterMiddlewares(app, logger, metrics, 30*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name+"-sandbox", cfg.App.SDKVersion, backend.Stats),
		Sessions:       handlers.NewSessionHandler(backend, tokens),
		Tickets:        handlers.NewTicketsHandler(backend),
		Agents:         handlers.NewAgentHandler(backend),
		AuthMiddleware: auth.NewAuthMiddleware(keys, tokens, backend),
		RateLimiter:    NewRateLimiter(cfg.Sandbox.RateLimitPerSecond, cfg.Sandbox.RateLimitBurst),
	})

	return &SandboxServer{App: app, Backend: backend, Metrics: metrics, logger: logger}, nil
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *SandboxServer) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.App.Listener(ln) }()
	s.logger.Info("sandbox listening", zap.String("addr", ln.Addr().String()))
	select {
	case <-ctx.Done():
		return s.App.ShutdownWithTimeout(5 * time.Second)
	case err := <-errCh:
		return err
	}
}
