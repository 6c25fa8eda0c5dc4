package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexushub/portal/internal/config"
	"github.com/nexushub/portal/internal/directory"
	internalhttp "github.com/nexushub/portal/internal/http"
	"github.com/nexushub/portal/internal/hub"
	"github.com/nexushub/portal/internal/logging"
	"github.com/nexushub/portal/internal/orchestrator"
	"github.com/nexushub/portal/internal/session"
	"github.com/nexushub/portal/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the portal gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, config.Load())
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting portal",
		"http_port", cfg.HTTPPort,
		"orchestrator_url", cfg.OrchestratorURL,
		"manifest_id", cfg.ManifestID,
		"identity_provider", cfg.IdentityProviderURL,
	)
	if cfg.IdentitySecret == "" {
		logger.Warn("IDENTITY_SECRET is not set, logins will be rejected")
	}

	// The hub outlives the HTTP server so in-flight sockets can drain.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	connectionHub := hub.NewHub(logger)
	go connectionHub.Run(hubCtx)

	orchClient := orchestrator.NewClient(cfg.OrchestratorURL, cfg.OrchestratorTimeout)
	agents := directory.NewService(orchClient, cfg.AgentCacheSize, cfg.AgentCacheTTL, logger)

	sessions := session.NewManager(session.NewJWTProvider(cfg.IdentityProviderURL, cfg.IdentitySecret), cfg.SessionTTL)
	defer sessions.Close()

	wsServer := ws.NewServer(cfg, connectionHub, orchClient, agents, sessions, logger)
	handler := internalhttp.NewHandler(cfg, orchClient, agents, sessions, connectionHub, logger)
	httpServer := internalhttp.NewServer(cfg, handler, wsServer.HandleWebSocket, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("portal listening", "addr", cfg.Addr())

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down portal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	logger.Info("portal stopped")
	return nil
}
