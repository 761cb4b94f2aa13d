package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/triage-ai/phishguard/internal/action"
	"github.com/triage-ai/phishguard/internal/api"
	"github.com/triage-ai/phishguard/internal/auth"
	"github.com/triage-ai/phishguard/internal/bridge"
	"github.com/triage-ai/phishguard/internal/chread"
	"github.com/triage-ai/phishguard/internal/server"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent with its local HTTP API and gRPC service.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := mustBuildLogger(viper.GetString("log_level"))
		defer logger.Sync() //nolint:errcheck // best-effort flush

		if !viper.GetBool("no_banner") {
			printBanner()
		}
		return serve(cmd.Context(), logger)
	},
}

func init() {
	serveCmd.Flags().String("http-addr", "127.0.0.1:8787", "HTTP API listen address")
	serveCmd.Flags().String("grpc-addr", "127.0.0.1:50061", "gRPC listen address (empty disables)")
	serveCmd.Flags().String("token-hash", "", "bcrypt hash of the API token (empty disables auth)")
	serveCmd.Flags().Duration("auth-cache-ttl", 30*time.Second, "How long a verified token is trusted before re-checking")
	serveCmd.Flags().Int("bridge-queue", 64, "Pending in-page requests before callers block")
	serveCmd.Flags().Duration("settings-poll", 2*time.Second, "How often settings written by other processes are picked up")
	serveCmd.Flags().Bool("no-banner", false, "Do not print the startup banner")
	for _, name := range []string{"http-addr", "grpc-addr", "token-hash", "auth-cache-ttl", "bridge-queue", "settings-poll", "no-banner"} {
		_ = viper.BindPFlag(configKey(name), serveCmd.Flags().Lookup(name))
	}
	rootCmd.AddCommand(serveCmd)
}

func printBanner() {
	figure.NewColorFigure("PhishGuard", "small", "cyan", true).Print()
	_, _ = color.New(color.FgGreen).Println("    URL risk assessment agent")
}

func serve(ctx context.Context, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	httpAddr := viper.GetString("http_addr")
	grpcAddr := viper.GetString("grpc_addr")

	logger.Info("starting phishguard agent",
		zap.String("http_addr", httpAddr),
		zap.String("grpc_addr", grpcAddr),
	)

	rt, err := newRuntime(ctx, action.NewLogHost(logger), "/blocked", logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Token auth shared by HTTP and gRPC
	var verifier *auth.Verifier
	if hash := viper.GetString("token_hash"); hash != "" {
		verifier, err = auth.NewVerifier(hash, viper.GetDuration("auth_cache_ttl"), logger)
		if err != nil {
			return err
		}
		logger.Info("token auth enabled")
		watchTokenHash(verifier, logger)
	} else {
		logger.Warn("no token hash set, API is unauthenticated")
	}

	// ClickHouse reader (for events endpoints)
	var chReader *chread.Reader
	if dsn := viper.GetString("clickhouse_dsn"); dsn != "" {
		chReader, err = chread.NewReader(dsn, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	// In-page requests travel over the bridge to the agent
	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	// CLI commands write the same settings backend
	if poll := viper.GetDuration("settings_poll"); poll > 0 {
		go rt.settings.Watch(serveCtx, poll)
	}

	b := bridge.New(viper.GetInt("bridge_queue"), logger)
	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		if err := rt.agent.Serve(serveCtx, b); err != nil && serveCtx.Err() == nil {
			logger.Error("bridge stopped", zap.Error(err))
		}
	}()

	deps := &api.Dependencies{
		Agent:      rt.agent,
		Dispatcher: rt.dispatcher,
		Settings:   rt.settings,
		Bridge:     b,
		Health:     rt.classifier,
		Reader:     chReader,
		Logger:     logger,
		Auth:       verifier,
	}
	httpServer := &http.Server{
		Addr:         httpAddr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// gRPC server
	var stopGRPC func()
	if grpcAddr != "" {
		var authenticator auth.Authenticator
		if verifier != nil {
			authenticator = verifier
		}
		grpcServer, healthServer := server.NewGRPCServer(server.NewScannerServer(rt.agent, rt.dispatcher, authenticator, logger))
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- err
			}
		}()
		stopGRPC = func() {
			healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
			grpcServer.GracefulStop()
		}
	}

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server failed, shutting down", zap.Error(err))
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	if stopGRPC != nil {
		stopGRPC()
	}
	b.Close()
	stop()
	<-bridgeDone

	logger.Info("phishguard agent stopped")
	return nil
}

// watchTokenHash swaps the verifier's hash when token_hash changes in the
// config file. Cached tokens are re-checked against the new hash on their
// next stale hit.
func watchTokenHash(verifier *auth.Verifier, logger *zap.Logger) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		hash := viper.GetString("token_hash")
		if hash == "" {
			logger.Warn("token_hash removed from config, keeping previous hash", zap.String("file", e.Name))
			return
		}
		if err := verifier.SetHash(hash); err != nil {
			logger.Error("rejected token_hash from config", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("token hash reloaded", zap.String("file", e.Name))
	})
	viper.WatchConfig()
}
