package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dasmlab/komuniti/pkg/announce"
	"github.com/dasmlab/komuniti/pkg/app"
	"github.com/dasmlab/komuniti/pkg/config"
	"github.com/dasmlab/komuniti/pkg/server"
)

// translatorProbeInterval is how often the gRPC health entry for the translator is refreshed.
const translatorProbeInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the translation HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			printError("failed to load config", err)
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context, cfg *config.Config) error {
	logger := app.NewLogger(cfg.Log)

	logger.WithFields(logrus.Fields{
		"addr":         cfg.Server.Addr(),
		"grpc_enabled": cfg.GRPC.Enabled,
		"engine":       cfg.Translator.Engine,
		"cache_driver": cfg.Cache.Driver,
		"log_level":    cfg.Log.Level,
	}).Info("Starting komuniti server")

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialise application")
		return err
	}
	defer a.Close()

	a.CheckTranslator(ctx)

	var lister announce.Lister
	if a.Announcements != nil {
		lister = a.Announcements
	}
	httpServer := server.NewHTTPServer(a.Service, server.Options{
		Addr:          cfg.Server.Addr(),
		ReadTimeout:   cfg.Server.ReadTimeout.Duration,
		WriteTimeout:  cfg.Server.WriteTimeout.Duration,
		CacheDriver:   cfg.Cache.Driver,
		Announcements: lister,
		Logger:        logger,
	})

	lis, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"addr": cfg.Server.Addr(),
		}).Error("Failed to listen on address")
		return err
	}

	errChan := make(chan error, 2)
	go func() {
		if err := httpServer.Serve(lis); err != nil {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcServer *server.GRPCServer
	if cfg.GRPC.Enabled {
		grpcLis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.GRPC.Port))
		if err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"port": cfg.GRPC.Port,
			}).Error("Failed to listen on gRPC port")
			return err
		}
		grpcServer = server.NewGRPCServer(logger)
		go func() {
			if err := grpcServer.Serve(grpcLis); err != nil {
				errChan <- fmt.Errorf("grpc server: %w", err)
			}
		}()

		var checker server.HealthChecker
		if a.Translator != nil {
			checker = a.Translator
		}
		go grpcServer.WatchTranslator(ctx, checker, translatorProbeInterval)
	}

	select {
	case err := <-errChan:
		logger.WithError(err).Error("Server error")
		return err
	case <-ctx.Done():
		logger.Info("Received signal, shutting down gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Graceful shutdown timeout, forcing stop...")
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
