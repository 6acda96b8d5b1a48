package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iwvelando/bess-engine/internal/config"
	"github.com/iwvelando/bess-engine/internal/natsrpc"
	"github.com/iwvelando/bess-engine/internal/server"
	"github.com/iwvelando/bess-engine/pkg/constants"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	configLocation := flag.String("config", constants.DefaultServerConfigFile, "path to server configuration file")
	address := flag.String("address", "", "listen address override")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	_ = godotenv.Load()

	serverConf, err := server.LoadConfig(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load server configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}
	if *address != "" {
		serverConf.Address = *address
	}

	logger, err := config.NewLogger(serverConf.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	engineConf, err := config.LoadConfiguration(serverConf.EngineConfig)
	if err != nil {
		logger.Fatal("failed to load engine configuration",
			zap.String("op", "main"),
			zap.String("path", serverConf.EngineConfig),
			zap.Error(err),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, collab, err := engineConf.NewEngine(ctx, logger)
	if err != nil {
		logger.Fatal("failed to build engine",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	defer collab.Close()

	handler, err := server.NewHandler(logger, e, server.Options{
		MaxUploadSize: serverConf.UploadSizeBytes(),
		Version:       version,
		Durations:     engineConf.Optimizer.Durations,
	})
	if err != nil {
		logger.Fatal("failed to build handler",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	if serverConf.NATS.URL != "" {
		conn, err := nats.Connect(serverConf.NATS.URL,
			nats.Name("bess-server"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			logger.Fatal("failed to connect to NATS",
				zap.String("op", "main"),
				zap.String("url", serverConf.NATS.URL),
				zap.Error(err),
			)
		}
		defer conn.Close()

		responder, err := natsrpc.NewResponder(logger, e, serverConf.NATS.SubjectPrefix)
		if err != nil {
			logger.Fatal("failed to build NATS responder", zap.String("op", "main"), zap.Error(err))
		}
		listener := natsrpc.NewListener(responder, conn)
		if err := listener.Start(ctx, serverConf.NATS.QueueGroup); err != nil {
			logger.Fatal("failed to start NATS listener", zap.String("op", "main"), zap.Error(err))
		}
		defer func() {
			if err := listener.Stop(); err != nil {
				logger.Warn("failed to stop NATS listener", zap.String("op", "main"), zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              serverConf.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.String("op", "main"), zap.Error(err))
		}
	}()

	logger.Info("server listening",
		zap.String("op", "main"),
		zap.String("address", serverConf.Address),
		zap.String("version", version),
		zap.Int64("max_upload_bytes", serverConf.UploadSizeBytes()),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
}
