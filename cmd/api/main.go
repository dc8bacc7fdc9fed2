package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/5kyf4ll/molly-project/internal/api"
	"github.com/5kyf4ll/molly-project/internal/auth"
	"github.com/5kyf4ll/molly-project/internal/config"
	"github.com/5kyf4ll/molly-project/internal/enrichment"
	"github.com/5kyf4ll/molly-project/internal/executor"
	"github.com/5kyf4ll/molly-project/internal/orchestrator"
	"github.com/5kyf4ll/molly-project/internal/report"
	"github.com/5kyf4ll/molly-project/internal/scanner"
	"github.com/5kyf4ll/molly-project/internal/store"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	// ServerVersion is the current API version
	ServerVersion = "0.1.0"
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 10 * time.Second
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.Init(os.Getenv("MOLLY_CONFIG"))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if err := config.Validate(cfg); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("initializing Molly API server",
		zap.String("version", ServerVersion),
		zap.String("port", cfg.Server.Port))

	db, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("failed to open scan database",
			zap.Error(err),
			zap.String("path", cfg.Database.Path))
	}
	defer db.Close()

	pdfGen, err := report.NewPDFGenerator(cfg.Reports.Root, logger)
	if err != nil {
		logger.Fatal("failed to initialize report generator", zap.Error(err))
	}

	if cfg.OpenAI.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not configured; the assistant will not answer")
	}
	llmClient := openai.NewClient(cfg.OpenAI.APIKey)

	nvdClient := enrichment.NewNVDClient(cfg.NVD.APIKey, logger,
		enrichment.WithRequestTimeout(cfg.NVD.Timeout),
		enrichment.WithResultsPerPage(cfg.NVD.ResultsPerPage))

	runner := executor.New(cfg.Scanner.Timeout, logger)
	nmap := scanner.NewNmap(runner, cfg.Scanner.Binary, logger)

	orch := orchestrator.New(orchestrator.Options{
		Store:       db,
		Nmap:        nmap,
		CVEs:        nvdClient,
		PDF:         pdfGen,
		Completer:   llmClient,
		Model:       cfg.OpenAI.Model,
		ScanProfile: cfg.Scanner.Profile,
		ScanTimeout: cfg.Scanner.Timeout,
		Logger:      logger,
	})

	sessions := auth.NewSessionManager(cfg.Auth.SessionTTL)

	router := api.SetupRoutes(api.Deps{
		Config:       cfg,
		Store:        db,
		Orchestrator: orch,
		Sessions:     sessions,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("version", ServerVersion))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		logger.Fatal("server failed to start", zap.Error(err))

	case sig := <-stop:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
			srv.Close()
		}

		logger.Info("server stopped")
	}
}
