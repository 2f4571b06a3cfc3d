package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/kdimtricp/vmood/internal/analysis"
	"github.com/kdimtricp/vmood/internal/api"
	"github.com/kdimtricp/vmood/internal/classifier"
	"github.com/kdimtricp/vmood/internal/config"
	"github.com/kdimtricp/vmood/internal/database"
	"github.com/kdimtricp/vmood/internal/emotion"
	"github.com/kdimtricp/vmood/internal/gateway"
	"github.com/kdimtricp/vmood/internal/storage"
	"github.com/kdimtricp/vmood/internal/video"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger := cfg.NewLogger()

	localStorage, err := storage.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize storage")
	}

	db, err := database.NewDB(cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		logger.WithError(err).Fatal("failed to run migrations")
	}

	cls, err := classifier.New(&cfg.Classifier, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize classifier")
	}

	engine, err := emotion.NewEngine(cls, cfg.Engine, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize engine")
	}

	extractor, err := video.NewExtractor(logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize frame extractor")
	}

	if cfg.Pinata.Gateway == "" {
		logger.Warn("PINATA_GATEWAY is not set, content fetches will fail")
	}

	service, err := analysis.NewService(analysis.Deps{
		Engine:  engine,
		Fetcher: gateway.NewPinataClient(cfg.Pinata),
		Files:   localStorage,
		Open:    extractor.Opener(cfg.FrameSize),
		Store:   database.NewAnalysisRepo(db),
		Logger:  logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize analysis service")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(&api.App{Analyzer: service, Log: logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.WithFields(logrus.Fields{
		"port":       cfg.Port,
		"upload_dir": cfg.UploadDir,
		"db":         cfg.Database.Type,
		"classifier": cfg.Classifier.Backend,
		"stride":     cfg.Engine.Stride,
		"window":     cfg.Engine.Window,
	}).Info("server starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown failed")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server failed")
	}
	logger.Info("server stopped")
}
