package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kdimtricp/photobooth/internal/api"
	"github.com/kdimtricp/photobooth/internal/captures"
	"github.com/kdimtricp/photobooth/internal/config"
	"github.com/kdimtricp/photobooth/internal/database"
	"github.com/kdimtricp/photobooth/internal/metrics"
	"github.com/kdimtricp/photobooth/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var configFile string

var rootCmd = &cobra.Command{
	Use:          "photobooth-server",
	Short:        "Serve the photobooth capture API",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile, cmd.Flags())
		if err != nil {
			return err
		}

		logger, err := cfg.NewLogger()
		if err != nil {
			return err
		}

		return serve(cmd.Context(), cfg, logger)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "path to a config file (default ./photobooth.yaml)")
	flags.String("port", "3002", "HTTP port")
	flags.String("upload-dir", "./uploads", "directory for temporary uploads")
	flags.String("capture-dir", "./captures", "directory for stored captures")
	flags.String("db-path", "./db.sqlite", "SQLite database file")
	flags.Int64("max-upload-size", 10*1024*1024, "maximum upload size in bytes")
	flags.Int64("max-pixels", 40_000_000, "largest image, in pixels, that will be decoded")
}

func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	uploads, err := storage.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		return err
	}
	captureStore, err := storage.NewLocalStorage(cfg.CaptureDir)
	if err != nil {
		return err
	}

	db, err := database.NewDB(database.Config{SQLitePath: cfg.DBPath})
	if err != nil {
		var startupErr *database.StartupError
		if errors.As(err, &startupErr) {
			logger.WithError(err).Fatal("Database is unusable, refusing to start")
		}
		return err
	}
	defer db.Close()

	m := metrics.New()

	service := captures.NewService(captures.Options{
		Uploads:   uploads,
		Captures:  captureStore,
		Repo:      database.NewCaptureRepository(db),
		Metrics:   m,
		Logger:    logger,
		Limits: captures.Limits{
			DefaultLimit: cfg.Pagination.DefaultLimit,
			MaxLimit:     cfg.Pagination.MaxLimit,
		},
		MaxPixels: cfg.MaxPixels,
	})

	app := &api.App{
		Captures:       service,
		Storage:        captureStore,
		Metrics:        m,
		Logger:         logger,
		MaxUploadSize:  cfg.MaxUploadSize,
		StaticPrefix:   cfg.StaticPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.WithFields(logrus.Fields{
		"port":            cfg.Port,
		"upload_dir":      cfg.UploadDir,
		"capture_dir":     cfg.CaptureDir,
		"db_path":         cfg.DBPath,
		"max_upload_size": cfg.MaxUploadSize,
	}).Info("Server starting")
	logger.Infof("Health check: http://localhost:%s/api/health", cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
