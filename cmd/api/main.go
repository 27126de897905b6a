package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/userauth/userauth/internal/avatar"
	"github.com/userauth/userauth/internal/config"
	"github.com/userauth/userauth/internal/identity"
	"github.com/userauth/userauth/internal/infra"
	"github.com/userauth/userauth/internal/logging"
	"github.com/userauth/userauth/internal/notification"
	"github.com/userauth/userauth/internal/routes"
	"github.com/userauth/userauth/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.AppName, cfg.LogLevel, cfg.IsDev())

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()
	deps := routes.Deps{Cfg: cfg, Logger: logger}

	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		deps.Cache = cache
	}

	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.MigrateOnStart {
			if err := infra.Migrate(ctx, db); err != nil {
				return err
			}
			logger.Info("migrations applied")
		}
		deps.DB = db
		deps.Store = identity.NewPostgresRepository(db)
	case config.StoreRedis:
		if deps.Cache == nil {
			return fmt.Errorf("REDIS_URL is required when STORE_DRIVER=redis")
		}
		deps.Store = identity.NewRedisRepository(deps.Cache)
	case config.StoreMongo:
		client, err := infra.NewMongoClient(ctx, cfg.MongoURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("disconnect mongo", "error", err)
			}
		}()
		store := identity.NewMongoRepository(client.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(ctx); err != nil {
			return err
		}
		deps.Mongo = client
		deps.Store = store
	default:
		logger.Warn("using in-memory user store; data is lost on restart")
		deps.Store = identity.NewMemoryRepository()
	}

	if cfg.SendGridAPIKey != "" {
		deps.Notifier = notification.NewSendGridNotifier(cfg.SendGridAPIKey, cfg.MailFrom, cfg.AppName, logger)
	} else {
		logger.Warn("SENDGRID_API_KEY not set; emails are written to the log")
		deps.Notifier = notification.NewLoggerNotifier(logger)
	}

	switch cfg.AvatarStorage {
	case config.AvatarStorageS3:
		client, err := infra.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return err
		}
		deps.Avatars = avatar.NewS3Storage(client, cfg.S3.Bucket, cfg.S3.PublicURL())
	default:
		local, err := avatar.NewLocalStorage(cfg.AvatarDir)
		if err != nil {
			return err
		}
		deps.Avatars = local
	}

	srv, err := server.New(deps)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
