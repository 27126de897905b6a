package routes

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/userauth/userauth/internal/account"
	"github.com/userauth/userauth/internal/auth"
	"github.com/userauth/userauth/internal/avatar"
	"github.com/userauth/userauth/internal/config"
	"github.com/userauth/userauth/internal/identity"
	"github.com/userauth/userauth/internal/middleware"
	"github.com/userauth/userauth/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes. DB, Cache and
// Mongo are optional and only used for health reporting and idempotency of
// the authenticated endpoints.
type Deps struct {
	Cfg      config.Config
	Store    identity.Store
	Notifier notification.Notifier
	Avatars  avatar.Storage
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Mongo    *mongo.Client
	Logger   *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Store == nil {
		return errors.New("user store is required")
	}
	if d.Avatars == nil {
		return errors.New("avatar storage is required")
	}
	if err := os.MkdirAll(d.Cfg.UploadTmpDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		// Plain text access log: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// Avatars written to the local disk are served from it.
	if local, ok := d.Avatars.(*avatar.LocalStorage); ok {
		app.Static("/avatars", local.Dir())
	}

	// Services and handlers
	tokens := auth.NewTokenService(d.Cfg.JWTSecret, d.Store)
	avatarSvc := avatar.NewService(d.Store, d.Avatars, avatar.NewImagingResizer(), d.Logger)
	accountSvc := account.NewService(d.Store, tokens, d.Notifier, avatarSvc, account.Options{
		RequireVerification: d.Cfg.RequireVerification,
		PublicBaseURL:       d.Cfg.PublicBaseURL,
	}, d.Logger)
	accountHandler := account.NewHandler(accountSvc, d.Cfg.UploadTmpDir)

	api := app.Group("/api")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Replays are bound to the authenticated caller, so idempotency runs
	// behind the guard and never on the credential endpoints.
	guard := []fiber.Handler{middleware.RequireUser(tokens)}
	if d.Cache != nil {
		guard = append(guard, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterAccountRoutes(api, accountHandler, guard...)

	return nil
}
