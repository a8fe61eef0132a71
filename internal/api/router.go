package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/pulsar-labs/pulse/internal/api/docs"
	"github.com/pulsar-labs/pulse/internal/api/handler"
	"github.com/pulsar-labs/pulse/internal/api/middleware"
	"github.com/pulsar-labs/pulse/internal/config"
	"github.com/pulsar-labs/pulse/internal/queue"
	"github.com/pulsar-labs/pulse/internal/ratelimit"
	"github.com/pulsar-labs/pulse/internal/resource"
	"github.com/pulsar-labs/pulse/internal/store"
	"github.com/pulsar-labs/pulse/internal/webhook"
	"github.com/pulsar-labs/pulse/internal/ws"
)

// Dependencies carries everything the router mounts. Lifecycle (hub
// run loop, workers, relay) is owned by the caller; the router only
// wires the HTTP surface.
type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	Store  *store.Store

	Hub     *ws.Hub
	Queue   *queue.Queue
	Tasks   *queue.TaskRepository
	Limiter *ratelimit.Limiter

	WebhookRepo   *webhook.Repository
	WebhookSender *webhook.Sender

	Users *resource.UserService
	Posts *resource.PostService
	Media *resource.MediaService
}

type Router struct {
	app    *fiber.App
	logger *slog.Logger
	deps   *Dependencies
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      deps.Config.AppName,
		BodyLimit:    int(deps.Config.MaxFileSize),
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	cfg := r.deps.Config

	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     cfg.CORSMethods,
		AllowHeaders:     cfg.CORSHeaders,
		AllowCredentials: cfg.CORSCredentials && cfg.CORSOrigins != "*",
	}))
	r.app.Use(middleware.RateLimiter(
		r.deps.Limiter,
		middleware.DefaultRateLimiterConfig(cfg.RateLimitDefault, cfg.RateLimitWindow),
	))

	// Swagger documentation
	sw := docs.NewSwagger(cfg.AppName)
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	// System endpoints
	systemHandler := handler.NewSystemHandler(cfg.AppName, cfg.Environment, r.deps.Hub)
	r.app.Get("/", systemHandler.Welcome)

	healthHandler := handler.NewHealthHandler(r.deps.DB, r.deps.Store)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	// WebSocket fabric: stats before the channel matcher
	r.app.Get("/ws/stats", systemHandler.WSStats)
	r.app.Get("/ws/:channel", ws.UpgradeMiddleware(), ws.Handler(r.deps.Hub))

	// Resource kinds
	handler.NewResourceHandler(r.deps.Users.Engine).Register(r.app.Group("/users"))
	handler.NewResourceHandler(r.deps.Posts.Engine).Register(r.app.Group("/posts"))
	handler.NewResourceHandler(r.deps.Media.Engine).Register(r.app.Group("/media"))

	// Webhooks
	webhookHandler := handler.NewWebhookHandler(
		r.deps.WebhookRepo, r.deps.WebhookSender, cfg.IsProduction(), r.logger,
	)
	webhookHandler.Register(r.app.Group("/webhooks"))

	// Background tasks
	taskHandler := handler.NewTaskHandler(r.deps.Queue, r.deps.Tasks, r.deps.Media, r.logger)
	taskHandler.Register(r.app.Group("/tasks"))
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	return r.app.Shutdown()
}
