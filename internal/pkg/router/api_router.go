package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/nutricoachhq/NutriCoach/app/controllers"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/cache"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/env"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "NutriCoach API",
		})
	})

	v1 := api.Group("/v1")

	// Sweep endpoints carry their own shared-secret gate, see the handler.
	v1.Post("/billing/sync", controllers.HandleFullSync)
	v1.Get("/billing/sync/last", controllers.HandleLastFullSync)

	// Everything below requires a valid API key.
	authed := v1.Group("/", middleware.APIKeyAuthMiddleware())
	authed.Get("/entitlement", controllers.HandleGetEntitlement)
	authed.Post("/billing/checkout", controllers.HandleCreateCheckoutSession)
	authed.Post("/billing/portal", controllers.HandleBillingPortal)
	authed.Post("/billing/cancel", controllers.HandleCancelSubscription)
	authed.Post("/billing/resume", controllers.HandleResumeSubscription)

	// The coaching surface is the paid product, gate it.
	chatGroup := authed.Group("/chat", middleware.RequireEntitlement())
	chatGroup.Post("/completions", controllers.HandleChatCompletion)
}

// newLimiterStorage backs the rate limiter with Redis so counters survive
// restarts and are shared across instances. Reuses the cache connection
// settings but a separate database.
func newLimiterStorage() *redis.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		addr := client.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
