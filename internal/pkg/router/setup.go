package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router is anything that can register its routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	// Webhook routes go first: they must see the raw request body and must
	// not sit behind the rate limiter, or Stripe retries would get throttled
	// during bursts.
	setup(app, NewWebhookRouter(), NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
