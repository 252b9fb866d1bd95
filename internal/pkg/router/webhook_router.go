package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nutricoachhq/NutriCoach/app/controllers"
)

type WebhookRouter struct {
}

// InstallRouter registers the provider-facing ingress route. Signature
// verification happens inside the handler, so no auth middleware here.
func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhooks/stripe", controllers.HandleStripeWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
