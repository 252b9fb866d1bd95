package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nutricoachhq/NutriCoach/app/repository"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/entitlements"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/usercontext"
)

// RequireEntitlement gates a route on an active subscription or trial.
// Runs after authentication; reads only the local entitlement store.
func RequireEntitlement() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCtx := usercontext.GetUserContext(c)
		if !userCtx.IsLoggedIn {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Authentication required"})
		}

		factory := repository.GetGlobalFactory()
		svc := entitlements.NewService(factory.GetSubscriptionRepository(), factory.GetTrialRepository())

		hasSub, err := svc.HasActiveSubscription(userCtx.UserID)
		if err != nil {
			log.Errorf("entitlement check failed for user %d: %v", userCtx.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Entitlement check failed"})
		}
		if !hasSub {
			hasTrial, err := svc.HasActiveTrial(userCtx.UserID)
			if err != nil {
				log.Errorf("trial check failed for user %d: %v", userCtx.UserID, err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Entitlement check failed"})
			}
			if !hasTrial {
				return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "payment_required", "message": "No active subscription or trial"})
			}
		}

		c.Locals(usercontext.KeyEntitled, true)
		return c.Next()
	}
}
