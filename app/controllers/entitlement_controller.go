package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nutricoachhq/NutriCoach/app/repository"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/entitlements"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/usercontext"
)

// HandleGetEntitlement returns the authenticated user's entitlement snapshot.
// Answered from the local store only, the provider is never called here.
func HandleGetEntitlement(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	factory := repository.GetGlobalFactory()
	svc := entitlements.NewService(factory.GetSubscriptionRepository(), factory.GetTrialRepository())

	snap, err := svc.SnapshotFor(userCtx.UserID)
	if err != nil {
		log.Errorf("entitlement snapshot for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.Status(fiber.StatusOK).JSON(snap)
}
