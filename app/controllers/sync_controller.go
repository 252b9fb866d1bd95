package controllers

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nutricoachhq/NutriCoach/app/repository"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/billing"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/env"
)

const fullSyncTimeout = 30 * time.Minute

// HandleFullSync triggers a full reconciliation sweep. It touches every
// user's billing state, so production requires the shared sync secret via
// query string or header; non-production runs unauthenticated for local
// iteration.
func HandleFullSync(c *fiber.Ctx) error {
	if env.IsProd() && !syncSecretValid(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	factory := repository.GetGlobalFactory()
	recon := billing.NewReconciler(
		factory.GetSubscriptionRepository(),
		factory.GetTrialRepository(),
		factory.GetUserRepository(),
	)
	sweeper := billing.NewSweeper(
		billing.NewStripeClientFromEnv(),
		factory.GetUserRepository(),
		factory.GetPlanMappingRepository(),
		recon,
	)

	// Deliberately not the request context: the sweep's budget is far
	// larger than an HTTP timeout and each user commits independently.
	ctx, cancel := context.WithTimeout(context.Background(), fullSyncTimeout)
	defer cancel()

	summary, err := billing.RunLockedFullSync(ctx, sweeper)
	if err != nil {
		log.Errorf("[FullSync] failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "full_sync_failed"})
	}
	if summary == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "sync_in_progress"})
	}

	return c.Status(fiber.StatusOK).JSON(summary)
}

// HandleLastFullSync returns the stored summary of the most recent sweep.
func HandleLastFullSync(c *fiber.Ctx) error {
	raw, err := billing.LastFullSyncSummary()
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_sync_recorded"})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.SendString(raw)
}

func syncSecretValid(c *fiber.Ctx) bool {
	secret := strings.TrimSpace(env.GetEnv("SYNC_SECRET", ""))
	if secret == "" {
		return false
	}
	provided := strings.TrimSpace(c.Query("secret"))
	if provided == "" {
		provided = strings.TrimSpace(c.Get("X-Sync-Secret"))
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(provided)) == 1
}
