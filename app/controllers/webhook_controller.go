package controllers

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nutricoachhq/NutriCoach/app/models"
	"github.com/nutricoachhq/NutriCoach/app/repository"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/billing"
)

// HandleStripeWebhook is the single ingress for provider events. Signature
// failures are rejected before any processing; hard event errors come back
// as client errors so Stripe's retry dashboard surfaces the upstream bug;
// transient store errors come back as 500 so Stripe redelivers.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	client := billing.NewStripeClientFromEnv()
	event, err := client.VerifyWebhook(rawBody, signature)
	if err != nil {
		log.Warnf("[Webhook] signature rejected: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	factory := repository.GetGlobalFactory()
	events := factory.GetWebhookEventRepository()

	eventID := event.ID
	if eventID == "" {
		sum := sha256.Sum256(rawBody)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}
	created, stored, err := events.CreateIfNotExists(&models.WebhookEvent{
		StripeEventID:  eventID,
		EventType:      string(event.Type),
		PayloadJSON:    string(rawBody),
		SignatureValid: true,
	})
	if err != nil {
		log.Errorf("[Webhook] persisting event %s failed: %v", eventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}

	if !billing.KnownEventKind(string(event.Type)) {
		markProcessed(events, stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	decoded, err := billing.DecodeEvent(event)
	if err != nil {
		markProcessed(events, stored.ID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	// Duplicates are processed anyway: reconciliation is idempotent by
	// upsert construction, the audit row just notes the redelivery.
	recon := billing.NewReconciler(
		factory.GetSubscriptionRepository(),
		factory.GetTrialRepository(),
		factory.GetUserRepository(),
	)
	err = recon.ApplyEvent(c.Context(), decoded)
	markProcessed(events, stored.ID, err)
	if err != nil {
		if billing.IsHardEventError(err) {
			log.Errorf("[Webhook] event %s rejected: %v", eventID, err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_event"})
		}
		log.Errorf("[Webhook] event %s failed, provider will retry: %v", eventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": !created})
}

func markProcessed(events repository.WebhookEventRepository, id uint, processingErr error) {
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	if err := events.MarkProcessed(id, msg); err != nil {
		log.Warnf("[Webhook] could not mark event %d processed: %v", id, err)
	}
}
