package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nutricoachhq/NutriCoach/app/repository"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/billing"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/usercontext"
)

type checkoutRequest struct {
	PriceID    string `json:"price_id" validate:"required"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

// HandleCreateCheckoutSession opens a Stripe Checkout session for the
// authenticated user. The user's id, segment and email are stamped into the
// subscription metadata - the reconciler cannot attribute webhook events
// without that contract.
func HandleCreateCheckoutSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if err := validator.New().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client := billing.NewStripeClientFromEnv()
	url, sessionID, err := client.CreateCheckoutSession(ctx, billing.CheckoutParams{
		UserID:     user.ID,
		UserType:   user.UserType,
		Email:      user.Email,
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		log.Errorf("checkout session for user %d failed: %v", user.ID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": url, "session_id": sessionID})
}

// HandleBillingPortal opens the provider's billing portal for the user.
func HandleBillingPortal(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	factory := repository.GetGlobalFactory()
	customerID := ""
	if user, err := factory.GetUserRepository().GetByID(userCtx.UserID); err == nil {
		customerID = user.StripeCustomerID
	}
	if customerID == "" {
		sub, err := factory.GetSubscriptionRepository().LatestForUser(userCtx.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_billing_account"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
		customerID = sub.StripeCustomerID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	url, err := billing.NewStripeClientFromEnv().CreatePortalSession(ctx, customerID, c.Query("return_url", "/"))
	if err != nil {
		log.Errorf("portal session for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "portal_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": url})
}

// HandleCancelSubscription flags the user's current subscription to cancel
// at period end, then resyncs the local record from the provider response.
func HandleCancelSubscription(c *fiber.Ctx) error {
	return setCancelFlag(c, true)
}

// HandleResumeSubscription clears the cancel-at-period-end flag before the
// period actually ends.
func HandleResumeSubscription(c *fiber.Ctx) error {
	return setCancelFlag(c, false)
}

func setCancelFlag(c *fiber.Ctx, cancelAtPeriodEnd bool) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	factory := repository.GetGlobalFactory()
	sub, err := factory.GetSubscriptionRepository().LatestForUser(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_subscription"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	payload, err := billing.NewStripeClientFromEnv().SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, cancelAtPeriodEnd)
	if err != nil {
		log.Errorf("cancel flag update for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "cancel_update_failed"})
	}

	recon := billing.NewReconciler(
		factory.GetSubscriptionRepository(),
		factory.GetTrialRepository(),
		factory.GetUserRepository(),
	)
	if err := recon.ApplySubscriptionState(sub.UserID, sub.UserType, payload, time.Now()); err != nil {
		// The provider accepted the change; the next webhook or sweep
		// repairs the local record.
		log.Warnf("local resync after cancel update failed for user %d: %v", userCtx.UserID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "cancel_at_period_end": cancelAtPeriodEnd})
}
