package controllers

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nutricoachhq/NutriCoach/internal/pkg/chat"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/usercontext"
)

type chatRequest struct {
	Messages []chat.Message `json:"messages" validate:"required,min=1,dive"`
}

// HandleChatCompletion proxies a coaching conversation to the upstream
// model. The route sits behind the entitlement middleware, so by the time
// we are here the caller is paying or trialing.
func HandleChatCompletion(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if err := validator.New().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	reply, err := chat.NewClientFromEnv().Complete(ctx, req.Messages)
	if err != nil {
		log.Errorf("chat completion for user %d failed: %v", usercontext.GetUserID(c), err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "chat_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"reply": reply})
}
