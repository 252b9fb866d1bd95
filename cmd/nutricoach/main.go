package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/nutricoachhq/NutriCoach/app/repository"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/billing"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/cache"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/database"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/env"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/router"
)

func main() {
	app, scheduler := NewApplication()

	// graceful shutdown for the background sweep loop
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		scheduler.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *billing.Scheduler) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitGlobalFactory(database.GetDB())

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "NutriCoach",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	// periodic full sync against the payment provider
	scheduler := newSyncScheduler()
	scheduler.Start()

	return app, scheduler
}

func newSyncScheduler() *billing.Scheduler {
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
	return billing.NewScheduler(sweeper)
}
