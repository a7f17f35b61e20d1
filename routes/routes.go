package routes

import (
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	controller "github.com/Ev0rain/Phishly/controllers"
	"github.com/Ev0rain/Phishly/middleware"
)

// SetupControlRoutes wires the internal admin API: campaign lifecycle,
// landing page activation and dashboard stats.
func SetupControlRoutes(app *fiber.App, cc *controller.CampaignController, lc *controller.LandingPageController) {
	app.Use(middleware.CORS())

	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	campaigns := api.Group("/campaigns")
	campaigns.Post("/", cc.CreateCampaign)
	campaigns.Post("/:id/launch", cc.LaunchCampaign)
	campaigns.Post("/:id/pause", cc.PauseCampaign)
	campaigns.Post("/:id/complete", cc.CompleteCampaign)
	campaigns.Delete("/:id", cc.DeleteCampaign)
	campaigns.Post("/:id/delete", cc.DeleteCampaign)
	campaigns.Get("/:id/details", cc.GetCampaignDetails)

	api.Get("/dashboard/stats", cc.GetDashboardStats)

	pages := api.Group("/landing-pages")
	pages.Post("/:id/activate", lc.ActivateLandingPage)
	pages.Post("/deactivate", lc.DeactivateLandingPage)
	pages.Get("/active", lc.GetActiveConfiguration)
	pages.Post("/preview", lc.DeployPreview)
	pages.Delete("/preview", lc.CleanupPreview)
}

// SetupTrackingRoutes wires the public phishing surface. Order matters,
// the fixed endpoints must register before the catch-all.
func SetupTrackingRoutes(app *fiber.App, tc *controller.TrackingController, redisClient *redis.Client, submitRateLimit int) {
	app.Get("/health", tc.HealthCheck)
	app.Get("/track/open", tc.TrackOpen)
	app.Post("/api/submit", middleware.SubmitRateLimiter(submitRateLimit, redisClient), tc.HandleFormSubmission)
	app.Get("/*", tc.ServeLandingPage)
}
