package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/Ev0rain/Phishly/config"
	"github.com/Ev0rain/Phishly/controllers"
	"github.com/Ev0rain/Phishly/queue"
	"github.com/Ev0rain/Phishly/routes"
	"github.com/Ev0rain/Phishly/store"
	"github.com/Ev0rain/Phishly/utils"
	"github.com/Ev0rain/Phishly/worker"
)

func main() {
	logger := log.New(os.Stdout, "PHISHLY: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	// Persistence backend
	var st store.Store
	switch cfg.StoreBackend {
	case "memory":
		logger.Println("Using in-memory store (data is not persisted)")
		st = store.NewMemoryStore()
	default:
		if err := config.ConnectDB(); err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		st = store.NewGormStore(config.DB)
	}

	// Task broker
	var broker queue.Broker
	if cfg.StoreBackend == "memory" {
		logger.Println("Using in-memory broker")
		broker = queue.NewMemoryBroker()
	} else {
		if err := config.ConnectRedis(); err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		rb := queue.NewRedisBroker(config.Redis, logger)
		rb.PollInterval = time.Duration(cfg.BrokerPollPeriod) * time.Second
		rb.ResultExpiry = time.Duration(cfg.ResultExpiry) * time.Second
		broker = rb
	}

	// Email transport
	var mailer utils.Mailer
	if cfg.SMTP.Mock {
		logger.Println("SMTP mock enabled, emails will be logged instead of sent")
		mailer = utils.NewMockMailer(logger)
	} else {
		mailer = utils.NewSMTPMailer(cfg.SMTP)
	}

	// Campaign services
	deployer := utils.NewDeployer(cfg.TemplatesDir, cfg.DeploymentsDir, cfg.LegacyCacheDir, logger)
	activator := utils.NewActivator(st, deployer, cfg.DNSZoneDir, logger)
	dispatcher := utils.NewDispatcher(st, broker, deployer, activator, logger)
	renderer := utils.NewEmailRenderer(cfg.PhishingDomain)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Delivery worker pool
	deliveryWorker := worker.NewDeliveryWorker(st, broker, mailer, renderer, cfg.TrackingSecret, logger)
	deliveryWorker.Concurrency = cfg.WorkerCount
	deliveryWorker.MaxRetries = cfg.SendMaxRetries
	deliveryWorker.RetryDelay = time.Duration(cfg.SendRetryDelay) * time.Second
	deliveryWorker.TaskTimeLimit = time.Duration(cfg.TaskTimeLimit) * time.Second
	deliveryWorker.SoftTimeLimit = time.Duration(cfg.TaskSoftLimit) * time.Second
	go func() {
		if err := deliveryWorker.Start(ctx); err != nil {
			logger.Printf("Delivery worker stopped: %v", err)
		}
	}()

	// Scheduled launch sweeper
	scheduler := worker.NewLaunchScheduler(dispatcher, time.Duration(cfg.SchedulerSweep)*time.Second, logger)
	go scheduler.Start(ctx)

	// Control plane
	controlApp := fiber.New(fiber.Config{
		AppName: "Phishly Control API",
	})
	campaignController := controller.NewCampaignController(st, dispatcher, logger)
	landingPageController := controller.NewLandingPageController(st, activator, deployer, logger)
	routes.SetupControlRoutes(controlApp, campaignController, landingPageController)

	// Tracking server. Serves the public phishing surface, so errors
	// must never leak internals to a visitor.
	trackingLogger := logrus.New()
	trackingLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	trackingApp := fiber.New(fiber.Config{
		AppName:               "Phishly Tracking",
		DisableStartupMessage: cfg.Environment == "production",
		ErrorHandler:          controller.TrackingErrorHandler(trackingLogger),
	})
	trackingController := controller.NewTrackingController(st, deployer, trackingLogger)
	routes.SetupTrackingRoutes(trackingApp, trackingController, config.Redis, cfg.SubmitRateLimit)

	go func() {
		logger.Printf("Tracking server listening on :%s", cfg.TrackingPort)
		if err := trackingApp.Listen(":" + cfg.TrackingPort); err != nil {
			logger.Fatalf("Tracking server failed: %v", err)
		}
	}()

	go func() {
		logger.Printf("Control server listening on :%s", cfg.ServerPort)
		if err := controlApp.Listen(":" + cfg.ServerPort); err != nil {
			logger.Fatalf("Control server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("Shutting down...")
	cancel()
	if err := trackingApp.Shutdown(); err != nil {
		logger.Printf("Tracking server shutdown error: %v", err)
	}
	if err := controlApp.Shutdown(); err != nil {
		logger.Printf("Control server shutdown error: %v", err)
	}
	logger.Println("Shutdown complete")
}
