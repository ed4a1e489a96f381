package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/gofiber/fiber/v2/utils"

	"examproctor_backend/internals/configs"
	database "examproctor_backend/internals/databases"
	anssvc "examproctor_backend/internals/features/exams/answers/service"
	aggsvc "examproctor_backend/internals/features/proctoring/aggregator/service"
	"examproctor_backend/internals/features/proctoring/analysis"
	"examproctor_backend/internals/features/proctoring/gateway"
	"examproctor_backend/internals/features/proctoring/notifier"
	"examproctor_backend/internals/features/proctoring/presence"
	"examproctor_backend/internals/features/proctoring/quickrules"
	"examproctor_backend/internals/features/sessions/scheduler"
	sessionsvc "examproctor_backend/internals/features/sessions/sessions/service"
	middlewares "examproctor_backend/internals/middlewares"
	routes "examproctor_backend/internals/route"
	routeDetails "examproctor_backend/internals/route/details"
)

func main() {
	configs.LoadEnv()

	app := fiber.New(fiber.Config{
		JSONEncoder:             sonic.Marshal,
		JSONDecoder:             sonic.Unmarshal,
		DisableStartupMessage:   true,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"0.0.0.0/0"},
	})

	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	app.Use(etag.New())

	// request id + timing; the per-request timeout matches the DB's
	// statement_timeout so neither side waits on the other
	app.Use(func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = utils.UUID()
		}
		c.Set("X-Request-ID", id)
		c.Locals("reqid", id)
		start := time.Now()
		ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
		defer cancel()
		c.SetUserContext(ctx)
		err := c.Next()
		dur := time.Since(start)
		log.Printf("[REQ] id=%s %s %s status=%d dur=%s", id, c.Method(), c.OriginalURL(), c.Response().StatusCode(), dur)
		return err
	})

	middlewares.SetupMiddlewares(app)

	database.ConnectDB()
	database.TunePool()
	database.WarmUpQueries()

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// fan-out hub + async pipeline
	hub := notifier.NewHub()
	presenceTracker := presence.NewTracker()
	publisher := analysis.NewPublisher()
	publisher.Start(rootCtx)

	// domain services
	answerStore := anssvc.NewAnswerStoreService(database.DB)
	lifecycle := sessionsvc.NewSessionLifecycleService(database.DB, answerStore, hub)
	aggregator, err := aggsvc.NewViolationAggregatorService(database.DB, hub, aggsvc.DefaultRiskWeights())
	if err != nil {
		log.Fatalf("❌ aggregator init failed: %v", err)
	}
	quickRules := quickrules.NewEvaluator(database.DB, hub)

	ingestGateway := gateway.NewGateway(
		database.DB,
		lifecycle,
		quickRules,
		publisher,
		presenceTracker,
		hub,
		configs.KafkaMediaTopic,
		configs.KafkaBehaviorTopic,
	)

	// periodic jobs after the DB is up
	runner := scheduler.NewRunner(database.DB, lifecycle, configs.SchedulerInterval, configs.HeartbeatTimeout)
	runner.Start(rootCtx)

	routes.SetupRoutes(app, database.DB, routeDetails.Deps{
		Lifecycle:  lifecycle,
		Aggregator: aggregator,
		Answers:    answerStore,
		Gateway:    ingestGateway,
	})

	app.Server().ReadTimeout = 15 * time.Second
	app.Server().WriteTimeout = 30 * time.Second
	app.Server().IdleTimeout = 90 * time.Second

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	go func() {
		log.Printf("✅ Listening on :%s", port)
		if err := app.Listen("0.0.0.0:" + port); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stop() // scheduler + publisher drain loop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)

	if sqlDB, err := database.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
