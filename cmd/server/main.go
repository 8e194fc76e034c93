package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/agriai/server/internal/auth"
	"github.com/agriai/server/internal/config"
	"github.com/agriai/server/internal/database"
	"github.com/agriai/server/internal/events"
	"github.com/agriai/server/internal/handler"
	"github.com/agriai/server/internal/logger"
	"github.com/agriai/server/internal/middleware"
	"github.com/agriai/server/internal/openweather"
	"github.com/agriai/server/internal/repository"
	"github.com/agriai/server/internal/scheduler"
	"github.com/agriai/server/internal/service"
	"github.com/agriai/server/internal/storage"
)

// main is the single entry-point for the REST API.
func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Env, cfg.LogFile)
	if err != nil {
		stdlog.Fatalf("failed to initialise logger: %v", err)
	}
	defer log.Sync()

	// Connect to MongoDB
	client, mongoCtx, mongoCancel, err := database.NewMongo(cfg.MongoURI)
	if err != nil {
		log.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer mongoCancel()
	defer client.Disconnect(mongoCtx)
	db := client.Database(cfg.DBName)
	log.Info("connected to MongoDB", zap.String("database", cfg.DBName))

	idxCtx, idxCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer idxCancel()
	if err := repository.EnsureIndexes(idxCtx, db); err != nil {
		log.Fatal("failed to ensure indexes", zap.Error(err))
	}

	// Object storage for uploaded images
	store, err := storage.New(storage.Config{
		Endpoint:     cfg.StorageEndpoint,
		Region:       cfg.StorageRegion,
		Bucket:       cfg.StorageBucket,
		AccessKey:    cfg.StorageAccessKey,
		SecretKey:    cfg.StorageSecretKey,
		UsePathStyle: cfg.StoragePathStyle,
	}, log)
	if err != nil {
		log.Fatal("failed to initialise object storage", zap.Error(err))
	}
	bucketCtx, bucketCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bucketCancel()
	if err := store.EnsureBucket(bucketCtx); err != nil {
		log.Fatal("failed to ensure storage bucket", zap.Error(err))
	}

	// Vertex AI: chat/advice model and the deployed crop classifier
	llm, err := service.NewVertexLLM(context.Background(), cfg.ProjectID, cfg.Location, cfg.ChatModel)
	if err != nil {
		log.Fatal("failed to initialise Vertex AI chat model", zap.Error(err))
	}
	defer llm.Close()

	classifier, err := service.NewVertexClassifier(context.Background(), cfg.ProjectID, cfg.Location, cfg.ClassifierEndpointID)
	if err != nil {
		log.Fatal("failed to initialise Vertex AI classifier", zap.Error(err))
	}
	defer classifier.Close()

	weatherAPI := openweather.NewClient(&http.Client{Timeout: 10 * time.Second}, cfg.OpenWeatherKey, cfg.OpenWeatherBaseURL)

	// In-process queue for analysis jobs
	queue := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	defer queue.Close()

	// NATS is optional: without it the feed still works, only the
	// notification fan-out goes dark.
	var eventPub service.EventPublisher
	natsPub, err := events.NewPublisher(cfg.NATSURL)
	if err != nil {
		log.Warn("community notifications disabled", zap.Error(err))
	} else {
		eventPub = natsPub
		defer natsPub.Close()
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	analysisRepo := repository.NewAnalysisRepository(db)
	chatRepo := repository.NewChatRepository(db)
	weatherRepo := repository.NewWeatherRepository(db)
	postRepo := repository.NewPostRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	historyCache := repository.NewHistoryCache()

	// Services
	tokens := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	authSvc := service.NewAuthService(userRepo, tokens)
	analysisSvc := service.NewAnalysisService(analysisRepo, store, queue, service.TopicAnalysisJobs, log)
	chatSvc := service.NewChatService(chatRepo, historyCache, llm, log)
	weatherSvc := service.NewWeatherService(weatherRepo, weatherAPI, log)
	communitySvc := service.NewCommunityService(postRepo, userRepo, store, eventPub, log)
	notificationSvc := service.NewNotificationService(notificationRepo, log)

	// Background consumers
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	worker := service.NewAnalysisWorker(queue, service.TopicAnalysisJobs, analysisRepo, store, classifier, llm, log)
	if err := worker.Run(workerCtx); err != nil {
		log.Fatal("failed to start analysis worker", zap.Error(err))
	}

	natsSub, err := events.NewSubscriber(cfg.NATSURL, log)
	if err != nil {
		log.Warn("notification consumer disabled", zap.Error(err))
	} else {
		if err := natsSub.Subscribe("notifications", notificationSvc.HandlePostEvent); err != nil {
			log.Warn("failed to start notification consumer", zap.Error(err))
		}
		defer natsSub.Close()
	}

	sched := scheduler.New(weatherSvc, cfg.RefreshInterval, log)
	if err := sched.Start(); err != nil {
		log.Warn("weather refresh scheduler not started", zap.Error(err))
	}
	defer sched.Stop()

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName:               "agriai-server",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          handler.ErrorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New())
	app.Use(middleware.Logging(log))

	handler.NewHealthHandler(client).Register(app)
	handler.RegisterRoutes(app, middleware.RequireAuth(tokens),
		authSvc, analysisSvc, chatSvc, weatherSvc, communitySvc, notificationSvc)

	go func() {
		log.Info("server listening", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal("server stopped unexpectedly", zap.Error(err))
		}
	}()

	// Block until SIGINT/SIGTERM, then drain in-flight requests before the
	// deferred closers tear the rest down.
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}
}
