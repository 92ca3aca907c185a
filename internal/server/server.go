package server

import (
	"context"
	"log"
	"net/http"

	"codearena/configs"
	"codearena/internal/dbs"
	"codearena/internal/handlers"
	"codearena/internal/judge"
	"codearena/internal/logger"
	"codearena/internal/middlewares"
	"codearena/internal/repositories"
	"codearena/internal/services"
	"codearena/internal/workerpool"

	"github.com/gin-gonic/gin"
)

const (
	sweepStream = "submission_polls"
	sweepGroup  = "status_sweepers"
)

func StartGinServer() {
	logger.InitLogger()
	defer logger.SyncLogger()

	config := configs.LoadConfig()

	db, err := dbs.Init(config)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	redisClient, err := dbs.InitRedis(ctx, config.RedisAddr)
	if err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer redisClient.Close()

	cache := services.NewRedisCache(redisClient)
	tokenService := services.NewTokenService(config.JWTSecret)

	userRepo := repositories.NewUserRepository(db)
	problemRepo := repositories.NewProblemRepository(db, cache)
	languageRepo := repositories.NewLanguageRepository(db)
	submissionStore := repositories.NewSubmissionRepository(db)

	judgeClient := judge.NewClient(judge.Config{
		BaseURL:       config.JudgeURL,
		Timeout:       config.JudgeTimeout,
		PollInterval:  config.JudgePollInterval,
		RetryInterval: config.JudgeRetryInterval,
	})
	pollOptions := judge.PollOptions{
		Timeout:       config.JudgeTimeout,
		Interval:      config.JudgePollInterval,
		RetryInterval: config.JudgeRetryInterval,
	}

	sweepQueue := workerpool.NewQueue(redisClient, sweepStream)

	submissionService := services.NewSubmissionService(
		submissionStore, problemRepo, languageRepo, judgeClient, pollOptions, sweepQueue)
	verificationService := services.NewVerificationService(languageRepo, judgeClient, pollOptions)

	pool := workerpool.NewSweepWorkerPool(
		config.NumberOfWorkers, redisClient, sweepStream, sweepGroup, submissionService)
	if err := pool.Start(ctx); err != nil {
		logger.Log.Error("Failed starting worker pool")
		log.Fatalf("failed to start worker pool: %v", err)
	}
	defer pool.Stop()

	router := gin.New()
	router.Use(middlewares.ErrorHandlerMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	auth := middlewares.AuthMiddleware(tokenService)

	handlers.NewAuthHandler(userRepo, tokenService).RegisterRoutes(router)
	handlers.NewProblemHandler(problemRepo, verificationService).RegisterRoutes(router, auth)
	handlers.NewSubmissionHandler(submissionService).RegisterRoutes(router, auth)

	port := ":" + config.ServerPort
	log.Printf("Starting server on port %s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
