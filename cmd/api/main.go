package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "templeadmin/api/swagger" // swagger docs
	"templeadmin/internal/config"
	"templeadmin/internal/database"
	"templeadmin/internal/handler"
	"templeadmin/internal/middleware"
	"templeadmin/internal/repository"
	"templeadmin/internal/service"
	"templeadmin/internal/websocket"
	applogger "templeadmin/pkg/logger"
	"templeadmin/pkg/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Temple Approval API
// @version         1.0
// @description     Approval workflow for temple bookings, food service and donations.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load(os.Getenv("TEMPLE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := applogger.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.NewConnection(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}

	var grantCache service.GrantCache = service.NewMemoryGrantCache(cfg.Auth.GrantCacheTTL)
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = redis.NewClient(&cfg.Redis, cfg.Auth.GrantCacheTTL, logger)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		grantCache = redisClient
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	wsHub := websocket.NewHub(cfg.Server.AllowOrigins, logger)
	go wsHub.Run(hubCtx)

	// Repository -> Service -> Handler
	txManager := repository.NewRetryingTxManager(
		repository.NewTransactionManager(db),
		repository.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		logger,
	)
	repo := repository.NewRepository(db, txManager)
	svc := service.NewService(repo, grantCache, wsHub, logger)

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	if err := svc.Grant.SeedPermissions(seedCtx); err != nil {
		logger.Warn("failed to seed permission catalog", zap.Error(err))
	}
	cancelSeed()

	secret := []byte(cfg.Auth.JWTSecret)
	auth := middleware.Authenticate(secret, svc.Grant, logger)

	approvalHandler := handler.NewApprovalHandler(svc.Approval, svc.Query)
	requestHandler := handler.NewRequestHandler(svc.Approval, svc.Query)
	grantHandler := handler.NewGrantHandler(svc.Grant)

	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Request-ID"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err == nil && redisClient != nil {
			err = redisClient.Ping(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DEGRADED"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, secret, svc.Grant)
	})

	approvalHandler.RegisterRoutes(router.Group(""), auth)
	requestHandler.RegisterRoutes(router.Group(""), middleware.OptionalAuthenticate(secret, svc.Grant))
	grantHandler.RegisterRoutes(router.Group(""), auth)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	stopHub()

	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("server stopped")
}
