package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/lms-billing-api/api/swagger"
	"github.com/noah-isme/lms-billing-api/internal/gateway"
	"github.com/noah-isme/lms-billing-api/internal/handler"
	"github.com/noah-isme/lms-billing-api/internal/middleware"
	"github.com/noah-isme/lms-billing-api/internal/models"
	"github.com/noah-isme/lms-billing-api/internal/repository"
	"github.com/noah-isme/lms-billing-api/internal/service"
	"github.com/noah-isme/lms-billing-api/pkg/cache"
	"github.com/noah-isme/lms-billing-api/pkg/config"
	"github.com/noah-isme/lms-billing-api/pkg/database"
	"github.com/noah-isme/lms-billing-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lms-billing-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lms-billing-api/pkg/middleware/requestid"
)

// @title LMS Billing API
// @version 1.0.0
// @description Installment billing and course access engine
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	planRepo := repository.NewPlanRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	userRepo := repository.NewUserRepository(db)

	gw := gateway.NewMidtrans(cfg.Gateway, logr)
	metrics := service.NewMetricsService()

	notifier := service.NewNotificationService(logr, 2)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	notifier.Start(ctx)
	defer notifier.Stop()

	// Redis only backs the summary cache; the API degrades without it.
	var emiService *service.EMIService
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, summary cache disabled", "error", err)
		emiService = service.NewEMIService(db, planRepo, paymentRepo, enrollmentRepo, userRepo, nil, gw, notifier, metrics, nil, logr, cfg.Billing)
	} else {
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		emiService = service.NewEMIService(db, planRepo, paymentRepo, enrollmentRepo, userRepo, cacheRepo, gw, notifier, metrics, nil, logr, cfg.Billing)
	}

	authService := service.NewAuthService(service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret}, logr)
	accessService := service.NewAccessService(paymentRepo, planRepo, logr)
	paymentService := service.NewPaymentService(db, courseRepo, paymentRepo, planRepo, enrollmentRepo, userRepo, gw, notifier, metrics, nil, logr, cfg.Billing)
	sweeperService := service.NewSweeperService(planRepo, emiService, notifier, metrics, logr, cfg.Billing)

	emiHandler := handler.NewEMIHandler(emiService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	courseHandler := handler.NewCourseHandler(courseRepo)
	adminHandler := handler.NewAdminHandler(emiService, sweeperService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	courses := api.Group("/courses")
	courses.GET("", courseHandler.List)
	courses.GET("/:courseId", middleware.OptionalJWT(authService), optionalAccess(accessService), courseHandler.Detail)
	courses.GET("/:courseId/content", middleware.JWT(authService), middleware.CourseAccess(accessService), courseHandler.Content)

	payments := api.Group("/payments", middleware.JWT(authService))
	payments.GET("", paymentHandler.History)
	payments.POST("/purchase", paymentHandler.Purchase)
	payments.POST("/verify", paymentHandler.Verify)
	payments.GET("/:paymentId/receipt", paymentHandler.Receipt)

	emi := api.Group("/emi", middleware.JWT(authService))
	emi.GET("/status/:courseId", emiHandler.Status)
	emi.GET("/due/:courseId", emiHandler.Due)
	emi.GET("/summary", emiHandler.Summary)
	emi.POST("/pay-overdue", emiHandler.PayOverdue)
	emi.POST("/pay-monthly", emiHandler.PayMonthly)
	emi.POST("/verify-payment", emiHandler.VerifyPayment)

	admin := api.Group("/admin/emi", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/fix/:userId/:courseId", adminHandler.FixStatus)
	admin.POST("/fix-all", adminHandler.FixAll)
	admin.POST("/sweep", adminHandler.Sweep)
	admin.POST("/reminders", adminHandler.Reminders)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown incomplete", "error", err)
	}
}

// optionalAccess attaches an access decision when the request carries valid
// claims, and passes through anonymously otherwise.
func optionalAccess(accessService *service.AccessService) gin.HandlerFunc {
	gate := middleware.CourseAccess(accessService)
	return func(c *gin.Context) {
		if _, exists := c.Get(middleware.ContextUserKey); !exists {
			c.Next()
			return
		}
		gate(c)
	}
}
