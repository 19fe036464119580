package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-billing-api/internal/gateway"
	"github.com/noah-isme/lms-billing-api/internal/repository"
	"github.com/noah-isme/lms-billing-api/internal/service"
	"github.com/noah-isme/lms-billing-api/pkg/config"
	"github.com/noah-isme/lms-billing-api/pkg/database"
	"github.com/noah-isme/lms-billing-api/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if !cfg.Sweeper.Enabled && !*once {
		logr.Info("sweeper disabled by configuration")
		return
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	planRepo := repository.NewPlanRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	userRepo := repository.NewUserRepository(db)

	gw := gateway.NewMidtrans(cfg.Gateway, logr)
	metrics := service.NewMetricsService()

	notifier := service.NewNotificationService(logr, 2)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	notifier.Start(ctx)
	defer notifier.Stop()

	emiService := service.NewEMIService(db, planRepo, paymentRepo, enrollmentRepo, userRepo, nil, gw, notifier, metrics, nil, logr, cfg.Billing)
	sweeper := service.NewSweeperService(planRepo, emiService, notifier, metrics, logr, cfg.Billing)

	run := func() {
		if _, err := sweeper.ProcessOverdue(ctx); err != nil {
			logr.Error("overdue sweep failed", zap.Error(err))
		}
		if _, err := sweeper.SendReminders(ctx); err != nil {
			logr.Error("reminder dispatch failed", zap.Error(err))
		}
	}

	if *once {
		run()
		return
	}

	logr.Sugar().Infow("sweeper starting", "interval", cfg.Sweeper.Interval)
	ticker := time.NewTicker(cfg.Sweeper.Interval)
	defer ticker.Stop()

	run()
	for {
		select {
		case <-ctx.Done():
			logr.Info("sweeper stopping")
			return
		case <-ticker.C:
			run()
		}
	}
}
