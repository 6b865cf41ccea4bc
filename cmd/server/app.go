package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"pharmacy-inventory/internal/auth"
	"pharmacy-inventory/internal/broadcast"
	"pharmacy-inventory/internal/config"
	"pharmacy-inventory/internal/database"
	"pharmacy-inventory/internal/repository"
	"pharmacy-inventory/internal/services"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the wired dependencies shared by every subcommand
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
	redis  *redis.Client

	// nil when redis is not configured
	broadcaster *broadcast.Broadcaster

	jwt       *auth.JWTManager
	inventory *services.InventoryService
	alerts    *services.AlertService
	activity  *services.ActivityService
	users     *services.UserService
	reports   *services.ReportService
	sweeper   *services.AlertSweeper
}

func openDatabase(path string) (*database.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return database.Open(path)
}

// openApp opens storage, applies migrations and builds the services
func openApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	applied, err := db.RunMigrations()
	if err != nil {
		db.Close()
		return nil, err
	}
	if len(applied) > 0 {
		logger.Info("Applied migrations", zap.Strings("names", applied))
	}

	a := &app{cfg: cfg, logger: logger, db: db}

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.broadcaster = broadcast.New(a.redis, cfg.Alerts.Channel, logger.Named("broadcast"))
		if err := a.broadcaster.Ping(ctx); err != nil {
			// Alerts are still stored; only live delivery waits for redis
			logger.Warn("Redis unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}

	a.wire()
	return a, nil
}

func (a *app) wire() {
	medicineRepo := repository.NewMedicineRepository(a.db)
	issuanceRepo := repository.NewIssuanceRepository(a.db)
	activityRepo := repository.NewActivityRepository(a.db)
	alertRepo := repository.NewAlertRepository(a.db)
	userRepo := repository.NewUserRepository(a.db)

	var publisher services.AlertPublisher
	if a.broadcaster != nil {
		publisher = a.broadcaster
	}

	a.jwt = auth.NewJWTManager(a.cfg.Security.JWTSecret, a.cfg.Security.SessionDuration)
	recorder := services.NewActivityRecorder(activityRepo, a.logger.Named("activity"))
	a.alerts = services.NewAlertService(alertRepo, publisher, a.cfg.Alerts.TTL, a.logger.Named("alerts"))
	a.inventory = services.NewInventoryService(medicineRepo, issuanceRepo, recorder, a.alerts, a.logger.Named("inventory"))
	a.activity = services.NewActivityService(activityRepo)
	a.users = services.NewUserService(userRepo, a.jwt, recorder, a.alerts, a.logger.Named("users"))
	a.reports = services.NewReportService(medicineRepo, issuanceRepo)
	a.sweeper = services.NewAlertSweeper(a.alerts, a.cfg.Alerts.SweepInterval, a.logger.Named("sweeper"))
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("Failed to close database", zap.Error(err))
	}
}
