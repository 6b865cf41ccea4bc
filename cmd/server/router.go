package main

import (
	"net/http"
	"time"

	"pharmacy-inventory/internal/handlers"
	"pharmacy-inventory/internal/middleware"
	"pharmacy-inventory/internal/models"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// newRouter builds the HTTP API
func newRouter(a *app) http.Handler {
	cfg := a.cfg
	logger := a.logger

	csrfProtection := middleware.NewCSRFProtection(cfg.Security.CSRFSecret)
	rateLimiter := middleware.NewRateLimiter(cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow)
	loginRateLimiter := middleware.NewRateLimiter(cfg.Security.LoginRateLimit, cfg.Security.LoginRateWindow)
	authMiddleware := middleware.NewAuthMiddleware(a.jwt)
	cookie := handlers.CookieOptions{Secure: cfg.IsProduction(), Duration: cfg.Security.SessionDuration}

	var redisPing handlers.Pinger
	var subscriber handlers.AlertSubscriber
	if a.broadcaster != nil {
		redisPing = handlers.PingFunc(a.broadcaster.Ping)
		subscriber = a.broadcaster
	}

	staff := middleware.RequireRole(models.RoleAdmin, models.RolePharmacist)
	admin := middleware.RequireRole(models.RoleAdmin)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders(cfg.Security.CSPEnabled, cfg.Security.HSTSEnabled))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Security.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.HandleHealth(a.db, redisPing, logger))

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(rateLimiter.Middleware)
		r.With(loginRateLimiter.Middleware).Post("/api/auth/login", handlers.HandleLogin(a.users, cookie, logger))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)
		r.Use(rateLimiter.Middleware)
		r.Use(csrfProtection.Middleware)

		// Long-lived event stream, exempt from the request timeout
		r.Get("/api/alerts/stream", handlers.HandleAlertStream(subscriber, logger))

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(60 * time.Second))

			r.Route("/api", func(r chi.Router) {
				r.Get("/csrf-token", handlers.HandleCSRFToken(csrfProtection))

				r.Get("/auth/me", handlers.HandleGetCurrentUser(a.users, logger))
				r.Post("/auth/logout", handlers.HandleLogout(a.users, cookie))

				r.Route("/medicines", func(r chi.Router) {
					r.Get("/", handlers.HandleListMedicines(a.inventory, logger))
					r.With(staff).Post("/", handlers.HandleCreateMedicine(a.inventory, logger))
					r.Get("/{id}", handlers.HandleGetMedicine(a.inventory, logger))
					r.With(staff).Put("/{id}", handlers.HandleUpdateMedicine(a.inventory, logger))
					r.With(admin).Delete("/{id}", handlers.HandleDeleteMedicine(a.inventory, logger))
					r.Get("/{id}/issuances", handlers.HandleGetMedicineIssuances(a.inventory, logger))
					r.With(staff).Get("/{id}/history", handlers.HandleGetMedicineHistory(a.activity, logger))
				})

				r.Route("/issuances", func(r chi.Router) {
					r.Get("/", handlers.HandleListIssuances(a.inventory, logger))
					r.Post("/", handlers.HandleIssueMedicine(a.inventory, logger))
					r.Get("/{id}", handlers.HandleGetIssuance(a.inventory, logger))
				})

				r.Route("/alerts", func(r chi.Router) {
					r.Get("/", handlers.HandleListAlerts(a.alerts, logger))
					r.Get("/unread-count", handlers.HandleUnreadAlertCount(a.alerts, logger))
					r.Put("/read-all", handlers.HandleMarkAllAlertsRead(a.alerts, logger))
					r.Put("/{id}/read", handlers.HandleMarkAlertRead(a.alerts, logger))
					r.Delete("/{id}", handlers.HandleDeleteAlert(a.alerts, logger))
					r.With(admin).Post("/scan", handlers.HandleStockScan(a.inventory, logger))
				})

				r.With(admin).Get("/activity", handlers.HandleListActivity(a.activity, logger))
				r.Get("/reports/inventory", handlers.HandleInventoryReport(a.reports, logger))

				r.Route("/export", func(r chi.Router) {
					r.Use(staff)
					r.Get("/medicines.csv", handlers.HandleExportMedicinesCSV(a.inventory, logger))
					r.Get("/issuances.csv", handlers.HandleExportIssuancesCSV(a.inventory, logger))
				})

				r.Route("/backups", func(r chi.Router) {
					r.Use(admin)
					r.Get("/", handlers.HandleListBackups(cfg.Backup.Dir, logger))
					r.Post("/", handlers.HandleCreateBackup(a.db, cfg.Backup.Dir, logger))
				})

				r.Route("/users", func(r chi.Router) {
					r.Use(admin)
					r.Get("/", handlers.HandleListUsers(a.users, logger))
					r.Post("/", handlers.HandleCreateUser(a.users, logger))
					r.Put("/{id}", handlers.HandleUpdateUser(a.users, logger))
					r.Delete("/{id}", handlers.HandleDeleteUser(a.users, logger))
				})
			})
		})
	})

	return r
}
