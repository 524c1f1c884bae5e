// cmd/server is the application entry point. It wires together all
// layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/procur/school-events/internal/clock"
	"github.com/procur/school-events/internal/config"
	"github.com/procur/school-events/internal/database"
	"github.com/procur/school-events/internal/handler"
	"github.com/procur/school-events/internal/repository"
	"github.com/procur/school-events/internal/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(*configPath, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(configPath string, log *zap.Logger) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// 1. Connect to PostgreSQL and apply the schema.
	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("connected to postgres", zap.String("host", cfg.Database.Host))

	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		return err
	}

	// 2. Wire up layers.
	clk := clock.NewSystem()

	userRepo := repository.NewUserRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	regRepo := repository.NewRegistrationRepository(pool)
	notifRepo := repository.NewNotificationRepository(pool)
	reportRepo := repository.NewReportRepository(pool)

	authSvc := service.NewAuthService(userRepo, notifRepo, clk, log, cfg.Auth, cfg.BaseURL)
	eventSvc := service.NewEventService(eventRepo, notifRepo, clk, log, cfg.UploadsDir)
	regSvc := service.NewRegistrationService(regRepo, eventRepo, notifRepo, clk, log)
	notifSvc := service.NewNotificationService(notifRepo, clk)
	exportSvc := service.NewExportService(reportRepo, userRepo, eventRepo)

	authHandler := handler.NewAuthHandler(authSvc, log)
	eventHandler := handler.NewEventHandler(eventSvc, log)
	regHandler := handler.NewRegistrationHandler(regSvc, log)
	notifHandler := handler.NewNotificationHandler(notifSvc)
	adminHandler := handler.NewAdminHandler(authSvc, eventSvc, exportSvc, log)
	calHandler := handler.NewCalendarHandler(exportSvc, log)

	loginLimiter := handler.NewRateLimiter(handler.LimiterConfig{
		RPS:     1,
		Burst:   5,
		IdleTTL: 10 * time.Minute,
	})

	// 3. Build the router.
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.Logger(log))
	r.Use(handler.CORS)

	r.Get("/health", handler.HealthCheck)

	// Public routes.
	r.Group(func(r chi.Router) {
		r.With(loginLimiter.Middleware(handler.ClientIP)).Post("/signup", authHandler.Signup)
		r.With(loginLimiter.Middleware(handler.ClientIP)).Post("/login", authHandler.Login)
		r.Get("/verify/{token}", authHandler.VerifyEmail)
		r.Post("/password/forgot", authHandler.ForgotPassword)
		r.Post("/password/reset/{token}", authHandler.ResetPassword)

		r.Get("/events", eventHandler.List)
		r.Get("/events/{eventID}", eventHandler.Get)
		r.Get("/event/{eventID}/calendar.ics", calHandler.EventICS)
	})

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(handler.RequireUser(authSvc))

		r.Get("/me", authHandler.Me)
		r.Post("/verify/request", authHandler.RequestVerification)

		r.Post("/events", eventHandler.Create)
		r.Post("/event/{eventID}/register", regHandler.Register)
		r.Get("/event/{eventID}/waitlist", regHandler.Waitlist)
		r.Get("/event/{eventID}/registrations", regHandler.ListForEvent)
		r.Post("/event/{eventID}/registration/{regID}/approve", regHandler.Approve)
		r.Post("/event/{eventID}/toggle_approval", eventHandler.ToggleApproval)
		r.Post("/event/{eventID}/delegate", eventHandler.Delegate)
		r.Post("/event/{eventID}/upload", eventHandler.Upload)
		r.Get("/event/{eventID}/attachments", eventHandler.Attachments)

		r.Get("/checkin/{token}", regHandler.CheckIn)
		r.Get("/ticket/{token}.png", regHandler.Ticket)
		r.Get("/calendar/feed.ics", calHandler.MyFeedICS)

		r.Get("/notifications", notifHandler.List)
		r.Get("/notifications/unread", notifHandler.UnreadCount)
		r.Post("/notifications/{notificationID}/read", notifHandler.MarkRead)
	})

	// Admin routes.
	r.Group(func(r chi.Router) {
		r.Use(handler.RequireUser(authSvc))
		r.Use(handler.RequireAdmin)

		r.Get("/admin/users", adminHandler.ListUsers)
		r.Post("/admin/user/{userID}/toggle_role", adminHandler.ToggleRole)
		r.Post("/admin/event/{eventID}/toggle_status", adminHandler.ToggleStatus)
		r.Get("/admin/export/{report}.csv", adminHandler.ExportCSV)
	})

	// 4. Start server with graceful shutdown.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
