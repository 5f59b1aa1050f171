package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/asg67/finmanager/backend/src/bankapi"
	"github.com/asg67/finmanager/backend/src/config"
	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/handlers"
	"github.com/asg67/finmanager/backend/src/logger"
	"github.com/asg67/finmanager/backend/src/security"
	"github.com/asg67/finmanager/backend/src/services"
)

func proxyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			r.URL.Scheme = "https"
			r.TLS = &tls.ConnectionState{}
		}
		next.ServeHTTP(w, r)
	})
}

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000":    true,
			config.Cfg.FrontendBaseURL: true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("FinManager backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)

	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	authService := security.NewAuthService(config.Cfg.JWTSecret)
	registry := bankapi.NewRegistry()
	syncService := services.NewSyncService(registry)
	pdfService := services.NewPdfService()
	analyticsService := services.NewAnalyticsService(reportCache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reminderService := services.NewReminderService(syncService, analyticsService)
	reminderService.Start(ctx)

	authHandler := handlers.NewAuthHandler(authService)
	entityHandler := handlers.NewEntityHandler()
	accountHandler := handlers.NewAccountHandler()
	expenseHandler := handlers.NewExpenseHandler()
	operationHandler := handlers.NewOperationHandler()
	employeeHandler := handlers.NewEmployeeHandler()
	connectionHandler := handlers.NewBankConnectionHandler(syncService, analyticsService)
	pdfHandler := handlers.NewPdfHandler(pdfService, analyticsService)
	notificationHandler := handlers.NewNotificationHandler()
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)
	exportHandler := handlers.NewExportHandler()

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(proxyHeadersMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "FinManager Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Get("/auth/csrf", handlers.GetCSRFToken)
		})

		// Auth routes (CSRF only)
		r.Group(func(r chi.Router) {
			r.Use(handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey))
			r.Post("/auth/register", authHandler.RegisterHandler)
			r.Post("/auth/login", authHandler.LoginHandler)
			r.Post("/auth/refresh", authHandler.RefreshTokenHandler)
			r.With(authHandler.AuthMiddleware).Post("/auth/logout", authHandler.LogoutHandler)
		})

		// Protected routes (CSRF + auth)
		r.Group(func(r chi.Router) {
			r.Use(handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey))
			r.Use(authHandler.AuthMiddleware)

			r.Get("/auth/me", authHandler.MeHandler)
			r.Put("/user/profile", authHandler.UpdateProfileHandler)
			r.Post("/user/change-password", authHandler.ChangePasswordHandler)

			r.Get("/entities", entityHandler.ListEntities)
			r.Post("/entities", entityHandler.CreateEntity)
			r.Get("/entities/{id}", entityHandler.GetEntity)
			r.Put("/entities/{id}", entityHandler.UpdateEntity)
			r.Delete("/entities/{id}", entityHandler.DeleteEntity)

			r.Route("/entities/{entityID}", func(r chi.Router) {
				r.Get("/accounts", accountHandler.ListAccounts)
				r.Post("/accounts", accountHandler.CreateAccount)
				r.Put("/accounts/{id}", accountHandler.UpdateAccount)
				r.Delete("/accounts/{id}", accountHandler.DeleteAccount)

				r.Get("/expense-types", expenseHandler.ListExpenseTypes)
				r.Post("/expense-types", expenseHandler.CreateExpenseType)
				r.Put("/expense-types/{typeID}", expenseHandler.UpdateExpenseType)
				r.Delete("/expense-types/{typeID}", expenseHandler.DeleteExpenseType)
				r.Post("/expense-types/{typeID}/articles", expenseHandler.CreateExpenseArticle)
				r.Put("/expense-types/{typeID}/articles/{articleID}", expenseHandler.UpdateExpenseArticle)
				r.Delete("/expense-types/{typeID}/articles/{articleID}", expenseHandler.DeleteExpenseArticle)

				r.Group(func(r chi.Router) {
					r.Use(handlers.RequirePermission("dds"))
					r.Get("/operations", operationHandler.ListOperations)
					r.Post("/operations", operationHandler.CreateOperation)
					r.Put("/operations/{id}", operationHandler.UpdateOperation)
					r.Delete("/operations/{id}", operationHandler.DeleteOperation)
					r.Get("/templates", operationHandler.ListTemplates)
					r.Post("/templates", operationHandler.CreateTemplate)
					r.Put("/templates/{id}", operationHandler.UpdateTemplate)
					r.Delete("/templates/{id}", operationHandler.DeleteTemplate)
				})

				r.Get("/bank-connections", connectionHandler.ListConnections)
				r.Post("/bank-connections", connectionHandler.CreateConnection)
				r.Post("/bank-connections/test", connectionHandler.TestConnection)
				r.Put("/bank-connections/{id}", connectionHandler.UpdateConnection)
				r.Delete("/bank-connections/{id}", connectionHandler.DeleteConnection)
				r.Post("/bank-connections/{id}/test", connectionHandler.TestStoredConnection)
				r.Get("/bank-connections/{id}/accounts", connectionHandler.ListBankAccounts)
				r.Post("/bank-connections/{id}/sync", connectionHandler.Sync)
				r.Get("/bank-transactions", connectionHandler.ListBankTransactions)

				r.Group(func(r chi.Router) {
					r.Use(handlers.RequirePermission("analytics"))
					r.Get("/analytics/summary", analyticsHandler.GetSummary)
					r.Get("/analytics/by-category", analyticsHandler.GetByCategory)
					r.Get("/analytics/timeline", analyticsHandler.GetTimeline)
					r.Get("/analytics/recent", analyticsHandler.GetRecent)
				})

				r.Group(func(r chi.Router) {
					r.Use(handlers.RequirePermission("export"))
					r.Get("/export/dds", exportHandler.ExportOperations)
					r.Get("/export/transactions", exportHandler.ExportBankTransactions)
				})
			})

			r.Group(func(r chi.Router) {
				r.Use(handlers.RequirePermission("pdf_upload"))
				r.Post("/pdf/upload", pdfHandler.UploadStatement)
				r.Get("/pdf/uploads", pdfHandler.ListUploads)
				r.Get("/pdf/uploads/{id}", pdfHandler.GetParsedStatement)
				r.Post("/pdf/uploads/{id}/confirm", pdfHandler.ConfirmStatement)
				r.Post("/pdf/uploads/{id}/discard", pdfHandler.DiscardStatement)
			})

			r.Get("/notifications", notificationHandler.ListNotifications)
			r.Get("/notifications/count", notificationHandler.UnreadCount)
			r.Put("/notifications/{id}/read", notificationHandler.MarkRead)
			r.Put("/notifications/read-all", notificationHandler.MarkAllRead)
			r.Delete("/notifications/{id}", notificationHandler.DeleteNotification)

			// Employee management (owners only)
			r.Group(func(r chi.Router) {
				r.Use(handlers.RequireOwner)
				r.Get("/employees", employeeHandler.ListEmployees)
				r.Post("/employees", employeeHandler.CreateEmployee)
				r.Put("/employees/{id}", employeeHandler.UpdateEmployee)
				r.Delete("/employees/{id}", employeeHandler.DeleteEmployee)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
		}
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
