package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/creatorpay/backend/docs"
	"github.com/creatorpay/backend/internal/database"
	"github.com/creatorpay/backend/internal/handlers"
	mW "github.com/creatorpay/backend/internal/middleware"
	"github.com/creatorpay/backend/internal/services"
)

// @title CreatorPay Commission Ledger API
// @version 1.0
// @description Commission ledger and payout engine for the affiliate program
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("ledger.currency", "LEDGER_CURRENCY")
	viper.BindEnv("share.base_url", "SHARE_BASE_URL")

	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	docs.SwaggerInfo.Title = "CreatorPay Commission Ledger API"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"

	// Connection pool is acquired once here and injected everywhere;
	// individual operations open scoped transactions on it.
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	ledgerService := services.NewLedgerService(db)
	registryService := services.NewRegistryService(db)
	settlementService := services.NewSettlementService(db, redisClient)
	saleService := services.NewSaleService(db, ledgerService, registryService)
	payoutService := services.NewPayoutService(db, ledgerService, settlementService)
	queryService := services.NewQueryService(ledgerService, payoutService)
	authService := services.NewAuthService(db, redisClient)
	codeHandler := handlers.NewCodeHandler(registryService, redisClient)

	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Everything touching the ledger requires a bearer token
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			// Sale intake boundary
			r.Post("/sales", saleService.RecordSale)

			// Payout lifecycle
			r.Post("/payouts", payoutService.CreatePayout)
			r.Post("/payouts/{payoutId}/approve", payoutService.ApprovePayout)
			r.Post("/payouts/{payoutId}/reject", payoutService.RejectPayout)
			r.Post("/payouts/{payoutId}/paid", payoutService.ConfirmPaid)
			r.Get("/payouts/{payoutId}/remittance", settlementService.Remittance)

			// Read-only ledger facade
			r.Get("/influencers/{influencerId}/balance", queryService.GetBalance)
			r.Get("/influencers/{influencerId}/movements", queryService.ListMovements)
			r.Get("/influencers/{influencerId}/payouts", queryService.ListPayouts)
			r.Get("/influencers/{influencerId}/reconcile", queryService.Reconcile)

			// Registry administration
			r.Post("/influencers", registryService.CreateInfluencer)
			r.Post("/codes", registryService.CreateCode)
			r.Get("/codes/{codeId}/qr", codeHandler.ShareQR)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
