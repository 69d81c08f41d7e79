package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/portfolio-api/internal/config"
	"github.com/yourusername/portfolio-api/internal/handler"
	"github.com/yourusername/portfolio-api/internal/middleware"
	pgRepo "github.com/yourusername/portfolio-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/portfolio-api/internal/repository/redis"
	"github.com/yourusername/portfolio-api/internal/service"
	"github.com/yourusername/portfolio-api/pkg/auth"
	"github.com/yourusername/portfolio-api/pkg/database"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Loading configuration from %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Repositories
	userRepo := pgRepo.NewUserRepo(db)

	otpRepo, err := redisRepo.NewOtpTokenRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize OtpTokenRepo: %v", err)
		os.Exit(1)
	}

	// Email gateway. The resend provider is validated up front so a
	// misconfigured key fails at startup rather than on the first send.
	var emailService service.EmailService
	if cfg.Email.Provider == "resend" {
		resendService, errEmail := service.NewResendEmailService(cfg.Email.APIKey, cfg.Email.From, cfg.Email.Owner)
		if errEmail != nil {
			log.Printf("Failed to initialize Resend email service: %v", errEmail)
			os.Exit(1)
		}
		emailService = resendService
	} else {
		log.Println("[Email] No provider configured, outbound mail is logged only")
		emailService = &service.NoopEmailService{}
	}

	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpirationHrs)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	// Services
	otpService, err := service.NewOtpService(
		userRepo,
		otpRepo,
		emailService,
		time.Duration(cfg.OTP.TTLSeconds)*time.Second,
		cfg.OTP.MaxAttempts,
		cfg.OTP.CodePepper,
	)
	if err != nil {
		log.Printf("Failed to initialize OtpService: %v", err)
		os.Exit(1)
	}

	authService, err := service.NewAuthService(userRepo, jwtService)
	if err != nil {
		log.Printf("Failed to initialize AuthService: %v", err)
		os.Exit(1)
	}

	contactService, err := service.NewContactService(emailService)
	if err != nil {
		log.Printf("Failed to initialize ContactService: %v", err)
		os.Exit(1)
	}

	// Root context governs background goroutines.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Expired challenges are evicted by key TTL; the sweeper only trims
	// the by-expiry index so it does not grow unbounded.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				removed, errSweep := otpRepo.DeleteExpired(ctx)
				if errSweep != nil {
					log.Printf("[OtpSweeper] Cleanup failed: %v", errSweep)
				} else if removed > 0 {
					log.Printf("[OtpSweeper] Removed %d expired challenge entries", removed)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Handlers and middleware
	authHandler := handler.NewAuthHandler(authService, otpService)
	contactHandler := handler.NewContactHandler(contactService)
	authMiddleware := middleware.NewAuthMiddleware(jwtService, userRepo)
	rateLimiter := middleware.NewRateLimiter(redisClient)
	otpSendLimit := rateLimiter.Limit(middleware.OtpSendRateLimitConfig())

	isProduction := gin.Mode() == gin.ReleaseMode

	router := gin.Default()

	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"https://portfolio.vercel.app", "http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register/send-otp", otpSendLimit, authHandler.SendRegisterOtp)
			authGroup.POST("/register/verify-otp", authHandler.VerifyRegisterOtp)
			authGroup.POST("/register/resend-otp", otpSendLimit, authHandler.ResendRegisterOtp)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/forgot-password/send-otp", otpSendLimit, authHandler.SendResetOtp)
			authGroup.POST("/forgot-password/verify-otp", authHandler.VerifyResetOtp)
			authGroup.POST("/forgot-password/reset", authHandler.ResetPassword)

			authGroup.GET("/me", authMiddleware.RequireAuth(), authHandler.GetMe)
		}

		contact := api.Group("/contact")
		contact.Use(authMiddleware.RequireAuth())
		{
			contact.POST("/send", contactHandler.SendMessage)
		}

		api.POST("/subscribe", contactHandler.Subscribe)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	log.Println("Server exited properly")
}
