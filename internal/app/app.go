package app

import (
	"context"
	"fmt"

	"pnptv_backend/internal/auth"
	"pnptv_backend/internal/cache"
	"pnptv_backend/internal/config"
	"pnptv_backend/internal/email"
	"pnptv_backend/internal/gateway"
	"pnptv_backend/internal/handlers"
	"pnptv_backend/internal/logger"
	"pnptv_backend/internal/middleware"
	"pnptv_backend/internal/models"
	"pnptv_backend/internal/repositories"
	"pnptv_backend/internal/routes"
	"pnptv_backend/internal/security"
	paymentsvc "pnptv_backend/internal/services/payment"
	"pnptv_backend/internal/services/subscription"
	"pnptv_backend/internal/validator"
	"pnptv_backend/internal/workers"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Run() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	// Fail closed: в production без секретов провайдеров не стартуем
	if err := cfg.ValidateProduction(); err != nil {
		logger.Fatal("Invalid production configuration", "error", err)
	}

	logger.Info("Connecting to database...")
	gormDB, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to GORM", "error", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		logger.Fatal("Failed to get *sql.DB from GORM", "error", err)
	}
	if err = sqlDB.Ping(); err != nil {
		logger.Fatal("Database unavailable", "error", err)
	}
	logger.Info("Database connected")

	if err := gormDB.AutoMigrate(
		&models.User{},
		&models.SubscriptionPlan{},
		&models.Payment{},
	); err != nil {
		logger.Fatal("Database migration failed", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisCache, err := cache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Redis unavailable", "error", err)
	}
	defer func() { _ = redisCache.Close() }()
	logger.Info("Redis connected", "addr", cfg.Redis.Addr)

	ginRouter, worker := SetupRouter(cfg, gormDB, redisCache)
	worker.Start(ctx)

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info(fmt.Sprintf("🚀 Server starting on %s", address))
	if err := ginRouter.Run(address); err != nil {
		logger.Fatal("Server startup error", "error", err)
	}
}

// SetupRouter собирает все зависимости и возвращает готовый роутер
// и воркер восстановления. Вынесено из Run для интеграционных тестов.
func SetupRouter(cfg *config.Config, gormDB *gorm.DB, redisCache *cache.Cache) (*gin.Engine, *workers.PaymentWorker) {
	// Репозитории
	paymentRepo := repositories.NewPaymentRepository(gormDB)
	planRepo := repositories.NewPlanRepository(gormDB)
	userRepo := repositories.NewUserRepository(gormDB)

	// Инфраструктура платежей
	guard := security.NewGuard(redisCache, cfg.Payments.RateLimitPerHour, cfg.LockTTL(), cfg.CheckoutWindow())
	epaycoClient := gateway.NewEpaycoClient(cfg.Epayco.PublicKey, cfg.Epayco.PrivateKey, cfg.Epayco.BaseURL, cfg.Epayco.TestMode)
	daimoClient := gateway.NewDaimoClient(cfg.Daimo.APIKey, cfg.Daimo.WebhookSecret, cfg.Daimo.BaseURL)
	tokenIssuer := auth.NewTokenIssuer(cfg.Payments.ConfirmTokenSecret, cfg.ConfirmTokenTTL())

	emailProvider := buildEmailProvider(cfg)

	// Сервисы
	activationService := subscription.NewActivationService(userRepo, planRepo, emailProvider)
	completer := paymentsvc.NewCompleter(paymentRepo, activationService, guard)
	paymentService := paymentsvc.NewPaymentService(cfg, paymentRepo, planRepo, userRepo, guard, epaycoClient, daimoClient, tokenIssuer, completer)
	chargeService := paymentsvc.NewChargeService(cfg, paymentRepo, guard, epaycoClient, tokenIssuer, completer)
	webhookService := paymentsvc.NewWebhookService(cfg, paymentRepo, planRepo, guard, epaycoClient, daimoClient, completer)

	// Хэндлеры
	v := validator.New()
	base := handlers.NewBaseHandler(v)
	appHandlers := &handlers.AppHandlers{
		PaymentHandler: handlers.NewPaymentHandler(base, cfg, paymentService, chargeService),
		WebhookHandler: handlers.NewWebhookHandler(base, webhookService),
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	ginRouter.Use(middleware.RequestIDMiddleware())
	ginRouter.Use(middleware.LoggingMiddleware())

	routes.RegisterRoutes(ginRouter, appHandlers)

	worker := workers.NewPaymentWorker(cfg, paymentRepo, epaycoClient, completer)
	return ginRouter, worker
}

// buildEmailProvider возвращает SMTP-провайдер, если почта настроена.
// Без настройки письма просто не отправляются, платежи работают.
func buildEmailProvider(cfg *config.Config) email.Provider {
	if cfg.Email.SMTPHost == "" {
		logger.Warn("Email is not configured, activation emails disabled")
		return nil
	}
	provider, err := email.NewSMTPProvider(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUsername,
		cfg.Email.SMTPPassword,
		cfg.Email.FromEmail,
		cfg.Email.FromName,
	)
	if err != nil {
		logger.Warn("Failed to build email provider, activation emails disabled", "error", err)
		return nil
	}
	return provider
}
