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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/transferscope/portal-api/api/swagger"
	"github.com/transferscope/portal-api/internal/handler"
	"github.com/transferscope/portal-api/internal/middleware"
	"github.com/transferscope/portal-api/internal/repository"
	"github.com/transferscope/portal-api/internal/service"
	"github.com/transferscope/portal-api/pkg/cache"
	"github.com/transferscope/portal-api/pkg/config"
	"github.com/transferscope/portal-api/pkg/database"
	"github.com/transferscope/portal-api/pkg/jobs"
	"github.com/transferscope/portal-api/pkg/logger"
	corsmiddleware "github.com/transferscope/portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/transferscope/portal-api/pkg/middleware/requestid"
	"github.com/transferscope/portal-api/pkg/storage"
)

// @title TransferScope Portal API
// @version 1.0.0
// @description Admin portal backend for college transfer friendliness reports
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	store, err := storage.NewLocalStorage(cfg.Presentations.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Presentations.SignedURLSecret, cfg.Presentations.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	institutionRepo := repository.NewInstitutionRepository(db)
	comparisonRepo := repository.NewComparisonRepository(db)
	promptRepo := repository.NewPromptRepository(db)
	presentationRepo := repository.NewPresentationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	challengeRepo := repository.NewChallengeRepository(redisClient)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Search.CacheTTL, logr, true)
	mailer := service.NewLogMailer(logr)
	sms := service.NewLogSMSSender(logr)

	authSvc := service.NewAuthService(userRepo, challengeRepo, mailer, sms, validate, logr, service.AuthConfig{
		AccessTokenSecret:    cfg.JWT.Secret,
		AccessTokenExpiry:    cfg.JWT.Expiration,
		RefreshTokenExpiry:   cfg.JWT.RefreshExpiration,
		Issuer:               cfg.JWT.Issuer,
		VerificationTokenTTL: cfg.Verification.TokenTTL,
		ChallengeTTL:         cfg.MFA.CodeTTL,
	})
	mfaSvc := service.NewMFAService(userRepo, challengeRepo, service.StaticCaptchaVerifier{}, sms, authSvc, validate, logr, service.MFAConfig{
		CodeTTL:        cfg.MFA.CodeTTL,
		MaxAttempts:    cfg.MFA.MaxAttempts,
		CaptchaTTL:     cfg.MFA.CaptchaTTL,
		RequireCaptcha: cfg.MFA.RequireCaptcha,
	})
	adminSvc := service.NewAdminService(userRepo, logr)
	institutionSvc := service.NewInstitutionService(institutionRepo, cacheSvc, validate, logr, service.SearchConfig{
		CacheTTL:   cfg.Search.CacheTTL,
		MaxResults: cfg.Search.MaxResults,
	})
	promptSvc := service.NewPromptService(promptRepo, cacheSvc, validate, logr)
	comparisonSvc := service.NewComparisonService(comparisonRepo, institutionRepo, promptSvc, metricsSvc, validate, logr, service.CompareConfig{
		MinSchools: cfg.Compare.MinSchools,
		MaxSchools: cfg.Compare.MaxSchools,
		ChunkSize:  cfg.Compare.ChunkSize,
	})
	presentationSvc := service.NewPresentationService(presentationRepo, promptSvc, store, signer, validate, logr, jobs.QueueConfig{
		Workers:    cfg.Presentations.WorkerConcurrency,
		MaxRetries: cfg.Presentations.WorkerRetries,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	presentationSvc.StartWorkers(ctx)
	defer presentationSvc.StopWorkers()

	authHandler := handler.NewAuthHandler(authSvc)
	mfaHandler := handler.NewMFAHandler(mfaSvc)
	adminHandler := handler.NewAdminHandler(adminSvc)
	institutionHandler := handler.NewInstitutionHandler(institutionSvc)
	comparisonHandler := handler.NewComparisonHandler(comparisonSvc, logr)
	promptHandler := handler.NewPromptHandler(promptSvc)
	presentationHandler := handler.NewPresentationHandler(presentationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/verification/confirm", authHandler.ConfirmVerification)
		auth.POST("/mfa/captcha", mfaHandler.VerifyCaptcha)
		auth.POST("/mfa/resolve", mfaHandler.Resolve)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.GET("/me", authHandler.Me)
		authed.POST("/verification/send", authHandler.SendVerification)
		authed.POST("/mfa/enroll/start", mfaHandler.EnrollStart)
		authed.POST("/mfa/enroll/confirm", mfaHandler.EnrollConfirm)
		authed.DELETE("/mfa/enroll", mfaHandler.Unenroll)
	}

	admin := api.Group("/admin", middleware.JWT(authSvc))
	{
		admin.GET("/check", adminHandler.Check)

		gated := admin.Group("", middleware.RequireVerified(), middleware.RequireAdmin())
		gated.POST("/grant", adminHandler.Grant)
		gated.POST("/revoke", adminHandler.Revoke)
		gated.GET("/users", adminHandler.ListUsers)
	}

	// Comparisons run for anonymous callers too; a valid token only
	// attributes the stored result.
	compare := api.Group("", middleware.OptionalJWT(authSvc))
	{
		compare.POST("/compare", comparisonHandler.Compare)
		compare.POST("/transfer-assessment", comparisonHandler.Assess)
	}

	approved := api.Group("", middleware.JWT(authSvc), middleware.RequireVerified(), middleware.RequireApproved())
	{
		approved.POST("/search", institutionHandler.Search)
		approved.GET("/comparisons", comparisonHandler.List)
		approved.GET("/comparisons/:id/export", comparisonHandler.ExportCSV)
		approved.GET("/presentations", presentationHandler.List)
		approved.GET("/presentations/:id", presentationHandler.Get)
	}

	adminOnly := api.Group("", middleware.JWT(authSvc), middleware.RequireVerified(), middleware.RequireAdmin())
	{
		adminOnly.GET("/prompt/all", promptHandler.GetAll)
		adminOnly.GET("/prompt/:type", promptHandler.Get)
		adminOnly.PUT("/prompt/:type", promptHandler.Update)
		adminOnly.POST("/prompt/:type/reset", promptHandler.Reset)
		adminOnly.GET("/prompt/:type/history", promptHandler.History)
		adminOnly.POST("/presentations", presentationHandler.Create)
		adminOnly.DELETE("/presentations/:id", presentationHandler.Delete)
	}

	// Signed token is the credential here, no JWT required.
	api.GET("/downloads/presentation", presentationHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
