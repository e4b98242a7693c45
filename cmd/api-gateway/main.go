package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/scholarship-api/api/swagger"
	"github.com/noah-isme/scholarship-api/internal/app"
	"github.com/noah-isme/scholarship-api/internal/handler"
	"github.com/noah-isme/scholarship-api/internal/middleware"
	"github.com/noah-isme/scholarship-api/pkg/config"
	"github.com/noah-isme/scholarship-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/scholarship-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/scholarship-api/pkg/middleware/requestid"
)

// @title Scholarship Portal API
// @version 1.0.0
// @description Scholarship intake, review, interview scheduling and stipend disbursement.
// @BasePath /api/v1
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.Build(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to build application", zap.Error(err))
	}
	container.Start(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, identity))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(container.Services.Metrics))

	handlers := newHandlers(container)
	handler.RegisterOps(r, handlers.Metrics)
	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handlers, handler.RouterDeps{
		Tokens: container.Services.Auth,
		Audit:  container.Repositories.Users,
		Logger: logr,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logr.Warn("resource cleanup incomplete", zap.Error(err))
	}
}

func identity(c *gin.Context) (string, string) {
	claims := middleware.Claims(c)
	if claims == nil {
		return "", ""
	}
	return claims.UserID, string(claims.Role)
}

func newHandlers(c *app.Container) handler.Handlers {
	svc := c.Services
	deps := map[string]handler.Pinger{"database": c.DB}
	if c.Repositories.Cache != nil {
		deps["redis"] = c.Repositories.Cache
	}
	return handler.Handlers{
		Auth:         handler.NewAuthHandler(svc.Auth, svc.Users),
		Users:        handler.NewUserHandler(svc.Users),
		Scholarships: handler.NewScholarshipHandler(svc.Scholarships, svc.Eligibility),
		Applications: handler.NewApplicationHandler(svc.Applications, svc.Documents),
		Documents:    handler.NewDocumentHandler(svc.Documents, c.Config.APIPrefix),
		Interviews:   handler.NewInterviewHandler(svc.Interviews),
		Stipends:     handler.NewStipendHandler(svc.Stipends),
		Reports:      handler.NewReportHandler(svc.Reports),
		Metrics:      handler.NewMetricsHandler(svc.Metrics, deps),
	}
}
