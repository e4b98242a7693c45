// Package app assembles repositories and services from configuration. Both the
// HTTP server and the operator CLI build on the same container.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/repository"
	"github.com/noah-isme/scholarship-api/internal/service"
	"github.com/noah-isme/scholarship-api/migrations"
	"github.com/noah-isme/scholarship-api/pkg/cache"
	"github.com/noah-isme/scholarship-api/pkg/config"
	"github.com/noah-isme/scholarship-api/pkg/database"
	"github.com/noah-isme/scholarship-api/pkg/notify"
	"github.com/noah-isme/scholarship-api/pkg/storage"
)

// Repositories are the persistence adapters.
type Repositories struct {
	Users        *repository.UserRepository
	Profiles     *repository.StudentProfileRepository
	Scholarships *repository.ScholarshipRepository
	Applications *repository.ApplicationRepository
	Documents    *repository.DocumentRepository
	Interviews   *repository.InterviewRepository
	Stipends     *repository.StipendRepository
	Reports      *repository.ReportRepository
	// Cache is nil when Redis is disabled or unreachable.
	Cache *repository.CacheRepository
}

// Services are the domain services exposed to transports.
type Services struct {
	Auth          *service.AuthService
	Users         *service.UserService
	Scholarships  *service.ScholarshipService
	Eligibility   *service.EligibilityService
	Lifecycle     *service.Lifecycle
	Applications  *service.ApplicationService
	Documents     *service.DocumentService
	Interviews    *service.InterviewService
	Stipends      *service.StipendService
	Reports       *service.ReportService
	Metrics       *service.MetricsService
	Notifications *service.NotificationService
	Cache         *service.CacheService
}

// Container owns the process-wide resources.
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	DB           *sqlx.DB
	Redis        *redis.Client
	Repositories Repositories
	Services     Services
}

// Build connects to PostgreSQL and Redis and wires every service. The
// notification queue is not started; call Start.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		applied, err := database.Migrate(ctx, db, migrations.FS)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", zap.Strings("files", applied))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, report cache disabled", zap.Error(err))
		redisClient = nil
	}

	c := &Container{Config: cfg, Logger: logger, DB: db, Redis: redisClient}
	if err := c.wire(); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	return c, nil
}

func (c *Container) wire() error {
	cfg, logger, db := c.Config, c.Logger, c.DB
	validate := validator.New()
	tx := database.NewTxManager(db)

	repos := Repositories{
		Users:        repository.NewUserRepository(db),
		Profiles:     repository.NewStudentProfileRepository(db),
		Scholarships: repository.NewScholarshipRepository(db),
		Applications: repository.NewApplicationRepository(db),
		Documents:    repository.NewDocumentRepository(db),
		Interviews:   repository.NewInterviewRepository(db),
		Stipends:     repository.NewStipendRepository(db),
		Reports:      repository.NewReportRepository(db),
	}
	c.Repositories = repos

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if c.Redis != nil {
		c.Repositories.Cache = repository.NewCacheRepository(c.Redis, logger)
		cacheRepo = c.Repositories.Cache
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Reports.CacheTTL, logger, cacheRepo != nil)

	publisher, err := newPublisher(cfg.Notifications, logger)
	if err != nil {
		return err
	}
	notifications := service.NewNotificationService(publisher, metrics, logger, service.NotificationConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
	})

	files, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		return err
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	eligibility := service.NewEligibilityService(repos.Profiles, repos.Applications, repos.Scholarships, service.ProfileMembershipVerifier{}, logger)
	lifecycle := service.NewLifecycle(tx, repos.Applications, repos.Documents, logger,
		service.WithLifecycleNotifier(notifications),
		service.WithLifecycleAudit(repos.Users),
		service.WithLifecycleMetrics(metrics),
		service.WithLifecycleCache(cacheSvc),
	)
	events := service.NewEventBus()
	events.SubscribeDocuments(lifecycle.HandleDocumentEvent)

	stipendOpts := []service.StipendServiceOption{
		service.WithStipendAudit(repos.Users),
		service.WithStipendNotifier(notifications),
		service.WithStipendMetrics(metrics),
		service.WithStipendCache(cacheSvc),
	}
	if cfg.Stipends.AssistantshipHourlyRate != "" {
		rate, err := decimal.NewFromString(cfg.Stipends.AssistantshipHourlyRate)
		if err != nil {
			return fmt.Errorf("parse assistantship hourly rate: %w", err)
		}
		stipendOpts = append(stipendOpts, service.WithHourlyRate(rate))
	}

	c.Services = Services{
		Auth: service.NewAuthService(repos.Users, validate, logger, service.AuthConfig{
			AccessTokenSecret:  cfg.JWT.Secret,
			AccessTokenExpiry:  cfg.JWT.Expiration,
			RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
			Issuer:             cfg.JWT.Issuer,
			SingleSession:      cfg.JWT.SingleSession,
		}),
		Users:        service.NewUserService(tx, repos.Users, repos.Profiles, validate, logger),
		Scholarships: service.NewScholarshipService(tx, repos.Scholarships, repos.Users, cacheSvc, validate, logger),
		Eligibility:  eligibility,
		Lifecycle:    lifecycle,
		Applications: service.NewApplicationService(tx, repos.Applications, repos.Scholarships, repos.Profiles, eligibility, lifecycle, logger,
			service.WithApplicationAudit(repos.Users),
			service.WithApplicationNotifier(notifications),
			service.WithApplicationCache(cacheSvc),
		),
		Documents: service.NewDocumentService(tx, repos.Documents, repos.Applications, files, signer, events, repos.Users, notifications, logger,
			service.DocumentServiceConfig{
				MaxFileSizeBytes:  cfg.Documents.MaxFileSizeBytes,
				AllowedMIMEs:      cfg.Documents.AllowedMIMEs,
				AllowedExtensions: cfg.Documents.AllowedExtensions,
			}),
		Interviews: service.NewInterviewService(tx, repos.Interviews, repos.Applications, lifecycle, repos.Users, repos.Users, notifications, logger,
			service.InterviewServiceConfig{
				ConflictBuffer: cfg.Interviews.ConflictBuffer,
				NoShowPolicy:   service.ParseNoShowPolicy(cfg.Interviews.NoShowPolicy),
			}),
		Stipends:      service.NewStipendService(tx, repos.Stipends, repos.Applications, repos.Profiles, repos.Scholarships, eligibility, logger, stipendOpts...),
		Reports:       service.NewReportService(repos.Reports, cacheSvc, cfg.Reports.CacheTTL, logger),
		Metrics:       metrics,
		Notifications: notifications,
		Cache:         cacheSvc,
	}
	return nil
}

func newPublisher(cfg config.NotificationConfig, logger *zap.Logger) (notify.Publisher, error) {
	if len(cfg.Brokers) == 0 {
		logger.Info("no notification brokers configured, notifications are logged only")
		return notify.NewLogPublisher(logger), nil
	}
	publisher, err := notify.NewKafkaPublisher(notify.KafkaConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("init notification publisher: %w", err)
	}
	return publisher, nil
}

// Start launches background workers.
func (c *Container) Start(ctx context.Context) {
	c.Services.Notifications.Start(ctx)
}

// Close drains the notification queue, which also closes the publisher, and
// releases connections.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.Services.Notifications != nil {
		if err := c.Services.Notifications.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop notifications: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
