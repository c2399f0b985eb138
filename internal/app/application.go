package app

import (
	"context"
	"fmt"
	"time"

	"github.com/clicklone/clicklone/internal/app/domain/seo"
	domainsettings "github.com/clicklone/clicklone/internal/app/domain/settings"
	"github.com/clicklone/clicklone/internal/app/services/adminauth"
	analyticssvc "github.com/clicklone/clicklone/internal/app/services/analytics"
	"github.com/clicklone/clicklone/internal/app/services/backoffice"
	"github.com/clicklone/clicklone/internal/app/services/checkout"
	"github.com/clicklone/clicklone/internal/app/services/funnel"
	"github.com/clicklone/clicklone/internal/app/services/gate"
	"github.com/clicklone/clicklone/internal/app/services/generator"
	"github.com/clicklone/clicklone/internal/app/services/maintenance"
	"github.com/clicklone/clicklone/internal/app/services/pending"
	seosvc "github.com/clicklone/clicklone/internal/app/services/seo"
	settingssvc "github.com/clicklone/clicklone/internal/app/services/settings"
	"github.com/clicklone/clicklone/internal/app/storage"
	"github.com/clicklone/clicklone/internal/app/system"
	"github.com/clicklone/clicklone/internal/config"
	"github.com/clicklone/clicklone/internal/logging"
	"github.com/clicklone/clicklone/internal/middleware"
)

const (
	limiterIdle         = 15 * time.Minute
	memoryTrialVisitors = 100_000
)

// Overrides replaces collaborators that would otherwise be built from
// config. Nil fields are built normally.
type Overrides struct {
	Backend  *Backend
	Provider generator.Provider
	Gateway  checkout.Gateway
	Trials   gate.TrialTracker
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	cfg     *config.Config
	manager *system.Manager
	log     *logging.Logger
	backend *Backend

	Store      storage.Store
	Settings   *settingssvc.Service
	Gate       *gate.Service
	Generator  *generator.Service
	Pending    *pending.Service
	Checkout   *checkout.Service
	Funnel     *funnel.Service
	Analytics  *analyticssvc.Service
	SEO        *seosvc.Service
	Backoffice *backoffice.Service
	// Auth is nil when JWT_SECRET is not configured.
	Auth    *adminauth.Service
	Limiter *middleware.RateLimiter
	Janitor *maintenance.Janitor
}

// New builds a fully initialised application from cfg.
func New(ctx context.Context, cfg *config.Config, over Overrides, log *logging.Logger) (_ *Application, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.NewDefault("app")
	}

	backend := over.Backend
	if backend == nil {
		backend, err = OpenBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	// Resources owned by the application are released if construction fails.
	closers := []func() error{backend.Close}
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()
	store := backend.Store
	manager := system.NewManager()

	provider := over.Provider
	if provider == nil {
		provider, err = generator.NewProvider(ctx, generator.ProviderConfig{
			Name:    cfg.LLMProvider,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
			BaseURL: cfg.LLMBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("configure llm provider: %w", err)
		}
	}

	trials := over.Trials
	if trials == nil && cfg.RedisURL != "" {
		redisTrials, err := gate.NewRedisTrials(cfg.RedisURL, gate.DefaultTrialTTL)
		if err != nil {
			return nil, fmt.Errorf("configure trial tracker: %w", err)
		}
		closers = append(closers, redisTrials.Close)
		trials = redisTrials
		if err := manager.Register(system.Func{
			ServiceName: "trials",
			OnStart: func(ctx context.Context) error {
				if err := redisTrials.Ping(ctx); err != nil {
					log.WithError(err).Warn("redis unreachable, trial counts fall back to the client")
				}
				return nil
			},
			OnStop: func(context.Context) error { return redisTrials.Close() },
		}); err != nil {
			return nil, err
		}
	} else if trials == nil {
		log.Warn("REDIS_URL not set; trial counts are kept in process memory")
		trials = gate.NewMemoryTrials(memoryTrialVisitors, gate.DefaultTrialTTL)
	}

	gateway := over.Gateway
	if gateway == nil {
		if cfg.StripeSecretKey != "" {
			gateway = checkout.NewStripeGateway(cfg.StripeSecretKey)
		} else {
			if !cfg.TestCheckoutAllowed() {
				return nil, fmt.Errorf("STRIPE_SECRET_KEY is required for the %s driver", cfg.StorageDriver)
			}
			log.Warn("STRIPE_SECRET_KEY not set; using the test checkout gateway")
			gateway = checkout.NewTestGateway()
		}
	}

	settingsService := settingssvc.New(store, cfg.SettingsCacheTTL, log.Component("settings"))
	analyticsService := analyticssvc.New(store, analyticssvc.NewHub(), log.Component("analytics"))
	gateService := gate.New(trials, log.Component("gate"))
	generatorService := generator.New(provider, cfg.LLMTimeout, log.Component("generator"))
	pendingService := pending.New(store, cfg.PendingResultTTL, log.Component("pending"))
	checkoutService := checkout.New(checkout.Config{
		Pending:       pendingService,
		Orders:        store,
		Gateway:       gateway,
		Events:        analyticsService,
		PublicBaseURL: cfg.PublicBaseURL,
		WebhookSecret: cfg.StripeWebhookSecret,
	}, log.Component("checkout"))
	funnelService := funnel.New(funnel.Deps{
		Settings:  settingsService,
		Gate:      gateService,
		Generator: generatorService,
		Pending:   pendingService,
		Checkout:  checkoutService,
		Events:    analyticsService,
	}, log.Component("funnel"))

	var authService *adminauth.Service
	if cfg.AdminEnabled() {
		tokens, err := adminauth.NewTokens(cfg.JWTSecret, adminauth.DefaultTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("configure admin tokens: %w", err)
		}
		var authenticators []adminauth.Authenticator
		if cfg.AdminEmail != "" && cfg.AdminPasswordHash != "" {
			authenticators = append(authenticators, adminauth.NewLocal(cfg.AdminEmail, cfg.AdminPasswordHash))
		}
		if backend.Supabase != nil {
			authenticators = append(authenticators, adminauth.NewSupabase(backend.Supabase, store))
		}
		if len(authenticators) == 0 {
			log.Warn("no admin authenticator configured; admin login will always fail")
		}
		authService = adminauth.New(tokens, log.Component("adminauth"), authenticators...)
	} else {
		log.Warn("JWT_SECRET not set; admin API disabled")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst, cfg.TrustProxy, log.Component("ratelimit"))
	janitor := maintenance.NewJanitor(log.Component("maintenance"),
		maintenance.PurgePending(pendingService),
		maintenance.CleanupLimiters(limiter, limiterIdle),
	)
	if err := manager.Register(janitor); err != nil {
		return nil, err
	}
	if err := manager.Register(system.Func{
		ServiceName: "analytics-hub",
		OnStop: func(context.Context) error {
			analyticsService.Hub().Close()
			return nil
		},
	}); err != nil {
		return nil, err
	}

	return &Application{
		cfg:        cfg,
		manager:    manager,
		log:        log,
		backend:    backend,
		Store:      store,
		Settings:   settingsService,
		Gate:       gateService,
		Generator:  generatorService,
		Pending:    pendingService,
		Checkout:   checkoutService,
		Funnel:     funnelService,
		Analytics:  analyticsService,
		SEO:        seosvc.New(store, log.Component("seo")),
		Backoffice: backoffice.New(store, log.Component("backoffice")),
		Auth:       authService,
		Limiter:    limiter,
		Janitor:    janitor,
	}, nil
}

// Config returns the configuration the application was built with.
func (a *Application) Config() *config.Config { return a.cfg }

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services and releases the storage backend.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	if cerr := a.backend.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Seed applies seed data: settings through the policy validator and SEO
// entries through the SEO service.
func (a *Application) Seed(ctx context.Context, seed *config.Seed) error {
	if seed == nil {
		return nil
	}
	patch := domainsettings.Patch{
		PaymentRequired:   seed.Settings.PaymentRequired,
		FreeTrialsEnabled: seed.Settings.FreeTrialsEnabled,
		FreeTrialLimit:    seed.Settings.FreeTrialLimit,
		PriceCents:        seed.Settings.PriceCents,
		Currency:          seed.Settings.Currency,
	}
	if len(patch.Entries()) > 0 {
		if _, err := a.Settings.Update(ctx, patch); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
	}
	for _, entry := range seed.SEO {
		if _, err := a.SEO.Upsert(ctx, seo.Metadata{
			Path:        entry.Path,
			Title:       entry.Title,
			Description: entry.Description,
			Keywords:    entry.Keywords,
			OGImage:     entry.OGImage,
		}); err != nil {
			return fmt.Errorf("seed seo %s: %w", entry.Path, err)
		}
	}
	a.log.WithField("seo_entries", len(seed.SEO)).Info("seed applied")
	return nil
}
