package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hanko-field/storefront/internal/handlers"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/jobs"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/platform/secrets"
	"github.com/hanko-field/storefront/internal/repositories"
	firestoreRepo "github.com/hanko-field/storefront/internal/repositories/firestore"
	"github.com/hanko-field/storefront/internal/repositories/memory"
	"github.com/hanko-field/storefront/internal/repositories/postgres"
	"github.com/hanko-field/storefront/internal/services"
)

// repositorySet is the storage selected by API_STORE_BACKEND and API_COUPON_STORE.
type repositorySet struct {
	discounts repositories.DiscountRepository
	coupons   repositories.CouponRepository
	orders    repositories.OrderRepository
	catalog   repositories.ProductCatalog
	idem      idempotency.Store
	checks    []repositories.DependencyCheck
	closers   []func(context.Context) error
}

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("storefront")

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	logger.Info("configuration loaded",
		zap.String("environment", cfg.Security.Environment),
		zap.String("storeBackend", cfg.Store.Backend),
		zap.String("couponStore", cfg.Store.CouponStore),
		zap.String("eventsBackend", cfg.Events.Backend),
	)

	repos, err := openRepositories(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(repos.closers) - 1; i >= 0; i-- {
			if err := repos.closers[i](closeCtx); err != nil {
				logger.Warn("repository close error", zap.Error(err))
			}
		}
	}()

	publisher, closePublisher, err := newEventPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer closePublisher()

	refunds, err := newRefundGateway(logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise payment gateway", zap.Error(err))
	}

	policy, err := services.ParseAdminTransitionPolicy(cfg.Orders.AdminTransitionPolicy)
	if err != nil {
		logger.Fatal("invalid order configuration", zap.Error(err))
	}

	discountService, err := services.NewDiscountService(services.DiscountServiceDeps{
		Discounts: repos.discounts,
	})
	if err != nil {
		logger.Fatal("failed to initialise discount service", zap.Error(err))
	}
	couponService, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons:   repos.coupons,
		Discounts: repos.discounts,
		Orders:    repos.orders,
		Catalog:   repos.catalog,
		Events:    publisher,
		Logger:    observability.EventLogger(logger, "coupons"),
	})
	if err != nil {
		logger.Fatal("failed to initialise coupon service", zap.Error(err))
	}
	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:               repos.orders,
		Discounts:            repos.discounts,
		Coupons:              repos.coupons,
		Catalog:              repos.catalog,
		Refunds:              refunds,
		Policy:               policy,
		RedeemCouponOnCreate: cfg.Orders.RedeemCouponOnCreate,
		Events:               publisher,
		Logger:               observability.EventLogger(logger, "orders"),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	systemService, err := newSystemService(repos.checks, buildInfo)
	if err != nil {
		logger.Fatal("failed to initialise system service", zap.Error(err))
	}

	authenticator := newAuthenticator(ctx, logger, cfg)

	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		idempotency.RunCleanup(cleanupCtx, repos.idem, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
	}()
	idempotencyMiddleware := idempotency.Middleware(repos.idem,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	discountHandlers := handlers.NewDiscountHandlers(discountService)
	couponHandlers := handlers.NewCouponHandlers(authenticator, couponService, handlers.WithCouponIdempotency(idempotencyMiddleware))
	cartHandlers := handlers.NewCartHandlers(orderService)
	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService, handlers.WithOrderIdempotency(idempotencyMiddleware))
	internalHandlers := handlers.NewInternalOrderHandlers(orderService)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(systemService)),
		handlers.WithDiscountRoutes(discountHandlers.Routes),
		handlers.WithCouponRoutes(couponHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(handlers.AdminRoutes(discountHandlers, couponHandlers)),
	}
	if authenticator != nil {
		opts = append(opts, handlers.WithAdminMiddlewares(authenticator.RequireFirebaseAuth(auth.RoleAdmin)))
	}
	if oidcMiddleware := buildOIDCMiddleware(logger, cfg); oidcMiddleware != nil {
		opts = append(opts,
			handlers.WithInternalMiddlewares(oidcMiddleware),
			handlers.WithInternalRoutes(internalHandlers.Routes),
		)
	} else {
		logger.Warn("auth: OIDC not configured; internal routes disabled")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(opts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openRepositories(ctx context.Context, logger *zap.Logger, cfg config.Config) (*repositorySet, error) {
	set := &repositorySet{}

	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		logger.Warn("store: using in-memory repositories; data is lost on restart and the product catalog starts empty")
		store := memory.NewStore()
		set.discounts = store.Discounts()
		set.coupons = store.Coupons()
		set.orders = store.Orders()
		set.catalog = store.Products()
		set.idem = idempotency.NewMemoryStore()
		set.checks = append(set.checks, repositories.DependencyCheck{
			Name:  "memory",
			Check: func(context.Context) error { return nil },
		})
	default:
		var providerOpts []pfirestore.ProviderOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
		}
		provider := pfirestore.NewProvider(cfg.Firestore, providerOpts...)
		set.closers = append(set.closers, provider.Close)
		if _, err := provider.Client(ctx); err != nil {
			return nil, fmt.Errorf("firestore: %w", err)
		}

		discounts, err := firestoreRepo.NewDiscountRepository(provider)
		if err != nil {
			return nil, err
		}
		coupons, err := firestoreRepo.NewCouponRepository(provider)
		if err != nil {
			return nil, err
		}
		orders, err := firestoreRepo.NewOrderRepository(provider)
		if err != nil {
			return nil, err
		}
		catalog, err := firestoreRepo.NewProductCatalog(provider)
		if err != nil {
			return nil, err
		}
		idem, err := idempotency.NewFirestoreStore(provider, "")
		if err != nil {
			return nil, err
		}
		set.discounts, set.coupons, set.orders, set.catalog, set.idem = discounts, coupons, orders, catalog, idem
		set.checks = append(set.checks, repositories.DependencyCheck{
			Name:  "firestore",
			Check: provider.Ping,
		})
	}

	if cfg.Store.CouponStore == config.CouponStorePostgres {
		db, err := postgres.Open(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		set.closers = append(set.closers, func(context.Context) error { return db.Close() })
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		coupons, err := postgres.NewCouponRepository(db)
		if err != nil {
			return nil, err
		}
		set.coupons = coupons
		set.checks = append(set.checks, postgresCheck(db))
	}
	return set, nil
}

func postgresCheck(db *sql.DB) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "postgres",
		Timeout: 2 * time.Second,
		Check: func(ctx context.Context) error {
			return postgres.Ping(ctx, db)
		},
	}
}

func newEventPublisher(ctx context.Context, cfg config.Config) (services.OrderEventPublisher, func(), error) {
	switch cfg.Events.Backend {
	case config.EventsBackendPubSub:
		var opts []option.ClientOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			opts = append(opts, option.WithCredentialsFile(file))
		}
		client, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		publisher, err := jobs.NewPubSubOrderEventPublisher(client.Topic(cfg.Events.PubSubTopic))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return publisher, func() {
			publisher.Stop()
			_ = client.Close()
		}, nil
	case config.EventsBackendKafka:
		publisher, err := jobs.NewKafkaOrderEventPublisher(jobs.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic))
		if err != nil {
			return nil, nil, err
		}
		return publisher, func() { _ = publisher.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

func newRefundGateway(logger *zap.Logger, cfg config.Config) (payments.RefundGateway, error) {
	if strings.TrimSpace(cfg.PSP.StripeAPIKey) == "" {
		logger.Warn("payments: stripe api key not configured; refunds are tracked without a provider call")
		return nil, nil
	}
	stripeGateway, err := payments.NewStripeGateway(payments.StripeConfig{
		APIKey:    cfg.PSP.StripeAPIKey,
		AccountID: cfg.PSP.StripeAccount,
		Logger:    payments.StripeLogger(observability.EventLogger(logger, "stripe")),
	})
	if err != nil {
		return nil, err
	}
	return payments.NewRouter(map[string]payments.RefundGateway{"stripe": stripeGateway})
}

func newAuthenticator(ctx context.Context, logger *zap.Logger, cfg config.Config) *auth.Authenticator {
	if strings.TrimSpace(cfg.Firebase.ProjectID) == "" {
		logger.Warn("auth: firebase project not configured; authenticated routes will reject requests")
		return nil
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase auth", zap.Error(err))
	}
	return auth.NewAuthenticator(verifier)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	authLogger := logger.Named("auth")
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(authLogger))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(authLogger))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func newSystemService(checks []repositories.DependencyCheck, build services.BuildInfo) (services.SystemService, error) {
	repo, err := repositories.NewProbeHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Build:            build,
	})
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	project := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := lookup("API_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if file := lookup("API_FIREBASE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists secrets that must resolve for the configured backends.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.EqualFold(strings.TrimSpace(env["API_COUPON_STORE"]), config.CouponStorePostgres) {
		required = append(required, "Store.PostgresDSN")
	}
	switch strings.ToLower(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"])) {
	case "prod", "production":
		required = append(required, "PSP.StripeAPIKey")
	}
	return required
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
