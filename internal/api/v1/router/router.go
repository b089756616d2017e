package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sevenvoices/internal/api/v1/handler"
	"sevenvoices/internal/config"
	"sevenvoices/internal/middleware"
	"sevenvoices/internal/notify"
	"sevenvoices/internal/repository"
	"sevenvoices/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

type repositories struct {
	users         repository.UserRepository
	subscriptions repository.SubscriptionRepository
	sessions      repository.SessionRepository
	ttsRequests   repository.TTSRequestRepository
}

// New wires storage, providers, services and handlers into one http.Handler.
// The returned cleanup func releases the database pool and notifier clients.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, func(), error) {
	logger.Info().
		Str("environment", cfg.Env).
		Str("storage_backend", cfg.StorageBackend).
		Str("tts_provider", cfg.TTSProvider).
		Msg("Router initialized")

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// 1. Storage
	repos, closeStore, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanups = append(cleanups, closeStore)

	// 2. Notifications
	notifier, closeNotifier, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cleanups = append(cleanups, closeNotifier)

	// 3. Services
	validate := validator.New(validator.WithRequiredStructEnabled())

	authSvc := service.NewAuthService(repos.users, repos.sessions, service.SessionOptions{
		TTL:     cfg.SessionTTL,
		Rolling: cfg.SessionRolling,
	}, logger)
	ttsSvc := service.NewTTSService(newSynthesizer(cfg, logger), repos.ttsRequests, logger)

	var processor service.BillingProcessor
	if cfg.StripeEnabled() {
		processor = service.NewStripeProcessor(cfg.StripeSecretKey, nil, logger)
	} else {
		logger.Warn().Msg("STRIPE_SECRET_KEY not set, subscription endpoints will respond 501")
	}
	subSvc := service.NewSubscriptionService(processor, repos.users, repos.subscriptions, notifier, service.SubscriptionOptions{
		WebhookSecret: cfg.StripeWebhookSecret,
		Currency:      cfg.StripeCurrency,
	}, logger)

	// 4. Handlers & middleware
	sessionCookie := middleware.SessionCookie{
		Name:    cfg.SessionCookieName,
		Secure:  cfg.CookieSecure,
		MaxAge:  cfg.SessionTTL,
		Rolling: cfg.SessionRolling,
	}
	authMiddleware := middleware.AuthMiddleware(authSvc, sessionCookie, logger)
	optionalAuthMiddleware := middleware.OptionalAuthMiddleware(authSvc, sessionCookie, logger)

	ttsHandler := handler.NewTTSHandler(ttsSvc, validate, logger)
	authHandler := handler.NewAuthHandler(authSvc, identityProviders(cfg), sessionCookie, cfg.FrontendURL, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(subSvc, validate, logger)

	mux := http.NewServeMux()
	ttsHandler.RegisterRoutes(mux, authMiddleware, optionalAuthMiddleware)
	authHandler.RegisterRoutes(mux, authMiddleware)
	subscriptionHandler.RegisterRoutes(mux, authMiddleware)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	// 5. CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger)(c.Handler(mux)), cleanup, nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (repositories, func(), error) {
	if cfg.StorageBackend == config.StorageBackendMemory {
		logger.Warn().Msg("Using in-memory storage, data is lost on restart")
		store := repository.NewMemoryStore()
		return repositories{
			users:         store.Users(),
			subscriptions: store.Subscriptions(),
			sessions:      store.Sessions(),
			ttsRequests:   store.TTSRequests(),
		}, func() {}, nil
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return repositories{}, nil, err
	}
	logger.Info().Msg("Database connection successful")
	return repositories{
		users:         repository.NewUserRepo(pool),
		subscriptions: repository.NewSubscriptionRepo(pool),
		sessions:      repository.NewSessionRepo(pool),
		ttsRequests:   repository.NewDiscardTTSRequestRepo(),
	}, pool.Close, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := cfg.DBConnectionString
	// Local databases usually run without TLS.
	if cfg.IsDevelopment() && !strings.Contains(dsn, "sslmode") {
		separator := " "
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			if strings.Contains(dsn, "?") {
				separator = "&"
			} else {
				separator = "?"
			}
		}
		dsn += separator + "sslmode=disable"
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db connection string: %w", err)
	}
	// Transaction poolers like pgbouncer do not support server-side prepared statements.
	if !cfg.IsDevelopment() {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	poolCfg.MaxConns = 25
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

func newSynthesizer(cfg *config.Config, logger zerolog.Logger) service.Synthesizer {
	if cfg.TTSAPIKey() == "" {
		logger.Warn().Str("provider", cfg.TTSProvider).Msg("TTS provider API key not set, synthesis endpoints will respond 501")
		return nil
	}
	if cfg.TTSProvider == config.TTSProviderOpenAI {
		return service.NewOpenAISynthesizer(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAITTSModel, cfg.TTSRequestTimeout)
	}
	return service.NewElevenLabsSynthesizer(cfg.ElevenLabsAPIKey, cfg.ElevenLabsBaseURL, cfg.ElevenLabsModelID, cfg.TTSRequestTimeout)
}

func identityProviders(cfg *config.Config) []service.IdentityProvider {
	var providers []service.IdentityProvider
	if cfg.GitHubEnabled() {
		providers = append(providers, service.NewGitHubIdentityProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubRedirectURL))
	}
	if cfg.GoogleEnabled() {
		providers = append(providers, service.NewGoogleIdentityProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL))
	}
	return providers
}

func newNotifier(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (notify.Notifier, func(), error) {
	var (
		notifiers notify.Multi
		closers   []func()
	)
	if cfg.SlackEnabled() {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.SlackWebhookURL))
	}
	if cfg.PubSubEnabled() {
		ps, err := notify.NewPubSubNotifier(ctx, cfg.GCPProjectID, cfg.PubSubPaymentTopic)
		if err != nil {
			return nil, nil, fmt.Errorf("create pubsub notifier: %w", err)
		}
		notifiers = append(notifiers, ps)
		closers = append(closers, func() {
			if err := ps.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close Pub/Sub client")
			}
		})
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	switch len(notifiers) {
	case 0:
		logger.Info().Msg("No payment notification channel configured")
		return notify.Noop(), closeAll, nil
	case 1:
		return notifiers[0], closeAll, nil
	default:
		return notifiers, closeAll, nil
	}
}
