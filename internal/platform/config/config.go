package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer       = "https://accounts.google.com"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultAdminPolicy          = "forward_only"
	defaultKafkaTopic           = "order-events"
)

// Store backends.
const (
	StoreBackendFirestore = "firestore"
	StoreBackendMemory    = "memory"

	CouponStorePrimary  = "primary"
	CouponStorePostgres = "postgres"
)

// Event backends.
const (
	EventsBackendNone   = "none"
	EventsBackendPubSub = "pubsub"
	EventsBackendKafka  = "kafka"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Store       StoreConfig
	Orders      OrdersConfig
	Events      EventsConfig
	PSP         PSPConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StoreConfig selects where discounts, coupons and orders live.
type StoreConfig struct {
	Backend string
	// CouponStore moves coupons to Postgres when set to "postgres".
	CouponStore string
	PostgresDSN string
}

// OrdersConfig holds order lifecycle switches.
type OrdersConfig struct {
	AdminTransitionPolicy string
	RedeemCouponOnCreate  bool
}

// EventsConfig selects the order event sink.
type EventsConfig struct {
	Backend      string
	PubSubTopic  string
	KafkaBrokers []string
	KafkaTopic   string
}

// PSPConfig collects payment provider credentials used for refunds.
type PSPConfig struct {
	StripeAPIKey  string
	StripeAccount string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification.
type OIDCConfig struct {
	JWKSURL   string
	Audience  string
	Audiences map[string]string
	Issuers   []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts...)

	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Store: StoreConfig{
			Backend:     strings.ToLower(stringWithDefault(lookup, "API_STORE_BACKEND", StoreBackendFirestore)),
			CouponStore: strings.ToLower(stringWithDefault(lookup, "API_COUPON_STORE", CouponStorePrimary)),
			PostgresDSN: stringWithDefault(lookup, "API_POSTGRES_DSN", ""),
		},
		Orders: OrdersConfig{
			AdminTransitionPolicy: strings.ToLower(stringWithDefault(lookup, "API_ORDERS_ADMIN_TRANSITION_POLICY", defaultAdminPolicy)),
			RedeemCouponOnCreate:  boolWithDefault(lookup, "API_COUPON_REDEEM_ON_ORDER", false),
		},
		Events: EventsConfig{
			Backend:      strings.ToLower(stringWithDefault(lookup, "API_EVENTS_BACKEND", EventsBackendNone)),
			PubSubTopic:  stringWithDefault(lookup, "API_EVENTS_PUBSUB_TOPIC", ""),
			KafkaBrokers: csvWithDefault(lookup, "API_EVENTS_KAFKA_BROKERS"),
			KafkaTopic:   stringWithDefault(lookup, "API_EVENTS_KAFKA_TOPIC", defaultKafkaTopic),
		},
		PSP: PSPConfig{
			StripeAPIKey:  stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			StripeAccount: stringWithDefault(lookup, "API_PSP_STRIPE_ACCOUNT", ""),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:   stringWithDefault(lookup, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:  stringWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Audiences: mapWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCES"),
				Issuers:   csvWithDefault(lookup, "API_SECURITY_OIDC_ISSUERS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}
	if cfg.Security.OIDC.Audience == "" {
		if audience, ok := cfg.Security.OIDC.Audiences[cfg.Security.Environment]; ok {
			cfg.Security.OIDC.Audience = audience
		}
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"Store.PostgresDSN", &cfg.Store.PostgresDSN},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		invalid = append(invalid, "Firebase.ProjectID")
	}

	switch cfg.Store.Backend {
	case StoreBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	case StoreBackendMemory:
	default:
		invalid = append(invalid, "Store.Backend")
	}
	switch cfg.Store.CouponStore {
	case CouponStorePrimary:
	case CouponStorePostgres:
		if strings.TrimSpace(cfg.Store.PostgresDSN) == "" {
			invalid = append(invalid, "Store.PostgresDSN")
		}
	default:
		invalid = append(invalid, "Store.CouponStore")
	}

	switch cfg.Orders.AdminTransitionPolicy {
	case "forward_only", "permissive":
	default:
		invalid = append(invalid, "Orders.AdminTransitionPolicy")
	}

	switch cfg.Events.Backend {
	case EventsBackendNone:
	case EventsBackendPubSub:
		if strings.TrimSpace(cfg.Events.PubSubTopic) == "" {
			invalid = append(invalid, "Events.PubSubTopic")
		}
	case EventsBackendKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			invalid = append(invalid, "Events.KafkaBrokers")
		}
		if strings.TrimSpace(cfg.Events.KafkaTopic) == "" {
			invalid = append(invalid, "Events.KafkaTopic")
		}
	default:
		invalid = append(invalid, "Events.Backend")
	}

	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		invalid = append(invalid, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		invalid = append(invalid, "Idempotency.CleanupBatchSize")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}
