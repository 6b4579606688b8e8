package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "shop-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "shop-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Store.Backend != StoreBackendFirestore || cfg.Store.CouponStore != CouponStorePrimary {
		t.Errorf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Orders.AdminTransitionPolicy != "forward_only" {
		t.Errorf("expected forward_only policy, got %s", cfg.Orders.AdminTransitionPolicy)
	}
	if cfg.Orders.RedeemCouponOnCreate {
		t.Errorf("expected coupon redemption on order to be disabled by default")
	}
	if cfg.Events.Backend != EventsBackendNone {
		t.Errorf("expected no events backend, got %s", cfg.Events.Backend)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if !slices.Equal(cfg.Security.OIDC.Issuers, []string{defaultSecurityIssuer}) {
		t.Errorf("expected default issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader || cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency defaults: %+v", cfg.Idempotency)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                    "9090",
		"API_SERVER_IDLE_TIMEOUT":            "2m",
		"API_FIREBASE_PROJECT_ID":            "shop-prod",
		"API_FIRESTORE_PROJECT_ID":           "shop-fire",
		"API_STORE_BACKEND":                  "Firestore",
		"API_COUPON_STORE":                   "postgres",
		"API_POSTGRES_DSN":                   "sm://coupons/dsn",
		"API_ORDERS_ADMIN_TRANSITION_POLICY": "permissive",
		"API_COUPON_REDEEM_ON_ORDER":         "yes",
		"API_EVENTS_BACKEND":                 "kafka",
		"API_EVENTS_KAFKA_BROKERS":           "kafka-1:9092, kafka-2:9092",
		"API_PSP_STRIPE_API_KEY":             "secret://stripe/api",
		"API_PSP_STRIPE_ACCOUNT":             "acct_123",
		"API_SECURITY_ENVIRONMENT":           "PROD",
		"API_SECURITY_OIDC_AUDIENCES":        "prod=https://orders.example.com,stg=https://stg.example.com",
		"API_IDEMPOTENCY_HEADER":             "X-Idem-Key",
		"API_IDEMPOTENCY_CLEANUP_BATCH":      "500",
	}
	secrets := map[string]string{
		"secret://stripe/api":  "sk_live",
		"secret://coupons/dsn": "postgres://coupons",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Firestore.ProjectID != "shop-fire" {
		t.Errorf("unexpected firestore project %s", cfg.Firestore.ProjectID)
	}
	if cfg.Store.CouponStore != CouponStorePostgres || cfg.Store.PostgresDSN != "postgres://coupons" {
		t.Errorf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Orders.AdminTransitionPolicy != "permissive" || !cfg.Orders.RedeemCouponOnCreate {
		t.Errorf("unexpected orders config: %+v", cfg.Orders)
	}
	if !slices.Equal(cfg.Events.KafkaBrokers, []string{"kafka-1:9092", "kafka-2:9092"}) {
		t.Errorf("unexpected kafka brokers %v", cfg.Events.KafkaBrokers)
	}
	if cfg.Events.KafkaTopic != defaultKafkaTopic {
		t.Errorf("expected default kafka topic, got %s", cfg.Events.KafkaTopic)
	}
	if cfg.PSP.StripeAPIKey != "sk_live" || cfg.PSP.StripeAccount != "acct_123" {
		t.Errorf("unexpected psp config: %+v", cfg.PSP)
	}
	if cfg.Security.OIDC.Audience != "https://orders.example.com" {
		t.Errorf("expected audience resolved from environment map, got %s", cfg.Security.OIDC.Audience)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" || cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected idempotency config: %+v", cfg.Idempotency)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local\nexport API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=\"shop-dot\"\nAPI_STORE_BACKEND=memory # dev only\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv(), WithEnvMap(map[string]string{"API_SERVER_PORT": "6060"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected explicit map to win over dotenv, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "shop-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Store.Backend != StoreBackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Store.Backend)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]struct {
		env    map[string]string
		fields []string
	}{
		"missing firebase": {
			env:    map[string]string{},
			fields: []string{"Firebase.ProjectID", "Firestore.ProjectID"},
		},
		"postgres without dsn": {
			env:    map[string]string{"API_FIREBASE_PROJECT_ID": "p", "API_COUPON_STORE": "postgres"},
			fields: []string{"Store.PostgresDSN"},
		},
		"unknown backends": {
			env: map[string]string{
				"API_FIREBASE_PROJECT_ID":            "p",
				"API_STORE_BACKEND":                  "sqlite",
				"API_EVENTS_BACKEND":                 "smtp",
				"API_ORDERS_ADMIN_TRANSITION_POLICY": "anything",
			},
			fields: []string{"Store.Backend", "Orders.AdminTransitionPolicy", "Events.Backend"},
		},
		"pubsub without topic": {
			env:    map[string]string{"API_FIREBASE_PROJECT_ID": "p", "API_EVENTS_BACKEND": "pubsub"},
			fields: []string{"Events.PubSubTopic"},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(context.Background(), WithEnvMap(tc.env), WithoutSystemEnv(), WithEnvFile(""))
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %T %v", err, err)
			}
			if !slices.Equal(validation.Fields(), tc.fields) {
				t.Fatalf("expected fields %v, got %v", tc.fields, validation.Fields())
			}
		})
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "shop-dev",
		"API_PSP_STRIPE_API_KEY":  "sm://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected unconfigured resolver cause, got %v", err)
	}
}

func TestLoadRequiredSecrets(t *testing.T) {
	env := map[string]string{"API_FIREBASE_PROJECT_ID": "shop-dev"}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithRequiredSecrets("PSP.StripeAPIKey", "PSP.StripeAPIKey"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T %v", err, err)
	}
	if names := missing.Names(); !slices.Equal(names, []string{"PSP.StripeAPIKey"}) {
		t.Fatalf("unexpected missing names %v", names)
	}
	redacted := missing.RedactedNames()
	if len(redacted) != 1 || redacted[0] == "PSP.StripeAPIKey" || len(redacted[0]) != 16 {
		t.Fatalf("expected hashed name, got %v", redacted)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithoutSystemEnv(), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "map-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if values["API_FIREBASE_PROJECT_ID"] != "map-project" {
		t.Errorf("expected map override, got %s", values["API_FIREBASE_PROJECT_ID"])
	}
	if values["API_SECRET_FALLBACK_FILE"] != ".dot.local" {
		t.Errorf("expected dotenv value, got %s", values["API_SECRET_FALLBACK_FILE"])
	}
}
