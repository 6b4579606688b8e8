package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/httpx"
)

var (
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

const (
	defaultJWKSValidity = 15 * time.Minute
	defaultJWKSTimeout  = 5 * time.Second
	iapAssertionHeader  = "X-Goog-Iap-Jwt-Assertion"
)

// JWKSCache fetches signing keys on demand and keeps them for the max-age the issuer advertises.
// An unknown kid forces a refresh so key rotation is picked up without waiting for expiry.
type JWKSCache struct {
	url    string
	client *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time

	refreshMu sync.Mutex
}

type JWKSOption func(*JWKSCache)

func NewJWKSCache(url string, opts ...JWKSOption) *JWKSCache {
	cache := &JWKSCache{
		url:    url,
		client: &http.Client{Timeout: defaultJWKSTimeout},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache
}

func WithJWKSHTTPClient(client *http.Client) JWKSOption {
	return func(c *JWKSCache) {
		if client != nil {
			c.client = client
		}
	}
}

func WithJWKSLogger(logger *zap.Logger) JWKSOption {
	return func(c *JWKSCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithJWKSClock(now func() time.Time) JWKSOption {
	return func(c *JWKSCache) {
		if now != nil {
			c.now = now
		}
	}
}

// Key returns the public key for kid.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	if key, ok := c.cached(kid); ok {
		return key, nil
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := c.cached(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		return c.Key(ctx, kid)
	}
}

func (c *JWKSCache) cached(kid string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.keys == nil || !c.now().Before(c.expiry) {
		return nil, false
	}
	jwk, ok := c.keys[kid]
	if !ok {
		return nil, false
	}
	return jwk.Key, true
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode jwks: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID != "" && jwk.Valid() {
			keys[jwk.KeyID] = jwk
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	validity := maxAge(resp.Header.Get("Cache-Control"))
	if validity <= 0 {
		validity = defaultJWKSValidity
	}
	c.mu.Lock()
	c.keys = keys
	c.expiry = c.now().Add(validity)
	c.mu.Unlock()

	c.logger.Debug("jwks refreshed", zap.Int("keys", len(keys)), zap.Duration("validity", validity))
	return nil
}

func maxAge(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// OIDCValidator guards internal routes that are invoked by schedulers and payment workers.
type OIDCValidator struct {
	cache   *JWKSCache
	logger  *zap.Logger
	verified metric.Int64Counter
}

type OIDCOption func(*OIDCValidator)

func WithOIDCLogger(logger *zap.Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithOIDCMeterProvider overrides the global meter provider.
func WithOIDCMeterProvider(provider metric.MeterProvider) OIDCOption {
	return func(v *OIDCValidator) {
		if provider != nil {
			v.verified = newVerificationCounter(provider)
		}
	}
}

func NewOIDCValidator(cache *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	v := &OIDCValidator{
		cache:   cache,
		logger:  zap.NewNop(),
		verified: newVerificationCounter(otel.GetMeterProvider()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

func newVerificationCounter(provider metric.MeterProvider) metric.Int64Counter {
	counter, err := provider.Meter("storefront/auth").Int64Counter(
		"auth.oidc.verifications",
		metric.WithDescription("OIDC token verification outcomes"),
	)
	if err != nil {
		return nil
	}
	return counter
}

// RequireOIDC accepts a bearer token (or the IAP assertion header) signed by a key in the JWKS,
// issued by one of issuers and addressed to audience.
func (v *OIDCValidator) RequireOIDC(audience string, issuers []string) func(http.Handler) http.Handler {
	audience = strings.TrimSpace(audience)
	allowed := make([]string, 0, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			allowed = append(allowed, issuer)
		}
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if audience == "" || v == nil || v.cache == nil {
				v.reject(ctx, w, "not_configured", httpx.NewError("verification_unavailable", "oidc verification unavailable", http.StatusServiceUnavailable))
				return
			}
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				raw = strings.TrimSpace(r.Header.Get(iapAssertionHeader))
			}
			if raw == "" {
				v.reject(ctx, w, "token_missing", httpx.NewError("unauthenticated", "oidc token missing", http.StatusUnauthorized))
				return
			}

			claims := jwt.MapClaims{}
			if _, err := parser.ParseWithClaims(raw, claims, v.cache.keyfunc(ctx)); err != nil {
				if errors.Is(err, ErrJWKSFetchFailed) {
					v.logger.Warn("jwks unavailable", zap.Error(err))
					v.reject(ctx, w, "jwks_unavailable", httpx.NewError("verification_unavailable", "oidc verification unavailable", http.StatusServiceUnavailable))
					return
				}
				v.reject(ctx, w, "token_invalid", httpx.NewError("invalid_token", "oidc token verification failed", http.StatusUnauthorized))
				return
			}

			issuer, _ := claims["iss"].(string)
			if len(allowed) > 0 && !slices.Contains(allowed, issuer) {
				v.reject(ctx, w, "issuer_mismatch", httpx.NewError("invalid_token", "oidc issuer mismatch", http.StatusUnauthorized))
				return
			}
			if !slices.Contains(audiences(claims), audience) {
				v.reject(ctx, w, "audience_mismatch", httpx.NewError("invalid_token", "oidc audience mismatch", http.StatusUnauthorized))
				return
			}

			identity := &ServiceIdentity{Issuer: issuer}
			identity.Subject, _ = claims["sub"].(string)
			identity.Email, _ = claims["email"].(string)
			v.count(ctx, "ok")
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

func (v *OIDCValidator) reject(ctx context.Context, w http.ResponseWriter, reason string, err httpx.Error) {
	v.count(ctx, reason)
	if v != nil {
		v.logger.Debug("oidc rejected", zap.String("reason", reason))
	}
	httpx.WriteError(ctx, w, err)
}

func (v *OIDCValidator) count(ctx context.Context, outcome string) {
	if v == nil || v.verified == nil {
		return
	}
	v.verified.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func audiences(claims jwt.MapClaims) []string {
	switch aud := claims["aud"].(type) {
	case string:
		return []string{aud}
	case []string:
		return aud
	case []any:
		out := make([]string, 0, len(aud))
		for _, item := range aud {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
