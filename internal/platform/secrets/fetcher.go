// Package secrets resolves secret:// configuration references against Google Secret Manager,
// falling back to a local dotenv-style file during development.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 10 * time.Minute
	meterName           = "storefront/secrets"
)

// ErrNotFound is returned when neither Secret Manager nor the fallback file holds the secret.
var ErrNotFound = errors.New("secrets: not found")

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher implements config.SecretResolver.
type Fetcher struct {
	client    accessClient
	ownClient bool
	projectID string
	logger    *zap.Logger
	ttl       time.Duration
	now       func() time.Time

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.Mutex
	cache map[string]cached

	lookups    metric.Int64Counter
	clientOpts []option.ClientOption
}

type cached struct {
	value   string
	expires time.Time
}

type Option func(*Fetcher)

func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithProject sets the project used for short references such as secret://stripe-api-key.
func WithProject(projectID string) Option {
	return func(f *Fetcher) { f.projectID = strings.TrimSpace(projectID) }
}

func WithFallbackFile(path string) Option {
	return func(f *Fetcher) { f.fallbackPath = strings.TrimSpace(path) }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(f *Fetcher) {
		if ttl > 0 {
			f.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(f *Fetcher) {
		if provider != nil {
			f.lookups = newLookupCounter(provider)
		}
	}
}

func WithClientOptions(opts ...option.ClientOption) Option {
	return func(f *Fetcher) { f.clientOpts = append(f.clientOpts, opts...) }
}

func withClient(client accessClient) Option {
	return func(f *Fetcher) { f.client = client }
}

// NewFetcher creates a Secret Manager client unless one was injected. When the client cannot
// be created the fetcher keeps working from the fallback file only.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		logger:       zap.NewNop(),
		ttl:          defaultCacheTTL,
		now:          time.Now,
		fallbackPath: defaultFallbackPath,
		cache:        make(map[string]cached),
		lookups:      newLookupCounter(otel.GetMeterProvider()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	if f.client == nil {
		client, err := secretmanager.NewClient(ctx, f.clientOpts...)
		if err != nil {
			f.logger.Warn("secret manager client unavailable, using fallback file only", zap.Error(err))
		} else {
			f.client = client
			f.ownClient = true
		}
	}
	return f, nil
}

func newLookupCounter(provider metric.MeterProvider) metric.Int64Counter {
	counter, err := provider.Meter(meterName).Int64Counter(
		"secrets.lookups",
		metric.WithDescription("Secret lookups by source"),
	)
	if err != nil {
		return nil
	}
	return counter
}

func (f *Fetcher) Close() error {
	if f.ownClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret accepts secret://name, secret://name?version=3 and
// secret://projects/p/secrets/name/versions/v.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	name, err := f.versionName(ref)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	entry, ok := f.cache[name]
	f.mu.Unlock()
	if ok && f.now().Before(entry.expires) {
		f.count(ctx, "cache")
		return entry.value, nil
	}

	if f.client != nil {
		resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		switch {
		case err == nil:
			value := string(resp.GetPayload().GetData())
			f.store(name, value)
			f.count(ctx, "secret_manager")
			return value, nil
		case !fallbackEligible(err):
			f.count(ctx, "error")
			return "", fmt.Errorf("secrets: access %s: %w", name, err)
		default:
			f.logger.Debug("secret manager unreachable, trying fallback", zap.String("secret", name), zap.Error(err))
		}
	}

	value, ok := f.lookupFallback(ref, name)
	if !ok {
		f.count(ctx, "error")
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	f.store(name, value)
	f.count(ctx, "fallback")
	return value, nil
}

func (f *Fetcher) versionName(ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || u.Scheme != "secret" {
		return "", fmt.Errorf("secrets: invalid reference %q", ref)
	}
	path := strings.Trim(u.Host+u.Path, "/")
	if path == "" {
		return "", fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	if strings.HasPrefix(path, "projects/") {
		if !strings.Contains(path, "/versions/") {
			path += "/versions/latest"
		}
		return path, nil
	}
	project := strings.TrimSpace(u.Query().Get("project"))
	if project == "" {
		project = f.projectID
	}
	if project == "" {
		project = "local"
	}
	version := strings.TrimSpace(u.Query().Get("version"))
	if version == "" {
		version = "latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, path, version), nil
}

func (f *Fetcher) store(name, value string) {
	f.mu.Lock()
	f.cache[name] = cached{value: value, expires: f.now().Add(f.ttl)}
	f.mu.Unlock()
}

func (f *Fetcher) count(ctx context.Context, source string) {
	if f.lookups != nil {
		f.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	}
}

// lookupFallback matches either the full reference or the bare secret name as the file key.
func (f *Fetcher) lookupFallback(ref, name string) (string, bool) {
	f.fallbackOnce.Do(func() { f.fallback = f.loadFallback() })
	if value, ok := f.fallback[strings.TrimSpace(ref)]; ok {
		return value, true
	}
	parts := strings.Split(name, "/")
	if len(parts) >= 4 {
		value, ok := f.fallback[parts[3]]
		return value, ok
	}
	return "", false
}

func (f *Fetcher) loadFallback() map[string]string {
	values := map[string]string{}
	if f.fallbackPath == "" {
		return values
	}
	file, err := os.Open(f.fallbackPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("secrets fallback file unreadable", zap.String("path", f.fallbackPath), zap.Error(err))
		}
		return values
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		f.logger.Warn("secrets fallback file truncated", zap.String("path", f.fallbackPath), zap.Error(err))
	}
	return values
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded, codes.NotFound:
		return true
	}
	return false
}
