package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/storefront/internal/platform/config"
)

var _ config.SecretResolver = (*Fetcher)(nil)

type fakeClient struct {
	mu     sync.Mutex
	values map[string]string
	err    error
	calls  map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{values: map[string]string{}, calls: map[string]int{}}
}

func (c *fakeClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[req.GetName()]++
	if c.err != nil {
		return nil, c.err
	}
	value, ok := c.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (c *fakeClient) Close() error { return nil }

func writeFallback(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolveSecret_CachesUntilTTL(t *testing.T) {
	client := newFakeClient()
	name := "projects/shop/secrets/stripe-api-key/versions/latest"
	client.values[name] = "sk_live"
	now := time.Unix(1_700_000_000, 0)

	f, err := NewFetcher(context.Background(), withClient(client), WithProject("shop"),
		WithCacheTTL(time.Minute), WithClock(func() time.Time { return now }), WithFallbackFile(""))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := f.ResolveSecret(context.Background(), "secret://stripe-api-key")
		require.NoError(t, err)
		assert.Equal(t, "sk_live", got)
	}
	assert.Equal(t, 1, client.calls[name])

	now = now.Add(2 * time.Minute)
	_, err = f.ResolveSecret(context.Background(), "secret://stripe-api-key")
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls[name])
}

func TestResolveSecret_ReferenceForms(t *testing.T) {
	client := newFakeClient()
	client.values["projects/shop/secrets/dsn/versions/3"] = "postgres://v3"
	client.values["projects/other/secrets/dsn/versions/latest"] = "postgres://other"
	client.values["projects/full/secrets/key/versions/latest"] = "full"

	f, err := NewFetcher(context.Background(), withClient(client), WithProject("shop"), WithFallbackFile(""))
	require.NoError(t, err)

	cases := map[string]string{
		"secret://dsn?version=3":             "postgres://v3",
		"secret://dsn?project=other":         "postgres://other",
		"secret://projects/full/secrets/key": "full",
	}
	for ref, want := range cases {
		got, err := f.ResolveSecret(context.Background(), ref)
		require.NoError(t, err, ref)
		assert.Equal(t, want, got, ref)
	}

	_, err = f.ResolveSecret(context.Background(), "https://dsn")
	assert.Error(t, err)
}

func TestResolveSecret_FallbackWhenUnavailable(t *testing.T) {
	client := newFakeClient()
	client.err = status.Error(codes.Unavailable, "offline")
	path := writeFallback(t, "# local\nstripe-api-key=\"sk_test\"\nsecret://dsn?version=2 = postgres://local\n")

	f, err := NewFetcher(context.Background(), withClient(client), WithFallbackFile(path))
	require.NoError(t, err)

	got, err := f.ResolveSecret(context.Background(), "secret://stripe-api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk_test", got)

	got, err = f.ResolveSecret(context.Background(), "secret://dsn?version=2")
	require.NoError(t, err)
	assert.Equal(t, "postgres://local", got)

	_, err = f.ResolveSecret(context.Background(), "secret://unknown")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResolveSecret_PermanentErrorSkipsFallback(t *testing.T) {
	client := newFakeClient()
	client.err = status.Error(codes.InvalidArgument, "bad name")
	path := writeFallback(t, "stripe-api-key=sk_test\n")

	f, err := NewFetcher(context.Background(), withClient(client), WithFallbackFile(path))
	require.NoError(t, err)

	_, err = f.ResolveSecret(context.Background(), "secret://stripe-api-key")
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(errors.Unwrap(err)))
}

func TestLoadWithFetcher(t *testing.T) {
	client := newFakeClient()
	client.values["projects/shop/secrets/stripe/versions/latest"] = "sk_resolved"
	f, err := NewFetcher(context.Background(), withClient(client), WithProject("shop"), WithFallbackFile(""))
	require.NoError(t, err)

	cfg, err := config.Load(context.Background(),
		config.WithEnvMap(map[string]string{
			"API_FIREBASE_PROJECT_ID": "shop",
			"API_PSP_STRIPE_API_KEY":  "sm://stripe",
		}),
		config.WithoutSystemEnv(), config.WithEnvFile(""), config.WithSecretResolver(f))
	require.NoError(t, err)
	assert.Equal(t, "sk_resolved", cfg.PSP.StripeAPIKey)
}
