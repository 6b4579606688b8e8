package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	token *firebaseauth.Token
	err   error
}

func (s stubVerifier) VerifyIDToken(context.Context, string) (*firebaseauth.Token, error) {
	return s.token, s.err
}

func serveFirebase(t *testing.T, verifier TokenVerifier, header string, roles ...string) (*httptest.ResponseRecorder, *Identity) {
	t.Helper()
	var seen *Identity
	handler := NewAuthenticator(verifier).RequireFirebaseAuth(roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, seen
}

func decodeCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	code, _ := body["error"].(string)
	return code
}

func TestRequireFirebaseAuth_DefaultsToUserRole(t *testing.T) {
	verifier := stubVerifier{token: &firebaseauth.Token{UID: "cust_1", Claims: map[string]any{"email": "a@example.com"}}}
	rr, identity := serveFirebase(t, verifier, "Bearer abc")

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, identity)
	assert.Equal(t, "cust_1", identity.UID)
	assert.Equal(t, "a@example.com", identity.Email)
	assert.Equal(t, []string{RoleUser}, identity.Roles)
	assert.False(t, identity.IsStaff())
}

func TestRequireFirebaseAuth_MissingHeader(t *testing.T) {
	rr, identity := serveFirebase(t, stubVerifier{}, "Basic xyz")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "unauthenticated", decodeCode(t, rr))
	assert.Nil(t, identity)
}

func TestRequireFirebaseAuth_InvalidToken(t *testing.T) {
	rr, _ := serveFirebase(t, stubVerifier{err: errors.New("bad signature")}, "Bearer abc")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "invalid_token", decodeCode(t, rr))
}

func TestRequireFirebaseAuth_RoleEnforcement(t *testing.T) {
	user := stubVerifier{token: &firebaseauth.Token{UID: "cust_1"}}
	rr, _ := serveFirebase(t, user, "Bearer abc", RoleStaff, RoleAdmin)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	staff := stubVerifier{token: &firebaseauth.Token{UID: "ops_1", Claims: map[string]any{"role": []any{"Staff", "staff"}}}}
	rr, identity := serveFirebase(t, staff, "bearer abc", RoleStaff, RoleAdmin)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{RoleStaff}, identity.Roles)
	assert.True(t, identity.IsStaff())
}

func TestRolesFromClaims(t *testing.T) {
	assert.Equal(t, []string{"admin"}, rolesFromClaims(map[string]any{"role": " Admin "}))
	assert.Equal(t, []string{"staff"}, rolesFromClaims(map[string]any{"role": map[string]any{"staff": true, "admin": false}}))
	assert.Empty(t, rolesFromClaims(map[string]any{"role": 42}))
	assert.Empty(t, rolesFromClaims(nil))
}

type oidcFixture struct {
	validator *OIDCValidator
	key       *rsa.PrivateKey
	fetches   *atomic.Int32
	server    *httptest.Server
	now       time.Time
}

func newOIDCFixture(t *testing.T) *oidcFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "svc-key", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}
	fetches := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)

	now := time.Unix(1_700_000_000, 0)
	original := jwt.TimeFunc
	jwt.TimeFunc = func() time.Time { return now }
	t.Cleanup(func() { jwt.TimeFunc = original })

	cache := NewJWKSCache(server.URL, WithJWKSClock(func() time.Time { return now }))
	return &oidcFixture{validator: NewOIDCValidator(cache), key: key, fetches: fetches, server: server, now: now}
}

func (f *oidcFixture) sign(t *testing.T, kid string, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"aud":   []any{"https://storefront.internal"},
		"iss":   "https://accounts.google.com",
		"sub":   "1234567890",
		"email": "scheduler@project.iam.gserviceaccount.com",
		"exp":   float64(f.now.Add(time.Hour).Unix()),
		"iat":   float64(f.now.Unix()),
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func (f *oidcFixture) serve(req *http.Request) (*httptest.ResponseRecorder, *ServiceIdentity) {
	var seen *ServiceIdentity
	handler := f.validator.RequireOIDC("https://storefront.internal", []string{"https://accounts.google.com"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = ServiceIdentityFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, seen
}

func TestRequireOIDC_AcceptsBearerAndCachesKeys(t *testing.T) {
	f := newOIDCFixture(t)
	token := f.sign(t, "svc-key", nil)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/internal/orders/ord_1/cancel", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr, identity := f.serve(req)
		require.Equal(t, http.StatusNoContent, rr.Code)
		require.NotNil(t, identity)
		assert.Equal(t, "1234567890", identity.Subject)
		assert.Equal(t, "scheduler@project.iam.gserviceaccount.com", identity.Email)
	}
	assert.EqualValues(t, 1, f.fetches.Load())
}

func TestRequireOIDC_IAPHeader(t *testing.T) {
	f := newOIDCFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/internal/orders/ord_1/cancel", nil)
	req.Header.Set(iapAssertionHeader, f.sign(t, "svc-key", nil))

	rr, _ := f.serve(req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRequireOIDC_Rejections(t *testing.T) {
	f := newOIDCFixture(t)
	cases := map[string]struct {
		token  string
		status int
	}{
		"missing":      {token: "", status: http.StatusUnauthorized},
		"wrong_aud":    {token: f.sign(t, "svc-key", func(c jwt.MapClaims) { c["aud"] = "https://other" }), status: http.StatusUnauthorized},
		"wrong_issuer": {token: f.sign(t, "svc-key", func(c jwt.MapClaims) { c["iss"] = "https://evil.example" }), status: http.StatusUnauthorized},
		"expired":      {token: f.sign(t, "svc-key", func(c jwt.MapClaims) { c["exp"] = float64(f.now.Add(-time.Minute).Unix()) }), status: http.StatusUnauthorized},
		"unknown_kid":  {token: f.sign(t, "rotated", nil), status: http.StatusUnauthorized},
		"not_a_jwt":    {token: "garbage", status: http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal/orders/ord_1/cancel", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rr, identity := f.serve(req)
			assert.Equal(t, tc.status, rr.Code)
			assert.Nil(t, identity)
		})
	}
}

func TestRequireOIDC_JWKSUnavailable(t *testing.T) {
	f := newOIDCFixture(t)
	token := f.sign(t, "svc-key", nil)
	f.server.Close()

	req := httptest.NewRequest(http.MethodPost, "/internal/orders/ord_1/cancel", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr, _ := f.serve(req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "verification_unavailable", decodeCode(t, rr))
}

func TestMaxAge(t *testing.T) {
	assert.Equal(t, 600*time.Second, maxAge("public, max-age=600, must-revalidate"))
	assert.Zero(t, maxAge("no-cache"))
	assert.Zero(t, maxAge("max-age=abc"))
}
