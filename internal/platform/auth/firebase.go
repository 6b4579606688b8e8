package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/httpx"
)

const (
	roleClaim            = "role"
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens. *firebaseauth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// NewFirebaseVerifier initialises the Admin SDK auth client for cfg.ProjectID.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig) (TokenVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return client, nil
}

// Authenticator turns Firebase bearer tokens into an Identity on the request context.
type Authenticator struct {
	verifier TokenVerifier
	timeout  time.Duration
}

func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier, timeout: defaultVerifyTimeout}
}

// RequireFirebaseAuth rejects requests without a valid ID token (401) or, when roles are
// given, without one of them (403). Tokens without a role claim are plain users.
func (a *Authenticator) RequireFirebaseAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
				return
			}
			if a == nil || a.verifier == nil {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusUnauthorized))
				return
			}

			verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
			token, err := a.verifier.VerifyIDToken(verifyCtx, raw)
			cancel()
			if err != nil {
				code, message := "invalid_token", "firebase id token invalid"
				if firebaseauth.IsIDTokenExpired(err) {
					code, message = "token_expired", "firebase id token expired"
				}
				httpx.WriteError(ctx, w, httpx.NewError(code, message, http.StatusUnauthorized))
				return
			}

			identity := &Identity{UID: token.UID, Roles: rolesFromClaims(token.Claims)}
			identity.Email, _ = token.Claims["email"].(string)
			if len(identity.Roles) == 0 {
				identity.Roles = []string{RoleUser}
			}
			if len(roles) > 0 && !identity.HasAnyRole(roles...) {
				httpx.WriteError(ctx, w, httpx.NewError("forbidden", "identity does not have required role", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// rolesFromClaims accepts "admin", ["staff","admin"] or {"admin": true}.
func rolesFromClaims(claims map[string]any) []string {
	var raw []string
	switch v := claims[roleClaim].(type) {
	case string:
		raw = []string{v}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case map[string]any:
		for role, enabled := range v {
			if b, ok := enabled.(bool); ok && b {
				raw = append(raw, role)
			}
		}
	}
	seen := make(map[string]bool, len(raw))
	var out []string
	for _, role := range raw {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" || seen[role] {
			continue
		}
		seen[role] = true
		out = append(out, role)
	}
	return out
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
