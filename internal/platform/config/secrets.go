package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to nothing. Only
// hashed names are rendered so logs never reveal which credential is absent.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns the hashed secret identifiers, sorted.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.names) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers, sorted.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.names) == 0 {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{}, len(required))
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(resolved[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}
