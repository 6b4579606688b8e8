// Package auth authenticates API callers: customers and staff with Firebase ID tokens, and
// internal workers with Google-signed OIDC tokens.
package auth

import (
	"context"
	"strings"
)

const (
	RoleUser  = "user"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Identity is a Firebase-authenticated caller.
type Identity struct {
	UID   string
	Email string
	Roles []string
}

func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// IsStaff reports whether the caller may act on other customers' orders.
func (i *Identity) IsStaff() bool {
	return i.HasAnyRole(RoleStaff, RoleAdmin)
}

// ServiceIdentity is an OIDC-authenticated service account.
type ServiceIdentity struct {
	Subject string
	Email   string
	Issuer  string
}

type contextKey int

const (
	identityKey contextKey = iota
	serviceIdentityKey
)

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	return identity, ok && identity != nil
}

func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	return context.WithValue(ctx, serviceIdentityKey, identity)
}

func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityKey).(*ServiceIdentity)
	return identity, ok && identity != nil
}
