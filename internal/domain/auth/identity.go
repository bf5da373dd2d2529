package auth

import (
	"context"

	"github.com/threadline/storefront/internal/domain/user"
)

// Identity is the request-scoped caller identity resolved from an API key.
// Handlers receive it explicitly instead of consulting ambient session state.
type Identity struct {
	UserID string
	Role   user.Role
	// KeyName identifies which API key authenticated the request.
	KeyName string
}

// IsAdmin is the capability check gating admin surfaces.
func IsAdmin(id Identity) bool {
	return id.Role == user.RoleAdmin
}

// APIKeyInfo holds the stored form of an API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	UserID  string
	Name    string
	Role    user.Role
}

// Repository provides lookup of active API keys by their HMAC-SHA256 hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type identityKey struct{}

// WithIdentity stores the identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom extracts the identity placed by the security middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
