package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type contextKey string

const (
	// OwnerScopeKey is the context key for storing the owner-scoped database connection.
	OwnerScopeKey contextKey = "ownerScope"
)

// GetOwnerScope retrieves the owner-scoped database connection from context.
// Returns nil and false if not present.
func GetOwnerScope(ctx context.Context) (*OwnerScope, bool) {
	scope, ok := ctx.Value(OwnerScopeKey).(*OwnerScope)
	return scope, ok && scope != nil
}

// SetOwnerScope stores the owner-scoped database connection in context.
func SetOwnerScope(ctx context.Context, scope *OwnerScope) context.Context {
	return context.WithValue(ctx, OwnerScopeKey, scope)
}

// ScopeProvider opens database scopes for work that runs outside an HTTP request.
type ScopeProvider interface {
	// WithOwnerScope returns a context carrying a scope for ownerID.
	WithOwnerScope(ctx context.Context, ownerID uuid.UUID) (context.Context, func(), error)
	// WithSystemScope returns a context carrying an unscoped connection.
	WithSystemScope(ctx context.Context) (context.Context, func(), error)
}

type scopeProvider struct {
	db *DB
}

// NewScopeProvider creates a ScopeProvider for the given database.
func NewScopeProvider(db *DB) ScopeProvider {
	return &scopeProvider{db: db}
}

// WithOwnerScope returns a context with owner scope set.
// The cleanup function must be called when the scope is no longer needed.
func (p *scopeProvider) WithOwnerScope(ctx context.Context, ownerID uuid.UUID) (context.Context, func(), error) {
	scope, err := p.db.WithOwner(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	return SetOwnerScope(ctx, scope), scope.Close, nil
}

// WithSystemScope returns a context with an unscoped connection set.
// The cleanup function must be called when the scope is no longer needed.
func (p *scopeProvider) WithSystemScope(ctx context.Context) (context.Context, func(), error) {
	scope, err := p.db.WithoutOwner(ctx)
	if err != nil {
		return nil, nil, err
	}
	return SetOwnerScope(ctx, scope), scope.Close, nil
}

// RequireScope returns the scope in ctx, or an error when there is none.
func RequireScope(ctx context.Context) (*OwnerScope, error) {
	scope, ok := GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}
	return scope, nil
}
