package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GetOwnerIDFromContext parses the claims subject as the owner's UUID.
// Returns uuid.Nil and false if not authenticated or the subject is not a UUID.
func GetOwnerIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil || claims.Subject == "" {
		return uuid.Nil, false
	}

	ownerID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, false
	}
	return ownerID, true
}

// RequireOwnerIDFromContext is GetOwnerIDFromContext for callers that
// cannot proceed without an owner.
func RequireOwnerIDFromContext(ctx context.Context) (uuid.UUID, error) {
	ownerID, ok := GetOwnerIDFromContext(ctx)
	if !ok {
		return uuid.Nil, fmt.Errorf("valid owner ID not found in context")
	}
	return ownerID, nil
}
