package auth

import (
	"context"
	"errors"
)

var (
	// ErrAccountMismatch indicates a member asked for another member's data.
	ErrAccountMismatch = errors.New("auth: account mismatch")
	// ErrTreasurerOnly indicates a member asked for club-wide data.
	ErrTreasurerOnly = errors.New("auth: treasurer role required")
)

// EnsureAccountAccess allows treasurers everything and members only their own account.
// A context without identity is allowed, which is the case when auth is disabled.
func EnsureAccountAccess(ctx context.Context, accountID string) error {
	switch RoleFromContext(ctx) {
	case "":
		return nil
	case RoleTreasurer:
		return nil
	case RoleMember:
		if accountID != "" && AccountIDFromContext(ctx) == accountID {
			return nil
		}
	}
	return ErrAccountMismatch
}

// EnsureTreasurer rejects every authenticated caller below treasurer.
func EnsureTreasurer(ctx context.Context) error {
	role := RoleFromContext(ctx)
	if role == "" || RoleAtLeast(role, RoleTreasurer) {
		return nil
	}
	return ErrTreasurerOnly
}
