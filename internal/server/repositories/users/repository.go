// Package users is the credential store: user records, their password
// hashes, social identities, roles and the current refresh fingerprint.
package users

import (
	"context"

	"github.com/dmitrijs2005/travelplanner/internal/server/models"
)

// Repository is implemented by the PostgreSQL and in-memory stores.
//
// Lookups return common.ErrorNotFound when no row matches. Create returns
// common.ErrorAlreadyExists when the email (case-insensitively) or the
// social pair is already taken.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetBySocial(ctx context.Context, provider, socialID string) (*models.User, error)
	UpdateProfile(ctx context.Context, id, name, profileImage string) (*models.User, error)
	SetRole(ctx context.Context, id string, role models.Role) error

	// SetRefreshFingerprint overwrites the fingerprint unconditionally. An
	// empty value ends the session.
	SetRefreshFingerprint(ctx context.Context, id, fingerprint string) error

	// SwapRefreshFingerprint replaces expected with next atomically and
	// returns common.ErrFingerprintMismatch when the stored value is not
	// expected (including when no session is active).
	SwapRefreshFingerprint(ctx context.Context, id, expected, next string) error
}
