// Package admin provisions operator accounts. It is used by cmd/admin and
// talks to the session manager directly, bypassing the transports.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/dmitrijs2005/travelplanner/internal/server/models"
)

type Provisioner interface {
	Register(ctx context.Context, email, password, name string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Promote(ctx context.Context, userID string, role models.Role) error
}

// CreateAdmin registers email with role ADMIN. An existing account is
// promoted instead; its password is left unchanged.
func CreateAdmin(ctx context.Context, p Provisioner, email, name string, password []byte, w io.Writer) error {
	u, err := p.Register(ctx, email, string(password), name)
	switch {
	case err == nil:
		fmt.Fprintf(w, "created user %s\n", u.ID)
	case errors.Is(err, common.ErrEmailAlreadyExists):
		u, err = p.FindByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("lookup existing user: %w", err)
		}
		fmt.Fprintf(w, "user %s already exists, password unchanged\n", u.ID)
	default:
		return fmt.Errorf("register: %w", err)
	}

	if u.Role == models.RoleAdmin {
		fmt.Fprintln(w, "already ADMIN")
		return nil
	}
	if err := p.Promote(ctx, u.ID, models.RoleAdmin); err != nil {
		return fmt.Errorf("promote: %w", err)
	}
	fmt.Fprintln(w, "role set to ADMIN")
	return nil
}
