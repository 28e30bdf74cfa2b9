// Package guard decides whether a request carrying a bearer token may
// proceed. Transports call it; it never touches the credential store.
package guard

import (
	"context"
	"slices"
	"strings"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/dmitrijs2005/travelplanner/internal/logging"
	"github.com/dmitrijs2005/travelplanner/internal/server/auth"
	"github.com/dmitrijs2005/travelplanner/internal/server/metrics"
	"github.com/dmitrijs2005/travelplanner/internal/server/models"
)

// Identity is who the access token says the caller is.
type Identity struct {
	UserID string
	Role   models.Role
}

// Requirement is what a route demands of the caller. The zero value,
// Authenticated, accepts any valid access token.
type Requirement struct {
	roles []models.Role
}

var Authenticated = Requirement{}

// RequireRole accepts callers holding any of roles. Roles are matched
// exactly; ADMIN does not imply USER.
func RequireRole(roles ...models.Role) Requirement {
	return Requirement{roles: slices.Clone(roles)}
}

// Allows reports whether role satisfies r.
func (r Requirement) Allows(role models.Role) bool {
	return len(r.roles) == 0 || slices.Contains(r.roles, role)
}

type TokenVerifier interface {
	Verify(token string, kind auth.Kind) (*auth.Claims, error)
}

// Guard is stateless apart from its collaborators and safe for concurrent
// use.
type Guard struct {
	tokens  TokenVerifier
	metrics *metrics.Metrics
	logger  logging.Logger
}

func New(tokens TokenVerifier, m *metrics.Metrics, logger logging.Logger) *Guard {
	return &Guard{tokens: tokens, metrics: m, logger: logger.With("module", "guard")}
}

// Authorize verifies rawToken as an access token. Every failure is
// reported as common.ErrUnauthorized; the reason is only logged.
func (g *Guard) Authorize(ctx context.Context, rawToken string) (Identity, error) {
	id, err := g.authorize(ctx, rawToken)
	g.metrics.GuardDecision(err)
	return id, err
}

// Check authorizes rawToken and then applies req. A valid token whose role
// is not accepted yields common.ErrForbidden.
func (g *Guard) Check(ctx context.Context, rawToken string, req Requirement) (Identity, error) {
	id, err := g.authorize(ctx, rawToken)
	if err == nil && !req.Allows(id.Role) {
		g.logger.Warn(ctx, "role not allowed", "user_id", id.UserID, "role", string(id.Role))
		err = common.ErrForbidden
	}
	g.metrics.GuardDecision(err)
	if err != nil {
		return Identity{}, err
	}
	return id, nil
}

func (g *Guard) authorize(ctx context.Context, rawToken string) (Identity, error) {
	if rawToken == "" {
		g.logger.Debug(ctx, "missing bearer token")
		return Identity{}, common.ErrUnauthorized
	}

	claims, err := g.tokens.Verify(rawToken, auth.KindAccess)
	if err != nil {
		g.logger.Warn(ctx, "access token rejected", "error", err)
		return Identity{}, common.ErrUnauthorized
	}

	return Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is case-insensitive.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

type identityKey struct{}

// WithIdentity stores id in ctx for downstream handlers.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
