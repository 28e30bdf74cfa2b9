package guard

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/dmitrijs2005/travelplanner/internal/logging"
	"github.com/dmitrijs2005/travelplanner/internal/server/auth"
	"github.com/dmitrijs2005/travelplanner/internal/server/metrics"
	"github.com/dmitrijs2005/travelplanner/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T, now func() time.Time) *auth.Issuer {
	t.Helper()
	ks, err := auth.NewKeySet("k1", []byte("guard-secret"), nil)
	require.NoError(t, err)
	return auth.NewIssuer(ks, "travel-planner", 15*time.Minute, time.Hour, auth.WithClock(now))
}

func TestAuthorize_ValidToken(t *testing.T) {
	iss := newIssuer(t, time.Now)
	g := New(iss, metrics.New(), logging.NewNopLogger())

	tok, err := iss.IssueAccessToken("u1", models.RoleUser)
	require.NoError(t, err)

	id, err := g.Authorize(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", Role: models.RoleUser}, id)
}

func TestAuthorize_FailuresAreUniformAndLogged(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	now := t0
	iss := newIssuer(t, func() time.Time { return now })

	var buf bytes.Buffer
	g := New(iss, nil, logging.NewJSONLogger(&buf, "debug"))

	access, err := iss.IssueAccessToken("u1", models.RoleUser)
	require.NoError(t, err)
	refresh, err := iss.IssueRefreshToken("u1", "fam")
	require.NoError(t, err)

	cases := map[string]string{
		"empty":   "",
		"garbage": "not-a-token",
		"refresh": refresh,
	}
	for name, tok := range cases {
		_, err := g.Authorize(context.Background(), tok)
		require.ErrorIs(t, err, common.ErrUnauthorized, name)
		assert.Equal(t, common.ErrUnauthorized.Error(), err.Error(), "%s: detail must not leak", name)
	}

	now = t0.Add(15 * time.Minute)
	_, err = g.Authorize(context.Background(), access)
	require.ErrorIs(t, err, common.ErrUnauthorized)

	logs := buf.String()
	assert.Contains(t, logs, "access token rejected")
	assert.Contains(t, logs, common.ErrTokenExpired.Error())
	assert.Contains(t, logs, common.ErrTokenKindMismatch.Error())
}

func TestCheck_Roles(t *testing.T) {
	iss := newIssuer(t, time.Now)
	g := New(iss, nil, logging.NewNopLogger())
	ctx := context.Background()

	user, err := iss.IssueAccessToken("u1", models.RoleUser)
	require.NoError(t, err)
	admin, err := iss.IssueAccessToken("a1", models.RoleAdmin)
	require.NoError(t, err)

	_, err = g.Check(ctx, user, Authenticated)
	require.NoError(t, err)

	_, err = g.Check(ctx, user, RequireRole(models.RoleAdmin))
	require.ErrorIs(t, err, common.ErrForbidden)

	id, err := g.Check(ctx, admin, RequireRole(models.RoleAdmin))
	require.NoError(t, err)
	assert.Equal(t, "a1", id.UserID)

	_, err = g.Check(ctx, admin, RequireRole(models.RoleUser))
	require.ErrorIs(t, err, common.ErrForbidden, "roles are matched exactly")

	_, err = g.Check(ctx, admin, RequireRole(models.RoleUser, models.RoleAdmin))
	require.NoError(t, err)

	_, err = g.Check(ctx, "bad", RequireRole(models.RoleAdmin))
	require.ErrorIs(t, err, common.ErrUnauthorized, "authentication is checked before roles")
}

func TestRequireRole_CopiesInput(t *testing.T) {
	roles := []models.Role{models.RoleAdmin}
	req := RequireRole(roles...)
	roles[0] = models.RoleUser

	assert.True(t, req.Allows(models.RoleAdmin))
	assert.False(t, req.Allows(models.RoleUser))
	assert.True(t, Authenticated.Allows(models.RoleUser))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Basic dXNlcjpwdw==", "", false},
		{"Bearer", "", false},
		{"Bearer    ", "", false},
		{"", "", false},
		{"abc", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, "%q", tt.header)
		assert.Equal(t, tt.want, got, "%q", tt.header)
	}
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "u1", Role: models.RoleAdmin})
	id, ok := IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", id.UserID)
	assert.True(t, strings.EqualFold(string(id.Role), "admin"))
}
