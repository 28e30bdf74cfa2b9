package auth

import (
	"strings"
	"testing"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("pw1")
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", hash)

	assert.True(t, h.Verify("pw1", hash))
	assert.False(t, h.Verify("pw2", hash))
}

func TestPasswordHasher_SaltedHashesDiffer(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, h.Verify("same", a))
	assert.True(t, h.Verify("same", b))
}

func TestPasswordHasher_UsesConfiguredCost(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(5)
	hash, err := h.Hash("pw")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 5, cost)
}

func TestPasswordHasher_DefaultCost(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(0)
	assert.Equal(t, bcrypt.DefaultCost, h.cost)
}

func TestPasswordHasher_RejectsEmptyAndTooLong(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)

	_, err := h.Hash("")
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = h.Hash(strings.Repeat("a", MaxPasswordBytes+1))
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = h.Hash(strings.Repeat("a", MaxPasswordBytes))
	require.NoError(t, err)
}

func TestPasswordHasher_MalformedHashIsMismatch(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)
	assert.False(t, h.Verify("pw", "not-a-bcrypt-hash"))
	assert.False(t, h.Verify("pw", ""))
}

func TestPasswordHasher_VerifyDummyAlwaysFalse(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)
	assert.False(t, h.VerifyDummy("dummy-password-for-timing"))
	assert.False(t, h.VerifyDummy("anything"))
	assert.NotEmpty(t, h.dummyHash)
}
