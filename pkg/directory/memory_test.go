package directory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxley/billingkit/pkg/directory"
)

func TestMemoryDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("resolves registered payer refs", func(t *testing.T) {
		t.Parallel()

		dir := directory.NewMemoryDirectory()
		userID := uuid.New()
		dir.AddUser("ctm_1", userID)

		got, err := dir.ResolveUser(ctx, "ctm_1")
		require.NoError(t, err)
		assert.Equal(t, userID, got)

		_, err = dir.ResolveUser(ctx, "ctm_unknown")
		require.ErrorIs(t, err, directory.ErrUserNotFound)
	})

	t.Run("new users default to free", func(t *testing.T) {
		t.Parallel()

		dir := directory.NewMemoryDirectory()
		userID := uuid.New()
		dir.AddUser("ctm_1", userID)

		role, err := dir.GetEntitlementRole(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, directory.RoleFree, role)
	})

	t.Run("admin role is never overwritten", func(t *testing.T) {
		t.Parallel()

		dir := directory.NewMemoryDirectory()
		userID := uuid.New()
		dir.AddUser("ctm_1", userID)
		require.NoError(t, dir.SetEntitlementRole(ctx, userID, directory.RoleAdmin))

		require.NoError(t, dir.SetEntitlementRole(ctx, userID, directory.RoleFree))
		role, err := dir.GetEntitlementRole(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, directory.RoleAdmin, role)
	})

	t.Run("injected failures surface to callers", func(t *testing.T) {
		t.Parallel()

		dir := directory.NewMemoryDirectory()
		dir.AddUser("ctm_1", uuid.New())
		boom := errors.New("directory down")
		dir.Fail(boom)

		_, err := dir.ResolveUser(ctx, "ctm_1")
		require.ErrorIs(t, err, boom)

		dir.Fail(nil)
		_, err = dir.ResolveUser(ctx, "ctm_1")
		require.NoError(t, err)
	})
}
