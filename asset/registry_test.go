package asset_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/store/memory"
)

var (
	authority = common.HexToAddress("0x000000000000000000000000000000000000a0a0")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol     = common.HexToAddress("0x00000000000000000000000000000000000ca401")
)

func newRegistry(t *testing.T) *asset.StoreRegistry {
	t.Helper()
	return asset.NewRegistry(memory.New(), authority, asset.WithRegistryLogger(zaptest.NewLogger(t)))
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	first, err := r.CreateAsset(ctx, alice, "ipfs://a")
	require.NoError(t, err)
	second, err := r.CreateAsset(ctx, alice, "ipfs://b")
	require.NoError(t, err)
	assert.Equal(t, asset.ID(1), first)
	assert.Equal(t, asset.ID(2), second)

	ref, err := r.MetadataRef(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://b", ref)

	ids, err := r.AssetsOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []asset.ID{1, 2}, ids)

	_, err = r.CreateAsset(ctx, common.Address{}, "ipfs://c")
	assert.ErrorIs(t, err, asset.ErrInvalidOwner)
}

func TestApprovalsAndOperators(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	id, err := r.CreateAsset(ctx, alice, "")
	require.NoError(t, err)

	ok, err := r.IsOwnerOrApproved(ctx, id, bob)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, r.Approve(ctx, id, bob, bob), asset.ErrNotAuthorized)
	require.NoError(t, r.Approve(ctx, id, alice, bob))
	ok, err = r.IsOwnerOrApproved(ctx, id, bob)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.SetApprovalForAll(ctx, alice, carol, true))
	ok, err = r.IsOwnerOrApproved(ctx, id, carol)
	require.NoError(t, err)
	assert.True(t, ok)

	// Transfer clears the single approval.
	require.NoError(t, r.Transfer(ctx, id, carol, bob))
	owner, err := r.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)

	ok, err = r.IsOwnerOrApproved(ctx, id, carol)
	require.NoError(t, err)
	assert.False(t, ok, "operator of the previous owner")

	// Missing assets are simply not approved.
	ok, err = r.IsOwnerOrApproved(ctx, 99, alice)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDestroyRunsHooksInTransaction(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	id, err := r.CreateAsset(ctx, alice, "")
	require.NoError(t, err)

	var calls []asset.ID
	fail := true
	r.OnDestroy(func(_ context.Context, got asset.ID) error {
		calls = append(calls, got)
		if fail {
			return errors.New("hook refused")
		}
		return nil
	})

	assert.ErrorIs(t, r.DestroyAsset(ctx, id, bob), asset.ErrNotAuthorized)
	assert.Empty(t, calls, "hooks run only for authorized callers")

	require.Error(t, r.DestroyAsset(ctx, id, alice))
	_, err = r.OwnerOf(ctx, id)
	require.NoError(t, err, "a failing hook aborts the destruction")

	fail = false
	require.NoError(t, r.DestroyAsset(ctx, id, alice))
	assert.Equal(t, []asset.ID{id, id}, calls)

	_, err = r.OwnerOf(ctx, id)
	assert.ErrorIs(t, err, asset.ErrAssetNotFound)
}

func TestPauseIsAuthorityOnly(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	assert.Equal(t, authority, r.Authority())
	assert.ErrorIs(t, r.SetPaused(ctx, alice, true), asset.ErrNotAuthorized)
	require.NoError(t, r.SetPaused(ctx, authority, true))

	paused, err := r.Paused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)

	_, err = r.CreateAsset(ctx, alice, "")
	assert.ErrorIs(t, err, asset.ErrSystemPaused)
}

func TestParseID(t *testing.T) {
	id, err := asset.ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, asset.ID(42), id)
	assert.Equal(t, "42", id.String())

	for _, bad := range []string{"", "0", "-1", "abc"} {
		_, err := asset.ParseID(bad)
		assert.ErrorIs(t, err, asset.ErrAssetNotFound, bad)
	}
}
