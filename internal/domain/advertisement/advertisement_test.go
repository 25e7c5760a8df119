package advertisement_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2pix/engine/internal/domain/advertisement"
	"github.com/b2pix/engine/internal/domain/advertisement/fakestore"
	"github.com/b2pix/engine/internal/domain/pricing"
)

func TestStatusLattice(t *testing.T) {
	assert.True(t, advertisement.CanTransition(advertisement.Draft, advertisement.Pending))
	assert.True(t, advertisement.CanTransition(advertisement.Ready, advertisement.Finishing))
	assert.False(t, advertisement.CanTransition(advertisement.Draft, advertisement.Finishing))
	assert.False(t, advertisement.CanTransition(advertisement.Closed, advertisement.Ready))
}

func TestIsActive(t *testing.T) {
	for _, s := range []advertisement.Status{advertisement.Draft, advertisement.Pending, advertisement.Ready, advertisement.ProcessingDeposit} {
		assert.True(t, advertisement.IsActive(s), "%s should be active", s)
	}
	for _, s := range []advertisement.Status{advertisement.Finishing, advertisement.Closed, advertisement.BankFailed, advertisement.DepositFailed, advertisement.Disabled} {
		assert.False(t, advertisement.IsActive(s), "%s should not be active", s)
	}
}

func TestReserveRespectsAvailableAmount(t *testing.T) {
	ctx := context.Background()
	store := fakestore.New()
	ad, err := store.Create(ctx, advertisement.Advertisement{
		SellerAddress: "SP123", AvailableAmount: 1000, Status: advertisement.Ready,
	})
	require.NoError(t, err)

	got, err := store.Reserve(ctx, ad.ID, 600)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(400), got.AvailableAmount)

	tooMuch, err := store.Reserve(ctx, ad.ID, 1000)
	require.NoError(t, err)
	assert.Nil(t, tooMuch, "reserve beyond available amount must return nil, not an error")
}

func TestLockForDepositOnlyFromReady(t *testing.T) {
	ctx := context.Background()
	store := fakestore.New()
	ad, _ := store.Create(ctx, advertisement.Advertisement{SellerAddress: "SP1", Status: advertisement.Draft})

	got, err := store.LockForDeposit(ctx, ad.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "locking a Draft ad must not match the Ready-only predicate")

	store.TransitionStatus(ctx, ad.ID, []advertisement.Status{advertisement.Draft}, advertisement.Ready)
	got, err = store.LockForDeposit(ctx, ad.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, advertisement.ProcessingDeposit, got.Status)
}

func TestUpdatePricingAtomicRejectsTerminalStatuses(t *testing.T) {
	ctx := context.Background()
	store := fakestore.New()
	ad, _ := store.Create(ctx, advertisement.Advertisement{SellerAddress: "SP1", Status: advertisement.Closed})

	got, err := store.UpdatePricingAtomic(ctx, ad.ID, "SP1", pricing.ModeFixed, 100, 200)
	require.NoError(t, err)
	assert.Nil(t, got)
}
