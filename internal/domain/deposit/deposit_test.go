package deposit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2pix/engine/internal/domain/deposit"
	"github.com/b2pix/engine/internal/domain/deposit/fakestore"
)

func TestIsTerminal(t *testing.T) {
	assert.False(t, deposit.IsTerminal(deposit.Draft))
	assert.False(t, deposit.IsTerminal(deposit.Pending))
	assert.True(t, deposit.IsTerminal(deposit.Confirmed))
	assert.True(t, deposit.IsTerminal(deposit.Failed))
}

func TestMarkBroadcastOnlyFromDraft(t *testing.T) {
	ctx := context.Background()
	store := fakestore.New()
	d, err := store.Create(ctx, deposit.Deposit{AdvertisementID: "adv-1", SellerAddress: "SP1"})
	require.NoError(t, err)
	require.Equal(t, deposit.Draft, d.Status)

	got, err := store.MarkBroadcast(ctx, d.ID, "0xabc", 1000)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, deposit.Pending, got.Status)
	assert.Equal(t, "0xabc", got.BlockchainTxID)
	assert.EqualValues(t, 1000, got.Amount)

	again, err := store.MarkBroadcast(ctx, d.ID, "0xdef", 2000)
	require.NoError(t, err)
	assert.Nil(t, again, "a deposit already broadcast cannot be broadcast again")
}

func TestConfirmRequiresPending(t *testing.T) {
	ctx := context.Background()
	store := fakestore.New()
	d, err := store.Create(ctx, deposit.Deposit{AdvertisementID: "adv-1"})
	require.NoError(t, err)

	rejected, err := store.Confirm(ctx, d.ID, time.Now())
	require.NoError(t, err)
	assert.Nil(t, rejected, "a draft deposit must not be confirmable directly")

	_, err = store.MarkBroadcast(ctx, d.ID, "0xabc", 500)
	require.NoError(t, err)

	confirmedAt := time.Now()
	confirmed, err := store.Confirm(ctx, d.ID, confirmedAt)
	require.NoError(t, err)
	require.NotNil(t, confirmed)
	assert.Equal(t, deposit.Confirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.WithinDuration(t, confirmedAt, *confirmed.ConfirmedAt, time.Second)
}

func TestMarkFailedFromDraftOrPending(t *testing.T) {
	ctx := context.Background()
	store := fakestore.New()

	draft, err := store.Create(ctx, deposit.Deposit{})
	require.NoError(t, err)
	failedFromDraft, err := store.MarkFailed(ctx, draft.ID)
	require.NoError(t, err)
	require.NotNil(t, failedFromDraft)
	assert.Equal(t, deposit.Failed, failedFromDraft.Status)

	pending, err := store.Create(ctx, deposit.Deposit{})
	require.NoError(t, err)
	_, err = store.MarkBroadcast(ctx, pending.ID, "0x1", 10)
	require.NoError(t, err)
	failedFromPending, err := store.MarkFailed(ctx, pending.ID)
	require.NoError(t, err)
	require.NotNil(t, failedFromPending)
	assert.Equal(t, deposit.Failed, failedFromPending.Status)

	terminalAgain, err := store.MarkFailed(ctx, pending.ID)
	require.NoError(t, err)
	assert.Nil(t, terminalAgain, "a terminal deposit cannot be failed again")
}

func TestListPendingWithTxID(t *testing.T) {
	ctx := context.Background()
	store := fakestore.New()

	noTxID, err := store.Create(ctx, deposit.Deposit{})
	require.NoError(t, err)

	withTxID, err := store.Create(ctx, deposit.Deposit{})
	require.NoError(t, err)
	_, err = store.MarkBroadcast(ctx, withTxID.ID, "0xfeed", 42)
	require.NoError(t, err)

	pending, err := store.ListPendingWithTxID(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, withTxID.ID, pending[0].ID)
	assert.NotEqual(t, noTxID.ID, pending[0].ID)
}
