package buy_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2pix/engine/internal/domain/buy"
	"github.com/b2pix/engine/internal/domain/buy/fakestore"
)

func TestStatusLattice(t *testing.T) {
	assert.True(t, buy.CanTransition(buy.Pending, buy.InDispute))
	assert.True(t, buy.CanTransition(buy.Paid, buy.InDispute))
	assert.True(t, buy.CanTransition(buy.DisputeFavorBuyer, buy.DisputeResolvedBuyer))
	assert.False(t, buy.CanTransition(buy.DisputeFavorBuyer, buy.DisputeResolvedSeller))
	assert.False(t, buy.CanTransition(buy.Expired, buy.Paid))
}

func TestIsFinal(t *testing.T) {
	for _, s := range []buy.Status{buy.Cancelled, buy.Expired, buy.PaymentConfirmed, buy.DisputeResolvedBuyer, buy.DisputeResolvedSeller} {
		assert.True(t, buy.IsFinal(s))
	}
	for _, s := range []buy.Status{buy.Pending, buy.Paid, buy.InDispute, buy.DisputeFavorBuyer, buy.DisputeFavorSeller} {
		assert.False(t, buy.IsFinal(s))
	}
}

func TestExpireRequiresPendingAndDeadline(t *testing.T) {
	ctx := context.Background()
	store := fakestore.New()
	now := time.Now()
	b, _ := store.Create(ctx, buy.Buy{AddressBuy: "SPX", ExpiresAt: now.Add(-time.Minute)})

	got, err := store.Expire(ctx, b.ID, now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, buy.Expired, got.Status)

	again, err := store.Expire(ctx, b.ID, now)
	require.NoError(t, err)
	assert.Nil(t, again, "expiring an already-expired buy must be a no-op, not an error")
}

func TestMarkPaymentConfirmedRequiresPaid(t *testing.T) {
	ctx := context.Background()
	store := fakestore.New()
	b, _ := store.Create(ctx, buy.Buy{Status: buy.Pending})

	got, err := store.MarkPaymentConfirmedWithTxn(ctx, b.ID, "E12345")
	require.NoError(t, err)
	assert.Nil(t, got, "can't confirm payment before Paid")

	store.MarkPaid(ctx, b.ID, "")
	got, err = store.MarkPaymentConfirmedWithTxn(ctx, b.ID, "E12345")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, buy.PaymentConfirmed, got.Status)
	assert.Equal(t, "E12345", got.PixEndToEndID)
	assert.True(t, got.IsFinal())
}
