package invite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2pix/engine/internal/domain/invite"
	"github.com/b2pix/engine/internal/domain/invite/fakestore"
)

func TestRedeemRejectsExpired(t *testing.T) {
	ctx := context.Background()
	store := fakestore.New()
	now := time.Now()
	inv, _ := store.Create(ctx, invite.Invite{Code: "ABC123", ExpiresAt: now.Add(-time.Hour)})

	got, err := store.Redeem(ctx, inv.Code, "SP999", now)
	require.NoError(t, err)
	assert.Nil(t, got, "expired invites must not be redeemable")
}

func TestRedeemHappyPath(t *testing.T) {
	ctx := context.Background()
	store := fakestore.New()
	now := time.Now()
	inv, _ := store.Create(ctx, invite.Invite{Code: "GOOD1", ExpiresAt: now.Add(7 * 24 * time.Hour)})

	got, err := store.Redeem(ctx, inv.Code, "SP999", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, invite.Redeemed, got.Status)
	assert.Equal(t, "SP999", got.InviteeAddress)

	again, err := store.Redeem(ctx, inv.Code, "SPOTHER", now)
	require.NoError(t, err)
	assert.Nil(t, again, "a redeemed invite cannot be redeemed twice")
}
