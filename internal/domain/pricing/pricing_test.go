package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2pix/engine/internal/domain/pricing"
)

func TestScaleFor_KnownToken(t *testing.T) {
	scale, err := pricing.ScaleFor("STX")
	require.NoError(t, err)
	assert.Equal(t, int64(100_000_000), scale)
}

func TestScaleFor_UnknownTokenErrors(t *testing.T) {
	_, err := pricing.ScaleFor("DOGE")
	require.Error(t, err)
}

func TestTargetPrice_AppliesOffset(t *testing.T) {
	assert.Equal(t, int64(1000), pricing.TargetPrice(1000, 0))
	assert.Equal(t, int64(1030), pricing.TargetPrice(1000, 300))
	assert.Equal(t, int64(970), pricing.TargetPrice(1000, -300))
}

func TestMinAcceptablePrice_AppliesToleranceBelowTarget(t *testing.T) {
	assert.Equal(t, int64(997), pricing.MinAcceptablePrice(1000))
}

func TestAmountForPayValue_ComputesReservedCrypto(t *testing.T) {
	scale, err := pricing.ScaleFor("STX")
	require.NoError(t, err)
	amount := pricing.AmountForPayValue(1000, 500, scale)
	assert.Equal(t, int64(1000)*scale/500, amount)
}

func TestFormatCents_RendersTwoDecimalPlaces(t *testing.T) {
	assert.Equal(t, "10.00", pricing.FormatCents(1000))
	assert.Equal(t, "0.05", pricing.FormatCents(5))
	assert.Equal(t, "-3.50", pricing.FormatCents(-350))
}
