package pixmatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/b2pix/engine/internal/pixmatch"
)

func TestNormalize_FoldsAmbiguousGlyphsToDigits(t *testing.T) {
	assert.Equal(t, "105128", pixmatch.Normalize("IOSL28"))
	assert.Equal(t, "682", pixmatch.Normalize("gbz"))
}

func TestNormalize_IsIdempotent(t *testing.T) {
	for _, s := range []string{"ABC123", "iosl28", "E00000000202601010000ABC123"} {
		once := pixmatch.Normalize(s)
		twice := pixmatch.Normalize(once)
		assert.Equal(t, once, twice)
	}
}

func TestMatchesSuffix_MatchesAfterFolding(t *testing.T) {
	assert.True(t, pixmatch.MatchesSuffix("E00000000202601010000ABC123", "abc123"))
	assert.True(t, pixmatch.MatchesSuffix("E00000000202601010000ABC128", "ABCIZB"))
}

func TestMatchesSuffix_RejectsEmptyConfirmationCode(t *testing.T) {
	assert.False(t, pixmatch.MatchesSuffix("E00000000202601010000ABC123", ""))
}

func TestMatchesSuffix_RejectsNonSuffixMatch(t *testing.T) {
	assert.False(t, pixmatch.MatchesSuffix("E00000000202601010000ABC123", "XYZ999"))
}
