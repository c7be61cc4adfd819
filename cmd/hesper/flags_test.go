package main

import (
	"testing"

	"github.com/justthefish/hesper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategoryTiers(t *testing.T) {
	tiers, err := parseCategoryTiers("Widget=high, Blob=0x4000,Cold=1")
	require.NoError(t, err)
	assert.Equal(t, map[string]hesper.Tier{
		"Widget": hesper.TierHigh,
		"Blob":   hesper.TierLow,
		"Cold":   hesper.TierVeryLow,
	}, tiers)

	tiers, err = parseCategoryTiers("")
	require.NoError(t, err)
	assert.Empty(t, tiers)

	_, err = parseCategoryTiers("Widget")
	assert.Error(t, err)
	_, err = parseCategoryTiers("=high")
	assert.Error(t, err)
	_, err = parseCategoryTiers("Widget=lukewarm")
	assert.Error(t, err)
}

func TestPointFunc(t *testing.T) {
	fn, err := pointFunc("murmur3")
	require.NoError(t, err)
	assert.Equal(t, hesper.HashMurmur3("k"), fn("k"))

	fn, err = pointFunc("")
	require.NoError(t, err)
	assert.Equal(t, hesper.HashSHA1("k"), fn("k"))

	_, err = pointFunc("crc32")
	assert.Error(t, err)
}
