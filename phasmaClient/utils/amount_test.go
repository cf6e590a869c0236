package utils

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRaw(t *testing.T) {
	testCases := []struct {
		name     string
		amount   string
		decimals uint8
		want     uint64
		wantErr  string
	}{
		{"whole", "5", 6, 5_000_000, ""},
		{"fractional", "1.5", 6, 1_500_000, ""},
		{"smallest unit", "0.000001", 6, 1, ""},
		{"rounds half up", "0.0000015", 6, 2, ""},
		{"sol", "0.01", 9, 10_000_000, ""},
		{"zero", "0", 6, 0, ""},
		{"negative", "-1", 6, 0, "must not be negative"},
		{"overflow", "100000000000000000000", 6, 0, "overflows"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToRaw(decimal.RequireFromString(tc.amount), tc.decimals)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFromRaw(t *testing.T) {
	assert.True(t, FromRaw(5_000_000, 6).Equal(decimal.RequireFromString("5")))
	assert.True(t, FromRaw(1_500_000, 6).Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "0.000001", FromRaw(1, 6).String())

	// Round trip of the largest representable amount stays exact.
	max := uint64(math.MaxUint64)
	back, err := ToRaw(FromRaw(max, 6), 6)
	require.NoError(t, err)
	assert.Equal(t, max, back)
}

func TestSumRaw(t *testing.T) {
	total, err := SumRaw(1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), total)

	_, err = SumRaw(math.MaxUint64, 1)
	assert.Error(t, err)
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "EPjFWdd5...Dt1v", ShortAddress("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"))
	assert.Equal(t, "short", ShortAddress("short"))
}
