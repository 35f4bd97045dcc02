package rknn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformCores(t *testing.T) {

	tests := []struct {
		platform string
		ct       CoreType
		want     []int
		mask     uintptr
	}{
		{"rk3588", FastCores, []int{4, 5, 6, 7}, 0b11110000},
		{"rk3588", SlowCores, []int{0, 1, 2, 3}, 0b00001111},
		{"RK3588 ", AllCores, []int{0, 1, 2, 3, 4, 5, 6, 7}, 0b11111111},
		{"rk3582", AllCores, []int{0, 1, 2, 3, 4, 5}, 0b00111111},
		{"rk3566", AllCores, []int{0, 1, 2, 3}, 0b00001111},
	}

	for _, tc := range tests {
		got, err := PlatformCores(tc.platform, tc.ct)
		require.NoError(t, err, tc.platform)
		assert.Equal(t, tc.want, got, tc.platform)
		assert.Equal(t, tc.mask, CPUCoreMask(got), tc.platform)
	}

	_, err := PlatformCores("rk9999", FastCores)
	assert.Error(t, err)
}

func TestParseCoreType(t *testing.T) {

	ct, err := ParseCoreType("Fast")
	require.NoError(t, err)
	assert.Equal(t, FastCores, ct)

	ct, err = ParseCoreType("")
	require.NoError(t, err)
	assert.Equal(t, AllCores, ct)

	_, err = ParseCoreType("turbo")
	assert.Error(t, err)
}
