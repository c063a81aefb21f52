package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceRangeSpan(t *testing.T) {
	got, err := ParseDeviceRange("0-3")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, got)
}

func TestParseDeviceRangeList(t *testing.T) {
	got, err := ParseDeviceRange("0, 2, 5")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 5}, got)
}

func TestParseDeviceRangeSingle(t *testing.T) {
	got, err := ParseDeviceRange("4")
	require.NoError(t, err)
	assert.Equal(t, []int{4}, got)
}

func TestParseDeviceRangeInvalid(t *testing.T) {
	for _, spec := range []string{"", "9-0", "-1-3", "a-b", "1,x"} {
		_, err := ParseDeviceRange(spec)
		assert.Error(t, err, "spec %q", spec)
	}
}
