package compute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectDevice(t *testing.T) {
	cands := []Identity{
		{Name: "Intel(R) UHD Graphics", UUID: "8680-9b3e-0000"},
		{Name: "NVIDIA GeForce RTX 3070", UUID: "AB12CD34"},
		{Name: "AMD Radeon"},
	}

	idx, err := SelectDevice(cands, Selection{Index: -1})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = SelectDevice(cands, Selection{UUID: "ab12-cd34", Name: "amd", Index: -1})
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "uuid wins over name")

	idx, err = SelectDevice(cands, Selection{UUID: "ffff", Name: "radeon", Index: 0})
	require.NoError(t, err)
	assert.Equal(t, 2, idx, "name wins over index")

	idx, err = SelectDevice(cands, Selection{Index: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = SelectDevice(cands, Selection{Name: "apple", Index: -1})
	assert.Error(t, err)

	_, err = SelectDevice(nil, Selection{Index: -1})
	assert.Error(t, err)
}

func TestOpenCPU(t *testing.T) {
	dev, err := Open(OpenOptions{Backend: BackendCPU})
	require.NoError(t, err)
	defer dev.Close()
	assert.Equal(t, "host", dev.Identity().Platform)

	_, err = Open(OpenOptions{Backend: "vulkan"})
	assert.Error(t, err)
}

func TestParseSelection(t *testing.T) {
	assert.Equal(t, Selection{Index: -1}, ParseSelection("  "))
	assert.Equal(t, Selection{Index: 2}, ParseSelection("2"))
	assert.Equal(t, Selection{UUID: "0123ABCD-0123-4567-89ab-0123456789ab", Index: -1},
		ParseSelection("0123ABCD-0123-4567-89ab-0123456789ab"))
	assert.Equal(t, Selection{Name: "RTX", Index: -1}, ParseSelection("RTX"))
}
