package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"oceancl/internal/ocean"
)

func TestWriteSnapshot(t *testing.T) {
	const n = 4
	disp := make([]float32, n*n*4)
	normal := make([]float32, n*n*4)
	for i := 0; i < n*n; i++ {
		disp[i*4+2] = float32(i) - 5
		normal[i*4+2] = 1
	}
	path, err := writeSnapshot(t.TempDir(), 7, n, disp, normal, ocean.ZRange{Min: -5, Max: 10})
	require.NoError(t, err)
	assert.Contains(t, path, "ocean-000007-height.tiff")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := tiff.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, n, img.Bounds().Dx())

	lo, _, _, _ := img.At(0, 0).RGBA()
	hi, _, _, _ := img.At(n-1, n-1).RGBA()
	assert.Equal(t, uint32(0), lo)
	assert.Equal(t, uint32(0xffff), hi)
}

func TestWriteSnapshotShortData(t *testing.T) {
	_, err := writeSnapshot(t.TempDir(), 0, 4, make([]float32, 4), make([]float32, 64), ocean.ZRange{})
	assert.Error(t, err)
}

func TestShadeFoamAndWrap(t *testing.T) {
	const n = 2
	disp := make([]float32, n*n*4)
	normal := make([]float32, n*n*4)
	for i := 0; i < n*n; i++ {
		normal[i*4+2] = 1
	}
	disp[3] = 1
	pal := newPalette()
	dst := make([]byte, n*n*4)
	shade(dst, disp, normal, n, ocean.ZRange{Min: 0, Max: 1}, &pal, 0, 1)
	for i := 0; i < n*n; i++ {
		assert.Equal(t, byte(255), dst[i*4+3])
	}
	assert.Greater(t, dst[0], dst[4], "foamed texel is brighter")

	assert.Equal(t, 1, wrap(-1, n))
	assert.Equal(t, 0, wrap(4, n))
}
