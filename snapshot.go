package main

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"oceancl/internal/ocean"
)

// writeSnapshot stores the height channel of disp as a 16-bit grayscale TIFF
// normalized to zr, and normal as a 16-bit RGBA TIFF next to it. It returns
// the heightmap path.
func writeSnapshot(dir string, frame uint64, n int, disp, normal []float32, zr ocean.ZRange) (string, error) {
	if len(disp) < n*n*4 || len(normal) < n*n*4 {
		return "", fmt.Errorf("snapshot: short image data for %dx%d", n, n)
	}
	span := zr.Max - zr.Min
	if span <= 0 {
		span = 1
	}
	height := image.NewGray16(image.Rect(0, 0, n, n))
	normals := image.NewNRGBA64(image.Rect(0, 0, n, n))
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			i := (y*n + x) * 4
			height.SetGray16(x, y, color.Gray16{Y: unorm16((disp[i+2] - zr.Min) / span)})
			normals.SetNRGBA64(x, y, color.NRGBA64{
				R: unorm16(normal[i]*0.5 + 0.5),
				G: unorm16(normal[i+1]*0.5 + 0.5),
				B: unorm16(normal[i+2]*0.5 + 0.5),
				A: 0xffff,
			})
		}
	}

	base := filepath.Join(dir, fmt.Sprintf("ocean-%06d", frame))
	heightPath := base + "-height.tiff"
	if err := encodeTIFF(heightPath, height); err != nil {
		return "", err
	}
	if err := encodeTIFF(base+"-normal.tiff", normals); err != nil {
		return "", err
	}
	return heightPath, nil
}

func encodeTIFF(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

func unorm16(v float32) uint16 {
	return uint16(min(max(v, 0), 1)*0xffff + 0.5)
}
