package ocean

import "math/rand/v2"

// noiseTexels returns n*n RGBA uniform samples in (0, 1]. The spectrum turns
// .xy and .zw into Gaussian pairs, so zero must never appear.
func noiseTexels(n int, seed int64) []float32 {
	r := rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
	pix := make([]float32, n*n*4)
	for i := range pix {
		pix[i] = 1 - r.Float32()
	}
	return pix
}
