package ocean

import "fmt"

// WaveTechnique is the spectral model seeding the initial spectrum.
type WaveTechnique interface {
	Name() SpectralTechnique
	// SpectrumEntry is the kernel that fills the initial spectrum.
	SpectrumEntry() string
	// FoamThreshold sharpens crest detection; peakier spectra need more.
	FoamThreshold() float32
	// AltitudeScale maps the configured altitude scale to the one used for
	// rendering.
	AltitudeScale(configured float32) float32
}

type phillipsTechnique struct{}

func (phillipsTechnique) Name() SpectralTechnique           { return Phillips }
func (phillipsTechnique) SpectrumEntry() string             { return kernelSpectrumPhillips }
func (phillipsTechnique) FoamThreshold() float32            { return 2 }
func (phillipsTechnique) AltitudeScale(alt float32) float32 { return alt / 2 }

type jonswapTechnique struct{}

func (jonswapTechnique) Name() SpectralTechnique           { return Jonswap }
func (jonswapTechnique) SpectrumEntry() string             { return kernelSpectrumJonswap }
func (jonswapTechnique) FoamThreshold() float32            { return 8 }
func (jonswapTechnique) AltitudeScale(alt float32) float32 { return alt }

// NewWaveTechnique returns the technique named by t.
func NewWaveTechnique(t SpectralTechnique) (WaveTechnique, error) {
	switch t {
	case Phillips:
		return phillipsTechnique{}, nil
	case Jonswap:
		return jonswapTechnique{}, nil
	}
	return nil, fmt.Errorf("unknown spectral technique %q", t)
}
