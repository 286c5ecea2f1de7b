package ocean

import (
	"errors"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// SpectralTechnique selects the spectral density used to seed the waves.
type SpectralTechnique string

const (
	Phillips SpectralTechnique = "phillips"
	Jonswap  SpectralTechnique = "jonswap"
)

// FoamTechnique selects the foam strategy.
type FoamTechnique string

const (
	FoamNone      FoamTechnique = "none"
	FoamThreshold FoamTechnique = "threshold"
	FoamFluid     FoamTechnique = "fluid"
)

// SchedulerKind selects how launches are ordered on the device.
type SchedulerKind string

const (
	// SchedulerAuto uses the graph scheduler when foam is simulated by the
	// fluid solver and the in-order one otherwise.
	SchedulerAuto    SchedulerKind = "auto"
	SchedulerInOrder SchedulerKind = "inorder"
	SchedulerGraph   SchedulerKind = "graph"
)

// Config is the construction-time configuration of a Simulation.
type Config struct {
	// GridSize is the number of render mesh cells per side.
	GridSize int `toml:"grid_size" yaml:"grid_size"`
	// TextureSize is the spectral grid side N.
	TextureSize       int               `toml:"texture_size" yaml:"texture_size"`
	GroupSize         int               `toml:"group_size" yaml:"group_size"`
	SpectralTechnique SpectralTechnique `toml:"spectral_technique" yaml:"spectral_technique"`
	FoamTechnique     FoamTechnique     `toml:"foam_technique" yaml:"foam_technique"`
	MeshSpacing       float32           `toml:"mesh_spacing" yaml:"mesh_spacing"`
	FoamScopeMult     int               `toml:"foam_scope_mult" yaml:"foam_scope_mult"`
	FramesInFlight    int               `toml:"frames_in_flight" yaml:"frames_in_flight"`
	// ZeroCopy requests shared images; it is ignored when the device cannot
	// share memory.
	ZeroCopy  bool          `toml:"zero_copy" yaml:"zero_copy"`
	Scheduler SchedulerKind `toml:"scheduler" yaml:"scheduler"`
	// StagingFP16 stores host copies of the output images as binary16.
	StagingFP16 bool   `toml:"staging_fp16" yaml:"staging_fp16"`
	Seed        int64  `toml:"seed" yaml:"seed"`
	Params      Params `toml:"params" yaml:"params"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		GridSize:          256,
		TextureSize:       512,
		GroupSize:         16,
		SpectralTechnique: Jonswap,
		FoamTechnique:     FoamFluid,
		MeshSpacing:       2,
		FoamScopeMult:     2,
		FramesInFlight:    2,
		ZeroCopy:          true,
		Scheduler:         SchedulerAuto,
		Seed:              1,
		Params:            DefaultParams(),
	}
}

func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

// log2 assumes n is a power of two.
func log2(n int) int { return bits.TrailingZeros(uint(n)) }

// PatchLength is the world-space side length of the simulated tile.
func (c Config) PatchLength() float32 { return float32(c.GridSize) * c.MeshSpacing }

// FoamSize is the side of the foam solver grid.
func (c Config) FoamSize() int { return c.TextureSize * c.FoamScopeMult }

// EffectiveScheduler resolves SchedulerAuto.
func (c Config) EffectiveScheduler() SchedulerKind {
	switch {
	case c.Scheduler != SchedulerAuto:
		return c.Scheduler
	case c.FoamTechnique == FoamFluid:
		return SchedulerGraph
	}
	return SchedulerInOrder
}

// Validate checks the invariants every pipeline stage relies on.
func (c Config) Validate() error {
	var errs []error
	if !isPow2(c.TextureSize) || c.TextureSize < 4 {
		errs = append(errs, fmt.Errorf("texture_size %d must be a power of two >= 4", c.TextureSize))
	}
	if !isPow2(c.GroupSize) {
		errs = append(errs, fmt.Errorf("group_size %d must be a power of two", c.GroupSize))
	} else if c.GroupSize > c.TextureSize {
		errs = append(errs, fmt.Errorf("group_size %d exceeds texture_size %d", c.GroupSize, c.TextureSize))
	}
	if c.GridSize <= 0 {
		errs = append(errs, fmt.Errorf("grid_size %d must be positive", c.GridSize))
	}
	if c.MeshSpacing <= 0 {
		errs = append(errs, fmt.Errorf("mesh_spacing %v must be positive", c.MeshSpacing))
	}
	if c.FoamScopeMult < 1 {
		errs = append(errs, fmt.Errorf("foam_scope_mult %d must be >= 1", c.FoamScopeMult))
	}
	if c.FramesInFlight < 1 {
		errs = append(errs, fmt.Errorf("frames_in_flight %d must be >= 1", c.FramesInFlight))
	}
	switch c.SpectralTechnique {
	case Phillips, Jonswap:
	default:
		errs = append(errs, fmt.Errorf("unknown spectral_technique %q", c.SpectralTechnique))
	}
	switch c.FoamTechnique {
	case FoamNone, FoamThreshold, FoamFluid:
	default:
		errs = append(errs, fmt.Errorf("unknown foam_technique %q", c.FoamTechnique))
	}
	switch c.Scheduler {
	case SchedulerAuto, SchedulerInOrder, SchedulerGraph:
	default:
		errs = append(errs, fmt.Errorf("unknown scheduler %q", c.Scheduler))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a TOML or YAML file over the defaults. Keys missing from
// the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := DecodeConfig(filepath.Ext(path), data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// DecodeConfig decodes data in the format named by ext into cfg.
func DecodeConfig(ext string, data []byte, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	}
	return fmt.Errorf("unsupported config format %q", ext)
}
