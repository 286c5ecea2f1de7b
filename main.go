package main

import (
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/hajimehoshi/ebiten/v2"

	"oceancl/internal/ocean"
)

func main() {
	flag.Parse()
	level := slog.LevelInfo
	if *verboseFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, fileCfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if *recordDefaultPGO {
		stop, err := startDefaultPGORecording("default.pgo", pgoRecordDuration)
		if err != nil {
			log.Fatalf("PGO recording failed: %v", err)
		}
		defer stop()
		log.Printf("Recording default.pgo for %s", pgoRecordDuration)
	}

	g, err := newGame(cfg, fileCfg, logger)
	if err != nil {
		log.Fatalf("Ocean initialization failed: %v", err)
	}

	side := min(cfg.TextureSize*windowScale, maxWindowSide)
	ebiten.SetWindowSize(side, side)
	ebiten.SetWindowTitle("Ocean")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(defaultTPS)
	err = ebiten.RunGame(g)
	g.Close()
	if err != nil && !errors.Is(err, ebiten.Termination) {
		log.Fatalf("Simulation stopped: %v", err)
	}
}

// loadConfig layers the config file and explicitly set flags over the
// defaults. fileCfg is the config as loaded from the file alone.
func loadConfig() (cfg, fileCfg ocean.Config, err error) {
	cfg = ocean.DefaultConfig()
	if *configFlag != "" {
		if cfg, err = ocean.LoadConfig(*configFlag); err != nil {
			return cfg, cfg, err
		}
	}
	fileCfg = cfg

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "texture-size":
			cfg.TextureSize = *textureSizeFlag
		case "group-size":
			cfg.GroupSize = *groupSizeFlag
		case "spectrum":
			cfg.SpectralTechnique = ocean.SpectralTechnique(*spectrumFlag)
		case "foam":
			cfg.FoamTechnique = ocean.FoamTechnique(*foamFlag)
		case "scheduler":
			cfg.Scheduler = ocean.SchedulerKind(*schedulerFlag)
		case "zero-copy":
			cfg.ZeroCopy = *zeroCopyFlag
		case "fp16":
			cfg.StagingFP16 = *fp16Flag
		case "seed":
			cfg.Seed = *seedFlag
		}
	})
	return cfg, fileCfg, cfg.Validate()
}
