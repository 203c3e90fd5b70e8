package config

import (
	"github.com/spf13/pflag"

	"github.com/Faultbox/meshtiler/internal/atlas"
	"github.com/Faultbox/meshtiler/pkg/formats"
)

// Flags holds command-line overrides. Only flags the user set are applied.
type Flags struct {
	fs *pflag.FlagSet

	ConfigPath  string
	Debug       bool
	Divisions   int
	LODLevels   int
	TileSize    float64
	Format      string
	Strategy    string
	Output      string
	Workers     int
	Lenient     bool
	KeepPartial bool
	Incremental bool
	Confirm     bool
	LogFormat   string
}

// Register binds the flags to fs.
func (f *Flags) Register(fs *pflag.FlagSet) {
	f.fs = fs
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.IntVarP(&f.Divisions, "divisions", "d", 0, "Partition recursion depth")
	fs.IntVarP(&f.LODLevels, "lod-levels", "l", 0, "Number of LOD levels")
	fs.Float64Var(&f.TileSize, "tile-size", 0, "Stop splitting cells at this edge length")
	fs.StringVarP(&f.Format, "format", "f", "", "Output format (b3dm, gltf, i3dm, pnts, cmpt)")
	fs.StringVarP(&f.Strategy, "texture-strategy", "t", "", "Texture strategy (keep_original, compress, repack, repack_compressed)")
	fs.StringVarP(&f.Output, "output", "o", "", "Output directory")
	fs.IntVarP(&f.Workers, "workers", "w", 0, "Concurrent LOD levels or tasks")
	fs.BoolVar(&f.Lenient, "lenient", false, "Keep going when a leaf fails")
	fs.BoolVar(&f.KeepPartial, "keep-partial", false, "Keep written tiles when a task is cancelled")
	fs.BoolVar(&f.Incremental, "incremental", false, "Skip writing tiles whose content did not change")
	fs.BoolVar(&f.Confirm, "yes", false, "Confirm jobs above the unit ceiling")
	fs.StringVar(&f.LogFormat, "log-format", "", "Log format (console, json)")
}

func (f *Flags) changed(name string) bool {
	return f != nil && f.fs != nil && f.fs.Changed(name)
}

// Apply applies the flags that were set to cfg.
func (f *Flags) Apply(cfg *Config) error {
	if f == nil {
		return nil
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.changed("divisions") {
		cfg.Slicing.Divisions = f.Divisions
	}
	if f.changed("lod-levels") {
		cfg.Slicing.LODLevels = f.LODLevels
		cfg.Slicing.LODRatios = nil
	}
	if f.changed("tile-size") {
		cfg.Slicing.TileSize = f.TileSize
	}
	if f.changed("format") {
		format, err := formats.ParseOutputFormat(f.Format)
		if err != nil {
			return err
		}
		cfg.Slicing.OutputFormat = format
	}
	if f.changed("texture-strategy") {
		s, err := atlas.ParseStrategy(f.Strategy)
		if err != nil {
			return err
		}
		cfg.Slicing.TextureStrategy = s
	}
	if f.changed("output") {
		cfg.Output.Dir = f.Output
	}
	if f.changed("workers") {
		cfg.Pipeline.Workers = f.Workers
	}
	if f.Lenient {
		cfg.Pipeline.Policy = PolicyLenient
	}
	if f.KeepPartial {
		cfg.Pipeline.KeepPartial = true
	}
	if f.Incremental {
		cfg.Slicing.EnableIncrementalUpdates = true
	}
	if f.Confirm {
		cfg.Limits.ConfirmLargeJobs = true
	}
	if f.changed("log-format") {
		cfg.Logging.Format = f.LogFormat
	}
	return nil
}
