// Package config handles tiling configuration loading and management.
package config

import (
	"github.com/Faultbox/meshtiler/internal/atlas"
	"github.com/Faultbox/meshtiler/pkg/formats"
)

// Config holds all tiling settings.
type Config struct {
	Slicing  SlicingConfig  `yaml:"slicing"`
	Limits   LimitsConfig   `yaml:"limits"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Geo      GeoConfig      `yaml:"geo"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SlicingConfig controls decimation, partitioning, textures and encoding.
type SlicingConfig struct {
	TileSize                 float64              `yaml:"tile_size"`
	Divisions                int                  `yaml:"divisions"`
	LODLevels                int                  `yaml:"lod_levels"`
	LODRatios                []float64            `yaml:"lod_ratios,omitempty"` // Empty: successive halving
	MinTrianglesPerSplit     int                  `yaml:"min_triangles_per_split"`
	EnableMeshDecimation     bool                 `yaml:"enable_mesh_decimation"`
	GenerateTileset          bool                 `yaml:"generate_tileset"`
	OutputFormat             formats.OutputFormat `yaml:"output_format"`
	TextureStrategy          atlas.Strategy       `yaml:"texture_strategy"`
	AtlasEncoding            string               `yaml:"atlas_encoding"` // png or webp
	MaxAtlasSize             int                  `yaml:"max_atlas_size"`
	JPEGQuality              int                  `yaml:"jpeg_quality"`
	GeometricErrorThreshold  float64              `yaml:"geometric_error_threshold"`
	EnableIncrementalUpdates bool                 `yaml:"enable_incremental_updates"`
	Charset                  string               `yaml:"charset"` // Legacy encoding of OBJ/MTL text
}

// LimitsConfig holds the ceilings checked before a task starts.
type LimitsConfig struct {
	MaxDivisions     int  `yaml:"max_divisions"`
	MaxLODLevels     int  `yaml:"max_lod_levels"`
	MaxUnits         int  `yaml:"max_units"` // Leaf cells times LOD levels
	ConfirmLargeJobs bool `yaml:"confirm_large_jobs"`
}

// Policy decides what happens when a leaf fails.
type Policy string

const (
	PolicyStrict  Policy = "strict"
	PolicyLenient Policy = "lenient"
)

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	Workers     int    `yaml:"workers"`
	MaxRetries  int    `yaml:"max_retries"`
	Policy      Policy `yaml:"policy"`
	KeepPartial bool   `yaml:"keep_partial"`
}

// GeoConfig places the dataset on the globe.
type GeoConfig struct {
	Enabled bool       `yaml:"enabled"`
	Lon     float64    `yaml:"lon"`
	Lat     float64    `yaml:"lat"`
	Height  float64    `yaml:"height"`
	Offset  [3]float64 `yaml:"offset"` // ENU metres
}

// OutputConfig holds where tiles are written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	Format  string `yaml:"format"` // console or json
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Slicing: SlicingConfig{
			Divisions:            2,
			LODLevels:            3,
			MinTrianglesPerSplit: 0,
			EnableMeshDecimation: true,
			GenerateTileset:      true,
			OutputFormat:         formats.FormatB3DM,
			TextureStrategy:      atlas.KeepOriginal,
			AtlasEncoding:        "png",
			MaxAtlasSize:         4096,
			JPEGQuality:          75,
		},
		Limits: LimitsConfig{
			MaxDivisions: 4,
			MaxLODLevels: 5,
			MaxUnits:     64,
		},
		Pipeline: PipelineConfig{
			Workers:    4,
			MaxRetries: 2,
			Policy:     PolicyStrict,
		},
		Output: OutputConfig{
			Dir: "tiles",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
