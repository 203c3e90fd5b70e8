package config

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"

	"github.com/Faultbox/meshtiler/internal/lod"
)

// ErrResourceLimit is wrapped by Validate when a ceiling is exceeded.
var ErrResourceLimit = errors.New("resource limit exceeded")

// Units returns the number of leaf cells times LOD levels a task may produce.
func (s *SlicingConfig) Units() int {
	if s.Divisions < 0 || s.Divisions > 30 {
		return math.MaxInt
	}
	levels := s.LODLevels
	if !s.EnableMeshDecimation {
		levels = 1
	}
	return (1 << s.Divisions) * levels
}

// Ratios returns the configured LOD ratios, defaulting to successive halving.
func (s *SlicingConfig) Ratios() []float64 {
	if !s.EnableMeshDecimation {
		return []float64{1}
	}
	if len(s.LODRatios) > 0 {
		return s.LODRatios
	}
	return lod.DefaultRatios(s.LODLevels)
}

// CheckLimits reports requests that exceed the configured ceilings.
func (c *Config) CheckLimits() error {
	s, l := &c.Slicing, &c.Limits
	if s.Divisions > l.MaxDivisions {
		return fmt.Errorf("%w: divisions %d > %d", ErrResourceLimit, s.Divisions, l.MaxDivisions)
	}
	if s.LODLevels > l.MaxLODLevels {
		return fmt.Errorf("%w: lod levels %d > %d", ErrResourceLimit, s.LODLevels, l.MaxLODLevels)
	}
	if units := s.Units(); l.MaxUnits > 0 && units > l.MaxUnits && !l.ConfirmLargeJobs {
		return fmt.Errorf("%w: %d units > %d, set confirm_large_jobs to proceed", ErrResourceLimit, units, l.MaxUnits)
	}
	return nil
}

// Validate checks that the configuration is usable. All problems are reported.
func (c *Config) Validate() error {
	var errs error
	s := &c.Slicing
	if s.Divisions < 0 {
		errs = multierr.Append(errs, fmt.Errorf("divisions must be >= 0, got %d", s.Divisions))
	}
	if s.LODLevels < 1 {
		errs = multierr.Append(errs, fmt.Errorf("lod_levels must be >= 1, got %d", s.LODLevels))
	}
	if len(s.LODRatios) > 0 {
		if len(s.LODRatios) != s.LODLevels {
			errs = multierr.Append(errs, fmt.Errorf("lod_ratios has %d entries for %d levels", len(s.LODRatios), s.LODLevels))
		}
		if err := lod.ValidateRatios(s.LODRatios); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if s.TileSize < 0 {
		errs = multierr.Append(errs, fmt.Errorf("tile_size must be >= 0, got %v", s.TileSize))
	}
	if s.GeometricErrorThreshold < 0 {
		errs = multierr.Append(errs, fmt.Errorf("geometric_error_threshold must be >= 0, got %v", s.GeometricErrorThreshold))
	}
	if s.AtlasEncoding != "" && s.AtlasEncoding != "png" && s.AtlasEncoding != "webp" {
		errs = multierr.Append(errs, fmt.Errorf("unknown atlas_encoding %q", s.AtlasEncoding))
	}
	if s.JPEGQuality < 1 || s.JPEGQuality > 100 {
		errs = multierr.Append(errs, fmt.Errorf("jpeg_quality must be in [1,100], got %d", s.JPEGQuality))
	}
	if s.MaxAtlasSize < 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_atlas_size must be >= 0, got %d", s.MaxAtlasSize))
	}

	p := &c.Pipeline
	if p.Workers < 1 {
		errs = multierr.Append(errs, fmt.Errorf("workers must be >= 1, got %d", p.Workers))
	}
	if p.MaxRetries < 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_retries must be >= 0, got %d", p.MaxRetries))
	}
	if p.Policy != PolicyStrict && p.Policy != PolicyLenient {
		errs = multierr.Append(errs, fmt.Errorf("unknown policy %q", p.Policy))
	}

	if g := &c.Geo; g.Enabled {
		if g.Lat < -90 || g.Lat > 90 {
			errs = multierr.Append(errs, fmt.Errorf("latitude %v out of range", g.Lat))
		}
		if g.Lon < -180 || g.Lon > 180 {
			errs = multierr.Append(errs, fmt.Errorf("longitude %v out of range", g.Lon))
		}
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}
	return errs
}
