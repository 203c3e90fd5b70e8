package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/meshtiler/internal/geo"
	"github.com/Faultbox/meshtiler/internal/logger"
	"github.com/Faultbox/meshtiler/internal/tileset"
	pmath "github.com/Faultbox/meshtiler/pkg/math"
)

var mergeManifest string

var mergeCmd = &cobra.Command{
	Use:   "merge <tileset.json>...",
	Short: "Combine several tilesets under one root manifest",
	Long: `Merge writes a tileset.json whose root references every input tileset as
an external child. Child URIs are written relative to the merged manifest.
When geo anchoring is enabled the root carries the ENU-to-ECEF transform.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeManifest, "manifest", "m", "", "Merged manifest path (default <output>/tileset.json)")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	out := mergeManifest
	if out == "" {
		out = filepath.Join(cfg.Output.Dir, "tileset.json")
	}
	base, err := filepath.Abs(filepath.Dir(out))
	if err != nil {
		return err
	}

	children := make([]tileset.Child, 0, len(args))
	for _, path := range args {
		child, err := mergeChild(base, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		children = append(children, child)
	}

	var transform *pmath.Mat4
	if g := cfg.Geo; g.Enabled {
		m := geo.TransformWithOffset(g.Lon, g.Lat, g.Height, pmath.Vec3{X: g.Offset[0], Y: g.Offset[1], Z: g.Offset[2]})
		transform = &m
	}

	data, err := tileset.Merge(children, transform).Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	logger.Info("merged tilesets", zap.Int("children", len(children)), zap.String("manifest", out))
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d children)\n", out, len(children))
	return nil
}

func mergeChild(base, path string) (tileset.Child, error) {
	m, err := tileset.ReadFile(path)
	if err != nil {
		return tileset.Child{}, err
	}
	bounds, err := tileset.BoxBounds(m.Root.BoundingVolume.Box)
	if err != nil {
		return tileset.Child{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return tileset.Child{}, err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return tileset.Child{}, err
	}
	return tileset.Child{URI: "./" + filepath.ToSlash(rel), Bounds: bounds}, nil
}
