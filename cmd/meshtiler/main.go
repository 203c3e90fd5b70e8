// meshtiler converts large triangle meshes into multi-resolution 3D Tiles datasets.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Faultbox/meshtiler/internal/config"
	"github.com/Faultbox/meshtiler/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	flags config.Flags
	cfg   *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "meshtiler",
	Short: "Tile large 3D models into streamable 3D Tiles datasets",
	Long: `meshtiler simplifies a triangle mesh into several levels of detail, splits
every level into spatial tiles, repacks their textures and writes b3dm, glb,
i3dm, pnts or cmpt tiles together with a tileset.json manifest.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(&flags)
		if err != nil {
			return err
		}
		cfg = c
		return logger.InitFromConfig(cfg.Logging)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	flags.Register(rootCmd.PersistentFlags())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
