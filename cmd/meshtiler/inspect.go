package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Faultbox/meshtiler/pkg/formats"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <tile>",
	Short: "Print the header, feature table and glTF summary of a tile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return inspect(cmd.OutOrStdout(), data)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

// inspect writes a human-readable description of a tile container.
func inspect(w io.Writer, data []byte) error {
	return inspectIndent(w, data, "")
}

func inspectIndent(w io.Writer, data []byte, indent string) error {
	switch magic := formats.Magic(data); magic {
	case "":
		return fmt.Errorf("%w: %d bytes", formats.ErrTruncatedTile, len(data))
	case "b3dm":
		t, err := formats.ParseB3DM(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%sb3dm v%d, %d bytes\n", indent, t.Version, t.ByteLength)
		fmt.Fprintf(w, "%s  feature table: %s\n", indent, trimJSON(t.FeatureTableJSON))
		fmt.Fprintf(w, "%s  batch table:   %s\n", indent, trimJSON(t.BatchTableJSON))
		return inspectGLB(w, t.GLB, indent+"  ")
	case "i3dm":
		t, err := formats.ParseI3DM(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%si3dm v%d, %d instances, gltfFormat %d\n", indent, t.Version, t.InstancesLength, t.GLTFFormat)
		if len(t.RTCCenter) == 3 {
			fmt.Fprintf(w, "%s  rtc center: %.3f %.3f %.3f\n", indent, t.RTCCenter[0], t.RTCCenter[1], t.RTCCenter[2])
		}
		for i, p := range t.Positions {
			fmt.Fprintf(w, "%s  instance %d: %.3f %.3f %.3f\n", indent, i, p.X, p.Y, p.Z)
		}
		return inspectGLB(w, t.GLB, indent+"  ")
	case "pnts":
		t, err := formats.ParsePNTS(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%spnts v%d, %d points\n", indent, t.Version, t.PointsLength)
		if len(t.RTCCenter) == 3 {
			fmt.Fprintf(w, "%s  rtc center: %.3f %.3f %.3f\n", indent, t.RTCCenter[0], t.RTCCenter[1], t.RTCCenter[2])
		}
		return nil
	case "cmpt":
		tiles, err := formats.ParseCMPT(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%scmpt, %d inner tiles\n", indent, len(tiles))
		for _, inner := range tiles {
			if err := inspectIndent(w, inner, indent+"  "); err != nil {
				return err
			}
		}
		return nil
	case "glTF":
		return inspectGLB(w, data, indent)
	default:
		return fmt.Errorf("%w: magic %q", formats.ErrUnsupportedTile, magic)
	}
}

func inspectGLB(w io.Writer, data []byte, indent string) error {
	g, err := formats.ParseGLB(data)
	if err != nil {
		return err
	}
	doc := &g.Document
	fmt.Fprintf(w, "%sglTF %s (GLB v%d), generator %q\n", indent, doc.Asset.Version, g.Version, doc.Asset.Generator)

	prims, verts, indices := 0, 0, 0
	for _, m := range doc.Meshes {
		for _, p := range m.Primitives {
			prims++
			if pos, ok := p.Attributes["POSITION"]; ok && pos < len(doc.Accessors) {
				verts += doc.Accessors[pos].Count
			}
			if p.Indices != nil && *p.Indices < len(doc.Accessors) {
				indices += doc.Accessors[*p.Indices].Count
			}
		}
	}
	fmt.Fprintf(w, "%s  meshes %d, primitives %d, vertices %d, triangles %d\n", indent, len(doc.Meshes), prims, verts, indices/3)
	fmt.Fprintf(w, "%s  materials %d, textures %d, images %d, bin %d bytes\n", indent, len(doc.Materials), len(doc.Textures), len(doc.Images), len(g.Bin))
	if len(doc.ExtensionsUsed) > 0 {
		fmt.Fprintf(w, "%s  extensions: %s\n", indent, strings.Join(doc.ExtensionsUsed, ", "))
	}
	return nil
}

func trimJSON(b []byte) string {
	return strings.TrimRight(string(b), " \x00")
}
