package formats

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects the container each tile is written as.
type OutputFormat int

const (
	FormatB3DM OutputFormat = iota
	FormatGLTF
	FormatI3DM
	FormatPNTS
	FormatCMPT
)

var outputNames = [...]string{"b3dm", "gltf", "i3dm", "pnts", "cmpt"}

func (f OutputFormat) String() string {
	if f < 0 || int(f) >= len(outputNames) {
		return "OutputFormat(" + strconv.Itoa(int(f)) + ")"
	}
	return outputNames[f]
}

// Extension returns the file extension, including the dot, for tiles of this format.
func (f OutputFormat) Extension() string {
	if f == FormatGLTF {
		return ".glb"
	}
	return "." + f.String()
}

// ParseOutputFormat accepts a format name or its number. "glb" is an alias for gltf.
func ParseOutputFormat(v string) (OutputFormat, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 || n >= len(outputNames) {
			return 0, fmt.Errorf("output format %d out of range", n)
		}
		return OutputFormat(n), nil
	}
	if v == "glb" {
		return FormatGLTF, nil
	}
	for i, name := range outputNames {
		if v == name {
			return OutputFormat(i), nil
		}
	}
	return 0, fmt.Errorf("unknown output format %q", v)
}

// UnmarshalYAML accepts both names and numbers.
func (f *OutputFormat) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseOutputFormat(value.Value)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// MarshalYAML writes the format name.
func (f OutputFormat) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}
