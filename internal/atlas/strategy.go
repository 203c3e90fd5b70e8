package atlas

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Strategy selects how a leaf's textures are processed.
type Strategy int

const (
	KeepOriginal Strategy = iota
	Compress
	Repack
	RepackCompressed
)

var strategyNames = [...]string{"keep_original", "compress", "repack", "repack_compressed"}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return "Strategy(" + strconv.Itoa(int(s)) + ")"
	}
	return strategyNames[s]
}

// ParseStrategy accepts a strategy name or its number.
func ParseStrategy(v string) (Strategy, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 || n >= len(strategyNames) {
			return 0, fmt.Errorf("texture strategy %d out of range", n)
		}
		return Strategy(n), nil
	}
	norm := strings.ReplaceAll(v, "-", "_")
	for i, name := range strategyNames {
		if norm == name || norm == strings.ReplaceAll(name, "_", "") {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown texture strategy %q", v)
}

// UnmarshalYAML accepts both names and numbers.
func (s *Strategy) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseStrategy(value.Value)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML writes the strategy name.
func (s Strategy) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

func (s Strategy) repacks() bool {
	return s == Repack || s == RepackCompressed
}

func (s Strategy) compresses() bool {
	return s == Compress || s == RepackCompressed
}
