// Package store persists encoded tiles and manifests.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Faultbox/meshtiler/internal/partition"
)

var (
	// ErrNotFound is returned when a tile or manifest does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTaskID is returned for task IDs that are not a single local
	// path element.
	ErrInvalidTaskID = errors.New("invalid task id")
)

// ManifestName is the file name of a task's manifest.
const ManifestName = "tileset.json"

// ValidateTaskID checks that id names one directory inside the output root.
func ValidateTaskID(id string) error {
	if id == "" || id == "." || !filepath.IsLocal(id) || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidTaskID, id)
	}
	return nil
}

// TileKey identifies one tile of one task.
type TileKey struct {
	TaskID  string
	LOD     int
	Address partition.Address
}

func (k TileKey) String() string {
	return fmt.Sprintf("%s/lod%d/%s", k.TaskID, k.LOD, k.Address.Name())
}

// TileStore receives the output of a tiling task.
type TileStore interface {
	// WriteTile stores data and returns its URI relative to the task manifest.
	WriteTile(ctx context.Context, key TileKey, data []byte) (string, error)
	ReadTile(ctx context.Context, key TileKey) ([]byte, error)
	WriteManifest(ctx context.Context, taskID string, data []byte) error
	// DeleteTask removes everything written for taskID.
	DeleteTask(ctx context.Context, taskID string) error
}
