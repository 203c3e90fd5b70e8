package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// FSOptions configures a filesystem store.
type FSOptions struct {
	// Ext is the tile file extension including the dot.
	Ext string
	// Incremental skips writes whose content matches the file already on disk.
	Incremental bool
}

// FS writes tasks under Root as <task>/<lod>/<address><ext> plus
// <task>/tileset.json.
type FS struct {
	root    string
	opts    FSOptions
	digests *DigestCache

	written atomic.Int64
	skipped atomic.Int64
}

// NewFS creates a filesystem store rooted at root.
func NewFS(root string, opts FSOptions) *FS {
	if opts.Ext == "" {
		opts.Ext = ".b3dm"
	}
	return &FS{root: root, opts: opts, digests: NewDigestCache()}
}

// Root returns the output directory.
func (s *FS) Root() string {
	return s.root
}

// TaskDir returns the directory holding a task's output.
func (s *FS) TaskDir(taskID string) (string, error) {
	if err := ValidateTaskID(taskID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, taskID), nil
}

func (s *FS) relPath(key TileKey) string {
	return path.Join(strconv.Itoa(key.LOD), key.Address.Name()+s.opts.Ext)
}

// WriteTile writes one tile. With incremental updates enabled an identical
// existing file is left untouched.
func (s *FS) WriteTile(ctx context.Context, key TileKey, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir, err := s.TaskDir(key.TaskID)
	if err != nil {
		return "", err
	}
	rel := s.relPath(key)
	uri := "./" + rel
	if err := s.write(filepath.Join(dir, filepath.FromSlash(rel)), data); err != nil {
		return "", fmt.Errorf("writing tile %s: %w", key, err)
	}
	return uri, nil
}

// ReadTile reads a tile back.
func (s *FS) ReadTile(ctx context.Context, key TileKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.TaskDir(key.TaskID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(s.relPath(key))))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("tile %s: %w", key, ErrNotFound)
	}
	return data, err
}

// WriteManifest writes the task's tileset.json.
func (s *FS) WriteManifest(ctx context.Context, taskID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.TaskDir(taskID)
	if err != nil {
		return err
	}
	if err := s.write(filepath.Join(dir, ManifestName), data); err != nil {
		return fmt.Errorf("writing manifest for %s: %w", taskID, err)
	}
	return nil
}

// DeleteTask removes the task directory.
func (s *FS) DeleteTask(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.TaskDir(taskID)
	if err != nil {
		return err
	}
	s.digests.DeletePrefix(dir + string(filepath.Separator))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting task %s: %w", taskID, err)
	}
	return nil
}

// Stats returns the number of files written and skipped as unchanged.
func (s *FS) Stats() (written, skipped int64) {
	return s.written.Load(), s.skipped.Load()
}

func (s *FS) write(name string, data []byte) error {
	sum := sha256.Sum256(data)
	if s.opts.Incremental && s.unchanged(name, sum) {
		s.skipped.Add(1)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return err
	}
	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, name); err != nil {
		os.Remove(tmp)
		return err
	}
	s.digests.Set(name, sum)
	s.written.Add(1)
	return nil
}

func (s *FS) unchanged(name string, sum [sha256.Size]byte) bool {
	if old, ok := s.digests.Get(name); ok {
		if _, err := os.Stat(name); err == nil {
			return old == sum
		}
		return false
	}
	existing, err := os.ReadFile(name)
	if err != nil {
		return false
	}
	old := sha256.Sum256(existing)
	s.digests.Set(name, old)
	return old == sum
}

// DigestCache remembers content hashes of files already written.
type DigestCache struct {
	data map[string][sha256.Size]byte
	mu   sync.RWMutex
}

// NewDigestCache creates an empty cache.
func NewDigestCache() *DigestCache {
	return &DigestCache{
		data: make(map[string][sha256.Size]byte),
	}
}

// Get retrieves the digest recorded for name.
func (c *DigestCache) Get(name string) ([sha256.Size]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sum, ok := c.data[name]
	return sum, ok
}

// Set records the digest of name.
func (c *DigestCache) Set(name string, sum [sha256.Size]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[name] = sum
}

// DeletePrefix forgets every entry whose name starts with prefix.
func (c *DigestCache) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.data {
		if strings.HasPrefix(name, prefix) {
			delete(c.data, name)
		}
	}
}
