// Package loader reads source models into the mesh representation the
// pipeline consumes.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// ErrUnsupported is returned when no loader is registered for an input.
var ErrUnsupported = errors.New("unsupported input")

// MeshLoader loads the model identified by id.
type MeshLoader interface {
	Load(ctx context.Context, id string) (*mesh.Mesh, error)
}

// Func adapts a function to MeshLoader.
type Func func(ctx context.Context, id string) (*mesh.Mesh, error)

// Load calls f.
func (f Func) Load(ctx context.Context, id string) (*mesh.Mesh, error) {
	return f(ctx, id)
}

// Registry picks a loader by URI scheme ("sdf:") or file extension.
type Registry struct {
	mu      sync.RWMutex
	exts    map[string]MeshLoader
	schemes map[string]MeshLoader
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		exts:    make(map[string]MeshLoader),
		schemes: make(map[string]MeshLoader),
	}
}

// Options configures the reference loaders.
type Options struct {
	// Charset decodes OBJ/MTL text that is not UTF-8.
	Charset string
	Logger  *zap.Logger
}

// DefaultRegistry registers the STL, OBJ and procedural loaders.
func DefaultRegistry(opts Options) (*Registry, error) {
	obj, err := NewOBJLoader(opts)
	if err != nil {
		return nil, err
	}
	r := NewRegistry()
	r.Register(".stl", STLLoader{})
	r.Register(".obj", obj)
	r.RegisterScheme(SDFScheme, SDFLoader{})
	return r, nil
}

// Register binds a file extension such as ".obj" to l.
func (r *Registry) Register(ext string, l MeshLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exts[strings.ToLower(ext)] = l
}

// RegisterScheme binds a URI scheme such as "sdf" to l.
func (r *Registry) RegisterScheme(scheme string, l MeshLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemes[strings.ToLower(scheme)] = l
}

// Lookup returns the loader responsible for id.
func (r *Registry) Lookup(id string) (MeshLoader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := strings.Index(id, ":"); i > 1 {
		if l, ok := r.schemes[strings.ToLower(id[:i])]; ok {
			return l, nil
		}
	}
	ext := strings.ToLower(filepath.Ext(id))
	if l, ok := r.exts[ext]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, id)
}

// Load dispatches to the registered loader and validates the result.
func (r *Registry) Load(ctx context.Context, id string) (*mesh.Mesh, error) {
	l, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	m, err := l.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(m.Triangles) == 0 {
		return nil, fmt.Errorf("%s: model has no triangles", id)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return m, nil
}
