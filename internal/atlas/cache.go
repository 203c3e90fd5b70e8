package atlas

import (
	"image"
	"sync"

	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// Cache holds decoded textures for the lifetime of one task. Textures are
// keyed by identity since the material table is shared and immutable.
type Cache struct {
	images map[*mesh.Texture]image.Image
	mu     sync.RWMutex

	// Stats
	hits   int
	misses int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		images: make(map[*mesh.Texture]image.Image),
	}
}

// Decode returns the decoded image for tex, decoding on first use.
func (c *Cache) Decode(tex *mesh.Texture) (image.Image, error) {
	c.mu.RLock()
	img, ok := c.images[tex]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return img, nil
	}

	img, err := Decode(tex)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses++
	c.images[tex] = img
	return img, nil
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
