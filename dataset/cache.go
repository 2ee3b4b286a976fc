package dataset

import (
	"sync/atomic"

	"github.com/gmlewis/watertight/mesh"
	lru "github.com/hashicorp/golang-lru/v2"
)

// MeshCache is a Collection that keeps the most recently loaded meshes of
// another Collection in memory. It is safe for concurrent use.
type MeshCache struct {
	c      Collection
	meshes *lru.Cache[string, *mesh.Mesh]

	hits   atomic.Int64
	misses atomic.Int64
}

var _ Collection = (*MeshCache)(nil)

// NewMeshCache caches up to capacity meshes of c.
func NewMeshCache(c Collection, capacity int) *MeshCache {
	if capacity < 1 {
		capacity = 1
	}
	// lru.New only fails for a non-positive size.
	meshes, _ := lru.New[string, *mesh.Mesh](capacity)
	return &MeshCache{c: c, meshes: meshes}
}

// Len implements Collection.
func (mc *MeshCache) Len() int { return mc.c.Len() }

// Get implements Collection.
func (mc *MeshCache) Get(i int) Sample { return &cachedSample{Sample: mc.c.Get(i), cache: mc} }

// Stats returns the number of cache hits and misses so far.
func (mc *MeshCache) Stats() (hits, misses int) {
	return int(mc.hits.Load()), int(mc.misses.Load())
}

type cachedSample struct {
	Sample
	cache *MeshCache
}

// Mesh returns the cached mesh, loading it on a miss. Callers must not
// modify the returned mesh.
func (s *cachedSample) Mesh() (*mesh.Mesh, error) {
	tag := s.Tag()
	if m, ok := s.cache.meshes.Get(tag); ok {
		s.cache.hits.Add(1)
		return m, nil
	}
	s.cache.misses.Add(1)
	m, err := s.Sample.Mesh()
	if err != nil {
		return nil, err
	}
	s.cache.meshes.Add(tag, m)
	return m, nil
}
